package config

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, ":8081", c.HTTPAddr)
	assert.Equal(t, StorePostgres, c.Store)
	assert.Equal(t, 30*time.Second, c.CacheTTL)
	assert.Equal(t, []string{"kafka:9092"}, c.KafkaBrokers)
	assert.EqualValues(t, 8, c.PGMaxConns)
}

func TestLoadEnvAndFile(t *testing.T) {
	f := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(f, []byte("SERVICE_NAME=market-test\nCACHE_TTL=5s\n"), 0o600))
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092")
	t.Setenv("STORE", "memory")
	t.Cleanup(func() {
		os.Unsetenv("SERVICE_NAME")
		os.Unsetenv("CACHE_TTL")
	})

	c, err := Load(f)
	require.NoError(t, err)
	assert.Equal(t, "market-test", c.ServiceName)
	assert.Equal(t, 5*time.Second, c.CacheTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.KafkaBrokers)
	assert.Equal(t, StoreMemory, c.Store)
	assert.True(t, c.KafkaEnabled())
}

func TestLoadRejectsUnknownStore(t *testing.T) {
	t.Setenv("STORE", "sqlite")
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
}
