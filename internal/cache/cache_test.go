package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type item struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func TestLoad_ReadThrough(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	calls := 0
	load := func(context.Context) ([]item, error) {
		calls++
		return []item{{ID: 1, Name: "sword"}}, nil
	}

	got, err := Load(ctx, m, zap.NewNop(), "k", time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, []item{{ID: 1, Name: "sword"}}, got)

	got, err = Load(ctx, m, zap.NewNop(), "k", time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, []item{{ID: 1, Name: "sword"}}, got)
	assert.Equal(t, 1, calls)

	Invalidate(ctx, m, zap.NewNop(), "k", "k")
	_, err = Load(ctx, m, zap.NewNop(), "k", time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestLoad_ErrorNotCached(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	boom := errors.New("db down")
	_, err := Load(ctx, m, zap.NewNop(), "k", time.Minute, func(context.Context) (item, error) {
		return item{}, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, m.Has("k"))
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("unreachable")
}
func (brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("unreachable")
}
func (brokenStore) Delete(context.Context, ...string) error { return errors.New("unreachable") }

func TestLoad_BrokenCacheFallsBack(t *testing.T) {
	got, err := Load(context.Background(), brokenStore{}, zap.NewNop(), "k", time.Minute, func(context.Context) (item, error) {
		return item{ID: 9}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(9), got.ID)

	assert.NotPanics(t, func() { Invalidate(context.Background(), brokenStore{}, zap.NewNop(), "k") })
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Second))
	assert.True(t, m.Has("k"))

	now = now.Add(2 * time.Second)
	assert.False(t, m.Has("k"))
}

func TestNop(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, Nop{}.Set(ctx, "k", []byte("v"), time.Minute))
	_, ok, err := Nop{}.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
