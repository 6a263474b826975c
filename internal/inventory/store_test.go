package inventory

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-realtime-market/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"testing"
)

// countingStore keeps a single counter per target.
type countingStore struct {
	stock    map[Target]int
	released []Target
	failOn   Target
}

func (s *countingStore) Reserve(_ context.Context, t Target, qty int) (*Reservation, error) {
	if s.stock[t] < qty {
		return nil, apperr.OutOfStock(t.String(), qty, s.stock[t])
	}
	s.stock[t] -= qty
	return &Reservation{Target: t, Quantity: qty}, nil
}

func (s *countingStore) Release(_ context.Context, r *Reservation) error {
	if r.Released {
		return nil
	}
	if r.Target == s.failOn {
		return errors.New("boom")
	}
	s.stock[r.Target] += r.Quantity
	s.released = append(s.released, r.Target)
	r.Released = true
	return nil
}

func (s *countingStore) Available(_ context.Context, t Target) (int, error) { return s.stock[t], nil }

func TestReleaseAllNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := &countingStore{stock: map[Target]int{Product(1): 3, Product(2): 3}}
	a, err := s.Reserve(ctx, Product(1), 1)
	require.NoError(t, err)
	b, err := s.Reserve(ctx, Product(2), 2)
	require.NoError(t, err)

	require.NoError(t, ReleaseAll(ctx, s, []*Reservation{a, nil, b}))
	assert.Equal(t, []Target{Product(2), Product(1)}, s.released)
	assert.Equal(t, 3, s.stock[Product(2)])

	require.NoError(t, ReleaseAll(ctx, s, []*Reservation{a, b}))
	assert.Len(t, s.released, 2)
}

func TestReleaseAllJoinsErrors(t *testing.T) {
	ctx := context.Background()
	s := &countingStore{stock: map[Target]int{Listing(1): 1, Listing(2): 1}, failOn: Listing(1)}
	a, _ := s.Reserve(ctx, Listing(1), 1)
	b, _ := s.Reserve(ctx, Listing(2), 1)

	err := ReleaseAll(ctx, s, []*Reservation{a, b})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing:1")
	assert.True(t, b.Released)
}

func TestInstrumentPassesThrough(t *testing.T) {
	ctx := context.Background()
	s := Instrument(&countingStore{stock: map[Target]int{Product(9): 1}}, zaptest.NewLogger(t))

	r, err := s.Reserve(ctx, Product(9), 1)
	require.NoError(t, err)
	_, err = s.Reserve(ctx, Product(9), 1)
	require.ErrorIs(t, err, apperr.ErrOutOfStock)

	require.NoError(t, s.Release(ctx, r))
	require.NoError(t, s.Release(ctx, nil))
	n, err := s.Available(ctx, Product(9))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
