package inventory

import (
	"context"
	"errors"
	"fmt"
)

type Kind string

const (
	KindProduct Kind = "product"
	KindListing Kind = "listing"
)

type Target struct {
	Kind Kind
	ID   int64
}

func Product(id int64) Target { return Target{Kind: KindProduct, ID: id} }
func Listing(id int64) Target { return Target{Kind: KindListing, ID: id} }

func (t Target) String() string { return fmt.Sprintf("%s:%d", t.Kind, t.ID) }

// Reservation is a quantity taken out of a target's available stock.
// Released is owned by the holder (order item / market order) and persisted
// with it; the store only reads and flips it.
type Reservation struct {
	Target   Target
	Quantity int
	Released bool
}

// Store is the single place availability is decremented or restored.
// Reserve must be one atomic check-and-decrement: two callers racing on the
// last unit never both succeed. It returns apperr.ErrOutOfStock (wrapped)
// when the target cannot supply qty, including when the target is no longer
// sellable.
type Store interface {
	Reserve(ctx context.Context, t Target, qty int) (*Reservation, error)
	Release(ctx context.Context, r *Reservation) error
	Available(ctx context.Context, t Target) (int, error)
}

// ReleaseAll undoes reservations taken earlier in the same call, newest first.
// Already released entries are skipped by the store.
func ReleaseAll(ctx context.Context, s Store, rs []*Reservation) error {
	var errs []error
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == nil {
			continue
		}
		if err := s.Release(ctx, rs[i]); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", rs[i].Target, err))
		}
	}
	return errors.Join(errs...)
}
