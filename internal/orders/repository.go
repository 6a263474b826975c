package orders

import (
	"context"
	"github.com/ariefcatur/go-realtime-market/internal/inventory"
)

// Repository persists orders with their items. Update is an optimistic
// compare-and-swap on Version: it stores o only if the row still carries
// o.Version and bumps the version, else it returns apperr.ErrConflict.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id int64) (*Order, error)
	ListByUser(ctx context.Context, userID int64) ([]Order, error)
	ListByStatus(ctx context.Context, s Status) ([]Order, error)
	Update(ctx context.Context, o *Order) error
	// UpdateAndRelease is Update plus the stock credit of every reservation
	// in release, committed together. On any error nothing is written.
	UpdateAndRelease(ctx context.Context, o *Order, release []inventory.Reservation) error
}

type Catalog interface {
	Product(ctx context.Context, id int64) (Product, error)
}
