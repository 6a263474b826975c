package market

import (
	"context"
	"github.com/ariefcatur/go-realtime-market/internal/inventory"
)

type Repository interface {
	CreateListing(ctx context.Context, l *Listing) error
	GetListing(ctx context.Context, id int64) (*Listing, error)
	// UpdateListing applies fn to the current row while holding it locked and
	// stores the result in the same atomic unit. sold is the number of units
	// in Completed orders, read under the same lock. An error from fn aborts
	// without writing.
	UpdateListing(ctx context.Context, id int64, fn func(l *Listing, sold int) error) (*Listing, error)
	ListListingsBySeller(ctx context.Context, sellerID int64) ([]Listing, error)
	ListListingsByStatus(ctx context.Context, s ListingStatus) ([]Listing, error)

	CreateOrder(ctx context.Context, o *MarketOrder) error
	GetOrder(ctx context.Context, id int64) (*MarketOrder, error)
	// UpdateOrder is a compare-and-swap on Version (apperr.ErrConflict on loss).
	// It serialises with UpdateListing on the order's listing.
	UpdateOrder(ctx context.Context, o *MarketOrder) error
	// UpdateOrderAndRelease is UpdateOrder plus giving release back to the
	// listing, committed together. It returns the listing as stored.
	UpdateOrderAndRelease(ctx context.Context, o *MarketOrder, release inventory.Reservation) (*Listing, error)
	ListOrdersByBuyer(ctx context.Context, buyerID int64) ([]MarketOrder, error)
	ListOrdersBySeller(ctx context.Context, sellerID int64) ([]MarketOrder, error)
	ListOrdersByStatus(ctx context.Context, s OrderStatus) ([]MarketOrder, error)
	ListOrdersByListing(ctx context.Context, listingID int64) ([]MarketOrder, error)
}
