package market

import (
	"github.com/ariefcatur/go-realtime-market/internal/fsm"
	"github.com/shopspring/decimal"
	"time"
)

type ListingStatus string

const (
	ListingActive    ListingStatus = fsm.Active
	ListingSold      ListingStatus = fsm.Sold
	ListingCancelled ListingStatus = fsm.Cancelled
)

type OrderStatus string

const (
	OrderPending   OrderStatus = fsm.Pending
	OrderConfirmed OrderStatus = fsm.Confirmed
	OrderCompleted OrderStatus = fsm.Completed
	OrderCancelled OrderStatus = fsm.Cancelled
)

func ParseListingStatus(s string) (ListingStatus, bool) {
	return ListingStatus(s), fsm.Known(fsm.KindListing, s)
}

func ParseOrderStatus(s string) (OrderStatus, bool) {
	return OrderStatus(s), fsm.Known(fsm.KindMarketOrder, s)
}

type Listing struct {
	ID                int64           `json:"id"`
	SellerID          int64           `json:"seller_id"`
	Title             string          `json:"title"`
	Description       string          `json:"description,omitempty"`
	Price             decimal.Decimal `json:"price"`
	Quantity          int             `json:"quantity"`
	AvailableQuantity int             `json:"available_quantity"`
	Status            ListingStatus   `json:"status"`
	IsNegotiable      bool            `json:"is_negotiable"`
	ExpiresAt         time.Time       `json:"expires_at"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	CancelledAt       *time.Time      `json:"cancelled_at,omitempty"`
	SoldAt            *time.Time      `json:"sold_at,omitempty"`
}

// Reserved is the number of units held by orders that were not released.
func (l Listing) Reserved() int { return l.Quantity - l.AvailableQuantity }

type MarketOrder struct {
	ID          int64           `json:"id"`
	ListingID   int64           `json:"listing_id"`
	BuyerID     int64           `json:"buyer_id"`
	SellerID    int64           `json:"seller_id"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	PlatformFee decimal.Decimal `json:"platform_fee"`
	// SellerAmount = TotalAmount - PlatformFee
	SellerAmount decimal.Decimal `json:"seller_amount"`
	Status       OrderStatus     `json:"status"`
	Released     bool            `json:"released"`
	Version      int             `json:"version"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	ConfirmedAt  *time.Time      `json:"confirmed_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	CancelledAt  *time.Time      `json:"cancelled_at,omitempty"`
}

type CreateListingRequest struct {
	SellerID     int64           `json:"seller_id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price"`
	Quantity     int             `json:"quantity"`
	IsNegotiable bool            `json:"is_negotiable"`
	ExpiresAt    time.Time       `json:"expires_at"`
}

// UpdateListingRequest patches only the non-nil fields.
type UpdateListingRequest struct {
	SellerID     int64            `json:"seller_id"`
	Title        *string          `json:"title,omitempty"`
	Description  *string          `json:"description,omitempty"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	Quantity     *int             `json:"quantity,omitempty"`
	IsNegotiable *bool            `json:"is_negotiable,omitempty"`
}
