package market

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-realtime-market/internal/apperr"
	"github.com/ariefcatur/go-realtime-market/internal/cache"
	"github.com/ariefcatur/go-realtime-market/internal/fsm"
	"github.com/ariefcatur/go-realtime-market/internal/inventory"
	"github.com/ariefcatur/go-realtime-market/internal/metrics"
	"github.com/ariefcatur/go-realtime-market/internal/money"
	"github.com/ariefcatur/go-realtime-market/internal/notify"
	"github.com/ariefcatur/go-realtime-market/internal/pricing"
	"github.com/ariefcatur/go-realtime-market/internal/redisx"
	"github.com/ariefcatur/go-realtime-market/internal/users"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxAttempts     = 3
	maxTitleLength  = 200
	DefaultLifetime = 30 * 24 * time.Hour
)

// errUnchanged aborts a listing update that turned out to be a no-op.
var errUnchanged = errors.New("listing unchanged")

type Deps struct {
	Repo      Repository
	Users     users.Directory
	Inventory inventory.Store
	Cache     cache.Store
	Notifier  notify.Notifier
	Logger    *zap.Logger
	CacheTTL  time.Duration
}

// Manager runs peer-to-peer listings and the orders placed against them.
type Manager struct {
	repo      Repository
	users     users.Directory
	inventory inventory.Store
	cache     cache.Store
	notifier  notify.Notifier
	log       *zap.Logger
	ttl       time.Duration
	now       func() time.Time
}

func NewManager(d Deps) *Manager {
	m := &Manager{
		repo:      d.Repo,
		users:     d.Users,
		inventory: d.Inventory,
		cache:     d.Cache,
		notifier:  d.Notifier,
		log:       d.Logger,
		ttl:       d.CacheTTL,
		now:       func() time.Time { return time.Now().UTC() },
	}
	if m.cache == nil {
		m.cache = cache.Nop{}
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	if m.ttl <= 0 {
		m.ttl = redisx.TTLReadCache
	}
	return m
}

func (m *Manager) CreateListing(ctx context.Context, req CreateListingRequest) (*Listing, error) {
	if req.SellerID <= 0 {
		return nil, apperr.Validation("seller_id is required")
	}
	req.Title = strings.TrimSpace(req.Title)
	if err := validateTitle(req.Title); err != nil {
		return nil, err
	}
	if err := validatePrice(req.Price); err != nil {
		return nil, err
	}
	if req.Quantity <= 0 {
		return nil, apperr.Validation("invalid quantity %d", req.Quantity)
	}
	now := m.now()
	if req.ExpiresAt.IsZero() {
		req.ExpiresAt = now.Add(DefaultLifetime)
	} else if !req.ExpiresAt.After(now) {
		return nil, apperr.Validation("expires_at must be in the future")
	}
	if err := m.requireActiveUser(ctx, req.SellerID); err != nil {
		return nil, err
	}

	l := &Listing{
		SellerID:          req.SellerID,
		Title:             req.Title,
		Description:       req.Description,
		Price:             req.Price,
		Quantity:          req.Quantity,
		AvailableQuantity: req.Quantity,
		Status:            ListingActive,
		IsNegotiable:      req.IsNegotiable,
		ExpiresAt:         req.ExpiresAt.UTC(),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := m.repo.CreateListing(ctx, l); err != nil {
		return nil, fmt.Errorf("create listing: %w", err)
	}

	cache.Invalidate(ctx, m.cache, m.log,
		redisx.SellerListingsKey(l.SellerID),
		redisx.ListingsStatusKey(string(ListingActive)),
	)
	m.changed(ctx, fsm.KindListing, l.ID, "", string(ListingActive), now)
	m.log.Info("listing created",
		zap.Int64("listing_id", l.ID),
		zap.Int64("seller_id", l.SellerID),
		zap.Int("quantity", l.Quantity),
		zap.String("price", l.Price.StringFixed(money.Places)),
	)
	return l, nil
}

// UpdateListing patches an Active listing owned by req.SellerID. Quantity
// changes shift the available count by the same delta and may not drop below
// what is already reserved.
func (m *Manager) UpdateListing(ctx context.Context, listingID int64, req UpdateListingRequest) (*Listing, error) {
	if req.Title != nil {
		t := strings.TrimSpace(*req.Title)
		if err := validateTitle(t); err != nil {
			return nil, err
		}
		req.Title = &t
	}
	if req.Price != nil {
		if err := validatePrice(*req.Price); err != nil {
			return nil, err
		}
	}
	if req.Quantity != nil && *req.Quantity <= 0 {
		return nil, apperr.Validation("invalid quantity %d", *req.Quantity)
	}

	l, err := m.repo.UpdateListing(ctx, listingID, func(l *Listing, sold int) error {
		if l.SellerID != req.SellerID {
			return apperr.InvalidOperation("listing %d is not owned by user %d", l.ID, req.SellerID)
		}
		if l.Status != ListingActive {
			return apperr.InvalidOperation("listing %d is %s", l.ID, l.Status)
		}
		if req.Quantity != nil && *req.Quantity != l.Quantity {
			if sold > 0 {
				return apperr.InvalidOperation("quantity of listing %d is fixed once units are sold", l.ID)
			}
			if *req.Quantity < l.Reserved() {
				return apperr.Validation("quantity %d is below the %d units already reserved", *req.Quantity, l.Reserved())
			}
			l.AvailableQuantity += *req.Quantity - l.Quantity
			l.Quantity = *req.Quantity
		}
		if req.Title != nil {
			l.Title = *req.Title
		}
		if req.Description != nil {
			l.Description = *req.Description
		}
		if req.Price != nil {
			l.Price = *req.Price
		}
		if req.IsNegotiable != nil {
			l.IsNegotiable = *req.IsNegotiable
		}
		l.UpdatedAt = m.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.invalidateListing(ctx, l)
	m.log.Info("listing updated", zap.Int64("listing_id", l.ID), zap.Int("quantity", l.Quantity), zap.Int("available", l.AvailableQuantity))
	return l, nil
}

// CancelListing withdraws an Active listing. Existing market orders are left
// as they are.
func (m *Manager) CancelListing(ctx context.Context, listingID, sellerID int64) (*Listing, error) {
	l, err := m.repo.UpdateListing(ctx, listingID, func(l *Listing, _ int) error {
		if l.SellerID != sellerID {
			return apperr.InvalidOperation("listing %d is not owned by user %d", l.ID, sellerID)
		}
		if err := fsm.Check(fsm.KindListing, string(l.Status), string(ListingCancelled)); err != nil {
			return err
		}
		now := m.now()
		l.Status = ListingCancelled
		l.CancelledAt = &now
		l.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.invalidateListing(ctx, l)
	m.changed(ctx, fsm.KindListing, l.ID, string(ListingActive), string(ListingCancelled), l.UpdatedAt)
	return l, nil
}

// CreateOrder reserves quantity units of an Active listing for buyerID and
// stores a Pending market order priced from the listing at that moment.
func (m *Manager) CreateOrder(ctx context.Context, listingID, buyerID int64, quantity int) (*MarketOrder, error) {
	if listingID <= 0 {
		return nil, apperr.Validation("listing_id is required")
	}
	if buyerID <= 0 {
		return nil, apperr.Validation("buyer_id is required")
	}
	if quantity <= 0 {
		return nil, apperr.Validation("invalid quantity %d", quantity)
	}
	if err := m.requireActiveUser(ctx, buyerID); err != nil {
		return nil, err
	}

	l, err := m.repo.GetListing(ctx, listingID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Validation("unknown listing %d", listingID)
	}
	if err != nil {
		return nil, fmt.Errorf("load listing %d: %w", listingID, err)
	}
	if l.SellerID == buyerID {
		return nil, apperr.InvalidOperation("seller cannot buy listing %d", l.ID)
	}
	now := m.now()
	if l.Status != ListingActive {
		return nil, apperr.Validation("listing %d is %s", l.ID, l.Status)
	}
	if !l.ExpiresAt.IsZero() && !now.Before(l.ExpiresAt) {
		return nil, apperr.Validation("listing %d expired at %s", l.ID, l.ExpiresAt.Format(time.RFC3339))
	}

	r, err := m.inventory.Reserve(ctx, inventory.Listing(l.ID), quantity)
	if err != nil {
		return nil, fmt.Errorf("reserve listing %d: %w", l.ID, err)
	}

	split := pricing.PlatformFee(money.Mul(l.Price, quantity))
	o := &MarketOrder{
		ListingID:    l.ID,
		BuyerID:      buyerID,
		SellerID:     l.SellerID,
		Quantity:     quantity,
		UnitPrice:    l.Price,
		TotalAmount:  split.Amount,
		PlatformFee:  split.Fee,
		SellerAmount: split.SellerAmount,
		Status:       OrderPending,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.repo.CreateOrder(ctx, o); err != nil {
		if rerr := m.inventory.Release(ctx, r); rerr != nil {
			m.log.Error("rollback of listing reservation failed", zap.Int64("listing_id", l.ID), zap.Error(rerr))
		}
		return nil, fmt.Errorf("create market order: %w", err)
	}

	cache.Invalidate(ctx, m.cache, m.log,
		redisx.ListingKey(l.ID),
		redisx.SellerListingsKey(l.SellerID),
		redisx.ListingsStatusKey(string(ListingActive)),
		redisx.BuyerMarketOrdersKey(buyerID),
		redisx.SellerMarketOrdersKey(l.SellerID),
		redisx.MarketOrdersStatusKey(string(OrderPending)),
	)
	m.changed(ctx, fsm.KindMarketOrder, o.ID, "", string(OrderPending), now)
	m.log.Info("market order created",
		zap.Int64("market_order_id", o.ID),
		zap.Int64("listing_id", l.ID),
		zap.Int64("buyer_id", buyerID),
		zap.Int("quantity", quantity),
		zap.String("total_amount", o.TotalAmount.StringFixed(money.Places)),
		zap.String("platform_fee", o.PlatformFee.StringFixed(money.Places)),
	)
	return o, nil
}

func (m *Manager) ConfirmOrder(ctx context.Context, orderID int64) (bool, error) {
	_, _, changed, err := m.transition(ctx, orderID, func(o *MarketOrder, now time.Time) bool {
		if o.Status != OrderPending {
			return false
		}
		o.Status = OrderConfirmed
		o.ConfirmedAt = &now
		return true
	}, m.repo.UpdateOrder)
	return changed, err
}

// CompleteOrder settles a Confirmed order; its units stay taken for good. The
// listing is marked Sold once nothing is left to sell or settle.
func (m *Manager) CompleteOrder(ctx context.Context, orderID int64) (bool, error) {
	_, o, changed, err := m.transition(ctx, orderID, func(o *MarketOrder, now time.Time) bool {
		if o.Status != OrderConfirmed {
			return false
		}
		o.Status = OrderCompleted
		o.CompletedAt = &now
		return true
	}, m.repo.UpdateOrder)
	if err != nil || !changed {
		return false, err
	}
	m.markSoldIfExhausted(ctx, o.ListingID)
	return true, nil
}

// CancelOrder cancels a Pending order and returns its units to the listing in
// the same commit. Confirmed orders cannot be cancelled.
func (m *Manager) CancelOrder(ctx context.Context, orderID int64) (bool, error) {
	var release *inventory.Reservation
	var listing *Listing
	cancel := func(o *MarketOrder, now time.Time) bool {
		release = nil
		if o.Status != OrderPending {
			return false
		}
		o.Status = OrderCancelled
		o.CancelledAt = &now
		if !o.Released {
			release = &inventory.Reservation{Target: inventory.Listing(o.ListingID), Quantity: o.Quantity}
			o.Released = true
		}
		return true
	}
	save := func(ctx context.Context, o *MarketOrder) error {
		if release == nil {
			return m.repo.UpdateOrder(ctx, o)
		}
		l, err := m.repo.UpdateOrderAndRelease(ctx, o, *release)
		listing = l
		return err
	}
	_, _, changed, err := m.transition(ctx, orderID, cancel, save)
	if err != nil || !changed {
		return false, err
	}
	if listing != nil {
		metrics.RecordRelease(string(inventory.KindListing))
		m.invalidateListing(ctx, listing)
	}
	return true, nil
}

func (m *Manager) GetListing(ctx context.Context, listingID int64) (*Listing, error) {
	return cache.Load(ctx, m.cache, m.log, redisx.ListingKey(listingID), m.ttl, func(ctx context.Context) (*Listing, error) {
		return m.repo.GetListing(ctx, listingID)
	})
}

func (m *Manager) ListActiveListings(ctx context.Context) ([]Listing, error) {
	return m.ListListingsByStatus(ctx, ListingActive)
}

func (m *Manager) ListListingsByStatus(ctx context.Context, status ListingStatus) ([]Listing, error) {
	if _, ok := ParseListingStatus(string(status)); !ok {
		return nil, apperr.Validation("unknown listing status %q", status)
	}
	return cache.Load(ctx, m.cache, m.log, redisx.ListingsStatusKey(string(status)), m.ttl, func(ctx context.Context) ([]Listing, error) {
		return m.repo.ListListingsByStatus(ctx, status)
	})
}

func (m *Manager) ListSellerListings(ctx context.Context, sellerID int64) ([]Listing, error) {
	return cache.Load(ctx, m.cache, m.log, redisx.SellerListingsKey(sellerID), m.ttl, func(ctx context.Context) ([]Listing, error) {
		return m.repo.ListListingsBySeller(ctx, sellerID)
	})
}

func (m *Manager) GetOrder(ctx context.Context, orderID int64) (*MarketOrder, error) {
	return cache.Load(ctx, m.cache, m.log, redisx.MarketOrderKey(orderID), m.ttl, func(ctx context.Context) (*MarketOrder, error) {
		return m.repo.GetOrder(ctx, orderID)
	})
}

func (m *Manager) ListBuyerOrders(ctx context.Context, buyerID int64) ([]MarketOrder, error) {
	return cache.Load(ctx, m.cache, m.log, redisx.BuyerMarketOrdersKey(buyerID), m.ttl, func(ctx context.Context) ([]MarketOrder, error) {
		return m.repo.ListOrdersByBuyer(ctx, buyerID)
	})
}

func (m *Manager) ListSellerOrders(ctx context.Context, sellerID int64) ([]MarketOrder, error) {
	return cache.Load(ctx, m.cache, m.log, redisx.SellerMarketOrdersKey(sellerID), m.ttl, func(ctx context.Context) ([]MarketOrder, error) {
		return m.repo.ListOrdersBySeller(ctx, sellerID)
	})
}

func (m *Manager) ListOrdersByStatus(ctx context.Context, status OrderStatus) ([]MarketOrder, error) {
	if _, ok := ParseOrderStatus(string(status)); !ok {
		return nil, apperr.Validation("unknown market order status %q", status)
	}
	return cache.Load(ctx, m.cache, m.log, redisx.MarketOrdersStatusKey(string(status)), m.ttl, func(ctx context.Context) ([]MarketOrder, error) {
		return m.repo.ListOrdersByStatus(ctx, status)
	})
}

// transition is the market order twin of the storefront CAS loop: step
// reporting false leaves the order untouched, a lost version race in save
// reloads and re-evaluates.
func (m *Manager) transition(ctx context.Context, orderID int64, step func(o *MarketOrder, now time.Time) bool, save func(context.Context, *MarketOrder) error) (MarketOrder, *MarketOrder, bool, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		o, err := m.repo.GetOrder(ctx, orderID)
		if err != nil {
			return MarketOrder{}, nil, false, err
		}
		before := *o

		now := m.now()
		if !step(o, now) {
			return before, &before, false, nil
		}
		if err := fsm.Check(fsm.KindMarketOrder, string(before.Status), string(o.Status)); err != nil {
			return before, &before, false, err
		}
		o.UpdatedAt = now

		err = save(ctx, o)
		if errors.Is(err, apperr.ErrConflict) {
			m.log.Debug("market order version conflict, retrying", zap.Int64("market_order_id", orderID), zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return before, nil, false, fmt.Errorf("update market order %d: %w", orderID, err)
		}

		cache.Invalidate(ctx, m.cache, m.log,
			redisx.MarketOrderKey(o.ID),
			redisx.BuyerMarketOrdersKey(o.BuyerID),
			redisx.SellerMarketOrdersKey(o.SellerID),
			redisx.MarketOrdersStatusKey(string(before.Status)),
			redisx.MarketOrdersStatusKey(string(o.Status)),
		)
		m.changed(ctx, fsm.KindMarketOrder, o.ID, string(before.Status), string(o.Status), now)
		m.log.Info("market order updated", zap.Int64("market_order_id", o.ID), zap.String("status", string(o.Status)))
		return before, o, true, nil
	}
	return MarketOrder{}, nil, false, fmt.Errorf("market order %d: %w", orderID, apperr.ErrConflict)
}

// markSoldIfExhausted runs after a completion has been committed, so its
// failures are only logged.
func (m *Manager) markSoldIfExhausted(ctx context.Context, listingID int64) {
	os, err := m.repo.ListOrdersByListing(ctx, listingID)
	if err != nil {
		m.log.Warn("sold check failed", zap.Int64("listing_id", listingID), zap.Error(err))
		return
	}
	for _, o := range os {
		if o.Status == OrderPending || o.Status == OrderConfirmed {
			return
		}
	}
	l, err := m.repo.UpdateListing(ctx, listingID, func(l *Listing, _ int) error {
		if l.Status != ListingActive || l.AvailableQuantity > 0 {
			return errUnchanged
		}
		if err := fsm.Check(fsm.KindListing, string(l.Status), string(ListingSold)); err != nil {
			return err
		}
		now := m.now()
		l.Status = ListingSold
		l.SoldAt = &now
		l.UpdatedAt = now
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return
	}
	if err != nil {
		m.log.Warn("mark listing sold failed", zap.Int64("listing_id", listingID), zap.Error(err))
		return
	}
	m.invalidateListing(ctx, l)
	m.changed(ctx, fsm.KindListing, l.ID, string(ListingActive), string(ListingSold), l.UpdatedAt)
}

// invalidateListing drops the listing, its seller's list and the status
// buckets it can show up in: Active plus whatever status it has now.
func (m *Manager) invalidateListing(ctx context.Context, l *Listing) {
	keys := []string{
		redisx.ListingKey(l.ID),
		redisx.SellerListingsKey(l.SellerID),
		redisx.ListingsStatusKey(string(ListingActive)),
	}
	if l.Status != ListingActive {
		keys = append(keys, redisx.ListingsStatusKey(string(l.Status)))
	}
	cache.Invalidate(ctx, m.cache, m.log, keys...)
}

func (m *Manager) changed(ctx context.Context, kind fsm.Kind, id int64, from, to string, at time.Time) {
	metrics.RecordTransition(string(kind), from, to)
	notify.Dispatch(ctx, m.log, m.notifier, notify.Change{Kind: string(kind), EntityID: id, From: from, To: to, At: at})
}

func (m *Manager) requireActiveUser(ctx context.Context, userID int64) error {
	ok, err := m.users.IsActiveUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("lookup user %d: %w", userID, err)
	}
	if !ok {
		return apperr.Validation("user %d is not an active user", userID)
	}
	return nil
}

func validateTitle(t string) error {
	if t == "" {
		return apperr.Validation("title is required")
	}
	if n := utf8.RuneCountInString(t); n > maxTitleLength {
		return apperr.Validation("title is %d characters, at most %d allowed", n, maxTitleLength)
	}
	return nil
}

func validatePrice(p decimal.Decimal) error {
	if !money.IsPositive(p) || !money.HasCents(p) {
		return apperr.Validation("invalid price %s", p)
	}
	return nil
}
