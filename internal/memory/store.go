// Package memory is an in-process implementation of every storage port. One
// mutex guards all tables, so a reservation and the row it touches always
// change together.
package memory

import (
	"context"
	"github.com/ariefcatur/go-realtime-market/internal/apperr"
	"github.com/ariefcatur/go-realtime-market/internal/inventory"
	"github.com/ariefcatur/go-realtime-market/internal/market"
	"github.com/ariefcatur/go-realtime-market/internal/orders"
	"github.com/ariefcatur/go-realtime-market/internal/users"
	"sort"
	"sync"
)

type product struct {
	orders.Product
	stock int
}

type Store struct {
	mu sync.Mutex

	users        map[int64]bool
	products     map[int64]*product
	orders       map[int64]*orders.Order
	listings     map[int64]*market.Listing
	marketOrders map[int64]*market.MarketOrder

	nextProduct, nextOrder, nextItem, nextListing, nextMarketOrder int64
}

func New() *Store {
	return &Store{
		users:        make(map[int64]bool),
		products:     make(map[int64]*product),
		orders:       make(map[int64]*orders.Order),
		listings:     make(map[int64]*market.Listing),
		marketOrders: make(map[int64]*market.MarketOrder),
	}
}

func (s *Store) PutUser(id int64, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = active
}

// PutProduct inserts or replaces a product with its stock. A zero ID is
// assigned the next free one.
func (s *Store) PutProduct(p orders.Product, stock int) orders.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		s.nextProduct++
		p.ID = s.nextProduct
	} else if p.ID > s.nextProduct {
		s.nextProduct = p.ID
	}
	s.products[p.ID] = &product{Product: p, stock: stock}
	return p
}

func (s *Store) IsActiveUser(_ context.Context, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[userID], nil
}

func (s *Store) Product(_ context.Context, id int64) (orders.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return orders.Product{}, apperr.NotFound("product", id)
	}
	return p.Product, nil
}

// inventory.Store

func (s *Store) Reserve(_ context.Context, t inventory.Target, qty int) (*inventory.Reservation, error) {
	if qty <= 0 {
		return nil, apperr.Validation("invalid quantity %d", qty)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	switch t.Kind {
	case inventory.KindProduct:
		p, ok := s.products[t.ID]
		if !ok {
			return nil, apperr.NotFound("product", t.ID)
		}
		if !p.Active || p.stock < qty {
			return nil, outOfStock(t, qty, p.stock, p.Active)
		}
		p.stock -= qty
	case inventory.KindListing:
		l, ok := s.listings[t.ID]
		if !ok {
			return nil, apperr.NotFound("listing", t.ID)
		}
		sellable := l.Status == market.ListingActive
		if !sellable || l.AvailableQuantity < qty {
			return nil, outOfStock(t, qty, l.AvailableQuantity, sellable)
		}
		l.AvailableQuantity -= qty
	default:
		return nil, apperr.Validation("unknown inventory target %s", t)
	}
	return &inventory.Reservation{Target: t, Quantity: qty}, nil
}

func (s *Store) Release(_ context.Context, r *inventory.Reservation) error {
	if r == nil || r.Released {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.credit(r.Target, r.Quantity); err != nil {
		return err
	}
	r.Released = true
	return nil
}

// credit puts qty back on t. Callers hold mu.
func (s *Store) credit(t inventory.Target, qty int) error {
	switch t.Kind {
	case inventory.KindProduct:
		p, ok := s.products[t.ID]
		if !ok {
			return apperr.NotFound("product", t.ID)
		}
		p.stock += qty
	case inventory.KindListing:
		l, ok := s.listings[t.ID]
		if !ok {
			return apperr.NotFound("listing", t.ID)
		}
		l.AvailableQuantity += qty
	default:
		return apperr.Validation("unknown inventory target %s", t)
	}
	return nil
}

func (s *Store) Available(_ context.Context, t inventory.Target) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch t.Kind {
	case inventory.KindProduct:
		if p, ok := s.products[t.ID]; ok {
			return p.stock, nil
		}
		return 0, apperr.NotFound("product", t.ID)
	case inventory.KindListing:
		if l, ok := s.listings[t.ID]; ok {
			return l.AvailableQuantity, nil
		}
		return 0, apperr.NotFound("listing", t.ID)
	}
	return 0, apperr.Validation("unknown inventory target %s", t)
}

func outOfStock(t inventory.Target, want, have int, sellable bool) error {
	if !sellable {
		have = 0
	}
	return apperr.OutOfStock(t.String(), want, have)
}

// orders.Repository

func (s *Store) Create(_ context.Context, o *orders.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextOrder++
	o.ID = s.nextOrder
	if o.Version == 0 {
		o.Version = 1
	}
	for i := range o.Items {
		s.nextItem++
		o.Items[i].ID = s.nextItem
		o.Items[i].OrderID = o.ID
	}
	s.orders[o.ID] = cloneOrder(o)
	return nil
}

func (s *Store) Get(_ context.Context, id int64) (*orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, apperr.NotFound("order", id)
	}
	return cloneOrder(o), nil
}

func (s *Store) ListByUser(_ context.Context, userID int64) ([]orders.Order, error) {
	return s.listOrders(func(o *orders.Order) bool { return o.UserID == userID }), nil
}

func (s *Store) ListByStatus(_ context.Context, st orders.Status) ([]orders.Order, error) {
	return s.listOrders(func(o *orders.Order) bool { return o.Status == st }), nil
}

func (s *Store) Update(ctx context.Context, o *orders.Order) error {
	return s.UpdateAndRelease(ctx, o, nil)
}

func (s *Store) UpdateAndRelease(_ context.Context, o *orders.Order, release []inventory.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.orders[o.ID]
	if !ok {
		return apperr.NotFound("order", o.ID)
	}
	if cur.Version != o.Version {
		return apperr.ErrConflict
	}
	if err := s.creditAll(release); err != nil {
		return err
	}
	o.Version++
	s.orders[o.ID] = cloneOrder(o)
	return nil
}

// creditAll checks every target before touching any, so a failure leaves
// stock as it was.
func (s *Store) creditAll(release []inventory.Reservation) error {
	for _, r := range release {
		if err := s.known(r.Target); err != nil {
			return err
		}
	}
	for _, r := range release {
		if err := s.credit(r.Target, r.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) known(t inventory.Target) error {
	switch t.Kind {
	case inventory.KindProduct:
		if _, ok := s.products[t.ID]; !ok {
			return apperr.NotFound("product", t.ID)
		}
	case inventory.KindListing:
		if _, ok := s.listings[t.ID]; !ok {
			return apperr.NotFound("listing", t.ID)
		}
	default:
		return apperr.Validation("unknown inventory target %s", t)
	}
	return nil
}

func (s *Store) listOrders(match func(*orders.Order) bool) []orders.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []orders.Order{}
	for _, o := range s.orders {
		if match(o) {
			out = append(out, *cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func cloneOrder(o *orders.Order) *orders.Order {
	c := *o
	c.Items = append([]orders.OrderItem(nil), o.Items...)
	return &c
}

// market.Repository

func (s *Store) CreateListing(_ context.Context, l *market.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextListing++
	l.ID = s.nextListing
	c := *l
	s.listings[l.ID] = &c
	return nil
}

func (s *Store) GetListing(_ context.Context, id int64) (*market.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return nil, apperr.NotFound("listing", id)
	}
	c := *l
	return &c, nil
}

func (s *Store) UpdateListing(_ context.Context, id int64, fn func(l *market.Listing, sold int) error) (*market.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.listings[id]
	if !ok {
		return nil, apperr.NotFound("listing", id)
	}
	sold := 0
	for _, o := range s.marketOrders {
		if o.ListingID == id && o.Status == market.OrderCompleted {
			sold += o.Quantity
		}
	}
	next := *cur
	if err := fn(&next, sold); err != nil {
		return nil, err
	}
	*cur = next
	return &next, nil
}

func (s *Store) ListListingsBySeller(_ context.Context, sellerID int64) ([]market.Listing, error) {
	return s.listListings(func(l *market.Listing) bool { return l.SellerID == sellerID }), nil
}

func (s *Store) ListListingsByStatus(_ context.Context, st market.ListingStatus) ([]market.Listing, error) {
	return s.listListings(func(l *market.Listing) bool { return l.Status == st }), nil
}

func (s *Store) listListings(match func(*market.Listing) bool) []market.Listing {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []market.Listing{}
	for _, l := range s.listings {
		if match(l) {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (s *Store) CreateOrder(_ context.Context, o *market.MarketOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextMarketOrder++
	o.ID = s.nextMarketOrder
	if o.Version == 0 {
		o.Version = 1
	}
	c := *o
	s.marketOrders[o.ID] = &c
	return nil
}

func (s *Store) GetOrder(_ context.Context, id int64) (*market.MarketOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.marketOrders[id]
	if !ok {
		return nil, apperr.NotFound("market order", id)
	}
	c := *o
	return &c, nil
}

func (s *Store) UpdateOrder(_ context.Context, o *market.MarketOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.swapMarketOrder(o)
}

func (s *Store) UpdateOrderAndRelease(_ context.Context, o *market.MarketOrder, release inventory.Reservation) (*market.Listing, error) {
	if release.Target.Kind != inventory.KindListing {
		return nil, apperr.Validation("market order %d cannot release %s", o.ID, release.Target)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[release.Target.ID]
	if !ok {
		return nil, apperr.NotFound("listing", release.Target.ID)
	}
	if err := s.swapMarketOrder(o); err != nil {
		return nil, err
	}
	l.AvailableQuantity += release.Quantity
	c := *l
	return &c, nil
}

// swapMarketOrder is the version check and write. Callers hold mu.
func (s *Store) swapMarketOrder(o *market.MarketOrder) error {
	cur, ok := s.marketOrders[o.ID]
	if !ok {
		return apperr.NotFound("market order", o.ID)
	}
	if cur.Version != o.Version {
		return apperr.ErrConflict
	}
	o.Version++
	c := *o
	s.marketOrders[o.ID] = &c
	return nil
}

func (s *Store) ListOrdersByBuyer(_ context.Context, buyerID int64) ([]market.MarketOrder, error) {
	return s.listMarketOrders(func(o *market.MarketOrder) bool { return o.BuyerID == buyerID }), nil
}

func (s *Store) ListOrdersBySeller(_ context.Context, sellerID int64) ([]market.MarketOrder, error) {
	return s.listMarketOrders(func(o *market.MarketOrder) bool { return o.SellerID == sellerID }), nil
}

func (s *Store) ListOrdersByStatus(_ context.Context, st market.OrderStatus) ([]market.MarketOrder, error) {
	return s.listMarketOrders(func(o *market.MarketOrder) bool { return o.Status == st }), nil
}

func (s *Store) ListOrdersByListing(_ context.Context, listingID int64) ([]market.MarketOrder, error) {
	return s.listMarketOrders(func(o *market.MarketOrder) bool { return o.ListingID == listingID }), nil
}

func (s *Store) listMarketOrders(match func(*market.MarketOrder) bool) []market.MarketOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []market.MarketOrder{}
	for _, o := range s.marketOrders {
		if match(o) {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

var (
	_ inventory.Store   = (*Store)(nil)
	_ orders.Repository = (*Store)(nil)
	_ orders.Catalog    = (*Store)(nil)
	_ market.Repository = (*Store)(nil)
	_ users.Directory   = (*Store)(nil)
)
