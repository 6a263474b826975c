package orders_test

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-realtime-market/internal/apperr"
	"github.com/ariefcatur/go-realtime-market/internal/cache"
	"github.com/ariefcatur/go-realtime-market/internal/inventory"
	"github.com/ariefcatur/go-realtime-market/internal/memory"
	"github.com/ariefcatur/go-realtime-market/internal/money"
	"github.com/ariefcatur/go-realtime-market/internal/notify"
	"github.com/ariefcatur/go-realtime-market/internal/orders"
	"github.com/ariefcatur/go-realtime-market/internal/redisx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"regexp"
	"sync"
	"testing"
)

type fixture struct {
	store    *memory.Store
	cache    *cache.Memory
	notifier *notify.Recorder
	mgr      *orders.Manager
	mug      orders.Product
	tee      orders.Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := memory.New()
	s.PutUser(1, true)
	s.PutUser(2, false)
	f := &fixture{
		store:    s,
		cache:    cache.NewMemory(),
		notifier: &notify.Recorder{},
		mug:      s.PutProduct(orders.Product{SKU: "MUG-1", Name: "Mug", Price: money.MustParse("12.50"), Active: true}, 10),
		tee:      s.PutProduct(orders.Product{SKU: "TEE-1", Name: "T-shirt", Price: money.MustParse("19.99"), Active: true}, 2),
	}
	f.mgr = orders.NewManager(orders.Deps{
		Repo:      s,
		Catalog:   s,
		Users:     s,
		Inventory: inventory.Instrument(s, zaptest.NewLogger(t)),
		Cache:     f.cache,
		Notifier:  f.notifier,
		Logger:    zaptest.NewLogger(t),
	})
	return f
}

func (f *fixture) stock(t *testing.T, p orders.Product) int {
	t.Helper()
	n, err := f.store.Available(context.Background(), inventory.Product(p.ID))
	require.NoError(t, err)
	return n
}

func (f *fixture) request(items ...orders.ItemInput) orders.CreateOrderRequest {
	return orders.CreateOrderRequest{
		UserID:         1,
		Items:          items,
		TaxAmount:      money.MustParse("1.25"),
		ShippingAmount: money.MustParse("5.00"),
		Shipping: orders.ShippingInfo{
			RecipientName: "Sari", Line1: "Jl. Merdeka 1", City: "Bandung", PostalCode: "40111", Country: "ID",
		},
	}
}

func TestCreateOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	o, err := f.mgr.CreateOrder(ctx, f.request(
		orders.ItemInput{ProductID: f.mug.ID, Quantity: 2},
		orders.ItemInput{ProductID: f.tee.ID, Quantity: 1},
	))
	require.NoError(t, err)

	assert.Equal(t, orders.StatusPending, o.Status)
	assert.Equal(t, orders.PaymentPending, o.PaymentStatus)
	assert.Equal(t, "44.99", o.TotalAmount.StringFixed(2))
	assert.Equal(t, "51.24", o.FinalAmount.StringFixed(2))
	assert.True(t, o.FinalAmount.Equal(o.TotalAmount.Add(o.TaxAmount).Add(o.ShippingAmount)))
	assert.Regexp(t, regexp.MustCompile(`^ORD-\d{8}-[0-9A-F]{8}$`), o.OrderNumber)
	require.Len(t, o.Items, 2)
	assert.Equal(t, "Mug", o.Items[0].ProductName)
	assert.Equal(t, "25.00", o.Items[0].TotalPrice.StringFixed(2))

	assert.Equal(t, 8, f.stock(t, f.mug))
	assert.Equal(t, 1, f.stock(t, f.tee))

	changes := f.notifier.Changes()
	require.Len(t, changes, 1)
	assert.Equal(t, "order", changes[0].Kind)
	assert.Equal(t, "", changes[0].From)
	assert.Equal(t, "Pending", changes[0].To)
}

func TestCreateOrderAllOrNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.mgr.CreateOrder(ctx, f.request(
		orders.ItemInput{ProductID: f.mug.ID, Quantity: 3},
		orders.ItemInput{ProductID: f.tee.ID, Quantity: 5},
	))
	require.ErrorIs(t, err, apperr.ErrOutOfStock)

	var oos *apperr.OutOfStockError
	require.ErrorAs(t, err, &oos)
	assert.Equal(t, 5, oos.Required)
	assert.Equal(t, 2, oos.Available)

	assert.Equal(t, 10, f.stock(t, f.mug))
	assert.Equal(t, 2, f.stock(t, f.tee))
	assert.Empty(t, f.notifier.Changes())
}

func TestCreateOrderValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	inactive := f.store.PutProduct(orders.Product{Name: "Retired", Price: money.One, Active: false}, 3)

	cases := []struct {
		name string
		edit func(r *orders.CreateOrderRequest)
	}{
		{"inactive user", func(r *orders.CreateOrderRequest) { r.UserID = 2 }},
		{"unknown user", func(r *orders.CreateOrderRequest) { r.UserID = 42 }},
		{"no items", func(r *orders.CreateOrderRequest) { r.Items = nil }},
		{"zero quantity", func(r *orders.CreateOrderRequest) { r.Items[0].Quantity = 0 }},
		{"unknown product", func(r *orders.CreateOrderRequest) { r.Items[0].ProductID = 999 }},
		{"inactive product", func(r *orders.CreateOrderRequest) { r.Items[0].ProductID = inactive.ID }},
		{"duplicate line", func(r *orders.CreateOrderRequest) {
			r.Items = append(r.Items, orders.ItemInput{ProductID: f.mug.ID, Quantity: 1})
		}},
		{"negative tax", func(r *orders.CreateOrderRequest) { r.TaxAmount = money.MustParse("-1") }},
		{"sub-cent shipping", func(r *orders.CreateOrderRequest) { r.ShippingAmount = money.MustParse("0.001") }},
		{"missing city", func(r *orders.CreateOrderRequest) { r.Shipping.City = " " }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := f.request(orders.ItemInput{ProductID: f.mug.ID, Quantity: 1})
			tc.edit(&req)
			_, err := f.mgr.CreateOrder(ctx, req)
			require.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
	assert.Equal(t, 10, f.stock(t, f.mug))
}

func TestPaymentAndFulfilment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o, err := f.mgr.CreateOrder(ctx, f.request(orders.ItemInput{ProductID: f.mug.ID, Quantity: 1}))
	require.NoError(t, err)

	shipped, err := f.mgr.ShipOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, shipped, "unpaid order must not ship")

	_, err = f.mgr.ProcessPayment(ctx, o.ID, "  ")
	require.ErrorIs(t, err, apperr.ErrValidation)

	paid, err := f.mgr.ProcessPayment(ctx, o.ID, "TX-1")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusConfirmed, paid.Status)
	assert.Equal(t, orders.PaymentPaid, paid.PaymentStatus)
	assert.Equal(t, "TX-1", paid.TransactionRef)
	require.NotNil(t, paid.PaidAt)
	require.NotNil(t, paid.ConfirmedAt)

	_, err = f.mgr.ProcessPayment(ctx, o.ID, "TX-2")
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)

	delivered, err := f.mgr.DeliverOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, delivered)

	shipped, err = f.mgr.ShipOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, shipped)

	delivered, err = f.mgr.DeliverOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, delivered)

	got, err := f.mgr.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusDelivered, got.Status)
	assert.NotNil(t, got.ShippedAt)
	assert.NotNil(t, got.DeliveredAt)

	var kinds []string
	for _, c := range f.notifier.Changes() {
		kinds = append(kinds, c.Kind+":"+c.From+">"+c.To)
	}
	assert.Equal(t, []string{
		"order:>Pending",
		"order:Pending>Confirmed",
		"payment:Pending>Paid",
		"order:Confirmed>Shipped",
		"order:Shipped>Delivered",
	}, kinds)
}

func TestConfirmedUnpaidStaysConfirmedOnPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o, err := f.mgr.CreateOrder(ctx, f.request(orders.ItemInput{ProductID: f.mug.ID, Quantity: 1}))
	require.NoError(t, err)

	ok, err := f.mgr.ConfirmOrder(ctx, o.ID)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = f.mgr.ConfirmOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	paid, err := f.mgr.ProcessPayment(ctx, o.ID, "TX-9")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusConfirmed, paid.Status)
	assert.Equal(t, orders.PaymentPaid, paid.PaymentStatus)
}

func TestCancelOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("pending restores stock once", func(t *testing.T) {
		f := newFixture(t)
		o, err := f.mgr.CreateOrder(ctx, f.request(orders.ItemInput{ProductID: f.mug.ID, Quantity: 4}))
		require.NoError(t, err)
		require.Equal(t, 6, f.stock(t, f.mug))

		ok, err := f.mgr.CancelOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 10, f.stock(t, f.mug))

		ok, err = f.mgr.CancelOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, 10, f.stock(t, f.mug))

		got, _ := f.mgr.GetOrder(ctx, o.ID)
		assert.Equal(t, orders.StatusCancelled, got.Status)
		assert.True(t, got.Items[0].Released)

		_, err = f.mgr.ProcessPayment(ctx, o.ID, "TX-late")
		require.ErrorIs(t, err, apperr.ErrInvalidTransition)
	})

	t.Run("paid order is refunded", func(t *testing.T) {
		f := newFixture(t)
		o, err := f.mgr.CreateOrder(ctx, f.request(orders.ItemInput{ProductID: f.tee.ID, Quantity: 2}))
		require.NoError(t, err)
		_, err = f.mgr.ProcessPayment(ctx, o.ID, "TX-3")
		require.NoError(t, err)

		ok, err := f.mgr.CancelOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		got, _ := f.mgr.GetOrder(ctx, o.ID)
		assert.Equal(t, orders.StatusCancelled, got.Status)
		assert.Equal(t, orders.PaymentRefunded, got.PaymentStatus)
		assert.Equal(t, 2, f.stock(t, f.tee))
	})

	t.Run("shipped order cannot be cancelled", func(t *testing.T) {
		f := newFixture(t)
		o, err := f.mgr.CreateOrder(ctx, f.request(orders.ItemInput{ProductID: f.mug.ID, Quantity: 1}))
		require.NoError(t, err)
		_, err = f.mgr.ProcessPayment(ctx, o.ID, "TX-4")
		require.NoError(t, err)
		_, err = f.mgr.ShipOrder(ctx, o.ID)
		require.NoError(t, err)

		ok, err := f.mgr.CancelOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, 9, f.stock(t, f.mug))
	})

	t.Run("unknown order", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.mgr.CancelOrder(ctx, 404)
		require.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

// flakyRepo fails the first cancel commit the way a dropped connection would.
type flakyRepo struct {
	*memory.Store
	failed bool
}

func (r *flakyRepo) UpdateAndRelease(ctx context.Context, o *orders.Order, release []inventory.Reservation) error {
	if !r.failed {
		r.failed = true
		return errors.New("connection reset")
	}
	return r.Store.UpdateAndRelease(ctx, o, release)
}

func TestCancelOrderFailedCommitCanBeRetried(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mgr := orders.NewManager(orders.Deps{
		Repo:      &flakyRepo{Store: f.store},
		Catalog:   f.store,
		Users:     f.store,
		Inventory: f.store,
		Logger:    zaptest.NewLogger(t),
	})
	o, err := mgr.CreateOrder(ctx, f.request(
		orders.ItemInput{ProductID: f.mug.ID, Quantity: 4},
		orders.ItemInput{ProductID: f.tee.ID, Quantity: 1},
	))
	require.NoError(t, err)

	ok, err := mgr.CancelOrder(ctx, o.ID)
	require.Error(t, err)
	assert.False(t, ok)
	got, _ := f.store.Get(ctx, o.ID)
	assert.Equal(t, orders.StatusPending, got.Status)
	assert.False(t, got.Items[0].Released)
	assert.Equal(t, 6, f.stock(t, f.mug))
	assert.Equal(t, 1, f.stock(t, f.tee))

	ok, err = mgr.CancelOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 10, f.stock(t, f.mug))
	assert.Equal(t, 2, f.stock(t, f.tee))

	ok, err = mgr.CancelOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 10, f.stock(t, f.mug))
}

func TestConcurrentCancelReleasesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o, err := f.mgr.CreateOrder(ctx, f.request(orders.ItemInput{ProductID: f.mug.ID, Quantity: 5}))
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]bool, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := f.mgr.CancelOrder(ctx, o.ID)
			if err != nil && !errors.Is(err, apperr.ErrConflict) {
				t.Errorf("cancel: %v", err)
			}
			results[i] = ok
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, ok := range results {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 10, f.stock(t, f.mug))
}

func TestCacheInvalidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o, err := f.mgr.CreateOrder(ctx, f.request(orders.ItemInput{ProductID: f.mug.ID, Quantity: 1}))
	require.NoError(t, err)

	_, err = f.mgr.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	list, err := f.mgr.ListUserOrders(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	pending, err := f.mgr.ListOrdersByStatus(ctx, orders.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.True(t, f.cache.Has(redisx.OrderKey(o.ID)))
	require.True(t, f.cache.Has(redisx.UserOrdersKey(1)))
	require.True(t, f.cache.Has(redisx.OrdersStatusKey("Pending")))

	ok, err := f.mgr.ConfirmOrder(ctx, o.ID)
	require.NoError(t, err)
	require.True(t, ok)

	assert.False(t, f.cache.Has(redisx.OrderKey(o.ID)))
	assert.False(t, f.cache.Has(redisx.UserOrdersKey(1)))
	assert.False(t, f.cache.Has(redisx.OrdersStatusKey("Pending")))

	got, err := f.mgr.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusConfirmed, got.Status)

	_, err = f.mgr.ListOrdersByStatus(ctx, orders.Status("Lost"))
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestNotifierFailureDoesNotFailOperation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.notifier.Err = errors.New("sink down")

	o, err := f.mgr.CreateOrder(ctx, f.request(orders.ItemInput{ProductID: f.mug.ID, Quantity: 1}))
	require.NoError(t, err)
	ok, err := f.mgr.CancelOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, f.notifier.Changes(), 2)
}
