package orders

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
	"github.com/google/uuid"
	"go.uber.org/zap"
	"strings"
	"time"
)

// maxAttempts bounds the optimistic-lock loop of a single transition.
const maxAttempts = 3

type Deps struct {
	Repo      Repository
	Catalog   Catalog
	Users     users.Directory
	Inventory inventory.Store
	Cache     cache.Store     // optional, defaults to cache.Nop
	Notifier  notify.Notifier // optional
	Logger    *zap.Logger     // optional
	CacheTTL  time.Duration
}

// Manager runs the storefront order lifecycle.
type Manager struct {
	repo      Repository
	catalog   Catalog
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
		catalog:   d.Catalog,
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

// CreateOrder validates the request, reserves stock for every line and stores
// the order as Pending/Pending. Reservation is all-or-nothing.
func (m *Manager) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}
	if err := m.requireActiveUser(ctx, req.UserID); err != nil {
		return nil, err
	}

	products := make([]Product, len(req.Items))
	for i, it := range req.Items {
		p, err := m.catalog.Product(ctx, it.ProductID)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Validation("unknown product %d", it.ProductID)
		}
		if err != nil {
			return nil, fmt.Errorf("load product %d: %w", it.ProductID, err)
		}
		if !p.Active {
			return nil, apperr.Validation("product %d is not for sale", it.ProductID)
		}
		products[i] = p
	}

	reserved := make([]*inventory.Reservation, 0, len(req.Items))
	for _, it := range req.Items {
		r, err := m.inventory.Reserve(ctx, inventory.Product(it.ProductID), it.Quantity)
		if err != nil {
			m.rollback(ctx, reserved)
			return nil, fmt.Errorf("reserve product %d: %w", it.ProductID, err)
		}
		reserved = append(reserved, r)
	}

	items := make([]OrderItem, len(req.Items))
	lines := make([]pricing.Line, len(req.Items))
	for i, it := range req.Items {
		p := products[i]
		lines[i] = pricing.Line{UnitPrice: p.Price, Quantity: it.Quantity}
		items[i] = OrderItem{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    it.Quantity,
			UnitPrice:   p.Price,
			TotalPrice:  lines[i].Total(),
		}
	}
	totals, err := pricing.OrderTotals(lines, req.TaxAmount, req.ShippingAmount)
	if err != nil {
		m.rollback(ctx, reserved)
		return nil, err
	}

	now := m.now()
	o := &Order{
		OrderNumber:    NewOrderNumber(now),
		UserID:         req.UserID,
		Items:          items,
		TotalAmount:    totals.TotalAmount,
		TaxAmount:      totals.TaxAmount,
		ShippingAmount: totals.ShippingAmount,
		FinalAmount:    totals.FinalAmount,
		Status:         StatusPending,
		PaymentStatus:  PaymentPending,
		Shipping:       req.Shipping,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := m.repo.Create(ctx, o); err != nil {
		m.rollback(ctx, reserved)
		return nil, fmt.Errorf("create order: %w", err)
	}

	cache.Invalidate(ctx, m.cache, m.log,
		redisx.UserOrdersKey(o.UserID),
		redisx.OrdersStatusKey(string(StatusPending)),
	)
	metrics.RecordTransition(string(fsm.KindOrder), "", string(StatusPending))
	notify.Dispatch(ctx, m.log, m.notifier, notify.Change{
		Kind: string(fsm.KindOrder), EntityID: o.ID, To: string(StatusPending), At: now,
	})
	m.log.Info("order created",
		zap.Int64("order_id", o.ID),
		zap.String("order_number", o.OrderNumber),
		zap.Int64("user_id", o.UserID),
		zap.String("final_amount", o.FinalAmount.StringFixed(money.Places)),
	)
	return o, nil
}

// ProcessPayment marks a Pending payment as Paid. Payment success confirms a
// Pending order; an already Confirmed order keeps its status.
func (m *Manager) ProcessPayment(ctx context.Context, orderID int64, transactionRef string) (*Order, error) {
	transactionRef = strings.TrimSpace(transactionRef)
	if transactionRef == "" {
		return nil, apperr.Validation("transaction reference is required")
	}

	_, o, _, err := m.transition(ctx, orderID, func(o *Order, now time.Time) (bool, error) {
		if err := fsm.Check(fsm.KindPayment, string(o.PaymentStatus), string(PaymentPaid)); err != nil {
			return false, err
		}
		switch o.Status {
		case StatusPending:
			if err := fsm.Check(fsm.KindOrder, string(o.Status), string(StatusConfirmed)); err != nil {
				return false, err
			}
			o.Status = StatusConfirmed
			o.ConfirmedAt = &now
		case StatusConfirmed:
		default:
			return false, &fsm.TransitionError{Kind: fsm.KindOrder, From: string(o.Status), To: string(StatusConfirmed)}
		}
		o.PaymentStatus = PaymentPaid
		o.PaidAt = &now
		o.TransactionRef = transactionRef
		return true, nil
	}, m.repo.Update)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// ConfirmOrder moves Pending -> Confirmed. It reports false when the order is
// not Pending.
func (m *Manager) ConfirmOrder(ctx context.Context, orderID int64) (bool, error) {
	return m.advance(ctx, orderID, func(o *Order, now time.Time) bool {
		if o.Status != StatusPending {
			return false
		}
		o.Status = StatusConfirmed
		o.ConfirmedAt = &now
		return true
	})
}

// ShipOrder requires a Confirmed, Paid order.
func (m *Manager) ShipOrder(ctx context.Context, orderID int64) (bool, error) {
	return m.advance(ctx, orderID, func(o *Order, now time.Time) bool {
		if o.Status != StatusConfirmed || o.PaymentStatus != PaymentPaid {
			return false
		}
		o.Status = StatusShipped
		o.ShippedAt = &now
		return true
	})
}

func (m *Manager) DeliverOrder(ctx context.Context, orderID int64) (bool, error) {
	return m.advance(ctx, orderID, func(o *Order, now time.Time) bool {
		if o.Status != StatusShipped {
			return false
		}
		o.Status = StatusDelivered
		o.DeliveredAt = &now
		return true
	})
}

// CancelOrder cancels a Pending or Confirmed order and gives its stock back.
// A paid order is refunded. The status swap and the stock credit commit
// together, so a failed cancel can simply be retried and a second cancel
// finds nothing left to release.
func (m *Manager) CancelOrder(ctx context.Context, orderID int64) (bool, error) {
	var release []inventory.Reservation
	cancel := func(o *Order, now time.Time) (bool, error) {
		release = release[:0]
		if o.Status != StatusPending && o.Status != StatusConfirmed {
			return false, nil
		}
		if err := fsm.Check(fsm.KindOrder, string(o.Status), string(StatusCancelled)); err != nil {
			return false, err
		}
		o.Status = StatusCancelled
		o.CancelledAt = &now
		if o.PaymentStatus == PaymentPaid {
			o.PaymentStatus = PaymentRefunded
		}
		for i := range o.Items {
			if o.Items[i].Released {
				continue
			}
			release = append(release, inventory.Reservation{
				Target:   inventory.Product(o.Items[i].ProductID),
				Quantity: o.Items[i].Quantity,
			})
			o.Items[i].Released = true
		}
		return true, nil
	}
	save := func(ctx context.Context, o *Order) error {
		return m.repo.UpdateAndRelease(ctx, o, release)
	}
	_, o, changed, err := m.transition(ctx, orderID, cancel, save)
	if err != nil || !changed {
		return false, err
	}
	for _, r := range release {
		metrics.RecordRelease(string(r.Target.Kind))
	}
	m.log.Debug("order stock released", zap.Int64("order_id", o.ID), zap.Int("lines", len(release)))
	return true, nil
}

func (m *Manager) GetOrder(ctx context.Context, orderID int64) (*Order, error) {
	return cache.Load(ctx, m.cache, m.log, redisx.OrderKey(orderID), m.ttl, func(ctx context.Context) (*Order, error) {
		return m.repo.Get(ctx, orderID)
	})
}

func (m *Manager) ListUserOrders(ctx context.Context, userID int64) ([]Order, error) {
	return cache.Load(ctx, m.cache, m.log, redisx.UserOrdersKey(userID), m.ttl, func(ctx context.Context) ([]Order, error) {
		return m.repo.ListByUser(ctx, userID)
	})
}

func (m *Manager) ListOrdersByStatus(ctx context.Context, status Status) ([]Order, error) {
	if _, ok := ParseStatus(string(status)); !ok {
		return nil, apperr.Validation("unknown order status %q", status)
	}
	return cache.Load(ctx, m.cache, m.log, redisx.OrdersStatusKey(string(status)), m.ttl, func(ctx context.Context) ([]Order, error) {
		return m.repo.ListByStatus(ctx, status)
	})
}

// advance wraps a precondition-guarded forward move. The order status graph
// is still enforced on top of the precondition.
func (m *Manager) advance(ctx context.Context, orderID int64, step func(o *Order, now time.Time) bool) (bool, error) {
	_, _, changed, err := m.transition(ctx, orderID, func(o *Order, now time.Time) (bool, error) {
		from := o.Status
		if !step(o, now) {
			return false, nil
		}
		if err := fsm.Check(fsm.KindOrder, string(from), string(o.Status)); err != nil {
			return false, err
		}
		return true, nil
	}, m.repo.Update)
	return changed, err
}

// transition loads the order, lets apply mutate it and stores it through save,
// which must be a version check. apply reporting false means "not eligible":
// nothing is written. On a lost race the order is reloaded and apply runs
// again.
func (m *Manager) transition(ctx context.Context, orderID int64, apply func(o *Order, now time.Time) (bool, error), save func(context.Context, *Order) error) (Order, *Order, bool, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		o, err := m.repo.Get(ctx, orderID)
		if err != nil {
			return Order{}, nil, false, err
		}
		before := *o
		before.Items = append([]OrderItem(nil), o.Items...)

		now := m.now()
		ok, err := apply(o, now)
		if err != nil || !ok {
			return before, &before, false, err
		}
		o.UpdatedAt = now

		err = save(ctx, o)
		if errors.Is(err, apperr.ErrConflict) {
			m.log.Debug("order version conflict, retrying", zap.Int64("order_id", orderID), zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return before, nil, false, fmt.Errorf("update order %d: %w", orderID, err)
		}
		m.afterTransition(ctx, before, o)
		return before, o, true, nil
	}
	return Order{}, nil, false, fmt.Errorf("order %d: %w", orderID, apperr.ErrConflict)
}

func (m *Manager) afterTransition(ctx context.Context, before Order, after *Order) {
	cache.Invalidate(ctx, m.cache, m.log,
		redisx.OrderKey(after.ID),
		redisx.UserOrdersKey(after.UserID),
		redisx.OrdersStatusKey(string(before.Status)),
		redisx.OrdersStatusKey(string(after.Status)),
	)
	if before.Status != after.Status {
		metrics.RecordTransition(string(fsm.KindOrder), string(before.Status), string(after.Status))
		notify.Dispatch(ctx, m.log, m.notifier, notify.Change{
			Kind: string(fsm.KindOrder), EntityID: after.ID,
			From: string(before.Status), To: string(after.Status), At: after.UpdatedAt,
		})
	}
	if before.PaymentStatus != after.PaymentStatus {
		metrics.RecordTransition(string(fsm.KindPayment), string(before.PaymentStatus), string(after.PaymentStatus))
		notify.Dispatch(ctx, m.log, m.notifier, notify.Change{
			Kind: string(fsm.KindPayment), EntityID: after.ID,
			From: string(before.PaymentStatus), To: string(after.PaymentStatus), At: after.UpdatedAt,
		})
	}
	m.log.Info("order updated",
		zap.Int64("order_id", after.ID),
		zap.String("status", string(after.Status)),
		zap.String("payment_status", string(after.PaymentStatus)),
	)
}

func (m *Manager) rollback(ctx context.Context, reserved []*inventory.Reservation) {
	if err := inventory.ReleaseAll(ctx, m.inventory, reserved); err != nil {
		m.log.Error("rollback of reservations failed", zap.Error(err))
	}
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

func validateCreate(req CreateOrderRequest) error {
	if req.UserID <= 0 {
		return apperr.Validation("user_id is required")
	}
	if len(req.Items) == 0 {
		return apperr.Validation("order has no items")
	}
	seen := make(map[int64]bool, len(req.Items))
	for _, it := range req.Items {
		if it.ProductID <= 0 {
			return apperr.Validation("product_id is required")
		}
		if it.Quantity <= 0 {
			return apperr.Validation("invalid quantity %d for product %d", it.Quantity, it.ProductID)
		}
		if seen[it.ProductID] {
			return apperr.Validation("product %d listed twice", it.ProductID)
		}
		seen[it.ProductID] = true
	}
	if !money.IsNonNegative(req.TaxAmount) || !money.HasCents(req.TaxAmount) {
		return apperr.Validation("invalid tax_amount %s", req.TaxAmount)
	}
	if !money.IsNonNegative(req.ShippingAmount) || !money.HasCents(req.ShippingAmount) {
		return apperr.Validation("invalid shipping_amount %s", req.ShippingAmount)
	}
	s := req.Shipping
	if strings.TrimSpace(s.RecipientName) == "" || strings.TrimSpace(s.Line1) == "" ||
		strings.TrimSpace(s.City) == "" || strings.TrimSpace(s.PostalCode) == "" ||
		strings.TrimSpace(s.Country) == "" {
		return apperr.Validation("incomplete shipping address")
	}
	return nil
}

// NewOrderNumber returns a human readable, practically unique order number,
// e.g. ORD-20261018-3F9A1C0B.
func NewOrderNumber(now time.Time) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), strings.ToUpper(id[:8]))
}
