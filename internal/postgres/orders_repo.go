package postgres

import (
	"context"
	"fmt"
	"github.com/ariefcatur/go-realtime-market/internal/apperr"
	"github.com/ariefcatur/go-realtime-market/internal/inventory"
	"github.com/ariefcatur/go-realtime-market/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OrderRepo struct{ DB *pgxpool.Pool }

const orderColumns = `id, order_number, user_id, total_amount, tax_amount, shipping_amount, final_amount,
	status, payment_status, transaction_ref, shipping, version, created_at, updated_at,
	paid_at, confirmed_at, shipped_at, delivered_at, cancelled_at`

func scanOrder(row pgx.Row) (*orders.Order, error) {
	var o orders.Order
	err := row.Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.TotalAmount, &o.TaxAmount, &o.ShippingAmount, &o.FinalAmount,
		&o.Status, &o.PaymentStatus, &o.TransactionRef, &o.Shipping, &o.Version, &o.CreatedAt, &o.UpdatedAt,
		&o.PaidAt, &o.ConfirmedAt, &o.ShippedAt, &o.DeliveredAt, &o.CancelledAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepo) Create(ctx context.Context, o *orders.Order) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if o.Version == 0 {
		o.Version = 1
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO orders(order_number, user_id, total_amount, tax_amount, shipping_amount, final_amount,
			status, payment_status, transaction_ref, shipping, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id`,
		o.OrderNumber, o.UserID, o.TotalAmount, o.TaxAmount, o.ShippingAmount, o.FinalAmount,
		o.Status, o.PaymentStatus, o.TransactionRef, o.Shipping, o.Version, o.CreatedAt, o.UpdatedAt,
	).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.ID
		err = tx.QueryRow(ctx, `
			INSERT INTO order_items(order_id, product_id, product_name, quantity, unit_price, total_price, released)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			RETURNING id`,
			o.ID, it.ProductID, it.ProductName, it.Quantity, it.UnitPrice, it.TotalPrice, it.Released,
		).Scan(&it.ID)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (r *OrderRepo) Get(ctx context.Context, id int64) (*orders.Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if isNoRows(err) {
		return nil, apperr.NotFound("order", id)
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, []*orders.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *OrderRepo) ListByUser(ctx context.Context, userID int64) ([]orders.Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY id DESC`, userID)
}

func (r *OrderRepo) ListByStatus(ctx context.Context, s orders.Status) ([]orders.Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders WHERE status = $1 ORDER BY id DESC`, s)
}

// Update writes status, payment and item release flags guarded by version.
func (r *OrderRepo) Update(ctx context.Context, o *orders.Order) error {
	return r.UpdateAndRelease(ctx, o, nil)
}

func (r *OrderRepo) UpdateAndRelease(ctx context.Context, o *orders.Order, release []inventory.Reservation) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `
		UPDATE orders SET status=$3, payment_status=$4, transaction_ref=$5, version=version+1, updated_at=$6,
			paid_at=$7, confirmed_at=$8, shipped_at=$9, delivered_at=$10, cancelled_at=$11
		WHERE id=$1 AND version=$2`,
		o.ID, o.Version, o.Status, o.PaymentStatus, o.TransactionRef, o.UpdatedAt,
		o.PaidAt, o.ConfirmedAt, o.ShippedAt, o.DeliveredAt, o.CancelledAt)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return r.missOrConflict(ctx, tx, o.ID)
	}
	for _, it := range o.Items {
		if _, err := tx.Exec(ctx, `UPDATE order_items SET released=$2 WHERE id=$1`, it.ID, it.Released); err != nil {
			return fmt.Errorf("update order item %d: %w", it.ID, err)
		}
	}
	for _, rs := range release {
		if err := credit(ctx, tx, rs.Target, rs.Quantity); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	o.Version++
	return nil
}

func (r *OrderRepo) missOrConflict(ctx context.Context, q querier, id int64) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id=$1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return apperr.NotFound("order", id)
	}
	return apperr.ErrConflict
}

func (r *OrderRepo) list(ctx context.Context, sql string, args ...any) ([]orders.Order, error) {
	rows, err := r.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ptrs []*orders.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		ptrs = append(ptrs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, ptrs); err != nil {
		return nil, err
	}
	out := make([]orders.Order, 0, len(ptrs))
	for _, o := range ptrs {
		out = append(out, *o)
	}
	return out, nil
}

func (r *OrderRepo) loadItems(ctx context.Context, os []*orders.Order) error {
	if len(os) == 0 {
		return nil
	}
	ids := make([]int64, len(os))
	byID := make(map[int64]*orders.Order, len(os))
	for i, o := range os {
		ids[i] = o.ID
		byID[o.ID] = o
		o.Items = []orders.OrderItem{}
	}
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, product_id, product_name, quantity, unit_price, total_price, released
		FROM order_items WHERE order_id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var it orders.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPrice, &it.TotalPrice, &it.Released); err != nil {
			return err
		}
		o := byID[it.OrderID]
		o.Items = append(o.Items, it)
	}
	return rows.Err()
}
