package postgres

import (
	"context"
	"fmt"
	"github.com/ariefcatur/go-realtime-market/internal/apperr"
	"github.com/ariefcatur/go-realtime-market/internal/inventory"
	"github.com/ariefcatur/go-realtime-market/internal/orders"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Inventory keeps product stock and listing availability in their own rows.
// Every reserve is one conditional UPDATE: the row lock it takes serialises
// racing buyers and the WHERE clause refuses to go below zero.
type Inventory struct{ DB *pgxpool.Pool }

type stockSQL struct {
	table, column, sellable string
}

var stockTables = map[inventory.Kind]stockSQL{
	inventory.KindProduct: {table: "products", column: "stock", sellable: "active"},
	inventory.KindListing: {table: "listings", column: "available_quantity", sellable: "status = 'Active'"},
}

func (s *Inventory) Reserve(ctx context.Context, t inventory.Target, qty int) (*inventory.Reservation, error) {
	if qty <= 0 {
		return nil, apperr.Validation("invalid quantity %d", qty)
	}
	q, ok := stockTables[t.Kind]
	if !ok {
		return nil, apperr.Validation("unknown inventory target %s", t)
	}

	var left int
	err := s.DB.QueryRow(ctx, fmt.Sprintf(`
		UPDATE %[1]s SET %[2]s = %[2]s - $2, updated_at = now()
		WHERE id = $1 AND %[3]s AND %[2]s >= $2
		RETURNING %[2]s`, q.table, q.column, q.sellable), t.ID, qty).Scan(&left)
	if err == nil {
		return &inventory.Reservation{Target: t, Quantity: qty}, nil
	}
	if !isNoRows(err) {
		return nil, fmt.Errorf("reserve %s: %w", t, err)
	}

	// kenapa gagal: row tidak ada, tidak dijual, atau stok kurang
	var have int
	var sellable bool
	err = s.DB.QueryRow(ctx, fmt.Sprintf(`SELECT %s, %s FROM %s WHERE id = $1`, q.column, q.sellable, q.table), t.ID).Scan(&have, &sellable)
	if isNoRows(err) {
		return nil, apperr.NotFound(string(t.Kind), t.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", t, err)
	}
	if !sellable {
		have = 0
	}
	return nil, apperr.OutOfStock(t.String(), qty, have)
}

func (s *Inventory) Release(ctx context.Context, r *inventory.Reservation) error {
	if r == nil || r.Released {
		return nil
	}
	if err := credit(ctx, s.DB, r.Target, r.Quantity); err != nil {
		return err
	}
	r.Released = true
	return nil
}

// credit puts qty back on t through q, so repositories can run it inside the
// transaction that flips the holder's released flag.
func credit(ctx context.Context, q querier, t inventory.Target, qty int) error {
	st, ok := stockTables[t.Kind]
	if !ok {
		return apperr.Validation("unknown inventory target %s", t)
	}
	ct, err := q.Exec(ctx, fmt.Sprintf(`UPDATE %[1]s SET %[2]s = %[2]s + $2, updated_at = now() WHERE id = $1`, st.table, st.column),
		t.ID, qty)
	if err != nil {
		return fmt.Errorf("release %s: %w", t, err)
	}
	if ct.RowsAffected() != 1 {
		return apperr.NotFound(string(t.Kind), t.ID)
	}
	return nil
}

func (s *Inventory) Available(ctx context.Context, t inventory.Target) (int, error) {
	q, ok := stockTables[t.Kind]
	if !ok {
		return 0, apperr.Validation("unknown inventory target %s", t)
	}
	var n int
	err := s.DB.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, q.column, q.table), t.ID).Scan(&n)
	if isNoRows(err) {
		return 0, apperr.NotFound(string(t.Kind), t.ID)
	}
	return n, err
}

type Catalog struct{ DB *pgxpool.Pool }

func (c *Catalog) Product(ctx context.Context, id int64) (orders.Product, error) {
	var p orders.Product
	err := c.DB.QueryRow(ctx, `SELECT id, sku, name, price, active FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.SKU, &p.Name, &p.Price, &p.Active)
	if isNoRows(err) {
		return p, apperr.NotFound("product", id)
	}
	return p, err
}

// Users answers the user directory port from the local users table.
type Users struct{ DB *pgxpool.Pool }

func (u *Users) IsActiveUser(ctx context.Context, userID int64) (bool, error) {
	var active bool
	err := u.DB.QueryRow(ctx, `SELECT active FROM users WHERE id = $1`, userID).Scan(&active)
	if isNoRows(err) {
		return false, nil
	}
	return active, err
}
