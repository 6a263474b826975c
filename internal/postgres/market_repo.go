package postgres

import (
	"context"
	"fmt"
	"github.com/ariefcatur/go-realtime-market/internal/apperr"
	"github.com/ariefcatur/go-realtime-market/internal/inventory"
	"github.com/ariefcatur/go-realtime-market/internal/market"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MarketRepo struct{ DB *pgxpool.Pool }

const listingColumns = `id, seller_id, title, description, price, quantity, available_quantity, status,
	is_negotiable, expires_at, created_at, updated_at, cancelled_at, sold_at`

const marketOrderColumns = `id, listing_id, buyer_id, seller_id, quantity, unit_price, total_amount, platform_fee,
	seller_amount, status, released, version, created_at, updated_at, confirmed_at, completed_at, cancelled_at`

func scanListing(row pgx.Row) (*market.Listing, error) {
	var l market.Listing
	err := row.Scan(&l.ID, &l.SellerID, &l.Title, &l.Description, &l.Price, &l.Quantity, &l.AvailableQuantity, &l.Status,
		&l.IsNegotiable, &l.ExpiresAt, &l.CreatedAt, &l.UpdatedAt, &l.CancelledAt, &l.SoldAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func scanMarketOrder(row pgx.Row) (*market.MarketOrder, error) {
	var o market.MarketOrder
	err := row.Scan(&o.ID, &o.ListingID, &o.BuyerID, &o.SellerID, &o.Quantity, &o.UnitPrice, &o.TotalAmount, &o.PlatformFee,
		&o.SellerAmount, &o.Status, &o.Released, &o.Version, &o.CreatedAt, &o.UpdatedAt, &o.ConfirmedAt, &o.CompletedAt, &o.CancelledAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *MarketRepo) CreateListing(ctx context.Context, l *market.Listing) error {
	err := r.DB.QueryRow(ctx, `
		INSERT INTO listings(seller_id, title, description, price, quantity, available_quantity, status,
			is_negotiable, expires_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id`,
		l.SellerID, l.Title, l.Description, l.Price, l.Quantity, l.AvailableQuantity, l.Status,
		l.IsNegotiable, l.ExpiresAt, l.CreatedAt, l.UpdatedAt,
	).Scan(&l.ID)
	if err != nil {
		return fmt.Errorf("insert listing: %w", err)
	}
	return nil
}

func (r *MarketRepo) GetListing(ctx context.Context, id int64) (*market.Listing, error) {
	l, err := scanListing(r.DB.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, id))
	if isNoRows(err) {
		return nil, apperr.NotFound("listing", id)
	}
	return l, err
}

// UpdateListing locks the row (FOR UPDATE) so reservations and order updates
// against it wait until fn's result is committed.
func (r *MarketRepo) UpdateListing(ctx context.Context, id int64, fn func(l *market.Listing, sold int) error) (*market.Listing, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	l, err := scanListing(tx.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1 FOR UPDATE`, id))
	if isNoRows(err) {
		return nil, apperr.NotFound("listing", id)
	}
	if err != nil {
		return nil, err
	}
	var sold int
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity), 0) FROM market_orders
		WHERE listing_id = $1 AND status = $2`, id, market.OrderCompleted).Scan(&sold)
	if err != nil {
		return nil, fmt.Errorf("count sold units: %w", err)
	}
	if err := fn(l, sold); err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx, `
		UPDATE listings SET title=$2, description=$3, price=$4, quantity=$5, available_quantity=$6, status=$7,
			is_negotiable=$8, updated_at=$9, cancelled_at=$10, sold_at=$11
		WHERE id=$1`,
		l.ID, l.Title, l.Description, l.Price, l.Quantity, l.AvailableQuantity, l.Status,
		l.IsNegotiable, l.UpdatedAt, l.CancelledAt, l.SoldAt)
	if err != nil {
		return nil, fmt.Errorf("update listing: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

func (r *MarketRepo) ListListingsBySeller(ctx context.Context, sellerID int64) ([]market.Listing, error) {
	return r.listListings(ctx, `SELECT `+listingColumns+` FROM listings WHERE seller_id = $1 ORDER BY id DESC`, sellerID)
}

func (r *MarketRepo) ListListingsByStatus(ctx context.Context, s market.ListingStatus) ([]market.Listing, error) {
	return r.listListings(ctx, `SELECT `+listingColumns+` FROM listings WHERE status = $1 ORDER BY id DESC`, s)
}

func (r *MarketRepo) listListings(ctx context.Context, sql string, args ...any) ([]market.Listing, error) {
	rows, err := r.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []market.Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (r *MarketRepo) CreateOrder(ctx context.Context, o *market.MarketOrder) error {
	if o.Version == 0 {
		o.Version = 1
	}
	err := r.DB.QueryRow(ctx, `
		INSERT INTO market_orders(listing_id, buyer_id, seller_id, quantity, unit_price, total_amount, platform_fee,
			seller_amount, status, released, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id`,
		o.ListingID, o.BuyerID, o.SellerID, o.Quantity, o.UnitPrice, o.TotalAmount, o.PlatformFee,
		o.SellerAmount, o.Status, o.Released, o.Version, o.CreatedAt, o.UpdatedAt,
	).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("insert market order: %w", err)
	}
	return nil
}

func (r *MarketRepo) GetOrder(ctx context.Context, id int64) (*market.MarketOrder, error) {
	o, err := scanMarketOrder(r.DB.QueryRow(ctx, `SELECT `+marketOrderColumns+` FROM market_orders WHERE id = $1`, id))
	if isNoRows(err) {
		return nil, apperr.NotFound("market order", id)
	}
	return o, err
}

func (r *MarketRepo) UpdateOrder(ctx context.Context, o *market.MarketOrder) error {
	_, err := r.updateOrder(ctx, o, nil)
	return err
}

func (r *MarketRepo) UpdateOrderAndRelease(ctx context.Context, o *market.MarketOrder, release inventory.Reservation) (*market.Listing, error) {
	if release.Target.Kind != inventory.KindListing {
		return nil, apperr.Validation("market order %d cannot release %s", o.ID, release.Target)
	}
	return r.updateOrder(ctx, o, &release)
}

// updateOrder takes the listing lock first, the same order UpdateListing and
// Reserve use, then swaps the order row on its version.
func (r *MarketRepo) updateOrder(ctx context.Context, o *market.MarketOrder, release *inventory.Reservation) (*market.Listing, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT 1 FROM listings WHERE id = $1 FOR UPDATE`, o.ListingID); err != nil {
		return nil, fmt.Errorf("lock listing %d: %w", o.ListingID, err)
	}
	ct, err := tx.Exec(ctx, `
		UPDATE market_orders SET status=$3, released=$4, version=version+1, updated_at=$5,
			confirmed_at=$6, completed_at=$7, cancelled_at=$8
		WHERE id=$1 AND version=$2`,
		o.ID, o.Version, o.Status, o.Released, o.UpdatedAt, o.ConfirmedAt, o.CompletedAt, o.CancelledAt)
	if err != nil {
		return nil, fmt.Errorf("update market order: %w", err)
	}
	if ct.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM market_orders WHERE id=$1)`, o.ID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, apperr.NotFound("market order", o.ID)
		}
		return nil, apperr.ErrConflict
	}

	var l *market.Listing
	if release != nil {
		if err := credit(ctx, tx, release.Target, release.Quantity); err != nil {
			return nil, err
		}
		l, err = scanListing(tx.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, release.Target.ID))
		if err != nil {
			return nil, fmt.Errorf("reload listing %d: %w", release.Target.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	o.Version++
	return l, nil
}

func (r *MarketRepo) ListOrdersByBuyer(ctx context.Context, buyerID int64) ([]market.MarketOrder, error) {
	return r.listOrders(ctx, `SELECT `+marketOrderColumns+` FROM market_orders WHERE buyer_id = $1 ORDER BY id DESC`, buyerID)
}

func (r *MarketRepo) ListOrdersBySeller(ctx context.Context, sellerID int64) ([]market.MarketOrder, error) {
	return r.listOrders(ctx, `SELECT `+marketOrderColumns+` FROM market_orders WHERE seller_id = $1 ORDER BY id DESC`, sellerID)
}

func (r *MarketRepo) ListOrdersByStatus(ctx context.Context, s market.OrderStatus) ([]market.MarketOrder, error) {
	return r.listOrders(ctx, `SELECT `+marketOrderColumns+` FROM market_orders WHERE status = $1 ORDER BY id DESC`, s)
}

func (r *MarketRepo) ListOrdersByListing(ctx context.Context, listingID int64) ([]market.MarketOrder, error) {
	return r.listOrders(ctx, `SELECT `+marketOrderColumns+` FROM market_orders WHERE listing_id = $1 ORDER BY id DESC`, listingID)
}

func (r *MarketRepo) listOrders(ctx context.Context, sql string, args ...any) ([]market.MarketOrder, error) {
	rows, err := r.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []market.MarketOrder{}
	for rows.Next() {
		o, err := scanMarketOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}
