// repository/order/repo.go
package orderrepo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"librastore/model"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("order not found")

type Repo interface {
	InsertOrder(ctx context.Context, tx *sql.Tx, o *model.Order) (int64, error)
	InsertItems(ctx context.Context, tx *sql.Tx, orderID int64, items []model.OrderItem) error

	GetByCode(ctx context.Context, code string) (*model.Order, error)
	GetByID(ctx context.Context, id int64) (*model.Order, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, code string) (*model.Order, error)
	ListItems(ctx context.Context, orderID int64) ([]model.OrderItem, error)
	ListItemsTx(ctx context.Context, tx *sql.Tx, orderID int64) ([]model.OrderItem, error)
	ListByUser(ctx context.Context, userID int64) ([]model.Order, error)
	ListOpen(ctx context.Context) ([]model.Order, error)

	// Status writes are guarded on the expected current state; false means the
	// order was not in that state.
	SetStatus(ctx context.Context, tx *sql.Tx, id int64, from []model.OrderStatus, to model.OrderStatus) (bool, error)
	MarkPaid(ctx context.Context, tx *sql.Tx, id int64) (bool, error)
	StampShipping(ctx context.Context, tx *sql.Tx, id int64, at time.Time) error
	StampDelivery(ctx context.Context, tx *sql.Tx, id int64, at time.Time) error
	SetRefunded(ctx context.Context, tx *sql.Tx, id int64, payStatus model.OrderPaymentStatus, full bool) (bool, error)
}

type repo struct{ db *sql.DB }

func New(db *sql.DB) Repo { return &repo{db} }

func (r *repo) InsertOrder(ctx context.Context, tx *sql.Tx, o *model.Order) (int64, error) {
	const q = `
INSERT INTO orders (order_code, user_id, status, payment_status,
                    subtotal, shipping_fee, discount, tax, total,
                    shipping_name, shipping_phone, shipping_address, notes)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
RETURNING id`
	var id int64
	err := tx.QueryRowContext(ctx, q,
		o.OrderCode, o.UserID, o.Status, o.PaymentStatus,
		o.Subtotal.String(), o.ShippingFee.String(), o.Discount.String(), o.Tax.String(), o.Total.String(),
		o.ShippingName, o.ShippingPhone, o.ShippingAddress, o.Notes,
	).Scan(&id)
	return id, err
}

func (r *repo) InsertItems(ctx context.Context, tx *sql.Tx, orderID int64, items []model.OrderItem) error {
	const q = `
INSERT INTO order_items (order_id, item_id, title_snapshot, quantity, price_per_unit, line_total)
VALUES ($1,$2,$3,$4,$5,$6)`
	for _, it := range items {
		if _, err := tx.ExecContext(ctx, q, orderID, it.ItemID, it.TitleSnapshot,
			it.Quantity, it.PricePerUnit.String(), it.LineTotal.String()); err != nil {
			return err
		}
	}
	return nil
}

const orderCols = `id, order_code, user_id, status, payment_status,
       subtotal, shipping_fee, discount, tax, total,
       shipping_name, shipping_phone, shipping_address, COALESCE(notes,''),
       created_at, COALESCE(updated_at, created_at), shipping_date, delivery_date`

type rowScanner interface{ Scan(...any) error }

func scanOrder(row rowScanner) (*model.Order, error) {
	var o model.Order
	var sub, ship, disc, tax, tot string
	err := row.Scan(&o.ID, &o.OrderCode, &o.UserID, &o.Status, &o.PaymentStatus,
		&sub, &ship, &disc, &tax, &tot,
		&o.ShippingName, &o.ShippingPhone, &o.ShippingAddress, &o.Notes,
		&o.CreatedAt, &o.UpdatedAt, &o.ShippingDate, &o.DeliveryDate)
	if err != nil {
		return nil, err
	}
	for _, p := range []struct {
		dst *decimal.Decimal
		src string
	}{{&o.Subtotal, sub}, {&o.ShippingFee, ship}, {&o.Discount, disc}, {&o.Tax, tax}, {&o.Total, tot}} {
		if *p.dst, err = decimal.NewFromString(p.src); err != nil {
			return nil, err
		}
	}
	return &o, nil
}

func (r *repo) GetByCode(ctx context.Context, code string) (*model.Order, error) {
	const q = `SELECT ` + orderCols + ` FROM orders WHERE order_code = $1`
	o, err := scanOrder(r.db.QueryRowContext(ctx, q, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

func (r *repo) GetByID(ctx context.Context, id int64) (*model.Order, error) {
	const q = `SELECT ` + orderCols + ` FROM orders WHERE id = $1`
	o, err := scanOrder(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

func (r *repo) GetForUpdate(ctx context.Context, tx *sql.Tx, code string) (*model.Order, error) {
	const q = `SELECT ` + orderCols + ` FROM orders WHERE order_code = $1 FOR UPDATE`
	o, err := scanOrder(tx.QueryRowContext(ctx, q, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

const itemCols = `id, order_id, item_id, title_snapshot, quantity, price_per_unit, line_total`

func scanItems(rows *sql.Rows) ([]model.OrderItem, error) {
	defer rows.Close()
	var out []model.OrderItem
	for rows.Next() {
		var it model.OrderItem
		var unit, line string
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ItemID, &it.TitleSnapshot,
			&it.Quantity, &unit, &line); err != nil {
			return nil, err
		}
		var err error
		if it.PricePerUnit, err = decimal.NewFromString(unit); err != nil {
			return nil, err
		}
		if it.LineTotal, err = decimal.NewFromString(line); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *repo) ListItems(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	const q = `SELECT ` + itemCols + ` FROM order_items WHERE order_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	return scanItems(rows)
}

func (r *repo) ListItemsTx(ctx context.Context, tx *sql.Tx, orderID int64) ([]model.OrderItem, error) {
	const q = `SELECT ` + itemCols + ` FROM order_items WHERE order_id = $1 ORDER BY id`
	rows, err := tx.QueryContext(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	return scanItems(rows)
}

func (r *repo) ListByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	const q = `SELECT ` + orderCols + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC`
	return r.list(ctx, q, userID)
}

// ListOpen returns orders still moving through the lifecycle, for the
// operator attention report.
func (r *repo) ListOpen(ctx context.Context) ([]model.Order, error) {
	const q = `
SELECT ` + orderCols + `
FROM orders
WHERE status IN ('PENDING_PAYMENT','PAID','PROCESSING')
ORDER BY created_at`
	return r.list(ctx, q)
}

func (r *repo) list(ctx context.Context, q string, args ...any) ([]model.Order, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (r *repo) SetStatus(ctx context.Context, tx *sql.Tx, id int64, from []model.OrderStatus, to model.OrderStatus) (bool, error) {
	const q = `
UPDATE orders
SET status = $2, updated_at = NOW()
WHERE id = $1 AND status = ANY($3)`
	froms := make([]string, len(from))
	for i, f := range from {
		froms[i] = string(f)
	}
	res, err := tx.ExecContext(ctx, q, id, to, froms)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *repo) MarkPaid(ctx context.Context, tx *sql.Tx, id int64) (bool, error) {
	const q = `
UPDATE orders
SET status = 'PAID', payment_status = 'PAID', updated_at = NOW()
WHERE id = $1 AND status = 'PENDING_PAYMENT'`
	res, err := tx.ExecContext(ctx, q, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *repo) StampShipping(ctx context.Context, tx *sql.Tx, id int64, at time.Time) error {
	const q = `UPDATE orders SET shipping_date = $2 WHERE id = $1 AND shipping_date IS NULL`
	_, err := tx.ExecContext(ctx, q, id, at)
	return err
}

func (r *repo) StampDelivery(ctx context.Context, tx *sql.Tx, id int64, at time.Time) error {
	const q = `UPDATE orders SET delivery_date = $2 WHERE id = $1 AND delivery_date IS NULL`
	_, err := tx.ExecContext(ctx, q, id, at)
	return err
}

func (r *repo) SetRefunded(ctx context.Context, tx *sql.Tx, id int64, payStatus model.OrderPaymentStatus, full bool) (bool, error) {
	// Partial refunds change only the payment status.
	var q string
	if full {
		q = `
UPDATE orders
SET payment_status = $2, status = 'REFUNDED', updated_at = NOW()
WHERE id = $1 AND payment_status IN ('PAID','PARTIALLY_REFUNDED')`
	} else {
		q = `
UPDATE orders
SET payment_status = $2, updated_at = NOW()
WHERE id = $1 AND payment_status IN ('PAID','PARTIALLY_REFUNDED')`
	}
	res, err := tx.ExecContext(ctx, q, id, payStatus)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
