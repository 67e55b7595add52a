package cartrepo

import (
	"context"
	"database/sql"
	"errors"

	"librastore/model"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("cart entry not found")

type Repo interface {
	GetEntry(ctx context.Context, userID, itemID int64) (*model.CartEntry, error)
	ListEntries(ctx context.Context, userID int64) ([]model.CartEntry, error)

	InsertEntry(ctx context.Context, tx *sql.Tx, userID, itemID int64, qty int, unitPrice decimal.Decimal) (int64, error)
	UpdateQuantity(ctx context.Context, tx *sql.Tx, entryID int64, qty int) error
	UpdatePrice(ctx context.Context, tx *sql.Tx, entryID int64, unitPrice decimal.Decimal) error
	DeleteEntry(ctx context.Context, tx *sql.Tx, entryID int64) error
	DeleteByUserItem(ctx context.Context, userID, itemID int64) error
	Clear(ctx context.Context, tx *sql.Tx, userID int64) error
}

type repo struct{ db *sql.DB }

func New(db *sql.DB) Repo { return &repo{db} }

const entryCols = `c.id, c.user_id, c.item_id, i.title, c.quantity, c.unit_price_at_add, c.created_at, c.updated_at`

func (r *repo) GetEntry(ctx context.Context, userID, itemID int64) (*model.CartEntry, error) {
	const q = `
SELECT ` + entryCols + `
FROM cart_items c
JOIN catalog_items i ON i.id = c.item_id
WHERE c.user_id = $1 AND c.item_id = $2`
	var e model.CartEntry
	var price string
	err := r.db.QueryRowContext(ctx, q, userID, itemID).Scan(
		&e.ID, &e.UserID, &e.ItemID, &e.Title, &e.Quantity, &price, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if e.UnitPriceAtAdd, err = decimal.NewFromString(price); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *repo) ListEntries(ctx context.Context, userID int64) ([]model.CartEntry, error) {
	const q = `
SELECT ` + entryCols + `
FROM cart_items c
JOIN catalog_items i ON i.id = c.item_id
WHERE c.user_id = $1
ORDER BY c.created_at, c.id`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CartEntry
	for rows.Next() {
		var e model.CartEntry
		var price string
		if err := rows.Scan(&e.ID, &e.UserID, &e.ItemID, &e.Title, &e.Quantity, &price,
			&e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		if e.UnitPriceAtAdd, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *repo) InsertEntry(ctx context.Context, tx *sql.Tx, userID, itemID int64, qty int, unitPrice decimal.Decimal) (int64, error) {
	const q = `
INSERT INTO cart_items (user_id, item_id, quantity, unit_price_at_add)
VALUES ($1,$2,$3,$4)
RETURNING id`
	var id int64
	err := tx.QueryRowContext(ctx, q, userID, itemID, qty, unitPrice.String()).Scan(&id)
	return id, err
}

func (r *repo) UpdateQuantity(ctx context.Context, tx *sql.Tx, entryID int64, qty int) error {
	const q = `
UPDATE cart_items
SET quantity = $2, updated_at = NOW()
WHERE id = $1`
	return execOne(tx.ExecContext(ctx, q, entryID, qty))
}

func (r *repo) UpdatePrice(ctx context.Context, tx *sql.Tx, entryID int64, unitPrice decimal.Decimal) error {
	const q = `
UPDATE cart_items
SET unit_price_at_add = $2, updated_at = NOW()
WHERE id = $1`
	return execOne(tx.ExecContext(ctx, q, entryID, unitPrice.String()))
}

func (r *repo) DeleteEntry(ctx context.Context, tx *sql.Tx, entryID int64) error {
	const q = `DELETE FROM cart_items WHERE id = $1`
	return execOne(tx.ExecContext(ctx, q, entryID))
}

func (r *repo) DeleteByUserItem(ctx context.Context, userID, itemID int64) error {
	const q = `DELETE FROM cart_items WHERE user_id = $1 AND item_id = $2`
	return execOne(r.db.ExecContext(ctx, q, userID, itemID))
}

func (r *repo) Clear(ctx context.Context, tx *sql.Tx, userID int64) error {
	const q = `DELETE FROM cart_items WHERE user_id = $1`
	_, err := tx.ExecContext(ctx, q, userID)
	return err
}

func execOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
