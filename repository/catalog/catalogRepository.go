package catalogrepo

import (
	"context"
	"database/sql"
	"errors"

	"librastore/model"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("catalog item not found")

// Repo is the only component allowed to touch the two stock counters. Every
// mutation is a single guarded UPDATE so two concurrent reservations against
// the same item can never both succeed on the last unit.
type Repo interface {
	GetItem(ctx context.Context, itemID int64) (*model.CatalogItem, error)
	GetItems(ctx context.Context, itemIDs []int64) (map[int64]*model.CatalogItem, error)
	List(ctx context.Context, limit, offset int) ([]model.CatalogItem, error)

	// Tx-scoped counter mutations; the debit joins the caller's durable unit.
	// Each returns false when the guard rejected the update.
	ReserveForLoan(ctx context.Context, tx *sql.Tx, itemID int64) (bool, error)
	ReleaseFromLoan(ctx context.Context, tx *sql.Tx, itemID int64) (bool, error)
	ReserveForSale(ctx context.Context, tx *sql.Tx, itemID int64, qty int) (bool, error)
	ReleaseFromSale(ctx context.Context, tx *sql.Tx, itemID int64, qty int) error
	SetLoanCopyTotals(ctx context.Context, tx *sql.Tx, itemID, total, available int64) (bool, error)
}

type repo struct{ db *sql.DB }

func New(db *sql.DB) Repo { return &repo{db} }

const itemCols = `id, title, isbn, unit_price, is_sellable, sellable_stock,
       is_lendable, total_loan_copies, available_loan_copies`

func scanItem(row interface{ Scan(...any) error }) (*model.CatalogItem, error) {
	var it model.CatalogItem
	var price string
	err := row.Scan(&it.ID, &it.Title, &it.ISBN, &price, &it.IsSellable, &it.SellableStock,
		&it.IsLendable, &it.TotalLoanCopies, &it.AvailableLoanCopies)
	if err != nil {
		return nil, err
	}
	it.UnitPrice, err = decimal.NewFromString(price)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (r *repo) GetItem(ctx context.Context, itemID int64) (*model.CatalogItem, error) {
	const q = `SELECT ` + itemCols + ` FROM catalog_items WHERE id = $1`
	it, err := scanItem(r.db.QueryRowContext(ctx, q, itemID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return it, err
}

func (r *repo) GetItems(ctx context.Context, itemIDs []int64) (map[int64]*model.CatalogItem, error) {
	const q = `SELECT ` + itemCols + ` FROM catalog_items WHERE id = ANY($1)`
	rows, err := r.db.QueryContext(ctx, q, itemIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]*model.CatalogItem, len(itemIDs))
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out[it.ID] = it
	}
	return out, rows.Err()
}

func (r *repo) List(ctx context.Context, limit, offset int) ([]model.CatalogItem, error) {
	const q = `SELECT ` + itemCols + ` FROM catalog_items ORDER BY id DESC LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, q, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CatalogItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}

func (r *repo) ReserveForLoan(ctx context.Context, tx *sql.Tx, itemID int64) (bool, error) {
	const q = `
	UPDATE catalog_items
	SET available_loan_copies = available_loan_copies - 1
	WHERE id = $1
	  AND is_lendable
	  AND available_loan_copies > 0`
	return guarded(tx.ExecContext(ctx, q, itemID))
}

func (r *repo) ReleaseFromLoan(ctx context.Context, tx *sql.Tx, itemID int64) (bool, error) {
	// Guard keeps the invariant available <= total; a rejected release is a
	// caller bug, not a business condition.
	const q = `
	UPDATE catalog_items
	SET available_loan_copies = available_loan_copies + 1
	WHERE id = $1
	  AND available_loan_copies < total_loan_copies`
	return guarded(tx.ExecContext(ctx, q, itemID))
}

func (r *repo) ReserveForSale(ctx context.Context, tx *sql.Tx, itemID int64, qty int) (bool, error) {
	const q = `
	UPDATE catalog_items
	SET sellable_stock = sellable_stock - $2
	WHERE id = $1
	  AND is_sellable
	  AND sellable_stock >= $2`
	return guarded(tx.ExecContext(ctx, q, itemID, qty))
}

func (r *repo) ReleaseFromSale(ctx context.Context, tx *sql.Tx, itemID int64, qty int) error {
	const q = `
	UPDATE catalog_items
	SET sellable_stock = sellable_stock + $2
	WHERE id = $1`
	res, err := tx.ExecContext(ctx, q, itemID, qty)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repo) SetLoanCopyTotals(ctx context.Context, tx *sql.Tx, itemID, total, available int64) (bool, error) {
	const q = `
	UPDATE catalog_items
	SET total_loan_copies = $2,
	    available_loan_copies = $3
	WHERE id = $1`
	return guarded(tx.ExecContext(ctx, q, itemID, total, available))
}

func guarded(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
