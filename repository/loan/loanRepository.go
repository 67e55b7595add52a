package loanrepo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"librastore/model"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("loan not found")

type Repo interface {
	Insert(ctx context.Context, l *model.Loan) (int64, error)
	GetByID(ctx context.Context, id int64) (*model.Loan, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*model.Loan, error)
	ListByUser(ctx context.Context, userID int64) ([]model.Loan, error)

	CountActive(ctx context.Context, userID int64) (int, error)
	HasActiveOnItem(ctx context.Context, userID, itemID int64) (bool, error)

	SetApproved(ctx context.Context, tx *sql.Tx, id, librarianID int64, due, at time.Time) (bool, error)
	SetBorrowed(ctx context.Context, tx *sql.Tx, id int64, at time.Time) (bool, error)
	SetCancelled(ctx context.Context, tx *sql.Tx, id int64, note string) (bool, error)
	SetReturned(ctx context.Context, tx *sql.Tx, id, librarianID int64, at time.Time, fineAmount decimal.Decimal, note string) (bool, error)

	ListDue(ctx context.Context, now time.Time) ([]model.Loan, error)
	SetOverdue(ctx context.Context, id int64, fineAmount decimal.Decimal) (bool, error)
}

type repo struct{ db *sql.DB }

func New(db *sql.DB) Repo { return &repo{db} }

func (r *repo) Insert(ctx context.Context, l *model.Loan) (int64, error) {
	const q = `
INSERT INTO loans (user_id, item_id, status, due_date, fine_amount, fine_paid, notes)
VALUES ($1,$2,$3,$4,0,false,$5)
RETURNING id`
	var id int64
	err := r.db.QueryRowContext(ctx, q, l.UserID, l.ItemID, l.Status, l.DueDate, l.Notes).Scan(&id)
	return id, err
}

const loanCols = `id, user_id, item_id, status, loan_date, due_date, return_date,
       fine_amount, fine_paid, approved_by, approved_at, returned_to, COALESCE(notes,''), created_at`

func scanLoan(row interface{ Scan(...any) error }) (*model.Loan, error) {
	var l model.Loan
	var fine string
	err := row.Scan(&l.ID, &l.UserID, &l.ItemID, &l.Status, &l.LoanDate, &l.DueDate, &l.ReturnDate,
		&fine, &l.FinePaid, &l.ApprovedBy, &l.ApprovedAt, &l.ReturnedTo, &l.Notes, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	if l.FineAmount, err = decimal.NewFromString(fine); err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *repo) GetByID(ctx context.Context, id int64) (*model.Loan, error) {
	const q = `SELECT ` + loanCols + ` FROM loans WHERE id = $1`
	l, err := scanLoan(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return l, err
}

func (r *repo) GetForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*model.Loan, error) {
	const q = `SELECT ` + loanCols + ` FROM loans WHERE id = $1 FOR UPDATE`
	l, err := scanLoan(tx.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return l, err
}

func (r *repo) ListByUser(ctx context.Context, userID int64) ([]model.Loan, error) {
	const q = `SELECT ` + loanCols + ` FROM loans WHERE user_id = $1 ORDER BY created_at DESC, id DESC`
	return r.list(ctx, q, userID)
}

func (r *repo) list(ctx context.Context, q string, args ...any) ([]model.Loan, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (r *repo) CountActive(ctx context.Context, userID int64) (int, error) {
	const q = `
SELECT COUNT(*)
FROM loans
WHERE user_id = $1
  AND status IN ('REQUESTED','APPROVED','BORROWED','OVERDUE')`
	var n int
	err := r.db.QueryRowContext(ctx, q, userID).Scan(&n)
	return n, err
}

func (r *repo) HasActiveOnItem(ctx context.Context, userID, itemID int64) (bool, error) {
	const q = `
SELECT EXISTS(
  SELECT 1 FROM loans
  WHERE user_id = $1 AND item_id = $2
    AND status IN ('REQUESTED','APPROVED','BORROWED','OVERDUE'))`
	var exists bool
	err := r.db.QueryRowContext(ctx, q, userID, itemID).Scan(&exists)
	return exists, err
}

func (r *repo) SetApproved(ctx context.Context, tx *sql.Tx, id, librarianID int64, due, at time.Time) (bool, error) {
	const q = `
UPDATE loans
SET status = 'APPROVED', approved_by = $2, approved_at = $3, due_date = $4
WHERE id = $1 AND status = 'REQUESTED'`
	return guarded(tx.ExecContext(ctx, q, id, librarianID, at, due))
}

func (r *repo) SetBorrowed(ctx context.Context, tx *sql.Tx, id int64, at time.Time) (bool, error) {
	const q = `
UPDATE loans
SET status = 'BORROWED', loan_date = $2
WHERE id = $1 AND status = 'APPROVED'`
	return guarded(tx.ExecContext(ctx, q, id, at))
}

func (r *repo) SetCancelled(ctx context.Context, tx *sql.Tx, id int64, note string) (bool, error) {
	const q = `
UPDATE loans
SET status = 'CANCELLED',
    notes = TRIM(BOTH E'\n' FROM COALESCE(notes,'') || E'\n' || $2)
WHERE id = $1 AND status = 'REQUESTED'`
	return guarded(tx.ExecContext(ctx, q, id, note))
}

func (r *repo) SetReturned(ctx context.Context, tx *sql.Tx, id, librarianID int64, at time.Time, fineAmount decimal.Decimal, note string) (bool, error) {
	const q = `
UPDATE loans
SET status = 'RETURNED',
    return_date = $3,
    returned_to = $2,
    fine_amount = $4,
    fine_paid = false,
    notes = TRIM(BOTH E'\n' FROM COALESCE(notes,'') || E'\n' || $5)
WHERE id = $1 AND status IN ('BORROWED','OVERDUE')`
	return guarded(tx.ExecContext(ctx, q, id, librarianID, at, fineAmount.String(), note))
}

func (r *repo) ListDue(ctx context.Context, now time.Time) ([]model.Loan, error) {
	const q = `SELECT ` + loanCols + ` FROM loans WHERE status IN ('BORROWED','OVERDUE') AND due_date < $1`
	return r.list(ctx, q, now)
}

// SetOverdue flips a due loan and stores the fine as of now. Already-overdue
// loans match too: the fine keeps growing daily while the book is out, so
// every sweep refreshes the stored amount until return.
func (r *repo) SetOverdue(ctx context.Context, id int64, fineAmount decimal.Decimal) (bool, error) {
	const q = `
UPDATE loans
SET status = 'OVERDUE', fine_amount = $2
WHERE id = $1 AND status IN ('BORROWED','OVERDUE')`
	return guarded(r.db.ExecContext(ctx, q, id, fineAmount.String()))
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
