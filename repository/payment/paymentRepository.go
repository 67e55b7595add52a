package paymentrepo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"librastore/model"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("payment not found")

type Repo interface {
	// LockOrder takes the order row lock so two concurrent attempts against
	// the same order serialize ahead of the pending check.
	LockOrder(ctx context.Context, tx *sql.Tx, orderID int64) error
	Insert(ctx context.Context, tx *sql.Tx, p *model.Payment) (int64, error)
	GetByTxnRef(ctx context.Context, txnRef string) (*model.Payment, error)
	GetForUpdateByTxnRef(ctx context.Context, tx *sql.Tx, txnRef string) (*model.Payment, error)
	GetPendingByOrder(ctx context.Context, tx *sql.Tx, orderID int64) (*model.Payment, error)
	HasPending(ctx context.Context, tx *sql.Tx, orderID int64) (bool, error)
	ListByOrder(ctx context.Context, orderID int64) ([]model.Payment, error)

	MarkCompleted(ctx context.Context, tx *sql.Tx, id int64, respCode, message string, paidAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, tx *sql.Tx, id int64, respCode, message string) (bool, error)

	// ExpirePending flips every PENDING attempt past its expiry in one pass.
	ExpirePending(ctx context.Context, now time.Time) (int64, error)
}

type repo struct{ db *sql.DB }

func New(db *sql.DB) Repo { return &repo{db} }

func (r *repo) LockOrder(ctx context.Context, tx *sql.Tx, orderID int64) error {
	const q = `SELECT id FROM orders WHERE id = $1 FOR UPDATE`
	var id int64
	return tx.QueryRowContext(ctx, q, orderID).Scan(&id)
}

func (r *repo) Insert(ctx context.Context, tx *sql.Tx, p *model.Payment) (int64, error) {
	const q = `
INSERT INTO payments (payment_code, order_id, txn_ref, amount, status, expires_at)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING id`
	var id int64
	err := tx.QueryRowContext(ctx, q, p.PaymentCode, p.OrderID, p.TxnRef,
		p.Amount.String(), p.Status, p.ExpiresAt).Scan(&id)
	return id, err
}

const payCols = `id, payment_code, order_id, txn_ref, amount, status,
       COALESCE(response_code,''), COALESCE(gateway_message,''), expires_at, paid_at, created_at`

func scanPayment(row interface{ Scan(...any) error }) (*model.Payment, error) {
	var p model.Payment
	var amount string
	err := row.Scan(&p.ID, &p.PaymentCode, &p.OrderID, &p.TxnRef, &amount, &p.Status,
		&p.ResponseCode, &p.GatewayMessage, &p.ExpiresAt, &p.PaidAt, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repo) GetByTxnRef(ctx context.Context, txnRef string) (*model.Payment, error) {
	const q = `SELECT ` + payCols + ` FROM payments WHERE txn_ref = $1`
	p, err := scanPayment(r.db.QueryRowContext(ctx, q, txnRef))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (r *repo) GetForUpdateByTxnRef(ctx context.Context, tx *sql.Tx, txnRef string) (*model.Payment, error) {
	const q = `SELECT ` + payCols + ` FROM payments WHERE txn_ref = $1 FOR UPDATE`
	p, err := scanPayment(tx.QueryRowContext(ctx, q, txnRef))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (r *repo) GetPendingByOrder(ctx context.Context, tx *sql.Tx, orderID int64) (*model.Payment, error) {
	const q = `SELECT ` + payCols + ` FROM payments WHERE order_id = $1 AND status = 'PENDING' FOR UPDATE`
	p, err := scanPayment(tx.QueryRowContext(ctx, q, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (r *repo) HasPending(ctx context.Context, tx *sql.Tx, orderID int64) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM payments WHERE order_id = $1 AND status = 'PENDING')`
	var exists bool
	err := tx.QueryRowContext(ctx, q, orderID).Scan(&exists)
	return exists, err
}

func (r *repo) ListByOrder(ctx context.Context, orderID int64) ([]model.Payment, error) {
	const q = `SELECT ` + payCols + ` FROM payments WHERE order_id = $1 ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *repo) MarkCompleted(ctx context.Context, tx *sql.Tx, id int64, respCode, message string, paidAt time.Time) (bool, error) {
	const q = `
UPDATE payments
SET status = 'COMPLETED', response_code = $2, gateway_message = $3, paid_at = $4
WHERE id = $1 AND status = 'PENDING'`
	return guarded(tx.ExecContext(ctx, q, id, respCode, message, paidAt))
}

func (r *repo) MarkFailed(ctx context.Context, tx *sql.Tx, id int64, respCode, message string) (bool, error) {
	const q = `
UPDATE payments
SET status = 'FAILED', response_code = $2, gateway_message = $3
WHERE id = $1 AND status = 'PENDING'`
	return guarded(tx.ExecContext(ctx, q, id, respCode, message))
}

func (r *repo) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	const q = `
UPDATE payments
SET status = 'EXPIRED'
WHERE status = 'PENDING' AND expires_at < $1`
	res, err := r.db.ExecContext(ctx, q, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
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
