package paymentsvc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"librastore/config"
	"librastore/model"
	paymentrepo "librastore/repository/payment"
	vnpayrepo "librastore/repository/vnpay"
	"librastore/util/metrics"

	"github.com/google/uuid"
)

// errors used by controllers

type ErrCode string

const (
	ErrDuplicatePending ErrCode = "DUPLICATE_PENDING_PAYMENT"
	ErrNotFound         ErrCode = "PAYMENT_NOT_FOUND"
	ErrInvalidSignature ErrCode = "INVALID_SIGNATURE"
	ErrOrderNotPayable  ErrCode = "ORDER_NOT_PAYABLE"
	ErrNotPending       ErrCode = "NOT_PENDING"
)

type codedError struct{ code ErrCode }

func (e codedError) Error() string { return string(e.code) }
func (e codedError) Code() ErrCode { return e.code }
func makeErr(c ErrCode) error      { return codedError{code: c} }

// Code extracts error code
func Code(err error) ErrCode {
	var ce interface{ Code() ErrCode }
	if errors.As(err, &ce) {
		return ce.Code()
	}
	return ""
}

// Orders is the slice of the order lifecycle the adapter drives.
type Orders interface {
	Get(ctx context.Context, userID int64, code string) (*model.Order, error)
	MarkPaidTx(ctx context.Context, tx *sql.Tx, orderID int64) error
}

type Attempt struct {
	Payment *model.Payment `json:"payment"`
	PayURL  string         `json:"pay_url"`
}

// Outcome is what a reconciled callback resolves to. Duplicate means the
// payment was already terminal and nothing was re-applied.
type Outcome struct {
	PaymentCode  string              `json:"payment_code"`
	OrderID      int64               `json:"order_id"`
	Status       model.PaymentStatus `json:"status"`
	ResponseCode string              `json:"response_code"`
	Message      string              `json:"message,omitempty"`
	Duplicate    bool                `json:"duplicate"`
}

type Service interface {
	// CreateAttempt opens a PENDING payment for the order and returns the
	// signed provider redirect. One non-terminal attempt per order at a time.
	CreateAttempt(ctx context.Context, userID int64, orderCode, clientIP string) (*Attempt, error)

	// Reconcile handles both provider channels (return redirect and webhook).
	// Safe under at-least-once, out-of-order delivery: the terminal-state
	// check on the payment row is the sole idempotency guard.
	Reconcile(ctx context.Context, params url.Values) (*Outcome, error)

	// CancelPending abandons the user's open attempt; the order stays
	// eligible for a fresh one.
	CancelPending(ctx context.Context, userID int64, orderCode string) error

	ListByOrder(ctx context.Context, userID int64, orderCode string) ([]model.Payment, error)

	// ProcessExpired flips stale PENDING attempts to EXPIRED. The order is
	// untouched; EXPIRED is terminal so a late success callback is rejected.
	ProcessExpired(ctx context.Context, now time.Time) (int64, error)
}

type service struct {
	db     *sql.DB
	r      paymentrepo.Repo
	gw     vnpayrepo.Repo
	orders Orders
	pol    config.PaymentPolicy
	log    *slog.Logger
}

func New(db *sql.DB, r paymentrepo.Repo, gw vnpayrepo.Repo, orders Orders, pol config.PaymentPolicy, log *slog.Logger) Service {
	return &service{db: db, r: r, gw: gw, orders: orders, pol: pol, log: log}
}

func (s *service) CreateAttempt(ctx context.Context, userID int64, orderCode, clientIP string) (_ *Attempt, err error) {
	o, err := s.orders.Get(ctx, userID, orderCode)
	if err != nil {
		return nil, err
	}
	if o.Status != model.OrderPendingPayment {
		return nil, makeErr(ErrOrderNotPayable)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Lock the order row first: without it two concurrent attempts could
	// both pass the pending check and insert.
	if err = s.r.LockOrder(ctx, tx, o.ID); err != nil {
		return nil, err
	}
	pending, err := s.r.HasPending(ctx, tx, o.ID)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, makeErr(ErrDuplicatePending)
	}

	now := time.Now().UTC()
	p := &model.Payment{
		PaymentCode: uuid.NewString(),
		OrderID:     o.ID,
		TxnRef:      newTxnRef(),
		Amount:      o.Total,
		Status:      model.PaymentPending,
		ExpiresAt:   now.Add(s.pol.AttemptTTL),
		CreatedAt:   now,
	}
	if p.ID, err = s.r.Insert(ctx, tx, p); err != nil {
		return nil, err
	}

	payURL, err := s.gw.BuildPayURL(vnpayrepo.PayURLReq{
		TxnRef:    p.TxnRef,
		AmountVND: o.Total.IntPart(),
		OrderInfo: fmt.Sprintf("Payment for order %s", o.OrderCode),
		ClientIP:  clientIP,
		CreatedAt: now,
	})
	if err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return &Attempt{Payment: p, PayURL: payURL}, nil
}

func newTxnRef() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:16])
}

func (s *service) Reconcile(ctx context.Context, params url.Values) (_ *Outcome, err error) {
	cb, err := s.gw.ParseCallback(params)
	if errors.Is(err, vnpayrepo.ErrBadSignature) {
		metrics.PaymentCallbacks.WithLabelValues("bad_signature").Inc()
		return nil, makeErr(ErrInvalidSignature)
	}
	if err != nil {
		metrics.PaymentCallbacks.WithLabelValues("malformed").Inc()
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	p, err := s.r.GetForUpdateByTxnRef(ctx, tx, cb.TxnRef)
	if errors.Is(err, paymentrepo.ErrNotFound) {
		metrics.PaymentCallbacks.WithLabelValues("not_found").Inc()
		return nil, makeErr(ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	// Terminal already: idempotent duplicate. Return the recorded outcome
	// without re-applying side effects. This also rejects a late success for
	// an EXPIRED attempt.
	if p.Status.IsTerminal() {
		if err = tx.Commit(); err != nil {
			return nil, err
		}
		metrics.PaymentCallbacks.WithLabelValues("duplicate").Inc()
		return &Outcome{
			PaymentCode:  p.PaymentCode,
			OrderID:      p.OrderID,
			Status:       p.Status,
			ResponseCode: p.ResponseCode,
			Message:      p.GatewayMessage,
			Duplicate:    true,
		}, nil
	}

	if cb.ResponseCode == vnpayrepo.ResponseCodeOK {
		now := time.Now().UTC()
		msg := "completed, provider txn " + cb.TransactionNo
		if _, err = s.r.MarkCompleted(ctx, tx, p.ID, cb.ResponseCode, msg, now); err != nil {
			return nil, err
		}
		if err = s.orders.MarkPaidTx(ctx, tx, p.OrderID); err != nil {
			return nil, err
		}
		if err = tx.Commit(); err != nil {
			return nil, err
		}
		metrics.PaymentCallbacks.WithLabelValues("completed").Inc()
		s.log.Info("payment completed", "payment_code", p.PaymentCode, "order_id", p.OrderID)
		return &Outcome{
			PaymentCode:  p.PaymentCode,
			OrderID:      p.OrderID,
			Status:       model.PaymentCompleted,
			ResponseCode: cb.ResponseCode,
			Message:      msg,
		}, nil
	}

	// Any non-success code: attempt failed, order stays PENDING_PAYMENT and
	// may be retried with a fresh attempt.
	msg := fmt.Sprintf("provider declined with code %s", cb.ResponseCode)
	if _, err = s.r.MarkFailed(ctx, tx, p.ID, cb.ResponseCode, msg); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	metrics.PaymentCallbacks.WithLabelValues("failed").Inc()
	return &Outcome{
		PaymentCode:  p.PaymentCode,
		OrderID:      p.OrderID,
		Status:       model.PaymentFailed,
		ResponseCode: cb.ResponseCode,
		Message:      msg,
	}, nil
}

func (s *service) CancelPending(ctx context.Context, userID int64, orderCode string) (err error) {
	o, err := s.orders.Get(ctx, userID, orderCode)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	p, err := s.r.GetPendingByOrder(ctx, tx, o.ID)
	if errors.Is(err, paymentrepo.ErrNotFound) {
		return makeErr(ErrNotPending)
	}
	if err != nil {
		return err
	}
	if _, err = s.r.MarkFailed(ctx, tx, p.ID, "", "cancelled by user"); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *service) ListByOrder(ctx context.Context, userID int64, orderCode string) ([]model.Payment, error) {
	o, err := s.orders.Get(ctx, userID, orderCode)
	if err != nil {
		return nil, err
	}
	return s.r.ListByOrder(ctx, o.ID)
}

func (s *service) ProcessExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.r.ExpirePending(ctx, now)
}
