package paymentsvc_test

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"net/url"
	"testing"
	"time"

	"librastore/config"
	"librastore/model"
	paymentrepo "librastore/repository/payment"
	vnpayrepo "librastore/repository/vnpay"
	paymentsvc "librastore/service/payment"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type repoMock struct {
	lockOrderFn     func(ctx context.Context, tx *sql.Tx, orderID int64) error
	insertFn        func(ctx context.Context, tx *sql.Tx, p *model.Payment) (int64, error)
	getByTxnRefFn   func(ctx context.Context, txnRef string) (*model.Payment, error)
	getForUpdateFn  func(ctx context.Context, tx *sql.Tx, txnRef string) (*model.Payment, error)
	getPendingFn    func(ctx context.Context, tx *sql.Tx, orderID int64) (*model.Payment, error)
	hasPendingFn    func(ctx context.Context, tx *sql.Tx, orderID int64) (bool, error)
	listByOrderFn   func(ctx context.Context, orderID int64) ([]model.Payment, error)
	markCompletedFn func(ctx context.Context, tx *sql.Tx, id int64, respCode, message string, paidAt time.Time) (bool, error)
	markFailedFn    func(ctx context.Context, tx *sql.Tx, id int64, respCode, message string) (bool, error)
	expirePendingFn func(ctx context.Context, now time.Time) (int64, error)
}

var _ paymentrepo.Repo = (*repoMock)(nil)

func (m *repoMock) LockOrder(ctx context.Context, tx *sql.Tx, orderID int64) error {
	if m.lockOrderFn == nil {
		return nil
	}
	return m.lockOrderFn(ctx, tx, orderID)
}
func (m *repoMock) Insert(ctx context.Context, tx *sql.Tx, p *model.Payment) (int64, error) {
	return m.insertFn(ctx, tx, p)
}
func (m *repoMock) GetByTxnRef(ctx context.Context, txnRef string) (*model.Payment, error) {
	return m.getByTxnRefFn(ctx, txnRef)
}
func (m *repoMock) GetForUpdateByTxnRef(ctx context.Context, tx *sql.Tx, txnRef string) (*model.Payment, error) {
	return m.getForUpdateFn(ctx, tx, txnRef)
}
func (m *repoMock) GetPendingByOrder(ctx context.Context, tx *sql.Tx, orderID int64) (*model.Payment, error) {
	return m.getPendingFn(ctx, tx, orderID)
}
func (m *repoMock) HasPending(ctx context.Context, tx *sql.Tx, orderID int64) (bool, error) {
	return m.hasPendingFn(ctx, tx, orderID)
}
func (m *repoMock) ListByOrder(ctx context.Context, orderID int64) ([]model.Payment, error) {
	return m.listByOrderFn(ctx, orderID)
}
func (m *repoMock) MarkCompleted(ctx context.Context, tx *sql.Tx, id int64, respCode, message string, paidAt time.Time) (bool, error) {
	return m.markCompletedFn(ctx, tx, id, respCode, message, paidAt)
}
func (m *repoMock) MarkFailed(ctx context.Context, tx *sql.Tx, id int64, respCode, message string) (bool, error) {
	return m.markFailedFn(ctx, tx, id, respCode, message)
}
func (m *repoMock) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	return m.expirePendingFn(ctx, now)
}

// gwMock skips real signing; sigErr simulates a tampered callback.
type gwMock struct {
	sigErr error
	cb     *vnpayrepo.Callback
}

func (m *gwMock) BuildPayURL(req vnpayrepo.PayURLReq) (string, error) {
	return "https://pay.example/?vnp_TxnRef=" + req.TxnRef, nil
}
func (m *gwMock) ParseCallback(values url.Values) (*vnpayrepo.Callback, error) {
	if m.sigErr != nil {
		return nil, m.sigErr
	}
	return m.cb, nil
}

type ordersMock struct {
	order      *model.Order
	markedPaid []int64
}

func (m *ordersMock) Get(ctx context.Context, userID int64, code string) (*model.Order, error) {
	return m.order, nil
}
func (m *ordersMock) MarkPaidTx(ctx context.Context, tx *sql.Tx, orderID int64) error {
	m.markedPaid = append(m.markedPaid, orderID)
	return nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func policy() config.PaymentPolicy { return config.DefaultPolicy().Payment }

func payableOrder() *model.Order {
	return &model.Order{
		ID:        7,
		OrderCode: "ORD-20260301-ABC123",
		UserID:    42,
		Status:    model.OrderPendingPayment,
		Total:     decimal.NewFromInt(140000),
	}
}

func newDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestCreateAttempt_Success(t *testing.T) {
	db, mock := newDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	var stored *model.Payment
	m := &repoMock{
		hasPendingFn: func(ctx context.Context, tx *sql.Tx, orderID int64) (bool, error) {
			return false, nil
		},
		insertFn: func(ctx context.Context, tx *sql.Tx, p *model.Payment) (int64, error) {
			stored = p
			return 5, nil
		},
	}
	s := paymentsvc.New(db, m, &gwMock{}, &ordersMock{order: payableOrder()}, policy(), discard())

	a, err := s.CreateAttempt(context.Background(), 42, "ORD-20260301-ABC123", "10.0.0.1")
	require.NoError(t, err)
	require.Equal(t, model.PaymentPending, stored.Status)
	require.Len(t, stored.TxnRef, 16)
	require.True(t, stored.Amount.Equal(decimal.NewFromInt(140000)))
	require.WithinDuration(t, time.Now().Add(policy().AttemptTTL), stored.ExpiresAt, time.Minute)
	require.Contains(t, a.PayURL, stored.TxnRef)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAttempt_DuplicatePending(t *testing.T) {
	db, mock := newDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	m := &repoMock{
		hasPendingFn: func(ctx context.Context, tx *sql.Tx, orderID int64) (bool, error) {
			return true, nil
		},
	}
	s := paymentsvc.New(db, m, &gwMock{}, &ordersMock{order: payableOrder()}, policy(), discard())

	_, err := s.CreateAttempt(context.Background(), 42, "ORD-20260301-ABC123", "")
	require.Equal(t, paymentsvc.ErrDuplicatePending, paymentsvc.Code(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAttempt_LocksOrderBeforePendingCheck(t *testing.T) {
	db, mock := newDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	var calls []string
	m := &repoMock{
		lockOrderFn: func(ctx context.Context, tx *sql.Tx, orderID int64) error {
			calls = append(calls, "lock")
			require.EqualValues(t, 7, orderID)
			return nil
		},
		hasPendingFn: func(ctx context.Context, tx *sql.Tx, orderID int64) (bool, error) {
			calls = append(calls, "check")
			return false, nil
		},
		insertFn: func(ctx context.Context, tx *sql.Tx, p *model.Payment) (int64, error) {
			calls = append(calls, "insert")
			return 5, nil
		},
	}
	s := paymentsvc.New(db, m, &gwMock{}, &ordersMock{order: payableOrder()}, policy(), discard())

	_, err := s.CreateAttempt(context.Background(), 42, "ORD-20260301-ABC123", "")
	require.NoError(t, err)
	require.Equal(t, []string{"lock", "check", "insert"}, calls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAttempt_OrderNotPayable(t *testing.T) {
	o := payableOrder()
	o.Status = model.OrderPaid
	s := paymentsvc.New(nil, &repoMock{}, &gwMock{}, &ordersMock{order: o}, policy(), discard())

	_, err := s.CreateAttempt(context.Background(), 42, o.OrderCode, "")
	require.Equal(t, paymentsvc.ErrOrderNotPayable, paymentsvc.Code(err))
}

func TestReconcile_BadSignature(t *testing.T) {
	s := paymentsvc.New(nil, &repoMock{}, &gwMock{sigErr: vnpayrepo.ErrBadSignature}, &ordersMock{}, policy(), discard())

	_, err := s.Reconcile(context.Background(), url.Values{})
	require.Equal(t, paymentsvc.ErrInvalidSignature, paymentsvc.Code(err))
}

func TestReconcile_UnknownTxnRef(t *testing.T) {
	db, mock := newDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	m := &repoMock{
		getForUpdateFn: func(ctx context.Context, tx *sql.Tx, txnRef string) (*model.Payment, error) {
			return nil, paymentrepo.ErrNotFound
		},
	}
	gw := &gwMock{cb: &vnpayrepo.Callback{TxnRef: "UNKNOWN", ResponseCode: "00"}}
	s := paymentsvc.New(db, m, gw, &ordersMock{}, policy(), discard())

	_, err := s.Reconcile(context.Background(), url.Values{})
	require.Equal(t, paymentsvc.ErrNotFound, paymentsvc.Code(err))
}

func TestReconcile_Success(t *testing.T) {
	db, mock := newDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	orders := &ordersMock{}
	completed := false
	m := &repoMock{
		getForUpdateFn: func(ctx context.Context, tx *sql.Tx, txnRef string) (*model.Payment, error) {
			return &model.Payment{ID: 5, PaymentCode: "pc", OrderID: 7, TxnRef: txnRef, Status: model.PaymentPending}, nil
		},
		markCompletedFn: func(ctx context.Context, tx *sql.Tx, id int64, respCode, message string, paidAt time.Time) (bool, error) {
			require.Equal(t, "00", respCode)
			completed = true
			return true, nil
		},
	}
	gw := &gwMock{cb: &vnpayrepo.Callback{TxnRef: "ABCDEF", ResponseCode: "00", TransactionNo: "999"}}
	s := paymentsvc.New(db, m, gw, orders, policy(), discard())

	out, err := s.Reconcile(context.Background(), url.Values{})
	require.NoError(t, err)
	require.True(t, completed)
	require.Equal(t, model.PaymentCompleted, out.Status)
	require.False(t, out.Duplicate)
	require.Equal(t, []int64{7}, orders.markedPaid)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcile_DuplicateIsIdempotent(t *testing.T) {
	db, mock := newDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	orders := &ordersMock{}
	m := &repoMock{
		getForUpdateFn: func(ctx context.Context, tx *sql.Tx, txnRef string) (*model.Payment, error) {
			return &model.Payment{
				ID: 5, PaymentCode: "pc", OrderID: 7, TxnRef: txnRef,
				Status: model.PaymentCompleted, ResponseCode: "00",
			}, nil
		},
	}
	gw := &gwMock{cb: &vnpayrepo.Callback{TxnRef: "ABCDEF", ResponseCode: "00"}}
	s := paymentsvc.New(db, m, gw, orders, policy(), discard())

	out, err := s.Reconcile(context.Background(), url.Values{})
	require.NoError(t, err)
	require.True(t, out.Duplicate)
	require.Empty(t, orders.markedPaid, "side effects must not be re-applied")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcile_LateSuccessAfterExpiryRejected(t *testing.T) {
	db, mock := newDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	orders := &ordersMock{}
	m := &repoMock{
		getForUpdateFn: func(ctx context.Context, tx *sql.Tx, txnRef string) (*model.Payment, error) {
			return &model.Payment{ID: 5, OrderID: 7, TxnRef: txnRef, Status: model.PaymentExpired}, nil
		},
	}
	gw := &gwMock{cb: &vnpayrepo.Callback{TxnRef: "ABCDEF", ResponseCode: "00"}}
	s := paymentsvc.New(db, m, gw, orders, policy(), discard())

	out, err := s.Reconcile(context.Background(), url.Values{})
	require.NoError(t, err)
	require.True(t, out.Duplicate)
	require.Equal(t, model.PaymentExpired, out.Status)
	require.Empty(t, orders.markedPaid)
}

func TestReconcile_ProviderDecline(t *testing.T) {
	db, mock := newDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	orders := &ordersMock{}
	failed := false
	m := &repoMock{
		getForUpdateFn: func(ctx context.Context, tx *sql.Tx, txnRef string) (*model.Payment, error) {
			return &model.Payment{ID: 5, OrderID: 7, TxnRef: txnRef, Status: model.PaymentPending}, nil
		},
		markFailedFn: func(ctx context.Context, tx *sql.Tx, id int64, respCode, message string) (bool, error) {
			require.Equal(t, "24", respCode)
			failed = true
			return true, nil
		},
	}
	gw := &gwMock{cb: &vnpayrepo.Callback{TxnRef: "ABCDEF", ResponseCode: "24"}}
	s := paymentsvc.New(db, m, gw, orders, policy(), discard())

	out, err := s.Reconcile(context.Background(), url.Values{})
	require.NoError(t, err)
	require.True(t, failed)
	require.Equal(t, model.PaymentFailed, out.Status)
	require.Empty(t, orders.markedPaid, "a declined attempt must not pay the order")
}

func TestCancelPending(t *testing.T) {
	db, mock := newDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	m := &repoMock{
		getPendingFn: func(ctx context.Context, tx *sql.Tx, orderID int64) (*model.Payment, error) {
			return &model.Payment{ID: 5, OrderID: orderID, Status: model.PaymentPending}, nil
		},
		markFailedFn: func(ctx context.Context, tx *sql.Tx, id int64, respCode, message string) (bool, error) {
			require.Equal(t, "cancelled by user", message)
			return true, nil
		},
	}
	s := paymentsvc.New(db, m, &gwMock{}, &ordersMock{order: payableOrder()}, policy(), discard())

	require.NoError(t, s.CancelPending(context.Background(), 42, "ORD-20260301-ABC123"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelPending_NothingOpen(t *testing.T) {
	db, mock := newDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	m := &repoMock{
		getPendingFn: func(ctx context.Context, tx *sql.Tx, orderID int64) (*model.Payment, error) {
			return nil, paymentrepo.ErrNotFound
		},
	}
	s := paymentsvc.New(db, m, &gwMock{}, &ordersMock{order: payableOrder()}, policy(), discard())

	err := s.CancelPending(context.Background(), 42, "ORD-20260301-ABC123")
	require.Equal(t, paymentsvc.ErrNotPending, paymentsvc.Code(err))
}

func TestProcessExpired(t *testing.T) {
	m := &repoMock{
		expirePendingFn: func(ctx context.Context, now time.Time) (int64, error) {
			return 3, nil
		},
	}
	s := paymentsvc.New(nil, m, &gwMock{}, &ordersMock{}, policy(), discard())

	n, err := s.ProcessExpired(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
}
