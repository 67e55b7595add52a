package ordersvc_test

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"librastore/config"
	"librastore/model"
	orderrepo "librastore/repository/order"
	inventorysvc "librastore/service/inventory"
	ordersvc "librastore/service/order"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type repoMock struct {
	insertOrderFn   func(ctx context.Context, tx *sql.Tx, o *model.Order) (int64, error)
	insertItemsFn   func(ctx context.Context, tx *sql.Tx, orderID int64, items []model.OrderItem) error
	getByCodeFn     func(ctx context.Context, code string) (*model.Order, error)
	getByIDFn       func(ctx context.Context, id int64) (*model.Order, error)
	getForUpdateFn  func(ctx context.Context, tx *sql.Tx, code string) (*model.Order, error)
	listItemsFn     func(ctx context.Context, orderID int64) ([]model.OrderItem, error)
	listItemsTxFn   func(ctx context.Context, tx *sql.Tx, orderID int64) ([]model.OrderItem, error)
	listByUserFn    func(ctx context.Context, userID int64) ([]model.Order, error)
	listOpenFn      func(ctx context.Context) ([]model.Order, error)
	setStatusFn     func(ctx context.Context, tx *sql.Tx, id int64, from []model.OrderStatus, to model.OrderStatus) (bool, error)
	markPaidFn      func(ctx context.Context, tx *sql.Tx, id int64) (bool, error)
	stampShippingFn func(ctx context.Context, tx *sql.Tx, id int64, at time.Time) error
	stampDeliveryFn func(ctx context.Context, tx *sql.Tx, id int64, at time.Time) error
	setRefundedFn   func(ctx context.Context, tx *sql.Tx, id int64, payStatus model.OrderPaymentStatus, full bool) (bool, error)
}

var _ orderrepo.Repo = (*repoMock)(nil)

func (m *repoMock) InsertOrder(ctx context.Context, tx *sql.Tx, o *model.Order) (int64, error) {
	return m.insertOrderFn(ctx, tx, o)
}
func (m *repoMock) InsertItems(ctx context.Context, tx *sql.Tx, orderID int64, items []model.OrderItem) error {
	return m.insertItemsFn(ctx, tx, orderID, items)
}
func (m *repoMock) GetByCode(ctx context.Context, code string) (*model.Order, error) {
	return m.getByCodeFn(ctx, code)
}
func (m *repoMock) GetByID(ctx context.Context, id int64) (*model.Order, error) {
	return m.getByIDFn(ctx, id)
}
func (m *repoMock) GetForUpdate(ctx context.Context, tx *sql.Tx, code string) (*model.Order, error) {
	return m.getForUpdateFn(ctx, tx, code)
}
func (m *repoMock) ListItems(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	return m.listItemsFn(ctx, orderID)
}
func (m *repoMock) ListItemsTx(ctx context.Context, tx *sql.Tx, orderID int64) ([]model.OrderItem, error) {
	return m.listItemsTxFn(ctx, tx, orderID)
}
func (m *repoMock) ListByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	return m.listByUserFn(ctx, userID)
}
func (m *repoMock) ListOpen(ctx context.Context) ([]model.Order, error) { return m.listOpenFn(ctx) }
func (m *repoMock) SetStatus(ctx context.Context, tx *sql.Tx, id int64, from []model.OrderStatus, to model.OrderStatus) (bool, error) {
	return m.setStatusFn(ctx, tx, id, from, to)
}
func (m *repoMock) MarkPaid(ctx context.Context, tx *sql.Tx, id int64) (bool, error) {
	return m.markPaidFn(ctx, tx, id)
}
func (m *repoMock) StampShipping(ctx context.Context, tx *sql.Tx, id int64, at time.Time) error {
	return m.stampShippingFn(ctx, tx, id, at)
}
func (m *repoMock) StampDelivery(ctx context.Context, tx *sql.Tx, id int64, at time.Time) error {
	return m.stampDeliveryFn(ctx, tx, id, at)
}
func (m *repoMock) SetRefunded(ctx context.Context, tx *sql.Tx, id int64, payStatus model.OrderPaymentStatus, full bool) (bool, error) {
	return m.setRefundedFn(ctx, tx, id, payStatus, full)
}

type cartMock struct {
	entries []model.CartEntry
	cleared bool
}

func (m *cartMock) ListEntries(ctx context.Context, userID int64) ([]model.CartEntry, error) {
	return m.entries, nil
}
func (m *cartMock) Clear(ctx context.Context, tx *sql.Tx, userID int64) error {
	m.cleared = true
	return nil
}

type recMock struct{ notes []string }

func (m *recMock) Reconcile(ctx context.Context, userID int64) ([]string, error) {
	return m.notes, nil
}

// invMock counts reservations and releases and can fail a given item.
type invMock struct {
	failItem int64
	reserved map[int64]int
	released map[int64]int
}

func newInvMock() *invMock {
	return &invMock{reserved: map[int64]int{}, released: map[int64]int{}}
}

func (m *invMock) GetItem(ctx context.Context, itemID int64) (*model.CatalogItem, error) {
	return nil, nil
}
func (m *invMock) ListItems(ctx context.Context, limit, offset int) ([]model.CatalogItem, error) {
	return nil, nil
}

func (m *invMock) GetItems(ctx context.Context, itemIDs []int64) (map[int64]*model.CatalogItem, error) {
	return nil, nil
}
func (m *invMock) ReserveForLoan(ctx context.Context, tx *sql.Tx, itemID int64) error  { return nil }
func (m *invMock) ReleaseFromLoan(ctx context.Context, tx *sql.Tx, itemID int64) error { return nil }
func (m *invMock) ReserveForSale(ctx context.Context, tx *sql.Tx, itemID int64, qty int) error {
	if itemID == m.failItem {
		return &inventorysvc.StockError{ItemID: itemID, Requested: int64(qty), Available: 0}
	}
	m.reserved[itemID] += qty
	return nil
}
func (m *invMock) ReleaseFromSale(ctx context.Context, tx *sql.Tx, itemID int64, qty int) error {
	m.released[itemID] += qty
	return nil
}
func (m *invMock) SetLoanCopyTotals(ctx context.Context, itemID, total, available int64) error {
	return nil
}

func price(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func newDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func ship() ordersvc.ShippingInfo {
	return ordersvc.ShippingInfo{Name: "A", Phone: "0800", Address: "Street 1"}
}

func TestCheckout_TotalsAndClear(t *testing.T) {
	db, mock := newDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	cart := &cartMock{entries: []model.CartEntry{
		{ItemID: 1, Title: "Vol 1", Quantity: 4, UnitPriceAtAdd: price(200000)},
		{ItemID: 2, Title: "Vol 2", Quantity: 2, UnitPriceAtAdd: price(200000)},
	}}
	inv := newInvMock()

	var stored *model.Order
	m := &repoMock{
		insertOrderFn: func(ctx context.Context, tx *sql.Tx, o *model.Order) (int64, error) {
			stored = o
			return 77, nil
		},
		insertItemsFn: func(ctx context.Context, tx *sql.Tx, orderID int64, items []model.OrderItem) error {
			require.Equal(t, int64(77), orderID)
			require.Len(t, items, 2)
			return nil
		},
	}
	s := ordersvc.New(db, m, cart, &recMock{}, inv, config.DefaultPolicy().Commerce)

	o, err := s.Checkout(context.Background(), 42, ship())
	require.NoError(t, err)
	require.Equal(t, int64(77), o.ID)
	require.Equal(t, model.OrderPendingPayment, o.Status)
	require.True(t, strings.HasPrefix(o.OrderCode, "ORD-"))

	// Subtotal 1,200,000: free shipping, 5% volume discount, 10% tax.
	require.True(t, stored.Subtotal.Equal(price(1200000)), "subtotal %s", stored.Subtotal)
	require.True(t, stored.ShippingFee.Equal(price(0)), "shipping %s", stored.ShippingFee)
	require.True(t, stored.Discount.Equal(price(60000)), "discount %s", stored.Discount)
	require.True(t, stored.Tax.Equal(price(120000)), "tax %s", stored.Tax)
	require.True(t, stored.Total.Equal(price(1260000)), "total %s", stored.Total)

	require.Equal(t, 4, inv.reserved[1])
	require.Equal(t, 2, inv.reserved[2])
	require.True(t, cart.cleared)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckout_SmallOrderPaysShipping(t *testing.T) {
	db, mock := newDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	cart := &cartMock{entries: []model.CartEntry{
		{ItemID: 1, Title: "Vol 1", Quantity: 1, UnitPriceAtAdd: price(100000)},
	}}
	var stored *model.Order
	m := &repoMock{
		insertOrderFn: func(ctx context.Context, tx *sql.Tx, o *model.Order) (int64, error) {
			stored = o
			return 1, nil
		},
		insertItemsFn: func(ctx context.Context, tx *sql.Tx, orderID int64, items []model.OrderItem) error {
			return nil
		},
	}
	s := ordersvc.New(db, m, cart, &recMock{}, newInvMock(), config.DefaultPolicy().Commerce)

	_, err := s.Checkout(context.Background(), 42, ship())
	require.NoError(t, err)
	// 100000 + 30000 shipping + 10000 tax, no discount.
	require.True(t, stored.ShippingFee.Equal(price(30000)))
	require.True(t, stored.Discount.Equal(price(0)))
	require.True(t, stored.Total.Equal(price(140000)))
}

func TestCheckout_EmptyCart(t *testing.T) {
	s := ordersvc.New(nil, &repoMock{}, &cartMock{}, &recMock{}, newInvMock(), config.DefaultPolicy().Commerce)
	_, err := s.Checkout(context.Background(), 42, ship())
	require.Equal(t, ordersvc.ErrEmptyCart, ordersvc.Code(err))
}

func TestCheckout_StockFailureRollsBack(t *testing.T) {
	db, mock := newDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	cart := &cartMock{entries: []model.CartEntry{
		{ItemID: 1, Title: "Vol 1", Quantity: 1, UnitPriceAtAdd: price(100000)},
		{ItemID: 2, Title: "Vol 2", Quantity: 1, UnitPriceAtAdd: price(100000)},
	}}
	inv := newInvMock()
	inv.failItem = 2

	m := &repoMock{
		insertOrderFn: func(ctx context.Context, tx *sql.Tx, o *model.Order) (int64, error) {
			t.Fatal("order must not be persisted when a reservation fails")
			return 0, nil
		},
	}
	s := ordersvc.New(db, m, cart, &recMock{}, inv, config.DefaultPolicy().Commerce)

	_, err := s.Checkout(context.Background(), 42, ship())
	require.Equal(t, inventorysvc.ErrNoStock, inventorysvc.Code(err))
	require.False(t, cart.cleared)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCancel_RestocksOnce(t *testing.T) {
	db, mock := newDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	inv := newInvMock()
	m := &repoMock{
		getForUpdateFn: func(ctx context.Context, tx *sql.Tx, code string) (*model.Order, error) {
			return &model.Order{ID: 7, OrderCode: code, UserID: 42, Status: model.OrderPaid}, nil
		},
		setStatusFn: func(ctx context.Context, tx *sql.Tx, id int64, from []model.OrderStatus, to model.OrderStatus) (bool, error) {
			require.Equal(t, model.OrderCancelled, to)
			return true, nil
		},
		listItemsTxFn: func(ctx context.Context, tx *sql.Tx, orderID int64) ([]model.OrderItem, error) {
			return []model.OrderItem{{ItemID: 1, Quantity: 3}}, nil
		},
	}
	s := ordersvc.New(db, m, &cartMock{}, &recMock{}, inv, config.DefaultPolicy().Commerce)

	require.NoError(t, s.Cancel(context.Background(), 42, "ORD-X"))
	require.Equal(t, 3, inv.released[1])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCancel_SecondAttemptDoesNotRestock(t *testing.T) {
	db, mock := newDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	inv := newInvMock()
	m := &repoMock{
		getForUpdateFn: func(ctx context.Context, tx *sql.Tx, code string) (*model.Order, error) {
			return &model.Order{ID: 7, UserID: 42, Status: model.OrderCancelled}, nil
		},
		setStatusFn: func(ctx context.Context, tx *sql.Tx, id int64, from []model.OrderStatus, to model.OrderStatus) (bool, error) {
			return false, nil
		},
	}
	s := ordersvc.New(db, m, &cartMock{}, &recMock{}, inv, config.DefaultPolicy().Commerce)

	err := s.Cancel(context.Background(), 42, "ORD-X")
	require.Equal(t, ordersvc.ErrInvalidTransition, ordersvc.Code(err))
	require.Empty(t, inv.released)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCancel_NotOwner(t *testing.T) {
	db, mock := newDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	m := &repoMock{
		getForUpdateFn: func(ctx context.Context, tx *sql.Tx, code string) (*model.Order, error) {
			return &model.Order{ID: 7, UserID: 99, Status: model.OrderPaid}, nil
		},
	}
	s := ordersvc.New(db, m, &cartMock{}, &recMock{}, newInvMock(), config.DefaultPolicy().Commerce)

	err := s.Cancel(context.Background(), 42, "ORD-X")
	require.Equal(t, ordersvc.ErrNotOwner, ordersvc.Code(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkPaidTx_Idempotent(t *testing.T) {
	db, mock := newDB(t)
	mock.ExpectBegin()

	m := &repoMock{
		markPaidFn: func(ctx context.Context, tx *sql.Tx, id int64) (bool, error) {
			return false, nil
		},
		getByIDFn: func(ctx context.Context, id int64) (*model.Order, error) {
			return &model.Order{ID: id, Status: model.OrderPaid, PaymentStatus: model.PayCompleted}, nil
		},
	}
	s := ordersvc.New(db, m, &cartMock{}, &recMock{}, newInvMock(), config.DefaultPolicy().Commerce)

	tx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, s.MarkPaidTx(context.Background(), tx, 7))
}

func TestMarkPaidTx_WrongState(t *testing.T) {
	db, mock := newDB(t)
	mock.ExpectBegin()

	m := &repoMock{
		markPaidFn: func(ctx context.Context, tx *sql.Tx, id int64) (bool, error) {
			return false, nil
		},
		getByIDFn: func(ctx context.Context, id int64) (*model.Order, error) {
			return &model.Order{ID: id, Status: model.OrderCancelled}, nil
		},
	}
	s := ordersvc.New(db, m, &cartMock{}, &recMock{}, newInvMock(), config.DefaultPolicy().Commerce)

	tx, err := db.Begin()
	require.NoError(t, err)
	err = s.MarkPaidTx(context.Background(), tx, 7)
	require.Equal(t, ordersvc.ErrInvalidTransition, ordersvc.Code(err))
}

func TestAdvance_ForwardOnly(t *testing.T) {
	db, mock := newDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	m := &repoMock{
		getForUpdateFn: func(ctx context.Context, tx *sql.Tx, code string) (*model.Order, error) {
			return &model.Order{ID: 7, Status: model.OrderShipped}, nil
		},
	}
	s := ordersvc.New(db, m, &cartMock{}, &recMock{}, newInvMock(), config.DefaultPolicy().Commerce)

	err := s.Advance(context.Background(), "ORD-X", model.OrderProcessing, nil)
	require.Equal(t, ordersvc.ErrInvalidTransition, ordersvc.Code(err))
}

func TestAdvance_StampsDelivery(t *testing.T) {
	db, mock := newDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	when := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	var stamped time.Time
	m := &repoMock{
		getForUpdateFn: func(ctx context.Context, tx *sql.Tx, code string) (*model.Order, error) {
			return &model.Order{ID: 7, Status: model.OrderShipped}, nil
		},
		setStatusFn: func(ctx context.Context, tx *sql.Tx, id int64, from []model.OrderStatus, to model.OrderStatus) (bool, error) {
			require.Equal(t, model.OrderDelivered, to)
			return true, nil
		},
		stampDeliveryFn: func(ctx context.Context, tx *sql.Tx, id int64, at time.Time) error {
			stamped = at
			return nil
		},
	}
	s := ordersvc.New(db, m, &cartMock{}, &recMock{}, newInvMock(), config.DefaultPolicy().Commerce)

	require.NoError(t, s.Advance(context.Background(), "ORD-X", model.OrderDelivered, &when))
	require.Equal(t, when, stamped)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvance_RejectsNonFulfilmentTarget(t *testing.T) {
	s := ordersvc.New(nil, &repoMock{}, &cartMock{}, &recMock{}, newInvMock(), config.DefaultPolicy().Commerce)
	err := s.Advance(context.Background(), "ORD-X", model.OrderCancelled, nil)
	require.Equal(t, ordersvc.ErrInvalidTransition, ordersvc.Code(err))
}

func TestRefund_PartialKeepsStock(t *testing.T) {
	db, mock := newDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	inv := newInvMock()
	m := &repoMock{
		getForUpdateFn: func(ctx context.Context, tx *sql.Tx, code string) (*model.Order, error) {
			return &model.Order{ID: 7, Status: model.OrderDelivered, PaymentStatus: model.PayCompleted, Total: price(500000)}, nil
		},
		setRefundedFn: func(ctx context.Context, tx *sql.Tx, id int64, payStatus model.OrderPaymentStatus, full bool) (bool, error) {
			require.Equal(t, model.PayPartiallyRefunded, payStatus)
			require.False(t, full)
			return true, nil
		},
	}
	s := ordersvc.New(db, m, &cartMock{}, &recMock{}, inv, config.DefaultPolicy().Commerce)

	require.NoError(t, s.Refund(context.Background(), "ORD-X", price(100000), "late delivery", false))
	require.Empty(t, inv.released)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefund_FullRestocks(t *testing.T) {
	db, mock := newDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	inv := newInvMock()
	m := &repoMock{
		getForUpdateFn: func(ctx context.Context, tx *sql.Tx, code string) (*model.Order, error) {
			return &model.Order{ID: 7, Status: model.OrderDelivered, PaymentStatus: model.PayCompleted, Total: price(500000)}, nil
		},
		setRefundedFn: func(ctx context.Context, tx *sql.Tx, id int64, payStatus model.OrderPaymentStatus, full bool) (bool, error) {
			require.Equal(t, model.PayRefunded, payStatus)
			require.True(t, full)
			return true, nil
		},
		listItemsTxFn: func(ctx context.Context, tx *sql.Tx, orderID int64) ([]model.OrderItem, error) {
			return []model.OrderItem{{ItemID: 1, Quantity: 2}}, nil
		},
	}
	s := ordersvc.New(db, m, &cartMock{}, &recMock{}, inv, config.DefaultPolicy().Commerce)

	require.NoError(t, s.Refund(context.Background(), "ORD-X", price(500000), "order lost", true))
	require.Equal(t, 2, inv.released[1])
}

func TestRefund_Validation(t *testing.T) {
	s := ordersvc.New(nil, &repoMock{}, &cartMock{}, &recMock{}, newInvMock(), config.DefaultPolicy().Commerce)

	err := s.Refund(context.Background(), "ORD-X", price(0), "reason", false)
	require.Equal(t, ordersvc.ErrInvalidAmount, ordersvc.Code(err))

	err = s.Refund(context.Background(), "ORD-X", price(100), "", false)
	require.Equal(t, ordersvc.ErrInvalidAmount, ordersvc.Code(err))
}

func TestRefund_UnpaidRejected(t *testing.T) {
	db, mock := newDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	m := &repoMock{
		getForUpdateFn: func(ctx context.Context, tx *sql.Tx, code string) (*model.Order, error) {
			return &model.Order{ID: 7, Status: model.OrderPendingPayment, PaymentStatus: model.PayUnpaid, Total: price(500000)}, nil
		},
	}
	s := ordersvc.New(db, m, &cartMock{}, &recMock{}, newInvMock(), config.DefaultPolicy().Commerce)

	err := s.Refund(context.Background(), "ORD-X", price(100000), "whatever", false)
	require.Equal(t, ordersvc.ErrNotPaid, ordersvc.Code(err))
}

func TestGet_Ownership(t *testing.T) {
	m := &repoMock{
		getByCodeFn: func(ctx context.Context, code string) (*model.Order, error) {
			return &model.Order{ID: 7, OrderCode: code, UserID: 99}, nil
		},
		listItemsFn: func(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
			return nil, nil
		},
	}
	s := ordersvc.New(nil, m, &cartMock{}, &recMock{}, newInvMock(), config.DefaultPolicy().Commerce)

	_, err := s.Get(context.Background(), 42, "ORD-X")
	require.Equal(t, ordersvc.ErrNotOwner, ordersvc.Code(err))

	// userID 0 is the administrative bypass.
	o, err := s.Get(context.Background(), 0, "ORD-X")
	require.NoError(t, err)
	require.Equal(t, int64(99), o.UserID)
}
