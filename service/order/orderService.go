package ordersvc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"librastore/config"
	"librastore/model"
	orderrepo "librastore/repository/order"
	inventorysvc "librastore/service/inventory"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// errors used by controllers

type ErrCode string

const (
	ErrNotFound          ErrCode = "ORDER_NOT_FOUND"
	ErrNotOwner          ErrCode = "NOT_OWNER"
	ErrEmptyCart         ErrCode = "EMPTY_CART"
	ErrCartInvalid       ErrCode = "CART_INVALID"
	ErrInvalidTransition ErrCode = "INVALID_TRANSITION"
	ErrNotPaid           ErrCode = "NOT_PAID"
	ErrInvalidAmount     ErrCode = "INVALID_AMOUNT"
)

type codedError struct {
	code ErrCode
	msg  string
}

func (e codedError) Error() string {
	if e.msg != "" {
		return e.msg
	}
	return string(e.code)
}
func (e codedError) Code() ErrCode { return e.code }

func makeErr(c ErrCode) error { return codedError{code: c} }

func makeErrf(c ErrCode, f string, a ...any) error {
	return codedError{code: c, msg: fmt.Sprintf(f, a...)}
}

// Code extracts error code
func Code(err error) ErrCode {
	var ce interface{ Code() ErrCode }
	if errors.As(err, &ce) {
		return ce.Code()
	}
	return ""
}

type ShippingInfo struct {
	Name    string
	Phone   string
	Address string
	Notes   string
}

// CartAccess is the slice of the cart the checkout transaction needs.
type CartAccess interface {
	ListEntries(ctx context.Context, userID int64) ([]model.CartEntry, error)
	Clear(ctx context.Context, tx *sql.Tx, userID int64) error
}

// Reconciler refreshes cart lines against live inventory right before
// checkout commits to prices and quantities.
type Reconciler interface {
	Reconcile(ctx context.Context, userID int64) ([]string, error)
}

type Service interface {
	// Checkout snapshots the cart into an immutable order, debiting sellable
	// stock for every line in the same transaction. No partial debits survive
	// a failure.
	Checkout(ctx context.Context, userID int64, ship ShippingInfo) (*model.Order, error)

	Get(ctx context.Context, userID int64, code string) (*model.Order, error)
	ListMine(ctx context.Context, userID int64) ([]model.Order, error)

	// Cancel restocks every line and terminal-states the order. userID 0 is
	// an administrative cancel with no ownership check.
	Cancel(ctx context.Context, userID int64, code string) error

	// MarkPaidTx joins the payment adapter's transaction. Idempotent: an
	// already-PAID order is a no-op.
	MarkPaidTx(ctx context.Context, tx *sql.Tx, orderID int64) error

	// Advance moves the order forward only (PROCESSING, SHIPPED, DELIVERED);
	// at defaults to now for the shipped/delivered stamps.
	Advance(ctx context.Context, code string, to model.OrderStatus, at *time.Time) error

	Refund(ctx context.Context, code string, amount decimal.Decimal, reason string, restoreStock bool) error

	// AttentionReport is advisory triage only; it never feeds the state machine.
	AttentionReport(ctx context.Context, now time.Time) ([]Attention, error)
}

type service struct {
	db    *sql.DB
	r     orderrepo.Repo
	cartR CartAccess
	rec   Reconciler
	inv   inventorysvc.Service
	pol   config.CommercePolicy
}

func New(db *sql.DB, r orderrepo.Repo, cartR CartAccess, rec Reconciler, inv inventorysvc.Service, pol config.CommercePolicy) Service {
	return &service{db: db, r: r, cartR: cartR, rec: rec, inv: inv, pol: pol}
}

func (s *service) Checkout(ctx context.Context, userID int64, ship ShippingInfo) (o *model.Order, err error) {
	// Re-validate against live stock and refresh stale prices; do not trust a
	// summary the caller fetched earlier.
	if _, err := s.rec.Reconcile(ctx, userID); err != nil {
		return nil, err
	}
	entries, err := s.cartR.ListEntries(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, makeErr(ErrEmptyCart)
	}

	order := s.buildOrder(userID, entries, ship)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, e := range entries {
		if err = s.inv.ReserveForSale(ctx, tx, e.ItemID, e.Quantity); err != nil {
			return nil, err
		}
	}

	orderID, err := s.r.InsertOrder(ctx, tx, order)
	if err != nil {
		return nil, err
	}
	if err = s.r.InsertItems(ctx, tx, orderID, order.Items); err != nil {
		return nil, err
	}
	if err = s.cartR.Clear(ctx, tx, userID); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}

	order.ID = orderID
	return order, nil
}

func (s *service) buildOrder(userID int64, entries []model.CartEntry, ship ShippingInfo) *model.Order {
	items := make([]model.OrderItem, 0, len(entries))
	subtotal := decimal.Zero
	for _, e := range entries {
		line := e.UnitPriceAtAdd.Mul(decimal.NewFromInt(int64(e.Quantity)))
		items = append(items, model.OrderItem{
			ItemID:        e.ItemID,
			TitleSnapshot: e.Title,
			Quantity:      e.Quantity,
			PricePerUnit:  e.UnitPriceAtAdd,
			LineTotal:     line,
		})
		subtotal = subtotal.Add(line)
	}

	shipping := s.pol.ShippingFlatFee
	if subtotal.GreaterThanOrEqual(s.pol.FreeShipThreshold) {
		shipping = decimal.Zero
	}
	tax := subtotal.Mul(s.pol.TaxPercent).Div(decimal.NewFromInt(100))
	discount := decimal.Zero
	if subtotal.GreaterThanOrEqual(s.pol.DiscountThreshold) {
		discount = subtotal.Mul(s.pol.DiscountPercent).Div(decimal.NewFromInt(100))
	}
	total := subtotal.Add(shipping).Add(tax).Sub(discount)

	return &model.Order{
		OrderCode:       newOrderCode(),
		UserID:          userID,
		Status:          model.OrderPendingPayment,
		PaymentStatus:   model.PayUnpaid,
		Subtotal:        subtotal,
		ShippingFee:     shipping,
		Discount:        discount,
		Tax:             tax,
		Total:           total,
		ShippingName:    ship.Name,
		ShippingPhone:   ship.Phone,
		ShippingAddress: ship.Address,
		Notes:           ship.Notes,
		Items:           items,
		CreatedAt:       time.Now().UTC(),
	}
}

func newOrderCode() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("ORD-%s-%s", time.Now().UTC().Format("20060102"), suffix)
}

func (s *service) Get(ctx context.Context, userID int64, code string) (*model.Order, error) {
	o, err := s.r.GetByCode(ctx, code)
	if errors.Is(err, orderrepo.ErrNotFound) {
		return nil, makeErr(ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if userID != 0 && o.UserID != userID {
		return nil, makeErr(ErrNotOwner)
	}
	if o.Items, err = s.r.ListItems(ctx, o.ID); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *service) ListMine(ctx context.Context, userID int64) ([]model.Order, error) {
	return s.r.ListByUser(ctx, userID)
}

func (s *service) Cancel(ctx context.Context, userID int64, code string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	o, err := s.r.GetForUpdate(ctx, tx, code)
	if errors.Is(err, orderrepo.ErrNotFound) {
		return makeErr(ErrNotFound)
	}
	if err != nil {
		return err
	}
	if userID != 0 && o.UserID != userID {
		return makeErr(ErrNotOwner)
	}

	ok, err := s.r.SetStatus(ctx, tx, o.ID,
		[]model.OrderStatus{model.OrderPendingPayment, model.OrderPaid}, model.OrderCancelled)
	if err != nil {
		return err
	}
	if !ok {
		return makeErrf(ErrInvalidTransition, "cannot cancel order in status %s", o.Status)
	}

	// Stock is released exactly once: the guarded status flip above is the
	// gate, so a second cancel never reaches this point.
	items, err := s.r.ListItemsTx(ctx, tx, o.ID)
	if err != nil {
		return err
	}
	for _, it := range items {
		if err = s.inv.ReleaseFromSale(ctx, tx, it.ItemID, it.Quantity); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *service) MarkPaidTx(ctx context.Context, tx *sql.Tx, orderID int64) error {
	ok, err := s.r.MarkPaid(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	o, err := s.r.GetByID(ctx, orderID)
	if errors.Is(err, orderrepo.ErrNotFound) {
		return makeErr(ErrNotFound)
	}
	if err != nil {
		return err
	}
	if o.Status == model.OrderPaid {
		// Duplicate paid notification; nothing to do.
		return nil
	}
	return makeErrf(ErrInvalidTransition, "cannot mark order %s paid", o.Status)
}

var statusRank = map[model.OrderStatus]int{
	model.OrderPendingPayment: 0,
	model.OrderPaid:           1,
	model.OrderProcessing:     2,
	model.OrderShipped:        3,
	model.OrderDelivered:      4,
}

func (s *service) Advance(ctx context.Context, code string, to model.OrderStatus, at *time.Time) (err error) {
	if to != model.OrderProcessing && to != model.OrderShipped && to != model.OrderDelivered {
		return makeErrf(ErrInvalidTransition, "%s is not a fulfilment status", to)
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

	o, err := s.r.GetForUpdate(ctx, tx, code)
	if errors.Is(err, orderrepo.ErrNotFound) {
		return makeErr(ErrNotFound)
	}
	if err != nil {
		return err
	}

	cur, known := statusRank[o.Status]
	if !known || statusRank[to] <= cur {
		return makeErrf(ErrInvalidTransition, "cannot move %s -> %s", o.Status, to)
	}

	ok, err := s.r.SetStatus(ctx, tx, o.ID, []model.OrderStatus{o.Status}, to)
	if err != nil {
		return err
	}
	if !ok {
		return makeErrf(ErrInvalidTransition, "cannot move %s -> %s", o.Status, to)
	}

	stamp := time.Now().UTC()
	if at != nil {
		stamp = at.UTC()
	}
	if to == model.OrderShipped {
		if err = s.r.StampShipping(ctx, tx, o.ID, stamp); err != nil {
			return err
		}
	}
	if to == model.OrderDelivered {
		if err = s.r.StampDelivery(ctx, tx, o.ID, stamp); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *service) Refund(ctx context.Context, code string, amount decimal.Decimal, reason string, restoreStock bool) (err error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return makeErr(ErrInvalidAmount)
	}
	if reason == "" {
		return makeErrf(ErrInvalidAmount, "refund reason is required")
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

	o, err := s.r.GetForUpdate(ctx, tx, code)
	if errors.Is(err, orderrepo.ErrNotFound) {
		return makeErr(ErrNotFound)
	}
	if err != nil {
		return err
	}
	if o.PaymentStatus != model.PayCompleted && o.PaymentStatus != model.PayPartiallyRefunded {
		return makeErr(ErrNotPaid)
	}

	full := amount.GreaterThanOrEqual(o.Total)
	payStatus := model.PayPartiallyRefunded
	if full {
		payStatus = model.PayRefunded
	}
	ok, err := s.r.SetRefunded(ctx, tx, o.ID, payStatus, full)
	if err != nil {
		return err
	}
	if !ok {
		return makeErr(ErrNotPaid)
	}

	// Restocking is an explicit choice: a damaged-book refund may leave the
	// counters alone.
	if restoreStock {
		items, err := s.r.ListItemsTx(ctx, tx, o.ID)
		if err != nil {
			return err
		}
		for _, it := range items {
			if err = s.inv.ReleaseFromSale(ctx, tx, it.ItemID, it.Quantity); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func (s *service) AttentionReport(ctx context.Context, now time.Time) ([]Attention, error) {
	open, err := s.r.ListOpen(ctx)
	if err != nil {
		return nil, err
	}
	return AttentionFor(open, now), nil
}
