package cartsvc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"librastore/config"
	"librastore/model"
	cartrepo "librastore/repository/cart"
	inventorysvc "librastore/service/inventory"

	"github.com/shopspring/decimal"
)

// errors used by controllers

type ErrCode string

const (
	ErrBookNotAvailable ErrCode = "BOOK_NOT_AVAILABLE"
	ErrNoStock          ErrCode = "INSUFFICIENT_STOCK"
	ErrQuantityCap      ErrCode = "QUANTITY_CAP_EXCEEDED"
	ErrNotInCart        ErrCode = "NOT_IN_CART"
	ErrInvalidQuantity  ErrCode = "INVALID_QUANTITY"
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

type Service interface {
	AddItem(ctx context.Context, userID, itemID int64, qty int) (*model.CartEntry, error)
	UpdateQuantity(ctx context.Context, userID, itemID int64, newQty int) (*model.CartEntry, error)
	RemoveItem(ctx context.Context, userID, itemID int64) error
	Clear(ctx context.Context, userID int64) error

	// Summarize validates without mutating: display view and pre-checkout gate.
	Summarize(ctx context.Context, userID int64) (*model.CartSummary, error)

	// Reconcile drops dead lines, clamps shrunk quantities and refreshes
	// prices. Returns human-readable notes on what changed.
	Reconcile(ctx context.Context, userID int64) ([]string, error)
}

type service struct {
	db  *sql.DB
	r   cartrepo.Repo
	inv inventorysvc.Service
	pol config.CommercePolicy
}

func New(db *sql.DB, r cartrepo.Repo, inv inventorysvc.Service, pol config.CommercePolicy) Service {
	return &service{db: db, r: r, inv: inv, pol: pol}
}

func (s *service) AddItem(ctx context.Context, userID, itemID int64, qty int) (*model.CartEntry, error) {
	if qty <= 0 {
		return nil, makeErr(ErrInvalidQuantity)
	}
	item, err := s.inv.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if !item.IsSellable || item.SellableStock <= 0 {
		return nil, makeErr(ErrBookNotAvailable)
	}

	existing, err := s.r.GetEntry(ctx, userID, itemID)
	if err != nil && !errors.Is(err, cartrepo.ErrNotFound) {
		return nil, err
	}

	combined := qty
	if existing != nil {
		combined += existing.Quantity
	}
	if int64(combined) > item.SellableStock {
		return nil, makeErrf(ErrNoStock, "requested %d, only %d left", combined, item.SellableStock)
	}
	if combined > s.pol.MaxQuantityPerLine {
		return nil, makeErrf(ErrQuantityCap, "at most %d per item", s.pol.MaxQuantityPerLine)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if existing != nil {
			return s.r.UpdateQuantity(ctx, tx, existing.ID, combined)
		}
		_, err := s.r.InsertEntry(ctx, tx, userID, itemID, qty, item.UnitPrice)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.r.GetEntry(ctx, userID, itemID)
}

func (s *service) UpdateQuantity(ctx context.Context, userID, itemID int64, newQty int) (*model.CartEntry, error) {
	if newQty <= 0 {
		return nil, makeErr(ErrInvalidQuantity)
	}
	entry, err := s.r.GetEntry(ctx, userID, itemID)
	if errors.Is(err, cartrepo.ErrNotFound) {
		return nil, makeErr(ErrNotInCart)
	}
	if err != nil {
		return nil, err
	}

	item, err := s.inv.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if !item.IsSellable {
		return nil, makeErr(ErrBookNotAvailable)
	}
	// Replacement, not additive: newQty stands alone against current stock.
	if int64(newQty) > item.SellableStock {
		return nil, makeErrf(ErrNoStock, "requested %d, only %d left", newQty, item.SellableStock)
	}
	if newQty > s.pol.MaxQuantityPerLine {
		return nil, makeErrf(ErrQuantityCap, "at most %d per item", s.pol.MaxQuantityPerLine)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		return s.r.UpdateQuantity(ctx, tx, entry.ID, newQty)
	})
	if err != nil {
		return nil, err
	}
	return s.r.GetEntry(ctx, userID, itemID)
}

func (s *service) RemoveItem(ctx context.Context, userID, itemID int64) error {
	err := s.r.DeleteByUserItem(ctx, userID, itemID)
	if errors.Is(err, cartrepo.ErrNotFound) {
		return makeErr(ErrNotInCart)
	}
	return err
}

func (s *service) Clear(ctx context.Context, userID int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.r.Clear(ctx, tx, userID)
	})
}

func (s *service) Summarize(ctx context.Context, userID int64) (*model.CartSummary, error) {
	entries, err := s.r.ListEntries(ctx, userID)
	if err != nil {
		return nil, err
	}
	sum := &model.CartSummary{Entries: entries, Subtotal: decimal.Zero, Valid: true}
	if len(entries) == 0 {
		return sum, nil
	}

	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ItemID)
	}
	items, err := s.inv.GetItems(ctx, ids)
	if err != nil {
		return nil, err
	}

	for _, e := range entries {
		sum.Subtotal = sum.Subtotal.Add(e.UnitPriceAtAdd.Mul(decimal.NewFromInt(int64(e.Quantity))))

		it, ok := items[e.ItemID]
		switch {
		case !ok || !it.IsSellable:
			sum.Valid = false
			sum.Problems = append(sum.Problems, fmt.Sprintf("%q is no longer for sale", e.Title))
		case it.SellableStock <= 0:
			sum.Valid = false
			sum.Problems = append(sum.Problems, fmt.Sprintf("%q is out of stock", e.Title))
		case int64(e.Quantity) > it.SellableStock:
			sum.Valid = false
			sum.Problems = append(sum.Problems,
				fmt.Sprintf("%q: only %d left, %d in cart", e.Title, it.SellableStock, e.Quantity))
		}
	}
	return sum, nil
}

func (s *service) Reconcile(ctx context.Context, userID int64) ([]string, error) {
	entries, err := s.r.ListEntries(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ItemID)
	}
	items, err := s.inv.GetItems(ctx, ids)
	if err != nil {
		return nil, err
	}

	var notes []string
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		for _, e := range entries {
			it, ok := items[e.ItemID]
			if !ok || !it.IsSellable || it.SellableStock <= 0 {
				if err := s.r.DeleteEntry(ctx, tx, e.ID); err != nil {
					return err
				}
				notes = append(notes, fmt.Sprintf("removed %q: no longer available", e.Title))
				continue
			}
			if int64(e.Quantity) > it.SellableStock {
				if err := s.r.UpdateQuantity(ctx, tx, e.ID, int(it.SellableStock)); err != nil {
					return err
				}
				notes = append(notes,
					fmt.Sprintf("reduced %q to %d (stock shrank)", e.Title, it.SellableStock))
			}
			if !e.UnitPriceAtAdd.Equal(it.UnitPrice) {
				if err := s.r.UpdatePrice(ctx, tx, e.ID, it.UnitPrice); err != nil {
					return err
				}
				notes = append(notes,
					fmt.Sprintf("price of %q changed from %s to %s", e.Title, e.UnitPriceAtAdd, it.UnitPrice))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return notes, nil
}

func (s *service) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
