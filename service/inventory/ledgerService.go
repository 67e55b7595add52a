package inventorysvc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	catalogrepo "librastore/repository/catalog"

	"librastore/model"
	"librastore/util/metrics"
)

// errors used by controllers and calling services

type ErrCode string

const (
	ErrOutOfCopies  ErrCode = "OUT_OF_COPIES"
	ErrOverRelease  ErrCode = "OVER_RELEASE"
	ErrNoStock      ErrCode = "INSUFFICIENT_STOCK"
	ErrInvalidRange ErrCode = "INVALID_RANGE"
	ErrItemNotFound ErrCode = "ITEM_NOT_FOUND"
)

type codedError struct{ code ErrCode }

func (e codedError) Error() string { return string(e.code) }
func (e codedError) Code() ErrCode { return e.code }
func makeErr(c ErrCode) error      { return codedError{code: c} }

// StockError carries how much was asked for versus what remained so callers
// can render "only N left".
type StockError struct {
	ItemID    int64
	Requested int64
	Available int64
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %d: requested %d, available %d",
		e.ItemID, e.Requested, e.Available)
}
func (e *StockError) Code() ErrCode { return ErrNoStock }

// Code extracts error code
func Code(err error) ErrCode {
	var ce interface{ Code() ErrCode }
	if errors.As(err, &ce) {
		return ce.Code()
	}
	return ""
}

// Service is the inventory ledger: the only path that mutates the sellable
// and loan-copy counters. Mutations take the caller's *sql.Tx so the debit
// and the record it backs commit or roll back together.
type Service interface {
	GetItem(ctx context.Context, itemID int64) (*model.CatalogItem, error)
	GetItems(ctx context.Context, itemIDs []int64) (map[int64]*model.CatalogItem, error)
	ListItems(ctx context.Context, limit, offset int) ([]model.CatalogItem, error)

	ReserveForLoan(ctx context.Context, tx *sql.Tx, itemID int64) error
	ReleaseFromLoan(ctx context.Context, tx *sql.Tx, itemID int64) error
	ReserveForSale(ctx context.Context, tx *sql.Tx, itemID int64, qty int) error
	ReleaseFromSale(ctx context.Context, tx *sql.Tx, itemID int64, qty int) error

	// SetLoanCopyTotals is an administrative override; it opens its own tx.
	SetLoanCopyTotals(ctx context.Context, itemID, total, available int64) error
}

type service struct {
	db  *sql.DB
	r   catalogrepo.Repo
	log *slog.Logger
}

func New(db *sql.DB, r catalogrepo.Repo, log *slog.Logger) Service {
	return &service{db: db, r: r, log: log}
}

func (s *service) GetItem(ctx context.Context, itemID int64) (*model.CatalogItem, error) {
	it, err := s.r.GetItem(ctx, itemID)
	if errors.Is(err, catalogrepo.ErrNotFound) {
		return nil, makeErr(ErrItemNotFound)
	}
	return it, err
}

func (s *service) GetItems(ctx context.Context, itemIDs []int64) (map[int64]*model.CatalogItem, error) {
	return s.r.GetItems(ctx, itemIDs)
}

func (s *service) ListItems(ctx context.Context, limit, offset int) ([]model.CatalogItem, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.r.List(ctx, limit, offset)
}

func (s *service) ReserveForLoan(ctx context.Context, tx *sql.Tx, itemID int64) error {
	ok, err := s.r.ReserveForLoan(ctx, tx, itemID)
	if err != nil {
		return err
	}
	if !ok {
		metrics.LedgerConflicts.WithLabelValues("reserve_loan", "out_of_copies").Inc()
		return makeErr(ErrOutOfCopies)
	}
	return nil
}

func (s *service) ReleaseFromLoan(ctx context.Context, tx *sql.Tx, itemID int64) error {
	ok, err := s.r.ReleaseFromLoan(ctx, tx, itemID)
	if err != nil {
		return err
	}
	if !ok {
		// Should never trigger under correct orchestration: it means a copy
		// was released twice or totals were shrunk underneath a live loan.
		metrics.LedgerConflicts.WithLabelValues("release_loan", "over_release").Inc()
		s.log.Error("loan release exceeds total copies", "item_id", itemID)
		return makeErr(ErrOverRelease)
	}
	return nil
}

func (s *service) ReserveForSale(ctx context.Context, tx *sql.Tx, itemID int64, qty int) error {
	if qty <= 0 {
		return errors.New("qty must be > 0")
	}
	ok, err := s.r.ReserveForSale(ctx, tx, itemID, qty)
	if err != nil {
		return err
	}
	if !ok {
		metrics.LedgerConflicts.WithLabelValues("reserve_sale", "insufficient_stock").Inc()
		it, err := s.r.GetItem(ctx, itemID)
		if errors.Is(err, catalogrepo.ErrNotFound) {
			return makeErr(ErrItemNotFound)
		}
		if err != nil {
			return err
		}
		avail := it.SellableStock
		if !it.IsSellable {
			avail = 0
		}
		return &StockError{ItemID: itemID, Requested: int64(qty), Available: avail}
	}
	return nil
}

func (s *service) ReleaseFromSale(ctx context.Context, tx *sql.Tx, itemID int64, qty int) error {
	if qty <= 0 {
		return errors.New("qty must be > 0")
	}
	err := s.r.ReleaseFromSale(ctx, tx, itemID, qty)
	if errors.Is(err, catalogrepo.ErrNotFound) {
		return makeErr(ErrItemNotFound)
	}
	return err
}

func (s *service) SetLoanCopyTotals(ctx context.Context, itemID, total, available int64) (err error) {
	if total < 0 || available < 0 || available > total {
		return makeErr(ErrInvalidRange)
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

	ok, err := s.r.SetLoanCopyTotals(ctx, tx, itemID, total, available)
	if err != nil {
		return err
	}
	if !ok {
		return makeErr(ErrItemNotFound)
	}
	return tx.Commit()
}
