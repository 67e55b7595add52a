package loansvc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"librastore/config"
	"librastore/model"
	loanrepo "librastore/repository/loan"
	"librastore/service/fine"
	inventorysvc "librastore/service/inventory"

	"github.com/shopspring/decimal"
)

// errors used by controllers

type ErrCode string

const (
	ErrDuplicateRequest  ErrCode = "DUPLICATE_LOAN_REQUEST"
	ErrMaxLoansExceeded  ErrCode = "MAX_LOANS_EXCEEDED"
	ErrBookNotAvailable  ErrCode = "BOOK_NOT_AVAILABLE"
	ErrNotFound          ErrCode = "LOAN_NOT_FOUND"
	ErrNotOwner          ErrCode = "NOT_OWNER"
	ErrInvalidTransition ErrCode = "INVALID_TRANSITION"
	ErrReasonRequired    ErrCode = "REASON_REQUIRED"
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

type ReturnParams struct {
	LibrarianID int64
	Notes       string
	// CustomFine, when set, always wins over the calculated amount; it is the
	// librarian's escape hatch for condoning or raising a fine.
	CustomFine        *decimal.Decimal
	Damaged           bool
	DamageDescription string
}

type Service interface {
	Request(ctx context.Context, userID, itemID int64, notes string) (*model.Loan, error)
	Approve(ctx context.Context, librarianID, loanID int64, customPeriodDays *int) (*model.Loan, error)
	Reject(ctx context.Context, librarianID, loanID int64, reason string) error
	MarkBorrowed(ctx context.Context, librarianID, loanID int64) error
	Cancel(ctx context.Context, userID, loanID int64) error
	Return(ctx context.Context, loanID int64, p ReturnParams) (*model.Loan, error)
	MyLoans(ctx context.Context, userID int64) ([]model.Loan, error)

	// SweepOverdue flips due BORROWED loans to OVERDUE and refreshes the
	// running fine. Per-loan failures are logged and skipped.
	SweepOverdue(ctx context.Context, now time.Time) (int, error)
}

type service struct {
	db  *sql.DB
	r   loanrepo.Repo
	inv inventorysvc.Service
	pol config.LoanPolicy
	log *slog.Logger
}

func New(db *sql.DB, r loanrepo.Repo, inv inventorysvc.Service, pol config.LoanPolicy, log *slog.Logger) Service {
	return &service{db: db, r: r, inv: inv, pol: pol, log: log}
}

func (s *service) Request(ctx context.Context, userID, itemID int64, notes string) (*model.Loan, error) {
	dup, err := s.r.HasActiveOnItem(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}
	if dup {
		return nil, makeErr(ErrDuplicateRequest)
	}

	active, err := s.r.CountActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	if active >= s.pol.MaxActiveLoansPerUser {
		return nil, makeErr(ErrMaxLoansExceeded)
	}

	item, err := s.inv.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if !item.IsLendable || item.AvailableLoanCopies <= 0 {
		return nil, makeErr(ErrBookNotAvailable)
	}

	l := &model.Loan{
		UserID: userID,
		ItemID: itemID,
		Status: model.LoanRequested,
		// Provisional; approval re-stamps it.
		DueDate:    time.Now().UTC().AddDate(0, 0, s.pol.DefaultPeriodDays),
		FineAmount: decimal.Zero,
		Notes:      notes,
	}
	if l.ID, err = s.r.Insert(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *service) Approve(ctx context.Context, librarianID, loanID int64, customPeriodDays *int) (_ *model.Loan, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	l, err := s.r.GetForUpdate(ctx, tx, loanID)
	if errors.Is(err, loanrepo.ErrNotFound) {
		return nil, makeErr(ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if l.Status != model.LoanRequested {
		return nil, makeErr(ErrInvalidTransition)
	}

	// Availability may have changed since the request; the ledger debit is
	// the authoritative re-check.
	if err = s.inv.ReserveForLoan(ctx, tx, l.ItemID); err != nil {
		if inventorysvc.Code(err) == inventorysvc.ErrOutOfCopies {
			return nil, makeErr(ErrBookNotAvailable)
		}
		return nil, err
	}

	period := s.pol.DefaultPeriodDays
	if customPeriodDays != nil && *customPeriodDays > 0 {
		period = *customPeriodDays
	}
	now := time.Now().UTC()
	due := now.AddDate(0, 0, period)

	ok, err := s.r.SetApproved(ctx, tx, loanID, librarianID, due, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, makeErr(ErrInvalidTransition)
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}

	l.Status = model.LoanApproved
	l.DueDate = due
	l.ApprovedBy = &librarianID
	l.ApprovedAt = &now
	return l, nil
}

func (s *service) Reject(ctx context.Context, librarianID, loanID int64, reason string) (err error) {
	if reason == "" {
		return makeErr(ErrReasonRequired)
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

	// No inventory effect: nothing was reserved at request time.
	ok, err := s.r.SetCancelled(ctx, tx, loanID,
		fmt.Sprintf("rejected by librarian %d: %s", librarianID, reason))
	if err != nil {
		return err
	}
	if !ok {
		return s.transitionErr(ctx, loanID)
	}
	return tx.Commit()
}

func (s *service) MarkBorrowed(ctx context.Context, librarianID, loanID int64) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	ok, err := s.r.SetBorrowed(ctx, tx, loanID, time.Now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return s.transitionErr(ctx, loanID)
	}
	return tx.Commit()
}

func (s *service) Cancel(ctx context.Context, userID, loanID int64) (err error) {
	l, err := s.r.GetByID(ctx, loanID)
	if errors.Is(err, loanrepo.ErrNotFound) {
		return makeErr(ErrNotFound)
	}
	if err != nil {
		return err
	}
	if l.UserID != userID {
		return makeErr(ErrNotOwner)
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

	ok, err := s.r.SetCancelled(ctx, tx, loanID, "cancelled by requester")
	if err != nil {
		return err
	}
	if !ok {
		return makeErr(ErrInvalidTransition)
	}
	return tx.Commit()
}

func (s *service) Return(ctx context.Context, loanID int64, p ReturnParams) (_ *model.Loan, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	l, err := s.r.GetForUpdate(ctx, tx, loanID)
	if errors.Is(err, loanrepo.ErrNotFound) {
		return nil, makeErr(ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if l.Status != model.LoanBorrowed && l.Status != model.LoanOverdue {
		return nil, makeErr(ErrInvalidTransition)
	}

	now := time.Now().UTC()
	fineAmount := fine.Calculate(l.DueDate, now, s.pol.Fine)
	if p.CustomFine != nil {
		fineAmount = *p.CustomFine
	}

	note := p.Notes
	if p.Damaged {
		note = note + "\n" + "damage reported: " + p.DamageDescription
	}

	ok, err := s.r.SetReturned(ctx, tx, loanID, p.LibrarianID, now, fineAmount, note)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, makeErr(ErrInvalidTransition)
	}

	if err = s.inv.ReleaseFromLoan(ctx, tx, l.ItemID); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}

	l.Status = model.LoanReturned
	l.ReturnDate = &now
	l.ReturnedTo = &p.LibrarianID
	l.FineAmount = fineAmount
	l.FinePaid = false
	return l, nil
}

func (s *service) MyLoans(ctx context.Context, userID int64) ([]model.Loan, error) {
	return s.r.ListByUser(ctx, userID)
}

func (s *service) SweepOverdue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.r.ListDue(ctx, now)
	if err != nil {
		return 0, err
	}

	// Due BORROWED loans flip to OVERDUE; loans already OVERDUE get their
	// stored fine refreshed to the amount as of now.
	updated := 0
	for _, l := range due {
		amount := fine.Calculate(l.DueDate, now, s.pol.Fine)
		ok, err := s.r.SetOverdue(ctx, l.ID, amount)
		if err != nil {
			s.log.Error("overdue sweep: loan skipped", "loan_id", l.ID, "err", err)
			continue
		}
		if ok {
			updated++
		}
	}
	return updated, nil
}

// transitionErr distinguishes a missing loan from a wrong-state loan after a
// guarded update matched nothing.
func (s *service) transitionErr(ctx context.Context, loanID int64) error {
	if _, err := s.r.GetByID(ctx, loanID); errors.Is(err, loanrepo.ErrNotFound) {
		return makeErr(ErrNotFound)
	}
	return makeErr(ErrInvalidTransition)
}
