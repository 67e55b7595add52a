package loansvc

import (
	"time"

	"librastore/model"
)

type Urgency string

const (
	UrgencyLow    Urgency = "LOW"
	UrgencyMedium Urgency = "MEDIUM"
	UrgencyHigh   Urgency = "HIGH"
)

// UrgencyOf classifies an active loan for librarian triage. Derived from
// status and due date only; never persisted and never drives a transition.
func UrgencyOf(l *model.Loan, now time.Time) Urgency {
	switch l.Status {
	case model.LoanOverdue:
		if now.Sub(l.DueDate) >= 3*24*time.Hour {
			return UrgencyHigh
		}
		return UrgencyMedium
	case model.LoanBorrowed:
		if now.After(l.DueDate) {
			return UrgencyMedium
		}
		if l.DueDate.Sub(now) <= 2*24*time.Hour {
			return UrgencyMedium
		}
	}
	return UrgencyLow
}

// RequiresAction reports requests sitting unapproved past the review window.
func RequiresAction(l *model.Loan, now time.Time) (string, bool) {
	switch l.Status {
	case model.LoanRequested:
		if now.Sub(l.CreatedAt) > 48*time.Hour {
			return "review and approve or reject the request", true
		}
	case model.LoanOverdue:
		return "contact the borrower about the overdue book", true
	}
	return "", false
}
