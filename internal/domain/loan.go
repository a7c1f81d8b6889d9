package domain

import (
	"fmt"
	"time"
)

type LoanStatus string

const (
	LoanStatusActive   LoanStatus = "ACTIVE"
	LoanStatusOverdue  LoanStatus = "OVERDUE"
	LoanStatusReturned LoanStatus = "RETURNED"
)

const (
	DefaultLoanPeriod     = 14 * 24 * time.Hour
	DefaultMaxActiveLoans = 5
)

// Loan is one copy of a book issued to a student. Loan rows are never deleted.
type Loan struct {
	ID                int64
	BookID            int64
	StudentID         int64
	CheckOutDate      time.Time
	DueDate           time.Time
	ReturnDate        *time.Time
	Status            LoanStatus
	LibrarianCheckout string
	LibrarianCheckin  string
}

// NewLoan builds an ACTIVE loan starting at now.
func NewLoan(bookID, studentID int64, now time.Time, period time.Duration, actor string) Loan {
	return Loan{
		BookID:            bookID,
		StudentID:         studentID,
		CheckOutDate:      now,
		DueDate:           now.Add(period),
		Status:            LoanStatusActive,
		LibrarianCheckout: actor,
	}
}

// IsOverdueAt reports whether an ACTIVE loan has passed its due date.
func (l Loan) IsOverdueAt(now time.Time) bool {
	return l.Status == LoanStatusActive && l.DueDate.Before(now)
}

// MarkReturned closes the loan. Returning is legal from ACTIVE and OVERDUE.
func (l *Loan) MarkReturned(at time.Time, actor string) error {
	if l.Status == LoanStatusReturned {
		return fmt.Errorf("%w: loan %d", ErrAlreadyReturned, l.ID)
	}
	returned := at
	l.ReturnDate = &returned
	l.Status = LoanStatusReturned
	l.LibrarianCheckin = actor
	return nil
}

// MarkOverdue promotes an ACTIVE loan to OVERDUE.
func (l *Loan) MarkOverdue() error {
	if l.Status != LoanStatusActive {
		return fmt.Errorf("%w: loan %d is %s", ErrInvalidLoanStatus, l.ID, l.Status)
	}
	l.Status = LoanStatusOverdue
	return nil
}
