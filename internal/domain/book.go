package domain

import (
	"fmt"
	"strings"
	"time"
)

type BookStatus string

const (
	BookStatusAvailable   BookStatus = "AVAILABLE"
	BookStatusLoaned      BookStatus = "LOANED"
	BookStatusUnavailable BookStatus = "UNAVAILABLE"
)

// Book is a title with a countable pool of fungible copies.
type Book struct {
	ID                int64
	Title             string
	Author            string
	ISBN              string
	Genre             string
	TotalQuantity     int
	AvailableQuantity int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Status is derived from the copy counters and never stored independently.
func (b Book) Status() BookStatus {
	return StatusFor(b.AvailableQuantity)
}

// StatusFor maps an availability reading to a book status.
func StatusFor(available int) BookStatus {
	switch {
	case available > 0:
		return BookStatusAvailable
	case available == 0:
		return BookStatusLoaned
	default:
		return BookStatusUnavailable
	}
}

// OnLoan is the number of copies currently issued.
func (b Book) OnLoan() int {
	return b.TotalQuantity - b.AvailableQuantity
}

// Validate rejects counter combinations that must never be persisted.
func (b Book) Validate() error {
	if b.TotalQuantity < 1 {
		return ErrInvalidQuantity
	}
	if b.AvailableQuantity < 0 || b.AvailableQuantity > b.TotalQuantity {
		return fmt.Errorf("%w: book %d available=%d total=%d",
			ErrInvalidAvailability, b.ID, b.AvailableQuantity, b.TotalQuantity)
	}
	return nil
}

// ValidateDetails checks the catalog fields required for a persisted book.
func (b Book) ValidateDetails() error {
	if strings.TrimSpace(b.Title) == "" || strings.TrimSpace(b.Author) == "" || strings.TrimSpace(b.ISBN) == "" {
		return ErrInvalidBook
	}
	return nil
}
