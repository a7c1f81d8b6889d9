package domain

// BookFilter narrows catalog listings. Zero values match everything.
type BookFilter struct {
	TitleContains string
}

// ReservationFilter narrows reservation lookups. Zero values match everything.
type ReservationFilter struct {
	BookID    int64
	StudentID int64
	Statuses  []ReservationStatus
	// NewestFirst orders by reservation date descending instead of ascending.
	NewestFirst bool
	// ForUpdate locks the matched rows until the enclosing transaction ends.
	ForUpdate bool
}

// LoanFilter narrows loan lookups. Zero values match everything.
type LoanFilter struct {
	BookID    int64
	StudentID int64
	Statuses  []LoanStatus
}
