package domain

import "errors"

// Kind classifies a failure for callers deciding how to surface or retry it.
type Kind int

const (
	KindUnexpected Kind = iota
	KindInvalid
	KindNotFound
	KindBusinessRule
	KindUnauthorized
	KindDependencyUnavailable
	KindTransient
	KindIllegalState
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindNotFound:
		return "not_found"
	case KindBusinessRule:
		return "business_rule"
	case KindUnauthorized:
		return "unauthorized"
	case KindDependencyUnavailable:
		return "dependency_unavailable"
	case KindTransient:
		return "transient"
	case KindIllegalState:
		return "illegal_state"
	default:
		return "unexpected"
	}
}

// Error is a classified domain failure. Sentinels below are compared with errors.Is.
type Error struct {
	Kind Kind
	Code string
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

var (
	ErrInvalidID       = newError(KindInvalid, "invalid_id", "invalid id")
	ErrInvalidQuantity = newError(KindInvalid, "invalid_quantity", "total copies must be at least 1")
	ErrInvalidAction   = newError(KindInvalid, "invalid_action", "invalid reservation action")
	ErrInvalidBook     = newError(KindInvalid, "invalid_book", "title, author and isbn are required")

	ErrBookNotFound        = newError(KindNotFound, "book_not_found", "book not found")
	ErrReservationNotFound = newError(KindNotFound, "reservation_not_found", "reservation not found")
	ErrLoanNotFound        = newError(KindNotFound, "loan_not_found", "loan not found")
	ErrStudentNotFound     = newError(KindNotFound, "student_not_found", "student not found")

	ErrBookNotAvailable         = newError(KindBusinessRule, "book_not_available", "no available copies for this book")
	ErrLoanLimitExceeded        = newError(KindBusinessRule, "loan_limit_exceeded", "maximum of 5 active loans allowed")
	ErrDuplicateReservation     = newError(KindBusinessRule, "duplicate_reservation", "an active reservation already exists for this book")
	ErrInvalidReservationStatus = newError(KindBusinessRule, "invalid_reservation_status", "reservation is not in a state that allows this action")
	ErrInvalidLoanStatus        = newError(KindBusinessRule, "invalid_loan_status", "loan is not in a state that allows this action")
	ErrAlreadyReturned          = newError(KindBusinessRule, "already_returned", "book already returned")
	ErrDuplicateISBN            = newError(KindBusinessRule, "duplicate_isbn", "a book with this isbn already exists")
	ErrCopiesOnLoan             = newError(KindBusinessRule, "copies_on_loan", "total copies cannot drop below copies currently on loan")
	ErrSweepInProgress          = newError(KindBusinessRule, "sweep_in_progress", "an overdue sweep is already running")

	ErrForbidden = newError(KindUnauthorized, "forbidden", "actor is not allowed to perform this action")
	ErrNotOwner  = newError(KindUnauthorized, "not_owner", "students can only act on their own reservations")

	ErrDirectoryUnavailable = newError(KindDependencyUnavailable, "directory_unavailable", "student directory unavailable")

	ErrLockTimeout      = newError(KindTransient, "lock_timeout", "timed out waiting for a row lock")
	ErrConcurrentUpdate = newError(KindTransient, "concurrent_update", "concurrent update conflict")

	ErrInvalidAvailability   = newError(KindIllegalState, "invalid_availability", "available copies must be between 0 and total copies")
	ErrInventoryInconsistent = newError(KindIllegalState, "inventory_inconsistent", "available copies would exceed total copies")
)

// KindOf reports the classification of err. Unclassified errors are KindUnexpected.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnexpected
}

// CodeOf returns the machine-readable code of err, or "internal_error".
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return "internal_error"
}

// IsTransient reports whether err is worth retrying after a backoff.
func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}
