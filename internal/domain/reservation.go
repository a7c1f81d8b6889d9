package domain

import (
	"fmt"
	"strings"
	"time"
)

type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "PENDING"
	ReservationStatusApproved  ReservationStatus = "APPROVED"
	ReservationStatusRejected  ReservationStatus = "REJECTED"
	ReservationStatusCancelled ReservationStatus = "CANCELLED"
)

// ActiveReservationStatuses are the statuses that block a second reservation for the same pair.
var ActiveReservationStatuses = []ReservationStatus{ReservationStatusPending, ReservationStatusApproved}

var reservationTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationStatusPending:  {ReservationStatusApproved, ReservationStatusRejected, ReservationStatusCancelled},
	ReservationStatusApproved: {ReservationStatusCancelled},
}

// CanTransitionTo reports whether the reservation state machine allows s -> next.
func (s ReservationStatus) CanTransitionTo(next ReservationStatus) bool {
	for _, allowed := range reservationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s ReservationStatus) IsActive() bool {
	return s == ReservationStatusPending || s == ReservationStatusApproved
}

func (s ReservationStatus) IsTerminal() bool {
	return len(reservationTransitions[s]) == 0
}

// Reservation is a student's request for a book, processed by library staff.
type Reservation struct {
	ID              int64
	BookID          int64
	StudentID       int64
	ReservationDate time.Time
	Status          ReservationStatus
	ProcessedDate   *time.Time
	ProcessedBy     string
}

// Transition moves the reservation to next and stamps the processing actor.
func (r *Reservation) Transition(next ReservationStatus, at time.Time, actor string) error {
	if !r.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: reservation %d is %s, cannot become %s",
			ErrInvalidReservationStatus, r.ID, r.Status, next)
	}
	r.Status = next
	processed := at
	r.ProcessedDate = &processed
	r.ProcessedBy = actor
	return nil
}

type ReservationAction string

const (
	ReservationActionApprove ReservationAction = "APPROVE"
	ReservationActionReject  ReservationAction = "REJECT"
)

// ParseReservationAction accepts actions case-insensitively.
func ParseReservationAction(s string) (ReservationAction, error) {
	switch ReservationAction(strings.ToUpper(strings.TrimSpace(s))) {
	case ReservationActionApprove:
		return ReservationActionApprove, nil
	case ReservationActionReject:
		return ReservationActionReject, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
	}
}

// Target is the status an action moves a pending reservation to.
func (a ReservationAction) Target() ReservationStatus {
	if a == ReservationActionApprove {
		return ReservationStatusApproved
	}
	return ReservationStatusRejected
}
