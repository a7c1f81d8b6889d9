package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/cimillas/library-lending/internal/domain"
)

// CreateReservation checks for an active reservation of the same pair and
// inserts under one critical section, so concurrent duplicates cannot both land.
func (s *Store) CreateReservation(ctx context.Context, r domain.Reservation) (domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.Status.IsActive() {
		for _, existing := range s.reservations {
			if existing.BookID == r.BookID && existing.StudentID == r.StudentID && existing.Status.IsActive() {
				return domain.Reservation{}, fmt.Errorf("%w: reservation %d", domain.ErrDuplicateReservation, existing.ID)
			}
		}
	}
	s.nextReservationID++
	r.ID = s.nextReservationID
	s.reservations[r.ID] = r
	s.record(ctx, func() { delete(s.reservations, r.ID) })
	return r, nil
}

func (s *Store) GetReservation(_ context.Context, id int64) (domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return domain.Reservation{}, fmt.Errorf("%w: %d", domain.ErrReservationNotFound, id)
	}
	return r, nil
}

func (s *Store) GetReservationForUpdate(ctx context.Context, id int64) (domain.Reservation, error) {
	if err := s.lock(ctx, reservationKey(id)); err != nil {
		return domain.Reservation{}, err
	}
	return s.GetReservation(ctx, id)
}

// FindReservations with ForUpdate locks each match, then re-checks it, so rows
// changed while waiting for their lock drop out of the result.
func (s *Store) FindReservations(ctx context.Context, filter domain.ReservationFilter) ([]domain.Reservation, error) {
	matches := s.matchReservations(filter)
	if !filter.ForUpdate || txFromContext(ctx) == nil {
		return matches, nil
	}

	locked := matches[:0]
	for _, r := range matches {
		if err := s.lock(ctx, reservationKey(r.ID)); err != nil {
			return nil, err
		}
		current, err := s.GetReservation(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		if reservationMatches(current, filter) {
			locked = append(locked, current)
		}
	}
	return locked, nil
}

func (s *Store) matchReservations(filter domain.ReservationFilter) []domain.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Reservation
	for _, r := range s.reservations {
		if reservationMatches(r, filter) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.ReservationDate.Equal(b.ReservationDate) {
			if filter.NewestFirst {
				return a.ReservationDate.After(b.ReservationDate)
			}
			return a.ReservationDate.Before(b.ReservationDate)
		}
		if filter.NewestFirst {
			return a.ID > b.ID
		}
		return a.ID < b.ID
	})
	return out
}

func reservationMatches(r domain.Reservation, f domain.ReservationFilter) bool {
	if f.BookID != 0 && r.BookID != f.BookID {
		return false
	}
	if f.StudentID != 0 && r.StudentID != f.StudentID {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, r.Status) {
		return false
	}
	return true
}

func (s *Store) UpdateReservation(ctx context.Context, r domain.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.reservations[r.ID]
	if !ok {
		return fmt.Errorf("%w: %d", domain.ErrReservationNotFound, r.ID)
	}
	if r.Status.IsActive() && !prev.Status.IsActive() {
		for id, other := range s.reservations {
			if id != r.ID && other.BookID == r.BookID && other.StudentID == r.StudentID && other.Status.IsActive() {
				return fmt.Errorf("%w: reservation %d", domain.ErrDuplicateReservation, id)
			}
		}
	}
	s.reservations[r.ID] = r
	s.record(ctx, func() { s.reservations[prev.ID] = prev })
	return nil
}
