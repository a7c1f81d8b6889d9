package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/cimillas/library-lending/internal/domain"
)

func (s *Store) LockStudent(ctx context.Context, studentID int64) error {
	return s.lock(ctx, studentKey(studentID))
}

func (s *Store) CountLoans(_ context.Context, studentID int64, status domain.LoanStatus) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, l := range s.loans {
		if l.StudentID == studentID && l.Status == status {
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateLoan(ctx context.Context, loan domain.Loan) (domain.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextLoanID++
	loan.ID = s.nextLoanID
	s.loans[loan.ID] = loan
	s.record(ctx, func() { delete(s.loans, loan.ID) })
	return loan, nil
}

func (s *Store) GetLoan(_ context.Context, id int64) (domain.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.loans[id]
	if !ok {
		return domain.Loan{}, fmt.Errorf("%w: %d", domain.ErrLoanNotFound, id)
	}
	return l, nil
}

func (s *Store) GetLoanForUpdate(ctx context.Context, id int64) (domain.Loan, error) {
	if err := s.lock(ctx, loanKey(id)); err != nil {
		return domain.Loan{}, err
	}
	return s.GetLoan(ctx, id)
}

func (s *Store) FindLoans(_ context.Context, filter domain.LoanFilter) ([]domain.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Loan
	for _, l := range s.loans {
		if filter.BookID != 0 && l.BookID != filter.BookID {
			continue
		}
		if filter.StudentID != 0 && l.StudentID != filter.StudentID {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, l.Status) {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateLoan(ctx context.Context, loan domain.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.loans[loan.ID]
	if !ok {
		return fmt.Errorf("%w: %d", domain.ErrLoanNotFound, loan.ID)
	}
	s.loans[loan.ID] = loan
	s.record(ctx, func() { s.loans[prev.ID] = prev })
	return nil
}

// MarkOverdue never waits: a loan whose row lock is held, typically by a
// return in flight, is left for the next sweep.
func (s *Store) MarkOverdue(ctx context.Context, now time.Time) ([]domain.Loan, error) {
	var marked []domain.Loan
	err := s.WithTx(ctx, func(txCtx context.Context) error {
		tx := txFromContext(txCtx)
		for _, id := range s.overdueCandidates(now) {
			if err := txCtx.Err(); err != nil {
				return err
			}
			if !s.locks.tryAcquire(loanKey(id), tx) {
				continue
			}

			s.mu.Lock()
			loan, ok := s.loans[id]
			if ok && loan.IsOverdueAt(now) {
				prev := loan
				if err := loan.MarkOverdue(); err != nil {
					s.mu.Unlock()
					return err
				}
				s.loans[id] = loan
				s.record(txCtx, func() { s.loans[prev.ID] = prev })
				marked = append(marked, loan)
			}
			s.mu.Unlock()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return marked, nil
}

func (s *Store) overdueCandidates(now time.Time) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []int64
	for id, l := range s.loans {
		if l.IsOverdueAt(now) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}
