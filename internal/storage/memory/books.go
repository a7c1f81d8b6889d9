package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cimillas/library-lending/internal/domain"
)

func (s *Store) GetBook(_ context.Context, id int64) (domain.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[id]
	if !ok {
		return domain.Book{}, fmt.Errorf("%w: %d", domain.ErrBookNotFound, id)
	}
	return b, nil
}

func (s *Store) GetBookForUpdate(ctx context.Context, id int64) (domain.Book, error) {
	if err := s.lock(ctx, bookKey(id)); err != nil {
		return domain.Book{}, err
	}
	return s.GetBook(ctx, id)
}

func (s *Store) ListBooks(_ context.Context, filter domain.BookFilter) ([]domain.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	needle := strings.ToLower(filter.TitleContains)
	out := make([]domain.Book, 0, len(s.books))
	for _, b := range s.books {
		if needle != "" && !strings.Contains(strings.ToLower(b.Title), needle) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateBook(ctx context.Context, book domain.Book) (domain.Book, error) {
	if err := book.Validate(); err != nil {
		return domain.Book{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isbnTaken(book.ISBN, 0) {
		return domain.Book{}, fmt.Errorf("%w: %s", domain.ErrDuplicateISBN, book.ISBN)
	}
	s.nextBookID++
	book.ID = s.nextBookID
	s.books[book.ID] = book
	s.record(ctx, func() { delete(s.books, book.ID) })
	return book, nil
}

func (s *Store) SaveBook(ctx context.Context, book domain.Book) error {
	if err := book.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.books[book.ID]
	if !ok {
		return fmt.Errorf("%w: %d", domain.ErrBookNotFound, book.ID)
	}
	if s.isbnTaken(book.ISBN, book.ID) {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateISBN, book.ISBN)
	}
	book.CreatedAt = prev.CreatedAt
	s.books[book.ID] = book
	s.record(ctx, func() { s.books[prev.ID] = prev })
	return nil
}

func (s *Store) isbnTaken(isbn string, except int64) bool {
	for id, b := range s.books {
		if id != except && b.ISBN == isbn {
			return true
		}
	}
	return false
}
