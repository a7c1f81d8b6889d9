package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cimillas/library-lending/internal/auth"
	"github.com/cimillas/library-lending/internal/clock"
	"github.com/cimillas/library-lending/internal/domain"
)

// InventoryService is the only writer of a book's copy counters.
type InventoryService struct {
	repo   BookRepository
	clock  clock.Clock
	logger *slog.Logger
}

func NewInventoryService(repo BookRepository, clk clock.Clock, logger *slog.Logger) *InventoryService {
	if logger == nil {
		logger = slog.Default()
	}
	return &InventoryService{repo: repo, clock: clk, logger: logger}
}

// AcquireCopy consumes one copy of the book. It joins the caller's
// transaction when ctx carries one, so the decrement commits or rolls back
// together with whatever the caller writes next.
func (s *InventoryService) AcquireCopy(ctx context.Context, bookID int64) (domain.Book, error) {
	return s.mutate(ctx, bookID, func(b *domain.Book) error {
		if b.AvailableQuantity < 1 {
			return fmt.Errorf("%w: book %d", domain.ErrBookNotAvailable, b.ID)
		}
		b.AvailableQuantity--
		return nil
	})
}

// ReleaseCopy puts one copy back. Going above the total is a consistency
// failure and is never clamped.
func (s *InventoryService) ReleaseCopy(ctx context.Context, bookID int64) (domain.Book, error) {
	return s.mutate(ctx, bookID, func(b *domain.Book) error {
		if b.AvailableQuantity+1 > b.TotalQuantity {
			s.logger.ErrorContext(ctx, "release would exceed total copies",
				slog.Int64("book_id", b.ID),
				slog.Int("available", b.AvailableQuantity),
				slog.Int("total", b.TotalQuantity))
			return fmt.Errorf("%w: book %d available=%d total=%d",
				domain.ErrInventoryInconsistent, b.ID, b.AvailableQuantity, b.TotalQuantity)
		}
		b.AvailableQuantity++
		return nil
	})
}

// Validate is checked before every persist of a book.
func (s *InventoryService) Validate(book domain.Book) error {
	return book.Validate()
}

func (s *InventoryService) mutate(ctx context.Context, bookID int64, change func(*domain.Book) error) (domain.Book, error) {
	if bookID <= 0 {
		return domain.Book{}, domain.ErrInvalidID
	}

	var result domain.Book
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		book, err := s.repo.GetBookForUpdate(txCtx, bookID)
		if err != nil {
			return err
		}
		if err := change(&book); err != nil {
			return err
		}
		book.UpdatedAt = s.clock.Now()
		if err := s.Validate(book); err != nil {
			return err
		}
		if err := s.repo.SaveBook(txCtx, book); err != nil {
			return err
		}
		result = book
		return nil
	})
	if err != nil {
		return domain.Book{}, err
	}
	return result, nil
}

type NewBook struct {
	Title         string
	Author        string
	ISBN          string
	Genre         string
	TotalQuantity int
}

// CreateBook adds a title to the catalog with every copy on the shelf.
func (s *InventoryService) CreateBook(ctx context.Context, actor auth.Principal, in NewBook) (domain.Book, error) {
	if err := actor.RequireStaff(); err != nil {
		return domain.Book{}, err
	}

	now := s.clock.Now()
	book := domain.Book{
		Title:             strings.TrimSpace(in.Title),
		Author:            strings.TrimSpace(in.Author),
		ISBN:              strings.TrimSpace(in.ISBN),
		Genre:             strings.TrimSpace(in.Genre),
		TotalQuantity:     in.TotalQuantity,
		AvailableQuantity: in.TotalQuantity,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := book.ValidateDetails(); err != nil {
		return domain.Book{}, err
	}
	if err := s.Validate(book); err != nil {
		return domain.Book{}, err
	}

	created, err := s.repo.CreateBook(ctx, book)
	if err != nil {
		return domain.Book{}, err
	}
	s.logger.InfoContext(ctx, "book created",
		slog.Int64("book_id", created.ID), slog.String("isbn", created.ISBN), slog.String("actor", actor.Subject))
	return created, nil
}

type BookUpdate struct {
	Title         string
	Author        string
	ISBN          string
	Genre         string
	TotalQuantity int
}

// UpdateBook edits catalog details under the book's row lock. A change of
// the total shifts availability by the same delta so loaned copies stay loaned.
func (s *InventoryService) UpdateBook(ctx context.Context, actor auth.Principal, id int64, in BookUpdate) (domain.Book, error) {
	if err := actor.RequireStaff(); err != nil {
		return domain.Book{}, err
	}

	book, err := s.mutate(ctx, id, func(b *domain.Book) error {
		if in.TotalQuantity < 1 {
			return domain.ErrInvalidQuantity
		}
		if in.TotalQuantity < b.OnLoan() {
			return fmt.Errorf("%w: book %d has %d on loan", domain.ErrCopiesOnLoan, b.ID, b.OnLoan())
		}
		b.Title = strings.TrimSpace(in.Title)
		b.Author = strings.TrimSpace(in.Author)
		b.ISBN = strings.TrimSpace(in.ISBN)
		b.Genre = strings.TrimSpace(in.Genre)
		b.AvailableQuantity += in.TotalQuantity - b.TotalQuantity
		b.TotalQuantity = in.TotalQuantity
		return b.ValidateDetails()
	})
	if err != nil {
		return domain.Book{}, err
	}
	s.logger.InfoContext(ctx, "book updated", slog.Int64("book_id", book.ID), slog.String("actor", actor.Subject))
	return book, nil
}

func (s *InventoryService) GetBook(ctx context.Context, id int64) (domain.Book, error) {
	if id <= 0 {
		return domain.Book{}, domain.ErrInvalidID
	}
	return s.repo.GetBook(ctx, id)
}

func (s *InventoryService) ListBooks(ctx context.Context, filter domain.BookFilter) ([]domain.Book, error) {
	filter.TitleContains = strings.TrimSpace(filter.TitleContains)
	return s.repo.ListBooks(ctx, filter)
}

func (s *InventoryService) IsAvailable(ctx context.Context, id int64) (bool, error) {
	book, err := s.GetBook(ctx, id)
	if err != nil {
		return false, err
	}
	return book.AvailableQuantity > 0, nil
}
