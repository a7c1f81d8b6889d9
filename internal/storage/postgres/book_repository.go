package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5"

	"github.com/cimillas/library-lending/internal/domain"
)

const bookColumns = `id, title, author, isbn, genre, total_quantity, available_quantity, created_at, updated_at`

type BookRepository struct {
	db *db
}

func (r *BookRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.withTx(ctx, fn)
}

func (r *BookRepository) GetBook(ctx context.Context, id int64) (domain.Book, error) {
	return r.get(ctx, `SELECT `+bookColumns+` FROM books WHERE id = $1`, id)
}

func (r *BookRepository) GetBookForUpdate(ctx context.Context, id int64) (domain.Book, error) {
	return r.get(ctx, `SELECT `+bookColumns+` FROM books WHERE id = $1 FOR UPDATE`, id)
}

func (r *BookRepository) get(ctx context.Context, query string, id int64) (domain.Book, error) {
	b, err := scanBook(r.db.q(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Book{}, fmt.Errorf("%w: %d", domain.ErrBookNotFound, id)
		}
		return domain.Book{}, wrapErr("get book", err)
	}
	return b, nil
}

func (r *BookRepository) ListBooks(ctx context.Context, filter domain.BookFilter) ([]domain.Book, error) {
	ds := dialect.From("books").Prepared(true).
		Select(goqu.L(bookColumns)).
		Order(goqu.I("id").Asc())
	if filter.TitleContains != "" {
		ds = ds.Where(goqu.C("title").ILike("%" + filter.TitleContains + "%"))
	}
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list books: %w", err)
	}

	rows, err := r.db.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list books", err)
	}
	defer rows.Close()

	var books []domain.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, wrapErr("scan book", err)
		}
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list books", err)
	}
	return books, nil
}

func (r *BookRepository) CreateBook(ctx context.Context, book domain.Book) (domain.Book, error) {
	const stmt = `
INSERT INTO books (title, author, isbn, genre, total_quantity, available_quantity, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`

	err := r.db.q(ctx).QueryRow(ctx, stmt,
		book.Title,
		book.Author,
		book.ISBN,
		book.Genre,
		book.TotalQuantity,
		book.AvailableQuantity,
		book.CreatedAt,
		book.UpdatedAt,
	).Scan(&book.ID)
	if err != nil {
		return domain.Book{}, bookWriteErr("create book", book, err)
	}
	return book, nil
}

func (r *BookRepository) SaveBook(ctx context.Context, book domain.Book) error {
	const stmt = `
UPDATE books
SET title = $2, author = $3, isbn = $4, genre = $5,
    total_quantity = $6, available_quantity = $7, updated_at = $8
WHERE id = $1`

	tag, err := r.db.q(ctx).Exec(ctx, stmt,
		book.ID,
		book.Title,
		book.Author,
		book.ISBN,
		book.Genre,
		book.TotalQuantity,
		book.AvailableQuantity,
		book.UpdatedAt,
	)
	if err != nil {
		return bookWriteErr("save book", book, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", domain.ErrBookNotFound, book.ID)
	}
	return nil
}

func bookWriteErr(op string, book domain.Book, err error) error {
	switch {
	case isUniqueViolation(err):
		return fmt.Errorf("%w: %s", domain.ErrDuplicateISBN, book.ISBN)
	case isCheckViolation(err):
		return fmt.Errorf("%w: book %d rejected by %s", domain.ErrInvalidAvailability, book.ID, constraintName(err))
	}
	return wrapErr(op, err)
}

func scanBook(row pgx.Row) (domain.Book, error) {
	var b domain.Book
	err := row.Scan(
		&b.ID,
		&b.Title,
		&b.Author,
		&b.ISBN,
		&b.Genre,
		&b.TotalQuantity,
		&b.AvailableQuantity,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	return b, err
}
