package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/example/pagemark/internal/platform/db"
)

const bookColumns = `id, user_id, title, author, format, file_path, size_bytes, total_pages, created_at`

type PostgresBookRepository struct {
	db  db.Pool
	now func() time.Time
}

func NewPostgresBookRepository(pool db.Pool) *PostgresBookRepository {
	return &PostgresBookRepository{db: pool, now: func() time.Time { return time.Now().UTC() }}
}

func scanBook(row pgx.Row) (Book, error) {
	var b Book
	err := row.Scan(&b.ID, &b.UserID, &b.Title, &b.Author, &b.Format, &b.FilePath, &b.SizeBytes, &b.TotalPages, &b.CreatedAt)
	return b, err
}

func (r *PostgresBookRepository) Create(ctx context.Context, b Book) (Book, error) {
	if err := validate(b); err != nil {
		return Book{}, err
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = r.now()
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO books (`+bookColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		b.ID, b.UserID, b.Title, b.Author, b.Format, b.FilePath, b.SizeBytes, b.TotalPages, b.CreatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Book{}, fmt.Errorf("%w: duplicate id", ErrInvalid)
		}
		return Book{}, fmt.Errorf("create book: %w", err)
	}
	return b, nil
}

func (r *PostgresBookRepository) Get(ctx context.Context, userID, bookID uuid.UUID) (Book, error) {
	b, err := scanBook(r.db.QueryRow(ctx,
		`SELECT `+bookColumns+` FROM books WHERE id=$1 AND user_id=$2`, bookID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Book{}, ErrNotFound
		}
		return Book{}, fmt.Errorf("get book: %w", err)
	}
	return b, nil
}

func (r *PostgresBookRepository) List(ctx context.Context, userID uuid.UUID) ([]Book, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+bookColumns+` FROM books WHERE user_id=$1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	var out []Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *PostgresBookRepository) SetTotalPages(ctx context.Context, userID, bookID uuid.UUID, n int) (Book, error) {
	if n < 1 {
		return Book{}, fmt.Errorf("%w: total_pages must be >= 1", ErrInvalid)
	}
	b, err := scanBook(r.db.QueryRow(ctx,
		`UPDATE books SET total_pages=$3 WHERE id=$1 AND user_id=$2 AND total_pages IS NULL RETURNING `+bookColumns,
		bookID, userID, n))
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Book{}, fmt.Errorf("set total pages: %w", err)
	}
	// Already set, or missing.
	return r.Get(ctx, userID, bookID)
}

func (r *PostgresBookRepository) Delete(ctx context.Context, userID, bookID uuid.UUID) (Book, error) {
	b, err := scanBook(r.db.QueryRow(ctx,
		`DELETE FROM books WHERE id=$1 AND user_id=$2 RETURNING `+bookColumns, bookID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Book{}, ErrNotFound
		}
		return Book{}, fmt.Errorf("delete book: %w", err)
	}
	return b, nil
}

func (r *PostgresBookRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
