package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/example/pagemark/internal/platform/db"
)

// PostgresProgressRepository is the production Postgres-backed implementation.
type PostgresProgressRepository struct {
	db  db.Pool
	now func() time.Time
}

func NewPostgresProgressRepository(pool db.Pool) *PostgresProgressRepository {
	return &PostgresProgressRepository{db: pool, now: func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }}
}

func (r *PostgresProgressRepository) Get(ctx context.Context, userID, bookID uuid.UUID) (ProgressRecord, error) {
	const q = `SELECT current_page, zoom_level, last_read_at
	      FROM reading_progress WHERE user_id=$1 AND book_id=$2`
	out := ProgressRecord{UserID: userID, BookID: bookID}
	err := r.db.QueryRow(ctx, q, userID, bookID).Scan(&out.CurrentPage, &out.ZoomLevel, &out.LastReadAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProgressRecord{}, ErrNotFound
		}
		return ProgressRecord{}, fmt.Errorf("get progress: %w", err)
	}
	return out, nil
}

func (r *PostgresProgressRepository) Upsert(ctx context.Context, rec ProgressRecord) (ProgressRecord, error) {
	if err := Validate(rec); err != nil {
		return ProgressRecord{}, err
	}
	const q = `
INSERT INTO reading_progress (user_id, book_id, current_page, zoom_level, last_read_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id, book_id)
DO UPDATE SET
  current_page = EXCLUDED.current_page,
  zoom_level   = EXCLUDED.zoom_level,
  last_read_at = EXCLUDED.last_read_at
RETURNING current_page, zoom_level, last_read_at`

	out := ProgressRecord{UserID: rec.UserID, BookID: rec.BookID}
	err := r.db.QueryRow(ctx, q, rec.UserID, rec.BookID, rec.CurrentPage, rec.ZoomLevel, r.now()).
		Scan(&out.CurrentPage, &out.ZoomLevel, &out.LastReadAt)
	if err != nil {
		return ProgressRecord{}, fmt.Errorf("upsert progress: %w", err)
	}
	return out, nil
}

func (r *PostgresProgressRepository) ListRecent(ctx context.Context, userID uuid.UUID, limit int, cursor *ProgressCursor) ([]ProgressRecord, error) {
	q := `SELECT book_id, current_page, zoom_level, last_read_at
	      FROM reading_progress WHERE user_id=$1`
	args := []any{userID}

	if cursor != nil {
		q += " AND (last_read_at, book_id) < ($2, $3)"
		args = append(args, cursor.LastReadAt, cursor.BookID)
	}
	q += " ORDER BY last_read_at DESC, book_id DESC LIMIT $" + strconv.Itoa(len(args)+1)
	args = append(args, normalizeLimit(limit))

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()

	var out []ProgressRecord
	for rows.Next() {
		rec := ProgressRecord{UserID: userID}
		if err := rows.Scan(&rec.BookID, &rec.CurrentPage, &rec.ZoomLevel, &rec.LastReadAt); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	return out, nil
}

func (r *PostgresProgressRepository) DeleteBook(ctx context.Context, bookID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM reading_progress WHERE book_id=$1`, bookID)
	if err != nil {
		return 0, fmt.Errorf("delete progress: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresProgressRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
