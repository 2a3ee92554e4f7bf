package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/example/pagemark/internal/platform/migrate"
	"github.com/example/pagemark/services/progress/internal/store/migrations"
)

// SQLiteProgressRepository persists progress in a single SQLite file, for
// single-node deployments.
type SQLiteProgressRepository struct {
	sqlDB *sql.DB
	now   func() time.Time
}

func toMicros(t time.Time) int64 { return t.UTC().UnixMicro() }

func fromMicros(v int64) time.Time { return time.UnixMicro(v).UTC() }

// OpenSQLite opens the database at path and applies embedded migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteProgressRepository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := "file:" + filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrate.UpDB(ctx, sqlDB, goose.DialectSQLite3, migrations.SQLite); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteProgressRepository{sqlDB: sqlDB, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *SQLiteProgressRepository) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *SQLiteProgressRepository) Get(ctx context.Context, userID, bookID uuid.UUID) (ProgressRecord, error) {
	out := ProgressRecord{UserID: userID, BookID: bookID}
	var ts int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT current_page, zoom_level, last_read_at FROM reading_progress WHERE user_id = ? AND book_id = ?`,
		userID.String(), bookID.String(),
	).Scan(&out.CurrentPage, &out.ZoomLevel, &ts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ProgressRecord{}, ErrNotFound
		}
		return ProgressRecord{}, fmt.Errorf("get progress: %w", err)
	}
	out.LastReadAt = fromMicros(ts)
	return out, nil
}

func (s *SQLiteProgressRepository) Upsert(ctx context.Context, rec ProgressRecord) (ProgressRecord, error) {
	if err := Validate(rec); err != nil {
		return ProgressRecord{}, err
	}
	now := s.now()
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO reading_progress (user_id, book_id, current_page, zoom_level, last_read_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, book_id) DO UPDATE SET
		   current_page = excluded.current_page,
		   zoom_level   = excluded.zoom_level,
		   last_read_at = excluded.last_read_at`,
		rec.UserID.String(), rec.BookID.String(), rec.CurrentPage, rec.ZoomLevel, toMicros(now),
	)
	if err != nil {
		return ProgressRecord{}, fmt.Errorf("upsert progress: %w", err)
	}
	rec.LastReadAt = fromMicros(toMicros(now))
	return rec, nil
}

func (s *SQLiteProgressRepository) ListRecent(ctx context.Context, userID uuid.UUID, limit int, cursor *ProgressCursor) ([]ProgressRecord, error) {
	q := `SELECT book_id, current_page, zoom_level, last_read_at FROM reading_progress WHERE user_id = ?`
	args := []any{userID.String()}
	if cursor != nil {
		q += ` AND (last_read_at < ? OR (last_read_at = ? AND book_id < ?))`
		ts := toMicros(cursor.LastReadAt)
		args = append(args, ts, ts, cursor.BookID.String())
	}
	q += ` ORDER BY last_read_at DESC, book_id DESC LIMIT ?`
	args = append(args, normalizeLimit(limit))

	rows, err := s.sqlDB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()

	var out []ProgressRecord
	for rows.Next() {
		var (
			rec    = ProgressRecord{UserID: userID}
			bookID string
			ts     int64
		)
		if err := rows.Scan(&bookID, &rec.CurrentPage, &rec.ZoomLevel, &ts); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		if rec.BookID, err = uuid.Parse(bookID); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		rec.LastReadAt = fromMicros(ts)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteProgressRepository) DeleteBook(ctx context.Context, bookID uuid.UUID) (int64, error) {
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM reading_progress WHERE book_id = ?`, bookID.String())
	if err != nil {
		return 0, fmt.Errorf("delete progress: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteProgressRepository) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}
