// Package store persists per-user reading progress keyed by (user, book).
package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("progress not found")
	ErrInvalid  = errors.New("invalid progress")
)

// ProgressRecord is the stored reading position for one user and book.
type ProgressRecord struct {
	UserID      uuid.UUID `json:"user_id"`
	BookID      uuid.UUID `json:"book_id"`
	CurrentPage int       `json:"current_page"`
	ZoomLevel   float64   `json:"zoom_level"`
	LastReadAt  time.Time `json:"last_read_at"`
}

// ProgressCursor is the decoded form of the opaque pagination cursor.
type ProgressCursor struct {
	LastReadAt time.Time
	BookID     uuid.UUID
}

// ProgressRepository defines persistence operations for reading progress.
type ProgressRepository interface {
	Get(ctx context.Context, userID, bookID uuid.UUID) (ProgressRecord, error)
	// Upsert inserts or replaces progress for (user, book). The store stamps
	// LastReadAt; the last write wins.
	Upsert(ctx context.Context, rec ProgressRecord) (ProgressRecord, error)
	// ListRecent returns up to limit records ordered by last_read_at DESC.
	// cursor, if non-nil, is an exclusive bound for keyset pagination.
	ListRecent(ctx context.Context, userID uuid.UUID, limit int, cursor *ProgressCursor) ([]ProgressRecord, error)
	// DeleteBook removes progress rows of every user for bookID.
	DeleteBook(ctx context.Context, bookID uuid.UUID) (int64, error)
	Ping(ctx context.Context) error
}

// Validate checks the invariants every backend enforces before writing.
func Validate(rec ProgressRecord) error {
	if rec.UserID == uuid.Nil {
		return fmt.Errorf("%w: user_id is required", ErrInvalid)
	}
	if rec.BookID == uuid.Nil {
		return fmt.Errorf("%w: book_id is required", ErrInvalid)
	}
	if rec.CurrentPage < 1 {
		return fmt.Errorf("%w: current_page must be >= 1", ErrInvalid)
	}
	if !(rec.ZoomLevel > 0) {
		return fmt.Errorf("%w: zoom_level must be > 0", ErrInvalid)
	}
	return nil
}

func normalizeLimit(limit int) int {
	if limit < 1 {
		return 25
	}
	if limit > 100 {
		return 100
	}
	return limit
}

// EncodeCursor returns an opaque cursor pointing after rec.
func EncodeCursor(rec ProgressRecord) string {
	raw := strconv.FormatInt(rec.LastReadAt.UTC().UnixMicro(), 10) + ":" + rec.BookID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a cursor from EncodeCursor. An empty string yields nil.
func DecodeCursor(raw string) (*ProgressCursor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	ts, id, ok := strings.Cut(string(b), ":")
	if !ok {
		return nil, errors.New("decode cursor: malformed")
	}
	us, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	bookID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	return &ProgressCursor{LastReadAt: time.UnixMicro(us).UTC(), BookID: bookID}, nil
}

// before reports whether (t, id) sorts after the cursor in DESC order.
func (c *ProgressCursor) before(t time.Time, id uuid.UUID) bool {
	if c == nil {
		return true
	}
	if t.Equal(c.LastReadAt) {
		return strings.Compare(id.String(), c.BookID.String()) < 0
	}
	return t.Before(c.LastReadAt)
}
