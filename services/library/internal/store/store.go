// Package store persists the per-user book library.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("book not found")
	ErrInvalid  = errors.New("invalid book")
)

const (
	FormatPDF  = "pdf"
	FormatEPUB = "epub"
)

type Book struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	Title      string    `json:"title"`
	Author     string    `json:"author,omitempty"`
	Format     string    `json:"format"`
	FilePath   string    `json:"file_path"`
	SizeBytes  int64     `json:"size_bytes"`
	TotalPages *int      `json:"total_pages,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type BookRepository interface {
	Create(ctx context.Context, b Book) (Book, error)
	Get(ctx context.Context, userID, bookID uuid.UUID) (Book, error)
	// List returns the user's books, newest first.
	List(ctx context.Context, userID uuid.UUID) ([]Book, error)
	// SetTotalPages records the page count only if none is stored yet and
	// returns the book as it is afterwards.
	SetTotalPages(ctx context.Context, userID, bookID uuid.UUID, n int) (Book, error)
	// Delete removes the record and returns it so the caller can drop the file.
	Delete(ctx context.Context, userID, bookID uuid.UUID) (Book, error)
	Ping(ctx context.Context) error
}

func validate(b Book) error {
	switch {
	case b.ID == uuid.Nil || b.UserID == uuid.Nil:
		return fmt.Errorf("%w: id and user_id are required", ErrInvalid)
	case b.Title == "":
		return fmt.Errorf("%w: title is required", ErrInvalid)
	case b.Format != FormatPDF && b.Format != FormatEPUB:
		return fmt.Errorf("%w: format must be pdf or epub", ErrInvalid)
	case b.FilePath == "":
		return fmt.Errorf("%w: file_path is required", ErrInvalid)
	case b.TotalPages != nil && *b.TotalPages < 1:
		return fmt.Errorf("%w: total_pages must be >= 1", ErrInvalid)
	}
	return nil
}
