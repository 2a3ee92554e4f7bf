package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryBookRepository is a development-only in-memory store.
type MemoryBookRepository struct {
	mu    sync.RWMutex
	books map[uuid.UUID]Book
}

func NewMemoryBookRepository() *MemoryBookRepository {
	return &MemoryBookRepository{books: make(map[uuid.UUID]Book)}
}

func (m *MemoryBookRepository) Create(_ context.Context, b Book) (Book, error) {
	if err := validate(b); err != nil {
		return Book{}, err
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[b.ID]; ok {
		return Book{}, ErrInvalid
	}
	m.books[b.ID] = b
	return b, nil
}

func (m *MemoryBookRepository) Get(_ context.Context, userID, bookID uuid.UUID) (Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[bookID]
	if !ok || b.UserID != userID {
		return Book{}, ErrNotFound
	}
	return b, nil
}

func (m *MemoryBookRepository) List(_ context.Context, userID uuid.UUID) ([]Book, error) {
	m.mu.RLock()
	var out []Book
	for _, b := range m.books {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() > out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryBookRepository) SetTotalPages(_ context.Context, userID, bookID uuid.UUID, n int) (Book, error) {
	if n < 1 {
		return Book{}, ErrInvalid
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[bookID]
	if !ok || b.UserID != userID {
		return Book{}, ErrNotFound
	}
	if b.TotalPages == nil {
		b.TotalPages = &n
		m.books[bookID] = b
	}
	return b, nil
}

func (m *MemoryBookRepository) Delete(_ context.Context, userID, bookID uuid.UUID) (Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[bookID]
	if !ok || b.UserID != userID {
		return Book{}, ErrNotFound
	}
	delete(m.books, bookID)
	return b, nil
}

func (m *MemoryBookRepository) Ping(context.Context) error { return nil }
