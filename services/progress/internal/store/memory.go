package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type progressKey struct {
	user uuid.UUID
	book uuid.UUID
}

// MemoryProgressRepository is a development-only in-memory store.
// State is lost on restart and is not shared across instances.
type MemoryProgressRepository struct {
	mu   sync.RWMutex
	rows map[progressKey]ProgressRecord
	now  func() time.Time
}

func NewMemoryProgressRepository() *MemoryProgressRepository {
	return &MemoryProgressRepository{
		rows: make(map[progressKey]ProgressRecord),
		now:  func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

func (m *MemoryProgressRepository) Get(_ context.Context, userID, bookID uuid.UUID) (ProgressRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.rows[progressKey{userID, bookID}]
	if !ok {
		return ProgressRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryProgressRepository) Upsert(_ context.Context, rec ProgressRecord) (ProgressRecord, error) {
	if err := Validate(rec); err != nil {
		return ProgressRecord{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.LastReadAt = m.now()
	m.rows[progressKey{rec.UserID, rec.BookID}] = rec
	return rec, nil
}

func (m *MemoryProgressRepository) ListRecent(_ context.Context, userID uuid.UUID, limit int, cursor *ProgressCursor) ([]ProgressRecord, error) {
	m.mu.RLock()
	var out []ProgressRecord
	for k, rec := range m.rows {
		if k.user != userID || !cursor.before(rec.LastReadAt, rec.BookID) {
			continue
		}
		out = append(out, rec)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].LastReadAt.Equal(out[j].LastReadAt) {
			return strings.Compare(out[i].BookID.String(), out[j].BookID.String()) > 0
		}
		return out[i].LastReadAt.After(out[j].LastReadAt)
	})
	if n := normalizeLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *MemoryProgressRepository) DeleteBook(_ context.Context, bookID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.rows {
		if k.book == bookID {
			delete(m.rows, k)
			n++
		}
	}
	return n, nil
}

func (m *MemoryProgressRepository) Ping(context.Context) error { return nil }
