package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRepository_MemoryRefusedInProduction(t *testing.T) {
	_, _, err := NewRepository(context.Background(), Options{Backend: BackendMemory, Production: true})
	require.Error(t, err)
}

func TestNewRepository_Memory(t *testing.T) {
	repo, closeFn, err := NewRepository(context.Background(), Options{Backend: "MEMORY"})
	require.NoError(t, err)
	defer closeFn()
	require.IsType(t, &MemoryProgressRepository{}, repo)
}

func TestNewRepository_SQLiteWithCache(t *testing.T) {
	repo, closeFn, err := NewRepository(context.Background(), Options{
		Backend:    BackendSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "p.db"),
		RedisURL:   "redis://127.0.0.1:6390/0",
	})
	require.NoError(t, err)
	defer closeFn()
	require.IsType(t, &CachedProgressRepository{}, repo)
}

func TestNewRepository_Unknown(t *testing.T) {
	_, _, err := NewRepository(context.Background(), Options{Backend: "dynamo"})
	require.Error(t, err)
}

func TestNewRepository_PostgresNeedsURL(t *testing.T) {
	_, _, err := NewRepository(context.Background(), Options{Backend: BackendPostgres})
	require.Error(t, err)
}
