package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/pagemark/internal/platform/db"
	"github.com/example/pagemark/internal/platform/migrate"
	"github.com/example/pagemark/services/progress/internal/store/migrations"
)

const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

// Options selects and configures the storage backend.
type Options struct {
	Backend     string
	DatabaseURL string
	SQLitePath  string
	RedisURL    string
	CacheTTL    time.Duration
	Production  bool
	Logger      *zap.Logger
}

// NewRepository opens the configured backend, wrapping it in a Redis cache
// when RedisURL is set. The returned func releases every resource opened.
// The in-memory backend is refused in production.
func NewRepository(ctx context.Context, opts Options) (ProgressRepository, func(), error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	var (
		repo    ProgressRepository
		closers []func()
	)
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case BackendPostgres, "":
		if err := migrate.Up(ctx, opts.DatabaseURL, migrations.Postgres); err != nil {
			return nil, nil, err
		}
		pool, err := db.Open(ctx, opts.DatabaseURL, db.Options{})
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		closers = append(closers, pool.Close)
		repo = NewPostgresProgressRepository(pool)
	case BackendSQLite:
		s, err := OpenSQLite(ctx, opts.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { _ = s.Close() })
		repo = s
	case BackendMemory:
		if opts.Production {
			return nil, nil, errors.New("production requires PROGRESS_BACKEND=postgres or sqlite; in-memory store is not allowed")
		}
		log.Warn("using in-memory progress store; data is lost on restart")
		repo = NewMemoryProgressRepository()
	default:
		return nil, nil, fmt.Errorf("unknown progress backend %q", opts.Backend)
	}

	if strings.TrimSpace(opts.RedisURL) != "" {
		client := NewRedisClient(opts.RedisURL)
		closers = append(closers, func() { _ = client.Close() })
		repo = NewCachedProgressRepository(repo, client, opts.CacheTTL, log)
	}

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return repo, closeAll, nil
}
