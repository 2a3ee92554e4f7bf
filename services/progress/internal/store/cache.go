package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisClient is the subset of *redis.Client the cache uses.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	SAdd(ctx context.Context, key string, members ...any) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// CachedProgressRepository is a read-through Redis cache in front of another
// repository. Cache failures are logged and never fail the call.
type CachedProgressRepository struct {
	next   ProgressRepository
	client RedisClient
	ttl    time.Duration
	log    *zap.Logger
}

func NewCachedProgressRepository(next ProgressRepository, client RedisClient, ttl time.Duration, log *zap.Logger) *CachedProgressRepository {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedProgressRepository{next: next, client: client, ttl: ttl, log: log}
}

// NewRedisClient parses url as a redis:// URL, falling back to a bare address.
func NewRedisClient(url string) *redis.Client {
	opts, err := redis.ParseURL(url)
	if err != nil {
		opts = &redis.Options{Addr: url}
	}
	return redis.NewClient(opts)
}

func recordKey(userID, bookID uuid.UUID) string {
	return "pagemark:progress:" + userID.String() + ":" + bookID.String()
}

func bookIndexKey(bookID uuid.UUID) string {
	return "pagemark:progress-book:" + bookID.String()
}

func (c *CachedProgressRepository) Get(ctx context.Context, userID, bookID uuid.UUID) (ProgressRecord, error) {
	key := recordKey(userID, bookID)
	val, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		var rec ProgressRecord
		if jerr := json.Unmarshal([]byte(val), &rec); jerr == nil {
			return rec, nil
		}
		c.log.Warn("progress cache: corrupt entry", zap.String("key", key))
	case errors.Is(err, redis.Nil):
	default:
		c.log.Warn("progress cache: get failed", zap.Error(err))
	}

	rec, err := c.next.Get(ctx, userID, bookID)
	if err != nil {
		return ProgressRecord{}, err
	}
	c.store(ctx, rec)
	return rec, nil
}

func (c *CachedProgressRepository) Upsert(ctx context.Context, rec ProgressRecord) (ProgressRecord, error) {
	out, err := c.next.Upsert(ctx, rec)
	if err != nil {
		return ProgressRecord{}, err
	}
	c.store(ctx, out)
	return out, nil
}

func (c *CachedProgressRepository) ListRecent(ctx context.Context, userID uuid.UUID, limit int, cursor *ProgressCursor) ([]ProgressRecord, error) {
	return c.next.ListRecent(ctx, userID, limit, cursor)
}

func (c *CachedProgressRepository) DeleteBook(ctx context.Context, bookID uuid.UUID) (int64, error) {
	n, err := c.next.DeleteBook(ctx, bookID)
	if err != nil {
		return 0, err
	}
	idx := bookIndexKey(bookID)
	keys, kerr := c.client.SMembers(ctx, idx).Result()
	if kerr != nil {
		c.log.Warn("progress cache: index read failed", zap.String("book_id", bookID.String()), zap.Error(kerr))
		return n, nil
	}
	keys = append(keys, idx)
	if derr := c.client.Del(ctx, keys...).Err(); derr != nil {
		c.log.Warn("progress cache: invalidate failed", zap.String("book_id", bookID.String()), zap.Error(derr))
	}
	return n, nil
}

func (c *CachedProgressRepository) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		c.log.Warn("progress cache: ping failed", zap.Error(err))
	}
	return c.next.Ping(ctx)
}

func (c *CachedProgressRepository) store(ctx context.Context, rec ProgressRecord) {
	b, err := json.Marshal(rec)
	if err != nil {
		return
	}
	key := recordKey(rec.UserID, rec.BookID)
	if err := c.client.Set(ctx, key, b, c.ttl).Err(); err != nil {
		c.log.Warn("progress cache: set failed", zap.Error(err))
		return
	}
	idx := bookIndexKey(rec.BookID)
	if err := c.client.SAdd(ctx, idx, key).Err(); err != nil {
		c.log.Warn("progress cache: index add failed", zap.Error(err))
		return
	}
	_ = c.client.Expire(ctx, idx, c.ttl).Err()
}
