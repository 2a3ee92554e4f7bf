package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	mu   sync.Mutex
	kv   map[string]string
	sets map[string]map[string]struct{}
	down bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{kv: map[string]string{}, sets: map[string]map[string]struct{}{}}
}

var errRedisDown = errors.New("redis: connection refused")

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return redis.NewStringResult("", errRedisDown)
	}
	v, ok := f.kv[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return redis.NewStatusResult("", errRedisDown)
	}
	switch v := value.(type) {
	case []byte:
		f.kv[key] = string(v)
	case string:
		f.kv[key] = v
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.kv[k]; ok {
			delete(f.kv, k)
			n++
		}
		if _, ok := f.sets[k]; ok {
			delete(f.sets, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) SAdd(_ context.Context, key string, members ...any) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sets[key]
	if !ok {
		s = map[string]struct{}{}
		f.sets[key] = s
	}
	for _, m := range members {
		s[m.(string)] = struct{}{}
	}
	return redis.NewIntResult(int64(len(members)), nil)
}

func (f *fakeRedis) SMembers(_ context.Context, key string) *redis.StringSliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for m := range f.sets[key] {
		out = append(out, m)
	}
	return redis.NewStringSliceResult(out, nil)
}

func (f *fakeRedis) Expire(context.Context, string, time.Duration) *redis.BoolCmd {
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func TestCache_ReadThrough(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryProgressRepository()
	rdb := newFakeRedis()
	c := NewCachedProgressRepository(inner, rdb, time.Minute, nil)

	rec := sampleRecord()
	_, err := inner.Upsert(ctx, rec)
	require.NoError(t, err)

	got, err := c.Get(ctx, rec.UserID, rec.BookID)
	require.NoError(t, err)
	require.Equal(t, rec.CurrentPage, got.CurrentPage)
	require.Contains(t, rdb.kv, recordKey(rec.UserID, rec.BookID))

	// served from cache even when the backing row changes underneath
	rec.CurrentPage = 50
	_, err = inner.Upsert(ctx, rec)
	require.NoError(t, err)
	got, err = c.Get(ctx, rec.UserID, rec.BookID)
	require.NoError(t, err)
	require.Equal(t, 12, got.CurrentPage)
}

func TestCache_UpsertRefreshesEntry(t *testing.T) {
	ctx := context.Background()
	c := NewCachedProgressRepository(NewMemoryProgressRepository(), newFakeRedis(), time.Minute, nil)

	rec := sampleRecord()
	_, err := c.Upsert(ctx, rec)
	require.NoError(t, err)
	rec.CurrentPage = 13
	_, err = c.Upsert(ctx, rec)
	require.NoError(t, err)

	got, err := c.Get(ctx, rec.UserID, rec.BookID)
	require.NoError(t, err)
	require.Equal(t, 13, got.CurrentPage)
}

func TestCache_DeleteBookInvalidates(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedis()
	c := NewCachedProgressRepository(NewMemoryProgressRepository(), rdb, time.Minute, nil)

	rec := sampleRecord()
	_, err := c.Upsert(ctx, rec)
	require.NoError(t, err)

	n, err := c.DeleteBook(ctx, rec.BookID)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.Empty(t, rdb.kv)

	_, err = c.Get(ctx, rec.UserID, rec.BookID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCache_RedisDownFallsThrough(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedis()
	rdb.down = true
	c := NewCachedProgressRepository(NewMemoryProgressRepository(), rdb, time.Minute, nil)

	rec := sampleRecord()
	_, err := c.Upsert(ctx, rec)
	require.NoError(t, err)
	got, err := c.Get(ctx, rec.UserID, rec.BookID)
	require.NoError(t, err)
	require.Equal(t, rec.CurrentPage, got.CurrentPage)
}
