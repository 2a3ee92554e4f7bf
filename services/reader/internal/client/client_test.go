package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/pagemark/internal/platform/api"
	"github.com/example/pagemark/services/reader/internal/session"
)

const bookID = "7f1c2c7e-8d0e-4a53-9a53-2a1f0c6f2b11"

func newTestClient(t *testing.T, h http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{LibraryURL: srv.URL + "/", ProgressURL: srv.URL, Token: "tok", RetryDelay: time.Millisecond}, opts...)
}

func TestGet_NotFoundIsNoData(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/progress/"+bookID, r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		api.NotFound(w, "PROGRESS_NOT_FOUND", "Progress not found", "rid")
	}))

	p, err := c.Get(context.Background(), bookID)
	require.NoError(t, err)
	require.Nil(t, p)
}

func TestGet_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			api.Internal(w, "rid")
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"book_id": bookID, "current_page": 12, "zoom_level": 1.5, "last_read_at": "2026-03-01T10:00:00Z"})
	}))

	p, err := c.Get(context.Background(), bookID)
	require.NoError(t, err)
	require.Equal(t, 12, p.CurrentPage)
	require.Equal(t, 1.5, p.ZoomLevel)
	require.Equal(t, int32(3), hits.Load())
}

func TestGet_ClientErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		api.BadRequest(w, "INVALID_BOOK_ID", "book_id must be a UUID", "rid", nil)
	}))

	_, err := c.Get(context.Background(), "nope")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "INVALID_BOOK_ID", se.Code)
	require.Equal(t, int32(1), hits.Load())
}

func TestUpsert_OneRetry(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		api.Unavailable(w, "UNAVAILABLE", "down", "rid")
	}))

	_, err := c.Upsert(context.Background(), session.Progress{BookID: bookID, CurrentPage: 3, ZoomLevel: 1})
	require.Error(t, err)
	require.Equal(t, int32(2), hits.Load())
}

func TestUpsert_SendsBodyAndDecodesRecord(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, float64(8), body["current_page"])
		require.Equal(t, 1.25, body["zoom_level"])
		api.WriteJSON(w, http.StatusOK, map[string]any{"book_id": bookID, "current_page": 8, "zoom_level": 1.25, "last_read_at": "2026-03-01T10:00:00Z"})
	}))

	out, err := c.Upsert(context.Background(), session.Progress{BookID: bookID, CurrentPage: 8, ZoomLevel: 1.25})
	require.NoError(t, err)
	require.Equal(t, 8, out.CurrentPage)
	require.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), out.LastReadAt)
}

func TestUpsert_Accepted(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Event-ID", "ev-1")
		api.WriteJSON(w, http.StatusAccepted, map[string]string{"event_id": "ev-1"})
	}))

	in := session.Progress{BookID: bookID, CurrentPage: 2, ZoomLevel: 1}
	out, err := c.Upsert(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, 2, out.CurrentPage)
	require.False(t, out.LastReadAt.IsZero())
}

func TestCurrentUser_Cached(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		require.Equal(t, "/v1/me", r.URL.Path)
		api.WriteJSON(w, http.StatusOK, map[string]string{"user_id": "u-1"})
	}))

	for range 3 {
		uid, err := c.CurrentUser(context.Background())
		require.NoError(t, err)
		require.Equal(t, "u-1", uid)
	}
	require.Equal(t, int32(1), hits.Load())
}

func TestCurrentUser_Unauthorized(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.Unauthorized(w, "UNAUTHENTICATED", "Invalid token", "rid")
	}))
	_, err := c.CurrentUser(context.Background())
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestMissingToken(t *testing.T) {
	c := New(Config{LibraryURL: "http://127.0.0.1:1"})
	_, err := c.Books(context.Background())
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestLibraryCalls(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/books", func(w http.ResponseWriter, r *http.Request) {
		api.WriteJSON(w, http.StatusOK, map[string]any{"items": []map[string]any{{"id": bookID, "title": "Dune", "format": "pdf", "size_bytes": 1024}}})
	})
	mux.HandleFunc("GET /v1/books/{id}/url", func(w http.ResponseWriter, r *http.Request) {
		api.WriteJSON(w, http.StatusOK, map[string]any{"url": "http://files/x?sig=1", "expires_at": time.Now()})
	})
	var reported atomic.Int32
	mux.HandleFunc("PUT /v1/books/{id}/pages", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			TotalPages int `json:"total_pages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		reported.Store(int32(body.TotalPages))
		api.WriteJSON(w, http.StatusOK, map[string]any{"id": r.PathValue("id")})
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	books, err := c.Books(ctx)
	require.NoError(t, err)
	require.Len(t, books, 1)
	require.Equal(t, "Dune", books[0].Title)

	u, err := c.SignedURL(ctx, bookID)
	require.NoError(t, err)
	require.Equal(t, "http://files/x?sig=1", u)

	require.NoError(t, c.ReportTotalPages(ctx, bookID, 321))
	require.Equal(t, int32(321), reported.Load())
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	cb := NewBreaker("progress", 2, time.Minute, zap.NewNop())
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		api.Internal(w, "rid")
	}), WithCircuitBreaker(cb))

	_, err := c.Get(context.Background(), bookID)
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	require.Equal(t, int32(2), hits.Load())
	require.Equal(t, gobreaker.StateOpen, cb.State())
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	cb := NewBreaker("progress", 1, time.Minute, zap.NewNop())
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.NotFound(w, "PROGRESS_NOT_FOUND", "Progress not found", "rid")
	}), WithCircuitBreaker(cb))

	for range 3 {
		p, err := c.Get(context.Background(), bookID)
		require.NoError(t, err)
		require.Nil(t, p)
	}
	require.Equal(t, gobreaker.StateClosed, cb.State())
}
