package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/pagemark/internal/platform/api"
	"github.com/example/pagemark/internal/platform/auth"
	"github.com/example/pagemark/internal/platform/events"
	"github.com/example/pagemark/internal/platform/httpserver"
	"github.com/example/pagemark/services/progress/internal/store"
)

const maxRequestBodyBytes = 1 << 20 // 1 MiB

type upsertProgressRequest struct {
	CurrentPage int      `json:"current_page"`
	ZoomLevel   *float64 `json:"zoom_level"`
}

type listResponse struct {
	Items      []store.ProgressRecord `json:"items"`
	Limit      int                    `json:"limit"`
	NextCursor string                 `json:"next_cursor,omitempty"`
}

type acceptedResponse struct {
	EventID string `json:"event_id"`
}

// Deps wires the progress routes.
type Deps struct {
	Repo      store.ProgressRepository
	Publisher *events.Publisher
	// AsyncWrites routes PUT through JetStream when the publisher is enabled.
	AsyncWrites bool
	Log         *zap.Logger
}

func Mount(r chi.Router, verifier auth.JWTVerifier, d Deps) {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	r.Route("/v1/progress", func(r chi.Router) {
		r.Use(auth.RequireUser(verifier))
		r.Get("/", ListRecent(d.Repo, d.Log))
		r.Get("/{book_id}", GetProgress(d.Repo, d.Log))
		r.Put("/{book_id}", UpsertProgress(d, d.Log))
	})
}

// userID resolves the authenticated user, writing a 401 on failure.
func userID(w http.ResponseWriter, r *http.Request, rid string) (uuid.UUID, bool) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(uid)
	if err != nil {
		api.Unauthorized(w, "AUTH_INVALID_SUBJECT", "Token subject is not a user id", rid)
		return uuid.Nil, false
	}
	return id, true
}

func bookID(w http.ResponseWriter, r *http.Request, rid string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "book_id")))
	if err != nil {
		api.BadRequest(w, "INVALID_BOOK_ID", "book_id must be a UUID", rid, nil)
		return uuid.Nil, false
	}
	return id, true
}

func GetProgress(repo store.ProgressRepository, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := userID(w, r, rid)
		if !ok {
			return
		}
		bid, ok := bookID(w, r, rid)
		if !ok {
			return
		}

		rec, err := repo.Get(r.Context(), uid, bid)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				api.NotFound(w, "PROGRESS_NOT_FOUND", "No saved progress for this book", rid)
				return
			}
			log.Error("get progress", zap.String("book_id", bid.String()), zap.Error(err))
			api.Internal(w, rid)
			return
		}
		api.WriteJSON(w, http.StatusOK, rec)
	}
}

func UpsertProgress(d Deps, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := userID(w, r, rid)
		if !ok {
			return
		}
		bid, ok := bookID(w, r, rid)
		if !ok {
			return
		}

		var req upsertProgressRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "Invalid JSON", rid, nil)
			return
		}
		rec := store.ProgressRecord{UserID: uid, BookID: bid, CurrentPage: req.CurrentPage, ZoomLevel: 1.0}
		if req.ZoomLevel != nil {
			rec.ZoomLevel = *req.ZoomLevel
		}
		if err := store.Validate(rec); err != nil {
			api.BadRequest(w, "INVALID_PROGRESS", err.Error(), rid, nil)
			return
		}

		if d.AsyncWrites && d.Publisher.Enabled() {
			ev := events.ProgressUpsert{
				EventID:     uuid.NewString(),
				UserID:      uid.String(),
				BookID:      bid.String(),
				CurrentPage: rec.CurrentPage,
				ZoomLevel:   rec.ZoomLevel,
				CreatedAt:   time.Now().UTC(),
			}
			if err := d.Publisher.PublishJSON(r.Context(), events.SubjectProgressUpsert, ev.EventID, ev); err != nil {
				api.Unavailable(w, "EVENT_PUBLISH_FAILED", "failed to publish event", rid)
				return
			}
			w.Header().Set("X-Event-ID", ev.EventID)
			api.WriteJSON(w, http.StatusAccepted, acceptedResponse{EventID: ev.EventID})
			return
		}

		out, err := d.Repo.Upsert(r.Context(), rec)
		if err != nil {
			if errors.Is(err, store.ErrInvalid) {
				api.BadRequest(w, "INVALID_PROGRESS", err.Error(), rid, nil)
				return
			}
			log.Error("upsert progress", zap.String("book_id", bid.String()), zap.Error(err))
			api.Internal(w, rid)
			return
		}
		api.WriteJSON(w, http.StatusOK, out)
	}
}

func ListRecent(repo store.ProgressRepository, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := userID(w, r, rid)
		if !ok {
			return
		}

		limit := 25
		if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				limit = min(max(n, 1), 100)
			}
		}
		cursor, err := store.DecodeCursor(r.URL.Query().Get("cursor"))
		if err != nil {
			api.BadRequest(w, "INVALID_CURSOR", "Invalid cursor", rid, nil)
			return
		}

		items, err := repo.ListRecent(r.Context(), uid, limit, cursor)
		if err != nil {
			log.Error("list progress", zap.Error(err))
			api.Internal(w, rid)
			return
		}
		resp := listResponse{Items: items, Limit: limit}
		if resp.Items == nil {
			resp.Items = []store.ProgressRecord{}
		}
		if len(items) == limit {
			resp.NextCursor = store.EncodeCursor(items[len(items)-1])
		}
		api.WriteJSON(w, http.StatusOK, resp)
	}
}
