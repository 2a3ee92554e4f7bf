package handlers

import (
	"bufio"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/pagemark/internal/platform/api"
	"github.com/example/pagemark/internal/platform/auth"
	"github.com/example/pagemark/internal/platform/events"
	"github.com/example/pagemark/internal/platform/httpserver"
	"github.com/example/pagemark/services/library/internal/document"
	"github.com/example/pagemark/services/library/internal/objectstore"
	"github.com/example/pagemark/services/library/internal/store"
)

const (
	maxRequestBodyBytes   = 1 << 20   // 1 MiB
	DefaultMaxUploadBytes = 200 << 20 // 200 MiB
	maxTitleLen           = 500
)

// Deps wires the library routes.
type Deps struct {
	Books     store.BookRepository
	Files     *objectstore.FileStore
	URLs      objectstore.URLSigner
	Publisher *events.Publisher
	MaxUpload int64
	Log       *zap.Logger
}

type signedURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type totalPagesRequest struct {
	TotalPages int `json:"total_pages"`
}

func Mount(r chi.Router, verifier auth.JWTVerifier, d Deps) {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.MaxUpload <= 0 {
		d.MaxUpload = DefaultMaxUploadBytes
	}

	r.Get("/files", ServeFile(d.Files, d.URLs.Signer, d.Log))

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(verifier))
		r.Get("/v1/me", Me())
		r.Route("/v1/books", func(r chi.Router) {
			r.Get("/", ListBooks(d))
			r.Post("/", UploadBook(d))
			r.Get("/{book_id}", GetBook(d))
			r.Get("/{book_id}/url", SignedURL(d))
			r.Put("/{book_id}/pages", SetTotalPages(d))
			r.Delete("/{book_id}", DeleteBook(d))
		})
	})
}

func Me() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, _ := auth.UserIDFromContext(r.Context())
		api.WriteJSON(w, http.StatusOK, map[string]any{"user_id": uid})
	}
}

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

// lookup resolves the user and the {book_id} book, answering 4xx itself.
func lookup(w http.ResponseWriter, r *http.Request, d Deps) (store.Book, bool) {
	rid := httpserver.RequestIDFromContext(r.Context())
	uid, ok := userID(w, r, rid)
	if !ok {
		return store.Book{}, false
	}
	bid, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "book_id")))
	if err != nil {
		api.BadRequest(w, "INVALID_BOOK_ID", "book_id must be a UUID", rid, nil)
		return store.Book{}, false
	}
	b, err := d.Books.Get(r.Context(), uid, bid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			api.NotFound(w, "BOOK_NOT_FOUND", "Book not found", rid)
			return store.Book{}, false
		}
		d.Log.Error("get book", zap.String("book_id", bid.String()), zap.Error(err))
		api.Internal(w, rid)
		return store.Book{}, false
	}
	return b, true
}

func ListBooks(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := userID(w, r, rid)
		if !ok {
			return
		}
		books, err := d.Books.List(r.Context(), uid)
		if err != nil {
			d.Log.Error("list books", zap.Error(err))
			api.Internal(w, rid)
			return
		}
		if books == nil {
			books = []store.Book{}
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"items": books})
	}
}

func GetBook(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if b, ok := lookup(w, r, d); ok {
			api.WriteJSON(w, http.StatusOK, b)
		}
	}
}

// UploadBook accepts the raw file as the request body. Title and author come
// from the query string.
func UploadBook(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid, ok := userID(w, r, rid)
		if !ok {
			return
		}
		title := strings.TrimSpace(r.URL.Query().Get("title"))
		if title == "" || len(title) > maxTitleLen {
			api.BadRequest(w, "INVALID_TITLE", "title is required (max 500 chars)", rid, nil)
			return
		}
		if r.ContentLength > d.MaxUpload {
			api.TooLarge(w, "FILE_TOO_LARGE", "file exceeds upload limit", rid)
			return
		}

		body := bufio.NewReader(r.Body)
		head, _ := body.Peek(8)
		format, err := document.DetectFormat(r.Header.Get("Content-Type"), head)
		if err != nil {
			api.BadRequest(w, "UNSUPPORTED_FORMAT", "only PDF and EPUB files are accepted", rid, nil)
			return
		}

		book := store.Book{
			ID:     uuid.New(),
			UserID: uid,
			Title:  title,
			Author: strings.TrimSpace(r.URL.Query().Get("author")),
			Format: format,
		}
		book.FilePath = objectstore.Key(uid, book.ID, format)

		n, err := d.Files.Put(r.Context(), book.FilePath, body, d.MaxUpload)
		if err != nil {
			if errors.Is(err, objectstore.ErrTooLarge) {
				api.TooLarge(w, "FILE_TOO_LARGE", "file exceeds upload limit", rid)
				return
			}
			d.Log.Error("store upload", zap.Error(err))
			api.Internal(w, rid)
			return
		}
		book.SizeBytes = n

		if format == store.FormatPDF {
			pages, err := countStored(d.Files, book.FilePath)
			if err != nil {
				_ = d.Files.Delete(book.FilePath)
				api.BadRequest(w, "INVALID_DOCUMENT", "could not read PDF", rid, nil)
				return
			}
			book.TotalPages = &pages
		}

		created, err := d.Books.Create(r.Context(), book)
		if err != nil {
			_ = d.Files.Delete(book.FilePath)
			d.Log.Error("create book", zap.Error(err))
			api.Internal(w, rid)
			return
		}
		d.Log.Info("book uploaded", zap.String("book_id", created.ID.String()), zap.String("format", format), zap.Int64("bytes", n))
		api.WriteJSON(w, http.StatusCreated, created)
	}
}

func countStored(files *objectstore.FileStore, key string) (int, error) {
	f, err := files.Open(key)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return document.CountPages(f)
}

func SignedURL(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, ok := lookup(w, r, d)
		if !ok {
			return
		}
		raw, exp, err := d.URLs.SignedURL(b.FilePath, b.UserID.String())
		if err != nil {
			d.Log.Error("sign url", zap.Error(err))
			api.Internal(w, httpserver.RequestIDFromContext(r.Context()))
			return
		}
		api.WriteJSON(w, http.StatusOK, signedURLResponse{URL: raw, ExpiresAt: exp})
	}
}

// SetTotalPages records the page count the reader measured, once.
func SetTotalPages(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		b, ok := lookup(w, r, d)
		if !ok {
			return
		}
		var req totalPagesRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "Invalid JSON", rid, nil)
			return
		}
		if req.TotalPages < 1 {
			api.BadRequest(w, "INVALID_TOTAL_PAGES", "total_pages must be >= 1", rid, nil)
			return
		}
		out, err := d.Books.SetTotalPages(r.Context(), b.UserID, b.ID, req.TotalPages)
		if err != nil {
			d.Log.Error("set total pages", zap.String("book_id", b.ID.String()), zap.Error(err))
			api.Internal(w, rid)
			return
		}
		api.WriteJSON(w, http.StatusOK, out)
	}
}

// DeleteBook removes the record and the file, then announces the deletion so
// the progress service drops its rows.
func DeleteBook(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		b, ok := lookup(w, r, d)
		if !ok {
			return
		}
		if _, err := d.Books.Delete(r.Context(), b.UserID, b.ID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				api.NotFound(w, "BOOK_NOT_FOUND", "Book not found", rid)
				return
			}
			d.Log.Error("delete book", zap.String("book_id", b.ID.String()), zap.Error(err))
			api.Internal(w, rid)
			return
		}
		if err := d.Files.Delete(b.FilePath); err != nil {
			d.Log.Warn("delete book file", zap.String("key", b.FilePath), zap.Error(err))
		}

		ev := events.BookDeleted{EventID: uuid.NewString(), UserID: b.UserID.String(), BookID: b.ID.String(), CreatedAt: time.Now().UTC()}
		if err := d.Publisher.PublishJSON(r.Context(), events.SubjectBookDeleted, ev.EventID, ev); err != nil {
			if errors.Is(err, events.ErrPublishDisabled) {
				d.Log.Warn("book deleted without event; progress rows remain", zap.String("book_id", ev.BookID))
			} else {
				d.Log.Error("publish book deleted", zap.String("book_id", ev.BookID), zap.Error(err))
			}
		} else {
			w.Header().Set("X-Event-ID", ev.EventID)
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
