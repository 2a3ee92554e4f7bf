package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteError_Envelope(t *testing.T) {
	rr := httptest.NewRecorder()
	BadRequest(rr, "INVALID_PROGRESS", "current_page must be >= 1", "rid-1", map[string]any{"field": "current_page"})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Fatalf("unexpected content type %q", ct)
	}
	var resp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error.Code != "INVALID_PROGRESS" || resp.Error.RequestID != "rid-1" {
		t.Fatalf("unexpected envelope: %+v", resp.Error)
	}
	if resp.Error.Details["field"] != "current_page" {
		t.Fatalf("expected details to round-trip, got %v", resp.Error.Details)
	}
}

func TestInternal_HidesDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	Internal(rr, "rid-2")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	var resp ErrorResponse
	_ = json.NewDecoder(rr.Body).Decode(&resp)
	if resp.Error.Code != "INTERNAL" {
		t.Fatalf("expected INTERNAL, got %q", resp.Error.Code)
	}
}

func TestWriteJSON_NilBody(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteJSON(rr, http.StatusNoContent, nil)
	if rr.Code != http.StatusNoContent || rr.Body.Len() != 0 {
		t.Fatalf("expected empty 204, got %d %q", rr.Code, rr.Body.String())
	}
}

func TestParseError(t *testing.T) {
	rr := httptest.NewRecorder()
	NotFound(rr, "BOOK_NOT_FOUND", "Book not found", "rid-3")
	ae, ok := ParseError(rr.Body.Bytes())
	if !ok || ae.Code != "BOOK_NOT_FOUND" || ae.RequestID != "rid-3" {
		t.Fatalf("unexpected parse: %v %+v", ok, ae)
	}
	if _, ok := ParseError([]byte("<html>bad gateway</html>")); ok {
		t.Fatal("expected non-envelope body to be rejected")
	}
	if _, ok := ParseError([]byte(`{"items":[]}`)); ok {
		t.Fatal("expected body without error code to be rejected")
	}
}

func TestHelpers_StatusCodes(t *testing.T) {
	tests := []struct {
		name  string
		write func(w http.ResponseWriter)
		code  int
	}{
		{"unauthorized", func(w http.ResponseWriter) { Unauthorized(w, "AUTH_MISSING", "Missing auth", "rid") }, http.StatusUnauthorized},
		{"forbidden", func(w http.ResponseWriter) { Forbidden(w, "SIGNATURE_EXPIRED", "signed url rejected", "rid") }, http.StatusForbidden},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "BOOK_NOT_FOUND", "Book not found", "rid") }, http.StatusNotFound},
		{"too large", func(w http.ResponseWriter) { TooLarge(w, "FILE_TOO_LARGE", "file exceeds upload limit", "rid") }, http.StatusRequestEntityTooLarge},
		{"unavailable", func(w http.ResponseWriter) { Unavailable(w, "EVENT_PUBLISH_FAILED", "failed to publish event", "rid") }, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			tt.write(rr)
			if rr.Code != tt.code {
				t.Fatalf("expected %d, got %d", tt.code, rr.Code)
			}
			if _, ok := ParseError(rr.Body.Bytes()); !ok {
				t.Fatalf("expected error envelope, got %q", rr.Body.String())
			}
		})
	}
}
