package handlers

import (
	"errors"
	"net/http"
	"path"

	"go.uber.org/zap"

	"github.com/example/pagemark/internal/platform/api"
	"github.com/example/pagemark/internal/platform/httpserver"
	"github.com/example/pagemark/internal/platform/signing"
	"github.com/example/pagemark/services/library/internal/objectstore"
)

var contentTypes = map[string]string{
	".pdf":  "application/pdf",
	".epub": "application/epub+zip",
}

// ServeFile streams an object addressed by a signed URL. Range requests are
// honoured so renderers can fetch incrementally.
func ServeFile(files *objectstore.FileStore, signer *signing.Signer, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		signed, err := signing.ExtractSigned(r.URL.Query())
		if err != nil {
			api.BadRequest(w, "INVALID_SIGNATURE", "missing or malformed signature", rid, nil)
			return
		}
		if err := signer.Verify(signed); err != nil {
			code := "INVALID_SIGNATURE"
			if errors.Is(err, signing.ErrExpired) {
				code = "URL_EXPIRED"
			}
			api.Forbidden(w, code, "signed url rejected", rid)
			return
		}

		f, err := files.Open(signed.Key)
		if err != nil {
			if errors.Is(err, objectstore.ErrNotFound) || errors.Is(err, objectstore.ErrInvalidKey) {
				api.NotFound(w, "FILE_NOT_FOUND", "file not found", rid)
				return
			}
			log.Error("open object", zap.String("key", signed.Key), zap.Error(err))
			api.Internal(w, rid)
			return
		}
		defer f.Close()

		st, err := f.Stat()
		if err != nil {
			api.Internal(w, rid)
			return
		}
		if ct, ok := contentTypes[path.Ext(signed.Key)]; ok {
			w.Header().Set("Content-Type", ct)
		}
		w.Header().Set("Cache-Control", "private, max-age=300")
		http.ServeContent(w, r, path.Base(signed.Key), st.ModTime(), f)
	}
}
