// Package objectstore keeps uploaded documents on the local filesystem and
// hands out expiring signed download URLs for them.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/pagemark/internal/platform/signing"
)

var (
	ErrInvalidKey = errors.New("invalid object key")
	ErrTooLarge   = errors.New("object exceeds size limit")
	ErrNotFound   = errors.New("object not found")
)

const DefaultURLTTL = time.Hour

// Key is the storage key for a book file: <user_id>/<book_id>.<ext>.
func Key(userID, bookID uuid.UUID, ext string) string {
	return userID.String() + "/" + bookID.String() + "." + strings.TrimPrefix(ext, ".")
}

type FileStore struct {
	root string
}

func NewFileStore(root string) (*FileStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("object root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create object root: %w", err)
	}
	return &FileStore{root: abs}, nil
}

func (s *FileStore) path(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", ErrInvalidKey
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", ErrInvalidKey
	}
	return filepath.Join(s.root, clean), nil
}

// Put streams r to key, refusing more than maxBytes when maxBytes > 0.
// The object becomes visible only once fully written.
func (s *FileStore) Put(ctx context.Context, key string, r io.Reader, maxBytes int64) (int64, error) {
	dst, err := s.path(key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return 0, err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	src := r
	if maxBytes > 0 {
		src = io.LimitReader(r, maxBytes+1)
	}
	n, err := io.Copy(tmp, readerWithContext{ctx: ctx, r: src})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, err
	}
	if maxBytes > 0 && n > maxBytes {
		return 0, ErrTooLarge
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *FileStore) Open(key string) (*os.File, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

// Delete removes key; a missing object is not an error.
func (s *FileStore) Delete(key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// URLSigner issues links to the public /files endpoint.
type URLSigner struct {
	Signer  *signing.Signer
	BaseURL string
	TTL     time.Duration
	Now     func() time.Time
}

func (u URLSigner) SignedURL(key, userID string) (string, time.Time, error) {
	now := time.Now
	if u.Now != nil {
		now = u.Now
	}
	ttl := u.TTL
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}
	exp := now().Add(ttl)
	raw, err := signing.BuildSignedURL(strings.TrimRight(u.BaseURL, "/")+"/files", u.Signer.Sign(key, userID, exp))
	if err != nil {
		return "", time.Time{}, err
	}
	return raw, time.Unix(exp.Unix(), 0).UTC(), nil
}

type readerWithContext struct {
	ctx context.Context
	r   io.Reader
}

func (r readerWithContext) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
