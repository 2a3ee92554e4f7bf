// Package client talks to the library and progress services on behalf of the
// reader.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/example/pagemark/internal/platform/api"
	"github.com/example/pagemark/services/reader/internal/session"
)

const (
	readAttempts  = 3 // two retries
	writeAttempts = 2 // one retry
	maxBody       = 1 << 20
)

var ErrUnauthenticated = errors.New("client: not signed in")

// StatusError is a non-2xx answer from a service.
type StatusError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *StatusError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("status %d", e.Status)
	}
	return fmt.Sprintf("status %d: %s: %s", e.Status, e.Code, e.Message)
}

// Temporary reports whether retrying may help.
func (e *StatusError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

type Config struct {
	LibraryURL  string
	ProgressURL string
	Token       string
	RetryDelay  time.Duration
}

type Client struct {
	cfg  Config
	HTTP *http.Client
	CB   *gobreaker.CircuitBreaker
	Log  *zap.Logger

	mu   sync.Mutex
	user string
}

// Option configures the Client.
type Option func(*Client)

func WithCircuitBreaker(cb *gobreaker.CircuitBreaker) Option {
	return func(c *Client) { c.CB = cb }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.Log = log }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.HTTP = h }
}

func New(cfg Config, opts ...Option) *Client {
	cfg.LibraryURL = strings.TrimRight(cfg.LibraryURL, "/")
	cfg.ProgressURL = strings.TrimRight(cfg.ProgressURL, "/")
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 300 * time.Millisecond
	}
	c := &Client{
		cfg:  cfg,
		HTTP: &http.Client{Timeout: 15 * time.Second},
		Log:  zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NewBreaker returns a breaker that opens after threshold consecutive
// server-side failures. Client errors never count.
func NewBreaker(name string, threshold uint32, cooldown time.Duration, log *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return !se.Temporary()
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("circuit-breaker state change", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
}

type request struct {
	method   string
	url      string
	body     any
	attempts uint
}

// do sends req through the breaker and retries temporary failures. A non-nil
// out receives the decoded JSON body. The status code is returned on success.
func (c *Client) do(ctx context.Context, req request, out any) (int, error) {
	if c.cfg.Token == "" {
		return 0, ErrUnauthenticated
	}
	var payload []byte
	if req.body != nil {
		b, err := json.Marshal(req.body)
		if err != nil {
			return 0, err
		}
		payload = b
	}

	return retry.DoWithData(func() (int, error) {
		if c.CB == nil {
			return c.once(ctx, req, payload, out)
		}
		res, err := c.CB.Execute(func() (interface{}, error) {
			return c.once(ctx, req, payload, out)
		})
		if err != nil {
			return 0, err
		}
		return res.(int), nil
	},
		retry.Context(ctx),
		retry.Attempts(max(1, req.attempts)),
		retry.Delay(c.cfg.RetryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			c.Log.Warn("request failed, retrying", zap.String("method", req.method), zap.String("url", req.url), zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
}

func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (c *Client) once(ctx context.Context, req request, payload []byte, out any) (int, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	hr, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
	if err != nil {
		return 0, err
	}
	hr.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	hr.Header.Set("Accept", "application/json")
	if payload != nil {
		hr.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(hr)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return 0, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Status: resp.StatusCode}
		if ae, ok := api.ParseError(b); ok {
			se.Code, se.Message, se.RequestID = ae.Code, ae.Message, ae.RequestID
		}
		return resp.StatusCode, se
	}
	if out != nil && len(b) > 0 {
		if err := json.Unmarshal(b, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s: %w", req.url, err)
		}
	}
	return resp.StatusCode, nil
}

func isStatus(err error, status int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == status
}

// CurrentUser returns the user id the token belongs to.
func (c *Client) CurrentUser(ctx context.Context) (string, error) {
	c.mu.Lock()
	cached := c.user
	c.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	var me struct {
		UserID string `json:"user_id"`
	}
	_, err := c.do(ctx, request{method: http.MethodGet, url: c.cfg.LibraryURL + "/v1/me", attempts: readAttempts}, &me)
	if err != nil {
		if isStatus(err, http.StatusUnauthorized) {
			return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
		}
		return "", err
	}
	if me.UserID == "" {
		return "", ErrUnauthenticated
	}
	c.mu.Lock()
	c.user = me.UserID
	c.mu.Unlock()
	return me.UserID, nil
}

// SignedURL fetches a short-lived download link for the book's file.
func (c *Client) SignedURL(ctx context.Context, bookID string) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	_, err := c.do(ctx, request{method: http.MethodGet, url: c.bookURL(bookID) + "/url", attempts: readAttempts}, &out)
	if err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", errors.New("signed url: empty response")
	}
	return out.URL, nil
}

func (c *Client) ReportTotalPages(ctx context.Context, bookID string, n int) error {
	body := map[string]int{"total_pages": n}
	_, err := c.do(ctx, request{method: http.MethodPut, url: c.bookURL(bookID) + "/pages", body: body, attempts: writeAttempts}, nil)
	return err
}

func (c *Client) bookURL(bookID string) string {
	return c.cfg.LibraryURL + "/v1/books/" + url.PathEscape(bookID)
}

func (c *Client) progressURL(bookID string) string {
	return c.cfg.ProgressURL + "/v1/progress/" + url.PathEscape(bookID)
}

type Book struct {
	ID         string    `json:"id" yaml:"id"`
	Title      string    `json:"title" yaml:"title"`
	Author     string    `json:"author,omitempty" yaml:"author,omitempty"`
	Format     string    `json:"format" yaml:"format"`
	SizeBytes  int64     `json:"size_bytes" yaml:"size_bytes"`
	TotalPages *int      `json:"total_pages,omitempty" yaml:"total_pages,omitempty"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

func (c *Client) Books(ctx context.Context) ([]Book, error) {
	var out struct {
		Items []Book `json:"items"`
	}
	if _, err := c.do(ctx, request{method: http.MethodGet, url: c.cfg.LibraryURL + "/v1/books", attempts: readAttempts}, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) Book(ctx context.Context, bookID string) (Book, error) {
	var b Book
	_, err := c.do(ctx, request{method: http.MethodGet, url: c.bookURL(bookID), attempts: readAttempts}, &b)
	return b, err
}

// Get returns the saved position, or nil when none exists.
func (c *Client) Get(ctx context.Context, bookID string) (*session.Progress, error) {
	var p session.Progress
	_, err := c.do(ctx, request{method: http.MethodGet, url: c.progressURL(bookID), attempts: readAttempts}, &p)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// Upsert saves p. When the service accepts the write asynchronously the
// returned LastReadAt is the local send time.
func (c *Client) Upsert(ctx context.Context, p session.Progress) (session.Progress, error) {
	body := struct {
		CurrentPage int     `json:"current_page"`
		ZoomLevel   float64 `json:"zoom_level"`
	}{p.CurrentPage, p.ZoomLevel}

	var out session.Progress
	status, err := c.do(ctx, request{method: http.MethodPut, url: c.progressURL(p.BookID), body: body, attempts: writeAttempts}, &out)
	if err != nil {
		return session.Progress{}, err
	}
	if status == http.StatusAccepted {
		if p.LastReadAt.IsZero() {
			p.LastReadAt = time.Now().UTC()
		}
		return p, nil
	}
	return out, nil
}

// Recent lists positions ordered by last read, newest first.
func (c *Client) Recent(ctx context.Context, limit int) ([]session.Progress, error) {
	u := c.cfg.ProgressURL + "/v1/progress/"
	if limit > 0 {
		u += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Items []session.Progress `json:"items"`
	}
	if _, err := c.do(ctx, request{method: http.MethodGet, url: u, attempts: readAttempts}, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}
