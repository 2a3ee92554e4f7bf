// Package document downloads a book file and lays out its pages for the
// reader.
package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"go.uber.org/zap"

	"github.com/example/pagemark/services/reader/internal/session"
)

const DefaultMaxBytes int64 = 200 << 20

var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrTooLarge          = errors.New("document exceeds size limit")
	ErrPageOutOfRange    = errors.New("page out of range")
)

var pdfMagic = []byte("%PDF-")

// Loader implements session.Renderer for PDF files served over HTTP.
type Loader struct {
	HTTP     *http.Client
	MaxBytes int64
	Attempts uint
	Log      *zap.Logger
}

func NewLoader(log *zap.Logger) *Loader {
	return &Loader{
		HTTP:     &http.Client{Timeout: 2 * time.Minute},
		MaxBytes: DefaultMaxBytes,
		Attempts: 3,
		Log:      log,
	}
}

func (l *Loader) Load(ctx context.Context, url string) (session.Document, error) {
	body, err := l.download(ctx, url)
	if err != nil {
		return nil, err
	}
	return Parse(body)
}

func (l *Loader) download(ctx context.Context, url string) ([]byte, error) {
	client := l.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	limit := l.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	log := l.Log
	if log == nil {
		log = zap.NewNop()
	}

	return retry.DoWithData(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, retry.Unrecoverable(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 500:
			return nil, fmt.Errorf("download: status %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return nil, retry.Unrecoverable(fmt.Errorf("download: status %d", resp.StatusCode))
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
		if err != nil {
			return nil, err
		}
		if int64(len(data)) > limit {
			return nil, retry.Unrecoverable(ErrTooLarge)
		}
		return data, nil
	},
		retry.Context(ctx),
		retry.Attempts(max(1, l.Attempts)),
		retry.Delay(200*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn("document download retry", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
}

// Parse reads page geometry from a PDF held in memory. Anything that is not
// a PDF yields ErrUnsupportedFormat.
func Parse(data []byte) (*Document, error) {
	if !bytes.HasPrefix(data, pdfMagic) {
		return nil, ErrUnsupportedFormat
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	dims, err := api.PageDims(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("parse pdf: %w", err)
	}
	if len(dims) == 0 {
		return nil, errors.New("parse pdf: document has no pages")
	}
	return &Document{dims: dims}, nil
}

// Document is a parsed PDF. Pages are laid out from their MediaBox.
type Document struct {
	dims []types.Dim
}

func (d *Document) TotalPages() int { return len(d.dims) }

func (d *Document) RenderPage(n int, scale float64) (session.RenderedPage, error) {
	if n < 1 || n > len(d.dims) {
		return session.RenderedPage{}, fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, n, len(d.dims))
	}
	if scale <= 0 {
		scale = 1
	}
	dim := d.dims[n-1]
	return session.RenderedPage{
		Number: n,
		Width:  dim.Width * scale,
		Height: dim.Height * scale,
	}, nil
}
