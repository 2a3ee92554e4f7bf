package session

import "context"

// AuthProvider resolves the signed-in user.
type AuthProvider interface {
	CurrentUser(ctx context.Context) (string, error)
}

// ObjectStore issues a short-lived download URL for a book's file.
type ObjectStore interface {
	SignedURL(ctx context.Context, bookID string) (string, error)
}

// Renderer parses a document fetched from url.
type Renderer interface {
	Load(ctx context.Context, url string) (Document, error)
}

type Document interface {
	TotalPages() int
	// RenderPage lays out page n (1-based) at scale.
	RenderPage(n int, scale float64) (RenderedPage, error)
}

type RenderedPage struct {
	Number int
	Width  float64
	Height float64
}

// ProgressStore reads and writes the remote reading position. Get returns
// (nil, nil) when nothing is saved for the book.
type ProgressStore interface {
	Get(ctx context.Context, bookID string) (*Progress, error)
	Upsert(ctx context.Context, p Progress) (Progress, error)
}

// PageCountReporter records the page count measured on load. Optional.
type PageCountReporter interface {
	ReportTotalPages(ctx context.Context, bookID string, n int) error
}
