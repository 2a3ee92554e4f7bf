package session

import (
	"math"
	"time"
)

const (
	MinZoom     = 0.5
	MaxZoom     = 3.0
	ZoomStep    = 0.25
	DefaultZoom = 1.0
)

// Position is a reading position within one book. CurrentPage is 1-based
// and, once the page count is known, never exceeds it.
type Position struct {
	BookID      string    `json:"book_id"`
	CurrentPage int       `json:"current_page"`
	ZoomLevel   float64   `json:"zoom_level"`
	LastReadAt  time.Time `json:"last_read_at"`
}

// Progress is a Position as the progress store keeps it.
type Progress = Position

// Clamp bounds page to [1, totalPages]. A totalPages below 1 yields 1.
func Clamp(page, totalPages int) int {
	return max(1, min(page, totalPages))
}

// SamePage reports whether a and b point at the same page. Zoom is ignored.
func SamePage(a, b Position) bool {
	return a.CurrentPage == b.CurrentPage
}

// ClampZoom bounds z to [MinZoom, MaxZoom]. NaN and non-positive values map
// to DefaultZoom.
func ClampZoom(z float64) float64 {
	if math.IsNaN(z) || z <= 0 {
		return DefaultZoom
	}
	return math.Max(MinZoom, math.Min(z, MaxZoom))
}
