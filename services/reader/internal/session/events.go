package session

type EventKind int

const (
	EventLoaded EventKind = iota + 1
	EventLoadFailed
	EventRestored
	EventPageChanged
	EventZoomChanged
	EventSaved
	EventSaveFailed
)

func (k EventKind) String() string {
	switch k {
	case EventLoaded:
		return "loaded"
	case EventLoadFailed:
		return "load_failed"
	case EventRestored:
		return "restored"
	case EventPageChanged:
		return "page_changed"
	case EventZoomChanged:
		return "zoom_changed"
	case EventSaved:
		return "saved"
	case EventSaveFailed:
		return "save_failed"
	}
	return "unknown"
}

// Event notifies listeners of a state change. Position is the displayed
// position at the time of the event; for save events it is the one sent.
type Event struct {
	Kind     EventKind
	Position Position
	// Fit marks a zoom change made by the fit-to-height calculation.
	Fit bool
	Err error
}
