package session

import "go.uber.org/zap"

func (s *Session) ZoomIn() bool {
	return s.zoomBy(ZoomStep)
}

func (s *Session) ZoomOut() bool {
	return s.zoomBy(-ZoomStep)
}

func (s *Session) zoomBy(delta float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setZoomLocked(s.pos.ZoomLevel + delta)
}

// SetZoom sets an explicit zoom level, clamped to [MinZoom, MaxZoom].
func (s *Session) SetZoom(z float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setZoomLocked(z)
}

func (s *Session) setZoomLocked(z float64) bool {
	if s.closed || !s.restored {
		return false
	}
	z = ClampZoom(z)
	// An explicit zoom, even a rejected one, wins over a fit still to come.
	s.userZoomed = true
	if z == s.pos.ZoomLevel {
		return false
	}
	s.pos.ZoomLevel = z
	s.changedLocked(EventZoomChanged)
	return true
}

// fitLocked returns the work that measures page 1 and applies the fit zoom,
// or nil when no fit is due.
func (s *Session) fitLocked() func() {
	if !s.fitDueLocked() {
		return nil
	}
	s.fitDone = true
	doc, gen, viewport := s.doc, s.gen, s.viewportH
	return func() {
		page, err := doc.RenderPage(1, 1.0)
		if err != nil || page.Height <= 0 {
			s.log.Warn("fit zoom skipped, page 1 not measurable", zap.Error(err))
			return
		}
		s.applyFit(gen, ClampZoom(viewport/page.Height))
	}
}

func (s *Session) fitDueLocked() bool {
	return s.restored && !s.fitDone && !s.userZoomed && !s.restore.hasSavedZoom() &&
		s.viewportH > 0 && s.doc != nil
}

func (s *Session) applyFit(gen uint64, zoom float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.gen || s.userZoomed || zoom == s.pos.ZoomLevel {
		return
	}
	// Display only; persisted with the next user change.
	s.pos.ZoomLevel = zoom
	s.emitLocked(Event{Kind: EventZoomChanged, Position: s.pos, Fit: true})
}
