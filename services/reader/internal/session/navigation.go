package session

import "math"

// Next advances one page. It reports whether the position changed.
func (s *Session) Next() bool { return s.step(+1) }

// Prev goes back one page.
func (s *Session) Prev() bool { return s.step(-1) }

func (s *Session) First() bool {
	return s.goTo(func(int, int) int { return 1 })
}

func (s *Session) Last() bool {
	return s.goTo(func(_, total int) int { return total })
}

func (s *Session) step(delta int) bool {
	return s.goTo(func(cur, total int) int { return Clamp(cur+delta, total) })
}

func (s *Session) goTo(target func(cur, total int) int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.restored {
		return false
	}
	page := target(s.pos.CurrentPage, s.total)
	if page == s.pos.CurrentPage {
		return false
	}
	s.pos.CurrentPage = page
	s.changedLocked(EventPageChanged)
	return true
}

// JumpTo moves to page. Out-of-range input returns a *ValidationError and
// leaves the position unchanged.
func (s *Session) JumpTo(page int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if !s.restored {
		return ErrNotRestored
	}
	if page < 1 || page > s.total {
		return &ValidationError{Field: "page", Value: page, Min: 1, Max: s.total}
	}
	if page == s.pos.CurrentPage {
		return nil
	}
	s.pos.CurrentPage = page
	s.changedLocked(EventPageChanged)
	return nil
}

// Swipe interprets a drag by its dominant axis. Left or up moves forward,
// right or down moves back. Drags shorter than the threshold are ignored.
func (s *Session) Swipe(dx, dy float64) bool {
	var travel float64
	forward := false
	if math.Abs(dx) >= math.Abs(dy) {
		travel, forward = math.Abs(dx), dx < 0
	} else {
		travel, forward = math.Abs(dy), dy < 0
	}
	if travel < s.opts.SwipeThreshold {
		return false
	}
	if forward {
		return s.Next()
	}
	return s.Prev()
}
