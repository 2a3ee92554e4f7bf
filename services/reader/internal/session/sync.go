package session

import "time"

const DefaultDebounce = 750 * time.Millisecond

// syncState is the persisted part of a position.
type syncState struct {
	page int
	zoom float64
}

func (s syncState) equal(o *syncState) bool {
	return o != nil && s.page == o.page && s.zoom == o.zoom
}

// syncEngine decides when the displayed position is written. Every method
// runs with the session mutex held; the engine itself never does I/O.
type syncEngine struct {
	debounce time.Duration
	clock    Clock

	timer   Timer
	seq     uint64
	pending bool
	stopped bool

	lastSaved *syncState
	inFlight  *syncState
	queued    *syncState
	lastErr   error
	idle      chan struct{}
}

// seed marks s as already persisted so it is not written back.
func (e *syncEngine) seed(s syncState) {
	e.lastSaved = &s
	e.lastErr = nil
}

// schedule restarts the trailing-edge timer. fire receives the sequence
// number so a callback that lost a race with a reschedule can be ignored.
func (e *syncEngine) schedule(fire func(seq uint64)) {
	if e.stopped {
		return
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	e.seq++
	seq := e.seq
	e.pending = true
	e.timer = e.clock.AfterFunc(e.debounce, func() { fire(seq) })
}

// fired reports whether a timer callback with seq is still the current one,
// and consumes it.
func (e *syncEngine) fired(seq uint64) bool {
	if e.stopped || !e.pending || seq != e.seq {
		return false
	}
	e.pending = false
	e.timer = nil
	return true
}

// cancelPending drops a scheduled timer and reports whether one existed.
func (e *syncEngine) cancelPending() bool {
	if !e.pending {
		return false
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	e.pending = false
	e.timer = nil
	return true
}

// take decides what to do with target at flush time. It returns true when
// the caller must start a write for target now.
// While a write is in flight, a target that differs from it is queued even
// when it matches lastSaved, since the in-flight write will replace lastSaved.
func (e *syncEngine) take(target syncState) bool {
	if e.inFlight != nil {
		if target.equal(e.inFlight) {
			e.queued = nil
		} else {
			e.queued = &target
		}
		return false
	}
	if target.equal(e.lastSaved) {
		e.queued = nil
		return false
	}
	e.inFlight = &target
	return true
}

// complete records the outcome of the write for sent and returns the queued
// state to send next, if any.
func (e *syncEngine) complete(sent syncState, err error) *syncState {
	e.inFlight = nil
	if err != nil {
		e.lastErr = err
	} else {
		e.lastSaved = &sent
		e.lastErr = nil
	}
	if q := e.queued; q != nil {
		e.queued = nil
		if !q.equal(e.lastSaved) {
			e.inFlight = q
			return q
		}
	}
	if e.idle != nil {
		close(e.idle)
		e.idle = nil
	}
	return nil
}

func (e *syncEngine) saving() bool {
	return e.inFlight != nil
}

// waitIdle returns a channel closed once no write is in flight.
func (e *syncEngine) waitIdle() <-chan struct{} {
	if e.inFlight == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	if e.idle == nil {
		e.idle = make(chan struct{})
	}
	return e.idle
}

// stop cancels the timer and drops the queued state; a write already in
// flight is left to finish.
func (e *syncEngine) stop() {
	e.cancelPending()
	e.queued = nil
	e.stopped = true
}
