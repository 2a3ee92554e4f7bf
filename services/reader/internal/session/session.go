// Package session holds the reading state for one open book: the restored
// position, navigation, fit zoom and the debounced write-back of progress.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultSwipeThreshold = 50.0
	defaultWriteTimeout   = 10 * time.Second
	eventBuffer           = 128
)

type Options struct {
	BookID   string
	Auth     AuthProvider
	Objects  ObjectStore
	Renderer Renderer
	Progress ProgressStore
	// Library receives the measured page count after load. May be nil.
	Library PageCountReporter

	Clock          Clock
	Debounce       time.Duration
	SwipeThreshold float64
	WriteTimeout   time.Duration
	Logger         *zap.Logger
}

type loadState int

const (
	stateIdle loadState = iota
	stateLoading
	stateReady
	stateFailed
)

// Session is safe for concurrent use. Async completions re-enter through the
// mutex; nothing blocks while holding it.
type Session struct {
	opts Options
	log  *zap.Logger

	mu     sync.Mutex
	ctx    context.Context
	gen    uint64
	state  loadState
	loadEr error
	doc    Document
	total  int

	restore    restorer
	restored   bool
	pos        Position
	userZoomed bool
	fitDone    bool
	viewportW  float64
	viewportH  float64

	sync   syncEngine
	events chan Event
	closed bool
}

// View is a point-in-time copy of the session state for rendering.
type View struct {
	Position   Position
	TotalPages int
	Loading    bool
	Restored   bool
	LoadErr    error
	Saving     bool
	SaveErr    error
}

func New(opts Options) (*Session, error) {
	if opts.BookID == "" {
		return nil, errors.New("session: book id is required")
	}
	if opts.Auth == nil || opts.Objects == nil || opts.Renderer == nil || opts.Progress == nil {
		return nil, errors.New("session: auth, objects, renderer and progress are required")
	}
	if opts.Clock == nil {
		opts.Clock = RealClock
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.SwipeThreshold <= 0 {
		opts.SwipeThreshold = DefaultSwipeThreshold
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Session{
		opts:   opts,
		log:    opts.Logger.With(zap.String("book_id", opts.BookID)),
		pos:    Position{BookID: opts.BookID, CurrentPage: 1, ZoomLevel: DefaultZoom},
		sync:   syncEngine{debounce: opts.Debounce, clock: opts.Clock},
		events: make(chan Event, eventBuffer),
	}, nil
}

// Events delivers state changes in the order they happened. The channel is
// closed by Close. Events are dropped when the buffer is full.
func (s *Session) Events() <-chan Event { return s.events }

// Start begins the progress lookup and the document load. Calling it again
// while a load is running or after it succeeded is a no-op.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state == stateLoading || s.state == stateReady {
		s.mu.Unlock()
		return nil
	}
	gen := s.beginLoadLocked(ctx)
	s.mu.Unlock()

	go s.load(gen)
	return nil
}

// Reload retries a failed load. It is a no-op otherwise.
func (s *Session) Reload(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state != stateFailed {
		s.mu.Unlock()
		return nil
	}
	gen := s.beginLoadLocked(ctx)
	s.mu.Unlock()

	s.log.Info("reloading document")
	go s.load(gen)
	return nil
}

func (s *Session) beginLoadLocked(ctx context.Context) uint64 {
	s.gen++
	s.ctx = context.WithoutCancel(ctx)
	s.state = stateLoading
	s.loadEr = nil
	s.doc = nil
	s.total = 0
	s.restore = restorer{}
	s.restored = false
	s.fitDone = false
	s.userZoomed = false
	s.pos = Position{BookID: s.opts.BookID, CurrentPage: 1, ZoomLevel: DefaultZoom}
	s.sync.cancelPending()
	s.sync.lastSaved = nil
	s.sync.queued = nil
	s.sync.lastErr = nil
	return s.gen
}

func (s *Session) load(gen uint64) {
	ctx := s.loadContext()
	if _, err := s.opts.Auth.CurrentUser(ctx); err != nil {
		s.onDocument(gen, nil, fmt.Errorf("resolve user: %w", err))
		return
	}

	go func() {
		p, err := s.opts.Progress.Get(ctx, s.opts.BookID)
		s.onRemote(gen, p, err)
	}()

	url, err := s.opts.Objects.SignedURL(ctx, s.opts.BookID)
	if err != nil {
		s.onDocument(gen, nil, fmt.Errorf("signed url: %w", err))
		return
	}
	doc, err := s.opts.Renderer.Load(ctx, url)
	if err != nil {
		s.onDocument(gen, nil, fmt.Errorf("load document: %w", err))
		return
	}
	s.onDocument(gen, doc, nil)
}

func (s *Session) loadContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *Session) onRemote(gen uint64, p *Progress, err error) {
	if err != nil {
		s.log.Warn("progress lookup failed, starting from page 1", zap.Error(err))
		p = nil
	}
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.restore.setRemote(p)
	fx := s.tryRestoreLocked()
	s.mu.Unlock()
	fx.run()
}

func (s *Session) onDocument(gen uint64, doc Document, err error) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.state = stateFailed
		s.loadEr = err
		s.emitLocked(Event{Kind: EventLoadFailed, Position: s.pos, Err: err})
		s.mu.Unlock()
		s.log.Error("document load failed", zap.Error(err))
		return
	}
	s.state = stateReady
	s.doc = doc
	s.total = max(1, doc.TotalPages())
	s.restore.setTotalPages(s.total)
	s.emitLocked(Event{Kind: EventLoaded, Position: s.pos})
	fx := s.tryRestoreLocked()
	fx = append(fx, s.reportTotalLocked())
	s.mu.Unlock()
	fx.run()
}

func (s *Session) reportTotalLocked() func() {
	lib := s.opts.Library
	if lib == nil {
		return nil
	}
	ctx, total := s.ctx, s.total
	return func() {
		go func() {
			ctx, cancel := context.WithTimeout(ctx, s.opts.WriteTimeout)
			defer cancel()
			if err := lib.ReportTotalPages(ctx, s.opts.BookID, total); err != nil {
				s.log.Warn("report total pages failed", zap.Int("total_pages", total), zap.Error(err))
			}
		}()
	}
}

func (s *Session) tryRestoreLocked() effects {
	page, zoom, ok := s.restore.resolve()
	if !ok {
		return nil
	}
	s.restored = true
	s.pos.CurrentPage = page
	s.pos.ZoomLevel = zoom
	s.sync.seed(syncState{page: page, zoom: zoom})
	s.emitLocked(Event{Kind: EventRestored, Position: s.pos})
	s.log.Debug("position restored", zap.Int("page", page), zap.Float64("zoom", zoom))
	return effects{s.fitLocked()}
}

// SetViewport records the drawable area. The height feeds the one-time fit
// zoom calculation.
func (s *Session) SetViewport(width, height float64) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.viewportW, s.viewportH = width, height
	fx := effects{s.fitLocked()}
	s.mu.Unlock()
	fx.run()
}

// Snapshot returns the current state.
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		Position:   s.pos,
		TotalPages: s.total,
		Loading:    s.state == stateLoading,
		Restored:   s.restored,
		LoadErr:    s.loadEr,
		Saving:     s.sync.saving(),
		SaveErr:    s.sync.lastErr,
	}
}

// Flush writes a pending debounced change immediately and waits until no
// write is in flight. It returns the error of the last write, if it failed.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	var fx effects
	if s.sync.cancelPending() && !s.closed {
		fx = append(fx, s.flushLocked())
	}
	idle := s.sync.waitIdle()
	s.mu.Unlock()
	fx.run()

	select {
	case <-idle:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sync.lastErr
}

// Close stops the debounce timer and discards the document. A write already
// in flight may still complete.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.sync.stop()
	s.doc = nil
	close(s.events)
}

func (s *Session) emitLocked(ev Event) {
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.log.Debug("event dropped", zap.Stringer("kind", ev.Kind))
	}
}

// changedLocked publishes a displayed-state change and restarts the debounce.
func (s *Session) changedLocked(kind EventKind) {
	s.emitLocked(Event{Kind: kind, Position: s.pos})
	s.sync.schedule(s.onTimer)
}

func (s *Session) onTimer(seq uint64) {
	s.mu.Lock()
	if s.closed || !s.sync.fired(seq) {
		s.mu.Unlock()
		return
	}
	fx := effects{s.flushLocked()}
	s.mu.Unlock()
	fx.run()
}

func (s *Session) flushLocked() func() {
	target := syncState{page: s.pos.CurrentPage, zoom: s.pos.ZoomLevel}
	if !s.sync.take(target) {
		return nil
	}
	return s.writer(target)
}

func (s *Session) writer(target syncState) func() {
	ctx := s.ctx
	return func() { go s.write(ctx, target) }
}

func (s *Session) write(ctx context.Context, target syncState) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.WriteTimeout)
	saved, err := s.opts.Progress.Upsert(ctx, Progress{
		BookID:      s.opts.BookID,
		CurrentPage: target.page,
		ZoomLevel:   target.zoom,
		LastReadAt:  s.opts.Clock.Now(),
	})
	cancel()

	s.mu.Lock()
	next := s.sync.complete(target, err)
	sent := Position{BookID: s.opts.BookID, CurrentPage: target.page, ZoomLevel: target.zoom}
	if err != nil {
		s.emitLocked(Event{Kind: EventSaveFailed, Position: sent, Err: err})
	} else {
		sent.LastReadAt = saved.LastReadAt
		if target.page == s.pos.CurrentPage && !saved.LastReadAt.IsZero() {
			s.pos.LastReadAt = saved.LastReadAt
		}
		s.emitLocked(Event{Kind: EventSaved, Position: sent})
	}
	var fx effects
	if next != nil {
		fx = effects{s.writer(*next)}
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("progress save failed", zap.Int("page", target.page), zap.Error(err))
	}
	fx.run()
}

// effects run after the mutex is released.
type effects []func()

func (fx effects) run() {
	for _, f := range fx {
		if f != nil {
			f()
		}
	}
}
