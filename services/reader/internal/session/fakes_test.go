package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	c       *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward and runs due callbacks on the caller's goroutine.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []func()
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t.f)
		}
	}
	c.mu.Unlock()
	for _, f := range due {
		f()
	}
}

func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// fakeStore is an in-memory ProgressStore shared across sessions.
type fakeStore struct {
	mu       sync.Mutex
	saved    map[string]Progress
	gets     int
	upserts  []Progress
	getErr   error
	failNext int

	// getGate, when set, holds Get until closed.
	getGate chan struct{}
	// block, when set, holds every Upsert until a value is received.
	block   chan struct{}
	started chan Progress
}

func newFakeStore() *fakeStore {
	return &fakeStore{saved: map[string]Progress{}, started: make(chan Progress, 16)}
}

func (f *fakeStore) Get(ctx context.Context, bookID string) (*Progress, error) {
	f.mu.Lock()
	gate := f.getGate
	f.gets++
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	p, ok := f.saved[bookID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakeStore) Upsert(ctx context.Context, p Progress) (Progress, error) {
	f.mu.Lock()
	f.upserts = append(f.upserts, p)
	block := f.block
	f.mu.Unlock()
	f.started <- p
	if block != nil {
		<-block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return Progress{}, errors.New("store unavailable")
	}
	p.LastReadAt = p.LastReadAt.UTC()
	f.saved[p.BookID] = p
	return p, nil
}

func (f *fakeStore) writes() []Progress {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Progress(nil), f.upserts...)
}

func (f *fakeStore) savedPage(bookID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saved[bookID].CurrentPage
}

type fakeAuth struct{ err error }

func (a fakeAuth) CurrentUser(context.Context) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	return "user-1", nil
}

type fakeObjects struct {
	mu  sync.Mutex
	err error
}

func (o *fakeObjects) SignedURL(_ context.Context, bookID string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return "", o.err
	}
	return "https://files.test/" + bookID, nil
}

func (o *fakeObjects) setErr(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
}

type fakeDoc struct {
	pages  int
	width  float64
	height float64
}

func (d fakeDoc) TotalPages() int { return d.pages }

func (d fakeDoc) RenderPage(n int, scale float64) (RenderedPage, error) {
	if n < 1 || n > d.pages {
		return RenderedPage{}, fmt.Errorf("page %d out of range", n)
	}
	return RenderedPage{Number: n, Width: d.width * scale, Height: d.height * scale}, nil
}

type fakeRenderer struct {
	doc  fakeDoc
	gate chan struct{}
}

func (r *fakeRenderer) Load(context.Context, string) (Document, error) {
	if r.gate != nil {
		<-r.gate
	}
	return r.doc, nil
}

type fakeLibrary struct {
	mu    sync.Mutex
	calls []int
}

func (l *fakeLibrary) ReportTotalPages(_ context.Context, _ string, n int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, n)
	return nil
}

func (l *fakeLibrary) reported() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.calls...)
}

const testBook = "book-1"

type harness struct {
	s        *Session
	clock    *fakeClock
	store    *fakeStore
	objects  *fakeObjects
	renderer *fakeRenderer
	library  *fakeLibrary
}

func newHarness(t *testing.T, store *fakeStore) *harness {
	t.Helper()
	if store == nil {
		store = newFakeStore()
	}
	h := &harness{
		clock:    newFakeClock(),
		store:    store,
		objects:  &fakeObjects{},
		renderer: &fakeRenderer{doc: fakeDoc{pages: 10, width: 600, height: 800}},
		library:  &fakeLibrary{},
	}
	s, err := New(Options{
		BookID:   testBook,
		Auth:     fakeAuth{},
		Objects:  h.objects,
		Renderer: h.renderer,
		Progress: store,
		Library:  h.library,
		Clock:    h.clock,
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	h.s = s
	return h
}

// started starts the session and waits for restoration.
func (h *harness) started(t *testing.T) Event {
	t.Helper()
	require.NoError(t, h.s.Start(context.Background()))
	return waitFor(t, h.s, EventRestored)
}

// waitFor reads events until one of kind arrives.
func waitFor(t *testing.T, s *Session, kind EventKind) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			require.True(t, ok, "events closed while waiting for %s", kind)
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

func requireNoEvent(t *testing.T, s *Session) {
	t.Helper()
	select {
	case ev := <-s.Events():
		t.Fatalf("unexpected event %s", ev.Kind)
	default:
	}
}

func drain(s *Session) {
	for {
		select {
		case <-s.Events():
		default:
			return
		}
	}
}
