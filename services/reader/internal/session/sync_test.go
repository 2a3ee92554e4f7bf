package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSync_DebounceCoalescesRapidChanges(t *testing.T) {
	h := newHarness(t, nil)
	h.started(t)

	for _, page := range []int{3, 4, 5} {
		require.NoError(t, h.s.JumpTo(page))
		h.clock.Advance(100 * time.Millisecond)
	}
	require.Empty(t, h.store.writes())

	h.clock.Advance(DefaultDebounce)
	ev := waitFor(t, h.s, EventSaved)
	require.Equal(t, 5, ev.Position.CurrentPage)

	h.clock.Advance(time.Hour)
	writes := h.store.writes()
	require.Len(t, writes, 1)
	require.Equal(t, 5, writes[0].CurrentPage)
	require.Equal(t, DefaultZoom, writes[0].ZoomLevel)
}

func TestSync_RetryAfterFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.started(t)
	h.store.failNext = 1

	require.NoError(t, h.s.JumpTo(7))
	h.clock.Advance(DefaultDebounce)
	failed := waitFor(t, h.s, EventSaveFailed)
	require.Equal(t, 7, failed.Position.CurrentPage)
	require.Error(t, failed.Err)
	require.Error(t, h.s.Snapshot().SaveErr)
	require.Equal(t, 7, h.s.Snapshot().Position.CurrentPage, "navigation is not rolled back")

	require.True(t, h.s.Prev())
	require.True(t, h.s.Next())
	h.clock.Advance(DefaultDebounce)
	saved := waitFor(t, h.s, EventSaved)
	require.Equal(t, 7, saved.Position.CurrentPage)
	require.Equal(t, 7, h.store.savedPage(testBook))
	require.Len(t, h.store.writes(), 2)
	require.NoError(t, h.s.Snapshot().SaveErr)
}

func TestSync_ReturningToSavedStateSkipsWrite(t *testing.T) {
	h := newHarness(t, nil)
	h.started(t)

	require.NoError(t, h.s.JumpTo(4))
	h.clock.Advance(DefaultDebounce)
	waitFor(t, h.s, EventSaved)

	require.True(t, h.s.Next())
	require.True(t, h.s.Prev())
	h.clock.Advance(DefaultDebounce)
	h.clock.Advance(time.Hour)
	require.Len(t, h.store.writes(), 1)
}

func TestSync_SingleQueuedSlotWhileInFlight(t *testing.T) {
	h := newHarness(t, nil)
	h.started(t)
	h.store.block = make(chan struct{})

	require.NoError(t, h.s.JumpTo(2))
	h.clock.Advance(DefaultDebounce)
	first := <-h.store.started
	require.Equal(t, 2, first.CurrentPage)
	require.True(t, h.s.Snapshot().Saving)

	require.NoError(t, h.s.JumpTo(3))
	h.clock.Advance(DefaultDebounce)
	require.NoError(t, h.s.JumpTo(4))
	h.clock.Advance(DefaultDebounce)

	h.store.block <- struct{}{}
	second := <-h.store.started
	require.Equal(t, 4, second.CurrentPage, "newer queued state replaces older")
	h.store.block <- struct{}{}

	require.Eventually(t, func() bool { return h.store.savedPage(testBook) == 4 }, 2*time.Second, 5*time.Millisecond)
	require.Len(t, h.store.writes(), 2)
}

func TestSync_InFlightStateIsNotDuplicated(t *testing.T) {
	h := newHarness(t, nil)
	h.started(t)
	h.store.block = make(chan struct{})

	require.NoError(t, h.s.JumpTo(2))
	h.clock.Advance(DefaultDebounce)
	<-h.store.started

	require.True(t, h.s.Next())
	require.True(t, h.s.Prev())
	h.clock.Advance(DefaultDebounce)

	h.store.block <- struct{}{}
	require.Eventually(t, func() bool { return !h.s.Snapshot().Saving }, 2*time.Second, 5*time.Millisecond)
	h.clock.Advance(time.Hour)
	require.Len(t, h.store.writes(), 1)
}

func TestSync_ReturnToSavedPageWhileOtherWriteInFlight(t *testing.T) {
	h := newHarness(t, nil)
	h.started(t)

	require.NoError(t, h.s.JumpTo(4))
	h.clock.Advance(DefaultDebounce)
	waitFor(t, h.s, EventSaved)
	<-h.store.started

	h.store.mu.Lock()
	h.store.block = make(chan struct{})
	h.store.mu.Unlock()
	require.True(t, h.s.Next())
	h.clock.Advance(DefaultDebounce)
	inFlight := <-h.store.started
	require.Equal(t, 5, inFlight.CurrentPage)

	require.True(t, h.s.Prev())
	h.clock.Advance(DefaultDebounce)

	h.store.block <- struct{}{}
	again := <-h.store.started
	require.Equal(t, 4, again.CurrentPage)
	h.store.block <- struct{}{}

	require.Eventually(t, func() bool {
		return h.store.savedPage(testBook) == 4 && !h.s.Snapshot().Saving
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, 4, h.s.Snapshot().Position.CurrentPage)
	require.Len(t, h.store.writes(), 3)
}

func TestSync_CloseDropsQueuedState(t *testing.T) {
	h := newHarness(t, nil)
	h.started(t)
	h.store.block = make(chan struct{})

	require.NoError(t, h.s.JumpTo(2))
	h.clock.Advance(DefaultDebounce)
	<-h.store.started

	require.NoError(t, h.s.JumpTo(3))
	h.clock.Advance(DefaultDebounce)
	h.s.Close()

	h.store.block <- struct{}{}
	require.Eventually(t, func() bool { return !h.s.Snapshot().Saving }, 2*time.Second, 5*time.Millisecond)
	h.clock.Advance(time.Hour)
	require.Len(t, h.store.writes(), 1)
	require.Equal(t, 2, h.store.savedPage(testBook))
}

func TestSync_FlushWritesPendingChangeNow(t *testing.T) {
	h := newHarness(t, nil)
	h.started(t)

	require.NoError(t, h.s.JumpTo(9))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.s.Flush(ctx))

	require.Equal(t, 9, h.store.savedPage(testBook))
	require.Zero(t, h.clock.Pending())
}

func TestSync_FlushWithNothingPending(t *testing.T) {
	h := newHarness(t, nil)
	h.started(t)
	require.NoError(t, h.s.Flush(context.Background()))
	require.Empty(t, h.store.writes())
}

func TestSync_CloseCancelsPendingTimer(t *testing.T) {
	h := newHarness(t, nil)
	h.started(t)

	require.NoError(t, h.s.JumpTo(6))
	require.Equal(t, 1, h.clock.Pending())
	h.s.Close()
	require.Zero(t, h.clock.Pending())

	h.clock.Advance(time.Hour)
	require.Empty(t, h.store.writes())
	require.False(t, h.s.Next())
}

func TestSyncEngine_Take(t *testing.T) {
	e := syncEngine{}
	e.seed(syncState{page: 1, zoom: 1})

	require.False(t, e.take(syncState{page: 1, zoom: 1}))
	require.True(t, e.take(syncState{page: 2, zoom: 1}))
	require.False(t, e.take(syncState{page: 2, zoom: 1}))
	require.False(t, e.take(syncState{page: 3, zoom: 1}))
	require.NotNil(t, e.queued)

	next := e.complete(syncState{page: 2, zoom: 1}, nil)
	require.NotNil(t, next)
	require.Equal(t, 3, next.page)
	require.Nil(t, e.complete(*next, nil))
	require.Equal(t, 3, e.lastSaved.page)
	require.False(t, e.saving())
}

func TestSyncEngine_TakeQueuesSavedStateBehindInFlight(t *testing.T) {
	e := syncEngine{}
	e.seed(syncState{page: 4, zoom: 1})

	require.True(t, e.take(syncState{page: 5, zoom: 1}))
	require.False(t, e.take(syncState{page: 4, zoom: 1}))
	require.NotNil(t, e.queued)

	next := e.complete(syncState{page: 5, zoom: 1}, nil)
	require.NotNil(t, next)
	require.Equal(t, 4, next.page)
	require.Nil(t, e.complete(*next, nil))
	require.Equal(t, 4, e.lastSaved.page)
}

func TestSyncEngine_StopClearsQueued(t *testing.T) {
	e := syncEngine{}
	e.seed(syncState{page: 1, zoom: 1})
	require.True(t, e.take(syncState{page: 2, zoom: 1}))
	require.False(t, e.take(syncState{page: 3, zoom: 1}))

	e.stop()
	require.Nil(t, e.complete(syncState{page: 2, zoom: 1}, nil))
	require.False(t, e.saving())
}

func TestSyncEngine_ZoomChangeIsWritten(t *testing.T) {
	e := syncEngine{}
	e.seed(syncState{page: 4, zoom: 1})
	require.True(t, e.take(syncState{page: 4, zoom: 1.25}))
}
