// ABOUTME: Tests for the dispatch tracker
// ABOUTME: Covers admission, release idempotency, abandonment and per-key concurrency

package dispatch

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestTracker_TryAcquire_DeniesSecond(t *testing.T) {
	tr := NewTracker(nil)

	assert.True(t, tr.TryAcquire("s-1"))
	assert.False(t, tr.TryAcquire("s-1"))
	assert.True(t, tr.IsBusy("s-1"))

	// Other sessions are independent
	assert.True(t, tr.TryAcquire("s-2"))
}

func TestTracker_Release_Idempotent(t *testing.T) {
	tr := NewTracker(nil)

	tr.Release("never-acquired")

	require.True(t, tr.TryAcquire("s-1"))
	tr.Release("s-1")
	tr.Release("s-1")

	assert.False(t, tr.IsBusy("s-1"))
	assert.True(t, tr.TryAcquire("s-1"), "released session can be acquired again")
}

func TestTracker_IsBusy_DoesNotMutate(t *testing.T) {
	tr := NewTracker(nil)

	assert.False(t, tr.IsBusy("s-1"))
	assert.True(t, tr.TryAcquire("s-1"), "probe must not create an entry")
}

func TestTracker_Abandon_NoEntry(t *testing.T) {
	tr := NewTracker(nil)
	assert.False(t, tr.Abandon("s-1"))
}

func TestTracker_Commit_SkippedAfterAbandon(t *testing.T) {
	tr := NewTracker(nil)
	require.True(t, tr.TryAcquire("s-1"))

	calls := 0
	applied, err := tr.Commit("s-1", func() error { calls++; return nil })
	require.NoError(t, err)
	assert.True(t, applied)

	assert.True(t, tr.Abandon("s-1"))

	applied, err = tr.Commit("s-1", func() error { calls++; return nil })
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, 1, calls)

	// Abandoned entries still occupy the session until released
	assert.True(t, tr.IsBusy("s-1"))
	tr.Release("s-1")
	assert.False(t, tr.IsBusy("s-1"))
}

func TestTracker_Commit_PropagatesError(t *testing.T) {
	tr := NewTracker(nil)
	require.True(t, tr.TryAcquire("s-1"))

	boom := errors.New("boom")
	applied, err := tr.Commit("s-1", func() error { return boom })
	assert.True(t, applied)
	assert.ErrorIs(t, err, boom)
}

func TestTracker_Commit_WithoutEntry(t *testing.T) {
	tr := NewTracker(nil)

	applied, err := tr.Commit("s-1", func() error {
		t.Fatal("fn must not run without an entry")
		return nil
	})
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestTracker_Abandon_WaitsForRunningCommit(t *testing.T) {
	tr := NewTracker(nil)
	require.True(t, tr.TryAcquire("s-1"))

	started := make(chan struct{})
	finish := make(chan struct{})
	var committed atomic.Bool

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = tr.Commit("s-1", func() error {
			close(started)
			<-finish
			committed.Store(true)
			return nil
		})
	}()

	<-started
	abandoned := make(chan struct{})
	go func() {
		tr.Abandon("s-1")
		close(abandoned)
	}()

	select {
	case <-abandoned:
		t.Fatal("Abandon returned while a commit was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(finish)
	<-abandoned
	wg.Wait()
	assert.True(t, committed.Load())
}

func TestTracker_ConcurrentAcquire_SingleWinner(t *testing.T) {
	tr := NewTracker(nil)

	const n = 64
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if tr.TryAcquire("hot") {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestTracker_ConcurrentSessions_Independent(t *testing.T) {
	tr := NewTracker(nil)

	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			assert.True(t, tr.TryAcquire(id))
		}(id)
	}
	wg.Wait()

	assert.Len(t, tr.InFlight(), len(ids))
	for _, id := range ids {
		tr.Release(id)
	}
	assert.Empty(t, tr.InFlight())
}

func TestTracker_AbandonAll(t *testing.T) {
	tr := NewTracker(nil)
	require.True(t, tr.TryAcquire("a"))
	require.True(t, tr.TryAcquire("b"))

	ids := tr.AbandonAll()
	assert.ElementsMatch(t, []string{"a", "b"}, ids)

	for _, snap := range tr.InFlight() {
		assert.True(t, snap.Abandoned)
	}
}

func TestTracker_InFlight_OrderedByStart(t *testing.T) {
	tr := NewTracker(nil)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	tr.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	require.True(t, tr.TryAcquire("first"))
	require.True(t, tr.TryAcquire("second"))

	snaps := tr.InFlight()
	require.Len(t, snaps, 2)
	assert.Equal(t, "first", snaps[0].SessionID)
	assert.Equal(t, "second", snaps[1].SessionID)
}
