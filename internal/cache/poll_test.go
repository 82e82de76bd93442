package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPollRefetchesRegardlessOfFreshness(t *testing.T) {
	s := New(Options{StaleAfter: time.Hour})
	var calls atomic.Int32

	handle := s.Poll(context.Background(), "botStatus", 10*time.Millisecond, constFetch("up", &calls))
	defer handle.Stop()

	require.Eventually(t, func() bool {
		return calls.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond, "polling must refetch even while the entry is fresh")
}

func TestPollStopsWhenLastObserverDetaches(t *testing.T) {
	s := New(Options{})
	var calls atomic.Int32

	handle := s.Poll(context.Background(), "performance", 10*time.Millisecond, constFetch("p", &calls))
	require.Eventually(t, func() bool {
		return calls.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)

	handle.Stop()
	settled := calls.Load()
	time.Sleep(100 * time.Millisecond)
	require.LessOrEqual(t, calls.Load(), settled+1,
		"after the last observer detaches, no further ticks are scheduled")

	stopped := calls.Load()
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, stopped, calls.Load())
}

func TestPollObserversShareOnePoller(t *testing.T) {
	s := New(Options{})
	var calls atomic.Int32

	h1 := s.Poll(context.Background(), "botStatus", 10*time.Millisecond, constFetch("up", &calls))
	h2 := s.Poll(context.Background(), "botStatus", 10*time.Millisecond, constFetch("up", &calls))

	require.Eventually(t, func() bool {
		return calls.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)

	// Dropping one observer keeps the shared poller alive.
	h1.Stop()
	before := calls.Load()
	require.Eventually(t, func() bool {
		return calls.Load() > before
	}, 2*time.Second, 5*time.Millisecond)

	h2.Stop()
	stopped := calls.Load()
	time.Sleep(100 * time.Millisecond)
	require.LessOrEqual(t, calls.Load(), stopped+1)
}

func TestPollHandleStopIsIdempotent(t *testing.T) {
	s := New(Options{})
	var calls atomic.Int32
	h1 := s.Poll(context.Background(), "botStatus", 10*time.Millisecond, constFetch("up", &calls))
	h2 := s.Poll(context.Background(), "botStatus", 10*time.Millisecond, constFetch("up", &calls))

	// Stopping the same handle twice must not detach the other observer.
	h1.Stop()
	h1.Stop()

	before := calls.Load()
	require.Eventually(t, func() bool {
		return calls.Load() > before
	}, 2*time.Second, 5*time.Millisecond, "second observer still polls")
	h2.Stop()
}

func TestFlushAllStopsPollers(t *testing.T) {
	s := New(Options{})
	var calls atomic.Int32
	handle := s.Poll(context.Background(), "botStatus", 10*time.Millisecond, constFetch("up", &calls))
	defer handle.Stop()

	require.Eventually(t, func() bool {
		return calls.Load() >= 1
	}, 2*time.Second, 5*time.Millisecond)

	s.FlushAll()
	stopped := calls.Load()
	time.Sleep(100 * time.Millisecond)
	require.LessOrEqual(t, calls.Load(), stopped+1, "session teardown halts background polling")
}
