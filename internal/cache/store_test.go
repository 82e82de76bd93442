package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testClock is a manually advanced clock shared with the store under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func constFetch(value any, calls *atomic.Int32) FetchFunc {
	return func(ctx context.Context) (any, error) {
		calls.Add(1)
		return value, nil
	}
}

func TestGetFetchesOnceWhileFresh(t *testing.T) {
	clock := newTestClock()
	s := New(Options{Clock: clock.Now})
	var calls atomic.Int32

	entry, err := s.Get(context.Background(), "stats", constFetch("v1", &calls))
	require.NoError(t, err)
	require.Equal(t, StatusFresh, entry.Status)
	require.Equal(t, "v1", entry.Value)
	require.Equal(t, clock.Now(), entry.LastFetched)

	entry, err = s.Get(context.Background(), "stats", constFetch("v2", &calls))
	require.NoError(t, err)
	require.Equal(t, "v1", entry.Value, "fresh entry is served without refetching")
	require.Equal(t, int32(1), calls.Load())
}

func TestGetRefetchesPastStaleWindow(t *testing.T) {
	clock := newTestClock()
	s := New(Options{StaleAfter: time.Minute, Clock: clock.Now})
	var calls atomic.Int32

	_, err := s.Get(context.Background(), "stats", constFetch("v1", &calls))
	require.NoError(t, err)

	clock.Advance(61 * time.Second)
	entry, err := s.Get(context.Background(), "stats", constFetch("v2", &calls))
	require.NoError(t, err)
	require.Equal(t, "v2", entry.Value)
	require.Equal(t, int32(2), calls.Load())
}

func TestStaleOverridesByPrefix(t *testing.T) {
	clock := newTestClock()
	s := New(Options{
		StaleAfter:     5 * time.Minute,
		StaleOverrides: map[string]time.Duration{"botStatus": 15 * time.Second},
		Clock:          clock.Now,
	})
	var botCalls, userCalls atomic.Int32

	_, err := s.Get(context.Background(), "botStatus", constFetch("up", &botCalls))
	require.NoError(t, err)
	_, err = s.Get(context.Background(), "user", constFetch("u", &userCalls))
	require.NoError(t, err)

	clock.Advance(16 * time.Second)
	_, err = s.Get(context.Background(), "botStatus", constFetch("up", &botCalls))
	require.NoError(t, err)
	_, err = s.Get(context.Background(), "user", constFetch("u", &userCalls))
	require.NoError(t, err)

	require.Equal(t, int32(2), botCalls.Load(), "short override expired")
	require.Equal(t, int32(1), userCalls.Load(), "default window still fresh")
}

func TestConcurrentGetsShareOneFetch(t *testing.T) {
	s := New(Options{})
	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(ctx context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "shared", nil
	}

	const callers = 16
	var wg sync.WaitGroup
	results := make([]Entry, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry, err := s.Get(context.Background(), "channels", fetch)
			require.NoError(t, err)
			results[i] = entry
		}(i)
	}

	// Let every caller join the in-flight fetch before releasing it.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), calls.Load(), "concurrent gets must share one fetch")
	for _, entry := range results {
		require.Equal(t, "shared", entry.Value)
	}
}

func TestFailedRefreshPreservesPriorValue(t *testing.T) {
	clock := newTestClock()
	s := New(Options{StaleAfter: time.Minute, Clock: clock.Now})
	var calls atomic.Int32

	_, err := s.Get(context.Background(), "rules", constFetch("v1", &calls))
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	boom := errors.New("upstream down")
	entry, err := s.Get(context.Background(), "rules", func(ctx context.Context) (any, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, StatusError, entry.Status)
	require.True(t, entry.HasValue)
	require.Equal(t, "v1", entry.Value, "stale value survives a failed refresh")
	require.ErrorIs(t, entry.Err, boom)

	// The error state is not sticky: the next get fetches again.
	entry, err = s.Get(context.Background(), "rules", constFetch("v2", &calls))
	require.NoError(t, err)
	require.Equal(t, StatusFresh, entry.Status)
	require.Equal(t, "v2", entry.Value)
}

func TestInvalidateMarksStaleAndForcesRefetch(t *testing.T) {
	s := New(Options{})
	var calls atomic.Int32

	_, err := s.Get(context.Background(), "stats", constFetch("v1", &calls))
	require.NoError(t, err)

	s.Invalidate("stats")
	entry := s.Peek("stats")
	require.Equal(t, StatusStale, entry.Status)
	require.Equal(t, "v1", entry.Value, "stale value stays renderable")

	got, err := s.Get(context.Background(), "stats", constFetch("v2", &calls))
	require.NoError(t, err)
	require.Equal(t, "v2", got.Value)
	require.Equal(t, int32(2), calls.Load())
}

func TestInvalidatePrefixCoversNestedKeys(t *testing.T) {
	s := New(Options{})
	var calls atomic.Int32
	ctx := context.Background()

	_, err := s.Get(ctx, "analytics/30", constFetch("a30", &calls))
	require.NoError(t, err)
	_, err = s.Get(ctx, "analytics/90", constFetch("a90", &calls))
	require.NoError(t, err)
	_, err = s.Get(ctx, "analyticsOther", constFetch("other", &calls))
	require.NoError(t, err)

	s.Invalidate("analytics")
	require.Equal(t, StatusStale, s.Peek("analytics/30").Status)
	require.Equal(t, StatusStale, s.Peek("analytics/90").Status)
	require.Equal(t, StatusFresh, s.Peek("analyticsOther").Status,
		"prefix matching is segment-aware, not raw string prefix")
}

func TestInvalidateAlreadyStaleIsNoop(t *testing.T) {
	s := New(Options{})
	var calls atomic.Int32

	_, err := s.Get(context.Background(), "stats", constFetch("v1", &calls))
	require.NoError(t, err)
	s.Invalidate("stats")
	before := s.Peek("stats")
	s.Invalidate("stats")
	after := s.Peek("stats")

	require.Equal(t, before.Status, after.Status)
	require.Equal(t, before.Value, after.Value)
}

func TestInvalidationDuringInFlightFetchIsNotPublishedFresh(t *testing.T) {
	s := New(Options{})
	started := make(chan struct{})
	release := make(chan struct{})
	var preWriteCalls, postWriteCalls atomic.Int32

	done := make(chan Entry, 1)
	go func() {
		entry, _ := s.Get(context.Background(), "stats", func(ctx context.Context) (any, error) {
			preWriteCalls.Add(1)
			close(started)
			<-release
			return "pre-write", nil
		})
		done <- entry
	}()

	<-started
	// A mutation completes while the fetch is still in flight.
	s.Invalidate("stats")
	close(release)
	entry := <-done

	require.NotEqual(t, StatusFresh, entry.Status,
		"a fetch that started before the write must not be published fresh")
	require.NoError(t, entry.Err)
	require.True(t, entry.HasValue, "the fetched payload is still delivered, just not as fresh")
	require.Equal(t, "pre-write", entry.Value)
	require.Equal(t, StatusStale, entry.Status)

	peeked := s.Peek("stats")
	require.Equal(t, StatusStale, peeked.Status)
	require.Equal(t, "pre-write", peeked.Value, "the payload stays renderable while the refetch runs")

	// The next get performs a new fetch whose data post-dates the write.
	got, err := s.Get(context.Background(), "stats", constFetch("post-write", &postWriteCalls))
	require.NoError(t, err)
	require.Equal(t, StatusFresh, got.Status)
	require.Equal(t, "post-write", got.Value)
	require.Equal(t, int32(1), preWriteCalls.Load())
	require.Equal(t, int32(1), postWriteCalls.Load())
}

func TestFailedFetchAfterMidFlightInvalidationSettles(t *testing.T) {
	s := New(Options{})
	started := make(chan struct{})
	release := make(chan struct{})
	boom := errors.New("upstream down")

	done := make(chan Entry, 1)
	go func() {
		entry, _ := s.Get(context.Background(), "stats", func(ctx context.Context) (any, error) {
			close(started)
			<-release
			return nil, boom
		})
		done <- entry
	}()

	<-started
	s.Invalidate("stats")
	close(release)
	<-done

	// The entry must not linger as loading once its fetch has resolved.
	entry := s.Peek("stats")
	require.Equal(t, StatusError, entry.Status)
	require.ErrorIs(t, entry.Err, boom)

	var calls atomic.Int32
	got, err := s.Get(context.Background(), "stats", constFetch("recovered", &calls))
	require.NoError(t, err)
	require.Equal(t, StatusFresh, got.Status)
	require.Equal(t, "recovered", got.Value)
}

func TestFlushAllEmptiesAndIsIdempotent(t *testing.T) {
	s := New(Options{})
	var calls atomic.Int32
	ctx := context.Background()

	_, err := s.Get(ctx, "stats", constFetch("v", &calls))
	require.NoError(t, err)
	_, err = s.Get(ctx, "user", constFetch("u", &calls))
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())

	s.FlushAll()
	require.Zero(t, s.Len())
	require.Equal(t, StatusUnrequested, s.Peek("stats").Status)

	s.FlushAll()
	require.Zero(t, s.Len(), "flushing twice yields the same empty state")
}

func TestFlushDropsInFlightDelivery(t *testing.T) {
	s := New(Options{})
	started := make(chan struct{})
	release := make(chan struct{})

	done := make(chan Entry, 1)
	go func() {
		entry, _ := s.Get(context.Background(), "stats", func(ctx context.Context) (any, error) {
			close(started)
			<-release
			return "stale-session", nil
		})
		done <- entry
	}()

	<-started
	s.FlushAll()
	close(release)
	entry := <-done

	require.Equal(t, StatusUnrequested, entry.Status)
	require.Equal(t, StatusUnrequested, s.Peek("stats").Status,
		"a flushed cache must not be repopulated by a fetch from the old session")
}

func TestPeekDoesNotFetch(t *testing.T) {
	s := New(Options{})
	entry := s.Peek("stats")
	require.Equal(t, StatusUnrequested, entry.Status)
	require.False(t, entry.HasValue)
	require.Zero(t, s.Len())
}
