// Package cache is the single source of truth for "do we already have this
// resource, and is it still good enough to show without refetching." It
// holds every remote resource keyed by a logical path, tracks per-entry
// freshness, de-duplicates concurrent fetches, and applies invalidation in
// a way that can never resurrect pre-write data as fresh.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Status is the lifecycle state of one cache entry.
type Status string

const (
	StatusUnrequested Status = "unrequested"
	StatusLoading     Status = "loading"
	StatusFresh       Status = "fresh"
	StatusStale       Status = "stale"
	StatusError       Status = "error"
)

// Entry is the read-only snapshot handed to callers. Value holds the last
// successfully fetched payload even when Status is stale or error; a failed
// refresh preserves the prior value rather than discarding it.
type Entry struct {
	Key         string
	Value       any
	HasValue    bool
	Status      Status
	LastFetched time.Time
	Err         error
}

// FetchFunc produces the remote value for a key. It runs at most once per
// set of concurrent Get callers.
type FetchFunc func(ctx context.Context) (any, error)

// Instrumentation receives cache activity. The metrics recorder implements
// it; a nil value disables reporting.
type Instrumentation interface {
	CacheLookup(resource, outcome string)
	ObserveFetch(resource string, seconds float64, outcome string)
}

// Options configure a Store.
type Options struct {
	// StaleAfter is the default freshness window. Zero means 5 minutes.
	StaleAfter time.Duration
	// StaleOverrides maps a key prefix to a freshness window, for
	// resource classes whose freshness matters more than request
	// economy. Longest matching prefix wins.
	StaleOverrides map[string]time.Duration
	// Limiter budgets background poll ticks. Ticks over budget are
	// skipped rather than queued. Nil disables throttling.
	Limiter *rate.Limiter
	Logger  *slog.Logger
	Metrics Instrumentation
	// Clock overrides time.Now in tests.
	Clock func() time.Time
}

type entry struct {
	value       any
	hasValue    bool
	status      Status
	lastFetched time.Time
	err         error
	// gen is bumped by every invalidation touching this key. A fetch
	// records the gen it started under and publishes fresh data only if
	// the gen is unchanged at completion; otherwise the result may
	// predate a completed write and is downgraded to stale.
	gen uint64
}

type poller struct {
	observers int
	stopC     chan struct{}
}

// Store is the process-wide resource cache for one authenticated session.
// All entry mutation funnels through Get's fetch-completion path,
// Invalidate, and FlushAll; no other code writes entries.
type Store struct {
	defaultStale time.Duration
	overrides    map[string]time.Duration
	limiter      *rate.Limiter
	logger       *slog.Logger
	metrics      Instrumentation
	clock        func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	epoch   uint64
	group   singleflight.Group

	pollMu  sync.Mutex
	pollers map[string]*poller
}

// New builds an empty store.
func New(opts Options) *Store {
	stale := opts.StaleAfter
	if stale <= 0 {
		stale = 5 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		defaultStale: stale,
		overrides:    opts.StaleOverrides,
		limiter:      opts.Limiter,
		logger:       logger,
		metrics:      opts.Metrics,
		clock:        clock,
		entries:      make(map[string]*entry),
		pollers:      make(map[string]*poller),
	}
}

// Get returns the entry for key, fetching when it is unrequested or past
// its freshness window. Concurrent callers for the same key share a single
// in-flight fetch. On failure the prior value is preserved and the
// normalized error recorded; the error is also returned to the caller.
func (s *Store) Get(ctx context.Context, key string, fetch FetchFunc) (Entry, error) {
	s.mu.Lock()
	e := s.entries[key]
	if e == nil {
		e = &entry{status: StatusUnrequested}
		s.entries[key] = e
	}
	now := s.clock()
	if e.status == StatusFresh && now.Sub(e.lastFetched) < s.staleAfterFor(key) {
		snap := snapshot(key, e)
		s.mu.Unlock()
		s.lookup(key, "hit")
		return snap, nil
	}
	startGen := e.gen
	startEpoch := s.epoch
	outcome := "miss"
	if e.hasValue {
		outcome = "stale"
	}
	if e.status == StatusUnrequested || e.status == StatusFresh || e.status == StatusStale || e.status == StatusError {
		e.status = StatusLoading
	}
	s.mu.Unlock()
	s.lookup(key, outcome)

	// The flight key carries epoch and generation: callers racing before
	// any response share one fetch, while callers arriving after an
	// invalidation start a new one whose data post-dates the write.
	flightKey := fmt.Sprintf("%s#%d.%d", key, startEpoch, startGen)
	value, err, _ := s.group.Do(flightKey, func() (any, error) {
		start := s.clock()
		v, ferr := fetch(ctx)
		if s.metrics != nil {
			result := "ok"
			if ferr != nil {
				result = "error"
			}
			s.metrics.ObserveFetch(keyClass(key), s.clock().Sub(start).Seconds(), result)
		}
		return v, ferr
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.entries[key]
	if cur == nil || s.epoch != startEpoch {
		// Flushed while in flight: the session ended, drop delivery.
		return Entry{Key: key, Status: StatusUnrequested}, err
	}
	if err != nil {
		if cur.gen == startGen {
			cur.status = StatusError
			cur.err = err
		} else if cur.status == StatusLoading {
			// Invalidated mid-flight and the fetch failed. Settle the
			// entry so it does not linger observably as loading.
			if cur.hasValue {
				cur.status = StatusStale
			} else {
				cur.status = StatusError
				cur.err = err
			}
		}
		return snapshot(key, cur), err
	}
	if cur.gen != startGen {
		// A write invalidated this key mid-flight. The fetched payload
		// may predate the write, so it is stored for rendering but never
		// published as fresh; the next Get refetches. When a newer fetch
		// already published, its data wins over ours.
		if cur.status != StatusFresh {
			cur.value = value
			cur.hasValue = true
			cur.status = StatusStale
			cur.lastFetched = s.clock()
			cur.err = nil
		}
		return snapshot(key, cur), nil
	}
	cur.value = value
	cur.hasValue = true
	cur.status = StatusFresh
	cur.lastFetched = s.clock()
	cur.err = nil
	return snapshot(key, cur), nil
}

// Peek returns the current entry without triggering a fetch.
func (s *Store) Peek(key string) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[key]
	if e == nil {
		return Entry{Key: key, Status: StatusUnrequested}
	}
	return snapshot(key, e)
}

// Invalidate marks every entry under the given pattern stale without
// clearing its value, so the next Get refetches while stale data can still
// render. A pattern matches the identical key and any key nested below it
// ("analytics" covers "analytics/30" and "analytics/90").
func (s *Store) Invalidate(pattern string) {
	if pattern == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.entries {
		if !matchKey(key, pattern) {
			continue
		}
		e.gen++
		if e.status != StatusLoading && e.status != StatusUnrequested {
			e.status = StatusStale
		}
	}
}

// FlushAll clears every entry and drops delivery of any fetch still in
// flight. Called on logout; calling it twice yields the same empty state.
func (s *Store) FlushAll() {
	s.mu.Lock()
	s.entries = make(map[string]*entry)
	s.epoch++
	s.mu.Unlock()
	s.stopAllPollers()
	s.logger.Debug("cache flushed")
}

// Len reports the number of known entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// expire forces the next Get for key to refetch regardless of freshness,
// without bumping the generation: the stored value stays deliverable.
func (s *Store) expire(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.entries[key]; e != nil && e.status == StatusFresh {
		e.status = StatusStale
	}
}

func (s *Store) staleAfterFor(key string) time.Duration {
	best := s.defaultStale
	bestLen := -1
	for prefix, d := range s.overrides {
		if matchKey(key, prefix) && len(prefix) > bestLen {
			best = d
			bestLen = len(prefix)
		}
	}
	return best
}

func (s *Store) lookup(key, outcome string) {
	if s.metrics != nil {
		s.metrics.CacheLookup(keyClass(key), outcome)
	}
}

func snapshot(key string, e *entry) Entry {
	return Entry{
		Key:         key,
		Value:       e.value,
		HasValue:    e.hasValue,
		Status:      e.status,
		LastFetched: e.lastFetched,
		Err:         e.err,
	}
}

// matchKey reports whether key falls under pattern: the identical key or
// anything nested below it with a "/" separator.
func matchKey(key, pattern string) bool {
	return key == pattern || strings.HasPrefix(key, pattern+"/")
}

// keyClass collapses a key to its first segment for metric labels, keeping
// cardinality bounded across parameterized keys.
func keyClass(key string) string {
	if i := strings.IndexByte(key, '/'); i > 0 {
		return key[:i]
	}
	return key
}
