package suggest

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/rxsuggest/rxsuggest/pkg/dictionary"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultMinQueryLen = 2
	DefaultDebounce    = 300 * time.Millisecond
	DefaultLocalLimit  = 5
	DefaultMergedLimit = 10
)

// Options tune a Suggester. Zero values fall back to the defaults above.
type Options struct {
	MinQueryLen int
	Debounce    time.Duration
	LocalLimit  int
	MergedLimit int

	// Clock schedules debounce timers; nil uses the wall clock.
	Clock Clock
	// Recorder observes activity; nil discards it.
	Recorder Recorder
}

// DefaultOptions returns the stock tuning.
func DefaultOptions() Options {
	return Options{
		MinQueryLen: DefaultMinQueryLen,
		Debounce:    DefaultDebounce,
		LocalLimit:  DefaultLocalLimit,
		MergedLimit: DefaultMergedLimit,
	}
}

func (o Options) withDefaults() Options {
	if o.MinQueryLen <= 0 {
		o.MinQueryLen = DefaultMinQueryLen
	}
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if o.LocalLimit <= 0 {
		o.LocalLimit = DefaultLocalLimit
	}
	if o.MergedLimit <= 0 {
		o.MergedLimit = DefaultMergedLimit
	}
	if o.Clock == nil {
		o.Clock = realClock{}
	}
	if o.Recorder == nil {
		o.Recorder = nopRecorder{}
	}
	return o
}

// Suggester holds what all sessions share: the dictionary, the remote lookup and the cache.
type Suggester struct {
	dict   *dictionary.Dictionary
	remote Lookup
	cache  *Cache
	opts   Options
	flight singleflight.Group

	queries        atomic.Int64
	cacheMisses    atomic.Int64
	lookups        atomic.Int64
	lookupFailures atomic.Int64
	staleDropped   atomic.Int64
	sessions       atomic.Int64
}

// NewSuggester wires a suggester. remote may be nil for local-only operation;
// a nil cache gets an unbounded one and a nil dictionary an empty one.
func NewSuggester(dict *dictionary.Dictionary, remote Lookup, cache *Cache, opts Options) *Suggester {
	if dict == nil {
		dict = dictionary.New(nil)
	}
	if cache == nil {
		cache = NewCache(0)
	}
	return &Suggester{
		dict:   dict,
		remote: remote,
		cache:  cache,
		opts:   opts.withDefaults(),
	}
}

// Options returns the effective options.
func (s *Suggester) Options() Options {
	return s.opts
}

// Cache returns the shared response cache.
func (s *Suggester) Cache() *Cache {
	return s.cache
}

// Local runs only the synchronous dictionary pass for raw.
func (s *Suggester) Local(raw string) []Candidate {
	q := NewQuery(raw)
	if q.Len < s.opts.MinQueryLen {
		return []Candidate{}
	}
	return tagLocal(s.localNames(q))
}

func (s *Suggester) localNames(q Query) []string {
	prefix, contains := s.dict.Match(q.Normalized)
	matches := make([]string, 0, len(prefix)+len(contains))
	matches = append(matches, prefix...)
	matches = append(matches, contains...)
	return RankLocal(matches, q.Normalized, s.opts.LocalLimit)
}

// fetch asks the remote for q, title-cases the answer and caches it.
// Concurrent calls for the same normalized query share one request.
func (s *Suggester) fetch(ctx context.Context, q Query) ([]string, error) {
	v, err, shared := s.flight.Do(q.Normalized, func() (any, error) {
		start := time.Now()
		terms, err := s.remote.Lookup(ctx, q.Prefix())
		elapsed := time.Since(start)

		s.lookups.Add(1)
		s.opts.Recorder.LookupDone(elapsed, err)
		if err != nil {
			s.lookupFailures.Add(1)
			return nil, err
		}

		names := make([]string, 0, len(terms))
		for _, term := range terms {
			if name := TitleCase(term); name != "" {
				names = append(names, name)
			}
		}
		s.cache.Put(q.Normalized, names)
		log.Debugf("Remote returned %d names for '%s' in %v", len(names), q.Prefix(), elapsed)
		return names, nil
	})
	if err != nil {
		log.Debugf("Remote lookup for '%s' failed, using local results: %v", q.Prefix(), err)
		return nil, err
	}
	if shared {
		log.Debugf("Shared in-flight lookup for '%s'", q.Normalized)
	}
	return v.([]string), nil
}

// Stats returns suggester counters merged with cache and dictionary figures.
func (s *Suggester) Stats() map[string]int {
	stats := map[string]int{
		"queries":        int(s.queries.Load()),
		"cacheMisses":    int(s.cacheMisses.Load()),
		"lookups":        int(s.lookups.Load()),
		"lookupFailures": int(s.lookupFailures.Load()),
		"staleDropped":   int(s.staleDropped.Load()),
		"activeSessions": int(s.sessions.Load()),
	}
	for k, v := range s.cache.Stats() {
		stats[k] = v
	}
	for k, v := range s.dict.Stats() {
		stats[k] = v
	}
	if s.remote != nil {
		stats["remote"] = 1
	} else {
		stats["remote"] = 0
	}
	return stats
}

func (s *Suggester) recordQuery() {
	s.queries.Add(1)
	s.opts.Recorder.QueryAccepted()
}

func (s *Suggester) recordCacheHit() {
	s.opts.Recorder.CacheHit()
}

func (s *Suggester) recordCacheMiss() {
	s.cacheMisses.Add(1)
	s.opts.Recorder.CacheMiss()
}

func (s *Suggester) recordStale() {
	s.staleDropped.Add(1)
	s.opts.Recorder.StaleDropped()
}
