/*
Package suggest is the core: it turns a partially typed drug name into ranked suggestions,
blending an instant local dictionary pass with a debounced, cached remote lookup.

A Suggester owns the shared pieces (dictionary, remote lookup, response cache).
Every search input gets its own Session, which runs a small state machine on one goroutine:

	Idle --NewQuery--> PendingDebounce --DebounceFired--> Lookup --LookupCompleted--> Idle
	                       ^    |                           |
	                       +----+ NewQuery restarts timer   + NewQuery: result discarded on arrival

Every query publishes a local-only Result right away (Loading true), and the merged Result
(Loading false) once the quiet period has passed and the remote answer, cached or fresh, is in.
Queries shorter than the minimum length publish a single empty Result and never touch the
dictionary or the network. Queries without a letter or digit publish their local Result
as final and skip the remote.

Remote failures never reach the publisher: the final Result then holds only local names.
*/
package suggest

import (
	"context"
	"time"
)

// Source tags where a suggestion came from.
type Source string

const (
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
)

// Candidate is a suggested display name with its provenance.
type Candidate struct {
	Name   string `json:"name" msgpack:"n"`
	Source Source `json:"source" msgpack:"src"`
}

// Result is what a session publishes for a query.
// Seq grows with every query the session accepts; a higher Seq always supersedes a lower one.
type Result struct {
	Query       string
	Seq         uint64
	Suggestions []Candidate
	Loading     bool
}

// Lookup is the remote name service: prefix in, raw terms out.
type Lookup interface {
	Lookup(ctx context.Context, prefix string) ([]string, error)
}

// LookupFunc adapts a plain function to Lookup.
type LookupFunc func(ctx context.Context, prefix string) ([]string, error)

func (f LookupFunc) Lookup(ctx context.Context, prefix string) ([]string, error) {
	return f(ctx, prefix)
}

// Timer is the part of *time.Timer a session needs.
type Timer interface {
	Stop() bool
}

// Clock schedules debounce callbacks.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Recorder observes suggester activity, e.g. for metrics export.
type Recorder interface {
	QueryAccepted()
	CacheHit()
	CacheMiss()
	LookupDone(elapsed time.Duration, err error)
	StaleDropped()
}

type nopRecorder struct{}

func (nopRecorder) QueryAccepted()                  {}
func (nopRecorder) CacheHit()                       {}
func (nopRecorder) CacheMiss()                      {}
func (nopRecorder) LookupDone(time.Duration, error) {}
func (nopRecorder) StaleDropped()                   {}
