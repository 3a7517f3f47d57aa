package suggest

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/rxsuggest/rxsuggest/internal/utils"
)

type state int

const (
	stateIdle state = iota
	statePending
	stateLookup
)

func (st state) String() string {
	switch st {
	case statePending:
		return "pending"
	case stateLookup:
		return "lookup"
	default:
		return "idle"
	}
}

type eventKind int

const (
	evQuery eventKind = iota
	evDebounce
	evLookup
)

type event struct {
	kind  eventKind
	seq   uint64
	raw   string
	names []string
	err   error
}

// Publisher receives every Result a session produces, in order, on the session goroutine.
// It must not call back into the same session synchronously.
type Publisher func(Result)

// Session tracks one search input. Update may be called from any goroutine;
// all state changes and publishes happen on the session's own goroutine.
type Session struct {
	s       *Suggester
	publish Publisher
	events  chan event
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	// owned by run
	state state
	seq   uint64
	query Query
	local []string
	timer Timer
}

// NewSession starts a session. It ends when ctx is cancelled or Close is called.
func (s *Suggester) NewSession(ctx context.Context, publish Publisher) *Session {
	ctx, cancel := context.WithCancel(ctx)
	sess := &Session{
		s:       s,
		publish: publish,
		events:  make(chan event, 16),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	s.sessions.Add(1)
	go sess.run()
	return sess
}

// Update feeds the current text of the input. It returns false once the session has ended.
func (ss *Session) Update(raw string) bool {
	return ss.send(event{kind: evQuery, raw: raw})
}

// Close stops the session and waits for its goroutine. Pending timers are cancelled and
// in-flight lookups are left to finish with their results dropped.
func (ss *Session) Close() {
	ss.cancel()
	<-ss.done
}

// Done is closed when the session goroutine exits.
func (ss *Session) Done() <-chan struct{} {
	return ss.done
}

func (ss *Session) send(ev event) bool {
	if ss.ctx.Err() != nil {
		return false
	}
	select {
	case ss.events <- ev:
		return true
	case <-ss.ctx.Done():
		return false
	}
}

func (ss *Session) run() {
	defer close(ss.done)
	defer ss.s.sessions.Add(-1)

	for {
		select {
		case <-ss.ctx.Done():
			ss.stopTimer()
			return
		case ev := <-ss.events:
			switch ev.kind {
			case evQuery:
				ss.onQuery(ev.raw)
			case evDebounce:
				ss.onDebounce(ev.seq)
			case evLookup:
				ss.onLookup(ev)
			}
		}
	}
}

func (ss *Session) onQuery(raw string) {
	ss.seq++
	ss.stopTimer()
	log.Debugf("Query '%s' (seq %d) replaces state %s", raw, ss.seq, ss.state)
	ss.query = NewQuery(raw)
	ss.s.recordQuery()

	if ss.query.Len < ss.s.opts.MinQueryLen {
		ss.state = stateIdle
		ss.local = nil
		ss.emit([]Candidate{}, false)
		return
	}

	ss.local = ss.s.localNames(ss.query)

	// nothing the remote could match on, e.g. "--" or "?!"
	if !utils.HasSearchableChars(ss.query.Normalized) {
		ss.state = stateIdle
		ss.emit(tagLocal(ss.local), false)
		return
	}

	seq := ss.seq
	ss.timer = ss.s.opts.Clock.AfterFunc(ss.s.opts.Debounce, func() {
		ss.send(event{kind: evDebounce, seq: seq})
	})
	ss.state = statePending
	ss.emit(tagLocal(ss.local), true)
}

func (ss *Session) onDebounce(seq uint64) {
	// a timer that fired before Stop could cancel it still delivers; drop it
	if seq != ss.seq || ss.state != statePending {
		return
	}
	ss.timer = nil
	ss.state = stateLookup

	q := ss.query
	if names, ok := ss.s.cache.Get(q.Normalized); ok {
		ss.s.recordCacheHit()
		ss.finish(names)
		return
	}
	if ss.s.remote == nil {
		ss.finish(nil)
		return
	}
	ss.s.recordCacheMiss()

	// the lookup outlives a superseding query or a closed session; only its publish is dropped
	ctx := context.WithoutCancel(ss.ctx)
	go func() {
		names, err := ss.s.fetch(ctx, q)
		ss.send(event{kind: evLookup, seq: seq, raw: q.Raw, names: names, err: err})
	}()
}

func (ss *Session) onLookup(ev event) {
	if ev.seq != ss.seq || ss.state != stateLookup {
		ss.s.recordStale()
		log.Debugf("Dropping stale lookup for '%s' (seq %d, current %d)", ev.raw, ev.seq, ss.seq)
		return
	}
	if ev.err != nil {
		ss.finish(nil)
		return
	}
	ss.finish(ev.names)
}

func (ss *Session) finish(remote []string) {
	merged := Merge(ss.query.Normalized, ss.local, remote, ss.s.opts.MergedLimit)
	ss.state = stateIdle
	ss.emit(merged, false)
}

func (ss *Session) emit(suggestions []Candidate, loading bool) {
	if ss.publish == nil {
		return
	}
	ss.publish(Result{
		Query:       ss.query.Raw,
		Seq:         ss.seq,
		Suggestions: suggestions,
		Loading:     loading,
	})
}

func (ss *Session) stopTimer() {
	if ss.timer != nil {
		ss.timer.Stop()
		ss.timer = nil
	}
}
