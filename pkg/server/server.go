package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/rxsuggest/rxsuggest/internal/utils"
	"github.com/rxsuggest/rxsuggest/pkg/suggest"
	"github.com/vmihailenco/msgpack/v5"
)

const defaultSID = "default"

// Options bound what clients can ask of the server.
// Once MaxSessions are live, opening another closes the least recently used one.
type Options struct {
	MaxSessions int
	MaxQueryLen int
}

// Server handles suggestion IPC over a msgpack stream.
type Server struct {
	suggester *suggest.Suggester
	opts      Options
	reader    io.Reader

	writeMu sync.Mutex
	writer  *bufio.Writer
	encoder *msgpack.Encoder

	mu       sync.Mutex
	sessions map[string]*sessionEntry

	requests  atomic.Int64
	evictions atomic.Int64
}

// sessionEntry maps a session's sequence numbers back to the requests that caused them.
type sessionEntry struct {
	session  *suggest.Session
	lastUsed time.Time // guarded by Server.mu

	mu      sync.Mutex
	sent    uint64
	pending map[uint64]pendingRequest
}

type pendingRequest struct {
	id    string
	start time.Time
}

// NewServer creates a server reading requests from r and writing responses to w.
func NewServer(s *suggest.Suggester, r io.Reader, w io.Writer, opts Options) *Server {
	bw := bufio.NewWriter(w)
	return &Server{
		suggester: s,
		opts:      opts,
		reader:    r,
		writer:    bw,
		encoder:   msgpack.NewEncoder(bw),
		sessions:  make(map[string]*sessionEntry),
	}
}

// Start signals readiness and serves requests until the input ends or ctx is done.
// All sessions are closed before it returns.
func (s *Server) Start(ctx context.Context) error {
	log.Debug("Starting Server.")
	defer s.closeAll()

	if err := s.send(ControlResponse{Status: "ready"}); err != nil {
		return err
	}

	decoder := msgpack.NewDecoder(bufio.NewReader(s.reader))
	for {
		if ctx.Err() != nil {
			return nil
		}
		raw, err := decoder.DecodeRaw()
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Debug("Input closed, shutting down")
				return nil
			}
			log.Errorf("Reading from stdin: %v", err)
			return fmt.Errorf("failed to decode request: %w", err)
		}
		s.requests.Add(1)
		s.handleRequest(ctx, raw, time.Now())
	}
}

func (s *Server) handleRequest(ctx context.Context, raw msgpack.RawMessage, received time.Time) {
	var msg message
	if err := msgpack.Unmarshal(raw, &msg); err != nil {
		log.Errorf("Unmarshaling request: %v", err)
		s.sendError("", "Invalid msgpack request", 400)
		return
	}

	switch msg.Action {
	case "":
		if msg.Query == nil {
			s.sendError(msg.ID, "Missing 'q' field", 400)
			return
		}
		s.handleSuggest(ctx, SuggestRequest{ID: msg.ID, SID: msg.SID, Query: *msg.Query}, received)
	case "close":
		s.handleClose(msg.ID, msg.SID)
	case "stats":
		s.send(ControlResponse{ID: msg.ID, Status: "ok", Stats: s.Stats()})
	case "ping":
		s.send(ControlResponse{ID: msg.ID, Status: "pong"})
	default:
		s.sendError(msg.ID, fmt.Sprintf("Unknown action: %s", msg.Action), 400)
	}
}

func (s *Server) handleSuggest(ctx context.Context, req SuggestRequest, received time.Time) {
	sid := req.SID
	if sid == "" {
		sid = defaultSID
	}
	query := utils.CleanQuery(req.Query, s.opts.MaxQueryLen)

	entry := s.session(ctx, sid, received)

	entry.mu.Lock()
	entry.sent++
	entry.pending[entry.sent] = pendingRequest{id: req.ID, start: received}
	entry.mu.Unlock()

	if !entry.session.Update(query) {
		s.dropSession(sid, entry)
		s.sendError(req.ID, "Session closed", 410)
	}
}

// session returns the live session for sid, creating it if needed.
func (s *Server) session(ctx context.Context, sid string, now time.Time) *sessionEntry {
	s.mu.Lock()
	if entry, ok := s.sessions[sid]; ok {
		entry.lastUsed = now
		s.mu.Unlock()
		return entry
	}

	var evicted *sessionEntry
	if s.opts.MaxSessions > 0 && len(s.sessions) >= s.opts.MaxSessions {
		evicted = s.evictIdlest()
	}

	entry := &sessionEntry{lastUsed: now, pending: make(map[uint64]pendingRequest)}
	entry.session = s.suggester.NewSession(ctx, func(r suggest.Result) {
		s.publish(sid, entry, r)
	})
	s.sessions[sid] = entry
	log.Debugf("Opened session '%s' (%d live)", sid, len(s.sessions))
	s.mu.Unlock()

	if evicted != nil {
		evicted.session.Close()
	}
	return entry
}

// evictIdlest removes the least recently used session from the map. Callers hold s.mu
// and close the returned session after unlocking.
func (s *Server) evictIdlest() *sessionEntry {
	var oldestSID string
	var oldest *sessionEntry
	for sid, entry := range s.sessions {
		if oldest == nil || entry.lastUsed.Before(oldest.lastUsed) {
			oldestSID, oldest = sid, entry
		}
	}
	if oldest != nil {
		delete(s.sessions, oldestSID)
		s.evictions.Add(1)
		log.Debugf("Session limit reached, evicting idle session '%s'", oldestSID)
	}
	return oldest
}

func (s *Server) publish(sid string, entry *sessionEntry, r suggest.Result) {
	entry.mu.Lock()
	req := entry.pending[r.Seq]
	if !r.Loading {
		for seq := range entry.pending {
			if seq <= r.Seq {
				delete(entry.pending, seq)
			}
		}
	}
	entry.mu.Unlock()

	ranks := utils.CreateRankList(len(r.Suggestions))
	suggestions := make([]Suggestion, len(r.Suggestions))
	for i, c := range r.Suggestions {
		suggestions[i] = Suggestion{Name: c.Name, Source: c.Source, Rank: ranks[i]}
	}

	var elapsed int64
	if !req.start.IsZero() {
		elapsed = time.Since(req.start).Microseconds()
	}
	s.send(SuggestResponse{
		ID:          req.id,
		SID:         sid,
		Query:       r.Query,
		Seq:         r.Seq,
		Suggestions: suggestions,
		Count:       len(suggestions),
		Loading:     r.Loading,
		TimeTaken:   elapsed,
	})
}

func (s *Server) handleClose(id, sid string) {
	if sid == "" {
		sid = defaultSID
	}
	s.mu.Lock()
	entry, ok := s.sessions[sid]
	delete(s.sessions, sid)
	s.mu.Unlock()

	if !ok {
		s.sendError(id, fmt.Sprintf("Unknown session: %s", sid), 404)
		return
	}
	entry.session.Close()
	log.Debugf("Closed session '%s'", sid)
	s.send(ControlResponse{ID: id, Status: "closed"})
}

func (s *Server) dropSession(sid string, entry *sessionEntry) {
	s.mu.Lock()
	if s.sessions[sid] == entry {
		delete(s.sessions, sid)
	}
	s.mu.Unlock()
}

func (s *Server) closeAll() {
	s.mu.Lock()
	entries := make([]*sessionEntry, 0, len(s.sessions))
	for sid, entry := range s.sessions {
		entries = append(entries, entry)
		delete(s.sessions, sid)
	}
	s.mu.Unlock()

	for _, entry := range entries {
		entry.session.Close()
	}
}

// Stats returns the suggester counters plus server figures.
func (s *Server) Stats() map[string]int {
	stats := s.suggester.Stats()
	s.mu.Lock()
	stats["sessions"] = len(s.sessions)
	s.mu.Unlock()
	stats["requests"] = int(s.requests.Load())
	stats["sessionEvictions"] = int(s.evictions.Load())
	return stats
}

// send encodes one message and flushes it. Safe for concurrent use.
func (s *Server) send(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.encoder.Encode(v); err != nil {
		log.Errorf("Marshaling response: %v", err)
		return err
	}
	if err := s.writer.Flush(); err != nil {
		log.Errorf("Writing response: %v", err)
		return err
	}
	return nil
}

func (s *Server) sendError(id, message string, code int) {
	s.send(ErrorResponse{ID: id, Error: message, Code: code})
}
