package server

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/rxsuggest/rxsuggest/pkg/dictionary"
	"github.com/rxsuggest/rxsuggest/pkg/suggest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func init() {
	log.SetLevel(log.FatalLevel)
}

// immediateClock fires every debounce timer right away.
type immediateClock struct{}

type noopTimer struct{}

func (noopTimer) Stop() bool { return false }

func (immediateClock) AfterFunc(_ time.Duration, f func()) suggest.Timer {
	go f()
	return noopTimer{}
}

type harness struct {
	in   *io.PipeWriter
	enc  *msgpack.Encoder
	out  chan msgpack.RawMessage
	done chan error
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()

	remote := suggest.LookupFunc(func(_ context.Context, prefix string) ([]string, error) {
		if strings.EqualFold(prefix, "met") {
			return []string{"METFORMIN XR"}, nil
		}
		return nil, nil
	})
	sopts := suggest.DefaultOptions()
	sopts.Clock = immediateClock{}
	dict := dictionary.New([]string{"Metformin", "Methotrexate", "Aspirin"})
	s := suggest.NewSuggester(dict, remote, nil, sopts)

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	h := &harness{
		in:   inW,
		enc:  msgpack.NewEncoder(inW),
		out:  make(chan msgpack.RawMessage, 64),
		done: make(chan error, 1),
	}

	srv := NewServer(s, inR, outW, opts)
	go func() {
		h.done <- srv.Start(context.Background())
		outW.Close()
	}()
	go func() {
		dec := msgpack.NewDecoder(outR)
		for {
			raw, err := dec.DecodeRaw()
			if err != nil {
				close(h.out)
				return
			}
			h.out <- raw
		}
	}()

	t.Cleanup(func() {
		inW.Close()
		select {
		case <-h.done:
		case <-time.After(2 * time.Second):
			t.Error("server did not stop after input closed")
		}
	})

	var ready ControlResponse
	h.read(t, &ready)
	require.Equal(t, "ready", ready.Status)
	return h
}

func (h *harness) write(t *testing.T, v any) {
	t.Helper()
	require.NoError(t, h.enc.Encode(v))
}

func (h *harness) read(t *testing.T, v any) {
	t.Helper()
	select {
	case raw, ok := <-h.out:
		require.True(t, ok, "output closed")
		require.NoError(t, msgpack.Unmarshal(raw, v))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a response")
	}
}

func names(resp SuggestResponse) []string {
	out := make([]string, len(resp.Suggestions))
	for i, s := range resp.Suggestions {
		out[i] = s.Name
	}
	return out
}

func TestSuggestRequest(t *testing.T) {
	h := newHarness(t, Options{})

	h.write(t, SuggestRequest{ID: "k1", SID: "form", Query: "met"})

	var first SuggestResponse
	h.read(t, &first)
	assert.Equal(t, "k1", first.ID)
	assert.Equal(t, "form", first.SID)
	assert.Equal(t, "met", first.Query)
	assert.Equal(t, uint64(1), first.Seq)
	assert.True(t, first.Loading)
	assert.Equal(t, []string{"Metformin", "Methotrexate"}, names(first))
	assert.Equal(t, 2, first.Count)

	var final SuggestResponse
	h.read(t, &final)
	assert.Equal(t, "k1", final.ID)
	assert.False(t, final.Loading)
	assert.Equal(t, []string{"Metformin", "Metformin Xr", "Methotrexate"}, names(final))
	assert.Equal(t, []Suggestion{
		{Name: "Metformin", Source: suggest.SourceLocal, Rank: 1},
		{Name: "Metformin Xr", Source: suggest.SourceRemote, Rank: 2},
		{Name: "Methotrexate", Source: suggest.SourceLocal, Rank: 3},
	}, final.Suggestions)
	assert.GreaterOrEqual(t, final.TimeTaken, int64(0))
}

func TestShortQuery(t *testing.T) {
	h := newHarness(t, Options{})

	h.write(t, SuggestRequest{ID: "k1", Query: "m"})
	var resp SuggestResponse
	h.read(t, &resp)
	assert.Equal(t, "default", resp.SID)
	assert.False(t, resp.Loading)
	assert.Empty(t, resp.Suggestions)
	assert.Equal(t, 0, resp.Count)
}

func TestQueryIsCleaned(t *testing.T) {
	h := newHarness(t, Options{MaxQueryLen: 3})

	h.write(t, SuggestRequest{ID: "k1", Query: "as\x00pirin"})
	var resp SuggestResponse
	h.read(t, &resp)
	assert.Equal(t, "asp", resp.Query)
	assert.Equal(t, []string{"Aspirin"}, names(resp))
}

func TestControlRequests(t *testing.T) {
	h := newHarness(t, Options{})

	h.write(t, ControlRequest{ID: "c1", Action: "ping"})
	var pong ControlResponse
	h.read(t, &pong)
	assert.Equal(t, ControlResponse{ID: "c1", Status: "pong"}, pong)

	h.write(t, SuggestRequest{ID: "k1", SID: "a", Query: "x"})
	var short SuggestResponse
	h.read(t, &short)

	h.write(t, ControlRequest{ID: "c2", Action: "stats"})
	var stats ControlResponse
	h.read(t, &stats)
	assert.Equal(t, "ok", stats.Status)
	assert.Equal(t, 1, stats.Stats["sessions"])
	assert.Equal(t, 3, stats.Stats["requests"])
	assert.Equal(t, 1, stats.Stats["queries"])
	assert.Equal(t, 3, stats.Stats["dictionaryNames"])

	h.write(t, ControlRequest{ID: "c3", Action: "close", SID: "a"})
	var closed ControlResponse
	h.read(t, &closed)
	assert.Equal(t, "closed", closed.Status)

	h.write(t, ControlRequest{ID: "c4", Action: "close", SID: "a"})
	var missing ErrorResponse
	h.read(t, &missing)
	assert.Equal(t, ErrorResponse{ID: "c4", Error: "Unknown session: a", Code: 404}, missing)
}

func TestBadRequests(t *testing.T) {
	h := newHarness(t, Options{})

	testCases := []struct {
		request     any
		id          string
		code        int
		description string
	}{
		{"just a string", "", 400, "not a map"},
		{map[string]any{"id": "x1", "sid": "a"}, "x1", 400, "missing query"},
		{ControlRequest{ID: "x2", Action: "reload"}, "x2", 400, "unknown action"},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			h.write(t, tc.request)
			var resp ErrorResponse
			h.read(t, &resp)
			assert.Equal(t, tc.id, resp.ID)
			assert.Equal(t, tc.code, resp.Code)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestMaxSessionsEvictsLeastRecentlyUsed(t *testing.T) {
	h := newHarness(t, Options{MaxSessions: 2})

	for _, sid := range []string{"a", "b", "a", "c"} {
		h.write(t, SuggestRequest{ID: "k-" + sid, SID: sid, Query: "x"})
		var resp SuggestResponse
		h.read(t, &resp)
		require.Equal(t, sid, resp.SID)
	}

	h.write(t, ControlRequest{ID: "c1", Action: "stats"})
	var stats ControlResponse
	h.read(t, &stats)
	assert.Equal(t, 2, stats.Stats["sessions"])
	assert.Equal(t, 1, stats.Stats["sessionEvictions"])

	// "b" was idlest, so it is the one gone
	h.write(t, ControlRequest{ID: "c2", Action: "close", SID: "b"})
	var missing ErrorResponse
	h.read(t, &missing)
	assert.Equal(t, 404, missing.Code)

	h.write(t, ControlRequest{ID: "c3", Action: "close", SID: "a"})
	var closed ControlResponse
	h.read(t, &closed)
	assert.Equal(t, "closed", closed.Status)

	t.Run("EvictedSessionStartsOver", func(t *testing.T) {
		h.write(t, SuggestRequest{ID: "k-b2", SID: "b", Query: "asp"})
		var resp SuggestResponse
		h.read(t, &resp)
		assert.Equal(t, "b", resp.SID)
		assert.Equal(t, uint64(1), resp.Seq)
	})
}

func TestStartStopsOnEOF(t *testing.T) {
	h := newHarness(t, Options{})
	h.in.Close()

	select {
	case err := <-h.done:
		assert.NoError(t, err)
		h.done <- err
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
