/*
Package server implements msgpack IPC for drug-name suggestions.

The server reads a stream of msgpack maps from stdin and writes msgpack maps to stdout.
Every client-side search box is a session, named by the client through the "sid" field.
Sessions are created on first use and live until closed or until stdin ends.

# IPC

A keystroke is sent as a suggest request carrying the full current text of the input:

	{"id": "k1", "sid": "rx-form", "q": "met"}

The server answers asynchronously. Each query gets an immediate local answer with l=true,
and later the merged answer with l=false once the quiet period has passed and the remote
lookup (or the cache) has answered:

	{"id": "k1", "sid": "rx-form", "q": "met", "seq": 3, "s": [{"n": "Metformin", "src": "local", "r": 1}], "c": 1, "l": true, "t": 85}
	{"id": "k1", "sid": "rx-form", "q": "met", "seq": 3, "s": [{"n": "Metformin", "src": "local", "r": 1}, {"n": "Metformin Xr", "src": "remote", "r": 2}], "c": 2, "l": false, "t": 301240}

A higher seq always supersedes a lower one within a session. Answers for superseded queries
may still arrive with l=true but a superseded query never gets an l=false answer.

Control messages manage sessions and the process:

	{"id": "c1", "action": "close", "sid": "rx-form"}
	{"id": "c2", "action": "stats"}
	{"id": "c3", "action": "ping"}

Errors come back as {"id": ..., "e": message, "c": code}, with HTTP-like codes.
Writes are serialized, so answers from different sessions never interleave.
*/
package server

import "github.com/rxsuggest/rxsuggest/pkg/suggest"

// SuggestRequest feeds the current text of a search input.
type SuggestRequest struct {
	ID    string `msgpack:"id"`
	SID   string `msgpack:"sid"`
	Query string `msgpack:"q"`
}

// Suggestion is one ranked name in a response.
type Suggestion struct {
	Name   string         `msgpack:"n"`
	Source suggest.Source `msgpack:"src"`
	Rank   uint16         `msgpack:"r"`
}

// SuggestResponse carries one published result.
type SuggestResponse struct {
	ID          string       `msgpack:"id"`
	SID         string       `msgpack:"sid"`
	Query       string       `msgpack:"q"`
	Seq         uint64       `msgpack:"seq"`
	Suggestions []Suggestion `msgpack:"s"`
	Count       int          `msgpack:"c"`
	Loading     bool         `msgpack:"l"`
	// TimeTaken is microseconds since the request was read.
	TimeTaken int64 `msgpack:"t"`
}

// ControlRequest manages sessions: "close", "stats" or "ping".
type ControlRequest struct {
	ID     string `msgpack:"id"`
	Action string `msgpack:"action"`
	SID    string `msgpack:"sid,omitempty"`
}

// ControlResponse acknowledges a control request.
type ControlResponse struct {
	ID     string         `msgpack:"id"`
	Status string         `msgpack:"status"`
	Stats  map[string]int `msgpack:"stats,omitempty"`
}

// ErrorResponse holds basic error information for a failed request
type ErrorResponse struct {
	ID    string `msgpack:"id"`
	Error string `msgpack:"e"`
	Code  int    `msgpack:"c"`
}

// message is the union of every inbound shape; Action tells them apart.
type message struct {
	ID     string  `msgpack:"id"`
	Action string  `msgpack:"action"`
	SID    string  `msgpack:"sid"`
	Query  *string `msgpack:"q"`
}
