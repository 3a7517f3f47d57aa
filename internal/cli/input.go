// Package cli runs an interactive suggestion loop for debugging the suggester by hand.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/rxsuggest/rxsuggest/pkg/suggest"
)

var (
	nameStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	remoteStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	loadingStyle = lipgloss.NewStyle().Faint(true)
)

// InputHandler reads one query per line and prints what the session publishes for it.
// With a type delay the line is fed one character at a time, the way a user types it.
type InputHandler struct {
	suggester  *suggest.Suggester
	in         io.Reader
	out        io.Writer
	typeDelay  time.Duration
	showSource bool
	wait       time.Duration
}

// NewInputHandler handles initialization of the InputHandler with basic parameters
func NewInputHandler(s *suggest.Suggester, in io.Reader, out io.Writer, typeDelay time.Duration, showSource bool) *InputHandler {
	return &InputHandler{
		suggester:  s,
		in:         in,
		out:        out,
		typeDelay:  typeDelay,
		showSource: showSource,
		wait:       s.Options().Debounce + 30*time.Second,
	}
}

// Start begins the interface loop. It returns nil when the input ends or on ":q".
func (h *InputHandler) Start(ctx context.Context) error {
	results := make(chan suggest.Result, 64)
	publishCtx, cancel := context.WithCancel(ctx)
	session := h.suggester.NewSession(ctx, func(r suggest.Result) {
		select {
		case results <- r:
		case <-publishCtx.Done():
		}
	})
	defer session.Close()
	defer cancel()

	fmt.Fprintln(h.out, "RxSuggest CLI")
	fmt.Fprintln(h.out, "type part of a drug name and press Enter (:stats for counters, :q to quit):")

	var seq uint64
	scanner := bufio.NewScanner(h.in)
	for {
		fmt.Fprint(h.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(h.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case ":q", ":quit":
			return nil
		case ":stats":
			h.printStats()
			continue
		}

		for _, text := range h.keystrokes(line) {
			if !session.Update(text) {
				return ctx.Err()
			}
			seq++
			if err := h.pause(ctx, results); err != nil {
				return err
			}
		}
		if err := h.awaitFinal(ctx, results, seq); err != nil {
			return err
		}
	}
}

// keystrokes returns the successive texts of the input while line is typed.
func (h *InputHandler) keystrokes(line string) []string {
	if h.typeDelay <= 0 {
		return []string{line}
	}
	texts := make([]string, 0, utf8.RuneCountInString(line))
	for i := range line {
		if i > 0 {
			texts = append(texts, line[:i])
		}
	}
	return append(texts, line)
}

// pause waits out the type delay, printing whatever the session publishes meanwhile
// so the session never blocks on a full results channel.
func (h *InputHandler) pause(ctx context.Context, results <-chan suggest.Result) error {
	if h.typeDelay <= 0 {
		return nil
	}
	delay := time.NewTimer(h.typeDelay)
	defer delay.Stop()

	for {
		select {
		case r := <-results:
			h.printResult(r)
		case <-delay.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// awaitFinal prints results until the loading=false result for seq arrives.
func (h *InputHandler) awaitFinal(ctx context.Context, results <-chan suggest.Result, seq uint64) error {
	timeout := time.NewTimer(h.wait)
	defer timeout.Stop()

	for {
		select {
		case r := <-results:
			h.printResult(r)
			if r.Seq == seq && !r.Loading {
				return nil
			}
		case <-timeout.C:
			log.Warnf("No final result for query after %v", h.wait)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *InputHandler) printResult(r suggest.Result) {
	if r.Loading {
		fmt.Fprintf(h.out, "%s\n", loadingStyle.Render(fmt.Sprintf("'%s' (#%d): %d local, looking up...", r.Query, r.Seq, len(r.Suggestions))))
		return
	}
	if len(r.Suggestions) == 0 {
		fmt.Fprintf(h.out, "No suggestions for '%s'\n", r.Query)
		return
	}

	fmt.Fprintf(h.out, "Found %d suggestions for '%s':\n", len(r.Suggestions), r.Query)
	for i, c := range r.Suggestions {
		line := fmt.Sprintf("%2d. %s", i+1, nameStyle.Render(c.Name))
		if h.showSource {
			tag := string(c.Source)
			if c.Source == suggest.SourceRemote {
				tag = remoteStyle.Render(tag)
			}
			line += " [" + tag + "]"
		}
		fmt.Fprintln(h.out, line)
	}
}

func (h *InputHandler) printStats() {
	stats := h.suggester.Stats()
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h.out, "%-16s %d\n", k, stats[k])
	}
}
