// Package openfda looks up drug brand names on the openFDA label endpoint using its
// term-count query: a prefix wildcard search counted on the exact field.
package openfda

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/charmbracelet/log"
	"github.com/sony/gobreaker/v2"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

var (
	// ErrUnexpectedStatus is returned for non-2xx answers other than openFDA's "no matches".
	ErrUnexpectedStatus = errors.New("unexpected status from openFDA")
	// ErrMalformedPayload is returned when the body is not the expected count payload.
	ErrMalformedPayload = errors.New("malformed openFDA payload")
	// ErrEmptyPrefix is returned when nothing searchable is left of the prefix.
	ErrEmptyPrefix = errors.New("empty search prefix")
)

const (
	DefaultBaseURL = "https://api.fda.gov/drug/label.json"
	DefaultField   = "openfda.brand_name"
	DefaultLimit   = 10

	maxBodyBytes = 1 << 20
	notFoundCode = "NOT_FOUND"
)

// Config holds the client settings.
type Config struct {
	BaseURL string
	Field   string
	Limit   int
	APIKey  string
	Timeout time.Duration

	// RatePerSecond caps outgoing requests; zero disables the limiter.
	RatePerSecond float64
	Burst         int

	// BreakerFailures consecutive failures open the breaker for BreakerCooldown.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// DefaultConfig returns settings suitable for the public API without a key.
func DefaultConfig() Config {
	return Config{
		BaseURL:         DefaultBaseURL,
		Field:           DefaultField,
		Limit:           DefaultLimit,
		Timeout:         5 * time.Second,
		RatePerSecond:   4,
		Burst:           4,
		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,
	}
}

// Client performs remote name lookups. It is safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]string]
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New builds a client. Zero fields in cfg fall back to DefaultConfig.
func New(cfg Config, opts ...Option) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Field == "" {
		cfg.Field = def.Field
	}
	if cfg.Limit <= 0 {
		cfg.Limit = def.Limit
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = def.BreakerFailures
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = def.BreakerCooldown
	}

	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.RatePerSecond > 0 {
		burst := max(cfg.Burst, 1)
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	failures := cfg.BreakerFailures
	c.breaker = gobreaker.NewCircuitBreaker[[]string](gobreaker.Settings{
		Name:        "openfda",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnf("Circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup returns up to Limit raw terms whose field starts with prefix.
// "No matches" is an empty list, not an error.
func (c *Client) Lookup(ctx context.Context, prefix string) ([]string, error) {
	term := searchTerm(prefix)
	if term == "" {
		return nil, ErrEmptyPrefix
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	terms, err := c.breaker.Execute(func() ([]string, error) {
		return c.fetch(ctx, term)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("openFDA unavailable: %w", err)
		}
		return nil, err
	}
	return terms, nil
}

// BreakerState reports the circuit breaker state, e.g. "closed" or "open".
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// URL builds the request URL for a prefix.
func (c *Client) URL(prefix string) string {
	return c.requestURL(searchTerm(prefix))
}

func (c *Client) requestURL(term string) string {
	params := url.Values{}
	params.Set("search", searchQuery(c.cfg.Field, term))
	params.Set("count", c.cfg.Field+".exact")
	params.Set("limit", fmt.Sprint(c.cfg.Limit))
	if c.cfg.APIKey != "" {
		params.Set("api_key", c.cfg.APIKey)
	}
	return c.cfg.BaseURL + "?" + params.Encode()
}

func (c *Client) fetch(ctx context.Context, term string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(term), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openFDA request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read openFDA response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound && gjson.GetBytes(body, "error.code").String() == notFoundCode {
		log.Debugf("openFDA has no matches for '%s'", term)
		return []string{}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := gjson.GetBytes(body, "error.message").String()
		return nil, fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, resp.StatusCode, msg)
	}

	return parseTerms(body, c.cfg.Limit)
}

// parseTerms extracts results[].term from a count payload.
func parseTerms(body []byte, limit int) ([]string, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformedPayload)
	}
	results := gjson.GetBytes(body, "results")
	if !results.IsArray() {
		return nil, fmt.Errorf("%w: missing results array", ErrMalformedPayload)
	}

	terms := make([]string, 0, limit)
	var bad error
	results.ForEach(func(_, item gjson.Result) bool {
		term := item.Get("term")
		if term.Type != gjson.String {
			bad = fmt.Errorf("%w: result without a string term", ErrMalformedPayload)
			return false
		}
		if s := strings.TrimSpace(term.String()); s != "" {
			terms = append(terms, s)
		}
		return len(terms) < limit
	})
	if bad != nil {
		return nil, bad
	}
	return terms, nil
}

// searchQuery qualifies every word of term with field and wildcards the last one,
// so "metformin xr" matches brand names holding "metformin" and a word starting with "xr".
func searchQuery(field, term string) string {
	words := strings.Fields(term)
	clauses := make([]string, len(words))
	for i, w := range words {
		clauses[i] = field + ":" + w
	}
	if n := len(clauses); n > 0 {
		clauses[n-1] += "*"
	}
	return strings.Join(clauses, " AND ")
}

// searchTerm keeps letters, digits and hyphens; the query syntax reserves the rest.
// Inner whitespace becomes a single space.
func searchTerm(prefix string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.TrimSpace(prefix) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-':
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			space = true
		}
	}
	return b.String()
}
