package openfda

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const metforminPayload = `{
  "meta": {"disclaimer": "..."},
  "results": [
    {"term": "METFORMIN HYDROCHLORIDE", "count": 412},
    {"term": "METFORMIN XR", "count": 37},
    {"term": "metformin er", "count": 5}
  ]
}`

const notFoundPayload = `{"error": {"code": "NOT_FOUND", "message": "No matches found!"}}`

func newTestClient(t *testing.T, handler http.HandlerFunc, cfg Config) (*Client, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg.BaseURL = srv.URL
	return New(cfg, WithHTTPClient(srv.Client())), &hits
}

func TestLookupReturnsTerms(t *testing.T) {
	var query url.Values
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(metforminPayload))
	}, Config{})

	terms, err := client.Lookup(context.Background(), "Met")
	require.NoError(t, err)
	assert.Equal(t, []string{"METFORMIN HYDROCHLORIDE", "METFORMIN XR", "metformin er"}, terms)

	assert.Equal(t, "openfda.brand_name:Met*", query.Get("search"))
	assert.Equal(t, "openfda.brand_name.exact", query.Get("count"))
	assert.Equal(t, "10", query.Get("limit"))
	assert.Empty(t, query.Get("api_key"))
}

func TestLookupRespectsLimit(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(metforminPayload))
	}, Config{Limit: 2, APIKey: "secret"})

	terms, err := client.Lookup(context.Background(), "met")
	require.NoError(t, err)
	assert.Len(t, terms, 2)
	assert.Contains(t, client.URL("met"), "api_key=secret")
	assert.Contains(t, client.URL("met"), "limit=2")
}

func TestLookupNotFoundIsEmpty(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(notFoundPayload))
	}, Config{})

	terms, err := client.Lookup(context.Background(), "zzz")
	require.NoError(t, err)
	assert.NotNil(t, terms)
	assert.Empty(t, terms)
}

func TestLookupErrors(t *testing.T) {
	testCases := []struct {
		status      int
		body        string
		expected    error
		description string
	}{
		{http.StatusInternalServerError, `{"error":{"code":"SERVER_ERROR","message":"boom"}}`, ErrUnexpectedStatus, "server error"},
		{http.StatusNotFound, `not json`, ErrUnexpectedStatus, "plain 404"},
		{http.StatusTooManyRequests, ``, ErrUnexpectedStatus, "throttled"},
		{http.StatusOK, `{"results": "nope"}`, ErrMalformedPayload, "results not an array"},
		{http.StatusOK, `{"results": [{"count": 3}]}`, ErrMalformedPayload, "missing term"},
		{http.StatusOK, `{"results": [`, ErrMalformedPayload, "truncated json"},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}, Config{})

			_, err := client.Lookup(context.Background(), "asp")
			assert.ErrorIs(t, err, tc.expected)
		})
	}
}

func TestLookupEmptyPrefix(t *testing.T) {
	client, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(metforminPayload))
	}, Config{})

	_, err := client.Lookup(context.Background(), "  ?* ")
	assert.ErrorIs(t, err, ErrEmptyPrefix)
	assert.Equal(t, int32(0), hits.Load())
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	client, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, Config{BreakerFailures: 2, BreakerCooldown: time.Minute})

	for i := 0; i < 2; i++ {
		_, err := client.Lookup(context.Background(), "asp")
		require.ErrorIs(t, err, ErrUnexpectedStatus)
	}
	assert.Equal(t, "open", client.BreakerState())

	_, err := client.Lookup(context.Background(), "asp")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), hits.Load(), "an open breaker fails fast")
}

func TestNotFoundDoesNotTripBreaker(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(notFoundPayload))
	}, Config{BreakerFailures: 1})

	for i := 0; i < 3; i++ {
		_, err := client.Lookup(context.Background(), "zzz")
		require.NoError(t, err)
	}
	assert.Equal(t, "closed", client.BreakerState())
}

func TestLookupHonoursContext(t *testing.T) {
	release := make(chan struct{})
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, Config{})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.Lookup(ctx, "asp")
	assert.Error(t, err)
}

func TestRateLimiterWaits(t *testing.T) {
	client, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(metforminPayload))
	}, Config{RatePerSecond: 1, Burst: 1})

	_, err := client.Lookup(context.Background(), "met")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Lookup(ctx, "met")
	assert.ErrorContains(t, err, "rate limiter")
	assert.Equal(t, int32(1), hits.Load())
}

func TestLookupQualifiesEveryWord(t *testing.T) {
	var query url.Values
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		w.Write([]byte(metforminPayload))
	}, Config{})

	_, err := client.Lookup(context.Background(), "Metformin  XR")
	require.NoError(t, err)
	assert.Equal(t, "openfda.brand_name:Metformin AND openfda.brand_name:XR*", query.Get("search"))
	assert.Contains(t, client.URL("tylenol pm"), "search=openfda.brand_name%3Atylenol+AND+openfda.brand_name%3Apm%2A")
}

func TestSearchTerm(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"Met", "Met"},
		{"  ibu  ", "ibu"},
		{"tylenol   pm", "tylenol pm"},
		{"co-q10", "co-q10"},
		{`as"p*`, "asp"},
		{"??", ""},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, searchTerm(tc.input), "input %q", tc.input)
	}
}
