package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serxng/config"
	"serxng/instance"
	"serxng/search"
)

const resultsFixture = `{
	"results": [
		{"title": "Go", "url": "https://go.dev", "content": "the Go programming language"},
		{"title": "Go wiki", "url": "https://en.wikipedia.org/wiki/Go", "content": ""},
		{"title": "Go blog", "url": "https://go.dev/blog", "content": "news"}
	],
	"number_of_results": 3,
	"suggestions": ["golang"]
}`

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.RequestDelay = 0
	cfg.DefaultTimeout = 2 * time.Second
	cfg.PreferHTTPS = false
	cfg.ExcludeTor = true
	cfg.RetryBaseDelay = time.Millisecond
	cfg.RetryMaxDelay = 10 * time.Millisecond
	return cfg
}

func newTestClient(t *testing.T, cfg *config.Config) *Client {
	t.Helper()
	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSearch_ExcludesTorInstance(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "test", r.URL.Query().Get("q"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(resultsFixture))
	}))
	defer srv.Close()

	c := newTestClient(t, testConfig())
	require.NoError(t, c.AddInstance("http://searxabcdef.onion"))
	require.NoError(t, c.AddInstance(srv.URL))

	results, err := c.Search(context.Background(), "test", nil)
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, "Go", results[0].Title)
	assert.Equal(t, int32(1), hits.Load(), "only the non-Tor instance may be dispatched to")
}

func TestSearch_RetriesRateLimitHonoringRetryAfter(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(resultsFixture))
	}))
	defer srv.Close()

	c := newTestClient(t, testConfig())
	require.NoError(t, c.AddInstance(srv.URL))

	start := time.Now()
	results, err := c.Search(context.Background(), "test", nil)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, int32(3), hits.Load())
	assert.GreaterOrEqual(t, elapsed, 2*time.Second, "both Retry-After delays must be honored")
}

func TestSearch_RateLimitPastBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, testConfig())
	require.NoError(t, c.AddInstance(srv.URL))

	_, err := c.Search(context.Background(), "test", nil)
	var rateErr *search.RateLimitError
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, 3, rateErr.Attempts)
}

func TestSearch_SendsTimeRange(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "month", r.URL.Query().Get("time_range"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(resultsFixture))
	}))
	defer srv.Close()

	c := newTestClient(t, testConfig())
	require.NoError(t, c.AddInstance(srv.URL))

	_, err := c.Search(context.Background(), "test", &search.Options{TimeRange: search.TimeRangeMonth})
	require.NoError(t, err)
	require.Equal(t, int32(1), hits.Load())

	// unset means the parameter stays off the wire
	srv2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.False(t, r.URL.Query().Has("time_range"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(resultsFixture))
	}))
	defer srv2.Close()

	c2 := newTestClient(t, testConfig())
	require.NoError(t, c2.AddInstance(srv2.URL))
	_, err = c2.Search(context.Background(), "test", nil)
	require.NoError(t, err)
}

func TestBestInstances(t *testing.T) {
	directory := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"instances": {
			"https://steady.example/": {"network_type": "normal", "http": {"status_code": 200}, "uptime": {"uptimeDay": 99.9}},
			"https://flaky.example/": {"network_type": "normal", "http": {"status_code": 200}, "uptime": {"uptimeDay": 42.0}},
			"https://decent.example/": {"network_type": "normal", "http": {"status_code": 200}, "uptime": {"uptimeDay": 90.0}}
		}}`))
	}))
	defer directory.Close()

	cfg := testConfig()
	cfg.DirectoryURL = directory.URL
	c := newTestClient(t, cfg)
	require.NoError(t, c.UpdateInstances(context.Background()))

	best := c.BestInstances(2)
	require.Len(t, best, 2)
	assert.Equal(t, "https://steady.example", best[0].URL)
	assert.Equal(t, "https://decent.example", best[1].URL)
}

func TestSearch_TransportFailureBecomesNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listens anymore

	c := newTestClient(t, testConfig())
	require.NoError(t, c.AddInstance(srv.URL))

	_, err := c.Search(context.Background(), "test", nil)
	var netErr *search.NetworkError
	require.ErrorAs(t, err, &netErr)

	// the failure marks the instance offline, so the next call has
	// nothing to select
	_, err = c.Search(context.Background(), "test", nil)
	var unavailable *search.InstanceUnavailableError
	require.ErrorAs(t, err, &unavailable)
}

func TestSearch_ValidationFailsBeforeNetwork(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c := newTestClient(t, testConfig())
	require.NoError(t, c.AddInstance(srv.URL))

	_, err := c.Search(context.Background(), "test", &search.Options{Page: -2})
	var verr *search.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, int32(0), hits.Load())
}

func TestSearch_HTMLResponseIsParsed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><body>
			<article class="result">
				<h3><a href="https://go.dev">Go</a></h3>
				<p class="content">from html</p>
			</article>
		</body></html>`))
	}))
	defer srv.Close()

	c := newTestClient(t, testConfig())
	require.NoError(t, c.AddInstance(srv.URL))

	resp, err := c.SearchFull(context.Background(), "test", &search.Options{Format: search.FormatHTML})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "from html", resp.Results[0].Content)
}

func TestSearch_UninterpretablePayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("no results here"))
	}))
	defer srv.Close()

	c := newTestClient(t, testConfig())
	require.NoError(t, c.AddInstance(srv.URL))

	_, err := c.Search(context.Background(), "test", nil)
	var serr *search.SearchError
	require.ErrorAs(t, err, &serr)
}

func TestSearchFull_RecordsInstanceAndSuggestions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(resultsFixture))
	}))
	defer srv.Close()

	c := newTestClient(t, testConfig())
	require.NoError(t, c.AddInstance(srv.URL))

	resp, err := c.SearchFull(context.Background(), "test", nil)
	require.NoError(t, err)
	assert.Equal(t, srv.URL, resp.InstanceURL)
	assert.Equal(t, []string{"golang"}, resp.Suggestions)
	assert.Equal(t, 3, resp.NumberOfResults)

	stats := c.Stats()
	assert.Equal(t, 1, stats.TotalInstances)
	assert.Equal(t, 1, stats.OnlineInstances)
	assert.Equal(t, srv.URL, stats.CurrentInstance)
}

func TestSuggest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(resultsFixture))
	}))
	defer srv.Close()

	c := newTestClient(t, testConfig())
	require.NoError(t, c.AddInstance(srv.URL))

	suggestions, err := c.Suggest(context.Background(), "golan")
	require.NoError(t, err)
	assert.Equal(t, []string{"golang"}, suggestions)
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy instance", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resultsFixture))
		}))
		defer srv.Close()

		c := newTestClient(t, testConfig())
		require.NoError(t, c.AddInstance(srv.URL))
		assert.True(t, c.HealthCheck(context.Background()))
	})

	t.Run("failing transport never raises", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close()

		c := newTestClient(t, testConfig())
		require.NoError(t, c.AddInstance(srv.URL))
		assert.False(t, c.HealthCheck(context.Background()))
	})

	t.Run("no instances", func(t *testing.T) {
		c := newTestClient(t, testConfig())
		assert.False(t, c.HealthCheck(context.Background()))
	})
}

func TestHealthCheck_UsesCachedProbeResult(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(resultsFixture))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.ProbeTTL = time.Minute
	c := newTestClient(t, cfg)
	require.NoError(t, c.AddInstance(srv.URL))

	for range 4 {
		require.True(t, c.HealthCheck(context.Background()))
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestClose(t *testing.T) {
	c := newTestClient(t, testConfig())
	require.NoError(t, c.AddInstance("https://searx.example.org"))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "close must be idempotent")

	_, err := c.Search(context.Background(), "test", nil)
	var unavailable *search.InstanceUnavailableError
	require.ErrorAs(t, err, &unavailable)

	assert.False(t, c.HealthCheck(context.Background()))
	require.ErrorAs(t, c.UpdateInstances(context.Background()), &unavailable)
}

func TestSearch_CallerTimeoutYieldsNetworkError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(t, testConfig())
	require.NoError(t, c.AddInstance(srv.URL))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Search(ctx, "test", nil)
	var netErr *search.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout)
}

func TestUpdateInstances(t *testing.T) {
	directory := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"instances": {
			"https://searx.one.example/": {"network_type": "normal", "http": {"status_code": 200}},
			"https://searx.down.example/": {"network_type": "normal", "http": {"status_code": 500}}
		}}`))
	}))
	defer directory.Close()

	cfg := testConfig()
	cfg.DirectoryURL = directory.URL
	c := newTestClient(t, cfg)

	require.NoError(t, c.UpdateInstances(context.Background()))

	instances := c.Instances()
	require.Len(t, instances, 1)
	assert.Equal(t, "https://searx.one.example", instances[0].URL)
	assert.Equal(t, instance.StatusUnknown, instances[0].Status)
}

func TestAddInstance_InvalidURL(t *testing.T) {
	c := newTestClient(t, testConfig())
	require.Error(t, c.AddInstance("ftp://bad.example"))
	assert.Empty(t, c.Instances())
}
