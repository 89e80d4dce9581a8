// Package client composes the instance registry, retry policy,
// dispatch bridge, and response parsers into the public search client.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"serxng/config"
	"serxng/dispatch"
	"serxng/instance"
	"serxng/retry"
	"serxng/search"
	"serxng/transport"
)

// Client is a search client over a set of backend instances. All
// methods are safe for concurrent use.
type Client struct {
	cfg       *config.Config
	registry  *instance.Registry
	transport transport.Transport
	bridge    *dispatch.Bridge
	policy    *retry.Policy
	builder   *search.Builder
	fetcher   *instance.Fetcher
	cache     *instance.Cache
	logger    *zap.Logger

	closed       atomic.Bool
	lastInstance atomic.Value // string
}

// Option customizes client construction.
type Option func(*Client)

// WithLogger sets the structured logger used by all components.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithTransport replaces the HTTP transport.
func WithTransport(t transport.Transport) Option {
	return func(c *Client) { c.transport = t }
}

// New creates a client from cfg. A nil cfg uses the defaults.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	c := &Client{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}

	if c.transport == nil {
		t, err := transport.NewHTTP(transport.Options{
			TorProxyURL: cfg.TorProxyURL,
			UserAgent:   cfg.UserAgent,
			Logger:      c.logger,
		})
		if err != nil {
			return nil, err
		}
		c.transport = t
	}

	c.registry = instance.NewRegistry(instance.Policy{
		PreferHTTPS: cfg.PreferHTTPS,
		ExcludeTor:  cfg.ExcludeTor,
		ProbeTTL:    cfg.ProbeTTL,
	}, c.logger)
	c.bridge = dispatch.NewBridge(cfg.RequestDelay, cfg.MaxConcurrent, c.logger)
	c.policy = retry.NewPolicy(cfg.RetryMaxAttempts, cfg.RetryBaseDelay, cfg.RetryMaxDelay, c.logger)
	c.builder = search.NewBuilder(cfg.DefaultTimeout, cfg.KnownEngines)

	if cfg.InstancesCachePath != "" {
		cache, err := instance.OpenCache(cfg.InstancesCachePath, cfg.InstancesCacheTTL)
		if err != nil {
			return nil, err
		}
		c.cache = cache
	}
	c.fetcher = instance.NewFetcher(cfg.DirectoryURL, c.cache, c.logger)

	return c, nil
}

// AddInstance registers a single instance by URL.
func (c *Client) AddInstance(rawURL string) error {
	inst, err := instance.New(rawURL)
	if err != nil {
		return err
	}
	c.registry.Register(inst)
	return nil
}

// Seed registers instances from a YAML seed file.
func (c *Client) Seed(path string) error {
	seeds, err := config.LoadSeeds(path)
	if err != nil {
		return err
	}
	for _, s := range seeds {
		inst, err := instance.New(s.URL)
		if err != nil {
			return err
		}
		if s.Tor {
			inst.IsTor = true
		}
		c.registry.Register(inst)
	}
	return nil
}

// UpdateInstances fetches the public instance directory and registers
// every instance it reports as answering.
func (c *Client) UpdateInstances(ctx context.Context) error {
	if c.closed.Load() {
		return &search.InstanceUnavailableError{Reason: "client is closed"}
	}
	instances, err := c.fetcher.Fetch(ctx)
	if err != nil {
		return err
	}
	for _, inst := range instances {
		c.registry.Register(inst)
	}
	return nil
}

// Instances returns a snapshot of all registered instances.
func (c *Client) Instances() []instance.Instance {
	return c.registry.Snapshot()
}

// BestInstances returns up to limit instances ranked by the directory's
// reported uptime and the latency observed by this client. It ignores
// the HTTPS preference; Tor and offline instances are filtered the same
// way Select filters them.
func (c *Client) BestInstances(limit int) []instance.Instance {
	return c.registry.Best(limit)
}

// Stats summarizes registry state.
type Stats struct {
	TotalInstances  int    `json:"total_instances"`
	OnlineInstances int    `json:"online_instances"`
	CurrentInstance string `json:"current_instance,omitempty"`
}

// Stats reports instance counts and the most recently used instance.
func (c *Client) Stats() Stats {
	var s Stats
	for _, inst := range c.registry.Snapshot() {
		s.TotalInstances++
		if inst.Status == instance.StatusOnline {
			s.OnlineInstances++
		}
	}
	if last, ok := c.lastInstance.Load().(string); ok {
		s.CurrentInstance = last
	}
	return s
}

// Search runs a search and returns the normalized results. Malformed
// individual entries in the backend payload are skipped, never raised.
func (c *Client) Search(ctx context.Context, query string, opts *search.Options) ([]search.Result, error) {
	resp, err := c.SearchFull(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// SearchFull runs a search and returns the full response, including
// suggestions and the instance that served it.
func (c *Client) SearchFull(ctx context.Context, query string, opts *search.Options) (*search.Response, error) {
	if c.closed.Load() {
		return nil, &search.InstanceUnavailableError{Reason: "client is closed"}
	}

	cfg, err := c.builder.Build(query, opts)
	if err != nil {
		return nil, err
	}
	inst, err := c.registry.Select()
	if err != nil {
		return nil, err
	}

	logger := c.logger.With(
		zap.String("request_id", uuid.NewString()),
		zap.String("instance", inst.URL))

	fut := c.bridge.Run(ctx, inst.URL, func(ctx context.Context) (*search.Response, error) {
		return c.dispatch(ctx, inst, cfg, logger)
	})
	resp, err := fut.Wait(ctx)
	if err != nil {
		return nil, asTaxonomy(err)
	}

	c.lastInstance.Store(inst.URL)
	return resp, nil
}

// Suggest returns the backend's query suggestions for a query.
func (c *Client) Suggest(ctx context.Context, query string) ([]string, error) {
	resp, err := c.SearchFull(ctx, query, nil)
	if err != nil {
		return nil, err
	}
	return resp.Suggestions, nil
}

// HealthCheck probes the currently selected instance. It never returns
// an error; every internal failure reports false. Probe results are
// cached for the registry's TTL window.
func (c *Client) HealthCheck(ctx context.Context) bool {
	if c.closed.Load() {
		return false
	}
	inst, err := c.registry.Select()
	if err != nil {
		return false
	}
	return c.registry.Probe(ctx, inst.URL, c.probe, false)
}

// Close releases transport resources. It is idempotent; any call after
// Close fails with InstanceUnavailableError.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.transport.Close()
	if c.cache != nil {
		return c.cache.Close()
	}
	return nil
}

// dispatch performs the retry-wrapped transport round trip and
// normalizes the payload. It runs on the bridge's worker pool.
func (c *Client) dispatch(ctx context.Context, inst instance.Instance, cfg search.Config, logger *zap.Logger) (*search.Response, error) {
	op := func(ctx context.Context) retry.Outcome[*transport.Response] {
		raw, err := c.transport.Do(ctx, buildRequest(inst, cfg))
		return transport.Classify(raw, err)
	}

	raw, err := retry.Execute(ctx, c.policy, cfg.Timeout, op)
	if err != nil {
		var netErr *search.NetworkError
		if errors.As(err, &netErr) {
			c.registry.Mark(inst.URL, instance.StatusOffline, 0)
		}
		logger.Warn("search dispatch failed", zap.Error(err))
		return nil, err
	}

	// Classification happens on the status code before any parse
	// attempt; from here on the payload shape decides the parser.
	kind := search.DetectKind(raw.ContentType)
	base, _ := url.Parse(inst.URL)
	resp, err := search.Parse(raw.Body, kind, base)
	if err != nil {
		logger.Warn("search response unparseable",
			zap.String("content_type", raw.ContentType),
			zap.Error(err))
		return nil, err
	}

	resp.InstanceURL = inst.URL
	resp.Elapsed = raw.Elapsed
	c.registry.Mark(inst.URL, instance.StatusOnline, raw.Elapsed)
	logger.Info("search completed",
		zap.Int("results", len(resp.Results)),
		zap.Duration("elapsed", raw.Elapsed))
	return resp, nil
}

// probe issues a single-attempt lightweight search; no retry escalation.
func (c *Client) probe(ctx context.Context, inst instance.Instance) error {
	cfg, err := c.builder.Build("time", nil)
	if err != nil {
		return err
	}
	probeCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	raw, err := c.transport.Do(probeCtx, buildRequest(inst, cfg))
	out := transport.Classify(raw, err)
	if out.Kind != retry.Success {
		return out.Err
	}
	_, err = search.Parse(out.Payload.Body, search.DetectKind(out.Payload.ContentType), nil)
	return err
}

// buildRequest translates a search config into the backend query shape.
func buildRequest(inst instance.Instance, cfg search.Config) *transport.Request {
	params := url.Values{}
	params.Set("q", cfg.Query)
	params.Set("pageno", fmt.Sprintf("%d", cfg.Page))
	params.Set("safesearch", cfg.SafeSearch.Param())
	if cfg.Language != "auto" {
		params.Set("language", cfg.Language)
	}
	if len(cfg.Categories) > 0 {
		names := make([]string, len(cfg.Categories))
		for i, cat := range cfg.Categories {
			names[i] = string(cat)
		}
		params.Set("categories", strings.Join(names, ","))
	}
	if len(cfg.Engines) > 0 {
		params.Set("engines", strings.Join(cfg.Engines, ","))
	}
	if cfg.TimeRange != "" {
		params.Set("time_range", string(cfg.TimeRange))
	}

	accept := "text/html"
	if cfg.Format == search.FormatJSON {
		params.Set("format", "json")
		accept = "application/json"
	}

	return &transport.Request{
		Method: "GET",
		URL:    inst.URL + "/search",
		Query:  params,
		Accept: accept,
	}
}

// asTaxonomy converts scheduling-context errors into the public error
// kinds; taxonomy errors pass through unchanged.
func asTaxonomy(err error) error {
	var (
		validationErr  *search.ValidationError
		unavailableErr *search.InstanceUnavailableError
		networkErr     *search.NetworkError
		rateErr        *search.RateLimitError
		searchErr      *search.SearchError
	)
	switch {
	case errors.As(err, &validationErr),
		errors.As(err, &unavailableErr),
		errors.As(err, &networkErr),
		errors.As(err, &rateErr),
		errors.As(err, &searchErr):
		return err
	}
	return &search.NetworkError{
		Timeout: errors.Is(err, context.DeadlineExceeded),
		Err:     err,
	}
}
