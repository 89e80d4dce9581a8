// Package transport performs single blocking HTTP requests against
// backend instances. It owns the connection pools, including a SOCKS5
// path for Tor (.onion) instances, and classifies raw responses for
// the retry layer.
package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/proxy"
)

// maxBodySize bounds how much of a response body is read. Result pages
// are small; anything larger is not a search response.
const maxBodySize = 2 << 20

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"

// Request describes one call to an instance.
type Request struct {
	Method string
	URL    string
	Query  url.Values
	Accept string
}

// Response is the raw outcome of one call.
type Response struct {
	StatusCode  int
	ContentType string
	Header      http.Header
	Body        []byte
	Elapsed     time.Duration
}

// Transport performs a single blocking request.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
	Close()
}

// Options configure the HTTP transport.
type Options struct {
	// TorProxyURL is a host:port SOCKS5 address used for .onion hosts.
	// Empty disables the Tor path.
	TorProxyURL string
	UserAgent   string
	Logger      *zap.Logger
}

// HTTP is the production Transport over net/http.
type HTTP struct {
	direct          *http.Client
	tor             *http.Client
	directTransport *http.Transport
	torTransport    *http.Transport
	userAgent       string
	logger          *zap.Logger
}

// NewHTTP builds the transport. The direct pool reuses connections
// across instances; the Tor pool dials through the configured SOCKS5
// proxy.
func NewHTTP(opts Options) (*HTTP, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}

	directTransport := &http.Transport{
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		ResponseHeaderTimeout: 120 * time.Second,
	}

	t := &HTTP{
		direct:          &http.Client{Transport: directTransport},
		directTransport: directTransport,
		userAgent:       opts.UserAgent,
		logger:          opts.Logger,
	}

	if opts.TorProxyURL != "" {
		dialer, err := proxy.SOCKS5("tcp", opts.TorProxyURL, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		torTransport := &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			},
			IdleConnTimeout: 90 * time.Second,
		}
		t.tor = &http.Client{Transport: torTransport}
		t.torTransport = torTransport
	}

	return t, nil
}

// Do issues the request and reads the (bounded) body. Transport-level
// failures return an error; HTTP-level failures return a Response with
// the status code for the caller to classify.
func (t *HTTP) Do(ctx context.Context, req *Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	target := req.URL
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", t.userAgent)
	if req.Accept != "" {
		httpReq.Header.Set("Accept", req.Accept)
	}

	client, err := t.clientFor(httpReq.URL)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	elapsed := time.Since(start)

	t.logger.Debug("request completed",
		zap.String("url", req.URL),
		zap.Int("status", httpResp.StatusCode),
		zap.Duration("elapsed", elapsed))

	return &Response{
		StatusCode:  httpResp.StatusCode,
		ContentType: httpResp.Header.Get("Content-Type"),
		Header:      httpResp.Header,
		Body:        body,
		Elapsed:     elapsed,
	}, nil
}

func (t *HTTP) clientFor(u *url.URL) (*http.Client, error) {
	if strings.HasSuffix(u.Hostname(), ".onion") {
		if t.tor == nil {
			return nil, fmt.Errorf("no tor proxy configured for %s", u.Hostname())
		}
		return t.tor, nil
	}
	return t.direct, nil
}

// Close releases pooled connections. The transport must not be used
// afterwards.
func (t *HTTP) Close() {
	t.directTransport.CloseIdleConnections()
	if t.torTransport != nil {
		t.torTransport.CloseIdleConnections()
	}
}
