// Package instance tracks known backend instances, their health, and
// selection policy.
package instance

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Status is the last known health of an instance.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusUnknown Status = "unknown"
)

// Instance is a single backend search endpoint. Health fields are
// mutated only by the Registry after a probe.
type Instance struct {
	URL    string
	Scheme string
	IsTor  bool
	Status Status
	// Uptime is the directory-reported daily uptime percentage;
	// 0 means the directory has no data for this instance.
	Uptime      float64
	LastChecked time.Time
	LastLatency time.Duration
}

// New creates an instance from its base URL. Tor instances are
// recognized by their .onion host; the flag can also be forced for
// instances reachable only through an exit proxy.
func New(rawURL string) (*Instance, error) {
	u, err := url.Parse(strings.TrimRight(rawURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid instance url %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid instance url %q: scheme must be http or https", rawURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid instance url %q: missing host", rawURL)
	}
	return &Instance{
		URL:    u.String(),
		Scheme: u.Scheme,
		IsTor:  strings.HasSuffix(u.Hostname(), ".onion"),
		Status: StatusUnknown,
	}, nil
}
