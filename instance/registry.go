package instance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"serxng/search"
)

// DefaultProbeTTL is how long a probe result stays trusted before a
// fresh probe is allowed.
const DefaultProbeTTL = 30 * time.Second

const probeCacheSize = 1024

// Policy governs which instances Select may return.
type Policy struct {
	PreferHTTPS bool
	ExcludeTor  bool
	ProbeTTL    time.Duration
}

// ProbeFunc issues one lightweight search against the instance and
// reports whether it answered usably. It must make a single attempt.
type ProbeFunc func(ctx context.Context, inst Instance) error

// Registry tracks registered instances and their health. All state is
// safe for concurrent use; read-modify-write of health fields happens
// under one lock so concurrent probes never lose updates.
type Registry struct {
	mu     sync.RWMutex
	order  []*Instance
	byURL  map[string]*Instance
	probes *expirable.LRU[string, bool]
	policy Policy
	logger *zap.Logger
}

// NewRegistry creates an empty registry with the given selection policy.
func NewRegistry(policy Policy, logger *zap.Logger) *Registry {
	if policy.ProbeTTL <= 0 {
		policy.ProbeTTL = DefaultProbeTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		byURL:  make(map[string]*Instance),
		probes: expirable.NewLRU[string, bool](probeCacheSize, nil, policy.ProbeTTL),
		policy: policy,
		logger: logger,
	}
}

// Register adds an instance. Re-registering an existing URL is a no-op;
// instances are never removed, only marked offline.
func (r *Registry) Register(inst *Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byURL[inst.URL]; exists {
		return
	}
	if inst.Status == "" {
		inst.Status = StatusUnknown
	}
	cp := *inst
	r.byURL[cp.URL] = &cp
	r.order = append(r.order, &cp)
	r.logger.Debug("instance registered",
		zap.String("url", cp.URL),
		zap.Bool("tor", cp.IsTor))
}

// Len returns the number of registered instances.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Snapshot returns a copy of all registered instances in registration
// order.
func (r *Registry) Snapshot() []Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Instance, 0, len(r.order))
	for _, inst := range r.order {
		out = append(out, *inst)
	}
	return out
}

// Select picks an instance per policy: Tor instances are dropped when
// excluded, offline instances are always dropped, HTTPS is preferred
// when any HTTPS candidate remains, and ties go to the most recently
// probed online instance, then registration order. Select never probes;
// it trusts cached health.
func (r *Registry) Select() (Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := make([]*Instance, 0, len(r.order))
	for _, inst := range r.order {
		if r.policy.ExcludeTor && inst.IsTor {
			continue
		}
		if inst.Status == StatusOffline {
			continue
		}
		candidates = append(candidates, inst)
	}
	if len(candidates) == 0 {
		return Instance{}, &search.InstanceUnavailableError{Reason: "no instance matches the selection policy"}
	}

	if r.policy.PreferHTTPS {
		https := make([]*Instance, 0, len(candidates))
		for _, inst := range candidates {
			if inst.Scheme == "https" {
				https = append(https, inst)
			}
		}
		if len(https) > 0 {
			candidates = https
		}
	}

	best := candidates[0]
	bestChecked := probeTime(best)
	for _, inst := range candidates[1:] {
		if probeTime(inst).After(bestChecked) {
			best = inst
			bestChecked = probeTime(inst)
		}
	}
	return *best, nil
}

// Best returns up to limit instances ranked by directory-reported
// uptime, then by observed latency, with registration order breaking
// remaining ties. The Tor and offline filters from Select apply; a
// limit <= 0 returns all candidates.
func (r *Registry) Best(limit int) []Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := make([]*Instance, 0, len(r.order))
	for _, inst := range r.order {
		if r.policy.ExcludeTor && inst.IsTor {
			continue
		}
		if inst.Status == StatusOffline {
			continue
		}
		candidates = append(candidates, inst)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Uptime != b.Uptime {
			return a.Uptime > b.Uptime
		}
		return lessLatency(a.LastLatency, b.LastLatency)
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]Instance, 0, len(candidates))
	for _, inst := range candidates {
		out = append(out, *inst)
	}
	return out
}

// lessLatency orders observed latencies ascending; instances that were
// never measured (zero) sort last.
func lessLatency(a, b time.Duration) bool {
	if a == 0 {
		return false
	}
	if b == 0 {
		return true
	}
	return a < b
}

// probeTime orders candidates by their last successful probe. Instances
// that have never answered sort last.
func probeTime(inst *Instance) time.Time {
	if inst.Status != StatusOnline {
		return time.Time{}
	}
	return inst.LastChecked
}

// Mark records a health observation for the instance.
func (r *Registry) Mark(url string, status Status, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.byURL[url]
	if !ok {
		return
	}
	inst.Status = status
	inst.LastChecked = time.Now()
	if latency > 0 {
		inst.LastLatency = latency
	}
}

// Probe checks instance health through fn and never returns an error.
// A result cached within the TTL window is returned as-is unless force
// is set. The probe updates status, last-checked, and latency.
func (r *Registry) Probe(ctx context.Context, url string, fn ProbeFunc, force bool) bool {
	if !force {
		if ok, cached := r.probes.Get(url); cached {
			return ok
		}
	}

	r.mu.RLock()
	inst, exists := r.byURL[url]
	var snapshot Instance
	if exists {
		snapshot = *inst
	}
	r.mu.RUnlock()
	if !exists {
		return false
	}

	start := time.Now()
	err := fn(ctx, snapshot)
	latency := time.Since(start)

	ok := err == nil
	if ok {
		r.Mark(url, StatusOnline, latency)
	} else {
		r.Mark(url, StatusOffline, 0)
		r.logger.Debug("instance probe failed",
			zap.String("url", url),
			zap.Error(err))
	}
	r.probes.Add(url, ok)
	return ok
}
