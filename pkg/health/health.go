// Package health serves liveness and readiness probes for the fulfillment
// API.
//
// Every probe runs in its own goroutine on a fixed interval. A probe flips to
// unhealthy only after failing Failures times in a row and back to healthy
// after Successes consecutive passes, so a single slow database ping does not
// take the instance out of rotation.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

// CheckFunc returns nil when the checked dependency is healthy.
type CheckFunc func(ctx context.Context) error

// Kind selects the endpoint a probe reports to.
type Kind int

const (
	Liveness Kind = iota
	Readiness
)

// Thresholds control how many consecutive results flip a probe.
type Thresholds struct {
	Failures  int
	Successes int
}

// DefaultThresholds are applied when a probe is added without explicit ones.
var DefaultThresholds = Thresholds{Failures: 3, Successes: 1}

type probe struct {
	name    string
	timeout time.Duration
	check   CheckFunc
	th      Thresholds

	// healthy and lastErr are read by HTTP handlers.
	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	// Owned by the probe goroutine.
	fails int
	oks   int
}

func (p *probe) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.check(ctx)
	p.lastErr.Store(&err)
	if err != nil {
		p.oks = 0
		p.fails++
		if p.fails >= p.th.Failures {
			p.healthy.Store(false)
		}
		return
	}
	p.fails = 0
	p.oks++
	if p.oks >= p.th.Successes {
		p.healthy.Store(true)
	}
}

func (p *probe) failure() (string, bool) {
	if p.healthy.Load() {
		return "", false
	}
	if err := p.lastErr.Load(); err != nil && *err != nil {
		return (*err).Error(), true
	}
	return "check is unhealthy", true
}

// Health holds the registered probes and the manual readiness flag.
type Health struct {
	ready atomic.Bool

	mu     sync.RWMutex
	probes map[Kind][]*probe
	cancel context.CancelFunc
}

// New returns a Health that is not ready until SetReady(true) is called.
func New() *Health {
	return &Health{probes: make(map[Kind][]*probe)}
}

// Add registers a probe with DefaultThresholds. Probes start healthy.
func (h *Health) Add(kind Kind, name string, timeout time.Duration, check CheckFunc) {
	h.AddWithThresholds(kind, name, timeout, check, DefaultThresholds)
}

// AddWithThresholds registers a probe with custom thresholds.
func (h *Health) AddWithThresholds(kind Kind, name string, timeout time.Duration, check CheckFunc, th Thresholds) {
	p := &probe{name: name, timeout: timeout, check: check, th: th}
	p.healthy.Store(true)

	h.mu.Lock()
	h.probes[kind] = append(h.probes[kind], p)
	h.mu.Unlock()
}

// Start runs every registered probe immediately and then once per interval
// until ctx is done or Stop is called.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	var all []*probe
	for _, ps := range h.probes {
		all = append(all, ps...)
	}
	h.mu.Unlock()

	for _, p := range all {
		go loop(ctx, p, interval)
	}
}

func loop(ctx context.Context, p *probe, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.run(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.run(ctx)
		}
	}
}

// Stop cancels the probe goroutines. It may be called more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady sets the manual readiness flag. The app clears it at the start of
// graceful shutdown so load balancers drain the instance.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the instance is marked ready and every readiness
// probe passes.
func (h *Health) IsReady() bool {
	return h.ready.Load() && len(h.failures(Readiness)) == 0
}

func (h *Health) failures(kind Kind) map[string]string {
	h.mu.RLock()
	ps := h.probes[kind]
	h.mu.RUnlock()

	out := make(map[string]string)
	for _, p := range ps {
		if msg, failed := p.failure(); failed {
			out[p.name] = msg
		}
	}
	return out
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	write(w, h.failures(Liveness))
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failures := h.failures(Readiness)
	if !h.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	write(w, failures)
}

// write renders {"status":"ok"} or {"status":"unhealthy","checks":{...}}.
func write(w http.ResponseWriter, failures map[string]string) {
	code := http.StatusOK
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("status")
	if len(failures) == 0 {
		e.Str("ok")
	} else {
		code = http.StatusServiceUnavailable
		e.Str("unhealthy")

		names := make([]string, 0, len(failures))
		for name := range failures {
			names = append(names, name)
		}
		sort.Strings(names)

		e.FieldStart("checks")
		e.ObjStart()
		for _, name := range names {
			e.FieldStart(name)
			e.Str(failures[name])
		}
		e.ObjEnd()
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}
