// Package health serves liveness and readiness endpoints.
//
// Checks are polled by Run at a fixed interval. A check turns unhealthy only
// after failureThreshold consecutive failures and healthy again after
// successThreshold consecutive successes, so a single slow check does not
// flap the endpoint. Readiness additionally requires the service gate to be
// open.
package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"go.uber.org/zap"
)

// CheckFunc returns nil if the checked component is healthy.
type CheckFunc func(ctx context.Context) error

// Kind tells which endpoint a check feeds.
type Kind uint8

const (
	Liveness Kind = iota + 1
	Readiness
)

func (k Kind) String() string {
	switch k {
	case Liveness:
		return "liveness"
	case Readiness:
		return "readiness"
	default:
		return "unknown"
	}
}

// CheckOption configures a registered check.
type CheckOption func(*check)

// WithTimeout bounds a single run of the check. The default is one second.
func WithTimeout(d time.Duration) CheckOption {
	return func(c *check) { c.timeout = d }
}

// WithThresholds sets how many consecutive failures mark the check
// unhealthy and how many successes mark it healthy again.
func WithThresholds(failure, success int) CheckOption {
	return func(c *check) {
		c.failureThreshold = max(failure, 1)
		c.successThreshold = max(success, 1)
	}
}

// check is one registered health check. run is only called from the polling
// goroutine, so the counters are unsynchronized; healthy and lastErr are read
// by HTTP handlers.
type check struct {
	name             string
	kind             Kind
	timeout          time.Duration
	fn               CheckFunc
	failureThreshold int
	successThreshold int

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	consecutiveFails int
	consecutiveOK    int
}

func (c *check) err() error {
	if p := c.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// run executes the check once and reports whether its health flipped.
func (c *check) run(ctx context.Context) (changed bool) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.fn(ctx)
	c.lastErr.Store(&err)

	was := c.healthy.Load()
	if err != nil {
		c.consecutiveOK = 0
		c.consecutiveFails++
		if c.consecutiveFails >= c.failureThreshold {
			c.healthy.Store(false)
		}
	} else {
		c.consecutiveFails = 0
		c.consecutiveOK++
		if c.consecutiveOK >= c.successThreshold {
			c.healthy.Store(true)
		}
	}
	return was != c.healthy.Load()
}

// Health is a registry of checks plus a readiness gate.
type Health struct {
	lg    *zap.Logger
	ready atomic.Bool
	// recheck asks Run for an immediate poll.
	recheck chan struct{}

	mu     sync.RWMutex
	checks []*check
}

// New creates a Health with the gate closed.
func New(lg *zap.Logger) *Health {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Health{lg: lg, recheck: make(chan struct{}, 1)}
}

// Add registers a check. Checks start healthy.
func (h *Health) Add(kind Kind, name string, fn CheckFunc, opts ...CheckOption) {
	c := &check{
		name:             name,
		kind:             kind,
		timeout:          time.Second,
		fn:               fn,
		failureThreshold: 3,
		successThreshold: 1,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.healthy.Store(true)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, c)
}

// SetReady opens or closes the readiness gate. Opening it triggers an
// immediate poll, so checks that depend on the same condition catch up
// without waiting for the next tick.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
	if !ready {
		return
	}
	select {
	case h.recheck <- struct{}{}:
	default:
	}
}

// OpenWhen opens the gate once done is closed, unless ctx ends first.
func (h *Health) OpenWhen(ctx context.Context, done <-chan struct{}) {
	go func() {
		select {
		case <-done:
			h.SetReady(true)
			h.lg.Info("Readiness gate opened")
		case <-ctx.Done():
		}
	}()
}

// IsReady reports whether the gate is open and every readiness check passes.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	return len(h.failures(Readiness)) == 0
}

// Run polls every check each interval, and whenever the gate opens, until ctx
// ends. It always returns nil, so it can run in an errgroup next to the
// server.
func (h *Health) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		h.runAll(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-h.recheck:
		}
	}
}

func (h *Health) runAll(ctx context.Context) {
	h.mu.RLock()
	checks := h.checks
	h.mu.RUnlock()

	for _, c := range checks {
		if !c.run(ctx) {
			continue
		}
		if c.healthy.Load() {
			h.lg.Info("Check recovered", zap.String("check", c.name), zap.Stringer("kind", c.kind))
		} else {
			h.lg.Warn("Check unhealthy", zap.String("check", c.name), zap.Stringer("kind", c.kind), zap.Error(c.err()))
		}
	}
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeResponse(w, h.failures(Liveness))
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failures := h.failures(Readiness)
	if !h.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	writeResponse(w, failures)
}

// failures maps each unhealthy check of kind to its last error.
func (h *Health) failures(kind Kind) map[string]string {
	h.mu.RLock()
	checks := h.checks
	h.mu.RUnlock()

	out := make(map[string]string)
	for _, c := range checks {
		if c.kind != kind || c.healthy.Load() {
			continue
		}
		if err := c.err(); err != nil {
			out[c.name] = err.Error()
		} else {
			out[c.name] = "check is unhealthy"
		}
	}
	return out
}

// writeResponse writes {"status":"ok"} or 503 with the failing checks.
func writeResponse(w http.ResponseWriter, failures map[string]string) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	status := http.StatusOK
	e.Obj(func(e *jx.Encoder) {
		if len(failures) == 0 {
			e.Field("status", func(e *jx.Encoder) { e.Str("ok") })
			return
		}
		status = http.StatusServiceUnavailable
		e.Field("status", func(e *jx.Encoder) { e.Str("unhealthy") })
		e.Field("checks", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				for name, msg := range failures {
					e.Field(name, func(e *jx.Encoder) { e.Str(msg) })
				}
			})
		})
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
