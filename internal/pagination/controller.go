// Package pagination grows a visible window over the derived catalog as a
// boundary sentinel scrolls into view.
//
// The controller observes exactly one boundary at a time. Every observation
// is identified by a Token; a visibility signal carrying any other token is
// stale and ignored. The previous observation is always released before the
// next one is acquired.
package pagination

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/kart-catalog/internal/catalog"
	"github.com/xenking/kart-catalog/internal/domain/product"
)

// Defaults match the catalog grid: two screens up front, one row block per
// scroll.
const (
	DefaultInitialPageSize   = 20
	DefaultIncrementPageSize = 10
)

// Token identifies one boundary observation. The zero Token means nothing is
// observed.
type Token uint64

// Config sets the window sizes.
type Config struct {
	InitialPageSize   int
	IncrementPageSize int
}

// Validate rejects non-positive page sizes.
func (c Config) Validate() error {
	if c.InitialPageSize <= 0 {
		return errors.Errorf("initial page size must be positive, got %d", c.InitialPageSize)
	}
	if c.IncrementPageSize <= 0 {
		return errors.Errorf("increment page size must be positive, got %d", c.IncrementPageSize)
	}
	return nil
}

// BoundaryObserver attaches the platform sentinel for a token. Release is
// always called for a token before Observe is called for its successor.
// Both run with the controller lock held and must not call back into it.
type BoundaryObserver interface {
	Observe(token Token)
	Release(token Token)
}

type nopObserver struct{}

func (nopObserver) Observe(Token) {}
func (nopObserver) Release(Token) {}

// Window is the materialized prefix of the derived collection.
type Window struct {
	Items []product.Product
	Size  int
	// Total is the length of the derived collection.
	Total int
	// Boundary is the token to report when the sentinel becomes visible.
	// Zero once the whole collection is visible.
	Boundary Token
	// Revision is the catalog revision the window was built from.
	Revision uint64
}

// Complete reports whether every item is visible.
func (w Window) Complete() bool {
	return w.Size >= w.Total
}

// Option configures a Controller.
type Option func(*Controller)

// WithObserver sets the boundary observer.
func WithObserver(o BoundaryObserver) Option {
	return func(c *Controller) { c.observer = o }
}

// WithLogger sets the controller logger.
func WithLogger(lg *zap.Logger) Option {
	return func(c *Controller) { c.lg = lg }
}

// Controller owns the visible window.
type Controller struct {
	cfg      Config
	observer BoundaryObserver
	lg       *zap.Logger

	// growing suppresses overlapping growth steps.
	growing atomic.Bool

	mu        sync.Mutex
	derived   []product.Product
	revision  uint64
	version   uint64
	synced    bool
	size      int
	boundary  Token
	lastToken Token
}

// New creates a controller with an empty window.
func New(cfg Config, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "pagination config")
	}
	c := &Controller{
		cfg:      cfg,
		observer: nopObserver{},
		lg:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Sync applies a catalog snapshot. A newer revision resets the window to the
// initial page and replaces the observation. The same revision only clamps
// the window if the collection shrank. Snapshots older than the last one
// applied are ignored.
func (c *Controller) Sync(snap catalog.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.synced && (snap.Revision < c.revision || snap.Version < c.version) {
		c.lg.Debug("Stale snapshot ignored",
			zap.Uint64("revision", snap.Revision),
			zap.Uint64("version", snap.Version),
			zap.Uint64("current_revision", c.revision),
			zap.Uint64("current_version", c.version),
		)
		return
	}
	c.version = snap.Version

	if c.synced && snap.Revision == c.revision {
		if len(snap.DerivedProducts) < c.size {
			c.derived = snap.DerivedProducts
			c.size = len(c.derived)
			c.reobserveLocked()
		}
		return
	}

	c.synced = true
	c.revision = snap.Revision
	c.derived = snap.DerivedProducts
	c.size = min(c.cfg.InitialPageSize, len(c.derived))
	c.reobserveLocked()

	c.lg.Debug("Window reset",
		zap.Uint64("revision", c.revision),
		zap.Int("size", c.size),
		zap.Int("total", len(c.derived)),
	)
}

// NotifyBoundaryVisible grows the window by one increment if token is the
// current observation. Stale tokens, signals arriving while another growth
// step runs, and signals on a complete window are ignored. It reports
// whether the window grew.
func (c *Controller) NotifyBoundaryVisible(token Token) bool {
	if token == 0 {
		return false
	}
	if !c.growing.CompareAndSwap(false, true) {
		return false
	}
	defer c.growing.Store(false)

	c.mu.Lock()
	defer c.mu.Unlock()

	if token != c.boundary || c.size >= len(c.derived) {
		return false
	}
	c.size = min(c.size+c.cfg.IncrementPageSize, len(c.derived))
	c.reobserveLocked()
	return true
}

// Window returns the current visible window.
func (c *Controller) Window() Window {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Window{
		Items:    c.derived[:c.size:c.size],
		Size:     c.size,
		Total:    len(c.derived),
		Boundary: c.boundary,
		Revision: c.revision,
	}
}

// Run keeps the window in step with store until ctx ends or the store is
// disposed. The store subscription is released on return.
func (c *Controller) Run(ctx context.Context, store *catalog.Store) error {
	updates, release := store.Subscribe()
	defer release()
	defer c.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			c.Sync(snap)
		}
	}
}

// Close releases the current observation.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseLocked()
}

// reobserveLocked moves the observation to the current window boundary.
// Nothing is observed when the window already covers the collection.
func (c *Controller) reobserveLocked() {
	c.releaseLocked()
	if c.size >= len(c.derived) {
		return
	}
	c.lastToken++
	c.boundary = c.lastToken
	c.observer.Observe(c.boundary)
}

func (c *Controller) releaseLocked() {
	if c.boundary == 0 {
		return
	}
	c.observer.Release(c.boundary)
	c.boundary = 0
}
