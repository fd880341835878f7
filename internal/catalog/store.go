package catalog

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/kart-catalog/internal/domain/product"
)

// DefaultFetchTimeout bounds a single fetch when no timeout is configured.
const DefaultFetchTimeout = 30 * time.Second

const loadKey = "load"

// Sentinel errors for store lifecycle violations.
var (
	ErrNotReady = errors.New("catalog store is not hydrated")
	ErrDisposed = errors.New("catalog store is disposed")
)

// Fetcher retrieves the whole product collection in one round trip.
type Fetcher interface {
	Fetch(ctx context.Context) ([]product.Product, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context) ([]product.Product, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context) ([]product.Product, error) {
	return f(ctx)
}

// Persister stores the catalog state across process restarts.
type Persister interface {
	// Load returns the persisted state, or nil when nothing was stored.
	Load(ctx context.Context) (*State, error)
	// Save replaces the persisted state.
	Save(ctx context.Context, st State) error
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(lg *zap.Logger) Option {
	return func(s *Store) { s.lg = lg }
}

// WithPersister enables hydration from and writes to p.
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

// WithMetrics enables metric recording.
func WithMetrics(m *Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithFetchTimeout bounds each fetch. Zero disables the bound.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Store) { s.fetchTimeout = d }
}

// Store owns the catalog state. Commands are applied one at a time; every
// commit publishes a complete Snapshot that readers load without locking.
//
// At most one fetch is outstanding per store. Concurrent Load calls share
// it and all observe the same terminal snapshot.
type Store struct {
	fetcher      Fetcher
	persister    Persister
	lg           *zap.Logger
	metrics      *Metrics
	fetchTimeout time.Duration

	// ctx lives until Dispose and bounds every fetch.
	ctx    context.Context
	cancel context.CancelFunc

	flight singleflight.Group
	snap   atomic.Pointer[Snapshot]
	ready  chan struct{}

	// mu serializes commits.
	mu       sync.Mutex
	state    State
	revision uint64
	version  uint64
	hydrated bool
	disposed bool
	subs     map[uint64]chan Snapshot
	nextSub  uint64
}

// New creates a store in the initial state. The store accepts commands only
// after Hydrate returns.
func New(fetcher Fetcher, opts ...Option) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		fetcher:      fetcher,
		lg:           zap.NewNop(),
		fetchTimeout: DefaultFetchTimeout,
		ctx:          ctx,
		cancel:       cancel,
		ready:        make(chan struct{}),
		state:        InitialState(),
		subs:         make(map[uint64]chan Snapshot),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.snap.Store(&Snapshot{State: s.state})
	return s
}

// Open creates and hydrates a store.
func Open(ctx context.Context, fetcher Fetcher, opts ...Option) (*Store, error) {
	s := New(fetcher, opts...)
	if err := s.Hydrate(ctx); err != nil {
		s.Dispose()
		return nil, err
	}
	return s, nil
}

// Hydrate restores persisted state and marks the store ready. Unreadable or
// malformed persisted data is logged and replaced by the initial state. It
// fails only when ctx ends first or the store is disposed. Calling it again
// after success is a no-op.
func (s *Store) Hydrate(ctx context.Context) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	if s.hydrated {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	st := InitialState()
	if s.persister != nil {
		loaded, err := s.persister.Load(ctx)
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return errors.Wrap(ctxErr, "hydrate")
			}
			s.lg.Warn("Discarding persisted catalog state", zap.Error(err))
		case loaded != nil:
			st = Rehydrate(*loaded)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return ErrDisposed
	}
	if s.hydrated {
		return nil
	}
	s.state = st
	s.hydrated = true
	s.revision++
	s.commitLocked(false)
	close(s.ready)

	s.lg.Info("Catalog hydrated",
		zap.String("status", string(st.Status)),
		zap.String("sort", string(st.SortOrder)),
		zap.Int("products", len(st.RawProducts)),
	)
	return nil
}

// Ready is closed once hydration completes.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// Dispose cancels any in-flight fetch and closes all subscriptions. The
// store rejects commands afterwards. Safe to call more than once.
func (s *Store) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return
	}
	s.disposed = true
	s.cancel()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

// Snapshot returns the latest committed snapshot.
func (s *Store) Snapshot() Snapshot {
	return *s.snap.Load()
}

// Load fetches the catalog if the status is idle. Otherwise it returns the
// current snapshot untouched. A fetch failure is reported through the
// snapshot status, not the error.
//
// If ctx ends while the fetch is in flight, Load returns ctx.Err() and the
// fetch continues for other callers; only Dispose or the fetch timeout stop
// it.
func (s *Store) Load(ctx context.Context) (Snapshot, error) {
	if err := s.usable(); err != nil {
		return s.Snapshot(), err
	}

	ch := s.flight.DoChan(loadKey, s.load)
	select {
	case <-ctx.Done():
		return s.Snapshot(), ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return s.Snapshot(), res.Err
		}
		return res.Val.(Snapshot), nil
	}
}

func (s *Store) load() (any, error) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil, ErrDisposed
	}
	if s.state.Status != StatusIdle {
		snap := *s.snap.Load()
		s.mu.Unlock()
		return snap, nil
	}
	s.state.Status = StatusLoading
	s.state.Error = ""
	s.commitLocked(true)
	s.mu.Unlock()

	ctx := s.ctx
	if s.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
	}

	start := time.Now()
	products, err := s.fetcher.Fetch(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return nil, ErrDisposed
	}
	if err != nil {
		s.state.Status = StatusFailed
		s.state.Error = errorMessage(err)
		s.lg.Warn("Catalog fetch failed", zap.Error(err))
	} else {
		raw := slices.Clip(slices.Clone(products))
		if raw == nil {
			raw = []product.Product{}
		}
		s.state.RawProducts = raw
		s.state.DerivedProducts = product.Sort(raw, s.state.SortOrder)
		s.state.Status = StatusSucceeded
		s.state.Error = ""
		s.revision++
		s.lg.Info("Catalog fetched",
			zap.Int("products", len(raw)),
			zap.Duration("took", time.Since(start)),
		)
	}
	s.metrics.recordFetch(s.ctx, s.state.Status, time.Since(start))
	s.commitLocked(true)

	return *s.snap.Load(), nil
}

// ResetStatus returns the status to idle so that the next Load fetches
// again. The product collections are kept.
func (s *Store) ResetStatus() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(); err != nil {
		return err
	}
	if s.state.Status == StatusIdle {
		return nil
	}
	s.state.Status = StatusIdle
	s.state.Error = ""
	s.commitLocked(true)
	return nil
}

// SetSortOrder changes the sort order and rebuilds the derived view in the
// same commit. Setting the current order again commits nothing.
func (s *Store) SetSortOrder(order product.SortOrder) error {
	if !order.Valid() {
		return errors.Wrapf(product.ErrInvalidSortOrder, "%q", string(order))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(); err != nil {
		return err
	}
	if s.state.SortOrder == order {
		return nil
	}
	s.state.SortOrder = order
	s.state.DerivedProducts = product.Sort(s.state.RawProducts, order)
	s.revision++
	s.metrics.recordSort(s.ctx, string(order))
	s.commitLocked(true)
	return nil
}

// Lookup returns the product with the given id from the fetched collection.
func (s *Store) Lookup(id string) (product.Product, error) {
	snap := s.snap.Load()
	for _, p := range snap.RawProducts {
		if p.ID == id {
			return p, nil
		}
	}
	return product.Product{}, product.ErrNotFound
}

// Subscribe returns a channel that receives snapshots, starting with the
// current one. The channel holds only the newest undelivered snapshot, so a
// slow reader skips intermediate commits but never misses the latest. The
// returned func releases the subscription and closes the channel.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- *s.snap.Load()
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

func (s *Store) usable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usableLocked()
}

func (s *Store) usableLocked() error {
	switch {
	case s.disposed:
		return ErrDisposed
	case !s.hydrated:
		return ErrNotReady
	default:
		return nil
	}
}

// commitLocked publishes the current state. Must be called with s.mu held.
func (s *Store) commitLocked(save bool) {
	s.version++
	snap := &Snapshot{
		State:    s.state,
		Revision: s.revision,
		Version:  s.version,
		Ready:    s.hydrated,
	}
	s.snap.Store(snap)

	if save && s.persister != nil {
		if err := s.persister.Save(s.ctx, s.state); err != nil {
			s.lg.Warn("Persist catalog state", zap.Error(err))
		}
	}

	for _, ch := range s.subs {
		offer(ch, *snap)
	}
}

// offer replaces any pending value in ch with snap. Only the committing
// goroutine sends, so the final send cannot block.
func offer(ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}

func errorMessage(err error) string {
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "fetch failed"
}
