package persist

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/kart-catalog/internal/catalog"
)

var _ catalog.Persister = (*Adapter)(nil)

// Adapter stores the catalog state in a Medium under a single key.
type Adapter struct {
	medium Medium
	key    string
	lg     *zap.Logger
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithKey overrides DefaultKey.
func WithKey(key string) AdapterOption {
	return func(a *Adapter) { a.key = key }
}

// WithLogger sets the adapter logger.
func WithLogger(lg *zap.Logger) AdapterOption {
	return func(a *Adapter) { a.lg = lg }
}

// NewAdapter creates an Adapter over m.
func NewAdapter(m Medium, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		medium: m,
		key:    DefaultKey,
		lg:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Load returns the stored state, or nil if the key is empty.
func (a *Adapter) Load(ctx context.Context) (*catalog.State, error) {
	data, err := a.medium.Get(ctx, a.key)
	if err != nil {
		if errors.Is(err, ErrNoState) {
			a.lg.Debug("No persisted catalog state", zap.String("key", a.key))
			return nil, nil
		}
		return nil, &PersistenceError{Op: "load", Key: a.key, Err: err}
	}
	st, err := DecodeState(data)
	if err != nil {
		return nil, &PersistenceError{Op: "decode", Key: a.key, Err: err}
	}
	return &st, nil
}

// Save replaces the stored state with st.
func (a *Adapter) Save(ctx context.Context, st catalog.State) error {
	if err := a.medium.Put(ctx, a.key, EncodeState(st)); err != nil {
		return &PersistenceError{Op: "save", Key: a.key, Err: err}
	}
	return nil
}
