package app

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-catalog/internal/persist"
)

// OpenMedium opens the configured state medium. It returns nil for the none
// backend.
func OpenMedium(ctx context.Context, cfg PersistenceConfig) (persist.Medium, error) {
	switch cfg.Backend {
	case BackendBolt:
		m, err := persist.OpenBolt(cfg.Path)
		if err != nil {
			return nil, errors.Wrap(err, "open bolt medium")
		}
		return m, nil
	case BackendFile:
		var opts []persist.FileOption
		if cfg.Compress {
			opts = append(opts, persist.WithCompression())
		}
		m, err := persist.OpenFile(cfg.Dir, opts...)
		if err != nil {
			return nil, errors.Wrap(err, "open file medium")
		}
		return m, nil
	case BackendPostgres:
		m, err := persist.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "open postgres medium")
		}
		return m, nil
	case BackendMemory:
		return persist.NewMemoryMedium(), nil
	case BackendNone:
		return nil, nil
	default:
		return nil, errors.Errorf("unknown persistence backend %q", cfg.Backend)
	}
}
