// Command catalog-snapshot fetches the catalog once and writes the resulting
// state into a persistence medium, so the server starts hydrated.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"

	appkg "github.com/xenking/kart-catalog/internal/app"
	"github.com/xenking/kart-catalog/internal/catalog"
	"github.com/xenking/kart-catalog/internal/domain/product"
	"github.com/xenking/kart-catalog/internal/gateway"
	"github.com/xenking/kart-catalog/internal/persist"
)

func main() {
	var (
		sourceURL    string
		productsFile string
		sortOrder    string
		timeout      time.Duration
		pcfg         appkg.PersistenceConfig
	)

	flag.StringVar(&sourceURL, "source-url", gateway.DefaultURL, "catalog source URL")
	flag.StringVar(&productsFile, "products-file", "", "read products from a JSON file instead of the source URL")
	flag.StringVar(&sortOrder, "sort", "default", "sort order to store: default, ascending or descending")
	flag.DurationVar(&timeout, "timeout", catalog.DefaultFetchTimeout, "fetch timeout")
	flag.StringVar(&pcfg.Backend, "backend", appkg.BackendBolt, "state medium: bolt, file or postgres")
	flag.StringVar(&pcfg.Key, "key", persist.DefaultKey, "key to store the state under")
	flag.StringVar(&pcfg.Path, "path", "data/catalog.db", "bbolt database path")
	flag.StringVar(&pcfg.Dir, "dir", "data/state", "state directory for the file backend")
	flag.BoolVar(&pcfg.Compress, "compress", false, "gzip state files (file backend)")
	flag.StringVar(&pcfg.DatabaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if pcfg.DatabaseURL == "" {
		pcfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	switch pcfg.Backend {
	case appkg.BackendBolt, appkg.BackendFile, appkg.BackendPostgres:
	default:
		slog.Error("backend must be durable", slog.String("backend", pcfg.Backend))
		os.Exit(1)
	}
	order, err := product.ParseSortOrder(sortOrder)
	if err != nil {
		slog.Error("invalid sort order", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var fetcher catalog.Fetcher = gateway.New(gateway.Config{URL: sourceURL})
	if productsFile != "" {
		fetcher = fileFetcher(productsFile)
	}

	if err := run(ctx, fetcher, pcfg, order, timeout); err != nil {
		slog.Error("snapshot failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("snapshot completed successfully")
}

func fileFetcher(path string) catalog.FetcherFunc {
	return func(context.Context) ([]product.Product, error) {
		slog.Info("reading products file", slog.String("path", path))

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read products file")
		}
		return gateway.DecodeCollection(data)
	}
}

func run(ctx context.Context, fetcher catalog.Fetcher, pcfg appkg.PersistenceConfig, order product.SortOrder, timeout time.Duration) error {
	slog.Info("opening state medium", slog.String("backend", pcfg.Backend))

	medium, err := appkg.OpenMedium(ctx, pcfg)
	if err != nil {
		return err
	}
	defer func() { _ = medium.Close() }()

	snap, err := storeSnapshot(ctx, fetcher, medium, pcfg.Key, order, timeout)
	if err != nil {
		return err
	}

	slog.Info("stored catalog state",
		slog.String("key", pcfg.Key),
		slog.Int("products", len(snap.RawProducts)),
		slog.String("sort", string(snap.SortOrder)),
	)
	return nil
}

// storeSnapshot loads the catalog through a store backed by medium and makes
// sure the resulting state is durably stored under key.
func storeSnapshot(
	ctx context.Context,
	fetcher catalog.Fetcher,
	medium persist.Medium,
	key string,
	order product.SortOrder,
	timeout time.Duration,
) (catalog.Snapshot, error) {
	adapter := persist.NewAdapter(medium, persist.WithKey(key))

	// Writes go through the store so the stored document is exactly what
	// the server would have persisted.
	store, err := catalog.Open(ctx, fetcher,
		catalog.WithPersister(adapter),
		catalog.WithFetchTimeout(timeout),
	)
	if err != nil {
		return catalog.Snapshot{}, errors.Wrap(err, "open catalog")
	}
	defer store.Dispose()

	// A stored failure or loading status would block the fetch.
	if err := store.ResetStatus(); err != nil {
		return catalog.Snapshot{}, errors.Wrap(err, "reset status")
	}
	if err := store.SetSortOrder(order); err != nil {
		return catalog.Snapshot{}, errors.Wrap(err, "set sort order")
	}

	slog.Info("fetching catalog")

	snap, err := store.Load(ctx)
	if err != nil {
		return catalog.Snapshot{}, errors.Wrap(err, "load catalog")
	}
	if snap.Status != catalog.StatusSucceeded {
		return catalog.Snapshot{}, errors.Errorf("fetch %s: %s", snap.Status, snap.Error)
	}

	// The store only logs save failures; surface them here.
	if err := adapter.Save(ctx, snap.State); err != nil {
		return catalog.Snapshot{}, errors.Wrap(err, "save state")
	}
	stored, err := adapter.Load(ctx)
	if err != nil {
		return catalog.Snapshot{}, errors.Wrap(err, "verify state")
	}
	if stored == nil {
		return catalog.Snapshot{}, errors.Errorf("verify state: nothing stored under %q", key)
	}
	if len(stored.RawProducts) != len(snap.RawProducts) || stored.SortOrder != snap.SortOrder {
		return catalog.Snapshot{}, errors.Errorf("verify state: stored %d products (%s), want %d (%s)",
			len(stored.RawProducts), stored.SortOrder, len(snap.RawProducts), snap.SortOrder)
	}
	return snap, nil
}
