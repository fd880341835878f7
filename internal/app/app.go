// Package app wires the catalog server together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-catalog/internal/catalog"
	"github.com/xenking/kart-catalog/internal/gateway"
	"github.com/xenking/kart-catalog/internal/handler"
	"github.com/xenking/kart-catalog/internal/pagination"
	"github.com/xenking/kart-catalog/internal/persist"
	"github.com/xenking/kart-catalog/pkg/health"
	"github.com/xenking/kart-catalog/pkg/httpmiddleware"
)

const serviceName = "kart-catalog"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("backend", cfg.Persistence.Backend),
	)

	medium, err := OpenMedium(ctx, cfg.Persistence)
	if err != nil {
		return err
	}
	if medium != nil {
		defer func() {
			if err := medium.Close(); err != nil {
				lg.Warn("Close state medium", zap.Error(err))
			}
		}()
	}

	metrics, err := catalog.NewMetrics(m.MeterProvider().Meter(serviceName))
	if err != nil {
		return errors.Wrap(err, "create catalog metrics")
	}

	fetcher := gateway.New(
		gateway.Config{URL: cfg.Source.URL, UserAgent: cfg.Source.UserAgent},
		gateway.WithLogger(lg.Named("gateway")),
		gateway.WithTelemetry(m.TracerProvider(), m.MeterProvider()),
	)

	storeOpts := []catalog.Option{
		catalog.WithLogger(lg.Named("catalog")),
		catalog.WithMetrics(metrics),
		catalog.WithFetchTimeout(cfg.Source.Timeout),
	}
	if medium != nil {
		storeOpts = append(storeOpts, catalog.WithPersister(persist.NewAdapter(medium,
			persist.WithKey(cfg.Persistence.Key),
			persist.WithLogger(lg.Named("persist")),
		)))
	}
	store := catalog.New(fetcher, storeOpts...)
	defer store.Dispose()

	pager, err := pagination.New(cfg.Pagination.config(), pagination.WithLogger(lg.Named("pagination")))
	if err != nil {
		return err
	}

	// Health: readiness opens once the store is hydrated.
	healthSvc := health.New(lg.Named("health"))
	healthSvc.Add(health.Readiness, "catalog",
		health.ClosedCheck(store.Ready(), "catalog is hydrating"),
		health.WithThresholds(1, 1),
	)
	if medium != nil {
		healthSvc.Add(health.Readiness, "medium", health.PingCheck(medium), health.WithTimeout(5*time.Second))
	}
	healthSvc.Add(health.Liveness, "goroutines", health.GoroutineCountCheck(10000))

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	handler.New(store, pager).Register(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      writeTimeout(cfg.Source.Timeout),
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", httpmiddleware.HeaderRequestID},
				ExposeHeaders:    []string{httpmiddleware.HeaderRequestID},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           cfg.CORS.MaxAge,
			}),
			func(next http.Handler) http.Handler {
				return otelhttp.NewHandler(next, serviceName,
					otelhttp.WithTracerProvider(m.TracerProvider()),
					otelhttp.WithMeterProvider(m.MeterProvider()),
				)
			},
			httpmiddleware.LogRequests(),
		),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return healthSvc.Run(gctx, 10*time.Second)
	})
	g.Go(func() error {
		if err := pager.Run(gctx, store); err != nil && !errors.Is(err, context.Canceled) {
			return errors.Wrap(err, "pagination")
		}
		return nil
	})
	g.Go(func() error {
		healthSvc.OpenWhen(gctx, store.Ready())
		if err := store.Hydrate(gctx); err != nil {
			return errors.Wrap(err, "hydrate catalog")
		}
		if !cfg.LoadOnStart {
			return nil
		}
		snap, err := store.Load(gctx)
		if err != nil {
			if gctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "initial load")
		}
		lg.Info("Initial load done",
			zap.String("status", string(snap.Status)),
			zap.Int("products", len(snap.RawProducts)),
		)
		return nil
	})

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}

// writeTimeout bounds responses by the fetch timeout, since a load request
// waits for the whole fetch. An unbounded fetch leaves writes unbounded.
func writeTimeout(fetch time.Duration) time.Duration {
	if fetch <= 0 {
		return 0
	}
	return fetch + 10*time.Second
}
