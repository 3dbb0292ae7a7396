// Package main is the entrypoint for the DocVault processing worker.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docvault/docvault/internal/admission"
	"github.com/docvault/docvault/internal/audit"
	"github.com/docvault/docvault/internal/config"
	"github.com/docvault/docvault/internal/metrics"
	"github.com/docvault/docvault/internal/objectstore"
	"github.com/docvault/docvault/internal/pipeline"
	"github.com/docvault/docvault/internal/queue"
	"github.com/docvault/docvault/internal/retention"
	"github.com/docvault/docvault/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast when invalid
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Admission controller on Redis
	slots, err := admission.NewRedisController(cfg.Redis.URL, cfg.Processing.DefaultConcurrencyLimit)
	if err != nil {
		return fmt.Errorf("create admission controller: %w", err)
	}
	defer slots.Close()

	if err := slots.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Object storage
	objects, err := objectstore.NewMinioStore(cfg.ObjectStore)
	if err != nil {
		return fmt.Errorf("create object store: %w", err)
	}
	if err := objects.Ping(ctx); err != nil {
		return fmt.Errorf("ping object store: %w", err)
	}
	slog.Info("object store connected", "bucket", cfg.ObjectStore.Bucket)

	// 6. Message broker
	broker, err := queue.NewRabbit(cfg.Queue)
	if err != nil {
		return fmt.Errorf("connect amqp: %w", err)
	}
	defer broker.Close()
	slog.Info("amqp connected", "exchange", cfg.Queue.Exchange)

	// 7. Assemble the pipeline
	pgStore := store.NewPostgresStore(pool)
	recorder := metrics.LogRecorder{}

	orch := pipeline.NewOrchestrator(pipeline.Deps{
		Store:   pgStore,
		Slots:   slots,
		Guard:   pipeline.NewGuard(objects),
		Router:  pipeline.NewRouter(cfg.Processing),
		Queue:   broker,
		Audit:   audit.NewStoreWriter(pgStore),
		Metrics: recorder,
		Retry: pipeline.RetryConfig{
			MaxAttempts: cfg.Processing.MaxAttempts,
			BaseDelay:   cfg.Processing.RetryBaseDelay,
			MaxDelay:    cfg.Processing.RetryMaxDelay,
		},
		Bucket: cfg.ObjectStore.Bucket,
	})

	sweeper := retention.NewSweeper(retention.SweeperDeps{
		Store:     pgStore,
		Queue:     broker,
		Audit:     audit.NewStoreWriter(pgStore),
		Metrics:   recorder,
		BatchSize: cfg.Retention.SweepBatch,
	})

	purger := retention.NewPurger(retention.PurgerDeps{
		Store:   pgStore,
		Objects: objects,
		Audit:   audit.NewStoreWriter(pgStore),
		Metrics: recorder,
	})

	// 8. Health endpoint
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/healthz", healthHandler(pgStore, slots, broker, objects))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 9. Run consumers, sweeper, and health server until a signal arrives
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return broker.Consume(gctx, cfg.Queue.ProcessingQueue, orch.HandleDispatch)
	})
	g.Go(func() error {
		return broker.Consume(gctx, cfg.Queue.CompletionQueue, orch.HandleCompletion)
	})
	g.Go(func() error {
		return broker.Consume(gctx, cfg.Queue.DeletionQueue, purger.HandleHardDelete)
	})
	g.Go(func() error {
		sweeper.Run(gctx, cfg.Retention.SweepInterval)
		return nil
	})
	g.Go(func() error {
		slog.Info("health server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("worker stopped gracefully")
	return nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler checks connectivity to every backing service.
func healthHandler(db, slots, broker, objects pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database":     "ok",
			"redis":        "ok",
			"queue":        "ok",
			"object_store": "ok",
		}

		for name, p := range map[string]pinger{
			"database":     db,
			"redis":        slots,
			"queue":        broker,
			"object_store": objects,
		} {
			if err := p.Ping(r.Context()); err != nil {
				checks[name] = "degraded"
			}
		}

		status := http.StatusOK
		overall := "ok"
		for _, v := range checks {
			if v != "ok" {
				status = http.StatusServiceUnavailable
				overall = "degraded"
				break
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status":   overall,
			"services": checks,
		})
	}
}
