package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/fleetglass/fleetglass-backend/internal/actions"
	"github.com/fleetglass/fleetglass-backend/internal/api/middleware"
	"github.com/fleetglass/fleetglass-backend/internal/api/rest"
	"github.com/fleetglass/fleetglass-backend/internal/api/websocket"
	"github.com/fleetglass/fleetglass-backend/internal/config"
	"github.com/fleetglass/fleetglass-backend/internal/pkg/logger"
	"github.com/fleetglass/fleetglass-backend/internal/pkg/tracing"
	"github.com/fleetglass/fleetglass-backend/internal/repository"
	"github.com/fleetglass/fleetglass-backend/internal/service"
	"github.com/fleetglass/fleetglass-backend/internal/source"
	"github.com/fleetglass/fleetglass-backend/internal/stream"
	"github.com/fleetglass/fleetglass-backend/internal/syncer"
	"github.com/fleetglass/fleetglass-backend/internal/unify"
	"github.com/fleetglass/fleetglass-backend/internal/usage"
	"github.com/fleetglass/fleetglass-backend/migrations"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	log.Info("starting", "port", cfg.Port, "driver", cfg.DatabaseDriver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init("fleetglass-backend", cfg.TracingEndpoint, cfg.TracingSamplingRate)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer shutdownTracing()

	repo, err := repository.New(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}
	defer repo.Close()

	schema, err := loadSchema(cfg.MigrationsPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	if err := repo.RunMigrations(schema); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	// Sync pipeline: snapshot store, per-source loops, shared usage cache.
	snaps := syncer.NewStore()
	sched := syncer.NewScheduler(snaps, cfg.SyncInterval(), cfg.CycleTimeout(), log)
	collector := usage.NewCollector(cfg.UsageCacheTTL(), log)

	clusters := service.NewClusterService(repo, sched, collector, cfg, log)
	hosts := service.NewHostService(repo, sched, snaps, collector, cfg, log)
	sched.SetCycleHook(func(ref source.Ref, cycleErr error) {
		switch ref.Kind {
		case source.KindKubernetes:
			clusters.RecordCycle(ref, cycleErr)
		case source.KindDocker:
			hosts.RecordCycle(ref, cycleErr)
		}
	})

	// Restore persisted sources before the loops start; unreachable ones come
	// back registered and keep retrying.
	if err := clusters.LoadFromRepo(ctx); err != nil {
		log.Error("restore clusters", "error", err)
	}
	if err := hosts.LoadFromRepo(ctx); err != nil {
		log.Error("restore hosts", "error", err)
	}
	sched.Start(ctx)

	view := unify.NewView(snaps, sched)
	logs := service.NewLogsService(clusters, hosts, view, cfg, log)
	dispatcher := actions.NewDispatcher(view, hosts, sched, 0, log)

	broker := stream.NewBroker(collector, stream.Options{
		Period:          cfg.StreamPeriod(),
		Window:          cfg.StreamWindow,
		TopN:            cfg.StreamTopN,
		ExcludePrefixes: cfg.StreamExcludePrefixes,
	}, log)
	broker.Start(ctx)

	cleaner := service.NewCleanup(repo, cfg.EventsCleanupInterval(), cfg.EventsRetention(), log)
	cleaner.Start(ctx)

	router := mux.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.StructuredLog)
	router.Use(middleware.Tracing)
	router.Use(middleware.SecureHeaders)
	router.Use(middleware.MaxBodySize(middleware.DefaultMaxBodyBytes))

	handler := rest.NewHandler(clusters, hosts, logs, view, dispatcher, sched, repo, cfg, log)
	rest.SetupRoutes(router, handler)

	ws := websocket.NewHandler(broker, cfg, log)
	router.HandleFunc("/ws/metrics", ws.ServeWS).Methods(http.MethodGet)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-Trace-ID"},
		AllowCredentials: true,
	}).Handler(router)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      corsHandler,
		ReadTimeout:  cfg.RequestTimeout(),
		WriteTimeout: cfg.RequestTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("forced shutdown", "error", err)
	}

	// Streams first so subscribers get a close frame, then the loops, then any
	// in-flight background resyncs.
	broker.Close()
	cleaner.Stop()
	sched.Stop()
	dispatcher.Wait()

	log.Info("server exited")
	return nil
}

// loadSchema returns the migration SQL: the embedded schema by default, or the
// concatenated *.sql files from dir when migrations_path is set.
func loadSchema(dir string) (string, error) {
	if dir == "" {
		return migrations.Schema()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no .sql files in %s", dir)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return "", err
		}
		b.Write(data)
		b.WriteString("\n")
	}
	return b.String(), nil
}
