package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	apihttp "gasledger/internal/api/http"
	"gasledger/internal/auth"
	history "gasledger/internal/history/domain"
	filestore "gasledger/internal/history/infrastructure/file"
	"gasledger/internal/history/infrastructure/instrumented"
	"gasledger/internal/history/infrastructure/memory"
	pgstore "gasledger/internal/history/infrastructure/postgres"
	"gasledger/internal/observability/metrics"
	"gasledger/internal/reconcile/application"
	reconcile "gasledger/internal/reconcile/domain"
	"gasledger/internal/upstream"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	cfg, err := application.LoadConfig()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}

	backendStore, db := buildStore(cfg, logger)
	if db != nil {
		defer db.Close()
	}
	metrics.Init(db, logger)

	store, err := instrumented.NewStore(backendStore, cfg.Storage.Driver)
	if err != nil {
		logger.Fatalf("store error: %v", err)
	}

	normalizer := reconcile.NewNormalizer(cfg.ZoneOffsetHours)
	engine, err := application.NewEngine(store, normalizer, logger,
		application.WithCycleMode(cfg.CycleMode),
		application.WithRetentionDays(cfg.RetentionDays),
		application.WithDivergenceThreshold(cfg.DivergenceThreshold),
	)
	if err != nil {
		logger.Fatalf("engine error: %v", err)
	}

	var scheduler *application.Scheduler
	if cfg.Upstream.BaseURL != "" {
		opts := []upstream.Option{}
		if cfg.Upstream.ClientType != "" {
			opts = append(opts, upstream.WithClientType(cfg.Upstream.ClientType))
		}
		client, err := upstream.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.SigningSecret, opts...)
		if err != nil {
			logger.Fatalf("upstream client error: %v", err)
		}
		scheduler, err = application.NewScheduler(engine, client, cfg.Entries, cfg.PollInterval, logger)
		if err != nil {
			logger.Fatalf("scheduler error: %v", err)
		}
	} else {
		logger.Printf("no upstream configured; serving persisted state only")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if scheduler != nil {
		go scheduler.Start(ctx)
	}

	var results apihttp.ResultSource
	if scheduler != nil {
		results = scheduler
	}
	entriesHandler := apihttp.NewEntriesHandler(store, results, logger)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/entries/", entriesHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Printf("listening on %s (storage=%s entries=%d)", cfg.HTTPAddr, cfg.Storage.Driver, len(cfg.Entries))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal(err)
	}
}

func buildStore(cfg application.Config, logger *log.Logger) (history.Store, *sql.DB) {
	switch cfg.Storage.Driver {
	case "postgres":
		db, err := sql.Open("pgx", cfg.Storage.DSN)
		if err != nil {
			logger.Fatalf("db open error: %v", err)
		}
		if err := db.Ping(); err != nil {
			logger.Fatalf("db ping error: %v", err)
		}
		store, err := pgstore.NewStore(db, logger)
		if err != nil {
			logger.Fatalf("postgres store error: %v", err)
		}
		if err := store.EnsureSchema(context.Background()); err != nil {
			logger.Fatalf("schema error: %v", err)
		}
		return store, db
	case "memory":
		return memory.NewStore(), nil
	default:
		store, err := filestore.NewStore(cfg.Storage.Root, logger)
		if err != nil {
			logger.Fatalf("file store error: %v", err)
		}
		return store, nil
	}
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
