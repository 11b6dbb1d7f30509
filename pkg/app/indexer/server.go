// Package indexer implements app.Runner for the indexer process.
package indexer

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chainsafe/evm-indexer/pkg/alert"
	"github.com/chainsafe/evm-indexer/pkg/app/httpserver"
	"github.com/chainsafe/evm-indexer/pkg/auth"
	"github.com/chainsafe/evm-indexer/pkg/config"
	"github.com/chainsafe/evm-indexer/pkg/cursor"
	"github.com/chainsafe/evm-indexer/pkg/decoder"
	"github.com/chainsafe/evm-indexer/pkg/engine"
	"github.com/chainsafe/evm-indexer/pkg/indexdb"
	"github.com/chainsafe/evm-indexer/pkg/ingest"
	"github.com/chainsafe/evm-indexer/pkg/pgutil"
	"github.com/chainsafe/evm-indexer/pkg/source"
	"github.com/chainsafe/evm-indexer/pkg/stats"
)

const defaultHTTPMiddlewareTimeout = 60 * time.Second

// Server holds configuration for the indexer process.
type Server struct {
	cfg *config.Config
}

// NewServer initializes a new indexer Server.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

// Run starts the engine and the operational HTTP server. It blocks until an
// OS shutdown signal is received, a worker fails, or the server fails.
func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("nil config")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting EVM indexer", zap.Int64("chain_id", cfg.Chain.ChainID))

	db, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connect indexer db: %w", err)
	}
	store := indexdb.NewStore(db)
	defer func() { _ = store.Close() }()
	logger.Info("Database connection established")

	src, err := source.NewEthSource(ctx, &cfg.Chain, logger)
	if err != nil {
		return fmt.Errorf("initialize chain source: %w", err)
	}
	defer src.Close()

	eng, err := s.buildEngine(store, src, logger)
	if err != nil {
		return err
	}

	router := newRouter(cfg, eng, store, logger)
	httpServer := newHTTPServer(&cfg.Server, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gctx, cfg.Indexer.AutoStart) })
	g.Go(func() error { return httpserver.ServeAndWait(gctx, logger, httpServer, cfg.Server.ShutdownTimeout) })
	return g.Wait()
}

func (s *Server) buildEngine(store *indexdb.Store, src *source.EthSource, logger *zap.Logger) (*engine.Engine, error) {
	cfg := s.cfg

	dec, err := decoder.New()
	if err != nil {
		return nil, fmt.Errorf("initialize decoder: %w", err)
	}
	if cfg.Decoder.ABIDir != "" {
		n, err := dec.LoadDir(cfg.Decoder.ABIDir, logger)
		if err != nil {
			return nil, fmt.Errorf("load abi dir: %w", err)
		}
		logger.Info("Loaded contract ABIs", zap.String("dir", cfg.Decoder.ABIDir), zap.Int("count", n))
	}

	specs, err := alert.RulesFromConfig(&cfg.Alerts)
	if err != nil {
		return nil, fmt.Errorf("load alert rules: %w", err)
	}
	rules, err := alert.NewRegistry().Build(specs)
	if err != nil {
		return nil, fmt.Errorf("build alert rules: %w", err)
	}
	logger.Info("Alert rules loaded", zap.Int("count", len(rules)))

	dispatcher := alert.NewDispatcher(store, newNotifier(cfg.Dispatch, logger), cfg.Dispatch, logger)
	evaluator := alert.NewEvaluator(store, rules, dispatcher, cfg.Indexer.EvaluationQueueSize, logger)

	writer := ingest.NewWriter(store, dec, evaluator, evaluator.RollbackLocker(), cfg.Indexer.CommitTimeout, logger)
	cur := cursor.New(src, store, writer, cursor.Config{
		StartBlock:           cfg.Chain.StartBlock,
		Confirmations:        cfg.Chain.Confirmations,
		MaxReorgDepth:        cfg.Indexer.MaxReorgDepth,
		PollInterval:         cfg.Indexer.PollInterval,
		RetryInitialInterval: cfg.Indexer.RetryInitialInterval,
		RetryMaxInterval:     cfg.Indexer.RetryMaxInterval,
		HashCacheSize:        cfg.Indexer.HashCacheSize,
	}, indexdb.IsFatal, logger)

	workers := []engine.Worker{
		evaluator,
		dispatcher,
		workerFunc(func(ctx context.Context) error {
			src.WatchHeads(ctx)
			return nil
		}),
	}

	deps := engine.Deps{
		Ingestor: cur,
		State:    store.State(),
		Alerts:   store,
		AcquireLease: func(ctx context.Context) (engine.Lease, error) {
			lease, err := store.AcquireLease(ctx, cfg.Indexer.LeaseKey)
			if err != nil {
				return nil, err
			}
			return lease, nil
		},
	}
	if cfg.Stats.Enabled {
		refresher := stats.New(store, cfg.Stats, logger)
		deps.Refresher = refresher
		workers = append(workers, refresher)
	}
	deps.Workers = workers

	return engine.New(deps, logger), nil
}

// newNotifier always logs alerts and posts them to the webhook when one is configured.
func newNotifier(cfg config.DispatchConfig, logger *zap.Logger) alert.Notifier {
	notifiers := alert.MultiNotifier{alert.NewLogNotifier(logger)}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewWebhookNotifier(cfg.WebhookURL, cfg.Timeout))
	}
	return notifiers
}

func newRouter(cfg *config.Config, ctrl Controller, store QueryStore, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(defaultHTTPMiddlewareTimeout))
	r.Use(requestLogger(logger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Get("/ready", func(w http.ResponseWriter, _ *http.Request) {
		if !ctrl.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("NOT_READY"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	})

	if cfg.Monitoring.Enabled {
		r.Handle("/metrics", promhttp.Handler())
		logger.Info("Metrics enabled", zap.String("path", "/metrics"))
	}

	validator := auth.NewJWTValidator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if !validator.IsConfigured() {
		logger.Warn("auth.jwt_secret is empty, mutating endpoints are unauthenticated")
	}

	h := &handler{ctrl: ctrl, store: store, logger: logger}
	r.Route("/api/v1", func(r chi.Router) {
		h.routes(r, validator.RequireAdmin)
	})

	return r
}

// requestLogger writes one zap line per request.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

func newHTTPServer(cfg *config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

type workerFunc func(ctx context.Context) error

func (f workerFunc) Run(ctx context.Context) error { return f(ctx) }
