package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dreamware/strata/internal/coordinator"
)

type coordinatorConfig struct {
	Listen            string
	SearchConcurrency int
	HealthInterval    time.Duration
	LogLevel          string
}

// server bundles the coordinator's collaborators behind its HTTP surface.
type server struct {
	registry *coordinator.NodeRegistry
	indices  *coordinator.IndexRegistry
	router   *coordinator.ShardRouter
	searcher *coordinator.SearchCoordinator
	monitor  *coordinator.HealthMonitor
	log      *logrus.Logger
}

func newServer(cfg coordinatorConfig, log *logrus.Logger) *server {
	registry := coordinator.NewNodeRegistry(log)
	indices := coordinator.NewIndexRegistry()
	router := coordinator.NewShardRouter(indices)
	executor := coordinator.NewHTTPExecutor(log)
	searcher := coordinator.NewSearchCoordinator(registry, router, executor, cfg.SearchConcurrency, log)
	monitor := coordinator.NewHealthMonitor(registry, cfg.HealthInterval, log)

	return &server{
		registry: registry,
		indices:  indices,
		router:   router,
		searcher: searcher,
		monitor:  monitor,
		log:      log,
	}
}

// routes builds the coordinator's HTTP mux. Method-and-path patterns keep
// the literal endpoints (/register, /nodes, /health) ahead of the index
// wildcards by ServeMux precedence.
func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("GET /nodes", s.handleListNodes)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("PUT /{index}", s.handleCreateIndex)
	mux.HandleFunc("HEAD /{index}", s.handleIndexExists)
	mux.HandleFunc("PUT /{index}/_doc/{id}", s.handleIndexDoc)
	mux.HandleFunc("POST /{index}/_search", s.handleSearch)
	return mux
}

func runCoordinator(ctx context.Context, cfg coordinatorConfig) error {
	log := newLogger(cfg.LogLevel)
	s := newServer(cfg, log)

	monCtx, cancelMonitor := context.WithCancel(ctx)
	defer cancelMonitor()
	go s.monitor.Start(monCtx)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("listen", cfg.Listen).Info("coordinator listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-stop:
	case <-ctx.Done():
	}

	cancelMonitor()
	s.monitor.Stop()

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.WithError(err).Warn("server shutdown error")
	}
	log.Info("coordinator stopped")
	return nil
}
