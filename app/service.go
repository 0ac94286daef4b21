// Package app wires the configured components into a runnable service.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/agrilink/fulfillment/api/allocations"
	"github.com/agrilink/fulfillment/config"
	"github.com/agrilink/fulfillment/core/allocation"
	"github.com/agrilink/fulfillment/core/events"
	"github.com/agrilink/fulfillment/core/match"
	coremetrics "github.com/agrilink/fulfillment/core/metrics"
	corenotify "github.com/agrilink/fulfillment/core/notify"
	corestorage "github.com/agrilink/fulfillment/core/storage"
	"github.com/agrilink/fulfillment/infra/logger"
	"github.com/agrilink/fulfillment/infra/metrics"
	"github.com/agrilink/fulfillment/infra/notify"
	"github.com/agrilink/fulfillment/infra/storage"
	"github.com/agrilink/fulfillment/internal/eventbus"
)

// Service orchestrates the allocation manager and the API server.
type Service struct {
	Manager *allocation.Manager
	Bus     *eventbus.Bus[events.Event]

	srv         *http.Server
	log         logger.Logger
	promEnabled bool
	promPort    string
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	store, err := newStore(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	var notifier corenotify.Notifier
	if cfg.Notifier.Enabled {
		notifier, err = notify.NewMQTTNotifier(cfg.Notifier)
		if err != nil {
			return nil, fmt.Errorf("mqtt notifier: %w", err)
		}
	}

	var sinks []coremetrics.MetricsSink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink()
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(
			cfg.Metrics.InfluxURL, cfg.Metrics.InfluxToken, cfg.Metrics.InfluxOrg, cfg.Metrics.InfluxBucket))
	}
	var sink coremetrics.MetricsSink
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = metrics.NewMultiSink(sinks...)
	}

	classifier := match.NewClassifier(cfg.Match.KeywordTable())
	ranker := match.NewRanker(match.NewScorer(cfg.Match.Weights, classifier))

	bus := eventbus.New[events.Event]()
	manager, err := allocation.NewManager(store, ranker, notifier, sink, bus, logg, cfg.Allocation)
	if err != nil {
		return nil, fmt.Errorf("allocation manager: %w", err)
	}

	mux := http.NewServeMux()
	allocations.NewHandler(manager, logg).Register(mux)

	return &Service{
		Manager:     manager,
		Bus:         bus,
		srv:         &http.Server{Addr: cfg.HTTP.Addr, Handler: mux},
		log:         logg,
		promEnabled: cfg.Metrics.PrometheusEnabled,
		promPort:    cfg.Metrics.PrometheusPort,
	}, nil
}

func newStore(cfg config.StorageConfig) (corestorage.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return storage.NewSQLiteStore(cfg.Path)
	default:
		return storage.NewMemoryStore(), nil
	}
}

// Run starts the API server and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.promEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("server shutdown: %v", err)
		}
	}()
	s.log.Infof("serving allocation API on %s", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error { return s.Manager.Close() }
