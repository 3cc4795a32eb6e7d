// Package app wires the scheduling engine to its stores, feeds and
// providers, and serves the HTTP API.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	apianalytics "github.com/dispatchlab/fieldops/api/analytics"
	apischedule "github.com/dispatchlab/fieldops/api/schedule"
	apitechnicians "github.com/dispatchlab/fieldops/api/technicians"
	"github.com/dispatchlab/fieldops/config"
	"github.com/dispatchlab/fieldops/core/analytics"
	"github.com/dispatchlab/fieldops/core/disruption"
	"github.com/dispatchlab/fieldops/core/location"
	coremetrics "github.com/dispatchlab/fieldops/core/metrics"
	"github.com/dispatchlab/fieldops/core/monitoring"
	"github.com/dispatchlab/fieldops/core/notify"
	"github.com/dispatchlab/fieldops/core/optimizer"
	"github.com/dispatchlab/fieldops/core/runstore"
	"github.com/dispatchlab/fieldops/core/schedule"
	"github.com/dispatchlab/fieldops/core/score"
	coretravel "github.com/dispatchlab/fieldops/core/travel"
	"github.com/dispatchlab/fieldops/infra/logger"
	"github.com/dispatchlab/fieldops/infra/metrics"
	inframonitoring "github.com/dispatchlab/fieldops/infra/monitoring"
	"github.com/dispatchlab/fieldops/infra/mqtt"
	infrarunstore "github.com/dispatchlab/fieldops/infra/runstore"
	infratravel "github.com/dispatchlab/fieldops/infra/travel"
	"github.com/dispatchlab/fieldops/internal/eventbus"
)

// Service orchestrates optimization runs and disruption adaptations for
// every tenant.
type Service struct {
	cfg      *config.Config
	log      logger.Logger
	engine   *optimizer.Engine
	adapter  *disruption.Handler
	scorer   *score.Scorer
	agg      *analytics.Aggregator
	history  *analytics.OnTimeProvider
	snaps    schedule.Store
	registry *schedule.Registry
	runs     runstore.Store
	locs     *location.Store
	bus      eventbus.EventBus
	sink     coremetrics.RunSink
	notifier notify.Notifier
	mqttCli  *mqtt.PahoClient
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	monitor, err := inframonitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry monitor: %w", err)
	}
	monitoring.Init(monitor)

	sink, err := coremetrics.NewRunSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	est, err := buildEstimator(cfg.Travel, logg)
	if err != nil {
		return nil, fmt.Errorf("travel estimator: %w", err)
	}

	runs, err := buildRunStore(cfg.RunStore)
	if err != nil {
		return nil, fmt.Errorf("run store: %w", err)
	}

	locs := location.NewStore(cfg.Location.MaxAge())
	bus := eventbus.New()

	history := analytics.NewOnTimeProvider()
	scorer := score.NewScorer(history, score.DefaultConfidenceWeights(), score.DefaultImpactWeights())

	opts := cfg.Optimizer.Options()
	opts.LocationMaxAge = cfg.Location.MaxAge()
	engine := optimizer.New(est, logg, opts)

	dopts := []disruption.Option{disruption.WithLocationMaxAge(cfg.Location.MaxAge())}
	if cfg.Weather.Enabled {
		weather := infratravel.NewWeatherClient(cfg.Weather.URL, cfg.Weather.APIKey, cfg.Weather.Timeout())
		dopts = append(dopts, disruption.WithWeather(weather))
	}
	adapter := disruption.New(est, scorer, logg, dopts...)

	svc := &Service{
		cfg:      cfg,
		log:      logg,
		engine:   engine,
		adapter:  adapter,
		scorer:   scorer,
		agg:      analytics.New(runs, logg),
		history:  history,
		snaps:    schedule.NewMemoryStore(),
		registry: schedule.NewRegistry(),
		runs:     runs,
		locs:     locs,
		bus:      bus,
		sink:     sink,
		notifier: notify.NopNotifier{},
	}
	if cfg.MQTT.Broker != "" {
		cli, err := mqtt.NewPahoClient(cfg.MQTT, locs, bus)
		if err != nil {
			return nil, fmt.Errorf("mqtt client: %w", err)
		}
		svc.mqttCli = cli
		svc.notifier = cli
	}
	return svc, nil
}

// buildEstimator assembles the travel chain: the configured provider
// guarded by the haversine fallback, optionally memoised.
func buildEstimator(cfg config.TravelConfig, log logger.Logger) (coretravel.Estimator, error) {
	fallback := coretravel.NewHaversineEstimator(cfg.FallbackSpeed())
	primary, err := coretravel.NewEstimator(cfg.Provider)
	if err != nil {
		return nil, err
	}
	var est coretravel.Estimator = fallback
	if primary != nil {
		est = coretravel.NewFallbackEstimator(primary, fallback, cfg.Timeout(), log)
	}
	if ttl := cfg.CacheTTL(); ttl > 0 {
		est = coretravel.NewCachingEstimator(est, ttl)
	}
	return est, nil
}

func buildRunStore(cfg config.RunStoreConfig) (runstore.Store, error) {
	if cfg.Backend == "sqlite" {
		return infrarunstore.NewSQLiteStore(cfg.Path)
	}
	return runstore.NewMemoryStore(), nil
}

func (s *Service) routes() http.Handler {
	token := s.cfg.Server.APIToken
	mux := http.NewServeMux()
	mux.Handle("/api/schedule/optimize", apischedule.NewOptimizeHandler(s, token))
	mux.Handle("/api/schedule/adapt", apischedule.NewAdaptHandler(s, token))
	mux.Handle("/api/schedule/runs", apischedule.NewRunsHandler(s.runs, token))
	mux.Handle("/api/schedule/runs/", apischedule.NewCancelHandler(s, token))
	mux.Handle("/api/technicians/status", apitechnicians.NewStatusHandler(s.locs, s.snaps, token))
	mux.Handle("/api/technicians/location", apitechnicians.NewLocationHandler(s, token))
	mux.Handle("/api/analytics/report", apianalytics.NewReportHandler(s.agg, token))
	mux.Handle("/api/analytics/ontime", apianalytics.NewOnTimeHandler(s.agg, token))
	return mux
}

// Run serves the API and the background loops until the context is
// cancelled.
func (s *Service) Run(ctx context.Context) error {
	defer monitoring.Recover()

	metrics.StartEventCollector(ctx, s.bus, s.sink)
	if addr := s.cfg.Observability.MetricsAddr; addr != "" {
		go func() {
			defer monitoring.Recover()
			if err := metrics.StartPromServer(ctx, addr); err != nil {
				s.log.Errorf("metrics server: %v", err)
			}
		}()
	}
	if s.cfg.RunStore.Retention() > 0 {
		go s.purgeLoop(ctx)
	}

	srv := &http.Server{
		Addr:        s.cfg.Server.Addr,
		Handler:     s.routes(),
		ReadTimeout: s.cfg.Server.ReadTimeout(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warnf("api shutdown: %v", err)
		}
	}()
	s.log.Infof("serving api on %s", s.cfg.Server.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// purgeLoop enforces the run store retention window.
func (s *Service) purgeLoop(ctx context.Context) {
	defer monitoring.Recover()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		cutoff := time.Now().Add(-s.cfg.RunStore.Retention())
		n, err := s.runs.PurgeBefore(ctx, cutoff)
		if err != nil {
			s.log.Errorf("run store purge: %v", err)
		} else if n > 0 {
			s.log.Infof("purged %d run records started before %s", n, cutoff.Format(time.RFC3339))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	if s.mqttCli != nil {
		s.mqttCli.Disconnect()
	}
	s.bus.Close()
	monitoring.Flush(2 * time.Second)
	return s.runs.Close()
}
