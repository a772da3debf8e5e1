/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package server wires the monitoring pipeline, its sinks and the HTTP API
// into one lifecycle.Service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"

	"github.com/carverauto/routermon/pkg/alerts"
	"github.com/carverauto/routermon/pkg/api"
	"github.com/carverauto/routermon/pkg/broadcast"
	"github.com/carverauto/routermon/pkg/collector"
	"github.com/carverauto/routermon/pkg/db"
	"github.com/carverauto/routermon/pkg/lifecycle"
	"github.com/carverauto/routermon/pkg/logger"
	"github.com/carverauto/routermon/pkg/metrics"
	"github.com/carverauto/routermon/pkg/models"
	"github.com/carverauto/routermon/pkg/natsutil"
	"github.com/carverauto/routermon/pkg/notify"
	"github.com/carverauto/routermon/pkg/poller"
	"github.com/carverauto/routermon/pkg/registry"
	"github.com/carverauto/routermon/pkg/session"
	"github.com/carverauto/routermon/pkg/supervisor"
)

const shutdownGrace = 5 * time.Second

// Server owns every component of a running monitor.
type Server struct {
	config *Config
	logger logger.Logger

	registry   *registry.DeviceRegistry
	supervisor *supervisor.Supervisor
	poller     *poller.Poller
	hub        *broadcast.Hub
	history    *broadcast.History
	metrics    *metrics.Metrics
	dispatcher *notify.Dispatcher
	rules      alerts.RuleStore
	api        *api.Server
	httpServer *http.Server

	nc   *nats.Conn
	pool *pgxpool.Pool

	stopOnce sync.Once
}

// NewServer builds the pipeline from cfg. Connections to NATS and Postgres
// are opened here; devices are connected in Start.
func NewServer(ctx context.Context, cfg *Config, log logger.Logger) (*Server, error) {
	s := &Server{
		config:   cfg,
		logger:   log,
		registry: registry.NewDeviceRegistry(),
		history:  broadcast.NewHistory(cfg.HistorySize),
		metrics:  metrics.New(),
	}

	clients := session.Mux{
		models.ProtocolRouterOS: session.NewRouterOSClient(lifecycle.ComponentLogger(log, "routeros")),
		models.ProtocolSNMP:     session.NewSNMPClient(lifecycle.ComponentLogger(log, "snmp")),
	}

	s.supervisor = supervisor.New(s.registry, clients,
		supervisor.Config{ConnectTimeout: cfg.ConnectTimeout.Std()},
		lifecycle.ComponentLogger(log, "supervisor"))

	s.hub = broadcast.NewHub(lifecycle.ComponentLogger(log, "websocket"))

	sinks := broadcast.Fanout{s.history, s.hub}
	relay := &alertRelay{sinks: []AlertSink{s.hub}}

	if cfg.NATS != nil {
		pub, err := s.connectNATS(ctx, cfg.NATS)
		if err != nil {
			return nil, err
		}

		sinks = append(sinks, pub)
		relay.sinks = append(relay.sinks, pub)
	}

	rules, err := s.buildRuleStore(ctx)
	if err != nil {
		s.closeBackends()
		return nil, err
	}

	s.rules = rules
	s.dispatcher = notify.NewDispatcher(cfg.Notify, lifecycle.ComponentLogger(log, "notify"))

	relay.engine = alerts.NewEngine(cfg.engineConfig(), rules, s.dispatcher,
		lifecycle.ComponentLogger(log, "alerts"), alerts.WithRecorder(s.metrics))

	s.poller, err = poller.New(&cfg.Poller, poller.Dependencies{
		Devices:    s.registry,
		Supervisor: s.supervisor,
		Collector:  collector.New(lifecycle.ComponentLogger(log, "collector")),
		Publisher:  sinks,
		Evaluator:  relay,
		Recorder:   s.metrics,
	}, nil, lifecycle.ComponentLogger(log, "poller"))
	if err != nil {
		s.closeBackends()
		return nil, fmt.Errorf("failed to create poller: %w", err)
	}

	if err := s.registerGauges(); err != nil {
		s.closeBackends()
		return nil, err
	}

	s.api = api.NewServer(s.supervisor, s.registry, s.history, lifecycle.ComponentLogger(log, "api"),
		api.WithRuleStore(rules),
		api.WithTelegramTester(s.dispatcher),
		api.WithWebSocket(s.hub),
		api.WithMetricsHandler(s.metrics.Handler()),
		api.WithCORS(cfg.CORS),
		api.WithDeviceRemovedHook(s.forgetDevice),
	)
	s.httpServer = s.api.NewHTTPServer(cfg.ListenAddr)

	return s, nil
}

func (s *Server) connectNATS(ctx context.Context, cfg *natsutil.Config) (*natsutil.Publisher, error) {
	log := lifecycle.ComponentLogger(s.logger, "nats")

	nc, err := natsutil.Connect(cfg, log)
	if err != nil {
		return nil, err
	}

	s.nc = nc

	var js jetstream.JetStream

	if cfg.Stream != "" {
		js, err = natsutil.EnsureStream(ctx, nc, cfg)
		if err != nil {
			nc.Close()
			s.nc = nil

			return nil, err
		}
	}

	return natsutil.NewPublisher(nc, js, cfg.SubjectPrefix, log), nil
}

func (s *Server) buildRuleStore(ctx context.Context) (alerts.RuleStore, error) {
	log := lifecycle.ComponentLogger(s.logger, "rules")

	switch {
	case s.config.Postgres != nil:
		pool, err := db.NewPool(ctx, s.config.Postgres, log)
		if err != nil {
			return nil, err
		}

		s.pool = pool

		if err := db.RunMigrations(ctx, pool, log); err != nil {
			return nil, err
		}

		store, err := alerts.NewPostgresStore(pool)
		if err != nil {
			return nil, err
		}

		if err := store.SeedDefaults(ctx); err != nil {
			return nil, err
		}

		return store, nil
	case s.config.Alerts.RulesFile != "":
		return alerts.NewFileStore(s.config.Alerts.RulesFile, log)
	case len(s.config.Alerts.Rules) > 0:
		return alerts.NewMemoryStore(s.config.Alerts.Rules...), nil
	default:
		return alerts.NewMemoryStore(alerts.DefaultRules()...), nil
	}
}

func (s *Server) registerGauges() error {
	if err := s.metrics.RegisterGaugeFunc("websocket_clients", "Connected WebSocket subscribers.", func() float64 {
		return float64(s.hub.ClientCount())
	}); err != nil {
		return fmt.Errorf("failed to register gauge: %w", err)
	}

	if err := s.metrics.RegisterGaugeFunc("open_sessions", "Open device management sessions.", func() float64 {
		return float64(s.supervisor.OpenSessions())
	}); err != nil {
		return fmt.Errorf("failed to register gauge: %w", err)
	}

	return nil
}

// forgetDevice drops per-device state after the device was removed.
func (s *Server) forgetDevice(deviceID string) {
	s.history.Forget(deviceID)
	s.metrics.ForgetDevice(deviceID)
	s.hub.PublishDeviceDeleted(deviceID, time.Now())
}

// Handler returns the HTTP API.
func (s *Server) Handler() http.Handler {
	return s.api
}

// Start implements lifecycle.Service. It connects the configured devices,
// then runs the hub, the rules watcher, the HTTP listener and the poll loop
// until ctx ends or one of them fails.
func (s *Server) Start(ctx context.Context) error {
	s.connectDevices(ctx)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.hub.Run(gctx)
		return nil
	})

	if fs, ok := s.rules.(*alerts.FileStore); ok {
		g.Go(func() error {
			if err := fs.Watch(gctx); err != nil {
				s.logger.Error().Err(err).Str("path", fs.Path()).Msg("Alert rules watcher stopped")
			}

			return nil
		})
	}

	g.Go(func() error {
		s.logger.Info().Str("addr", s.config.ListenAddr).Msg("Starting HTTP API")

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		return s.shutdownHTTP(shutdownCtx)
	})

	g.Go(func() error {
		if err := s.poller.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}

		return nil
	})

	return g.Wait()
}

// connectDevices registers the devices listed in the config. A device that
// fails to connect stays registered and is retried by the poller.
func (s *Server) connectDevices(ctx context.Context) {
	for _, spec := range s.config.Devices {
		device, err := s.supervisor.Connect(ctx, spec)
		if err != nil {
			s.logger.Warn().Err(err).Str("device", spec.Name).Msg("Configured device did not connect")
			continue
		}

		s.logger.Info().Str("device_id", device.ID).Str("device", device.Name).Msg("Configured device connected")
	}
}

func (s *Server) shutdownHTTP(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http shutdown: %w", err)
	}

	return nil
}

// Stop implements lifecycle.Service. The poll loop stops first so no
// collection races the session teardown.
func (s *Server) Stop(ctx context.Context) error {
	var errs []error

	s.stopOnce.Do(func() {
		if err := s.poller.Stop(ctx); err != nil {
			errs = append(errs, err)
		}

		if err := s.shutdownHTTP(ctx); err != nil {
			errs = append(errs, err)
		}

		s.supervisor.DisconnectAll(ctx)
		s.closeBackends()
	})

	return errors.Join(errs...)
}

func (s *Server) closeBackends() {
	if s.nc != nil {
		if err := s.nc.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to drain NATS connection")
			s.nc.Close()
		}
	}

	if s.pool != nil {
		s.pool.Close()
	}
}
