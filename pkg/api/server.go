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

// Package api serves the REST surface for device management, history,
// logs and alert rules.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/carverauto/routermon/pkg/alerts"
	"github.com/carverauto/routermon/pkg/broadcast"
	pkghttp "github.com/carverauto/routermon/pkg/http"
	"github.com/carverauto/routermon/pkg/logger"
	"github.com/carverauto/routermon/pkg/models"
	"github.com/carverauto/routermon/pkg/session"
)

const (
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 60 * time.Second

	logCommand = "/log/print"
)

// DeviceService runs device lifecycle operations.
type DeviceService interface {
	Connect(ctx context.Context, spec models.DeviceSpec) (models.Device, error)
	Reconnect(ctx context.Context, deviceID string) (bool, error)
	TestConnection(ctx context.Context, deviceID string) bool
	Exec(ctx context.Context, deviceID, command string, params ...string) ([]session.Record, error)
	Remove(ctx context.Context, deviceID string) error
}

// DeviceReader exposes the registered devices.
type DeviceReader interface {
	Get(deviceID string) (models.Device, error)
	List() []models.Device
}

// HistoryReader returns recent snapshots of a device.
type HistoryReader interface {
	Recent(deviceID string, limit int) []broadcast.Entry
}

// TelegramTester sends a test message to one chat.
type TelegramTester interface {
	TestTelegram(ctx context.Context, chatID string) error
}

// Server routes API requests to the device supervisor and rule store.
type Server struct {
	router    *mux.Router
	handler   http.Handler
	devices   DeviceService
	registry  DeviceReader
	history   HistoryReader
	rules     alerts.RuleStore
	telegram  TelegramTester
	ws        http.Handler
	metrics   http.Handler
	onRemove  func(deviceID string)
	cors      pkghttp.CORSConfig
	newRuleID func() string
	logger    logger.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithRuleStore enables the alert rule endpoints. Writes need an
// alerts.RuleManager.
func WithRuleStore(store alerts.RuleStore) Option {
	return func(s *Server) {
		s.rules = store
	}
}

// WithTelegramTester enables POST /api/telegram/test.
func WithTelegramTester(t TelegramTester) Option {
	return func(s *Server) {
		s.telegram = t
	}
}

// WithWebSocket mounts the live update stream at /ws.
func WithWebSocket(h http.Handler) Option {
	return func(s *Server) {
		s.ws = h
	}
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithCORS sets the allowed origins.
func WithCORS(cfg pkghttp.CORSConfig) Option {
	return func(s *Server) {
		s.cors = cfg
	}
}

// WithDeviceRemovedHook runs fn after a device was deleted.
func WithDeviceRemovedHook(fn func(deviceID string)) Option {
	return func(s *Server) {
		s.onRemove = fn
	}
}

// WithRuleIDFunc overrides how ids are generated for new rules.
func WithRuleIDFunc(fn func() string) Option {
	return func(s *Server) {
		s.newRuleID = fn
	}
}

// NewServer builds the router.
func NewServer(devices DeviceService, registry DeviceReader, history HistoryReader, log logger.Logger, opts ...Option) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		devices:   devices,
		registry:  registry,
		history:   history,
		newRuleID: newRuleID,
		logger:    log,
	}

	for _, o := range opts {
		o(s)
	}

	s.setupRoutes()

	// wraps the router so preflight requests are answered before routing
	s.handler = pkghttp.CommonMiddleware(s.router, s.cors, s.logger)

	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.getHealth).Methods(http.MethodGet)

	api.HandleFunc("/devices", s.listDevices).Methods(http.MethodGet)
	api.HandleFunc("/devices", s.createDevice).Methods(http.MethodPost)
	api.HandleFunc("/devices/{id}", s.getDevice).Methods(http.MethodGet)
	api.HandleFunc("/devices/{id}", s.deleteDevice).Methods(http.MethodDelete)
	api.HandleFunc("/devices/{id}/reconnect", s.reconnectDevice).Methods(http.MethodPost)
	api.HandleFunc("/devices/{id}/test", s.testDevice).Methods(http.MethodGet)
	api.HandleFunc("/devices/{id}/history", s.getHistory).Methods(http.MethodGet)
	api.HandleFunc("/devices/{id}/logs", s.getLogs).Methods(http.MethodGet)
	api.HandleFunc("/logs", s.getAllLogs).Methods(http.MethodGet)

	if s.rules != nil {
		api.HandleFunc("/alerts/rules", s.listRules).Methods(http.MethodGet)
		api.HandleFunc("/alerts/rules", s.saveRule).Methods(http.MethodPost)
		api.HandleFunc("/alerts/rules/{id}", s.deleteRule).Methods(http.MethodDelete)
	}

	if s.telegram != nil {
		api.HandleFunc("/telegram/test", s.testTelegram).Methods(http.MethodPost)
	}

	if s.ws != nil {
		s.router.Handle("/ws", s.ws).Methods(http.MethodGet)
	}

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// NewHTTPServer wraps the router in an http.Server with sane timeouts.
func (s *Server) NewHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(ErrorResponse{Message: message, Status: statusCode}); err != nil {
		http.Error(w, "Failed to encode error response", http.StatusInternalServerError)
	}
}
