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

package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/routermon/pkg/alerts"
	"github.com/carverauto/routermon/pkg/db"
	"github.com/carverauto/routermon/pkg/logger"
	"github.com/carverauto/routermon/pkg/models"
)

func validConfig(t *testing.T) *Config {
	t.Helper()

	cfg := &Config{ListenAddr: "127.0.0.1:0"}
	require.NoError(t, cfg.Validate())

	return cfg
}

func TestConfigValidateDefaults(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, defaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, defaultConnectTimeout, cfg.ConnectTimeout.Std())
	assert.Equal(t, defaultHistorySize, cfg.HistorySize)
	assert.Equal(t, defaultCooldown, cfg.Alerts.Cooldown.Std())
	assert.Equal(t, 5*time.Second, cfg.Poller.Interval.Std())
	assert.Equal(t, "https://api.telegram.org", cfg.Notify.Telegram.APIURL)
}

func TestConfigValidateRejectsConflictingRuleSources(t *testing.T) {
	cfg := &Config{
		Alerts:   AlertsConfig{RulesFile: "/tmp/rules.yaml"},
		Postgres: &db.Config{URL: "postgres://localhost/routermon"},
	}

	require.ErrorIs(t, cfg.Validate(), errRuleSourceConflict)
}

func TestConfigValidateRejectsInvalidInlineRule(t *testing.T) {
	cfg := &Config{Alerts: AlertsConfig{Rules: []models.AlertRule{{ID: "1", Name: "x", Metric: "disk"}}}}

	var vErr *models.ValidationError
	require.ErrorAs(t, cfg.Validate(), &vErr)
	assert.Equal(t, "metric", vErr.Field)
}

type stubEvaluator struct {
	firings []alerts.Firing
}

func (s stubEvaluator) Evaluate(context.Context, string, string, *models.Snapshot) []alerts.Firing {
	return s.firings
}

type recordingSink struct {
	got []string
}

func (r *recordingSink) PublishAlert(p *models.AlertPayload) {
	r.got = append(r.got, p.AlertName)
}

func TestAlertRelayForwardsEveryFiring(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	relay := &alertRelay{
		engine: stubEvaluator{firings: []alerts.Firing{
			{RuleID: "1", Payload: models.AlertPayload{AlertName: "CPU Load High"}},
			{RuleID: "3", Payload: models.AlertPayload{AlertName: "Uplink RX"}},
		}},
		sinks: []AlertSink{a, b},
	}

	firings := relay.Evaluate(context.Background(), "dev-1", "core", &models.Snapshot{})

	assert.Len(t, firings, 2)
	assert.Equal(t, []string{"CPU Load High", "Uplink RX"}, a.got)
	assert.Equal(t, a.got, b.got)
}

func TestNewServerRuleStoreSelection(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		s, err := NewServer(context.Background(), validConfig(t), logger.NewTestLogger())
		require.NoError(t, err)

		rules, err := s.rules.ListActiveRules(context.Background())
		require.NoError(t, err)
		assert.Equal(t, alerts.DefaultRules(), rules)
	})

	t.Run("inline", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Alerts.Rules = []models.AlertRule{{ID: "9", Name: "Uplink", Metric: models.MetricRxRate, Condition: models.ConditionGreater, Threshold: 100, Unit: models.UnitMbps}}

		s, err := NewServer(context.Background(), cfg, logger.NewTestLogger())
		require.NoError(t, err)

		rules, err := s.rules.ListActiveRules(context.Background())
		require.NoError(t, err)
		require.Len(t, rules, 1)
		assert.Equal(t, "9", rules[0].ID)
	})

	t.Run("file", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Alerts.RulesFile = filepath.Join(t.TempDir(), "rules.yaml")

		s, err := NewServer(context.Background(), cfg, logger.NewTestLogger())
		require.NoError(t, err)

		_, ok := s.rules.(*alerts.FileStore)
		assert.True(t, ok)
		assert.FileExists(t, cfg.Alerts.RulesFile)
	})
}

func TestServerHandler(t *testing.T) {
	s, err := NewServer(context.Background(), validConfig(t), logger.NewTestLogger())
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	require.NoError(t, err)
	assert.Contains(t, string(body), "routermon_websocket_clients")
	assert.Contains(t, string(body), "routermon_open_sessions")

	resp, err = http.Get(srv.URL + "/api/alerts/rules")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestForgetDeviceDropsHistory(t *testing.T) {
	s, err := NewServer(context.Background(), validConfig(t), logger.NewTestLogger())
	require.NoError(t, err)

	s.history.Publish(context.Background(), "dev-1", &models.Snapshot{}, time.Now())
	require.Len(t, s.history.Recent("dev-1", 0), 1)

	s.forgetDevice("dev-1")

	assert.Empty(t, s.history.Recent("dev-1", 0))
}

func TestStartReturnsWhenContextEnds(t *testing.T) {
	s, err := NewServer(context.Background(), validConfig(t), logger.NewTestLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()

	require.NoError(t, s.Stop(stopCtx))
	require.NoError(t, s.Stop(stopCtx))
}
