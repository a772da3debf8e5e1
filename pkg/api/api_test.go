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

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/routermon/pkg/alerts"
	"github.com/carverauto/routermon/pkg/broadcast"
	pkghttp "github.com/carverauto/routermon/pkg/http"
	"github.com/carverauto/routermon/pkg/logger"
	"github.com/carverauto/routermon/pkg/models"
	"github.com/carverauto/routermon/pkg/registry"
	"github.com/carverauto/routermon/pkg/session"
	"github.com/carverauto/routermon/pkg/supervisor"
)

var errDial = errors.New("dial tcp 10.0.0.1:8728: connection refused")

type fakeDevices struct {
	reg         *registry.DeviceRegistry
	connectErr  error
	reconnectOK bool
	testOK      bool
	logs        []session.Record
	execErr     error
	execCmds    []string
}

func (f *fakeDevices) Connect(_ context.Context, spec models.DeviceSpec) (models.Device, error) {
	spec = spec.WithDefaults()
	if err := spec.Validate(); err != nil {
		return models.Device{}, err
	}

	id := f.reg.Add(spec)

	state := models.DeviceStateConnected
	if f.connectErr != nil {
		state = models.DeviceStateFailed
	}

	_ = f.reg.Update(id, func(d *models.Device) {
		d.State = state
		if f.connectErr != nil {
			d.SetError(f.connectErr.Error())
		}
	})

	d, _ := f.reg.Get(id)

	if f.connectErr != nil {
		return d, &supervisor.ConnectionError{DeviceID: id, Op: "open", Err: f.connectErr}
	}

	return d, nil
}

func (f *fakeDevices) Reconnect(_ context.Context, id string) (bool, error) {
	if _, err := f.reg.Get(id); err != nil {
		return false, err
	}

	return f.reconnectOK, nil
}

func (f *fakeDevices) TestConnection(context.Context, string) bool {
	return f.testOK
}

func (f *fakeDevices) Exec(_ context.Context, id, command string, _ ...string) ([]session.Record, error) {
	if _, err := f.reg.Get(id); err != nil {
		return nil, err
	}

	f.execCmds = append(f.execCmds, command)

	return f.logs, f.execErr
}

func (f *fakeDevices) Remove(_ context.Context, id string) error {
	return f.reg.Remove(id)
}

type readOnlyRules struct{}

func (readOnlyRules) ListActiveRules(context.Context) ([]models.AlertRule, error) {
	return alerts.DefaultRules(), nil
}

type fakeTelegram struct {
	chatID string
	err    error
}

func (f *fakeTelegram) TestTelegram(_ context.Context, chatID string) error {
	f.chatID = chatID
	return f.err
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *fakeDevices, *broadcast.History) {
	t.Helper()

	devices := &fakeDevices{reg: registry.NewDeviceRegistry(), testOK: true, reconnectOK: true}
	history := broadcast.NewHistory(10)

	return NewServer(devices, devices.reg, history, logger.NewTestLogger(), opts...), devices, history
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))

	return out
}

func addDevice(t *testing.T, f *fakeDevices, name string) string {
	t.Helper()

	d, err := f.Connect(context.Background(), models.DeviceSpec{Name: name, Host: "10.0.0.1", Username: "admin", Password: "x"})
	require.NoError(t, err)

	return d.ID
}

func TestCreateDevice(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/devices", map[string]any{
		"name": "core", "host": "10.0.0.1", "username": "admin", "password": "secret",
	})

	require.Equal(t, http.StatusCreated, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "core", body["name"])
	assert.Equal(t, true, body["connected"])
	assert.NotContains(t, body, "password")
}

func TestCreateDevice_ValidationError(t *testing.T) {
	s, f, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/devices", map[string]any{"name": "core", "host": "", "username": "admin"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.reg.List())

	body := decode[ErrorResponse](t, rec)
	assert.Equal(t, http.StatusBadRequest, body.Status)
	assert.Contains(t, body.Message, "host")
}

func TestCreateDevice_InvalidJSON(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/devices", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateDevice_ConnectFailureStillRegisters(t *testing.T) {
	s, f, _ := newTestServer(t)
	f.connectErr = errDial

	rec := do(t, s, http.MethodPost, "/api/devices", map[string]any{
		"name": "edge", "host": "10.0.0.1", "username": "admin", "password": "x",
	})

	require.Equal(t, http.StatusCreated, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "failed", body["state"])
	assert.Equal(t, false, body["connected"])
	assert.Contains(t, body["error"], "connection refused")
	assert.Len(t, f.reg.List(), 1)
}

func TestGetAndListDevices(t *testing.T) {
	s, f, _ := newTestServer(t)
	id := addDevice(t, f, "core")
	addDevice(t, f, "edge")

	rec := do(t, s, http.MethodGet, "/api/devices", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	list := decode[[]map[string]any](t, rec)
	require.Len(t, list, 2)
	assert.Equal(t, "core", list[0]["name"])
	assert.Equal(t, "edge", list[1]["name"])

	rec = do(t, s, http.MethodGet, "/api/devices/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, decode[map[string]any](t, rec)["id"])

	rec = do(t, s, http.MethodGet, "/api/devices/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteDevice(t *testing.T) {
	var removed []string

	s, f, _ := newTestServer(t, WithDeviceRemovedHook(func(id string) { removed = append(removed, id) }))
	id := addDevice(t, f, "core")

	rec := do(t, s, http.MethodDelete, "/api/devices/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{id}, removed)
	assert.Empty(t, f.reg.List())

	rec = do(t, s, http.MethodDelete, "/api/devices/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Len(t, removed, 1)
}

func TestReconnectDevice(t *testing.T) {
	s, f, _ := newTestServer(t)
	id := addDevice(t, f, "core")
	f.reconnectOK = false

	rec := do(t, s, http.MethodPost, "/api/devices/"+id+"/reconnect", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, id, body["device"].(map[string]any)["id"])

	rec = do(t, s, http.MethodPost, "/api/devices/nope/reconnect", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTestDevice(t *testing.T) {
	s, f, _ := newTestServer(t)
	id := addDevice(t, f, "core")

	rec := do(t, s, http.MethodGet, "/api/devices/"+id+"/test", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]bool{"connected": true}, decode[map[string]bool](t, rec))

	f.testOK = false
	rec = do(t, s, http.MethodGet, "/api/devices/"+id+"/test", nil)
	assert.Equal(t, map[string]bool{"connected": false}, decode[map[string]bool](t, rec))

	rec = do(t, s, http.MethodGet, "/api/devices/nope/test", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeviceHistory(t *testing.T) {
	s, f, history := newTestServer(t)
	id := addDevice(t, f, "core")

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 5 {
		history.Publish(context.Background(), id, &models.Snapshot{CollectedAt: base.Add(time.Duration(i) * time.Second)}, base.Add(time.Duration(i)*time.Second))
	}

	rec := do(t, s, http.MethodGet, "/api/devices/"+id+"/history?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	entries := decode[[]broadcast.Entry](t, rec)
	require.Len(t, entries, 2)
	assert.True(t, entries[1].Timestamp.Equal(base.Add(4*time.Second)))

	rec = do(t, s, http.MethodGet, "/api/devices/"+id+"/history?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/devices/nope/history", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeviceLogs(t *testing.T) {
	s, f, _ := newTestServer(t)
	id := addDevice(t, f, "core")
	f.logs = []session.Record{
		session.NewRecord("time", "10:00", "message", "first"),
		session.NewRecord("time", "10:01", "message", "second"),
		session.NewRecord("time", "10:02", "message", "third"),
	}

	rec := do(t, s, http.MethodGet, "/api/devices/"+id+"/logs?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{logCommand}, f.execCmds)

	logs := decode[[]map[string]string](t, rec)
	require.Len(t, logs, 2)
	assert.Equal(t, "second", logs[0]["message"])
	assert.Equal(t, "third", logs[1]["message"])

	f.execErr = errDial
	rec = do(t, s, http.MethodGet, "/api/devices/"+id+"/logs", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAllLogsSkipsDisconnectedDevices(t *testing.T) {
	s, f, _ := newTestServer(t)
	addDevice(t, f, "core")

	f.connectErr = errDial
	_, _ = f.Connect(context.Background(), models.DeviceSpec{Name: "down", Host: "10.0.0.2", Username: "admin", Password: "x"})

	f.logs = []session.Record{session.NewRecord("message", "hello")}

	rec := do(t, s, http.MethodGet, "/api/logs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	logs := decode[[]map[string]string](t, rec)
	require.Len(t, logs, 1)
	assert.Equal(t, "core", logs[0]["deviceName"])
	assert.Equal(t, "hello", logs[0]["message"])
}

func TestHealth(t *testing.T) {
	s, f, _ := newTestServer(t)
	addDevice(t, f, "core")

	f.connectErr = errDial
	_, _ = f.Connect(context.Background(), models.DeviceSpec{Name: "down", Host: "10.0.0.2", Username: "admin", Password: "x"})

	rec := do(t, s, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[healthResponse](t, rec)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 2, body.Devices)
	assert.Equal(t, 1, body.Connected)
}

func TestAlertRules_CRUD(t *testing.T) {
	store := alerts.NewMemoryStore(alerts.DefaultRules()...)
	s, _, _ := newTestServer(t, WithRuleStore(store), WithRuleIDFunc(func() string { return "generated" }))

	rec := do(t, s, http.MethodGet, "/api/alerts/rules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.AlertRule](t, rec), 2)

	rec = do(t, s, http.MethodPost, "/api/alerts/rules", models.AlertRule{
		Name: "Uplink RX", Metric: models.MetricRxRate, Condition: models.ConditionGreater,
		Threshold: 100, Unit: models.UnitMbps, Channels: []string{"webhook"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "generated", decode[models.AlertRule](t, rec).ID)

	rules, err := store.ListRules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 3)

	rec = do(t, s, http.MethodDelete, "/api/alerts/rules/generated", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodDelete, "/api/alerts/rules/generated", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAlertRules_InvalidRule(t *testing.T) {
	s, _, _ := newTestServer(t, WithRuleStore(alerts.NewMemoryStore()))

	rec := do(t, s, http.MethodPost, "/api/alerts/rules", models.AlertRule{ID: "x", Name: "bad", Metric: "disk"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAlertRules_ReadOnlyStore(t *testing.T) {
	s, _, _ := newTestServer(t, WithRuleStore(readOnlyRules{}))

	rec := do(t, s, http.MethodGet, "/api/alerts/rules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.AlertRule](t, rec), 2)

	rec = do(t, s, http.MethodPost, "/api/alerts/rules", models.AlertRule{ID: "x", Name: "n", Metric: models.MetricCPU})
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAlertRules_NotMountedWithoutStore(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/alerts/rules", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTelegramTest(t *testing.T) {
	tg := &fakeTelegram{}
	s, _, _ := newTestServer(t, WithTelegramTester(tg))

	rec := do(t, s, http.MethodPost, "/api/telegram/test", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/telegram/test", map[string]string{"chatId": "42"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "42", tg.chatID)

	tg.err = errors.New("telegram refused")
	rec = do(t, s, http.MethodPost, "/api/telegram/test", map[string]string{"chatId": "42"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestMetricsAndWebSocketMounts(t *testing.T) {
	mounted := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	s, _, _ := newTestServer(t, WithMetricsHandler(mounted), WithWebSocket(mounted))

	assert.Equal(t, http.StatusTeapot, do(t, s, http.MethodGet, "/metrics", nil).Code)
	assert.Equal(t, http.StatusTeapot, do(t, s, http.MethodGet, "/ws", nil).Code)
}

func TestCORSPreflight(t *testing.T) {
	s, _, _ := newTestServer(t, WithCORS(pkghttp.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}}))

	req := httptest.NewRequest(http.MethodOptions, "/api/devices", nil)
	req.Header.Set("Origin", "http://localhost:3000")

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}
