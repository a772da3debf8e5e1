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
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/carverauto/routermon/pkg/alerts"
	"github.com/carverauto/routermon/pkg/models"
	"github.com/carverauto/routermon/pkg/registry"
	"github.com/carverauto/routermon/pkg/version"
)

const maxBodyBytes = 1 << 20

var errInvalidLimit = errors.New("limit must be a non-negative integer")

func newRuleID() string {
	return uuid.NewString()
}

type healthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Devices   int       `json:"devices"`
	Connected int       `json:"connected"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) getHealth(w http.ResponseWriter, _ *http.Request) {
	devices := s.registry.List()

	connected := 0

	for i := range devices {
		if devices[i].Connected() {
			connected++
		}
	}

	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Version:   version.Get().Version,
		Devices:   len(devices),
		Connected: connected,
		Timestamp: time.Now(),
	})
}

func (s *Server) listDevices(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.registry.List())
}

// createDevice registers the device even when the first connect fails; the
// returned device then carries state "failed" and the error message.
func (s *Server) createDevice(w http.ResponseWriter, r *http.Request) {
	var spec models.DeviceSpec

	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&spec); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	device, err := s.devices.Connect(r.Context(), spec)
	if err != nil {
		var vErr *models.ValidationError
		if errors.As(err, &vErr) {
			writeError(w, vErr.Error(), http.StatusBadRequest)
			return
		}

		if device.ID == "" {
			s.logger.Error().Err(err).Str("device", spec.Name).Msg("Failed to add device")
			writeError(w, err.Error(), http.StatusInternalServerError)

			return
		}

		s.logger.Warn().Err(err).Str("device_id", device.ID).Msg("Device added but not connected")
	}

	s.writeJSON(w, http.StatusCreated, device)
}

func (s *Server) getDevice(w http.ResponseWriter, r *http.Request) {
	device, err := s.registry.Get(mux.Vars(r)["id"])
	if err != nil {
		s.writeDeviceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, device)
}

func (s *Server) deleteDevice(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.devices.Remove(r.Context(), id); err != nil {
		s.writeDeviceError(w, err)
		return
	}

	if s.onRemove != nil {
		s.onRemove(id)
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type reconnectResponse struct {
	Success bool          `json:"success"`
	Device  models.Device `json:"device"`
}

func (s *Server) reconnectDevice(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	ok, err := s.devices.Reconnect(r.Context(), id)
	if err != nil {
		s.writeDeviceError(w, err)
		return
	}

	device, err := s.registry.Get(id)
	if err != nil {
		s.writeDeviceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, reconnectResponse{Success: ok, Device: device})
}

func (s *Server) testDevice(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if _, err := s.registry.Get(id); err != nil {
		s.writeDeviceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"connected": s.devices.TestConnection(r.Context(), id)})
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if _, err := s.registry.Get(id); err != nil {
		s.writeDeviceError(w, err)
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.writeJSON(w, http.StatusOK, s.history.Recent(id, limit))
}

// getLogs returns the device log, keeping only the newest entries when a
// limit is given.
func (s *Server) getLogs(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	records, err := s.devices.Exec(r.Context(), id, logCommand)
	if err != nil {
		s.writeDeviceError(w, err)
		return
	}

	if limit > 0 && limit < len(records) {
		records = records[len(records)-limit:]
	}

	out := make([]map[string]string, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Map())
	}

	s.writeJSON(w, http.StatusOK, out)
}

// getAllLogs merges the logs of every connected device. Devices whose log
// cannot be read are skipped.
func (s *Server) getAllLogs(w http.ResponseWriter, r *http.Request) {
	out := make([]map[string]string, 0)

	for _, device := range s.registry.List() {
		if !device.Connected() {
			continue
		}

		records, err := s.devices.Exec(r.Context(), device.ID, logCommand)
		if err != nil {
			s.logger.Warn().Err(err).Str("device_id", device.ID).Msg("Failed to read device log")
			continue
		}

		for _, rec := range records {
			m := rec.Map()
			m["deviceId"] = device.ID
			m["deviceName"] = device.Name
			out = append(out, m)
		}
	}

	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) writeDeviceError(w http.ResponseWriter, err error) {
	if errors.Is(err, registry.ErrDeviceNotFound) {
		writeError(w, "device not found", http.StatusNotFound)
		return
	}

	s.logger.Warn().Err(err).Msg("Device request failed")
	writeError(w, err.Error(), http.StatusInternalServerError)
}

func (s *Server) listRules(w http.ResponseWriter, r *http.Request) {
	var (
		rules []models.AlertRule
		err   error
	)

	if m, ok := s.rules.(alerts.RuleManager); ok {
		rules, err = m.ListRules(r.Context())
	} else {
		rules, err = s.rules.ListActiveRules(r.Context())
	}

	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list alert rules")
		writeError(w, "failed to list alert rules", http.StatusInternalServerError)

		return
	}

	if rules == nil {
		rules = []models.AlertRule{}
	}

	s.writeJSON(w, http.StatusOK, rules)
}

func (s *Server) ruleManager(w http.ResponseWriter) (alerts.RuleManager, bool) {
	m, ok := s.rules.(alerts.RuleManager)
	if !ok {
		writeError(w, "alert rules are read-only", http.StatusMethodNotAllowed)
	}

	return m, ok
}

func (s *Server) saveRule(w http.ResponseWriter, r *http.Request) {
	m, ok := s.ruleManager(w)
	if !ok {
		return
	}

	var rule models.AlertRule

	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&rule); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if rule.ID == "" {
		rule.ID = s.newRuleID()
	}

	if err := m.Upsert(r.Context(), &rule); err != nil {
		var vErr *models.ValidationError
		if errors.As(err, &vErr) {
			writeError(w, vErr.Error(), http.StatusBadRequest)
			return
		}

		s.logger.Error().Err(err).Str("rule_id", rule.ID).Msg("Failed to save alert rule")
		writeError(w, "failed to save alert rule", http.StatusInternalServerError)

		return
	}

	s.writeJSON(w, http.StatusCreated, rule)
}

func (s *Server) deleteRule(w http.ResponseWriter, r *http.Request) {
	m, ok := s.ruleManager(w)
	if !ok {
		return
	}

	id := mux.Vars(r)["id"]

	if err := m.Remove(r.Context(), id); err != nil {
		if errors.Is(err, alerts.ErrRuleNotFound) {
			writeError(w, "alert rule not found", http.StatusNotFound)
			return
		}

		s.logger.Error().Err(err).Str("rule_id", id).Msg("Failed to delete alert rule")
		writeError(w, "failed to delete alert rule", http.StatusInternalServerError)

		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type telegramTestRequest struct {
	ChatID string `json:"chatId"`
}

func (s *Server) testTelegram(w http.ResponseWriter, r *http.Request) {
	var req telegramTestRequest

	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.ChatID == "" {
		writeError(w, "chatId is required", http.StatusBadRequest)
		return
	}

	if err := s.telegram.TestTelegram(r.Context(), req.ChatID); err != nil {
		s.logger.Warn().Err(err).Msg("Telegram test message failed")
		writeError(w, err.Error(), http.StatusBadGateway)

		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Test message sent"})
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errInvalidLimit
	}

	return n, nil
}
