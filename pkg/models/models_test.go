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

package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurationUnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{name: "string", input: `"5s"`, want: 5 * time.Second},
		{name: "nanoseconds", input: `1000000000`, want: time.Second},
		{name: "bad string", input: `"soon"`, wantErr: true},
		{name: "bool", input: `true`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration

			err := json.Unmarshal([]byte(tt.input), &d)
			if tt.wantErr {
				require.ErrorIs(t, err, errInvalidDuration)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Std())
		})
	}
}

func TestDurationOrDefault(t *testing.T) {
	assert.Equal(t, 3*time.Second, Duration(0).OrDefault(3*time.Second))
	assert.Equal(t, time.Minute, Duration(time.Minute).OrDefault(3*time.Second))
}

func TestDeviceSpecValidate(t *testing.T) {
	base := DeviceSpec{Name: "core", Host: "10.0.0.1", Username: "admin", Password: "secret"}

	tests := []struct {
		name  string
		mut   func(*DeviceSpec)
		field string
	}{
		{name: "valid", mut: func(*DeviceSpec) {}},
		{name: "empty password", mut: func(s *DeviceSpec) { s.Password = "" }, field: "password"},
		{name: "blank name", mut: func(s *DeviceSpec) { s.Name = "   " }, field: "name"},
		{name: "blank host", mut: func(s *DeviceSpec) { s.Host = "" }, field: "host"},
		{name: "blank username", mut: func(s *DeviceSpec) { s.Username = "\t" }, field: "username"},
		{name: "port too high", mut: func(s *DeviceSpec) { s.Port = 70000 }, field: "port"},
		{name: "unknown protocol", mut: func(s *DeviceSpec) { s.Protocol = "telnet" }, field: "protocol"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := base
			tt.mut(&spec)
			spec = spec.WithDefaults()

			err := spec.Validate()
			if tt.field == "" {
				require.NoError(t, err)
				return
			}

			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestDeviceSpecWithDefaults(t *testing.T) {
	spec := DeviceSpec{Name: " edge ", Host: " 192.0.2.1 ", Username: " admin ", Password: " pw "}.WithDefaults()

	assert.Equal(t, "edge", spec.Name)
	assert.Equal(t, "192.0.2.1", spec.Host)
	assert.Equal(t, "admin", spec.Username)
	assert.Equal(t, " pw ", spec.Password)
	assert.Equal(t, ProtocolRouterOS, spec.Protocol)
	assert.Equal(t, DefaultRouterOSPort, spec.Port)

	snmp := DeviceSpec{Protocol: ProtocolSNMP}.WithDefaults()
	assert.Equal(t, DefaultSNMPPort, snmp.Port)
}

func TestDeviceMarshalJSONHidesPassword(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	d := Device{
		ID:         "abc",
		Name:       "core",
		Password:   "secret",
		State:      DeviceStateConnected,
		LastUpdate: &now,
	}

	data, err := json.Marshal(d)
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &out))

	assert.NotContains(t, out, "password")
	assert.Equal(t, true, out["connected"])
	assert.Nil(t, out["error"])
	assert.Equal(t, "connected", out["state"])

	d.State = DeviceStateFailed
	d.SetError("timeout")

	data, err = json.Marshal(d)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, false, out["connected"])
	assert.Equal(t, "timeout", out["error"])
}

func TestMemoryUsedPercent(t *testing.T) {
	s := SystemInfo{TotalMemory: 1000, FreeMemory: 250}

	pct, ok := s.MemoryUsedPercent()
	require.True(t, ok)
	assert.InDelta(t, 75.0, pct, 0.0001)

	_, ok = (&SystemInfo{}).MemoryUsedPercent()
	assert.False(t, ok)
}

func TestAlertRuleValidate(t *testing.T) {
	rule := AlertRule{ID: "1", Name: "cpu", Metric: MetricCPU}
	require.NoError(t, rule.Validate())

	rule.Metric = "disk"
	require.Error(t, rule.Validate())

	assert.True(t, MetricRxRate.InterfaceScoped())
	assert.False(t, MetricMemory.InterfaceScoped())
	assert.Equal(t, ">", ConditionGreater.Symbol())
	assert.Equal(t, "<", Condition("equal").Symbol())
}

func TestCollectResultOK(t *testing.T) {
	byID := map[string]CollectResult{
		"ok":     {Snapshot: &Snapshot{}},
		"failed": {Snapshot: &Snapshot{}, Err: errors.New("x")},
		"empty":  {},
	}

	assert.True(t, byID["ok"].OK())
	assert.False(t, byID["failed"].OK())
	assert.False(t, byID["empty"].OK())
	assert.False(t, byID["missing"].OK())
}
