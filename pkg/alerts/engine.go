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

// Package alerts evaluates threshold rules against snapshots and
// dispatches rate-limited notifications.
package alerts

import (
	"context"
	"sync"
	"time"

	"github.com/carverauto/routermon/pkg/logger"
	"github.com/carverauto/routermon/pkg/models"
)

const defaultCooldown = 5 * time.Minute

// Notifier delivers an alert on a named channel.
type Notifier interface {
	Send(ctx context.Context, channel string, payload models.AlertPayload) error
}

// Recorder receives firing and suppression counts.
type Recorder interface {
	ObserveFiring(ruleID, channel string, err error)
	ObserveSuppressed(ruleID string)
}

// Config tunes the engine.
type Config struct {
	Cooldown models.Duration `json:"cooldown"`
}

// Delivery is the outcome of sending one firing on one channel.
type Delivery struct {
	Channel string
	Err     error
}

// Firing is a rule that passed its condition and cooldown check.
type Firing struct {
	RuleID     string
	Key        string
	Payload    models.AlertPayload
	Deliveries []Delivery
}

type cooldownKey struct {
	deviceID string
	ruleKey  string
}

// Engine evaluates rules and owns the cooldown map.
type Engine struct {
	store    RuleStore
	notifier Notifier
	recorder Recorder
	now      func() time.Time
	cooldown time.Duration
	logger   logger.Logger

	mu        sync.Mutex
	lastFired map[cooldownKey]time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithNowFunc replaces the engine's time source.
func WithNowFunc(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		e.recorder = r
	}
}

// NewEngine creates an Engine.
func NewEngine(cfg Config, store RuleStore, notifier Notifier, log logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		notifier:  notifier,
		now:       time.Now,
		cooldown:  cfg.Cooldown.OrDefault(defaultCooldown),
		logger:    log,
		lastFired: make(map[cooldownKey]time.Time),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// candidate is one value to test against one rule.
type candidate struct {
	rule  *models.AlertRule
	key   string
	label string
	value float64
}

// Evaluate tests the active rules against snap and notifies every channel
// of each rule that fires. System metrics are evaluated before interface
// metrics. Each (rule, interface) pair has its own cooldown key.
func (e *Engine) Evaluate(ctx context.Context, deviceID, deviceName string, snap *models.Snapshot) []Firing {
	if snap == nil {
		return nil
	}

	rules, err := e.store.ListActiveRules(ctx)
	if err != nil {
		e.logger.Error().Err(err).Str("device_id", deviceID).Msg("Failed to load alert rules")
		return nil
	}

	ts := e.now()

	var firings []Firing

	for _, c := range candidates(rules, snap) {
		if !triggered(c.rule.Condition, c.value, c.rule.Threshold) {
			continue
		}

		if !e.claim(deviceID, c.key, ts) {
			if e.recorder != nil {
				e.recorder.ObserveSuppressed(c.rule.ID)
			}

			continue
		}

		payload := models.AlertPayload{
			AlertName:       c.rule.Name,
			DeviceName:      deviceName,
			DeviceID:        deviceID,
			Metric:          c.label,
			Condition:       c.rule.Condition,
			ConditionSymbol: c.rule.Condition.Symbol(),
			Threshold:       c.rule.Threshold,
			Unit:            c.rule.Unit,
			CurrentValue:    FormatValue(c.value, c.rule.Unit),
			Timestamp:       ts,
		}

		firings = append(firings, Firing{
			RuleID:     c.rule.ID,
			Key:        c.key,
			Payload:    payload,
			Deliveries: e.dispatch(ctx, c.rule, payload),
		})
	}

	return firings
}

func candidates(rules []models.AlertRule, snap *models.Snapshot) []candidate {
	var out []candidate

	for i := range rules {
		rule := &rules[i]
		if rule.Disabled {
			continue
		}

		switch rule.Metric {
		case models.MetricCPU:
			out = append(out, candidate{rule: rule, key: rule.ID, label: metricLabel(rule.Metric, ""), value: snap.System.CPULoad})
		case models.MetricMemory:
			if pct, ok := snap.System.MemoryUsedPercent(); ok {
				out = append(out, candidate{rule: rule, key: rule.ID, label: metricLabel(rule.Metric, ""), value: pct})
			}
		}
	}

	for i := range rules {
		rule := &rules[i]
		if rule.Disabled || !rule.Metric.InterfaceScoped() {
			continue
		}

		for _, iface := range snap.Interfaces {
			bits := iface.RxBitsPerSecond
			if rule.Metric == models.MetricTxRate {
				bits = iface.TxBitsPerSecond
			}

			// idle or unsampled interfaces are not evaluated
			if bits == 0 {
				continue
			}

			out = append(out, candidate{
				rule:  rule,
				key:   rule.ID + "-" + iface.Name,
				label: metricLabel(rule.Metric, iface.Name),
				value: ConvertBitsToMbps(bits),
			})
		}
	}

	return out
}

// claim records a firing for the key unless it is inside its cooldown
// window. Check and set happen under one lock.
func (e *Engine) claim(deviceID, ruleKey string, now time.Time) bool {
	k := cooldownKey{deviceID: deviceID, ruleKey: ruleKey}

	e.mu.Lock()
	defer e.mu.Unlock()

	if last, ok := e.lastFired[k]; ok && now.Sub(last) < e.cooldown {
		return false
	}

	e.lastFired[k] = now

	return true
}

// dispatch sends payload on every channel of the rule. A failed channel
// does not stop the others and does not release the cooldown.
func (e *Engine) dispatch(ctx context.Context, rule *models.AlertRule, payload models.AlertPayload) []Delivery {
	deliveries := make([]Delivery, 0, len(rule.Channels))

	for _, channel := range rule.Channels {
		err := e.notifier.Send(ctx, channel, payload)
		deliveries = append(deliveries, Delivery{Channel: channel, Err: err})

		if e.recorder != nil {
			e.recorder.ObserveFiring(rule.ID, channel, err)
		}

		if err != nil {
			e.logger.Warn().
				Err(err).
				Str("rule", rule.Name).
				Str("channel", channel).
				Str("device_id", payload.DeviceID).
				Msg("Alert notification failed")

			continue
		}

		e.logger.Info().
			Str("rule", rule.Name).
			Str("channel", channel).
			Str("device", payload.DeviceName).
			Str("metric", payload.Metric).
			Float64("value", payload.CurrentValue).
			Msg("Alert sent")
	}

	return deliveries
}
