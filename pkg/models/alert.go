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
	"fmt"
	"time"
)

// Metric selects what an alert rule measures.
type Metric string

const (
	MetricCPU    Metric = "cpu"
	MetricMemory Metric = "memory"
	MetricRxRate Metric = "rx-rate"
	MetricTxRate Metric = "tx-rate"
)

// InterfaceScoped reports whether the metric is evaluated per interface.
func (m Metric) InterfaceScoped() bool {
	return m == MetricRxRate || m == MetricTxRate
}

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool {
	switch m {
	case MetricCPU, MetricMemory, MetricRxRate, MetricTxRate:
		return true
	default:
		return false
	}
}

// Condition is the comparison applied to a metric value.
type Condition string

const (
	ConditionGreater Condition = "greater"
	ConditionLess    Condition = "less"
)

// Symbol returns ">" for greater and "<" for anything else.
func (c Condition) Symbol() string {
	if c == ConditionGreater {
		return ">"
	}

	return "<"
}

// Units understood by value formatting.
const (
	UnitPercent = "%"
	UnitMbps    = "Mbps"
	UnitKbps    = "Kbps"
)

// AlertRule is a user defined threshold check.
type AlertRule struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Metric    Metric    `json:"metric" yaml:"metric"`
	Condition Condition `json:"condition" yaml:"condition"`
	Threshold float64   `json:"threshold" yaml:"threshold"`
	Unit      string    `json:"unit" yaml:"unit"`
	Channels  []string  `json:"channels" yaml:"channels"`
	Disabled  bool      `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// Validate checks the fields a rule needs to be stored.
func (r *AlertRule) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "id", Reason: "is required"}
	}

	if r.Name == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}

	if !r.Metric.Valid() {
		return &ValidationError{Field: "metric", Reason: fmt.Sprintf("unknown metric %q", r.Metric)}
	}

	return nil
}

// AlertPayload is what a notifier receives when a rule fires.
type AlertPayload struct {
	AlertName       string    `json:"alertName"`
	DeviceName      string    `json:"deviceName"`
	DeviceID        string    `json:"deviceId"`
	Metric          string    `json:"metric"`
	Condition       Condition `json:"condition"`
	ConditionSymbol string    `json:"conditionSymbol"`
	Threshold       float64   `json:"threshold"`
	Unit            string    `json:"unit"`
	CurrentValue    float64   `json:"currentValue"`
	Timestamp       time.Time `json:"timestamp"`
}
