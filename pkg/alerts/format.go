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

package alerts

import (
	"fmt"
	"math"

	"github.com/carverauto/routermon/pkg/models"
)

const bitsPerMegabit = 1024 * 1024

// ConvertBitsToMbps converts a bits-per-second rate to Mbps using a
// binary megabit.
func ConvertBitsToMbps(bitsPerSecond int64) float64 {
	return float64(bitsPerSecond) / bitsPerMegabit
}

// FormatValue rounds v for display in unit. Kbps values are the Mbps value
// scaled by 1024.
func FormatValue(v float64, unit string) float64 {
	switch unit {
	case models.UnitPercent, models.UnitMbps:
		return round2(v)
	case models.UnitKbps:
		return round2(v * 1024)
	default:
		return v
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// metricLabel returns the display name of a metric.
func metricLabel(metric models.Metric, iface string) string {
	switch metric {
	case models.MetricCPU:
		return "CPU Load"
	case models.MetricMemory:
		return "Memory Usage"
	case models.MetricRxRate:
		return fmt.Sprintf("RX Rate (%s)", iface)
	case models.MetricTxRate:
		return fmt.Sprintf("TX Rate (%s)", iface)
	default:
		return string(metric)
	}
}

func triggered(cond models.Condition, value, threshold float64) bool {
	switch cond {
	case models.ConditionGreater:
		return value > threshold
	case models.ConditionLess:
		return value < threshold
	default:
		return false
	}
}
