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

// Package broadcast fans snapshots out to live subscribers.
package broadcast

import (
	"context"
	"time"

	"github.com/carverauto/routermon/pkg/models"
)

// Message types sent to WebSocket subscribers.
const (
	TypeMonitoringUpdate = "monitoring_update"
	TypeAlert            = "alert_triggered"
	TypeDeviceDeleted    = "device_deleted"
)

// Message is the envelope written to WebSocket subscribers.
type Message struct {
	Type      string    `json:"type"`
	DeviceID  string    `json:"deviceId"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives snapshots. Publish must not block.
type Sink interface {
	Publish(ctx context.Context, deviceID string, snap *models.Snapshot, ts time.Time)
}

// Fanout publishes every snapshot to each sink in order.
type Fanout []Sink

func (f Fanout) Publish(ctx context.Context, deviceID string, snap *models.Snapshot, ts time.Time) {
	for _, s := range f {
		s.Publish(ctx, deviceID, snap, ts)
	}
}
