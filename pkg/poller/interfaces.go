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

package poller

//go:generate mockgen -destination=mock_poller.go -package=poller github.com/carverauto/routermon/pkg/poller Clock,Ticker

import (
	"context"
	"time"

	"github.com/carverauto/routermon/pkg/alerts"
	"github.com/carverauto/routermon/pkg/models"
	"github.com/carverauto/routermon/pkg/session"
)

// Clock abstracts time-related operations.
type Clock interface {
	Now() time.Time
	Ticker(d time.Duration) Ticker
}

// Ticker abstracts the ticker behavior.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

// DeviceLister enumerates registered devices.
type DeviceLister interface {
	List() []models.Device
}

// Supervisor is the connection state owner consulted around each collection.
type Supervisor interface {
	Session(deviceID string) (session.Session, bool)
	EnsureConnected(ctx context.Context, deviceID string) (session.Session, error)
	MarkDisconnected(deviceID string, sess session.Session, cause error)
	Touch(deviceID string, t time.Time)
}

// Collector produces one snapshot from a live session.
type Collector interface {
	Collect(ctx context.Context, sess session.Session, deviceName string) (*models.Snapshot, error)
}

// Publisher delivers snapshots to subscribers. Publish must not block.
type Publisher interface {
	Publish(ctx context.Context, deviceID string, snap *models.Snapshot, ts time.Time)
}

// Evaluator runs alert rules against a snapshot.
type Evaluator interface {
	Evaluate(ctx context.Context, deviceID, deviceName string, snap *models.Snapshot) []alerts.Firing
}

// Recorder receives per-collection and per-cycle measurements.
type Recorder interface {
	ObserveCollection(deviceID string, elapsed time.Duration, err error)
	ObserveCycle(elapsed time.Duration, polled, skipped int)
}
