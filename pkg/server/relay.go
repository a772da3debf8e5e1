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

	"github.com/carverauto/routermon/pkg/alerts"
	"github.com/carverauto/routermon/pkg/models"
)

// AlertSink receives every alert that fired. PublishAlert must not block.
type AlertSink interface {
	PublishAlert(payload *models.AlertPayload)
}

type evaluator interface {
	Evaluate(ctx context.Context, deviceID, deviceName string, snap *models.Snapshot) []alerts.Firing
}

// alertRelay evaluates rules and forwards each firing to the live sinks.
type alertRelay struct {
	engine evaluator
	sinks  []AlertSink
}

func (r *alertRelay) Evaluate(ctx context.Context, deviceID, deviceName string, snap *models.Snapshot) []alerts.Firing {
	firings := r.engine.Evaluate(ctx, deviceID, deviceName, snap)

	for i := range firings {
		for _, sink := range r.sinks {
			sink.PublishAlert(&firings[i].Payload)
		}
	}

	return firings
}
