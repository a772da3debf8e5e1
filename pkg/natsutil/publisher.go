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

package natsutil

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/routermon/pkg/logger"
	"github.com/carverauto/routermon/pkg/models"
)

const (
	eventSource       = "routermon/poller"
	snapshotEventType = "com.carverauto.routermon.snapshot"
	alertEventType    = "com.carverauto.routermon.alert"
)

// CloudEvent is the envelope published for every message.
type CloudEvent struct {
	SpecVersion     string    `json:"specversion"`
	ID              string    `json:"id"`
	Source          string    `json:"source"`
	Type            string    `json:"type"`
	Subject         string    `json:"subject"`
	DataContentType string    `json:"datacontenttype"`
	Time            time.Time `json:"time"`
	Data            any       `json:"data"`
}

// corePublisher is the subset of *nats.Conn used for core publishes.
type corePublisher interface {
	Publish(subject string, data []byte) error
}

// asyncPublisher is the subset of jetstream.JetStream used for
// acknowledged publishes.
type asyncPublisher interface {
	PublishAsync(subject string, payload []byte, opts ...jetstream.PublishOpt) (jetstream.PubAckFuture, error)
}

// Publisher sends snapshots and alerts to NATS. Publishing never blocks the
// caller; failures are logged.
type Publisher struct {
	core   corePublisher
	js     asyncPublisher
	prefix string
	logger logger.Logger
}

// NewPublisher publishes with core NATS, or through JetStream when js is
// non-nil.
func NewPublisher(nc corePublisher, js jetstream.JetStream, prefix string, log logger.Logger) *Publisher {
	p := &Publisher{core: nc, prefix: prefix, logger: log}
	if js != nil {
		p.js = js
	}

	return p
}

func (p *Publisher) Publish(_ context.Context, deviceID string, snap *models.Snapshot, ts time.Time) {
	p.emit(SnapshotSubject(p.prefix, deviceID), snapshotEventType, ts, snap)
}

// PublishAlert publishes a fired alert.
func (p *Publisher) PublishAlert(payload *models.AlertPayload) {
	p.emit(AlertSubject(p.prefix, payload.DeviceID), alertEventType, payload.Timestamp, payload)
}

func (p *Publisher) emit(subject, eventType string, ts time.Time, data any) {
	event := CloudEvent{
		SpecVersion:     "1.0",
		ID:              uuid.NewString(),
		Source:          eventSource,
		Type:            eventType,
		Subject:         subject,
		DataContentType: "application/json",
		Time:            ts,
		Data:            data,
	}

	body, err := json.Marshal(event)
	if err != nil {
		p.logger.Error().Err(err).Str("subject", subject).Msg("Failed to marshal NATS event")
		return
	}

	if p.js != nil {
		if _, err := p.js.PublishAsync(subject, body); err != nil {
			p.logger.Warn().Err(err).Str("subject", subject).Msg("JetStream publish failed")
		}

		return
	}

	if err := p.core.Publish(subject, body); err != nil {
		p.logger.Warn().Err(err).Str("subject", subject).Msg("NATS publish failed")
	}
}
