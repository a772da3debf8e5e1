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

// Package notify delivers alert payloads to external channels.
package notify

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/carverauto/routermon/pkg/logger"
	"github.com/carverauto/routermon/pkg/models"
)

// Channel names understood by the Dispatcher.
const (
	ChannelTelegram = "telegram"
	ChannelWebhook  = "webhook"
	ChannelEmail    = "email"
)

// Sender delivers a payload on one channel.
type Sender interface {
	Send(ctx context.Context, payload models.AlertPayload) error
}

// Dispatcher routes alert payloads to the sender registered for a channel.
type Dispatcher struct {
	mu       sync.RWMutex
	config   Config
	senders  map[string]Sender
	telegram *Telegram
	logger   logger.Logger
}

// NewDispatcher builds a Dispatcher with the Telegram and webhook senders
// configured from cfg.
func NewDispatcher(cfg Config, log logger.Logger) *Dispatcher {
	_ = cfg.Validate()

	client := &http.Client{Timeout: time.Duration(cfg.Timeout)}

	d := &Dispatcher{
		config:  cfg,
		senders: make(map[string]Sender),
		logger:  log,
	}

	d.telegram = &Telegram{config: d.telegramConfig, client: client, logger: log}
	d.senders[ChannelTelegram] = d.telegram
	d.senders[ChannelWebhook] = &Webhook{config: d.webhookConfig, client: client}

	return d
}

// UpdateConfig swaps the notifier settings used by later sends.
func (d *Dispatcher) UpdateConfig(cfg Config) {
	_ = cfg.Validate()

	d.mu.Lock()
	d.config = cfg
	d.mu.Unlock()
}

// Register installs or replaces the sender for a channel.
func (d *Dispatcher) Register(channel string, s Sender) {
	d.mu.Lock()
	d.senders[strings.ToLower(channel)] = s
	d.mu.Unlock()
}

// Send implements alerts.Notifier. Email and unknown channels succeed
// without sending anything.
func (d *Dispatcher) Send(ctx context.Context, channel string, payload models.AlertPayload) error {
	name := strings.ToLower(channel)

	d.mu.RLock()
	sender, ok := d.senders[name]
	d.mu.RUnlock()

	switch {
	case ok:
		return sender.Send(ctx, payload)
	case name == ChannelEmail:
		d.logger.Warn().Str("alert", payload.AlertName).Msg("Email notifications are not implemented, skipping")
	default:
		d.logger.Warn().Str("channel", channel).Msg("Unknown notification channel, skipping")
	}

	return nil
}

// TestTelegram sends a configuration check message to chatID.
func (d *Dispatcher) TestTelegram(ctx context.Context, chatID string) error {
	return d.telegram.SendTest(ctx, chatID)
}

func (d *Dispatcher) telegramConfig() TelegramConfig {
	d.mu.RLock()
	defer d.mu.RUnlock()

	cfg := d.config.Telegram
	cfg.ChatIDs = append([]string(nil), cfg.ChatIDs...)

	return cfg
}

func (d *Dispatcher) webhookConfig() WebhookConfig {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.config.Webhook
}
