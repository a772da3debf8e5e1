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

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/carverauto/routermon/pkg/logger"
	"github.com/carverauto/routermon/pkg/models"
)

const telegramTimeFormat = "02/01/2006 15:04:05"

// Telegram sends alerts through the Bot API sendMessage method.
type Telegram struct {
	config func() TelegramConfig
	client *http.Client
	logger logger.Logger
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

// Send posts the alert to every configured chat. A disabled channel or an
// empty chat list sends nothing.
func (t *Telegram) Send(ctx context.Context, payload models.AlertPayload) error {
	cfg := t.config()

	if !cfg.Enabled || len(cfg.ChatIDs) == 0 {
		t.logger.Debug().Str("alert", payload.AlertName).Msg("Telegram disabled or no chat ids, skipping")
		return nil
	}

	if cfg.BotToken == "" {
		return &NotificationError{Channel: ChannelTelegram, Target: "bot", Err: errMissingBotToken}
	}

	text := FormatTelegramAlert(payload)

	var errs []error

	for _, chatID := range cfg.ChatIDs {
		if err := t.sendMessage(ctx, cfg, chatID, text); err != nil {
			errs = append(errs, &NotificationError{Channel: ChannelTelegram, Target: chatID, Err: err})
		}
	}

	return errors.Join(errs...)
}

// SendTest sends a configuration check message to one chat.
func (t *Telegram) SendTest(ctx context.Context, chatID string) error {
	cfg := t.config()

	if cfg.BotToken == "" {
		return &NotificationError{Channel: ChannelTelegram, Target: "bot", Err: errMissingBotToken}
	}

	text := fmt.Sprintf("🤖 <b>Test Notification</b>\n\n✅ Telegram bot configured.\n\n<i>Sent at %s</i>",
		time.Now().Format(telegramTimeFormat))

	if err := t.sendMessage(ctx, cfg, chatID, text); err != nil {
		return &NotificationError{Channel: ChannelTelegram, Target: chatID, Err: err}
	}

	return nil
}

func (t *Telegram) sendMessage(ctx context.Context, cfg TelegramConfig, chatID, text string) error {
	body, err := json.Marshal(telegramMessage{ChatID: chatID, Text: text, ParseMode: "HTML"})
	if err != nil {
		return err
	}

	url := strings.TrimRight(cfg.APIURL, "/") + "/bot" + cfg.BotToken + "/sendMessage"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	var out telegramResponse
	_ = json.NewDecoder(resp.Body).Decode(&out)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%w: %d %s", errTelegramStatus, resp.StatusCode, out.Description)
	}

	if !out.OK {
		return fmt.Errorf("%w: %s", errTelegramRefused, out.Description)
	}

	t.logger.Debug().Str("chat_id", chatID).Msg("Telegram message sent")

	return nil
}

// FormatTelegramAlert renders the HTML body of an alert message.
func FormatTelegramAlert(p models.AlertPayload) string {
	icon := "🟡"
	if p.Condition == models.ConditionGreater {
		icon = "🔴"
	}

	var b strings.Builder

	fmt.Fprintf(&b, "%s <b>ALERT: %s</b>\n\n", icon, html.EscapeString(p.AlertName))
	fmt.Fprintf(&b, "📊 <b>Device:</b> %s\n", html.EscapeString(p.DeviceName))
	fmt.Fprintf(&b, "📈 <b>Metric:</b> %s\n", html.EscapeString(strings.ToUpper(p.Metric)))
	fmt.Fprintf(&b, "⚠️ <b>Condition:</b> %s %s%s\n", html.EscapeString(p.ConditionSymbol), formatNumber(p.Threshold), html.EscapeString(p.Unit))
	fmt.Fprintf(&b, "📋 <b>Current Value:</b> %s%s\n", formatNumber(p.CurrentValue), html.EscapeString(p.Unit))
	fmt.Fprintf(&b, "🕐 <b>Time:</b> %s\n\n", p.Timestamp.Format(telegramTimeFormat))
	b.WriteString("<i>MikroTik monitoring</i>")

	return b.String()
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
