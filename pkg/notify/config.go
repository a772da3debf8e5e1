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
	"os"
	"time"

	"github.com/carverauto/routermon/pkg/models"
)

const (
	defaultTelegramAPI = "https://api.telegram.org"
	defaultHTTPTimeout = 10 * time.Second
	botTokenEnv        = "TELEGRAM_BOT_TOKEN"
)

// TelegramConfig configures the Telegram Bot API channel.
type TelegramConfig struct {
	Enabled  bool     `json:"enabled"`
	BotToken string   `json:"bot_token"`
	ChatIDs  []string `json:"chat_ids"`
	APIURL   string   `json:"api_url,omitempty"`
}

// WebhookConfig configures the generic JSON webhook channel.
type WebhookConfig struct {
	Enabled bool              `json:"enabled"`
	URLs    []string          `json:"urls"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Config is the notifier settings handed to the Dispatcher.
type Config struct {
	Telegram TelegramConfig  `json:"telegram"`
	Webhook  WebhookConfig   `json:"webhook"`
	Timeout  models.Duration `json:"timeout"`
}

// Validate implements config.Validator interface.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		c.Timeout = models.Duration(defaultHTTPTimeout)
	}

	if c.Telegram.BotToken == "" {
		c.Telegram.BotToken = os.Getenv(botTokenEnv)
	}

	if c.Telegram.APIURL == "" {
		c.Telegram.APIURL = defaultTelegramAPI
	}

	return nil
}
