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
	"errors"
	"time"

	"github.com/carverauto/routermon/pkg/alerts"
	"github.com/carverauto/routermon/pkg/db"
	pkghttp "github.com/carverauto/routermon/pkg/http"
	"github.com/carverauto/routermon/pkg/logger"
	"github.com/carverauto/routermon/pkg/models"
	"github.com/carverauto/routermon/pkg/natsutil"
	"github.com/carverauto/routermon/pkg/notify"
	"github.com/carverauto/routermon/pkg/poller"
)

const (
	defaultListenAddr     = ":3005"
	defaultConnectTimeout = 15 * time.Second
	defaultCooldown       = 5 * time.Minute
	defaultHistorySize    = 60
)

var errRuleSourceConflict = errors.New("alerts: rules_file and postgres cannot both be set")

// AlertsConfig selects where alert rules live. Postgres wins when
// configured, then RulesFile, then inline Rules; with none of them the
// built-in defaults are used.
type AlertsConfig struct {
	Cooldown  models.Duration    `json:"cooldown"`
	RulesFile string             `json:"rules_file,omitempty"`
	Rules     []models.AlertRule `json:"rules,omitempty"`
}

// Config is the full service configuration.
type Config struct {
	ListenAddr     string              `json:"listen_addr"`
	Logging        *logger.Config      `json:"logging,omitempty"`
	ConnectTimeout models.Duration     `json:"connect_timeout"`
	Poller         poller.Config       `json:"poller"`
	Alerts         AlertsConfig        `json:"alerts"`
	Notify         notify.Config       `json:"notify"`
	NATS           *natsutil.Config    `json:"nats,omitempty"`
	Postgres       *db.Config          `json:"postgres,omitempty"`
	HistorySize    int                 `json:"history_size"`
	CORS           pkghttp.CORSConfig  `json:"cors"`
	Devices        []models.DeviceSpec `json:"devices,omitempty"`
}

// Validate implements config.Validator interface.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}

	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = models.Duration(defaultConnectTimeout)
	}

	if c.HistorySize <= 0 {
		c.HistorySize = defaultHistorySize
	}

	if c.Alerts.Cooldown <= 0 {
		c.Alerts.Cooldown = models.Duration(defaultCooldown)
	}

	if c.Alerts.RulesFile != "" && c.Postgres != nil {
		return errRuleSourceConflict
	}

	for i := range c.Alerts.Rules {
		if err := c.Alerts.Rules[i].Validate(); err != nil {
			return err
		}
	}

	if err := c.Poller.Validate(); err != nil {
		return err
	}

	if err := c.Notify.Validate(); err != nil {
		return err
	}

	if c.NATS != nil {
		if err := c.NATS.Validate(); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) engineConfig() alerts.Config {
	return alerts.Config{Cooldown: c.Alerts.Cooldown}
}
