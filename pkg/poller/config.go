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

import (
	"time"

	"github.com/carverauto/routermon/pkg/models"
)

const (
	defaultPollInterval   = 5 * time.Second
	defaultCollectTimeout = 30 * time.Second
)

// Config represents poll loop configuration.
type Config struct {
	Interval       models.Duration `json:"interval"`
	CollectTimeout models.Duration `json:"collect_timeout"`
	// MaxConcurrency caps parallel collections per cycle; 0 means one
	// goroutine per device.
	MaxConcurrency int `json:"max_concurrency"`
	// RetryDisconnected reconnects devices that are not connected at the
	// start of a cycle. Defaults to true.
	RetryDisconnected *bool `json:"retry_disconnected,omitempty"`
}

// Validate implements config.Validator interface.
func (c *Config) Validate() error {
	if time.Duration(c.Interval) <= 0 {
		c.Interval = models.Duration(defaultPollInterval)
	}

	if time.Duration(c.CollectTimeout) <= 0 {
		c.CollectTimeout = models.Duration(defaultCollectTimeout)
	}

	if c.MaxConcurrency < 0 {
		c.MaxConcurrency = 0
	}

	if c.RetryDisconnected == nil {
		retry := true
		c.RetryDisconnected = &retry
	}

	return nil
}

func (c *Config) retryDisconnected() bool {
	return c.RetryDisconnected == nil || *c.RetryDisconnected
}
