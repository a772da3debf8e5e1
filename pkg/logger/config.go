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

package logger

import (
	"os"
	"strings"
)

// Environment variables read by DefaultConfig and ApplyEnv.
const (
	EnvLevel      = "LOG_LEVEL"
	EnvDebug      = "DEBUG"
	EnvOutput     = "LOG_OUTPUT"
	EnvTimeFormat = "LOG_TIME_FORMAT"
)

// DefaultConfig logs at info to stdout unless the environment says otherwise.
func DefaultConfig() *Config {
	c := &Config{Level: "info", Output: "stdout"}
	c.ApplyEnv()

	return c
}

// ApplyEnv overrides every field whose variable is set.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvLevel); v != "" {
		c.Level = v
	}

	if v := os.Getenv(EnvOutput); v != "" {
		c.Output = v
	}

	if v := os.Getenv(EnvTimeFormat); v != "" {
		c.TimeFormat = v
	}

	if v, ok := envBool(EnvDebug); ok {
		c.Debug = v
	}
}

func envBool(key string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "":
		return false, false
	case "1", "true", "yes", "on":
		return true, true
	default:
		return false, true
	}
}
