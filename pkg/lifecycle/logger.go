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

package lifecycle

import (
	"fmt"

	"github.com/carverauto/routermon/pkg/logger"
)

// CreateLogger builds the process logger. A nil config falls back to the
// environment defaults.
func CreateLogger(config *logger.Config) (logger.Logger, error) {
	if config == nil {
		config = logger.DefaultConfig()
	}

	zlog, err := logger.New(config, config.Writer())
	if err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}

	return logger.Wrap(zlog), nil
}

// CreateComponentLogger creates a logger for a specific component.
func CreateComponentLogger(component string, config *logger.Config) (logger.Logger, error) {
	log, err := CreateLogger(config)
	if err != nil {
		return nil, err
	}

	return ComponentLogger(log, component), nil
}

// ComponentLogger derives a child logger tagged with a component field.
func ComponentLogger(parent logger.Logger, component string) logger.Logger {
	return logger.Wrap(parent.WithComponent(component))
}
