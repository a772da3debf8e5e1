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
	"github.com/rs/zerolog"
)

// Logger is the structured logger handed to every component.
type Logger interface {
	Debug() *zerolog.Event
	Info() *zerolog.Event
	Warn() *zerolog.Event
	Error() *zerolog.Event
	With() zerolog.Context
	WithComponent(component string) zerolog.Logger
}

// Wrap adapts a zerolog.Logger to Logger.
func Wrap(l zerolog.Logger) Logger {
	return zlogger{l: l}
}

// NewTestLogger returns a Logger that discards everything.
func NewTestLogger() Logger {
	return Wrap(zerolog.Nop())
}

type zlogger struct {
	l zerolog.Logger
}

func (z zlogger) Debug() *zerolog.Event { return z.l.Debug() }
func (z zlogger) Info() *zerolog.Event  { return z.l.Info() }
func (z zlogger) Warn() *zerolog.Event  { return z.l.Warn() }
func (z zlogger) Error() *zerolog.Event { return z.l.Error() }
func (z zlogger) With() zerolog.Context { return z.l.With() }

func (z zlogger) WithComponent(component string) zerolog.Logger {
	return z.l.With().Str("component", component).Logger()
}
