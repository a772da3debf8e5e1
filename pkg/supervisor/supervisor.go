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

// Package supervisor owns device sessions and the connection state machine.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/carverauto/routermon/pkg/logger"
	"github.com/carverauto/routermon/pkg/models"
	"github.com/carverauto/routermon/pkg/registry"
	"github.com/carverauto/routermon/pkg/session"
)

const (
	// IdentityCommand is the lightweight round-trip used to confirm liveness.
	IdentityCommand = "/system/identity/print"

	defaultConnectTimeout = 15 * time.Second
)

// Config tunes the supervisor.
type Config struct {
	ConnectTimeout time.Duration
}

// Supervisor opens, tests and re-opens device sessions. It is the only
// writer of device connection state.
type Supervisor struct {
	registry registry.Manager
	client   session.Client
	logger   logger.Logger
	timeout  time.Duration
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]session.Session
	locks    map[string]*sync.Mutex
}

// Option customizes a Supervisor.
type Option func(*Supervisor)

// WithNowFunc replaces the time source used for lastUpdate stamps.
func WithNowFunc(now func() time.Time) Option {
	return func(s *Supervisor) {
		s.now = now
	}
}

// New creates a Supervisor.
func New(reg registry.Manager, client session.Client, cfg Config, log logger.Logger, opts ...Option) *Supervisor {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	s := &Supervisor{
		registry: reg,
		client:   client,
		logger:   log,
		timeout:  timeout,
		now:      time.Now,
		sessions: make(map[string]session.Session),
		locks:    make(map[string]*sync.Mutex),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Supervisor) deviceLock(deviceID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[deviceID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[deviceID] = l
	}

	return l
}

func (s *Supervisor) session(deviceID string) session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sessions[deviceID]
}

// takeSession removes and returns the device's session.
func (s *Supervisor) takeSession(deviceID string) session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessions[deviceID]
	delete(s.sessions, deviceID)

	return sess
}

// OpenSessions returns the number of live sessions.
func (s *Supervisor) OpenSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sessions)
}

// Connect validates and registers a device, then opens its session. A
// failed open leaves the device registered in the failed state and returns
// it together with a *ConnectionError.
func (s *Supervisor) Connect(ctx context.Context, spec models.DeviceSpec) (models.Device, error) {
	spec = spec.WithDefaults()

	if err := spec.Validate(); err != nil {
		return models.Device{}, err
	}

	deviceID := s.registry.Add(spec)

	l := s.deviceLock(deviceID)
	l.Lock()
	connErr := s.open(ctx, deviceID, spec)
	l.Unlock()

	device, err := s.registry.Get(deviceID)
	if err != nil {
		return models.Device{}, err
	}

	if connErr != nil {
		return device, connErr
	}

	s.logger.Info().
		Str("device_id", deviceID).
		Str("device", spec.Name).
		Str("address", session.TargetFromSpec(spec, s.timeout).Address()).
		Msg("Device connected")

	return device, nil
}

// open runs the connect sequence. The caller holds the device lock and no
// session is stored for the device.
func (s *Supervisor) open(ctx context.Context, deviceID string, spec models.DeviceSpec) error {
	s.setState(deviceID, models.DeviceStateConnecting, "")

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	sess, err := s.client.Open(ctx, session.TargetFromSpec(spec, s.timeout))
	if err != nil {
		return s.fail(deviceID, spec, "open", err)
	}

	if _, err := sess.Query(ctx, IdentityCommand); err != nil {
		if cerr := sess.Close(); cerr != nil {
			s.logger.Debug().Err(cerr).Str("device_id", deviceID).Msg("Error closing session after failed identity check")
		}

		return s.fail(deviceID, spec, "identity check", err)
	}

	s.mu.Lock()
	s.sessions[deviceID] = sess
	s.mu.Unlock()

	now := s.now()

	if err := s.registry.Update(deviceID, func(d *models.Device) {
		d.State = models.DeviceStateConnected
		d.LastUpdate = &now
		d.SetError("")
	}); err != nil {
		// removed while connecting
		s.takeSession(deviceID)
		_ = sess.Close()

		return &ConnectionError{DeviceID: deviceID, Op: "open", Err: err}
	}

	return nil
}

func (s *Supervisor) fail(deviceID string, spec models.DeviceSpec, op string, err error) error {
	s.logger.Warn().
		Err(err).
		Str("device_id", deviceID).
		Str("device", spec.Name).
		Str("op", op).
		Msg("Device connection failed")

	s.setState(deviceID, models.DeviceStateFailed, err.Error())

	return &ConnectionError{DeviceID: deviceID, Op: op, Err: err}
}

func (s *Supervisor) setState(deviceID string, state models.DeviceState, msg string) {
	_ = s.registry.Update(deviceID, func(d *models.Device) {
		d.State = state
		if msg != "" || state == models.DeviceStateConnecting {
			d.SetError(msg)
		}
	})
}

// Reconnect closes any existing session and reruns the connect sequence
// with the stored credentials. It returns false when the connection
// failed; err is non-nil only for an unknown device.
func (s *Supervisor) Reconnect(ctx context.Context, deviceID string) (bool, error) {
	err := s.reconnect(ctx, deviceID, false)
	if err == nil {
		return true, nil
	}

	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return false, nil
	}

	return false, err
}

// reconnect reruns the connect sequence under the device lock. With
// keepLive set, a session opened while waiting for the lock is kept.
func (s *Supervisor) reconnect(ctx context.Context, deviceID string, keepLive bool) error {
	l := s.deviceLock(deviceID)
	l.Lock()
	defer l.Unlock()

	spec, err := s.registry.Credentials(deviceID)
	if err != nil {
		return err
	}

	if keepLive && s.live(deviceID) {
		return nil
	}

	s.closeSession(deviceID)
	s.setState(deviceID, models.DeviceStateDisconnected, "")

	s.logger.Debug().Str("device_id", deviceID).Str("device", spec.Name).Msg("Reconnecting device")

	return s.open(ctx, deviceID, spec)
}

// closeSession closes and drops the device's session, logging close errors.
func (s *Supervisor) closeSession(deviceID string) {
	sess := s.takeSession(deviceID)
	if sess == nil {
		return
	}

	if err := sess.Close(); err != nil {
		s.logger.Warn().Err(err).Str("device_id", deviceID).Msg("Error closing device session")
	}
}

// EnsureConnected returns the device's live session, reconnecting first
// when the device is not connected.
func (s *Supervisor) EnsureConnected(ctx context.Context, deviceID string) (session.Session, error) {
	device, err := s.registry.Get(deviceID)
	if err != nil {
		return nil, err
	}

	if device.Connected() {
		if sess := s.session(deviceID); sess != nil {
			return sess, nil
		}
	}

	if err := s.reconnect(ctx, deviceID, true); err != nil {
		return nil, err
	}

	sess := s.session(deviceID)
	if sess == nil {
		return nil, &ConnectionError{DeviceID: deviceID, Op: "open", Err: errNoSession}
	}

	return sess, nil
}

// live reports whether the device is connected with a stored session.
func (s *Supervisor) live(deviceID string) bool {
	device, err := s.registry.Get(deviceID)
	if err != nil || !device.Connected() {
		return false
	}

	return s.session(deviceID) != nil
}

// Session returns the live session of a connected device.
func (s *Supervisor) Session(deviceID string) (session.Session, bool) {
	sess := s.session(deviceID)

	return sess, sess != nil
}

// MarkDisconnected records a collection failure observed on sess. It is a
// no-op when the device has since been given a different session.
func (s *Supervisor) MarkDisconnected(deviceID string, sess session.Session, cause error) {
	s.mu.Lock()

	current := s.sessions[deviceID]
	if sess != nil && current != sess {
		s.mu.Unlock()
		s.logger.Debug().Str("device_id", deviceID).Msg("Ignoring failure on a replaced session")

		return
	}

	delete(s.sessions, deviceID)
	s.mu.Unlock()

	if current != nil {
		if err := current.Close(); err != nil {
			s.logger.Debug().Err(err).Str("device_id", deviceID).Msg("Error closing failed session")
		}
	}

	msg := "connection lost"
	if cause != nil {
		msg = cause.Error()
	}

	s.setState(deviceID, models.DeviceStateDisconnected, msg)

	s.logger.Warn().Err(cause).Str("device_id", deviceID).Msg("Device marked disconnected")
}

// Touch stamps lastUpdate after a successful collection.
func (s *Supervisor) Touch(deviceID string, t time.Time) {
	_ = s.registry.Update(deviceID, func(d *models.Device) {
		d.LastUpdate = &t
	})
}

// TestConnection runs the identity round-trip on the existing session
// without touching lastUpdate. A transport failure marks the device
// disconnected.
func (s *Supervisor) TestConnection(ctx context.Context, deviceID string) bool {
	sess := s.session(deviceID)
	if sess == nil {
		return false
	}

	if _, err := sess.Query(ctx, IdentityCommand); err != nil {
		s.logger.Debug().Err(err).Str("device_id", deviceID).Msg("Connection test failed")

		if session.IsTransportError(err) {
			s.MarkDisconnected(deviceID, sess, fmt.Errorf("connection lost: %w", err))
		}

		return false
	}

	return true
}

// Exec runs an ad-hoc command on the device, reconnecting first if needed.
func (s *Supervisor) Exec(ctx context.Context, deviceID, command string, params ...string) ([]session.Record, error) {
	sess, err := s.EnsureConnected(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	records, err := sess.Query(ctx, command, params...)
	if err != nil {
		if session.IsTransportError(err) {
			s.MarkDisconnected(deviceID, sess, fmt.Errorf("connection lost: %w", err))
		}

		return nil, err
	}

	return records, nil
}

// Remove closes the device's session and deregisters it.
func (s *Supervisor) Remove(_ context.Context, deviceID string) error {
	l := s.deviceLock(deviceID)
	l.Lock()
	defer l.Unlock()

	s.closeSession(deviceID)

	if err := s.registry.Remove(deviceID); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.locks, deviceID)
	s.mu.Unlock()

	s.logger.Info().Str("device_id", deviceID).Msg("Device removed")

	return nil
}

// DisconnectAll closes every session. Individual close errors are logged
// and never stop the sweep.
func (s *Supervisor) DisconnectAll(_ context.Context) {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]session.Session)
	s.mu.Unlock()

	for deviceID, sess := range sessions {
		if err := sess.Close(); err != nil {
			s.logger.Warn().Err(err).Str("device_id", deviceID).Msg("Error closing device session")
		}
	}

	for _, d := range s.registry.List() {
		s.setState(d.ID, models.DeviceStateDisconnected, "")
	}

	s.logger.Info().Int("sessions", len(sessions)).Msg("Disconnected all devices")
}
