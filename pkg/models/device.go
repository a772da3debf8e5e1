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

package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DeviceState is the connection state of a monitored device.
type DeviceState string

const (
	DeviceStateDisconnected DeviceState = "disconnected"
	DeviceStateConnecting   DeviceState = "connecting"
	DeviceStateConnected    DeviceState = "connected"
	DeviceStateFailed       DeviceState = "failed"
)

// Protocol selects the management transport used for a device.
type Protocol string

const (
	ProtocolRouterOS Protocol = "routeros"
	ProtocolSNMP     Protocol = "snmp"
)

const (
	DefaultRouterOSPort = 8728
	DefaultSNMPPort     = 161
)

// DefaultPort returns the well-known port for the protocol.
func (p Protocol) DefaultPort() int {
	if p == ProtocolSNMP {
		return DefaultSNMPPort
	}

	return DefaultRouterOSPort
}

// Device is a registered router and its current connection status.
type Device struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Host       string      `json:"host"`
	Port       int         `json:"port"`
	Username   string      `json:"username"`
	Password   string      `json:"-"`
	Protocol   Protocol    `json:"protocol"`
	State      DeviceState `json:"state"`
	Error      *string     `json:"error"`
	LastUpdate *time.Time  `json:"lastUpdate"`
}

// Connected reports whether the device currently holds a live session.
func (d *Device) Connected() bool {
	return d.State == DeviceStateConnected
}

// SetError records msg as the last error, or clears it when msg is empty.
func (d *Device) SetError(msg string) {
	if msg == "" {
		d.Error = nil
		return
	}

	d.Error = &msg
}

// ErrorMessage returns the last error or an empty string.
func (d *Device) ErrorMessage() string {
	if d.Error == nil {
		return ""
	}

	return *d.Error
}

// MarshalJSON adds the derived "connected" flag.
func (d Device) MarshalJSON() ([]byte, error) {
	type device Device

	return json.Marshal(struct {
		device
		Connected bool `json:"connected"`
	}{
		device:    device(d),
		Connected: d.Connected(),
	})
}

// Spec returns the registration input the device was created from.
func (d *Device) Spec() DeviceSpec {
	return DeviceSpec{
		Name:     d.Name,
		Host:     d.Host,
		Port:     d.Port,
		Username: d.Username,
		Password: d.Password,
		Protocol: d.Protocol,
	}
}

// DeviceSpec is the input used to register a device.
type DeviceSpec struct {
	Name     string   `json:"name"`
	Host     string   `json:"host"`
	Port     int      `json:"port,omitempty"`
	Username string   `json:"username"`
	Password string   `json:"password"`
	Protocol Protocol `json:"protocol,omitempty"`
}

// WithDefaults returns a copy with the protocol and port filled in and
// name, host and username trimmed.
func (s DeviceSpec) WithDefaults() DeviceSpec {
	s.Name = strings.TrimSpace(s.Name)
	s.Host = strings.TrimSpace(s.Host)
	s.Username = strings.TrimSpace(s.Username)

	if s.Protocol == "" {
		s.Protocol = ProtocolRouterOS
	}

	if s.Port == 0 {
		s.Port = s.Protocol.DefaultPort()
	}

	return s
}

// Validate checks the required fields. It does not apply defaults.
func (s *DeviceSpec) Validate() error {
	switch {
	case strings.TrimSpace(s.Name) == "":
		return &ValidationError{Field: "name", Reason: "is required"}
	case strings.TrimSpace(s.Host) == "":
		return &ValidationError{Field: "host", Reason: "is required"}
	case strings.TrimSpace(s.Username) == "":
		return &ValidationError{Field: "username", Reason: "is required"}
	case s.Password == "":
		return &ValidationError{Field: "password", Reason: "is required"}
	case s.Port < 1 || s.Port > 65535:
		return &ValidationError{Field: "port", Reason: fmt.Sprintf("must be between 1 and 65535, got %d", s.Port)}
	}

	switch s.Protocol {
	case ProtocolRouterOS, ProtocolSNMP:
		return nil
	default:
		return &ValidationError{Field: "protocol", Reason: fmt.Sprintf("unknown protocol %q", s.Protocol)}
	}
}

// ValidationError reports a malformed device spec or rule. It is returned before
// any I/O happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s %s", e.Field, e.Reason)
}
