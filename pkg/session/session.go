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

// Package session opens request/response management sessions to devices.
package session

//go:generate mockgen -destination=mock_session.go -package=session github.com/carverauto/routermon/pkg/session Client,Session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/carverauto/routermon/pkg/models"
)

var (
	// ErrSessionClosed is returned by Query after Close.
	ErrSessionClosed = errors.New("session closed")
	// ErrUnsupportedProtocol is returned when no client handles a target's protocol.
	ErrUnsupportedProtocol = errors.New("unsupported protocol")
)

// DefaultTimeout bounds connection establishment when a Target has none.
const DefaultTimeout = 15 * time.Second

// Target identifies a device and the credentials used to open a session.
type Target struct {
	Host     string
	Port     int
	Username string
	Password string
	Protocol models.Protocol
	Timeout  time.Duration
}

// TargetFromSpec builds a Target from a registered device spec.
func TargetFromSpec(spec models.DeviceSpec, timeout time.Duration) Target {
	spec = spec.WithDefaults()

	return Target{
		Host:     spec.Host,
		Port:     spec.Port,
		Username: spec.Username,
		Password: spec.Password,
		Protocol: spec.Protocol,
		Timeout:  timeout,
	}
}

// Address returns host:port.
func (t Target) Address() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

func (t Target) timeout() time.Duration {
	if t.Timeout <= 0 {
		return DefaultTimeout
	}

	return t.Timeout
}

// Client opens sessions.
type Client interface {
	Open(ctx context.Context, target Target) (Session, error)
}

// Session issues ordered requests to one device. A Session serializes its
// own queries and must not be shared between pollers.
type Session interface {
	Query(ctx context.Context, command string, params ...string) ([]Record, error)
	Close() error
}

// Pair is one attribute of a Record.
type Pair struct {
	Key   string
	Value string
}

// Record is an ordered set of string attributes as returned by a device.
type Record []Pair

// NewRecord builds a Record from alternating keys and values.
func NewRecord(kv ...string) Record {
	r := make(Record, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		r = append(r, Pair{Key: kv[i], Value: kv[i+1]})
	}

	return r
}

// Lookup returns the first value stored under key.
func (r Record) Lookup(key string) (string, bool) {
	for _, p := range r {
		if p.Key == key {
			return p.Value, true
		}
	}

	return "", false
}

// Get returns the value stored under key or an empty string.
func (r Record) Get(key string) string {
	v, _ := r.Lookup(key)

	return v
}

// Map returns the record as a map, for JSON output.
func (r Record) Map() map[string]string {
	out := make(map[string]string, len(r))
	for _, p := range r {
		if _, ok := out[p.Key]; !ok {
			out[p.Key] = p.Value
		}
	}

	return out
}

// Param formats an API attribute word, for example Param("interface", "ether1")
// returns "=interface=ether1".
func Param(key, value string) string {
	return "=" + key + "=" + value
}

// ParamValue extracts the value of an attribute word built by Param.
func ParamValue(params []string, key string) (string, bool) {
	prefix := "=" + key + "="
	for _, p := range params {
		if strings.HasPrefix(p, prefix) {
			return strings.TrimPrefix(p, prefix), true
		}
	}

	return "", false
}

// Mux dispatches Open to the client registered for the target protocol.
type Mux map[models.Protocol]Client

// Open implements Client.
func (m Mux) Open(ctx context.Context, target Target) (Session, error) {
	proto := target.Protocol
	if proto == "" {
		proto = models.ProtocolRouterOS
	}

	c, ok := m[proto]
	if !ok || c == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProtocol, proto)
	}

	return c.Open(ctx, target)
}
