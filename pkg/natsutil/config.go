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

// Package natsutil publishes snapshots and alerts to NATS.
package natsutil

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
)

const defaultSubjectPrefix = "routermon"

var (
	// ErrCAParsingFailed is returned when CA certificate cannot be parsed
	ErrCAParsingFailed = errors.New("failed to parse CA certificate")
	errURLRequired     = errors.New("nats url is required")
)

// TLSConfig names the client certificate files for mTLS.
type TLSConfig struct {
	CertFile   string `json:"cert_file"`
	KeyFile    string `json:"key_file"`
	CAFile     string `json:"ca_file"`
	ServerName string `json:"server_name,omitempty"`
}

// Config configures the NATS sink.
type Config struct {
	URL           string     `json:"url"`
	Name          string     `json:"name,omitempty"`
	SubjectPrefix string     `json:"subject_prefix"`
	Stream        string     `json:"stream,omitempty"`
	Domain        string     `json:"domain,omitempty"`
	TLS           *TLSConfig `json:"tls,omitempty"`
}

// Validate implements config.Validator interface.
func (c *Config) Validate() error {
	if c.URL == "" {
		return errURLRequired
	}

	c.SubjectPrefix = strings.Trim(c.SubjectPrefix, ".")
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = defaultSubjectPrefix
	}

	if c.Name == "" {
		c.Name = "routermon"
	}

	return nil
}

// BuildTLSConfig builds a tls.Config for connecting to NATS using mTLS.
func BuildTLSConfig(t *TLSConfig) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}

	caCert, err := os.ReadFile(t.CAFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caCert) {
		return nil, ErrCAParsingFailed
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      caPool,
		ServerName:   t.ServerName,
		MinVersion:   tls.VersionTLS13,
	}, nil
}
