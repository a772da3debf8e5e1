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

// Package registry keeps the in-memory set of monitored devices.
package registry

import (
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/carverauto/routermon/pkg/models"
)

// DeviceRegistry is the in-memory Manager implementation.
type DeviceRegistry struct {
	mu      sync.RWMutex
	devices map[string]*models.Device
	order   []string
}

var _ Manager = (*DeviceRegistry)(nil)

// NewDeviceRegistry returns an empty registry.
func NewDeviceRegistry() *DeviceRegistry {
	return &DeviceRegistry{
		devices: make(map[string]*models.Device),
	}
}

// Add registers a device in the disconnected state and returns its new id.
// The device spec must already be validated.
func (r *DeviceRegistry) Add(spec models.DeviceSpec) string {
	spec = spec.WithDefaults()
	id := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.devices[id] = &models.Device{
		ID:       id,
		Name:     spec.Name,
		Host:     spec.Host,
		Port:     spec.Port,
		Username: spec.Username,
		Password: spec.Password,
		Protocol: spec.Protocol,
		State:    models.DeviceStateDisconnected,
	}
	r.order = append(r.order, id)

	return id
}

// Remove deletes a device.
func (r *DeviceRegistry) Remove(deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[deviceID]; !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}

	delete(r.devices, deviceID)

	if i := slices.Index(r.order, deviceID); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}

	return nil
}

// Get returns a copy of a device.
func (r *DeviceRegistry) Get(deviceID string) (models.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[deviceID]
	if !ok {
		return models.Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}

	return publicCopy(d), nil
}

// List returns copies of all devices in registration order.
func (r *DeviceRegistry) List() []models.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Device, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, publicCopy(r.devices[id]))
	}

	return out
}

// Update mutates a device in place. fn must not call back into the registry.
func (r *DeviceRegistry) Update(deviceID string, fn func(*models.Device)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[deviceID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}

	id, password := d.ID, d.Password

	fn(d)

	// identity and credentials are fixed at registration
	d.ID = id
	d.Password = password

	return nil
}

// Credentials returns the device's connection input.
func (r *DeviceRegistry) Credentials(deviceID string) (models.DeviceSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[deviceID]
	if !ok {
		return models.DeviceSpec{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}

	return d.Spec(), nil
}

func publicCopy(d *models.Device) models.Device {
	out := *d
	out.Password = ""

	if d.Error != nil {
		msg := *d.Error
		out.Error = &msg
	}

	if d.LastUpdate != nil {
		t := *d.LastUpdate
		out.LastUpdate = &t
	}

	return out
}
