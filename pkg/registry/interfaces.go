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

package registry

import "github.com/carverauto/routermon/pkg/models"

// Manager is the set of known devices. Devices returned by Get and List
// are copies with the password removed.
type Manager interface {
	Add(spec models.DeviceSpec) string
	Remove(deviceID string) error
	Get(deviceID string) (models.Device, error)
	List() []models.Device

	// Update applies fn to the stored device under the registry lock.
	Update(deviceID string, fn func(*models.Device)) error

	// Credentials returns the stored connection input including the password.
	Credentials(deviceID string) (models.DeviceSpec, error)
}
