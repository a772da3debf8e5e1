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

package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/carverauto/routermon/pkg/models"
)

const defaultHistorySize = 60

// Entry is one stored snapshot.
type Entry struct {
	Snapshot  *models.Snapshot `json:"data"`
	Timestamp time.Time        `json:"timestamp"`
}

// History keeps the most recent snapshots of each device in memory.
type History struct {
	mu      sync.RWMutex
	size    int
	entries map[string][]Entry
}

// NewHistory creates a History holding up to size entries per device.
func NewHistory(size int) *History {
	if size <= 0 {
		size = defaultHistorySize
	}

	return &History{
		size:    size,
		entries: make(map[string][]Entry),
	}
}

func (h *History) Publish(_ context.Context, deviceID string, snap *models.Snapshot, ts time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	buf := append(h.entries[deviceID], Entry{Snapshot: snap, Timestamp: ts})
	if len(buf) > h.size {
		buf = append([]Entry(nil), buf[len(buf)-h.size:]...)
	}

	h.entries[deviceID] = buf
}

// Recent returns up to limit entries for the device, oldest first. A
// limit of 0 returns everything kept.
func (h *History) Recent(deviceID string, limit int) []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	buf := h.entries[deviceID]
	if limit > 0 && limit < len(buf) {
		buf = buf[len(buf)-limit:]
	}

	return append([]Entry(nil), buf...)
}

// Latest returns the newest entry for the device.
func (h *History) Latest(deviceID string) (Entry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	buf := h.entries[deviceID]
	if len(buf) == 0 {
		return Entry{}, false
	}

	return buf[len(buf)-1], true
}

// Forget drops everything stored for the device.
func (h *History) Forget(deviceID string) {
	h.mu.Lock()
	delete(h.entries, deviceID)
	h.mu.Unlock()
}
