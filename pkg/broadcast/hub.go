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
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/carverauto/routermon/pkg/logger"
	"github.com/carverauto/routermon/pkg/models"
)

const (
	defaultSendBuffer      = 64
	defaultBroadcastBuffer = 256
)

// Hub maintains the set of WebSocket clients and broadcasts messages to
// them. Clients whose send buffer is full are dropped.
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	stopped    chan struct{}
	count      atomic.Int64

	upgrader   websocket.Upgrader
	sendBuffer int
	logger     logger.Logger
}

// HubOption customizes a Hub.
type HubOption func(*Hub)

// WithSendBuffer sets the per-client outbound queue length.
func WithSendBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithCheckOrigin replaces the upgrader's origin check.
func WithCheckOrigin(fn func(r *http.Request) bool) HubOption {
	return func(h *Hub) {
		h.upgrader.CheckOrigin = fn
	}
}

// NewHub creates a Hub. Run must be started before clients connect.
func NewHub(log logger.Logger, opts ...HubOption) *Hub {
	h := &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, defaultBroadcastBuffer),
		stopped:    make(chan struct{}),
		sendBuffer: defaultSendBuffer,
		logger:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Run processes registrations and broadcasts until ctx is done. All clients
// are closed on return.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}

			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.count.Add(1)

			h.logger.Debug().Str("client_id", c.id).Msg("WebSocket client registered")
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				h.logger.Debug().Str("client_id", c.id).Msg("WebSocket client unregistered")
			}
		case msg := <-h.broadcast:
			h.fanout(msg)
		}
	}
}

func (h *Hub) fanout(msg []byte) {
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn().Str("client_id", c.id).Msg("WebSocket client too slow, dropping")
			h.drop(c)
		}
	}
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	close(c.send)
	h.count.Add(-1)
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// Publish queues a monitoring update. It never blocks; when the broadcast
// queue is full the update is dropped.
func (h *Hub) Publish(_ context.Context, deviceID string, snap *models.Snapshot, ts time.Time) {
	h.send(Message{Type: TypeMonitoringUpdate, DeviceID: deviceID, Data: snap, Timestamp: ts})
}

// PublishAlert queues an alert notification for subscribers.
func (h *Hub) PublishAlert(payload *models.AlertPayload) {
	h.send(Message{Type: TypeAlert, DeviceID: payload.DeviceID, Data: payload, Timestamp: payload.Timestamp})
}

// PublishDeviceDeleted tells subscribers a device is gone.
func (h *Hub) PublishDeviceDeleted(deviceID string, ts time.Time) {
	h.send(Message{Type: TypeDeviceDeleted, DeviceID: deviceID, Timestamp: ts})
}

func (h *Hub) send(m Message) {
	data, err := json.Marshal(m)
	if err != nil {
		h.logger.Error().Err(err).Str("device_id", m.DeviceID).Msg("Failed to marshal broadcast message")
		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn().Str("device_id", m.DeviceID).Str("type", m.Type).Msg("Broadcast queue full, dropping message")
	}
}

// ServeHTTP upgrades the request and registers the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	c := &Client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
	}

	select {
	case h.register <- c:
	case <-h.stopped:
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}
