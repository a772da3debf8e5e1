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

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/routermon/pkg/logger"
	"github.com/carverauto/routermon/pkg/models"
)

func samplePayload() models.AlertPayload {
	return models.AlertPayload{
		AlertName:       "CPU Load High",
		DeviceName:      "core-router",
		DeviceID:        "dev-1",
		Metric:          "CPU Load",
		Condition:       models.ConditionGreater,
		ConditionSymbol: ">",
		Threshold:       90,
		Unit:            models.UnitPercent,
		CurrentValue:    95.5,
		Timestamp:       time.Date(2026, 3, 4, 10, 20, 30, 0, time.UTC),
	}
}

type telegramServer struct {
	mu       sync.Mutex
	messages []telegramMessage
	paths    []string
	failChat string
}

func (s *telegramServer) handler(w http.ResponseWriter, r *http.Request) {
	var msg telegramMessage
	_ = json.NewDecoder(r.Body).Decode(&msg)

	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.paths = append(s.paths, r.URL.Path)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	if msg.ChatID == s.failChat {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))

		return
	}

	_, _ = w.Write([]byte(`{"ok":true}`))
}

func TestDispatcher_TelegramOneMessagePerChat(t *testing.T) {
	t.Parallel()

	ts := &telegramServer{}
	srv := httptest.NewServer(http.HandlerFunc(ts.handler))
	defer srv.Close()

	d := NewDispatcher(Config{
		Telegram: TelegramConfig{
			Enabled:  true,
			BotToken: "123:abc",
			ChatIDs:  []string{"100", "200"},
			APIURL:   srv.URL,
		},
	}, logger.NewTestLogger())

	require.NoError(t, d.Send(context.Background(), "telegram", samplePayload()))

	require.Len(t, ts.messages, 2)
	assert.Equal(t, "100", ts.messages[0].ChatID)
	assert.Equal(t, "200", ts.messages[1].ChatID)
	assert.Equal(t, "HTML", ts.messages[0].ParseMode)
	assert.Equal(t, "/bot123:abc/sendMessage", ts.paths[0])
	assert.Contains(t, ts.messages[0].Text, "<b>ALERT: CPU Load High</b>")
}

func TestDispatcher_TelegramPartialFailure(t *testing.T) {
	t.Parallel()

	ts := &telegramServer{failChat: "bad"}
	srv := httptest.NewServer(http.HandlerFunc(ts.handler))
	defer srv.Close()

	d := NewDispatcher(Config{
		Telegram: TelegramConfig{
			Enabled:  true,
			BotToken: "t",
			ChatIDs:  []string{"bad", "good"},
			APIURL:   srv.URL,
		},
	}, logger.NewTestLogger())

	err := d.Send(context.Background(), "telegram", samplePayload())
	require.Error(t, err)

	var nerr *NotificationError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "bad", nerr.Target)
	assert.ErrorIs(t, err, errTelegramStatus)

	// the second chat still received the message
	assert.Len(t, ts.messages, 2)
}

func TestDispatcher_TelegramDisabledOrNoChats(t *testing.T) {
	t.Parallel()

	var hits int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	disabled := NewDispatcher(Config{Telegram: TelegramConfig{BotToken: "t", ChatIDs: []string{"1"}, APIURL: srv.URL}}, logger.NewTestLogger())
	require.NoError(t, disabled.Send(context.Background(), "telegram", samplePayload()))

	noChats := NewDispatcher(Config{Telegram: TelegramConfig{Enabled: true, BotToken: "t", APIURL: srv.URL}}, logger.NewTestLogger())
	require.NoError(t, noChats.Send(context.Background(), "telegram", samplePayload()))

	assert.Zero(t, hits)
}

func TestDispatcher_TelegramRefused(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"description":"bot blocked"}`))
	}))
	defer srv.Close()

	d := NewDispatcher(Config{Telegram: TelegramConfig{Enabled: true, BotToken: "t", ChatIDs: []string{"1"}, APIURL: srv.URL}}, logger.NewTestLogger())

	err := d.Send(context.Background(), "telegram", samplePayload())
	assert.ErrorIs(t, err, errTelegramRefused)
}

func TestDispatcher_TestTelegram(t *testing.T) {
	t.Parallel()

	ts := &telegramServer{}
	srv := httptest.NewServer(http.HandlerFunc(ts.handler))
	defer srv.Close()

	d := NewDispatcher(Config{Telegram: TelegramConfig{BotToken: "t", APIURL: srv.URL}}, logger.NewTestLogger())

	require.NoError(t, d.TestTelegram(context.Background(), "42"))
	require.Len(t, ts.messages, 1)
	assert.Equal(t, "42", ts.messages[0].ChatID)
	assert.Contains(t, ts.messages[0].Text, "Test Notification")
}

func TestDispatcher_Webhook(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		bodies []webhookBody
		auth   []string
	)

	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var b webhookBody
		_ = json.NewDecoder(r.Body).Decode(&b)

		mu.Lock()
		bodies = append(bodies, b)
		auth = append(auth, r.Header.Get("Authorization"))
		mu.Unlock()

		w.WriteHeader(http.StatusNoContent)
	}))
	defer ok.Close()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()

	d := NewDispatcher(Config{
		Webhook: WebhookConfig{
			Enabled: true,
			URLs:    []string{broken.URL, ok.URL},
			Headers: map[string]string{"Authorization": "Bearer x"},
		},
	}, logger.NewTestLogger())

	err := d.Send(context.Background(), "webhook", samplePayload())
	require.ErrorIs(t, err, errWebhookStatus)

	var nerr *NotificationError
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, broken.URL, nerr.Target)
	assert.True(t, strings.HasPrefix(nerr.Error(), "notify webhook"))

	require.Len(t, bodies, 1)
	assert.Equal(t, "alert", bodies[0].Type)
	assert.Equal(t, "dev-1", bodies[0].Alert.DeviceID)
	assert.InDelta(t, 95.5, bodies[0].Alert.CurrentValue, 0.001)
	assert.Equal(t, "Bearer x", auth[0])
}

func TestDispatcher_EmailAndUnknownAreNoops(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(Config{}, logger.NewTestLogger())

	assert.NoError(t, d.Send(context.Background(), "email", samplePayload()))
	assert.NoError(t, d.Send(context.Background(), "pager", samplePayload()))
	assert.NoError(t, d.Send(context.Background(), "webhook", samplePayload()))
}

type captureSender struct {
	got []models.AlertPayload
}

func (c *captureSender) Send(_ context.Context, p models.AlertPayload) error {
	c.got = append(c.got, p)
	return nil
}

func TestDispatcher_RegisterAndUpdateConfig(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(Config{}, logger.NewTestLogger())

	c := &captureSender{}
	d.Register("Email", c)

	require.NoError(t, d.Send(context.Background(), "EMAIL", samplePayload()))
	assert.Len(t, c.got, 1)

	d.UpdateConfig(Config{Telegram: TelegramConfig{Enabled: true, ChatIDs: []string{"1"}, BotToken: "x"}})
	cfg := d.telegramConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, defaultTelegramAPI, cfg.APIURL)
}

func TestFormatTelegramAlert(t *testing.T) {
	t.Parallel()

	msg := FormatTelegramAlert(samplePayload())

	assert.True(t, strings.HasPrefix(msg, "🔴 <b>ALERT: CPU Load High</b>"))
	assert.Contains(t, msg, "<b>Device:</b> core-router")
	assert.Contains(t, msg, "<b>Metric:</b> CPU LOAD")
	assert.Contains(t, msg, "<b>Condition:</b> &gt; 90%")
	assert.Contains(t, msg, "<b>Current Value:</b> 95.5%")
	assert.Contains(t, msg, "<b>Time:</b> 04/03/2026 10:20:30")

	less := samplePayload()
	less.Condition = models.ConditionLess
	less.ConditionSymbol = "<"
	less.DeviceName = "<edge>"

	msg = FormatTelegramAlert(less)
	assert.True(t, strings.HasPrefix(msg, "🟡"))
	assert.Contains(t, msg, "&lt;edge&gt;")
}
