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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/carverauto/routermon/pkg/models"
)

// Webhook posts the alert payload as JSON to every configured URL.
type Webhook struct {
	config func() WebhookConfig
	client *http.Client
}

type webhookBody struct {
	Type  string              `json:"type"`
	Alert models.AlertPayload `json:"alert"`
}

func (w *Webhook) Send(ctx context.Context, payload models.AlertPayload) error {
	cfg := w.config()

	if !cfg.Enabled || len(cfg.URLs) == 0 {
		return nil
	}

	body, err := json.Marshal(webhookBody{Type: "alert", Alert: payload})
	if err != nil {
		return fmt.Errorf("marshal webhook body: %w", err)
	}

	var errs []error

	for _, url := range cfg.URLs {
		if err := w.post(ctx, url, cfg.Headers, body); err != nil {
			errs = append(errs, &NotificationError{Channel: ChannelWebhook, Target: url, Err: err})
		}
	}

	return errors.Join(errs...)
}

func (w *Webhook) post(ctx context.Context, url string, headers map[string]string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%w: %d", errWebhookStatus, resp.StatusCode)
	}

	return nil
}
