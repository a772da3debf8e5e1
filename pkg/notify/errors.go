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
	"errors"
	"fmt"
)

var (
	errTelegramStatus  = errors.New("telegram api returned non-success status")
	errTelegramRefused = errors.New("telegram api refused message")
	errWebhookStatus   = errors.New("webhook returned non-success status")
	errMissingBotToken = errors.New("telegram bot token not configured")
)

// NotificationError reports a failed delivery on one channel target.
type NotificationError struct {
	Channel string
	Target  string
	Err     error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify %s (%s): %v", e.Channel, e.Target, e.Err)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}
