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

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carverauto/routermon/pkg/logger"
)

const defaultShutdownTimeout = 30 * time.Second

// Service is a long-running component. Start blocks until ctx is cancelled
// or the service stops on its own.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Options controls Run.
type Options struct {
	ServiceName     string
	Service         Service
	ShutdownTimeout time.Duration
	Signals         []os.Signal
}

// Run starts the service and stops it on SIGINT/SIGTERM or when ctx ends.
func Run(ctx context.Context, opts *Options, log logger.Logger) error {
	if opts.ShutdownTimeout == 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}

	if len(opts.Signals) == 0 {
		opts.Signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, opts.Signals...)

	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)

	go func() {
		errCh <- opts.Service.Start(ctx)
	}()

	log.Info().Str("service", opts.ServiceName).Msg("Service started")

	var startErr error

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case <-ctx.Done():
		log.Info().Msg("Context cancelled, shutting down")
	case startErr = <-errCh:
		if startErr != nil && !errors.Is(startErr, context.Canceled) {
			log.Error().Err(startErr).Msg("Service exited with error")
		}
	}

	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
	defer stopCancel()

	if err := opts.Service.Stop(stopCtx); err != nil {
		return fmt.Errorf("failed to stop %s: %w", opts.ServiceName, err)
	}

	log.Info().Str("service", opts.ServiceName).Msg("Service stopped")

	if startErr != nil && !errors.Is(startErr, context.Canceled) {
		return startErr
	}

	return nil
}
