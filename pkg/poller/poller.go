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

// Package poller drives the periodic collect, publish and evaluate cycle.
package poller

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/carverauto/routermon/pkg/alerts"
	"github.com/carverauto/routermon/pkg/logger"
	"github.com/carverauto/routermon/pkg/models"
	"github.com/carverauto/routermon/pkg/session"
)

// Dependencies are the components a Poller coordinates. Publisher,
// Evaluator and Recorder are optional.
type Dependencies struct {
	Devices    DeviceLister
	Supervisor Supervisor
	Collector  Collector
	Publisher  Publisher
	Evaluator  Evaluator
	Recorder   Recorder
}

// Poller collects a snapshot from every device on a fixed interval. A
// device never has two collections in flight; a device still busy when a
// tick fires is skipped for that tick.
type Poller struct {
	config Config
	deps   Dependencies
	clock  Clock
	logger logger.Logger

	ticker    Ticker
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	startWg   sync.WaitGroup

	inflightMu sync.Mutex
	inflight   map[string]struct{}
}

// New creates a new poller instance.
func New(config *Config, deps Dependencies, clock Clock, log logger.Logger) (*Poller, error) {
	switch {
	case deps.Devices == nil:
		return nil, errDevicesRequired
	case deps.Supervisor == nil:
		return nil, errSupervisorRequired
	case deps.Collector == nil:
		return nil, errCollectorRequired
	}

	if clock == nil {
		clock = systemClock{}
	}

	cfg := *config
	_ = cfg.Validate()

	if deps.Publisher == nil {
		deps.Publisher = noopPublisher{}
	}

	if deps.Evaluator == nil {
		deps.Evaluator = noopEvaluator{}
	}

	if deps.Recorder == nil {
		deps.Recorder = noopRecorder{}
	}

	return &Poller{
		config:   cfg,
		deps:     deps,
		clock:    clock,
		logger:   log,
		done:     make(chan struct{}),
		inflight: make(map[string]struct{}),
	}, nil
}

// Start implements the lifecycle.Service interface. It runs an initial
// cycle, then one cycle per tick until ctx ends or Stop is called.
func (p *Poller) Start(ctx context.Context) error {
	interval := time.Duration(p.config.Interval)
	p.ticker = p.clock.Ticker(interval)

	defer p.ticker.Stop()

	p.logger.Info().Dur("interval", interval).Msg("Starting poller")

	p.startWg.Add(1)
	defer p.startWg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-p.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	p.PollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			p.wg.Wait()

			select {
			case <-p.done:
				return nil
			default:
				return ctx.Err()
			}
		case <-p.ticker.Chan():
			p.wg.Add(1)

			go func() {
				defer p.wg.Done()

				p.PollOnce(ctx)
			}()
		}
	}
}

// Stop implements the lifecycle.Service interface. In-flight collections
// are cancelled and awaited.
func (p *Poller) Stop(ctx context.Context) error {
	p.closeOnce.Do(func() {
		close(p.done)
	})

	waited := make(chan struct{})

	go func() {
		p.startWg.Wait()
		p.wg.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		p.logger.Info().Msg("Poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PollOnce runs one cycle synchronously and returns a result per device
// that was polled. Devices skipped because a previous collection is still
// running have no result.
func (p *Poller) PollOnce(ctx context.Context) []models.CollectResult {
	start := p.clock.Now()
	devices := p.deps.Devices.List()

	var (
		g       errgroup.Group
		mu      sync.Mutex
		results = make([]models.CollectResult, 0, len(devices))
		skipped int
	)

	if p.config.MaxConcurrency > 0 {
		g.SetLimit(p.config.MaxConcurrency)
	}

	for i := range devices {
		device := devices[i]

		if !device.Connected() && !p.config.retryDisconnected() {
			continue
		}

		if !p.acquire(device.ID) {
			skipped++

			p.logger.Debug().Str("device_id", device.ID).Msg("Previous collection still running, skipping device")

			continue
		}

		g.Go(func() error {
			defer p.release(device.ID)

			res := p.pollDevice(ctx, &device)

			mu.Lock()
			results = append(results, res)
			mu.Unlock()

			return nil
		})
	}

	_ = g.Wait()

	elapsed := p.clock.Now().Sub(start)
	p.deps.Recorder.ObserveCycle(elapsed, len(results), skipped)

	p.logger.Debug().
		Int("polled", len(results)).
		Int("skipped", skipped).
		Dur("elapsed", elapsed).
		Msg("Polling cycle completed")

	return results
}

func (p *Poller) acquire(deviceID string) bool {
	p.inflightMu.Lock()
	defer p.inflightMu.Unlock()

	if _, busy := p.inflight[deviceID]; busy {
		return false
	}

	p.inflight[deviceID] = struct{}{}

	return true
}

func (p *Poller) release(deviceID string) {
	p.inflightMu.Lock()
	delete(p.inflight, deviceID)
	p.inflightMu.Unlock()
}

// pollDevice collects from one device. On success the snapshot is
// published and then evaluated; on failure the device is marked
// disconnected and nothing is published.
func (p *Poller) pollDevice(ctx context.Context, device *models.Device) models.CollectResult {
	start := p.clock.Now()
	res := models.CollectResult{DeviceID: device.ID, DeviceName: device.Name}

	collectCtx, cancel := context.WithTimeout(ctx, time.Duration(p.config.CollectTimeout))
	defer cancel()

	sess, err := p.sessionFor(collectCtx, device)
	if err != nil {
		res.Err = err
		res.Timestamp = p.clock.Now()
		p.deps.Recorder.ObserveCollection(device.ID, res.Timestamp.Sub(start), err)

		p.logger.Debug().Err(err).Str("device_id", device.ID).Msg("Device not reachable this cycle")

		return res
	}

	snap, err := p.deps.Collector.Collect(collectCtx, sess, device.Name)
	res.Timestamp = p.clock.Now()

	p.deps.Recorder.ObserveCollection(device.ID, res.Timestamp.Sub(start), err)

	if err != nil {
		res.Err = err
		p.deps.Supervisor.MarkDisconnected(device.ID, sess, err)

		p.logger.Warn().
			Err(err).
			Str("device_id", device.ID).
			Str("device", device.Name).
			Msg("Collection failed")

		return res
	}

	res.Snapshot = snap

	p.deps.Supervisor.Touch(device.ID, res.Timestamp)
	p.deps.Publisher.Publish(ctx, device.ID, snap, res.Timestamp)
	p.deps.Evaluator.Evaluate(ctx, device.ID, device.Name, snap)

	return res
}

func (p *Poller) sessionFor(ctx context.Context, device *models.Device) (session.Session, error) {
	if device.Connected() {
		if sess, ok := p.deps.Supervisor.Session(device.ID); ok {
			return sess, nil
		}
	}

	return p.deps.Supervisor.EnsureConnected(ctx, device.ID)
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, *models.Snapshot, time.Time) {}

type noopEvaluator struct{}

func (noopEvaluator) Evaluate(context.Context, string, string, *models.Snapshot) []alerts.Firing {
	return nil
}

type noopRecorder struct{}

func (noopRecorder) ObserveCollection(string, time.Duration, error) {}
func (noopRecorder) ObserveCycle(time.Duration, int, int)           {}
