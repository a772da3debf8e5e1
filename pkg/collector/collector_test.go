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

package collector

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/routermon/pkg/logger"
	"github.com/carverauto/routermon/pkg/session"
)

type scriptedSession struct {
	mu      sync.Mutex
	replies map[string][]session.Record
	fail    map[string]error
	calls   []string
}

func (s *scriptedSession) Query(_ context.Context, command string, params ...string) ([]session.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.TrimSpace(command + " " + strings.Join(params, " "))
	s.calls = append(s.calls, key)

	if err, ok := s.fail[key]; ok {
		return nil, err
	}

	if err, ok := s.fail[command]; ok {
		return nil, err
	}

	if r, ok := s.replies[key]; ok {
		return r, nil
	}

	return s.replies[command], nil
}

func (*scriptedSession) Close() error { return nil }

func routerReplies() map[string][]session.Record {
	rec := session.NewRecord

	return map[string][]session.Record{
		CmdSystemResource: {rec(
			"uptime", "1w2d", "version", "7.14", "cpu-load", "37",
			"free-memory", "268435456", "total-memory", "1073741824",
			"free-hdd-space", "garbage", "total-hdd-space", "134217728",
			"board-name", "RB5009", "cpu-count", "4", "cpu-frequency", "350",
		)},
		CmdInterfaces: {
			rec("name", "ether1", "type", "ether", "running", "true", "disabled", "false", "mac-address", "AA:BB:CC:00:00:01"),
			rec("name", "bridge", "type", "bridge", "running", "yes", "disabled", "yes", "address", "10.0.0.1/24"),
		},
		CmdMonitorTraffic + " =interface=ether1 =once=": {rec(
			"name", "ether1", "rx-bits-per-second", "157286400", "tx-bits-per-second", "1024",
			"rx-packets-per-second", "900", "tx-packets-per-second", "n/a",
		)},
		CmdMonitorTraffic + " =interface=bridge =once=": {rec("name", "bridge", "rx-bits-per-second", "0")},
		CmdFirewallFilter: {
			rec(".id", "*1", "chain", "input", "action", "accept", "disabled", "false"),
			rec(".id", "*2", "chain", "forward", "action", "drop", "src-address", "203.0.113.0/24", "disabled", "true"),
		},
		CmdConnections: {
			rec("src-address", "10.0.0.5:5000", "dst-address", "1.1.1.1:443", "protocol", "tcp", "tcp-state", "established", "timeout", "23h"),
		},
		CmdDHCPLeases: {
			rec("address", "10.0.0.50", "mac-address", "11:22:33:44:55:66", "host-name", "laptop", "status", "bound"),
			rec("address", "10.0.0.51", "mac-address", "11:22:33:44:55:67", "status", "waiting"),
		},
		CmdAddresses: {rec("address", "192.0.2.10/24", "interface", "ether1")},
		CmdRoutes: {
			rec("dst-address", "10.0.0.0/24", "gateway", "bridge"),
			rec("dst-address", "0.0.0.0/0", "gateway", "192.0.2.1"),
		},
		CmdDNS:      {rec("servers", "1.1.1.1,8.8.8.8")},
		CmdIdentity: {rec("name", "core-router")},
		CmdSimpleQueues: {
			rec(".id", "*A", "name", "guest", "target", "10.0.1.0/24", "rate", "0/0", "max-limit", "10M/10M", "disabled", "false"),
		},
		CmdQueueTree: {
			rec(".id", "*B", "name", "download", "parent", "global", "packet-mark", "dl", "max-limit", "100M", "disabled", "yes"),
		},
	}
}

func newTestCollector() *Collector {
	c := New(logger.NewTestLogger())
	c.now = func() time.Time { return time.Unix(1700000000, 0) }

	return c
}

func TestCollectBuildsSnapshot(t *testing.T) {
	sess := &scriptedSession{replies: routerReplies()}

	snap, err := newTestCollector().Collect(context.Background(), sess, "fallback")
	require.NoError(t, err)
	require.NotNil(t, snap)

	sys := snap.System
	assert.Equal(t, "core-router", sys.Identity)
	assert.Equal(t, "7.14", sys.Version)
	assert.InDelta(t, 37.0, sys.CPULoad, 0.001)
	assert.Equal(t, int64(1073741824), sys.TotalMemory)
	assert.Equal(t, int64(0), sys.FreeDisk)
	assert.Nil(t, sys.Temperature)
	assert.Equal(t, int64(4), sys.CPUCount)

	require.Len(t, snap.Interfaces, 2)

	eth := snap.Interfaces[0]
	assert.Equal(t, "ether1", eth.ID)
	assert.True(t, eth.Running)
	assert.False(t, eth.Disabled)
	assert.Equal(t, int64(157286400), eth.RxBitsPerSecond)
	assert.Equal(t, int64(900), eth.RxPacketsPerSecond)
	assert.Equal(t, int64(0), eth.TxPacketsPerSecond)

	bridge := snap.Interfaces[1]
	assert.True(t, bridge.Running)
	assert.True(t, bridge.Disabled)
	assert.Equal(t, "10.0.0.1/24", bridge.IPAddress)

	require.Len(t, snap.Security.FirewallRules, 2)
	assert.True(t, snap.Security.FirewallRules[1].Disabled)
	assert.Equal(t, "203.0.113.0/24", snap.Security.FirewallRules[1].SrcAddress)
	assert.Equal(t, 1, snap.Security.ActiveConnections)
	assert.Equal(t, 2, snap.Security.DHCPLeases)
	assert.Zero(t, snap.Security.BlockedIPsCount)

	net := snap.Network
	assert.Equal(t, "Unknown", net.DHCPLeases[1].HostName)
	assert.Equal(t, "established", net.ActiveConnections[0].State)
	assert.Equal(t, "192.0.2.10/24", net.Address)
	assert.Equal(t, "ether1", net.Interface)
	assert.Equal(t, "192.0.2.1", net.Gateway)
	assert.Equal(t, "1.1.1.1,8.8.8.8", net.DNS)
	assert.Equal(t, "connected", net.Status)

	require.Len(t, snap.Queues, 1)
	assert.Equal(t, "10M/10M", snap.Queues[0].MaxLimit)
	require.Len(t, snap.QueueTree, 1)
	assert.Equal(t, "dl", snap.QueueTree[0].PacketMark)
	assert.True(t, snap.QueueTree[0].Disabled)

	assert.Equal(t, time.Unix(1700000000, 0), snap.CollectedAt)
}

func TestCollectQueryOrder(t *testing.T) {
	sess := &scriptedSession{replies: routerReplies()}

	_, err := newTestCollector().Collect(context.Background(), sess, "r")
	require.NoError(t, err)

	assert.Equal(t, []string{
		CmdSystemResource,
		CmdInterfaces,
		CmdMonitorTraffic + " =interface=ether1 =once=",
		CmdMonitorTraffic + " =interface=bridge =once=",
		CmdFirewallFilter,
		CmdConnections,
		CmdDHCPLeases,
		CmdAddresses,
		CmdRoutes,
		CmdDNS,
		CmdIdentity,
		CmdSimpleQueues,
		CmdQueueTree,
	}, sess.calls)
}

func TestCollectAbortsOnSubQueryFailure(t *testing.T) {
	boom := errors.New("connection reset by peer")

	tests := []struct {
		name    string
		failKey string
		query   string
		calls   int
	}{
		{name: "resource", failKey: CmdSystemResource, query: CmdSystemResource, calls: 1},
		{name: "traffic sample", failKey: CmdMonitorTraffic + " =interface=bridge =once=", query: CmdMonitorTraffic + " bridge", calls: 4},
		{name: "queue tree", failKey: CmdQueueTree, query: CmdQueueTree, calls: 13},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := &scriptedSession{replies: routerReplies(), fail: map[string]error{tt.failKey: boom}}

			snap, err := newTestCollector().Collect(context.Background(), sess, "r")
			require.Nil(t, snap)

			var cErr *CollectionError
			require.ErrorAs(t, err, &cErr)
			assert.Equal(t, tt.query, cErr.Query)
			require.ErrorIs(t, err, boom)
			assert.Len(t, sess.calls, tt.calls)
		})
	}
}

func TestCollectIdentityFallback(t *testing.T) {
	replies := routerReplies()
	replies[CmdIdentity] = nil
	replies[CmdAddresses] = nil
	replies[CmdSystemResource] = []session.Record{session.NewRecord("temperature", "41.5")}

	snap, err := newTestCollector().Collect(context.Background(), &scriptedSession{replies: replies}, "branch-office")
	require.NoError(t, err)

	assert.Equal(t, "branch-office", snap.System.Identity)
	require.NotNil(t, snap.System.Temperature)
	assert.InDelta(t, 41.5, *snap.System.Temperature, 0.001)
	assert.Equal(t, "disconnected", snap.Network.Status)
	assert.Empty(t, snap.Network.Address)
}

func TestParsers(t *testing.T) {
	assert.Equal(t, int64(42), parseInt("42"))
	assert.Equal(t, int64(3), parseInt("3.9"))
	assert.Equal(t, int64(0), parseInt(""))
	assert.Equal(t, int64(0), parseInt("abc"))

	assert.InDelta(t, 12.5, parseFloat("12.5%"), 0.001)
	assert.Zero(t, parseFloat("x"))

	assert.Nil(t, parseOptionalFloat(""))
	assert.Nil(t, parseOptionalFloat("n/a"))

	assert.Zero(t, parseFloat("NaN"))
	assert.Zero(t, parseFloat("Inf"))
	assert.Zero(t, parseFloat("-infinity%"))
	assert.Equal(t, int64(0), parseInt("NaN"))
	assert.Equal(t, int64(0), parseInt("+Inf"))
	assert.Equal(t, int64(0), parseInt("1e300"))
	assert.Equal(t, int64(0), parseInt("-1e19"))
	assert.Nil(t, parseOptionalFloat("NaN"))
	assert.Nil(t, parseOptionalFloat("-Inf"))

	assert.True(t, parseBool("true"))
	assert.True(t, parseBool("yes"))
	assert.False(t, parseBool("no"))
	assert.False(t, parseBool(""))
}

func TestCollectNonFiniteReadingsStayEncodable(t *testing.T) {
	replies := routerReplies()
	replies[CmdSystemResource] = []session.Record{session.NewRecord(
		"cpu-load", "NaN", "total-memory", "Inf", "free-memory", "1e300", "temperature", "NaN",
	)}

	snap, err := newTestCollector().Collect(context.Background(), &scriptedSession{replies: replies}, "core")
	require.NoError(t, err)

	assert.Zero(t, snap.System.CPULoad)
	assert.Zero(t, snap.System.TotalMemory)
	assert.Zero(t, snap.System.FreeMemory)
	assert.Nil(t, snap.System.Temperature)

	_, err = json.Marshal(snap)
	require.NoError(t, err)
}
