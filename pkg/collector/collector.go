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

// Package collector builds a monitoring snapshot from a device session.
package collector

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/carverauto/routermon/pkg/logger"
	"github.com/carverauto/routermon/pkg/models"
	"github.com/carverauto/routermon/pkg/session"
)

// Commands issued for one snapshot, in order.
const (
	CmdSystemResource = "/system/resource/print"
	CmdInterfaces     = "/interface/print"
	CmdMonitorTraffic = "/interface/monitor-traffic"
	CmdFirewallFilter = "/ip/firewall/filter/print"
	CmdConnections    = "/ip/firewall/connection/print"
	CmdDHCPLeases     = "/ip/dhcp-server/lease/print"
	CmdAddresses      = "/ip/address/print"
	CmdRoutes         = "/ip/route/print"
	CmdDNS            = "/ip/dns/print"
	CmdIdentity       = "/system/identity/print"
	CmdSimpleQueues   = "/queue/simple/print"
	CmdQueueTree      = "/queue/tree/print"
)

const (
	defaultRoute    = "0.0.0.0/0"
	unknownHostName = "Unknown"
)

// CollectionError reports the sub-query that aborted a snapshot.
type CollectionError struct {
	Query string
	Err   error
}

func (e *CollectionError) Error() string {
	return fmt.Sprintf("collection aborted at %s: %v", e.Query, e.Err)
}

func (e *CollectionError) Unwrap() error {
	return e.Err
}

// Collector runs the snapshot query sequence.
type Collector struct {
	logger logger.Logger
	now    func() time.Time
}

// New returns a Collector.
func New(log logger.Logger) *Collector {
	return &Collector{
		logger: log,
		now:    time.Now,
	}
}

// raw holds the replies of one collection before they are shaped.
type raw struct {
	resource    []session.Record
	interfaces  []session.Record
	traffic     map[string]session.Record
	firewall    []session.Record
	connections []session.Record
	leases      []session.Record
	addresses   []session.Record
	routes      []session.Record
	dns         []session.Record
	identity    []session.Record
	queues      []session.Record
	queueTree   []session.Record
}

// Collect issues every sub-query in order on sess. Any query failure
// aborts the collection with a *CollectionError and no snapshot. Malformed
// field values never fail a collection.
func (c *Collector) Collect(ctx context.Context, sess session.Session, deviceName string) (*models.Snapshot, error) {
	var r raw

	if err := query(ctx, sess, &r.resource, CmdSystemResource); err != nil {
		return nil, err
	}

	if err := query(ctx, sess, &r.interfaces, CmdInterfaces); err != nil {
		return nil, err
	}

	traffic, err := c.sampleTraffic(ctx, sess, r.interfaces)
	if err != nil {
		return nil, err
	}

	r.traffic = traffic

	steps := []struct {
		dst     *[]session.Record
		command string
	}{
		{&r.firewall, CmdFirewallFilter},
		{&r.connections, CmdConnections},
		{&r.leases, CmdDHCPLeases},
		{&r.addresses, CmdAddresses},
		{&r.routes, CmdRoutes},
		{&r.dns, CmdDNS},
		{&r.identity, CmdIdentity},
		{&r.queues, CmdSimpleQueues},
		{&r.queueTree, CmdQueueTree},
	}

	for _, step := range steps {
		if err := query(ctx, sess, step.dst, step.command); err != nil {
			return nil, err
		}
	}

	snap := build(&r, deviceName)
	snap.CollectedAt = c.now()

	c.logger.Debug().
		Str("device", deviceName).
		Int("interfaces", len(snap.Interfaces)).
		Msg("Snapshot collected")

	return snap, nil
}

func query(ctx context.Context, sess session.Session, dst *[]session.Record, command string) error {
	records, err := sess.Query(ctx, command)
	if err != nil {
		return &CollectionError{Query: command, Err: err}
	}

	*dst = records

	return nil
}

// sampleTraffic takes one traffic sample per interface, sequentially.
func (*Collector) sampleTraffic(ctx context.Context, sess session.Session, ifaces []session.Record) (map[string]session.Record, error) {
	out := make(map[string]session.Record, len(ifaces))

	for _, iface := range ifaces {
		name := iface.Get("name")

		records, err := sess.Query(ctx, CmdMonitorTraffic, session.Param("interface", name), "=once=")
		if err != nil {
			return nil, &CollectionError{Query: CmdMonitorTraffic + " " + name, Err: err}
		}

		if len(records) > 0 {
			out[name] = records[0]
		}
	}

	return out, nil
}

func build(r *raw, deviceName string) *models.Snapshot {
	return &models.Snapshot{
		System:     buildSystem(first(r.resource), first(r.identity), deviceName),
		Interfaces: buildInterfaces(r.interfaces, r.traffic),
		Security: models.SecurityInfo{
			FirewallRules:     buildFirewall(r.firewall),
			ActiveConnections: len(r.connections),
			DHCPLeases:        len(r.leases),
		},
		Network:   buildNetwork(r),
		Queues:    buildQueues(r.queues),
		QueueTree: buildQueueTree(r.queueTree),
	}
}

func buildSystem(res, ident session.Record, deviceName string) models.SystemInfo {
	identity := ident.Get("name")
	if identity == "" {
		identity = deviceName
	}

	return models.SystemInfo{
		Identity:               identity,
		Version:                res.Get("version"),
		Uptime:                 res.Get("uptime"),
		CPULoad:                parseFloat(res.Get("cpu-load")),
		FreeMemory:             parseInt(res.Get("free-memory")),
		TotalMemory:            parseInt(res.Get("total-memory")),
		FreeDisk:               parseInt(res.Get("free-hdd-space")),
		TotalDisk:              parseInt(res.Get("total-hdd-space")),
		Temperature:            parseOptionalFloat(res.Get("temperature")),
		BoardName:              res.Get("board-name"),
		ArchitectureName:       res.Get("architecture-name"),
		SerialNumber:           res.Get("serial-number"),
		FactorySoftwareVersion: res.Get("factory-software-version"),
		Platform:               res.Get("platform"),
		BoardType:              res.Get("board-type"),
		CPUFrequency:           parseInt(res.Get("cpu-frequency")),
		CPUCount:               parseInt(res.Get("cpu-count")),
	}
}

func buildInterfaces(ifaces []session.Record, traffic map[string]session.Record) []models.InterfaceStat {
	out := make([]models.InterfaceStat, 0, len(ifaces))

	for _, iface := range ifaces {
		name := iface.Get("name")
		stats := traffic[name]

		ip := iface.Get("ip-address")
		if ip == "" {
			ip = iface.Get("address")
		}

		out = append(out, models.InterfaceStat{
			ID:                 name,
			Name:               name,
			Type:               iface.Get("type"),
			Running:            parseBool(iface.Get("running")),
			Disabled:           parseBool(iface.Get("disabled")),
			MACAddress:         iface.Get("mac-address"),
			IPAddress:          ip,
			RxBitsPerSecond:    parseInt(stats.Get("rx-bits-per-second")),
			TxBitsPerSecond:    parseInt(stats.Get("tx-bits-per-second")),
			RxPacketsPerSecond: parseInt(stats.Get("rx-packets-per-second")),
			TxPacketsPerSecond: parseInt(stats.Get("tx-packets-per-second")),
		})
	}

	return out
}

func buildFirewall(rules []session.Record) []models.FirewallRule {
	out := make([]models.FirewallRule, 0, len(rules))

	for _, rule := range rules {
		out = append(out, models.FirewallRule{
			ID:         rule.Get(".id"),
			Chain:      rule.Get("chain"),
			Action:     rule.Get("action"),
			Protocol:   rule.Get("protocol"),
			SrcAddress: rule.Get("src-address"),
			DstPort:    rule.Get("dst-port"),
			Comment:    rule.Get("comment"),
			Disabled:   parseBool(rule.Get("disabled")),
		})
	}

	return out
}

func buildNetwork(r *raw) models.NetworkInfo {
	n := models.NetworkInfo{
		DHCPLeases:        make([]models.DHCPLease, 0, len(r.leases)),
		ActiveConnections: make([]models.ActiveConnection, 0, len(r.connections)),
		Status:            "disconnected",
	}

	for _, lease := range r.leases {
		host := lease.Get("host-name")
		if host == "" {
			host = unknownHostName
		}

		n.DHCPLeases = append(n.DHCPLeases, models.DHCPLease{
			Address:    lease.Get("address"),
			MACAddress: lease.Get("mac-address"),
			HostName:   host,
			Status:     lease.Get("status"),
		})
	}

	for _, conn := range r.connections {
		n.ActiveConnections = append(n.ActiveConnections, models.ActiveConnection{
			SrcAddress: conn.Get("src-address"),
			DstAddress: conn.Get("dst-address"),
			Protocol:   conn.Get("protocol"),
			State:      firstNonEmpty(conn.Get("state"), conn.Get("tcp-state")),
			Timeout:    conn.Get("timeout"),
		})
	}

	if len(r.addresses) > 0 {
		n.Address = r.addresses[0].Get("address")
		n.Interface = r.addresses[0].Get("interface")
		n.Status = "connected"
	}

	for _, route := range r.routes {
		if route.Get("dst-address") == defaultRoute || route.Get("dst") == defaultRoute {
			n.Gateway = route.Get("gateway")
			break
		}
	}

	n.DNS = first(r.dns).Get("servers")

	return n
}

func buildQueues(queues []session.Record) []models.Queue {
	out := make([]models.Queue, 0, len(queues))

	for _, q := range queues {
		out = append(out, models.Queue{
			ID:       q.Get(".id"),
			Name:     q.Get("name"),
			Target:   q.Get("target"),
			Rate:     q.Get("rate"),
			MaxLimit: q.Get("max-limit"),
			Comment:  q.Get("comment"),
			Disabled: parseBool(q.Get("disabled")),
		})
	}

	return out
}

func buildQueueTree(items []session.Record) []models.QueueTreeItem {
	out := make([]models.QueueTreeItem, 0, len(items))

	for _, q := range items {
		out = append(out, models.QueueTreeItem{
			ID:         q.Get(".id"),
			Name:       q.Get("name"),
			Parent:     q.Get("parent"),
			PacketMark: q.Get("packet-mark"),
			Rate:       q.Get("rate"),
			MaxLimit:   q.Get("max-limit"),
			Comment:    q.Get("comment"),
			Disabled:   parseBool(q.Get("disabled")),
		})
	}

	return out
}

func first(records []session.Record) session.Record {
	if len(records) == 0 {
		return nil
	}

	return records[0]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes":
		return true
	default:
		return false
	}
}

// parseInt reads a counter. Malformed or out-of-range values are 0; a
// fractional value is truncated.
func parseInt(s string) int64 {
	s = strings.TrimSpace(s)

	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}

	v, ok := finite(s)
	if !ok || v >= math.MaxInt64 || v < math.MinInt64 {
		return 0
	}

	return int64(v)
}

func parseFloat(s string) float64 {
	v, ok := finite(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if !ok {
		return 0
	}

	return v
}

func parseOptionalFloat(s string) *float64 {
	v, ok := finite(strings.TrimSpace(s))
	if !ok {
		return nil
	}

	return &v
}

// finite parses s as a float, rejecting NaN and infinities.
func finite(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}

	return v, true
}
