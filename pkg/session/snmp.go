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

package session

import (
	"cmp"
	"context"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/carverauto/routermon/pkg/logger"
)

// OIDs used to answer the collector's command set.
const (
	oidSysDescr  = ".1.3.6.1.2.1.1.1.0"
	oidSysUpTime = ".1.3.6.1.2.1.1.3.0"
	oidSysName   = ".1.3.6.1.2.1.1.5.0"

	oidIfTable       = ".1.3.6.1.2.1.2.2.1"
	oidIfDescr       = ".1.3.6.1.2.1.2.2.1.2"
	oidIfType        = ".1.3.6.1.2.1.2.2.1.3"
	oidIfPhysAddress = ".1.3.6.1.2.1.2.2.1.6"
	oidIfAdminStatus = ".1.3.6.1.2.1.2.2.1.7"
	oidIfOperStatus  = ".1.3.6.1.2.1.2.2.1.8"

	oidIfName          = ".1.3.6.1.2.1.31.1.1.1.1"
	oidIfHCInOctets    = ".1.3.6.1.2.1.31.1.1.1.6"
	oidIfHCInUcastPkts = ".1.3.6.1.2.1.31.1.1.1.7"
	oidIfHCOutOctets   = ".1.3.6.1.2.1.31.1.1.1.10"
	oidIfHCOutUcastPkt = ".1.3.6.1.2.1.31.1.1.1.11"

	oidIPAddrTable    = ".1.3.6.1.2.1.4.20.1"
	oidIPAdEntAddr    = ".1.3.6.1.2.1.4.20.1.1"
	oidIPAdEntIfIndex = ".1.3.6.1.2.1.4.20.1.2"
	oidIPAdEntNetMask = ".1.3.6.1.2.1.4.20.1.3"

	oidIPRouteTable   = ".1.3.6.1.2.1.4.21.1"
	oidIPRouteDest    = ".1.3.6.1.2.1.4.21.1.1"
	oidIPRouteIfIndex = ".1.3.6.1.2.1.4.21.1.2"
	oidIPRouteNextHop = ".1.3.6.1.2.1.4.21.1.7"
	oidIPRouteMask    = ".1.3.6.1.2.1.4.21.1.11"

	oidHrProcessorLoad   = ".1.3.6.1.2.1.25.3.3.1.2"
	oidHrStorageTable    = ".1.3.6.1.2.1.25.2.3.1"
	oidHrStorageType     = ".1.3.6.1.2.1.25.2.3.1.2"
	oidHrStorageUnits    = ".1.3.6.1.2.1.25.2.3.1.4"
	oidHrStorageSize     = ".1.3.6.1.2.1.25.2.3.1.5"
	oidHrStorageUsed     = ".1.3.6.1.2.1.25.2.3.1.6"
	oidHrStorageRAM      = ".1.3.6.1.2.1.25.2.1.2"
	oidHrStorageFixedDsk = ".1.3.6.1.2.1.25.2.1.4"
)

const (
	ifStatusUp   = 1
	ifStatusDown = 2
)

type snmpConn interface {
	Get(oids []string) (*gosnmp.SnmpPacket, error)
	BulkWalkAll(rootOid string) ([]gosnmp.SnmpPDU, error)
}

type snmpDialFunc func(ctx context.Context, target Target) (snmpConn, func() error, error)

func dialSNMP(ctx context.Context, target Target) (snmpConn, func() error, error) {
	client := &gosnmp.GoSNMP{
		Context:            ctx,
		Target:             target.Host,
		Port:               uint16(target.Port), //nolint:gosec // validated to 1..65535
		Transport:          "udp",
		Version:            gosnmp.Version3,
		Timeout:            target.timeout(),
		Retries:            1,
		MaxOids:            gosnmp.MaxOids,
		MaxRepetitions:     10,
		ExponentialTimeout: true,
		SecurityModel:      gosnmp.UserSecurityModel,
		MsgFlags:           gosnmp.AuthNoPriv,
		SecurityParameters: &gosnmp.UsmSecurityParameters{
			UserName:                 target.Username,
			AuthenticationProtocol:   gosnmp.SHA,
			AuthenticationPassphrase: target.Password,
		},
	}

	if err := client.Connect(); err != nil {
		return nil, nil, err
	}

	return client, client.Conn.Close, nil
}

// SNMPClient opens SNMPv3 (authNoPriv, SHA) sessions and answers the
// RouterOS-style command set from MIB-II and HOST-RESOURCES-MIB. Commands
// with no SNMP equivalent return no records.
type SNMPClient struct {
	dial   snmpDialFunc
	now    func() time.Time
	logger logger.Logger
}

var _ Client = (*SNMPClient)(nil)

// NewSNMPClient returns an SNMPv3 client.
func NewSNMPClient(log logger.Logger) *SNMPClient {
	return &SNMPClient{
		dial:   dialSNMP,
		now:    time.Now,
		logger: log,
	}
}

// Open connects and reads sysName to confirm the agent answers with the
// supplied credentials.
func (c *SNMPClient) Open(ctx context.Context, target Target) (Session, error) {
	conn, closeFn, err := c.dial(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("snmp connect %s: %w", target.Address(), err)
	}

	if _, err := conn.Get([]string{oidSysName}); err != nil {
		_ = closeFn()

		return nil, fmt.Errorf("snmp probe %s: %w", target.Address(), err)
	}

	c.logger.Debug().Str("address", target.Address()).Msg("SNMP session opened")

	return &snmpSession{
		conn:     conn,
		close:    closeFn,
		now:      c.now,
		ifIndex:  make(map[string]string),
		counters: make(map[string]counterSample),
	}, nil
}

type counterSample struct {
	at                    time.Time
	inOctets, outOctets   uint64
	inPackets, outPackets uint64
}

type snmpSession struct {
	mu       sync.Mutex
	conn     snmpConn
	close    func() error
	now      func() time.Time
	closed   bool
	ifIndex  map[string]string
	counters map[string]counterSample
}

func (s *snmpSession) Query(ctx context.Context, command string, params ...string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		records []Record
		err     error
	)

	switch command {
	case "/system/identity/print":
		records, err = s.identity()
	case "/system/resource/print":
		records, err = s.resource()
	case "/interface/print":
		records, err = s.interfaces()
	case "/interface/monitor-traffic":
		records, err = s.monitorTraffic(params)
	case "/ip/address/print":
		records, err = s.addresses()
	case "/ip/route/print":
		records, err = s.routes()
	default:
		return []Record{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("%s: %w", command, err)
	}

	return records, nil
}

func (s *snmpSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true

	return s.close()
}

func (s *snmpSession) identity() ([]Record, error) {
	pkt, err := s.conn.Get([]string{oidSysName})
	if err != nil {
		return nil, err
	}

	var name string
	for _, v := range pkt.Variables {
		name = pduString(v)
	}

	return []Record{NewRecord("name", name)}, nil
}

func (s *snmpSession) resource() ([]Record, error) {
	pkt, err := s.conn.Get([]string{oidSysDescr, oidSysUpTime})
	if err != nil {
		return nil, err
	}

	rec := Record{}

	for _, v := range pkt.Variables {
		switch v.Name {
		case oidSysDescr:
			descr := pduString(v)
			rec = append(rec, Pair{Key: "version", Value: descr}, Pair{Key: "board-name", Value: descr})
		case oidSysUpTime:
			ticks := gosnmp.ToBigInt(v.Value).Int64()
			rec = append(rec, Pair{Key: "uptime", Value: (time.Duration(ticks) * 10 * time.Millisecond).String()})
		}
	}

	loads, err := s.conn.BulkWalkAll(oidHrProcessorLoad)
	if err != nil {
		return nil, err
	}

	if len(loads) > 0 {
		var sum int64
		for _, v := range loads {
			sum += gosnmp.ToBigInt(v.Value).Int64()
		}

		rec = append(rec,
			Pair{Key: "cpu-load", Value: strconv.FormatInt(sum/int64(len(loads)), 10)},
			Pair{Key: "cpu-count", Value: strconv.Itoa(len(loads))},
		)
	}

	storage, err := s.conn.BulkWalkAll(oidHrStorageTable)
	if err != nil {
		return nil, err
	}

	rec = append(rec, storagePairs(storage)...)

	return []Record{rec}, nil
}

func storagePairs(pdus []gosnmp.SnmpPDU) []Pair {
	types := column(pdus, oidHrStorageType)
	units := column(pdus, oidHrStorageUnits)
	sizes := column(pdus, oidHrStorageSize)
	used := column(pdus, oidHrStorageUsed)

	var memTotal, memUsed, diskTotal, diskUsed int64

	for idx, t := range types {
		unit := gosnmp.ToBigInt(units[idx].Value).Int64()
		total := gosnmp.ToBigInt(sizes[idx].Value).Int64() * unit
		inUse := gosnmp.ToBigInt(used[idx].Value).Int64() * unit

		switch pduString(t) {
		case oidHrStorageRAM:
			memTotal += total
			memUsed += inUse
		case oidHrStorageFixedDsk:
			diskTotal += total
			diskUsed += inUse
		}
	}

	return []Pair{
		{Key: "total-memory", Value: strconv.FormatInt(memTotal, 10)},
		{Key: "free-memory", Value: strconv.FormatInt(memTotal-memUsed, 10)},
		{Key: "total-hdd-space", Value: strconv.FormatInt(diskTotal, 10)},
		{Key: "free-hdd-space", Value: strconv.FormatInt(diskTotal-diskUsed, 10)},
	}
}

func (s *snmpSession) interfaces() ([]Record, error) {
	table, err := s.conn.BulkWalkAll(oidIfTable)
	if err != nil {
		return nil, err
	}

	names, err := s.conn.BulkWalkAll(oidIfName)
	if err != nil {
		return nil, err
	}

	descr := column(table, oidIfDescr)
	ifTypes := column(table, oidIfType)
	phys := column(table, oidIfPhysAddress)
	admin := column(table, oidIfAdminStatus)
	oper := column(table, oidIfOperStatus)
	ifNames := column(names, oidIfName)

	out := make([]Record, 0, len(descr))

	for _, idx := range sortedIndexes(descr) {
		name := pduString(descr[idx])
		if n, ok := ifNames[idx]; ok && pduString(n) != "" {
			name = pduString(n)
		}

		s.ifIndex[name] = idx

		out = append(out, NewRecord(
			".id", idx,
			"name", name,
			"type", strconv.FormatInt(gosnmp.ToBigInt(ifTypes[idx].Value).Int64(), 10),
			"mac-address", formatMAC(phys[idx]),
			"running", strconv.FormatBool(gosnmp.ToBigInt(oper[idx].Value).Int64() == ifStatusUp),
			"disabled", strconv.FormatBool(gosnmp.ToBigInt(admin[idx].Value).Int64() == ifStatusDown),
		))
	}

	return out, nil
}

func (s *snmpSession) monitorTraffic(params []string) ([]Record, error) {
	name, _ := ParamValue(params, "interface")

	idx, ok := s.ifIndex[name]
	if !ok {
		return []Record{}, nil
	}

	pkt, err := s.conn.Get([]string{
		oidIfHCInOctets + "." + idx,
		oidIfHCOutOctets + "." + idx,
		oidIfHCInUcastPkts + "." + idx,
		oidIfHCOutUcastPkt + "." + idx,
	})
	if err != nil {
		return nil, err
	}

	cur := counterSample{at: s.now()}

	for _, v := range pkt.Variables {
		val := gosnmp.ToBigInt(v.Value).Uint64()

		switch strings.TrimSuffix(v.Name, "."+idx) {
		case oidIfHCInOctets:
			cur.inOctets = val
		case oidIfHCOutOctets:
			cur.outOctets = val
		case oidIfHCInUcastPkts:
			cur.inPackets = val
		case oidIfHCOutUcastPkt:
			cur.outPackets = val
		}
	}

	prev, seen := s.counters[idx]
	s.counters[idx] = cur

	var rxBits, txBits, rxPkts, txPkts uint64

	if seen {
		secs := cur.at.Sub(prev.at).Seconds()
		rxBits = counterRate(prev.inOctets, cur.inOctets, secs) * 8
		txBits = counterRate(prev.outOctets, cur.outOctets, secs) * 8
		rxPkts = counterRate(prev.inPackets, cur.inPackets, secs)
		txPkts = counterRate(prev.outPackets, cur.outPackets, secs)
	}

	return []Record{NewRecord(
		"name", name,
		"rx-bits-per-second", strconv.FormatUint(rxBits, 10),
		"tx-bits-per-second", strconv.FormatUint(txBits, 10),
		"rx-packets-per-second", strconv.FormatUint(rxPkts, 10),
		"tx-packets-per-second", strconv.FormatUint(txPkts, 10),
	)}, nil
}

// counterRate returns the per-second increase, or 0 when the counter went
// backwards or no time elapsed.
func counterRate(prev, cur uint64, secs float64) uint64 {
	if cur < prev || secs <= 0 {
		return 0
	}

	return uint64(float64(cur-prev) / secs)
}

func (s *snmpSession) addresses() ([]Record, error) {
	table, err := s.conn.BulkWalkAll(oidIPAddrTable)
	if err != nil {
		return nil, err
	}

	names := make(map[string]string, len(s.ifIndex))
	for name, idx := range s.ifIndex {
		names[idx] = name
	}

	addrs := column(table, oidIPAdEntAddr)
	ifIdx := column(table, oidIPAdEntIfIndex)
	masks := column(table, oidIPAdEntNetMask)

	out := make([]Record, 0, len(addrs))

	for _, key := range sortedIndexes(addrs) {
		addr := pduString(addrs[key])
		if ones, ok := maskBits(pduString(masks[key])); ok {
			addr = addr + "/" + strconv.Itoa(ones)
		}

		index := strconv.FormatInt(gosnmp.ToBigInt(ifIdx[key].Value).Int64(), 10)
		iface := names[index]

		if iface == "" {
			iface = index
		}

		out = append(out, NewRecord("address", addr, "interface", iface))
	}

	return out, nil
}

func (s *snmpSession) routes() ([]Record, error) {
	table, err := s.conn.BulkWalkAll(oidIPRouteTable)
	if err != nil {
		return nil, err
	}

	dests := column(table, oidIPRouteDest)
	hops := column(table, oidIPRouteNextHop)
	masks := column(table, oidIPRouteMask)
	ifIdx := column(table, oidIPRouteIfIndex)

	out := make([]Record, 0, len(dests))

	for _, key := range sortedIndexes(dests) {
		dst := pduString(dests[key])
		if ones, ok := maskBits(pduString(masks[key])); ok {
			dst = dst + "/" + strconv.Itoa(ones)
		}

		out = append(out, NewRecord(
			"dst", dst,
			"gateway", pduString(hops[key]),
			"interface", strconv.FormatInt(gosnmp.ToBigInt(ifIdx[key].Value).Int64(), 10),
		))
	}

	return out, nil
}

// column returns the rows of one table column keyed by the OID suffix.
func column(pdus []gosnmp.SnmpPDU, colOID string) map[string]gosnmp.SnmpPDU {
	prefix := colOID + "."
	out := make(map[string]gosnmp.SnmpPDU)

	for _, pdu := range pdus {
		name := pdu.Name
		if !strings.HasPrefix(name, ".") {
			name = "." + name
		}

		if strings.HasPrefix(name, prefix) {
			out[strings.TrimPrefix(name, prefix)] = pdu
		}
	}

	return out
}

// sortedIndexes orders OID suffixes numerically component by component.
func sortedIndexes(rows map[string]gosnmp.SnmpPDU) []string {
	keys := make([]string, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}

	slices.SortFunc(keys, compareOIDSuffix)

	return keys
}

func compareOIDSuffix(a, b string) int {
	pa, pb := strings.Split(a, "."), strings.Split(b, ".")

	for i := 0; i < len(pa) && i < len(pb); i++ {
		na, _ := strconv.Atoi(pa[i])
		nb, _ := strconv.Atoi(pb[i])

		if c := cmp.Compare(na, nb); c != 0 {
			return c
		}
	}

	return cmp.Compare(len(pa), len(pb))
}

func pduString(pdu gosnmp.SnmpPDU) string {
	switch v := pdu.Value.(type) {
	case []byte:
		return string(v)
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func formatMAC(pdu gosnmp.SnmpPDU) string {
	b, ok := pdu.Value.([]byte)
	if !ok || len(b) == 0 {
		return ""
	}

	return strings.ToUpper(net.HardwareAddr(b).String())
}

func maskBits(mask string) (int, bool) {
	ip := net.ParseIP(mask).To4()
	if ip == nil {
		return 0, false
	}

	ones, bits := net.IPMask(ip).Size()
	if bits == 0 {
		return 0, false
	}

	return ones, true
}
