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

package models

import "time"

// Snapshot is one complete telemetry reading of a device. It is not
// modified after the collector returns it.
type Snapshot struct {
	System      SystemInfo      `json:"system"`
	Interfaces  []InterfaceStat `json:"interfaces"`
	Security    SecurityInfo    `json:"security"`
	Network     NetworkInfo     `json:"network"`
	Queues      []Queue         `json:"queues"`
	QueueTree   []QueueTreeItem `json:"queueTree"`
	CollectedAt time.Time       `json:"collectedAt"`
}

// SystemInfo carries device resource and identity values.
type SystemInfo struct {
	Identity               string   `json:"identity"`
	Version                string   `json:"version"`
	Uptime                 string   `json:"uptime"`
	CPULoad                float64  `json:"cpuLoad"`
	FreeMemory             int64    `json:"freeMemory"`
	TotalMemory            int64    `json:"totalMemory"`
	FreeDisk               int64    `json:"freeDisk"`
	TotalDisk              int64    `json:"totalDisk"`
	Temperature            *float64 `json:"temperature"`
	BoardName              string   `json:"boardName"`
	ArchitectureName       string   `json:"architectureName"`
	SerialNumber           string   `json:"serialNumber"`
	FactorySoftwareVersion string   `json:"factorySoftwareVersion"`
	Platform               string   `json:"platform"`
	BoardType              string   `json:"boardType"`
	CPUFrequency           int64    `json:"cpuFrequency"`
	CPUCount               int64    `json:"cpuCount"`
}

// MemoryUsedPercent returns used memory as a percentage. ok is false when
// the total is unknown.
func (s *SystemInfo) MemoryUsedPercent() (pct float64, ok bool) {
	if s.TotalMemory <= 0 {
		return 0, false
	}

	return float64(s.TotalMemory-s.FreeMemory) / float64(s.TotalMemory) * 100, true
}

// InterfaceStat is one interface with its sampled traffic rates.
type InterfaceStat struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Type               string `json:"type"`
	Running            bool   `json:"running"`
	Disabled           bool   `json:"disabled"`
	MACAddress         string `json:"macAddress"`
	IPAddress          string `json:"ipAddress"`
	RxBitsPerSecond    int64  `json:"rxBitsPerSecond"`
	TxBitsPerSecond    int64  `json:"txBitsPerSecond"`
	RxPacketsPerSecond int64  `json:"rxPacketsPerSecond"`
	TxPacketsPerSecond int64  `json:"txPacketsPerSecond"`
}

// SecurityInfo aggregates firewall state.
type SecurityInfo struct {
	FirewallRules     []FirewallRule `json:"firewallRules"`
	ActiveConnections int            `json:"activeConnections"`
	DHCPLeases        int            `json:"dhcpLeases"`
	BlockedIPsCount   int            `json:"blockedIpsCount"`
}

// FirewallRule is an entry of the filter table.
type FirewallRule struct {
	ID         string `json:"id"`
	Chain      string `json:"chain"`
	Action     string `json:"action"`
	Protocol   string `json:"protocol"`
	SrcAddress string `json:"srcAddress"`
	DstPort    string `json:"dstPort"`
	Comment    string `json:"comment"`
	Disabled   bool   `json:"disabled"`
}

// NetworkInfo aggregates addressing, routing and lease data.
type NetworkInfo struct {
	DHCPLeases        []DHCPLease        `json:"dhcpLeases"`
	ActiveConnections []ActiveConnection `json:"activeConnections"`
	Address           string             `json:"address"`
	Gateway           string             `json:"gateway"`
	DNS               string             `json:"dns"`
	Interface         string             `json:"interface"`
	Status            string             `json:"status"`
}

// DHCPLease is a DHCP server lease.
type DHCPLease struct {
	Address    string `json:"address"`
	MACAddress string `json:"macAddress"`
	HostName   string `json:"hostName"`
	Status     string `json:"status"`
}

// ActiveConnection is a connection tracking entry.
type ActiveConnection struct {
	SrcAddress string `json:"srcAddress"`
	DstAddress string `json:"dstAddress"`
	Protocol   string `json:"protocol"`
	State      string `json:"state"`
	Timeout    string `json:"timeout"`
}

// Queue is a simple queue.
type Queue struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Target   string `json:"target"`
	Rate     string `json:"rate"`
	MaxLimit string `json:"maxLimit"`
	Comment  string `json:"comment"`
	Disabled bool   `json:"disabled"`
}

// QueueTreeItem is a queue tree entry.
type QueueTreeItem struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Parent     string `json:"parent"`
	PacketMark string `json:"packetMark"`
	Rate       string `json:"rate"`
	MaxLimit   string `json:"maxLimit"`
	Comment    string `json:"comment"`
	Disabled   bool   `json:"disabled"`
}

// CollectResult is the outcome of one collection attempt for a device.
// Exactly one of Snapshot and Err is set.
type CollectResult struct {
	DeviceID   string
	DeviceName string
	Snapshot   *Snapshot
	Err        error
	Timestamp  time.Time
}

// OK reports whether the collection produced a snapshot.
func (r CollectResult) OK() bool {
	return r.Err == nil && r.Snapshot != nil
}
