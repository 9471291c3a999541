package tele

import (
	"strconv"
	"sync"
)

// ConnState mirrors the radio/transport connection flag published in
// network metrics.
type ConnState uint8

const (
	StateUnknown ConnState = iota
	StateDisconnected
	StateConnected
	StateConnectionLost
	StateConnectFailed
	StateNoRadio
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnected:
		return "CONNECTED"
	case StateConnectionLost:
		return "CONNECTION_LOST"
	case StateConnectFailed:
		return "CONNECT_FAILED"
	case StateNoRadio:
		return "NO_RADIO"
	}
	return "UNKNOWN"
}

// LatencyUnknown is stored in LastLatencyMs while no probe round-trip
// has completed. -1 keeps a genuine 0ms LAN round-trip distinguishable.
const LatencyUnknown int64 = -1

// NetworkMetrics lives for the whole process, reset only by reboot.
// All access goes through NetStat.
type NetworkMetrics struct { //nolint:maligned
	RSSI                    int32
	ConnectionUptimeMs      int64
	LastConnectTimeMs       int64
	TransportReconnectCount uint32
	RadioReconnectCount     uint32
	PacketsSent             uint32
	PacketsLost             uint32
	LastLatencyMs           int64
	ConnState               ConnState
	StateChangeCount        uint32
}

// LossPercent is packets_lost/packets_sent*100, 0 before the first send.
func (m *NetworkMetrics) LossPercent() float64 {
	if m.PacketsSent == 0 {
		return 0
	}
	return float64(m.PacketsLost) / float64(m.PacketsSent) * 100
}

// NetStat is the shared metrics store. The lock is held only for the
// field mutation or the struct copy, never across I/O.
type NetStat struct {
	mu sync.Mutex
	m  NetworkMetrics
}

func NewNetStat() *NetStat {
	return &NetStat{m: NetworkMetrics{LastLatencyMs: LatencyUnknown}}
}

// Modify runs f under the lock. f must not block.
func (s *NetStat) Modify(f func(*NetworkMetrics)) {
	s.mu.Lock()
	f(&s.m)
	s.mu.Unlock()
}

// Snapshot copies the whole struct under the lock so readers never see
// torn values.
func (s *NetStat) Snapshot() NetworkMetrics {
	s.mu.Lock()
	m := s.m
	s.mu.Unlock()
	return m
}

// AppendJSON serializes a snapshot into buf without allocating beyond
// buf's capacity. Keys are the published wire names.
func (m *NetworkMetrics) AppendJSON(buf []byte) []byte {
	buf = append(buf, `{"rssi":`...)
	buf = strconv.AppendInt(buf, int64(m.RSSI), 10)
	buf = append(buf, `,"connection_uptime_ms":`...)
	buf = strconv.AppendInt(buf, m.ConnectionUptimeMs, 10)
	buf = append(buf, `,"last_connect_time_ms":`...)
	buf = strconv.AppendInt(buf, m.LastConnectTimeMs, 10)
	buf = append(buf, `,"transport_reconnect_count":`...)
	buf = strconv.AppendUint(buf, uint64(m.TransportReconnectCount), 10)
	buf = append(buf, `,"radio_reconnect_count":`...)
	buf = strconv.AppendUint(buf, uint64(m.RadioReconnectCount), 10)
	buf = append(buf, `,"packets_sent":`...)
	buf = strconv.AppendUint(buf, uint64(m.PacketsSent), 10)
	buf = append(buf, `,"packets_lost":`...)
	buf = strconv.AppendUint(buf, uint64(m.PacketsLost), 10)
	buf = append(buf, `,"packet_loss_pct":`...)
	buf = strconv.AppendFloat(buf, m.LossPercent(), 'f', 2, 64)
	buf = append(buf, `,"last_latency_ms":`...)
	buf = strconv.AppendInt(buf, m.LastLatencyMs, 10)
	buf = append(buf, `,"connection_state":"`...)
	buf = append(buf, m.ConnState.String()...)
	buf = append(buf, `","state_change_count":`...)
	buf = strconv.AppendUint(buf, uint64(m.StateChangeCount), 10)
	buf = append(buf, '}')
	return buf
}
