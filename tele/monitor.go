package tele

import (
	"strconv"
	"sync"
	"time"

	"github.com/juju/errors"
	atomic_clock "github.com/temoto/atomic_clock"

	"furnace-agent/log2"
	tele_config "furnace-agent/tele/config"
)

const (
	// probe declared lost after this long without a pong
	ProbeTimeout = 5 * time.Second
	// consecutive lost probes before the session is torn down
	ProbeFailureLimit = 3
)

// probe is the ping/pong round-trip state. One outstanding probe at a
// time. Guarded by its own lock because pongs arrive on the transport's
// receive goroutine.
type probe struct {
	mu       sync.Mutex
	sentAt   atomic_clock.Clock
	awaiting bool
	failures int
}

// Monitor tracks link health: radio signal, connection-state
// transitions, uptime, and transport round-trip latency. Tick runs
// every 5 seconds from the acquisition task; pongs arrive asynchronously.
type Monitor struct {
	log     *log2.Log
	session *Session
	stat    *NetStat
	radio   Radio
	cfg     tele_config.Config

	probe        probe
	probeTimeout time.Duration // ProbeTimeout, shortened in tests
	lastState    ConnState
	radioUp      bool
	radioSeen    bool
	connectedAt  atomic_clock.Clock

	buf     []byte // reused serialization buffer, not shared
	pingBuf []byte
}

func NewMonitor(log *log2.Log, session *Session, stat *NetStat, radio Radio, cfg tele_config.Config) *Monitor {
	m := &Monitor{
		log:     log,
		session: session,
		stat:    stat,
		radio:   radio,
		cfg:     cfg,
		buf:     make([]byte, 0, 512),
		pingBuf: make([]byte, 0, 32),

		probeTimeout: ProbeTimeout,
	}
	session.SetOnConnect(m.onTransportConnect)
	return m
}

// Tick is the 5 second publish cycle: sample radio, record state
// transitions, publish a metrics snapshot, drive the latency probe.
func (m *Monitor) Tick() {
	rssi, up, radioErr := m.radio.Signal()
	if radioErr != nil {
		m.log.Debugf("monitor: radio err=%v", radioErr)
	}

	next := m.classify(radioErr, up)
	if next != m.lastState {
		m.log.Infof("monitor: connection state %s -> %s", m.lastState, next)
		if next == StateConnected {
			m.connectedAt.SetNow()
		}
		m.stat.Modify(func(nm *NetworkMetrics) {
			nm.ConnState = next
			nm.StateChangeCount++
		})
		m.lastState = next
	}
	if radioErr == nil {
		if up && m.radioSeen && !m.radioUp {
			m.stat.Modify(func(nm *NetworkMetrics) { nm.RadioReconnectCount++ })
		}
		m.radioUp = up
		m.radioSeen = true
	}

	var uptime int64
	if m.lastState == StateConnected {
		uptime = int64(atomic_clock.Since(&m.connectedAt) / time.Millisecond)
	}
	m.stat.Modify(func(nm *NetworkMetrics) {
		nm.RSSI = int32(rssi)
		nm.ConnectionUptimeMs = uptime
	})

	// snapshot under lock, serialize and publish outside it
	snap := m.stat.Snapshot()
	m.buf = snap.AppendJSON(m.buf[:0])
	if err := m.session.Publish(m.cfg.TopicMetrics, m.buf); err != nil {
		m.log.Debugf("monitor: metrics publish err=%v", err)
	}

	m.probeTick()
}

func (m *Monitor) classify(radioErr error, radioUp bool) ConnState {
	switch {
	case radioErr != nil:
		return StateNoRadio
	case !radioUp:
		return StateDisconnected
	case m.session.IsConnected():
		return StateConnected
	case m.session.LastConnectFailed():
		return StateConnectFailed
	case m.lastState == StateConnected || m.lastState == StateConnectionLost:
		return StateConnectionLost
	default:
		return StateDisconnected
	}
}

// probeTick expires a stale probe, escalates repeated failures into a
// forced reconnect, and issues the next probe when the slot is free.
func (m *Monitor) probeTick() {
	m.probe.mu.Lock()
	if m.probe.awaiting && atomic_clock.Since(&m.probe.sentAt) > m.probeTimeout {
		m.probe.awaiting = false
		m.probe.failures++
		failures := m.probe.failures
		m.probe.mu.Unlock()

		m.log.Errorf("monitor: probe timeout consecutive=%d", failures)
		m.stat.Modify(func(nm *NetworkMetrics) { nm.LastLatencyMs = LatencyUnknown })
		if failures >= ProbeFailureLimit && m.session.IsConnected() {
			m.session.ForceReconnect(errors.Errorf("%d consecutive probe timeouts", failures))
			return
		}
		m.probe.mu.Lock()
	}

	if m.probe.awaiting || !m.session.IsConnected() {
		m.probe.mu.Unlock()
		return
	}
	m.probe.mu.Unlock()

	nowMs := time.Now().UnixNano() / int64(time.Millisecond)
	m.pingBuf = appendPingJSON(m.pingBuf[:0], nowMs)
	if err := m.session.Publish(m.cfg.TopicPing, m.pingBuf); err != nil {
		m.log.Debugf("monitor: ping publish err=%v", err)
		return
	}
	m.probe.mu.Lock()
	m.probe.sentAt.SetNow()
	m.probe.awaiting = true
	m.probe.mu.Unlock()
}

// onPong correlates any payload on the pong topic to the outstanding
// probe. Called from the transport receive path.
func (m *Monitor) onPong(payload []byte) {
	m.probe.mu.Lock()
	if !m.probe.awaiting {
		m.probe.mu.Unlock()
		m.log.Debugf("monitor: pong with no probe outstanding payload=%x", payload)
		return
	}
	latency := int64(atomic_clock.Since(&m.probe.sentAt) / time.Millisecond)
	m.probe.awaiting = false
	m.probe.failures = 0
	m.probe.mu.Unlock()

	m.stat.Modify(func(nm *NetworkMetrics) { nm.LastLatencyMs = latency })
	m.log.Debugf("monitor: probe latency=%dms", latency)
}

func (m *Monitor) onTransportConnect() {
	m.probe.mu.Lock()
	m.probe.failures = 0
	m.probe.awaiting = false
	m.probe.mu.Unlock()
}

// ProbeFailures is test/diagnostic visibility into the probe state.
func (m *Monitor) ProbeFailures() int {
	m.probe.mu.Lock()
	defer m.probe.mu.Unlock()
	return m.probe.failures
}

func appendPingJSON(buf []byte, sendTimeMs int64) []byte {
	buf = append(buf, `{"ping":`...)
	buf = strconv.AppendInt(buf, sendTimeMs, 10)
	buf = append(buf, '}')
	return buf
}
