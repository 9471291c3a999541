package tele

import (
	"time"

	"github.com/juju/errors"
	atomic_clock "github.com/temoto/atomic_clock"

	"furnace-agent/helpers"
	"furnace-agent/log2"
	tele_config "furnace-agent/tele/config"
)

const defaultConnectCooldown = 5 * time.Second

// Session drives the reconnect state machine over a Transporter:
// DISCONNECTED -> CONNECTING -> CONNECTED -> (failure) -> DISCONNECTED.
// Connect attempts are throttled by a cooldown so a dead broker is not
// hammered. Only one goroutine (the acquisition task) calls into
// EnsureConnected/Publish; NetStat carries the cross-task state.
type Session struct {
	log  *log2.Log
	tr   Transporter
	stat *NetStat

	cooldown    time.Duration
	lastAttempt atomic_clock.Clock
	lastFailed  bool

	// invoked after every successful (re)connect; Monitor hooks probe
	// failure reset here
	onConnect func()
}

func NewSession(log *log2.Log, tr Transporter, stat *NetStat, cfg tele_config.Config) *Session {
	return &Session{
		log:      log,
		tr:       tr,
		stat:     stat,
		cooldown: helpers.IntSecondDefault(cfg.ConnectCooldownSec, defaultConnectCooldown),
	}
}

func (s *Session) SetOnConnect(f func()) { s.onConnect = f }

func (s *Session) IsConnected() bool { return s.tr.IsConnected() }

// LastConnectFailed reports whether the most recent connect attempt
// ended in error; Monitor maps it to CONNECT_FAILED.
func (s *Session) LastConnectFailed() bool { return s.lastFailed }

// EnsureConnected returns true when the transport is usable. A failed
// or throttled attempt returns false immediately; the caller skips
// publishing this cycle instead of blocking on network state.
func (s *Session) EnsureConnected() bool {
	if s.tr.IsConnected() {
		return true
	}
	if !s.lastAttempt.IsZero() && atomic_clock.Since(&s.lastAttempt) < s.cooldown {
		return false
	}
	s.lastAttempt.SetNow()
	s.log.Debugf("tele: connecting")
	if err := s.tr.Connect(); err != nil {
		s.lastFailed = true
		s.log.Errorf("tele: connect err=%v", err)
		return false
	}
	s.lastFailed = false
	s.stat.Modify(func(m *NetworkMetrics) {
		m.TransportReconnectCount++
		m.LastConnectTimeMs = time.Now().UnixNano() / int64(time.Millisecond)
	})
	if s.onConnect != nil {
		s.onConnect()
	}
	s.log.Infof("tele: connected")
	return true
}

// Publish counts every attempt in packets_sent and failures additionally
// in packets_lost, so loss rate is failures over attempts. A failed
// publish tears the transport down; the next cycle reconnects under
// cooldown.
func (s *Session) Publish(topic string, payload []byte) error {
	if !s.tr.IsConnected() {
		return ErrNotConnected
	}
	err := s.tr.Publish(topic, payload)
	s.stat.Modify(func(m *NetworkMetrics) {
		m.PacketsSent++
		if err != nil {
			m.PacketsLost++
		}
	})
	if err != nil {
		s.tr.Disconnect()
		return errors.Annotatef(err, "publish topic=%s", topic)
	}
	return nil
}

// ForceReconnect tears down a connection that claims healthy but drops
// traffic (repeated probe timeouts). Reconnect happens on the next
// EnsureConnected, subject to cooldown.
func (s *Session) ForceReconnect(reason error) {
	s.log.Errorf("tele: forced reconnect reason=%v", reason)
	s.tr.Disconnect()
}
