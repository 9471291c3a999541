// Package tele is the telemetry side of the agent: a persistent MQTT
// session with explicit reconnect policy, the shared link-health
// metrics store, the connectivity monitor and the latency probe.
//
// Contract:
// - Init fails only on invalid config, network issues are absorbed
// - nothing here ever blocks the caller beyond a bounded network timeout
// - metrics are best-effort eventually-consistent snapshots
package tele

import (
	"github.com/juju/errors"

	"furnace-agent/log2"
	tele_config "furnace-agent/tele/config"
)

type Tele struct {
	Stat    *NetStat
	Session *Session
	Monitor *Monitor

	log       *log2.Log
	transport Transporter // test code presets this
	radio     Radio       // test code presets this
	enabled   bool
}

func New() *Tele { return &Tele{Stat: NewNetStat()} }

// NewWithMocks wires a preset transport and radio, for tests.
func NewWithMocks(tr Transporter, radio Radio) *Tele {
	return &Tele{Stat: NewNetStat(), transport: tr, radio: radio}
}

func (t *Tele) Init(log *log2.Log, cfg tele_config.Config) error {
	cfg.Normalize()
	t.enabled = cfg.Enabled
	t.log = log.Clone(log2.LInfo)
	if cfg.LogDebug {
		t.log.SetLevel(log2.LDebug)
	}

	if t.transport == nil { // production path
		if !t.enabled {
			t.transport = noopTransport{}
		} else {
			if cfg.MqttBroker == "" {
				return errors.NotValidf("tele enabled with mqtt_broker=empty")
			}
			t.transport = &transportMqtt{}
		}
	}
	if t.radio == nil {
		t.radio = NewWirelessRadio(cfg.RadioInterface)
	}

	t.Session = NewSession(t.log, t.transport, t.Stat, cfg)
	t.Monitor = NewMonitor(t.log, t.Session, t.Stat, t.radio, cfg)
	if err := t.transport.Init(t.log, cfg, t.Monitor.onPong); err != nil {
		return errors.Annotate(err, "tele transport")
	}
	return nil
}

func (t *Tele) Close() {
	if t.transport != nil {
		t.transport.Close()
	}
}
