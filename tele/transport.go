package tele

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io/ioutil"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"

	"furnace-agent/helpers"
	"furnace-agent/log2"
	tele_config "furnace-agent/tele/config"
)

const (
	defaultNetworkTimeout = 10 * time.Second
	defaultKeepalive      = 15 * time.Second
)

var ErrNotConnected = fmt.Errorf("transport is not connected")

// Transporter is the pub/sub wire. Connect is a single bounded attempt;
// retry policy lives in Session, not here.
type Transporter interface {
	Init(log *log2.Log, cfg tele_config.Config, onPong func(payload []byte)) error
	Connect() error
	IsConnected() bool
	Publish(topic string, payload []byte) error
	Disconnect()
	Close()
}

type transportMqtt struct {
	log    *log2.Log
	m      mqtt.Client
	cfg    tele_config.Config
	onPong func([]byte)

	networkTimeout time.Duration
	connectTimeout time.Duration
}

func (self *transportMqtt) Init(log *log2.Log, cfg tele_config.Config, onPong func([]byte)) error {
	self.log = log
	self.cfg = cfg
	self.onPong = onPong

	mqttLog := log.Clone(log2.LInfo)
	mqtt.CRITICAL = mqttLog
	mqtt.ERROR = mqttLog
	mqtt.WARN = mqttLog
	if cfg.MqttLogDebug {
		mqtt.DEBUG = log.Clone(log2.LDebug)
	}

	self.networkTimeout = helpers.IntSecondDefault(cfg.NetworkTimeoutSec, defaultNetworkTimeout)
	self.connectTimeout = self.networkTimeout
	keepalive := helpers.IntSecondDefault(cfg.KeepaliveSec, defaultKeepalive)

	defaultHandler := func(_ mqtt.Client, msg mqtt.Message) {
		self.log.Errorf("unexpected mqtt message topic=%s payload=%x", msg.Topic(), msg.Payload())
	}

	tlsconf := new(tls.Config)
	if cfg.TlsCaFile != "" {
		tlsconf.RootCAs = x509.NewCertPool()
		cabytes, err := ioutil.ReadFile(cfg.TlsCaFile)
		if err != nil {
			return errors.Annotatef(err, "tls_ca_file=%s", cfg.TlsCaFile)
		}
		tlsconf.RootCAs.AppendCertsFromPEM(cabytes)
	}

	credFun := func() (string, string) {
		return cfg.DeviceName, cfg.MqttPassword
	}

	mopt := mqtt.NewClientOptions().
		AddBroker(cfg.MqttBroker).
		SetAutoReconnect(false). // reconnect policy belongs to Session
		SetCleanSession(true).
		SetClientID(cfg.DeviceName).
		SetConnectTimeout(self.connectTimeout).
		SetCredentialsProvider(credFun).
		SetDefaultPublishHandler(defaultHandler).
		SetKeepAlive(keepalive).
		SetPingTimeout(self.networkTimeout).
		SetTLSConfig(tlsconf).
		SetWriteTimeout(self.networkTimeout)
	mopt.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		self.log.Errorf("tele: connection lost err=%v", err)
	})
	self.m = mqtt.NewClient(mopt)
	return nil
}

func (self *transportMqtt) Connect() error {
	t := self.m.Connect()
	if err := self.tokenWait(t, self.connectTimeout, "connect"); err != nil {
		return err
	}
	st := self.m.Subscribe(self.cfg.TopicPong, 0, func(_ mqtt.Client, msg mqtt.Message) {
		if self.onPong != nil {
			self.onPong(msg.Payload())
		}
	})
	if err := self.tokenWait(st, self.networkTimeout, "subscribe:"+self.cfg.TopicPong); err != nil {
		self.Disconnect()
		return err
	}
	return nil
}

func (self *transportMqtt) IsConnected() bool { return self.m.IsConnected() }

func (self *transportMqtt) Publish(topic string, payload []byte) error {
	t := self.m.Publish(topic, 0, false, payload)
	return self.tokenWait(t, self.networkTimeout, "publish:"+topic)
}

func (self *transportMqtt) Disconnect() {
	self.m.Disconnect(uint(250))
}

func (self *transportMqtt) Close() { self.Disconnect() }

func (self *transportMqtt) tokenWait(t mqtt.Token, timeout time.Duration, tag string) error {
	if !t.WaitTimeout(timeout) {
		err := errors.Timeoutf("mqtt %s", tag)
		self.log.Errorf("tele: %s", err.Error())
		return err
	}
	if err := t.Error(); err != nil {
		err = errors.Annotate(err, tag)
		self.log.Errorf("tele: mqtt %s", err.Error())
		return err
	}
	return nil
}

// noopTransport swallows everything, used when tele is disabled in config.
type noopTransport struct{}

func (noopTransport) Init(*log2.Log, tele_config.Config, func([]byte)) error { return nil }
func (noopTransport) Connect() error                                         { return nil }
func (noopTransport) IsConnected() bool                                      { return true }
func (noopTransport) Publish(string, []byte) error                           { return nil }
func (noopTransport) Disconnect()                                            {}
func (noopTransport) Close()                                                 {}
