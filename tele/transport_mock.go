package tele

import (
	"sync"

	"furnace-agent/log2"
	tele_config "furnace-agent/tele/config"
)

// TransportMock records published messages and lets tests script connect
// failures and publish errors. Lives outside _test.go so agent tests can
// reuse it.
type TransportMock struct {
	mu        sync.Mutex
	connected bool
	onPong    func([]byte)

	ConnectErr error // next Connect returns this
	PublishErr error // every Publish returns this while set

	ConnectCount int
	Published    []MockMessage
}

type MockMessage struct {
	Topic   string
	Payload string
}

func (self *TransportMock) Init(log *log2.Log, cfg tele_config.Config, onPong func([]byte)) error {
	self.onPong = onPong
	return nil
}

func (self *TransportMock) Connect() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.ConnectCount++
	if self.ConnectErr != nil {
		return self.ConnectErr
	}
	self.connected = true
	return nil
}

func (self *TransportMock) IsConnected() bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.connected
}

func (self *TransportMock) Publish(topic string, payload []byte) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.PublishErr != nil {
		return self.PublishErr
	}
	// payload buffers are reused by callers, copy now
	self.Published = append(self.Published, MockMessage{Topic: topic, Payload: string(payload)})
	return nil
}

func (self *TransportMock) Disconnect() {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.connected = false
}

func (self *TransportMock) Close() { self.Disconnect() }

// Pong injects a broker-side probe response.
func (self *TransportMock) Pong(payload []byte) {
	self.mu.Lock()
	f := self.onPong
	self.mu.Unlock()
	if f != nil {
		f(payload)
	}
}

// TopicMessages filters recorded messages by topic.
func (self *TransportMock) TopicMessages(topic string) []MockMessage {
	self.mu.Lock()
	defer self.mu.Unlock()
	out := make([]MockMessage, 0, len(self.Published))
	for _, msg := range self.Published {
		if msg.Topic == topic {
			out = append(out, msg)
		}
	}
	return out
}

// RadioMock is a scripted Radio.
type RadioMock struct {
	mu   sync.Mutex
	rssi int
	up   bool
	err  error
}

func NewRadioMock(rssi int, up bool) *RadioMock {
	return &RadioMock{rssi: rssi, up: up}
}

func (self *RadioMock) Set(rssi int, up bool, err error) {
	self.mu.Lock()
	self.rssi, self.up, self.err = rssi, up, err
	self.mu.Unlock()
}

func (self *RadioMock) Signal() (int, bool, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.rssi, self.up, self.err
}
