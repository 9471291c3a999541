package tele

import (
	"testing"
	"time"

	"github.com/256dpi/gomqtt/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"furnace-agent/log2"
	tele_config "furnace-agent/tele/config"
	"furnace-agent/tele/mqtttest"
)

// Full wire round-trip against an in-process broker: connect, publish,
// pong subscription.
func TestTransportRoundTrip(t *testing.T) {
	log := log2.NewTest(t, log2.LDebug)
	broker, err := mqtttest.NewBroker(log)
	require.NoError(t, err)
	defer broker.Close()
	broker.OnPublish = func(msg *packet.Message) {
		if msg.Topic == tele_config.DefaultTopicPing {
			broker.Publish(&packet.Message{Topic: tele_config.DefaultTopicPong, Payload: msg.Payload})
		}
	}

	cfg := tele_config.Config{
		Enabled:           true,
		DeviceName:        "test-agent",
		MqttBroker:        broker.URL(),
		KeepaliveSec:      1,
		NetworkTimeoutSec: 2,
	}
	cfg.Normalize()

	pongs := make(chan []byte, 4)
	tr := &transportMqtt{}
	require.NoError(t, tr.Init(log, cfg, func(p []byte) {
		pongs <- append([]byte(nil), p...)
	}))
	require.NoError(t, tr.Connect())
	defer tr.Close()
	require.True(t, tr.IsConnected())

	require.NoError(t, tr.Publish(cfg.TopicData, []byte(`{"furnace_temp":900.00}`)))
	assert.Eventually(t, func() bool {
		return len(broker.Received(cfg.TopicData)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, tr.Publish(cfg.TopicPing, []byte(`{"ping":1}`)))
	select {
	case p := <-pongs:
		assert.Equal(t, `{"ping":1}`, string(p))
	case <-time.After(2 * time.Second):
		t.Fatal("pong timeout")
	}
}
