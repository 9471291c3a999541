// Separate package is workaround to import cycles.
package tele_config

type Config struct { //nolint:maligned
	Enabled            bool   `hcl:"enable"`
	DeviceName         string `hcl:"device_name"`
	MqttBroker         string `hcl:"mqtt_broker"`
	MqttPassword       string `hcl:"mqtt_password"` // secret
	MqttLogDebug       bool   `hcl:"mqtt_log_debug"`
	LogDebug           bool   `hcl:"log_debug"`
	KeepaliveSec       int    `hcl:"keepalive_sec"`
	NetworkTimeoutSec  int    `hcl:"network_timeout_sec"`
	ConnectCooldownSec int    `hcl:"connect_cooldown_sec"`
	TlsCaFile          string `hcl:"tls_ca_file"`

	TopicData    string `hcl:"topic_data"`
	TopicMetrics string `hcl:"topic_metrics"`
	TopicPing    string `hcl:"topic_ping"`
	TopicPong    string `hcl:"topic_pong"`

	RadioInterface string `hcl:"radio_interface"`
}

const (
	DefaultTopicData    = "furnace/data"
	DefaultTopicMetrics = "furnace/network_metrics"
	DefaultTopicPing    = "furnace/ping"
	DefaultTopicPong    = "furnace/pong"
)

// Normalize fills topic defaults in place.
func (c *Config) Normalize() {
	if c.TopicData == "" {
		c.TopicData = DefaultTopicData
	}
	if c.TopicMetrics == "" {
		c.TopicMetrics = DefaultTopicMetrics
	}
	if c.TopicPing == "" {
		c.TopicPing = DefaultTopicPing
	}
	if c.TopicPong == "" {
		c.TopicPong = DefaultTopicPong
	}
	if c.DeviceName == "" {
		c.DeviceName = "furnace"
	}
}
