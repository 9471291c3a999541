package state

import (
	"context"
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/temoto/alive/v2"

	"furnace-agent/log2"
)

func TestReadConfig(t *testing.T) {
	t.Parallel()

	type Case struct {
		name      string
		input     string
		check     func(testing.TB, *Config)
		expectErr string
	}
	cases := []Case{
		{"empty", "", func(t testing.TB, c *Config) {
			assert.Equal(t, "furnace/data", c.Tele.TopicData)
			assert.Equal(t, "furnace/pong", c.Tele.TopicPong)
		}, ""},

		{"acquisition",
			`acquisition { interval_ms = 50 monitor_sec = 2 init_retries = 5 }`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, 50, c.Acquisition.IntervalMs)
				assert.Equal(t, 2, c.Acquisition.MonitorSec)
				assert.Equal(t, 5, c.Acquisition.InitRetries)
			}, ""},

		{"sensor", `
sensor {
	thermocouple { spi = "SPI0.0" type = "K" fault_pin_chip = "/dev/gpiochip0" fault_pin = "17" }
	flame { device = "/sys/bus/iio/devices/iio:device0" channel = 3 }
}`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, "SPI0.0", c.Sensor.Thermocouple.Spi)
				assert.Equal(t, "K", c.Sensor.Thermocouple.Type)
				assert.Equal(t, "17", c.Sensor.Thermocouple.FaultPin)
				assert.Equal(t, 3, c.Sensor.Flame.Channel)
			}, ""},

		{"tele", `
tele {
	enable = true
	device_name = "furnace-7"
	mqtt_broker = "tcp://10.0.0.1:1883"
	connect_cooldown_sec = 7
	topic_data = "site/furnace7/data"
	radio_interface = "wlan0"
}`,
			func(t testing.TB, c *Config) {
				assert.True(t, c.Tele.Enabled)
				assert.Equal(t, "furnace-7", c.Tele.DeviceName)
				assert.Equal(t, 7, c.Tele.ConnectCooldownSec)
				assert.Equal(t, "site/furnace7/data", c.Tele.TopicData)
				// unset topics still defaulted
				assert.Equal(t, "furnace/ping", c.Tele.TopicPing)
				assert.Equal(t, "wlan0", c.Tele.RadioInterface)
			}, ""},

		{"watchdog-admin-persist", `
watchdog { enable = true device = "/dev/watchdog" timeout_sec = 10 }
admin { listen = "127.0.0.1:8077" heartbeat_sec = 30 }
persist { root = "/var/lib/furnace-agent" }`,
			func(t testing.TB, c *Config) {
				assert.True(t, c.Watchdog.Enable)
				assert.Equal(t, 10, c.Watchdog.TimeoutSec)
				assert.Equal(t, "127.0.0.1:8077", c.Admin.Listen)
				assert.Equal(t, "/var/lib/furnace-agent", c.Persist.Root)
			}, ""},

		{"include-optional", `
include "interval-50" {}
include "non-exist" { optional = true }`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, 50, c.Acquisition.IntervalMs)
			}, ""},

		{"include-overwrites", `
acquisition { interval_ms = 100 }
include "interval-50" {}`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, 50, c.Acquisition.IntervalMs)
			}, ""},

		{"error-syntax", `hello`, nil, "key 'hello' expected start of object"},
		{"error-include-loop", `include "include-loop" {}`, nil, "config include loop: from=include-loop include=include-loop"},
		{"error-include-required", `include "non-exist" {}`, nil, "not found"},
	}
	mkCheck := func(c Case) func(*testing.T) {
		return func(t *testing.T) {
			log := log2.NewTest(t, log2.LDebug)
			fs := NewMockFullReader(map[string]string{
				"test-inline":  c.input,
				"interval-50":  `acquisition { interval_ms = 50 }`,
				"include-loop": `include "include-loop" {}`,
			})
			cfg, err := ReadConfig(log, fs, "test-inline")
			if c.expectErr == "" {
				if err != nil {
					t.Fatalf("error expected=nil actual='%v'", errors.ErrorStack(err))
				}
				if c.check != nil {
					c.check(t, cfg)
				}
			} else {
				if err == nil || !strings.Contains(err.Error(), c.expectErr) {
					t.Fatalf("error expected='%s' actual='%v'", c.expectErr, err)
				}
			}
		}
	}
	for _, c := range cases {
		t.Run(c.name, mkCheck(c))
	}
}

func TestGlobalInitDisabledTele(t *testing.T) {
	t.Parallel()
	log := log2.NewTest(t, log2.LDebug)
	fs := NewMockFullReader(map[string]string{"main": `tele { enable = false }`})
	cfg := MustReadConfig(log, fs, "main")

	g := &Global{Alive: alive.NewAlive(), Log: log}
	ctx := NewContext(context.Background(), g)
	assert.True(t, GetGlobal(ctx) == g)
	g.MustInit(ctx, cfg)
	defer g.Tele.Close()

	// disabled transport accepts publishes without error
	assert.True(t, g.Tele.Session.EnsureConnected())
	assert.NoError(t, g.Tele.Session.Publish("x", []byte("y")))
	g.Stop()
}
