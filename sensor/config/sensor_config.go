// Separate package is workaround to import cycles.
package sensor_config

type Config struct { //nolint:maligned
	Thermocouple struct {
		Spi      string `hcl:"spi"`  // spireg name, e.g. "SPI0.0"
		Type     string `hcl:"type"` // thermocouple type letter, default S
		LogDebug bool   `hcl:"log_debug"`

		FaultPinChip string `hcl:"fault_pin_chip"` // optional FAULT line watch
		FaultPin     string `hcl:"fault_pin"`
	} `hcl:"thermocouple"`

	Flame struct {
		Device  string `hcl:"device"`  // IIO device dir, e.g. /sys/bus/iio/devices/iio:device0
		Channel int    `hcl:"channel"` // in_voltageN_raw
	} `hcl:"flame"`
}
