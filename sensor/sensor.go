// Package sensor wraps the furnace instrumentation: a MAX31856
// thermocouple-to-digital converter on SPI and an analog flame-intensity
// channel. Drivers are behind small interfaces so the acquisition loop
// tests run against mocks.
package sensor

import (
	"github.com/juju/errors"
)

// Calibrated validity windows. Conversion garbage outside these must
// never be published.
const (
	ThermocoupleMinC = -100.0
	ThermocoupleMaxC = 1800.0
	ColdJunctionMinC = -40.0
	ColdJunctionMaxC = 150.0
)

// Flame channel: 12-bit converter at 3.3V reference, sensor output
// behind a 4.2/5.0 resistive divider.
const (
	FlameADCMaxCode   = 4095
	flameADCRefVolts  = 3.3
	flameDividerRatio = 4.2
	flameDividerTotal = 5.0
)

// Reading is one acquisition cycle's raw material. Immutable once
// constructed, never persisted.
type Reading struct {
	ThermocoupleTempC float64
	ColdJunctionTempC float64
	FaultBitmap       uint8
	FlameRawADC       uint16
}

type Thermocouple interface {
	Temperature() (float64, error)
	ColdJunction() (float64, error)
	Faults() (uint8, error)
	Close() error
}

type FlameSensor interface {
	ReadRaw() (int, error)
	Close() error
}

// MAX31856 fault status register bits.
const (
	FaultColdJunctionRange uint8 = 1 << 7
	FaultThermocoupleRange uint8 = 1 << 6
	FaultColdJunctionHigh  uint8 = 1 << 5
	FaultColdJunctionLow   uint8 = 1 << 4
	FaultThermocoupleHigh  uint8 = 1 << 3
	FaultThermocoupleLow   uint8 = 1 << 2
	FaultVoltage           uint8 = 1 << 1
	FaultOpenCircuit       uint8 = 1 << 0
)

var faultNames = []struct {
	bit  uint8
	name string
}{
	{FaultColdJunctionRange, "cold-junction out-of-range"},
	{FaultThermocoupleRange, "thermocouple out-of-range"},
	{FaultColdJunctionHigh, "cold-junction high"},
	{FaultColdJunctionLow, "cold-junction low"},
	{FaultThermocoupleHigh, "thermocouple high"},
	{FaultThermocoupleLow, "thermocouple low"},
	{FaultVoltage, "over/under-voltage"},
	{FaultOpenCircuit, "open-circuit"},
}

// DecodeFaults returns the names of asserted bits, MSB first.
func DecodeFaults(bitmap uint8) []string {
	if bitmap == 0 {
		return nil
	}
	out := make([]string, 0, 8)
	for _, f := range faultNames {
		if bitmap&f.bit != 0 {
			out = append(out, f.name)
		}
	}
	return out
}

func ValidateThermocouple(tempC float64) error {
	if tempC < ThermocoupleMinC || tempC > ThermocoupleMaxC {
		return errors.NotValidf("thermocouple temp=%.2f outside [%.0f,%.0f]", tempC, ThermocoupleMinC, ThermocoupleMaxC)
	}
	return nil
}

func ValidateColdJunction(tempC float64) error {
	if tempC < ColdJunctionMinC || tempC > ColdJunctionMaxC {
		return errors.NotValidf("cold junction temp=%.2f outside [%.0f,%.0f]", tempC, ColdJunctionMinC, ColdJunctionMaxC)
	}
	return nil
}

func ValidateFlameRaw(raw int) error {
	if raw < 0 || raw > FlameADCMaxCode {
		return errors.NotValidf("flame raw=%d outside [0,%d]", raw, FlameADCMaxCode)
	}
	return nil
}

// FlameVolts recovers the true sensor voltage from a validated raw code:
// ADC volts scaled through the divider ratio. Mid-scale 2048 gives
// 1.386V.
func FlameVolts(raw uint16) float64 {
	measured := float64(raw) * flameADCRefVolts / FlameADCMaxCode
	return measured * flameDividerRatio / flameDividerTotal
}
