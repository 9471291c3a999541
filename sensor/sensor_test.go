package sensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlameVolts(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 0.0, FlameVolts(0), 1e-9)
	assert.InDelta(t, 1.386, FlameVolts(2048), 0.001)
	assert.InDelta(t, 2.772, FlameVolts(4095), 0.001)
}

func TestValidateRanges(t *testing.T) {
	t.Parallel()
	assert.NoError(t, ValidateThermocouple(1288.0))
	assert.NoError(t, ValidateThermocouple(-100.0))
	assert.Error(t, ValidateThermocouple(-100.01))
	assert.Error(t, ValidateThermocouple(1800.5))

	assert.NoError(t, ValidateColdJunction(24.0))
	assert.Error(t, ValidateColdJunction(150.1))
	assert.Error(t, ValidateColdJunction(-41))

	assert.NoError(t, ValidateFlameRaw(0))
	assert.NoError(t, ValidateFlameRaw(4095))
	assert.Error(t, ValidateFlameRaw(-1))
	assert.Error(t, ValidateFlameRaw(4096))
}

func TestDecodeFaults(t *testing.T) {
	t.Parallel()
	assert.Nil(t, DecodeFaults(0))

	names := DecodeFaults(FaultOpenCircuit)
	require.Len(t, names, 1)
	assert.Equal(t, "open-circuit", names[0])

	names = DecodeFaults(FaultColdJunctionRange | FaultThermocoupleLow | FaultVoltage)
	require.Len(t, names, 3)
	assert.Equal(t, []string{"cold-junction out-of-range", "thermocouple low", "over/under-voltage"}, names)

	assert.Len(t, DecodeFaults(0xff), 8)
}
