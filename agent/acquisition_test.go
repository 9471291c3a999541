package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/alive/v2"

	"furnace-agent/log2"
	"furnace-agent/sensor"
	"furnace-agent/state"
	"furnace-agent/tele"
	tele_config "furnace-agent/tele/config"
	"furnace-agent/watchdog"
)

type acqEnv struct {
	g     *state.Global
	tr    *tele.TransportMock
	radio *tele.RadioMock
	tc    *sensor.MockThermocouple
	flame *sensor.MockFlame
	acq   *Acquisition
}

func newAcqEnv(t testing.TB) *acqEnv {
	log := log2.NewTest(t, log2.LDebug)
	env := &acqEnv{
		tr:    &tele.TransportMock{},
		radio: tele.NewRadioMock(-55, true),
		tc:    &sensor.MockThermocouple{},
		flame: &sensor.MockFlame{},
	}
	env.g = &state.Global{
		Alive:  alive.NewAlive(),
		Config: &state.Config{},
		Log:    log,
	}
	env.g.Config.Tele = tele_config.Config{Enabled: true, DeviceName: "test", MqttBroker: "mock"}
	env.g.Config.Tele.Normalize()

	wd, err := watchdog.NewSupervisor(log, watchdog.Options{Enable: false})
	require.NoError(t, err)
	env.g.Watchdog = wd

	env.g.Tele = tele.NewWithMocks(env.tr, env.radio)
	require.NoError(t, env.g.Tele.Init(log, env.g.Config.Tele))

	env.g.Hardware.Thermocouple = env.tc
	env.g.Hardware.Flame = env.flame
	env.acq = NewAcquisition(env.g)
	return env
}

func TestCyclePublishesSample(t *testing.T) {
	t.Parallel()
	env := newAcqEnv(t)
	env.tc.Set(1288.0, 24.0, 0, nil)
	env.flame.Set(2048, nil)

	env.acq.cycle()

	msgs := env.tr.TopicMessages("furnace/data")
	require.Len(t, msgs, 1)
	payload := msgs[0].Payload
	assert.True(t, strings.HasPrefix(payload,
		`{"furnace_temp":1288.00,"cold_junction":24.00,"flame_voltage":1.386,"timestamp":`), payload)
	assert.True(t, strings.HasSuffix(payload, "}"), payload)
	assert.Equal(t, 0, env.acq.ConsecutiveErrors())
}

func TestCycleRejectsInvalidFlame(t *testing.T) {
	t.Parallel()
	env := newAcqEnv(t)
	env.tc.Set(1288.0, 24.0, 0, nil)
	env.flame.Set(-1, nil)

	env.acq.cycle()

	assert.Empty(t, env.tr.TopicMessages("furnace/data"))
	assert.Equal(t, 1, env.acq.ConsecutiveErrors())

	// valid sample again resets the error streak
	env.flame.Set(100, nil)
	env.acq.cycle()
	assert.Len(t, env.tr.TopicMessages("furnace/data"), 1)
	assert.Equal(t, 0, env.acq.ConsecutiveErrors())
}

func TestCycleRejectsOutOfRangeTemps(t *testing.T) {
	t.Parallel()
	env := newAcqEnv(t)
	env.flame.Set(2048, nil)

	env.tc.Set(1800.5, 24.0, 0, nil)
	env.acq.cycle()
	env.tc.Set(1288.0, 151.0, 0, nil)
	env.acq.cycle()

	assert.Empty(t, env.tr.TopicMessages("furnace/data"))
	assert.Equal(t, 2, env.acq.ConsecutiveErrors())
}

func TestCycleSkipsPublishWhileDisconnected(t *testing.T) {
	t.Parallel()
	env := newAcqEnv(t)
	env.tc.Set(900.0, 30.0, 0, nil)
	env.flame.Set(1000, nil)
	env.tr.ConnectErr = assert.AnError

	env.acq.cycle()

	assert.Empty(t, env.tr.Published)
	// read errors were not involved, streak stays clean
	assert.Equal(t, 0, env.acq.ConsecutiveErrors())
}

func TestConsecutiveErrorEscalation(t *testing.T) {
	t.Parallel()
	env := newAcqEnv(t)
	env.tc.Set(0, 0, 0, assert.AnError)
	env.flame.Set(2048, nil)

	for i := 0; i < sensorErrorLimit+2; i++ {
		env.acq.cycle()
	}
	assert.Equal(t, sensorErrorLimit+2, env.acq.ConsecutiveErrors())
	assert.Empty(t, env.tr.TopicMessages("furnace/data"))
}

func TestAppendDataJSON(t *testing.T) {
	t.Parallel()
	buf := appendDataJSON(nil, 1288.0, 24.0, sensor.FlameVolts(2048), 1700000000000)
	assert.Equal(t,
		`{"furnace_temp":1288.00,"cold_junction":24.00,"flame_voltage":1.386,"timestamp":1700000000000}`,
		string(buf))
}
