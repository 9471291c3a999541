// Package agent holds the two long-running tasks: the sensor
// acquisition loop and the admin heartbeat. Both feed the watchdog
// supervisor every iteration.
package agent

import (
	"runtime"
	"time"

	"github.com/temoto/alive/v2"
	atomic_clock "github.com/temoto/atomic_clock"

	"furnace-agent/helpers"
	"furnace-agent/log2"
	"furnace-agent/sensor"
	"furnace-agent/state"
	"furnace-agent/tele"
	"furnace-agent/watchdog"
)

const (
	DefaultInterval     = 100 * time.Millisecond
	DefaultMonitorEvery = 5 * time.Second

	// consecutive failed cycles before we call the hardware suspect
	sensorErrorLimit = 10
)

// Acquisition is the hot loop: read thermocouple and flame each tick,
// validate, publish when connected. It owns the serialization buffer
// and is the only goroutine talking to the sensors and the session.
type Acquisition struct {
	log     *log2.Log
	alive   *alive.Alive
	wd      *watchdog.Task
	tc      sensor.Thermocouple
	flame   sensor.FlameSensor
	session *tele.Session
	monitor *tele.Monitor

	topicData    string
	interval     time.Duration
	monitorEvery time.Duration
	lastMonitor  atomic_clock.Clock

	buf          []byte
	consecErrors int
}

func NewAcquisition(g *state.Global) *Acquisition {
	return &Acquisition{
		log:          g.Log,
		alive:        g.Alive,
		wd:           g.Watchdog.Register("acquisition"),
		tc:           g.Hardware.Thermocouple,
		flame:        g.Hardware.Flame,
		session:      g.Tele.Session,
		monitor:      g.Tele.Monitor,
		topicData:    g.Config.Tele.TopicData,
		interval:     helpers.IntMillisecondDefault(g.Config.Acquisition.IntervalMs, DefaultInterval),
		monitorEvery: helpers.IntSecondDefault(g.Config.Acquisition.MonitorSec, DefaultMonitorEvery),
		buf:          make([]byte, 0, 256),
	}
}

// Run blocks until Alive stops. Pinned to an OS thread: SPI latency
// jitter from goroutine migration is visible at 100ms cadence.
func (self *Acquisition) Run() {
	if !self.alive.Add(1) {
		return
	}
	defer self.alive.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	self.log.Infof("acquisition: interval=%s monitor=%s", self.interval, self.monitorEvery)
	tick := time.NewTicker(self.interval)
	defer tick.Stop()
	stopch := self.alive.StopChan()
	for {
		select {
		case <-tick.C:
			self.cycle()
		case <-stopch:
			return
		}
	}
}

// cycle is one iteration of the loop. Never blocks beyond the bounded
// transport timeouts inside Session.
func (self *Acquisition) cycle() {
	self.wd.Feed()

	connected := self.session.EnsureConnected()
	self.sample(connected)

	if self.lastMonitor.IsZero() || atomic_clock.Since(&self.lastMonitor) >= self.monitorEvery {
		self.lastMonitor.SetNow()
		self.monitor.Tick()
	}
}

func (self *Acquisition) sample(connected bool) {
	furnaceTemp, err := self.tc.Temperature()
	if err != nil {
		self.noteError("thermocouple read err=%v", err)
		return
	}
	coldJunction, err := self.tc.ColdJunction()
	if err != nil {
		self.noteError("cold junction read err=%v", err)
		return
	}
	if err = sensor.ValidateThermocouple(furnaceTemp); err != nil {
		self.noteError("reject sample: %v", err)
		return
	}
	if err = sensor.ValidateColdJunction(coldJunction); err != nil {
		self.noteError("reject sample: %v", err)
		return
	}

	if faults, err := self.tc.Faults(); err != nil {
		self.noteError("fault register read err=%v", err)
		return
	} else if faults != 0 {
		self.log.Errorf("thermocouple faults=%02x %v", faults, sensor.DecodeFaults(faults))
		if fc, ok := self.tc.(interface{ ClearFaults() error }); ok {
			if err = fc.ClearFaults(); err != nil {
				self.log.Errorf("fault clear err=%v", err)
			}
		}
	}

	flameRaw, err := self.flame.ReadRaw()
	if err != nil {
		self.noteError("flame read err=%v", err)
		return
	}
	if err = sensor.ValidateFlameRaw(flameRaw); err != nil {
		self.noteError("reject sample: %v", err)
		return
	}
	flameVolts := sensor.FlameVolts(uint16(flameRaw))

	if self.consecErrors > 0 {
		self.log.Infof("acquisition: sensors recovered after %d failed cycles", self.consecErrors)
		self.consecErrors = 0
	}

	if !connected {
		// acquisition never blocks on network state, sample is dropped
		return
	}
	nowMs := time.Now().UnixNano() / int64(time.Millisecond)
	self.buf = appendDataJSON(self.buf[:0], furnaceTemp, coldJunction, flameVolts, nowMs)
	if err = self.session.Publish(self.topicData, self.buf); err != nil {
		self.log.Errorf("data publish err=%v", err)
	}
}

func (self *Acquisition) noteError(format string, args ...interface{}) {
	self.log.Errorf(format, args...)
	self.consecErrors++
	if self.consecErrors == sensorErrorLimit {
		self.log.Errorf("acquisition: %d consecutive sensor errors, possible hardware failure", self.consecErrors)
	}
}

// ConsecutiveErrors is diagnostic visibility for tests and the CLI.
func (self *Acquisition) ConsecutiveErrors() int { return self.consecErrors }
