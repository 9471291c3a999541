package sensor

import (
	"strconv"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	gpio "github.com/temoto/gpio-cdev-go"

	"furnace-agent/log2"
)

const faultPinConsumer = "furnace-agent"
const faultPinWaitTimeout = 1 * time.Second

// FaultPinWatch waits on the MAX31856 FAULT line, active low. The
// converter asserts it between conversions, well before the next poll
// of the status register, so a falling edge is worth a log line and an
// early onFault callback. Optional hardware, config may leave it out.
type FaultPinWatch struct {
	Log     *log2.Log
	alive   *alive.Alive
	chip    gpio.Chiper
	event   gpio.Eventer
	onFault func()
}

func NewFaultPinWatch(chipPath, lineName string, log *log2.Log, onFault func()) (*FaultPinWatch, error) {
	line, err := strconv.ParseUint(lineName, 10, 16)
	if err != nil {
		return nil, errors.Annotate(err, "fault pin must be number")
	}

	chip, err := gpio.Open(chipPath, faultPinConsumer)
	if err != nil {
		return nil, errors.Annotatef(err, "fault pin open chip=%s", chipPath)
	}
	event, err := chip.GetLineEvent(uint32(line), 0,
		gpio.GPIOEVENT_REQUEST_FALLING_EDGE, faultPinConsumer)
	if err != nil {
		chip.Close()
		return nil, errors.Annotatef(err, "fault pin event line=%s", lineName)
	}

	self := &FaultPinWatch{
		Log:     log,
		alive:   alive.NewAlive(),
		chip:    chip,
		event:   event,
		onFault: onFault,
	}
	go self.loop()
	return self, nil
}

func (self *FaultPinWatch) Close() error {
	self.alive.Stop()
	self.event.Close()
	err := self.chip.Close()
	self.alive.Wait()
	return err
}

func (self *FaultPinWatch) loop() {
	if !self.alive.Add(1) {
		return
	}
	defer self.alive.Done()
	for self.alive.IsRunning() {
		_, err := self.event.Wait(faultPinWaitTimeout)
		switch {
		case err == nil:
			self.Log.Errorf("thermocouple FAULT line asserted")
			if self.onFault != nil {
				self.onFault()
			}
		case gpio.IsTimeout(err):
			// idle, poll alive again
		case gpio.IsClosed(err):
			return
		default:
			self.Log.Errorf("fault pin wait err=%v", err)
			return
		}
	}
}
