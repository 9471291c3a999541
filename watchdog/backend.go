package watchdog

import (
	"os"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"golang.org/x/sys/unix"

	"furnace-agent/log2"
)

type backend interface {
	Pet() error
	Close() error
}

// openBackend prefers the systemd software watchdog when the service
// was started with WatchdogSec, falls back to the kernel device.
// Returns the backend's preferred pet interval, 0 for no preference.
func openBackend(log *log2.Log, device string, timeoutSec int) (backend, time.Duration, error) {
	if interval, err := daemon.SdWatchdogEnabled(false); err == nil && interval > 0 {
		log.Infof("watchdog: systemd interval=%s", interval)
		return systemdBackend{}, interval / 2, nil
	}
	if device == "" {
		return nil, 0, errors.NotValidf("watchdog enabled without systemd WatchdogSec or device")
	}
	b, err := openDevice(device, timeoutSec)
	if err != nil {
		return nil, 0, err
	}
	log.Infof("watchdog: device=%s timeout=%ds", device, timeoutSec)
	return b, 0, nil
}

type systemdBackend struct{}

func (systemdBackend) Pet() error {
	_, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog)
	return err
}
func (systemdBackend) Close() error { return nil }

// deviceBackend drives a kernel watchdog character device. Close writes
// the magic character so an orderly shutdown disarms the timer.
type deviceBackend struct {
	f *os.File
}

func openDevice(path string, timeoutSec int) (*deviceBackend, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, errors.Annotatef(err, "watchdog open %s", path)
	}
	if timeoutSec > 0 {
		if err := unix.IoctlSetPointerInt(int(f.Fd()), unix.WDIOC_SETTIMEOUT, timeoutSec); err != nil {
			f.Close()
			return nil, errors.Annotatef(err, "watchdog WDIOC_SETTIMEOUT %s", path)
		}
	}
	return &deviceBackend{f: f}, nil
}

func (self *deviceBackend) Pet() error {
	_, err := self.f.Write([]byte{0})
	return err
}

func (self *deviceBackend) Close() error {
	// magic close, kernel disarms instead of resetting on fd close
	if _, err := self.f.Write([]byte{'V'}); err != nil {
		self.f.Close()
		return err
	}
	return self.f.Close()
}
