// furnace-agent is the on-device telemetry daemon: it reads the furnace
// thermocouple and flame sensor on a fixed cadence and publishes samples
// and link-health metrics over MQTT. Designed to run unattended under
// systemd with hardware watchdog supervision.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"

	"furnace-agent/agent"
	"furnace-agent/helpers"
	"furnace-agent/log2"
	"furnace-agent/sensor"
	"furnace-agent/state"
)

func main() {
	flagConfig := flag.String("config", "furnace-agent.hcl", "")
	flag.Parse()

	log := log2.NewStderr(log2.LInfo)
	if sdnotify(log, "READY=0\nSTATUS=starting") {
		// under systemd the journal stamps time
		log.SetFlags(log2.LServiceFlags)
	} else {
		log.SetFlags(log2.LStdFlags)
	}
	log.Infof("hello")

	cfg := state.MustReadConfig(log, state.NewOsFullReader(), *flagConfig)
	if cfg.Tele.LogDebug {
		log.SetLevel(log2.LDebug)
	}

	safeMode := false
	if cfg.Persist.Root != "" {
		boots, err := state.BootCountIncrement(cfg.Persist.Root)
		if err != nil {
			log.Errorf("boot counter err=%v", err)
		} else if boots > state.FailsafeBootLimit {
			log.Errorf("boot counter=%d exceeds limit=%d, entering safe mode", boots, state.FailsafeBootLimit)
			safeMode = true
		}
	}

	g := &state.Global{Log: log}
	ctx := state.NewContext(context.Background(), g)
	g.MustInit(ctx, cfg)
	defer g.Tele.Close()

	if !safeMode {
		if err := initHardware(g); err != nil {
			// next boot increments the counter again; after the limit the
			// device stays reachable in safe mode instead of crash-looping
			log.Fatal(errors.ErrorStack(err))
		}
	}

	adm := agent.NewAdmin(g)
	go adm.Run()
	if !safeMode {
		acq := agent.NewAcquisition(g)
		go acq.Run()
	}
	g.Watchdog.Start()
	defer g.Watchdog.Stop()

	if cfg.Persist.Root != "" && !safeMode {
		if err := state.BootCountReset(cfg.Persist.Root); err != nil {
			log.Errorf("boot counter reset err=%v", err)
		}
	}
	sdnotify(log, daemon.SdNotifyReady)
	log.Infof("running safe_mode=%t", safeMode)

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigch:
		log.Infof("signal=%v stopping", sig)
		g.Stop()
	case <-g.Alive.StopChan():
	}
	g.Alive.Wait()

	if g.Hardware.Thermocouple != nil {
		g.Hardware.Thermocouple.Close() //nolint:errcheck
	}
	if g.Hardware.Flame != nil {
		g.Hardware.Flame.Close() //nolint:errcheck
	}
	if g.Hardware.FaultWatch != nil {
		g.Hardware.FaultWatch.Close() //nolint:errcheck
	}
	log.Infof("goodbye")
}

// initHardware opens the sensor drivers, retrying with backoff: the SPI
// bus needs a moment after cold power-on.
func initHardware(g *state.Global) error {
	retries := g.Config.Acquisition.InitRetries
	if retries <= 0 {
		retries = 3
	}
	bo := helpers.Backoff{Min: 500 * time.Millisecond, Max: 8 * time.Second, K: 2}

	var tc *sensor.MAX31856
	var err error
	for attempt := 1; ; attempt++ {
		tc, err = sensor.NewMAX31856(g.Config.Sensor, g.Log)
		if err == nil {
			break
		}
		if attempt >= retries {
			return errors.Annotatef(err, "thermocouple init attempts=%d", attempt)
		}
		bo.Failure()
		delay := bo.DelayBefore()
		g.Log.Errorf("thermocouple init attempt=%d err=%v retry-in=%s", attempt, err, delay)
		time.Sleep(delay)
	}
	g.Hardware.Thermocouple = tc
	g.Hardware.Flame = sensor.NewIIOFlame(g.Config.Sensor.Flame.Device, g.Config.Sensor.Flame.Channel)

	if chip := g.Config.Sensor.Thermocouple.FaultPinChip; chip != "" {
		fw, err := sensor.NewFaultPinWatch(chip, g.Config.Sensor.Thermocouple.FaultPin, g.Log, nil)
		if err != nil {
			// FAULT line watch is best-effort, polling the status register covers it
			g.Log.Errorf("fault pin watch err=%v", err)
		} else {
			g.Hardware.FaultWatch = fw
		}
	}
	return nil
}

func sdnotify(log *log2.Log, s string) bool {
	ok, err := daemon.SdNotify(false, s)
	if err != nil {
		log.Fatal("sdnotify: ", errors.ErrorStack(err))
	}
	return ok
}
