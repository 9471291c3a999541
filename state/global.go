package state

import (
	"context"
	"fmt"
	"io"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"

	"furnace-agent/log2"
	"furnace-agent/sensor"
	"furnace-agent/tele"
	"furnace-agent/watchdog"
)

// Global is the single process-wide context object, constructed once at
// startup and passed by handle into each task entry point.
type Global struct {
	Alive    *alive.Alive
	Config   *Config
	Log      *log2.Log
	Tele     *tele.Tele
	Watchdog *watchdog.Supervisor

	Hardware struct {
		Thermocouple sensor.Thermocouple
		Flame        sensor.FlameSensor
		FaultWatch   io.Closer // optional MAX31856 FAULT line watcher
	}
}

const ContextKey = "run/state-global"

func NewContext(ctx context.Context, g *Global) context.Context {
	return context.WithValue(ctx, ContextKey, g) //nolint:staticcheck
}

func GetGlobal(ctx context.Context) *Global {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if g, ok := v.(*Global); ok {
		return g
	}
	panic(fmt.Sprintf("context['%s'] expected type *Global actual=%#v", ContextKey, v))
}

// If `Init` fails, consider `Global` is in broken state.
// Hardware drivers are initialized separately, see cmd/furnace-agent.
func (g *Global) Init(ctx context.Context, cfg *Config) error {
	g.Config = cfg
	if g.Alive == nil {
		g.Alive = alive.NewAlive()
	}

	wdTimeout := cfg.Watchdog.TimeoutSec
	if wdTimeout == 0 {
		wdTimeout = watchdog.DefaultTimeoutSec
	}
	wd, err := watchdog.NewSupervisor(g.Log, watchdog.Options{
		Enable:     cfg.Watchdog.Enable,
		Device:     cfg.Watchdog.Device,
		TimeoutSec: wdTimeout,
	})
	if err != nil {
		return errors.Annotate(err, "watchdog init")
	}
	g.Watchdog = wd

	g.Tele = tele.New()
	if err := g.Tele.Init(g.Log, cfg.Tele); err != nil {
		return errors.Annotate(err, "tele init")
	}
	return nil
}

func (g *Global) MustInit(ctx context.Context, cfg *Config) {
	if err := g.Init(ctx, cfg); err != nil {
		g.Log.Fatal(errors.ErrorStack(err))
	}
}

func (g *Global) Error(err error, args ...interface{}) {
	if err == nil {
		return
	}
	if len(args) != 0 {
		msg := args[0].(string)
		args = args[1:]
		err = errors.Annotatef(err, msg, args...)
	}
	g.Log.Errorf(errors.ErrorStack(err))
}

func (g *Global) Stop() {
	g.Alive.Stop()
}
