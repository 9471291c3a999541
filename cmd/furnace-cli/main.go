// furnace-cli is the on-site diagnostic tool: read the sensors once,
// poke the MQTT session, dump network metrics. Interactive with
// completion on a terminal, line-per-command when piped.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/c-bata/go-prompt"

	"furnace-agent/helpers/cli"
	"furnace-agent/log2"
	"furnace-agent/sensor"
	"furnace-agent/state"
)

var suggestions = []prompt.Suggest{
	{Text: "read", Description: "read thermocouple and flame sensor once"},
	{Text: "faults", Description: "read thermocouple fault register"},
	{Text: "connect", Description: "ensure MQTT session is connected"},
	{Text: "publish", Description: "read sensors and publish one data sample"},
	{Text: "monitor", Description: "run one connectivity monitor tick"},
	{Text: "metrics", Description: "dump network metrics JSON"},
	{Text: "exit", Description: "quit"},
}

func main() {
	flagConfig := flag.String("config", "furnace-agent.hcl", "")
	flag.Parse()

	log := log2.NewStderr(log2.LDebug)
	log.SetFlags(log2.LStdFlags)

	cfg := state.MustReadConfig(log, state.NewOsFullReader(), *flagConfig)
	g := &state.Global{Log: log}
	ctx := state.NewContext(context.Background(), g)
	g.MustInit(ctx, cfg)
	defer g.Tele.Close()

	tc, err := sensor.NewMAX31856(cfg.Sensor, log)
	if err != nil {
		log.Errorf("thermocouple init err=%v, using mock", err)
		g.Hardware.Thermocouple = &sensor.MockThermocouple{TempC: 20, CJC: 20}
	} else {
		g.Hardware.Thermocouple = tc
	}
	g.Hardware.Flame = sensor.NewIIOFlame(cfg.Sensor.Flame.Device, cfg.Sensor.Flame.Channel)

	cli.MainLoop(log, func(line string) { execLine(g, line) }, completer)
}

func completer(d prompt.Document) []prompt.Suggest {
	return prompt.FilterHasPrefix(suggestions, d.GetWordBeforeCursor(), true)
}

func execLine(g *state.Global, line string) {
	line = strings.TrimSpace(line)
	switch line {
	case "", "#":
	case "read":
		cmdRead(g, false)
	case "publish":
		cmdRead(g, true)
	case "faults":
		bitmap, err := g.Hardware.Thermocouple.Faults()
		if err != nil {
			g.Log.Errorf("faults err=%v", err)
			return
		}
		fmt.Printf("faults=%02x %v\n", bitmap, sensor.DecodeFaults(bitmap))
	case "connect":
		fmt.Printf("connected=%t\n", g.Tele.Session.EnsureConnected())
	case "monitor":
		g.Tele.Monitor.Tick()
		cmdMetrics(g)
	case "metrics":
		cmdMetrics(g)
	case "exit", "quit":
		g.Stop()
		os.Exit(0)
	default:
		g.Log.Errorf("unknown command=%s", line)
	}
}

func cmdRead(g *state.Global, publish bool) {
	tcTemp, err := g.Hardware.Thermocouple.Temperature()
	if err != nil {
		g.Log.Errorf("thermocouple err=%v", err)
		return
	}
	cj, err := g.Hardware.Thermocouple.ColdJunction()
	if err != nil {
		g.Log.Errorf("cold junction err=%v", err)
		return
	}
	raw, err := g.Hardware.Flame.ReadRaw()
	if err != nil {
		g.Log.Errorf("flame err=%v", err)
		return
	}
	volts := sensor.FlameVolts(uint16(raw))
	fmt.Printf("furnace=%.2fC cold_junction=%.2fC flame_raw=%d flame=%.3fV\n", tcTemp, cj, raw, volts)

	if publish {
		if !g.Tele.Session.EnsureConnected() {
			g.Log.Errorf("not connected")
			return
		}
		payload := fmt.Sprintf(`{"furnace_temp":%.2f,"cold_junction":%.2f,"flame_voltage":%.3f,"timestamp":0}`,
			tcTemp, cj, volts)
		if err = g.Tele.Session.Publish(g.Config.Tele.TopicData, []byte(payload)); err != nil {
			g.Log.Errorf("publish err=%v", err)
			return
		}
		fmt.Println("published")
	}
}

func cmdMetrics(g *state.Global) {
	snap := g.Tele.Stat.Snapshot()
	fmt.Println(string(snap.AppendJSON(nil)))
}
