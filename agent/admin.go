package agent

import (
	"net/http"
	"time"

	"github.com/temoto/alive/v2"
	atomic_clock "github.com/temoto/atomic_clock"

	"furnace-agent/helpers"
	"furnace-agent/log2"
	"furnace-agent/state"
	"furnace-agent/tele"
	"furnace-agent/watchdog"
)

const (
	adminInterval    = 1 * time.Second
	defaultHeartbeat = 60 * time.Second
)

// Admin is the slow housekeeping task: it proves overall process
// liveness to the watchdog independently of the acquisition loop, logs
// a periodic heartbeat and optionally serves /health and /metrics for
// on-site diagnostics.
type Admin struct {
	log   *log2.Log
	alive *alive.Alive
	wd    *watchdog.Task
	stat  *tele.NetStat

	listen    string
	heartbeat time.Duration
	lastBeat  atomic_clock.Clock
	startedAt atomic_clock.Clock
	srv       *http.Server
}

func NewAdmin(g *state.Global) *Admin {
	return &Admin{
		log:       g.Log,
		alive:     g.Alive,
		wd:        g.Watchdog.Register("admin"),
		stat:      g.Tele.Stat,
		listen:    g.Config.Admin.Listen,
		heartbeat: helpers.IntSecondDefault(g.Config.Admin.HeartbeatSec, defaultHeartbeat),
	}
}

func (self *Admin) Run() {
	if !self.alive.Add(1) {
		return
	}
	defer self.alive.Done()
	self.startedAt.SetNow()
	self.lastBeat.SetNow()

	if self.listen != "" {
		self.serveHTTP()
	}

	tick := time.NewTicker(adminInterval)
	defer tick.Stop()
	stopch := self.alive.StopChan()
	for {
		select {
		case <-tick.C:
			self.wd.Feed()
			if atomic_clock.Since(&self.lastBeat) >= self.heartbeat {
				self.lastBeat.SetNow()
				snap := self.stat.Snapshot()
				self.log.Infof("heartbeat uptime=%s conn=%s sent=%d lost=%d",
					atomic_clock.Since(&self.startedAt).Round(time.Second),
					snap.ConnState, snap.PacketsSent, snap.PacketsLost)
			}
		case <-stopch:
			if self.srv != nil {
				self.srv.Close()
			}
			return
		}
	}
}

func (self *Admin) serveHTTP() {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK\n")) //nolint:errcheck
	})
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		snap := self.stat.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		w.Write(snap.AppendJSON(make([]byte, 0, 512))) //nolint:errcheck
	})
	self.srv = &http.Server{Addr: self.listen, Handler: mux}
	go func() {
		self.log.Infof("admin: listening on %s", self.listen)
		if err := self.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			self.log.Errorf("admin http err=%v", err)
		}
	}()
}
