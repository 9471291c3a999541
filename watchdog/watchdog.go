// Package watchdog multiplexes one hardware/systemd watchdog across the
// long-running tasks. Each task registers and must feed its handle every
// loop iteration; the supervisor pets the backend only while every
// registered task is fresh. A stalled task therefore turns into a
// device-level reset instead of a silently dead goroutine.
package watchdog

import (
	"sync"
	"time"

	"github.com/temoto/alive/v2"
	atomic_clock "github.com/temoto/atomic_clock"

	"furnace-agent/log2"
)

const DefaultTimeoutSec = 10

type Options struct {
	Enable     bool
	Device     string // e.g. /dev/watchdog, ignored under systemd watchdog
	TimeoutSec int
}

type Supervisor struct {
	Log *log2.Log

	mu       sync.Mutex
	tasks    []*Task
	backend  backend
	timeout  time.Duration
	petEvery time.Duration
	alive    *alive.Alive
	starved  bool
}

// Task is one registered loop's feed handle. Feed is lock-free, safe
// for the 100ms hot path.
type Task struct {
	name string
	last atomic_clock.Clock
}

func (t *Task) Feed()        { t.last.SetNow() }
func (t *Task) Name() string { return t.name }

func NewSupervisor(log *log2.Log, opt Options) (*Supervisor, error) {
	timeout := time.Duration(opt.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = DefaultTimeoutSec * time.Second
	}
	self := &Supervisor{
		Log:      log,
		timeout:  timeout,
		petEvery: timeout / 4,
		alive:    alive.NewAlive(),
	}

	if !opt.Enable {
		self.Log.Infof("watchdog disabled, supervisor will only log starvation")
		return self, nil
	}

	b, petEvery, err := openBackend(log, opt.Device, opt.TimeoutSec)
	if err != nil {
		return nil, err
	}
	self.backend = b
	if petEvery > 0 && petEvery < self.petEvery {
		self.petEvery = petEvery
	}
	return self, nil
}

// Register adds a named task before Start. The handle starts fresh so a
// slow-starting task does not trip the first check.
func (self *Supervisor) Register(name string) *Task {
	t := &Task{name: name}
	t.last.SetNow()
	self.mu.Lock()
	self.tasks = append(self.tasks, t)
	self.mu.Unlock()
	return t
}

func (self *Supervisor) Start() {
	go self.loop()
}

func (self *Supervisor) Stop() {
	self.alive.Stop()
	self.alive.Wait()
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.backend != nil {
		if err := self.backend.Close(); err != nil {
			self.Log.Errorf("watchdog close err=%v", err)
		}
		self.backend = nil
	}
}

func (self *Supervisor) loop() {
	if !self.alive.Add(1) {
		return
	}
	defer self.alive.Done()

	tick := time.NewTicker(self.petEvery)
	defer tick.Stop()
	stopch := self.alive.StopChan()
	for {
		select {
		case <-tick.C:
			self.check()
		case <-stopch:
			return
		}
	}
}

func (self *Supervisor) check() {
	self.mu.Lock()
	defer self.mu.Unlock()

	stale := ""
	for _, t := range self.tasks {
		if atomic_clock.Since(&t.last) > self.timeout {
			stale = t.name
			break
		}
	}
	if stale != "" {
		if !self.starved {
			self.starved = true
			self.Log.Errorf("watchdog: task %s stalled, withholding pet, expect reset", stale)
		}
		return
	}
	if self.starved {
		self.starved = false
		self.Log.Infof("watchdog: tasks recovered")
	}
	if self.backend != nil {
		if err := self.backend.Pet(); err != nil {
			self.Log.Errorf("watchdog pet err=%v", err)
		}
	}
}
