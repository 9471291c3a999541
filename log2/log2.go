// Package log2 is a thin leveled wrapper around stdlib log.
// It exists for two reasons:
// - runtime switchable level, so debug logging can be enabled per subsystem
// - safe logging into t.Logf from parallel tests
package log2

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync/atomic"
	"testing"
)

const (
	LStdFlags     int = log.Ltime | log.Lshortfile
	LServiceFlags int = log.Lshortfile // under systemd, journal stamps time
	LTestFlags    int = log.Lshortfile | log.Lmicroseconds
)

type Level int32

const (
	LError Level = iota
	LInfo
	LDebug
)

type Log struct {
	l      *log.Logger
	level  Level
	w      io.Writer
	fatalf func(format string, args ...interface{})
}

func NewStderr(level Level) *Log { return NewWriter(os.Stderr, level) }

func NewWriter(w io.Writer, level Level) *Log {
	return &Log{
		l:     log.New(w, "", LStdFlags),
		level: level,
		w:     w,
	}
}

type funcWriter func(format string, args ...interface{})

func (f funcWriter) Write(b []byte) (int, error) {
	f(string(b))
	return len(b), nil
}

// NewTest routes output into t.Logf and makes Fatalf fail the test
// instead of killing the process.
func NewTest(t testing.TB, level Level) *Log {
	self := NewWriter(funcWriter(t.Logf), level)
	self.l.SetFlags(LTestFlags)
	self.fatalf = t.Fatalf
	return self
}

// Clone returns an independent logger on the same writer with its own level.
func (self *Log) Clone(level Level) *Log {
	if self == nil {
		return nil
	}
	l := NewWriter(self.w, level)
	l.l.SetFlags(self.l.Flags())
	l.fatalf = self.fatalf
	return l
}

func (self *Log) SetLevel(l Level) {
	if self == nil {
		return
	}
	atomic.StoreInt32((*int32)(&self.level), int32(l))
}

func (self *Log) SetFlags(f int) {
	if self == nil {
		return
	}
	self.l.SetFlags(f)
}

func (self *Log) SetPrefix(prefix string) {
	if self == nil {
		return
	}
	self.l.SetPrefix(prefix)
}

func (self *Log) Enabled(level Level) bool {
	if self == nil {
		return false
	}
	return atomic.LoadInt32((*int32)(&self.level)) >= int32(level)
}

func (self *Log) Logf(level Level, format string, args ...interface{}) {
	if self.Enabled(level) {
		_ = self.l.Output(3, fmt.Sprintf(format, args...))
	}
}

func (self *Log) Error(args ...interface{}) { self.Logf(LError, "error: %s", fmt.Sprint(args...)) }
func (self *Log) Errorf(format string, args ...interface{}) {
	self.Logf(LError, "error: "+format, args...)
}
func (self *Log) Info(args ...interface{}) { self.Logf(LInfo, "%s", fmt.Sprint(args...)) }
func (self *Log) Infof(format string, args ...interface{}) {
	self.Logf(LInfo, format, args...)
}
func (self *Log) Debug(args ...interface{}) { self.Logf(LDebug, "debug: %s", fmt.Sprint(args...)) }
func (self *Log) Debugf(format string, args ...interface{}) {
	self.Logf(LDebug, "debug: "+format, args...)
}

// Printf/Println satisfy logger interfaces of third-party libraries
// (paho mqtt). Messages land at Info level, gate them with the clone's
// own level instead.
func (self *Log) Printf(format string, args ...interface{}) {
	self.Logf(LInfo, format, args...)
}
func (self *Log) Println(args ...interface{}) {
	self.Logf(LInfo, "%s", fmt.Sprintln(args...))
}

func (self *Log) Fatalf(format string, args ...interface{}) {
	if self != nil && self.fatalf != nil {
		self.fatalf(format, args...)
		return
	}
	self.Logf(LError, "fatal: "+format, args...)
	os.Exit(1)
}

func (self *Log) Fatal(args ...interface{}) {
	self.Fatalf("%s", fmt.Sprint(args...))
}
