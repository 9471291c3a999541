package watchdog

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"furnace-agent/log2"
)

type backendMock struct {
	mu   sync.Mutex
	pets int
}

func (self *backendMock) Pet() error {
	self.mu.Lock()
	self.pets++
	self.mu.Unlock()
	return nil
}
func (self *backendMock) Close() error { return nil }
func (self *backendMock) Pets() int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.pets
}

func TestPetsWhileFresh(t *testing.T) {
	t.Parallel()
	sup, err := NewSupervisor(log2.NewTest(t, log2.LDebug), Options{TimeoutSec: 1})
	require.NoError(t, err)
	b := &backendMock{}
	sup.backend = b

	task := sup.Register("loop")
	task.Feed()
	sup.check()
	sup.check()
	assert.Equal(t, 2, b.Pets())
	assert.False(t, sup.starved)
}

func TestStaleTaskWithholdsPet(t *testing.T) {
	t.Parallel()
	sup, err := NewSupervisor(log2.NewTest(t, log2.LDebug), Options{TimeoutSec: 1})
	require.NoError(t, err)
	b := &backendMock{}
	sup.backend = b

	fresh := sup.Register("admin")
	stalled := sup.Register("acquisition")
	fresh.Feed()
	stalled.last.Set(time.Now().Add(-2 * time.Second).UnixNano())

	sup.check()
	assert.Equal(t, 0, b.Pets())
	assert.True(t, sup.starved)

	// the stalled task resumes feeding
	stalled.Feed()
	sup.check()
	assert.Equal(t, 1, b.Pets())
	assert.False(t, sup.starved)
}

func TestDisabledSupervisorOnlyLogs(t *testing.T) {
	t.Parallel()
	sup, err := NewSupervisor(log2.NewTest(t, log2.LDebug), Options{Enable: false})
	require.NoError(t, err)
	require.Nil(t, sup.backend)

	task := sup.Register("loop")
	task.last.Set(time.Now().Add(-time.Minute).UnixNano())
	sup.check()
	assert.True(t, sup.starved)
}
