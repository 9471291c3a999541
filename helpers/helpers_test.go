package helpers

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFoldErrors(t *testing.T) {
	t.Parallel()
	assert.NoError(t, FoldErrors(nil))
	assert.NoError(t, FoldErrors([]error{nil, nil}))

	e1, e2 := fmt.Errorf("first"), fmt.Errorf("second")
	err := FoldErrors([]error{nil, e1, e2})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "first")
	assert.Contains(t, err.Error(), "second")
}

func TestIntDurationDefaults(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 5*time.Second, IntSecondDefault(0, 5*time.Second))
	assert.Equal(t, 2*time.Second, IntSecondDefault(2, 5*time.Second))
	assert.Equal(t, 100*time.Millisecond, IntMillisecondDefault(0, 100*time.Millisecond))
	assert.Equal(t, 250*time.Millisecond, IntMillisecondDefault(250, 100*time.Millisecond))
}

func TestWithLock(t *testing.T) {
	t.Parallel()
	mu := sync.Mutex{}
	n := 0
	WithLock(&mu, func() { n++ })
	assert.Equal(t, 1, n)
}

func TestBackoff(t *testing.T) {
	t.Parallel()
	b := Backoff{Min: 10 * time.Millisecond, Max: 40 * time.Millisecond, K: 2}
	assert.Equal(t, time.Duration(0), b.DelayBefore())

	b.Failure()
	d1 := b.DelayBefore()
	assert.True(t, d1 > 0 && d1 <= 10*time.Millisecond, "d1=%v", d1)

	b.Failure()
	b.Failure()
	b.Failure()
	d2 := b.DelayBefore()
	assert.True(t, d2 <= 40*time.Millisecond, "d2=%v", d2)

	b.Update(true)
	time.Sleep(11 * time.Millisecond)
	assert.Equal(t, time.Duration(0), b.DelayBefore())
}
