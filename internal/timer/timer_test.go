package timer

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestArmFires(t *testing.T) {
	var fired atomic.Int64
	var o OneShot
	o.Arm(10*time.Millisecond, func() { fired.Add(1) })

	assert.Eventually(t, func() bool { return fired.Load() == 1 },
		time.Second, 5*time.Millisecond)
}

func TestRearmCancelsPrevious(t *testing.T) {
	var first, second atomic.Int64
	var o OneShot
	o.Arm(30*time.Millisecond, func() { first.Add(1) })
	o.Arm(30*time.Millisecond, func() { second.Add(1) })

	assert.Eventually(t, func() bool { return second.Load() == 1 },
		time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int64(0), first.Load(), "rearming must cancel the previous deadline")
}

func TestStopCancels(t *testing.T) {
	var fired atomic.Int64
	var o OneShot
	o.Arm(30*time.Millisecond, func() { fired.Add(1) })
	o.Stop()

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int64(0), fired.Load())
}

func TestNegativeDelayFiresImmediately(t *testing.T) {
	var fired atomic.Int64
	var o OneShot
	o.Arm(-time.Second, func() { fired.Add(1) })

	assert.Eventually(t, func() bool { return fired.Load() == 1 },
		time.Second, 5*time.Millisecond)
}
