package utils

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeoutManager(t *testing.T) {
	var fired atomic.Int32
	m := NewTimeoutManager()
	m.Start(50*time.Millisecond, func() { fired.Add(1) })
	// 持续Reset时不会超时
	for i := 0; i < 5; i++ {
		time.Sleep(20 * time.Millisecond)
		m.Reset()
	}
	assert.Equal(t, int32(0), fired.Load())
	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 10*time.Millisecond)
}

func TestTimeoutManager_Cancel(t *testing.T) {
	var fired atomic.Int32
	m := NewTimeoutManager()
	m.Start(30*time.Millisecond, func() { fired.Add(1) })
	m.Cancel()
	m.Reset()
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())

	// timeout为0时不计时
	m.Start(0, func() { fired.Add(1) })
	m.Reset()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}
