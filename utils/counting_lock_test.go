package utils

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	e "github.com/fansqz/js-debugger/error"
)

func TestCountingLock_AwaitQuiesce(t *testing.T) {
	l := NewCountingLock()
	var finished atomic.Int32
	for i := 0; i < 3; i++ {
		l.Acquire()
		go func() {
			time.Sleep(20 * time.Millisecond)
			finished.Add(1)
			l.Release()
		}()
	}
	l.Await()
	assert.Equal(t, int32(3), finished.Load())
	assert.Equal(t, 0, l.Count())
}

func TestCountingLock_AwaitWithoutHolders(t *testing.T) {
	l := NewCountingLock()
	done := make(chan struct{})
	go func() {
		l.Await()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("await should return immediately")
	}
}

func TestCountingLock_ReleaseWithoutAcquire(t *testing.T) {
	l := NewCountingLock()
	assert.Panics(t, func() { l.Release() })
}

func TestCallbackSemaphore(t *testing.T) {
	s := NewCallbackSemaphore()
	go s.Release()
	assert.Nil(t, s.Wait(context.Background(), time.Second))

	s = NewCallbackSemaphore()
	assert.ErrorIs(t, s.Wait(context.Background(), 10*time.Millisecond), e.ErrTimeout)

	s = NewCallbackSemaphore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Wait(ctx, time.Second), context.Canceled)
}

func TestStatusManager(t *testing.T) {
	s := NewStatusManager()
	assert.True(t, s.Is(Init))
	assert.False(t, s.CompareAndSet(Running, Stopped))
	s.Set(Running)
	assert.True(t, s.CompareAndSet(Running, Stopped))
	assert.True(t, s.Is(Init, Stopped))
	assert.Equal(t, Stopped, s.Get())
}

func TestTimeoutManager_FireAndCancel(t *testing.T) {
	m := NewTimeoutManager()
	fired := make(chan struct{}, 1)
	m.Start(30*time.Millisecond, func() { fired <- struct{}{} })
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer should fire")
	}

	m.Start(50*time.Millisecond, func() { fired <- struct{}{} })
	m.Cancel()
	select {
	case <-fired:
		t.Fatal("timer is cancelled")
	case <-time.After(100 * time.Millisecond):
	}
}
