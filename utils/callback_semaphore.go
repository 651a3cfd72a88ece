package utils

import (
	"context"
	"time"

	e "github.com/fansqz/js-debugger/error"
)

// DefaultSyncTimeout 同步等待回调的默认超时时间
const DefaultSyncTimeout = 30 * time.Second

// CallbackSemaphore 把异步回调转成同步等待
type CallbackSemaphore struct {
	ch chan struct{}
}

func NewCallbackSemaphore() *CallbackSemaphore {
	return &CallbackSemaphore{ch: make(chan struct{}, 1)}
}

// Release 回调结束时调用，多次调用只有第一次生效
func (s *CallbackSemaphore) Release() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// Wait 等待Release，超时返回ErrTimeout
func (s *CallbackSemaphore) Wait(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultSyncTimeout
	}
	select {
	case <-s.ch:
		return nil
	case <-time.After(timeout):
		return e.ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
