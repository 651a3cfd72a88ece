package utils

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// TimeoutManager 空闲计时器
// 如果在timeout时间内没有执行Reset，就会执行超时函数
type TimeoutManager struct {
	lock    sync.Mutex
	timer   *time.Timer
	timeout time.Duration
	fun     func()
}

func NewTimeoutManager() *TimeoutManager {
	return &TimeoutManager{}
}

// Start 开始计时，timeout小于等于0时不计时
func (t *TimeoutManager) Start(timeout time.Duration, fun func()) {
	if timeout <= 0 {
		return
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timeout = timeout
	t.fun = fun
	t.timer = time.AfterFunc(timeout, func() {
		logrus.Infof("[TimeoutManager] timer expired, performing action")
		fun()
	})
}

// Reset 重新开始计时
func (t *TimeoutManager) Reset() {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.timer == nil {
		return
	}
	t.timer.Stop()
	t.timer.Reset(t.timeout)
}

// Cancel 取消计时
func (t *TimeoutManager) Cancel() {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
