package utils

import "sync"

// CountingLock 计数屏障
// 进行中的操作调用Acquire/Release，需要等待它们全部结束的一方调用Await
type CountingLock struct {
	lock  sync.Mutex
	cond  *sync.Cond
	count int
}

func NewCountingLock() *CountingLock {
	l := &CountingLock{}
	l.cond = sync.NewCond(&l.lock)
	return l
}

func (l *CountingLock) Acquire() {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.count++
}

func (l *CountingLock) Release() {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.count == 0 {
		panic("CountingLock: release without acquire")
	}
	l.count--
	if l.count == 0 {
		l.cond.Broadcast()
	}
}

// Await 阻塞直到计数归零
func (l *CountingLock) Await() {
	l.lock.Lock()
	defer l.lock.Unlock()
	for l.count > 0 {
		l.cond.Wait()
	}
}

func (l *CountingLock) Count() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.count
}
