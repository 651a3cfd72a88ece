package utils

import "sync"

// Status 调试会话状态
type Status string

const (
	// Init 还没有连接到vm
	Init Status = "init"
	// Stopped vm暂停，存在有效的调试上下文
	Stopped Status = "stopped"
	// Running vm运行中
	Running Status = "running"
	// Finish 连接已经断开
	Finish Status = "finish"
)

// StatusManager 记录调试会话的状态
type StatusManager struct {
	lock   sync.RWMutex
	status Status
}

func NewStatusManager() *StatusManager {
	return &StatusManager{
		status: Init,
	}
}

func (s *StatusManager) Set(status Status) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.status = status
}

// CompareAndSet 只有当前状态为from时才切换到to
func (s *StatusManager) CompareAndSet(from, to Status) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.status != from {
		return false
	}
	s.status = to
	return true
}

func (s *StatusManager) Get() Status {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.status
}

func (s *StatusManager) Is(statusList ...Status) bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	for _, status := range statusList {
		if s.status == status {
			return true
		}
	}
	return false
}
