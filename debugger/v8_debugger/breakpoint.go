package v8_debugger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fansqz/js-debugger/constants"
	"github.com/fansqz/js-debugger/debugger"
	e "github.com/fansqz/js-debugger/error"
	"github.com/fansqz/js-debugger/protocol"
	"github.com/fansqz/js-debugger/utils"
)

// breakpoint 断点，修改会标记dirty，Flush时才发送changebreakpoint
type breakpoint struct {
	lock        sync.Mutex
	id          int64
	typ         constants.BreakpointType
	target      string
	line        int
	column      int
	enabled     bool
	condition   string
	ignoreCount int
	dirty       bool
	manager     *BreakpointManager
}

func (b *breakpoint) ID() int64 {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.id
}

func (b *breakpoint) Type() constants.BreakpointType {
	return b.typ
}

func (b *breakpoint) Target() string {
	return b.target
}

func (b *breakpoint) Line() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.line
}

func (b *breakpoint) Column() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.column
}

func (b *breakpoint) Enabled() bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.enabled
}

func (b *breakpoint) SetEnabled(enabled bool) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.enabled != enabled {
		b.enabled = enabled
		b.dirty = true
	}
}

func (b *breakpoint) Condition() string {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.condition
}

func (b *breakpoint) SetCondition(condition string) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.condition != condition {
		b.condition = condition
		b.dirty = true
	}
}

func (b *breakpoint) IgnoreCount() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.ignoreCount
}

func (b *breakpoint) SetIgnoreCount(count int) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.ignoreCount != count {
		b.ignoreCount = count
		b.dirty = true
	}
}

// IsDirty 是否有未同步的修改
func (b *breakpoint) IsDirty() bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.dirty
}

// Flush 没有修改时直接回调，不发送请求
func (b *breakpoint) Flush(callback func(err error)) {
	b.lock.Lock()
	if b.id == debugger.InvalidBreakpointID {
		b.lock.Unlock()
		invoke(callback, e.ErrBreakpointCleared)
		return
	}
	if !b.dirty {
		b.lock.Unlock()
		invoke(callback, nil)
		return
	}
	args := &protocol.ChangeBreakpointArguments{
		Breakpoint:  b.id,
		Enabled:     b.enabled,
		Condition:   b.condition,
		IgnoreCount: b.ignoreCount,
	}
	b.dirty = false
	b.lock.Unlock()
	b.manager.changeBreakpoint(args, callback)
}

// Clear id立即变为InvalidBreakpointID，之后不能再使用
func (b *breakpoint) Clear(callback func(err error)) {
	b.lock.Lock()
	id := b.id
	if id == debugger.InvalidBreakpointID {
		b.lock.Unlock()
		invoke(callback, e.ErrBreakpointCleared)
		return
	}
	b.id = debugger.InvalidBreakpointID
	b.lock.Unlock()
	b.manager.clearBreakpoint(id, callback)
}

// update 用vm返回的断点信息覆盖本地状态
func (b *breakpoint) update(info *protocol.BreakpointInfo) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.enabled = info.Active
	b.condition = info.Condition
	b.ignoreCount = info.IgnoreCount
	b.line = info.Line
	b.column = info.Column
	b.dirty = false
}

func invoke(callback func(err error), err error) {
	if callback != nil {
		callback(err)
	}
}

// BreakpointManager 断点注册表，key是vm分配的断点id
type BreakpointManager struct {
	sender commandSender
	// running vm运行中时断点命令附带immediate
	running     func() bool
	lock        sync.RWMutex
	breakpoints map[int64]*breakpoint
}

func NewBreakpointManager(sender commandSender, running func() bool) *BreakpointManager {
	if running == nil {
		running = func() bool { return false }
	}
	return &BreakpointManager{
		sender:      sender,
		running:     running,
		breakpoints: map[int64]*breakpoint{},
	}
}

// SetBreakpoint 设置断点，成功后加入注册表
func (m *BreakpointManager) SetBreakpoint(option *debugger.BreakpointOption, callback func(bp debugger.Breakpoint, err error)) {
	args := &protocol.SetBreakpointArguments{
		Type:        option.Type,
		Target:      option.Target,
		Enabled:     option.Enabled,
		Condition:   option.Condition,
		IgnoreCount: option.IgnoreCount,
	}
	if option.Type != constants.FunctionBreakpoint {
		line, column := option.Line, option.Column
		args.Line = &line
		if column > 0 {
			args.Column = &column
		}
	}
	req := protocol.NewRequest(constants.SetBreakpoint, args)
	m.sender.Send(req, m.running(), func(resp *protocol.Response, err error) {
		if err != nil {
			if callback != nil {
				callback(nil, err)
			}
			return
		}
		var body protocol.SetBreakpointBody
		if err = resp.UnmarshalBody(&body); err != nil {
			if callback != nil {
				callback(nil, &e.ProtocolError{Message: "parse setbreakpoint body", Err: err})
			}
			return
		}
		bp := &breakpoint{
			id:          body.Breakpoint,
			typ:         option.Type,
			target:      option.Target,
			line:        option.Line,
			column:      option.Column,
			enabled:     option.Enabled,
			condition:   option.Condition,
			ignoreCount: option.IgnoreCount,
			manager:     m,
		}
		m.lock.Lock()
		m.breakpoints[bp.id] = bp
		m.lock.Unlock()
		if callback != nil {
			callback(bp, nil)
		}
	}, nil)
}

// SetBreakpointSync SetBreakpoint的同步版本
func (m *BreakpointManager) SetBreakpointSync(ctx context.Context, option *debugger.BreakpointOption, timeout time.Duration) (debugger.Breakpoint, error) {
	sem := utils.NewCallbackSemaphore()
	var answer debugger.Breakpoint
	var answerErr error
	m.SetBreakpoint(option, func(bp debugger.Breakpoint, err error) {
		answer, answerErr = bp, err
		sem.Release()
	})
	if err := sem.Wait(ctx, timeout); err != nil {
		return nil, err
	}
	return answer, answerErr
}

func (m *BreakpointManager) changeBreakpoint(args *protocol.ChangeBreakpointArguments, callback func(err error)) {
	req := protocol.NewRequest(constants.ChangeBreakpoint, args)
	m.sender.Send(req, m.running(), func(_ *protocol.Response, err error) {
		invoke(callback, err)
	}, nil)
}

func (m *BreakpointManager) clearBreakpoint(id int64, callback func(err error)) {
	m.lock.Lock()
	delete(m.breakpoints, id)
	m.lock.Unlock()
	req := protocol.NewRequest(constants.ClearBreakpoint, &protocol.ClearBreakpointArguments{Breakpoint: id})
	m.sender.Send(req, m.running(), func(_ *protocol.Response, err error) {
		invoke(callback, err)
	}, nil)
}

// ListBreakpoints 重新加载vm中的断点列表，本地注册表和vm保持一致
func (m *BreakpointManager) ListBreakpoints(callback func(bps []debugger.Breakpoint, err error)) {
	req := protocol.NewRequest(constants.ListBreakpoints, nil)
	m.sender.Send(req, false, func(resp *protocol.Response, err error) {
		if err != nil {
			if callback != nil {
				callback(nil, err)
			}
			return
		}
		var body protocol.ListBreakpointsBody
		if err = resp.UnmarshalBody(&body); err != nil {
			if callback != nil {
				callback(nil, &e.ProtocolError{Message: "parse listbreakpoints body", Err: err})
			}
			return
		}
		m.sync(body.Breakpoints)
		if callback != nil {
			callback(m.All(), nil)
		}
	}, nil)
}

func (m *BreakpointManager) sync(infos []protocol.BreakpointInfo) {
	m.lock.Lock()
	defer m.lock.Unlock()
	remote := make(map[int64]*breakpoint, len(infos))
	for i := range infos {
		info := &infos[i]
		bp, ok := m.breakpoints[info.Number]
		if !ok {
			bp = &breakpoint{
				id:      info.Number,
				typ:     constants.BreakpointType(info.Type),
				target:  info.ScriptName,
				manager: m,
			}
			if bp.typ == constants.ScriptIDBreakpoint && info.ScriptID != nil {
				bp.target = refKey(*info.ScriptID)
			}
		}
		bp.update(info)
		remote[info.Number] = bp
	}
	m.breakpoints = remote
}

// Get 不存在时返回nil
func (m *BreakpointManager) Get(id int64) debugger.Breakpoint {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if bp, ok := m.breakpoints[id]; ok {
		return bp
	}
	return nil
}

// All 按id排序
func (m *BreakpointManager) All() []debugger.Breakpoint {
	m.lock.RLock()
	defer m.lock.RUnlock()
	ids := make([]int64, 0, len(m.breakpoints))
	for id := range m.breakpoints {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	answer := make([]debugger.Breakpoint, 0, len(ids))
	for _, id := range ids {
		answer = append(answer, m.breakpoints[id])
	}
	return answer
}

// Reset 连接断开后清空注册表
func (m *BreakpointManager) Reset() {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.breakpoints = map[int64]*breakpoint{}
}
