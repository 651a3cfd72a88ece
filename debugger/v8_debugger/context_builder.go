package v8_debugger

import (
	"sync"

	"github.com/fansqz/js-debugger/debugger"
	"github.com/fansqz/js-debugger/protocol"
	"github.com/fansqz/js-debugger/utils"
)

// contextFactory 根据暂停状态和栈帧创建上下文
type contextFactory func(state *contextState, frames []protocol.FrameObject) *debugContext

// contextState 暂停时的状态：命中的断点和异常
type contextState struct {
	breakpointsHit []int64
	exception      *protocol.ExceptionEventBody
}

// ContextBuilder 调试上下文的构建状态机
// BuildNewContext -> SetContextState -> SetFrames，同一时间只能有一个构建中的上下文
// 步骤调用顺序错误属于程序错误，会直接panic
type ContextBuilder struct {
	lock        sync.Mutex
	factory     contextFactory
	currentStep interface{}
	current     *debugContext
}

func NewContextBuilder(factory contextFactory) *ContextBuilder {
	return &ContextBuilder{factory: factory}
}

// ExpectingBreakEventStep 等待暂停事件的步骤
type ExpectingBreakEventStep struct {
	builder *ContextBuilder
}

// ExpectingBacktraceStep 等待调用栈的步骤
type ExpectingBacktraceStep struct {
	builder *ContextBuilder
	state   *contextState
}

func (b *ContextBuilder) BuildNewContext() *ExpectingBreakEventStep {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.currentStep != nil {
		panic("ContextBuilder: another context is being built")
	}
	step := &ExpectingBreakEventStep{builder: b}
	b.currentStep = step
	return step
}

func (b *ContextBuilder) checkStep(step interface{}) {
	if b.currentStep != step {
		panic("ContextBuilder: step is not current")
	}
}

// SetContextState 记录命中的断点，exception不为空表示异常暂停
// 断点id去重并排序
func (s *ExpectingBreakEventStep) SetContextState(breakpointsHit []int64, exception *protocol.ExceptionEventBody) *ExpectingBacktraceStep {
	if len(breakpointsHit) > 0 {
		breakpointsHit = utils.SortedInt64s(utils.List2set(breakpointsHit))
	}
	b := s.builder
	b.lock.Lock()
	defer b.lock.Unlock()
	b.checkStep(s)
	next := &ExpectingBacktraceStep{
		builder: b,
		state:   &contextState{breakpointsHit: breakpointsHit, exception: exception},
	}
	b.currentStep = next
	return next
}

// SetFrames 完成构建并发布上下文
func (s *ExpectingBacktraceStep) SetFrames(frames []protocol.FrameObject) debugger.DebugContext {
	b := s.builder
	b.lock.Lock()
	defer b.lock.Unlock()
	b.checkStep(s)
	ctx := b.factory(s.state, frames)
	b.current = ctx
	b.currentStep = nil
	return ctx
}

// IsCurrentStep step是否还是正在构建的步骤，强制取消后会返回false
func (b *ContextBuilder) IsCurrentStep(step interface{}) bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.currentStep == step
}

func (b *ContextBuilder) IsBuilding() bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.currentStep != nil
}

// ForceCancelContext 放弃正在构建的上下文
func (b *ContextBuilder) ForceCancelContext() {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.currentStep = nil
}

// CurrentContext 已经发布的上下文，没有时返回nil
func (b *ContextBuilder) CurrentContext() *debugContext {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.current
}

// DismissContext 只有ctx是当前上下文时才清除
func (b *ContextBuilder) DismissContext(ctx *debugContext) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.current == ctx {
		b.current = nil
	}
	ctx.valid.Store(false)
}
