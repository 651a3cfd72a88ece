package v8_debugger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fansqz/js-debugger/protocol"
)

func newTestBuilder() *ContextBuilder {
	return NewContextBuilder(func(state *contextState, frames []protocol.FrameObject) *debugContext {
		ctx := &debugContext{breakpointsHit: state.breakpointsHit}
		ctx.valid.Store(true)
		return ctx
	})
}

func TestContextBuilder_Build(t *testing.T) {
	b := newTestBuilder()
	assert.False(t, b.IsBuilding())

	step := b.BuildNewContext().SetContextState([]int64{2}, nil)
	assert.True(t, b.IsBuilding())
	assert.True(t, b.IsCurrentStep(step))

	ctx := step.SetFrames(nil)
	assert.False(t, b.IsBuilding())
	assert.Equal(t, []int64{2}, ctx.BreakpointsHit())
	assert.Same(t, b.CurrentContext(), ctx)

	b.DismissContext(b.CurrentContext())
	assert.Nil(t, b.CurrentContext())
	assert.False(t, ctx.IsValid())
}

func TestContextBuilder_DuplicateBreakpoints(t *testing.T) {
	b := newTestBuilder()
	ctx := b.BuildNewContext().SetContextState([]int64{5, 1, 5}, nil).SetFrames(nil)
	assert.Equal(t, []int64{1, 5}, ctx.BreakpointsHit())
}

func TestContextBuilder_Misuse(t *testing.T) {
	b := newTestBuilder()
	first := b.BuildNewContext()
	// 上一个上下文还在构建
	assert.Panics(t, func() { b.BuildNewContext() })

	step := first.SetContextState(nil, nil)
	// 同一个步骤不能执行两次
	assert.Panics(t, func() { first.SetContextState(nil, nil) })

	b.ForceCancelContext()
	assert.False(t, b.IsCurrentStep(step))
	assert.Panics(t, func() { step.SetFrames(nil) })

	// 取消后可以重新开始
	assert.NotPanics(t, func() {
		b.BuildNewContext().SetContextState(nil, nil).SetFrames(nil)
	})
}

func TestContextBuilder_DismissStale(t *testing.T) {
	b := newTestBuilder()
	old := b.BuildNewContext().SetContextState(nil, nil).SetFrames(nil).(*debugContext)
	current := b.BuildNewContext().SetContextState(nil, nil).SetFrames(nil).(*debugContext)

	// 旧的上下文不会清除当前上下文
	b.DismissContext(old)
	assert.Same(t, current, b.CurrentContext())
	assert.False(t, old.IsValid())
	assert.True(t, current.IsValid())
}
