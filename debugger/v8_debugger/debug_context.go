package v8_debugger

import (
	"sync/atomic"

	"github.com/fansqz/js-debugger/constants"
	"github.com/fansqz/js-debugger/debugger"
	e "github.com/fansqz/js-debugger/error"
	"github.com/fansqz/js-debugger/protocol"
)

// debugContext vm一次暂停期间的上下文
type debugContext struct {
	session        *DebugSession
	vc             *valueContext
	valid          atomic.Bool
	state          debugger.ContextState
	breakpointsHit []int64
	exceptionData  *debugger.ExceptionData
	frames         []debugger.CallFrame
}

func newDebugContext(session *DebugSession, state *contextState, frames []protocol.FrameObject) *debugContext {
	ctx := &debugContext{
		session:        session,
		breakpointsHit: state.breakpointsHit,
	}
	ctx.valid.Store(true)
	ctx.vc = &valueContext{
		loader:  session.loader,
		sender:  session.processor,
		scripts: session.scripts,
		valid:   ctx.IsValid,
	}
	if state.exception != nil {
		ctx.state = debugger.StateException
		ctx.exceptionData = ctx.newExceptionData(state.exception)
	}
	ctx.frames = make([]debugger.CallFrame, 0, len(frames))
	for i := range frames {
		ctx.frames = append(ctx.frames, newCallFrame(ctx.vc, &frames[i]))
	}
	return ctx
}

func (c *debugContext) newExceptionData(body *protocol.ExceptionEventBody) *debugger.ExceptionData {
	data := &debugger.ExceptionData{
		Uncaught:   body.Uncaught,
		SourceText: body.SourceLineText,
	}
	if body.Exception.HasData() {
		c.vc.loader.Handles().Put(body.Exception)
		if m, err := c.vc.loader.Install(body.Exception); err == nil {
			data.Exception = newJsValue(c.vc, m, "")
			data.Message = m.Value().String()
		} else {
			c.session.log.Warnf("[debugContext] parse exception fail, err = %v", err)
		}
	}
	return data
}

func (c *debugContext) State() debugger.ContextState {
	return c.state
}

func (c *debugContext) BreakpointsHit() []int64 {
	return c.breakpointsHit
}

func (c *debugContext) ExceptionData() *debugger.ExceptionData {
	return c.exceptionData
}

func (c *debugContext) CallFrames() ([]debugger.CallFrame, error) {
	if !c.IsValid() {
		return nil, e.ErrContextDismissed
	}
	return c.frames, nil
}

// ContinueVm 先让上下文失效再发送continue
func (c *debugContext) ContinueVm(stepAction constants.StepAction, stepCount int, callback func(err error)) error {
	if !c.valid.CompareAndSwap(true, false) {
		return e.ErrContextDismissed
	}
	c.session.resume(c, stepAction, stepCount, callback)
	return nil
}

func (c *debugContext) GlobalEvaluateContext() debugger.EvaluateContext {
	return &evaluateContext{vc: c.vc}
}

func (c *debugContext) IsValid() bool {
	return c.valid.Load()
}
