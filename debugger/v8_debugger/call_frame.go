package v8_debugger

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/fansqz/js-debugger/constants"
	"github.com/fansqz/js-debugger/debugger"
	e "github.com/fansqz/js-debugger/error"
	"github.com/fansqz/js-debugger/protocol"
	"github.com/fansqz/js-debugger/utils"
)

// callFrame backtrace中的一个栈帧
type callFrame struct {
	*evaluateContext
	frame        *protocol.FrameObject
	functionName string
	scriptID     int64
	scopes       []debugger.JsScope

	scriptOnce sync.Once
	script     debugger.Script
}

func newCallFrame(vc *valueContext, frame *protocol.FrameObject) *callFrame {
	index := frame.Index
	f := &callFrame{
		evaluateContext: &evaluateContext{vc: vc, frame: &index},
		frame:           frame,
		scriptID:        -1,
	}
	if fn := resolveHandle(vc.loader.Handles(), frame.Func); fn != nil {
		if data, err := fn.Data(); err == nil {
			f.functionName = data.Name
			if f.functionName == "" {
				f.functionName = data.InferredName
			}
		}
	}
	if script := resolveHandle(vc.loader.Handles(), frame.Script); script != nil {
		if data, err := script.Data(); err == nil && data.ID != nil {
			f.scriptID = *data.ID
		}
	}
	f.scopes = make([]debugger.JsScope, 0, len(frame.Scopes))
	for _, scope := range frame.Scopes {
		f.scopes = append(f.scopes, newJsScope(vc, scope.Type, scope.Index, frame.Index))
	}
	return f
}

// resolveHandle 优先使用内联数据，否则从handle缓存中查找
func resolveHandle(handles *HandleManager, h *protocol.RawHandle) *protocol.RawHandle {
	if h == nil {
		return nil
	}
	if h.HasData() {
		return h
	}
	if cached, ok := handles.Get(h.Ref); ok {
		return cached
	}
	return nil
}

func (f *callFrame) Index() int {
	return f.frame.Index
}

func (f *callFrame) Variables(ctx context.Context) ([]debugger.JsVariable, error) {
	if !f.vc.isValid() {
		return nil, e.ErrContextDismissed
	}
	refs := newPropertyReferences(f.frame.Arguments)
	refs = append(refs, newPropertyReferences(f.frame.Locals)...)
	return loadVariables(ctx, f.vc, refs, "")
}

func (f *callFrame) Scopes() []debugger.JsScope {
	return f.scopes
}

func (f *callFrame) Receiver(ctx context.Context) (debugger.JsValue, error) {
	if !f.vc.isValid() {
		return nil, e.ErrContextDismissed
	}
	if f.frame.Receiver == nil {
		return nil, nil
	}
	ref := PropertyReference{Name: "this", Ref: f.frame.Receiver.Ref}
	if f.frame.Receiver.HasData() {
		ref.Inline = f.frame.Receiver
	}
	mirrors, err := f.vc.loader.GetOrLoadValueFromRefs(ctx, []PropertyReference{ref})
	if err != nil {
		return nil, err
	}
	return newJsValue(f.vc, mirrors[0], "this"), nil
}

// Script 第一次访问时才关联脚本
func (f *callFrame) Script() debugger.Script {
	f.scriptOnce.Do(func() {
		if f.scriptID >= 0 && f.vc.scripts != nil {
			f.script = f.vc.scripts.Get(f.scriptID)
		}
	})
	return f.script
}

func (f *callFrame) Line() int {
	return f.frame.Line
}

func (f *callFrame) Column() int {
	return f.frame.Column
}

func (f *callFrame) FunctionName() string {
	return f.functionName
}

func (f *callFrame) SourceLineText() string {
	return f.frame.SourceLineText
}

// evaluateContext 在某个栈帧或者全局执行表达式
type evaluateContext struct {
	vc    *valueContext
	frame *int
}

func (c *evaluateContext) EvaluateAsync(expression string, callback debugger.EvaluateCallback, done func()) {
	if !c.vc.isValid() {
		callback.Failure(e.ErrContextDismissed)
		if done != nil {
			done()
		}
		return
	}
	req := protocol.NewRequest(constants.Evaluate, &protocol.EvaluateArguments{
		Expression:      expression,
		Frame:           c.frame,
		Global:          c.frame == nil,
		MaxStringLength: c.vc.loader.maxStringLength,
	})
	c.vc.sender.Send(req, false, func(resp *protocol.Response, err error) {
		// 表达式可能修改了对象，旧的属性缓存全部作废
		c.vc.loader.Invalidate()
		if err != nil {
			c.failure(expression, resp, err, callback)
			return
		}
		value, err := c.resultValue(resp.Body, expression)
		if err != nil {
			callback.Failure(err)
			return
		}
		callback.Success(value)
	}, done)
}

func (c *evaluateContext) failure(expression string, resp *protocol.Response, err error, callback debugger.EvaluateCallback) {
	var commandErr *e.CommandError
	if !errors.As(err, &commandErr) || resp == nil {
		callback.Failure(err)
		return
	}
	var body protocol.EvaluateFailureBody
	if resp.UnmarshalBody(&body) == nil && body.Exception.HasData() {
		m, installErr := c.vc.loader.Install(body.Exception)
		if installErr == nil {
			callback.Exception(newJsVariable(expression, newJsValue(c.vc, m, ""), ""))
			return
		}
		logrus.Warnf("[EvaluateAsync] parse exception of %q fail, err = %v", expression, installErr)
	}
	callback.Failure(&e.EvaluateError{Expression: expression, Message: commandErr.Message})
}

func (c *evaluateContext) resultValue(body []byte, expression string) (debugger.JsVariable, error) {
	h := &protocol.RawHandle{}
	if err := h.UnmarshalJSON(body); err != nil {
		return nil, err
	}
	c.vc.loader.Handles().Put(h)
	m, err := c.vc.loader.Install(h)
	if err != nil {
		return nil, err
	}
	return newJsVariable(expression, newJsValue(c.vc, m, expression), expression), nil
}

func (c *evaluateContext) EvaluateSync(ctx context.Context, expression string) (*debugger.EvaluateResult, error) {
	sem := utils.NewCallbackSemaphore()
	callback := &syncEvaluateCallback{}
	c.EvaluateAsync(expression, callback, sem.Release)
	if err := sem.Wait(ctx, c.vc.loader.syncTimeout); err != nil {
		return nil, err
	}
	return callback.result, callback.err
}

type syncEvaluateCallback struct {
	result *debugger.EvaluateResult
	err    error
}

func (s *syncEvaluateCallback) Success(value debugger.JsVariable) {
	s.result = &debugger.EvaluateResult{Value: value}
}

func (s *syncEvaluateCallback) Exception(exception debugger.JsVariable) {
	s.result = &debugger.EvaluateResult{Value: exception, Exception: true}
}

func (s *syncEvaluateCallback) Failure(err error) {
	s.err = err
}
