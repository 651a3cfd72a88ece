package debugger

import (
	"context"

	"github.com/fansqz/js-debugger/constants"
)

// NotificationCallback 调试事件回调，参数是debug_objects.go中定义的事件
type NotificationCallback func(interface{})

// JavascriptVm
// 一个远程javascript vm的调试连接
// 需要保证并发安全
type JavascriptVm interface {
	// Attach 连接vm，完成版本握手并加载脚本
	Attach(ctx context.Context, option *AttachOption) error
	// Detach 断开连接，之后所有的上下文失效
	Detach(ctx context.Context) error
	IsAttached() bool
	// Version 握手得到的V8版本
	Version() string
	// GetScripts 获取已加载的脚本
	GetScripts(ctx context.Context) ([]Script, error)
	// SetBreakpoint 设置断点
	SetBreakpoint(ctx context.Context, option *BreakpointOption) (Breakpoint, error)
	// ListBreakpoints 从vm重新加载断点列表
	ListBreakpoints(ctx context.Context) ([]Breakpoint, error)
	// Suspend 暂停运行中的vm，暂停后通过SuspendedEvent通知
	Suspend(ctx context.Context) error
	// EnableBreakOnException 遇到异常时暂停
	EnableBreakOnException(ctx context.Context, typ constants.ExceptionBreakType, enabled bool) error
	// CurrentContext 当前的调试上下文，vm运行中返回nil
	CurrentContext() DebugContext
	// StructVisual 以结构体为导向的可视化方法，一般用作链表、树、图的可视化
	StructVisual(ctx context.Context, query *StructVisualQuery) (*StructVisualData, error)
	// VariableVisual 以变量导向的可视化方法，一般用作数组的可视化
	VariableVisual(ctx context.Context, query *VariableVisualQuery) (*VariableVisualData, error)
}

// DebugContext
// vm一次暂停期间的调试上下文，恢复执行后失效
type DebugContext interface {
	// State 普通暂停还是异常暂停
	State() ContextState
	// BreakpointsHit 本次命中的断点id
	BreakpointsHit() []int64
	// ExceptionData 异常暂停时的异常信息，普通暂停返回nil
	ExceptionData() *ExceptionData
	// CallFrames 调用栈，0是最内层
	CallFrames() ([]CallFrame, error)
	// ContinueVm 恢复执行，调用后上下文立即失效
	ContinueVm(stepAction constants.StepAction, stepCount int, callback func(err error)) error
	// GlobalEvaluateContext 在全局作用域执行表达式
	GlobalEvaluateContext() EvaluateContext
	IsValid() bool
}

// EvaluateContext 可以执行表达式的上下文
type EvaluateContext interface {
	// EvaluateAsync 异步执行，done在回调之后调用
	EvaluateAsync(expression string, callback EvaluateCallback, done func())
	// EvaluateSync 同步执行，js抛出的异常通过EvaluateResult.Exception返回
	EvaluateSync(ctx context.Context, expression string) (*EvaluateResult, error)
}

// EvaluateCallback 表达式执行结果的三种情况
type EvaluateCallback interface {
	Success(value JsVariable)
	Exception(exception JsVariable)
	Failure(err error)
}

// CallFrame 栈帧
type CallFrame interface {
	EvaluateContext
	Index() int
	// Variables 参数和局部变量
	Variables(ctx context.Context) ([]JsVariable, error)
	// Scopes 作用域链，从内到外
	Scopes() []JsScope
	// Receiver 函数调用时的this
	Receiver(ctx context.Context) (JsValue, error)
	// Script 栈帧所在的脚本，未知时返回nil
	Script() Script
	Line() int
	Column() int
	FunctionName() string
	SourceLineText() string
}

// Breakpoint 断点
// 修改属性只会修改本地状态，调用Flush后才会同步到vm
type Breakpoint interface {
	ID() int64
	Type() constants.BreakpointType
	Target() string
	Line() int
	Column() int
	Enabled() bool
	SetEnabled(enabled bool)
	Condition() string
	SetCondition(condition string)
	IgnoreCount() int
	SetIgnoreCount(count int)
	// Flush 把修改同步到vm，没有修改时不发送请求
	Flush(callback func(err error))
	// Clear 删除断点，调用后ID立即变为InvalidBreakpointID
	Clear(callback func(err error))
}

// InvalidBreakpointID 已经删除的断点id
const InvalidBreakpointID int64 = -1

// Script 已加载的脚本
type Script interface {
	ID() int64
	Name() string
	LineOffset() int
	ColumnOffset() int
	EndLine() int
	Source() string
	IsCollected() bool
	// Outline 脚本中的函数列表
	Outline(ctx context.Context) ([]*FunctionRange, error)
	// FunctionAt 包含某行的最内层函数
	FunctionAt(ctx context.Context, line int) (*FunctionRange, error)
}
