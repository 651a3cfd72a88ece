package debugger

import (
	"github.com/fansqz/js-debugger/constants"
)

// AttachOption 连接vm的参数
type AttachOption struct {
	// Callback 事件回调
	Callback NotificationCallback
	// MinVersion 支持的最低V8版本，为空时不检查
	MinVersion string
}

// BreakpointOption 设置断点的参数
type BreakpointOption struct {
	Type        constants.BreakpointType
	Target      string
	Line        int
	Column      int
	Enabled     bool
	Condition   string
	IgnoreCount int
}

// ContextState 上下文状态
type ContextState int

const (
	// StateNormal 断点、单步或者主动暂停
	StateNormal ContextState = iota
	// StateException 因为异常暂停
	StateException
)

// ExceptionData 异常信息
type ExceptionData struct {
	// Exception 抛出的值
	Exception JsValue
	Uncaught  bool
	// SourceText 抛出异常的那一行代码
	SourceText string
	// Message 异常的字符串形式
	Message string
}

// EvaluateResult 表达式执行结果，Exception为true时Value是js抛出的值
type EvaluateResult struct {
	Value     JsVariable
	Exception bool
}

// FunctionRange 脚本中的一个函数，行号从0开始并已经加上脚本的行偏移
type FunctionRange struct {
	Name      string `json:"name"`
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
}

// SuspendedEvent
// vm暂停，Context在下一次恢复执行前有效
type SuspendedEvent struct {
	Context DebugContext
	Reason  constants.StoppedReasonType
}

func NewSuspendedEvent(context DebugContext, reason constants.StoppedReasonType) *SuspendedEvent {
	return &SuspendedEvent{
		Context: context,
		Reason:  reason,
	}
}

// ResumedEvent
// vm恢复执行
type ResumedEvent struct {
}

func NewResumedEvent() *ResumedEvent {
	return &ResumedEvent{}
}

// DisconnectedEvent
// 连接断开，调试会话结束
type DisconnectedEvent struct {
}

func NewDisconnectedEvent() *DisconnectedEvent {
	return &DisconnectedEvent{}
}

// ScriptLoadedEvent 新脚本编译完成
type ScriptLoadedEvent struct {
	Script Script
}

func NewScriptLoadedEvent(script Script) *ScriptLoadedEvent {
	return &ScriptLoadedEvent{Script: script}
}

// ScriptCollectedEvent 脚本被回收
type ScriptCollectedEvent struct {
	ID int64
}

func NewScriptCollectedEvent(id int64) *ScriptCollectedEvent {
	return &ScriptCollectedEvent{ID: id}
}

// OutputEvent
// 被调试程序的输出
type OutputEvent struct {
	Output string // 输出内容
}

func NewOutputEvent(output string) *OutputEvent {
	return &OutputEvent{
		Output: output,
	}
}
