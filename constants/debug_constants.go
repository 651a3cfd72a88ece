package constants

// MessageType V8 调试协议的消息类型
type MessageType string

const (
	RequestMessage  MessageType = "request"
	ResponseMessage MessageType = "response"
	EventMessage    MessageType = "event"
)

// CommandType V8 调试协议的命令
type CommandType string

const (
	// Lookup 根据handle查询对象的完整描述
	Lookup CommandType = "lookup"
	// Evaluate 在某个栈帧或全局上下文中执行表达式
	Evaluate CommandType = "evaluate"
	// Backtrace 获取当前暂停位置的调用栈
	Backtrace CommandType = "backtrace"
	Frame     CommandType = "frame"
	// Scope 获取某个栈帧的某个作用域
	Scope  CommandType = "scope"
	Scopes CommandType = "scopes"
	// Scripts 获取已加载的脚本
	Scripts CommandType = "scripts"
	// Continue 恢复执行，可以携带单步类型
	Continue CommandType = "continue"
	// Suspend 暂停正在运行的vm
	Suspend           CommandType = "suspend"
	SetBreakpoint     CommandType = "setbreakpoint"
	ChangeBreakpoint  CommandType = "changebreakpoint"
	ClearBreakpoint   CommandType = "clearbreakpoint"
	ListBreakpoints   CommandType = "listbreakpoints"
	SetExceptionBreak CommandType = "setexceptionbreak"
	Version           CommandType = "version"
	Disconnect        CommandType = "disconnect"
)

// EventType V8 主动推送的事件
type EventType string

const (
	BreakEvent           EventType = "break"
	ExceptionEvent       EventType = "exception"
	AfterCompileEvent    EventType = "afterCompile"
	ScriptCollectedEvent EventType = "scriptCollected"
)

// StepAction continue命令的单步类型，空字符串表示直接恢复执行
type StepAction string

const (
	StepNone StepAction = ""
	StepIn   StepAction = "in"
	StepNext StepAction = "next"
	StepOut  StepAction = "out"
)

// BreakpointType 断点目标的类型
type BreakpointType string

const (
	// ScriptNameBreakpoint 按脚本名称设置断点
	ScriptNameBreakpoint BreakpointType = "script"
	// ScriptIDBreakpoint 按脚本id设置断点
	ScriptIDBreakpoint BreakpointType = "scriptId"
	// FunctionBreakpoint 按函数表达式设置断点
	FunctionBreakpoint BreakpointType = "function"
)

// ExceptionBreakType 异常断点类型
type ExceptionBreakType string

const (
	ExceptionBreakAll      ExceptionBreakType = "all"
	ExceptionBreakUncaught ExceptionBreakType = "uncaught"
)

// 协议中handle的类型字段
const (
	HandleUndefined = "undefined"
	HandleNull      = "null"
	HandleBoolean   = "boolean"
	HandleNumber    = "number"
	HandleString    = "string"
	HandleObject    = "object"
	HandleFunction  = "function"
	HandleRegexp    = "regexp"
	HandleError     = "error"
	HandleScript    = "script"
	HandleContext   = "context"
	HandleFrame     = "frame"
)

var handleTypes = map[string]bool{
	HandleUndefined: true,
	HandleNull:      true,
	HandleBoolean:   true,
	HandleNumber:    true,
	HandleString:    true,
	HandleObject:    true,
	HandleFunction:  true,
	HandleRegexp:    true,
	HandleError:     true,
	HandleScript:    true,
	HandleContext:   true,
	HandleFrame:     true,
}

// IsHandleType 是否是协议定义的handle类型
func IsHandleType(typ string) bool {
	return handleTypes[typ]
}

// 协议中用来区分特殊对象的className
const (
	ClassArray    = "Array"
	ClassDate     = "Date"
	ClassError    = "Error"
	ClassFunction = "Function"
	ClassObject   = "Object"
	ClassRegExp   = "RegExp"
)

// ImmediateExpression 用来促使vm立即处理命令队列的表达式
const ImmediateExpression = "javascript:void(0);"
