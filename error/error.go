package error

import (
	"errors"
	"fmt"
)

var (
	ErrDebuggerDetached     = errors.New("debugger is detached")
	ErrContextDismissed     = errors.New("debug context is dismissed")
	ErrBreakpointCleared    = errors.New("breakpoint is already cleared")
	ErrTimeout              = errors.New("wait for response timeout")
	ErrProgramIsRunning     = errors.New("the program is running")
	ErrAlreadyAttached      = errors.New("debugger is already attached")
	ErrNotAttached          = errors.New("debugger is not attached")
	ErrUnsupportedV8Version = errors.New("unsupported v8 version")
	ErrNotReloadable        = errors.New("value can not be reloaded")
	ErrInvalidReference     = errors.New("invalid variable reference")
)

// CommandError 远端返回success=false的命令
type CommandError struct {
	Command string
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %s", e.Command, e.Message)
}

// ProtocolError 无法解析的协议数据
type ProtocolError struct {
	Message string
	Err     error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Message, e.Err)
	}
	return "protocol error: " + e.Message
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// ValueLoadError 加载值失败，整个批次都失败
type ValueLoadError struct {
	Refs []int64
	Err  error
}

func (e *ValueLoadError) Error() string {
	return fmt.Sprintf("load values %v failed: %v", e.Refs, e.Err)
}

func (e *ValueLoadError) Unwrap() error {
	return e.Err
}

// EvaluateError 表达式执行失败，不包括js异常
type EvaluateError struct {
	Expression string
	Message    string
}

func (e *EvaluateError) Error() string {
	return fmt.Sprintf("evaluate %q failed: %s", e.Expression, e.Message)
}
