package constants

// ScriptType scripts命令中的脚本类型，可以按位组合
type ScriptType int

const (
	ScriptNative    ScriptType = 1
	ScriptExtension ScriptType = 2
	ScriptNormal    ScriptType = 4
)

// ScopeType V8协议中的作用域类型
type ScopeType int

const (
	ScopeGlobal  ScopeType = 0
	ScopeLocal   ScopeType = 1
	ScopeWith    ScopeType = 2
	ScopeClosure ScopeType = 3
	ScopeCatch   ScopeType = 4
)

func (s ScopeType) String() string {
	switch s {
	case ScopeGlobal:
		return "global"
	case ScopeLocal:
		return "local"
	case ScopeWith:
		return "with"
	case ScopeClosure:
		return "closure"
	case ScopeCatch:
		return "catch"
	}
	return "unknown"
}

// StoppedReasonType 程序停止类型，用于dap的stopped事件
type StoppedReasonType string

const (
	BreakpointStopped StoppedReasonType = "breakpoint"
	ExceptionStopped  StoppedReasonType = "exception"
	StepStopped       StoppedReasonType = "step"
	PauseStopped      StoppedReasonType = "pause"
)
