package protocol

import (
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/fansqz/js-debugger/constants"
)

// Request 发给vm的命令
type Request struct {
	Seq     int                   `json:"seq"`
	Type    constants.MessageType `json:"type"`
	Command constants.CommandType `json:"command"`
	// 参数在构造时就序列化好
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

func (r *Request) MessageType() constants.MessageType {
	return constants.RequestMessage
}

// NewRequest 创建命令，seq由发送方分配
func NewRequest(command constants.CommandType, arguments interface{}) *Request {
	r := &Request{Type: constants.RequestMessage, Command: command}
	if arguments != nil {
		data, err := json.Marshal(arguments)
		if err != nil {
			logrus.Errorf("[NewRequest] marshal arguments of %s fail, err = %v", command, err)
		} else {
			r.Arguments = data
		}
	}
	return r
}

// UnmarshalArguments 解析命令参数，没有参数时不修改v
func (r *Request) UnmarshalArguments(v interface{}) error {
	if len(r.Arguments) == 0 || string(r.Arguments) == "null" {
		return nil
	}
	return json.Unmarshal(r.Arguments, v)
}

// LookupArguments 根据handle查询对象
type LookupArguments struct {
	Handles         []int64 `json:"handles"`
	IncludeSource   bool    `json:"includeSource,omitempty"`
	MaxStringLength int     `json:"maxStringLength,omitempty"`
	InlineRefs      bool    `json:"inlineRefs,omitempty"`
}

// AdditionalContext 执行表达式时额外注入的变量
type AdditionalContext struct {
	Name   string `json:"name"`
	Handle int64  `json:"handle"`
}

// EvaluateArguments 执行表达式
type EvaluateArguments struct {
	Expression string `json:"expression"`
	// 栈帧编号，为空时使用栈顶
	Frame             *int                `json:"frame,omitempty"`
	Global            bool                `json:"global,omitempty"`
	DisableBreak      bool                `json:"disable_break,omitempty"`
	AdditionalContext []AdditionalContext `json:"additional_context,omitempty"`
	InlineRefs        bool                `json:"inlineRefs,omitempty"`
	MaxStringLength   int                 `json:"maxStringLength,omitempty"`
}

// BacktraceArguments 获取调用栈
type BacktraceArguments struct {
	FromFrame  *int `json:"fromFrame,omitempty"`
	ToFrame    *int `json:"toFrame,omitempty"`
	Bottom     bool `json:"bottom,omitempty"`
	InlineRefs bool `json:"inlineRefs,omitempty"`
}

type FrameArguments struct {
	Number int `json:"number"`
}

// ScopeArguments 获取某个栈帧的第number个作用域
type ScopeArguments struct {
	Number      int  `json:"number"`
	FrameNumber *int `json:"frameNumber,omitempty"`
	InlineRefs  bool `json:"inlineRefs,omitempty"`
}

type ScopesArguments struct {
	FrameNumber *int `json:"frameNumber,omitempty"`
	InlineRefs  bool `json:"inlineRefs,omitempty"`
}

// ScriptsArguments 获取脚本，types是ScriptType的按位组合
type ScriptsArguments struct {
	Types         int     `json:"types,omitempty"`
	IDs           []int64 `json:"ids,omitempty"`
	IncludeSource bool    `json:"includeSource,omitempty"`
	Filter        string  `json:"filter,omitempty"`
}

type ContinueArguments struct {
	StepAction constants.StepAction `json:"stepaction,omitempty"`
	StepCount  int                  `json:"stepcount,omitempty"`
}

type SetBreakpointArguments struct {
	Type        constants.BreakpointType `json:"type"`
	Target      string                   `json:"target"`
	Line        *int                     `json:"line,omitempty"`
	Column      *int                     `json:"column,omitempty"`
	Enabled     bool                     `json:"enabled"`
	Condition   string                   `json:"condition,omitempty"`
	IgnoreCount int                      `json:"ignoreCount,omitempty"`
}

type ChangeBreakpointArguments struct {
	Breakpoint  int64  `json:"breakpoint"`
	Enabled     bool   `json:"enabled"`
	Condition   string `json:"condition"`
	IgnoreCount int    `json:"ignoreCount"`
}

type ClearBreakpointArguments struct {
	Breakpoint int64 `json:"breakpoint"`
}

type SetExceptionBreakArguments struct {
	Type    constants.ExceptionBreakType `json:"type"`
	Enabled bool                         `json:"enabled"`
}
