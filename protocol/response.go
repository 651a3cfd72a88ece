package protocol

import (
	"encoding/json"

	"github.com/fansqz/js-debugger/constants"
)

// Response vm对命令的响应
type Response struct {
	Seq        int                   `json:"seq"`
	Type       constants.MessageType `json:"type"`
	RequestSeq int                   `json:"request_seq"`
	Command    constants.CommandType `json:"command"`
	Success    bool                  `json:"success"`
	Message    string                `json:"message,omitempty"`
	// Running vm在响应发出后是否处于运行状态
	Running bool            `json:"running"`
	Body    json.RawMessage `json:"body,omitempty"`
	// Refs 响应中引用到的对象
	Refs []RawHandle `json:"refs,omitempty"`
}

func (r *Response) MessageType() constants.MessageType {
	return constants.ResponseMessage
}

func (r *Response) UnmarshalBody(v interface{}) error {
	if len(r.Body) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}

// NewResponse 创建对某个请求的响应，vm端使用
func NewResponse(request *Request, success bool, body interface{}) (*Response, error) {
	r := &Response{
		Type:       constants.ResponseMessage,
		RequestSeq: request.Seq,
		Command:    request.Command,
		Success:    success,
	}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r.Body = data
	}
	return r, nil
}

// FrameObject backtrace中的一个栈帧
type FrameObject struct {
	Index          int              `json:"index"`
	Receiver       *RawHandle       `json:"receiver,omitempty"`
	Func           *RawHandle       `json:"func,omitempty"`
	Script         *RawHandle       `json:"script,omitempty"`
	ConstructCall  bool             `json:"constructCall,omitempty"`
	AtReturn       bool             `json:"atReturn,omitempty"`
	Arguments      []PropertyObject `json:"arguments"`
	Locals         []PropertyObject `json:"locals"`
	Position       int              `json:"position"`
	Line           int              `json:"line"`
	Column         int              `json:"column"`
	SourceLineText string           `json:"sourceLineText,omitempty"`
	Scopes         []ScopeRef       `json:"scopes"`
	Text           string           `json:"text,omitempty"`
}

// ScopeRef 栈帧中的作用域描述
type ScopeRef struct {
	Type  constants.ScopeType `json:"type"`
	Index int                 `json:"index"`
}

type BacktraceBody struct {
	FromFrame   int           `json:"fromFrame"`
	ToFrame     int           `json:"toFrame"`
	TotalFrames int           `json:"totalFrames"`
	Frames      []FrameObject `json:"frames"`
}

// ScopeBody scope命令的响应，object是作用域对应的对象
type ScopeBody struct {
	Type       constants.ScopeType `json:"type"`
	Index      int                 `json:"index"`
	FrameIndex int                 `json:"frameIndex"`
	Object     *RawHandle          `json:"object,omitempty"`
}

type ScopesBody struct {
	FromScope   int         `json:"fromScope"`
	ToScope     int         `json:"toScope"`
	TotalScopes int         `json:"totalScopes"`
	Scopes      []ScopeBody `json:"scopes"`
}

// ScriptObject 脚本描述
type ScriptObject struct {
	Handle          int64  `json:"handle,omitempty"`
	Type            string `json:"type,omitempty"`
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	LineOffset      int    `json:"lineOffset"`
	ColumnOffset    int    `json:"columnOffset"`
	LineCount       int    `json:"lineCount"`
	Source          string `json:"source,omitempty"`
	SourceLength    int    `json:"sourceLength,omitempty"`
	ScriptType      int    `json:"scriptType,omitempty"`
	CompilationType int    `json:"compilationType,omitempty"`
}

// Location 断点实际命中的位置
type Location struct {
	Line     int   `json:"line"`
	Column   int   `json:"column"`
	ScriptID int64 `json:"script_id"`
}

type SetBreakpointBody struct {
	Type            string     `json:"type"`
	Breakpoint      int64      `json:"breakpoint"`
	ScriptName      string     `json:"script_name,omitempty"`
	Line            *int       `json:"line,omitempty"`
	Column          *int       `json:"column,omitempty"`
	ActualLocations []Location `json:"actual_locations,omitempty"`
}

// BreakpointInfo listbreakpoints中的一个断点
type BreakpointInfo struct {
	Number          int64      `json:"number"`
	Type            string     `json:"type"`
	ScriptName      string     `json:"script_name,omitempty"`
	ScriptID        *int64     `json:"script_id,omitempty"`
	Line            int        `json:"line"`
	Column          int        `json:"column"`
	HitCount        int        `json:"hit_count"`
	Active          bool       `json:"active"`
	Condition       string     `json:"condition,omitempty"`
	IgnoreCount     int        `json:"ignoreCount"`
	ActualLocations []Location `json:"actual_locations,omitempty"`
}

type ListBreakpointsBody struct {
	Breakpoints               []BreakpointInfo `json:"breakpoints"`
	BreakOnExceptions         bool             `json:"breakOnExceptions"`
	BreakOnUncaughtExceptions bool             `json:"breakOnUncaughtExceptions"`
}

type VersionBody struct {
	V8Version string `json:"V8Version"`
}

type SetExceptionBreakBody struct {
	Type    constants.ExceptionBreakType `json:"type"`
	Enabled bool                         `json:"enabled"`
}

// EvaluateFailureBody evaluate失败时，如果是js抛出的异常，body中带有异常值
type EvaluateFailureBody struct {
	Exception *RawHandle `json:"exception,omitempty"`
}
