package protocol

import (
	"encoding/json"

	"github.com/fansqz/js-debugger/constants"
)

// Event vm主动推送的事件
type Event struct {
	Seq   int                   `json:"seq"`
	Type  constants.MessageType `json:"type"`
	Event constants.EventType   `json:"event"`
	Body  json.RawMessage       `json:"body,omitempty"`
	Refs  []RawHandle           `json:"refs,omitempty"`
}

func (e *Event) MessageType() constants.MessageType {
	return constants.EventMessage
}

func (e *Event) UnmarshalBody(v interface{}) error {
	if len(e.Body) == 0 {
		return nil
	}
	return json.Unmarshal(e.Body, v)
}

// NewEvent vm端使用
func NewEvent(event constants.EventType, body interface{}) (*Event, error) {
	ev := &Event{Type: constants.EventMessage, Event: event}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		ev.Body = data
	}
	return ev, nil
}

// ScriptRef 事件中的脚本描述
type ScriptRef struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	LineOffset   int    `json:"lineOffset"`
	ColumnOffset int    `json:"columnOffset"`
	LineCount    int    `json:"lineCount"`
}

// BreakEventBody break事件
type BreakEventBody struct {
	InvocationText string     `json:"invocationText,omitempty"`
	SourceLine     int        `json:"sourceLine"`
	SourceColumn   int        `json:"sourceColumn"`
	SourceLineText string     `json:"sourceLineText,omitempty"`
	Script         *ScriptRef `json:"script,omitempty"`
	// Breakpoints 命中的断点id
	Breakpoints []int64 `json:"breakpoints,omitempty"`
}

// ExceptionEventBody exception事件
type ExceptionEventBody struct {
	Uncaught       bool       `json:"uncaught"`
	Exception      *RawHandle `json:"exception,omitempty"`
	SourceLine     int        `json:"sourceLine"`
	SourceColumn   int        `json:"sourceColumn"`
	SourceLineText string     `json:"sourceLineText,omitempty"`
	Script         *ScriptRef `json:"script,omitempty"`
}

type AfterCompileEventBody struct {
	Script ScriptObject `json:"script"`
}

type ScriptCollectedEventBody struct {
	Script struct {
		ID int64 `json:"id"`
	} `json:"script"`
}
