package protocol

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/fansqz/js-debugger/constants"
	e "github.com/fansqz/js-debugger/error"
)

// Message Request、Response、Event其中之一
type Message interface {
	MessageType() constants.MessageType
}

// Decode 解析一条完整的协议消息
func Decode(data []byte) (Message, error) {
	if !gjson.ValidBytes(data) {
		return nil, &e.ProtocolError{Message: "invalid json: " + truncate(string(data))}
	}
	var msg Message
	typ := constants.MessageType(gjson.GetBytes(data, "type").String())
	// 带request_seq的一定是响应
	if gjson.GetBytes(data, "request_seq").Exists() {
		typ = constants.ResponseMessage
	}
	switch typ {
	case constants.ResponseMessage:
		msg = &Response{}
	case constants.EventMessage:
		msg = &Event{}
	case constants.RequestMessage:
		msg = &Request{}
	default:
		return nil, &e.ProtocolError{Message: "unknown message type: " + truncate(string(data))}
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, &e.ProtocolError{Message: "decode message", Err: err}
	}
	return msg, nil
}

// Encode 序列化消息
func Encode(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

func truncate(s string) string {
	if len(s) > 128 {
		return s[:128] + "..."
	}
	return s
}
