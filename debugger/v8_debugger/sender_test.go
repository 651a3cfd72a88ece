package v8_debugger

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fansqz/js-debugger/constants"
	"github.com/fansqz/js-debugger/protocol"
)

// recordingSender 记录所有命令，由respond构造响应
// gate不为nil时异步命令要等gate关闭后才回调
type recordingSender struct {
	lock     sync.Mutex
	requests []*protocol.Request
	// immediate 带immediate发送的命令
	immediate []constants.CommandType
	respond   func(req *protocol.Request) (*protocol.Response, error)
	gate      chan struct{}
}

func (s *recordingSender) record(req *protocol.Request) {
	s.lock.Lock()
	defer s.lock.Unlock()
	req.Seq = len(s.requests) + 1
	s.requests = append(s.requests, req)
}

func (s *recordingSender) Send(req *protocol.Request, immediate bool, callback ResponseCallback, done func()) {
	s.record(req)
	if immediate {
		s.lock.Lock()
		s.immediate = append(s.immediate, req.Command)
		s.lock.Unlock()
	}
	go func() {
		if s.gate != nil {
			<-s.gate
		}
		resp, err := s.respond(req)
		if callback != nil {
			callback(resp, err)
		}
		if done != nil {
			done()
		}
	}()
}

func (s *recordingSender) SendSync(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	s.record(req)
	return s.respond(req)
}

func (s *recordingSender) Requests(command constants.CommandType) []*protocol.Request {
	s.lock.Lock()
	defer s.lock.Unlock()
	var answer []*protocol.Request
	for _, req := range s.requests {
		if req.Command == command {
			answer = append(answer, req)
		}
	}
	return answer
}

func (s *recordingSender) Immediate() []constants.CommandType {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]constants.CommandType(nil), s.immediate...)
}

// lookupResponder 用固定的handle表响应lookup
func lookupResponder(t *testing.T, objects map[int64]map[string]interface{}) func(req *protocol.Request) (*protocol.Response, error) {
	return func(req *protocol.Request) (*protocol.Response, error) {
		args := &protocol.LookupArguments{}
		require.Nil(t, req.UnmarshalArguments(args))
		body := map[string]interface{}{}
		for _, h := range args.Handles {
			if obj, ok := objects[h]; ok {
				body[strconv.FormatInt(h, 10)] = obj
			}
		}
		return protocol.NewResponse(req, true, body)
	}
}

func rawHandle(t *testing.T, v interface{}) *protocol.RawHandle {
	h, err := protocol.NewRawHandle(v)
	require.Nil(t, err)
	return h
}

func mustJSON(t *testing.T, v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	require.Nil(t, err)
	return data
}
