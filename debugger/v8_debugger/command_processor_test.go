package v8_debugger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fansqz/js-debugger/constants"
	e "github.com/fansqz/js-debugger/error"
	"github.com/fansqz/js-debugger/protocol"
	"github.com/fansqz/js-debugger/transport"
)

// newTestProcessor 返回关联器和vm一端的transport
func newTestProcessor(t *testing.T) (*CommandProcessor, *transport.MemoryTransport) {
	client, server := transport.Pipe()
	p := NewCommandProcessor(client, time.Second, nil)
	t.Cleanup(func() {
		_ = server.Close()
		_ = p.Close()
	})
	return p, server
}

// receiveRequest 在vm一端读取一个请求
func receiveRequest(t *testing.T, server transport.Transport) *protocol.Request {
	data, err := server.Receive()
	require.Nil(t, err)
	msg, err := protocol.Decode(data)
	require.Nil(t, err)
	req, ok := msg.(*protocol.Request)
	require.True(t, ok)
	return req
}

func sendMessage(t *testing.T, server transport.Transport, msg protocol.Message) {
	data, err := protocol.Encode(msg)
	require.Nil(t, err)
	require.Nil(t, server.Send(data))
}

func TestCommandProcessor_CallbackThenDone(t *testing.T) {
	p, server := newTestProcessor(t)
	p.Start()

	var order []string
	finish := make(chan struct{})
	p.Send(protocol.NewRequest(constants.Version, nil), false, func(resp *protocol.Response, err error) {
		assert.Nil(t, err)
		order = append(order, "callback")
	}, func() {
		order = append(order, "done")
		close(finish)
	})

	req := receiveRequest(t, server)
	assert.Equal(t, constants.Version, req.Command)
	resp, err := protocol.NewResponse(req, true, &protocol.VersionBody{V8Version: "3.30.33.16"})
	require.Nil(t, err)
	sendMessage(t, server, resp)

	<-finish
	assert.Equal(t, []string{"callback", "done"}, order)
}

func TestCommandProcessor_UnmatchedResponseDropped(t *testing.T) {
	p, server := newTestProcessor(t)
	p.Start()

	results := make(chan error, 2)
	p.Send(protocol.NewRequest(constants.Version, nil), false, func(resp *protocol.Response, err error) {
		results <- err
	}, nil)
	req := receiveRequest(t, server)

	// 不存在的request_seq被丢弃，不影响后续的响应
	sendMessage(t, server, &protocol.Response{Type: constants.ResponseMessage, RequestSeq: req.Seq + 100, Command: constants.Version, Success: true})
	resp, err := protocol.NewResponse(req, false, nil)
	require.Nil(t, err)
	resp.Message = "boom"
	sendMessage(t, server, resp)
	// 重复的响应也会被丢弃
	sendMessage(t, server, resp)

	err = <-results
	var cmdErr *e.CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "boom", cmdErr.Message)

	_ = server.Close()
	<-p.Done()
	assert.Len(t, results, 0)
}

func TestCommandProcessor_EosFailsPendingInOrder(t *testing.T) {
	p, server := newTestProcessor(t)

	var lock sync.Mutex
	var failed []int
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		i := i
		wg.Add(1)
		p.Send(protocol.NewRequest(constants.Backtrace, nil), false, func(resp *protocol.Response, err error) {
			assert.ErrorIs(t, err, e.ErrDebuggerDetached)
			assert.Nil(t, resp)
			lock.Lock()
			failed = append(failed, i)
			lock.Unlock()
		}, wg.Done)
	}
	detached := make(chan struct{})
	p.SetDetachListener(func() { close(detached) })

	_ = server.Close()
	p.Start()
	wg.Wait()
	<-detached
	assert.Equal(t, []int{0, 1, 2, 3, 4}, failed)
	assert.True(t, p.IsDetached())

	// 连接结束后发送的命令立即失败
	var sendErr error
	p.Send(protocol.NewRequest(constants.Version, nil), false, func(resp *protocol.Response, err error) {
		sendErr = err
	}, nil)
	assert.ErrorIs(t, sendErr, e.ErrDebuggerDetached)
}

func TestCommandProcessor_Immediate(t *testing.T) {
	p, server := newTestProcessor(t)
	p.Send(protocol.NewRequest(constants.Suspend, nil), true, nil, nil)

	assert.Equal(t, constants.Suspend, receiveRequest(t, server).Command)
	nudge := receiveRequest(t, server)
	assert.Equal(t, constants.Evaluate, nudge.Command)
	args := &protocol.EvaluateArguments{}
	require.Nil(t, nudge.UnmarshalArguments(args))
	assert.Equal(t, &protocol.EvaluateArguments{
		Expression:   constants.ImmediateExpression,
		Global:       true,
		DisableBreak: true,
	}, args)
}

func TestCommandProcessor_RefsBeforeCallback(t *testing.T) {
	p, server := newTestProcessor(t)
	handles := NewHandleManager()
	p.SetRefsListener(handles.PutAll)
	p.Start()

	var cached bool
	finish := make(chan struct{})
	p.Send(protocol.NewRequest(constants.Lookup, &protocol.LookupArguments{Handles: []int64{7}}), false,
		func(resp *protocol.Response, err error) {
			_, cached = handles.Get(7)
		}, func() { close(finish) })

	req := receiveRequest(t, server)
	resp, err := protocol.NewResponse(req, true, map[string]interface{}{})
	require.Nil(t, err)
	ref, err := protocol.NewRawHandle(map[string]interface{}{"handle": 7, "type": "number", "value": 1})
	require.Nil(t, err)
	resp.Refs = []protocol.RawHandle{*ref}
	sendMessage(t, server, resp)

	<-finish
	assert.True(t, cached)
}

func TestCommandProcessor_Events(t *testing.T) {
	p, server := newTestProcessor(t)
	events := make(chan *protocol.BreakEventBody, 1)
	running := make(chan bool, 1)
	p.RegisterEventHandler(constants.BreakEvent, func(event *protocol.Event) {
		body := &protocol.BreakEventBody{}
		assert.Nil(t, event.UnmarshalBody(body))
		events <- body
	})
	p.SetRunningListener(func(r bool) { running <- r })
	p.Start()

	// 没有处理函数的事件被忽略
	ev, err := protocol.NewEvent(constants.ScriptCollectedEvent, nil)
	require.Nil(t, err)
	sendMessage(t, server, ev)
	ev, err = protocol.NewEvent(constants.BreakEvent, &protocol.BreakEventBody{SourceLine: 3, Breakpoints: []int64{1}})
	require.Nil(t, err)
	sendMessage(t, server, ev)

	body := <-events
	assert.Equal(t, 3, body.SourceLine)
	assert.Equal(t, []int64{1}, body.Breakpoints)

	p.Send(protocol.NewRequest(constants.Continue, nil), false, nil, nil)
	req := receiveRequest(t, server)
	resp, err := protocol.NewResponse(req, true, nil)
	require.Nil(t, err)
	resp.Running = true
	sendMessage(t, server, resp)
	assert.True(t, <-running)
}

func TestCommandProcessor_SendSyncTimeout(t *testing.T) {
	client, server := transport.Pipe()
	defer server.Close()
	p := NewCommandProcessor(client, 50*time.Millisecond, nil)
	p.Start()
	defer p.Close()

	_, err := p.SendSync(context.Background(), protocol.NewRequest(constants.Version, nil))
	assert.ErrorIs(t, err, e.ErrTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.SendSync(ctx, protocol.NewRequest(constants.Version, nil))
	assert.ErrorIs(t, err, context.Canceled)
}
