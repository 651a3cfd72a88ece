package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"

	"github.com/fansqz/js-debugger/config"
	"github.com/fansqz/js-debugger/debugger"
	"github.com/fansqz/js-debugger/debugger/v8_debugger"
	"github.com/fansqz/js-debugger/launcher"
	"github.com/fansqz/js-debugger/transport"
	"github.com/fansqz/js-debugger/utils"
)

// Server dap服务，每个客户端连接对应一个调试会话
type Server struct {
	cfg  *config.Config
	idle *utils.TimeoutManager
	// dial 自定义vm连接方式，为空时按地址连接
	dial func(ctx context.Context) (transport.Transport, error)
}

func NewServer(cfg *config.Config) *Server {
	return &Server{
		cfg:  cfg,
		idle: utils.NewTimeoutManager(),
	}
}

// Serve 循环接收连接，直到listener关闭
func (s *Server) Serve(listener net.Listener) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.idle.Reset()
		go s.handleConnection(conn)
	}
}

// handleConnection handles a connection from a single client.
// It reads and decodes the incoming data and dispatches it
// to the request handlers until the client disconnects.
func (s *Server) handleConnection(conn net.Conn) {
	debugSession := NewDebugSession(s, conn, conn)
	logrus.Infof("[Server] accept connection from %s", conn.RemoteAddr())
	for {
		err := debugSession.handleRequest()
		if err != nil {
			if err == io.EOF {
				logrus.Infof("[Server] no more data to read")
			} else {
				logrus.Errorf("[Server] read request fail, err = %v", err)
			}
			break
		}
		if debugSession.closed {
			break
		}
	}
	debugSession.cleanup()
	logrus.Infof("[Server] closing connection from %s", conn.RemoteAddr())
	_ = conn.Close()
}

// DebugSession 一个dap客户端的调试会话
type DebugSession struct {
	server *Server
	reader *bufio.Reader
	writer io.Writer
	// sendLock 请求处理和vm事件回调会并发写入
	sendLock sync.Mutex
	seq      int

	debugger    *v8_debugger.V8Debugger
	process     *launcher.Process
	stringifier *v8_debugger.Stringifier
	refs        *variableRefs
	// breakpoints 每个源文件当前设置的断点
	breakpoints map[string][]debugger.Breakpoint
	closed      bool
}

func NewDebugSession(server *Server, reader io.Reader, writer io.Writer) *DebugSession {
	return &DebugSession{
		server:      server,
		reader:      bufio.NewReader(reader),
		writer:      writer,
		stringifier: v8_debugger.NewStringifier(server.cfg.StringifyBudget),
		refs:        newVariableRefs(),
		breakpoints: make(map[string][]debugger.Breakpoint),
	}
}

func (d *DebugSession) handleRequest() error {
	request, err := dap.ReadProtocolMessage(d.reader)
	if err != nil {
		return err
	}
	d.server.idle.Reset()
	d.dispatchRequest(request)
	return nil
}

func (d *DebugSession) dispatchRequest(request dap.Message) {
	switch request := request.(type) {
	case *dap.InitializeRequest:
		d.onInitializeRequest(request)
	case *dap.AttachRequest:
		d.onAttachRequest(request)
	case *dap.LaunchRequest:
		d.onLaunchRequest(request)
	case *dap.DisconnectRequest:
		d.onDisconnectRequest(request)
	case *dap.TerminateRequest:
		d.onTerminateRequest(request)
	case *dap.SetBreakpointsRequest:
		d.onSetBreakpointsRequest(request)
	case *dap.SetExceptionBreakpointsRequest:
		d.onSetExceptionBreakpointsRequest(request)
	case *dap.ConfigurationDoneRequest:
		d.onConfigurationDoneRequest(request)
	case *dap.ThreadsRequest:
		d.onThreadsRequest(request)
	case *dap.ContinueRequest:
		d.onContinueRequest(request)
	case *dap.NextRequest:
		d.onNextRequest(request)
	case *dap.StepInRequest:
		d.onStepInRequest(request)
	case *dap.StepOutRequest:
		d.onStepOutRequest(request)
	case *dap.PauseRequest:
		d.onPauseRequest(request)
	case *dap.StackTraceRequest:
		d.onStackTraceRequest(request)
	case *dap.ScopesRequest:
		d.onScopesRequest(request)
	case *dap.VariablesRequest:
		d.onVariablesRequest(request)
	case *dap.EvaluateRequest:
		d.onEvaluateRequest(request)
	case *dap.LoadedSourcesRequest:
		d.onLoadedSourcesRequest(request)
	default:
		if req, ok := request.(dap.RequestMessage); ok {
			r := req.GetRequest()
			d.sendError(r.Seq, r.Command, r.Command+" is not yet supported")
			return
		}
		logrus.Warnf("[DebugSession] unable to process %#v", request)
	}
}

// send Message响应给客户端
func (d *DebugSession) send(message dap.Message) {
	d.sendLock.Lock()
	defer d.sendLock.Unlock()
	d.seq++
	switch m := message.(type) {
	case dap.ResponseMessage:
		m.GetResponse().Seq = d.seq
	case dap.EventMessage:
		m.GetEvent().Seq = d.seq
	}
	if err := dap.WriteProtocolMessage(d.writer, message); err != nil {
		logrus.Warnf("[DebugSession] write message fail, err = %v", err)
	}
}

func (d *DebugSession) sendError(requestSeq int, command string, message string) {
	d.send(newErrorResponse(requestSeq, command, message))
}

// cleanup 连接结束时断开vm并结束启动的程序
func (d *DebugSession) cleanup() {
	ctx := context.Background()
	if d.debugger != nil && d.debugger.IsAttached() {
		if err := d.debugger.Detach(ctx); err != nil {
			logrus.Warnf("[DebugSession] detach fail, err = %v", err)
		}
	}
	if d.process != nil {
		_ = d.process.Kill()
	}
}

func newEvent(event string) dap.Event {
	return dap.Event{
		ProtocolMessage: dap.ProtocolMessage{
			Seq:  0,
			Type: "event",
		},
		Event: event,
	}
}

func newResponse(requestSeq int, command string) dap.Response {
	return dap.Response{
		ProtocolMessage: dap.ProtocolMessage{
			Seq:  0,
			Type: "response",
		},
		Command:    command,
		RequestSeq: requestSeq,
		Success:    true,
	}
}

func newErrorResponse(requestSeq int, command string, message string) *dap.ErrorResponse {
	er := &dap.ErrorResponse{}
	er.Response = newResponse(requestSeq, command)
	er.Success = false
	er.Message = message
	er.Body.Error = &dap.ErrorMessage{
		Id:     12345,
		Format: message,
	}
	return er
}
