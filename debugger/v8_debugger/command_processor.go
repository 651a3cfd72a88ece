package v8_debugger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fansqz/js-debugger/constants"
	e "github.com/fansqz/js-debugger/error"
	"github.com/fansqz/js-debugger/protocol"
	"github.com/fansqz/js-debugger/transport"
	"github.com/fansqz/js-debugger/utils"
)

// ResponseCallback 命令的回调，远端返回success=false时err为*e.CommandError，resp不为空
type ResponseCallback func(resp *protocol.Response, err error)

// EventHandler 事件处理函数，在分发协程中执行
type EventHandler func(event *protocol.Event)

// commandSender 发送命令的能力，值加载器、断点和脚本管理都只依赖它
type commandSender interface {
	Send(req *protocol.Request, immediate bool, callback ResponseCallback, done func())
	SendSync(ctx context.Context, req *protocol.Request) (*protocol.Response, error)
}

type pendingCommand struct {
	request  *protocol.Request
	callback ResponseCallback
	done     func()
	once     sync.Once
}

// complete callback和done都只会执行一次，done总是在callback之后
func (p *pendingCommand) complete(resp *protocol.Response, err error) {
	p.once.Do(func() {
		if p.callback != nil {
			p.callback(resp, err)
		}
		if p.done != nil {
			p.done()
		}
	})
}

// CommandProcessor 命令和响应的关联器
// 一个分发协程负责读取transport并处理响应和事件，所有回调都在这个协程中执行
type CommandProcessor struct {
	transport transport.Transport
	seq       atomic.Int64

	pendingLock sync.Mutex
	// 为nil表示连接已经结束
	pending map[int]*pendingCommand

	handlerLock sync.RWMutex
	handlers    map[constants.EventType]EventHandler

	refsListener    func(refs []protocol.RawHandle)
	runningListener func(running bool)
	detachListener  func()

	detached    atomic.Bool
	detachOnce  sync.Once
	startOnce   sync.Once
	done        chan struct{}
	syncTimeout time.Duration
	log         *logrus.Entry
}

func NewCommandProcessor(tr transport.Transport, syncTimeout time.Duration, log *logrus.Entry) *CommandProcessor {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if syncTimeout <= 0 {
		syncTimeout = utils.DefaultSyncTimeout
	}
	return &CommandProcessor{
		transport:   tr,
		pending:     map[int]*pendingCommand{},
		handlers:    map[constants.EventType]EventHandler{},
		done:        make(chan struct{}),
		syncTimeout: syncTimeout,
		log:         log,
	}
}

// RegisterEventHandler 注册事件处理函数，需要在Start之前调用
func (p *CommandProcessor) RegisterEventHandler(event constants.EventType, handler EventHandler) {
	p.handlerLock.Lock()
	defer p.handlerLock.Unlock()
	p.handlers[event] = handler
}

// SetRefsListener 响应和事件中的refs会先交给它，再执行回调
func (p *CommandProcessor) SetRefsListener(listener func(refs []protocol.RawHandle)) {
	p.refsListener = listener
}

func (p *CommandProcessor) SetRunningListener(listener func(running bool)) {
	p.runningListener = listener
}

// SetDetachListener 连接结束时调用一次，此时所有等待中的命令都已经失败
func (p *CommandProcessor) SetDetachListener(listener func()) {
	p.detachListener = listener
}

// Start 启动分发协程
// 回调中的panic不做兜底，属于程序错误
func (p *CommandProcessor) Start() {
	p.startOnce.Do(func() {
		go p.dispatchLoop()
	})
}

func (p *CommandProcessor) dispatchLoop() {
	defer close(p.done)
	for {
		data, err := p.transport.Receive()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, transport.ErrClosed) {
				p.log.Warnf("[CommandProcessor] receive fail, err = %v", err)
			}
			p.processEos()
			return
		}
		p.processIncoming(data)
	}
}

func (p *CommandProcessor) processIncoming(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		p.log.Warnf("[CommandProcessor] drop malformed message, err = %v", err)
		return
	}
	switch m := msg.(type) {
	case *protocol.Response:
		p.processResponse(m)
	case *protocol.Event:
		p.processEvent(m)
	default:
		p.log.Warnf("[CommandProcessor] drop unexpected %s message", msg.MessageType())
	}
}

func (p *CommandProcessor) processResponse(resp *protocol.Response) {
	if len(resp.Refs) > 0 && p.refsListener != nil {
		p.refsListener(resp.Refs)
	}
	if p.runningListener != nil {
		p.runningListener(resp.Running)
	}
	cmd := p.takePending(resp.RequestSeq)
	if cmd == nil {
		p.log.Warnf("[CommandProcessor] drop unmatched response, request_seq = %d, command = %s", resp.RequestSeq, resp.Command)
		return
	}
	var err error
	if !resp.Success {
		err = &e.CommandError{Command: string(resp.Command), Message: resp.Message}
	}
	cmd.complete(resp, err)
}

func (p *CommandProcessor) processEvent(event *protocol.Event) {
	if len(event.Refs) > 0 && p.refsListener != nil {
		p.refsListener(event.Refs)
	}
	p.handlerLock.RLock()
	handler, ok := p.handlers[event.Event]
	p.handlerLock.RUnlock()
	if !ok {
		p.log.Debugf("[CommandProcessor] no handler for event %s", event.Event)
		return
	}
	handler(event)
}

// processEos 连接结束，所有等待中的命令按发送顺序失败
func (p *CommandProcessor) processEos() {
	p.detachOnce.Do(func() {
		p.detached.Store(true)
		p.pendingLock.Lock()
		pending := p.pending
		p.pending = nil
		p.pendingLock.Unlock()

		seqs := make([]int, 0, len(pending))
		for seq := range pending {
			seqs = append(seqs, seq)
		}
		sort.Ints(seqs)
		for _, seq := range seqs {
			pending[seq].complete(nil, e.ErrDebuggerDetached)
		}
		p.log.Infof("[CommandProcessor] debugger detached, %d pending commands failed", len(seqs))
		if p.detachListener != nil {
			p.detachListener()
		}
	})
}

func (p *CommandProcessor) takePending(seq int) *pendingCommand {
	p.pendingLock.Lock()
	defer p.pendingLock.Unlock()
	cmd, ok := p.pending[seq]
	if !ok {
		return nil
	}
	delete(p.pending, seq)
	return cmd
}

// Send 异步发送命令
// immediate为true时额外发送一个空的evaluate，促使vm立即处理命令
// 连接已经结束时callback立即以ErrDebuggerDetached失败
func (p *CommandProcessor) Send(req *protocol.Request, immediate bool, callback ResponseCallback, done func()) {
	cmd := &pendingCommand{request: req, callback: callback, done: done}
	req.Seq = int(p.seq.Add(1))
	data, err := protocol.Encode(req)
	if err != nil {
		cmd.complete(nil, fmt.Errorf("encode %s: %w", req.Command, err))
		return
	}

	p.pendingLock.Lock()
	if p.pending == nil {
		p.pendingLock.Unlock()
		cmd.complete(nil, e.ErrDebuggerDetached)
		return
	}
	p.pending[req.Seq] = cmd
	p.pendingLock.Unlock()

	if err = p.transport.Send(data); err != nil {
		p.log.Errorf("[CommandProcessor] send %s fail, err = %v", req.Command, err)
		if c := p.takePending(req.Seq); c != nil {
			c.complete(nil, fmt.Errorf("send %s: %w", req.Command, err))
		}
		return
	}
	if immediate {
		p.Send(protocol.NewRequest(constants.Evaluate, &protocol.EvaluateArguments{
			Expression:   constants.ImmediateExpression,
			Global:       true,
			DisableBreak: true,
		}), false, nil, nil)
	}
}

// SendSync 同步发送命令，超时返回ErrTimeout，超时后命令不会被取消
func (p *CommandProcessor) SendSync(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	sem := utils.NewCallbackSemaphore()
	var resp *protocol.Response
	var respErr error
	p.Send(req, false, func(r *protocol.Response, err error) {
		resp, respErr = r, err
	}, sem.Release)
	if err := sem.Wait(ctx, p.syncTimeout); err != nil {
		return nil, fmt.Errorf("%s: %w", req.Command, err)
	}
	return resp, respErr
}

// IsDetached 连接是否已经结束
func (p *CommandProcessor) IsDetached() bool {
	return p.detached.Load()
}

// Done 分发协程退出后关闭
func (p *CommandProcessor) Done() <-chan struct{} {
	return p.done
}

// Close 关闭transport，分发协程随后结束并执行processEos
func (p *CommandProcessor) Close() error {
	return p.transport.Close()
}

// SyncTimeout 同步等待的超时时间
func (p *CommandProcessor) SyncTimeout() time.Duration {
	return p.syncTimeout
}
