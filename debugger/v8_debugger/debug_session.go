package v8_debugger

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fansqz/js-debugger/constants"
	"github.com/fansqz/js-debugger/debugger"
	"github.com/fansqz/js-debugger/protocol"
	"github.com/fansqz/js-debugger/transport"
	"github.com/fansqz/js-debugger/utils"
	"github.com/fansqz/js-debugger/utils/gosync"
)

// SessionOption 调试会话的参数
type SessionOption struct {
	// SyncTimeout 同步等待响应的超时时间
	SyncTimeout time.Duration
	// MaxStringLength lookup时字符串的最大长度
	MaxStringLength int
	// Callback 事件回调，在独立的协程中按顺序执行
	Callback debugger.NotificationCallback
}

// DebugSession 一个vm连接上的所有状态
type DebugSession struct {
	id          string
	option      *SessionOption
	processor   *CommandProcessor
	handles     *HandleManager
	loader      *ValueLoader
	scripts     *ScriptManager
	breakpoints *BreakpointManager
	builder     *ContextBuilder
	status      *utils.StatusManager
	notifier    *notifier
	// 最近一次continue的单步类型，用来判断暂停原因
	lastStep atomic.Value
	log      *logrus.Entry
}

func NewDebugSession(tr transport.Transport, option *SessionOption) *DebugSession {
	if option == nil {
		option = &SessionOption{}
	}
	id := utils.NewSessionID()
	log := logrus.WithField("session", id)
	s := &DebugSession{
		id:       id,
		option:   option,
		handles:  NewHandleManager(),
		status:   utils.NewStatusManager(),
		notifier: newNotifier(option.Callback),
		log:      log,
	}
	s.lastStep.Store(constants.StepNone)
	s.processor = NewCommandProcessor(tr, option.SyncTimeout, log)
	s.loader = NewValueLoader(s.processor, s.handles, option.MaxStringLength, s.processor.SyncTimeout())
	s.scripts = NewScriptManager(s.processor)
	s.breakpoints = NewBreakpointManager(s.processor, func() bool {
		return s.status.Is(utils.Running)
	})
	s.builder = NewContextBuilder(func(state *contextState, frames []protocol.FrameObject) *debugContext {
		return newDebugContext(s, state, frames)
	})

	s.processor.SetRefsListener(s.handles.PutAll)
	s.processor.SetRunningListener(s.onRunning)
	s.processor.SetDetachListener(s.onDebuggerDetached)
	s.processor.RegisterEventHandler(constants.BreakEvent, s.onBreakEvent)
	s.processor.RegisterEventHandler(constants.ExceptionEvent, s.onExceptionEvent)
	s.processor.RegisterEventHandler(constants.AfterCompileEvent, s.onAfterCompileEvent)
	s.processor.RegisterEventHandler(constants.ScriptCollectedEvent, s.onScriptCollectedEvent)
	return s
}

func (s *DebugSession) ID() string {
	return s.id
}

func (s *DebugSession) Start() {
	s.log.Infof("[DebugSession] start")
	s.processor.Start()
}

func (s *DebugSession) Processor() *CommandProcessor {
	return s.processor
}

func (s *DebugSession) Loader() *ValueLoader {
	return s.loader
}

func (s *DebugSession) Scripts() *ScriptManager {
	return s.scripts
}

func (s *DebugSession) Breakpoints() *BreakpointManager {
	return s.breakpoints
}

func (s *DebugSession) Builder() *ContextBuilder {
	return s.builder
}

func (s *DebugSession) Status() *utils.StatusManager {
	return s.status
}

// CurrentContext 没有有效上下文时返回nil
func (s *DebugSession) CurrentContext() debugger.DebugContext {
	if ctx := s.builder.CurrentContext(); ctx != nil && ctx.IsValid() {
		return ctx
	}
	return nil
}

func (s *DebugSession) onRunning(running bool) {
	if running {
		s.status.CompareAndSet(utils.Init, utils.Running)
	}
}

func (s *DebugSession) onBreakEvent(event *protocol.Event) {
	var body protocol.BreakEventBody
	if err := event.UnmarshalBody(&body); err != nil {
		s.log.Warnf("[DebugSession] parse break event fail, err = %v", err)
		return
	}
	reason := constants.PauseStopped
	if len(body.Breakpoints) > 0 {
		reason = constants.BreakpointStopped
	} else if s.lastStep.Load().(constants.StepAction) != constants.StepNone {
		reason = constants.StepStopped
	}
	s.startContext(body.Breakpoints, nil, reason)
}

func (s *DebugSession) onExceptionEvent(event *protocol.Event) {
	var body protocol.ExceptionEventBody
	if err := event.UnmarshalBody(&body); err != nil {
		s.log.Warnf("[DebugSession] parse exception event fail, err = %v", err)
		return
	}
	s.startContext(nil, &body, constants.ExceptionStopped)
}

// startContext 暂停事件驱动上下文构建，获取调用栈后发布
func (s *DebugSession) startContext(breakpointsHit []int64, exception *protocol.ExceptionEventBody, reason constants.StoppedReasonType) {
	if s.builder.IsBuilding() {
		s.log.Warnf("[DebugSession] break event arrived while building context, cancel the previous one")
		s.builder.ForceCancelContext()
	}
	if old := s.builder.CurrentContext(); old != nil {
		s.builder.DismissContext(old)
	}
	step := s.builder.BuildNewContext().SetContextState(breakpointsHit, exception)
	s.status.Set(utils.Stopped)
	req := protocol.NewRequest(constants.Backtrace, &protocol.BacktraceArguments{InlineRefs: true})
	s.processor.Send(req, false, func(resp *protocol.Response, err error) {
		if !s.builder.IsCurrentStep(step) {
			return
		}
		if err != nil {
			s.log.Errorf("[DebugSession] backtrace fail, err = %v", err)
			s.builder.ForceCancelContext()
			return
		}
		var body protocol.BacktraceBody
		if err = resp.UnmarshalBody(&body); err != nil {
			s.log.Errorf("[DebugSession] parse backtrace fail, err = %v", err)
			s.builder.ForceCancelContext()
			return
		}
		ctx := step.SetFrames(body.Frames)
		s.notifier.notify(debugger.NewSuspendedEvent(ctx, reason))
	}, nil)
}

func (s *DebugSession) onAfterCompileEvent(event *protocol.Event) {
	var body protocol.AfterCompileEventBody
	if err := event.UnmarshalBody(&body); err != nil {
		s.log.Warnf("[DebugSession] parse afterCompile event fail, err = %v", err)
		return
	}
	script := s.scripts.AddScript(&body.Script)
	s.notifier.notify(debugger.NewScriptLoadedEvent(script))
}

func (s *DebugSession) onScriptCollectedEvent(event *protocol.Event) {
	var body protocol.ScriptCollectedEventBody
	if err := event.UnmarshalBody(&body); err != nil {
		s.log.Warnf("[DebugSession] parse scriptCollected event fail, err = %v", err)
		return
	}
	s.scripts.ScriptCollected(body.Script.ID)
	s.notifier.notify(debugger.NewScriptCollectedEvent(body.Script.ID))
}

// resume 上下文已经失效，清空缓存后发送continue
func (s *DebugSession) resume(ctx *debugContext, stepAction constants.StepAction, stepCount int, callback func(err error)) {
	s.builder.DismissContext(ctx)
	s.loader.Reset()
	s.lastStep.Store(stepAction)
	s.status.Set(utils.Running)
	args := &protocol.ContinueArguments{StepAction: stepAction}
	if stepAction != constants.StepNone && stepCount > 1 {
		args.StepCount = stepCount
	}
	s.processor.Send(protocol.NewRequest(constants.Continue, args), false, func(_ *protocol.Response, err error) {
		if err == nil {
			s.notifier.notify(debugger.NewResumedEvent())
		} else {
			s.log.Errorf("[DebugSession] continue fail, err = %v", err)
		}
		invoke(callback, err)
	}, nil)
}

// onDebuggerDetached 连接结束，所有状态失效
func (s *DebugSession) onDebuggerDetached() {
	s.log.Infof("[DebugSession] detached")
	s.status.Set(utils.Finish)
	s.builder.ForceCancelContext()
	if ctx := s.builder.CurrentContext(); ctx != nil {
		s.builder.DismissContext(ctx)
	}
	s.scripts.Reset()
	s.breakpoints.Reset()
	s.loader.Reset()
	s.notifier.notify(debugger.NewDisconnectedEvent())
	s.notifier.close()
}

// Close 断开连接并等待分发协程结束
func (s *DebugSession) Close(ctx context.Context) error {
	err := s.processor.Close()
	select {
	case <-s.processor.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

// notifier 在独立协程中按顺序执行事件回调，回调中可以同步调用调试接口
type notifier struct {
	callback debugger.NotificationCallback
	lock     sync.Mutex
	queue    chan interface{}
	closed   bool
}

func newNotifier(callback debugger.NotificationCallback) *notifier {
	n := &notifier{callback: callback, queue: make(chan interface{}, 64)}
	if callback != nil {
		gosync.Go(context.Background(), n.run)
	}
	return n
}

func (n *notifier) run(ctx context.Context) {
	for event := range n.queue {
		n.callback(event)
	}
}

func (n *notifier) notify(event interface{}) {
	if n.callback == nil {
		return
	}
	n.lock.Lock()
	defer n.lock.Unlock()
	if n.closed {
		return
	}
	n.queue <- event
}

func (n *notifier) close() {
	n.lock.Lock()
	defer n.lock.Unlock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
}
