package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"

	"github.com/fansqz/js-debugger/constants"
	"github.com/fansqz/js-debugger/debugger"
	"github.com/fansqz/js-debugger/debugger/v8_debugger"
	e "github.com/fansqz/js-debugger/error"
	"github.com/fansqz/js-debugger/launcher"
)

// 只有一个js线程
const mainThreadID = 1

// attachArguments attach请求的参数
type attachArguments struct {
	Address    string `json:"address"`
	MinVersion string `json:"minVersion"`
}

// launchArguments launch请求的参数，启动程序后再连接它的调试端口
type launchArguments struct {
	attachArguments
	Command []string          `json:"command"`
	Cwd     string            `json:"cwd"`
	Env     map[string]string `json:"env"`
}

func (d *DebugSession) onInitializeRequest(request *dap.InitializeRequest) {
	response := &dap.InitializeResponse{}
	response.Response = newResponse(request.Seq, request.Command)
	response.Body.SupportsConfigurationDoneRequest = true
	response.Body.SupportsConditionalBreakpoints = true
	response.Body.SupportsHitConditionalBreakpoints = true
	response.Body.SupportsEvaluateForHovers = true
	response.Body.SupportsLoadedSourcesRequest = true
	response.Body.SupportsTerminateRequest = true
	response.Body.ExceptionBreakpointFilters = []dap.ExceptionBreakpointsFilter{
		{Filter: string(constants.ExceptionBreakAll), Label: "All Exceptions"},
		{Filter: string(constants.ExceptionBreakUncaught), Label: "Uncaught Exceptions"},
	}
	d.send(response)
}

func (d *DebugSession) onAttachRequest(request *dap.AttachRequest) {
	args := &attachArguments{}
	if len(request.Arguments) != 0 {
		if err := json.Unmarshal(request.Arguments, args); err != nil {
			d.sendError(request.Seq, request.Command, err.Error())
			return
		}
	}
	if err := d.attach(args); err != nil {
		d.sendError(request.Seq, request.Command, err.Error())
		return
	}
	d.send(&dap.AttachResponse{Response: newResponse(request.Seq, request.Command)})
	// 连接成功后才能接收断点等配置请求
	d.send(&dap.InitializedEvent{Event: newEvent("initialized")})
}

func (d *DebugSession) onLaunchRequest(request *dap.LaunchRequest) {
	args := &launchArguments{}
	if len(request.Arguments) != 0 {
		if err := json.Unmarshal(request.Arguments, args); err != nil {
			d.sendError(request.Seq, request.Command, err.Error())
			return
		}
	}
	if err := d.launch(args); err != nil {
		d.sendError(request.Seq, request.Command, err.Error())
		return
	}
	d.send(&dap.LaunchResponse{Response: newResponse(request.Seq, request.Command)})
	d.send(&dap.InitializedEvent{Event: newEvent("initialized")})
}

// launch 在虚拟终端中启动程序，等待调试端口打开后连接
func (d *DebugSession) launch(args *launchArguments) error {
	cfg := d.server.cfg
	option := &launcher.Option{
		Command:  args.Command,
		Env:      args.Env,
		Dir:      args.Cwd,
		Callback: d.onDebugEvent,
	}
	if len(option.Command) == 0 {
		option.Command = cfg.Launch.Command
		option.Env = cfg.Launch.Env
		option.Dir = cfg.Launch.Dir
	}
	process, err := launcher.Start(context.Background(), option)
	if err != nil {
		return err
	}
	d.process = process
	if d.server.dial == nil {
		address := args.Address
		if address == "" {
			address = cfg.Address
		}
		ctx, cancel := context.WithTimeout(context.Background(), cfg.SyncTimeout.Std())
		defer cancel()
		if err = launcher.WaitForPort(ctx, address, 100*time.Millisecond); err != nil {
			_ = process.Kill()
			return err
		}
	}
	if err = d.attach(&args.attachArguments); err != nil {
		_ = process.Kill()
		return err
	}
	return nil
}

func (d *DebugSession) attach(args *attachArguments) error {
	cfg := d.server.cfg
	if d.debugger != nil && d.debugger.IsAttached() {
		return e.ErrAlreadyAttached
	}
	address := args.Address
	if address == "" {
		address = cfg.Address
	}
	minVersion := args.MinVersion
	if minVersion == "" {
		minVersion = cfg.MinVersion
	}
	d.debugger = v8_debugger.NewV8Debugger(&v8_debugger.Option{
		Address:         address,
		DialTimeout:     cfg.DialTimeout.Std(),
		SyncTimeout:     cfg.SyncTimeout.Std(),
		MaxStringLength: cfg.MaxStringLength,
		StringifyBudget: cfg.StringifyBudget,
		Dial:            d.server.dial,
	})
	return d.debugger.Attach(context.Background(), &debugger.AttachOption{
		Callback:   d.onDebugEvent,
		MinVersion: minVersion,
	})
}

// attached 还没有连接时发送错误响应
func (d *DebugSession) attached(request dap.Request) bool {
	if d.debugger == nil || !d.debugger.IsAttached() {
		d.sendError(request.Seq, request.Command, e.ErrNotAttached.Error())
		return false
	}
	return true
}

func (d *DebugSession) onDisconnectRequest(request *dap.DisconnectRequest) {
	d.cleanup()
	d.closed = true
	d.send(&dap.DisconnectResponse{Response: newResponse(request.Seq, request.Command)})
}

func (d *DebugSession) onTerminateRequest(request *dap.TerminateRequest) {
	if d.process != nil {
		if err := d.process.Kill(); err != nil {
			d.sendError(request.Seq, request.Command, err.Error())
			return
		}
	}
	if d.debugger != nil && d.debugger.IsAttached() {
		_ = d.debugger.Detach(context.Background())
	}
	d.send(&dap.TerminateResponse{Response: newResponse(request.Seq, request.Command)})
}

func (d *DebugSession) onSetBreakpointsRequest(request *dap.SetBreakpointsRequest) {
	if !d.attached(request.Request) {
		return
	}
	ctx := context.Background()
	target := request.Arguments.Source.Path
	if target == "" {
		target = request.Arguments.Source.Name
	}
	// 清除这个文件原有的断点
	for _, bp := range d.breakpoints[target] {
		bp.Clear(nil)
	}
	d.breakpoints[target] = nil

	response := &dap.SetBreakpointsResponse{}
	response.Response = newResponse(request.Seq, request.Command)
	response.Body.Breakpoints = make([]dap.Breakpoint, len(request.Arguments.Breakpoints))
	for i, sbp := range request.Arguments.Breakpoints {
		option := &debugger.BreakpointOption{
			Type:      constants.ScriptNameBreakpoint,
			Target:    target,
			Line:      sbp.Line - 1,
			Enabled:   true,
			Condition: sbp.Condition,
		}
		if sbp.Column > 0 {
			option.Column = sbp.Column - 1
		}
		if hit, err := strconv.Atoi(sbp.HitCondition); err == nil && hit > 1 {
			option.IgnoreCount = hit - 1
		}
		result := &response.Body.Breakpoints[i]
		result.Line = sbp.Line
		result.Source = &request.Arguments.Source
		bp, err := d.debugger.SetBreakpoint(ctx, option)
		if err != nil {
			logrus.Errorf("[onSetBreakpointsRequest] set breakpoint fail, err = %v", err)
			result.Message = err.Error()
			continue
		}
		d.breakpoints[target] = append(d.breakpoints[target], bp)
		result.Id = int(bp.ID())
		result.Verified = true
		result.Line = bp.Line() + 1
	}
	d.send(response)
}

func (d *DebugSession) onSetExceptionBreakpointsRequest(request *dap.SetExceptionBreakpointsRequest) {
	if !d.attached(request.Request) {
		return
	}
	ctx := context.Background()
	enabled := map[string]bool{}
	for _, filter := range request.Arguments.Filters {
		enabled[filter] = true
	}
	for _, typ := range []constants.ExceptionBreakType{constants.ExceptionBreakAll, constants.ExceptionBreakUncaught} {
		if err := d.debugger.EnableBreakOnException(ctx, typ, enabled[string(typ)]); err != nil {
			d.sendError(request.Seq, request.Command, err.Error())
			return
		}
	}
	d.send(&dap.SetExceptionBreakpointsResponse{Response: newResponse(request.Seq, request.Command)})
}

func (d *DebugSession) onConfigurationDoneRequest(request *dap.ConfigurationDoneRequest) {
	d.send(&dap.ConfigurationDoneResponse{Response: newResponse(request.Seq, request.Command)})
}

func (d *DebugSession) onThreadsRequest(request *dap.ThreadsRequest) {
	response := &dap.ThreadsResponse{}
	response.Response = newResponse(request.Seq, request.Command)
	response.Body.Threads = []dap.Thread{{Id: mainThreadID, Name: "main"}}
	d.send(response)
}

// currentContext vm运行中时发送错误响应
func (d *DebugSession) currentContext(request dap.Request) debugger.DebugContext {
	if !d.attached(request) {
		return nil
	}
	debugContext := d.debugger.CurrentContext()
	if debugContext == nil {
		d.sendError(request.Seq, request.Command, e.ErrProgramIsRunning.Error())
	}
	return debugContext
}

// resume 恢复执行，响应在上下文失效后立即发送
func (d *DebugSession) resume(request dap.Request, stepAction constants.StepAction) bool {
	debugContext := d.currentContext(request)
	if debugContext == nil {
		return false
	}
	if err := debugContext.ContinueVm(stepAction, 1, nil); err != nil {
		d.sendError(request.Seq, request.Command, err.Error())
		return false
	}
	return true
}

func (d *DebugSession) onContinueRequest(request *dap.ContinueRequest) {
	if !d.resume(request.Request, constants.StepNone) {
		return
	}
	response := &dap.ContinueResponse{}
	response.Response = newResponse(request.Seq, request.Command)
	response.Body.AllThreadsContinued = true
	d.send(response)
}

func (d *DebugSession) onNextRequest(request *dap.NextRequest) {
	if d.resume(request.Request, constants.StepNext) {
		d.send(&dap.NextResponse{Response: newResponse(request.Seq, request.Command)})
	}
}

func (d *DebugSession) onStepInRequest(request *dap.StepInRequest) {
	if d.resume(request.Request, constants.StepIn) {
		d.send(&dap.StepInResponse{Response: newResponse(request.Seq, request.Command)})
	}
}

func (d *DebugSession) onStepOutRequest(request *dap.StepOutRequest) {
	if d.resume(request.Request, constants.StepOut) {
		d.send(&dap.StepOutResponse{Response: newResponse(request.Seq, request.Command)})
	}
}

func (d *DebugSession) onPauseRequest(request *dap.PauseRequest) {
	if !d.attached(request.Request) {
		return
	}
	if err := d.debugger.Suspend(context.Background()); err != nil {
		d.sendError(request.Seq, request.Command, err.Error())
		return
	}
	d.send(&dap.PauseResponse{Response: newResponse(request.Seq, request.Command)})
}

// frame dap的frameId从1开始
func (d *DebugSession) frame(request dap.Request, frameID int) debugger.CallFrame {
	debugContext := d.currentContext(request)
	if debugContext == nil {
		return nil
	}
	frames, err := debugContext.CallFrames()
	if err != nil {
		d.sendError(request.Seq, request.Command, err.Error())
		return nil
	}
	if frameID < 1 || frameID > len(frames) {
		d.sendError(request.Seq, request.Command, fmt.Sprintf("invalid frame id %d", frameID))
		return nil
	}
	return frames[frameID-1]
}

func (d *DebugSession) onStackTraceRequest(request *dap.StackTraceRequest) {
	debugContext := d.currentContext(request.Request)
	if debugContext == nil {
		return
	}
	frames, err := debugContext.CallFrames()
	if err != nil {
		d.sendError(request.Seq, request.Command, err.Error())
		return
	}
	start := min(request.Arguments.StartFrame, len(frames))
	end := len(frames)
	if levels := request.Arguments.Levels; levels > 0 && start+levels < end {
		end = start + levels
	}
	stackFrames := make([]dap.StackFrame, 0, end-start)
	for _, frame := range frames[start:end] {
		name := frame.FunctionName()
		if name == "" {
			name = "<anonymous>"
		}
		stackFrame := dap.StackFrame{
			Id:     frame.Index() + 1,
			Name:   name,
			Line:   frame.Line() + 1,
			Column: frame.Column() + 1,
		}
		if script := frame.Script(); script != nil {
			stackFrame.Source = newSource(script)
		}
		stackFrames = append(stackFrames, stackFrame)
	}
	response := &dap.StackTraceResponse{}
	response.Response = newResponse(request.Seq, request.Command)
	response.Body = dap.StackTraceResponseBody{
		StackFrames: stackFrames,
		TotalFrames: len(frames),
	}
	d.send(response)
}

func (d *DebugSession) onScopesRequest(request *dap.ScopesRequest) {
	frame := d.frame(request.Request, request.Arguments.FrameId)
	if frame == nil {
		return
	}
	scopes := frame.Scopes()
	answer := make([]dap.Scope, len(scopes))
	for i, scope := range scopes {
		answer[i] = dap.Scope{
			Name:               scope.Type().String(),
			VariablesReference: d.refs.addScope(scope),
			Expensive:          scope.Type() == debugger.ScopeGlobal,
		}
	}
	response := &dap.ScopesResponse{}
	response.Response = newResponse(request.Seq, request.Command)
	response.Body = dap.ScopesResponseBody{
		Scopes: answer,
	}
	d.send(response)
}

func (d *DebugSession) onVariablesRequest(request *dap.VariablesRequest) {
	ctx := context.Background()
	item, ok := d.refs.get(request.Arguments.VariablesReference)
	if !ok {
		d.sendError(request.Seq, request.Command, e.ErrInvalidReference.Error())
		return
	}
	var variables []debugger.JsVariable
	var err error
	switch item := item.(type) {
	case debugger.JsScope:
		variables, err = item.Variables(ctx)
	case debugger.JsObject:
		variables, err = item.Properties(ctx)
	}
	if err != nil {
		d.sendError(request.Seq, request.Command, err.Error())
		return
	}
	answer := make([]dap.Variable, 0, len(variables))
	for _, variable := range variables {
		answer = append(answer, d.newVariable(ctx, variable))
	}
	response := &dap.VariablesResponse{}
	response.Response = newResponse(request.Seq, request.Command)
	response.Body = dap.VariablesResponseBody{
		Variables: answer,
	}
	d.send(response)
}

// newVariable 对象类型的变量会分配variablesReference
func (d *DebugSession) newVariable(ctx context.Context, variable debugger.JsVariable) dap.Variable {
	answer := dap.Variable{
		Name:         variable.Name(),
		EvaluateName: variable.FullyQualifiedName(),
	}
	value := variable.Value()
	if !variable.IsReadable() || value == nil {
		answer.Value = "<unreadable>"
		return answer
	}
	answer.Value = d.stringifier.Stringify(ctx, value)
	answer.Type = value.Type().String()
	if object := value.AsObject(); object != nil {
		answer.VariablesReference = d.refs.addObject(object)
	}
	return answer
}

func (d *DebugSession) onEvaluateRequest(request *dap.EvaluateRequest) {
	ctx := context.Background()
	var evaluateContext debugger.EvaluateContext
	if request.Arguments.FrameId > 0 {
		frame := d.frame(request.Request, request.Arguments.FrameId)
		if frame == nil {
			return
		}
		evaluateContext = frame
	} else {
		debugContext := d.currentContext(request.Request)
		if debugContext == nil {
			return
		}
		evaluateContext = debugContext.GlobalEvaluateContext()
	}
	result, err := evaluateContext.EvaluateSync(ctx, request.Arguments.Expression)
	if err != nil {
		d.sendError(request.Seq, request.Command, err.Error())
		return
	}
	variable := d.newVariable(ctx, result.Value)
	if result.Exception {
		d.sendError(request.Seq, request.Command, "Uncaught "+variable.Value)
		return
	}
	response := &dap.EvaluateResponse{}
	response.Response = newResponse(request.Seq, request.Command)
	response.Body = dap.EvaluateResponseBody{
		Result:             variable.Value,
		Type:               variable.Type,
		VariablesReference: variable.VariablesReference,
	}
	d.send(response)
}

func (d *DebugSession) onLoadedSourcesRequest(request *dap.LoadedSourcesRequest) {
	if !d.attached(request.Request) {
		return
	}
	scripts, err := d.debugger.GetScripts(context.Background())
	if err != nil {
		d.sendError(request.Seq, request.Command, err.Error())
		return
	}
	response := &dap.LoadedSourcesResponse{}
	response.Response = newResponse(request.Seq, request.Command)
	response.Body.Sources = make([]dap.Source, 0, len(scripts))
	for _, script := range scripts {
		response.Body.Sources = append(response.Body.Sources, *newSource(script))
	}
	d.send(response)
}

func newSource(script debugger.Script) *dap.Source {
	return &dap.Source{
		Name: filepath.Base(script.Name()),
		Path: script.Name(),
	}
}

// onDebugEvent 把调试器事件转换成dap事件
func (d *DebugSession) onDebugEvent(event interface{}) {
	switch event := event.(type) {
	case *debugger.SuspendedEvent:
		d.refs.clear()
		stopped := &dap.StoppedEvent{Event: newEvent("stopped")}
		stopped.Body = dap.StoppedEventBody{
			Reason:            string(event.Reason),
			ThreadId:          mainThreadID,
			AllThreadsStopped: true,
		}
		for _, id := range event.Context.BreakpointsHit() {
			stopped.Body.HitBreakpointIds = append(stopped.Body.HitBreakpointIds, int(id))
		}
		if exception := event.Context.ExceptionData(); exception != nil {
			stopped.Body.Text = exception.Message
		}
		d.send(stopped)
	case *debugger.ResumedEvent:
		continued := &dap.ContinuedEvent{Event: newEvent("continued")}
		continued.Body = dap.ContinuedEventBody{ThreadId: mainThreadID, AllThreadsContinued: true}
		d.send(continued)
	case *debugger.ScriptLoadedEvent:
		loaded := &dap.LoadedSourceEvent{Event: newEvent("loadedSource")}
		loaded.Body = dap.LoadedSourceEventBody{Reason: "new", Source: *newSource(event.Script)}
		d.send(loaded)
	case *debugger.ScriptCollectedEvent:
		removed := &dap.LoadedSourceEvent{Event: newEvent("loadedSource")}
		removed.Body = dap.LoadedSourceEventBody{Reason: "removed", Source: dap.Source{Name: fmt.Sprintf("script-%d", event.ID)}}
		d.send(removed)
	case *debugger.OutputEvent:
		output := &dap.OutputEvent{Event: newEvent("output")}
		output.Body = dap.OutputEventBody{Category: "stdout", Output: event.Output}
		d.send(output)
	case *debugger.DisconnectedEvent:
		d.send(&dap.TerminatedEvent{Event: newEvent("terminated")})
	}
}
