package vmsim

import (
	"fmt"
	"strconv"

	"github.com/dop251/goja"
	"github.com/sirupsen/logrus"

	"github.com/fansqz/js-debugger/constants"
	"github.com/fansqz/js-debugger/protocol"
)

type result struct {
	body    interface{}
	success bool
	message string
	refs    []protocol.RawHandle
}

func succeed(body interface{}) *result {
	return &result{body: body, success: true}
}

func fail(format string, args ...interface{}) *result {
	return &result{message: fmt.Sprintf(format, args...)}
}

func (vm *VM) handleRequest(req *protocol.Request) {
	vm.lock.Lock()
	defer vm.lock.Unlock()
	vm.requests = append(vm.requests, req)

	var r *result
	switch req.Command {
	case constants.Version:
		r = succeed(&protocol.VersionBody{V8Version: vm.version})
	case constants.Lookup:
		r = vm.lookup(req)
	case constants.Evaluate:
		r = vm.evaluate(req)
	case constants.Backtrace:
		r = vm.backtrace(req)
	case constants.Frame:
		r = vm.frame(req)
	case constants.Scope:
		r = vm.scope(req)
	case constants.Scopes:
		r = vm.scopes(req)
	case constants.Scripts:
		r = vm.scriptList(req)
	case constants.Continue:
		vm.suspended = false
		vm.frames = nil
		r = succeed(nil)
	case constants.Suspend:
		r = succeed(nil)
	case constants.SetBreakpoint:
		r = vm.setBreakpoint(req)
	case constants.ChangeBreakpoint:
		r = vm.changeBreakpoint(req)
	case constants.ClearBreakpoint:
		r = vm.clearBreakpoint(req)
	case constants.ListBreakpoints:
		r = vm.listBreakpoints()
	case constants.SetExceptionBreak:
		r = vm.setExceptionBreak(req)
	case constants.Disconnect:
		r = succeed(nil)
	default:
		r = fail("Unknown command \"%s\" in request", req.Command)
	}
	vm.respond(req, r)

	switch req.Command {
	case constants.Suspend:
		if !vm.suspended {
			vm.suspend(nil)
			body := &protocol.BreakEventBody{}
			vm.fillLocation(&body.SourceLine, &body.SourceColumn, &body.SourceLineText, &body.Script)
			vm.emit(constants.BreakEvent, body)
		}
	case constants.Disconnect:
		if vm.tr != nil {
			_ = vm.tr.Close()
		}
	}
}

func (vm *VM) respond(req *protocol.Request, r *result) {
	resp, err := protocol.NewResponse(req, r.success, r.body)
	if err != nil {
		logrus.Errorf("[vmsim] build response of %s fail, err = %v", req.Command, err)
		resp = &protocol.Response{Type: constants.ResponseMessage, RequestSeq: req.Seq, Command: req.Command, Message: err.Error()}
	}
	resp.Message = r.message
	resp.Running = !vm.suspended
	resp.Refs = r.refs
	vm.seq++
	resp.Seq = vm.seq
	data, err := protocol.Encode(resp)
	if err != nil {
		logrus.Errorf("[vmsim] encode response fail, err = %v", err)
		return
	}
	if vm.hold {
		vm.held = append(vm.held, data)
		return
	}
	vm.write(data)
}

func (vm *VM) emit(event constants.EventType, body interface{}) {
	ev, err := protocol.NewEvent(event, body)
	if err != nil {
		logrus.Errorf("[vmsim] build event %s fail, err = %v", event, err)
		return
	}
	vm.seq++
	ev.Seq = vm.seq
	data, err := protocol.Encode(ev)
	if err != nil {
		logrus.Errorf("[vmsim] encode event fail, err = %v", err)
		return
	}
	vm.write(data)
}

func (vm *VM) write(data []byte) {
	if vm.tr == nil || vm.closed {
		return
	}
	if err := vm.tr.Send(data); err != nil {
		logrus.Warnf("[vmsim] send fail, err = %v", err)
	}
}

func (vm *VM) lookup(req *protocol.Request) *result {
	args := &protocol.LookupArguments{}
	if err := req.UnmarshalArguments(args); err != nil {
		return fail("%v", err)
	}
	maxLength := args.MaxStringLength
	if maxLength == 0 {
		maxLength = defaultMaxStringLength
	}
	body := map[string]interface{}{}
	for _, h := range args.Handles {
		if s, exist := vm.scriptHandles[h]; exist {
			body[strconv.FormatInt(h, 10)] = s.object(args.IncludeSource)
			continue
		}
		v, exist := vm.handles[h]
		if !exist {
			return fail("Object #%d# not found", h)
		}
		body[strconv.FormatInt(h, 10)] = vm.serializeHandle(h, v, maxLength, args.InlineRefs)
	}
	return succeed(body)
}

func (vm *VM) evaluate(req *protocol.Request) *result {
	args := &protocol.EvaluateArguments{}
	if err := req.UnmarshalArguments(args); err != nil {
		return fail("%v", err)
	}
	if !args.Global && !vm.suspended {
		return fail("No frames")
	}
	maxLength := args.MaxStringLength
	if maxLength == 0 {
		maxLength = defaultMaxStringLength
	}
	v, err := vm.rt.RunString(args.Expression)
	if err != nil {
		if jsErr, isException := err.(*goja.Exception); isException {
			r := fail("%s", jsErr.Error())
			r.body = map[string]interface{}{"exception": vm.serialize(jsErr.Value(), maxLength, false)}
			return r
		}
		return fail("%v", err)
	}
	return succeed(vm.serialize(v, maxLength, args.InlineRefs))
}

func (vm *VM) backtrace(req *protocol.Request) *result {
	if !vm.suspended {
		return fail("No frames")
	}
	args := &protocol.BacktraceArguments{}
	if err := req.UnmarshalArguments(args); err != nil {
		return fail("%v", err)
	}
	frames := make([]map[string]interface{}, 0, len(vm.frames))
	for i := range vm.frames {
		frames = append(frames, vm.frameObject(i, args.InlineRefs))
	}
	return succeed(map[string]interface{}{
		"fromFrame":   0,
		"toFrame":     len(frames),
		"totalFrames": len(frames),
		"frames":      frames,
	})
}

func (vm *VM) frame(req *protocol.Request) *result {
	args := &protocol.FrameArguments{}
	if err := req.UnmarshalArguments(args); err != nil {
		return fail("%v", err)
	}
	if !vm.suspended || args.Number < 0 || args.Number >= len(vm.frames) {
		return fail("Invalid frame number")
	}
	return succeed(vm.frameObject(args.Number, true))
}

func (vm *VM) frameObject(index int, inlineRefs bool) map[string]interface{} {
	f := vm.frames[index]
	ref := func(v goja.Value) map[string]interface{} {
		if inlineRefs {
			return vm.inline(v, defaultMaxStringLength)
		}
		return map[string]interface{}{"ref": vm.handleFor(v)}
	}
	variables := func(names []string) []map[string]interface{} {
		answer := make([]map[string]interface{}, 0, len(names))
		for _, name := range names {
			answer = append(answer, map[string]interface{}{"name": name, "value": ref(vm.rt.Get(name))})
		}
		return answer
	}

	var fn goja.Value = vm.rt.Get(f.Function)
	if _, isObject := fn.(*goja.Object); !isObject {
		fn = vm.placeholderFunction(f.Function)
	}
	funcRef := ref(fn)
	funcRef["name"] = f.Function
	funcRef["type"] = constants.HandleFunction
	funcRef["className"] = constants.ClassFunction

	answer := map[string]interface{}{
		"type":      constants.HandleFrame,
		"index":     index,
		"receiver":  ref(vm.rt.GlobalObject()),
		"func":      funcRef,
		"arguments": variables(f.Arguments),
		"locals":    variables(f.Locals),
		"line":      f.Line,
		"column":    f.Column,
		"position":  0,
		"scopes":    vm.scopeRefs(f),
	}
	if s, exist := vm.scripts[f.ScriptID]; exist {
		funcRef["scriptId"] = s.id
		answer["script"] = map[string]interface{}{"ref": s.handle, "type": constants.HandleScript, "id": s.id, "name": s.name}
		answer["sourceLineText"] = s.line(f.Line)
	}
	return answer
}

func (vm *VM) placeholderFunction(name string) goja.Value {
	v, err := vm.rt.RunString("(function " + name + "() {})")
	if err != nil {
		return vm.rt.ToValue(func() {})
	}
	return v
}

func (vm *VM) scopeRefs(f *Frame) []protocol.ScopeRef {
	refs := []protocol.ScopeRef{{Type: constants.ScopeLocal, Index: 0}}
	if f.With != "" {
		refs = append(refs, protocol.ScopeRef{Type: constants.ScopeWith, Index: 1})
	}
	return append(refs, protocol.ScopeRef{Type: constants.ScopeGlobal, Index: len(refs)})
}

// scopeObject 作用域对应的对象
func (vm *VM) scopeObject(frameIndex int, number int) (constants.ScopeType, *goja.Object, error) {
	f := vm.frames[frameIndex]
	refs := vm.scopeRefs(f)
	if number < 0 || number >= len(refs) {
		return 0, nil, fmt.Errorf("invalid scope number %d", number)
	}
	switch refs[number].Type {
	case constants.ScopeLocal:
		if obj, exist := vm.localScopes[frameIndex]; exist {
			return constants.ScopeLocal, obj, nil
		}
		obj := vm.rt.NewObject()
		for _, name := range append(append([]string{}, f.Arguments...), f.Locals...) {
			_ = obj.Set(name, vm.rt.Get(name))
		}
		vm.localScopes[frameIndex] = obj
		return constants.ScopeLocal, obj, nil
	case constants.ScopeWith:
		v, err := vm.rt.RunString(f.With)
		if err != nil {
			return 0, nil, err
		}
		obj, isObject := v.(*goja.Object)
		if !isObject {
			return 0, nil, fmt.Errorf("with scope is not an object")
		}
		return constants.ScopeWith, obj, nil
	}
	return constants.ScopeGlobal, vm.rt.GlobalObject(), nil
}

func (vm *VM) scope(req *protocol.Request) *result {
	args := &protocol.ScopeArguments{}
	if err := req.UnmarshalArguments(args); err != nil {
		return fail("%v", err)
	}
	frameIndex := 0
	if args.FrameNumber != nil {
		frameIndex = *args.FrameNumber
	}
	if !vm.suspended || frameIndex < 0 || frameIndex >= len(vm.frames) {
		return fail("No frames")
	}
	typ, obj, err := vm.scopeObject(frameIndex, args.Number)
	if err != nil {
		return fail("%v", err)
	}
	return succeed(map[string]interface{}{
		"type":       typ,
		"index":      args.Number,
		"frameIndex": frameIndex,
		"object":     vm.serialize(obj, defaultMaxStringLength, args.InlineRefs),
	})
}

func (vm *VM) scopes(req *protocol.Request) *result {
	args := &protocol.ScopesArguments{}
	if err := req.UnmarshalArguments(args); err != nil {
		return fail("%v", err)
	}
	frameIndex := 0
	if args.FrameNumber != nil {
		frameIndex = *args.FrameNumber
	}
	if !vm.suspended || frameIndex < 0 || frameIndex >= len(vm.frames) {
		return fail("No frames")
	}
	refs := vm.scopeRefs(vm.frames[frameIndex])
	scopes := make([]map[string]interface{}, 0, len(refs))
	for i, ref := range refs {
		_, obj, err := vm.scopeObject(frameIndex, i)
		if err != nil {
			return fail("%v", err)
		}
		scopes = append(scopes, map[string]interface{}{
			"type":       ref.Type,
			"index":      ref.Index,
			"frameIndex": frameIndex,
			"object":     map[string]interface{}{"ref": vm.handleFor(obj)},
		})
	}
	return succeed(map[string]interface{}{
		"fromScope":   0,
		"toScope":     len(scopes),
		"totalScopes": len(scopes),
		"scopes":      scopes,
	})
}

func (vm *VM) scriptList(req *protocol.Request) *result {
	args := &protocol.ScriptsArguments{}
	if err := req.UnmarshalArguments(args); err != nil {
		return fail("%v", err)
	}
	ids := map[int64]bool{}
	for _, id := range args.IDs {
		ids[id] = true
	}
	answer := []protocol.ScriptObject{}
	for _, s := range vm.sortedScripts() {
		if args.Types != 0 && args.Types&int(constants.ScriptNormal) == 0 {
			continue
		}
		if len(ids) != 0 && !ids[s.id] {
			continue
		}
		answer = append(answer, s.object(args.IncludeSource))
	}
	return succeed(answer)
}

func (vm *VM) setBreakpoint(req *protocol.Request) *result {
	args := &protocol.SetBreakpointArguments{}
	if err := req.UnmarshalArguments(args); err != nil {
		return fail("%v", err)
	}
	if args.Target == "" {
		return fail("Missing argument \"target\"")
	}
	bp := &Breakpoint{
		ID:          vm.nextBreakpoint + 1,
		Type:        args.Type,
		Target:      args.Target,
		Enabled:     args.Enabled,
		Condition:   args.Condition,
		IgnoreCount: args.IgnoreCount,
	}
	if args.Line != nil {
		bp.Line = *args.Line
	}
	if args.Column != nil {
		bp.Column = *args.Column
	}
	vm.nextBreakpoint++
	vm.breakpoints[bp.ID] = bp
	body := &protocol.SetBreakpointBody{Type: string(bp.Type), Breakpoint: bp.ID, Line: args.Line, Column: args.Column}
	if bp.Type == constants.ScriptNameBreakpoint {
		body.ScriptName = bp.Target
	}
	if s := vm.targetScript(bp); s != nil {
		body.ActualLocations = []protocol.Location{{Line: bp.Line, Column: bp.Column, ScriptID: s.id}}
	}
	return succeed(body)
}

func (vm *VM) targetScript(bp *Breakpoint) *script {
	for _, s := range vm.sortedScripts() {
		switch bp.Type {
		case constants.ScriptNameBreakpoint:
			if s.name == bp.Target {
				return s
			}
		case constants.ScriptIDBreakpoint:
			if strconv.FormatInt(s.id, 10) == bp.Target {
				return s
			}
		}
	}
	return nil
}

func (vm *VM) changeBreakpoint(req *protocol.Request) *result {
	args := &protocol.ChangeBreakpointArguments{}
	if err := req.UnmarshalArguments(args); err != nil {
		return fail("%v", err)
	}
	bp, exist := vm.breakpoints[args.Breakpoint]
	if !exist {
		return fail("Unknown breakpoint %d", args.Breakpoint)
	}
	bp.Enabled = args.Enabled
	bp.Condition = args.Condition
	bp.IgnoreCount = args.IgnoreCount
	return succeed(nil)
}

func (vm *VM) clearBreakpoint(req *protocol.Request) *result {
	args := &protocol.ClearBreakpointArguments{}
	if err := req.UnmarshalArguments(args); err != nil {
		return fail("%v", err)
	}
	if _, exist := vm.breakpoints[args.Breakpoint]; !exist {
		return fail("Unknown breakpoint %d", args.Breakpoint)
	}
	delete(vm.breakpoints, args.Breakpoint)
	return succeed(map[string]interface{}{"breakpoint": args.Breakpoint})
}

func (vm *VM) listBreakpoints() *result {
	body := &protocol.ListBreakpointsBody{
		Breakpoints:               []protocol.BreakpointInfo{},
		BreakOnExceptions:         vm.breakOnAll,
		BreakOnUncaughtExceptions: vm.breakOnUncaught,
	}
	for id := int64(1); id <= vm.nextBreakpoint; id++ {
		bp, exist := vm.breakpoints[id]
		if !exist {
			continue
		}
		info := protocol.BreakpointInfo{
			Number:      bp.ID,
			Type:        string(bp.Type),
			Line:        bp.Line,
			Column:      bp.Column,
			Active:      bp.Enabled,
			Condition:   bp.Condition,
			IgnoreCount: bp.IgnoreCount,
		}
		if bp.Type == constants.ScriptNameBreakpoint {
			info.ScriptName = bp.Target
		}
		if s := vm.targetScript(bp); s != nil {
			id := s.id
			info.ScriptID = &id
		}
		body.Breakpoints = append(body.Breakpoints, info)
	}
	return succeed(body)
}

func (vm *VM) setExceptionBreak(req *protocol.Request) *result {
	args := &protocol.SetExceptionBreakArguments{}
	if err := req.UnmarshalArguments(args); err != nil {
		return fail("%v", err)
	}
	switch args.Type {
	case constants.ExceptionBreakAll:
		vm.breakOnAll = args.Enabled
	case constants.ExceptionBreakUncaught:
		vm.breakOnUncaught = args.Enabled
	default:
		return fail("Unknown exception break type %s", args.Type)
	}
	return succeed(&protocol.SetExceptionBreakBody{Type: args.Type, Enabled: args.Enabled})
}
