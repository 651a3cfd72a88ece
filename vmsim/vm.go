package vmsim

import (
	"context"
	"net"
	"sort"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"github.com/sirupsen/logrus"

	"github.com/fansqz/js-debugger/constants"
	"github.com/fansqz/js-debugger/protocol"
	"github.com/fansqz/js-debugger/transport"
	"github.com/fansqz/js-debugger/utils/gosync"
)

// DefaultVersion 模拟vm上报的V8版本
const DefaultVersion = "3.30.33.16"

// Frame 模拟的栈帧，变量都从全局对象中读取
type Frame struct {
	Function string
	ScriptID int64
	Line     int
	Column   int
	// Arguments 和 Locals 是全局变量名
	Arguments []string
	Locals    []string
	// With 不为空时增加一个with作用域，值是作用域对象的表达式
	With string
}

type script struct {
	id     int64
	name   string
	source string
	handle int64
}

// Breakpoint 模拟vm中的断点状态
type Breakpoint struct {
	ID          int64
	Type        constants.BreakpointType
	Target      string
	Line        int
	Column      int
	Enabled     bool
	Condition   string
	IgnoreCount int
}

// VM 基于goja的模拟vm，实现V8调试协议的服务端
// 所有请求在一个协程中按顺序处理
type VM struct {
	lock    sync.Mutex
	rt      *goja.Runtime
	tr      transport.Transport
	version string

	nextHandle int64
	handles    map[int64]goja.Value
	objects    map[*goja.Object]int64
	// 每个栈帧的local作用域对象，保证多次查询的handle一致
	localScopes map[int]*goja.Object

	nextScript    int64
	scripts       map[int64]*script
	scriptHandles map[int64]*script

	nextBreakpoint  int64
	breakpoints     map[int64]*Breakpoint
	breakOnUncaught bool
	breakOnAll      bool

	suspended bool
	frames    []*Frame

	seq      int
	requests []*protocol.Request
	hold     bool
	held     [][]byte
	closed   bool
}

func New() *VM {
	return &VM{
		rt:            goja.New(),
		version:       DefaultVersion,
		nextHandle:    1,
		handles:       map[int64]goja.Value{},
		objects:       map[*goja.Object]int64{},
		localScopes:   map[int]*goja.Object{},
		nextScript:    1,
		scripts:       map[int64]*script{},
		scriptHandles: map[int64]*script{},
		breakpoints:   map[int64]*Breakpoint{},
	}
}

// SetVersion 修改上报的版本，需要在连接之前调用
func (vm *VM) SetVersion(version string) {
	vm.lock.Lock()
	defer vm.lock.Unlock()
	vm.version = version
}

// Runtime 底层的goja运行时
func (vm *VM) Runtime() *goja.Runtime {
	return vm.rt
}

// Pipe 创建进程内的连接，返回客户端一端
func (vm *VM) Pipe() transport.Transport {
	client, server := transport.Pipe()
	vm.attach(server)
	gosync.Go(context.Background(), func(ctx context.Context) {
		vm.serve(server)
	})
	return client
}

// ServeConn 在网络连接上提供服务，先发送握手消息
func (vm *VM) ServeConn(conn net.Conn) {
	st := transport.NewStreamTransport(conn)
	vm.lock.Lock()
	version := vm.version
	vm.lock.Unlock()
	if err := st.SendHandshake(map[string]string{
		"Type":             "connect",
		"V8-Version":       version,
		"Protocol-Version": "1",
		"Embedding-Host":   "vmsim",
	}); err != nil {
		logrus.Errorf("[vmsim] send handshake fail, err = %v", err)
		_ = conn.Close()
		return
	}
	vm.Serve(st)
}

// Serve 处理请求直到连接结束
func (vm *VM) Serve(tr transport.Transport) {
	vm.attach(tr)
	vm.serve(tr)
}

// attach 之后产生的事件都发送到tr
func (vm *VM) attach(tr transport.Transport) {
	vm.lock.Lock()
	defer vm.lock.Unlock()
	vm.tr = tr
	vm.closed = false
}

func (vm *VM) serve(tr transport.Transport) {
	for {
		data, err := tr.Receive()
		if err != nil {
			vm.lock.Lock()
			vm.closed = true
			vm.lock.Unlock()
			return
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			logrus.Warnf("[vmsim] drop malformed message, err = %v", err)
			continue
		}
		req, ok := msg.(*protocol.Request)
		if !ok {
			continue
		}
		vm.handleRequest(req)
	}
}

// Close 断开当前连接
func (vm *VM) Close() {
	vm.lock.Lock()
	defer vm.lock.Unlock()
	if vm.tr != nil {
		_ = vm.tr.Close()
	}
	vm.closed = true
}

// Hold 暂存之后的响应，直到Release
func (vm *VM) Hold() {
	vm.lock.Lock()
	defer vm.lock.Unlock()
	vm.hold = true
}

// Release 发送暂存的响应
func (vm *VM) Release() {
	vm.lock.Lock()
	defer vm.lock.Unlock()
	vm.hold = false
	for _, data := range vm.held {
		vm.write(data)
	}
	vm.held = nil
}

// Requests 收到的某个命令的请求，command为空时返回全部
func (vm *VM) Requests(command constants.CommandType) []*protocol.Request {
	vm.lock.Lock()
	defer vm.lock.Unlock()
	var answer []*protocol.Request
	for _, req := range vm.requests {
		if command == "" || req.Command == command {
			answer = append(answer, req)
		}
	}
	return answer
}

// RequestCount 不包括促使vm处理命令的空evaluate
func (vm *VM) RequestCount(command constants.CommandType) int {
	count := 0
	for _, req := range vm.Requests(command) {
		if req.Command == constants.Evaluate && strings.Contains(string(req.Arguments), constants.ImmediateExpression) {
			continue
		}
		count++
	}
	return count
}

// RunScript 执行脚本并发送afterCompile事件
func (vm *VM) RunScript(name, source string) (int64, error) {
	vm.lock.Lock()
	defer vm.lock.Unlock()
	s := &script{id: vm.nextScript, name: name, source: source, handle: vm.allocHandle()}
	vm.nextScript++
	vm.scripts[s.id] = s
	vm.scriptHandles[s.handle] = s
	if _, err := vm.rt.RunScript(name, source); err != nil {
		return s.id, err
	}
	vm.emit(constants.AfterCompileEvent, &protocol.AfterCompileEventBody{Script: s.object(false)})
	return s.id, nil
}

// CollectScript 模拟脚本被回收
func (vm *VM) CollectScript(id int64) {
	vm.lock.Lock()
	defer vm.lock.Unlock()
	s, ok := vm.scripts[id]
	if !ok {
		return
	}
	delete(vm.scripts, id)
	delete(vm.scriptHandles, s.handle)
	body := &protocol.ScriptCollectedEventBody{}
	body.Script.ID = id
	vm.emit(constants.ScriptCollectedEvent, body)
}

// Eval 直接在运行时执行表达式，不经过协议
func (vm *VM) Eval(expression string) (goja.Value, error) {
	vm.lock.Lock()
	defer vm.lock.Unlock()
	return vm.rt.RunString(expression)
}

// HandleOf 执行表达式并返回结果的handle
func (vm *VM) HandleOf(expression string) (int64, error) {
	vm.lock.Lock()
	defer vm.lock.Unlock()
	v, err := vm.rt.RunString(expression)
	if err != nil {
		return 0, err
	}
	return vm.handleFor(v), nil
}

// Break 模拟命中断点
func (vm *VM) Break(breakpoints []int64, frames ...*Frame) {
	vm.lock.Lock()
	defer vm.lock.Unlock()
	vm.suspend(frames)
	body := &protocol.BreakEventBody{Breakpoints: breakpoints}
	vm.fillLocation(&body.SourceLine, &body.SourceColumn, &body.SourceLineText, &body.Script)
	vm.emit(constants.BreakEvent, body)
}

// Throw 执行表达式得到异常值，模拟异常暂停
func (vm *VM) Throw(expression string, uncaught bool, frames ...*Frame) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()
	v, err := vm.rt.RunString(expression)
	if err != nil {
		return err
	}
	vm.suspend(frames)
	body := &protocol.ExceptionEventBody{Uncaught: uncaught}
	exception, err := protocol.NewRawHandle(vm.serialize(v, defaultMaxStringLength, false))
	if err != nil {
		return err
	}
	body.Exception = exception
	vm.fillLocation(&body.SourceLine, &body.SourceColumn, &body.SourceLineText, &body.Script)
	vm.emit(constants.ExceptionEvent, body)
	return nil
}

func (vm *VM) suspend(frames []*Frame) {
	if len(frames) == 0 {
		frames = []*Frame{{Function: "", Line: 0}}
	}
	vm.suspended = true
	vm.frames = frames
	vm.localScopes = map[int]*goja.Object{}
}

func (vm *VM) fillLocation(line, column *int, text *string, ref **protocol.ScriptRef) {
	top := vm.frames[0]
	*line, *column = top.Line, top.Column
	if s, ok := vm.scripts[top.ScriptID]; ok {
		*text = s.line(top.Line)
		*ref = &protocol.ScriptRef{ID: s.id, Name: s.name, LineCount: s.lineCount()}
	}
}

// IsSuspended vm是否处于暂停状态
func (vm *VM) IsSuspended() bool {
	vm.lock.Lock()
	defer vm.lock.Unlock()
	return vm.suspended
}

// Breakpoint 查询断点状态
func (vm *VM) Breakpoint(id int64) (Breakpoint, bool) {
	vm.lock.Lock()
	defer vm.lock.Unlock()
	bp, ok := vm.breakpoints[id]
	if !ok {
		return Breakpoint{}, false
	}
	return *bp, true
}

// BreakOnException 当前的异常断点设置
func (vm *VM) BreakOnException() (all bool, uncaught bool) {
	vm.lock.Lock()
	defer vm.lock.Unlock()
	return vm.breakOnAll, vm.breakOnUncaught
}

func (vm *VM) allocHandle() int64 {
	h := vm.nextHandle
	vm.nextHandle++
	return h
}

func (vm *VM) handleFor(v goja.Value) int64 {
	if obj, ok := v.(*goja.Object); ok {
		if h, ok := vm.objects[obj]; ok {
			return h
		}
		h := vm.allocHandle()
		vm.objects[obj] = h
		vm.handles[h] = v
		return h
	}
	h := vm.allocHandle()
	vm.handles[h] = v
	return h
}

func (s *script) lineCount() int {
	return strings.Count(s.source, "\n") + 1
}

func (s *script) line(n int) string {
	lines := strings.Split(s.source, "\n")
	if n < 0 || n >= len(lines) {
		return ""
	}
	return lines[n]
}

func (s *script) object(includeSource bool) protocol.ScriptObject {
	obj := protocol.ScriptObject{
		Handle:       s.handle,
		Type:         constants.HandleScript,
		ID:           s.id,
		Name:         s.name,
		LineCount:    s.lineCount(),
		SourceLength: len(s.source),
		ScriptType:   int(constants.ScriptNormal),
	}
	if includeSource {
		obj.Source = s.source
	}
	return obj
}

func (vm *VM) sortedScripts() []*script {
	answer := make([]*script, 0, len(vm.scripts))
	for _, s := range vm.scripts {
		answer = append(answer, s)
	}
	sort.Slice(answer, func(i, j int) bool { return answer[i].id < answer[j].id })
	return answer
}
