package v8_debugger

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fansqz/js-debugger/constants"
	"github.com/fansqz/js-debugger/debugger"
	e "github.com/fansqz/js-debugger/error"
	"github.com/fansqz/js-debugger/transport"
	"github.com/fansqz/js-debugger/vmsim"
)

const listScript = `var head = {val: 1, next: {val: 2, next: null}};
var arr = [5, 6, 7];
var idx = 1;
`

func newPipeDebugger(vm *vmsim.VM) *V8Debugger {
	return NewV8Debugger(&Option{
		SyncTimeout: 5 * time.Second,
		Dial: func(ctx context.Context) (transport.Transport, error) {
			return vm.Pipe(), nil
		},
	})
}

func attachDebugger(t *testing.T) (*vmsim.VM, *V8Debugger, chan interface{}) {
	vm := vmsim.New()
	_, err := vm.RunScript("list.js", listScript)
	require.Nil(t, err)
	d := newPipeDebugger(vm)
	events := make(chan interface{}, 64)
	err = d.Attach(context.Background(), &debugger.AttachOption{
		Callback:   func(event interface{}) { events <- event },
		MinVersion: "3.14",
	})
	require.Nil(t, err)
	t.Cleanup(func() {
		_ = d.Detach(context.Background())
	})
	return vm, d, events
}

func TestV8Debugger_Attach(t *testing.T) {
	_, d, _ := attachDebugger(t)
	ctx := context.Background()
	assert.True(t, d.IsAttached())
	assert.Equal(t, vmsim.DefaultVersion, d.Version())
	assert.ErrorIs(t, d.Attach(ctx, nil), e.ErrAlreadyAttached)

	scripts, err := d.GetScripts(ctx)
	require.Nil(t, err)
	require.Len(t, scripts, 1)
	assert.Equal(t, "list.js", scripts[0].Name())
	assert.Equal(t, listScript, scripts[0].Source())
	// 没有暂停时没有上下文
	assert.Nil(t, d.CurrentContext())
	_, err = d.StructVisual(ctx, &debugger.StructVisualQuery{})
	assert.ErrorIs(t, err, e.ErrProgramIsRunning)
}

func TestV8Debugger_UnsupportedVersion(t *testing.T) {
	vm := vmsim.New()
	d := newPipeDebugger(vm)
	err := d.Attach(context.Background(), &debugger.AttachOption{MinVersion: "4.1"})
	assert.ErrorIs(t, err, e.ErrUnsupportedV8Version)
	assert.False(t, d.IsAttached())
	assert.ErrorIs(t, d.Detach(context.Background()), e.ErrNotAttached)
}

func TestCheckVersion(t *testing.T) {
	assert.Nil(t, checkVersion("3.30.33.16", ""))
	assert.Nil(t, checkVersion("3.30.33.16", "3.14"))
	assert.Nil(t, checkVersion("3.30.33.16 (candidate)", "3.30.33"))
	assert.ErrorIs(t, checkVersion("3.10.8", "3.14"), e.ErrUnsupportedV8Version)
	assert.ErrorIs(t, checkVersion("unknown", "3.14"), e.ErrUnsupportedV8Version)
	assert.NotNil(t, checkVersion("3.30.33", "not a version"))

	assert.Equal(t, "3.30.33", normalizeVersion("3.30.33.16"))
	assert.Equal(t, "5.1", normalizeVersion(" 5.1-node.1 "))
}

func TestV8Debugger_SuspendAndVisual(t *testing.T) {
	vm, d, events := attachDebugger(t)
	ctx := context.Background()

	require.Nil(t, d.Suspend(ctx))
	suspended := waitEvent[*debugger.SuspendedEvent](t, events)
	assert.Equal(t, constants.PauseStopped, suspended.Reason)
	// suspend之后紧跟一个空的evaluate
	assert.Eventually(t, func() bool {
		return len(vm.Requests(constants.Evaluate)) > vm.RequestCount(constants.Evaluate)
	}, time.Second, 10*time.Millisecond)
	require.NotNil(t, d.CurrentContext())
	// 已经暂停时不再发送suspend
	require.Nil(t, d.Suspend(ctx))
	assert.Equal(t, 1, vm.RequestCount(constants.Suspend))

	// 模拟在有局部变量的位置暂停
	vm.Break(nil, &vmsim.Frame{Function: "main", Locals: []string{"head", "arr", "idx"}})
	waitEvent[*debugger.SuspendedEvent](t, events)

	data, err := d.StructVisual(ctx, &debugger.StructVisualQuery{
		Struct: "Object",
		Values: []string{"val"},
		Points: []string{"next"},
	})
	require.Nil(t, err)
	require.Len(t, data.Points, 1)
	assert.Equal(t, "head", data.Points[0].Name)
	require.Len(t, data.Nodes, 2)
	first, second := data.Nodes[0], data.Nodes[1]
	assert.Equal(t, data.Points[0].Value, first.ID)
	require.Len(t, first.Values, 1)
	assert.Equal(t, "1", first.Values[0].Value)
	require.Len(t, first.Points, 1)
	assert.Equal(t, second.ID, first.Points[0].Value)
	require.Len(t, second.Points, 1)
	assert.Equal(t, "null", second.Points[0].Value)

	vdata, err := d.VariableVisual(ctx, &debugger.VariableVisualQuery{
		StructVars: []string{"arr"},
		PointVars:  []string{"idx"},
	})
	require.Nil(t, err)
	require.Len(t, vdata.Points, 1)
	assert.Equal(t, "1", vdata.Points[0].Value)
	require.Len(t, vdata.Structs, 1)
	assert.Equal(t, "arr", vdata.Structs[0].Name)
	values := make([]string, 0, 3)
	for _, v := range vdata.Structs[0].Values {
		values = append(values, v.Value)
	}
	assert.Equal(t, []string{"5", "6", "7"}, values)
}

func TestV8Debugger_Breakpoints(t *testing.T) {
	vm, d, _ := attachDebugger(t)
	ctx := context.Background()

	bp, err := d.SetBreakpoint(ctx, &debugger.BreakpointOption{
		Type:    constants.ScriptNameBreakpoint,
		Target:  "list.js",
		Line:    2,
		Enabled: true,
	})
	require.Nil(t, err)
	remote, ok := vm.Breakpoint(bp.ID())
	require.True(t, ok)
	assert.Equal(t, 2, remote.Line)

	bps, err := d.ListBreakpoints(ctx)
	require.Nil(t, err)
	require.Len(t, bps, 1)
	assert.Equal(t, bp.ID(), bps[0].ID())

	require.Nil(t, d.EnableBreakOnException(ctx, constants.ExceptionBreakAll, true))
	all, uncaught := vm.BreakOnException()
	assert.True(t, all)
	assert.False(t, uncaught)
}

func TestV8Debugger_Detach(t *testing.T) {
	vm := vmsim.New()
	d := newPipeDebugger(vm)
	events := make(chan interface{}, 64)
	ctx := context.Background()
	require.Nil(t, d.Attach(ctx, &debugger.AttachOption{Callback: func(event interface{}) { events <- event }}))

	require.Nil(t, d.Detach(ctx))
	waitEvent[*debugger.DisconnectedEvent](t, events)
	assert.False(t, d.IsAttached())
	assert.Equal(t, 1, vm.RequestCount(constants.Disconnect))
	_, err := d.GetScripts(ctx)
	assert.ErrorIs(t, err, e.ErrNotAttached)
	assert.ErrorIs(t, d.Suspend(ctx), e.ErrNotAttached)

	// 断开后可以重新连接
	require.Nil(t, d.Attach(ctx, nil))
	assert.True(t, d.IsAttached())
	require.Nil(t, d.Detach(ctx))
}

func TestV8Debugger_AttachTCP(t *testing.T) {
	vm := vmsim.New()
	_, err := vm.RunScript("list.js", listScript)
	require.Nil(t, err)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.Nil(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		vm.ServeConn(conn)
	}()

	d := NewV8Debugger(&Option{Address: ln.Addr().String(), DialTimeout: time.Second, SyncTimeout: 5 * time.Second})
	ctx := context.Background()
	require.Nil(t, d.Attach(ctx, &debugger.AttachOption{MinVersion: "3.14"}))
	defer d.Detach(ctx)
	assert.Equal(t, vmsim.DefaultVersion, d.Version())
	scripts, err := d.GetScripts(ctx)
	require.Nil(t, err)
	assert.Len(t, scripts, 1)
}
