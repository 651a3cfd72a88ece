package v8_debugger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fansqz/js-debugger/constants"
	"github.com/fansqz/js-debugger/debugger"
	"github.com/fansqz/js-debugger/protocol"
)

// breakpointResponder 模拟vm的断点命令
func breakpointResponder(req *protocol.Request) (*protocol.Response, error) {
	switch req.Command {
	case constants.SetBreakpoint:
		return protocol.NewResponse(req, true, &protocol.SetBreakpointBody{Type: "scriptName", Breakpoint: 3})
	case constants.ListBreakpoints:
		return protocol.NewResponse(req, true, &protocol.ListBreakpointsBody{
			Breakpoints: []protocol.BreakpointInfo{{Number: 3, Type: "scriptName", ScriptName: "main.js", Line: 9, Column: 2, Active: true}},
		})
	}
	return protocol.NewResponse(req, true, nil)
}

func setTestBreakpoint(t *testing.T, m *BreakpointManager) debugger.Breakpoint {
	bp, err := m.SetBreakpointSync(context.Background(), &debugger.BreakpointOption{
		Type:    constants.ScriptNameBreakpoint,
		Target:  "main.js",
		Line:    4,
		Enabled: true,
	}, time.Second)
	require.Nil(t, err)
	return bp
}

func TestBreakpointManager_ImmediateWhileRunning(t *testing.T) {
	sender := &recordingSender{respond: breakpointResponder}
	var running atomic.Bool
	running.Store(true)
	m := NewBreakpointManager(sender, running.Load)

	bp := setTestBreakpoint(t, m)
	bp.SetCondition("x > 1")
	done := make(chan error, 1)
	bp.Flush(func(err error) { done <- err })
	assert.Nil(t, <-done)
	bp.Clear(func(err error) { done <- err })
	assert.Nil(t, <-done)

	assert.Equal(t, []constants.CommandType{
		constants.SetBreakpoint,
		constants.ChangeBreakpoint,
		constants.ClearBreakpoint,
	}, sender.Immediate())
}

func TestBreakpointManager_NoImmediateWhileStopped(t *testing.T) {
	sender := &recordingSender{respond: breakpointResponder}
	m := NewBreakpointManager(sender, func() bool { return false })

	bp := setTestBreakpoint(t, m)
	done := make(chan error, 1)
	bp.Clear(func(err error) { done <- err })
	assert.Nil(t, <-done)

	assert.Empty(t, sender.Immediate())
	assert.Len(t, sender.Requests(constants.SetBreakpoint), 1)
	assert.Len(t, sender.Requests(constants.ClearBreakpoint), 1)
}

func TestBreakpointManager_ListWhileReading(t *testing.T) {
	sender := &recordingSender{respond: breakpointResponder}
	m := NewBreakpointManager(sender, nil)
	bp := setTestBreakpoint(t, m)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_ = bp.Line()
			_ = bp.Column()
		}
	}()
	listed := make(chan []debugger.Breakpoint, 1)
	m.ListBreakpoints(func(bps []debugger.Breakpoint, err error) {
		assert.Nil(t, err)
		listed <- bps
	})
	bps := <-listed
	wg.Wait()

	require.Len(t, bps, 1)
	assert.Same(t, bp, bps[0])
	assert.Equal(t, 9, bp.Line())
	assert.Equal(t, 2, bp.Column())
}
