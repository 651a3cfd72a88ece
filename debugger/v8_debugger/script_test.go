package v8_debugger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fansqz/js-debugger/protocol"
)

const outlineSource = `function outer() {
  var inner = function () {
    return 1;
  };
  return inner();
}
var obj = {
  method: function () {},
  arrow: () => 2,
};
class Point {
  norm() {
    return 0;
  }
}
`

func TestParseOutline(t *testing.T) {
	outline, err := parseOutline(context.Background(), []byte(outlineSource), 10)
	require.Nil(t, err)
	names := make([]string, 0, len(outline))
	for _, fn := range outline {
		names = append(names, fn.Name)
	}
	assert.Equal(t, []string{"outer", "inner", "method", "arrow", "norm"}, names)
	assert.Equal(t, 10, outline[0].StartLine)
	assert.Equal(t, 15, outline[0].EndLine)
	assert.Equal(t, 11, outline[1].StartLine)
	assert.Equal(t, 13, outline[1].EndLine)
}

func TestScript_FunctionAt(t *testing.T) {
	s := newScript(&protocol.ScriptObject{ID: 1, Name: "a.js", LineOffset: 10, LineCount: 16, Source: outlineSource})
	ctx := context.Background()
	assert.Equal(t, 25, s.EndLine())

	fn, err := s.FunctionAt(ctx, 12)
	require.Nil(t, err)
	assert.Equal(t, "inner", fn.Name)
	fn, err = s.FunctionAt(ctx, 14)
	require.Nil(t, err)
	assert.Equal(t, "outer", fn.Name)
	fn, err = s.FunctionAt(ctx, 2)
	require.Nil(t, err)
	assert.Nil(t, fn)
}

func TestScriptManager_AddKeepsSource(t *testing.T) {
	m := NewScriptManager(&recordingSender{})
	m.AddScript(&protocol.ScriptObject{ID: 1, Name: "a.js", Source: "var a;"})
	m.AddScript(&protocol.ScriptObject{ID: 1, Name: "a.js"})
	assert.Equal(t, "var a;", m.Get(1).Source())

	m.AddScript(&protocol.ScriptObject{ID: 2, Name: "b.js"})
	assert.Len(t, m.All(), 2)
	assert.Equal(t, int64(2), m.FindByName("b.js").ID())
	assert.Nil(t, m.FindByName("c.js"))

	m.ScriptCollected(1)
	assert.Nil(t, m.Get(1))
}

func TestScriptManager_ResetWaitsReload(t *testing.T) {
	sender := &recordingSender{gate: make(chan struct{})}
	sender.respond = func(req *protocol.Request) (*protocol.Response, error) {
		return protocol.NewResponse(req, true, []protocol.ScriptObject{{ID: 3, Name: "c.js", Source: "1"}})
	}
	m := NewScriptManager(sender)
	loaded := make(chan error, 1)
	m.LoadAllScripts(func(err error) { loaded <- err })

	reset := make(chan struct{})
	go func() {
		m.Reset()
		close(reset)
	}()
	select {
	case <-reset:
		t.Fatal("reset should wait for reload")
	case <-time.After(20 * time.Millisecond):
	}

	close(sender.gate)
	assert.Nil(t, <-loaded)
	<-reset
	// 重新加载的结果被Reset清除
	assert.Empty(t, m.All())
}
