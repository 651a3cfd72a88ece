package v8_debugger

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maxatome/go-testdeep/td"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fansqz/js-debugger/constants"
	"github.com/fansqz/js-debugger/debugger"
	e "github.com/fansqz/js-debugger/error"
	"github.com/fansqz/js-debugger/protocol"
)

func pointObject() map[int64]map[string]interface{} {
	return map[int64]map[string]interface{}{
		5: {
			"handle":    5,
			"type":      "object",
			"className": "Object",
			"properties": []interface{}{
				map[string]interface{}{"name": "x", "ref": 6},
				map[string]interface{}{"name": "y", "ref": 7},
			},
			"protoObject": map[string]interface{}{"ref": 8},
		},
		6: {"handle": 6, "type": "number", "value": 1, "text": "1"},
		7: {"handle": 7, "type": "string", "value": "abc", "length": 3},
	}
}

func TestValueLoader_LoadOncePerGeneration(t *testing.T) {
	sender := &recordingSender{respond: lookupResponder(t, pointObject()), gate: make(chan struct{})}
	loader := NewValueLoader(sender, NewHandleManager(), 0, time.Second)
	ctx := context.Background()

	const n = 10
	results := make([]*SubpropertiesMirror, n)
	var started, finished sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		started.Add(1)
		finished.Add(1)
		go func() {
			defer finished.Done()
			started.Done()
			props, err := loader.GetOrLoadSubproperties(ctx, 5)
			assert.Nil(t, err)
			results[i] = props
		}()
	}
	started.Wait()
	time.Sleep(20 * time.Millisecond)
	close(sender.gate)
	finished.Wait()

	assert.Len(t, sender.Requests(constants.Lookup), 1)
	for _, props := range results {
		assert.Same(t, results[0], props)
	}
	td.Cmp(t, results[0].Properties, []PropertyReference{
		{Name: "x", Ref: 6},
		{Name: "y", Ref: 7},
	})
	td.Cmp(t, results[0].InternalProperties, td.Len(1))

	// 同一代直接使用缓存
	_, err := loader.GetOrLoadSubproperties(ctx, 5)
	assert.Nil(t, err)
	assert.Len(t, sender.Requests(constants.Lookup), 1)

	// 换代后重新加载
	loader.Invalidate()
	props, err := loader.GetOrLoadSubproperties(ctx, 5)
	assert.Nil(t, err)
	assert.Equal(t, loader.CacheState().Current(), props.Generation)
	assert.Len(t, sender.Requests(constants.Lookup), 2)
}

func TestValueLoader_FailedLoadRetries(t *testing.T) {
	var calls atomic.Int32
	respond := lookupResponder(t, pointObject())
	sender := &recordingSender{respond: func(req *protocol.Request) (*protocol.Response, error) {
		if calls.Add(1) == 1 {
			return nil, e.ErrDebuggerDetached
		}
		return respond(req)
	}}
	loader := NewValueLoader(sender, NewHandleManager(), 0, time.Second)

	_, err := loader.GetOrLoadSubproperties(context.Background(), 5)
	var loadErr *e.ValueLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, []int64{5}, loadErr.Refs)
	assert.ErrorIs(t, err, e.ErrDebuggerDetached)

	props, err := loader.GetOrLoadSubproperties(context.Background(), 5)
	assert.Nil(t, err)
	assert.Len(t, props.Properties, 2)
	assert.Len(t, sender.Requests(constants.Lookup), 2)
}

func TestValueLoader_NegativeRefNeverLoaded(t *testing.T) {
	sender := &recordingSender{respond: lookupResponder(t, nil)}
	loader := NewValueLoader(sender, NewHandleManager(), 0, time.Second)

	props, err := loader.GetOrLoadSubproperties(context.Background(), protocol.NoRef)
	assert.Nil(t, err)
	assert.Empty(t, props.Properties)

	values, err := loader.GetOrLoadValueFromRefs(context.Background(), []PropertyReference{{Name: "a", Ref: protocol.NoRef}})
	assert.Nil(t, err)
	assert.Equal(t, debugger.TypeUndefined, values[0].Type())
	assert.Empty(t, sender.Requests(constants.Lookup))
}

func TestValueLoader_UnknownHandleType(t *testing.T) {
	sender := &recordingSender{respond: lookupResponder(t, nil)}
	loader := NewValueLoader(sender, NewHandleManager(), 0, time.Second)

	_, err := loader.Install(rawHandle(t, map[string]interface{}{"handle": 40, "type": "bogus"}))
	var pe *e.ProtocolError
	assert.ErrorAs(t, err, &pe)
	assert.Nil(t, loader.CachedMirror(40))

	_, err = loader.GetOrLoadValueFromRefs(context.Background(), []PropertyReference{{
		Name:   "a",
		Ref:    41,
		Inline: rawHandle(t, map[string]interface{}{"ref": 41, "type": "bogus"}),
	}})
	assert.ErrorAs(t, err, &pe)
	assert.Empty(t, sender.Requests(constants.Lookup))
}

func TestValueLoader_InvalidateKeepsHandles(t *testing.T) {
	handles := NewHandleManager()
	handles.Put(rawHandle(t, map[string]interface{}{"handle": 6, "type": "number", "value": 1, "text": "1"}))
	sender := &recordingSender{respond: lookupResponder(t, nil)}
	loader := NewValueLoader(sender, handles, 0, time.Second)

	before := loader.CacheState().Current()
	loader.Invalidate()
	assert.Greater(t, loader.CacheState().Current(), before)
	assert.Equal(t, 1, handles.Size())

	values, err := loader.GetOrLoadValueFromRefs(context.Background(), []PropertyReference{{Name: "x", Ref: 6}})
	require.Nil(t, err)
	assert.Equal(t, "1", values[0].Value().String())
	assert.Empty(t, sender.Requests(constants.Lookup))

	loader.Reset()
	assert.Equal(t, 0, handles.Size())
}

func TestValueLoader_BatchLoad(t *testing.T) {
	sender := &recordingSender{respond: lookupResponder(t, pointObject())}
	handles := NewHandleManager()
	loader := NewValueLoader(sender, handles, 0, time.Second)

	inline := rawHandle(t, map[string]interface{}{"ref": 9, "type": "boolean", "value": true})
	values, err := loader.GetOrLoadValueFromRefs(context.Background(), []PropertyReference{
		{Name: "a", Ref: 6},
		{Name: "b", Ref: 7},
		{Name: "c", Ref: 6},
		{Name: "d", Ref: 9, Inline: inline},
		{Name: "e", Ref: 5},
	})
	require.Nil(t, err)

	lookups := sender.Requests(constants.Lookup)
	require.Len(t, lookups, 1)
	args := &protocol.LookupArguments{}
	require.Nil(t, lookups[0].UnmarshalArguments(args))
	assert.Equal(t, []int64{6, 7, 5}, args.Handles)

	require.Len(t, values, 5)
	assert.Equal(t, "1", values[0].Value().String())
	assert.Equal(t, "abc", values[1].Value().String())
	assert.Same(t, values[0], values[2])
	assert.Equal(t, "true", values[3].Value().String())
	assert.Equal(t, debugger.TypeObject, values[4].Type())
	// lookup结果中带有属性，不需要再次加载
	assert.NotNil(t, values[4].Properties())

	// 已经缓存的ref不再查询
	_, err = loader.GetOrLoadValueFromRefs(context.Background(), []PropertyReference{{Name: "a", Ref: 6}, {Name: "e", Ref: 5}})
	assert.Nil(t, err)
	assert.Len(t, sender.Requests(constants.Lookup), 1)
}

func TestValueLoader_BatchFailsAsWhole(t *testing.T) {
	sender := &recordingSender{respond: lookupResponder(t, pointObject())}
	loader := NewValueLoader(sender, NewHandleManager(), 0, time.Second)

	_, err := loader.GetOrLoadValueFromRefs(context.Background(), []PropertyReference{
		{Name: "a", Ref: 6},
		{Name: "missing", Ref: 100},
	})
	var loadErr *e.ValueLoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, []int64{6, 100}, loadErr.Refs)
}

func TestLoadableString_Reload(t *testing.T) {
	full := strings.Repeat("a", 100000)
	var maxLengths []int
	sender := &recordingSender{}
	sender.respond = func(req *protocol.Request) (*protocol.Response, error) {
		args := &protocol.LookupArguments{}
		require.Nil(t, req.UnmarshalArguments(args))
		maxLengths = append(maxLengths, args.MaxStringLength)
		n := args.MaxStringLength
		if n > len(full) {
			n = len(full)
		}
		return protocol.NewResponse(req, true, map[string]interface{}{
			"3": map[string]interface{}{
				"handle": 3, "type": "string", "value": full[:n],
				"fromIndex": 0, "toIndex": n, "length": len(full),
			},
		})
	}
	loader := NewValueLoader(sender, NewHandleManager(), 0, time.Second)

	m, err := loader.Install(rawHandle(t, map[string]interface{}{
		"handle": 3, "type": "string", "value": full[:80],
		"fromIndex": 0, "toIndex": 80, "length": len(full),
	}))
	require.Nil(t, err)
	s := m.Value()
	assert.True(t, s.NeedsReload())
	assert.Equal(t, 80, s.LoadedLength())
	assert.Equal(t, 100000, s.ActualLength())

	require.Nil(t, s.Reload(context.Background()))
	assert.Equal(t, MinReloadLength, s.LoadedLength())
	require.Nil(t, s.Reload(context.Background()))
	assert.Equal(t, 100000, s.LoadedLength())
	assert.Equal(t, full, s.String())
	assert.False(t, s.NeedsReload())

	// 已经完整时不再请求
	require.Nil(t, s.Reload(context.Background()))
	assert.Equal(t, []int{MinReloadLength, MinReloadLength * 10}, maxLengths)
}

func TestLoadableString_NotReloadable(t *testing.T) {
	loader := NewValueLoader(&recordingSender{}, NewHandleManager(), 0, time.Second)
	m, err := loader.Install(rawHandle(t, map[string]interface{}{
		"handle": -1, "type": "string", "value": "ab", "fromIndex": 0, "toIndex": 2, "length": 10,
	}))
	require.Nil(t, err)
	assert.ErrorIs(t, m.Value().Reload(context.Background()), e.ErrNotReloadable)
}

func TestValueLoader_LoadScopeFields(t *testing.T) {
	sender := &recordingSender{}
	sender.respond = func(req *protocol.Request) (*protocol.Response, error) {
		args := &protocol.ScopeArguments{}
		require.Nil(t, req.UnmarshalArguments(args))
		assert.True(t, args.InlineRefs)
		return protocol.NewResponse(req, true, map[string]interface{}{
			"type": 1, "index": args.Number, "frameIndex": *args.FrameNumber,
			"object": map[string]interface{}{
				"handle": 20, "type": "object", "className": "Object",
				"properties": []interface{}{
					map[string]interface{}{"name": "i", "value": map[string]interface{}{"ref": 21, "type": "number", "value": 3}},
				},
			},
		})
	}
	loader := NewValueLoader(sender, NewHandleManager(), 0, time.Second)
	m, err := loader.LoadScopeFields(context.Background(), 0, 1)
	require.Nil(t, err)
	assert.Equal(t, int64(20), m.Ref())
	require.NotNil(t, m.Properties())
	require.Len(t, m.Properties().Properties, 1)
	assert.Equal(t, "i", m.Properties().Properties[0].Name)
	assert.NotNil(t, m.Properties().Properties[0].Inline)
}
