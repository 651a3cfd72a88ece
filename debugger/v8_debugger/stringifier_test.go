package v8_debugger

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fansqz/js-debugger/debugger"
)

// installValue 用内联数据构造值，不需要连接vm
func installValue(t *testing.T, loader *ValueLoader, data map[string]interface{}) debugger.JsValue {
	h := rawHandle(t, data)
	loader.Handles().Put(h)
	m, err := loader.Install(h)
	require.Nil(t, err)
	return newJsValue(&valueContext{loader: loader}, m, "v")
}

func number(n int) map[string]interface{} {
	return map[string]interface{}{"type": "number", "value": n, "text": ""}
}

func TestStringifier_String(t *testing.T) {
	loader := NewValueLoader(&recordingSender{}, NewHandleManager(), 0, time.Second)
	s := NewStringifier(0)
	ctx := context.Background()

	assert.Equal(t, "hello", s.Stringify(ctx, installValue(t, loader, map[string]interface{}{"handle": -1, "type": "string", "value": "hello"})))

	long := installValue(t, loader, map[string]interface{}{"handle": -1, "type": "string", "value": strings.Repeat("a", 100)})
	assert.Equal(t, strings.Repeat("a", DefaultStringifyBudget-3)+"...", s.Stringify(ctx, long))

	truncated := installValue(t, loader, map[string]interface{}{
		"handle": 5, "type": "string", "value": "abc", "fromIndex": 0, "toIndex": 3, "length": 10,
	})
	assert.True(t, truncated.IsTruncated())
	assert.Equal(t, "abc...", s.Stringify(ctx, truncated))

	assert.Equal(t, "undefined", s.Stringify(ctx, nil))
	assert.Equal(t, "true", s.Stringify(ctx, installValue(t, loader, map[string]interface{}{"handle": -1, "type": "boolean", "value": true})))
}

func TestStringifier_Array(t *testing.T) {
	loader := NewValueLoader(&recordingSender{}, NewHandleManager(), 0, time.Second)
	ctx := context.Background()

	arr := installValue(t, loader, map[string]interface{}{
		"handle": 1, "type": "object", "className": "Array",
		"properties": []interface{}{
			map[string]interface{}{"name": 0, "value": number(1)},
			map[string]interface{}{"name": 1, "value": map[string]interface{}{"type": "string", "value": "x"}},
			map[string]interface{}{"name": "length", "value": number(2)},
		},
	})
	assert.Equal(t, debugger.TypeArray, arr.Type())
	assert.Equal(t, `[1, "x"]`, NewStringifier(0).Stringify(ctx, arr))

	props := make([]interface{}, 0, 30)
	for i := 0; i < 30; i++ {
		props = append(props, map[string]interface{}{"name": i, "value": number(10 + i)})
	}
	long := installValue(t, loader, map[string]interface{}{
		"handle": 2, "type": "object", "className": "Array", "properties": props,
	})
	assert.Equal(t, "[10, 11, 12, +27...]", NewStringifier(20).Stringify(ctx, long))

	tiny := NewStringifier(5).Stringify(ctx, long)
	assert.LessOrEqual(t, len(tiny), 5)
	assert.Equal(t, "[+...", tiny)
}

func TestStringifier_Object(t *testing.T) {
	loader := NewValueLoader(&recordingSender{}, NewHandleManager(), 0, time.Second)
	ctx := context.Background()

	obj := installValue(t, loader, map[string]interface{}{
		"handle": 2, "type": "object", "className": "Object",
		"properties": []interface{}{
			map[string]interface{}{"name": "a", "value": number(1)},
			map[string]interface{}{"name": "o", "value": map[string]interface{}{"ref": 3, "type": "object", "className": "Point"}},
			map[string]interface{}{"name": "f", "value": map[string]interface{}{"ref": 4, "type": "function", "className": "Function", "name": "foo"}},
			map[string]interface{}{"name": "s", "value": map[string]interface{}{"type": "string", "value": "hi"}},
		},
	})
	assert.Equal(t, `{a: 1, o: Point, f: function foo(), s: "hi"}`, NewStringifier(0).Stringify(ctx, obj))
}

func TestSparseArray(t *testing.T) {
	loader := NewValueLoader(&recordingSender{}, NewHandleManager(), 0, time.Second)
	ctx := context.Background()

	v := installValue(t, loader, map[string]interface{}{
		"handle": 1, "type": "object", "className": "Array",
		"properties": []interface{}{
			map[string]interface{}{"name": 0, "value": number(1)},
			map[string]interface{}{"name": 7, "value": number(8)},
			map[string]interface{}{"name": "07", "value": number(0)},
			map[string]interface{}{"name": "-1", "value": number(0)},
			map[string]interface{}{"name": "length", "value": number(8)},
		},
	})
	arr := v.AsObject().AsArray()
	require.NotNil(t, arr)
	assert.Same(t, arr, v.AsObject())

	length, err := arr.Length(ctx)
	assert.Nil(t, err)
	assert.Equal(t, 8, length)
	sparse, err := arr.ToSparseArray(ctx)
	assert.Nil(t, err)
	assert.Equal(t, []interface{}{0, 7}, sparse.Keys())

	c, err := arr.Component(ctx, 7)
	assert.Nil(t, err)
	assert.Equal(t, "8", c.Value().ValueString())
	assert.Equal(t, "v[7]", c.FullyQualifiedName())
	c, err = arr.Component(ctx, 3)
	assert.Nil(t, err)
	assert.Nil(t, c)

	empty := installValue(t, loader, map[string]interface{}{
		"handle": 9, "type": "object", "className": "Array", "properties": []interface{}{},
	})
	length, err = empty.AsObject().AsArray().Length(ctx)
	assert.Nil(t, err)
	assert.Equal(t, 0, length)
}

func TestQualifiedName(t *testing.T) {
	assert.Equal(t, "a", qualifiedName("", "a"))
	assert.Equal(t, "a.b", qualifiedName("a", "b"))
	assert.Equal(t, "a[3]", qualifiedName("a", "3"))
	assert.Equal(t, `a["x-y"]`, qualifiedName("a", "x-y"))
}
