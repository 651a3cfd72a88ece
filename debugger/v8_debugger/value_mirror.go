package v8_debugger

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/fansqz/js-debugger/constants"
	"github.com/fansqz/js-debugger/debugger"
	e "github.com/fansqz/js-debugger/error"
	"github.com/fansqz/js-debugger/protocol"
)

// MinReloadLength 重新加载字符串时的最小长度
const MinReloadLength = 64 * 1024

// CacheState 缓存代数，增加后所有旧代的属性都需要重新加载
type CacheState struct {
	generation atomic.Uint64
}

func (c *CacheState) Current() uint64 {
	return c.generation.Load()
}

func (c *CacheState) Bump() uint64 {
	return c.generation.Add(1)
}

// PropertyReference 属性名和值的引用，Inline不为空时已经带有值的描述
type PropertyReference struct {
	Name   string
	Ref    int64
	Inline *protocol.RawHandle
}

func newPropertyReference(p *protocol.PropertyObject) PropertyReference {
	answer := PropertyReference{Name: string(p.Name), Ref: p.RefID()}
	if p.Value.HasData() {
		answer.Inline = p.Value
	}
	return answer
}

func newPropertyReferences(props []protocol.PropertyObject) []PropertyReference {
	answer := make([]PropertyReference, 0, len(props))
	for i := range props {
		answer = append(answer, newPropertyReference(&props[i]))
	}
	return answer
}

// SubpropertiesMirror 对象的属性列表，只在加载时的代有效
type SubpropertiesMirror struct {
	Properties         []PropertyReference
	InternalProperties []PropertyReference
	Generation         uint64
}

// FunctionInfo 函数的额外描述
type FunctionInfo struct {
	Name         string
	InferredName string
	ScriptID     int64
	Position     int
	Line         int
	Column       int
}

// ValueMirror 一个远程值的本地镜像，创建后不再修改
// 只有对象类型的ref有效，原始值的ref为-1
type ValueMirror struct {
	ref        int64
	typ        debugger.ValueType
	className  string
	value      *LoadableString
	properties *SubpropertiesMirror
	function   *FunctionInfo
}

func (m *ValueMirror) Ref() int64 {
	return m.ref
}

func (m *ValueMirror) Type() debugger.ValueType {
	return m.typ
}

func (m *ValueMirror) ClassName() string {
	return m.className
}

func (m *ValueMirror) Value() *LoadableString {
	return m.value
}

// Properties 没有加载过属性时返回nil
func (m *ValueMirror) Properties() *SubpropertiesMirror {
	return m.properties
}

func (m *ValueMirror) Function() *FunctionInfo {
	return m.function
}

func (m *ValueMirror) withProperties(props *SubpropertiesMirror) *ValueMirror {
	answer := *m
	answer.properties = props
	return &answer
}

func newScalarMirror(typ debugger.ValueType, text string) *ValueMirror {
	return &ValueMirror{
		ref:   protocol.NoRef,
		typ:   typ,
		value: newLoadableString(protocol.NoRef, text, len(text), len(text), nil),
	}
}

// valueType 根据协议中的type和className得到值类型
func valueType(typ, className string) debugger.ValueType {
	switch typ {
	case constants.HandleUndefined:
		return debugger.TypeUndefined
	case constants.HandleNull:
		return debugger.TypeNull
	case constants.HandleBoolean:
		return debugger.TypeBoolean
	case constants.HandleNumber:
		return debugger.TypeNumber
	case constants.HandleString:
		return debugger.TypeString
	case constants.HandleFunction:
		return debugger.TypeFunction
	case constants.HandleRegexp:
		return debugger.TypeRegexp
	case constants.HandleError:
		return debugger.TypeError
	}
	switch className {
	case constants.ClassArray:
		return debugger.TypeArray
	case constants.ClassDate:
		return debugger.TypeDate
	case constants.ClassRegExp:
		return debugger.TypeRegexp
	case constants.ClassError:
		return debugger.TypeError
	case constants.ClassFunction:
		return debugger.TypeFunction
	}
	return debugger.TypeObject
}

// newValueMirror 通过handle创建镜像，带有properties字段时属性标记为generation代
func newValueMirror(h *protocol.RawHandle, reloader stringReloader, generation uint64) (*ValueMirror, error) {
	data, err := h.Data()
	if err != nil {
		return nil, err
	}
	if !constants.IsHandleType(data.Type) {
		return nil, &e.ProtocolError{Message: fmt.Sprintf("unknown type %q of handle %d", data.Type, h.Ref)}
	}
	typ := valueType(data.Type, data.ClassName)
	m := &ValueMirror{
		ref:       protocol.NoRef,
		typ:       typ,
		className: data.ClassName,
	}
	if typ.IsCompound() {
		m.ref = h.Ref
		if h.Has("properties") || h.Has("protoObject") {
			m.properties = &SubpropertiesMirror{
				Properties:         newPropertyReferences(data.Properties),
				InternalProperties: internalProperties(data),
				Generation:         generation,
			}
		}
	}
	if typ == debugger.TypeFunction {
		m.function = functionInfo(data)
	}
	if typ == debugger.TypeString {
		text := jsonString(data.Value)
		loaded, actual := len(text), len(text)
		if data.ToIndex != nil && data.FromIndex != nil {
			loaded = *data.ToIndex - *data.FromIndex
		}
		if data.Length != nil {
			actual = *data.Length
		}
		m.value = newLoadableString(h.Ref, text, loaded, actual, reloader)
	} else {
		text := displayText(typ, data)
		m.value = newLoadableString(protocol.NoRef, text, len(text), len(text), nil)
	}
	return m, nil
}

func internalProperties(data *protocol.HandleData) []PropertyReference {
	var answer []PropertyReference
	add := func(name string, h *protocol.RawHandle) {
		if h == nil {
			return
		}
		ref := PropertyReference{Name: name, Ref: h.Ref}
		if h.HasData() {
			ref.Inline = h
		}
		answer = append(answer, ref)
	}
	add("__proto__", data.ProtoObject)
	add("constructor", data.ConstructorFunction)
	add("prototype", data.PrototypeObject)
	add("[[PrimitiveValue]]", data.PrimitiveValue)
	answer = append(answer, newPropertyReferences(data.InternalProperties)...)
	return answer
}

func functionInfo(data *protocol.HandleData) *FunctionInfo {
	info := &FunctionInfo{
		Name:         data.Name,
		InferredName: data.InferredName,
		ScriptID:     -1,
		Position:     -1,
		Line:         -1,
		Column:       -1,
	}
	if data.ScriptID != nil {
		info.ScriptID = *data.ScriptID
	}
	if data.Position != nil {
		info.Position = *data.Position
	}
	if data.Line != nil {
		info.Line = *data.Line
	}
	if data.Column != nil {
		info.Column = *data.Column
	}
	return info
}

func displayText(typ debugger.ValueType, data *protocol.HandleData) string {
	switch typ {
	case debugger.TypeUndefined:
		return "undefined"
	case debugger.TypeNull:
		return "null"
	case debugger.TypeBoolean, debugger.TypeNumber:
		if len(data.Value) > 0 {
			return jsonString(data.Value)
		}
		return data.Text
	case debugger.TypeDate:
		if len(data.Value) > 0 {
			return jsonString(data.Value)
		}
	case debugger.TypeFunction:
		if data.Text == "" {
			name := data.Name
			if name == "" {
				name = data.InferredName
			}
			return "function " + name + "()"
		}
	}
	if data.Text != "" {
		return data.Text
	}
	if data.ClassName != "" {
		return "#<" + data.ClassName + ">"
	}
	return data.Type
}

// jsonString 字符串去掉引号，其他值原样返回
func jsonString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

type stringState struct {
	text   string
	loaded int
	actual int
}

// stringReloader 用更大的maxStringLength重新查询字符串
type stringReloader interface {
	reloadString(ctx context.Context, ref int64, maxLength int) (text string, loaded, actual int, err error)
}

// LoadableString 可能被截断的字符串，重新加载时只会变长
type LoadableString struct {
	ref      int64
	state    atomic.Pointer[stringState]
	reloader stringReloader
}

func newLoadableString(ref int64, text string, loaded, actual int, reloader stringReloader) *LoadableString {
	s := &LoadableString{ref: ref, reloader: reloader}
	if actual < loaded {
		actual = loaded
	}
	s.state.Store(&stringState{text: text, loaded: loaded, actual: actual})
	return s
}

func (s *LoadableString) String() string {
	return s.state.Load().text
}

func (s *LoadableString) LoadedLength() int {
	return s.state.Load().loaded
}

func (s *LoadableString) ActualLength() int {
	return s.state.Load().actual
}

func (s *LoadableString) NeedsReload() bool {
	st := s.state.Load()
	return st.loaded < st.actual
}

// Reload 请求max(10倍当前长度, 64KB)的字符串，结果比当前短时丢弃
func (s *LoadableString) Reload(ctx context.Context) error {
	if !s.NeedsReload() {
		return nil
	}
	if s.ref < 0 || s.reloader == nil {
		return e.ErrNotReloadable
	}
	current := s.state.Load()
	maxLength := current.loaded * 10
	if maxLength < MinReloadLength {
		maxLength = MinReloadLength
	}
	text, loaded, actual, err := s.reloader.reloadString(ctx, s.ref, maxLength)
	if err != nil {
		return err
	}
	next := &stringState{text: text, loaded: loaded, actual: actual}
	for {
		current = s.state.Load()
		if next.loaded <= current.loaded {
			return nil
		}
		if s.state.CompareAndSwap(current, next) {
			return nil
		}
	}
}

func refKey(ref int64) string {
	return strconv.FormatInt(ref, 10)
}
