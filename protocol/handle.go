package protocol

import (
	"encoding/json"
	"strconv"

	"github.com/tidwall/gjson"

	e "github.com/fansqz/js-debugger/error"
)

// NoRef 没有handle的值，比如内联的原始值
const NoRef int64 = -1

// RawHandle 协议中的一个对象描述，保留原始json，只预先解析handle和type
// handle小于0表示临时值，不能被缓存
type RawHandle struct {
	Ref  int64
	Type string
	Raw  json.RawMessage
}

func (h *RawHandle) UnmarshalJSON(data []byte) error {
	r := gjson.ParseBytes(data)
	if !r.IsObject() {
		return &e.ProtocolError{Message: "handle is not an object: " + string(data)}
	}
	h.Raw = append(json.RawMessage(nil), data...)
	h.Ref = NoRef
	if v := r.Get("handle"); v.Exists() {
		h.Ref = v.Int()
	} else if v = r.Get("ref"); v.Exists() {
		h.Ref = v.Int()
	}
	h.Type = r.Get("type").String()
	return nil
}

func (h RawHandle) MarshalJSON() ([]byte, error) {
	if len(h.Raw) == 0 {
		return []byte("null"), nil
	}
	return h.Raw, nil
}

// NewRawHandle 通过任意可以序列化的值构造
func NewRawHandle(v interface{}) (*RawHandle, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	h := &RawHandle{}
	if err = h.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return h, nil
}

// HasData 除了handle以外是否还带有类型信息，只有ref的引用需要再查询
func (h *RawHandle) HasData() bool {
	return h != nil && h.Type != ""
}

// Has 原始json中是否有某个字段
func (h *RawHandle) Has(field string) bool {
	return gjson.GetBytes(h.Raw, field).Exists()
}

// Data 解析出完整的handle内容
func (h *RawHandle) Data() (*HandleData, error) {
	data := &HandleData{}
	if err := json.Unmarshal(h.Raw, data); err != nil {
		return nil, &e.ProtocolError{Message: "parse handle " + strconv.FormatInt(h.Ref, 10), Err: err}
	}
	return data, nil
}

// HandleData handle的内容，不同type使用不同的字段
type HandleData struct {
	Handle    int64           `json:"handle"`
	Type      string          `json:"type"`
	ClassName string          `json:"className,omitempty"`
	Value     json.RawMessage `json:"value,omitempty"`
	Text      string          `json:"text,omitempty"`
	// 字符串被截断时length是完整长度
	Length    *int `json:"length,omitempty"`
	FromIndex *int `json:"fromIndex,omitempty"`
	ToIndex   *int `json:"toIndex,omitempty"`

	Properties          []PropertyObject `json:"properties,omitempty"`
	InternalProperties  []PropertyObject `json:"internalProperties,omitempty"`
	ConstructorFunction *RawHandle       `json:"constructorFunction,omitempty"`
	ProtoObject         *RawHandle       `json:"protoObject,omitempty"`
	PrototypeObject     *RawHandle       `json:"prototypeObject,omitempty"`
	PrimitiveValue      *RawHandle       `json:"primitiveValue,omitempty"`

	// 函数
	Name         string     `json:"name,omitempty"`
	InferredName string     `json:"inferredName,omitempty"`
	Resolved     bool       `json:"resolved,omitempty"`
	Source       string     `json:"source,omitempty"`
	Script       *RawHandle `json:"script,omitempty"`
	ScriptID     *int64     `json:"scriptId,omitempty"`
	Position     *int       `json:"position,omitempty"`
	Line         *int       `json:"line,omitempty"`
	Column       *int       `json:"column,omitempty"`

	// 脚本
	ID *int64 `json:"id,omitempty"`
}

// PropertyObject 对象的一个属性，值可以是ref也可以是内联的handle
type PropertyObject struct {
	Name         PropertyName `json:"name"`
	Ref          *int64       `json:"ref,omitempty"`
	PropertyType *int         `json:"propertyType,omitempty"`
	Attributes   *int         `json:"attributes,omitempty"`
	Value        *RawHandle   `json:"value,omitempty"`
}

// RefID 属性值的handle，没有时返回NoRef
func (p *PropertyObject) RefID() int64 {
	if p.Ref != nil {
		return *p.Ref
	}
	if p.Value != nil {
		return p.Value.Ref
	}
	return NoRef
}

// PropertyName 属性名，协议中数组下标是数字
type PropertyName string

func (n *PropertyName) UnmarshalJSON(data []byte) error {
	r := gjson.ParseBytes(data)
	switch r.Type {
	case gjson.String:
		*n = PropertyName(r.String())
	case gjson.Number:
		*n = PropertyName(r.Raw)
	default:
		return &e.ProtocolError{Message: "invalid property name: " + string(data)}
	}
	return nil
}

// Index 属性名是否为数组下标
func (n PropertyName) Index() (int, bool) {
	if n == "" {
		return 0, false
	}
	i, err := strconv.Atoi(string(n))
	if err != nil || i < 0 || strconv.Itoa(i) != string(n) {
		return 0, false
	}
	return i, true
}
