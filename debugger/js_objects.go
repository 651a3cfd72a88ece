package debugger

import (
	"context"

	"github.com/emirpasic/gods/maps/treemap"
)

// ValueType js值的类型
type ValueType int

const (
	TypeUndefined ValueType = iota
	TypeNull
	TypeBoolean
	TypeNumber
	TypeString
	TypeObject
	TypeArray
	TypeFunction
	TypeDate
	TypeRegexp
	TypeError
)

func (t ValueType) String() string {
	switch t {
	case TypeUndefined:
		return "undefined"
	case TypeNull:
		return "null"
	case TypeBoolean:
		return "boolean"
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeObject:
		return "object"
	case TypeArray:
		return "array"
	case TypeFunction:
		return "function"
	case TypeDate:
		return "date"
	case TypeRegexp:
		return "regexp"
	case TypeError:
		return "error"
	}
	return "unknown"
}

// IsCompound 是否是对象类型，对象类型才有有效的ref
func (t ValueType) IsCompound() bool {
	return t >= TypeObject
}

// JsValue 一个js值
type JsValue interface {
	Type() ValueType
	// ValueString 值的字符串形式，字符串可能被截断
	ValueString() string
	// IsTruncated 字符串是否被截断
	IsTruncated() bool
	// ReloadHeavyValue 加载更长的字符串
	ReloadHeavyValue(ctx context.Context) error
	// AsObject 非对象类型返回nil
	AsObject() JsObject
}

// JsObject 一个js对象，属性在第一次访问时加载
type JsObject interface {
	JsValue
	ClassName() string
	// RefID 对象在vm中的handle
	RefID() int64
	Properties(ctx context.Context) ([]JsVariable, error)
	InternalProperties(ctx context.Context) ([]JsVariable, error)
	// Property 按名称获取属性，不存在时返回nil
	Property(ctx context.Context, name string) (JsVariable, error)
	// AsArray 非数组返回nil
	AsArray() JsArray
	// AsFunction 非函数返回nil
	AsFunction() JsFunction
}

// JsArray js数组，可能是稀疏的
type JsArray interface {
	JsObject
	// Length 最大下标加一
	Length(ctx context.Context) (int, error)
	// Component 获取某个下标的元素，空洞返回nil
	Component(ctx context.Context, index int) (JsVariable, error)
	// ToSparseArray 下标到元素的有序映射，key是int，value是JsVariable
	ToSparseArray(ctx context.Context) (*treemap.Map, error)
}

// JsFunction js函数
type JsFunction interface {
	JsObject
	// Script 函数所在的脚本，未知时返回nil
	Script() Script
	// SourcePosition 函数在脚本中的位置，未知时返回-1
	SourcePosition() int
	FunctionName() string
}

// JsVariable 变量或者属性
type JsVariable interface {
	Name() string
	// Value 变量不可读时返回nil
	Value() JsValue
	IsReadable() bool
	// FullyQualifiedName 可以直接用来执行的表达式，比如a.b[1]
	FullyQualifiedName() string
}

// JsScope 作用域
type JsScope interface {
	Type() ScopeType
	Variables(ctx context.Context) ([]JsVariable, error)
	// WithArgument with作用域对应的对象，其他作用域返回nil
	WithArgument(ctx context.Context) (JsValue, error)
}

// ScopeType 作用域类型
type ScopeType int

const (
	ScopeGlobal ScopeType = iota
	ScopeLocal
	ScopeWith
	ScopeClosure
	ScopeCatch
	ScopeUnknown
)

func (s ScopeType) String() string {
	switch s {
	case ScopeGlobal:
		return "global"
	case ScopeLocal:
		return "local"
	case ScopeWith:
		return "with"
	case ScopeClosure:
		return "closure"
	case ScopeCatch:
		return "catch"
	}
	return "unknown"
}
