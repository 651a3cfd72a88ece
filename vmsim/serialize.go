package vmsim

import (
	"math"
	"strconv"

	"github.com/dop251/goja"

	"github.com/fansqz/js-debugger/constants"
)

// V8 默认的字符串截断长度
const defaultMaxStringLength = 80

// serialize 生成对象的完整描述，withInline为true时属性值直接内联
func (vm *VM) serialize(v goja.Value, maxStringLength int, withInline bool) map[string]interface{} {
	return vm.serializeHandle(vm.handleFor(v), v, maxStringLength, withInline)
}

func (vm *VM) serializeHandle(h int64, v goja.Value, maxStringLength int, withInline bool) map[string]interface{} {
	answer := map[string]interface{}{"handle": h}
	vm.describe(answer, v, maxStringLength)
	obj, ok := v.(*goja.Object)
	if !ok {
		return answer
	}
	var properties []map[string]interface{}
	isArray := obj.ClassName() == constants.ClassArray
	for _, key := range obj.Keys() {
		var name interface{} = key
		if isArray {
			if i, err := strconv.Atoi(key); err == nil {
				name = i
			}
		}
		properties = append(properties, vm.property(name, obj.Get(key), maxStringLength, withInline))
	}
	if isArray {
		properties = append(properties, vm.property("length", obj.Get("length"), maxStringLength, withInline))
	}
	if properties == nil {
		properties = []map[string]interface{}{}
	}
	answer["properties"] = properties
	if proto := obj.Prototype(); proto != nil {
		answer["protoObject"] = map[string]interface{}{"ref": vm.handleFor(proto)}
	}
	if ctor, ok := obj.Get("constructor").(*goja.Object); ok {
		answer["constructorFunction"] = map[string]interface{}{"ref": vm.handleFor(ctor)}
	}
	return answer
}

func (vm *VM) property(name interface{}, v goja.Value, maxStringLength int, withInline bool) map[string]interface{} {
	p := map[string]interface{}{
		"name":         name,
		"propertyType": 0,
		"attributes":   0,
	}
	if withInline {
		p["value"] = vm.inline(v, maxStringLength)
	} else {
		p["ref"] = vm.handleFor(v)
	}
	return p
}

// inline 内联的值，只带有类型和简单值，不带属性
func (vm *VM) inline(v goja.Value, maxStringLength int) map[string]interface{} {
	answer := map[string]interface{}{"ref": vm.handleFor(v)}
	vm.describe(answer, v, maxStringLength)
	return answer
}

func (vm *VM) describe(m map[string]interface{}, v goja.Value, maxStringLength int) {
	if v == nil || goja.IsUndefined(v) {
		m["type"] = constants.HandleUndefined
		m["text"] = "undefined"
		return
	}
	if goja.IsNull(v) {
		m["type"] = constants.HandleNull
		m["text"] = "null"
		return
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		describePrimitive(m, v, maxStringLength)
		return
	}
	className := obj.ClassName()
	m["className"] = className
	m["text"] = v.String()
	switch className {
	case constants.ClassFunction:
		m["type"] = constants.HandleFunction
		m["name"] = obj.Get("name").String()
		m["inferredName"] = ""
		m["resolved"] = true
	case constants.ClassRegExp:
		m["type"] = constants.HandleRegexp
	case constants.ClassError:
		m["type"] = constants.HandleError
	case constants.ClassArray:
		m["type"] = constants.HandleObject
		m["text"] = "#<Array>"
	default:
		m["type"] = constants.HandleObject
		if className != constants.ClassDate {
			m["text"] = "#<" + className + ">"
		}
	}
}

func describePrimitive(m map[string]interface{}, v goja.Value, maxStringLength int) {
	m["text"] = v.String()
	switch x := v.Export().(type) {
	case bool:
		m["type"] = constants.HandleBoolean
		m["value"] = x
	case string:
		m["type"] = constants.HandleString
		runes := []rune(x)
		m["length"] = len(runes)
		if maxStringLength > 0 && len(runes) > maxStringLength {
			x = string(runes[:maxStringLength])
			m["fromIndex"] = 0
			m["toIndex"] = maxStringLength
		}
		m["value"] = x
		m["text"] = x
	case int64:
		m["type"] = constants.HandleNumber
		m["value"] = x
	case float64:
		m["type"] = constants.HandleNumber
		// json不能表示NaN和Infinity
		if math.IsNaN(x) || math.IsInf(x, 0) {
			m["value"] = v.String()
		} else {
			m["value"] = x
		}
	default:
		m["type"] = constants.HandleNumber
		m["value"] = v.String()
	}
}
