package v8_debugger

import (
	"context"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/fansqz/js-debugger/debugger"
)

// DefaultStringifyBudget 字符串化的默认长度预算
const DefaultStringifyBudget = 80

const ellipsis = "..."

// Stringifier 把js值转成有长度限制的单行文本
// 对象和数组只展开一层
type Stringifier struct {
	budget int
}

func NewStringifier(budget int) *Stringifier {
	if budget <= len(ellipsis) {
		budget = DefaultStringifyBudget
	}
	return &Stringifier{budget: budget}
}

func (s *Stringifier) Stringify(ctx context.Context, value debugger.JsValue) string {
	if value == nil {
		return "undefined"
	}
	switch value.Type() {
	case debugger.TypeString:
		text := value.ValueString()
		if value.IsTruncated() {
			text += ellipsis
		}
		return s.truncate(text, s.budget)
	case debugger.TypeArray:
		if arr := asArray(value); arr != nil {
			if answer, ok := s.stringifyArray(ctx, arr); ok {
				return answer
			}
		}
	case debugger.TypeObject, debugger.TypeError:
		if obj := value.AsObject(); obj != nil {
			if answer, ok := s.stringifyObject(ctx, obj); ok {
				return answer
			}
		}
	}
	return s.truncate(s.nested(value), s.budget)
}

func asArray(value debugger.JsValue) debugger.JsArray {
	obj := value.AsObject()
	if obj == nil {
		return nil
	}
	return obj.AsArray()
}

func (s *Stringifier) stringifyArray(ctx context.Context, arr debugger.JsArray) (string, bool) {
	sparse, err := arr.ToSparseArray(ctx)
	if err != nil {
		return "", false
	}
	parts := make([]string, 0, sparse.Size())
	for _, v := range sparse.Values() {
		parts = append(parts, s.nested(v.(debugger.JsVariable).Value()))
	}
	return s.join("[", "]", parts), true
}

func (s *Stringifier) stringifyObject(ctx context.Context, obj debugger.JsObject) (string, bool) {
	props, err := obj.Properties(ctx)
	if err != nil {
		return "", false
	}
	parts := make([]string, 0, len(props))
	for _, p := range props {
		parts = append(parts, p.Name()+": "+s.nested(p.Value()))
	}
	return s.join("{", "}", parts), true
}

// join 放不下时停止，并用+N...标出省略的元素个数
func (s *Stringifier) join(open, close string, parts []string) string {
	var sb strings.Builder
	sb.WriteString(open)
	for i, part := range parts {
		sep := ""
		if i > 0 {
			sep = ", "
		}
		rest := "+" + strconv.Itoa(len(parts)-i) + ellipsis
		reserve := 0
		if i < len(parts)-1 {
			reserve = len(", ") + len(rest)
		}
		if sb.Len()+len(sep)+len(part)+reserve+len(close) > s.budget {
			sb.WriteString(sep)
			sb.WriteString(rest)
			break
		}
		sb.WriteString(sep)
		sb.WriteString(part)
	}
	sb.WriteString(close)
	// 预算太小时连+N...都放不下
	return s.truncate(sb.String(), s.budget)
}

// nested 嵌套的值不再展开
func (s *Stringifier) nested(value debugger.JsValue) string {
	if value == nil {
		return "undefined"
	}
	switch value.Type() {
	case debugger.TypeString:
		text := value.ValueString()
		if value.IsTruncated() {
			text += ellipsis
		}
		return strconv.Quote(s.truncate(text, s.budget/2))
	case debugger.TypeArray, debugger.TypeObject:
		if obj := value.AsObject(); obj != nil && obj.ClassName() != "" {
			return obj.ClassName()
		}
		return value.Type().String()
	case debugger.TypeFunction:
		if obj := value.AsObject(); obj != nil {
			if fn := obj.AsFunction(); fn != nil {
				return "function " + fn.FunctionName() + "()"
			}
		}
	}
	return value.ValueString()
}

func (s *Stringifier) truncate(text string, budget int) string {
	if len(text) <= budget {
		return text
	}
	if budget <= len(ellipsis) {
		return ellipsis[:budget]
	}
	cut := budget - len(ellipsis)
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + ellipsis
}
