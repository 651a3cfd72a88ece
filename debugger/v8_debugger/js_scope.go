package v8_debugger

import (
	"context"

	"github.com/fansqz/js-debugger/constants"
	"github.com/fansqz/js-debugger/debugger"
	e "github.com/fansqz/js-debugger/error"
)

func convertScopeType(typ constants.ScopeType) debugger.ScopeType {
	switch typ {
	case constants.ScopeGlobal:
		return debugger.ScopeGlobal
	case constants.ScopeLocal:
		return debugger.ScopeLocal
	case constants.ScopeWith:
		return debugger.ScopeWith
	case constants.ScopeClosure:
		return debugger.ScopeClosure
	case constants.ScopeCatch:
		return debugger.ScopeCatch
	}
	return debugger.ScopeUnknown
}

// jsScope 栈帧的一个作用域，变量在第一次访问时通过scope命令加载
type jsScope struct {
	vc         *valueContext
	typ        debugger.ScopeType
	index      int
	frameIndex int
}

func newJsScope(vc *valueContext, typ constants.ScopeType, index, frameIndex int) *jsScope {
	return &jsScope{vc: vc, typ: convertScopeType(typ), index: index, frameIndex: frameIndex}
}

func (s *jsScope) Type() debugger.ScopeType {
	return s.typ
}

func (s *jsScope) Variables(ctx context.Context) ([]debugger.JsVariable, error) {
	if !s.vc.isValid() {
		return nil, e.ErrContextDismissed
	}
	m, err := s.vc.loader.LoadScopeFields(ctx, s.index, s.frameIndex)
	if err != nil {
		return nil, err
	}
	// with作用域的变量就是with对象的属性
	if s.typ == debugger.ScopeWith {
		obj := newJsValue(s.vc, m, "").AsObject()
		if obj == nil {
			return []debugger.JsVariable{}, nil
		}
		return obj.Properties(ctx)
	}
	props := m.Properties()
	if props == nil {
		if props, err = s.vc.loader.GetOrLoadSubproperties(ctx, m.Ref()); err != nil {
			return nil, err
		}
	}
	return loadVariables(ctx, s.vc, props.Properties, "")
}

func (s *jsScope) WithArgument(ctx context.Context) (debugger.JsValue, error) {
	if s.typ != debugger.ScopeWith {
		return nil, nil
	}
	if !s.vc.isValid() {
		return nil, e.ErrContextDismissed
	}
	m, err := s.vc.loader.LoadScopeFields(ctx, s.index, s.frameIndex)
	if err != nil {
		return nil, err
	}
	return newJsValue(s.vc, m, ""), nil
}
