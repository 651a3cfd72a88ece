package v8_debugger

import (
	"context"
	"regexp"
	"strconv"
	"sync"

	"github.com/emirpasic/gods/maps/treemap"

	"github.com/fansqz/js-debugger/debugger"
	e "github.com/fansqz/js-debugger/error"
	"github.com/fansqz/js-debugger/protocol"
)

// valueContext 值所属的上下文，上下文失效后不能再加载
type valueContext struct {
	loader  *ValueLoader
	sender  commandSender
	scripts *ScriptManager
	valid   func() bool
}

func (vc *valueContext) isValid() bool {
	return vc.valid == nil || vc.valid()
}

// newJsValue 根据镜像类型创建对应的值
func newJsValue(vc *valueContext, m *ValueMirror, qualifiedName string) debugger.JsValue {
	if !m.Type().IsCompound() {
		return &jsValue{vc: vc, mirror: m}
	}
	obj := &jsObject{jsValue: jsValue{vc: vc, mirror: m}, qualifiedName: qualifiedName}
	switch m.Type() {
	case debugger.TypeArray:
		arr := &jsArray{jsObject: obj}
		obj.self = arr
		return arr
	case debugger.TypeFunction:
		fn := &jsFunction{jsObject: obj}
		obj.self = fn
		return fn
	}
	obj.self = obj
	return obj
}

type jsValue struct {
	vc     *valueContext
	mirror *ValueMirror
}

func (v *jsValue) Type() debugger.ValueType {
	return v.mirror.Type()
}

func (v *jsValue) ValueString() string {
	return v.mirror.Value().String()
}

func (v *jsValue) IsTruncated() bool {
	return v.mirror.Value().NeedsReload()
}

func (v *jsValue) ReloadHeavyValue(ctx context.Context) error {
	if !v.vc.isValid() {
		return e.ErrContextDismissed
	}
	return v.mirror.Value().Reload(ctx)
}

func (v *jsValue) AsObject() debugger.JsObject {
	return nil
}

// Mirror 底层镜像
func (v *jsValue) Mirror() *ValueMirror {
	return v.mirror
}

type propertyCache struct {
	generation uint64
	properties []debugger.JsVariable
	internal   []debugger.JsVariable
	byName     map[string]debugger.JsVariable
}

type jsObject struct {
	jsValue
	// self 最外层的具体类型，保证AsObject返回数组或函数本身
	self          debugger.JsObject
	qualifiedName string

	lock  sync.Mutex
	cache *propertyCache
}

func (o *jsObject) AsObject() debugger.JsObject {
	return o.self
}

func (o *jsObject) AsArray() debugger.JsArray {
	return nil
}

func (o *jsObject) AsFunction() debugger.JsFunction {
	return nil
}

func (o *jsObject) ClassName() string {
	return o.mirror.ClassName()
}

func (o *jsObject) RefID() int64 {
	return o.mirror.Ref()
}

func (o *jsObject) Properties(ctx context.Context) ([]debugger.JsVariable, error) {
	c, err := o.loadProperties(ctx)
	if err != nil {
		return nil, err
	}
	return c.properties, nil
}

func (o *jsObject) InternalProperties(ctx context.Context) ([]debugger.JsVariable, error) {
	c, err := o.loadProperties(ctx)
	if err != nil {
		return nil, err
	}
	return c.internal, nil
}

func (o *jsObject) Property(ctx context.Context, name string) (debugger.JsVariable, error) {
	c, err := o.loadProperties(ctx)
	if err != nil {
		return nil, err
	}
	if v, ok := c.byName[name]; ok {
		return v, nil
	}
	return nil, nil
}

// loadProperties 属性按缓存代缓存，代变化后重新加载
func (o *jsObject) loadProperties(ctx context.Context) (*propertyCache, error) {
	if !o.vc.isValid() {
		return nil, e.ErrContextDismissed
	}
	generation := o.vc.loader.CacheState().Current()
	o.lock.Lock()
	c := o.cache
	o.lock.Unlock()
	if c != nil && c.generation == generation {
		return c, nil
	}

	props, err := o.vc.loader.GetOrLoadSubproperties(ctx, o.mirror.Ref())
	if err != nil {
		return nil, err
	}
	properties, err := loadVariables(ctx, o.vc, props.Properties, o.qualifiedName)
	if err != nil {
		return nil, err
	}
	internal, err := loadVariables(ctx, o.vc, props.InternalProperties, o.qualifiedName)
	if err != nil {
		return nil, err
	}
	c = &propertyCache{
		generation: props.Generation,
		properties: properties,
		internal:   internal,
		byName:     make(map[string]debugger.JsVariable, len(properties)),
	}
	for _, v := range properties {
		c.byName[v.Name()] = v
	}
	o.lock.Lock()
	o.cache = c
	o.lock.Unlock()
	return c, nil
}

type jsArray struct {
	*jsObject

	arrayLock  sync.Mutex
	sparse     *treemap.Map
	length     int
	generation uint64
}

func (a *jsArray) AsArray() debugger.JsArray {
	return a
}

func (a *jsArray) Length(ctx context.Context) (int, error) {
	if _, err := a.ToSparseArray(ctx); err != nil {
		return 0, err
	}
	a.arrayLock.Lock()
	defer a.arrayLock.Unlock()
	return a.length, nil
}

func (a *jsArray) Component(ctx context.Context, index int) (debugger.JsVariable, error) {
	sparse, err := a.ToSparseArray(ctx)
	if err != nil {
		return nil, err
	}
	if v, ok := sparse.Get(index); ok {
		return v.(debugger.JsVariable), nil
	}
	return nil, nil
}

// ToSparseArray 只保留名称是数组下标的属性，按下标排序
func (a *jsArray) ToSparseArray(ctx context.Context) (*treemap.Map, error) {
	c, err := a.loadProperties(ctx)
	if err != nil {
		return nil, err
	}
	a.arrayLock.Lock()
	defer a.arrayLock.Unlock()
	if a.sparse != nil && a.generation == c.generation {
		return a.sparse, nil
	}
	sparse := treemap.NewWithIntComparator()
	for _, v := range c.properties {
		if index, ok := protocol.PropertyName(v.Name()).Index(); ok {
			sparse.Put(index, v)
		}
	}
	a.length = 0
	if last, _ := sparse.Max(); last != nil {
		a.length = last.(int) + 1
	}
	a.sparse, a.generation = sparse, c.generation
	return sparse, nil
}

type jsFunction struct {
	*jsObject
}

func (f *jsFunction) AsFunction() debugger.JsFunction {
	return f
}

func (f *jsFunction) Script() debugger.Script {
	info := f.mirror.Function()
	if info == nil || info.ScriptID < 0 || f.vc.scripts == nil {
		return nil
	}
	return f.vc.scripts.Get(info.ScriptID)
}

func (f *jsFunction) SourcePosition() int {
	if info := f.mirror.Function(); info != nil {
		return info.Position
	}
	return -1
}

func (f *jsFunction) FunctionName() string {
	info := f.mirror.Function()
	if info == nil {
		return ""
	}
	if info.Name != "" {
		return info.Name
	}
	return info.InferredName
}

type jsVariable struct {
	name          string
	value         debugger.JsValue
	qualifiedName string
}

func newJsVariable(name string, value debugger.JsValue, qualifiedName string) *jsVariable {
	return &jsVariable{name: name, value: value, qualifiedName: qualifiedName}
}

func (v *jsVariable) Name() string {
	return v.name
}

func (v *jsVariable) Value() debugger.JsValue {
	return v.value
}

func (v *jsVariable) IsReadable() bool {
	return v.value != nil
}

func (v *jsVariable) FullyQualifiedName() string {
	return v.qualifiedName
}

// loadVariables 一次批量加载所有属性的值
func loadVariables(ctx context.Context, vc *valueContext, refs []PropertyReference, parent string) ([]debugger.JsVariable, error) {
	if len(refs) == 0 {
		return []debugger.JsVariable{}, nil
	}
	mirrors, err := vc.loader.GetOrLoadValueFromRefs(ctx, refs)
	if err != nil {
		return nil, err
	}
	answer := make([]debugger.JsVariable, 0, len(refs))
	for i, ref := range refs {
		name := qualifiedName(parent, ref.Name)
		answer = append(answer, newJsVariable(ref.Name, newJsValue(vc, mirrors[i], name), name))
	}
	return answer, nil
}

var identifierRegexp = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// qualifiedName 拼接出可以执行的表达式
func qualifiedName(parent, name string) string {
	if parent == "" {
		return name
	}
	if _, ok := protocol.PropertyName(name).Index(); ok {
		return parent + "[" + name + "]"
	}
	if identifierRegexp.MatchString(name) {
		return parent + "." + name
	}
	return parent + "[" + strconv.Quote(name) + "]"
}
