package v8_debugger

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fansqz/js-debugger/constants"
	"github.com/fansqz/js-debugger/debugger"
	e "github.com/fansqz/js-debugger/error"
	"github.com/fansqz/js-debugger/protocol"
	"github.com/fansqz/js-debugger/utils"
)

// DefaultMaxStringLength lookup时字符串的默认最大长度
const DefaultMaxStringLength = 80

// mirrorSlot 一个ref对应的镜像和正在进行的属性加载
type mirrorSlot struct {
	mirror  atomic.Pointer[ValueMirror]
	loading atomic.Pointer[propertiesFuture]
}

// propertiesFuture 同一代同一个ref只有一个加载，其他调用方等待同一个结果
type propertiesFuture struct {
	generation uint64
	done       chan struct{}
	result     *SubpropertiesMirror
	err        error
}

func newPropertiesFuture(generation uint64) *propertiesFuture {
	return &propertiesFuture{generation: generation, done: make(chan struct{})}
}

func (f *propertiesFuture) complete(result *SubpropertiesMirror, err error) {
	f.result, f.err = result, err
	close(f.done)
}

func (f *propertiesFuture) wait(ctx context.Context, timeout time.Duration) (*SubpropertiesMirror, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-time.After(timeout):
		return nil, e.ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ValueLoader 远程值的加载器
// 按ref维护镜像表，保证属性加载的去重和批量查询
type ValueLoader struct {
	sender          commandSender
	handles         *HandleManager
	cacheState      *CacheState
	slots           sync.Map
	maxStringLength int
	syncTimeout     time.Duration
}

func NewValueLoader(sender commandSender, handles *HandleManager, maxStringLength int, syncTimeout time.Duration) *ValueLoader {
	if maxStringLength <= 0 {
		maxStringLength = DefaultMaxStringLength
	}
	if syncTimeout <= 0 {
		syncTimeout = utils.DefaultSyncTimeout
	}
	return &ValueLoader{
		sender:          sender,
		handles:         handles,
		cacheState:      &CacheState{},
		maxStringLength: maxStringLength,
		syncTimeout:     syncTimeout,
	}
}

func (l *ValueLoader) CacheState() *CacheState {
	return l.cacheState
}

func (l *ValueLoader) Handles() *HandleManager {
	return l.handles
}

func (l *ValueLoader) slot(ref int64) *mirrorSlot {
	if v, ok := l.slots.Load(ref); ok {
		return v.(*mirrorSlot)
	}
	v, _ := l.slots.LoadOrStore(ref, &mirrorSlot{})
	return v.(*mirrorSlot)
}

// CachedMirror 已经存在的镜像，没有时返回nil
func (l *ValueLoader) CachedMirror(ref int64) *ValueMirror {
	if v, ok := l.slots.Load(ref); ok {
		return v.(*mirrorSlot).mirror.Load()
	}
	return nil
}

// Install 把handle放入镜像表
func (l *ValueLoader) Install(h *protocol.RawHandle) (*ValueMirror, error) {
	return l.installAt(h, l.cacheState.Current())
}

// installAt 新镜像没有属性时保留旧镜像的属性
func (l *ValueLoader) installAt(h *protocol.RawHandle, generation uint64) (*ValueMirror, error) {
	m, err := newValueMirror(h, l, generation)
	if err != nil {
		return nil, err
	}
	if m.ref < 0 {
		return m, nil
	}
	slot := l.slot(m.ref)
	for {
		old := slot.mirror.Load()
		next := m
		if old != nil && m.properties == nil && old.properties != nil {
			next = m.withProperties(old.properties)
		}
		if slot.mirror.CompareAndSwap(old, next) {
			return next, nil
		}
	}
}

// GetOrLoadSubproperties 获取对象的属性列表
// 当前代已经加载过时直接返回，否则同一个ref同时只有一个lookup
func (l *ValueLoader) GetOrLoadSubproperties(ctx context.Context, ref int64) (*SubpropertiesMirror, error) {
	if ref < 0 {
		return &SubpropertiesMirror{Generation: l.cacheState.Current()}, nil
	}
	slot := l.slot(ref)
	for {
		generation := l.cacheState.Current()
		if m := slot.mirror.Load(); m != nil && m.properties != nil && m.properties.Generation == generation {
			return m.properties, nil
		}
		f := slot.loading.Load()
		if f != nil && f.generation == generation {
			return f.wait(ctx, l.syncTimeout)
		}
		next := newPropertiesFuture(generation)
		if !slot.loading.CompareAndSwap(f, next) {
			continue
		}
		l.loadSubproperties(ref, slot, next)
		return next.wait(ctx, l.syncTimeout)
	}
}

func (l *ValueLoader) loadSubproperties(ref int64, slot *mirrorSlot, f *propertiesFuture) {
	req := protocol.NewRequest(constants.Lookup, &protocol.LookupArguments{
		Handles:         []int64{ref},
		MaxStringLength: l.maxStringLength,
	})
	l.sender.Send(req, false, func(resp *protocol.Response, err error) {
		var props *SubpropertiesMirror
		if err == nil {
			props, err = l.installLookupResult(resp, ref, f.generation)
		}
		if err != nil {
			err = &e.ValueLoadError{Refs: []int64{ref}, Err: err}
			slot.loading.CompareAndSwap(f, nil)
		}
		f.complete(props, err)
	}, nil)
}

func (l *ValueLoader) installLookupResult(resp *protocol.Response, ref int64, generation uint64) (*SubpropertiesMirror, error) {
	handles, err := lookupBody(resp)
	if err != nil {
		return nil, err
	}
	h, ok := handles[refKey(ref)]
	if !ok || h == nil {
		return nil, fmt.Errorf("handle %d not found in lookup response", ref)
	}
	l.handles.Put(h)
	if merged, ok := l.handles.Get(ref); ok {
		h = merged
	}
	m, err := l.installAt(h, generation)
	if err != nil {
		return nil, err
	}
	props := m.properties
	if props == nil || props.Generation != generation {
		props = &SubpropertiesMirror{Generation: generation}
		if m.ref >= 0 {
			l.slot(m.ref).mirror.Store(m.withProperties(props))
		}
	}
	return props, nil
}

// GetOrLoadValueFromRefs 批量获取值，结果顺序和refs一致
// 依次查找内联数据、handle缓存和镜像表，剩下的ref合并为一个lookup
// 其中任何一个失败时整批失败
func (l *ValueLoader) GetOrLoadValueFromRefs(ctx context.Context, refs []PropertyReference) ([]*ValueMirror, error) {
	answer := make([]*ValueMirror, len(refs))
	missing := map[int64][]int{}
	var order []int64
	for i, r := range refs {
		if r.Inline.HasData() {
			l.handles.Put(r.Inline)
			m, err := l.Install(r.Inline)
			if err != nil {
				return nil, &e.ValueLoadError{Refs: []int64{r.Ref}, Err: err}
			}
			answer[i] = m
			continue
		}
		if r.Ref < 0 {
			answer[i] = newScalarMirror(debugger.TypeUndefined, "undefined")
			continue
		}
		if h, ok := l.handles.Get(r.Ref); ok {
			m, err := l.Install(h)
			if err != nil {
				return nil, &e.ValueLoadError{Refs: []int64{r.Ref}, Err: err}
			}
			answer[i] = m
			continue
		}
		if m := l.CachedMirror(r.Ref); m != nil {
			answer[i] = m
			continue
		}
		if _, ok := missing[r.Ref]; !ok {
			order = append(order, r.Ref)
		}
		missing[r.Ref] = append(missing[r.Ref], i)
	}
	if len(order) == 0 {
		return answer, nil
	}

	req := protocol.NewRequest(constants.Lookup, &protocol.LookupArguments{
		Handles:         order,
		MaxStringLength: l.maxStringLength,
	})
	resp, err := l.sender.SendSync(ctx, req)
	if err != nil {
		return nil, &e.ValueLoadError{Refs: order, Err: err}
	}
	handles, err := lookupBody(resp)
	if err != nil {
		return nil, &e.ValueLoadError{Refs: order, Err: err}
	}
	for _, ref := range order {
		h, ok := handles[refKey(ref)]
		if !ok || h == nil {
			return nil, &e.ValueLoadError{Refs: order, Err: fmt.Errorf("handle %d not found in lookup response", ref)}
		}
		l.handles.Put(h)
		m, err := l.Install(h)
		if err != nil {
			return nil, &e.ValueLoadError{Refs: order, Err: err}
		}
		for _, i := range missing[ref] {
			answer[i] = m
		}
	}
	return answer, nil
}

// LoadScopeFields 加载某个栈帧的某个作用域对象
func (l *ValueLoader) LoadScopeFields(ctx context.Context, scopeIndex int, frameIndex int) (*ValueMirror, error) {
	req := protocol.NewRequest(constants.Scope, &protocol.ScopeArguments{
		Number:      scopeIndex,
		FrameNumber: &frameIndex,
		InlineRefs:  true,
	})
	resp, err := l.sender.SendSync(ctx, req)
	if err != nil {
		return nil, err
	}
	var body protocol.ScopeBody
	if err = resp.UnmarshalBody(&body); err != nil {
		return nil, &e.ProtocolError{Message: "parse scope body", Err: err}
	}
	if !body.Object.HasData() {
		return nil, &e.ProtocolError{Message: fmt.Sprintf("scope %d of frame %d has no object", scopeIndex, frameIndex)}
	}
	l.handles.Put(body.Object)
	return l.Install(body.Object)
}

func (l *ValueLoader) reloadString(ctx context.Context, ref int64, maxLength int) (string, int, int, error) {
	req := protocol.NewRequest(constants.Lookup, &protocol.LookupArguments{
		Handles:         []int64{ref},
		MaxStringLength: maxLength,
	})
	resp, err := l.sender.SendSync(ctx, req)
	if err != nil {
		return "", 0, 0, err
	}
	handles, err := lookupBody(resp)
	if err != nil {
		return "", 0, 0, err
	}
	h, ok := handles[refKey(ref)]
	if !ok || h == nil {
		return "", 0, 0, fmt.Errorf("handle %d not found in lookup response", ref)
	}
	m, err := newValueMirror(h, l, l.cacheState.Current())
	if err != nil {
		return "", 0, 0, err
	}
	v := m.value
	return v.String(), v.LoadedLength(), v.ActualLength(), nil
}

// Invalidate 属性可能被修改，例如执行了表达式
// 只让属性列表过期，handle缓存保留
func (l *ValueLoader) Invalidate() {
	l.cacheState.Bump()
}

// Reset vm恢复执行后所有ref都失效
func (l *ValueLoader) Reset() {
	l.slots.Range(func(key, _ interface{}) bool {
		l.slots.Delete(key)
		return true
	})
	l.handles.Reset()
	l.cacheState.Bump()
}

func lookupBody(resp *protocol.Response) (map[string]*protocol.RawHandle, error) {
	var handles map[string]*protocol.RawHandle
	if err := resp.UnmarshalBody(&handles); err != nil {
		return nil, &e.ProtocolError{Message: "parse lookup body", Err: err}
	}
	return handles, nil
}
