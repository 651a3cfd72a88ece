package v8_debugger

import (
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/fansqz/js-debugger/protocol"
)

// HandleManager handle缓存，ref到最新的完整描述
// 同一个ref多次出现时合并：新数据中的字段覆盖旧字段，新数据中没有的字段保留
type HandleManager struct {
	lock    sync.RWMutex
	handles map[int64]*protocol.RawHandle
}

func NewHandleManager() *HandleManager {
	return &HandleManager{
		handles: map[int64]*protocol.RawHandle{},
	}
}

// Put 临时值和只有ref的引用不会被缓存
func (m *HandleManager) Put(h *protocol.RawHandle) {
	if h == nil || h.Ref < 0 || !h.HasData() {
		return
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	old, ok := m.handles[h.Ref]
	if !ok {
		m.handles[h.Ref] = &protocol.RawHandle{Ref: h.Ref, Type: h.Type, Raw: append([]byte(nil), h.Raw...)}
		return
	}
	m.handles[h.Ref] = mergeHandle(old, h)
}

func (m *HandleManager) PutAll(handles []protocol.RawHandle) {
	for i := range handles {
		m.Put(&handles[i])
	}
}

func (m *HandleManager) Get(ref int64) (*protocol.RawHandle, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	h, ok := m.handles[ref]
	return h, ok
}

func (m *HandleManager) Size() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.handles)
}

// Reset vm恢复执行或者断开后所有handle都失效
func (m *HandleManager) Reset() {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.handles = map[int64]*protocol.RawHandle{}
}

func mergeHandle(old, newer *protocol.RawHandle) *protocol.RawHandle {
	merged := append([]byte(nil), old.Raw...)
	var err error
	gjson.ParseBytes(newer.Raw).ForEach(func(key, value gjson.Result) bool {
		merged, err = sjson.SetRawBytes(merged, escapePath(key.String()), []byte(value.Raw))
		return err == nil
	})
	if err != nil {
		logrus.Warnf("[HandleManager] merge handle %d fail, use newer, err = %v", old.Ref, err)
		return &protocol.RawHandle{Ref: newer.Ref, Type: newer.Type, Raw: append([]byte(nil), newer.Raw...)}
	}
	typ := newer.Type
	if typ == "" {
		typ = old.Type
	}
	return &protocol.RawHandle{Ref: old.Ref, Type: typ, Raw: merged}
}

var pathEscaper = strings.NewReplacer(
	`\`, `\\`,
	`.`, `\.`,
	`*`, `\*`,
	`?`, `\?`,
	`|`, `\|`,
	`#`, `\#`,
	`@`, `\@`,
)

// escapePath 把字段名转义为sjson路径
func escapePath(key string) string {
	return pathEscaper.Replace(key)
}
