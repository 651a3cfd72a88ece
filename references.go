package main

import (
	"sync"

	"github.com/fansqz/js-debugger/debugger"
)

// variableRefs dap的variablesReference到作用域或者对象的映射
// vm每次暂停时清空
type variableRefs struct {
	lock    sync.Mutex
	nextRef int
	refs    map[int]interface{}
}

func newVariableRefs() *variableRefs {
	return &variableRefs{
		refs: make(map[int]interface{}),
	}
}

func (r *variableRefs) addScope(scope debugger.JsScope) int {
	return r.add(scope)
}

func (r *variableRefs) addObject(object debugger.JsObject) int {
	return r.add(object)
}

func (r *variableRefs) add(item interface{}) int {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.nextRef++
	r.refs[r.nextRef] = item
	return r.nextRef
}

func (r *variableRefs) get(ref int) (interface{}, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	item, ok := r.refs[ref]
	return item, ok
}

func (r *variableRefs) clear() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.refs = make(map[int]interface{})
	r.nextRef = 0
}
