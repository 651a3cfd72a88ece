package v8_debugger

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"

	"github.com/fansqz/js-debugger/constants"
	"github.com/fansqz/js-debugger/debugger"
	e "github.com/fansqz/js-debugger/error"
	"github.com/fansqz/js-debugger/protocol"
	"github.com/fansqz/js-debugger/utils"
)

type script struct {
	id           int64
	name         string
	lineOffset   int
	columnOffset int
	lineCount    int
	source       string
	collected    atomic.Bool

	outlineOnce sync.Once
	outline     []*debugger.FunctionRange
	outlineErr  error
}

func newScript(obj *protocol.ScriptObject) *script {
	return &script{
		id:           obj.ID,
		name:         obj.Name,
		lineOffset:   obj.LineOffset,
		columnOffset: obj.ColumnOffset,
		lineCount:    obj.LineCount,
		source:       obj.Source,
	}
}

func (s *script) ID() int64 {
	return s.id
}

func (s *script) Name() string {
	return s.name
}

func (s *script) LineOffset() int {
	return s.lineOffset
}

func (s *script) ColumnOffset() int {
	return s.columnOffset
}

func (s *script) EndLine() int {
	if s.lineCount <= 0 {
		return s.lineOffset
	}
	return s.lineOffset + s.lineCount - 1
}

func (s *script) Source() string {
	return s.source
}

func (s *script) IsCollected() bool {
	return s.collected.Load()
}

// Outline 第一次调用时解析源码
func (s *script) Outline(ctx context.Context) ([]*debugger.FunctionRange, error) {
	s.outlineOnce.Do(func() {
		s.outline, s.outlineErr = parseOutline(ctx, []byte(s.source), s.lineOffset)
	})
	return s.outline, s.outlineErr
}

func (s *script) FunctionAt(ctx context.Context, line int) (*debugger.FunctionRange, error) {
	outline, err := s.Outline(ctx)
	if err != nil {
		return nil, err
	}
	var answer *debugger.FunctionRange
	for _, fn := range outline {
		if line < fn.StartLine || line > fn.EndLine {
			continue
		}
		if answer == nil || fn.EndLine-fn.StartLine < answer.EndLine-answer.StartLine {
			answer = fn
		}
	}
	return answer, nil
}

var functionNodeTypes = map[string]bool{
	"function_declaration":           true,
	"generator_function_declaration": true,
	"function":                       true,
	"function_expression":            true,
	"generator_function":             true,
	"arrow_function":                 true,
	"method_definition":              true,
}

// parseOutline 遍历语法树，找出所有函数的行范围
func parseOutline(ctx context.Context, content []byte, lineOffset int) ([]*debugger.FunctionRange, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, err
	}
	answer := []*debugger.FunctionRange{}
	// 使用栈来手动管理节点遍历
	stack := []*sitter.Node{tree.RootNode()}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if functionNodeTypes[node.Type()] {
			answer = append(answer, &debugger.FunctionRange{
				Name:      functionName(node, content),
				StartLine: int(node.StartPoint().Row) + lineOffset,
				EndLine:   int(node.EndPoint().Row) + lineOffset,
			})
		}
		for i := int(node.NamedChildCount()) - 1; i >= 0; i-- {
			stack = append(stack, node.NamedChild(i))
		}
	}
	sort.SliceStable(answer, func(i, j int) bool { return answer[i].StartLine < answer[j].StartLine })
	return answer, nil
}

// functionName 匿名函数使用被赋值的变量名或属性名
func functionName(node *sitter.Node, content []byte) string {
	if name := node.ChildByFieldName("name"); name != nil {
		return name.Content(content)
	}
	parent := node.Parent()
	if parent == nil {
		return ""
	}
	switch parent.Type() {
	case "variable_declarator":
		if name := parent.ChildByFieldName("name"); name != nil {
			return name.Content(content)
		}
	case "pair":
		if key := parent.ChildByFieldName("key"); key != nil {
			return key.Content(content)
		}
	case "assignment_expression":
		if left := parent.ChildByFieldName("left"); left != nil {
			return left.Content(content)
		}
	}
	return ""
}

// ScriptManager 脚本注册表，key是脚本id
type ScriptManager struct {
	sender  commandSender
	lock    sync.RWMutex
	scripts map[int64]*script
	// 进行中的重新加载，Reset需要等待它们结束
	reloadLock *utils.CountingLock
}

func NewScriptManager(sender commandSender) *ScriptManager {
	return &ScriptManager{
		sender:     sender,
		scripts:    map[int64]*script{},
		reloadLock: utils.NewCountingLock(),
	}
}

// AddScript 已经存在时保留原有的源码
func (m *ScriptManager) AddScript(obj *protocol.ScriptObject) debugger.Script {
	s := newScript(obj)
	m.lock.Lock()
	defer m.lock.Unlock()
	if old, ok := m.scripts[obj.ID]; ok && s.source == "" {
		s.source = old.source
	}
	m.scripts[obj.ID] = s
	return s
}

// ScriptCollected 脚本被vm回收
func (m *ScriptManager) ScriptCollected(id int64) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if s, ok := m.scripts[id]; ok {
		s.collected.Store(true)
		delete(m.scripts, id)
	}
}

// Get 不存在时返回nil
func (m *ScriptManager) Get(id int64) debugger.Script {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if s, ok := m.scripts[id]; ok {
		return s
	}
	return nil
}

// FindByName 按名称查找，不存在时返回nil
func (m *ScriptManager) FindByName(name string) debugger.Script {
	for _, s := range m.All() {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// All 按id排序
func (m *ScriptManager) All() []debugger.Script {
	m.lock.RLock()
	defer m.lock.RUnlock()
	ids := make([]int64, 0, len(m.scripts))
	for id := range m.scripts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	answer := make([]debugger.Script, 0, len(ids))
	for _, id := range ids {
		answer = append(answer, m.scripts[id])
	}
	return answer
}

// LoadAllScripts 重新加载所有普通脚本
func (m *ScriptManager) LoadAllScripts(callback func(err error)) {
	m.reloadLock.Acquire()
	req := protocol.NewRequest(constants.Scripts, &protocol.ScriptsArguments{
		Types:         int(constants.ScriptNormal),
		IncludeSource: true,
	})
	m.sender.Send(req, false, func(resp *protocol.Response, err error) {
		if err == nil {
			var scripts []protocol.ScriptObject
			if err = resp.UnmarshalBody(&scripts); err != nil {
				err = &e.ProtocolError{Message: "parse scripts body", Err: err}
			}
			for i := range scripts {
				m.AddScript(&scripts[i])
			}
		}
		invoke(callback, err)
	}, m.reloadLock.Release)
}

// LoadAllScriptsSync LoadAllScripts的同步版本
func (m *ScriptManager) LoadAllScriptsSync(ctx context.Context, timeout time.Duration) error {
	sem := utils.NewCallbackSemaphore()
	var answer error
	m.LoadAllScripts(func(err error) {
		answer = err
		sem.Release()
	})
	if err := sem.Wait(ctx, timeout); err != nil {
		return err
	}
	return answer
}

// Reset 等待进行中的重新加载结束后清空
func (m *ScriptManager) Reset() {
	m.reloadLock.Await()
	m.lock.Lock()
	defer m.lock.Unlock()
	m.scripts = map[int64]*script{}
}
