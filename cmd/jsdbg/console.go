package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/dop251/goja/parser"
	"github.com/fatih/color"

	"github.com/fansqz/js-debugger/constants"
	"github.com/fansqz/js-debugger/debugger"
	"github.com/fansqz/js-debugger/debugger/v8_debugger"
	e "github.com/fansqz/js-debugger/error"
)

var (
	errQuit         = errors.New("quit")
	errUsage        = errors.New("wrong arguments, type help for usage")
	locationColor   = color.New(color.FgCyan)
	valueColor      = color.New(color.FgGreen)
	errorColor      = color.New(color.FgRed)
	breakpointColor = color.New(color.FgYellow)
)

const helpText = `commands:
  bt                      show backtrace
  c | n | s | o           continue, step next, step in, step out
  pause                   suspend the running vm
  b <script>:<line> [cond] set breakpoint
  d <id>                  clear breakpoint
  bl                      list breakpoints
  p <expr>                evaluate in the top frame
  locals                  show variables of the top frame
  list                    show source around the current line
  scripts                 list loaded scripts
  catch all|uncaught|off  break on exceptions
  quit
`

// Console 交互式调试控制台
type Console struct {
	ctx         context.Context
	vm          debugger.JavascriptVm
	stringifier *v8_debugger.Stringifier
	// width 终端宽度，源码行超出时截断
	width int

	outLock sync.Mutex
	out     io.Writer

	bpLock      sync.Mutex
	breakpoints map[int64]debugger.Breakpoint
}

func NewConsole(vm debugger.JavascriptVm, out io.Writer, budget int, width int) *Console {
	return &Console{
		ctx:         context.Background(),
		vm:          vm,
		stringifier: v8_debugger.NewStringifier(budget),
		width:       width,
		out:         out,
		breakpoints: make(map[int64]debugger.Breakpoint),
	}
}

func (c *Console) printf(format string, args ...interface{}) {
	c.outLock.Lock()
	defer c.outLock.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *Console) colorf(col *color.Color, format string, args ...interface{}) {
	c.outLock.Lock()
	defer c.outLock.Unlock()
	col.Fprintf(c.out, format, args...)
}

// OnEvent 调试事件回调
func (c *Console) OnEvent(event interface{}) {
	switch event := event.(type) {
	case *debugger.SuspendedEvent:
		c.printStopped(event)
	case *debugger.ResumedEvent:
		c.printf("running\n")
	case *debugger.ScriptLoadedEvent:
		c.printf("script loaded: %s\n", event.Script.Name())
	case *debugger.ScriptCollectedEvent:
		c.printf("script collected: %d\n", event.ID)
	case *debugger.DisconnectedEvent:
		c.colorf(errorColor, "disconnected\n")
	}
}

func (c *Console) printStopped(event *debugger.SuspendedEvent) {
	frames, err := event.Context.CallFrames()
	if err != nil || len(frames) == 0 {
		c.printf("stopped (%s)\n", event.Reason)
		return
	}
	top := frames[0]
	c.colorf(locationColor, "stopped (%s) at %s\n", event.Reason, c.location(top))
	if exception := event.Context.ExceptionData(); exception != nil {
		c.colorf(errorColor, "exception: %s\n", exception.Message)
	}
	if text := top.SourceLineText(); text != "" {
		c.printf("%5d  %s\n", top.Line()+1, c.clip(text))
	}
}

// location 函数名和1开始的行号
func (c *Console) location(frame debugger.CallFrame) string {
	name := frame.FunctionName()
	if name == "" {
		name = "<anonymous>"
	}
	script := "<unknown>"
	if s := frame.Script(); s != nil {
		script = s.Name()
	}
	return fmt.Sprintf("%s (%s:%d)", name, script, frame.Line()+1)
}

func (c *Console) clip(text string) string {
	if c.width > 8 && len(text) > c.width-7 {
		return text[:c.width-10] + "..."
	}
	return text
}

// Execute 执行一行命令，返回errQuit时退出
func (c *Console) Execute(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	command, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch command {
	case "help", "h":
		c.printf("%s", helpText)
		return nil
	case "quit", "q":
		return errQuit
	case "bt", "backtrace":
		return c.backtrace()
	case "c", "continue":
		return c.resume(constants.StepNone)
	case "n", "next":
		return c.resume(constants.StepNext)
	case "s", "step":
		return c.resume(constants.StepIn)
	case "o", "out":
		return c.resume(constants.StepOut)
	case "pause":
		return c.vm.Suspend(c.ctx)
	case "b", "break":
		return c.setBreakpoint(rest)
	case "d", "delete":
		return c.clearBreakpoint(rest)
	case "bl":
		return c.listBreakpoints()
	case "p", "print":
		return c.evaluate(rest)
	case "locals":
		return c.locals()
	case "list", "l":
		return c.list()
	case "scripts":
		return c.scripts()
	case "catch":
		return c.catch(rest)
	}
	return fmt.Errorf("unknown command %q, type help for usage", command)
}

func (c *Console) topFrame() (debugger.DebugContext, debugger.CallFrame, error) {
	debugContext := c.vm.CurrentContext()
	if debugContext == nil {
		return nil, nil, e.ErrProgramIsRunning
	}
	frames, err := debugContext.CallFrames()
	if err != nil {
		return nil, nil, err
	}
	if len(frames) == 0 {
		return debugContext, nil, errors.New("no frames")
	}
	return debugContext, frames[0], nil
}

func (c *Console) backtrace() error {
	debugContext := c.vm.CurrentContext()
	if debugContext == nil {
		return e.ErrProgramIsRunning
	}
	frames, err := debugContext.CallFrames()
	if err != nil {
		return err
	}
	for _, frame := range frames {
		c.printf("#%d  %s\n", frame.Index(), c.location(frame))
	}
	return nil
}

func (c *Console) resume(action constants.StepAction) error {
	debugContext := c.vm.CurrentContext()
	if debugContext == nil {
		return e.ErrProgramIsRunning
	}
	return debugContext.ContinueVm(action, 1, func(err error) {
		if err != nil {
			c.colorf(errorColor, "resume fail: %v\n", err)
		}
	})
}

// setBreakpoint 参数格式 script:line [condition]，行号从1开始
func (c *Console) setBreakpoint(args string) error {
	location, condition, _ := strings.Cut(args, " ")
	index := strings.LastIndex(location, ":")
	if index <= 0 {
		return errUsage
	}
	line, err := strconv.Atoi(location[index+1:])
	if err != nil || line < 1 {
		return errUsage
	}
	bp, err := c.vm.SetBreakpoint(c.ctx, &debugger.BreakpointOption{
		Type:      constants.ScriptNameBreakpoint,
		Target:    location[:index],
		Line:      line - 1,
		Enabled:   true,
		Condition: strings.TrimSpace(condition),
	})
	if err != nil {
		return err
	}
	c.bpLock.Lock()
	c.breakpoints[bp.ID()] = bp
	c.bpLock.Unlock()
	c.colorf(breakpointColor, "breakpoint %d at %s:%d\n", bp.ID(), bp.Target(), bp.Line()+1)
	return nil
}

func (c *Console) clearBreakpoint(args string) error {
	id, err := strconv.ParseInt(args, 10, 64)
	if err != nil {
		return errUsage
	}
	c.bpLock.Lock()
	bp, ok := c.breakpoints[id]
	delete(c.breakpoints, id)
	c.bpLock.Unlock()
	if !ok {
		return fmt.Errorf("breakpoint %d not found", id)
	}
	done := make(chan error, 1)
	bp.Clear(func(err error) { done <- err })
	select {
	case err = <-done:
		return err
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

func (c *Console) listBreakpoints() error {
	bps, err := c.vm.ListBreakpoints(c.ctx)
	if err != nil {
		return err
	}
	c.bpLock.Lock()
	c.breakpoints = make(map[int64]debugger.Breakpoint, len(bps))
	for _, bp := range bps {
		c.breakpoints[bp.ID()] = bp
	}
	c.bpLock.Unlock()
	sort.Slice(bps, func(i, j int) bool { return bps[i].ID() < bps[j].ID() })
	for _, bp := range bps {
		state := "enabled"
		if !bp.Enabled() {
			state = "disabled"
		}
		c.printf("%d  %s:%d  %s", bp.ID(), bp.Target(), bp.Line()+1, state)
		if bp.Condition() != "" {
			c.printf("  if %s", bp.Condition())
		}
		c.printf("\n")
	}
	return nil
}

// evaluate 发送之前先检查语法
func (c *Console) evaluate(expression string) error {
	if expression == "" {
		return errUsage
	}
	if _, err := parser.ParseFile(nil, "", expression, 0); err != nil {
		return fmt.Errorf("syntax error: %w", err)
	}
	_, frame, err := c.topFrame()
	if err != nil {
		return err
	}
	result, err := frame.EvaluateSync(c.ctx, expression)
	if err != nil {
		return err
	}
	text := c.stringifier.Stringify(c.ctx, result.Value.Value())
	if result.Exception {
		c.colorf(errorColor, "Uncaught %s\n", text)
		return nil
	}
	c.colorf(valueColor, "%s\n", text)
	return nil
}

func (c *Console) locals() error {
	_, frame, err := c.topFrame()
	if err != nil {
		return err
	}
	vars, err := frame.Variables(c.ctx)
	if err != nil {
		return err
	}
	for _, v := range vars {
		c.printf("%s = %s\n", v.Name(), c.stringifier.Stringify(c.ctx, v.Value()))
	}
	return nil
}

// list 显示当前行前后5行
func (c *Console) list() error {
	_, frame, err := c.topFrame()
	if err != nil {
		return err
	}
	script := frame.Script()
	if script == nil || script.Source() == "" {
		return errors.New("source not available")
	}
	lines := strings.Split(script.Source(), "\n")
	current := frame.Line() - script.LineOffset()
	for i := max(current-5, 0); i <= current+5 && i < len(lines); i++ {
		marker := "  "
		if i == current {
			marker = "=>"
		}
		c.printf("%s%4d  %s\n", marker, i+script.LineOffset()+1, c.clip(lines[i]))
	}
	return nil
}

func (c *Console) scripts() error {
	scripts, err := c.vm.GetScripts(c.ctx)
	if err != nil {
		return err
	}
	sort.Slice(scripts, func(i, j int) bool { return scripts[i].ID() < scripts[j].ID() })
	for _, s := range scripts {
		c.printf("%d  %s  (%d lines)\n", s.ID(), s.Name(), s.EndLine()-s.LineOffset()+1)
	}
	return nil
}

func (c *Console) catch(args string) error {
	all, uncaught := false, false
	switch args {
	case "all":
		all = true
	case "uncaught":
		uncaught = true
	case "off":
	default:
		return errUsage
	}
	if err := c.vm.EnableBreakOnException(c.ctx, constants.ExceptionBreakAll, all); err != nil {
		return err
	}
	return c.vm.EnableBreakOnException(c.ctx, constants.ExceptionBreakUncaught, uncaught)
}
