package v8_debugger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/sirupsen/logrus"

	"github.com/fansqz/js-debugger/constants"
	"github.com/fansqz/js-debugger/debugger"
	e "github.com/fansqz/js-debugger/error"
	"github.com/fansqz/js-debugger/protocol"
	"github.com/fansqz/js-debugger/transport"
	"github.com/fansqz/js-debugger/utils"
)

// OptionTimeout 单个操作的默认超时时间
const OptionTimeout = 30 * time.Second

// Option V8Debugger的参数
type Option struct {
	// Address vm调试端口地址，Dial为空时使用
	Address     string
	DialTimeout time.Duration
	SyncTimeout time.Duration
	// MaxStringLength lookup时字符串的最大长度
	MaxStringLength int
	// StringifyBudget 可视化时值的长度预算
	StringifyBudget int
	// Dial 自定义连接方式，测试和内置模拟vm使用
	Dial func(ctx context.Context) (transport.Transport, error)
}

// V8Debugger 通过V8调试协议连接远程vm
type V8Debugger struct {
	lock       sync.Mutex
	option     *Option
	session    *DebugSession
	version    string
	visualizer *Visualizer
}

func NewV8Debugger(option *Option) *V8Debugger {
	if option == nil {
		option = &Option{}
	}
	if option.SyncTimeout <= 0 {
		option.SyncTimeout = OptionTimeout
	}
	return &V8Debugger{
		option:     option,
		visualizer: NewVisualizer(NewStringifier(option.StringifyBudget)),
	}
}

func (d *V8Debugger) dial(ctx context.Context) (transport.Transport, error) {
	if d.option.Dial != nil {
		return d.option.Dial(ctx)
	}
	return transport.Dial(ctx, d.option.Address, d.option.DialTimeout)
}

func (d *V8Debugger) Attach(ctx context.Context, option *debugger.AttachOption) error {
	logrus.Infof("[V8Debugger] Attach")
	if option == nil {
		option = &debugger.AttachOption{}
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.session != nil && !d.session.processor.IsDetached() {
		return e.ErrAlreadyAttached
	}
	tr, err := d.dial(ctx)
	if err != nil {
		logrus.Errorf("[V8Debugger] dial fail, err = %v", err)
		return err
	}
	session := NewDebugSession(tr, &SessionOption{
		SyncTimeout:     d.option.SyncTimeout,
		MaxStringLength: d.option.MaxStringLength,
		Callback:        option.Callback,
	})
	session.Start()

	version, err := d.handshake(ctx, session, tr)
	if err == nil {
		err = checkVersion(version, option.MinVersion)
	}
	if err == nil {
		err = session.scripts.LoadAllScriptsSync(ctx, d.option.SyncTimeout)
	}
	if err != nil {
		logrus.Errorf("[V8Debugger] attach fail, err = %v", err)
		_ = session.Close(ctx)
		return err
	}
	d.session = session
	d.version = version
	session.log.Infof("[V8Debugger] attached, v8 version = %s", version)
	return nil
}

// handshake 通过version命令获取版本，失败时使用握手header中的版本
func (d *V8Debugger) handshake(ctx context.Context, session *DebugSession, tr transport.Transport) (string, error) {
	resp, err := session.processor.SendSync(ctx, protocol.NewRequest(constants.Version, nil))
	if err != nil {
		return "", err
	}
	var body protocol.VersionBody
	if err = resp.UnmarshalBody(&body); err != nil {
		return "", &e.ProtocolError{Message: "parse version body", Err: err}
	}
	if body.V8Version == "" {
		if st, ok := tr.(*transport.StreamTransport); ok {
			body.V8Version = st.Handshake()["V8-Version"]
		}
	}
	return body.V8Version, nil
}

// checkVersion minVersion为空时不检查
func checkVersion(version, minVersion string) error {
	if minVersion == "" {
		return nil
	}
	constraint, err := semver.NewConstraint(">= " + minVersion)
	if err != nil {
		return fmt.Errorf("invalid min version %q: %w", minVersion, err)
	}
	v, err := semver.NewVersion(normalizeVersion(version))
	if err != nil {
		return fmt.Errorf("%w: %q", e.ErrUnsupportedV8Version, version)
	}
	if !constraint.Check(v) {
		return fmt.Errorf("%w: %s < %s", e.ErrUnsupportedV8Version, version, minVersion)
	}
	return nil
}

// normalizeVersion V8版本有四段，比如3.30.33.16，只保留前三段
func normalizeVersion(version string) string {
	version = strings.TrimSpace(version)
	if i := strings.IndexAny(version, " -("); i >= 0 {
		version = version[:i]
	}
	parts := strings.Split(version, ".")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	return strings.Join(parts, ".")
}

func (d *V8Debugger) currentSession() (*DebugSession, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.session == nil || d.session.processor.IsDetached() {
		return nil, e.ErrNotAttached
	}
	return d.session, nil
}

// Session 当前的调试会话，没有连接时返回nil
func (d *V8Debugger) Session() *DebugSession {
	session, _ := d.currentSession()
	return session
}

func (d *V8Debugger) Detach(ctx context.Context) error {
	logrus.Infof("[V8Debugger] Detach")
	session, err := d.currentSession()
	if err != nil {
		return err
	}
	// vm可能已经断开，忽略disconnect的错误
	disconnectCtx, cancel := context.WithTimeout(ctx, time.Second)
	_, _ = session.processor.SendSync(disconnectCtx, protocol.NewRequest(constants.Disconnect, nil))
	cancel()
	return session.Close(ctx)
}

func (d *V8Debugger) IsAttached() bool {
	_, err := d.currentSession()
	return err == nil
}

func (d *V8Debugger) Version() string {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.version
}

func (d *V8Debugger) GetScripts(ctx context.Context) ([]debugger.Script, error) {
	session, err := d.currentSession()
	if err != nil {
		return nil, err
	}
	if err = session.scripts.LoadAllScriptsSync(ctx, d.option.SyncTimeout); err != nil {
		logrus.Errorf("[V8Debugger] GetScripts fail, err = %v", err)
		return nil, err
	}
	return session.scripts.All(), nil
}

func (d *V8Debugger) SetBreakpoint(ctx context.Context, option *debugger.BreakpointOption) (debugger.Breakpoint, error) {
	logrus.Infof("[V8Debugger] SetBreakpoint %s:%s:%d", option.Type, option.Target, option.Line)
	session, err := d.currentSession()
	if err != nil {
		return nil, err
	}
	return session.breakpoints.SetBreakpointSync(ctx, option, d.option.SyncTimeout)
}

func (d *V8Debugger) ListBreakpoints(ctx context.Context) ([]debugger.Breakpoint, error) {
	session, err := d.currentSession()
	if err != nil {
		return nil, err
	}
	sem := utils.NewCallbackSemaphore()
	var answer []debugger.Breakpoint
	var answerErr error
	session.breakpoints.ListBreakpoints(func(bps []debugger.Breakpoint, err error) {
		answer, answerErr = bps, err
		sem.Release()
	})
	if err = sem.Wait(ctx, d.option.SyncTimeout); err != nil {
		return nil, err
	}
	return answer, answerErr
}

// Suspend vm已经暂停时直接返回
func (d *V8Debugger) Suspend(ctx context.Context) error {
	logrus.Infof("[V8Debugger] Suspend")
	session, err := d.currentSession()
	if err != nil {
		return err
	}
	if session.status.Is(utils.Stopped) {
		return nil
	}
	// vm运行中，需要immediate促使vm处理suspend
	sem := utils.NewCallbackSemaphore()
	var suspendErr error
	session.processor.Send(protocol.NewRequest(constants.Suspend, nil), true, func(_ *protocol.Response, err error) {
		suspendErr = err
	}, sem.Release)
	if err = sem.Wait(ctx, d.option.SyncTimeout); err != nil {
		return fmt.Errorf("%s: %w", constants.Suspend, err)
	}
	return suspendErr
}

func (d *V8Debugger) EnableBreakOnException(ctx context.Context, typ constants.ExceptionBreakType, enabled bool) error {
	logrus.Infof("[V8Debugger] EnableBreakOnException %s %v", typ, enabled)
	session, err := d.currentSession()
	if err != nil {
		return err
	}
	_, err = session.processor.SendSync(ctx, protocol.NewRequest(constants.SetExceptionBreak, &protocol.SetExceptionBreakArguments{
		Type:    typ,
		Enabled: enabled,
	}))
	return err
}

func (d *V8Debugger) CurrentContext() debugger.DebugContext {
	session, err := d.currentSession()
	if err != nil {
		return nil
	}
	return session.CurrentContext()
}

func (d *V8Debugger) StructVisual(ctx context.Context, query *debugger.StructVisualQuery) (*debugger.StructVisualData, error) {
	return d.visualizer.StructVisual(ctx, d.CurrentContext(), query)
}

func (d *V8Debugger) VariableVisual(ctx context.Context, query *debugger.VariableVisualQuery) (*debugger.VariableVisualData, error) {
	return d.visualizer.VariableVisual(ctx, d.CurrentContext(), query)
}
