package launcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/fansqz/js-debugger/debugger"
	"github.com/fansqz/js-debugger/utils/gosync"
)

// Option 启动被调试程序的参数
type Option struct {
	Command []string
	Env     map[string]string
	Dir     string
	// Callback 程序输出通过OutputEvent回调
	Callback debugger.NotificationCallback
}

// Process 在虚拟终端中运行的被调试程序
type Process struct {
	cmd      *exec.Cmd
	ptm      *os.File
	callback debugger.NotificationCallback
	// done 输出读取完毕并且进程退出后关闭
	done    chan struct{}
	exitErr error
	once    sync.Once
}

// Start 在虚拟终端中启动程序，并开始转发输出
func Start(ctx context.Context, option *Option) (*Process, error) {
	if option == nil || len(option.Command) == 0 {
		return nil, errors.New("launch command cannot be empty")
	}
	logrus.Infof("[launcher] Start %v", option.Command)
	cmd := exec.CommandContext(ctx, option.Command[0], option.Command[1:]...)
	cmd.Dir = option.Dir
	cmd.Env = os.Environ()
	for k, v := range option.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	ptm, err := pty.Start(cmd)
	if err != nil {
		logrus.Errorf("[launcher] pty start fail, err = %v", err)
		return nil, fmt.Errorf("pty start: %w", err)
	}
	// 关闭回显，用户输入不会出现在输出中
	if _, err = term.MakeRaw(int(ptm.Fd())); err != nil {
		logrus.Warnf("[launcher] make raw fail, err = %v", err)
	}
	p := &Process{
		cmd:      cmd,
		ptm:      ptm,
		callback: option.Callback,
		done:     make(chan struct{}),
	}
	gosync.Go(context.Background(), func(ctx context.Context) {
		p.processOutput()
	})
	return p, nil
}

// processOutput 循环读取程序输出，utf8不完整的尾部留到下一次发送
func (p *Process) processOutput() {
	defer func() {
		p.exitErr = p.cmd.Wait()
		_ = p.ptm.Close()
		close(p.done)
	}()
	buf := make([]byte, 32*1024)
	var pending []byte
	for {
		n, err := p.ptm.Read(buf)
		if n > 0 {
			chunk := append(pending, buf[:n]...)
			pending = nil
			if tail := incompleteTail(chunk); tail > 0 {
				pending = append([]byte{}, chunk[len(chunk)-tail:]...)
				chunk = chunk[:len(chunk)-tail]
			}
			if len(chunk) > 0 && p.callback != nil {
				p.callback(debugger.NewOutputEvent(string(chunk)))
			}
		}
		if err != nil {
			if len(pending) > 0 && p.callback != nil {
				p.callback(debugger.NewOutputEvent(string(pending)))
			}
			return
		}
	}
}

// incompleteTail 末尾不完整的utf8字节数
func incompleteTail(b []byte) int {
	for i := 1; i <= utf8.UTFMax && i <= len(b); i++ {
		c := b[len(b)-i]
		if !utf8.RuneStart(c) {
			continue
		}
		if utf8.FullRune(b[len(b)-i:]) {
			return 0
		}
		return i
	}
	return 0
}

// Write 写入程序的标准输入
func (p *Process) Write(data []byte) (int, error) {
	return p.ptm.Write(data)
}

func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Wait 等待程序退出
func (p *Process) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.exitErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Kill 结束程序，可以重复调用
func (p *Process) Kill() error {
	var err error
	p.once.Do(func() {
		logrus.Infof("[launcher] Kill %d", p.Pid())
		err = p.cmd.Process.Kill()
		if errors.Is(err, os.ErrProcessDone) {
			err = nil
		}
	})
	return err
}

// WaitForPort 等待被调试程序打开调试端口
func WaitForPort(ctx context.Context, address string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		conn, err := net.DialTimeout("tcp", address, interval)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for %s: %w", address, ctx.Err())
		case <-ticker.C:
		}
	}
}
