package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/peterh/liner"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/fansqz/js-debugger/config"
	"github.com/fansqz/js-debugger/debugger"
	"github.com/fansqz/js-debugger/debugger/v8_debugger"
)

func main() {
	configFile := flag.String("config", "", "Config file, toml or yaml")
	address := flag.String("address", "", "Debug port of the javascript vm")
	noColor := flag.Bool("no-color", false, "Disable colored output")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Printf("load config fail: %v\n", err)
		os.Exit(1)
	}
	if *address != "" {
		cfg.Address = *address
	}
	color.NoColor = color.NoColor || *noColor
	// 日志不能打断交互
	logrus.SetOutput(io.Discard)

	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		width = w
	}
	vm := v8_debugger.NewV8Debugger(&v8_debugger.Option{
		Address:         cfg.Address,
		DialTimeout:     cfg.DialTimeout.Std(),
		SyncTimeout:     cfg.SyncTimeout.Std(),
		MaxStringLength: cfg.MaxStringLength,
		StringifyBudget: cfg.StringifyBudget,
	})
	console := NewConsole(vm, color.Output, cfg.StringifyBudget, width)
	ctx := context.Background()
	if err = vm.Attach(ctx, &debugger.AttachOption{
		Callback:   console.OnEvent,
		MinVersion: cfg.MinVersion,
	}); err != nil {
		fmt.Printf("attach %s fail: %v\n", cfg.Address, err)
		os.Exit(1)
	}
	defer vm.Detach(ctx)
	fmt.Printf("attached to %s, v8 %s\n", cfg.Address, vm.Version())

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	historyPath := filepath.Join(os.TempDir(), ".jsdbg_history")
	if f, err := os.Open(historyPath); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	for {
		input, err := line.Prompt("(jsdbg) ")
		if err != nil {
			if !errors.Is(err, liner.ErrPromptAborted) && !errors.Is(err, io.EOF) {
				fmt.Printf("read input fail: %v\n", err)
			}
			break
		}
		if input != "" {
			line.AppendHistory(input)
		}
		if err = console.Execute(input); err != nil {
			if errors.Is(err, errQuit) {
				break
			}
			console.colorf(errorColor, "%v\n", err)
		}
	}
	if f, err := os.Create(historyPath); err == nil {
		_, _ = line.WriteHistory(f)
		f.Close()
	}
}
