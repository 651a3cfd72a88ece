package main

import (
	"flag"
	"fmt"
	"net"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/fansqz/js-debugger/config"
)

// 定义版本号
const Version = "1.0.1"

func main() {
	showVersion := flag.Bool("version", false, "Show the version number")
	configFile := flag.String("config", "", "Config file, toml or yaml")
	port := flag.String("port", "", "TCP port to listen on")
	address := flag.String("address", "", "Debug port of the javascript vm")
	launch := flag.String("launch", "", "Command used to launch the debuggee")
	flag.Parse()

	// 检查是否需要显示版本信息
	if *showVersion {
		fmt.Printf("Version: %s\n", Version)
		return
	}
	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Printf("load config fail: %v\n", err)
		return
	}
	// 命令行参数覆盖配置文件
	if *port != "" {
		cfg.Port = *port
	}
	if *address != "" {
		cfg.Address = *address
	}
	if *launch != "" {
		cfg.Launch.Command = strings.Fields(*launch)
	}

	//启动日志
	if err = SetupLogger(&cfg.Log); err != nil {
		fmt.Printf("setup logger fail: %v\n", err)
		return
	}
	defer CloseLogger()

	// 监听端口
	listener, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		fmt.Printf("listen at %s fail: %v\n", cfg.Port, err)
		return
	}
	defer listener.Close()
	fmt.Printf("started listening at: %s\n", listener.Addr().String())

	server := NewServer(cfg)
	// 空闲超时后退出
	server.idle.Start(cfg.IdleTimeout.Std(), func() {
		logrus.Infof("[main] idle timeout, exit")
		listener.Close()
	})
	if err = server.Serve(listener); err != nil {
		logrus.Infof("[main] server stopped, err = %v", err)
	}
}
