package main

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/fansqz/js-debugger/config"
)

var logFile *os.File

// SetupLogger 根据配置设置日志文件和级别，没有配置文件时输出到标准错误
func SetupLogger(cfg *config.Log) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if cfg.Path == "" {
		logrus.SetOutput(os.Stderr)
		return nil
	}
	if err = os.MkdirAll(filepath.Dir(cfg.Path), os.ModePerm); err != nil {
		return err
	}
	logFile, err = os.OpenFile(cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	logrus.SetOutput(logFile)
	return nil
}

func CloseLogger() {
	if logFile != nil {
		logrus.SetOutput(os.Stderr)
		_ = logFile.Close()
		logFile = nil
	}
}
