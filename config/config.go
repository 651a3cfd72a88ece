package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config 调试适配器的配置
type Config struct {
	// Port dap服务监听的端口
	Port string `toml:"port" yaml:"port"`
	// Address 远程vm的调试端口，launch时会被启动的程序使用
	Address string `toml:"address" yaml:"address"`
	// MinVersion 支持的最低V8版本
	MinVersion string `toml:"min_version" yaml:"min_version"`
	// SyncTimeout 同步命令的超时时间
	SyncTimeout Duration `toml:"sync_timeout" yaml:"sync_timeout"`
	// DialTimeout 连接vm的超时时间
	DialTimeout Duration `toml:"dial_timeout" yaml:"dial_timeout"`
	// IdleTimeout 没有任何dap请求时自动退出，0表示不退出
	IdleTimeout     Duration `toml:"idle_timeout" yaml:"idle_timeout"`
	StringifyBudget int      `toml:"stringify_budget" yaml:"stringify_budget"`
	MaxStringLength int      `toml:"max_string_length" yaml:"max_string_length"`
	Log             Log      `toml:"log" yaml:"log"`
	Launch          Launch   `toml:"launch" yaml:"launch"`
}

// Log 日志配置，Path为空时输出到标准错误
type Log struct {
	Path  string `toml:"path" yaml:"path"`
	Level string `toml:"level" yaml:"level"`
}

// Launch 启动被调试程序的命令
type Launch struct {
	Command []string          `toml:"command" yaml:"command"`
	Env     map[string]string `toml:"env" yaml:"env"`
	Dir     string            `toml:"dir" yaml:"dir"`
}

// Duration 配置文件中使用"30s"这样的字符串
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(v)
	return nil
}

// Default 默认配置
func Default() *Config {
	return &Config{
		Port:            "8889",
		Address:         "127.0.0.1:5858",
		MinVersion:      "3.14",
		SyncTimeout:     Duration(30 * time.Second),
		DialTimeout:     Duration(5 * time.Second),
		StringifyBudget: 80,
		MaxStringLength: 10000,
		Log: Log{
			Level: "info",
		},
	}
}

// Load 读取配置文件，根据扩展名选择toml或者yaml
// 文件中没有的字段保持默认值
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err = Parse(cfg, filepath.Ext(path), data); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	logrus.Infof("[config] loaded %s", path)
	return cfg, nil
}

// Parse 解析配置内容到cfg
func Parse(cfg *Config, ext string, data []byte) error {
	switch strings.ToLower(ext) {
	case ".toml":
		return toml.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	}
	return fmt.Errorf("unsupported config format %q", ext)
}

// Validate 检查配置
func (c *Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("port cannot be empty"))
	}
	if c.SyncTimeout <= 0 {
		errs = append(errs, errors.New("sync_timeout must be positive"))
	}
	if c.IdleTimeout < 0 {
		errs = append(errs, errors.New("idle_timeout cannot be negative"))
	}
	if c.StringifyBudget <= 0 {
		errs = append(errs, errors.New("stringify_budget must be positive"))
	}
	if c.MaxStringLength < 0 {
		errs = append(errs, errors.New("max_string_length cannot be negative"))
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
