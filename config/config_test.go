package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tomlConfig = `
port = "9000"
min_version = "3.20"
sync_timeout = "5s"
stringify_budget = 120

[log]
level = "debug"

[launch]
command = ["node", "--debug=5858", "main.js"]
`

const yamlConfig = `
port: "9001"
address: "localhost:5860"
idle_timeout: 1m
log:
  path: /tmp/jsdebugger.log
launch:
  command: [node, main.js]
  env:
    NODE_ENV: test
`

func writeConfig(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.Nil(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Toml(t *testing.T) {
	cfg, err := Load(writeConfig(t, "debugger.toml", tomlConfig))
	require.Nil(t, err)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "3.20", cfg.MinVersion)
	assert.Equal(t, 5*time.Second, cfg.SyncTimeout.Std())
	assert.Equal(t, 120, cfg.StringifyBudget)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"node", "--debug=5858", "main.js"}, cfg.Launch.Command)
	// 没有配置的字段保持默认值
	assert.Equal(t, "127.0.0.1:5858", cfg.Address)
	assert.Equal(t, 10000, cfg.MaxStringLength)
}

func TestLoad_Yaml(t *testing.T) {
	cfg, err := Load(writeConfig(t, "debugger.yml", yamlConfig))
	require.Nil(t, err)
	assert.Equal(t, "9001", cfg.Port)
	assert.Equal(t, "localhost:5860", cfg.Address)
	assert.Equal(t, time.Minute, cfg.IdleTimeout.Std())
	assert.Equal(t, "/tmp/jsdebugger.log", cfg.Log.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, map[string]string{"NODE_ENV": "test"}, cfg.Launch.Env)
	assert.Equal(t, 30*time.Second, cfg.SyncTimeout.Std())
}

func TestLoad_Empty(t *testing.T) {
	cfg, err := Load("")
	require.Nil(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(writeConfig(t, "debugger.json", "{}"))
	assert.NotNil(t, err)

	_, err = Load(writeConfig(t, "debugger.toml", `sync_timeout = "soon"`))
	assert.NotNil(t, err)

	_, err = Load(writeConfig(t, "debugger.toml", "stringify_budget = 0\n[log]\nlevel = \"loud\""))
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "stringify_budget")
	assert.Contains(t, err.Error(), "loud")

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.NotNil(t, err)
}
