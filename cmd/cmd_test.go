package cmd_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/mautops/videoflow-gin/cmd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig 在临时目录写入 sqlite 配置
func writeConfig(t *testing.T) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`env: test
store:
  driver: gorm
database:
  driver: sqlite
  sqlite_path: %s
log:
  level: error
  output: stdout
sweep:
  enabled: false
`, filepath.Join(dir, "videoflow.db"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// TestRootCmd_Subcommands 测试子命令注册
func TestRootCmd_Subcommands(t *testing.T) {
	root := cmd.GetRootCmd()
	assert.Equal(t, "videoflow-gin", root.Use)

	for _, name := range []string{"server", "migrate", "sweep"} {
		sub, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}

	server, _, err := root.Find([]string{"server"})
	require.NoError(t, err)
	assert.NotNil(t, server.Flags().Lookup("host"))
	assert.NotNil(t, server.Flags().Lookup("port"))
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

// TestMigrateCmd 测试 sqlite 迁移
func TestMigrateCmd(t *testing.T) {
	path := writeConfig(t)

	root := cmd.GetRootCmd()
	root.SetArgs([]string{"migrate", "--config", path})
	require.NoError(t, root.Execute())

	_, err := os.Stat(filepath.Join(filepath.Dir(path), "videoflow.db"))
	assert.NoError(t, err)
}

// TestSweepCmd 测试单次巡检输出
func TestSweepCmd(t *testing.T) {
	path := writeConfig(t)

	var out bytes.Buffer
	root := cmd.GetRootCmd()
	root.SetOut(&out)
	defer root.SetOut(nil)
	root.SetArgs([]string{"sweep", "--config", path})
	require.NoError(t, root.Execute())

	var summary map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
	assert.NotEmpty(t, summary)
}

// TestMigrateCmd_InvalidConfig 测试非法配置
func TestMigrateCmd_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: cassandra\n"), 0o600))

	root := cmd.GetRootCmd()
	root.SetArgs([]string{"migrate", "--config", path})
	assert.Error(t, root.Execute())
}
