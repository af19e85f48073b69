package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o644))
	return dir
}

func TestLoadConfigMemoryDriver(t *testing.T) {
	uploads := filepath.Join(t.TempDir(), "uploads")
	dir := writeConfig(t, `
server:
  port: "9090"
  mode: test
database:
  driver: memory
jwt:
  secret: short
  expire_hours: 2
storage:
  type: local
  local_path: `+uploads+`
grading:
  reject_late: true
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 2*time.Hour, cfg.JWT.ExpireTime)
	assert.True(t, cfg.Grading.RejectLate)
	assert.Equal(t, 4, cfg.Jobs.Workers)
	assert.Equal(t, 6000, cfg.RateLimit.MaxRequests)
	assert.Equal(t, 180*time.Second, cfg.AI.Timeout())
	assert.Equal(t, filepath.Join(dir, "config.yaml"), cfg.ConfigFile)

	info, err := os.Stat(uploads)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLoadConfigEnvOverride(t *testing.T) {
	dir := writeConfig(t, `
server:
  mode: test
database:
  driver: memory
storage:
  type: minio
`)
	t.Setenv("AI_PROVIDER", "gemini")
	t.Setenv("JWT_SECRET", "from-env")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.AI.Provider)
	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, 24*time.Hour, cfg.JWT.ExpireTime)
}

func TestLoadConfigRejects(t *testing.T) {
	cases := map[string]string{
		"short secret in release": `
server:
  mode: release
database:
  driver: memory
jwt:
  secret: too-short
storage:
  type: minio
`,
		"unknown driver": `
server:
  mode: test
database:
  driver: sqlite
storage:
  type: minio
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			dir := writeConfig(t, body)
			_, err := LoadConfig(dir)
			assert.Error(t, err)
		})
	}

	viper.Reset()
	_, err := LoadConfig(t.TempDir())
	assert.Error(t, err, "missing config file")
}

func TestAITimeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, AIConfig{TimeoutSeconds: 30}.Timeout())
	assert.Equal(t, 180*time.Second, AIConfig{}.Timeout())
}
