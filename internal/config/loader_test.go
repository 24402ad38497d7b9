package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const baseYAML = `
server:
  port: 9090
backend:
  base_url: http://shop.local/api
chat:
  max_pages: 7
  reminder:
    default: 10m
`

func TestLoadConfigFileAndDefaults(t *testing.T) {
	t.Setenv("STOREBOT_ENV", "test")
	path := writeFile(t, t.TempDir(), "config.yaml", baseYAML)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.GetAddr())
	assert.Equal(t, "http://shop.local/api", cfg.Backend.BaseURL)
	assert.Equal(t, 7, cfg.Chat.MaxPages)
	assert.Equal(t, 10*time.Minute, cfg.Chat.Reminder.Default)
	assert.Equal(t, time.Minute, cfg.Chat.Reminder.Min)
	assert.Equal(t, 3, cfg.Chat.RecentLimit)
	assert.Equal(t, 8*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, "chat.transcripts", cfg.Queue.Topic)
	assert.Same(t, cfg, GetConfig())
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("STOREBOT_ENV", "test")
	t.Setenv("STOREBOT_ASSISTANT_API_KEY", "sk-env")
	t.Setenv("STOREBOT_SERVER_PORT", "7070")
	path := writeFile(t, t.TempDir(), "config.yaml", baseYAML)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-env", cfg.Assistant.APIKey)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoadConfigEnvironmentOverlay(t *testing.T) {
	t.Setenv("STOREBOT_ENV", "staging")
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", baseYAML)
	writeFile(t, dir, "config.staging.yaml", "chat:\n  max_pages: 2\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Chat.MaxPages)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10*time.Minute, cfg.Chat.Reminder.Default)
}

func TestLoadConfigValidation(t *testing.T) {
	t.Setenv("STOREBOT_ENV", "test")
	dir := t.TempDir()

	_, err := LoadConfig(writeFile(t, dir, "nobackend.yaml", "server:\n  port: 8080\n"))
	assert.ErrorContains(t, err, "base_url")

	_, err = LoadConfig(writeFile(t, dir, "relative.yaml", "backend:\n  base_url: /api\n"))
	assert.ErrorContains(t, err, "absolute")

	_, err = LoadConfig(writeFile(t, dir, "db.yaml", "backend:\n  base_url: http://x\ndatabase:\n  enabled: true\n  username: ''\n"))
	assert.ErrorContains(t, err, "database username")
}

func TestSetDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Chat.MaxPages)
	assert.Equal(t, 30*time.Minute, cfg.Chat.SessionIdleTTL)
	assert.Equal(t, uint32(5), cfg.CircuitBreak.ConsecutiveFailures)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowOrigins)
	assert.Equal(t, "storebot:secret@tcp(localhost:3306)/shop?charset=utf8mb4&parseTime=true&loc=Local",
		(&DatabaseConfig{Username: "storebot", Password: "secret", Host: "localhost", Port: 3306, DBName: "shop", Charset: "utf8mb4", ParseTime: true, Loc: "Local"}).GetDSN())
}

func TestEnv(t *testing.T) {
	t.Setenv("STOREBOT_ENV", "")
	assert.Equal(t, "dev", Env())
	assert.True(t, IsDevelopment())

	t.Setenv("STOREBOT_ENV", "production")
	assert.True(t, IsProduction())
}
