package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"GEMINI_API_KEY", "GOOGLE_API_KEY", "AI_CANVAS_LOCAL_ENDPOINT", "AI_CANVAS_DATA_DIR", "AI_CANVAS_LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	t.Run("ファイルがなければ既定値", func(t *testing.T) {
		clearEnv(t)
		cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		require.NoError(t, err)
		assert.Equal(t, 25, cfg.Local.Steps)
		assert.Equal(t, 7.0, cfg.Local.CFGScale)
		assert.Equal(t, "http://127.0.0.1:7860/sdapi/v1/txt2img", cfg.Local.Endpoint)
		assert.NoError(t, cfg.Validate())
		assert.False(t, cfg.HasGeminiKey())
	})

	t.Run("YAMLで上書きし未指定の項目は既定値のまま", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), "config.yaml")
		yml := `
gemini:
  api_key: from-file
  requests_per_minute: 2
local:
  steps: 40
  timeout: 90s
  negative_prompt: "lowres, watermark"
storage:
  data_dir: /tmp/canvas
log:
  level: debug
  format: json
`
		require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "from-file", cfg.Gemini.APIKey)
		assert.Equal(t, 2, cfg.Gemini.RequestsPerMinute)
		assert.Equal(t, 40, cfg.Local.Steps)
		assert.Equal(t, 7.0, cfg.Local.CFGScale)
		assert.Equal(t, 90*time.Second, cfg.Local.Timeout)
		assert.Equal(t, "lowres, watermark", cfg.Local.NegativePrompt)
		assert.Equal(t, "/tmp/canvas/history.db", cfg.HistoryPath())
		assert.Equal(t, "/tmp/canvas/local.db", cfg.LocalStorePath())
		assert.Equal(t, "/tmp/canvas/cache", cfg.CacheDir())
		assert.Equal(t, slog.LevelDebug, cfg.LogLevel())
	})

	t.Run("環境変数が優先される", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("gemini:\n  api_key: from-file\n"), 0o644))
		t.Setenv("GEMINI_API_KEY", "from-env")
		t.Setenv("AI_CANVAS_DATA_DIR", "/data")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.Gemini.APIKey)
		assert.Equal(t, "/data", cfg.Storage.DataDir)
	})

	t.Run("GOOGLE_API_KEY は未設定のときだけ使う", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GOOGLE_API_KEY", "google")
		cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "google", cfg.Gemini.APIKey)
	})

	t.Run("壊れたYAMLはエラー", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("local: [unclosed"), 0o644))
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"steps が小さすぎる", func(c *Config) { c.Local.Steps = 0 }},
		{"steps が大きすぎる", func(c *Config) { c.Local.Steps = 101 }},
		{"cfg_scale が範囲外", func(c *Config) { c.Local.CFGScale = 25 }},
		{"endpoint が URL でない", func(c *Config) { c.Local.Endpoint = "localhost:7860" }},
		{"RPM が負", func(c *Config) { c.Gemini.RequestsPerMinute = -1 }},
		{"data_dir が空", func(c *Config) { c.Storage.DataDir = "" }},
		{"不明なログレベル", func(c *Config) { c.Log.Level = "verbose" }},
		{"不明なログ形式", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfig_Save(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Local.Steps = 50
	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50, loaded.Local.Steps)
}
