// Package config は YAML の設定ファイルと環境変数から ai-canvas の設定を読み込みます。
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shouni/ai-canvas/pkg/aiclient"
	"github.com/shouni/ai-canvas/pkg/sdapi"
)

const (
	MinSteps    = 1
	MaxSteps    = 100
	MinCFGScale = 1.0
	MaxCFGScale = 20.0
)

// Config は ai-canvas 全体の設定です。
type Config struct {
	Gemini  GeminiConfig  `yaml:"gemini"`
	Local   LocalConfig   `yaml:"local"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// GeminiConfig は Gemini API の設定です。
type GeminiConfig struct {
	APIKey            string        `yaml:"api_key"`
	ImageModel        string        `yaml:"image_model"`
	TextModel         string        `yaml:"text_model"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	MaxRetries        uint64        `yaml:"max_retries"`
	ReferenceTimeout  time.Duration `yaml:"reference_timeout"`
	ReferenceCacheTTL time.Duration `yaml:"reference_cache_ttl"`
}

// LocalConfig はローカル Stable Diffusion サーバーの設定です。
type LocalConfig struct {
	Endpoint        string        `yaml:"endpoint"`
	Steps           int           `yaml:"steps"`
	CFGScale        float64       `yaml:"cfg_scale"`
	NegativePrompt  string        `yaml:"negative_prompt"`
	CheckpointModel string        `yaml:"checkpoint_model"`
	Timeout         time.Duration `yaml:"timeout"`
}

// StorageConfig はデータの保存先です。
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// LogConfig はログ出力の設定です。
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default は既定値の設定を返します。
func Default() *Config {
	return &Config{
		Gemini: GeminiConfig{
			ImageModel:        aiclient.DefaultImageModel,
			TextModel:         aiclient.DefaultTextModel,
			RequestsPerMinute: 10,
			MaxRetries:        3,
			ReferenceTimeout:  30 * time.Second,
			ReferenceCacheTTL: 30 * time.Minute,
		},
		Local: LocalConfig{
			Endpoint: sdapi.DefaultEndpoint,
			Steps:    25,
			CFGScale: 7,
			Timeout:  5 * time.Minute,
		},
		Storage: StorageConfig{DataDir: defaultDataDir()},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ai-canvas"
	}
	return filepath.Join(home, ".ai-canvas")
}

// DefaultPath は設定ファイルの既定の場所です。
func DefaultPath() string {
	return filepath.Join(defaultDataDir(), "config.yaml")
}

// Load は path の YAML を既定値に重ねて読み込み、環境変数で上書きします。
// ファイルがなければ既定値を使います。
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save は設定を YAML で書き出します。
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	// API キーを含むので本人だけが読めるようにする
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Gemini.APIKey = key
	} else if key := os.Getenv("GOOGLE_API_KEY"); key != "" && c.Gemini.APIKey == "" {
		c.Gemini.APIKey = key
	}
	if ep := os.Getenv("AI_CANVAS_LOCAL_ENDPOINT"); ep != "" {
		c.Local.Endpoint = ep
	}
	if dir := os.Getenv("AI_CANVAS_DATA_DIR"); dir != "" {
		c.Storage.DataDir = dir
	}
	if lvl := os.Getenv("AI_CANVAS_LOG_LEVEL"); lvl != "" {
		c.Log.Level = lvl
	}
}

// Validate は値の範囲を確認します。
func (c *Config) Validate() error {
	var errs []error

	if c.Local.Steps < MinSteps || c.Local.Steps > MaxSteps {
		errs = append(errs, fmt.Errorf("local.steps must be between %d and %d (got %d)", MinSteps, MaxSteps, c.Local.Steps))
	}
	if c.Local.CFGScale < MinCFGScale || c.Local.CFGScale > MaxCFGScale {
		errs = append(errs, fmt.Errorf("local.cfg_scale must be between %.0f and %.0f (got %g)", MinCFGScale, MaxCFGScale, c.Local.CFGScale))
	}
	if u, err := url.Parse(c.Local.Endpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("local.endpoint must be an http(s) URL (got %q)", c.Local.Endpoint))
	}
	if c.Gemini.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("gemini.requests_per_minute must not be negative"))
	}
	if c.Storage.DataDir == "" {
		errs = append(errs, errors.New("storage.data_dir is required"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json (got %q)", c.Log.Format))
	}

	return errors.Join(errs...)
}

// HasGeminiKey は Gemini API キーが設定されているかを返します。
func (c *Config) HasGeminiKey() bool {
	return c.Gemini.APIKey != ""
}

// HistoryPath は画像履歴データベースのパスです。
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Storage.DataDir, "history.db")
}

// LocalStorePath はプロンプトとチェックポイントを置くデータベースのパスです。
func (c *Config) LocalStorePath() string {
	return filepath.Join(c.Storage.DataDir, "local.db")
}

// CacheDir は参照画像のディスクキャッシュのディレクトリです。
func (c *Config) CacheDir() string {
	return filepath.Join(c.Storage.DataDir, "cache")
}

// LogLevel は slog のレベルを返します。不正な値は Info になります。
func (c *Config) LogLevel() slog.Level {
	lvl, err := parseLevel(c.Log.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}
