// internal/config/config.go
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"ladybug/internal/checkpoint"
	"ladybug/internal/logging"
)

const (
	envPrefix         = "LADYBUG_"
	maxConfigFileSize = 1024 * 1024
)

// sections are the nested config keys; every other env key is top level.
var sections = []string{"log", "compare", "render", "watch"}

// Config holds resolved paths and the user settings.
type Config struct {
	HomeDir    string `koanf:"-"`
	LadybugDir string `koanf:"-"`
	LogDir     string `koanf:"-"`
	ConfigPath string `koanf:"-"`

	CaptureDir string         `koanf:"capture_dir"`
	Log        logging.Config `koanf:"log"`
	Compare    CompareConfig  `koanf:"compare"`
	Render     RenderConfig   `koanf:"render"`
	Watch      WatchConfig    `koanf:"watch"`
}

// CompareConfig configures compare views.
type CompareConfig struct {
	Strategy string `koanf:"strategy"`
}

// RenderConfig configures difference rendering.
type RenderConfig struct {
	CacheSize int `koanf:"cache_size"`
}

// WatchConfig configures the capture watcher.
type WatchConfig struct {
	Debounce time.Duration `koanf:"debounce"`
}

// Load resolves the application paths and reads settings from the config
// file, then from LADYBUG_* environment variables. An empty configPath means
// ~/.ladybug/config.yaml; a missing file is not an error.
func Load(configPath string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	ladybugDir := filepath.Join(home, ".ladybug")
	logDir := filepath.Join(ladybugDir, "logs")

	// Ensure directories exist
	for _, dir := range []string{ladybugDir, logDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	if configPath == "" {
		configPath = filepath.Join(ladybugDir, "config.yaml")
	}

	cfg := defaults(ladybugDir, logDir)
	cfg.HomeDir = home
	cfg.LadybugDir = ladybugDir
	cfg.LogDir = logDir
	cfg.ConfigPath = configPath

	k := koanf.New(".")
	if err := loadFile(k, configPath); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.CaptureDir = expandHome(cfg.CaptureDir, home)
	cfg.Log.File = expandHome(cfg.Log.File, home)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func defaults(ladybugDir, logDir string) *Config {
	logCfg := logging.NewDefaultConfig()
	logCfg.File = filepath.Join(logDir, "ladybug.log")
	return &Config{
		CaptureDir: filepath.Join(ladybugDir, "captures"),
		Log:        *logCfg,
		Compare:    CompareConfig{Strategy: checkpoint.StrategyPath.String()},
		Render:     RenderConfig{CacheSize: 256},
		Watch:      WatchConfig{Debounce: 200 * time.Millisecond},
	}
}

func loadFile(k *koanf.Koanf, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file %s too large: %d bytes", path, info.Size())
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return nil
}

// envKey maps LADYBUG_LOG_LEVEL to log.level and LADYBUG_CAPTURE_DIR to
// capture_dir.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	for _, section := range sections {
		if rest, ok := strings.CutPrefix(key, section+"_"); ok {
			return section + "." + rest
		}
	}
	return key
}

func expandHome(path, home string) string {
	if path == "~" {
		return home
	}
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		return filepath.Join(home, rest)
	}
	return path
}

// Validate checks every setting.
func (c *Config) Validate() error {
	if c.CaptureDir == "" {
		return fmt.Errorf("capture_dir must not be empty")
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if _, err := checkpoint.ParseStrategy(c.Compare.Strategy); err != nil {
		return fmt.Errorf("compare: %w", err)
	}
	if c.Render.CacheSize < 0 {
		return fmt.Errorf("render.cache_size must not be negative")
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}
	return nil
}

// Strategy returns the configured compare strategy.
func (c *Config) Strategy() checkpoint.Strategy {
	s, _ := checkpoint.ParseStrategy(c.Compare.Strategy)
	return s
}
