package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for takeoff
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Render   RenderConfig   `mapstructure:"render"`
	OCR      OCRConfig      `mapstructure:"ocr"`
	Janitor  JanitorConfig  `mapstructure:"janitor"`
	Security SecurityConfig `mapstructure:"security"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Address      string `mapstructure:"address"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	BodyLimitMB  int    `mapstructure:"body_limit_mb"`
}

// StorageConfig holds the on-disk layout
type StorageConfig struct {
	DataDir     string `mapstructure:"data_dir"`
	UploadDir   string `mapstructure:"upload_dir"`
	InstanceDir string `mapstructure:"instance_dir"`
}

// RenderConfig holds page renderer settings
type RenderConfig struct {
	PdftoppmPath   string `mapstructure:"pdftoppm_path"`
	PdftocairoPath string `mapstructure:"pdftocairo_path"`
	DPI            int    `mapstructure:"dpi"`
	Upscale        int    `mapstructure:"upscale"`
	Timeout        int    `mapstructure:"timeout"`
}

// OCRConfig holds text recognition settings
type OCRConfig struct {
	Engine          string   `mapstructure:"engine"` // "tesseract", "gosseract", "none"
	TesseractPath   string   `mapstructure:"tesseract_path"`
	Languages       []string `mapstructure:"languages"`
	PSM             int      `mapstructure:"psm"`
	Timeout         int      `mapstructure:"timeout"`
	RatePerSecond   float64  `mapstructure:"rate_per_second"`
	Burst           int      `mapstructure:"burst"`
	BreakerFailures int      `mapstructure:"breaker_failures"`
	BreakerTimeout  int      `mapstructure:"breaker_timeout"`
}

// JanitorConfig holds orphan image sweep settings
type JanitorConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// SecurityConfig holds security settings
type SecurityConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// Load loads configuration from file, env, and defaults
func Load(configPath, dataDir string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if dataDir == "" {
		dataDir = ResolveEnvWithAliases("TAKEOFF_STORAGE_DATA_DIR")
	}
	if dataDir == "" {
		dataDir = getDefaultDataDir()
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	v.Set("storage.data_dir", dataDir)
	v.SetDefault("storage.upload_dir", filepath.Join(dataDir, "pdf"))
	v.SetDefault("storage.instance_dir", filepath.Join(dataDir, "instance"))

	if configPath == "" {
		configPath = filepath.Join(dataDir, "takeoff.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Environment variables (TAKEOFF_SERVER_PORT, TAKEOFF_OCR_ENGINE, etc.)
	v.SetEnvPrefix("TAKEOFF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 60)
	v.SetDefault("server.body_limit_mb", 64)

	// 72 DPI keeps one raster pixel per page unit before the upscale.
	v.SetDefault("render.pdftoppm_path", "pdftoppm")
	v.SetDefault("render.pdftocairo_path", "pdftocairo")
	v.SetDefault("render.dpi", 72)
	v.SetDefault("render.upscale", 2)
	v.SetDefault("render.timeout", 30)

	v.SetDefault("ocr.engine", "tesseract")
	v.SetDefault("ocr.tesseract_path", "tesseract")
	v.SetDefault("ocr.languages", []string{"eng"})
	v.SetDefault("ocr.psm", 6)
	v.SetDefault("ocr.timeout", 30)
	v.SetDefault("ocr.rate_per_second", 4.0)
	v.SetDefault("ocr.burst", 4)
	v.SetDefault("ocr.breaker_failures", 5)
	v.SetDefault("ocr.breaker_timeout", 30)

	v.SetDefault("janitor.enabled", true)
	v.SetDefault("janitor.schedule", "@hourly")

	v.SetDefault("security.allow_origins", []string{"*"})
}

func getDefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "takeoff")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}

	return filepath.Join(home, ".local", "share", "takeoff")
}

// loadEnvOverrides applies the short aliases viper's AutomaticEnv does not know about
func loadEnvOverrides(cfg *Config) {
	if port := ResolveEnvWithAliases("TAKEOFF_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	cfg.OCR.TesseractPath = firstNonEmpty(ResolveEnvWithAliases("TAKEOFF_OCR_TESSERACT_PATH"), cfg.OCR.TesseractPath)
	cfg.Render.PdftoppmPath = firstNonEmpty(ResolveEnvWithAliases("TAKEOFF_RENDER_PDFTOPPM_PATH"), cfg.Render.PdftoppmPath)
	cfg.Render.PdftocairoPath = firstNonEmpty(ResolveEnvWithAliases("TAKEOFF_RENDER_PDFTOCAIRO_PATH"), cfg.Render.PdftocairoPath)

	if langs := ResolveEnvWithAliases("TAKEOFF_OCR_LANGUAGES"); langs != "" {
		cfg.OCR.Languages = splitList(langs)
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	if cfg.Storage.UploadDir == "" || cfg.Storage.InstanceDir == "" {
		return fmt.Errorf("storage.upload_dir and storage.instance_dir are required")
	}

	if cfg.Render.DPI <= 0 {
		return fmt.Errorf("render.dpi must be positive")
	}
	if cfg.Render.Upscale < 1 {
		return fmt.Errorf("render.upscale must be at least 1")
	}

	switch cfg.OCR.Engine {
	case "tesseract", "gosseract", "none":
	default:
		return fmt.Errorf("ocr.engine must be one of tesseract, gosseract, none; got %q", cfg.OCR.Engine)
	}

	if len(cfg.OCR.Languages) == 0 {
		cfg.OCR.Languages = []string{"eng"}
	}

	if cfg.Janitor.Enabled && cfg.Janitor.Schedule == "" {
		return fmt.Errorf("janitor.schedule is required when the janitor is enabled")
	}

	return nil
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// RenderTimeout returns the per-command timeout for the page renderer
func (c *Config) RenderTimeout() time.Duration {
	return time.Duration(c.Render.Timeout) * time.Second
}

// OCRTimeout returns the per-call timeout for text recognition
func (c *Config) OCRTimeout() time.Duration {
	return time.Duration(c.OCR.Timeout) * time.Second
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '+' }) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
