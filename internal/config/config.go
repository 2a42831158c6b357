package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Config is the resolved tripsync configuration.
type Config struct {
	Remote          RemoteConfig  `toml:"remote"`
	Storage         StorageConfig `toml:"storage"`
	Sync            SyncConfig    `toml:"sync"`
	Breaker         BreakerConfig `toml:"breaker"`
	Log             LogConfig     `toml:"log"`
	Metrics         MetricsConfig `toml:"metrics"`
	CredentialsPath string        `toml:"credentials_path" validate:"required"`
}

type RemoteConfig struct {
	BaseURL        string `toml:"base_url" validate:"required,url"`
	TimeoutSeconds int    `toml:"timeout_seconds" validate:"gte=1,lte=300"`
	UserAgent      string `toml:"user_agent"`
}

type StorageConfig struct {
	Path string `toml:"path" validate:"required"`
}

type SyncConfig struct {
	ProbeIntervalSeconds int     `toml:"probe_interval_seconds" validate:"gte=1,lte=3600"`
	ReplayRate           float64 `toml:"replay_rate" validate:"gte=0"`
	MaxAttempts          int     `toml:"max_attempts" validate:"gte=0"`
}

type BreakerConfig struct {
	FailureRatio float64 `toml:"failure_ratio" validate:"gt=0,lte=1"`
	MinRequests  uint32  `toml:"min_requests" validate:"gte=1"`
	OpenSeconds  int     `toml:"open_seconds" validate:"gte=1"`
}

type LogConfig struct {
	Level  string `toml:"level" validate:"oneof=debug info warn error"`
	Format string `toml:"format" validate:"oneof=console json"`
	File   string `toml:"file"`
}

type MetricsConfig struct {
	Addr string `toml:"addr" validate:"omitempty,hostname_port"`
}

const (
	defaultConfigPath      = "~/.config/tripsync/config.toml"
	defaultStoragePath     = "~/.local/share/tripsync/tripsync.db"
	defaultCredentialsPath = "~/.config/tripsync/credentials.toml"
	defaultBaseURL         = "http://127.0.0.1:8787/api"
	defaultTimeoutSeconds  = 10
	defaultProbeSeconds    = 15
	envPrefix              = "TRIPSYNC_"
)

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Remote: RemoteConfig{
			BaseURL:        defaultBaseURL,
			TimeoutSeconds: defaultTimeoutSeconds,
		},
		Storage: StorageConfig{Path: mustExpand(defaultStoragePath)},
		Sync: SyncConfig{
			ProbeIntervalSeconds: defaultProbeSeconds,
		},
		Breaker: BreakerConfig{
			FailureRatio: 0.6,
			MinRequests:  5,
			OpenSeconds:  30,
		},
		Log:             LogConfig{Level: "info", Format: "console"},
		CredentialsPath: mustExpand(defaultCredentialsPath),
	}
}

// Load reads the config file at path (or the default location), applies a
// .env file from the working directory and TRIPSYNC_* environment overrides,
// then validates the result. A missing file yields defaults.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	if err := readFile(resolved, &cfg); err != nil {
		return Config{}, err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// RequestTimeout returns the remote request timeout.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Remote.TimeoutSeconds) * time.Second
}

// ProbeInterval returns the connectivity probe period.
func (c Config) ProbeInterval() time.Duration {
	return time.Duration(c.Sync.ProbeIntervalSeconds) * time.Second
}

// BreakerOpen returns how long the circuit breaker stays open.
func (c Config) BreakerOpen() time.Duration {
	return time.Duration(c.Breaker.OpenSeconds) * time.Second
}

func readFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) error {
		v, ok := os.LookupEnv(envPrefix + key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse %s%s: %w", envPrefix, key, err)
		}
		*dst = n
		return nil
	}

	str("REMOTE_BASE_URL", &cfg.Remote.BaseURL)
	str("REMOTE_USER_AGENT", &cfg.Remote.UserAgent)
	str("STORAGE_PATH", &cfg.Storage.Path)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	str("LOG_FILE", &cfg.Log.File)
	str("METRICS_ADDR", &cfg.Metrics.Addr)
	str("CREDENTIALS_PATH", &cfg.CredentialsPath)

	if err := integer("REMOTE_TIMEOUT_SECONDS", &cfg.Remote.TimeoutSeconds); err != nil {
		return err
	}
	if err := integer("SYNC_PROBE_INTERVAL_SECONDS", &cfg.Sync.ProbeIntervalSeconds); err != nil {
		return err
	}
	if err := integer("SYNC_MAX_ATTEMPTS", &cfg.Sync.MaxAttempts); err != nil {
		return err
	}
	if v, ok := os.LookupEnv(envPrefix + "SYNC_REPLAY_RATE"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("parse %sSYNC_REPLAY_RATE: %w", envPrefix, err)
		}
		cfg.Sync.ReplayRate = f
	}
	return nil
}

func (c *Config) normalize() {
	def := Default()

	c.Remote.BaseURL = strings.TrimSpace(c.Remote.BaseURL)
	if c.Remote.BaseURL == "" {
		c.Remote.BaseURL = def.Remote.BaseURL
	}
	c.Remote.UserAgent = strings.TrimSpace(c.Remote.UserAgent)
	if c.Remote.TimeoutSeconds == 0 {
		c.Remote.TimeoutSeconds = def.Remote.TimeoutSeconds
	}
	if c.Sync.ProbeIntervalSeconds == 0 {
		c.Sync.ProbeIntervalSeconds = def.Sync.ProbeIntervalSeconds
	}

	c.Storage.Path = strings.TrimSpace(c.Storage.Path)
	if c.Storage.Path == "" {
		c.Storage.Path = def.Storage.Path
	}
	if c.Storage.Path != ":memory:" {
		c.Storage.Path = mustExpand(c.Storage.Path)
	}

	c.CredentialsPath = strings.TrimSpace(c.CredentialsPath)
	if c.CredentialsPath == "" {
		c.CredentialsPath = def.CredentialsPath
	}
	c.CredentialsPath = mustExpand(c.CredentialsPath)

	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
	if file := strings.TrimSpace(c.Log.File); file != "" {
		c.Log.File = mustExpand(file)
	}
	c.Metrics.Addr = strings.TrimSpace(c.Metrics.Addr)
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		if env := strings.TrimSpace(os.Getenv(envPrefix + "CONFIG")); env != "" {
			return expandPath(env)
		}
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

// ExpandPath resolves a leading ~ and makes path absolute.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
