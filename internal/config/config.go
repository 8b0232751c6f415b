package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"clinicsync/backend"
	"clinicsync/internal/utils"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	_ "embed"
)

var configOnce sync.Once

var globalConfig *Config

var customConfigPath string // Custom config path set via --config flag

//go:embed config.sample.yaml
var sampleConfig []byte

const (
	CONFIG_DIR_PATH  = "clinicsync"
	CONFIG_FILE_PATH = "config.yaml"
	CONFIG_DIR_PERM  = 0755
	CONFIG_FILE_PERM = 0600
)

// Environment overrides
const (
	EnvRemoteURL       = "CLINICSYNC_REMOTE_URL"
	EnvRemoteAccessKey = "CLINICSYNC_REMOTE_ACCESS_KEY"
	EnvDatabasePath    = "CLINICSYNC_DB_PATH"
)

// DefaultIntervalMinutes is the auto-sync period when none is configured
const DefaultIntervalMinutes = 5

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Remote    RemoteConfig    `yaml:"remote"`
	Sync      SyncConfig      `yaml:"sync"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// DatabaseConfig locates the local SQLite file
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RemoteConfig describes the hosted backend. An empty URL means local-only.
type RemoteConfig struct {
	Type      string `yaml:"type" validate:"oneof=rest postgres"`
	URL       string `yaml:"url" validate:"omitempty,url"`
	AccessKey string `yaml:"access_key"`
}

// SyncConfig controls the auto-sync loop and the realtime bridge
type SyncConfig struct {
	AutoSync        bool `yaml:"auto_sync"`
	IntervalMinutes int  `yaml:"interval_minutes" validate:"min=1"`
	Realtime        bool `yaml:"realtime"`
}

// DashboardConfig controls the websocket event fan-out server
type DashboardConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port" validate:"min=1,max=65535"`
}

// LoggingConfig controls verbosity and the rotating log file
type LoggingConfig struct {
	Verbose    bool   `yaml:"verbose"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"min=0"`
	MaxBackups int    `yaml:"max_backups" validate:"min=0"`
}

// TracingConfig selects the span exporter
type TracingConfig struct {
	Exporter     string `yaml:"exporter" validate:"oneof=none stdout otlp"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Default returns the configuration used when no file exists
func Default() *Config {
	return &Config{
		Remote: RemoteConfig{Type: "rest"},
		Sync: SyncConfig{
			AutoSync:        true,
			IntervalMinutes: DefaultIntervalMinutes,
			Realtime:        true,
		},
		Dashboard: DashboardConfig{Port: 8765},
		Logging:   LoggingConfig{MaxSizeMB: 10, MaxBackups: 3},
		Tracing:   TracingConfig{Exporter: "none"},
	}
}

// applyDefaults fills fields left empty by a partial config file
func (c *Config) applyDefaults() {
	def := Default()
	if c.Remote.Type == "" {
		c.Remote.Type = def.Remote.Type
	}
	if c.Sync.IntervalMinutes == 0 {
		c.Sync.IntervalMinutes = def.Sync.IntervalMinutes
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = def.Dashboard.Port
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = def.Logging.MaxSizeMB
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = def.Tracing.Exporter
	}
}

// applyEnv lets environment variables override file values
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvRemoteURL); v != "" {
		c.Remote.URL = v
	}
	if v := os.Getenv(EnvRemoteAccessKey); v != "" {
		c.Remote.AccessKey = v
	}
	if v := os.Getenv(EnvDatabasePath); v != "" {
		c.Database.Path = v
	}
}

func (c Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return utils.ErrInvalidConfig(fe.Namespace(), fmt.Sprintf("failed '%s' check (value %v)", fe.Tag(), fe.Value()))
		}
		return err
	}

	if c.Tracing.Exporter == "otlp" && c.Tracing.OTLPEndpoint == "" {
		return utils.ErrInvalidConfig("tracing.otlp_endpoint", "required when exporter is otlp")
	}
	return nil
}

// Interval returns the auto-sync period
func (c *Config) Interval() time.Duration {
	if c.Sync.IntervalMinutes < 1 {
		return DefaultIntervalMinutes * time.Minute
	}
	return time.Duration(c.Sync.IntervalMinutes) * time.Minute
}

// RemoteBackendConfig returns the remote settings in the form the backend registry takes.
// accessKey replaces the file value when non-empty (resolved credentials).
func (c *Config) RemoteBackendConfig(accessKey string) backend.RemoteConfig {
	key := c.Remote.AccessKey
	if accessKey != "" {
		key = accessKey
	}
	return backend.RemoteConfig{
		Type:      c.Remote.Type,
		URL:       c.Remote.URL,
		AccessKey: key,
	}
}

// RemoteHost returns the host part of the remote URL, used to key stored credentials
func (c *Config) RemoteHost() string {
	u, err := url.Parse(c.Remote.URL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// DatabasePath returns the configured database path, resolved to an absolute path.
// Empty means the store's default location.
func (c *Config) DatabasePath() (string, error) {
	return utils.ResolvePath(c.Database.Path)
}

// LogFile returns the configured log file path, resolved
func (c *Config) LogFile() (string, error) {
	return utils.ResolvePath(c.Logging.File)
}

// LoadDotEnv loads a .env file from the working directory if one exists.
// Variables already set in the environment win.
func LoadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	return godotenv.Load(".env")
}

// SetCustomConfigPath sets a custom config path to use instead of the default user config directory.
// If path is a directory, it looks for "config.yaml" inside it.
// This must be called before GetConfig() is called for the first time.
func SetCustomConfigPath(path string) {
	if path == "" || path == "." {
		customConfigPath = filepath.Join(".", CONFIG_DIR_PATH, CONFIG_FILE_PATH)
		return
	}
	info, err := os.Stat(path)
	if err == nil && info.IsDir() {
		customConfigPath = filepath.Join(path, CONFIG_FILE_PATH)
	} else {
		customConfigPath = path
	}
}

// GetConfig loads the configuration once per process.
// When no file exists and stdin is a terminal, the user is offered a copy of the sample.
func GetConfig() *Config {
	configOnce.Do(func() {
		configPath, err := GetConfigPath()
		if err != nil {
			log.Fatal(err)
		}
		if _, err := os.Stat(configPath); os.IsNotExist(err) && term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Println("No config exists at", configPath)
			if utils.PromptYesNo("Do you want to copy the config sample to " + configPath + "?") {
				if err := WriteSample(configPath); err != nil {
					log.Fatal(err)
				}
			}
		}
		cfg, err := Load(configPath)
		if err != nil {
			log.Fatal(err)
		}
		globalConfig = cfg
	})
	return globalConfig
}

// GetConfigPath returns the config file path, honoring --config
func GetConfigPath() (string, error) {
	if customConfigPath != "" {
		return customConfigPath, nil
	}

	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config dir: %w", err)
	}
	return filepath.Join(dir, CONFIG_DIR_PATH, CONFIG_FILE_PATH), nil
}

// Load reads, defaults, overrides and validates the config at path.
// A missing file yields the sample configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		data = sampleConfig
	} else if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML config data and finishes it with defaults and env overrides
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, utils.WrapWithSuggestion(
			fmt.Errorf("invalid YAML in config: %w", err),
			"Compare your file with 'clinicsync config sample'",
		)
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Sample returns the embedded sample configuration
func Sample() []byte {
	return sampleConfig
}

// WriteSample writes the sample config to path, creating its directory
func WriteSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), CONFIG_DIR_PERM); err != nil {
		return err
	}
	return WriteConfigFile(path, sampleConfig)
}

func WriteConfigFile(configPath string, data []byte) error {
	return os.WriteFile(configPath, data, CONFIG_FILE_PERM)
}
