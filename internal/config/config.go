package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvLocal      = "local"
	EnvProduction = "production"

	// DefaultLocalBaseURL is the backend address used during local development.
	DefaultLocalBaseURL = "http://localhost:8000"
	defaultConfigFile   = "guidechat.json"
)

// Config represents runtime configuration for the client.
type Config struct {
	Environment  string                    `json:"environment"`
	BaseURL      string                    `json:"base_url"`
	LocalBaseURL string                    `json:"local_base_url"`
	LogLevel     string                    `json:"log_level"`
	LogFile      string                    `json:"log_file"`
	NodeID       int64                     `json:"node_id"`
	BasicConfig  BasicConfig               `json:"basic_config"`
	Redis        RedisConfig               `json:"redis"`
	Journal      JournalConfig             `json:"journal"`
	Databases    map[string]DatabaseConfig `json:"databases"`
	QuickAsks    []string                  `json:"quick_asks"`
}

type BasicConfig struct {
	ServerAddress      string `json:"server_address"`
	HealthTimeoutSecs  int    `json:"health_timeout_seconds"`
	TurnTimeoutSecs    int    `json:"turn_timeout_seconds"`
	EventBufferSize    int    `json:"event_buffer_size"`
	PreviewLengthChars int    `json:"preview_length"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Channel  string `json:"channel"`
}

type JournalConfig struct {
	Enabled bool   `json:"enabled"`
	Driver  string `json:"driver"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

// Load reads configuration from the provided path (defaults to guidechat.json).
// A missing default file is not an error; an explicitly named one is.
// Values from a .env file and GUIDECHAT_* variables override the file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	explicit := path != ""
	if !explicit {
		path = defaultConfigFile
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	var cfg Config
	file, err := os.Open(absPath)
	switch {
	case err == nil:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	for name, db := range cfg.Databases {
		if strings.HasPrefix(name, "sqlite") && db.DSN != "" && db.DSN != ":memory:" && !filepath.IsAbs(db.DSN) {
			db.DSN = filepath.Join(filepath.Dir(absPath), db.DSN)
			cfg.Databases[name] = db
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GUIDECHAT_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("GUIDECHAT_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("GUIDECHAT_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("GUIDECHAT_LOG_FILE"); v != "" {
		c.LogFile = v
	}
}

func (c *Config) applyDefaults() {
	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
	if c.Environment == "" {
		c.Environment = EnvLocal
	}
	if c.LocalBaseURL == "" {
		c.LocalBaseURL = DefaultLocalBaseURL
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = ":8090"
	}
	if c.BasicConfig.HealthTimeoutSecs <= 0 {
		c.BasicConfig.HealthTimeoutSecs = 10
	}
	if c.BasicConfig.EventBufferSize <= 0 {
		c.BasicConfig.EventBufferSize = 64
	}
	if c.BasicConfig.PreviewLengthChars <= 0 {
		c.BasicConfig.PreviewLengthChars = 150
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = "guidechat:events"
	}
	if c.Journal.Driver == "" {
		c.Journal.Driver = "sqlite3"
	}
}

// Validate reports configuration that cannot produce a working client.
func (c *Config) Validate() error {
	if !c.IsLocal() && strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("base_url must be configured for environment %q", c.Environment)
	}
	if c.NodeID < 0 || c.NodeID > 1023 {
		return fmt.Errorf("node_id must be between 0 and 1023, got %d", c.NodeID)
	}
	if c.Journal.Enabled {
		if _, ok := c.Databases[c.Journal.Driver]; !ok {
			return fmt.Errorf("database config for journal driver %s not found", c.Journal.Driver)
		}
	}
	return nil
}

// IsLocal reports whether the client runs against a local development backend.
func (c *Config) IsLocal() bool {
	return c.Environment == EnvLocal
}

// BackendURL selects the backend base address: the local development
// address when running locally, the configured deployment origin otherwise.
func (c *Config) BackendURL() string {
	if c.IsLocal() {
		return strings.TrimRight(c.LocalBaseURL, "/")
	}
	return strings.TrimRight(c.BaseURL, "/")
}

func (c *Config) HealthTimeout() time.Duration {
	return time.Duration(c.BasicConfig.HealthTimeoutSecs) * time.Second
}

// TurnTimeout is zero when turns may run indefinitely.
func (c *Config) TurnTimeout() time.Duration {
	if c.BasicConfig.TurnTimeoutSecs <= 0 {
		return 0
	}
	return time.Duration(c.BasicConfig.TurnTimeoutSecs) * time.Second
}
