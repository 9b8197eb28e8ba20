package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	JWT       JWTConfig       `yaml:"jwt"`
	Log       LogConfig       `yaml:"log"`
	Import    ImportConfig    `yaml:"import"`
	Promotion PromotionConfig `yaml:"promotion"`
	Fields    FieldsConfig    `yaml:"fields"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, mysql, postgres
	DSN    string `yaml:"dsn"`
}

// JWTConfig controls bearer-token actor identification. When Enabled is
// false every request runs as the anonymous actor (user id 0).
type JWTConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Secret     string `yaml:"secret"`
	ExpireHour int    `yaml:"expire_hour"`
}

type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

type ImportConfig struct {
	MaxFileSizeMB int `yaml:"max_file_size_mb"`
	MaxRows       int `yaml:"max_rows"` // 0 = unlimited
}

type PromotionConfig struct {
	MinReasonLength int    `yaml:"min_reason_length"`
	InitialStatus   string `yaml:"initial_status"`   // investor status on creation
	DefaultPriority string `yaml:"default_priority"` // used when the lead has none
	WonStatus       string `yaml:"won_status"`       // lead status after conversion
}

// FieldsConfig tunes the value codec. StrictChoices rejects choice tokens
// that are not among the field's active options.
type FieldsConfig struct {
	StrictChoices bool `yaml:"strict_choices"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type CORSConfig struct {
	AllowOrigins []string `yaml:"allow_origins"`
}

var GlobalConfig *Config

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		// Unmarshal over the defaults so partial files keep sane values
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	cfg.overrideFromEnv()
	cfg.applyFallbacks()
	GlobalConfig = cfg
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: "8080",
			Mode: "debug",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "dealflow.db",
		},
		JWT: JWTConfig{
			Enabled:    false,
			Secret:     "dealflow-secret-key-change-in-production",
			ExpireHour: 24,
		},
		Log: LogConfig{
			Level: "info",
		},
		Import: ImportConfig{
			MaxFileSizeMB: 10,
			MaxRows:       10000,
		},
		Promotion: PromotionConfig{
			MinReasonLength: 10,
			InitialStatus:   "new",
			DefaultPriority: "medium",
			WonStatus:       "closed_won",
		},
		RateLimit: RateLimitConfig{
			RPS:   2,
			Burst: 5,
		},
		CORS: CORSConfig{
			AllowOrigins: []string{"*"},
		},
	}
}

func (c *Config) overrideFromEnv() {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		c.Server.Port = port
	}
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		c.Server.Mode = mode
	}
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		c.JWT.Secret = secret
	}
	if enabled, ok := envBool("AUTH_ENABLED"); ok {
		c.JWT.Enabled = enabled
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if rows, ok := envInt("IMPORT_MAX_ROWS"); ok {
		c.Import.MaxRows = rows
	}
	if n, ok := envInt("PROMOTION_MIN_REASON_LENGTH"); ok {
		c.Promotion.MinReasonLength = n
	}
	if strict, ok := envBool("FIELDS_STRICT_CHOICES"); ok {
		c.Fields.StrictChoices = strict
	}
	// Comma separated list, e.g. "https://crm.example.com,https://admin.example.com"
	if origins := os.Getenv("CORS_ALLOW_ORIGINS"); origins != "" {
		c.CORS.AllowOrigins = splitList(origins)
	}
}

// applyFallbacks fills values a config file may have blanked out.
func (c *Config) applyFallbacks() {
	if c.Import.MaxFileSizeMB <= 0 {
		c.Import.MaxFileSizeMB = 10
	}
	if c.Promotion.InitialStatus == "" {
		c.Promotion.InitialStatus = "new"
	}
	if c.Promotion.DefaultPriority == "" {
		c.Promotion.DefaultPriority = "medium"
	}
	if c.Promotion.WonStatus == "" {
		c.Promotion.WonStatus = "closed_won"
	}
	if len(c.CORS.AllowOrigins) == 0 {
		c.CORS.AllowOrigins = []string{"*"}
	}
}

func envBool(key string) (bool, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

func envInt(key string) (int, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) Save(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}
