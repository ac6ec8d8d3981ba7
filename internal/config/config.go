// internal/config/config.go
//
// Runtime configuration.
// Precedence: built-in defaults, then an optional YAML file named by
// FC_CONFIG_PATH (${VAR} references are expanded), then environment
// variables. main loads .env before calling Load.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DevSecret is the signing secret used when none is configured.
const DevSecret = "dev_secret_change_me"

// Config is the full service configuration.
type Config struct {
	Env      string        `yaml:"env"` // NODE_ENV; "production" hardens cookies and sign-in
	Server   ServerConfig  `yaml:"server"`
	DB       DBConfig      `yaml:"db"`
	Log      LogConfig     `yaml:"log"`
	Auth     AuthConfig    `yaml:"auth"`
	Invites  InviteConfig  `yaml:"invites"`
	Sessions SessionConfig `yaml:"sessions"`
	Redis    RedisConfig   `yaml:"redis"`
	Kafka    KafkaConfig   `yaml:"kafka"`
	Seed     SeedConfig    `yaml:"seed"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	BaseURL         string        `yaml:"base_url"`
	ClientOrigins   []string      `yaml:"client_origins"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DBConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	CookieName    string        `yaml:"cookie_name"`
	SecureCookies bool          `yaml:"secure_cookies"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
	MagicLinkTTL  time.Duration `yaml:"magic_link_ttl"`
	CodeTTL       time.Duration `yaml:"code_ttl"`
	AdminEmails   []string      `yaml:"admin_emails"`
	// ExposeLinks echoes sign-in links in the API response. Development only.
	ExposeLinks   bool          `yaml:"expose_links"`
}

type InviteConfig struct {
	TokenBytes    int           `yaml:"token_bytes"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type SessionConfig struct {
	MaxIdle time.Duration `yaml:"max_idle"`
}

type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type KafkaConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Brokers  []string `yaml:"brokers"`
	Topic    string   `yaml:"topic"`
	ClientID string   `yaml:"client_id"`
}

type SeedConfig struct {
	Demo bool   `yaml:"demo"`
	File string `yaml:"file"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Env: "development",
		Server: ServerConfig{
			Host:            "",
			Port:            5175,
			BaseURL:         "http://localhost:5173",
			ClientOrigins:   []string{"http://localhost:5173"},
			RequestTimeout:  10 * time.Second,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		DB:  DBConfig{Path: "./data/family-connections.db"},
		Log: LogConfig{Level: "info"},
		Auth: AuthConfig{
			JWTSecret:    DevSecret,
			CookieName:   "fc_token",
			SessionTTL:   14 * 24 * time.Hour,
			MagicLinkTTL: 15 * time.Minute,
			CodeTTL:      7 * 24 * time.Hour,
		},
		Invites:  InviteConfig{TokenBytes: 5, SweepInterval: 10 * time.Minute},
		Sessions: SessionConfig{MaxIdle: 24 * time.Hour},
		Redis:    RedisConfig{Addr: "localhost:6379", TTL: 5 * time.Minute},
		Kafka:    KafkaConfig{Topic: "family-connections.events", ClientID: "family-connections"},
	}
}

// Load builds the configuration from defaults, the optional YAML file and
// the environment.
func Load() (Config, error) {
	cfg := Defaults()

	if path := os.Getenv("FC_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	data = []byte(os.ExpandEnv(string(data)))
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("BASE_URL"); v != "" {
		cfg.Server.BaseURL = v
	}
	if v := os.Getenv("CLIENT_ORIGIN"); v != "" {
		cfg.Server.ClientOrigins = splitList(v)
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DB.Path = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("JWT_EXPIRES_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid JWT_EXPIRES_DAYS: %w", err)
		}
		cfg.Auth.SessionTTL = time.Duration(days) * 24 * time.Hour
	}
	if v := os.Getenv("COOKIE_NAME"); v != "" {
		cfg.Auth.CookieName = v
	}
	if v := os.Getenv("NODE_ENV"); v != "" {
		cfg.Env = v
	}
	if cfg.Production() {
		cfg.Auth.SecureCookies = true
	}
	if v := os.Getenv("AUTH_EXPOSE_LINKS"); v != "" {
		expose, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid AUTH_EXPOSE_LINKS: %w", err)
		}
		cfg.Auth.ExposeLinks = expose
	}
	if v := os.Getenv("ADMIN_EMAILS"); v != "" {
		cfg.Auth.AdminEmails = splitList(v)
	}
	if v := os.Getenv("INVITE_SWEEP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid INVITE_SWEEP_INTERVAL: %w", err)
		}
		cfg.Invites.SweepInterval = d
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
		cfg.Kafka.Enabled = true
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		cfg.Kafka.Topic = v
	}
	if v := os.Getenv("SEED_DEMO"); v != "" {
		demo, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SEED_DEMO: %w", err)
		}
		cfg.Seed.Demo = demo
	}
	if v := os.Getenv("SEED_FILE"); v != "" {
		cfg.Seed.File = v
	}
	return nil
}

// Production reports whether the service runs with NODE_ENV=production.
func (c Config) Production() bool { return c.Env == "production" }

// Validate rejects configurations the service cannot start with.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if strings.TrimSpace(c.DB.Path) == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("jwt secret is required")
	}
	if c.Auth.ExposeLinks && c.Production() {
		return fmt.Errorf("auth.expose_links cannot be enabled in production")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka enabled without brokers")
	}
	if c.Invites.TokenBytes < 4 {
		return fmt.Errorf("invites.token_bytes must be at least 4")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
