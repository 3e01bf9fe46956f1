package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Log      LogConfig      `mapstructure:"log"`
	QR       QRConfig       `mapstructure:"qr"`
}

type ServerConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL          string        `mapstructure:"url"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	MaxLifetime  time.Duration `mapstructure:"max_lifetime"`
	AutoMigrate  bool          `mapstructure:"auto_migrate"`
}

type AuthConfig struct {
	Domain        string        `mapstructure:"domain"`
	IssuerURL     string        `mapstructure:"issuer_url"`
	ClientID      string        `mapstructure:"client_id"`
	ClientSecret  string        `mapstructure:"client_secret"`
	SessionSecret string        `mapstructure:"session_secret"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
}

type RedisConfig struct {
	Addr          string        `mapstructure:"addr"`
	CountCacheTTL time.Duration `mapstructure:"count_cache_ttl"`
}

type KafkaConfig struct {
	Brokers           []string `mapstructure:"brokers"`
	TicketIssuedTopic string   `mapstructure:"ticket_issued_topic"`
}

type LogConfig struct {
	Dir   string `mapstructure:"dir"`
	Level string `mapstructure:"level"`
}

type QRConfig struct {
	Size int `mapstructure:"size"`
}

// envBindings maps config keys to the environment variables that set them.
var envBindings = map[string]string{
	"server.base_url":           "BASE_URL",
	"server.port":               "PORT",
	"database.url":              "DATABASE_URL",
	"database.max_open_conns":   "DB_MAX_OPEN_CONNS",
	"database.max_idle_conns":   "DB_MAX_IDLE_CONNS",
	"database.max_lifetime":     "DB_MAX_LIFETIME",
	"database.auto_migrate":     "DB_AUTO_MIGRATE",
	"auth.domain":               "AUTH0_DOMAIN",
	"auth.issuer_url":           "OIDC_ISSUER",
	"auth.client_id":            "AUTH0_CLIENT_ID",
	"auth.client_secret":        "AUTH0_CLIENT_SECRET",
	"auth.session_secret":       "SESSION_SECRET",
	"auth.session_ttl":          "SESSION_TTL",
	"redis.addr":                "REDIS_ADDR",
	"redis.count_cache_ttl":     "COUNT_CACHE_TTL",
	"kafka.brokers":             "KAFKA_BROKERS",
	"kafka.ticket_issued_topic": "KAFKA_TOPIC_TICKET_ISSUED",
	"log.dir":                   "LOG_DIR",
	"log.level":                 "LOG_LEVEL",
	"qr.size":                   "QR_SIZE",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_lifetime", 30*time.Minute)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("auth.session_ttl", 24*time.Hour)
	v.SetDefault("redis.count_cache_ttl", 30*time.Second)
	v.SetDefault("kafka.ticket_issued_topic", "tickets.issued")
	v.SetDefault("log.dir", "logs")
	v.SetDefault("log.level", "info")
	v.SetDefault("qr.size", 256)
}

// Load reads the optional config file at path and overlays the environment.
// The result is not validated.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)
	cfg.Server.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Server.BaseURL), "/")
	if cfg.Auth.IssuerURL == "" && cfg.Auth.Domain != "" {
		cfg.Auth.IssuerURL = issuerFromDomain(cfg.Auth.Domain)
	}
	if cfg.Auth.SessionSecret == "" {
		cfg.Auth.SessionSecret = cfg.Auth.ClientSecret
	}

	return &cfg, nil
}

// Validate reports every missing or malformed required setting.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.BaseURL == "" {
		errs = append(errs, errors.New("BASE_URL is required"))
	} else if u, err := url.Parse(c.Server.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("BASE_URL %q must be an absolute http(s) URL", c.Server.BaseURL))
	}
	if c.Server.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	if c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.Auth.IssuerURL == "" {
		errs = append(errs, errors.New("AUTH0_DOMAIN or OIDC_ISSUER is required"))
	}
	if c.Auth.ClientID == "" {
		errs = append(errs, errors.New("AUTH0_CLIENT_ID is required"))
	}
	if c.Auth.ClientSecret == "" {
		errs = append(errs, errors.New("AUTH0_CLIENT_SECRET is required"))
	}
	if len(c.Auth.SessionSecret) < 16 {
		errs = append(errs, errors.New("SESSION_SECRET must be at least 16 bytes"))
	}
	if c.QR.Size <= 0 {
		errs = append(errs, fmt.Errorf("QR_SIZE must be positive, got %d", c.QR.Size))
	}

	return errors.Join(errs...)
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	if strings.HasPrefix(c.Server.Port, ":") {
		return c.Server.Port
	}
	return ":" + c.Server.Port
}

// SecureCookies reports whether session cookies need the Secure flag.
func (c *Config) SecureCookies() bool {
	return strings.HasPrefix(c.Server.BaseURL, "https://")
}

func issuerFromDomain(domain string) string {
	domain = strings.TrimSpace(domain)
	if !strings.HasPrefix(domain, "http://") && !strings.HasPrefix(domain, "https://") {
		domain = "https://" + domain
	}
	return strings.TrimRight(domain, "/") + "/"
}

// splitList accepts both a YAML list and a single comma-separated env value.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
