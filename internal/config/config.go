package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DBConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Payments PaymentsConfig
	Log      LogConfig
	CORS     CORSConfig
}

type ServerConfig struct {
	Port            string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// DBConfig holds database configuration
type DBConfig struct {
	Driver          string // postgres or sqlite3
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	Path            string // sqlite3 only
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns the lib/pq connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// URL returns the postgres:// form used by pgx.
func (c DBConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

type JWTConfig struct {
	SecretKey string
}

type PaymentsConfig struct {
	ConflictRetries   int
	RetryBaseDelay    time.Duration
	HookTimeout       time.Duration
	NotificationQueue string
}

type LogConfig struct {
	Level       string
	Environment string
}

// CORSConfig lists the browser origins allowed to call the API with
// credentials. Empty means same-origin only.
type CORSConfig struct {
	AllowedOrigins []string
}

var bindings = map[string]string{
	"server.port":                 "PORT",
	"server.request_timeout":      "SERVER_REQUEST_TIMEOUT",
	"server.shutdown_timeout":     "SERVER_SHUTDOWN_TIMEOUT",
	"database.driver":             "DATABASE_DRIVER",
	"database.host":               "DATABASE_HOST",
	"database.port":               "DATABASE_PORT",
	"database.user":               "DATABASE_USER",
	"database.password":           "DATABASE_PASSWORD",
	"database.name":               "DATABASE_NAME",
	"database.ssl_mode":           "DATABASE_SSL_MODE",
	"database.path":               "DATABASE_PATH",
	"database.max_open_conns":     "DATABASE_MAX_OPEN_CONNS",
	"database.max_idle_conns":     "DATABASE_MAX_IDLE_CONNS",
	"database.conn_max_lifetime":  "DATABASE_CONN_MAX_LIFETIME",
	"redis.enabled":               "REDIS_ENABLED",
	"redis.host":                  "REDIS_HOST",
	"redis.port":                  "REDIS_PORT",
	"redis.password":              "REDIS_PASSWORD",
	"redis.db":                    "REDIS_DB",
	"jwt.secret_key":              "JWT_SECRET_KEY",
	"payments.conflict_retries":   "PAYMENTS_CONFLICT_RETRIES",
	"payments.retry_base_delay":   "PAYMENTS_RETRY_BASE_DELAY",
	"payments.hook_timeout":       "PAYMENTS_HOOK_TIMEOUT",
	"payments.notification_queue": "PAYMENTS_NOTIFICATION_QUEUE",
	"log.level":                   "LOG_LEVEL",
	"log.environment":             "ENV",
	"cors.allowed_origins":        "CORS_ALLOWED_ORIGINS",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.request_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.name", "havenstay")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.path", "havenstay.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("payments.conflict_retries", 3)
	v.SetDefault("payments.retry_base_delay", 10*time.Millisecond)
	v.SetDefault("payments.hook_timeout", 5*time.Second)
	v.SetDefault("payments.notification_queue", "payment_notifications")

	v.SetDefault("log.level", "")
	v.SetDefault("log.environment", "production")

	v.SetDefault("cors.allowed_origins", []string{})
}

// Load reads the .env file (if any) and the environment into a Config.
// Environment variables override the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil && !isMissing(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		// .env keys are flat (DATABASE_HOST); the process environment still wins
		for key, env := range bindings {
			if raw := v.Get(strings.ToLower(env)); raw != nil {
				v.SetDefault(key, raw)
			}
		}
	}
	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetString("server.port"),
			RequestTimeout:  v.GetDuration("server.request_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Database: DBConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetString("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			Name:            v.GetString("database.name"),
			SSLMode:         v.GetString("database.ssl_mode"),
			Path:            v.GetString("database.path"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetString("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			SecretKey: v.GetString("jwt.secret_key"),
		},
		Payments: PaymentsConfig{
			ConflictRetries:   v.GetInt("payments.conflict_retries"),
			RetryBaseDelay:    v.GetDuration("payments.retry_base_delay"),
			HookTimeout:       v.GetDuration("payments.hook_timeout"),
			NotificationQueue: v.GetString("payments.notification_queue"),
		},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Environment: v.GetString("log.environment"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(v.GetStringSlice("cors.allowed_origins")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitList accepts both space and comma separated env values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

func isMissing(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "postgres", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("database.driver must be postgres or sqlite3, got %q", c.Database.Driver))
	}
	if c.JWT.SecretKey == "" {
		errs = append(errs, errors.New("jwt.secret_key is required"))
	}
	if c.Payments.ConflictRetries < 0 {
		errs = append(errs, errors.New("payments.conflict_retries must not be negative"))
	}
	if c.Payments.HookTimeout <= 0 {
		errs = append(errs, errors.New("payments.hook_timeout must be positive"))
	}
	for _, origin := range c.CORS.AllowedOrigins {
		if strings.Contains(origin, "*") {
			errs = append(errs, fmt.Errorf("cors.allowed_origins must list explicit origins, got %q", origin))
		}
	}
	return errors.Join(errs...)
}
