package config

import (
	"fmt"
	"net/url"
	"time"
)

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Transaction modes for the migration runner
const (
	TransactionPerRevision = "per-revision"
	TransactionSingle      = "single"
)

// Lock drivers guarding concurrent migration runs
const (
	LockAuto     = "auto"
	LockPostgres = "postgres"
	LockLocal    = "local"
	LockRedis    = "redis"
	LockNone     = "none"
)

// Config represents the main application configuration
type Config struct {
	Database   Database   `json:"database" mapstructure:"database"`
	Migrations Migrations `json:"migrations" mapstructure:"migrations"`
	Redis      Redis      `json:"redis" mapstructure:"redis"`
	Server     Server     `json:"server" mapstructure:"server"`
	JWT        JWT        `json:"jwt" mapstructure:"jwt"`
	HTTP       HTTP       `json:"http" mapstructure:"http"`
	Metrics    Metrics    `json:"metrics" mapstructure:"metrics"`
}

// Database represents database configuration
type Database struct {
	Driver          string        `json:"driver" mapstructure:"driver"`
	Host            string        `json:"host" mapstructure:"host"`
	Port            int           `json:"port" mapstructure:"port"`
	User            string        `json:"user" mapstructure:"user"`
	Password        string        `json:"password" mapstructure:"password"`
	DBName          string        `json:"dbname" mapstructure:"dbname"`
	SSLMode         string        `json:"sslmode" mapstructure:"sslmode"`
	Path            string        `json:"path" mapstructure:"path"`
	MaxConnections  int           `json:"max_connections" mapstructure:"max_connections"`
	MaxIdleConns    int           `json:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
	LogLevel        string        `json:"log_level" mapstructure:"log_level"`
}

// Migrations configures the revision runner
type Migrations struct {
	VersionTable    string `json:"version_table" mapstructure:"version_table"`
	HistoryTable    string `json:"history_table" mapstructure:"history_table"`
	TransactionMode string `json:"transaction_mode" mapstructure:"transaction_mode"`
	Lock            Lock   `json:"lock" mapstructure:"lock"`
}

// Lock configures the exclusive lock held for a whole upgrade or downgrade
type Lock struct {
	Driver  string        `json:"driver" mapstructure:"driver"`
	Key     string        `json:"key" mapstructure:"key"`
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
	TTL     time.Duration `json:"ttl" mapstructure:"ttl"`
}

// Redis represents the Redis connection used by the redis lock driver
type Redis struct {
	Addr     string `json:"addr" mapstructure:"addr"`
	Password string `json:"password" mapstructure:"password"`
	DB       int    `json:"db" mapstructure:"db"`
}

// Server represents process level configuration
type Server struct {
	LogLevel string `json:"log_level" mapstructure:"log_level"`
	Debug    bool   `json:"debug" mapstructure:"debug"`
	LogFile  string `json:"log_file" mapstructure:"log_file"`
}

// JWT represents JWT configuration
type JWT struct {
	Secret string        `json:"secret" mapstructure:"secret"`
	Issuer string        `json:"issuer" mapstructure:"issuer"`
	TTL    time.Duration `json:"ttl" mapstructure:"ttl"`
}

// HTTP represents HTTP server configuration
type HTTP struct {
	Port         int      `json:"port" mapstructure:"port"`
	AllowOrigins []string `json:"allow_origins" mapstructure:"allow_origins"`
}

// Metrics represents Prometheus exposition configuration
type Metrics struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	Namespace string `json:"namespace" mapstructure:"namespace"`
}

// NewDefault returns a Config instance with default values
func NewDefault() *Config {
	return &Config{
		Database: Database{
			Driver:          DriverPostgres,
			Host:            "localhost",
			Port:            5432,
			User:            "postgres",
			Password:        "",
			DBName:          "postgres",
			SSLMode:         "disable",
			Path:            "revchain.db",
			MaxConnections:  25,
			MaxIdleConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 1 * time.Minute,
			LogLevel:        "silent",
		},
		Migrations: Migrations{
			VersionTable:    "schema_version",
			HistoryTable:    "schema_migration_history",
			TransactionMode: TransactionPerRevision,
			Lock: Lock{
				Driver:  LockAuto,
				Key:     "revchain",
				Timeout: 30 * time.Second,
				TTL:     10 * time.Minute,
			},
		},
		Redis: Redis{
			Addr: "localhost:6379",
		},
		Server: Server{
			LogLevel: "info",
			Debug:    false,
		},
		JWT: JWT{
			Secret: "change-me-in-production",
			Issuer: "revchain",
			TTL:    24 * time.Hour,
		},
		HTTP: HTTP{
			Port:         8082,
			AllowOrigins: []string{"http://localhost:3000"},
		},
		Metrics: Metrics{
			Enabled:   true,
			Namespace: "revchain",
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := c.Database.validate(); err != nil {
		return err
	}
	if err := c.Migrations.validate(c.Database.Driver); err != nil {
		return err
	}
	if c.Migrations.Lock.Driver == LockRedis && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required for the redis lock driver")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
	}
	if !validLogLevels[c.Server.LogLevel] {
		return fmt.Errorf("invalid log level: %s", c.Server.LogLevel)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret cannot be empty")
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}

	return nil
}

func (d Database) validate() error {
	switch d.Driver {
	case DriverPostgres:
		if d.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if d.Port <= 0 || d.Port > 65535 {
			return fmt.Errorf("database port must be between 1 and 65535")
		}
		if d.User == "" {
			return fmt.Errorf("database user is required")
		}
		if d.DBName == "" {
			return fmt.Errorf("database name is required")
		}
	case DriverSQLite:
		if d.Path == "" {
			return fmt.Errorf("database path is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver: %q", d.Driver)
	}

	if d.MaxConnections <= 0 {
		return fmt.Errorf("max connections must be greater than 0")
	}
	if d.MaxIdleConns < 0 {
		return fmt.Errorf("max idle connections cannot be negative")
	}
	if d.MaxIdleConns > d.MaxConnections {
		return fmt.Errorf("max idle connections cannot exceed max connections")
	}
	return nil
}

func (m Migrations) validate(driver string) error {
	if m.VersionTable == "" {
		return fmt.Errorf("migrations version table is required")
	}
	if m.HistoryTable == "" {
		return fmt.Errorf("migrations history table is required")
	}
	if m.VersionTable == m.HistoryTable {
		return fmt.Errorf("migrations version and history tables must differ")
	}

	switch m.TransactionMode {
	case TransactionPerRevision, TransactionSingle:
	default:
		return fmt.Errorf("invalid transaction mode: %q", m.TransactionMode)
	}

	switch m.Lock.Driver {
	case LockAuto, LockLocal, LockRedis, LockNone:
	case LockPostgres:
		if driver != DriverPostgres {
			return fmt.Errorf("postgres lock driver requires the postgres database driver")
		}
	default:
		return fmt.Errorf("invalid lock driver: %q", m.Lock.Driver)
	}

	if m.Lock.Driver != LockNone && m.Lock.Key == "" {
		return fmt.Errorf("lock key is required")
	}
	if m.Lock.Timeout < 0 {
		return fmt.Errorf("lock timeout cannot be negative")
	}
	return nil
}

// LockDriver resolves the auto lock driver against the database driver.
func (c *Config) LockDriver() string {
	if c.Migrations.Lock.Driver != LockAuto {
		return c.Migrations.Lock.Driver
	}
	if c.Database.Driver == DriverPostgres {
		return LockPostgres
	}
	return LockLocal
}

// DatabaseURL constructs a PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	params := url.Values{}
	params.Set("sslmode", c.Database.SSLMode)

	var userInfo *url.Userinfo
	if c.Database.Password == "" {
		userInfo = url.User(c.Database.User)
	} else {
		userInfo = url.UserPassword(c.Database.User, c.Database.Password)
	}

	u := &url.URL{
		Scheme:   "postgres",
		User:     userInfo,
		Host:     fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port),
		Path:     c.Database.DBName,
		RawQuery: params.Encode(),
	}

	return u.String()
}

// DatabaseMap converts the database section into the settings map consumed
// by database.NewDatabase.
func (c *Config) DatabaseMap() map[string]interface{} {
	return map[string]interface{}{
		"driver":             c.Database.Driver,
		"host":               c.Database.Host,
		"port":               c.Database.Port,
		"user":               c.Database.User,
		"password":           c.Database.Password,
		"dbname":             c.Database.DBName,
		"sslmode":            c.Database.SSLMode,
		"path":               c.Database.Path,
		"max_open_conns":     c.Database.MaxConnections,
		"max_idle_conns":     c.Database.MaxIdleConns,
		"conn_max_lifetime":  c.Database.ConnMaxLifetime.String(),
		"conn_max_idle_time": c.Database.ConnMaxIdleTime.String(),
		"log_level":          c.Database.LogLevel,
	}
}
