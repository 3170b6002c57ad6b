package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigType("yaml")
	v.SetConfigName("revchain")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/revchain")

		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".revchain"))
		}
	}

	// Defaults are overridden by the config file and env vars
	setDefaults(v)

	v.SetEnvPrefix("REVCHAIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults and env vars still apply
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		if err := parseDatabaseURL(v, dbURL); err != nil {
			return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
	}

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		if err := parseRedisURL(v, redisURL); err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults mirrors NewDefault so that partially specified files still
// produce a complete configuration.
func setDefaults(v *viper.Viper) {
	d := NewDefault()

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.host", d.Database.Host)
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.user", d.Database.User)
	v.SetDefault("database.password", d.Database.Password)
	v.SetDefault("database.dbname", "revchain")
	v.SetDefault("database.sslmode", d.Database.SSLMode)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.max_connections", d.Database.MaxConnections)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.conn_max_idle_time", "10m")
	v.SetDefault("database.log_level", d.Database.LogLevel)

	v.SetDefault("migrations.version_table", d.Migrations.VersionTable)
	v.SetDefault("migrations.history_table", d.Migrations.HistoryTable)
	v.SetDefault("migrations.transaction_mode", d.Migrations.TransactionMode)
	v.SetDefault("migrations.lock.driver", d.Migrations.Lock.Driver)
	v.SetDefault("migrations.lock.key", d.Migrations.Lock.Key)
	v.SetDefault("migrations.lock.timeout", "30s")
	v.SetDefault("migrations.lock.ttl", "10m")

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("server.log_level", d.Server.LogLevel)
	v.SetDefault("server.debug", d.Server.Debug)
	v.SetDefault("server.log_file", "")

	v.SetDefault("jwt.secret", d.JWT.Secret)
	v.SetDefault("jwt.issuer", d.JWT.Issuer)
	v.SetDefault("jwt.ttl", "24h")

	v.SetDefault("http.port", d.HTTP.Port)
	v.SetDefault("http.allow_origins", d.HTTP.AllowOrigins)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)
}

// bindEnvVars binds specific environment variables to configuration keys
func bindEnvVars(v *viper.Viper) {
	// Log level can be set via LOG_LEVEL or REVCHAIN_SERVER_LOG_LEVEL
	_ = v.BindEnv("server.log_level", "LOG_LEVEL", "REVCHAIN_SERVER_LOG_LEVEL")

	// Debug mode
	_ = v.BindEnv("server.debug", "DEBUG", "REVCHAIN_SERVER_DEBUG")

	_ = v.BindEnv("server.log_file", "LOG_FILE", "REVCHAIN_SERVER_LOG_FILE")

	_ = v.BindEnv("jwt.secret", "JWT_SECRET", "REVCHAIN_JWT_SECRET")
}

// parseDatabaseURL maps a connection URL onto the database settings. Both
// postgres:// and sqlite:// URLs are accepted.
func parseDatabaseURL(v *viper.Viper, dbURL string) error {
	u, err := url.Parse(dbURL)
	if err != nil {
		return err
	}

	switch u.Scheme {
	case "sqlite", "sqlite3":
		path := u.Host + u.Path
		if path == "" {
			return fmt.Errorf("sqlite URL must include a path")
		}
		v.Set("database.driver", DriverSQLite)
		v.Set("database.path", path)
		return nil
	case "postgres", "postgresql":
	default:
		return fmt.Errorf("URL must start with postgres://, postgresql:// or sqlite://")
	}

	v.Set("database.driver", DriverPostgres)

	if u.User != nil {
		v.Set("database.user", u.User.Username())
		if password, ok := u.User.Password(); ok {
			v.Set("database.password", password)
		}
	}

	if u.Hostname() == "" {
		return fmt.Errorf("host not found in URL")
	}
	v.Set("database.host", u.Hostname())

	if port := u.Port(); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid port %q", port)
		}
		v.Set("database.port", p)
	}

	dbName := strings.TrimPrefix(u.Path, "/")
	if dbName == "" {
		return fmt.Errorf("database name not found in URL")
	}
	v.Set("database.dbname", dbName)

	if sslmode := u.Query().Get("sslmode"); sslmode != "" {
		v.Set("database.sslmode", sslmode)
	}

	return nil
}

// parseRedisURL maps a redis:// URL onto the redis settings
func parseRedisURL(v *viper.Viper, redisURL string) error {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return err
	}

	v.Set("redis.addr", opts.Addr)
	v.Set("redis.password", opts.Password)
	v.Set("redis.db", opts.DB)
	return nil
}

// LoadConfigOrDefault loads configuration or returns default if loading fails
func LoadConfigOrDefault(configPath string) *Config {
	config, err := LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to load config: %v. Using defaults.\n", err)
		return NewDefault()
	}
	return config
}
