package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendMySQL    = "mysql"
	BackendRemote   = "remote"
)

// Config holds every setting the service reads at startup.
type Config struct {
	ServerPort string `mapstructure:"server_port"`
	LogLevel   string `mapstructure:"log_level"`

	StoreBackend string `mapstructure:"store_backend"`

	DBHost        string `mapstructure:"db_host"`
	DBPort        string `mapstructure:"db_port"`
	DBUser        string `mapstructure:"db_user"`
	DBPassword    string `mapstructure:"db_password"`
	DBName        string `mapstructure:"db_name"`
	RunMigrations bool   `mapstructure:"run_migrations"`

	MySQLDSN string `mapstructure:"mysql_dsn"`

	RemoteBaseURL string        `mapstructure:"remote_base_url"`
	RemoteTimeout time.Duration `mapstructure:"remote_timeout"`

	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	LockTTL       time.Duration `mapstructure:"lock_ttl"`

	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`

	SeedFile string `mapstructure:"seed_file"`
}

var defaults = map[string]interface{}{
	"server_port":     "8080",
	"log_level":       "info",
	"store_backend":   BackendMemory,
	"db_host":         "localhost",
	"db_port":         "5432",
	"db_user":         "postgres",
	"db_password":     "password",
	"db_name":         "bank_ledger",
	"run_migrations":  true,
	"mysql_dsn":       "",
	"remote_base_url": "",
	"remote_timeout":  10 * time.Second,
	"redis_addr":      "",
	"redis_password":  "",
	"redis_db":        0,
	"lock_ttl":        30 * time.Second,
	"kafka_brokers":   []string{},
	"kafka_topic":     "bank.transfers",
	"seed_file":       "",
}

// Load reads .env, the YAML file named by BANK_CONFIG (default
// config/config.yaml, optional) and BANK_* environment variables, in that
// order of increasing precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	path := os.Getenv("BANK_CONFIG")
	if path == "" {
		path = "config/config.yaml"
	}
	return LoadFile(path)
}

// LoadFile is Load without the .env step. A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix("BANK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				var notFound viper.ConfigFileNotFoundError
				if !errors.As(err, &notFound) {
					return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendPostgres:
	case BackendMySQL:
		if c.MySQLDSN == "" {
			return errors.New("mysql_dsn is required for the mysql backend")
		}
	case BackendRemote:
		if c.RemoteBaseURL == "" {
			return errors.New("remote_base_url is required for the remote backend")
		}
	default:
		return fmt.Errorf("unknown store_backend %q", c.StoreBackend)
	}
	return nil
}

// GetDBConnectionString returns the lib/pq connection string for the postgres backend.
func (c *Config) GetDBConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName)
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
