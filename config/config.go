package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port string `mapstructure:"port"`

	// "mongo" or "sqlite"
	DBDriver string `mapstructure:"db_driver"`
	MongoURI string `mapstructure:"mongo_uri"`
	MongoDB  string `mapstructure:"mongo_db"`
	SQLiteDB string `mapstructure:"sqlite_db"`

	// Caching is disabled when RedisAddr is empty
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`

	SessionSecret string `mapstructure:"session_secret"`
	SessionName   string `mapstructure:"session_name"`
	BcryptCost    int    `mapstructure:"bcrypt_cost"`

	DevMode bool `mapstructure:"dev_mode"`
}

const (
	DriverMongo  = "mongo"
	DriverSQLite = "sqlite"

	DefaultPort        = "8080"
	DefaultDriver      = DriverSQLite
	DefaultMongoURI    = "mongodb://localhost:27017"
	DefaultMongoDB     = "messageboard"
	DefaultSQLiteDB    = "messageboard.db"
	DefaultCacheTTL    = 30 * time.Second
	DefaultSessionName = "messageboard-session"
	DefaultBcryptCost  = 10

	EnvPrefix = "BOARD"
)

// Load reads configuration from an optional YAML file, a .env file in the
// working directory and BOARD_* environment variables, in increasing order
// of precedence.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()

	v.SetDefault("port", DefaultPort)
	v.SetDefault("db_driver", DefaultDriver)
	v.SetDefault("mongo_uri", DefaultMongoURI)
	v.SetDefault("mongo_db", DefaultMongoDB)
	v.SetDefault("sqlite_db", DefaultSQLiteDB)
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("cache_ttl", DefaultCacheTTL)
	v.SetDefault("session_secret", "")
	v.SetDefault("session_name", DefaultSessionName)
	v.SetDefault("bcrypt_cost", DefaultBcryptCost)
	v.SetDefault("dev_mode", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.SessionSecret == "" {
		return fmt.Errorf("session_secret is required")
	}

	switch c.DBDriver {
	case DriverMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("mongo_uri is required for the mongo driver")
		}
	case DriverSQLite:
		if c.SQLiteDB == "" {
			return fmt.Errorf("sqlite_db is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("db_driver must be '%s' or '%s'", DriverMongo, DriverSQLite)
	}

	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("bcrypt_cost must be between 4 and 31")
	}

	return nil
}

func (c *Config) CacheEnabled() bool {
	return c.RedisAddr != ""
}
