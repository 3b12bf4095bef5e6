// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package config loads the database settings of the sqlcrud command.
package config

import (
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/canonical/sqlcrud/dialect"
)

// EnvPrefix prefixes the environment variables overriding the settings,
// e.g. SQLCRUD_DSN.
const EnvPrefix = "SQLCRUD"

// Config holds the settings of a database connection.
type Config struct {
	// Dialect is the SQL dialect, see dialect.Get.
	Dialect string `mapstructure:"dialect"`
	// Driver is the database/sql driver name. It defaults to the usual
	// driver of the dialect.
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`

	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`

	ParallelPrefetch bool `mapstructure:"parallel_prefetch"`
	// TableNaming is one of "type", "snake" or "snake_plural".
	TableNaming string `mapstructure:"table_naming"`
}

// Table naming strategies.
const (
	NamingType        = "type"
	NamingSnake       = "snake"
	NamingSnakePlural = "snake_plural"
)

var defaultDrivers = map[string]string{
	dialect.SQLite:   "sqlite3",
	dialect.Postgres: "pgx",
	dialect.MySQL:    "mysql",
}

// Load reads the settings from the YAML file at path, if not empty, and
// from the environment. The environment takes precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "cannot read config file %q", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "cannot decode config")
	}
	if cfg.Driver == "" {
		if d, err := dialect.Get(cfg.Dialect); err == nil {
			cfg.Driver = defaultDrivers[d.Name()]
		}
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dialect", dialect.SQLite)
	v.SetDefault("driver", "")
	v.SetDefault("dsn", "file::memory:?cache=shared")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
	v.SetDefault("parallel_prefetch", false)
	v.SetDefault("table_naming", NamingType)
}

// Validate checks the settings are consistent.
func (c *Config) Validate() error {
	d, err := dialect.Get(c.Dialect)
	if err != nil {
		return errors.Wrap(err, "invalid config")
	}
	if c.Driver == "" {
		return errors.New("invalid config: no driver")
	}
	if c.DSN == "" {
		return errors.New("invalid config: no dsn")
	}
	if d.Name() == dialect.MySQL {
		if _, err := mysql.ParseDSN(c.DSN); err != nil {
			return errors.Wrap(err, "invalid config: bad mysql dsn")
		}
	}
	switch c.TableNaming {
	case NamingType, NamingSnake, NamingSnakePlural:
	default:
		return errors.Errorf("invalid config: unknown table naming %q", c.TableNaming)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}

// Logger builds the logger described by the settings.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewDevelopmentConfig()
	if c.LogJSON {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
