// Package config loads the settings of the movies command from an optional
// YAML file and NEOGM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/saulfrancisco-ruizacevedo/go-neogm"
)

// EnvPrefix prefixes every environment override. Nested keys join with an
// underscore: neo4j.load_depth is read from NEOGM_NEO4J_LOAD_DEPTH.
const EnvPrefix = "NEOGM"

type Config struct {
	Neo4j Neo4jConfig `mapstructure:"neo4j" yaml:"neo4j"`
	Log   LogConfig   `mapstructure:"log" yaml:"log"`
}

type Neo4jConfig struct {
	URI               string        `mapstructure:"uri" yaml:"uri"`
	Username          string        `mapstructure:"username" yaml:"username"`
	Password          string        `mapstructure:"password" yaml:"password"`
	Database          string        `mapstructure:"database" yaml:"database"`
	PoolSize          int           `mapstructure:"pool_size" yaml:"pool_size"`
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout" yaml:"connection_timeout"`
	MaxRetryTime      time.Duration `mapstructure:"max_retry_time" yaml:"max_retry_time"`
	TxTimeout         time.Duration `mapstructure:"tx_timeout" yaml:"tx_timeout"`
	LoadDepth         int           `mapstructure:"load_depth" yaml:"load_depth"`
}

type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level" yaml:"level"`
	// Format is text or json.
	Format string `mapstructure:"format" yaml:"format"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	store := neogm.DefaultConfig()
	return &Config{
		Neo4j: Neo4jConfig{
			URI:               store.URI,
			Username:          store.Username,
			Password:          store.Password,
			Database:          store.Database,
			PoolSize:          store.MaxConnectionPoolSize,
			ConnectionTimeout: store.ConnectionTimeout,
			MaxRetryTime:      store.MaxTransactionRetryTime,
			TxTimeout:         store.TransactionTimeout,
			LoadDepth:         store.LoadDepth,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load layers the defaults, the YAML file at path (when path is not empty)
// and the environment, in increasing order of precedence. The result is
// validated.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// newViper returns a viper instance seeded with the defaults, so that every
// key is known to AutomaticEnv.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("neo4j.uri", def.Neo4j.URI)
	v.SetDefault("neo4j.username", def.Neo4j.Username)
	v.SetDefault("neo4j.password", def.Neo4j.Password)
	v.SetDefault("neo4j.database", def.Neo4j.Database)
	v.SetDefault("neo4j.pool_size", def.Neo4j.PoolSize)
	v.SetDefault("neo4j.connection_timeout", def.Neo4j.ConnectionTimeout)
	v.SetDefault("neo4j.max_retry_time", def.Neo4j.MaxRetryTime)
	v.SetDefault("neo4j.tx_timeout", def.Neo4j.TxTimeout)
	v.SetDefault("neo4j.load_depth", def.Neo4j.LoadDepth)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
	return v
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Neo4j.Password != "" {
		out.Neo4j.Password = "********"
	}
	return &out
}

// Validate checks the store settings and the logging options.
func (c *Config) Validate() error {
	if err := c.Store().Validate(); err != nil {
		return err
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
		return nil
	}
	return fmt.Errorf("unknown log format %q", c.Log.Format)
}

// Store returns the settings for neogm.
func (c *Config) Store() neogm.Config {
	return neogm.Config{
		URI:                     c.Neo4j.URI,
		Username:                c.Neo4j.Username,
		Password:                c.Neo4j.Password,
		Database:                c.Neo4j.Database,
		MaxConnectionPoolSize:   c.Neo4j.PoolSize,
		ConnectionTimeout:       c.Neo4j.ConnectionTimeout,
		MaxTransactionRetryTime: c.Neo4j.MaxRetryTime,
		TransactionTimeout:      c.Neo4j.TxTimeout,
		LoadDepth:               c.Neo4j.LoadDepth,
	}
}

// Logger builds the structured logger described by the log settings.
func (c *Config) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, errors.New("unknown log level " + strconv.Quote(s))
	}
	return level, nil
}
