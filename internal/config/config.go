package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

const EnvPrefix = "DOBBLE"

type Config struct {
	TCPAddr  string `mapstructure:"tcp_addr"`
	HTTPAddr string `mapstructure:"http_addr"`
	Catalog  string `mapstructure:"catalog"`

	MinPlayers  int  `mapstructure:"min_players"`
	AutoRestart bool `mapstructure:"auto_restart"`

	JoinTimeout   time.Duration `mapstructure:"join_timeout"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	OutboxSize    int           `mapstructure:"outbox_size"`
	SendRejection bool          `mapstructure:"send_rejection"`

	ResultsBuffer int    `mapstructure:"results_buffer"`
	DatabaseURL   string `mapstructure:"database_url"`
	NATSURL       string `mapstructure:"nats_url"`
	NATSSubject   string `mapstructure:"nats_subject"`

	LogLevel string `mapstructure:"log_level"`
	LogDev   bool   `mapstructure:"log_dev"`
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("tcp_addr", ":8080")
	v.SetDefault("http_addr", ":8081")
	v.SetDefault("catalog", "cards.json")
	v.SetDefault("min_players", 2)
	v.SetDefault("auto_restart", true)
	v.SetDefault("join_timeout", 10*time.Second)
	v.SetDefault("idle_timeout", time.Duration(0))
	v.SetDefault("write_timeout", 5*time.Second)
	v.SetDefault("outbox_size", 16)
	v.SetDefault("send_rejection", true)
	v.SetDefault("results_buffer", 64)
	v.SetDefault("database_url", "")
	v.SetDefault("nats_url", "")
	v.SetDefault("nats_subject", "dobble")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_dev", false)
}

// Options tells Load where to look besides the environment.
type Options struct {
	EnvFiles   []string // missing files are skipped
	ConfigFile string   // optional toml/yaml/json file
	Flags      *pflag.FlagSet
}

// Load resolves configuration with precedence flags > env > config file > defaults.
// Flag names use dashes (--tcp-addr) and map onto the underscored keys.
func Load(opts Options) (Config, error) {
	for _, f := range opts.EnvFiles {
		if err := godotenv.Load(f); err != nil && !isNotExist(err) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", opts.ConfigFile, err)
		}
	}

	if opts.Flags != nil {
		var bindErr error
		opts.Flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if !isKnownKey(v, key) {
				return
			}
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return Config{}, bindErr
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var err error
	if c.MinPlayers < 2 {
		err = multierr.Append(err, fmt.Errorf("min_players must be at least 2, got %d", c.MinPlayers))
	}
	if c.OutboxSize <= 0 {
		err = multierr.Append(err, fmt.Errorf("outbox_size must be positive, got %d", c.OutboxSize))
	}
	if c.ResultsBuffer < 0 {
		err = multierr.Append(err, fmt.Errorf("results_buffer must not be negative, got %d", c.ResultsBuffer))
	}
	if c.JoinTimeout < 0 || c.IdleTimeout < 0 || c.WriteTimeout < 0 {
		err = multierr.Append(err, errors.New("timeouts must not be negative"))
	}
	if c.Catalog == "" {
		err = multierr.Append(err, errors.New("catalog path is required"))
	}
	return err
}

func isKnownKey(v *viper.Viper, key string) bool {
	return v.IsSet(key) || v.InConfig(key)
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
