package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"codeberg.org/kawashima/loadlog/internal/errors"
)

const (
	DefaultLogLevel = "info"

	defaultComputer = "unknown"
	defaultInterval = 1
	defaultPreWait  = 0
	defaultPostWait = 0

	configEnv    = "LOADLOG_CONFIG"
	envPrefix    = "LOADLOG"
	configName   = "loadlog"
	systemConfig = "/etc"
)

// Config is the immutable run configuration, captured once at startup.
type Config struct {
	Command  string `mapstructure:"-"`
	Computer string `mapstructure:"computer"`
	Interval int    `mapstructure:"interval"` // seconds between samples
	PreWait  int    `mapstructure:"prewait"`  // seconds before launching the command
	PostWait int    `mapstructure:"postwait"` // seconds after the command exits
	LogFile  string `mapstructure:"logfile"`
	Database string `mapstructure:"database"` // optional SQLite sample store
	LogLevel string `mapstructure:"log_level"`
	Debug    bool   `mapstructure:"debug"`
	Verbose  bool   `mapstructure:"verbose"`
}

func Load() (*Config, error) {
	errFactory := errors.New()

	fs := pflag.NewFlagSet("loadlog", pflag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: loadlog \"<command>\" [options]\n\n")
		fs.PrintDefaults()
	}

	fs.String("computer", defaultComputer, "Name of the current machine, written to the log header")
	fs.Int("interval", defaultInterval, "Seconds between samples")
	fs.Int("prewait", defaultPreWait, "Seconds to wait between the baseline sample and launching the command")
	fs.Int("postwait", defaultPostWait, "Seconds to wait after the command finishes before the final sample")
	fs.String("logfile", "", "Log file path (default: generated from computer name and timestamp)")
	fs.String("database", "", "Optional SQLite database to mirror samples into")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.Bool("debug", false, "Enable debugging mode")
	fs.Bool("verbose", false, "Enable verbose logging")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	v.SetDefault("computer", defaultComputer)
	v.SetDefault("interval", defaultInterval)
	v.SetDefault("prewait", defaultPreWait)
	v.SetDefault("postwait", defaultPostWait)
	v.SetDefault("logfile", "")
	v.SetDefault("database", "")
	v.SetDefault("log_level", DefaultLogLevel)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// An explicit config file via LOADLOG_CONFIG wins over the system path
	if path := os.Getenv(configEnv); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errFactory.WithMessage(errors.ErrReadConfig,
				"Failed to read config file").WithData(err.Error())
		}
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("toml")
		v.AddConfigPath(systemConfig)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, errFactory.Wrap(errors.ErrReadConfig, err)
			}
		}
	}

	// Command line flags override config file values
	fs.Visit(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		v.Set(key, f.Value.String())
	})

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	switch args := fs.Args(); len(args) {
	case 0:
		return nil, errFactory.New(errors.ErrMissingCommand)
	case 1:
		config.Command = args[0]
	default:
		return nil, errFactory.WithMessage(errors.ErrInvalidArgument,
			"The command must be passed as a single quoted argument")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	errFactory := errors.New()

	if strings.TrimSpace(c.Command) == "" {
		return errFactory.New(errors.ErrMissingCommand)
	}
	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}
	if c.PreWait < 0 {
		return errFactory.WithData(errors.ErrInvalidWait, c.PreWait)
	}
	if c.PostWait < 0 {
		return errFactory.WithData(errors.ErrInvalidWait, c.PostWait)
	}
	if !isValidLogLevel(c.LogLevel) {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warning", "error":
		return true
	default:
		return false
	}
}

// IntervalDuration returns the sampling interval as a duration.
func (c *Config) IntervalDuration() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

// PreWaitDuration returns the pre-run wait as a duration.
func (c *Config) PreWaitDuration() time.Duration {
	return time.Duration(c.PreWait) * time.Second
}

// PostWaitDuration returns the post-run wait as a duration.
func (c *Config) PostWaitDuration() time.Duration {
	return time.Duration(c.PostWait) * time.Second
}

// ResolveLogFile returns the configured log path, or a generated one
// containing the computer name and start timestamp.
func (c *Config) ResolveLogFile(now time.Time) string {
	if c.LogFile != "" {
		return c.LogFile
	}

	computer := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '/', '\\':
			return '-'
		}
		return r
	}, c.Computer)

	return fmt.Sprintf("loadlog_%s_%s.log", computer, now.Format("20060102T150405"))
}
