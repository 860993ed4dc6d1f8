package config

import (
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

type SensuConfig struct {
	API                string `mapstructure:"api"`
	PostTimeout        string `mapstructure:"post_timeout"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

type ConsulConfig struct {
	API        string `mapstructure:"api"`
	Datacenter string `mapstructure:"datacenter"`
	Token      string `mapstructure:"token"`
}

type MonitorConfig struct {
	Interval     string `mapstructure:"interval"`
	CheckTimeout string `mapstructure:"check_timeout"`
}

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type Config struct {
	Sensu   SensuConfig   `mapstructure:"sensu"`
	Consul  ConsulConfig  `mapstructure:"consul"`
	Monitor MonitorConfig `mapstructure:"monitor"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// Load reads config.yaml from ./config or the working directory, then
// applies environment overrides. SENSU_API and CONSUL_API are required.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("sensu.post_timeout", "15s")
	v.SetDefault("sensu.insecure_skip_verify", true)
	v.SetDefault("monitor.interval", "10s")
	v.SetDefault("monitor.check_timeout", "10s")
	v.SetDefault("server.address", "")
	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("logging.level", LogLevelInfo)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Keys without a default are invisible to Unmarshal unless bound.
	for key, env := range map[string]string{
		"sensu.api":         "SENSU_API",
		"consul.api":        "CONSUL_API",
		"consul.datacenter": "CONSUL_DATACENTER",
		"consul.token":      "CONSUL_TOKEN",
	} {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Debug("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Sensu,
			validation.By(func(value interface{}) error {
				sc, ok := value.(SensuConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a SensuConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.API,
						validation.Required.Error("is required (set SENSU_API)"),
						validation.By(validateServerURL),
					),
					validation.Field(&sc.PostTimeout,
						validation.Required,
						validation.By(validateDuration),
					),
				)
			}),
		),
		validation.Field(&c.Consul,
			validation.By(func(value interface{}) error {
				cc, ok := value.(ConsulConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ConsulConfig")
				}
				return validation.ValidateStruct(&cc,
					validation.Field(&cc.API,
						validation.Required.Error("is required (set CONSUL_API)"),
						validation.By(validateServerURL),
					),
				)
			}),
		),
		validation.Field(&c.Monitor,
			validation.Required,
			validation.By(func(value interface{}) error {
				mc, ok := value.(MonitorConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a MonitorConfig")
				}
				return validation.ValidateStruct(&mc,
					validation.Field(&mc.Interval,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&mc.CheckTimeout,
						validation.Required,
						validation.By(validateDuration),
					),
				)
			}),
		),
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.By(validateHostPort),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
	)
}

// Interval is the delay between two loop iterations.
func (c *Config) Interval() time.Duration {
	return mustDuration(c.Monitor.Interval)
}

func (c *Config) CheckTimeout() time.Duration {
	return mustDuration(c.Monitor.CheckTimeout)
}

func (c *Config) PostTimeout() time.Duration {
	return mustDuration(c.Sensu.PostTimeout)
}

// mustDuration is only called on values Validate has accepted.
func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(err)
	}
	return d
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	// an empty address disables the status server
	if addr == "" {
		return nil
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}

	if d <= 0 {
		return validation.NewError("validation_invalid_duration", "must be positive")
	}

	return nil
}

func validateServerURL(value interface{}) error {
	serverURL, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if serverURL == "" {
		return nil
	}

	parsedURL, err := url.Parse(serverURL)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}

	if parsedURL.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}

	return nil
}
