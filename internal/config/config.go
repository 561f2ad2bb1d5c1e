// Package config loads server configuration from YAML plus environment
// overrides via viper, generalized from the teacher's role-preset config
// (internal/config/config.go + viper_config.go in the teacher repo) to this
// domain's server, session, store, sandbox and conversion settings. The
// teacher carried two competing LoadConfig implementations (a hand-rolled
// os.Getenv reader and a viper-based one) that could not both live in the
// package; this keeps the richer viper-based approach as the single source.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig is the root configuration object.
type ServerConfig struct {
	Server     ServerSettings     `yaml:"server" mapstructure:"server"`
	Session    SessionSettings    `yaml:"session" mapstructure:"session"`
	Store      StoreSettings      `yaml:"store" mapstructure:"store"`
	Sandbox    SandboxSettings    `yaml:"sandbox" mapstructure:"sandbox"`
	Conversion ConversionSettings `yaml:"conversion" mapstructure:"conversion"`
}

// ServerSettings is transport-level configuration.
type ServerSettings struct {
	Port            string        `yaml:"port" mapstructure:"port"`
	Host            string        `yaml:"host" mapstructure:"host"`
	ReadTimeout     time.Duration `yaml:"readTimeout" mapstructure:"readtimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout" mapstructure:"writetimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout" mapstructure:"idletimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" mapstructure:"shutdowntimeout"`

	RateLimit      float64 `yaml:"rateLimit" mapstructure:"ratelimit"`
	RateLimitBurst int     `yaml:"rateLimitBurst" mapstructure:"ratelimitburst"`

	MaxRequestSize    int64 `yaml:"maxRequestSize" mapstructure:"maxrequestsize"`
	MaxSSEConnections int   `yaml:"maxSSEConnections" mapstructure:"maxsseconnections"`

	EnableMetrics bool   `yaml:"enableMetrics" mapstructure:"enablemetrics"`
	MetricsPort   string `yaml:"metricsPort" mapstructure:"metricsport"`
	LogLevel      string `yaml:"logLevel" mapstructure:"loglevel"`
	LogFormat     string `yaml:"logFormat" mapstructure:"logformat"`
}

// SessionSettings tunes the Session Runtime (spec §4.4 "Timeouts").
type SessionSettings struct {
	SubmitDeadline    time.Duration `yaml:"submitDeadline" mapstructure:"submitdeadline"`
	ValidatorDeadline time.Duration `yaml:"validatorDeadline" mapstructure:"validatordeadline"`
}

// StoreSettings tunes the Room Registry's cache (spec §4.5).
type StoreSettings struct {
	CacheFreshFor time.Duration `yaml:"cacheFreshFor" mapstructure:"cachefreshfor"`
}

// SandboxSettings tunes the Validator Sandbox (spec §4.8).
type SandboxSettings struct {
	InvocationDeadline time.Duration `yaml:"invocationDeadline" mapstructure:"invocationdeadline"`
}

// ConversionSettings tunes the Conversion Pipeline (spec §4.3).
type ConversionSettings struct {
	LLMBudget   time.Duration `yaml:"llmBudget" mapstructure:"llmbudget"`
	LLMRetries  int           `yaml:"llmRetries" mapstructure:"llmretries"`
	Concurrency int           `yaml:"concurrency" mapstructure:"concurrency"`
}

// LoadConfig loads configuration from an optional YAML file, environment
// variables and hardcoded defaults (env beats file beats default), mirroring
// the teacher's viper-based loader. A missing file, whether searched for or
// named by configPath, leaves defaults and environment in effect.
func LoadConfig(configPath string) (*ServerConfig, error) {
	v := viper.New()
	v.SetConfigName("server")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/ludoforge")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.host", "HOST")
	v.BindEnv("server.loglevel", "LOG_LEVEL")
	v.BindEnv("server.logformat", "LOG_FORMAT")
	v.BindEnv("server.ratelimit", "RATE_LIMIT")
	v.BindEnv("server.ratelimitburst", "RATE_LIMIT_BURST")
	v.BindEnv("server.maxrequestsize", "MAX_REQUEST_SIZE")
	v.BindEnv("server.maxsseconnections", "MAX_SSE_CONNECTIONS")
	v.BindEnv("server.enablemetrics", "ENABLE_METRICS")
	v.BindEnv("server.metricsport", "METRICS_PORT")

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.readtimeout", "15s")
	v.SetDefault("server.writetimeout", "15s")
	v.SetDefault("server.idletimeout", "0s") // 0 keeps SSE connections alive
	v.SetDefault("server.shutdowntimeout", "30s")
	v.SetDefault("server.ratelimit", 10.0)
	v.SetDefault("server.ratelimitburst", 20)
	v.SetDefault("server.maxrequestsize", 1048576) // 1MB
	v.SetDefault("server.maxsseconnections", 1000)
	v.SetDefault("server.enablemetrics", false)
	v.SetDefault("server.loglevel", "info")
	v.SetDefault("server.logformat", "text")

	v.SetDefault("session.submitdeadline", "24s")
	v.SetDefault("session.validatordeadline", "300ms")
	v.SetDefault("store.cachefreshfor", "5s")
	v.SetDefault("sandbox.invocationdeadline", "300ms")
	v.SetDefault("conversion.llmbudget", "20s")
	v.SetDefault("conversion.llmretries", 3)
	v.SetDefault("conversion.concurrency", 4)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &ServerConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks invariants that defaults and env overrides can't enforce
// structurally.
func (c *ServerConfig) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port must be set")
	}
	if c.Server.EnableMetrics && c.Server.MetricsPort == "" {
		return fmt.Errorf("server.metricsPort must be set when metrics are enabled")
	}
	if c.Session.SubmitDeadline <= c.Session.ValidatorDeadline {
		return fmt.Errorf("session.submitDeadline must exceed session.validatorDeadline")
	}
	if c.Conversion.Concurrency < 1 {
		return fmt.Errorf("conversion.concurrency must be at least 1")
	}
	if c.Conversion.LLMRetries < 1 {
		return fmt.Errorf("conversion.llmRetries must be at least 1")
	}
	return nil
}
