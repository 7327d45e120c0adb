// Package config loads and validates the agent configuration from YAML,
// environment variables and defaults.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/mnemoapp/mnemo/internal/fsrs"
	"github.com/mnemoapp/mnemo/internal/queue"
)

type Config struct {
	FSRS    FSRSConfig    `mapstructure:"fsrs"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Queue   QueueConfig   `mapstructure:"queue"`
	Sync    SyncConfig    `mapstructure:"sync"`
	API     APIConfig     `mapstructure:"api"`
	Storage StorageConfig `mapstructure:"storage"`
	Server  ServerConfig  `mapstructure:"server"`
}

type FSRSConfig struct {
	RequestRetention float64   `mapstructure:"request_retention" validate:"required,gt=0,lt=1"`
	MaximumInterval  int       `mapstructure:"maximum_interval" validate:"required,gt=0"`
	Weights          []float64 `mapstructure:"weights" validate:"omitempty,len=19,dive,gte=0"`
}

// Parameters converts the section into scheduler parameters. A missing
// weights list keeps the built-in vector.
func (f FSRSConfig) Parameters() fsrs.Parameters {
	params := fsrs.Parameters{
		RequestRetention: f.RequestRetention,
		MaximumInterval:  f.MaximumInterval,
		Weights:          fsrs.DefaultWeights,
	}
	if len(f.Weights) == len(params.Weights) {
		copy(params.Weights[:], f.Weights)
	}
	return params
}

type CacheConfig struct {
	DefaultTTL time.Duration `mapstructure:"default_ttl" validate:"required,gt=0"`
}

type QueueConfig struct {
	MaxRetries       int           `mapstructure:"max_retries" validate:"required,gt=0"`
	RetryDelay       time.Duration `mapstructure:"retry_delay" validate:"required,gt=0"`
	MaxRetryDelay    time.Duration `mapstructure:"max_retry_delay" validate:"required,gt=0"`
	BatchSize        int           `mapstructure:"batch_size" validate:"required,gt=0"`
	BatchDelay       time.Duration `mapstructure:"batch_delay" validate:"required,gt=0"`
	ErrorHistorySize int           `mapstructure:"error_history_size" validate:"required,gt=0"`
}

type SyncConfig struct {
	Interval         time.Duration `mapstructure:"interval" validate:"required,gt=0"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout" validate:"required,gt=0"`
	MaxConcurrent    int           `mapstructure:"max_concurrent" validate:"required,gt=0"`
}

type APIConfig struct {
	BaseURL       string        `mapstructure:"base_url" validate:"required,url"`
	Token         string        `mapstructure:"token"`
	Timeout       time.Duration `mapstructure:"timeout" validate:"required,gt=0"`
	RetryAttempts int           `mapstructure:"retry_attempts" validate:"gte=0"`
}

type StorageConfig struct {
	Path             string `mapstructure:"path" validate:"required"`
	ReportsDirectory string `mapstructure:"reports_directory" validate:"required"`
	ReportTemplate   string `mapstructure:"report_template" validate:"omitempty,file"`
}

type ServerConfig struct {
	Addr        string `mapstructure:"addr" validate:"required"`
	AllowOrigin string `mapstructure:"allow_origin" validate:"required,url"`
}

type ConfigLoader struct {
	viper      *viper.Viper
	validator  *validator.Validate
	translator ut.Translator
}

func NewConfigLoader(configFile string) (*ConfigLoader, error) {
	validate, trans, err := newValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create new validator: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/mnemo")
	}

	return &ConfigLoader{
		viper:      v,
		validator:  validate,
		translator: trans,
	}, nil
}

func (loader *ConfigLoader) Load() (*Config, error) {
	v := loader.viper

	v.SetDefault("fsrs.request_retention", fsrs.DefaultRequestRetention)
	v.SetDefault("fsrs.maximum_interval", fsrs.DefaultMaximumInterval)
	v.SetDefault("fsrs.weights", fsrs.DefaultWeights[:])
	v.SetDefault("cache.default_ttl", time.Hour)
	queueDefaults := queue.DefaultConfig()
	v.SetDefault("queue.max_retries", queueDefaults.MaxRetries)
	v.SetDefault("queue.retry_delay", queueDefaults.RetryDelay)
	v.SetDefault("queue.max_retry_delay", queueDefaults.MaxRetryDelay)
	v.SetDefault("queue.batch_size", queueDefaults.BatchSize)
	v.SetDefault("queue.batch_delay", queueDefaults.BatchDelay)
	v.SetDefault("queue.error_history_size", queueDefaults.ErrorHistorySize)
	v.SetDefault("sync.interval", 30*time.Second)
	v.SetDefault("sync.operation_timeout", 10*time.Second)
	v.SetDefault("sync.max_concurrent", 3)
	v.SetDefault("api.base_url", "http://localhost:8080")
	v.SetDefault("api.timeout", 15*time.Second)
	v.SetDefault("api.retry_attempts", 2)
	v.SetDefault("storage.path", filepath.Join("data", "mnemo.db"))
	v.SetDefault("storage.reports_directory", filepath.Join("outputs", "reports"))
	// Template is optional; without one the embedded fallback is used.
	v.SetDefault("storage.report_template", "")
	v.SetDefault("server.addr", "127.0.0.1:7600")
	v.SetDefault("server.allow_origin", "http://localhost:3000")

	// Bind API credentials to environment variables only (not from config file)
	if err := v.BindEnv("api.base_url", "MNEMO_API_BASE_URL"); err != nil {
		return nil, fmt.Errorf("failed to bind MNEMO_API_BASE_URL environment variable: %w", err)
	}
	if err := v.BindEnv("api.token", "MNEMO_API_TOKEN"); err != nil {
		return nil, fmt.Errorf("failed to bind MNEMO_API_TOKEN environment variable: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("configuration file found but could not be read: %w. Please check the file format and permissions", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration format: %w", err)
	}

	if err := loader.validator.Struct(cfg); err != nil {
		validationErrors := err.(validator.ValidationErrors)
		var errorMsgs []string
		for _, e := range validationErrors {
			errorMsgs = append(errorMsgs, e.Translate(loader.translator))
		}
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errorMsgs, ", "))
	}

	return &cfg, nil
}
