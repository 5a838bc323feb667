// Package config reads the process configuration from environment variables.
package config

import (
	"github.com/spf13/viper"

	"github.com/YuminosukeSato/heartml/pipeline"
	"github.com/YuminosukeSato/heartml/pkg/errors"
	"github.com/YuminosukeSato/heartml/pkg/log"
)

// Config holds settings for both the training and the serving command.
type Config struct {
	AppName    string `mapstructure:"app_name"`
	AppEnv     string `mapstructure:"app_env"`
	LogLevel   string `mapstructure:"log_level"`
	LogConsole bool   `mapstructure:"log_console"`

	// Serving
	ModelPath string `mapstructure:"model_path"`
	ServeAddr string `mapstructure:"serve_addr"`

	// Training
	TrainDataPath      string `mapstructure:"train_data_path"`
	TrainModelPath     string `mapstructure:"train_model_path"`
	TrainRunRecordPath string `mapstructure:"train_run_record_path"`
	TrainROCPlotPath   string `mapstructure:"train_roc_plot_path"`
	TrainNJobs         int    `mapstructure:"train_n_jobs"`
}

func setDefaults(v *viper.Viper) {
	train := pipeline.DefaultTrainConfig()

	v.SetDefault("app_name", "heartml")
	v.SetDefault("app_env", "local")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_console", false)
	v.SetDefault("model_path", "heart_disease_pipeline.gob")
	v.SetDefault("serve_addr", ":8000")
	v.SetDefault("train_data_path", train.DataPath)
	v.SetDefault("train_model_path", train.ModelPath)
	v.SetDefault("train_run_record_path", train.RunRecordPath)
	v.SetDefault("train_roc_plot_path", train.ROCPlotPath)
	v.SetDefault("train_n_jobs", 0)
}

func bindEnvVars(v *viper.Viper) {
	// App configuration
	_ = v.BindEnv("app_name", "APP_NAME")
	_ = v.BindEnv("app_env", "APP_ENV")
	_ = v.BindEnv("log_level", "LOG_LEVEL")
	_ = v.BindEnv("log_console", "LOG_CONSOLE")

	// Serving configuration
	_ = v.BindEnv("model_path", "MODEL_PATH")
	_ = v.BindEnv("serve_addr", "SERVE_ADDR")

	// Training configuration
	_ = v.BindEnv("train_data_path", "TRAIN_DATA_PATH")
	_ = v.BindEnv("train_model_path", "TRAIN_MODEL_PATH")
	_ = v.BindEnv("train_run_record_path", "TRAIN_RUN_RECORD_PATH")
	_ = v.BindEnv("train_roc_plot_path", "TRAIN_ROC_PLOT_PATH")
	_ = v.BindEnv("train_n_jobs", "TRAIN_N_JOBS")
}

// Load reads the environment, applies defaults and validates the result.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config from environment")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required values.
func (c *Config) Validate() error {
	if c.ModelPath == "" {
		return errors.NewValidationError("MODEL_PATH", "must not be empty", nil)
	}
	if c.ServeAddr == "" {
		return errors.NewValidationError("SERVE_ADDR", "must not be empty", nil)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return errors.NewValidationError("LOG_LEVEL", err.Error(), c.LogLevel)
	}
	return nil
}

// IsProduction reports whether APP_ENV selects production behaviour.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "prod" || c.AppEnv == "production"
}

// LoggerOptions returns the options for log.Setup.
func (c *Config) LoggerOptions() log.Options {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		level = log.LevelInfo
	}
	return log.Options{Level: level, Console: c.LogConsole, AppName: c.AppName}
}

// TrainConfig returns the training run settings.
func (c *Config) TrainConfig() pipeline.TrainConfig {
	tc := pipeline.DefaultTrainConfig()
	tc.DataPath = c.TrainDataPath
	tc.ModelPath = c.TrainModelPath
	tc.RunRecordPath = c.TrainRunRecordPath
	tc.ROCPlotPath = c.TrainROCPlotPath
	tc.NJobs = c.TrainNJobs
	return tc
}
