package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the pipeline.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Isolation IsolationConfig `mapstructure:"isolation"`
	Stitching StitchingConfig `mapstructure:"stitching"`
	Raster    RasterConfig    `mapstructure:"raster"`
	Curation  CurationConfig  `mapstructure:"curation"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	File     FileConfig     `mapstructure:"file"`
}

// PostgresConfig contains Postgres connection settings for the catalog store.
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.Port) == "" {
		return fmt.Errorf("storage.postgres.port required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// RedisConfig contains Redis connection settings for the cluster job queue.
// The queue is optional: an empty host means all stages run in-process.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether a queue backend is configured.
func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Host) != "" }

func (r RedisConfig) Validate() error {
	if !r.Enabled() {
		return nil
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required when host is set")
	}
	return nil
}

// FileConfig contains file storage settings. DataRoot is the session data
// tree (sorter output, timing metadata, trial files); OutputRoot defaults to
// DataRoot and receives the artifact containers.
type FileConfig struct {
	DataRoot   string `mapstructure:"data_root"`
	OutputRoot string `mapstructure:"output_root"`
}

func (f FileConfig) Validate() error {
	if strings.TrimSpace(f.DataRoot) == "" {
		return fmt.Errorf("storage.file.data_root is required")
	}
	return nil
}

// Normalize applies defaults for unset file storage values.
func (f FileConfig) Normalize() FileConfig {
	if strings.TrimSpace(f.OutputRoot) == "" {
		f.OutputRoot = f.DataRoot
	}
	return f
}

// TelemetryConfig contains telemetry and the ops endpoint settings.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPort int    `mapstructure:"metrics_port"`
	LogFile     string `mapstructure:"log_file"`
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && t.MetricsPort <= 0 {
		return fmt.Errorf("telemetry.metrics_port must be > 0 when telemetry is enabled")
	}
	return nil
}

// PipelineConfig controls stage orchestration.
type PipelineConfig struct {
	Workers  int    `mapstructure:"workers"`
	Schedule string `mapstructure:"schedule"` // optional cron expression for worker rescans
}

// Normalize applies defaults for unset pipeline values.
func (p PipelineConfig) Normalize() PipelineConfig {
	if p.Workers <= 0 {
		p.Workers = 8
	}
	return p
}

// IsolationConfig contains isolation scoring parameters.
type IsolationConfig struct {
	WindowSec float64 `mapstructure:"window_sec"`
}

func (i IsolationConfig) Validate() error {
	if i.WindowSec <= 0 {
		return fmt.Errorf("isolation.window_sec must be > 0")
	}
	return nil
}

// StitchingConfig contains cross-recording stitching parameters.
type StitchingConfig struct {
	FrCorrThreshold float64 `mapstructure:"fr_corr_threshold"`
	WfCorrThreshold float64 `mapstructure:"wf_corr_threshold"`
	MinRecordings   int     `mapstructure:"min_recordings"`
	ChannelRange    int     `mapstructure:"channel_range"`
}

func (s StitchingConfig) Validate() error {
	if s.MinRecordings < 1 {
		return fmt.Errorf("stitching.min_recordings must be >= 1")
	}
	if s.ChannelRange < 0 {
		return fmt.Errorf("stitching.channel_range must be >= 0")
	}
	return nil
}

// RasterConfig contains raster and rate-curve parameters.
type RasterConfig struct {
	TimeWindow []int   `mapstructure:"time_window"` // [start, stop] ms override
	Smoothing  float64 `mapstructure:"smoothing"`   // Gaussian std in ms
}

func (r RasterConfig) Validate() error {
	if len(r.TimeWindow) != 0 && len(r.TimeWindow) != 2 {
		return fmt.Errorf("raster.time_window must be [start, stop]")
	}
	if len(r.TimeWindow) == 2 && r.TimeWindow[0] >= r.TimeWindow[1] {
		return fmt.Errorf("raster.time_window start must be < stop")
	}
	return nil
}

// CurationConfig carries thresholds consumed only by the external curation
// step. The pipeline persists them with each run and never interprets them.
type CurationConfig struct {
	LRatioThreshold  float64 `mapstructure:"l_ratio_threshold"`
	ISIViolationRate float64 `mapstructure:"isi_violation_rate"`
	IsolatedTRatio   float64 `mapstructure:"isolated_t_ratio"`
}

// LoadConfig loads config from file
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.SetDefault("pipeline.workers", 8)
	viper.SetDefault("isolation.window_sec", 100.0)
	viper.SetDefault("stitching.fr_corr_threshold", 0.85)
	viper.SetDefault("stitching.wf_corr_threshold", 0.85)
	viper.SetDefault("stitching.min_recordings", 2)
	viper.SetDefault("stitching.channel_range", 10)
	viper.SetDefault("raster.smoothing", 10.0)
	viper.SetDefault("curation.l_ratio_threshold", 0.2)
	viper.SetDefault("curation.isi_violation_rate", 0.2)
	viper.SetDefault("curation.isolated_t_ratio", 0.6)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("SPIKELINE")
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)

	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	var config Config
	if err = viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	config.Storage.File = config.Storage.File.Normalize()
	config.Pipeline = config.Pipeline.Normalize()

	if err := config.Telemetry.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.Postgres.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.Redis.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.File.Validate(); err != nil {
		panic(err)
	}
	if err := config.Isolation.Validate(); err != nil {
		panic(err)
	}
	if err := config.Stitching.Validate(); err != nil {
		panic(err)
	}
	if err := config.Raster.Validate(); err != nil {
		panic(err)
	}
	return &config
}
