// Package config loads the settings of the cabintwin command.
//
// Settings are layered: Default, then an optional YAML file, then environment
// variables prefixed with CABINTWIN_ (CABINTWIN_DATA_DIR,
// CABINTWIN_NEO4J_URI, ...). Command-line flags are applied last by the
// command itself.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/go-digitaltwin/cabintwin/anomaly"
	"github.com/go-digitaltwin/cabintwin/fea"
	"github.com/go-digitaltwin/cabintwin/lifemodel"
	"github.com/go-digitaltwin/cabintwin/synth"
	"github.com/go-digitaltwin/cabintwin/twin"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "CABINTWIN_"

// Config holds every setting of the command.
type Config struct {
	// DataDir holds the dataset, the solver files and the history database.
	DataDir string `yaml:"data_dir" env:"DATA_DIR"`
	// VIN identifies the monitored truck in the asset graph.
	VIN string `yaml:"vin" env:"VIN"`

	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
	Generate  GenerateConfig  `yaml:"generate" envPrefix:"GENERATE_"`
	Life      LifeConfig      `yaml:"life" envPrefix:"LIFE_"`
	Anomaly   AnomalyConfig   `yaml:"anomaly" envPrefix:"ANOMALY_"`
	FEA       FEAConfig       `yaml:"fea" envPrefix:"FEA_"`
	HTTP      HTTPConfig      `yaml:"http" envPrefix:"HTTP_"`
	Neo4j     Neo4jConfig     `yaml:"neo4j" envPrefix:"NEO4J_"`
	History   HistoryConfig   `yaml:"history" envPrefix:"HISTORY_"`
	Telemetry TelemetryConfig `yaml:"telemetry" envPrefix:"OTEL_"`
}

type LogConfig struct {
	// Level is one of trace, debug, info, warn or error.
	Level string `yaml:"level" env:"LEVEL"`
	JSON  bool   `yaml:"json" env:"JSON"`
}

type GenerateConfig struct {
	Samples  int           `yaml:"samples" env:"SAMPLES"`
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
	Seed     uint64        `yaml:"seed" env:"SEED"`
}

type LifeConfig struct {
	TotalLifeUnits float64 `yaml:"total_life_units" env:"TOTAL_UNITS"`
	WVibration     float64 `yaml:"w_vibration" env:"W_VIBRATION"`
	WDeformation   float64 `yaml:"w_deformation" env:"W_DEFORMATION"`
	WTemperature   float64 `yaml:"w_temperature" env:"W_TEMPERATURE"`
	TempBaselineC  float64 `yaml:"temp_baseline_c" env:"TEMP_BASELINE_C"`
}

type AnomalyConfig struct {
	K      float64 `yaml:"k" env:"K"`
	MinRun int     `yaml:"min_run" env:"MIN_RUN"`
	Warmup int     `yaml:"warmup" env:"WARMUP"`
}

type FEAConfig struct {
	Delay time.Duration `yaml:"delay" env:"DELAY"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
}

// Neo4jConfig enables the asset graph when URI is set.
type Neo4jConfig struct {
	URI      string `yaml:"uri" env:"URI"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	Database string `yaml:"database" env:"DATABASE"`
}

type HistoryConfig struct {
	// Path of the SQLite database; empty means history.db in the data
	// directory.
	Path string `yaml:"path" env:"PATH"`
}

// TelemetryConfig enables trace export when Endpoint is set.
type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	dataDir := "digital_twin_mvp"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, "digital_twin_mvp")
	}
	gen := synth.DefaultConfig()
	life := lifemodel.DefaultParams()
	return Config{
		DataDir: dataDir,
		VIN:     "SIM-0001",
		Log:     LogConfig{Level: "info"},
		Generate: GenerateConfig{
			Samples:  gen.Samples,
			Interval: gen.Interval,
			Seed:     gen.Seed,
		},
		Life: LifeConfig{
			TotalLifeUnits: life.TotalLifeUnits,
			WVibration:     life.WVibration,
			WDeformation:   life.WDeformation,
			WTemperature:   life.WTemperature,
			TempBaselineC:  life.TempBaselineC,
		},
		Anomaly: AnomalyConfig{
			K:      anomaly.DefaultK,
			MinRun: anomaly.DefaultMinRun,
			Warmup: anomaly.DefaultWarmup,
		},
		FEA:   FEAConfig{Delay: fea.DefaultDelay},
		HTTP:  HTTPConfig{Addr: "127.0.0.1:8501"},
		Neo4j: Neo4jConfig{User: "neo4j", Database: "cabintwin"},
	}
}

// Load layers the YAML file at path (when not empty) and the environment over
// Default. A nil environ reads the process environment.
func Load(path string, environ map[string]string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate reports settings the command cannot work with.
func (c Config) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir must not be empty"))
	}
	if c.Generate.Samples < 0 {
		errs = append(errs, fmt.Errorf("generate.samples must not be negative, got %d", c.Generate.Samples))
	}
	if c.Generate.Interval <= 0 {
		errs = append(errs, fmt.Errorf("generate.interval must be positive, got %v", c.Generate.Interval))
	}
	if err := c.LifeParams().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("life: %w", err))
	}
	if c.Anomaly.K < 0 {
		errs = append(errs, fmt.Errorf("anomaly.k must not be negative, got %v", c.Anomaly.K))
	}
	if c.FEA.Delay < 0 {
		errs = append(errs, fmt.Errorf("fea.delay must not be negative, got %v", c.FEA.Delay))
	}
	return errors.Join(errs...)
}

// LifeParams returns the damage model parameters.
func (c Config) LifeParams() lifemodel.Params {
	return lifemodel.Params{
		TotalLifeUnits: c.Life.TotalLifeUnits,
		WVibration:     c.Life.WVibration,
		WDeformation:   c.Life.WDeformation,
		WTemperature:   c.Life.WTemperature,
		TempBaselineC:  c.Life.TempBaselineC,
	}
}

// SynthConfig returns the generator configuration.
func (c Config) SynthConfig() synth.Config {
	cfg := synth.DefaultConfig()
	cfg.Samples = c.Generate.Samples
	cfg.Interval = c.Generate.Interval
	cfg.Seed = c.Generate.Seed
	return cfg
}

// DetectOptions returns the batch detector options.
func (c Config) DetectOptions() anomaly.Options {
	return anomaly.Options{K: c.Anomaly.K, MinRun: c.Anomaly.MinRun}
}

// TwinOptions returns the runtime options.
func (c Config) TwinOptions() twin.Options {
	opts := twin.DefaultOptions()
	opts.Life = c.LifeParams()
	opts.K = c.Anomaly.K
	opts.Warmup = c.Anomaly.Warmup
	return opts
}

// HistoryPath returns the path of the history database.
func (c Config) HistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return filepath.Join(c.DataDir, "history.db")
}
