package config

import (
	"os"

	"github.com/BurntSushi/toml"

	"github.com/create-to-solve/jtis/internal/model"
)

// Config holds all user-facing configuration for the pipeline.
type Config struct {
	Data     DataConfig     `toml:"data"`
	Registry RegistryConfig `toml:"registry"`
	Server   ServerConfig   `toml:"server"`
	Scoring  ScoringConfig  `toml:"scoring"`
	Log      LogConfig      `toml:"log"`
}

type DataConfig struct {
	Dir string `toml:"dir"`
}

type RegistryConfig struct {
	Path string `toml:"path"`
}

type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
	// RateLimit is the allowed API requests per second.
	RateLimit float64 `toml:"rate_limit"`
}

// ScoringConfig carries the externally supplied weighting scheme. Weights are
// configuration on purpose: the scorer itself hardcodes no scheme.
type ScoringConfig struct {
	Normalisation string             `toml:"normalisation"`
	Weights       map[string]float64 `toml:"weights"`
}

// Method resolves the configured normalisation method.
func (s ScoringConfig) Method() model.NormalisationMethod {
	if s.Normalisation == string(model.NormZScore) {
		return model.NormZScore
	}
	return model.NormMinMax
}

type LogConfig struct {
	Level string `toml:"level"`
}

// Defaults returns a Config populated with built-in default values. The
// default weights reproduce the published JTIS scheme (half emissions, 0.4
// transport, 0.1 structural) but any indicator may be weighted via config.
func Defaults() *Config {
	return &Config{
		Data:     DataConfig{Dir: "data"},
		Registry: RegistryConfig{Path: "config/datasets.yaml"},
		Server:   ServerConfig{Host: "localhost", Port: 8080, RateLimit: 10},
		Scoring: ScoringConfig{
			Normalisation: string(model.NormMinMax),
			Weights: map[string]float64{
				"emissions_intensity": 0.5,
				"transport_intensity": 0.4,
				"deprivation":         0.1,
			},
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads a TOML config file. If the file does not exist, built-in
// defaults are returned without error.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
