//
// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

// Package config loads the noise parameters of a reach report from a YAML
// file, overridden by REACHNOISE_* environment variables.
package config

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/differential-privacy/reachnoise/noise"
	"github.com/google/differential-privacy/reachnoise/report"
	"github.com/ilyakaznacheev/cleanenv"
)

// Calibration names accepted by Config.Calibration.
const (
	ClassicCalibration  = "classic"
	AnalyticCalibration = "analytic"
)

// Config holds the parameters of a noising run. Epsilon, Delta and
// Parallelism left at zero fall back to the defaults of noise.Options and
// report.Options.
//
// Sensitivity, Scale and Sigma are kept as text so that an explicit 0 can be
// told apart from an absent value; they are unset when empty.
type Config struct {
	Mechanism   string  `yaml:"mechanism" env:"REACHNOISE_MECHANISM" env-description:"noise mechanism, laplace or gaussian"`
	Epsilon     float64 `yaml:"epsilon" env:"REACHNOISE_EPSILON" env-description:"privacy parameter epsilon"`
	Delta       float64 `yaml:"delta" env:"REACHNOISE_DELTA" env-description:"privacy parameter delta, gaussian only"`
	Sensitivity string  `yaml:"sensitivity" env:"REACHNOISE_SENSITIVITY" env-description:"how much one individual can change a group"`
	Scale       string  `yaml:"scale" env:"REACHNOISE_SCALE" env-description:"laplace scale, overrides epsilon"`
	Sigma       string  `yaml:"sigma" env:"REACHNOISE_SIGMA" env-description:"gaussian standard deviation, overrides epsilon and delta"`
	Calibration string  `yaml:"calibration" env:"REACHNOISE_CALIBRATION" env-description:"gaussian calibration, classic or analytic"`
	Round       bool    `yaml:"round" env:"REACHNOISE_ROUND" env-description:"round noisy values to integers"`
	Parallelism int     `yaml:"parallelism" env:"REACHNOISE_PARALLELISM" env-description:"groups noised concurrently"`

	// Groups is the report to noise, group name to true value.
	Groups map[string]float64 `yaml:"groups"`
}

// Load reads the configuration file at path and applies the environment
// overrides. An empty path reads the environment only.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("couldn't read the environment: %w", err)
		}
		return cfg, nil
	}
	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("couldn't read the config file = %q: %w", path, err)
	}
	return cfg, nil
}

// Usage writes a description of the environment variables to w after the
// output of usage, which may be nil.
func Usage(w io.Writer, usage func()) func() {
	header := "Environment variables:"
	if usage == nil {
		return cleanenv.FUsage(w, &Config{}, &header)
	}
	return cleanenv.FUsage(w, &Config{}, &header, usage)
}

// NoiseOptions converts c into the options of a single noising call. It
// returns an error for unknown mechanism or calibration names and for numbers
// that don't parse; the ranges of the numeric parameters are checked when
// noise is added.
func (c *Config) NoiseOptions() (*noise.Options, error) {
	kind, err := noise.ParseKind(c.Mechanism)
	if err != nil {
		return nil, err
	}
	opt := &noise.Options{Epsilon: c.Epsilon, Delta: c.Delta}
	for _, f := range []struct {
		name  string
		value string
		dst   **float64
	}{
		{"sensitivity", c.Sensitivity, &opt.Sensitivity},
		{"scale", c.Scale, &opt.Scale},
		{"sigma", c.Sigma, &opt.Sigma},
	} {
		if *f.dst, err = parseOptional(f.name, f.value); err != nil {
			return nil, err
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.Calibration)) {
	case "", ClassicCalibration:
	case AnalyticCalibration:
		if kind != noise.GaussianNoise {
			return nil, fmt.Errorf("%w: calibration %q only applies to gaussian noise, got %v", noise.ErrInvalidParameter, c.Calibration, kind)
		}
		opt.Calibration = noise.AnalyticCalibration{}
	default:
		return nil, fmt.Errorf("%w: calibration %q, must be one of %q, %q", noise.ErrInvalidParameter, c.Calibration, ClassicCalibration, AnalyticCalibration)
	}
	return opt, nil
}

// parseOptional returns nil for an empty value.
func parseOptional(name, value string) (*float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s = %q is not a number", noise.ErrInvalidParameter, name, value)
	}
	return noise.Float64(v), nil
}

// ReportOptions converts c into the options of report.Noise.
func (c *Config) ReportOptions() (*report.Options, error) {
	opt, err := c.NoiseOptions()
	if err != nil {
		return nil, err
	}
	return &report.Options{
		Mechanism:   c.Mechanism,
		Noise:       opt,
		Round:       c.Round,
		Parallelism: c.Parallelism,
	}, nil
}

// Report returns a copy of the groups of c.
func (c *Config) Report() report.Report {
	r := make(report.Report, len(c.Groups))
	for g, v := range c.Groups {
		r[g] = v
	}
	return r
}
