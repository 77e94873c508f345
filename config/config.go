//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of AssetFlow.
//
// AssetFlow is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// AssetFlow is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with AssetFlow. If not, see https://www.gnu.org/licenses/.

// Package config loads the YAML run configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aaronlmathis/assetflow/writers"
)

// SourceURLEnv overrides source.url when set.
const SourceURLEnv = "ASSETFLOW_SOURCE_URL"

// DefaultSourceURL is the Our World in Data compact COVID-19 dataset.
const DefaultSourceURL = "https://catalog.ourworldindata.org/garden/covid/latest/compact/compact.csv"

// Config is the full run configuration.
type Config struct {
	Source    SourceConfig    `yaml:"source"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Execution ExecutionConfig `yaml:"execution"`
	Report    ReportConfig    `yaml:"report"`
	Log       LogConfig       `yaml:"log"`
}

// SourceConfig selects where the raw dataset comes from.
type SourceConfig struct {
	URL        string            `yaml:"url"`
	Timeout    time.Duration     `yaml:"timeout"`
	Retries    int               `yaml:"retries"`
	RetryDelay time.Duration     `yaml:"retry_delay"`
	Headers    map[string]string `yaml:"headers"`
	Sheet      string            `yaml:"sheet"`
	AWS        AWSConfig         `yaml:"aws"`
}

// AWSConfig is shared by S3 sources and report uploads.
type AWSConfig struct {
	Region    string `yaml:"region"`
	Profile   string `yaml:"profile"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// PipelineConfig holds the business parameters of the COVID pipeline.
type PipelineConfig struct {
	Countries     []string `yaml:"countries"`
	RollingWindow int      `yaml:"rolling_window"`
	IncidenceMin  float64  `yaml:"incidence_min"`
	IncidenceMax  float64  `yaml:"incidence_max"`
	Workbook      string   `yaml:"workbook"`
}

// ExecutionConfig tunes the scheduler.
type ExecutionConfig struct {
	MaxWorkers   int           `yaml:"max_workers"`
	StrictChecks bool          `yaml:"strict_checks"`
	StepTimeout  time.Duration `yaml:"step_timeout"`
	Retry        struct {
		MaxAttempts  int           `yaml:"max_attempts"`
		InitialDelay time.Duration `yaml:"initial_delay"`
		MaxDelay     time.Duration `yaml:"max_delay"`
	} `yaml:"retry"`
}

// ReportConfig controls where outputs go.
type ReportConfig struct {
	Dir      string `yaml:"dir"`
	Format   string `yaml:"format"`
	Postgres struct {
		DSN    string `yaml:"dsn"`
		Schema string `yaml:"schema"`
	} `yaml:"postgres"`
	S3 struct {
		Bucket string `yaml:"bucket"`
		Prefix string `yaml:"prefix"`
	} `yaml:"s3"`
}

// LogConfig configures slog output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// Load reads path (defaults only when empty), applies the environment override,
// fills defaults and validates.
func Load(path string) (*Config, error) {
	c := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if v := strings.TrimSpace(os.Getenv(SourceURLEnv)); v != "" {
		c.Source.URL = v
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Source.URL == "" {
		c.Source.URL = DefaultSourceURL
	}
	if c.Source.Timeout <= 0 {
		c.Source.Timeout = 30 * time.Second
	}
	if c.Source.Retries < 0 {
		c.Source.Retries = 0
	}
	if c.Source.RetryDelay <= 0 {
		c.Source.RetryDelay = time.Second
	}

	if len(c.Pipeline.Countries) == 0 {
		c.Pipeline.Countries = []string{"Ecuador", "Peru"}
	}
	if c.Pipeline.RollingWindow <= 0 {
		c.Pipeline.RollingWindow = 7
	}
	if c.Pipeline.IncidenceMax == 0 && c.Pipeline.IncidenceMin == 0 {
		c.Pipeline.IncidenceMax = 1000
	}
	if c.Pipeline.Workbook == "" {
		c.Pipeline.Workbook = "covid_report.xlsx"
	}

	if c.Execution.Retry.InitialDelay <= 0 {
		c.Execution.Retry.InitialDelay = time.Second
	}
	if c.Execution.Retry.MaxDelay <= 0 {
		c.Execution.Retry.MaxDelay = time.Minute
	}

	if c.Report.Dir == "" {
		c.Report.Dir = "reports"
	}
	if c.Report.Format == "" {
		c.Report.Format = writers.FormatCSV
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Pipeline.IncidenceMin > c.Pipeline.IncidenceMax {
		errs = append(errs, fmt.Errorf("pipeline.incidence_min %v exceeds incidence_max %v",
			c.Pipeline.IncidenceMin, c.Pipeline.IncidenceMax))
	}
	if !strings.HasSuffix(strings.ToLower(c.Pipeline.Workbook), ".xlsx") {
		errs = append(errs, fmt.Errorf("pipeline.workbook %q must end in .xlsx", c.Pipeline.Workbook))
	}
	if c.Execution.MaxWorkers < 0 {
		errs = append(errs, fmt.Errorf("execution.max_workers must not be negative"))
	}
	if c.Execution.Retry.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("execution.retry.max_attempts must not be negative"))
	}
	switch c.Report.Format {
	case writers.FormatCSV, writers.FormatJSON, writers.FormatParquet:
	default:
		errs = append(errs, fmt.Errorf("report.format %q must be csv, json or parquet", c.Report.Format))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q must be debug, info, warn or error", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
