// Package config loads nirsvault settings: defaults, then a YAML file, then
// NIRSVAULT_* environment variables, validated as a whole.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"nirsvault/internal/apperr"
	"nirsvault/internal/domain"
)

// EnvPrefix prefixes every environment override, e.g. NIRSVAULT_WAREHOUSE_HOST.
const EnvPrefix = "NIRSVAULT"

// Config is the complete application configuration.
type Config struct {
	Warehouse domain.Warehouse `yaml:"warehouse" envconfig:"WAREHOUSE"`
	State     StateConfig      `yaml:"state" envconfig:"STATE"`
	Logging   LoggingConfig    `yaml:"logging" envconfig:"LOGGING"`
	Server    ServerConfig     `yaml:"server" envconfig:"SERVER"`
	Pipeline  PipelineConfig   `yaml:"pipeline" envconfig:"PIPELINE"`
	Dashboard DashboardConfig  `yaml:"dashboard" envconfig:"DASHBOARD"`
	Sources   SourcesConfig    `yaml:"sources" envconfig:"SOURCES"`
	Jobs      []JobConfig      `yaml:"jobs" ignored:"true" validate:"dive"`
}

// StateConfig locates the local SQLite file holding run logs and snapshots.
type StateConfig struct {
	Path string `yaml:"path" envconfig:"PATH" validate:"required"`
}

// LoggingConfig selects the zap logger.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error"`
	Format      string `yaml:"format" envconfig:"FORMAT" validate:"oneof=json console"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT"`
}

// ServerConfig is the HTTP dashboard API.
type ServerConfig struct {
	Addr            string        `yaml:"addr" envconfig:"ADDR" validate:"required"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
}

// PipelineConfig tunes ingest runs.
type PipelineConfig struct {
	Workers  int           `yaml:"workers" envconfig:"WORKERS" validate:"gte=1"`
	Timeout  time.Duration `yaml:"timeout" envconfig:"TIMEOUT" validate:"gt=0"`
	Debounce time.Duration `yaml:"debounce" envconfig:"DEBOUNCE" validate:"gt=0"`
}

// DashboardConfig tunes metric snapshots.
type DashboardConfig struct {
	Cache          bool          `yaml:"cache" envconfig:"CACHE"`
	SnapshotMaxAge time.Duration `yaml:"snapshot_max_age" envconfig:"SNAPSHOT_MAX_AGE" validate:"gte=0"`
}

// SourcesConfig names the default data folders. Each folder that is set
// gets a manual job of the same source name unless Jobs declares one.
type SourcesConfig struct {
	VMFolder        string `yaml:"vm_folder" envconfig:"VM_FOLDER"`
	PreAutismFolder string `yaml:"preautism_folder" envconfig:"PREAUTISM_FOLDER"`
	Workers         int    `yaml:"workers" envconfig:"WORKERS" validate:"gte=0"`
}

// JobConfig declares one ingest job.
type JobConfig struct {
	Name          string `yaml:"name" validate:"required"`
	Source        string `yaml:"source" validate:"required,oneof=vm preautism"`
	Folder        string `yaml:"folder" validate:"required"`
	Workers       int    `yaml:"workers" validate:"gte=0"`
	IncludeEvents bool   `yaml:"include_events"`
	Trigger       string `yaml:"trigger" validate:"omitempty,oneof=manual schedule file_watch"`
	// cron expression for schedule, watched folder for file_watch
	TriggerConfig string `yaml:"trigger_config" validate:"required_if=Trigger schedule"`
	Enabled       *bool  `yaml:"enabled"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Warehouse: domain.Warehouse{Driver: domain.WarehouseDriverSQLite, Host: "vault.db"},
		State:     StateConfig{Path: "nirsvault.db"},
		Logging:   LoggingConfig{Level: "info", Format: "json"},
		Server:    ServerConfig{Addr: ":8080", ShutdownTimeout: 15 * time.Second},
		Pipeline:  PipelineConfig{Workers: 2, Timeout: 30 * time.Minute, Debounce: 2 * time.Second},
		Dashboard: DashboardConfig{Cache: true},
	}
}

// Load reads the YAML file at path when it exists, applies environment
// overrides and validates. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, apperr.Config(fmt.Sprintf("parse %s", path), err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, apperr.Config(fmt.Sprintf("read %s", path), err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, apperr.Config("environment", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration and every declared job.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return apperr.Config(describe(verrs), err)
		}
		return apperr.Config("invalid configuration", err)
	}
	seen := map[string]bool{}
	for _, j := range c.Jobs {
		if seen[j.Name] {
			return apperr.Config(fmt.Sprintf("job %q declared twice", j.Name), nil)
		}
		seen[j.Name] = true
	}
	return nil
}

func describe(verrs validator.ValidationErrors) string {
	first := verrs[0]
	msg := fmt.Sprintf("%s fails %q", first.Namespace(), first.Tag())
	if first.Param() != "" {
		msg += " (" + first.Param() + ")"
	}
	if len(verrs) > 1 {
		msg += fmt.Sprintf(" and %d more", len(verrs)-1)
	}
	return msg
}
