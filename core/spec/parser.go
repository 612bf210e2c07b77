// Package spec parses the per-job YAML migration specification.
package spec

import (
	"fmt"
	"os"
	"time"

	"vm-migrator/core/poller"

	"gopkg.in/yaml.v3"
)

// MigrationSpec is the parsed YAML migration specification for one job.
type MigrationSpec struct {
	Migration MigrationSection `yaml:"migration"`
}

// MigrationSection is the migration section of the spec.
type MigrationSection struct {
	InstanceID  string             `yaml:"instance_id"`
	Source      SourceSection      `yaml:"source"`
	Destination DestinationSection `yaml:"destination"`
	Polling     PollingSection     `yaml:"polling"`
	RetryBudget int                `yaml:"retry_budget"`
	StagingDir  string             `yaml:"staging_dir"`
}

// SourceSection configures the source cloud side.
type SourceSection struct {
	Region       string `yaml:"region"`
	ExportBucket string `yaml:"export_bucket"`
	ExportFormat string `yaml:"export_format"`
}

// DestinationSection configures the destination cloud side.
type DestinationSection struct {
	Project     string `yaml:"project"`
	Zone        string `yaml:"zone"`
	Network     string `yaml:"network"`
	MachineType string `yaml:"machine_type"`
	Bucket      string `yaml:"bucket"`
	OSHint      string `yaml:"os_hint"`
	Credentials string `yaml:"credentials"`
}

// PollingSection bounds the async waits. Intervals are durations
// ("60s", "2m"); attempts cap the number of polls.
type PollingSection struct {
	ExportInterval string `yaml:"export_interval"`
	ExportAttempts int    `yaml:"export_attempts"`
	ImportInterval string `yaml:"import_interval"`
	ImportAttempts int    `yaml:"import_attempts"`
}

// ParseFile reads and parses a migration spec file.
func ParseFile(path string) (*MigrationSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spec file: %w", err)
	}
	return Parse(string(data))
}

// Parse parses a YAML migration spec and applies defaults.
func Parse(specYAML string) (*MigrationSpec, error) {
	var s MigrationSpec
	if err := yaml.Unmarshal([]byte(specYAML), &s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	m := &s.Migration
	if m.InstanceID == "" {
		return nil, fmt.Errorf("migration.instance_id is required")
	}
	if m.Source.ExportBucket == "" {
		return nil, fmt.Errorf("migration.source.export_bucket is required")
	}
	if m.Destination.Project == "" {
		return nil, fmt.Errorf("migration.destination.project is required")
	}
	if m.Destination.Zone == "" {
		return nil, fmt.Errorf("migration.destination.zone is required")
	}
	if m.Destination.Bucket == "" {
		return nil, fmt.Errorf("migration.destination.bucket is required")
	}

	// Defaults
	if m.Source.ExportFormat == "" {
		m.Source.ExportFormat = "raw"
	}
	if m.Destination.MachineType == "" {
		m.Destination.MachineType = "n1-standard-1"
	}
	if m.Destination.Network == "" {
		m.Destination.Network = "default"
	}
	if m.Destination.OSHint == "" {
		// The OS hint is per-job configuration; debian-9 preserves the
		// historical default.
		m.Destination.OSHint = "debian-9"
	}
	if m.Polling.ExportInterval == "" {
		m.Polling.ExportInterval = "60s"
	}
	if m.Polling.ExportAttempts == 0 {
		m.Polling.ExportAttempts = 60
	}
	if m.Polling.ImportInterval == "" {
		m.Polling.ImportInterval = "30s"
	}
	if m.Polling.ImportAttempts == 0 {
		m.Polling.ImportAttempts = 60
	}
	if m.RetryBudget == 0 {
		m.RetryBudget = 3
	}

	if _, err := m.Polling.ExportConfig(); err != nil {
		return nil, err
	}
	if _, err := m.Polling.ImportConfig(); err != nil {
		return nil, err
	}
	return &s, nil
}

// ExportConfig returns the poll bounds for the export wait.
func (p PollingSection) ExportConfig() (poller.Config, error) {
	d, err := time.ParseDuration(p.ExportInterval)
	if err != nil {
		return poller.Config{}, fmt.Errorf("invalid export_interval: %w", err)
	}
	return poller.Config{Interval: d, MaxAttempts: p.ExportAttempts}, nil
}

// ImportConfig returns the poll bounds for the import wait.
func (p PollingSection) ImportConfig() (poller.Config, error) {
	d, err := time.ParseDuration(p.ImportInterval)
	if err != nil {
		return poller.Config{}, fmt.Errorf("invalid import_interval: %w", err)
	}
	return poller.Config{Interval: d, MaxAttempts: p.ImportAttempts}, nil
}
