package config

import (
	"fmt"
	"os"
	"strings"

	"nirsvault/internal/apperr"
	"nirsvault/internal/etl"
	"nirsvault/internal/etl/sources"
	"nirsvault/internal/header"
)

// SyncJobs returns the declared jobs plus a manual job for each default
// source folder that no declared job already uses by name.
func (c *Config) SyncJobs() []etl.SyncJob {
	jobs := make([]etl.SyncJob, 0, len(c.Jobs)+2)
	names := map[string]bool{}
	for _, j := range c.Jobs {
		jobs = append(jobs, j.SyncJob(c.Sources.Workers))
		names[j.Name] = true
	}

	defaults := []struct{ source, folder string }{
		{sources.SourceVM, c.Sources.VMFolder},
		{sources.SourcePreAutism, c.Sources.PreAutismFolder},
	}
	for _, d := range defaults {
		if d.folder == "" || names[d.source] {
			continue
		}
		jobs = append(jobs, JobConfig{Name: d.source, Source: d.source, Folder: d.folder}.SyncJob(c.Sources.Workers))
	}
	return jobs
}

// SyncJob converts the declaration. workers applies when the job sets none.
func (j JobConfig) SyncJob(workers int) etl.SyncJob {
	cfg := etl.SourceConfig{sources.KeyFolder: j.Folder}
	if j.Workers > 0 {
		workers = j.Workers
	}
	if workers > 0 {
		cfg[sources.KeyWorkers] = workers
	}
	if j.IncludeEvents {
		cfg[sources.KeyIncludeEvents] = true
	}
	trigger := j.Trigger
	if trigger == "" {
		trigger = "manual"
	}
	return etl.SyncJob{
		ID:            j.Name,
		Name:          j.Name,
		SourceType:    j.Source,
		SourceCfg:     cfg,
		TriggerType:   trigger,
		TriggerConfig: j.TriggerConfig,
		Enabled:       j.Enabled == nil || *j.Enabled,
	}
}

// Legacy field names of config.txt.
const (
	LegacyVMFolder        = "VMDataFolder"
	LegacyPreAutismFolder = "PreAutismDataFolder"
)

// ApplyLegacy reads a config.txt of "VMDataFolder,<path>" and
// "PreAutismDataFolder,<path>" lines and sets the folders it names. Fields
// missing from the file leave the current values alone.
func (c *Config) ApplyLegacy(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return apperr.Config(fmt.Sprintf("open %s", path), err)
	}
	defer f.Close()

	sc, err := header.NewScanner(f)
	if err != nil {
		return apperr.Config(fmt.Sprintf("read %s", path), err)
	}
	if v, ok := legacyField(sc, LegacyVMFolder); ok {
		c.Sources.VMFolder = v
	}
	if v, ok := legacyField(sc, LegacyPreAutismFolder); ok {
		c.Sources.PreAutismFolder = v
	}
	return nil
}

func legacyField(sc *header.Scanner, name string) (string, bool) {
	v, ok := sc.Lookup(name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(strings.TrimLeft(v, ","))
	return v, v != ""
}
