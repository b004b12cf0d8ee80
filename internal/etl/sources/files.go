package sources

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"nirsvault/internal/apperr"
	"nirsvault/internal/etl"
)

// ── Shared file plumbing ────────────────────────────────────
// Both instrument sources read a folder of exports, one file group at a
// time, on a bounded pool.

// Config keys common to every file source.
const (
	KeyFolder  = "folder"
	KeyWorkers = "workers"
)

const defaultWorkers = 4

var folderField = etl.ConfigField{
	Key: KeyFolder, Label: "Folder", Type: "folder", Required: true,
	Help: "Directory holding the instrument exports",
}

var workersField = etl.ConfigField{
	Key: KeyWorkers, Label: "Workers", Type: "number", Default: "4",
	Help: "File groups read in parallel",
}

func folder(cfg etl.SourceConfig) (string, error) {
	dir := cfg.String(KeyFolder)
	if dir == "" {
		return "", apperr.Config("folder is required", nil)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", apperr.Config(fmt.Sprintf("folder %q", dir), err)
	}
	if !info.IsDir() {
		return "", apperr.Config(fmt.Sprintf("%q is not a directory", dir), nil)
	}
	return dir, nil
}

// glob returns sorted matches of pattern under dir.
func glob(dir, pattern string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, apperr.Config(fmt.Sprintf("bad pattern %q", pattern), err)
	}
	sort.Strings(matches)
	return matches, nil
}

// extractAll runs read for every group with at most workers in flight.
// Results keep group order; a failed group leaves its slot empty and adds a
// failure at the "extract" stage.
func extractAll[T any](ctx context.Context, groups []etl.GroupRef, workers int,
	read func(etl.GroupRef) (T, error)) ([]T, []bool, []etl.GroupFailure, error) {

	out := make([]T, len(groups))
	ok := make([]bool, len(groups))
	errs := make([]error, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	if workers <= 0 {
		workers = defaultWorkers
	}
	g.SetLimit(workers)
	for i, ref := range groups {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			v, err := read(ref)
			if err != nil {
				errs[i] = err
				return nil
			}
			out[i], ok[i] = v, true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}

	var failures []etl.GroupFailure
	for i, err := range errs {
		if err != nil {
			failures = append(failures, etl.NewGroupFailure(groups[i].Name, "extract", err))
		}
	}
	return out, ok, failures, nil
}

// open opens the file playing role in a group, or reports the group
// incomplete.
func open(ref etl.GroupRef, role string) (*os.File, error) {
	path, found := ref.Files[role]
	if !found || path == "" {
		return nil, apperr.IncompleteGroup(ref.Name, role)
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.IncompleteGroup(ref.Name, role)
		}
		return nil, fmt.Errorf("open %s: %w", role, err)
	}
	return f, nil
}
