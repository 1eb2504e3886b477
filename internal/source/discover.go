package source

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/handsdb/hands/internal/model"
	"github.com/handsdb/hands/internal/task"
)

// RawDefinition is a definition file found by a Loader, not yet parsed.
type RawDefinition struct {
	ID   string
	Path string
	Data []byte
}

// Loader finds definition files in a directory.
type Loader interface {
	Scan(dir string) ([]RawDefinition, []model.DiscoveryError)
}

var definitionExts = []string{".yaml", ".yml", ".json"}

// FileLoader scans one directory level: <id>.yaml|.yml|.json files and
// <id>/ directories holding source.* or action.*. Hidden entries are
// skipped. A missing directory yields nothing.
type FileLoader struct{}

func (FileLoader) Scan(dir string) ([]RawDefinition, []model.DiscoveryError) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, []model.DiscoveryError{{File: dir, Error: err.Error()}}
	}

	var (
		defs []RawDefinition
		errs []model.DiscoveryError
	)
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		var id, path string
		if e.IsDir() {
			path = findEntryFile(filepath.Join(dir, name))
			if path == "" {
				continue
			}
			id = name
		} else {
			ext := filepath.Ext(name)
			if !isDefinitionExt(ext) {
				continue
			}
			id = strings.TrimSuffix(name, ext)
			path = filepath.Join(dir, name)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, model.DiscoveryError{File: path, Error: err.Error()})
			continue
		}
		defs = append(defs, RawDefinition{ID: id, Path: path, Data: data})
	}
	return defs, errs
}

func findEntryFile(dir string) string {
	for _, base := range []string{"source", "action"} {
		for _, ext := range definitionExts {
			p := filepath.Join(dir, base+ext)
			if info, err := os.Stat(p); err == nil && !info.IsDir() {
				return p
			}
		}
	}
	return ""
}

func isDefinitionExt(ext string) bool {
	for _, e := range definitionExts {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

// DiscoveryResult holds the loaded sources, sorted by id, and the files that
// failed to load.
type DiscoveryResult struct {
	Sources []*Source              `json:"sources"`
	Errors  []model.DiscoveryError `json:"errors"`
}

// Discover loads every definition in dir. A file that fails to parse,
// validate or build is reported in Errors and never aborts the scan.
func Discover(loader Loader, dir string, typ Type, kinds *task.Registry, checkSchedule func(string) error) DiscoveryResult {
	raws, errs := loader.Scan(dir)
	result := DiscoveryResult{
		Sources: []*Source{},
		Errors:  append([]model.DiscoveryError{}, errs...),
	}

	seen := make(map[string]string)
	for _, raw := range raws {
		if prev, dup := seen[raw.ID]; dup {
			result.Errors = append(result.Errors, model.DiscoveryError{
				File:  raw.Path,
				Error: fmt.Sprintf("duplicate id %q (already defined by %s)", raw.ID, prev),
			})
			continue
		}
		seen[raw.ID] = raw.Path

		def, err := ParseDefinition(raw.Data, checkSchedule)
		if err != nil {
			result.Errors = append(result.Errors, model.DiscoveryError{File: raw.Path, Error: err.Error()})
			continue
		}
		src, err := Build(raw.ID, typ, raw.Path, def, kinds)
		if err != nil {
			result.Errors = append(result.Errors, model.DiscoveryError{File: raw.Path, Error: err.Error()})
			continue
		}
		result.Sources = append(result.Sources, src)
	}

	sort.Slice(result.Sources, func(i, j int) bool {
		return result.Sources[i].ID < result.Sources[j].ID
	})
	return result
}
