// Package registry holds the declarative description of every raw dataset the
// pipeline accepts: expected columns and kinds, year ranges, numeric bounds
// and spatial granularity, plus the fixed area lookup. It is loaded once at
// process start and never mutated; every stage receives it explicitly.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// UnknownDatasetError is returned for a schema lookup miss. No processing can
// proceed without a contract, so callers treat it as fatal.
type UnknownDatasetError struct {
	ID string
}

func (e *UnknownDatasetError) Error() string {
	return fmt.Sprintf("unknown dataset %q", e.ID)
}

// Dataset is one registered source: where its raw file lives and which schema
// it must conform to.
type Dataset struct {
	ID          string
	Description string
	// Path of the raw CSV, resolved relative to the registry file.
	Path string
}

// Registry is the loaded, immutable dataset registry.
type Registry struct {
	datasets map[string]Dataset
	schemas  map[string]*DatasetSchema
	areas    *AreaLookup
}

type registryFile struct {
	Areas struct {
		LookupPath string `yaml:"lookup_path"`
	} `yaml:"areas"`
	Datasets map[string]struct {
		Description string `yaml:"description"`
		Path        string `yaml:"path"`
		Schema      string `yaml:"schema"`
	} `yaml:"datasets"`
}

// Load reads the registry file (datasets.yaml), every referenced schema file
// and the area lookup. Relative paths resolve against the registry file's
// directory.
func Load(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading registry: %w", err)
	}

	var file registryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parsing registry %s: %w", path, err)
	}
	if len(file.Datasets) == 0 {
		return nil, fmt.Errorf("registry %s declares no datasets", path)
	}
	if file.Areas.LookupPath == "" {
		return nil, fmt.Errorf("registry %s missing areas.lookup_path", path)
	}

	base := filepath.Dir(path)
	resolve := func(p string) string {
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}

	areas, err := LoadAreas(resolve(file.Areas.LookupPath))
	if err != nil {
		return nil, err
	}

	r := &Registry{
		datasets: make(map[string]Dataset, len(file.Datasets)),
		schemas:  make(map[string]*DatasetSchema, len(file.Datasets)),
		areas:    areas,
	}
	for id, entry := range file.Datasets {
		if entry.Schema == "" {
			return nil, fmt.Errorf("dataset %s: schema file is required", id)
		}
		schema, err := loadSchema(resolve(entry.Schema))
		if err != nil {
			return nil, fmt.Errorf("dataset %s: %w", id, err)
		}
		if schema.ID != id {
			return nil, fmt.Errorf("dataset %s: schema file declares id %q", id, schema.ID)
		}
		r.schemas[id] = schema
		r.datasets[id] = Dataset{
			ID:          id,
			Description: entry.Description,
			Path:        resolve(entry.Path),
		}
	}
	return r, nil
}

func loadSchema(path string) (*DatasetSchema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema: %w", err)
	}
	var schema DatasetSchema
	if err := yaml.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("parsing schema %s: %w", path, err)
	}
	if err := schema.check(); err != nil {
		return nil, err
	}
	return &schema, nil
}

// Schema returns the contract for a dataset id.
func (r *Registry) Schema(id string) (*DatasetSchema, error) {
	schema, ok := r.schemas[id]
	if !ok {
		return nil, &UnknownDatasetError{ID: id}
	}
	return schema, nil
}

// Dataset returns the registration entry for a dataset id.
func (r *Registry) Dataset(id string) (Dataset, error) {
	ds, ok := r.datasets[id]
	if !ok {
		return Dataset{}, &UnknownDatasetError{ID: id}
	}
	return ds, nil
}

// DatasetIDs returns all registered ids, sorted.
func (r *Registry) DatasetIDs() []string {
	ids := make([]string, 0, len(r.datasets))
	for id := range r.datasets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Areas returns the loaded spatial reference.
func (r *Registry) Areas() *AreaLookup {
	return r.areas
}
