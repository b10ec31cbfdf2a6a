package curriculum

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// CatalogFileName is looked up when LoadCatalog is given a directory.
const CatalogFileName = "grade_levels.yaml"

// catalogFile is the on-disk shape of a grade-level catalog.
type catalogFile struct {
	Levels  []string `yaml:"levels"`
	Default string   `yaml:"default"`
}

// LoadCatalog reads a grade-level catalog from a YAML file, or from
// grade_levels.yaml inside path when path is a directory. An empty path
// returns the built-in catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat catalog: %w", err)
	}
	if info.IsDir() {
		path = filepath.Join(path, CatalogFileName)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	catalog, err := NewCatalog(file.Levels, file.Default)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}

	slog.Info("grade levels loaded", "path", path, "levels", len(catalog.levels), "default", catalog.def)
	return catalog, nil
}
