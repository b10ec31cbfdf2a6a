// Package curriculum holds the grade-level catalog offered to learners.
package curriculum

import (
	"fmt"
	"slices"
	"strings"
)

// defaultLevels is used when no catalog file is configured. The third entry
// is the default, matching the mid-range tier most lessons are pitched at.
var defaultLevels = []string{
	"Grade 3",
	"Grade 4",
	"Grade 5",
	"Grade 6",
	"Grade 7",
	"Grade 8",
}

// Catalog is an ordered, immutable set of grade levels with a default.
type Catalog struct {
	levels []string
	def    string
}

// DefaultCatalog returns the built-in grade levels.
func DefaultCatalog() *Catalog {
	return &Catalog{
		levels: slices.Clone(defaultLevels),
		def:    defaultLevels[2],
	}
}

// NewCatalog builds a catalog from levels. An empty def picks the third
// level (or the last one for shorter lists).
func NewCatalog(levels []string, def string) (*Catalog, error) {
	if len(levels) == 0 {
		return nil, fmt.Errorf("catalog has no grade levels")
	}

	seen := make(map[string]bool, len(levels))
	cleaned := make([]string, 0, len(levels))
	for _, l := range levels {
		l = strings.TrimSpace(l)
		if l == "" {
			return nil, fmt.Errorf("catalog contains an empty grade level")
		}
		if seen[l] {
			return nil, fmt.Errorf("duplicate grade level %q", l)
		}
		seen[l] = true
		cleaned = append(cleaned, l)
	}

	def = strings.TrimSpace(def)
	if def == "" {
		def = cleaned[min(2, len(cleaned)-1)]
	}
	if !seen[def] {
		return nil, fmt.Errorf("default grade level %q is not in the catalog", def)
	}

	return &Catalog{levels: cleaned, def: def}, nil
}

// Levels returns a copy of the grade levels in display order.
func (c *Catalog) Levels() []string {
	return slices.Clone(c.levels)
}

// Default returns the grade level a new session starts with.
func (c *Catalog) Default() string {
	return c.def
}

// Contains reports whether level is one of the catalog's grade levels.
func (c *Catalog) Contains(level string) bool {
	return slices.Contains(c.levels, level)
}
