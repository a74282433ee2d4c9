// Package catalog holds the process-wide reference list of known item
// identifiers. The catalog is loaded once at startup and treated as
// immutable; the matcher receives it by value on every query.
package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"conveyor/internal/match"
)

// Catalog is an ordered, deduplicated set of item identifiers plus the
// similarity threshold the matcher's fuzzy tier uses against it.
type Catalog struct {
	items     []string
	threshold float64
}

type fileFormat struct {
	Items     []string `toml:"items"`
	Threshold float64  `toml:"similarity_threshold"`
}

// Default returns the built-in catalog of common item identifiers.
func Default() *Catalog {
	return build(defaultItems, match.DefaultThreshold)
}

// Load reads a catalog.toml file. A missing file falls back to the
// built-in defaults; a present but malformed file is an error, since a
// silently empty catalog would make every search return nothing.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read catalog file %s: %w", path, err)
	}

	var parsed fileFormat
	if err := toml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse catalog file %s: %w", path, err)
	}
	if len(parsed.Items) == 0 {
		return nil, fmt.Errorf("catalog file %s lists no items", path)
	}
	threshold := parsed.Threshold
	if threshold <= 0 || threshold > 1 {
		threshold = match.DefaultThreshold
	}
	return build(parsed.Items, threshold), nil
}

func build(items []string, threshold float64) *Catalog {
	normalized := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		item = strings.ToLower(strings.TrimSpace(item))
		if item == "" {
			continue
		}
		if _, dup := seen[item]; dup {
			continue
		}
		seen[item] = struct{}{}
		normalized = append(normalized, item)
	}
	return &Catalog{items: normalized, threshold: threshold}
}

// Items returns the identifiers in catalog order. Callers must not mutate
// the returned slice.
func (c *Catalog) Items() []string { return c.items }

// Len returns the number of identifiers.
func (c *Catalog) Len() int { return len(c.items) }

// Contains reports whether an identifier is in the catalog.
func (c *Catalog) Contains(item string) bool {
	for _, candidate := range c.items {
		if candidate == item {
			return true
		}
	}
	return false
}

// Search runs the item matcher against this catalog.
func (c *Catalog) Search(query string, limit int) []string {
	return match.SearchThreshold(query, c.items, limit, c.threshold)
}
