// Package mapping holds the per-category type mappings and index settings
// used when creating indices.
package mapping

import (
	"embed"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/escompat/internal/domain"
	"github.com/kailas-cloud/escompat/internal/domain/query"
)

// Index categories.
const (
	CategoryAdmin = "ad"
	CategoryUser  = "usr"
)

const settingsFile = "settings.yaml"

//go:embed defaults/*.yaml
var defaults embed.FS

// Registry maps category -> type -> mapping body. It is read-only after load
// and safe for concurrent use.
type Registry struct {
	categories map[string]map[string]map[string]any
	settings   map[string]any
}

// Load reads the registry from dir, or from the embedded defaults when dir is empty.
func Load(dir string) (*Registry, error) {
	if dir == "" {
		sub, err := fs.Sub(defaults, "defaults")
		if err != nil {
			return nil, fmt.Errorf("open embedded mappings: %w", err)
		}
		return Parse(sub)
	}
	return Parse(os.DirFS(dir))
}

// Parse reads every "<category>.yaml" at the root of fsys. Each file maps type
// name to mapping body. An optional settings.yaml holds base index settings.
func Parse(fsys fs.FS) (*Registry, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}

	r := &Registry{
		categories: make(map[string]map[string]map[string]any),
		settings:   map[string]any{},
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || path.Ext(name) != ".yaml" {
			continue
		}
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}

		if name == settingsFile {
			if err := yaml.Unmarshal(data, &r.settings); err != nil {
				return nil, fmt.Errorf("parse %s: %w", name, err)
			}
			if r.settings == nil {
				r.settings = map[string]any{}
			}
			continue
		}

		var types map[string]map[string]any
		if err := yaml.Unmarshal(data, &types); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		category := strings.TrimSuffix(name, ".yaml")
		for typ, m := range types {
			// Mappings written for single-type engines nest the body under "_doc".
			if inner, ok := m["_doc"].(map[string]any); ok && len(m) == 1 {
				types[typ] = inner
			}
		}
		if len(types) > 0 {
			r.categories[category] = types
		}
	}
	return r, nil
}

// Categories returns the loaded category names, sorted.
func (r *Registry) Categories() []string {
	return slices.Sorted(maps.Keys(r.categories))
}

// Types returns the type names of category, sorted.
func (r *Registry) Types(category string) ([]string, error) {
	types, ok := r.categories[category]
	if !ok {
		return nil, fmt.Errorf("category %q: %w", category, domain.ErrNoMappings)
	}
	return slices.Sorted(maps.Keys(types)), nil
}

// Mapping returns a copy of the mapping body for category and type.
func (r *Registry) Mapping(category, typ string) (map[string]any, bool) {
	m, ok := r.categories[category][typ]
	if !ok {
		return nil, false
	}
	return query.CloneNode(m), true
}

// Settings returns a copy of the base index settings.
func (r *Registry) Settings() map[string]any {
	return query.CloneNode(r.settings)
}
