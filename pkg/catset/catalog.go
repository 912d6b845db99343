package catset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dougsko/catd/pkg/logging"
)

// documentExtensions are the file types loaded from a command set directory
var documentExtensions = []string{".json", ".yaml", ".yml"}

// Catalog holds the command sets of all supported radios, keyed by model name.
// It is built once at startup and never modified afterwards.
type Catalog struct {
	sets map[string]*CommandSet
}

// Model names a command set and its numeric id
type Model struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// NewCatalog builds a catalog from already parsed command sets
func NewCatalog(sets map[string]*CommandSet) (*Catalog, error) {
	c := &Catalog{sets: make(map[string]*CommandSet, len(sets))}
	ids := make(map[int]string)
	for _, name := range sortedKeys(sets) {
		cs := sets[name]
		if other, dup := ids[cs.ID]; dup {
			return nil, fmt.Errorf("%w: %s and %s share id %d", ErrInvalid, other, name, cs.ID)
		}
		ids[cs.ID] = name
		c.sets[name] = cs
	}
	return c, nil
}

// LoadDir parses every command set document in dir. The model name is the
// file name without its extension. Any failure aborts the whole load.
func LoadDir(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read command set directory: %w", err)
	}

	sets := make(map[string]*CommandSet)
	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if entry.IsDir() || !isDocument(ext) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		name := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		if _, dup := sets[name]; dup {
			return nil, fmt.Errorf("command set %q is defined more than once in %s", name, dir)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read command set %s: %w", path, err)
		}
		cs, err := Parse(data)
		if err != nil {
			logging.Error("catset", fmt.Sprintf("Error loading command set '%s': %v", path, err))
			return nil, fmt.Errorf("command set %s: %w", path, err)
		}
		sets[name] = cs
		logging.Debugf("catset", "Loaded command set %s (id %d) from %s", name, cs.ID, path)
	}

	if len(sets) == 0 {
		return nil, fmt.Errorf("no valid command sets found in %s", dir)
	}
	return NewCatalog(sets)
}

func isDocument(ext string) bool {
	for _, e := range documentExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Lookup finds a command set by exact model name or by numeric id
func (c *Catalog) Lookup(model string) (string, *CommandSet, error) {
	if cs, ok := c.sets[model]; ok {
		return model, cs, nil
	}
	if id, err := strconv.Atoi(model); err == nil {
		for name, cs := range c.sets {
			if cs.ID == id {
				return name, cs, nil
			}
		}
	}
	return "", nil, fmt.Errorf("command set for radio model %s is not available", model)
}

// Names returns the model names in sorted order
func (c *Catalog) Names() []string {
	return sortedKeys(c.sets)
}

// Models returns every model ordered by id
func (c *Catalog) Models() []Model {
	models := make([]Model, 0, len(c.sets))
	for name, cs := range c.sets {
		models = append(models, Model{ID: cs.ID, Name: name})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models
}

// ListModels renders the model table printed by "catd -l"
func (c *Catalog) ListModels() string {
	lines := []string{"Rig #    Model"}
	for _, m := range c.Models() {
		lines = append(lines, fmt.Sprintf("%04d     %s", m.ID, m.Name))
	}
	return strings.Join(lines, "\n")
}

func sortedKeys(sets map[string]*CommandSet) []string {
	names := make([]string, 0, len(sets))
	for name := range sets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
