package entity

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Resource names of the dashboard list views and their nested record kinds.
const (
	Addons            = "addons"
	Users             = "users"
	Orders            = "orders"
	Recipes           = "recipes"
	RecipeSuggestions = "recipe_suggestions"

	RecipeIngredients = "recipe_ingredients"
	RecipeSteps       = "recipe_steps"
)

//go:embed aliases.yaml
var defaultAliasYAML []byte

// ResourceAliases is the alias configuration of one resource.
type ResourceAliases struct {
	// Path is the REST collection path, empty for nested record kinds.
	Path string `yaml:"path"`

	// Collection lists envelope keys tried after the generic ones.
	Collection []string `yaml:"collection"`

	// Fields maps a canonical field to backend variants in priority order.
	Fields map[string][]string `yaml:"fields"`
}

// AliasTable maps a resource name to its aliases.
type AliasTable map[string]ResourceAliases

// ParseAliasTable decodes an alias table from YAML.
//
// Errors:
//   - Returns an error for malformed YAML.
//   - Returns an error when a field has no aliases (it could never match).
func ParseAliasTable(r io.Reader) (AliasTable, error) {
	var t AliasTable
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		if err == io.EOF {
			return AliasTable{}, nil
		}
		return nil, fmt.Errorf("parse alias table: %w", err)
	}
	for _, name := range t.Resources() {
		for field, aliases := range t[name].Fields {
			if len(aliases) == 0 {
				return nil, fmt.Errorf("alias table: %s.%s has no aliases", name, field)
			}
		}
	}
	return t, nil
}

// DefaultAliases returns the built-in alias table.
func DefaultAliases() AliasTable {
	t, err := ParseAliasTable(bytes.NewReader(defaultAliasYAML))
	if err != nil {
		panic(err)
	}
	return t
}

// LoadAliasFile reads an override file and merges it onto the defaults.
// A resource present in the file replaces the default entry as a whole.
//
// An empty path returns the defaults unchanged.
func LoadAliasFile(path string) (AliasTable, error) {
	base := DefaultAliases()
	if path == "" {
		return base, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open alias file: %w", err)
	}
	defer f.Close()

	override, err := ParseAliasTable(f)
	if err != nil {
		return nil, err
	}
	return base.Merge(override), nil
}

// Merge returns a copy of t with every resource of o replacing its entry.
func (t AliasTable) Merge(o AliasTable) AliasTable {
	out := make(AliasTable, len(t)+len(o))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range o {
		out[k] = v
	}
	return out
}

// Resources returns resource names in sorted order.
func (t AliasTable) Resources() []string {
	out := make([]string, 0, len(t))
	for k := range t {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
