// Package entity maps raw backend records onto the fixed-shape entities the
// dashboard renders. Field names are resolved through per-resource alias
// tables, so one backend calling a field "addonName" and another "title"
// both land in Addon.Name.
package entity

import (
	"encoding/json"
	"strconv"
	"strings"

	"dashboard/internal/normalize"
)

// Mapper resolves canonical fields through an AliasTable.
//
// A Mapper is immutable after construction and safe for concurrent use.
type Mapper struct {
	table AliasTable
}

// NewMapper returns a Mapper over t. A nil table means DefaultAliases().
func NewMapper(t AliasTable) *Mapper {
	if t == nil {
		t = DefaultAliases()
	}
	return &Mapper{table: t}
}

// Resource returns the alias entry of resource and whether it exists.
func (m *Mapper) Resource(resource string) (ResourceAliases, bool) {
	ra, ok := m.table[resource]
	return ra, ok
}

// CollectionKeys returns the resource-specific envelope keys used by the
// array extractor. Unknown resources fall back to the resource name itself.
func (m *Mapper) CollectionKeys(resource string) []string {
	if ra, ok := m.table[resource]; ok && len(ra.Collection) > 0 {
		return ra.Collection
	}
	return []string{resource}
}

// Path returns the REST collection path of resource, or "/<resource>" when
// the table does not name one.
func (m *Mapper) Path(resource string) string {
	if ra, ok := m.table[resource]; ok && ra.Path != "" {
		return ra.Path
	}
	return "/" + resource
}

// Lookup returns the first non-null value among the aliases of field.
//
// Edge cases:
//   - Unknown resources and fields look up the canonical name verbatim.
//   - Dotted aliases ("customer.name") walk nested objects.
//   - A nil record reports ok=false.
func (m *Mapper) Lookup(resource string, rec normalize.RawRecord, field string) (any, bool) {
	if rec == nil {
		return nil, false
	}
	aliases := m.table[resource].Fields[field]
	if len(aliases) == 0 {
		aliases = []string{field}
	}
	for _, a := range aliases {
		if v, ok := dig(rec, a); ok {
			return v, true
		}
	}
	return nil, false
}

// Map returns every canonical field of resource that rec carries.
// It backs generic tables and exports where no typed entity exists.
func (m *Mapper) Map(resource string, rec normalize.RawRecord) map[string]any {
	fields := m.table[resource].Fields
	out := make(map[string]any, len(fields))
	for field := range fields {
		if v, ok := m.Lookup(resource, rec, field); ok {
			out[field] = v
		}
	}
	return out
}

func (m *Mapper) str(resource string, rec normalize.RawRecord, field string) string {
	v, _ := m.Lookup(resource, rec, field)
	return AsString(v)
}

func (m *Mapper) num(resource string, rec normalize.RawRecord, field string) float64 {
	v, _ := m.Lookup(resource, rec, field)
	f, _ := AsFloat(v)
	return f
}

func (m *Mapper) integer(resource string, rec normalize.RawRecord, field string) int {
	v, _ := m.Lookup(resource, rec, field)
	n, _ := normalize.AsInt(v)
	return n
}

func (m *Mapper) flag(resource string, rec normalize.RawRecord, field string) bool {
	v, _ := m.Lookup(resource, rec, field)
	b, _ := AsBool(v)
	return b
}

func dig(rec map[string]any, path string) (any, bool) {
	var cur any = rec
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

// AsString renders scalar JSON values as text. Objects and arrays yield "".
func AsString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// AsFloat coerces numbers and numeric strings ("12.50") into a float64.
func AsFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// AsBool accepts booleans, 0/1 numbers and the usual string spellings.
func AsBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes", "y", "active", "enabled":
			return true, true
		case "false", "0", "no", "n", "inactive", "disabled":
			return false, true
		}
		return false, false
	default:
		if n, ok := normalize.AsInt(v); ok {
			return n != 0, true
		}
		return false, false
	}
}
