package entity

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"dashboard/internal/normalize"
)

func record(t *testing.T, s string) normalize.RawRecord {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var rec normalize.RawRecord
	if err := dec.Decode(&rec); err != nil {
		t.Fatalf("decode(%q) err=%v", s, err)
	}
	return rec
}

// TestDefaultAliases verifies the embedded table parses and names every view.
func TestDefaultAliases(t *testing.T) {
	t.Parallel()

	tbl := DefaultAliases()
	for _, r := range []string{Addons, Users, Orders, Recipes, RecipeSuggestions, RecipeIngredients, RecipeSteps} {
		if _, ok := tbl[r]; !ok {
			t.Fatalf("DefaultAliases() missing resource %q", r)
		}
	}
	if got := tbl[Addons].Fields["name"]; !cmp.Equal(got, []string{"addonName", "name", "title"}) {
		t.Fatalf("addons.name aliases=%v, want [addonName name title]", got)
	}
}

// TestLookup_FirstFoundWins verifies alias priority and nested paths.
//
// Edge cases:
//   - null values do not count as hits.
//   - Dotted aliases walk nested objects.
//   - Unknown fields fall back to the canonical name.
func TestLookup_FirstFoundWins(t *testing.T) {
	t.Parallel()

	m := NewMapper(nil)

	tests := []struct {
		name     string
		resource string
		rec      string
		field    string
		want     any
		wantOK   bool
	}{
		{name: "first_alias", resource: Addons, rec: `{"addonName":"A","name":"B","title":"C"}`, field: "name", want: "A", wantOK: true},
		{name: "second_alias", resource: Addons, rec: `{"name":"B","title":"C"}`, field: "name", want: "B", wantOK: true},
		{name: "third_alias", resource: Addons, rec: `{"title":"C"}`, field: "name", want: "C", wantOK: true},
		{name: "null_skipped", resource: Addons, rec: `{"addonName":null,"title":"C"}`, field: "name", want: "C", wantOK: true},
		{name: "nested_path", resource: Orders, rec: `{"customer":{"name":"Ann"}}`, field: "customer", want: "Ann", wantOK: true},
		{name: "flat_beats_nested", resource: Orders, rec: `{"customerName":"Bo","customer":{"name":"Ann"}}`, field: "customer", want: "Bo", wantOK: true},
		{name: "plain_customer_string", resource: Orders, rec: `{"customer":"Cy"}`, field: "customer", want: "Cy", wantOK: true},
		{name: "unknown_field_verbatim", resource: Addons, rec: `{"sku":"X-1"}`, field: "sku", want: "X-1", wantOK: true},
		{name: "missing", resource: Addons, rec: `{"other":1}`, field: "name", want: nil, wantOK: false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, ok := m.Lookup(tc.resource, record(t, tc.rec), tc.field)
			if ok != tc.wantOK || got != tc.want {
				t.Fatalf("Lookup()=(%v,%v), want (%v,%v)", got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestMapAddon(t *testing.T) {
	t.Parallel()

	m := NewMapper(nil)
	got := m.MapAddon(record(t, `{"_id":"a1","title":"Extra cheese","price":"1.50","is_active":1}`))
	want := Addon{ID: "a1", Name: "Extra cheese", Price: 1.5, Active: true}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("MapAddon() mismatch (-want +got):\n%s", diff)
	}
}

func TestMapUser_NameFromParts(t *testing.T) {
	t.Parallel()

	m := NewMapper(nil)
	got := m.MapUser(record(t, `{"id":7,"firstName":"Ada","lastName":"Lovelace","email":"ada@example.com","role":"admin","active":"yes"}`))
	want := User{ID: "7", Name: "Ada Lovelace", Email: "ada@example.com", Role: "admin", Active: true}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("MapUser() mismatch (-want +got):\n%s", diff)
	}
}

func TestMapOrder(t *testing.T) {
	t.Parallel()

	m := NewMapper(nil)
	got := m.MapOrder(record(t, `{"orderId":1001,"user":{"name":"Bo"},"total_price":42.5,"order_status":"in_progress","itemCount":"3","createdAt":"2026-01-02"}`))
	want := Order{ID: "1001", Customer: "Bo", Total: 42.5, Status: "in_progress", StatusLabel: "In Progress", ItemCount: 3, CreatedAt: "2026-01-02"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("MapOrder() mismatch (-want +got):\n%s", diff)
	}
}

func TestMapSuggestion(t *testing.T) {
	t.Parallel()

	m := NewMapper(nil)
	got := m.MapSuggestion(record(t, `{"id":3,"recipe_name":"Soup","author":"Kim","state":"pending","comments":"x","comment":"tasty"}`))
	want := RecipeSuggestion{ID: "3", Title: "Soup", SuggestedBy: "Kim", Status: "pending", Note: "tasty"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("MapSuggestion() mismatch (-want +got):\n%s", diff)
	}
}

// TestMapRecipe verifies nested ingredients and steps survive mixed shapes.
func TestMapRecipe(t *testing.T) {
	t.Parallel()

	m := NewMapper(nil)
	got := m.MapRecipe(record(t, `{
		"id": 9,
		"recipeName": "Pancakes",
		"servings": "4",
		"ingredients": [{"ingredientName":"Flour","qty":"200","unit":"g"}, "Milk", {"name":"Egg"}],
		"steps": {"data": [
			{"instruction":"Mix","ingredientIndexes":[1,2,"3",null]},
			"Rest",
			{"stepNumber":5,"text":"Fry","ingredients":[]}
		]}
	}`))

	want := Recipe{
		ID:       "9",
		Title:    "Pancakes",
		Servings: 4,
		Ingredients: []Ingredient{
			{Name: "Flour", Quantity: "200", Unit: "g"},
			{Name: "Milk"},
			{Name: "Egg"},
		},
		Steps: []Step{
			{Position: 1, Text: "Mix", IngredientRefs: []int{1, 2, 3}},
			{Position: 2, Text: "Rest", IngredientRefs: []int{}},
			{Position: 5, Text: "Fry", IngredientRefs: []int{}},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("MapRecipe() mismatch (-want +got):\n%s", diff)
	}
}

func TestMap_Generic(t *testing.T) {
	t.Parallel()

	m := NewMapper(nil)
	got := m.Map(Addons, record(t, `{"id":1,"addonName":"X","unrelated":true}`))
	want := map[string]any{"id": json.Number("1"), "name": "X"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Map() mismatch (-want +got):\n%s", diff)
	}
}

// TestLoadAliasFile verifies overrides replace a resource as a whole.
func TestLoadAliasFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "aliases.yaml")
	body := "addons:\n  path: /v2/extras\n  collection: [extras]\n  fields:\n    name: [label]\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile err=%v", err)
	}

	tbl, err := LoadAliasFile(path)
	if err != nil {
		t.Fatalf("LoadAliasFile() err=%v", err)
	}
	m := NewMapper(tbl)

	if got := m.Path(Addons); got != "/v2/extras" {
		t.Fatalf("Path()=%q, want /v2/extras", got)
	}
	if got := m.CollectionKeys(Addons); !cmp.Equal(got, []string{"extras"}) {
		t.Fatalf("CollectionKeys()=%v, want [extras]", got)
	}
	if got := m.MapAddon(record(t, `{"name":"old","label":"new"}`)).Name; got != "new" {
		t.Fatalf("Name=%q, want new", got)
	}
	if _, ok := tbl[Users]; !ok {
		t.Fatalf("override dropped untouched resource %q", Users)
	}
}

func TestParseAliasTable_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		wantErr string
	}{
		{name: "empty_aliases", in: "addons:\n  fields:\n    name: []\n", wantErr: "has no aliases"},
		{name: "unknown_key", in: "addons:\n  feilds: {}\n", wantErr: "parse alias table"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseAliasTable(strings.NewReader(tc.in))
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("ParseAliasTable() err=%v, want contains %q", err, tc.wantErr)
			}
		})
	}
}

func TestPathAndCollectionFallbacks(t *testing.T) {
	t.Parallel()

	m := NewMapper(AliasTable{})
	if got := m.Path("widgets"); got != "/widgets" {
		t.Fatalf("Path()=%q, want /widgets", got)
	}
	if got := m.CollectionKeys("widgets"); !cmp.Equal(got, []string{"widgets"}) {
		t.Fatalf("CollectionKeys()=%v, want [widgets]", got)
	}
}

func TestStatusLabel(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"in_progress": "In Progress",
		"SHIPPED":     "Shipped",
		"on-hold":     "On Hold",
		"  ":          "",
	}
	for in, want := range tests {
		if got := StatusLabel(in); got != want {
			t.Fatalf("StatusLabel(%q)=%q, want %q", in, got, want)
		}
	}
}
