package entity

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"dashboard/internal/normalize"
)

// Addon is one row of the addons view.
type Addon struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price"`
	Active      bool    `json:"active"`
}

// User is one row of the users view.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role,omitempty"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Order is one row of the orders view.
type Order struct {
	ID          string  `json:"id"`
	Customer    string  `json:"customer"`
	Total       float64 `json:"total"`
	Status      string  `json:"status"`
	StatusLabel string  `json:"status_label"`
	ItemCount   int     `json:"item_count"`
	CreatedAt   string  `json:"created_at,omitempty"`
}

// Ingredient is one ingredient of a recipe, addressed by its position.
type Ingredient struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Quantity string `json:"quantity,omitempty"`
	Unit     string `json:"unit,omitempty"`
}

// Step is one instruction of a recipe.
//
// IngredientRefs holds positions into Recipe.Ingredients exactly as the
// backend sent them; their base (0 or 1) is unknown until normalized by
// the recipe edit form.
type Step struct {
	Position       int    `json:"position"`
	Text           string `json:"text"`
	IngredientRefs []int  `json:"ingredient_refs"`
}

// Recipe is one row of the recipes view and the source of the edit form.
type Recipe struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Servings    int          `json:"servings,omitempty"`
	Ingredients []Ingredient `json:"ingredients"`
	Steps       []Step       `json:"steps"`
}

// RecipeSuggestion is one row of the recipe suggestions view.
type RecipeSuggestion struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	SuggestedBy string `json:"suggested_by,omitempty"`
	Status      string `json:"status"`
	Note        string `json:"note,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// StatusLabel turns a backend status such as "in_progress" into "In Progress".
func StatusLabel(status string) string {
	s := strings.TrimSpace(strings.NewReplacer("_", " ", "-", " ").Replace(status))
	if s == "" {
		return ""
	}
	// Casers carry state, so one is built per call.
	return cases.Title(language.English).String(strings.ToLower(s))
}

func (m *Mapper) MapAddon(rec normalize.RawRecord) Addon {
	return Addon{
		ID:          m.str(Addons, rec, "id"),
		Name:        m.str(Addons, rec, "name"),
		Description: m.str(Addons, rec, "description"),
		Price:       m.num(Addons, rec, "price"),
		Active:      m.flag(Addons, rec, "active"),
	}
}

// MapUser maps a user record. When no single name field is present the
// name is assembled from first/last name.
func (m *Mapper) MapUser(rec normalize.RawRecord) User {
	name := m.str(Users, rec, "name")
	if name == "" {
		name = strings.TrimSpace(m.str(Users, rec, "first_name") + " " + m.str(Users, rec, "last_name"))
	}
	return User{
		ID:        m.str(Users, rec, "id"),
		Name:      name,
		Email:     m.str(Users, rec, "email"),
		Role:      m.str(Users, rec, "role"),
		Active:    m.flag(Users, rec, "active"),
		CreatedAt: m.str(Users, rec, "created_at"),
	}
}

func (m *Mapper) MapOrder(rec normalize.RawRecord) Order {
	status := m.str(Orders, rec, "status")
	return Order{
		ID:          m.str(Orders, rec, "id"),
		Customer:    m.str(Orders, rec, "customer"),
		Total:       m.num(Orders, rec, "total"),
		Status:      status,
		StatusLabel: StatusLabel(status),
		ItemCount:   m.integer(Orders, rec, "item_count"),
		CreatedAt:   m.str(Orders, rec, "created_at"),
	}
}

func (m *Mapper) MapSuggestion(rec normalize.RawRecord) RecipeSuggestion {
	return RecipeSuggestion{
		ID:          m.str(RecipeSuggestions, rec, "id"),
		Title:       m.str(RecipeSuggestions, rec, "title"),
		SuggestedBy: m.str(RecipeSuggestions, rec, "suggested_by"),
		Status:      m.str(RecipeSuggestions, rec, "status"),
		Note:        m.str(RecipeSuggestions, rec, "note"),
		CreatedAt:   m.str(RecipeSuggestions, rec, "created_at"),
	}
}

// MapRecipe maps a recipe together with its nested ingredients and steps.
//
// Edge cases:
//   - Ingredients given as plain strings become Ingredient{Name: s}.
//   - Steps given as plain strings become Step{Text: s}.
//   - A step without a position gets its 1-based order in the list.
//   - Ingredient references are kept raw; non-numeric entries are dropped.
func (m *Mapper) MapRecipe(rec normalize.RawRecord) Recipe {
	r := Recipe{
		ID:          m.str(Recipes, rec, "id"),
		Title:       m.str(Recipes, rec, "title"),
		Description: m.str(Recipes, rec, "description"),
		Servings:    m.integer(Recipes, rec, "servings"),
		Ingredients: []Ingredient{},
		Steps:       []Step{},
	}

	if v, ok := m.Lookup(Recipes, rec, "ingredients"); ok {
		for _, el := range listOf(v) {
			switch t := el.(type) {
			case map[string]any:
				r.Ingredients = append(r.Ingredients, Ingredient{
					ID:       m.str(RecipeIngredients, t, "id"),
					Name:     m.str(RecipeIngredients, t, "name"),
					Quantity: m.str(RecipeIngredients, t, "quantity"),
					Unit:     m.str(RecipeIngredients, t, "unit"),
				})
			case string:
				r.Ingredients = append(r.Ingredients, Ingredient{Name: strings.TrimSpace(t)})
			}
		}
	}

	if v, ok := m.Lookup(Recipes, rec, "steps"); ok {
		for i, el := range listOf(v) {
			var st Step
			switch t := el.(type) {
			case map[string]any:
				st = Step{
					Position:       m.integer(RecipeSteps, t, "position"),
					Text:           m.str(RecipeSteps, t, "text"),
					IngredientRefs: m.refs(t),
				}
			case string:
				st = Step{Text: strings.TrimSpace(t), IngredientRefs: []int{}}
			default:
				continue
			}
			if st.Position == 0 {
				st.Position = i + 1
			}
			r.Steps = append(r.Steps, st)
		}
	}
	return r
}

func (m *Mapper) refs(step map[string]any) []int {
	out := []int{}
	v, ok := m.Lookup(RecipeSteps, step, "ingredient_refs")
	if !ok {
		return out
	}
	for _, el := range listOf(v) {
		if n, ok := normalize.AsInt(el); ok {
			out = append(out, n)
		}
	}
	return out
}

// listOf returns v as a JSON array, unwrapping a {data: [...]} envelope.
func listOf(v any) []any {
	if arr, ok := v.([]any); ok {
		return arr
	}
	if obj, ok := v.(map[string]any); ok {
		if arr, ok := obj["data"].([]any); ok {
			return arr
		}
	}
	return nil
}
