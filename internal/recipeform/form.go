// Package recipeform holds the in-memory state of the recipe edit form.
//
// Step-to-ingredient references arrive in an unknown numbering base. Load
// rebases them once into canonical 0-based sets; Payload converts them
// back to the base the backend expects on submit.
package recipeform

import (
	"fmt"

	"dashboard/internal/entity"
	"dashboard/internal/indexnorm"
	"dashboard/internal/logging"
	"dashboard/internal/normalize"

	"go.uber.org/zap"
)

// Step is one editable recipe step.
type Step struct {
	Position int
	Text     string

	// Ingredients is the canonical 0-based, ascending set of positions
	// into Form.Ingredients.
	Ingredients []int

	// Detected and Ambiguous describe how the raw references were read.
	Detected  indexnorm.Base
	Ambiguous bool
}

// Form is a recipe being edited.
type Form struct {
	ID          string
	Title       string
	Description string
	Servings    int
	Ingredients []entity.Ingredient
	Steps       []Step
}

// Load maps rec and normalizes every step's ingredient references against
// the recipe's ingredient count.
//
// Ambiguous steps are kept as normalized and logged at warn level;
// references dropped as out of range are logged at info level.
func Load(m *entity.Mapper, rec normalize.RawRecord, log *zap.Logger) *Form {
	if m == nil {
		m = entity.NewMapper(nil)
	}
	log = logging.OrNop(log)

	r := m.MapRecipe(rec)
	f := &Form{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Servings:    r.Servings,
		Ingredients: r.Ingredients,
		Steps:       make([]Step, 0, len(r.Steps)),
	}

	n := len(r.Ingredients)
	for _, st := range r.Steps {
		res := indexnorm.Normalize(st.IngredientRefs, n)
		if res.Ambiguous {
			log.Warn("ambiguous ingredient references; read as 0-based",
				zap.String("recipe_id", r.ID),
				zap.Int("step", st.Position),
				zap.Ints("raw", st.IngredientRefs),
				zap.Int("ingredients", n),
			)
		}
		if res.Dropped > 0 {
			log.Info("dropped out-of-range ingredient references",
				zap.String("recipe_id", r.ID),
				zap.Int("step", st.Position),
				zap.Int("dropped", res.Dropped),
			)
		}
		f.Steps = append(f.Steps, Step{
			Position:    st.Position,
			Text:        st.Text,
			Ingredients: res.Set,
			Detected:    res.Detected,
			Ambiguous:   res.Ambiguous,
		})
	}
	return f
}

// Toggle adds or removes ingredient (0-based) from step (0-based index
// into Steps).
//
// Errors:
//   - step or ingredient out of range.
func (f *Form) Toggle(step, ingredient int) error {
	if step < 0 || step >= len(f.Steps) {
		return fmt.Errorf("recipeform: step %d out of range [0,%d)", step, len(f.Steps))
	}
	if ingredient < 0 || ingredient >= len(f.Ingredients) {
		return fmt.Errorf("recipeform: ingredient %d out of range [0,%d)", ingredient, len(f.Ingredients))
	}
	f.Steps[step].Ingredients = indexnorm.Toggle(f.Steps[step].Ingredients, ingredient)
	return nil
}

// Payload builds the submit body with ingredient references expanded to
// base.
func (f *Form) Payload(base indexnorm.Base) map[string]any {
	ingredients := make([]map[string]any, 0, len(f.Ingredients))
	for _, in := range f.Ingredients {
		m := map[string]any{"name": in.Name}
		if in.ID != "" {
			m["id"] = in.ID
		}
		if in.Quantity != "" {
			m["quantity"] = in.Quantity
		}
		if in.Unit != "" {
			m["unit"] = in.Unit
		}
		ingredients = append(ingredients, m)
	}

	steps := make([]map[string]any, 0, len(f.Steps))
	for _, st := range f.Steps {
		steps = append(steps, map[string]any{
			"position":           st.Position,
			"text":               st.Text,
			"ingredient_indexes": indexnorm.Expand(st.Ingredients, base),
		})
	}

	out := map[string]any{
		"title":       f.Title,
		"ingredients": ingredients,
		"steps":       steps,
	}
	if f.Description != "" {
		out["description"] = f.Description
	}
	if f.Servings > 0 {
		out["servings"] = f.Servings
	}
	return out
}

// AmbiguousSteps returns the positions of steps whose references could be
// read either way.
func (f *Form) AmbiguousSteps() []int {
	var out []int
	for _, st := range f.Steps {
		if st.Ambiguous {
			out = append(out, st.Position)
		}
	}
	return out
}
