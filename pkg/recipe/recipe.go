package recipe

import (
	"errors"
	"fmt"
	"strings"

	"kptnexport/pkg/kptncook"
	"kptnexport/pkg/quantity"
)

const (
	DefaultTitle           = "Untitled Recipe"
	DefaultIngredientTitle = "Unknown ingredient"
	// DefaultStepIngredientTitle is used for step ingredients without any title
	DefaultStepIngredientTitle = "Unknown"
)

// ErrNilRecipe is returned by FromAPI for a nil API recipe
var ErrNilRecipe = errors.New("no recipe data")

// Ingredient is one entry of an ingredient list. Quantity is nil when the
// API gave no amount.
type Ingredient struct {
	ID       string
	Title    string
	Quantity *float64
	Measure  string
}

// HasQuantity reports whether the ingredient carries a printable amount.
// Zero amounts are treated like missing ones.
func (i Ingredient) HasQuantity() bool {
	return i.Quantity != nil && *i.Quantity > 0
}

// Step is one preparation step, numbered from 1 in API order
type Step struct {
	Number      int
	Title       string
	ImageURL    string
	Ingredients []Ingredient
}

// Recipe is a favorite converted into the exporter's model
type Recipe struct {
	ID              string
	Title           string
	Type            string
	AuthorComment   string
	PreparationTime int
	CookingTime     int
	// ReferenceServings is the serving count the quantities refer to
	ReferenceServings int
	Ingredients       []Ingredient
	Steps             []Step
}

// TotalTime is preparation plus cooking time in minutes
func (r *Recipe) TotalTime() int {
	return r.PreparationTime + r.CookingTime
}

// StepImageURLs lists the image URLs of all steps that have one, in order
func (r *Recipe) StepImageURLs() []string {
	var urls []string
	for _, s := range r.Steps {
		if s.ImageURL != "" {
			urls = append(urls, s.ImageURL)
		}
	}
	return urls
}

// StepIngredients concatenates the ingredients of all steps
func (r *Recipe) StepIngredients() []Ingredient {
	var all []Ingredient
	for _, s := range r.Steps {
		all = append(all, s.Ingredients...)
	}
	return all
}

// FromAPI converts an API recipe. referenceServings is the serving count
// the API quantities refer to and must be positive.
func FromAPI(api *kptncook.APIRecipe, referenceServings int) (*Recipe, error) {
	if api == nil {
		return nil, ErrNilRecipe
	}
	if referenceServings <= 0 {
		return nil, fmt.Errorf("%w: reference servings must be positive, got %d", quantity.ErrInvalidRecipeData, referenceServings)
	}

	r := &Recipe{
		ID:                api.ID.OID,
		Title:             strings.TrimSpace(api.Title),
		Type:              api.RecipeType,
		AuthorComment:     strings.TrimSpace(api.AuthorComment),
		PreparationTime:   nonNegative(api.PreparationTime),
		CookingTime:       nonNegative(api.CookingTime),
		ReferenceServings: referenceServings,
	}
	if r.Title == "" {
		r.Title = DefaultTitle
	}

	for _, ing := range api.Ingredients {
		title := strings.TrimSpace(ing.Ingredient.Title)
		if title == "" {
			title = DefaultIngredientTitle
		}
		r.Ingredients = append(r.Ingredients, Ingredient{
			ID:       ing.Ingredient.ID.OID,
			Title:    title,
			Quantity: copyQuantity(ing.Quantity),
			Measure:  strings.TrimSpace(ing.Measure),
		})
	}

	for i, s := range api.Steps {
		step := Step{
			Number: i + 1,
			Title:  strings.TrimSpace(s.Title),
		}
		if s.Image != nil {
			step.ImageURL = s.Image.URL
		}
		for _, si := range s.Ingredients {
			title := strings.TrimSpace(si.DisplayTitle())
			if title == "" {
				title = DefaultStepIngredientTitle
			}
			ing := Ingredient{ID: si.IngredientID, Title: title}
			if si.Unit != nil {
				ing.Quantity = copyQuantity(si.Unit.Quantity)
				ing.Measure = strings.TrimSpace(si.Unit.Measure)
			}
			step.Ingredients = append(step.Ingredients, ing)
		}
		r.Steps = append(r.Steps, step)
	}

	return r, nil
}

// IngredientLine renders "<qty> <measure> <title>", "<qty> <title>" or just
// "<title>" when the amount is missing or zero. The amount is scaled from
// reference to target servings by f.
func IngredientLine(ing Ingredient, f quantity.Formatter, reference, target int) (string, error) {
	if !ing.HasQuantity() {
		if _, err := quantity.Ratio(reference, target); err != nil {
			return "", err
		}
		return ing.Title, nil
	}

	qty, err := f.ScaleAndFormat(*ing.Quantity, reference, target)
	if err != nil {
		return "", fmt.Errorf("ingredient %q: %w", ing.Title, err)
	}
	if ing.Measure != "" {
		return fmt.Sprintf("%s %s %s", qty, ing.Measure, ing.Title), nil
	}
	return fmt.Sprintf("%s %s", qty, ing.Title), nil
}

// Quantity returns a pointer to v, for building ingredients by hand
func Quantity(v float64) *float64 {
	return &v
}

func copyQuantity(q *float64) *float64 {
	if q == nil {
		return nil
	}
	v := *q
	return &v
}

func nonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
