package kptncook

// ObjectID is a MongoDB style identifier as serialized by the API
type ObjectID struct {
	OID string `json:"$oid"`
}

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the access token sent back in the Token header
type LoginResponse struct {
	AccessToken string `json:"accessToken"`
}

// FavoritesResponse lists the identifiers of the user's favorite recipes
type FavoritesResponse struct {
	Favorites []string `json:"favorites"`
}

// SearchQuery is one element of the recipe search body
type SearchQuery struct {
	Identifier string `json:"identifier"`
}

// APIRecipe is a recipe as returned by the mobile search endpoint.
// Only the fields the exporter uses are decoded.
type APIRecipe struct {
	ID              ObjectID        `json:"_id"`
	Title           string          `json:"title"`
	RecipeType      string          `json:"rtype"`
	AuthorComment   string          `json:"authorComment"`
	PreparationTime int             `json:"preparationTime"`
	CookingTime     int             `json:"cookingTime"`
	Steps           []APIStep       `json:"steps"`
	Ingredients     []APIIngredient `json:"ingredients"`
}

// APIStep is a single preparation step
type APIStep struct {
	Title       string              `json:"title"`
	Image       *APIImage           `json:"image,omitempty"`
	Ingredients []APIStepIngredient `json:"ingredients"`
}

// APIImage references an image hosted by KptnCook
type APIImage struct {
	URL string `json:"url"`
}

// APIStepIngredient is an ingredient used by a step. Older recipes carry
// the title inline, newer ones nest it under ingredient.
type APIStepIngredient struct {
	Title        string            `json:"title"`
	IngredientID string            `json:"ingredientId"`
	Ingredient   *APIIngredientRef `json:"ingredient,omitempty"`
	Unit         *APIUnit          `json:"unit,omitempty"`
}

// DisplayTitle returns the inline title, falling back to the nested one
func (s APIStepIngredient) DisplayTitle() string {
	if s.Title != "" {
		return s.Title
	}
	if s.Ingredient != nil {
		return s.Ingredient.Title
	}
	return ""
}

// APIUnit holds a step ingredient's amount
type APIUnit struct {
	Quantity *float64 `json:"quantity,omitempty"`
	Measure  string   `json:"measure"`
}

// APIIngredient is an entry in the recipe's global ingredient list.
// Quantities are given per portion.
type APIIngredient struct {
	Quantity   *float64         `json:"quantity,omitempty"`
	Measure    string           `json:"measure"`
	Ingredient APIIngredientRef `json:"ingredient"`
}

// APIIngredientRef names an ingredient
type APIIngredientRef struct {
	ID    ObjectID `json:"_id"`
	Title string   `json:"title"`
}
