package kptncook

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// LoginEndpoint exchanges credentials for an access token
	LoginEndpoint = "/auth/login"

	// FavoritesEndpoint lists the favorite recipe identifiers
	FavoritesEndpoint = "/favorites"

	// RecipeSearchEndpoint resolves identifiers into full recipes
	RecipeSearchEndpoint = "/recipes/search"

	// APIKeyHeader carries the application key on login
	APIKeyHeader = "kptnkey"

	// TokenHeader carries the access token on authenticated calls
	TokenHeader = "Token"
)

// GetLoginURL constructs the login URL for the given API base
func GetLoginURL(baseURL string) string {
	return joinURL(baseURL, LoginEndpoint)
}

// GetFavoritesURL constructs the favorites URL for the given API base
func GetFavoritesURL(baseURL string) string {
	return joinURL(baseURL, FavoritesEndpoint)
}

// GetRecipeSearchURL constructs the recipe search URL on the mobile host.
// The API key and language travel as query parameters.
func GetRecipeSearchURL(mobileBaseURL, apiKey, lang string) string {
	params := url.Values{}
	params.Set("kptnkey", apiKey)
	if lang != "" {
		params.Set("lang", lang)
	}
	return fmt.Sprintf("%s?%s", joinURL(mobileBaseURL, RecipeSearchEndpoint), params.Encode())
}

// RedactURL masks the API key in a URL so it can be logged
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	if q.Get("kptnkey") == "" {
		return rawURL
	}
	q.Set("kptnkey", "REDACTED")
	u.RawQuery = q.Encode()
	return u.String()
}

// SanitizeRecipeID trims whitespace and surrounding quotes from an identifier
func SanitizeRecipeID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.Trim(id, `"'`)
	return id
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
