package kptncook

import (
	"net/url"
	"testing"
)

func TestEndpointURLs(t *testing.T) {
	if got := GetLoginURL("https://api.example.com/"); got != "https://api.example.com/auth/login" {
		t.Errorf("GetLoginURL() = %q", got)
	}
	if got := GetFavoritesURL("https://api.example.com"); got != "https://api.example.com/favorites" {
		t.Errorf("GetFavoritesURL() = %q", got)
	}

	raw := GetRecipeSearchURL("https://mobile.example.com", "abc 123", "de")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("search URL does not parse: %v", err)
	}
	if u.Path != "/recipes/search" {
		t.Errorf("path = %q", u.Path)
	}
	if u.Query().Get("kptnkey") != "abc 123" {
		t.Errorf("kptnkey = %q", u.Query().Get("kptnkey"))
	}
	if u.Query().Get("lang") != "de" {
		t.Errorf("lang = %q", u.Query().Get("lang"))
	}

	noLang := GetRecipeSearchURL("https://mobile.example.com", "k", "")
	if u, _ := url.Parse(noLang); u.Query().Has("lang") {
		t.Errorf("expected no lang parameter in %q", noLang)
	}
}

func TestRedactURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"with key", "https://m.example.com/recipes/search?kptnkey=secret&lang=de", "https://m.example.com/recipes/search?kptnkey=REDACTED&lang=de"},
		{"without key", "https://api.example.com/favorites", "https://api.example.com/favorites"},
		{"other query", "https://img.example.com/a.jpg?w=100", "https://img.example.com/a.jpg?w=100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RedactURL(tt.in); got != tt.want {
				t.Errorf("RedactURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeRecipeID(t *testing.T) {
	tests := map[string]string{
		"abc":       "abc",
		"  abc \n":  "abc",
		`"abc"`:     "abc",
		"":          "",
		"   ":       "",
		"'5e53'   ": "5e53",
	}
	for in, want := range tests {
		if got := SanitizeRecipeID(in); got != want {
			t.Errorf("SanitizeRecipeID(%q) = %q, want %q", in, got, want)
		}
	}
}
