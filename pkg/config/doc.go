// Package config loads the settings for a kptnexport run.
//
// Values are layered with this precedence, highest first:
//
//	command line flags
//	environment variables (KPTNCOOK_API_KEY, KPTNCOOK_EMAIL, KPTNCOOK_PASSWORD, KPTNEXPORT_*)
//	.env in the working directory or ~/.kptnexport.env
//	YAML config file (.kptnexport.yaml or ~/.config/kptnexport/config.yaml)
//	DefaultConfig
//
// A loaded Config is passed explicitly to the API client, the recipe loader
// and the renderers; nothing in this package keeps global state.
//
//	cfg, err := config.Load("", map[string]interface{}{"servings": 4})
//	if err != nil {
//		return err
//	}
package config
