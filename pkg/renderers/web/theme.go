package web

import (
	"fmt"
	"sort"
	"strings"

	theme "github.com/goliatone/go-theme"
)

// Stylesheet is the asset key of the page stylesheet.
const Stylesheet = "web.stylesheet"

// DefaultManifest is the built-in look. The "dark" variant swaps the palette.
func DefaultManifest() *theme.Manifest {
	return &theme.Manifest{
		Name:    "inferx",
		Version: "1.0.0",
		Tokens: map[string]string{
			"color-bg":       "#f7f8fa",
			"color-surface":  "#ffffff",
			"color-text":     "#1f2933",
			"color-muted":    "#616e7c",
			"color-primary":  "#2563eb",
			"color-positive": "#16a34a",
			"color-negative": "#dc2626",
			"color-error-bg": "#fef2f2",
			"radius":         "6px",
			"font-family":    "system-ui, sans-serif",
		},
		Assets: theme.Assets{
			Prefix: "/static",
			Files: map[string]string{
				Stylesheet: "app.css",
			},
		},
		Variants: map[string]theme.Variant{
			"dark": {
				Tokens: map[string]string{
					"color-bg":       "#111827",
					"color-surface":  "#1f2937",
					"color-text":     "#f9fafb",
					"color-muted":    "#9ca3af",
					"color-error-bg": "#450a0a",
				},
			},
		},
	}
}

// Theme is a manifest resolved for one variant.
type Theme struct {
	Name    string
	Variant string
	Tokens  map[string]string
	assets  theme.Assets
	files   map[string]string
}

// ResolveTheme registers manifest and flattens it for variant. An unknown
// variant is an error; an empty one selects the base tokens.
func ResolveTheme(manifest *theme.Manifest, variant string) (Theme, error) {
	if manifest == nil {
		manifest = DefaultManifest()
	}
	registry := theme.NewRegistry()
	if err := registry.Register(manifest); err != nil {
		return Theme{}, fmt.Errorf("web: register theme %q: %w", manifest.Name, err)
	}

	t := Theme{
		Name:    manifest.Name,
		Variant: variant,
		Tokens:  copyStringMap(manifest.Tokens),
		assets:  manifest.Assets,
		files:   copyStringMap(manifest.Assets.Files),
	}
	if variant == "" {
		return t, nil
	}
	v, ok := manifest.Variants[variant]
	if !ok {
		return Theme{}, fmt.Errorf("web: theme %q has no variant %q", manifest.Name, variant)
	}
	for key, value := range v.Tokens {
		t.Tokens[key] = value
	}
	for key, value := range v.Assets.Files {
		t.files[key] = value
	}
	if v.Assets.Prefix != "" {
		t.assets.Prefix = v.Assets.Prefix
	}
	return t, nil
}

// CSSVars maps tokens to custom properties, "brand" to "--brand".
func (t Theme) CSSVars() map[string]string {
	out := make(map[string]string, len(t.Tokens))
	for key, value := range t.Tokens {
		out["--"+key] = value
	}
	return out
}

// CSSVarsStyle renders the custom properties as a :root rule body, sorted by
// name so output is stable.
func (t Theme) CSSVarsStyle() string {
	vars := t.CSSVars()
	keys := make([]string, 0, len(vars))
	for key := range vars {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, key := range keys {
		fmt.Fprintf(&b, "%s: %s; ", key, cssValue(vars[key]))
	}
	return strings.TrimSpace(b.String())
}

// AssetURL resolves an asset key to its URL, or "" when unknown.
func (t Theme) AssetURL(key string) string {
	file, ok := t.files[key]
	if !ok || file == "" {
		return ""
	}
	prefix := strings.TrimSuffix(t.assets.Prefix, "/")
	return prefix + "/" + strings.TrimPrefix(file, "/")
}

// cssValue drops characters that could close the style element or rule.
func cssValue(v string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', '{', '}', ';':
			return -1
		}
		return r
	}, v)
}

func copyStringMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
