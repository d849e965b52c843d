package autoconfigure

import (
	"net/http"
	"strings"
)

// ServletRegistration binds an HTTP handler to URL mappings, the Go
// counterpart of a servlet registration bean.
type ServletRegistration struct {
	Name        string
	Handler     http.Handler
	URLMappings []string
	Methods     []string
	InitParams  map[string]string
}

// FilterRegistration binds a middleware to URL patterns.
type FilterRegistration struct {
	Name        string
	Middleware  func(http.Handler) http.Handler
	URLPatterns []string
	InitParams  map[string]string
}

// URLMapping turns a configured console path into its wildcard mapping:
// "/druid" and "/druid/" both become "/druid/*". Applying it twice yields
// the same mapping.
func URLMapping(path string) string {
	switch {
	case strings.HasSuffix(path, "/*"):
		return path
	case strings.HasSuffix(path, "/"):
		return path + "*"
	default:
		return path + "/*"
	}
}

// MountPrefix returns the path prefix a wildcard mapping is mounted under,
// e.g. "/druid" for "/druid/*". The root mapping yields "/".
func MountPrefix(mapping string) string {
	prefix := strings.TrimSuffix(strings.TrimSuffix(mapping, "*"), "/")
	if prefix == "" {
		return "/"
	}
	return prefix
}

// addParam sets key only when value is non-empty.
func addParam(params map[string]string, key, value string) {
	if value != "" {
		params[key] = value
	}
}
