package middleware

import (
	"net/http"
	"strings"

	"github.com/druidgo/druid-boot/internal/stat"
)

// ParamExclusions is the init parameter listing comma separated path
// patterns the web stat filter does not record.
const ParamExclusions = "exclusions"

// WebStatFilter returns a middleware that records per-URI request
// statistics into store. Requests whose path matches one of the
// initParams["exclusions"] patterns pass through unrecorded.
func WebStatFilter(store *stat.WebStore, initParams map[string]string) func(http.Handler) http.Handler {
	exclusions := splitPatterns(initParams[ParamExclusions])
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if MatchAny(exclusions, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			req := store.Begin(r.URL.Path)
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			defer func() {
				// A panic reaching here is answered with 500 by the recoverer.
				if rec := recover(); rec != nil {
					req.End(http.StatusInternalServerError)
					panic(rec)
				}
				req.End(ww.status)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// MatchPath reports whether path matches pattern. A pattern starting with
// "*" matches by suffix, one ending with "*" matches by prefix, anything
// else must be equal.
func MatchPath(pattern, path string) bool {
	switch {
	case pattern == "*":
		return true
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(path, pattern[1:])
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(path, pattern[:len(pattern)-1])
	default:
		return pattern == path
	}
}

// MatchAny reports whether path matches any of patterns.
func MatchAny(patterns []string, path string) bool {
	for _, p := range patterns {
		if MatchPath(p, path) {
			return true
		}
	}
	return false
}

func splitPatterns(list string) []string {
	var out []string
	for _, p := range strings.Split(list, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
