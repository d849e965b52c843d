package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// LoginRateLimit returns an HTTP middleware that allows at most
// attemptsPerMinute login submissions per client IP. Rejected requests get
// 429 with the same "error" body a failed login gets, so the console page
// treats both alike.
func LoginRateLimit(attemptsPerMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		attemptsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte("error"))
		}),
	)
}
