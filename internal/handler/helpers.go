package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// result is the envelope every JSON endpoint of the console answers with.
// ResultCode is 1 on success and -1 on failure.
type result struct {
	ResultCode   int    `json:"ResultCode"`
	Content      any    `json:"Content,omitempty"`
	ErrorMessage string `json:"ErrorMessage,omitempty"`
}

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeContent writes a successful envelope around content.
func writeContent(w http.ResponseWriter, content any) {
	writeJSON(w, http.StatusOK, result{ResultCode: 1, Content: content})
}

// writeError writes a failed envelope with the given HTTP status code.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, result{ResultCode: -1, ErrorMessage: message})
}

// queryInt extracts an integer query parameter, returning defaultVal if the
// parameter is missing or cannot be parsed.
func queryInt(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// queryString extracts a string query parameter.
func queryString(r *http.Request, key string) string {
	return r.URL.Query().Get(key)
}

// clampInt constrains val to be within [min, max].
func clampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
