package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// queryInt tests
// ---------------------------------------------------------------------------

func TestQueryInt(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		key        string
		defaultVal int
		want       int
	}{
		{"returns default for missing param", "/sql.json", "page", 1, 1},
		{"parses integer param", "/sql.json?page=3", "page", 1, 3},
		{"returns default for non-integer", "/sql.json?page=abc", "page", 1, 1},
		{"parses negative", "/sql.json?page=-5", "page", 0, -5},
		{"returns default for empty value", "/sql.json?perPageCount=", "perPageCount", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.url, nil)
			got := queryInt(r, tt.key, tt.defaultVal)
			if got != tt.want {
				t.Errorf("queryInt(%q, %d) = %d, want %d", tt.key, tt.defaultVal, got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// clampInt tests
// ---------------------------------------------------------------------------

func TestClampInt(t *testing.T) {
	tests := []struct {
		name string
		val  int
		min  int
		max  int
		want int
	}{
		{"within range", 50, 0, 100, 50},
		{"below min clamps to min", -5, 0, 100, 0},
		{"above max clamps to max", 500, 0, 100, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := clampInt(tt.val, tt.min, tt.max)
			if got != tt.want {
				t.Errorf("clampInt(%d, %d, %d) = %d, want %d", tt.val, tt.min, tt.max, got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Envelope tests
// ---------------------------------------------------------------------------

func TestWriteContent(t *testing.T) {
	w := httptest.NewRecorder()
	writeContent(w, map[string]string{"hello": "world"})

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("expected application/json, got %s", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"ResultCode":1`) || !strings.Contains(body, `"hello":"world"`) {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, http.StatusForbidden, "reset is disabled")

	if w.Code != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"ResultCode":-1`) || !strings.Contains(body, `"ErrorMessage":"reset is disabled"`) {
		t.Errorf("unexpected body: %s", body)
	}
	if strings.Contains(body, "Content") {
		t.Errorf("error envelope should omit Content: %s", body)
	}
}
