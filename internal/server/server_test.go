package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"github.com/druidgo/druid-boot/internal/autoconfigure"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer configures the embedded data source from yaml and returns a
// server hosting its registrations.
func newTestServer(t *testing.T, yaml string) (*Server, *autoconfigure.Result) {
	t.Helper()

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(yaml)); err != nil {
		t.Fatalf("read config: %v", err)
	}
	res, err := autoconfigure.New(v, autoconfigure.WithLogger(discardLogger())).Configure(context.Background())
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	t.Cleanup(func() { res.Close() })

	return New(DefaultConfig(), res, discardLogger()), res
}

func doRequest(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, target, nil))
	return rr
}

// ---------------------------------------------------------------------------
// Health checks
// ---------------------------------------------------------------------------

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, "")
	rr := doRequest(t, srv, "GET", "/healthz")
	if rr.Code != http.StatusOK || rr.Body.String() != `{"status":"ok"}` {
		t.Errorf("status = %d body = %s", rr.Code, rr.Body.String())
	}
}

func TestReadyzPingsDataSource(t *testing.T) {
	srv, _ := newTestServer(t, "")
	rr := doRequest(t, srv, "GET", "/readyz")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rr.Code, rr.Body.String())
	}

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.Checks["dataSource"] != "ok" {
		t.Errorf("body = %+v", body)
	}
}

func TestReadyzDegradedAfterClose(t *testing.T) {
	srv, res := newTestServer(t, "")
	if err := res.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	rr := doRequest(t, srv, "GET", "/readyz")
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"status":"degraded"`) {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestInactiveResultServesProbesOnly(t *testing.T) {
	srv := New(DefaultConfig(), &autoconfigure.Result{}, discardLogger())

	for _, target := range []string{"/healthz", "/readyz"} {
		if rr := doRequest(t, srv, "GET", target); rr.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", target, rr.Code)
		}
	}
	if rr := doRequest(t, srv, "GET", "/druid/basic.json"); rr.Code != http.StatusNotFound {
		t.Errorf("GET /druid/basic.json = %d, want 404", rr.Code)
	}
}

func TestNilResult(t *testing.T) {
	srv := New(DefaultConfig(), nil, nil)
	if rr := doRequest(t, srv, "GET", "/healthz"); rr.Code != http.StatusOK {
		t.Errorf("status = %d", rr.Code)
	}
}

// ---------------------------------------------------------------------------
// Servlet registrations
// ---------------------------------------------------------------------------

func TestConsoleMounted(t *testing.T) {
	srv, _ := newTestServer(t, "")

	rr := doRequest(t, srv, "GET", "/druid/basic.json")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"ResultCode":1`) {
		t.Errorf("basic.json: status = %d body = %s", rr.Code, rr.Body.String())
	}

	for _, target := range []string{"/druid", "/druid/"} {
		rr := doRequest(t, srv, "GET", target)
		if rr.Code != http.StatusFound {
			t.Errorf("GET %s = %d, want 302", target, rr.Code)
			continue
		}
		if loc := rr.Header().Get("Location"); loc != "/druid/index.html" {
			t.Errorf("GET %s Location = %q", target, loc)
		}
	}
}

func TestConsoleCustomMapping(t *testing.T) {
	srv, _ := newTestServer(t, `
spring:
  datasource:
    druid:
      path: /monitor
`)
	if rr := doRequest(t, srv, "GET", "/monitor/datasource.json"); rr.Code != http.StatusOK {
		t.Errorf("custom mapping: status = %d", rr.Code)
	}
	if rr := doRequest(t, srv, "GET", "/druid/datasource.json"); rr.Code != http.StatusNotFound {
		t.Errorf("default mapping still served: status = %d", rr.Code)
	}
}

func TestServletMethodRestriction(t *testing.T) {
	srv, _ := newTestServer(t, "")
	if rr := doRequest(t, srv, "PUT", "/druid/basic.json"); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("PUT status = %d, want 405", rr.Code)
	}
}

func TestRootServletMapping(t *testing.T) {
	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, r.URL.Path)
	})
	res := &autoconfigure.Result{
		Servlets: []autoconfigure.ServletRegistration{{
			Name:        "root",
			Handler:     echo,
			URLMappings: []string{"/*"},
		}},
	}
	srv := New(DefaultConfig(), res, discardLogger())

	rr := doRequest(t, srv, "DELETE", "/anything/here")
	if rr.Code != http.StatusOK || rr.Body.String() != "/anything/here" {
		t.Errorf("status = %d body = %q", rr.Code, rr.Body.String())
	}
	if rr := doRequest(t, srv, "GET", "/healthz"); rr.Body.String() != `{"status":"ok"}` {
		t.Errorf("healthz shadowed by root servlet: %s", rr.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Filter registrations
// ---------------------------------------------------------------------------

func TestWebStatFilterRecordsApplicationRequests(t *testing.T) {
	srv, _ := newTestServer(t, "")

	doRequest(t, srv, "GET", "/orders")
	doRequest(t, srv, "GET", "/static/app.css")
	doRequest(t, srv, "GET", "/druid/basic.json")

	rr := doRequest(t, srv, "GET", "/druid/weburi.json")
	body := rr.Body.String()
	if !strings.Contains(body, `"URI":"/orders"`) {
		t.Errorf("weburi.json missing /orders: %s", body)
	}
	for _, excluded := range []string{"app.css", "/druid/"} {
		if strings.Contains(body, excluded) {
			t.Errorf("weburi.json recorded excluded path %q: %s", excluded, body)
		}
	}
}

func TestScopedFilter(t *testing.T) {
	tag := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Filtered", "yes")
			next.ServeHTTP(w, r)
		})
	}
	res := &autoconfigure.Result{
		Filters: []autoconfigure.FilterRegistration{{
			Name:        "tag",
			Middleware:  tag,
			URLPatterns: []string{"/api*"},
		}},
	}
	srv := New(DefaultConfig(), res, discardLogger())

	tests := []struct {
		target string
		want   string
	}{
		{"/api/orders", "yes"},
		{"/healthz", ""},
	}
	for _, tt := range tests {
		rr := doRequest(t, srv, "GET", tt.target)
		if got := rr.Header().Get("X-Filtered"); got != tt.want {
			t.Errorf("GET %s X-Filtered = %q, want %q", tt.target, got, tt.want)
		}
	}
}

func TestAllowMethods(t *testing.T) {
	h := allowMethods(nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	if rr := doRequest(t, h, "PATCH", "/"); rr.Code != http.StatusOK {
		t.Errorf("empty method list should allow everything, got %d", rr.Code)
	}
}

func TestRunShutsDown(t *testing.T) {
	srv, res := newTestServer(t, "")
	srv.cfg.Host = "127.0.0.1"
	srv.cfg.Port = 0

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := srv.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := res.DataSource.PingContext(context.Background()); err == nil {
		t.Error("data source still open after shutdown")
	}
}
