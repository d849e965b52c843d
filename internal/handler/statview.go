// Package handler serves the druid stat view console: a small set of JSON
// endpoints over the data source and web statistics, two embedded pages, and
// the Prometheus exposition of the same numbers.
package handler

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"runtime"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/druidgo/druid-boot/internal/pool"
	"github.com/druidgo/druid-boot/internal/server/middleware"
	"github.com/druidgo/druid-boot/internal/stat"
	"github.com/druidgo/druid-boot/internal/ui"
)

// Init parameter names understood by the console.
const (
	ParamLoginUsername = "loginUsername"
	ParamLoginPassword = "loginPassword"
	ParamAllow         = "allow"
	ParamDeny          = "deny"
	ParamResetEnable   = "resetEnable"
)

// loginAttemptsPerMinute bounds submitLogin calls per client IP.
const loginAttemptsPerMinute = 10

// StatSource is a data source whose statistics the console shows.
type StatSource interface {
	Stats() pool.PoolStat
	SQLStats() []stat.SQLStat
	ResetStat() error
}

// StatViewOptions configures a StatView.
type StatViewOptions struct {
	Sources    []StatSource
	Web        *stat.WebStore
	InitParams map[string]string
	Gatherer   prometheus.Gatherer
	Version    string
	Logger     *slog.Logger
}

// StatView is the console handler. It is meant to be mounted under a path
// prefix; every route is relative to that prefix.
type StatView struct {
	sources     []StatSource
	web         *stat.WebStore
	gatherer    prometheus.Gatherer
	version     string
	resetEnable bool
	access      *accessList
	sessions    *sessions
	logger      *slog.Logger
	startTime   time.Time
	resetCount  atomic.Int64
	router      chi.Router
}

// NewStatView builds the console from opts. It fails when the allow or deny
// list cannot be parsed.
func NewStatView(opts StatViewOptions) (*StatView, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	params := opts.InitParams

	access, err := newAccessList(params[ParamAllow], params[ParamDeny])
	if err != nil {
		return nil, fmt.Errorf("stat view: %w", err)
	}
	sess, err := newSessions(params[ParamLoginUsername], params[ParamLoginPassword])
	if err != nil {
		return nil, fmt.Errorf("stat view: %w", err)
	}

	v := &StatView{
		sources:     opts.Sources,
		web:         opts.Web,
		gatherer:    opts.Gatherer,
		version:     opts.Version,
		resetEnable: !strings.EqualFold(strings.TrimSpace(params[ParamResetEnable]), "false"),
		access:      access,
		sessions:    sess,
		logger:      logger,
		startTime:   time.Now(),
	}
	v.setupRouter()
	return v, nil
}

func (v *StatView) setupRouter() {
	r := chi.NewRouter()
	r.Use(v.checkAccess)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, path.Join(r.URL.Path, "index.html"), http.StatusFound)
	})
	r.Get("/login.html", v.servePage("login.html"))
	r.With(middleware.LoginRateLimit(loginAttemptsPerMinute)).Post("/submitLogin", v.submitLogin)

	r.Group(func(r chi.Router) {
		r.Use(v.requireLogin)

		r.Get("/index.html", v.servePage("index.html"))
		r.Get("/basic.json", v.basic)
		r.Get("/datasource.json", v.dataSources)
		r.Get("/sql.json", v.sqlStats)
		r.Get("/weburi.json", v.webURIs)
		r.Post("/reset-all.json", v.resetAll)
		r.Get("/logout", v.logout)
		if v.gatherer != nil {
			r.Handle("/metrics", promhttp.HandlerFor(v.gatherer, promhttp.HandlerOpts{}))
		}
	})

	v.router = r
}

// ServeHTTP implements http.Handler.
func (v *StatView) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	v.router.ServeHTTP(w, r)
}

func (v *StatView) checkAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !v.access.permitted(r) {
			v.logger.Warn("stat view access denied", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
			http.Error(w, "Sorry, you are not permitted to view this page.", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireLogin sends pages to the login form and answers 401 to API calls
// when a login user is configured and the request has no valid session.
func (v *StatView) requireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !v.sessions.enabled() || v.sessions.authenticated(r) {
			next.ServeHTTP(w, r)
			return
		}
		if strings.HasSuffix(r.URL.Path, ".html") {
			http.Redirect(w, r, "login.html", http.StatusFound)
			return
		}
		writeError(w, http.StatusUnauthorized, "login required")
	})
}

func (v *StatView) servePage(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := fs.ReadFile(ui.Static, "static/"+name)
		if err != nil {
			http.Error(w, "page not available", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(data)
	}
}

// submitLogin answers "success" with a session cookie, or "error".
func (v *StatView) submitLogin(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	username := r.PostFormValue(ParamLoginUsername)
	password := r.PostFormValue(ParamLoginPassword)
	if !v.sessions.enabled() || !v.sessions.check(username, password) {
		v.logger.Warn("stat view login failed", "user", username, "remote_addr", r.RemoteAddr)
		w.Write([]byte("error"))
		return
	}

	token, err := v.sessions.issue(time.Now())
	if err != nil {
		v.logger.Error("issue stat view session", "error", err)
		w.Write([]byte("error"))
		return
	}
	http.SetCookie(w, sessionCookie(token, int(sessionTTL/time.Second)))
	w.Write([]byte("success"))
}

func (v *StatView) logout(w http.ResponseWriter, r *http.Request) {
	v.sessions.revoke(r)
	http.SetCookie(w, sessionCookie("", -1))
	http.Redirect(w, r, "login.html", http.StatusFound)
}

func (v *StatView) basic(w http.ResponseWriter, r *http.Request) {
	drivers := sql.Drivers()
	writeContent(w, map[string]any{
		"Version":         v.version,
		"GoVersion":       runtime.Version(),
		"Drivers":         drivers,
		"ResetEnable":     v.resetEnable,
		"ResetCount":      v.resetCount.Load(),
		"StartTime":       v.startTime,
		"DataSourceCount": len(v.sources),
	})
}

func (v *StatView) dataSources(w http.ResponseWriter, r *http.Request) {
	out := make([]pool.PoolStat, 0, len(v.sources))
	for _, src := range v.sources {
		out = append(out, src.Stats())
	}
	writeContent(w, out)
}

// sqlRow is one SQL statistic tagged with the data source it came from.
type sqlRow struct {
	DataSource string `json:"DataSource"`
	stat.SQLStat
}

var sqlOrderKeys = map[string]func(stat.SQLStat) int64{
	"ExecuteCount":     func(s stat.SQLStat) int64 { return s.ExecuteCount },
	"ErrorCount":       func(s stat.SQLStat) int64 { return s.ErrorCount },
	"SlowCount":        func(s stat.SQLStat) int64 { return s.SlowCount },
	"TotalTime":        func(s stat.SQLStat) int64 { return s.TotalTimeMillis },
	"MaxTimespan":      func(s stat.SQLStat) int64 { return s.MaxTimespan },
	"EffectedRowCount": func(s stat.SQLStat) int64 { return s.EffectedRowCount },
	"ConcurrentMax":    func(s stat.SQLStat) int64 { return s.ConcurrentMax },
}

// sqlStats lists SQL statistics, most recent first unless orderBy names a
// counter. page and perPageCount paginate the result.
func (v *StatView) sqlStats(w http.ResponseWriter, r *http.Request) {
	var rows []sqlRow
	for _, src := range v.sources {
		name := src.Stats().Name
		for _, s := range src.SQLStats() {
			rows = append(rows, sqlRow{DataSource: name, SQLStat: s})
		}
	}
	if key, ok := sqlOrderKeys[queryString(r, "orderBy")]; ok {
		desc := queryString(r, "orderType") != "asc"
		sort.SliceStable(rows, func(i, j int) bool {
			if desc {
				return key(rows[i].SQLStat) > key(rows[j].SQLStat)
			}
			return key(rows[i].SQLStat) < key(rows[j].SQLStat)
		})
	}
	writeContent(w, paginate(r, rows))
}

var webOrderKeys = map[string]func(stat.URIStat) int64{
	"RequestCount":         func(s stat.URIStat) int64 { return s.RequestCount },
	"ErrorCount":           func(s stat.URIStat) int64 { return s.ErrorCount },
	"RequestTimeMillis":    func(s stat.URIStat) int64 { return s.TotalTimeMillis },
	"RequestTimeMillisMax": func(s stat.URIStat) int64 { return s.MaxTimespan },
	"ConcurrentMax":        func(s stat.URIStat) int64 { return s.ConcurrentMax },
}

func (v *StatView) webURIs(w http.ResponseWriter, r *http.Request) {
	var rows []stat.URIStat
	if v.web != nil {
		rows = v.web.Snapshot()
	}
	if key, ok := webOrderKeys[queryString(r, "orderBy")]; ok {
		desc := queryString(r, "orderType") != "asc"
		sort.SliceStable(rows, func(i, j int) bool {
			if desc {
				return key(rows[i]) > key(rows[j])
			}
			return key(rows[i]) < key(rows[j])
		})
	}
	writeContent(w, paginate(r, rows))
}

func paginate[T any](r *http.Request, rows []T) []T {
	if rows == nil {
		rows = []T{}
	}
	perPage := queryInt(r, "perPageCount", 0)
	if perPage <= 0 {
		return rows
	}
	perPage = clampInt(perPage, 1, 1000)
	page := queryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	start := clampInt((page-1)*perPage, 0, len(rows))
	end := clampInt(start+perPage, 0, len(rows))
	return rows[start:end]
}

// resetAll clears the web statistics and the statistics of every data source
// that allows it.
func (v *StatView) resetAll(w http.ResponseWriter, r *http.Request) {
	if !v.resetEnable {
		writeError(w, http.StatusForbidden, "reset is disabled")
		return
	}
	for _, src := range v.sources {
		if err := src.ResetStat(); err != nil {
			if errors.Is(err, pool.ErrResetDisabled) {
				v.logger.Debug("data source stat reset skipped", "datasource", src.Stats().Name)
				continue
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if v.web != nil {
		v.web.Reset()
	}
	v.resetCount.Add(1)
	v.logger.Info("stat view reset all", "remote_addr", r.RemoteAddr)
	writeContent(w, nil)
}
