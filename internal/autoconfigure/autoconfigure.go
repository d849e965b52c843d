// Package autoconfigure wires the druid data source and its two web
// components from configuration. It evaluates the activation condition once,
// binds the spring.datasource and spring.datasource.druid properties, builds
// the data source and produces the stat view and web stat registrations the
// server mounts.
package autoconfigure

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/viper"

	"github.com/druidgo/druid-boot/internal/config"
	"github.com/druidgo/druid-boot/internal/connector"
	"github.com/druidgo/druid-boot/internal/handler"
	"github.com/druidgo/druid-boot/internal/metrics"
	"github.com/druidgo/druid-boot/internal/pool"
	"github.com/druidgo/druid-boot/internal/server/middleware"
	"github.com/druidgo/druid-boot/internal/stat"
)

// TypeProperty selects the pool implementation.
const TypeProperty = config.TypeKey

const (
	statViewServletName = "statViewServlet"
	webStatFilterName   = "webStatFilter"
)

// AutoConfiguration holds what Configure needs. Build it with New.
type AutoConfiguration struct {
	env       *viper.Viper
	registry  *connector.Registry
	condition Condition
	web       *stat.WebStore
	version   string
	logger    *slog.Logger
}

// Option customizes an AutoConfiguration.
type Option func(*AutoConfiguration)

// WithRegistry replaces the default driver registry.
func WithRegistry(r *connector.Registry) Option {
	return func(a *AutoConfiguration) { a.registry = r }
}

// WithCondition replaces the activation condition.
func WithCondition(c Condition) Option {
	return func(a *AutoConfiguration) { a.condition = c }
}

// WithVersion sets the version reported by the stat view console.
func WithVersion(v string) Option {
	return func(a *AutoConfiguration) { a.version = v }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *AutoConfiguration) { a.logger = l }
}

// New creates an AutoConfiguration reading from env. A nil env behaves like
// an empty configuration source.
func New(env *viper.Viper, opts ...Option) *AutoConfiguration {
	a := &AutoConfiguration{
		env:       env,
		condition: ActivationCondition(),
		web:       stat.NewWebStore(0),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.registry == nil {
		a.registry = DefaultRegistry()
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// Result is what Configure produced. An inactive result carries only the
// outcome of the activation condition.
type Result struct {
	Active     bool
	Outcome    Outcome
	Properties *config.DruidProperties
	DataSource *pool.DataSource
	Servlets   []ServletRegistration
	Filters    []FilterRegistration
}

// Close releases the data source, if any.
func (r *Result) Close() error {
	if r == nil || r.DataSource == nil {
		return nil
	}
	return r.DataSource.Close()
}

// Configure evaluates the activation condition and, when it matches, binds
// the configuration and builds the data source plus both registrations.
// Failing conditions yield an inactive Result and a nil error. The data
// source is not connected here; it initializes on first use.
func (a *AutoConfiguration) Configure(ctx context.Context) (*Result, error) {
	var env Environment
	if a.env != nil {
		env = a.env
	}
	outcome := a.condition(env)
	if !outcome.Match {
		a.logger.InfoContext(ctx, "druid auto-configuration skipped", "reason", outcome.Message)
		return &Result{Outcome: outcome}, nil
	}

	dsProps, err := config.BindDataSourceProperties(a.env)
	if err != nil {
		return nil, err
	}
	druid, err := config.BindDruidProperties(a.env)
	if err != nil {
		return nil, err
	}

	ds, err := a.DataSource(dsProps, druid)
	if err != nil {
		return nil, err
	}
	servlet, err := a.StatViewServlet(druid, ds)
	if err != nil {
		ds.Close()
		return nil, err
	}

	a.logger.InfoContext(ctx, "druid auto-configuration active",
		"datasource", ds.Name(),
		"url_mapping", servlet.URLMappings[0],
		"condition", outcome.Message,
	)
	return &Result{
		Active:     true,
		Outcome:    outcome,
		Properties: druid,
		DataSource: ds,
		Servlets:   []ServletRegistration{servlet},
		Filters:    []FilterRegistration{a.WebStatFilter(druid)},
	}, nil
}

// DataSource builds the druid data source from the base data source
// properties and applies the druid schema: the flat projection first, then
// the four sizing fields through their setters, then the connection
// properties. Builder errors are returned as they are, with context.
func (a *AutoConfiguration) DataSource(props *config.DataSourceProperties, druid *config.DruidProperties) (*pool.DataSource, error) {
	ds, err := pool.NewBuilder(a.registry).
		Name(props.Name).
		URL(props.URL).
		Username(props.Username).
		Password(props.Password).
		DriverClassName(props.DriverClassName).
		Logger(a.logger).
		Type(pool.TypeName).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build druid data source: %w", err)
	}

	ds.ConfigFromProperties(druid.ToProperties())
	ds.SetInitialSize(druid.InitialSize)
	ds.SetMinIdle(druid.MinIdle)
	ds.SetMaxActive(druid.MaxActive)
	ds.SetMaxWait(druid.MaxWait)
	ds.SetConnectProperties(druid.ConnectionProperties)
	return ds, nil
}

// StatViewInitParams returns the stat view init parameters. Each one is
// present only when its property is a non-empty string.
func StatViewInitParams(druid *config.DruidProperties) map[string]string {
	params := make(map[string]string)
	addParam(params, handler.ParamLoginUsername, druid.WebLoginUsername)
	addParam(params, handler.ParamLoginPassword, druid.WebLoginPassword)
	addParam(params, handler.ParamAllow, druid.WebAllow)
	addParam(params, handler.ParamDeny, druid.WebDeny)
	return params
}

// StatViewServlet registers the stat view console under URLMapping(path),
// showing the statistics of sources.
func (a *AutoConfiguration) StatViewServlet(druid *config.DruidProperties, sources ...handler.StatSource) (ServletRegistration, error) {
	params := StatViewInitParams(druid)

	metricSources := make([]metrics.Source, len(sources))
	for i, s := range sources {
		metricSources[i] = s
	}
	reg, err := metrics.Registry(metricSources...)
	if err != nil {
		return ServletRegistration{}, fmt.Errorf("register pool metrics: %w", err)
	}

	view, err := handler.NewStatView(handler.StatViewOptions{
		Sources:    sources,
		Web:        a.web,
		InitParams: params,
		Gatherer:   reg,
		Version:    a.version,
		Logger:     a.logger,
	})
	if err != nil {
		return ServletRegistration{}, err
	}
	return ServletRegistration{
		Name:        statViewServletName,
		Handler:     view,
		URLMappings: []string{URLMapping(druid.Path)},
		Methods:     []string{"GET", "POST"},
		InitParams:  params,
	}, nil
}

// WebStatFilter registers the web stat filter on every path, excluding the
// webStatFilterExclusions patterns.
func (a *AutoConfiguration) WebStatFilter(druid *config.DruidProperties) FilterRegistration {
	params := map[string]string{middleware.ParamExclusions: druid.WebStatFilterExclusions}
	return FilterRegistration{
		Name:        webStatFilterName,
		Middleware:  middleware.WebStatFilter(a.web, params),
		URLPatterns: []string{"/*"},
		InitParams:  params,
	}
}
