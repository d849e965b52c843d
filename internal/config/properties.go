package config

import (
	"strconv"
	"strings"
)

// DruidPrefix is the namespace root the druid properties are bound from.
const DruidPrefix = "spring.datasource.druid"

// propertyPrefix is prepended to every key of the flat projection.
const propertyPrefix = "druid."

// Defaults for the druid properties.
const (
	DefaultPath                          = "/druid/*"
	DefaultValidationQuery               = "SELECT 1"
	DefaultMinEvictableIdleTimeMillis    = int64(300000)
	DefaultInitialSize                   = 0
	DefaultMinIdle                       = 5
	DefaultMaxActive                     = 8
	DefaultMaxWait                       = int64(60000)
	DefaultTimeBetweenEvictionRunsMillis = int64(60000)
	DefaultMaxPoolPreparedStatements     = 100
	DefaultWebStatFilterExclusions       = "*.js,*.gif,*.jpg,*.png,*.css,*.ico,/druid/*"
)

var defaultConnectionProperties = map[string]string{
	"druid.stat.mergeSql":      "true",
	"druid.stat.slowSqlMillis": "5000",
}

// DruidProperties is the druid data source configuration schema. Pointer
// fields are optional: nil means unset and the field is left out of
// ToProperties. The four sizing fields are always applied by the
// auto-configuration through dedicated setters.
type DruidProperties struct {
	// Path is the URL path the stat view console is served under.
	Path string `yaml:"path"`

	// TestWhileIdle validates a borrowed connection with ValidationQuery
	// when it has been idle longer than TimeBetweenEvictionRunsMillis.
	TestWhileIdle *bool `yaml:"testWhileIdle,omitempty"`

	// TestOnBorrow validates every borrowed connection.
	TestOnBorrow *bool `yaml:"testOnBorrow,omitempty"`

	// ValidationQuery is the statement used to check a connection.
	ValidationQuery *string `yaml:"validationQuery,omitempty"`

	// UseGlobalDataSourceStat merges the SQL statistics of every data
	// source in the process.
	UseGlobalDataSourceStat *bool `yaml:"useGlobalDataSourceStat,omitempty"`

	// Filters is a comma separated list of filter aliases, e.g. "stat,wall,log".
	Filters *string `yaml:"filters,omitempty"`

	TimeBetweenLogStatsMillis *int64 `yaml:"timeBetweenLogStatsMillis,omitempty"`
	MaxSize                   *int   `yaml:"maxSize,omitempty"`
	ClearFiltersEnable        *bool  `yaml:"clearFiltersEnable,omitempty"`
	ResetStatEnable           *bool  `yaml:"resetStatEnable,omitempty"`
	NotFullTimeoutRetryCount  *int   `yaml:"notFullTimeoutRetryCount,omitempty"`
	MaxWaitThreadCount        *int   `yaml:"maxWaitThreadCount,omitempty"`
	FailFast                  *bool  `yaml:"failFast,omitempty"`
	PhyTimeoutMillis          *bool  `yaml:"phyTimeoutMillis,omitempty"`

	// MinEvictableIdleTimeMillis is how long a connection may stay idle
	// before it is evicted.
	MinEvictableIdleTimeMillis *int64 `yaml:"minEvictableIdleTimeMillis,omitempty"`
	MaxEvictableIdleTimeMillis *int64 `yaml:"maxEvictableIdleTimeMillis,omitempty"`
	KeepAlive                  *bool  `yaml:"keepAlive,omitempty"`

	// PoolPreparedStatements enables the prepared statement cache.
	PoolPreparedStatements *bool `yaml:"poolPreparedStatements,omitempty"`

	InitialSize int   `yaml:"initialSize"`
	MinIdle     int   `yaml:"minIdle"`
	MaxActive   int   `yaml:"maxActive"`
	MaxWait     int64 `yaml:"maxWait"`

	TimeBetweenEvictionRunsMillis             *int64 `yaml:"timeBetweenEvictionRunsMillis,omitempty"`
	MaxPoolPreparedStatementPerConnectionSize *int   `yaml:"maxPoolPreparedStatementPerConnectionSize,omitempty"`

	// WebStatFilterExclusions lists the request paths the web stat filter ignores.
	WebStatFilterExclusions string `yaml:"webStatFilterExclusions"`

	// Stat view console credentials and IP lists. Empty means not configured.
	WebLoginUsername string `yaml:"webLoginUsername,omitempty"`
	WebLoginPassword string `yaml:"webLoginPassword,omitempty"`
	WebAllow         string `yaml:"webAllow,omitempty"`
	WebDeny          string `yaml:"webDeny,omitempty"`

	ConnectionProperties map[string]string `yaml:"connectionProperties,omitempty"`
}

// DefaultDruidProperties returns the schema with every default applied.
func DefaultDruidProperties() *DruidProperties {
	return &DruidProperties{
		Path:                          DefaultPath,
		TestWhileIdle:                 ptr(true),
		TestOnBorrow:                  ptr(true),
		ValidationQuery:               ptr(DefaultValidationQuery),
		MinEvictableIdleTimeMillis:    ptr(DefaultMinEvictableIdleTimeMillis),
		PoolPreparedStatements:        ptr(false),
		InitialSize:                   DefaultInitialSize,
		MinIdle:                       DefaultMinIdle,
		MaxActive:                     DefaultMaxActive,
		MaxWait:                       DefaultMaxWait,
		TimeBetweenEvictionRunsMillis: ptr(DefaultTimeBetweenEvictionRunsMillis),
		MaxPoolPreparedStatementPerConnectionSize: ptr(DefaultMaxPoolPreparedStatements),
		WebStatFilterExclusions:                   DefaultWebStatFilterExclusions,
		ConnectionProperties:                      DefaultConnectionProperties(),
	}
}

// ToProperties projects the schema onto the flat "druid."-prefixed property
// set understood by the data source. Unset fields are omitted.
func (p *DruidProperties) ToProperties() map[string]string {
	props := make(map[string]string)
	putBool(props, "testWhileIdle", p.TestWhileIdle)
	putBool(props, "testOnBorrow", p.TestOnBorrow)
	putString(props, "validationQuery", p.ValidationQuery)
	putBool(props, "useGlobalDataSourceStat", p.UseGlobalDataSourceStat)
	putString(props, "filters", p.Filters)
	putInt64(props, "timeBetweenLogStatsMillis", p.TimeBetweenLogStatsMillis)
	putInt(props, "stat.sql.MaxSize", p.MaxSize)
	putBool(props, "clearFiltersEnable", p.ClearFiltersEnable)
	putBool(props, "resetStatEnable", p.ResetStatEnable)
	putInt(props, "notFullTimeoutRetryCount", p.NotFullTimeoutRetryCount)
	putInt(props, "maxWaitThreadCount", p.MaxWaitThreadCount)
	putBool(props, "failFast", p.FailFast)
	putBool(props, "phyTimeoutMillis", p.PhyTimeoutMillis)
	putInt64(props, "minEvictableIdleTimeMillis", p.MinEvictableIdleTimeMillis)
	putInt64(props, "maxEvictableIdleTimeMillis", p.MaxEvictableIdleTimeMillis)
	putBool(props, "keepAlive", p.KeepAlive)
	putInt64(props, "timeBetweenEvictionRunsMillis", p.TimeBetweenEvictionRunsMillis)
	putBool(props, "poolPreparedStatements", p.PoolPreparedStatements)
	putInt(props, "maxPoolPreparedStatementPerConnectionSize", p.MaxPoolPreparedStatementPerConnectionSize)
	return props
}

// DefaultConnectionProperties returns a fresh copy of the default connection
// properties. Callers may modify the result.
func DefaultConnectionProperties() map[string]string {
	out := make(map[string]string, len(defaultConnectionProperties))
	for k, v := range defaultConnectionProperties {
		out[k] = v
	}
	return out
}

// MergeConnectionProperties returns the defaults overlaid with overrides.
// Keys are matched case-insensitively so that a lowercased key produced by a
// config loader replaces the default instead of duplicating it.
func MergeConnectionProperties(overrides map[string]string) map[string]string {
	merged := DefaultConnectionProperties()
	for k, v := range overrides {
		key := k
		for existing := range merged {
			if strings.EqualFold(existing, k) {
				key = existing
				break
			}
		}
		merged[key] = v
	}
	return merged
}

func ptr[T any](v T) *T { return &v }

func putString(props map[string]string, key string, v *string) {
	if v != nil && *v != "" {
		props[propertyPrefix+key] = *v
	}
}

func putBool(props map[string]string, key string, v *bool) {
	if v != nil {
		props[propertyPrefix+key] = strconv.FormatBool(*v)
	}
}

func putInt(props map[string]string, key string, v *int) {
	if v != nil {
		props[propertyPrefix+key] = strconv.Itoa(*v)
	}
}

func putInt64(props map[string]string, key string, v *int64) {
	if v != nil {
		props[propertyPrefix+key] = strconv.FormatInt(*v, 10)
	}
}
