package pool

import (
	"sort"
	"strconv"
	"strings"
)

// propertySetters maps the flat druid property keys onto setters. The
// string value is parsed with strconv; a value that does not parse is
// logged and ignored.
var propertySetters = map[string]func(ds *DataSource, v string) error{
	"druid.name":            stringProp((*DataSource).SetName),
	"druid.url":             stringProp((*DataSource).SetURL),
	"druid.username":        stringProp((*DataSource).SetUsername),
	"druid.password":        stringProp((*DataSource).SetPassword),
	"druid.driverClassName": stringProp((*DataSource).SetDriverClassName),

	"druid.initialSize":              intProp((*DataSource).SetInitialSize),
	"druid.minIdle":                  intProp((*DataSource).SetMinIdle),
	"druid.maxActive":                intProp((*DataSource).SetMaxActive),
	"druid.maxWait":                  int64Prop((*DataSource).SetMaxWait),
	"druid.maxWaitThreadCount":       intProp((*DataSource).SetMaxWaitThreadCount),
	"druid.notFullTimeoutRetryCount": intProp((*DataSource).SetNotFullTimeoutRetryCount),
	"druid.failFast":                 boolProp((*DataSource).SetFailFast),

	"druid.testWhileIdle":          boolProp((*DataSource).SetTestWhileIdle),
	"druid.testOnBorrow":           boolProp((*DataSource).SetTestOnBorrow),
	"druid.testOnReturn":           boolProp((*DataSource).SetTestOnReturn),
	"druid.validationQuery":        stringProp((*DataSource).SetValidationQuery),
	"druid.validationQueryTimeout": intProp((*DataSource).SetValidationQueryTimeout),

	"druid.timeBetweenEvictionRunsMillis": int64Prop((*DataSource).SetTimeBetweenEvictionRunsMillis),
	"druid.minEvictableIdleTimeMillis":    int64Prop((*DataSource).SetMinEvictableIdleTimeMillis),
	"druid.maxEvictableIdleTimeMillis":    int64Prop((*DataSource).SetMaxEvictableIdleTimeMillis),
	"druid.phyTimeoutMillis":              int64Prop((*DataSource).SetPhyTimeoutMillis),
	"druid.keepAlive":                     boolProp((*DataSource).SetKeepAlive),

	"druid.poolPreparedStatements":                    boolProp((*DataSource).SetPoolPreparedStatements),
	"druid.maxPoolPreparedStatementPerConnectionSize": intProp((*DataSource).SetMaxPoolPreparedStatementPerConnectionSize),

	"druid.useGlobalDataSourceStat":   boolProp((*DataSource).SetUseGlobalDataSourceStat),
	"druid.timeBetweenLogStatsMillis": int64Prop((*DataSource).SetTimeBetweenLogStatsMillis),
	"druid.stat.sql.MaxSize":          intProp((*DataSource).SetStatSQLMaxSize),
	"druid.clearFiltersEnable":        boolProp((*DataSource).SetClearFiltersEnable),
	"druid.resetStatEnable":           boolProp((*DataSource).SetResetStatEnable),

	"druid.filters": func(ds *DataSource, v string) error { ds.SetFilters(v); return nil },
}

// ConfigFromProperties applies a flat "druid."-prefixed property set. Keys
// it does not know are ignored. Values that fail to parse are logged at
// warn level and leave the setting unchanged.
func (ds *DataSource) ConfigFromProperties(props map[string]string) {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		set, ok := propertySetters[k]
		if !ok {
			continue
		}
		v := strings.TrimSpace(props[k])
		if err := set(ds, v); err != nil {
			ds.logger.Warn("illegal property value ignored", "key", k, "value", v, "error", err)
		}
	}
}

func stringProp(set func(*DataSource, string)) func(*DataSource, string) error {
	return func(ds *DataSource, v string) error {
		set(ds, v)
		return nil
	}
}

func boolProp(set func(*DataSource, bool)) func(*DataSource, string) error {
	return func(ds *DataSource, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		set(ds, b)
		return nil
	}
}

func intProp(set func(*DataSource, int)) func(*DataSource, string) error {
	return func(ds *DataSource, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		set(ds, n)
		return nil
	}
}

func int64Prop(set func(*DataSource, int64)) func(*DataSource, string) error {
	return func(ds *DataSource, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		set(ds, n)
		return nil
	}
}

// SetConnectProperties replaces the driver connect properties. The stat
// filter reads druid.stat.mergeSql, druid.stat.slowSqlMillis and
// druid.stat.logSlowSql from them; keys are matched case-insensitively.
func (ds *DataSource) SetConnectProperties(props map[string]string) {
	cp := make(map[string]string, len(props))
	for k, v := range props {
		cp[k] = v
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.s.connectProperties = cp
	for k, v := range cp {
		v = strings.TrimSpace(v)
		switch strings.ToLower(k) {
		case "druid.stat.mergesql":
			if b, err := strconv.ParseBool(v); err == nil {
				ds.s.mergeSQL = b
			}
		case "druid.stat.slowsqlmillis":
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				ds.s.slowSQLMillis = n
			} else {
				ds.logger.Warn("illegal connect property ignored", "key", k, "value", v)
			}
		case "druid.stat.logslowsql":
			if b, err := strconv.ParseBool(v); err == nil {
				ds.s.logSlowSQL = b
			}
		}
	}
}

// ConnectProperties returns a copy of the connect properties.
func (ds *DataSource) ConnectProperties() map[string]string {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	out := make(map[string]string, len(ds.s.connectProperties))
	for k, v := range ds.s.connectProperties {
		out[k] = v
	}
	return out
}

func (ds *DataSource) SetName(v string) {
	if v != "" {
		ds.update(func(s *settings) { s.name = v })
	}
}
func (ds *DataSource) SetURL(v string)             { ds.update(func(s *settings) { s.url = v }) }
func (ds *DataSource) SetUsername(v string)        { ds.update(func(s *settings) { s.username = v }) }
func (ds *DataSource) SetPassword(v string)        { ds.update(func(s *settings) { s.password = v }) }
func (ds *DataSource) SetDriverClassName(v string) { ds.update(func(s *settings) { s.driverClassName = v }) }

func (ds *DataSource) Name() string            { return ds.snapshot().name }
func (ds *DataSource) URL() string             { return ds.snapshot().url }
func (ds *DataSource) Username() string        { return ds.snapshot().username }
func (ds *DataSource) DriverClassName() string { return ds.snapshot().driverClassName }

// SetInitialSize sets how many connections Init opens.
func (ds *DataSource) SetInitialSize(v int) { ds.update(func(s *settings) { s.initialSize = v }) }

// SetMinIdle sets the number of idle connections the pool keeps.
func (ds *DataSource) SetMinIdle(v int) {
	ds.update(func(s *settings) { s.minIdle = v })
	if ds.inited.Load() {
		ds.db.SetMaxIdleConns(maxIdle(ds.snapshot()))
	}
}

// SetMaxActive sets the upper bound on open connections. It also takes
// effect on an initialized pool.
func (ds *DataSource) SetMaxActive(v int) {
	ds.update(func(s *settings) { s.maxActive = v })
	if ds.inited.Load() && v > 0 {
		ds.db.SetMaxOpenConns(v)
	}
}

// SetMaxWait sets how long, in milliseconds, Conn waits for a connection.
// Zero or negative waits until the caller's context is done.
func (ds *DataSource) SetMaxWait(v int64) { ds.update(func(s *settings) { s.maxWait = v }) }

func (ds *DataSource) SetMaxWaitThreadCount(v int) {
	ds.update(func(s *settings) { s.maxWaitThreadCount = v })
}
func (ds *DataSource) SetNotFullTimeoutRetryCount(v int) {
	ds.update(func(s *settings) { s.notFullTimeoutRetryCount = v })
}
func (ds *DataSource) SetFailFast(v bool) { ds.update(func(s *settings) { s.failFast = v }) }

func (ds *DataSource) InitialSize() int              { return ds.snapshot().initialSize }
func (ds *DataSource) MinIdle() int                  { return ds.snapshot().minIdle }
func (ds *DataSource) MaxActive() int                { return ds.snapshot().maxActive }
func (ds *DataSource) MaxWait() int64                { return ds.snapshot().maxWait }
func (ds *DataSource) MaxWaitThreadCount() int       { return ds.snapshot().maxWaitThreadCount }
func (ds *DataSource) NotFullTimeoutRetryCount() int { return ds.snapshot().notFullTimeoutRetryCount }
func (ds *DataSource) FailFast() bool                { return ds.snapshot().failFast }

func (ds *DataSource) SetTestWhileIdle(v bool) { ds.update(func(s *settings) { s.testWhileIdle = v }) }
func (ds *DataSource) SetTestOnBorrow(v bool)  { ds.update(func(s *settings) { s.testOnBorrow = v }) }
func (ds *DataSource) SetTestOnReturn(v bool)  { ds.update(func(s *settings) { s.testOnReturn = v }) }
func (ds *DataSource) SetValidationQuery(v string) {
	ds.update(func(s *settings) { s.validationQuery = v })
}

// SetValidationQueryTimeout bounds the validation query, in seconds.
func (ds *DataSource) SetValidationQueryTimeout(v int) {
	ds.update(func(s *settings) { s.validationQueryTimeout = v })
}

func (ds *DataSource) TestWhileIdle() bool         { return ds.snapshot().testWhileIdle }
func (ds *DataSource) TestOnBorrow() bool          { return ds.snapshot().testOnBorrow }
func (ds *DataSource) TestOnReturn() bool          { return ds.snapshot().testOnReturn }
func (ds *DataSource) ValidationQuery() string     { return ds.snapshot().validationQuery }
func (ds *DataSource) ValidationQueryTimeout() int { return ds.snapshot().validationQueryTimeout }

func (ds *DataSource) SetTimeBetweenEvictionRunsMillis(v int64) {
	ds.update(func(s *settings) { s.timeBetweenEvictionRunsMillis = v })
}
func (ds *DataSource) SetMinEvictableIdleTimeMillis(v int64) {
	ds.update(func(s *settings) { s.minEvictableIdleTimeMillis = v })
}
func (ds *DataSource) SetMaxEvictableIdleTimeMillis(v int64) {
	ds.update(func(s *settings) { s.maxEvictableIdleTimeMillis = v })
}

// SetPhyTimeoutMillis caps the lifetime of a physical connection.
func (ds *DataSource) SetPhyTimeoutMillis(v int64) {
	ds.update(func(s *settings) { s.phyTimeoutMillis = v })
}
func (ds *DataSource) SetKeepAlive(v bool) { ds.update(func(s *settings) { s.keepAlive = v }) }

func (ds *DataSource) TimeBetweenEvictionRunsMillis() int64 {
	return ds.snapshot().timeBetweenEvictionRunsMillis
}
func (ds *DataSource) MinEvictableIdleTimeMillis() int64 { return ds.snapshot().minEvictableIdleTimeMillis }
func (ds *DataSource) MaxEvictableIdleTimeMillis() int64 { return ds.snapshot().maxEvictableIdleTimeMillis }
func (ds *DataSource) PhyTimeoutMillis() int64           { return ds.snapshot().phyTimeoutMillis }
func (ds *DataSource) KeepAlive() bool                   { return ds.snapshot().keepAlive }

func (ds *DataSource) SetPoolPreparedStatements(v bool) {
	ds.update(func(s *settings) { s.poolPreparedStatements = v })
}
func (ds *DataSource) SetMaxPoolPreparedStatementPerConnectionSize(v int) {
	ds.update(func(s *settings) {
		s.maxPSPerConnection = v
		if v > 0 {
			s.poolPreparedStatements = true
		}
	})
}
func (ds *DataSource) PoolPreparedStatements() bool { return ds.snapshot().poolPreparedStatements }
func (ds *DataSource) MaxPoolPreparedStatementPerConnectionSize() int {
	return ds.snapshot().maxPSPerConnection
}

func (ds *DataSource) SetUseGlobalDataSourceStat(v bool) {
	ds.update(func(s *settings) { s.useGlobalDataSourceStat = v })
}

// SetTimeBetweenLogStatsMillis enables the periodic stat log.
func (ds *DataSource) SetTimeBetweenLogStatsMillis(v int64) {
	ds.update(func(s *settings) { s.timeBetweenLogStatsMillis = v })
}

// SetStatSQLMaxSize bounds the number of distinct SQL texts tracked.
func (ds *DataSource) SetStatSQLMaxSize(v int) { ds.update(func(s *settings) { s.statSQLMaxSize = v }) }
func (ds *DataSource) SetClearFiltersEnable(v bool) {
	ds.update(func(s *settings) { s.clearFiltersEnable = v })
}
func (ds *DataSource) SetResetStatEnable(v bool) { ds.update(func(s *settings) { s.resetStatEnable = v }) }

func (ds *DataSource) UseGlobalDataSourceStat() bool    { return ds.snapshot().useGlobalDataSourceStat }
func (ds *DataSource) TimeBetweenLogStatsMillis() int64 { return ds.snapshot().timeBetweenLogStatsMillis }
func (ds *DataSource) StatSQLMaxSize() int              { return ds.snapshot().statSQLMaxSize }
func (ds *DataSource) ClearFiltersEnable() bool         { return ds.snapshot().clearFiltersEnable }
func (ds *DataSource) ResetStatEnable() bool            { return ds.snapshot().resetStatEnable }
func (ds *DataSource) MergeSQL() bool                   { return ds.snapshot().mergeSQL }
func (ds *DataSource) SlowSQLMillis() int64             { return ds.snapshot().slowSQLMillis }
