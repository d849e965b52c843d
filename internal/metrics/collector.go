// Package metrics exports data source statistics to Prometheus. The
// collector reads the pool snapshot on every scrape.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/druidgo/druid-boot/internal/pool"
	"github.com/druidgo/druid-boot/internal/stat"
)

// Source is what the collector needs from a data source.
type Source interface {
	Stats() pool.PoolStat
	SQLStats() []stat.SQLStat
}

var labels = []string{"datasource"}

var (
	activeDesc = prometheus.NewDesc("druid_pool_active_connections",
		"Number of connections currently borrowed from the pool.", labels, nil)
	poolingDesc = prometheus.NewDesc("druid_pool_idle_connections",
		"Number of idle connections in the pool.", labels, nil)
	maxActiveDesc = prometheus.NewDesc("druid_pool_max_active",
		"Configured upper bound on open connections.", labels, nil)
	waitThreadDesc = prometheus.NewDesc("druid_pool_wait_threads",
		"Number of callers currently waiting for a connection.", labels, nil)
	connectDesc = prometheus.NewDesc("druid_pool_connect_total",
		"Connections borrowed from the pool.", labels, nil)
	closeDesc = prometheus.NewDesc("druid_pool_close_total",
		"Connections returned to the pool.", labels, nil)
	connectErrorDesc = prometheus.NewDesc("druid_pool_connect_errors_total",
		"Failed attempts to borrow a connection.", labels, nil)
	discardDesc = prometheus.NewDesc("druid_pool_discard_total",
		"Connections discarded after failing validation.", labels, nil)
	waitDurationDesc = prometheus.NewDesc("druid_pool_wait_seconds_total",
		"Total time spent waiting for a free connection.", labels, nil)
	sqlExecuteDesc = prometheus.NewDesc("druid_sql_execute_total",
		"Statements executed through the stat filter.", labels, nil)
	sqlErrorDesc = prometheus.NewDesc("druid_sql_errors_total",
		"Statements that returned an error.", labels, nil)
	sqlSlowDesc = prometheus.NewDesc("druid_sql_slow_total",
		"Statements slower than the slow SQL threshold.", labels, nil)
)

// PoolCollector implements prometheus.Collector for a set of data sources.
type PoolCollector struct {
	sources []Source
}

// NewPoolCollector creates a collector reporting every given source.
func NewPoolCollector(sources ...Source) *PoolCollector {
	return &PoolCollector{sources: sources}
}

// Describe sends the descriptors of every metric.
func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		activeDesc, poolingDesc, maxActiveDesc, waitThreadDesc,
		connectDesc, closeDesc, connectErrorDesc, discardDesc, waitDurationDesc,
		sqlExecuteDesc, sqlErrorDesc, sqlSlowDesc,
	} {
		ch <- d
	}
}

// Collect reads the current statistics and sends them as metrics.
func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	if c == nil {
		return
	}
	for _, src := range c.sources {
		st := src.Stats()
		name := st.Name

		gauge := func(d *prometheus.Desc, v float64) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, name)
		}
		counter := func(d *prometheus.Desc, v float64) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v, name)
		}

		gauge(activeDesc, float64(st.ActiveCount))
		gauge(poolingDesc, float64(st.PoolingCount))
		gauge(maxActiveDesc, float64(st.MaxActive))
		gauge(waitThreadDesc, float64(st.WaitThreadCount))
		counter(connectDesc, float64(st.ConnectCount))
		counter(closeDesc, float64(st.CloseCount))
		counter(connectErrorDesc, float64(st.ConnectErrorCount))
		counter(discardDesc, float64(st.DiscardCount))
		counter(waitDurationDesc, float64(st.WaitDurationMillis)/1000)

		var exec, errs, slow int64
		for _, sq := range src.SQLStats() {
			exec += sq.ExecuteCount
			errs += sq.ErrorCount
			slow += sq.SlowCount
		}
		counter(sqlExecuteDesc, float64(exec))
		counter(sqlErrorDesc, float64(errs))
		counter(sqlSlowDesc, float64(slow))
	}
}

// Registry returns a fresh registry holding a collector for sources.
func Registry(sources ...Source) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(NewPoolCollector(sources...)); err != nil {
		return nil, err
	}
	return reg, nil
}
