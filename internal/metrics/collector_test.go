package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/druidgo/druid-boot/internal/pool"
	"github.com/druidgo/druid-boot/internal/stat"
)

type fakeSource struct {
	st  pool.PoolStat
	sql []stat.SQLStat
}

func (f fakeSource) Stats() pool.PoolStat     { return f.st }
func (f fakeSource) SQLStats() []stat.SQLStat { return f.sql }

func TestPoolCollector(t *testing.T) {
	src := fakeSource{
		st: pool.PoolStat{Name: "primary", ActiveCount: 2, PoolingCount: 3, MaxActive: 8, ConnectCount: 10},
		sql: []stat.SQLStat{
			{SQL: "SELECT ?", ExecuteCount: 4, ErrorCount: 1},
			{SQL: "UPDATE t SET a = ?", ExecuteCount: 2, SlowCount: 1},
		},
	}
	reg, err := Registry(src)
	if err != nil {
		t.Fatalf("Registry: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	got := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if len(m.GetLabel()) != 1 || m.GetLabel()[0].GetValue() != "primary" {
				t.Errorf("%s: unexpected labels %v", mf.GetName(), m.GetLabel())
			}
			if g := m.GetGauge(); g != nil {
				got[mf.GetName()] = g.GetValue()
			}
			if c := m.GetCounter(); c != nil {
				got[mf.GetName()] = c.GetValue()
			}
		}
	}

	want := map[string]float64{
		"druid_pool_active_connections": 2,
		"druid_pool_idle_connections":   3,
		"druid_pool_max_active":         8,
		"druid_pool_connect_total":      10,
		"druid_sql_execute_total":       6,
		"druid_sql_errors_total":        1,
		"druid_sql_slow_total":          1,
	}
	for name, v := range want {
		if got[name] != v {
			t.Errorf("%s = %v, want %v", name, got[name], v)
		}
	}
}

func TestNilCollector(t *testing.T) {
	var c *PoolCollector
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	if len(ch) != 0 {
		t.Error("nil collector should emit nothing")
	}
}
