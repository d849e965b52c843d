package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func newViper(t *testing.T, yaml string) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(yaml)); err != nil {
		t.Fatalf("read config: %v", err)
	}
	return v
}

// ---------------------------------------------------------------------------
// Defaults and projection
// ---------------------------------------------------------------------------

func TestBindEmptySourceYieldsDefaults(t *testing.T) {
	p, err := BindDruidProperties(viper.New())
	if err != nil {
		t.Fatalf("BindDruidProperties: %v", err)
	}

	if p.Path != "/druid/*" {
		t.Errorf("Path = %q", p.Path)
	}
	if p.TestWhileIdle == nil || !*p.TestWhileIdle || p.TestOnBorrow == nil || !*p.TestOnBorrow {
		t.Error("testWhileIdle and testOnBorrow default to true")
	}
	if p.ValidationQuery == nil || *p.ValidationQuery != "SELECT 1" {
		t.Error("validationQuery defaults to SELECT 1")
	}
	if p.MinEvictableIdleTimeMillis == nil || *p.MinEvictableIdleTimeMillis != 300000 {
		t.Error("minEvictableIdleTimeMillis defaults to 300000")
	}
	if p.PoolPreparedStatements == nil || *p.PoolPreparedStatements {
		t.Error("poolPreparedStatements defaults to false")
	}
	if p.InitialSize != 0 || p.MinIdle != 5 || p.MaxActive != 8 || p.MaxWait != 60000 {
		t.Errorf("sizing = %d/%d/%d/%d", p.InitialSize, p.MinIdle, p.MaxActive, p.MaxWait)
	}
	if p.TimeBetweenEvictionRunsMillis == nil || *p.TimeBetweenEvictionRunsMillis != 60000 {
		t.Error("timeBetweenEvictionRunsMillis defaults to 60000")
	}
	if p.MaxPoolPreparedStatementPerConnectionSize == nil || *p.MaxPoolPreparedStatementPerConnectionSize != 100 {
		t.Error("maxPoolPreparedStatementPerConnectionSize defaults to 100")
	}
	if p.WebStatFilterExclusions != "*.js,*.gif,*.jpg,*.png,*.css,*.ico,/druid/*" {
		t.Errorf("WebStatFilterExclusions = %q", p.WebStatFilterExclusions)
	}
	if p.WebLoginUsername != "" || p.WebLoginPassword != "" || p.WebAllow != "" || p.WebDeny != "" {
		t.Error("console init params default to empty")
	}
	if p.ConnectionProperties["druid.stat.mergeSql"] != "true" || p.ConnectionProperties["druid.stat.slowSqlMillis"] != "5000" {
		t.Errorf("ConnectionProperties = %v", p.ConnectionProperties)
	}
	for _, unset := range []any{p.UseGlobalDataSourceStat, p.Filters, p.TimeBetweenLogStatsMillis, p.MaxSize,
		p.ClearFiltersEnable, p.ResetStatEnable, p.NotFullTimeoutRetryCount, p.MaxWaitThreadCount,
		p.FailFast, p.PhyTimeoutMillis, p.MaxEvictableIdleTimeMillis, p.KeepAlive} {
		if !isNilPointer(unset) {
			t.Errorf("expected unset field, got %v", unset)
		}
	}
}

func isNilPointer(v any) bool {
	switch p := v.(type) {
	case *bool:
		return p == nil
	case *string:
		return p == nil
	case *int:
		return p == nil
	case *int64:
		return p == nil
	}
	return false
}

func TestToPropertiesDefaults(t *testing.T) {
	got := DefaultDruidProperties().ToProperties()
	want := map[string]string{
		"druid.testWhileIdle":                             "true",
		"druid.testOnBorrow":                              "true",
		"druid.validationQuery":                           "SELECT 1",
		"druid.minEvictableIdleTimeMillis":                "300000",
		"druid.timeBetweenEvictionRunsMillis":             "60000",
		"druid.poolPreparedStatements":                    "false",
		"druid.maxPoolPreparedStatementPerConnectionSize": "100",
	}
	if len(got) != len(want) {
		t.Errorf("ToProperties() has %d keys, want %d: %v", len(got), len(want), got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
}

func TestToPropertiesNeverEmitsEmptyOrNull(t *testing.T) {
	p := DefaultDruidProperties()
	empty := ""
	p.Filters = &empty
	p.ValidationQuery = nil

	for k, v := range p.ToProperties() {
		if v == "" || v == "null" {
			t.Errorf("%s emitted as %q", k, v)
		}
		if !strings.HasPrefix(k, "druid.") {
			t.Errorf("key %s lacks the druid. prefix", k)
		}
	}
	if _, ok := p.ToProperties()["druid.validationQuery"]; ok {
		t.Error("unset validationQuery must be omitted")
	}
}

func TestToPropertiesAllFields(t *testing.T) {
	p := DefaultDruidProperties()
	p.UseGlobalDataSourceStat = ptr(true)
	p.Filters = ptr("stat,wall")
	p.TimeBetweenLogStatsMillis = ptr(int64(30000))
	p.MaxSize = ptr(200)
	p.ClearFiltersEnable = ptr(false)
	p.ResetStatEnable = ptr(false)
	p.NotFullTimeoutRetryCount = ptr(2)
	p.MaxWaitThreadCount = ptr(20)
	p.FailFast = ptr(true)
	p.PhyTimeoutMillis = ptr(true)
	p.MaxEvictableIdleTimeMillis = ptr(int64(900000))
	p.KeepAlive = ptr(true)

	got := p.ToProperties()
	want := map[string]string{
		"druid.useGlobalDataSourceStat":    "true",
		"druid.filters":                    "stat,wall",
		"druid.timeBetweenLogStatsMillis":  "30000",
		"druid.stat.sql.MaxSize":           "200",
		"druid.clearFiltersEnable":         "false",
		"druid.resetStatEnable":            "false",
		"druid.notFullTimeoutRetryCount":   "2",
		"druid.maxWaitThreadCount":         "20",
		"druid.failFast":                   "true",
		"druid.phyTimeoutMillis":           "true",
		"druid.maxEvictableIdleTimeMillis": "900000",
		"druid.keepAlive":                  "true",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
	if _, ok := got["druid.maxSize"]; ok {
		t.Error("maxSize must project to druid.stat.sql.MaxSize only")
	}
	for _, sizing := range []string{"druid.initialSize", "druid.minIdle", "druid.maxActive", "druid.maxWait"} {
		if _, ok := got[sizing]; ok {
			t.Errorf("%s is applied through a setter, not the projection", sizing)
		}
	}
}

// ---------------------------------------------------------------------------
// Connection properties
// ---------------------------------------------------------------------------

func TestDefaultConnectionPropertiesIsACopy(t *testing.T) {
	a := DefaultConnectionProperties()
	a["druid.stat.mergeSql"] = "false"
	if DefaultConnectionProperties()["druid.stat.mergeSql"] != "true" {
		t.Error("modifying a returned map leaked into the defaults")
	}

	p1, p2 := DefaultDruidProperties(), DefaultDruidProperties()
	p1.ConnectionProperties["x"] = "y"
	if _, ok := p2.ConnectionProperties["x"]; ok {
		t.Error("two schemas share a connection properties map")
	}
}

func TestMergeConnectionProperties(t *testing.T) {
	got := MergeConnectionProperties(map[string]string{"druid.stat.slowsqlmillis": "100", "extra": "1"})
	if len(got) != 3 {
		t.Errorf("merged = %v, want 3 keys", got)
	}
	if got["druid.stat.slowSqlMillis"] != "100" || got["druid.stat.mergeSql"] != "true" || got["extra"] != "1" {
		t.Errorf("merged = %v", got)
	}
}

// ---------------------------------------------------------------------------
// Binding
// ---------------------------------------------------------------------------

func TestBindRelaxedKeys(t *testing.T) {
	v := newViper(t, `
spring:
  datasource:
    druid:
      test-while-idle: false
      validation_query: SELECT 2
      maxActive: 20
      max-wait: "1500"
      filters: stat
      web-login-username: admin
      webAllow: 127.0.0.1
      connectionProperties:
        druid.stat.mergeSql: false
`)
	p, err := BindDruidProperties(v)
	if err != nil {
		t.Fatalf("BindDruidProperties: %v", err)
	}
	if *p.TestWhileIdle || *p.ValidationQuery != "SELECT 2" || p.MaxActive != 20 || p.MaxWait != 1500 {
		t.Errorf("bound = %v/%q/%d/%d", *p.TestWhileIdle, *p.ValidationQuery, p.MaxActive, p.MaxWait)
	}
	if p.Filters == nil || *p.Filters != "stat" {
		t.Errorf("Filters = %v", p.Filters)
	}
	if p.WebLoginUsername != "admin" || p.WebAllow != "127.0.0.1" {
		t.Errorf("console = %q/%q", p.WebLoginUsername, p.WebAllow)
	}
	if p.ConnectionProperties["druid.stat.mergeSql"] != "false" || p.ConnectionProperties["druid.stat.slowSqlMillis"] != "5000" {
		t.Errorf("ConnectionProperties = %v", p.ConnectionProperties)
	}
}

func TestBindEnvironment(t *testing.T) {
	t.Setenv("SPRING_DATASOURCE_DRUID_MAXACTIVE", "42")
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	p, err := BindDruidProperties(v)
	if err != nil {
		t.Fatalf("BindDruidProperties: %v", err)
	}
	if p.MaxActive != 42 {
		t.Errorf("MaxActive = %d, want 42 from the environment", p.MaxActive)
	}
}

func TestBindConversionError(t *testing.T) {
	v := newViper(t, `
spring:
  datasource:
    druid:
      testOnBorrow: sometimes
`)
	if _, err := BindDruidProperties(v); err == nil || !strings.Contains(err.Error(), "testOnBorrow") {
		t.Errorf("err = %v, want a binding error naming testOnBorrow", err)
	}
}

func TestBindMalformedConnectionProperties(t *testing.T) {
	v := newViper(t, `
spring:
  datasource:
    druid:
      connectionProperties: "druid.stat.mergeSql"
`)
	if _, err := BindDruidProperties(v); err == nil {
		t.Error("expected an error for a pair without '='")
	}
}

func TestRelaxedNames(t *testing.T) {
	got := relaxedNames("timeBetweenLogStatsMillis")
	want := []string{"timeBetweenLogStatsMillis", "time-between-log-stats-millis", "time_between_log_stats_millis"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("relaxedNames = %v", got)
	}
	if got := relaxedNames("path"); len(got) != 1 {
		t.Errorf("relaxedNames(path) = %v", got)
	}
}

func TestBindDataSourceProperties(t *testing.T) {
	p, err := BindDataSourceProperties(viper.New())
	if err != nil {
		t.Fatalf("BindDataSourceProperties: %v", err)
	}
	if p.URL != EmbeddedURL || p.DriverClassName != "sqlite" || p.Name != "dataSource" {
		t.Errorf("embedded fallback = %+v", p)
	}

	v := newViper(t, `
spring:
  datasource:
    url: postgres://db:5432/app
    username: app
    driver-class-name: org.postgresql.Driver
`)
	p, err = BindDataSourceProperties(v)
	if err != nil {
		t.Fatalf("BindDataSourceProperties: %v", err)
	}
	if p.URL != "postgres://db:5432/app" || p.Username != "app" || p.DriverClassName != "org.postgresql.Driver" {
		t.Errorf("bound = %+v", p)
	}
}

// ---------------------------------------------------------------------------
// Config file
// ---------------------------------------------------------------------------

func TestWriteAndLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "druid.yaml")
	cfg := DefaultFileConfig()
	cfg.Spring.Datasource.Druid.WebLoginUsername = "${DRUID_TEST_USER}"
	if err := WriteConfig(path, cfg, false); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}
	if err := WriteConfig(path, cfg, false); err == nil {
		t.Error("expected ErrConfigExists without force")
	}
	if err := WriteConfig(path, cfg, true); err != nil {
		t.Errorf("WriteConfig with force: %v", err)
	}

	t.Setenv("DRUID_TEST_USER", "ops")
	loaded, err := LoadYAMLConfig(path)
	if err != nil {
		t.Fatalf("LoadYAMLConfig: %v", err)
	}
	if loaded.Spring.Datasource.Druid.WebLoginUsername != "ops" {
		t.Errorf("env expansion: got %q", loaded.Spring.Datasource.Druid.WebLoginUsername)
	}
	if loaded.Server.Port != 8080 || loaded.Spring.Datasource.URL != EmbeddedURL {
		t.Errorf("loaded = %+v", loaded)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal(err)
	}
}
