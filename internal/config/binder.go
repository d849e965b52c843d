package config

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// DataSourcePrefix is the namespace root of the base data source settings.
const DataSourcePrefix = "spring.datasource"

// TypeKey selects the pool implementation. When it is absent the druid
// data source is used.
const TypeKey = DataSourcePrefix + ".type"

// DataSourceProperties is the base data source configuration: where to
// connect and which pool implementation to build.
type DataSourceProperties struct {
	Name            string `yaml:"name,omitempty"`
	URL             string `yaml:"url,omitempty"`
	Username        string `yaml:"username,omitempty"`
	Password        string `yaml:"password,omitempty"`
	DriverClassName string `yaml:"driverClassName,omitempty"`
	Type            string `yaml:"type,omitempty"`
}

// EmbeddedURL is used when no URL is configured, mirroring an embedded
// database fallback.
const EmbeddedURL = "file::memory:?cache=shared"

// BindDataSourceProperties reads the spring.datasource.* keys from v.
// A missing URL falls back to an in-memory SQLite database.
func BindDataSourceProperties(v *viper.Viper) (*DataSourceProperties, error) {
	p := &DataSourceProperties{Name: "dataSource"}
	if v == nil {
		p.URL, p.DriverClassName = EmbeddedURL, "sqlite"
		return p, nil
	}

	b := binder{v: v, prefix: DataSourcePrefix}
	b.str("name", &p.Name)
	b.str("url", &p.URL)
	b.str("username", &p.Username)
	b.str("password", &p.Password)
	b.str("driverClassName", &p.DriverClassName)
	b.str("type", &p.Type)
	if b.err != nil {
		return nil, b.err
	}

	if p.URL == "" {
		p.URL = EmbeddedURL
		if p.DriverClassName == "" {
			p.DriverClassName = "sqlite"
		}
	}
	return p, nil
}

// BindDruidProperties reads the spring.datasource.druid.* keys from v on top
// of DefaultDruidProperties. Keys may be written camelCase, kebab-case or
// snake_case. A key whose value cannot be converted to the field type is a
// binding error; absent keys keep their defaults.
func BindDruidProperties(v *viper.Viper) (*DruidProperties, error) {
	p := DefaultDruidProperties()
	if v == nil {
		return p, nil
	}

	b := binder{v: v, prefix: DruidPrefix}
	b.str("path", &p.Path)
	b.optBool("testWhileIdle", &p.TestWhileIdle)
	b.optBool("testOnBorrow", &p.TestOnBorrow)
	b.optStr("validationQuery", &p.ValidationQuery)
	b.optBool("useGlobalDataSourceStat", &p.UseGlobalDataSourceStat)
	b.optStr("filters", &p.Filters)
	b.optInt64("timeBetweenLogStatsMillis", &p.TimeBetweenLogStatsMillis)
	b.optInt("maxSize", &p.MaxSize)
	b.optBool("clearFiltersEnable", &p.ClearFiltersEnable)
	b.optBool("resetStatEnable", &p.ResetStatEnable)
	b.optInt("notFullTimeoutRetryCount", &p.NotFullTimeoutRetryCount)
	b.optInt("maxWaitThreadCount", &p.MaxWaitThreadCount)
	b.optBool("failFast", &p.FailFast)
	b.optBool("phyTimeoutMillis", &p.PhyTimeoutMillis)
	b.optInt64("minEvictableIdleTimeMillis", &p.MinEvictableIdleTimeMillis)
	b.optInt64("maxEvictableIdleTimeMillis", &p.MaxEvictableIdleTimeMillis)
	b.optBool("keepAlive", &p.KeepAlive)
	b.optBool("poolPreparedStatements", &p.PoolPreparedStatements)
	b.intVal("initialSize", &p.InitialSize)
	b.intVal("minIdle", &p.MinIdle)
	b.intVal("maxActive", &p.MaxActive)
	b.int64Val("maxWait", &p.MaxWait)
	b.optInt64("timeBetweenEvictionRunsMillis", &p.TimeBetweenEvictionRunsMillis)
	b.optInt("maxPoolPreparedStatementPerConnectionSize", &p.MaxPoolPreparedStatementPerConnectionSize)
	b.str("webStatFilterExclusions", &p.WebStatFilterExclusions)
	b.str("webLoginUsername", &p.WebLoginUsername)
	b.str("webLoginPassword", &p.WebLoginPassword)
	b.str("webAllow", &p.WebAllow)
	b.str("webDeny", &p.WebDeny)

	if raw, key, ok := b.lookup("connectionProperties"); ok {
		overrides, err := parseConnectionProperties(raw)
		if err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
		p.ConnectionProperties = MergeConnectionProperties(overrides)
	}

	if b.err != nil {
		return nil, b.err
	}
	return p, nil
}

// binder resolves relaxed keys under prefix and records the first
// conversion error.
type binder struct {
	v      *viper.Viper
	prefix string
	err    error
}

// lookup returns the raw value of name, trying the camelCase, kebab-case and
// snake_case spellings in that order.
func (b *binder) lookup(name string) (any, string, bool) {
	for _, candidate := range relaxedNames(name) {
		key := b.prefix + "." + candidate
		if b.v.IsSet(key) {
			return b.v.Get(key), key, true
		}
	}
	return nil, "", false
}

func (b *binder) convert(name string, fn func(raw any) error) {
	if b.err != nil {
		return
	}
	raw, key, ok := b.lookup(name)
	if !ok {
		return
	}
	if err := fn(raw); err != nil {
		b.err = fmt.Errorf("bind %s: %w", key, err)
	}
}

func (b *binder) str(name string, dst *string) {
	b.convert(name, func(raw any) error {
		s, err := cast.ToStringE(raw)
		if err == nil {
			*dst = s
		}
		return err
	})
}

func (b *binder) optStr(name string, dst **string) {
	b.convert(name, func(raw any) error {
		s, err := cast.ToStringE(raw)
		if err == nil {
			*dst = &s
		}
		return err
	})
}

func (b *binder) optBool(name string, dst **bool) {
	b.convert(name, func(raw any) error {
		v, err := cast.ToBoolE(raw)
		if err == nil {
			*dst = &v
		}
		return err
	})
}

func (b *binder) intVal(name string, dst *int) {
	b.convert(name, func(raw any) error {
		v, err := cast.ToIntE(raw)
		if err == nil {
			*dst = v
		}
		return err
	})
}

func (b *binder) optInt(name string, dst **int) {
	b.convert(name, func(raw any) error {
		v, err := cast.ToIntE(raw)
		if err == nil {
			*dst = &v
		}
		return err
	})
}

func (b *binder) int64Val(name string, dst *int64) {
	b.convert(name, func(raw any) error {
		v, err := cast.ToInt64E(raw)
		if err == nil {
			*dst = v
		}
		return err
	})
}

func (b *binder) optInt64(name string, dst **int64) {
	b.convert(name, func(raw any) error {
		v, err := cast.ToInt64E(raw)
		if err == nil {
			*dst = &v
		}
		return err
	})
}

// relaxedNames returns the camelCase name followed by its kebab-case and
// snake_case forms. Viper lowercases keys, so the camelCase form also covers
// the all-lowercase spelling.
func relaxedNames(name string) []string {
	var kebab strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				kebab.WriteByte('-')
			}
			kebab.WriteRune(unicode.ToLower(r))
			continue
		}
		kebab.WriteRune(r)
	}
	if kebab.String() == name {
		return []string{name}
	}
	return []string{name, kebab.String(), strings.ReplaceAll(kebab.String(), "-", "_")}
}

// parseConnectionProperties accepts either a map (possibly nested, as YAML
// splits dotted keys) or a "k=v;k=v" string.
func parseConnectionProperties(raw any) (map[string]string, error) {
	switch val := raw.(type) {
	case string:
		out := make(map[string]string)
		for _, pair := range strings.Split(val, ";") {
			pair = strings.TrimSpace(pair)
			if pair == "" {
				continue
			}
			k, v, ok := strings.Cut(pair, "=")
			if !ok {
				return nil, fmt.Errorf("malformed connection property %q", pair)
			}
			out[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
		return out, nil
	case map[string]any:
		out := make(map[string]string)
		if err := flatten(out, "", val); err != nil {
			return nil, err
		}
		return out, nil
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, v := range val {
			out[k] = v
		}
		return out, nil
	default:
		m, err := cast.ToStringMapE(raw)
		if err != nil {
			return nil, err
		}
		return parseConnectionProperties(m)
	}
}

func flatten(out map[string]string, prefix string, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		full := k
		if prefix != "" {
			full = prefix + "." + k
		}
		switch child := m[k].(type) {
		case map[string]any:
			if err := flatten(out, full, child); err != nil {
				return err
			}
		default:
			s, err := cast.ToStringE(child)
			if err != nil {
				return fmt.Errorf("connection property %q: %w", full, err)
			}
			out[full] = s
		}
	}
	return nil
}
