// Package pool is the druid data source: a database/sql connection pool with
// druid's sizing, validation, filter and statistics settings layered on top.
//
// A DataSource is built with a Builder, configured through its setters or
// ConfigFromProperties, and initialized lazily by the first Conn call.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/semaphore"

	"github.com/druidgo/druid-boot/internal/connector"
	"github.com/druidgo/druid-boot/internal/stat"
)

// TypeName identifies this pool implementation in spring.datasource.type.
const TypeName = "github.com/druidgo/druid-boot/internal/pool.DataSource"

// Registered reports whether name is a pool type this build can construct.
func Registered(name string) bool { return name == TypeName }

// Pool defaults, used for anything neither the builder nor the properties set.
const (
	DefaultMaxActive                     = 8
	DefaultMaxWait                       = int64(-1)
	DefaultTimeBetweenEvictionRunsMillis = int64(60000)
	DefaultMinEvictableIdleTimeMillis    = int64(1800000)
	DefaultMaxEvictableIdleTimeMillis    = int64(25200000)
	DefaultMaxPoolPreparedStatements     = 10
	DefaultSlowSQLMillis                 = int64(3000)
)

// settings is the mutable configuration of a DataSource. It is copied under
// the lock whenever an operation needs a consistent view.
type settings struct {
	name            string
	url             string
	username        string
	password        string
	driverClassName string

	initialSize              int
	minIdle                  int
	maxActive                int
	maxWait                  int64
	maxWaitThreadCount       int
	notFullTimeoutRetryCount int
	failFast                 bool

	testWhileIdle          bool
	testOnBorrow           bool
	testOnReturn           bool
	validationQuery        string
	validationQueryTimeout int // seconds

	timeBetweenEvictionRunsMillis int64
	minEvictableIdleTimeMillis    int64
	maxEvictableIdleTimeMillis    int64
	phyTimeoutMillis              int64
	keepAlive                     bool

	poolPreparedStatements bool
	maxPSPerConnection     int

	useGlobalDataSourceStat   bool
	timeBetweenLogStatsMillis int64
	statSQLMaxSize            int
	clearFiltersEnable        bool
	resetStatEnable           bool

	connectProperties map[string]string
	mergeSQL          bool
	slowSQLMillis     int64
	logSlowSQL        bool
}

func defaultSettings() settings {
	return settings{
		name:                          "dataSource",
		maxActive:                     DefaultMaxActive,
		maxWait:                       DefaultMaxWait,
		maxWaitThreadCount:            -1,
		testWhileIdle:                 true,
		timeBetweenEvictionRunsMillis: DefaultTimeBetweenEvictionRunsMillis,
		minEvictableIdleTimeMillis:    DefaultMinEvictableIdleTimeMillis,
		maxEvictableIdleTimeMillis:    DefaultMaxEvictableIdleTimeMillis,
		maxPSPerConnection:            DefaultMaxPoolPreparedStatements,
		statSQLMaxSize:                stat.DefaultSQLMaxSize,
		clearFiltersEnable:            true,
		resetStatEnable:               true,
		slowSQLMillis:                 DefaultSlowSQLMillis,
	}
}

// DataSource is a pooled druid data source.
type DataSource struct {
	id        string
	conn      connector.Connector
	logger    *slog.Logger
	createdAt time.Time

	mu      sync.RWMutex
	s       settings
	filters []Filter

	initMu   sync.Mutex
	inited   atomic.Bool
	closed   atomic.Bool
	db       *sqlx.DB
	sqlStat  *stat.SQLStore
	stmts    *lru.Cache[string, *sqlx.Stmt]
	lastUsed *lru.Cache[any, time.Time] // driver conn -> time it was returned
	waiters  *semaphore.Weighted
	evictor  *loop
	statLog  *loop

	counters counters
}

type counters struct {
	connect        atomic.Int64
	close          atomic.Int64
	connectError   atomic.Int64
	discard        atomic.Int64
	waitThread     atomic.Int64
	notEmptyWait   atomic.Int64
	psCacheAccess  atomic.Int64
	psCacheHit     atomic.Int64
	keepAliveCheck atomic.Int64
}

func (c *counters) reset() {
	c.connect.Store(0)
	c.close.Store(0)
	c.connectError.Store(0)
	c.discard.Store(0)
	c.notEmptyWait.Store(0)
	c.psCacheAccess.Store(0)
	c.psCacheHit.Store(0)
	c.keepAliveCheck.Store(0)
}

// Builder assembles a DataSource from the base connection settings.
type Builder struct {
	registry *connector.Registry
	logger   *slog.Logger
	typeName string
	s        settings
}

// NewBuilder returns a builder resolving drivers through registry.
func NewBuilder(registry *connector.Registry) *Builder {
	return &Builder{registry: registry, s: defaultSettings()}
}

func (b *Builder) URL(url string) *Builder              { b.s.url = url; return b }
func (b *Builder) Username(username string) *Builder    { b.s.username = username; return b }
func (b *Builder) Password(password string) *Builder    { b.s.password = password; return b }
func (b *Builder) DriverClassName(name string) *Builder { b.s.driverClassName = name; return b }
func (b *Builder) Type(typeName string) *Builder        { b.typeName = typeName; return b }
func (b *Builder) Logger(logger *slog.Logger) *Builder  { b.logger = logger; return b }
func (b *Builder) Name(name string) *Builder {
	if name != "" {
		b.s.name = name
	}
	return b
}

// Build creates the DataSource without connecting. An empty type means
// TypeName.
func (b *Builder) Build() (*DataSource, error) {
	if b.typeName != "" && !Registered(b.typeName) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, b.typeName)
	}
	if b.registry == nil {
		return nil, fmt.Errorf("build data source %s: no driver registry", b.s.name)
	}
	c, err := b.registry.Resolve(connector.ConnectionConfig{
		Driver: b.s.driverClassName,
		URL:    b.s.url,
	})
	if err != nil {
		return nil, fmt.Errorf("build data source %s: %w", b.s.name, err)
	}
	return newDataSource(c, b.s, b.logger), nil
}

func newDataSource(c connector.Connector, s settings, logger *slog.Logger) *DataSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &DataSource{
		id:        uuid.NewString(),
		conn:      c,
		logger:    logger.With("datasource", s.name),
		createdAt: time.Now(),
		s:         s,
	}
}

// ID is the unique identity of this data source instance.
func (ds *DataSource) ID() string { return ds.id }

// DBType is the database product of the resolved driver.
func (ds *DataSource) DBType() string { return ds.conn.DBType() }

// DriverName is the database/sql driver the pool opens.
func (ds *DataSource) DriverName() string { return ds.conn.DriverName() }

func (ds *DataSource) snapshot() settings {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.s
}

func (ds *DataSource) update(fn func(s *settings)) {
	ds.mu.Lock()
	fn(&ds.s)
	ds.mu.Unlock()
}

// Init opens the pool, warms initialSize connections and starts the
// background loops. It runs once; later calls return nil.
func (ds *DataSource) Init(ctx context.Context) error {
	if ds.inited.Load() {
		return nil
	}
	ds.initMu.Lock()
	defer ds.initMu.Unlock()
	if ds.closed.Load() {
		return ErrClosed
	}
	if ds.inited.Load() {
		return nil
	}

	s := ds.snapshot()
	if err := validateSizing(s); err != nil {
		return err
	}

	dsn, err := ds.conn.BuildDSN(connector.ConnectionConfig{
		Driver:   s.driverClassName,
		URL:      s.url,
		Username: s.username,
		Password: s.password,
	})
	if err != nil {
		return fmt.Errorf("init %s: %w", s.name, err)
	}
	db, err := ds.conn.Open(dsn)
	if err != nil {
		return fmt.Errorf("init %s: %w", s.name, err)
	}
	applyPoolSettings(db, s)

	ds.db = db
	if s.useGlobalDataSourceStat {
		ds.sqlStat = stat.Global()
	} else {
		ds.sqlStat = stat.NewSQLStore(s.statSQLMaxSize)
	}
	ds.lastUsed, _ = lru.New[any, time.Time](max(4*s.maxActive, 64))
	if s.poolPreparedStatements && s.maxPSPerConnection > 0 {
		ds.stmts, _ = lru.NewWithEvict[string, *sqlx.Stmt](s.maxPSPerConnection, func(_ string, st *sqlx.Stmt) {
			_ = st.Close()
		})
	}
	if s.maxWaitThreadCount > 0 {
		ds.waiters = semaphore.NewWeighted(int64(s.maxWaitThreadCount))
	}

	if err := ds.warm(ctx, s.initialSize); err != nil {
		_ = db.Close()
		ds.db = nil
		return fmt.Errorf("init %s: create initial connections: %w", s.name, err)
	}

	if d := millis(s.timeBetweenEvictionRunsMillis); d > 0 {
		ds.evictor = startLoop(d, ds.evict, false)
	}
	if d := millis(s.timeBetweenLogStatsMillis); d > 0 {
		ds.statLog = startLoop(d, ds.logStats, true)
	}

	ds.inited.Store(true)
	ds.logger.Info("data source inited",
		"id", ds.id,
		"db_type", ds.conn.DBType(),
		"url", redactURL(s.url),
		"initial_size", s.initialSize,
		"max_active", s.maxActive,
		"filters", ds.FilterNames(),
	)
	return nil
}

func validateSizing(s settings) error {
	switch {
	case s.maxActive <= 0:
		return fmt.Errorf("%w: maxActive must be positive, got %d", ErrInvalidConfig, s.maxActive)
	case s.minIdle > s.maxActive:
		return fmt.Errorf("%w: minIdle %d greater than maxActive %d", ErrInvalidConfig, s.minIdle, s.maxActive)
	case s.initialSize > s.maxActive:
		return fmt.Errorf("%w: initialSize %d greater than maxActive %d", ErrInvalidConfig, s.initialSize, s.maxActive)
	case s.maxEvictableIdleTimeMillis > 0 && s.maxEvictableIdleTimeMillis < s.minEvictableIdleTimeMillis:
		return fmt.Errorf("%w: maxEvictableIdleTimeMillis %d less than minEvictableIdleTimeMillis %d",
			ErrInvalidConfig, s.maxEvictableIdleTimeMillis, s.minEvictableIdleTimeMillis)
	}
	return nil
}

func applyPoolSettings(db *sqlx.DB, s settings) {
	db.SetMaxOpenConns(s.maxActive)
	db.SetMaxIdleConns(maxIdle(s))
	db.SetConnMaxIdleTime(millis(s.minEvictableIdleTimeMillis))
	lifetime := s.maxEvictableIdleTimeMillis
	if s.phyTimeoutMillis > 0 && (lifetime <= 0 || s.phyTimeoutMillis < lifetime) {
		lifetime = s.phyTimeoutMillis
	}
	db.SetConnMaxLifetime(millis(lifetime))
}

// maxIdle is the number of idle connections database/sql keeps. Zero falls
// back to the database/sql default of two.
func maxIdle(s settings) int {
	if n := max(s.minIdle, s.initialSize); n > 0 {
		return n
	}
	return min(2, s.maxActive)
}

// warm opens n connections at once and returns them to the idle set.
func (ds *DataSource) warm(ctx context.Context, n int) error {
	conns := make([]*sqlx.Conn, 0, n)
	defer func() {
		for _, c := range conns {
			ds.markUsed(c)
			_ = c.Close()
		}
	}()
	for i := 0; i < n; i++ {
		c, err := ds.db.Connx(ctx)
		if err != nil {
			return err
		}
		conns = append(conns, c)
	}
	return nil
}

// Close stops the background loops, closes cached statements and the pool.
func (ds *DataSource) Close() error {
	if !ds.closed.CompareAndSwap(false, true) {
		return nil
	}
	ds.initMu.Lock()
	defer ds.initMu.Unlock()

	ds.evictor.stop()
	ds.statLog.stop()
	if ds.stmts != nil {
		ds.stmts.Purge()
	}
	if ds.db == nil {
		return nil
	}
	ds.logger.Info("data source closed", "id", ds.id)
	return ds.db.Close()
}

// PingContext borrows a connection and pings the database.
func (ds *DataSource) PingContext(ctx context.Context) error {
	c, err := ds.Conn(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.conn.PingContext(ctx)
}

func millis(ms int64) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

func redactURL(raw string) string {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return raw
	}
	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return raw
	}
	user, _, hasPass := strings.Cut(rest[:at], ":")
	if !hasPass {
		return raw
	}
	return scheme + "://" + user + ":xxxxx@" + rest[at+1:]
}
