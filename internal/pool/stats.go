package pool

import (
	"time"

	"github.com/druidgo/druid-boot/internal/stat"
)

// PoolStat is a snapshot of a data source's settings and counters. The
// JSON form is what the stat view console serves.
type PoolStat struct {
	Identity    string    `json:"Identity"`
	Name        string    `json:"Name"`
	DbType      string    `json:"DbType"`
	DriverName  string    `json:"DriverClassName"`
	URL         string    `json:"URL"`
	UserName    string    `json:"UserName"`
	FilterNames []string  `json:"FilterClassNames"`
	CreateTime  time.Time `json:"CreateTime"`
	Inited      bool      `json:"Inited"`

	InitialSize        int   `json:"InitialSize"`
	MinIdle            int   `json:"MinIdle"`
	MaxActive          int   `json:"MaxActive"`
	MaxWait            int64 `json:"MaxWait"`
	MaxWaitThreadCount int   `json:"MaxWaitThreadCount"`
	TestOnBorrow       bool  `json:"TestOnBorrow"`
	TestWhileIdle      bool  `json:"TestWhileIdle"`
	TestOnReturn       bool  `json:"TestOnReturn"`
	KeepAlive          bool  `json:"KeepAlive"`

	MinEvictableIdleTimeMillis int64 `json:"MinEvictableIdleTimeMillis"`
	MaxEvictableIdleTimeMillis int64 `json:"MaxEvictableIdleTimeMillis"`

	// ActiveCount is the number of borrowed connections.
	ActiveCount int `json:"ActiveCount"`
	// PoolingCount is the number of idle connections.
	PoolingCount int `json:"PoolingCount"`
	// OpenConnections is ActiveCount plus PoolingCount.
	OpenConnections int `json:"OpenConnections"`

	ConnectCount       int64 `json:"LogicConnectCount"`
	CloseCount         int64 `json:"LogicCloseCount"`
	ConnectErrorCount  int64 `json:"LogicConnectErrorCount"`
	DiscardCount       int64 `json:"DiscardCount"`
	KeepAliveCheck     int64 `json:"KeepAliveCheckCount"`
	WaitThreadCount    int64 `json:"WaitThreadCount"`
	NotEmptyWaitCount  int64 `json:"NotEmptyWaitCount"`
	WaitCount          int64 `json:"WaitCount"`
	WaitDurationMillis int64 `json:"WaitDurationMillis"`
	MaxIdleClosed      int64 `json:"MaxIdleClosed"`
	MaxIdleTimeClosed  int64 `json:"MaxIdleTimeClosed"`
	MaxLifetimeClosed  int64 `json:"MaxLifetimeClosed"`

	PSCacheAccessCount int64 `json:"PSCacheAccessCount"`
	PSCacheHitCount    int64 `json:"PSCacheHitCount"`
	PSCacheSize        int   `json:"PSCacheSize"`
}

// Stats returns a snapshot of the pool statistics. Connection counts are
// zero before Init.
func (ds *DataSource) Stats() PoolStat {
	s := ds.snapshot()
	st := PoolStat{
		Identity:    ds.id,
		Name:        s.name,
		DbType:      ds.conn.DBType(),
		DriverName:  ds.conn.DriverName(),
		URL:         redactURL(s.url),
		UserName:    s.username,
		FilterNames: ds.FilterNames(),
		CreateTime:  ds.createdAt,
		Inited:      ds.inited.Load(),

		InitialSize:        s.initialSize,
		MinIdle:            s.minIdle,
		MaxActive:          s.maxActive,
		MaxWait:            s.maxWait,
		MaxWaitThreadCount: s.maxWaitThreadCount,
		TestOnBorrow:       s.testOnBorrow,
		TestWhileIdle:      s.testWhileIdle,
		TestOnReturn:       s.testOnReturn,
		KeepAlive:          s.keepAlive,

		MinEvictableIdleTimeMillis: s.minEvictableIdleTimeMillis,
		MaxEvictableIdleTimeMillis: s.maxEvictableIdleTimeMillis,

		ConnectCount:       ds.counters.connect.Load(),
		CloseCount:         ds.counters.close.Load(),
		ConnectErrorCount:  ds.counters.connectError.Load(),
		DiscardCount:       ds.counters.discard.Load(),
		KeepAliveCheck:     ds.counters.keepAliveCheck.Load(),
		WaitThreadCount:    ds.counters.waitThread.Load(),
		NotEmptyWaitCount:  ds.counters.notEmptyWait.Load(),
		PSCacheAccessCount: ds.counters.psCacheAccess.Load(),
		PSCacheHitCount:    ds.counters.psCacheHit.Load(),
	}
	if !st.Inited {
		return st
	}

	dbs := ds.db.Stats()
	st.ActiveCount = dbs.InUse
	st.PoolingCount = dbs.Idle
	st.OpenConnections = dbs.OpenConnections
	st.WaitCount = dbs.WaitCount
	st.WaitDurationMillis = dbs.WaitDuration.Milliseconds()
	st.MaxIdleClosed = dbs.MaxIdleClosed
	st.MaxIdleTimeClosed = dbs.MaxIdleTimeClosed
	st.MaxLifetimeClosed = dbs.MaxLifetimeClosed
	if ds.stmts != nil {
		st.PSCacheSize = ds.stmts.Len()
	}
	return st
}

// SQLStats returns the SQL statistics, nil before Init.
func (ds *DataSource) SQLStats() []stat.SQLStat {
	if !ds.inited.Load() {
		return nil
	}
	return ds.sqlStat.Snapshot()
}

// ResetStat clears the SQL statistics and the pool counters.
func (ds *DataSource) ResetStat() error {
	if !ds.snapshot().resetStatEnable {
		return ErrResetDisabled
	}
	ds.counters.reset()
	if ds.inited.Load() {
		ds.sqlStat.Reset()
	}
	return nil
}
