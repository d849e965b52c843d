package pool

import (
	"context"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
)

// keepAliveWarmTimeout bounds how long the evictor waits to top the pool up
// to minIdle.
const keepAliveWarmTimeout = 10 * time.Second

// loop runs a task on a ticker until stopped.
type loop struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
	final  bool
	task   func(ctx context.Context)
}

// startLoop begins calling task every interval. Non-blocking. With final
// set, stop runs the task one more time after the loop exits.
func startLoop(interval time.Duration, task func(ctx context.Context), final bool) *loop {
	ctx, cancel := context.WithCancel(context.Background())
	l := &loop{cancel: cancel, final: final, task: task}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				task(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
	return l
}

// stop ends the loop and waits for a running task to finish.
func (l *loop) stop() {
	if l == nil {
		return
	}
	l.cancel()
	l.wg.Wait()
	if l.final {
		l.task(context.Background())
	}
}

// evict checks idle connections. When testWhileIdle or keepAlive is set,
// every connection idle longer than timeBetweenEvictionRunsMillis is
// validated and the failing ones discarded. With keepAlive the pool is then
// topped up to minIdle open connections.
func (ds *DataSource) evict(ctx context.Context) {
	s := ds.snapshot()
	if !s.testWhileIdle && !s.keepAlive {
		return
	}

	idle := ds.db.Stats().Idle
	conns := make([]*sqlx.Conn, 0, idle)
	for i := 0; i < idle; i++ {
		grabCtx, cancel := context.WithTimeout(ctx, time.Second)
		c, err := ds.db.Connx(grabCtx)
		cancel()
		if err != nil {
			break
		}
		conns = append(conns, c)
	}

	threshold := millis(s.timeBetweenEvictionRunsMillis)
	for _, c := range conns {
		if d, known := ds.idleFor(c); known && d < threshold {
			_ = c.Close()
			continue
		}
		ds.counters.keepAliveCheck.Add(1)
		if err := ds.validate(ctx, c, s); err != nil {
			ds.logger.Warn("discard invalid idle connection", "error", err)
			ds.discard(c)
			continue
		}
		ds.markUsed(c)
		_ = c.Close()
	}

	if !s.keepAlive {
		return
	}
	if missing := min(s.minIdle, s.maxActive) - ds.db.Stats().OpenConnections; missing > 0 {
		timeout := keepAliveWarmTimeout
		if d := millis(s.maxWait); d > 0 {
			timeout = min(timeout, d)
		}
		warmCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := ds.warm(warmCtx, missing); err != nil {
			ds.logger.Warn("keep alive: create connection failed", "error", err)
		}
	}
}

// logStats writes the pool and SQL statistics to the logger and resets the
// SQL statistics.
func (ds *DataSource) logStats(context.Context) {
	st := ds.Stats()
	ds.logger.Info("data source stat",
		"active", st.ActiveCount,
		"pooling", st.PoolingCount,
		"open", st.OpenConnections,
		"connect", st.ConnectCount,
		"close", st.CloseCount,
		"connect_error", st.ConnectErrorCount,
		"wait", st.WaitCount,
		"wait_ms", st.WaitDurationMillis,
		"discard", st.DiscardCount,
	)
	if ds.sqlStat == nil {
		return
	}
	for _, sq := range ds.sqlStat.Snapshot() {
		ds.logger.Info("sql stat",
			"sql", sq.SQL,
			"execute", sq.ExecuteCount,
			"error", sq.ErrorCount,
			"slow", sq.SlowCount,
			"total_ms", sq.TotalTimeMillis,
			"max_ms", sq.MaxTimespan,
			"rows", sq.EffectedRowCount,
		)
	}
	ds.sqlStat.Reset()
}
