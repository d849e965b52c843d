package pool

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
)

// connectRetryInterval is the pause between connect attempts while a
// borrow is still within maxWait.
const connectRetryInterval = 100 * time.Millisecond

// PooledConn is a connection borrowed from a DataSource. Close returns it
// to the pool.
type PooledConn struct {
	ds       *DataSource
	conn     *sqlx.Conn
	borrowed time.Time
	closed   atomic.Bool
}

// Conn borrows a connection, initializing the data source on first use.
func (ds *DataSource) Conn(ctx context.Context) (*PooledConn, error) {
	if ds.closed.Load() {
		return nil, ErrClosed
	}
	if err := ds.Init(ctx); err != nil {
		return nil, err
	}

	s := ds.snapshot()
	for retries := 0; ; retries++ {
		c, err := ds.borrow(ctx, s)
		if err == nil {
			ds.counters.connect.Add(1)
			return c, nil
		}
		if errors.Is(err, ErrGetConnectionTimeout) && retries < s.notFullTimeoutRetryCount && !ds.full() && ctx.Err() == nil {
			ds.logger.Debug("get connection timeout, retrying", "retry", retries+1)
			continue
		}
		ds.counters.connectError.Add(1)
		return nil, err
	}
}

func (ds *DataSource) borrow(ctx context.Context, s settings) (*PooledConn, error) {
	waitCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.maxWait > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, millis(s.maxWait))
	}
	defer cancel()

	if ds.full() {
		if ds.waiters != nil {
			if !ds.waiters.TryAcquire(1) {
				return nil, fmt.Errorf("%w: %d", ErrMaxWaitThreadCount, s.maxWaitThreadCount)
			}
			defer ds.waiters.Release(1)
		}
		ds.counters.notEmptyWait.Add(1)
		ds.counters.waitThread.Add(1)
		defer ds.counters.waitThread.Add(-1)
	}

	var lastErr error
	for {
		conn, err := ds.db.Connx(waitCtx)
		if err == nil {
			c, ok := ds.checkBorrowed(waitCtx, conn, s)
			if ok {
				return c, nil
			}
			continue
		}
		if ctx.Err() != nil {
			return nil, err
		}
		if waitCtx.Err() != nil {
			if lastErr != nil {
				return nil, fmt.Errorf("%w: maxWait %dms, active %d: %w", ErrGetConnectionTimeout, s.maxWait, ds.db.Stats().InUse, lastErr)
			}
			return nil, fmt.Errorf("%w: maxWait %dms, active %d", ErrGetConnectionTimeout, s.maxWait, ds.db.Stats().InUse)
		}
		if s.failFast || s.maxWait <= 0 {
			return nil, fmt.Errorf("get connection: %w", err)
		}
		lastErr = err
		ds.logger.Warn("create connection failed", "error", err)
		select {
		case <-time.After(connectRetryInterval):
		case <-waitCtx.Done():
		}
	}
}

// full reports whether every connection is in use.
func (ds *DataSource) full() bool {
	st := ds.db.Stats()
	return st.MaxOpenConnections > 0 && st.InUse >= st.MaxOpenConnections
}

// checkBorrowed validates a freshly borrowed connection when testOnBorrow is
// set, or when testWhileIdle is set and the connection idled longer than
// timeBetweenEvictionRunsMillis. A connection failing validation is
// discarded and ok is false.
func (ds *DataSource) checkBorrowed(ctx context.Context, conn *sqlx.Conn, s settings) (*PooledConn, bool) {
	need := s.testOnBorrow
	if !need && s.testWhileIdle {
		if idle, known := ds.idleFor(conn); known && idle > millis(s.timeBetweenEvictionRunsMillis) {
			need = true
		}
	}
	if need {
		if err := ds.validate(ctx, conn, s); err != nil {
			ds.logger.Warn("discard invalid connection", "error", err)
			ds.discard(conn)
			return nil, false
		}
	}
	return &PooledConn{ds: ds, conn: conn, borrowed: time.Now()}, true
}

// validate runs the validation query. Without a configured one the
// connector's statement is used, and a ping when that is empty too.
func (ds *DataSource) validate(ctx context.Context, conn *sqlx.Conn, s settings) error {
	if s.validationQueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.validationQueryTimeout)*time.Second)
		defer cancel()
	}
	query := s.validationQuery
	if query == "" {
		query = ds.conn.ValidationQuery()
	}
	if query == "" {
		return conn.PingContext(ctx)
	}
	_, err := conn.ExecContext(ctx, query)
	return err
}

// discard closes the physical connection instead of returning it to the
// idle set.
func (ds *DataSource) discard(conn *sqlx.Conn) {
	ds.counters.discard.Add(1)
	_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	_ = conn.Close()
}

func (ds *DataSource) idleFor(conn *sqlx.Conn) (idle time.Duration, known bool) {
	_ = conn.Raw(func(dc any) error {
		var last time.Time
		if last, known = ds.lastUsed.Get(dc); known {
			idle = time.Since(last)
		}
		return nil
	})
	return idle, known
}

func (ds *DataSource) markUsed(conn *sqlx.Conn) {
	_ = conn.Raw(func(dc any) error {
		ds.lastUsed.Add(dc, time.Now())
		return nil
	})
}

// Close returns the connection to the pool, validating it first when
// testOnReturn is set. Closing twice is a no-op.
func (c *PooledConn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	ds := c.ds
	ds.counters.close.Add(1)
	s := ds.snapshot()
	if s.testOnReturn {
		if err := ds.validate(context.Background(), c.conn, s); err != nil {
			ds.logger.Warn("discard invalid connection on return", "error", err)
			ds.discard(c.conn)
			return nil
		}
	}
	ds.markUsed(c.conn)
	return c.conn.Close()
}

// Conn exposes the underlying sqlx connection. Statements run on it bypass
// the filter chain.
func (c *PooledConn) Conn() *sqlx.Conn { return c.conn }

// PingContext pings the database over this connection.
func (c *PooledConn) PingContext(ctx context.Context) error { return c.conn.PingContext(ctx) }

// ExecContext executes a statement through the filter chain.
func (c *PooledConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := c.ds.invoke(ctx, Statement{SQL: query, Args: args}, func(ctx context.Context) (int64, error) {
		r, err := c.conn.ExecContext(ctx, query, args...)
		if err != nil {
			return -1, err
		}
		res = r
		n, err := r.RowsAffected()
		if err != nil {
			return -1, nil
		}
		return n, nil
	})
	return res, err
}

// QueryxContext runs a query through the filter chain. The timing covers
// executing the query, not reading the rows.
func (c *PooledConn) QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	var rows *sqlx.Rows
	err := c.ds.invoke(ctx, Statement{SQL: query, Args: args}, func(ctx context.Context) (int64, error) {
		r, err := c.conn.QueryxContext(ctx, query, args...)
		rows = r
		return -1, err
	})
	return rows, err
}

// GetContext scans a single row into dest through the filter chain.
func (c *PooledConn) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	return c.ds.invoke(ctx, Statement{SQL: query, Args: args}, func(ctx context.Context) (int64, error) {
		return -1, c.conn.GetContext(ctx, dest, query, args...)
	})
}

// SelectContext scans every row into dest through the filter chain.
func (c *PooledConn) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	return c.ds.invoke(ctx, Statement{SQL: query, Args: args}, func(ctx context.Context) (int64, error) {
		return -1, c.conn.SelectContext(ctx, dest, query, args...)
	})
}

// ExecContext borrows a connection, executes the statement and returns the
// connection.
func (ds *DataSource) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	c, err := ds.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return c.ExecContext(ctx, query, args...)
}

// GetContext borrows a connection and scans a single row into dest.
func (ds *DataSource) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	c, err := ds.Conn(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.GetContext(ctx, dest, query, args...)
}

// SelectContext borrows a connection and scans every row into dest.
func (ds *DataSource) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	c, err := ds.Conn(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.SelectContext(ctx, dest, query, args...)
}
