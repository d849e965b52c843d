package pool

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// Stmt is a prepared statement. Executions go through the filter chain.
// A statement taken from the statement cache is owned by the pool and
// Close leaves it open.
type Stmt struct {
	*sqlx.Stmt
	ds     *DataSource
	query  string
	cached bool
}

// PrepareContext prepares query on the pool. When poolPreparedStatements is
// enabled, statements are cached per SQL text and the least recently used
// one is closed once maxPoolPreparedStatementPerConnectionSize is exceeded.
func (ds *DataSource) PrepareContext(ctx context.Context, query string) (*Stmt, error) {
	if ds.closed.Load() {
		return nil, ErrClosed
	}
	if err := ds.Init(ctx); err != nil {
		return nil, err
	}

	if ds.stmts != nil {
		ds.counters.psCacheAccess.Add(1)
		if st, ok := ds.stmts.Get(query); ok {
			ds.counters.psCacheHit.Add(1)
			return &Stmt{Stmt: st, ds: ds, query: query, cached: true}, nil
		}
	}

	st, err := ds.db.PreparexContext(ctx, query)
	if err != nil {
		return nil, err
	}
	if ds.stmts == nil {
		return &Stmt{Stmt: st, ds: ds, query: query}, nil
	}
	if prev, ok, _ := ds.stmts.PeekOrAdd(query, st); ok {
		// lost a race with another caller preparing the same text
		_ = st.Close()
		st = prev
	}
	return &Stmt{Stmt: st, ds: ds, query: query, cached: true}, nil
}

// ExecContext executes the prepared statement through the filter chain.
func (s *Stmt) ExecContext(ctx context.Context, args ...any) (sql.Result, error) {
	var res sql.Result
	err := s.ds.invoke(ctx, Statement{SQL: s.query, Args: args}, func(ctx context.Context) (int64, error) {
		r, err := s.Stmt.ExecContext(ctx, args...)
		if err != nil {
			return -1, err
		}
		res = r
		if n, err := r.RowsAffected(); err == nil {
			return n, nil
		}
		return -1, nil
	})
	return res, err
}

// GetContext scans a single row into dest through the filter chain.
func (s *Stmt) GetContext(ctx context.Context, dest any, args ...any) error {
	return s.ds.invoke(ctx, Statement{SQL: s.query, Args: args}, func(ctx context.Context) (int64, error) {
		return -1, s.Stmt.GetContext(ctx, dest, args...)
	})
}

// SelectContext scans every row into dest through the filter chain.
func (s *Stmt) SelectContext(ctx context.Context, dest any, args ...any) error {
	return s.ds.invoke(ctx, Statement{SQL: s.query, Args: args}, func(ctx context.Context) (int64, error) {
		return -1, s.Stmt.SelectContext(ctx, dest, args...)
	})
}

// Close releases an uncached statement.
func (s *Stmt) Close() error {
	if s.cached {
		return nil
	}
	return s.Stmt.Close()
}
