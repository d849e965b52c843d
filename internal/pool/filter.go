package pool

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/druidgo/druid-boot/internal/stat"
)

// Statement is a SQL text with its arguments as seen by filters.
type Statement struct {
	SQL  string
	Args []any
}

// Execute runs the rest of the chain. It returns the affected row count,
// or -1 when the statement does not report one.
type Execute func(ctx context.Context) (int64, error)

// Filter intercepts every statement run through a DataSource.
type Filter interface {
	Name() string
	Execute(ctx context.Context, stmt Statement, next Execute) (int64, error)
}

// filterFactories maps druid.filters aliases to filters.
var filterFactories = map[string]func(ds *DataSource) Filter{
	"stat":          func(ds *DataSource) Filter { return &statFilter{ds: ds} },
	"mergestat":     func(ds *DataSource) Filter { return &statFilter{ds: ds, merge: true} },
	"wall":          func(*DataSource) Filter { return wallFilter{} },
	"log":           newLogFilter("log"),
	"slf4j":         newLogFilter("slf4j"),
	"log4j":         newLogFilter("log4j"),
	"log4j2":        newLogFilter("log4j2"),
	"commonlogging": newLogFilter("commonlogging"),
}

// SetFilters adds the filters named by a comma separated alias list.
// Unknown aliases are logged and skipped; an alias already present is not
// added twice.
func (ds *DataSource) SetFilters(aliases string) {
	for _, alias := range strings.Split(aliases, ",") {
		alias = strings.TrimSpace(alias)
		if alias == "" {
			continue
		}
		factory, ok := filterFactories[strings.ToLower(alias)]
		if !ok {
			ds.logger.Warn("unknown filter alias skipped", "filter", alias)
			continue
		}
		ds.AddFilter(factory(ds))
	}
}

// AddFilter appends f to the chain unless a filter with the same name is
// already installed.
func (ds *DataSource) AddFilter(f Filter) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	for _, existing := range ds.filters {
		if existing.Name() == f.Name() {
			return
		}
	}
	ds.filters = append(ds.filters, f)
}

// ClearFilters removes every filter.
func (ds *DataSource) ClearFilters() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if !ds.s.clearFiltersEnable {
		return ErrClearFiltersDisabled
	}
	ds.filters = nil
	return nil
}

// FilterNames lists the installed filters in chain order.
func (ds *DataSource) FilterNames() []string {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	names := make([]string, len(ds.filters))
	for i, f := range ds.filters {
		names[i] = f.Name()
	}
	return names
}

func (ds *DataSource) invoke(ctx context.Context, stmt Statement, final Execute) error {
	ds.mu.RLock()
	filters := ds.filters
	ds.mu.RUnlock()

	call := final
	for i := len(filters) - 1; i >= 0; i-- {
		f, next := filters[i], call
		call = func(ctx context.Context) (int64, error) {
			return f.Execute(ctx, stmt, next)
		}
	}
	_, err := call(ctx)
	return err
}

// statFilter records SQL statistics. With merge, or when the
// druid.stat.mergeSql connect property is set, literals are folded so
// statements differing only in values share an entry.
type statFilter struct {
	ds    *DataSource
	merge bool
}

func (f *statFilter) Name() string {
	if f.merge {
		return "mergeStat"
	}
	return "stat"
}

func (f *statFilter) Execute(ctx context.Context, stmt Statement, next Execute) (int64, error) {
	store := f.ds.sqlStat
	if store == nil {
		return next(ctx)
	}
	s := f.ds.snapshot()

	sql := stmt.SQL
	if f.merge || s.mergeSQL {
		sql = stat.MergeSQL(sql)
	}
	x := store.Begin(sql)
	rows, err := next(ctx)
	elapsed, slow := x.End(rows, err, millis(s.slowSQLMillis))
	if slow && s.logSlowSQL {
		f.ds.logger.Warn("slow sql", "sql", stmt.SQL, "elapsed_ms", elapsed.Milliseconds(), "args", len(stmt.Args))
	}
	return rows, err
}

// wallFilter rejects stacked statements and statements carrying comments.
type wallFilter struct{}

func (wallFilter) Name() string { return "wall" }

func (wallFilter) Execute(ctx context.Context, stmt Statement, next Execute) (int64, error) {
	res := stat.Scan(stmt.SQL)
	if res.Statements > 1 {
		return -1, fmt.Errorf("%w: multi-statement not allowed: %s", ErrWallViolation, stmt.SQL)
	}
	if res.HasComment {
		return -1, fmt.Errorf("%w: comment not allowed: %s", ErrWallViolation, stmt.SQL)
	}
	return next(ctx)
}

// logFilter writes every statement to the data source logger at debug
// level. The logging framework aliases all map onto it.
type logFilter struct {
	name   string
	logger *slog.Logger
}

func newLogFilter(name string) func(ds *DataSource) Filter {
	return func(ds *DataSource) Filter {
		return &logFilter{name: name, logger: ds.logger.With("filter", name)}
	}
}

func (f *logFilter) Name() string { return f.name }

func (f *logFilter) Execute(ctx context.Context, stmt Statement, next Execute) (int64, error) {
	start := time.Now()
	rows, err := next(ctx)
	attrs := []any{
		"sql", stmt.SQL,
		"args", len(stmt.Args),
		"elapsed_ms", time.Since(start).Milliseconds(),
	}
	if rows >= 0 {
		attrs = append(attrs, "rows", rows)
	}
	if err != nil {
		f.logger.DebugContext(ctx, "statement failed", append(attrs, "error", err)...)
	} else {
		f.logger.DebugContext(ctx, "statement executed", attrs...)
	}
	return rows, err
}
