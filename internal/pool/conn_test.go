package pool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 2s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConnBorrowAndReturn(t *testing.T) {
	ds, _ := newTestDataSource(t)
	ctx := context.Background()

	c, err := ds.Conn(ctx)
	if err != nil {
		t.Fatalf("Conn: %v", err)
	}
	if got := ds.Stats().ActiveCount; got != 1 {
		t.Errorf("ActiveCount = %d, want 1", got)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	st := ds.Stats()
	if st.ActiveCount != 0 {
		t.Errorf("ActiveCount after Close = %d, want 0", st.ActiveCount)
	}
	if st.ConnectCount != 1 || st.CloseCount != 1 {
		t.Errorf("connect=%d close=%d, want 1/1", st.ConnectCount, st.CloseCount)
	}
}

func TestConnMaxWaitTimeout(t *testing.T) {
	ds, _ := newTestDataSource(t)
	ds.SetMaxActive(1)
	ds.SetMaxWait(50)
	ctx := context.Background()

	held, err := ds.Conn(ctx)
	if err != nil {
		t.Fatalf("Conn: %v", err)
	}
	defer held.Close()

	start := time.Now()
	_, err = ds.Conn(ctx)
	if !errors.Is(err, ErrGetConnectionTimeout) {
		t.Fatalf("Conn() = %v, want ErrGetConnectionTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("returned after %v, expected to wait for maxWait", elapsed)
	}
	if got := ds.Stats().ConnectErrorCount; got != 1 {
		t.Errorf("ConnectErrorCount = %d, want 1", got)
	}
}

func TestConnMaxWaitThreadCount(t *testing.T) {
	ds, _ := newTestDataSource(t)
	ds.SetMaxActive(1)
	ds.SetMaxWait(2000)
	ds.SetMaxWaitThreadCount(1)
	ctx := context.Background()

	held, err := ds.Conn(ctx)
	if err != nil {
		t.Fatalf("Conn: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		c, err := ds.Conn(ctx)
		if err == nil {
			c.Close()
		}
		done <- err
	}()
	waitFor(t, func() bool { return ds.Stats().WaitThreadCount == 1 })

	if _, err := ds.Conn(ctx); !errors.Is(err, ErrMaxWaitThreadCount) {
		t.Errorf("Conn() = %v, want ErrMaxWaitThreadCount", err)
	}

	held.Close()
	if err := <-done; err != nil {
		t.Errorf("waiting caller: %v", err)
	}
}

func TestConnTestOnBorrowDiscardsInvalid(t *testing.T) {
	ds, mock := newTestDataSource(t)
	ds.SetInitialSize(2)
	ds.SetMaxActive(4)
	ds.SetTestOnBorrow(true)
	ds.SetValidationQuery("SELECT 1")
	ctx := context.Background()

	if err := ds.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	mock.ExpectExec("SELECT 1").WillReturnError(errors.New("connection reset"))
	mock.ExpectExec("SELECT 1").WillReturnResult(sqlmock.NewResult(0, 0))

	c, err := ds.Conn(ctx)
	if err != nil {
		t.Fatalf("Conn: %v", err)
	}
	defer c.Close()

	if got := ds.Stats().DiscardCount; got != 1 {
		t.Errorf("DiscardCount = %d, want 1", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestConnTestOnReturn(t *testing.T) {
	ds, mock := newTestDataSource(t)
	ds.SetTestOnReturn(true)
	ds.SetValidationQuery("SELECT 1")
	ctx := context.Background()

	c, err := ds.Conn(ctx)
	if err != nil {
		t.Fatalf("Conn: %v", err)
	}
	mock.ExpectExec("SELECT 1").WillReturnResult(sqlmock.NewResult(0, 0))
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestDataSourceExecContext(t *testing.T) {
	ds, mock := newTestDataSource(t)
	mock.ExpectExec("UPDATE t SET a = 1").WillReturnResult(sqlmock.NewResult(0, 3))

	res, err := ds.ExecContext(context.Background(), "UPDATE t SET a = 1")
	if err != nil {
		t.Fatalf("ExecContext: %v", err)
	}
	if n, _ := res.RowsAffected(); n != 3 {
		t.Errorf("RowsAffected = %d, want 3", n)
	}
	if got := ds.Stats().ActiveCount; got != 0 {
		t.Errorf("connection not returned, ActiveCount = %d", got)
	}
}

func TestDataSourceSelectContext(t *testing.T) {
	ds, mock := newTestDataSource(t)
	mock.ExpectQuery("SELECT id, name FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "ada").AddRow(2, "bob"))

	var users []struct {
		ID   int    `db:"id"`
		Name string `db:"name"`
	}
	if err := ds.SelectContext(context.Background(), &users, "SELECT id, name FROM users"); err != nil {
		t.Fatalf("SelectContext: %v", err)
	}
	if len(users) != 2 || users[1].Name != "bob" {
		t.Errorf("users = %+v", users)
	}
}

func TestKeepAliveWarmsMinIdle(t *testing.T) {
	ds, _ := newTestDataSource(t)
	ds.SetTestWhileIdle(false)
	ds.SetKeepAlive(true)
	ds.SetMinIdle(2)
	ctx := context.Background()

	if err := ds.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	ds.evict(ctx)

	if got := ds.Stats().OpenConnections; got != 2 {
		t.Errorf("OpenConnections = %d, want 2", got)
	}
}

func TestValidateFallsBackToConnectorQuery(t *testing.T) {
	ds, mock := newTestDataSource(t)
	ds.SetTestOnReturn(true)
	ds.SetValidationQuery("")
	ctx := context.Background()

	c, err := ds.Conn(ctx)
	if err != nil {
		t.Fatalf("Conn: %v", err)
	}
	mock.ExpectExec("SELECT 1").WillReturnResult(sqlmock.NewResult(0, 0))
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("connector validation query not used: %v", err)
	}
}

func TestKeepAliveWarmsOnlyMissing(t *testing.T) {
	ds, _ := newTestDataSource(t)
	ds.SetTestWhileIdle(false)
	ds.SetKeepAlive(true)
	ds.SetMaxActive(2)
	ds.SetMinIdle(2)
	ctx := context.Background()

	held, err := ds.Conn(ctx)
	if err != nil {
		t.Fatalf("Conn: %v", err)
	}
	defer held.Close()

	done := make(chan struct{})
	go func() {
		ds.evict(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("evict blocked while a connection was borrowed")
	}

	if got := ds.Stats().OpenConnections; got != 2 {
		t.Errorf("OpenConnections = %d, want 2", got)
	}
}
