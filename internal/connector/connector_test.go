package connector

import "testing"

func TestInferDriver(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"postgres://u@h/db", "postgres"},
		{"jdbc:postgresql://h:5432/db", "postgres"},
		{"mysql://h/db", "mysql"},
		{"root:pw@tcp(localhost:3306)/app", "mysql"},
		{"sqlserver://sa@h?database=x", "mssql"},
		{"oracle://u:p@h:1521/svc", "oracle"},
		{"u:p@acct.snowflakecomputing.com/db", "snowflake"},
		{"file::memory:?cache=shared", "sqlite"},
		{":memory:", "sqlite"},
		{"/var/lib/app.sqlite3", "sqlite"},
		{"host=localhost dbname=x", ""},
	}
	for _, tt := range tests {
		if got := InferDriver(tt.url); got != tt.want {
			t.Errorf("InferDriver(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestWithURLCredentials(t *testing.T) {
	tests := []struct {
		name, dsn, user, pass, want string
	}{
		{"adds user and password", "postgres://h:5432/db", "app", "s3cret", "postgres://app:s3cret@h:5432/db"},
		{"keeps existing userinfo", "postgres://own@h/db", "app", "x", "postgres://own@h/db"},
		{"no username configured", "postgres://h/db", "", "x", "postgres://h/db"},
		{"user without password", "sqlserver://h", "sa", "", "sqlserver://sa@h"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := WithURLCredentials(tt.dsn, tt.user, tt.pass)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitizeDSNEncodesPassword(t *testing.T) {
	got := SanitizeDSN("postgres", "postgres://u:p@ss#w@h/db")
	want := "postgres://u:p@ss%23w@h/db"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSanitizeMySQLDSN(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"root:pw@tcp(localhost:3306)/app", "root:pw@tcp(localhost:3306)/app"},
		{"root:pw@(localhost:3306)/app", "root:pw@tcp(localhost:3306)/app"},
		{"root:pw@localhost:3306/app", "root:pw@tcp(localhost:3306)/app"},
	}
	for _, tt := range tests {
		if got := SanitizeDSN("mysql", tt.in); got != tt.want {
			t.Errorf("SanitizeDSN(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
