package circuitbreaker

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap/zaptest"
)

func newMockWrapper(t *testing.T) (*DatabaseWrapper, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewDatabaseWrapper(sqlx.NewDb(db, "sqlmock"), zaptest.NewLogger(t)), mock
}

func TestDatabaseWrapper_NormalOperations(t *testing.T) {
	wrapper, mock := newMockWrapper(t)
	ctx := context.Background()

	mock.ExpectPing()
	if err := wrapper.PingContext(ctx); err != nil {
		t.Errorf("PingContext failed: %v", err)
	}

	mock.ExpectQuery("SELECT (.+) FROM skills").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("nav").AddRow("forms"))
	var names []string
	if err := wrapper.SelectContext(ctx, &names, "SELECT name FROM skills"); err != nil {
		t.Errorf("SelectContext failed: %v", err)
	}
	if len(names) != 2 {
		t.Errorf("Expected 2 rows, got %d", len(names))
	}

	mock.ExpectExec("INSERT INTO skills").
		WithArgs("nav").
		WillReturnResult(sqlmock.NewResult(1, 1))
	result, err := wrapper.ExecContext(ctx, "INSERT INTO skills (name) VALUES ($1)", "nav")
	if err != nil {
		t.Errorf("ExecContext failed: %v", err)
	}
	if affected, _ := result.RowsAffected(); affected != 1 {
		t.Errorf("Expected 1 affected row, got %d", affected)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestDatabaseWrapper_NoRowsDoesNotTripBreaker(t *testing.T) {
	wrapper, mock := newMockWrapper(t)
	ctx := context.Background()

	// More misses than the failure threshold; the breaker must stay closed
	for i := 0; i < 10; i++ {
		mock.ExpectQuery("SELECT (.+) FROM skills").WillReturnError(sql.ErrNoRows)

		var name string
		err := wrapper.GetContext(ctx, &name, "SELECT name FROM skills WHERE id = $1", i)
		if !errors.Is(err, sql.ErrNoRows) {
			t.Fatalf("expected sql.ErrNoRows, got %v", err)
		}
	}

	if wrapper.IsCircuitBreakerOpen() {
		t.Error("breaker must not open on row misses")
	}
}

func TestDatabaseWrapper_OpensOnRepeatedFailures(t *testing.T) {
	wrapper, mock := newMockWrapper(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		mock.ExpectExec("INSERT INTO skills").WillReturnError(errors.New("connection refused"))
		_, _ = wrapper.ExecContext(ctx, "INSERT INTO skills (name) VALUES ($1)", "nav")
	}

	if !wrapper.IsCircuitBreakerOpen() {
		t.Fatal("expected breaker to open after repeated failures")
	}

	// Fast fail without touching the database
	_, err := wrapper.ExecContext(ctx, "INSERT INTO skills (name) VALUES ($1)", "nav")
	if !errors.Is(err, ErrCircuitBreakerOpen) {
		t.Errorf("expected ErrCircuitBreakerOpen, got %v", err)
	}
}
