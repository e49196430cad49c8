package circuitbreaker

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// DatabaseWrapper wraps a sqlx.DB with circuit breaker protection.
// All storage-facing components go through this wrapper so a failing
// database degrades to fast errors instead of piling up slow calls.
type DatabaseWrapper struct {
	db      *sqlx.DB
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// NewDatabaseWrapper creates a circuit breaker protected database wrapper
func NewDatabaseWrapper(db *sqlx.DB, logger *zap.Logger) *DatabaseWrapper {
	return &DatabaseWrapper{
		db:      db,
		breaker: NewCircuitBreaker("database", DefaultConfig(), logger),
		logger:  logger,
	}
}

// GetContext runs a single-row query through the breaker.
// sql.ErrNoRows is a valid result, not a database fault, so it does not
// count against the breaker.
func (w *DatabaseWrapper) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	var qErr error
	err := w.breaker.Execute(ctx, func() error {
		qErr = w.db.GetContext(ctx, dest, query, args...)
		if errors.Is(qErr, sql.ErrNoRows) {
			return nil
		}
		return qErr
	})
	if err != nil {
		return err
	}
	return qErr
}

// SelectContext runs a multi-row query through the breaker
func (w *DatabaseWrapper) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return w.breaker.Execute(ctx, func() error {
		return w.db.SelectContext(ctx, dest, query, args...)
	})
}

// ExecContext runs a statement through the breaker
func (w *DatabaseWrapper) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	var res sql.Result
	err := w.breaker.Execute(ctx, func() error {
		var execErr error
		res, execErr = w.db.ExecContext(ctx, query, args...)
		return execErr
	})
	return res, err
}

// PingContext pings the database through the breaker
func (w *DatabaseWrapper) PingContext(ctx context.Context) error {
	return w.breaker.Execute(ctx, func() error {
		return w.db.PingContext(ctx)
	})
}

// IsCircuitBreakerOpen reports whether the breaker is currently open
func (w *DatabaseWrapper) IsCircuitBreakerOpen() bool {
	return w.breaker.State() == StateOpen
}

// DB returns the underlying sqlx handle for code paths that manage
// their own failure handling
func (w *DatabaseWrapper) DB() *sqlx.DB {
	return w.db
}

// Close closes the underlying database connection
func (w *DatabaseWrapper) Close() error {
	return w.db.Close()
}
