// Package transaction hands each unit of work at most one pooled connection
// with one open transaction, and guarantees the connection goes back to the
// pool exactly once.
package transaction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	// Drivers selectable through config.DatabaseDriver.
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/drblury/nether/internal/runtime/config"
	errspkg "github.com/drblury/nether/internal/runtime/errors"
	loggingpkg "github.com/drblury/nether/internal/runtime/logging"
)

// Manager owns the connection pool and creates scopes.
type Manager struct {
	conf   *config.Config
	logger loggingpkg.ServiceLogger

	mu sync.RWMutex
	db *sqlx.DB
}

// NewManager creates a Manager. The pool is opened by Initialize.
func NewManager(conf *config.Config, logger loggingpkg.ServiceLogger) (*Manager, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	return &Manager{conf: conf, logger: logger.With(loggingpkg.LogFields{"database_driver": conf.DatabaseDriver})}, nil
}

// Initialize opens and pings the pool. Calling it again only logs a warning.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db != nil {
		m.logger.Warn("Pool is already initialized", nil)
		return nil
	}

	db, err := sqlx.Open(m.conf.DatabaseDriver, m.conf.DatabaseURL)
	if err != nil {
		m.logger.Error("Failed to initialize database pool", err, nil)
		return fmt.Errorf("open database pool: %w", err)
	}
	db.SetMaxOpenConns(m.conf.DatabaseMaxConns)
	db.SetMaxIdleConns(m.conf.DatabaseMinConns)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		m.logger.Error("Failed to initialize database pool", err, nil)
		return fmt.Errorf("ping database: %w", err)
	}
	m.db = db
	m.logger.Info("Database pool initialized", loggingpkg.LogFields{
		"max_conns": m.conf.DatabaseMaxConns,
		"min_conns": m.conf.DatabaseMinConns,
	})
	return nil
}

// Use adopts an already open pool instead of calling Initialize.
func (m *Manager) Use(db *sqlx.DB) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.db = db
}

// DB returns the pool, nil before Initialize.
func (m *Manager) DB() *sqlx.DB {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.db
}

// Close closes the pool. Closing an uninitialized Manager is a no-op.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db = nil
	return err
}

// Scope creates a new scope on the pool.
func (m *Manager) Scope() (*Scope, error) {
	db := m.DB()
	if db == nil {
		return nil, errspkg.ErrPoolNotInitialized
	}
	return &Scope{db: db, logger: m.logger}, nil
}

// Run executes fn inside a transaction that is committed when fn returns nil
// and rolled back otherwise. A panic in fn rolls back and is re-raised.
func (m *Manager) Run(ctx context.Context, fn func(ctx context.Context, tx *sqlx.Tx) error) (err error) {
	scope, err := m.Scope()
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			_ = scope.Rollback()
			panic(r)
		}
	}()

	tx, err := scope.Tx(ctx)
	if err != nil {
		return err
	}
	fnErr := fn(ctx, tx)
	if finishErr := scope.Finish(fnErr); finishErr != nil {
		return errors.Join(fnErr, finishErr)
	}
	return fnErr
}

// Scope lazily acquires one connection and begins one transaction on it.
// Commit and Rollback end the scope and release the connection.
type Scope struct {
	db     *sqlx.DB
	logger loggingpkg.ServiceLogger

	mu       sync.Mutex
	conn     *sqlx.Conn
	tx       *sqlx.Tx
	started  bool
	finished bool
}

// Tx returns the scope's transaction, acquiring a connection and beginning
// the transaction on first use. If either step fails the connection is
// released at once and the scope stays usable.
func (s *Scope) Tx(ctx context.Context) (*sqlx.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return nil, errspkg.ErrScopeFinished
	}
	if s.tx != nil {
		return s.tx, nil
	}

	conn, err := s.db.Connx(ctx)
	if err != nil {
		s.logger.Error("Failed to acquire connection", err, nil)
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			s.logger.Error("Failed to release connection", closeErr, nil)
		}
		s.logger.Error("Failed to start transaction", err, nil)
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	s.conn = conn
	s.tx = tx
	s.started = true
	return tx, nil
}

// Started reports whether a transaction has been opened.
func (s *Scope) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Finished reports whether the scope has been committed or rolled back.
func (s *Scope) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// Commit commits and releases the connection. It does nothing when the
// scope is finished or no transaction was opened.
func (s *Scope) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished || !s.started || s.tx == nil {
		return nil
	}
	defer s.cleanup()

	if err := s.tx.Commit(); err != nil {
		s.logger.Error("Failed to commit transaction", err, nil)
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback rolls back and releases the connection. It does nothing when the
// scope is finished or no transaction was opened.
func (s *Scope) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished || !s.started || s.tx == nil {
		return nil
	}
	defer s.cleanup()

	if err := s.tx.Rollback(); err != nil {
		s.logger.Error("Failed to roll back transaction", err, nil)
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// Finish commits when cause is nil and rolls back otherwise. It returns the
// commit or rollback error, never cause.
func (s *Scope) Finish(cause error) error {
	if cause == nil {
		return s.Commit()
	}
	return s.Rollback()
}

// cleanup is the only path that returns the connection to the pool. The
// caller holds s.mu.
func (s *Scope) cleanup() {
	if s.started && s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Error("Failed to release connection", err, nil)
		}
		s.conn = nil
		s.tx = nil
	}
	s.finished = true
}
