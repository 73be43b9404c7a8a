package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/nijaru/autoclip/config"
	"github.com/nijaru/autoclip/errors"
)

type DBConfig struct {
	MaxRetries         int
	RetryDelay         time.Duration
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

func DefaultDBConfig() DBConfig {
	return DBConfig{
		MaxRetries:         3,
		RetryDelay:         time.Second,
		MaxConnections:     10,
		MaxIdleConnections: 5,
		ConnMaxLifetime:    time.Hour,
	}
}

// DBConfigFrom overlays the pool settings from application config
func DBConfigFrom(cfg config.DatabaseConfig) DBConfig {
	dbCfg := DefaultDBConfig()
	if cfg.MaxConnections > 0 {
		dbCfg.MaxConnections = cfg.MaxConnections
	}
	if cfg.MaxIdleConnections > 0 {
		dbCfg.MaxIdleConnections = cfg.MaxIdleConnections
	}
	if cfg.ConnMaxLifetime > 0 {
		dbCfg.ConnMaxLifetime = cfg.ConnMaxLifetime
	}
	return dbCfg
}

type DB struct {
	db         *sql.DB
	statements *PreparedStatements
	config     DBConfig
}

// Open initializes the database file, applies the schema and prepares
// every statement.
func Open(ctx context.Context, dbPath string, cfg DBConfig) (*DB, error) {
	const op = "sqlite.Open"

	sqlDB, err := InitDB(dbPath)
	if err != nil {
		return nil, err
	}
	ConfigureDB(sqlDB, cfg)

	stmts := &PreparedStatements{}
	if err := stmts.Prepare(ctx, sqlDB); err != nil {
		stmts.Close()
		sqlDB.Close()
		return nil, errors.Internal(op, err, "failed to prepare statements")
	}

	return &DB{db: sqlDB, statements: stmts, config: cfg}, nil
}

func (d *DB) Close() error {
	stmtErr := d.statements.Close()
	if err := d.db.Close(); err != nil {
		return err
	}
	return stmtErr
}

// Configure database with the provided settings
func ConfigureDB(db *sql.DB, config DBConfig) {
	db.SetMaxOpenConns(config.MaxConnections)
	db.SetMaxIdleConns(config.MaxIdleConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
}

func InitDB(dbPath string) (*sql.DB, error) {
	const op = "sqlite.InitDB"

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, errors.Internal(op, err, "failed to create database directory")
	}

	// Per-connection settings go in the DSN so every pooled connection
	// gets them.
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Internal(op, err, "failed to open database")
	}

	if err := configurePragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := execSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func configurePragmas(db *sql.DB) error {
	const op = "sqlite.configurePragmas"

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA cache_size = -2000", // Use up to 2MB of memory for cache
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return errors.Internal(op, err, fmt.Sprintf("failed to set pragma: %s", pragma))
		}
	}

	return nil
}

func execSchema(db *sql.DB) error {
	const op = "sqlite.execSchema"

	statements := strings.Split(schema, ";")

	tx, err := db.Begin()
	if err != nil {
		return errors.Internal(op, err, "failed to begin transaction")
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}

		if _, err := tx.Exec(stmt); err != nil {
			return errors.Internal(
				op,
				err,
				fmt.Sprintf("failed to execute schema statement: %s", stmt),
			)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Internal(op, err, "failed to commit schema transaction")
	}

	return nil
}

// withRetry retries fn while SQLite reports lock contention. Any other
// error is returned immediately.
func withRetry(ctx context.Context, config DBConfig, fn func() error) error {
	var lastErr error
	for i := 0; i < config.MaxRetries; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil || !isLockError(lastErr) {
			return lastErr
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(config.RetryDelay * time.Duration(i+1)):
		}
	}
	return lastErr
}

func isLockError(err error) bool {
	return strings.Contains(err.Error(), "database is locked") ||
		strings.Contains(err.Error(), "busy")
}

type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// TxFn is a function that will be called with a transaction
type TxFn func(tx Executor) error

// WithTransaction wraps a transaction with proper rollback/commit logic
func WithTransaction(ctx context.Context, db *sql.DB, fn TxFn) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // re-throw panic after rollback
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}
