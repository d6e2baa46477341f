// Package database manages the vidarr database connection. SQLite is the
// default deployment target; PostgreSQL and MySQL are supported for shared
// installs. All access goes through GORM.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vibeacademy/vidarr/internal/config"
)

// DB wraps a GORM connection together with its configuration.
type DB struct {
	*gorm.DB
	cfg    config.DatabaseConfig
	logger *slog.Logger
}

// Options tunes connection behavior. Pass nil to New for defaults.
type Options struct {
	// PrepareStmt caches prepared statements. On by default; turn off for
	// SQLite tests that open transactions manually.
	PrepareStmt bool
}

// New opens a database connection for the configured driver and sizes the
// connection pool. The pool for SQLite is kept small: WAL mode allows
// concurrent readers but a single writer, and the stage workers plus the
// API produce only a handful of concurrent queries.
func New(cfg config.DatabaseConfig, log *slog.Logger, opts *Options) (*DB, error) {
	if opts == nil {
		opts = &Options{PrepareStmt: true}
	}
	if log == nil {
		log = slog.Default()
	}

	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 &gormSlogAdapter{logger: log, level: gormLogLevel(cfg.LogLevel)},
		SkipDefaultTransaction: true,
		PrepareStmt:            opts.PrepareStmt,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying sql.DB: %w", err)
	}

	// A small pool suits SQLite under WAL: readers run concurrently but
	// writes serialize, so extra connections only add lock contention.
	// Explicit configuration wins (tests pin :memory: to one connection).
	maxOpen := cfg.MaxOpenConns
	maxIdle := cfg.MaxIdleConns
	if cfg.Driver == "sqlite" {
		if maxOpen == 0 {
			maxOpen = 6
		}
		if maxIdle == 0 {
			maxIdle = 3
		}
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	log.Info("database connected",
		slog.String("driver", cfg.Driver),
		slog.Int("max_open_conns", maxOpen),
		slog.Int("max_idle_conns", maxIdle),
	)

	return &DB{DB: db, cfg: cfg, logger: log}, nil
}

// dialectorFor maps the configured driver to a GORM dialector. The SQLite
// DSN is extended with PRAGMAs; the pure Go driver applies _pragma DSN
// parameters to every pooled connection, not just the first.
func dialectorFor(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "sqlite":
		dsn := cfg.DSN
		if strings.Contains(dsn, "?") {
			dsn += "&"
		} else {
			dsn += "?"
		}
		dsn += "_pragma=busy_timeout(30000)" +
			"&_pragma=journal_mode(WAL)" +
			"&_pragma=synchronous(NORMAL)" +
			"&_pragma=foreign_keys(ON)" +
			"&_pragma=cache_size(-64000)" +
			"&_pragma=temp_store(MEMORY)"
		return sqlite.Open(dsn), nil
	case "postgres":
		return postgres.Open(cfg.DSN), nil
	case "mysql":
		return mysql.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

// slowQueryThreshold marks queries worth a warning. Stage progress updates
// arrive in bursts, so the bar is deliberately high.
const slowQueryThreshold = time.Second

// maxLoggedSQL caps SQL text in log records.
const maxLoggedSQL = 200

// gormSlogAdapter routes GORM's logger interface onto slog.
type gormSlogAdapter struct {
	logger *slog.Logger
	level  logger.LogLevel
}

func (a *gormSlogAdapter) LogMode(level logger.LogLevel) logger.Interface {
	return &gormSlogAdapter{logger: a.logger, level: level}
}

func (a *gormSlogAdapter) Info(ctx context.Context, msg string, args ...interface{}) {
	if a.level >= logger.Info {
		a.logger.InfoContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (a *gormSlogAdapter) Warn(ctx context.Context, msg string, args ...interface{}) {
	if a.level >= logger.Warn {
		a.logger.WarnContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (a *gormSlogAdapter) Error(ctx context.Context, msg string, args ...interface{}) {
	if a.level >= logger.Error {
		a.logger.ErrorContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (a *gormSlogAdapter) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if a.level <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)

	// fc() interpolates the full SQL string, which is expensive for batch
	// writes. Decide whether the record would be emitted first.
	switch {
	case err != nil && a.level >= logger.Error:
		sql, rows := fc()
		a.logger.ErrorContext(ctx, "database error",
			slog.String("sql", clipSQL(sql)),
			slog.Int64("rows", rows),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()),
		)
	case elapsed > slowQueryThreshold && a.level >= logger.Warn:
		sql, rows := fc()
		a.logger.WarnContext(ctx, "slow query",
			slog.String("sql", clipSQL(sql)),
			slog.Int64("rows", rows),
			slog.Duration("elapsed", elapsed),
		)
	case a.level >= logger.Info && a.logger.Enabled(ctx, slog.LevelDebug):
		sql, rows := fc()
		a.logger.DebugContext(ctx, "database query",
			slog.String("sql", clipSQL(sql)),
			slog.Int64("rows", rows),
			slog.Duration("elapsed", elapsed),
		)
	}
}

func clipSQL(sql string) string {
	if len(sql) <= maxLoggedSQL {
		return sql
	}
	return sql[:maxLoggedSQL] + "... (truncated)"
}

// Close closes the underlying connection pool.
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("getting underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Ping verifies the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("getting underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// WithContext returns a DB bound to ctx.
func (db *DB) WithContext(ctx context.Context) *DB {
	return &DB{DB: db.DB.WithContext(ctx), cfg: db.cfg, logger: db.logger}
}

// Transaction runs fn inside a transaction, rolling back on error.
func (db *DB) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return db.DB.WithContext(ctx).Transaction(fn)
}

// Driver returns the configured driver name.
func (db *DB) Driver() string {
	return db.cfg.Driver
}

// Stats reports connection pool statistics, used by the health endpoint
// when detailed diagnostics are requested.
func (db *DB) Stats() (map[string]interface{}, error) {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying sql.DB: %w", err)
	}

	stats := sqlDB.Stats()
	return map[string]interface{}{
		"max_open_connections": stats.MaxOpenConnections,
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"wait_count":           stats.WaitCount,
		"wait_duration":        stats.WaitDuration.String(),
	}, nil
}
