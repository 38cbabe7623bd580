package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"canditrack/internal/platform/config"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "modernc.org/sqlite"             // SQLite driver
)

type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// DB is a *sql.DB that knows which SQL dialect it speaks.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Open connects to the database selected by cfg.DBDriver and applies migrations.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		db  *DB
		err error
	)
	switch cfg.DBDriver {
	case config.DriverPostgres, "":
		db, err = OpenPostgres(ctx, cfg.DBConnStr)
	case config.DriverSQLite:
		db, err = OpenSQLite(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	if err != nil {
		return nil, err
	}

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("database ready", "driver", db.Dialect)
	return db, nil
}

func OpenPostgres(ctx context.Context, dsn string) (*DB, error) {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(25)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &DB{DB: sqlDB, Dialect: Postgres}, nil
}

// OpenSQLite opens a file-backed SQLite database. Pragmas go through the DSN so
// every pooled connection gets them; a single open connection keeps writers serialized
// inside the process while busy_timeout covers other processes.
func OpenSQLite(ctx context.Context, path string) (*DB, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &DB{DB: sqlDB, Dialect: SQLite}, nil
}

func (db *DB) Close() error {
	if db == nil || db.DB == nil {
		return nil
	}
	return db.DB.Close()
}

// Rebind rewrites "?" placeholders into the dialect's native form.
func (db *DB) Rebind(query string) string {
	if db.Dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// Time converts t into the value stored for timestamp columns.
func (db *DB) Time(t time.Time) any {
	t = t.UTC()
	if db.Dialect == SQLite {
		return t.Format(TimeLayout)
	}
	return t
}

// NullTime is Time for nullable columns.
func (db *DB) NullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return db.Time(*t)
}
