// Package sqlstore implements the repository interfaces on database/sql.
//
// Two drivers are supported behind the same code:
//   - "sqlite": modernc.org/sqlite, a pure Go SQLite (no CGo). The default;
//     a single file, nothing to install.
//   - "pgx": PostgreSQL through github.com/jackc/pgx/v5/stdlib.
//
// Queries are written once with "?" placeholders and passed through
// sqlx's Rebind, which rewrites them to "$1, $2, ..." for Postgres.
// sqlx also scans rows straight into the `db:"..."` tagged model structs.
//
// The schema lives in embedded goose migrations, one directory per dialect,
// and is applied by New.
package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

//go:embed migrations
var migrations embed.FS

// unicodeLower is registered with SQLite as a replacement for its LOWER,
// which folds ASCII letters only.
const unicodeLower = "unicode_lower"

func init() {
	// sqlx knows "sqlite3" but not modernc's "sqlite" driver name.
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)

	sqlite.MustRegisterDeterministicScalarFunction(unicodeLower, 1, lowerValue)
}

// lowerValue lowercases a TEXT or BLOB argument with Go's Unicode rules, the
// same rules Search applies to the query. NULL stays NULL.
func lowerValue(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}

// DB wraps a sqlx connection pool. It owns the pool's lifecycle; the
// repositories are thin views over it (Users, Contacts).
type DB struct {
	conn *sqlx.DB
}

// UserStore implements repository.UserRepository.
type UserStore struct {
	db *DB
}

// ContactStore implements repository.ContactRepository.
type ContactStore struct {
	db *DB
}

// Users returns the credential store backed by this database.
func (db *DB) Users() *UserStore {
	return &UserStore{db: db}
}

// Contacts returns the contact store backed by this database.
func (db *DB) Contacts() *ContactStore {
	return &ContactStore{db: db}
}

// New opens the database, verifies the connection and runs migrations.
//
// For SQLite, dsn is a file path (or ":memory:"). An in-memory database
// lives only as long as its connection, so the pool is held at one
// connection for it. Pragmas are added to the DSN rather than executed once,
// so that every pooled connection gets them:
//   - foreign_keys(1): enforce contacts.owner_id → users.id
//   - journal_mode(WAL): readers don't block the writer
//   - busy_timeout(5000): wait for a competing writer instead of failing
//   - _txlock=immediate: transactions take the write lock up front, so the
//     read-then-write in Update can't deadlock on lock upgrade
func New(ctx context.Context, driver, dsn string) (*DB, error) {
	memory := driver == DriverSQLite && isMemoryDSN(dsn)
	if driver == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}

	conn, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: opening %s database: %w", driver, err)
	}
	if memory {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlstore: pinging database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlstore: running migrations: %w", err)
	}

	return db, nil
}

// NewWithConn wraps an existing *sql.DB without running migrations.
// Tests use it with go-sqlmock.
func NewWithConn(conn *sql.DB, driver string) *DB {
	return &DB{conn: sqlx.NewDb(conn, driver)}
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable. Used by the health check.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) isPostgres() bool {
	return db.conn.DriverName() == DriverPostgres
}

// lower names the SQL function that lowercases a column the way
// strings.ToLower does. Postgres' LOWER already folds all of Unicode.
func (db *DB) lower() string {
	if db.isPostgres() {
		return "LOWER"
	}
	return unicodeLower
}

// migrate applies the embedded goose migrations for the current dialect.
func (db *DB) migrate(ctx context.Context) error {
	dialect, dir := goose.DialectSQLite3, "migrations/sqlite"
	if db.isPostgres() {
		dialect, dir = goose.DialectPostgres, "migrations/postgres"
	}

	fsys, err := fs.Sub(migrations, dir)
	if err != nil {
		return fmt.Errorf("opening %s: %w", dir, err)
	}

	provider, err := goose.NewProvider(dialect, db.conn.DB, fsys)
	if err != nil {
		return fmt.Errorf("creating goose provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

func isMemoryDSN(dsn string) bool {
	path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	return path == ":memory:" || strings.Contains(dsn, "mode=memory")
}

func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep +
		"_pragma=foreign_keys(1)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_txlock=immediate"
}

// isUniqueViolation recognizes a UNIQUE constraint failure from either driver.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}

	return false
}

// inTx runs fn in a transaction, committing on success and rolling back on
// error.
func (db *DB) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
