// Package store persists reference data, statements and transactions in a
// relational database. SQLite and PostgreSQL are supported through
// database/sql; queries are written with ? placeholders and rebound per vendor.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Vendor selects the SQL dialect.
type Vendor string

const (
	VendorSQLite   Vendor = "sqlite"
	VendorPostgres Vendor = "postgresql"
)

// ParseVendor accepts the DB_VENDOR values.
func ParseVendor(s string) (Vendor, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sqlite", "sqlite3":
		return VendorSQLite, nil
	case "postgresql", "postgres", "pg":
		return VendorPostgres, nil
	}
	return "", fmt.Errorf("unknown database vendor %q", s)
}

var (
	ErrNotFound         = errors.New("registro não encontrado")
	ErrConflict         = errors.New("registro duplicado")
	ErrHasChildren      = errors.New("categoria possui subcategorias")
	ErrInUse            = errors.New("registro referenciado por transações")
	ErrInvalidReference = errors.New("referência inválida")
)

const (
	pgUniqueViolation = "23505"
	timeLayout        = time.RFC3339Nano
)

// Store wraps a *sql.DB for one vendor.
type Store struct {
	db     *sql.DB
	vendor Vendor
	now    func() time.Time
}

// Open connects to the database at dsn.
func Open(ctx context.Context, vendor Vendor, dsn string) (*Store, error) {
	driver := "pgx"
	if vendor == VendorSQLite {
		driver = "sqlite"
		if err := ensureSQLiteDir(dsn); err != nil {
			return nil, fmt.Errorf("store.Open: %w", err)
		}
		dsn = withForeignKeys(dsn)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store.Open: open %s: %w", vendor, err)
	}
	if vendor == VendorSQLite {
		// One writer at a time; also keeps :memory: databases on one connection.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store.Open: ping %s: %w", vendor, err)
	}
	return New(db, vendor), nil
}

// New wraps an already opened database.
func New(db *sql.DB, vendor Vendor) *Store {
	return &Store{db: db, vendor: vendor, now: time.Now}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Vendor returns the SQL dialect in use.
func (s *Store) Vendor() Vendor {
	return s.vendor
}

// Rebind converts ? placeholders to $N for PostgreSQL.
func (s *Store) Rebind(query string) string {
	if s.vendor != VendorPostgres {
		return query
	}
	return rebindDollar(query)
}

// QueryContext runs a rebound query.
func (s *Store) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.Rebind(query), args...)
}

// QueryRowContext runs a rebound single-row query.
func (s *Store) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.Rebind(query), args...)
}

// ExecContext runs a rebound statement.
func (s *Store) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.Rebind(query), args...)
}

// insertReturningID runs an INSERT ... RETURNING id statement.
func (s *Store) insertReturningID(ctx context.Context, query string, args ...any) (int64, error) {
	var id int64
	if err := s.QueryRowContext(ctx, query+" RETURNING id", args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// syncSequence moves a serial sequence past rows inserted with explicit ids.
func (s *Store) syncSequence(ctx context.Context, table string) error {
	if s.vendor != VendorPostgres {
		return nil
	}
	q := fmt.Sprintf(`SELECT setval(pg_get_serial_sequence('%s', 'id'), COALESCE((SELECT MAX(id) FROM %s), 0) + 1, false)`, table, table)
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("sync %s sequence: %w", table, err)
	}
	return nil
}

// IsUniqueViolation reports whether err is a uniqueness constraint failure
// on either vendor.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)"
}

func ensureSQLiteDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || strings.Contains(path, ":memory:") {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create database directory %s: %w", dir, err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// inPlaceholders returns "?, ?, ?" for n values.
func inPlaceholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
