package store

import (
	"context"
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

//go:embed migrations
var migrationFS embed.FS

// Migration is one versioned SQL file.
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration is a row of schema_migrations.
type AppliedMigration struct {
	Version   int
	Name      string
	Checksum  string
	AppliedAt string
	AppliedBy string
}

var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version     INTEGER PRIMARY KEY,
    name        TEXT NOT NULL,
    checksum    TEXT NOT NULL,
    applied_at  TEXT NOT NULL,
    applied_by  TEXT NOT NULL
)`

func migrationDir(v Vendor) string {
	if v == VendorPostgres {
		return "migrations/postgres"
	}
	return "migrations/sqlite"
}

// Migrations returns the embedded migrations for the vendor, sorted by version.
func Migrations(v Vendor) ([]Migration, error) {
	dir := migrationDir(v)
	entries, err := fs.ReadDir(migrationFS, dir)
	if err != nil {
		return nil, fmt.Errorf("Migrations: read %s: %w", dir, err)
	}

	var out []Migration
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := migrationPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		version, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		content, err := fs.ReadFile(migrationFS, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("Migrations: read %s: %w", e.Name(), err)
		}
		out = append(out, Migration{
			Version:  version,
			Name:     m[2],
			Filename: e.Name(),
			SQL:      string(content),
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Migrate applies pending migrations in version order. A previously applied
// migration whose checksum changed is an error. It returns the number of
// migrations applied.
func (s *Store) Migrate(ctx context.Context, appliedBy string, log zerolog.Logger) (int, error) {
	if _, err := s.db.ExecContext(ctx, createMigrationsTable); err != nil {
		return 0, fmt.Errorf("Migrate: ensure schema_migrations: %w", err)
	}

	migrations, err := Migrations(s.vendor)
	if err != nil {
		return 0, err
	}
	applied, err := s.AppliedMigrations(ctx)
	if err != nil {
		return 0, err
	}
	byVersion := make(map[int]AppliedMigration, len(applied))
	for _, am := range applied {
		byVersion[am.Version] = am
	}

	count := 0
	for _, m := range migrations {
		if am, ok := byVersion[m.Version]; ok {
			if am.Checksum != m.Checksum {
				return count, fmt.Errorf("Migrate: %s changed after it was applied", m.Filename)
			}
			log.Debug().Str("migration", m.Filename).Msg("Migration already applied")
			continue
		}
		if err := s.applyMigration(ctx, m, appliedBy); err != nil {
			return count, err
		}
		log.Info().Str("migration", m.Filename).Msg("Migration applied")
		count++
	}

	filled, err := s.backfillSearchText(ctx)
	if err != nil {
		return count, err
	}
	if filled > 0 {
		log.Info().Int("transactions", filled).Msg("Search text backfilled")
	}
	return count, nil
}

func (s *Store) applyMigration(ctx context.Context, m Migration, appliedBy string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("Migrate: begin %s: %w", m.Filename, err)
	}
	defer tx.Rollback()

	for _, stmt := range splitStatements(m.SQL) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("Migrate: %s: %w", m.Filename, err)
		}
	}
	_, err = tx.ExecContext(ctx, s.Rebind(`
		INSERT INTO schema_migrations (version, name, checksum, applied_at, applied_by)
		VALUES (?, ?, ?, ?, ?)`),
		m.Version, m.Name, m.Checksum, formatTime(s.now()), appliedBy)
	if err != nil {
		return fmt.Errorf("Migrate: record %s: %w", m.Filename, err)
	}
	return tx.Commit()
}

// AppliedMigrations lists schema_migrations in version order.
func (s *Store) AppliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT version, name, checksum, applied_at, applied_by
		FROM schema_migrations
		ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("AppliedMigrations: query: %w", err)
	}
	defer rows.Close()

	var out []AppliedMigration
	for rows.Next() {
		var am AppliedMigration
		if err := rows.Scan(&am.Version, &am.Name, &am.Checksum, &am.AppliedAt, &am.AppliedBy); err != nil {
			return nil, fmt.Errorf("AppliedMigrations: scan: %w", err)
		}
		out = append(out, am)
	}
	return out, rows.Err()
}

// splitStatements splits a script on semicolons outside string literals and
// drops -- comment lines.
func splitStatements(script string) []string {
	var lines []string
	for _, l := range strings.Split(script, "\n") {
		if strings.HasPrefix(strings.TrimSpace(l), "--") {
			continue
		}
		lines = append(lines, l)
	}
	script = strings.Join(lines, "\n")

	var out []string
	var cur strings.Builder
	inQuote := false
	for _, r := range script {
		switch {
		case r == '\'':
			inQuote = !inQuote
			cur.WriteRune(r)
		case r == ';' && !inQuote:
			if stmt := strings.TrimSpace(cur.String()); stmt != "" {
				out = append(out, stmt)
			}
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if stmt := strings.TrimSpace(cur.String()); stmt != "" {
		out = append(out, stmt)
	}
	return out
}
