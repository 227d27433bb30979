// Package migrate applies the embedded SQL schema for the auth store.
// Migrations ship inside the binary so a deployment cannot drift from
// the schema its code was built against.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"
)

//go:embed sql/*.sql
var embedded embed.FS

const bookkeepingTable = "schema_migrations"

// Manager applies versioned SQL migrations from a file system. File
// names follow NNNN_name.up.sql / NNNN_name.down.sql and are applied in
// lexical order, each inside its own transaction.
type Manager struct {
	db  *sql.DB
	src fs.FS
}

// NewManager runs migrations from the embedded schema.
func NewManager(db *sql.DB) *Manager {
	return &Manager{db: db, src: embedded}
}

// NewManagerFS runs migrations from an arbitrary file system.
func NewManagerFS(db *sql.DB, src fs.FS) *Manager {
	return &Manager{db: db, src: src}
}

// Up applies every pending migration in order.
func (m *Manager) Up(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}
	names, err := m.collect(".up.sql")
	if err != nil {
		return err
	}
	for _, name := range names {
		if applied[name] {
			continue
		}
		if err := m.apply(ctx, name); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
		if err := m.record(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// Down rolls back the most recently applied migration.
func (m *Manager) Down(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	history, err := m.history(ctx)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return errors.New("no migrations applied")
	}
	last := history[len(history)-1]
	down := strings.TrimSuffix(last, ".up.sql") + ".down.sql"
	if err := m.apply(ctx, down); err != nil {
		return fmt.Errorf("rollback %s: %w", last, err)
	}
	_, err = m.db.ExecContext(ctx,
		`delete from `+bookkeepingTable+` where name = $1`, last)
	return err
}

// Status returns the applied migrations in application order.
func (m *Manager) Status(ctx context.Context) ([]string, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	return m.history(ctx)
}

func (m *Manager) history(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx,
		`select name from `+bookkeepingTable+` order by applied_at asc, name asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		history = append(history, name)
	}
	return history, rows.Err()
}

func (m *Manager) ensureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		create table if not exists `+bookkeepingTable+` (
			name text primary key,
			applied_at timestamptz not null default now()
		)`)
	return err
}

func (m *Manager) applied(ctx context.Context) (map[string]bool, error) {
	history, err := m.history(ctx)
	if err != nil {
		return nil, err
	}
	applied := make(map[string]bool, len(history))
	for _, name := range history {
		applied[name] = true
	}
	return applied, nil
}

func (m *Manager) collect(suffix string) ([]string, error) {
	matches, err := fs.Glob(m.src, "sql/*"+suffix)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(matches))
	for _, match := range matches {
		names = append(names, strings.TrimPrefix(match, "sql/"))
	}
	sort.Strings(names)
	return names, nil
}

func (m *Manager) apply(ctx context.Context, name string) error {
	raw, err := fs.ReadFile(m.src, "sql/"+name)
	if err != nil {
		return err
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(raw)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (m *Manager) record(ctx context.Context, name string) error {
	_, err := m.db.ExecContext(ctx,
		`insert into `+bookkeepingTable+` (name, applied_at) values ($1, $2)`,
		name, time.Now().UTC())
	return err
}

// splitStatements breaks a migration file into statements on top-level
// semicolons. Migrations here hold plain DDL, no procedural bodies.
func splitStatements(script string) []string {
	var statements []string
	for _, stmt := range strings.Split(script, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		statements = append(statements, stmt)
	}
	return statements
}
