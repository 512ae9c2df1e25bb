package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	_ "github.com/ncruces/go-sqlite3/driver" // SQLite driver (pure Go)
	_ "github.com/ncruces/go-sqlite3/embed"  // Embed SQLite WASM binary
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteMedium persists items in a two-column SQLite table, giving
// local-storage lifetime across process restarts.
type SQLiteMedium struct {
	db    *sql.DB
	owned bool

	get, set, del, clr, keys string
}

var _ Medium = (*SQLiteMedium)(nil)

// OpenSQLite opens the database at path (":memory:" for a private in-memory
// database) configured for a single writer.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("storage: database path cannot be empty")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open database: %w", err)
	}
	// SQLite is single-writer; a private ":memory:" database also exists
	// only on the connection that created it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: connect database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: set pragma: %w", err)
	}
	return db, nil
}

// NewSQLiteMedium creates table when missing. The caller owns db.
func NewSQLiteMedium(ctx context.Context, db *sql.DB, table string) (*SQLiteMedium, error) {
	if db == nil {
		return nil, errors.New("storage: nil database")
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("storage: invalid table name %q", table)
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`, table)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("storage: create table %s: %w", table, err)
	}
	return &SQLiteMedium{
		db:   db,
		get:  fmt.Sprintf(`SELECT value FROM %s WHERE key = ?`, table),
		set:  fmt.Sprintf(`INSERT INTO %s (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`, table),
		del:  fmt.Sprintf(`DELETE FROM %s WHERE key = ?`, table),
		clr:  fmt.Sprintf(`DELETE FROM %s`, table),
		keys: fmt.Sprintf(`SELECT key FROM %s`, table),
	}, nil
}

// OpenSQLiteMedium opens the database at path and creates table. Close
// releases the database.
func OpenSQLiteMedium(ctx context.Context, path, table string) (*SQLiteMedium, error) {
	db, err := OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	m, err := NewSQLiteMedium(ctx, db, table)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	m.owned = true
	return m, nil
}

// Close closes the database when the medium opened it itself.
func (m *SQLiteMedium) Close() error {
	if !m.owned {
		return nil
	}
	return m.db.Close()
}

// DB returns the underlying database handle.
func (m *SQLiteMedium) DB() *sql.DB { return m.db }

func (m *SQLiteMedium) GetItem(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := m.db.QueryRowContext(ctx, m.get, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (m *SQLiteMedium) SetItem(ctx context.Context, key, value string) error {
	_, err := m.db.ExecContext(ctx, m.set, key, value)
	return err
}

func (m *SQLiteMedium) RemoveItem(ctx context.Context, key string) error {
	_, err := m.db.ExecContext(ctx, m.del, key)
	return err
}

func (m *SQLiteMedium) Clear(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, m.clr)
	return err
}

func (m *SQLiteMedium) Keys(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, m.keys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}
