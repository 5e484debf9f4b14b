// Package db opens the spatial databases floor plan layers are stored in.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	_ "github.com/marcboeker/go-duckdb"
)

var (
	instance *sql.DB
	once     sync.Once
	initErr  error
)

// Config holds database configuration.
type Config struct {
	DataDir string
	DBName  string
}

// Path returns the DuckDB file for cfg.
func (c Config) Path() string {
	return filepath.Join(c.DataDir, "duckdb", c.DBName+".duckdb")
}

// Get returns the singleton DuckDB connection with the spatial extension
// loaded.
func Get(cfg Config) (*sql.DB, error) {
	once.Do(func() {
		if err := os.MkdirAll(filepath.Dir(cfg.Path()), 0755); err != nil {
			initErr = fmt.Errorf("failed to create duckdb directory: %w", err)
			return
		}

		instance, initErr = sql.Open("duckdb", cfg.Path())
		if initErr != nil {
			return
		}

		for _, ext := range []string{"spatial", "json"} {
			if _, err := instance.Exec(fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext)); err != nil {
				// Offline hosts may already have it installed; LOAD alone can still work.
				slog.Warn("duckdb extension", "extension", ext, "error", err)
			}
		}
	})
	return instance, initErr
}

// Close closes the DuckDB connection.
func Close() error {
	if instance != nil {
		return instance.Close()
	}
	return nil
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Ident validates a SQL identifier that is spliced into a query.
func Ident(name string) (string, error) {
	if !identRe.MatchString(name) {
		return "", fmt.Errorf("invalid identifier %q", name)
	}
	return name, nil
}

// QualifiedIdent validates a table name with an optional schema prefix.
func QualifiedIdent(name string) (schema, table string, err error) {
	schema, table, ok := strings.Cut(name, ".")
	if !ok {
		schema, table = "", name
	} else if _, err := Ident(schema); err != nil {
		return "", "", err
	}
	if _, err := Ident(table); err != nil {
		return "", "", err
	}
	return schema, table, nil
}

// importStatements creates the schema when needed and replaces the table.
// The last statement takes the file path as its only argument.
func importStatements(name string) ([]string, error) {
	schema, _, err := QualifiedIdent(name)
	if err != nil {
		return nil, err
	}
	var stmts []string
	if schema != "" {
		stmts = append(stmts, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema))
	}
	return append(stmts, fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT * FROM ST_Read(?)", name)), nil
}

// ImportGeoJSON replaces table, optionally schema-qualified, with the
// features of a GeoJSON file read through the spatial extension's ST_Read.
func ImportGeoJSON(ctx context.Context, conn *sql.DB, table, path string) (int64, error) {
	stmts, err := importStatements(table)
	if err != nil {
		return 0, err
	}
	if _, err := os.Stat(path); err != nil {
		return 0, fmt.Errorf("source file: %w", err)
	}

	for i, stmt := range stmts {
		var args []any
		if i == len(stmts)-1 {
			args = append(args, path)
		}
		if _, err := conn.ExecContext(ctx, stmt, args...); err != nil {
			return 0, fmt.Errorf("importing %s into %s: %w", filepath.Base(path), table, err)
		}
	}

	var n int64
	if err := conn.QueryRowContext(ctx, fmt.Sprintf("SELECT count(*) FROM %s", table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", table, err)
	}
	return n, nil
}

// tablesQuery lists user tables as schema.table. DuckDB and PostgreSQL both
// expose information_schema.
const tablesQuery = `SELECT table_schema || '.' || table_name
FROM information_schema.tables
WHERE table_schema NOT IN ('pg_catalog', 'information_schema')
ORDER BY table_schema, table_name`

// ListTables returns the schema-qualified tables of a DuckDB or PostgreSQL
// connection.
func ListTables(ctx context.Context, conn *sql.DB) ([]string, error) {
	rows, err := conn.QueryContext(ctx, tablesQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}
