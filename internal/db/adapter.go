// Package db provides a uniform statement-execution surface over two
// interchangeable SQL backends: a networked MySQL server and an embedded
// SQLite file. Callers write MySQL-dialect statements; the SQLite adapter
// rewrites them before execution.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Row is a single result row keyed by column name.
type Row map[string]any

// Meta carries write-statement metadata.
type Meta struct {
	AffectedRows int64
	LastInsertID int64
}

// Adapter executes SQL statements against one of the supported backends.
// Statement errors propagate unchanged; the adapter never retries.
type Adapter interface {
	Execute(ctx context.Context, stmt string, params ...any) ([]Row, Meta, error)
	Close() error
}

// Config selects and configures a backend. Driver is "mysql" or "sqlite".
type Config struct {
	Driver        string
	MySQLDSN      string
	MySQLPoolSize int
	SQLitePath    string
}

// Open constructs the adapter named by cfg.Driver.
func Open(cfg Config) (Adapter, error) {
	switch cfg.Driver {
	case "mysql":
		return NewMySQLAdapter(cfg)
	case "", "sqlite":
		return NewSQLiteAdapter(cfg)
	default:
		return nil, fmt.Errorf("unknown db driver %q", cfg.Driver)
	}
}

// isQuery reports whether stmt produces a result set.
func isQuery(stmt string) bool {
	head := strings.ToUpper(strings.TrimSpace(stmt))
	return strings.HasPrefix(head, "SELECT") || strings.HasPrefix(head, "SHOW")
}

// scanRows drains rows into []Row, normalizing driver []byte values to string.
func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = values[i]
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// String returns the named column as a string, or "" when absent or NULL.
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Int64 returns the named column as an int64, tolerating the numeric and
// textual forms the two drivers produce. Absent or unparsable values yield 0.
func (r Row) Int64(col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	case []byte:
		n, _ := strconv.ParseInt(string(v), 10, 64)
		return n
	default:
		return 0
	}
}

// Bool interprets the column as a 0/1 flag.
func (r Row) Bool(col string) bool {
	return r.Int64(col) != 0
}

// JSONMap deserializes a document column stored as text. Empty and invalid
// documents come back as an empty map so callers never see a nil bag.
func (r Row) JSONMap(col string) map[string]any {
	s := r.String(col)
	if s == "" {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil || m == nil {
		return map[string]any{}
	}
	return m
}
