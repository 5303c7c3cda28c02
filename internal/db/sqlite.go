package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteAdapter runs statements against an embedded single-file database in
// write-ahead-log mode, so crash-safe durability needs no external server.
// Statements are written for the MySQL backend and translated on the way in.
type SQLiteAdapter struct {
	db   *sql.DB
	path string
}

// NewSQLiteAdapter opens (and creates if needed) the database file, creating
// its parent directory first, and enables WAL journaling.
func NewSQLiteAdapter(cfg Config) (*SQLiteAdapter, error) {
	path := cfg.SQLitePath
	if path == "" {
		path = "./data/sanhub.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// A single writer connection sidesteps SQLITE_BUSY under concurrent jobs.
	db.SetMaxOpenConns(1)
	return &SQLiteAdapter{db: db, path: path}, nil
}

// convertParams maps values to forms SQLite can bind: booleans become 0/1,
// structured values become serialized JSON text, nil passes through.
func convertParams(params []any) []any {
	if len(params) == 0 {
		return nil
	}
	out := make([]any, len(params))
	for i, p := range params {
		switch v := p.(type) {
		case nil:
			out[i] = nil
		case bool:
			if v {
				out[i] = 1
			} else {
				out[i] = 0
			}
		case map[string]any, []any, []string:
			b, err := json.Marshal(v)
			if err != nil {
				out[i] = nil
				continue
			}
			out[i] = string(b)
		default:
			out[i] = p
		}
	}
	return out
}

func (a *SQLiteAdapter) Execute(ctx context.Context, stmt string, params ...any) ([]Row, Meta, error) {
	stmt = Translate(stmt)
	if strings.TrimSpace(stmt) == "" {
		return nil, Meta{}, nil
	}
	bound := convertParams(params)

	if isQuery(stmt) {
		rows, err := a.db.QueryContext(ctx, stmt, bound...)
		if err != nil {
			return nil, Meta{}, err
		}
		defer rows.Close()
		out, err := scanRows(rows)
		return out, Meta{}, err
	}
	res, err := a.db.ExecContext(ctx, stmt, bound...)
	if err != nil {
		return nil, Meta{}, err
	}
	affected, _ := res.RowsAffected()
	insertID, _ := res.LastInsertId()
	return nil, Meta{AffectedRows: affected, LastInsertID: insertID}, nil
}

func (a *SQLiteAdapter) Close() error {
	return a.db.Close()
}
