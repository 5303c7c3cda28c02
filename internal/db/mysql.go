package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-sql-driver/mysql"
)

// MySQLAdapter runs statements against a networked MySQL server through a
// bounded connection pool with keep-alive, tuned for concurrent writers.
type MySQLAdapter struct {
	db *sql.DB
}

const defaultPoolSize = 20

// NewMySQLAdapter opens the pool. cfg.MySQLDSN is a standard go-sql-driver
// DSN; a 10s dial timeout and interpolation-safe defaults are enforced here.
func NewMySQLAdapter(cfg Config) (*MySQLAdapter, error) {
	mc, err := mysql.ParseDSN(cfg.MySQLDSN)
	if err != nil {
		return nil, err
	}
	mc.Timeout = 10 * time.Second
	mc.ParseTime = false

	db, err := sql.Open("mysql", mc.FormatDSN())
	if err != nil {
		return nil, err
	}
	size := cfg.MySQLPoolSize
	if size <= 0 {
		size = defaultPoolSize
	}
	db.SetMaxOpenConns(size)
	db.SetMaxIdleConns(size)
	db.SetConnMaxIdleTime(60 * time.Second)
	return &MySQLAdapter{db: db}, nil
}

func (a *MySQLAdapter) Execute(ctx context.Context, stmt string, params ...any) ([]Row, Meta, error) {
	if isQuery(stmt) {
		rows, err := a.db.QueryContext(ctx, stmt, params...)
		if err != nil {
			return nil, Meta{}, err
		}
		defer rows.Close()
		out, err := scanRows(rows)
		return out, Meta{}, err
	}
	res, err := a.db.ExecContext(ctx, stmt, params...)
	if err != nil {
		return nil, Meta{}, err
	}
	affected, _ := res.RowsAffected()
	insertID, _ := res.LastInsertId()
	return nil, Meta{AffectedRows: affected, LastInsertID: insertID}, nil
}

func (a *MySQLAdapter) Close() error {
	return a.db.Close()
}
