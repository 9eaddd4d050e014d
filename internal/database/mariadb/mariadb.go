// Package mariadb reads enrollments from the MariaDB schema of the enrollment system.
package mariadb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Pool is a small read-mostly pool over the enrollment database.
type Pool struct {
	db *sql.DB
}

// normalizeDSN forces the driver options the candidate queries depend on.
func normalizeDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse legacy DSN: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.Local
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Params == nil {
		cfg.Params = map[string]string{}
	}
	if _, ok := cfg.Params["charset"]; !ok {
		cfg.Params["charset"] = "utf8mb4"
	}
	return cfg.FormatDSN(), nil
}

// NewPool connects to the enrollment database and pings it.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	normalized, err := normalizeDSN(dsn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", normalized)
	if err != nil {
		return nil, fmt.Errorf("open legacy database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping legacy database: %w", err)
	}
	return &Pool{db: db}, nil
}

func (p *Pool) Close() error {
	return p.db.Close()
}
