// Package store is the executor adapter over the events table. A Handle is
// a process-wide resource: the hosting model runs one invocation at a time
// per process, so the connection is reused across requests and reacquired
// lazily when dead. The handle carries no synchronization of its own.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"trendfinder/internal/config"
)

// Row is one result record, column name to decoded value.
type Row map[string]any

var errNotAcquired = errors.New("store: connection not acquired")

// Handle owns the single live connection to the data store.
type Handle struct {
	cfg config.DB
	db  *sql.DB
}

func NewHandle(cfg config.DB) *Handle {
	return &Handle{cfg: cfg}
}

// Acquire returns the live connection, opening it on first use and
// reopening it when a ping fails. Missing connection settings surface
// here, not at startup.
func (h *Handle) Acquire(ctx context.Context) (*sql.DB, error) {
	if h.db != nil {
		if err := h.db.PingContext(ctx); err == nil {
			return h.db, nil
		}
		h.db.Close()
		h.db = nil
	}
	driver, dsn, err := dataSource(h.cfg)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	// One invocation at a time: a single connection amortizes setup cost
	// across warm starts without pooling.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	h.db = db
	return h.db, nil
}

// Close releases the connection if one is held.
func (h *Handle) Close() error {
	if h.db == nil {
		return nil
	}
	err := h.db.Close()
	h.db = nil
	return err
}

// Count runs the row-count statement and returns the total.
func (h *Handle) Count(ctx context.Context, stmt string, args []any) (int64, error) {
	if h.db == nil {
		return 0, errNotAcquired
	}
	var total int64
	if err := h.db.QueryRowContext(ctx, stmt, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count query: %w", err)
	}
	return total, nil
}

// Select runs the page statement and returns decoded rows in result order.
func (h *Handle) Select(ctx context.Context, stmt string, args []any) ([]Row, error) {
	if h.db == nil {
		return nil, errNotAcquired
	}
	rows, err := h.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	var res []Row
	for rows.Next() {
		values := make([]any, len(columns))
		for i := range values {
			values[i] = new(any)
		}
		if err := rows.Scan(values...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r := make(Row, len(columns))
		for i, col := range columns {
			r[col] = decodeValue(*(values[i].(*any)), types[i].DatabaseTypeName())
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

// decodeValue applies the response encodings: decimal-precision numerics
// become floats, dates become ISO 8601 strings, byte slices become strings.
func decodeValue(v any, dbType string) any {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		if val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 && val.Nanosecond() == 0 {
			return val.Format("2006-01-02")
		}
		return val.Format(time.RFC3339)
	case []byte:
		s := string(val)
		switch strings.ToUpper(dbType) {
		case "DECIMAL", "NUMERIC", "FLOAT", "DOUBLE", "REAL":
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f
			}
		case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INTEGER", "BIGINT":
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n
			}
		}
		return s
	default:
		return val
	}
}

func dataSource(cfg config.DB) (driver, dsn string, err error) {
	switch cfg.Driver {
	case "", "mysql":
		if cfg.Host == "" || cfg.User == "" || cfg.Name == "" {
			return "", "", errors.New("store: DB_HOST, DB_USER and DB_NAME are required")
		}
		port := cfg.Port
		if port == 0 {
			port = 3306
		}
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?timeout=10s&readTimeout=30s&writeTimeout=30s",
			cfg.User, cfg.Password, cfg.Host, port, cfg.Name)
		if cfg.Params != "" {
			dsn += "&" + cfg.Params
		}
		return "mysql", dsn, nil
	case "sqlite":
		path := cfg.Path
		if path == "" {
			return "", "", errors.New("store: DB_PATH is required for the sqlite driver")
		}
		return "sqlite", "file:" + path + "?cache=shared", nil
	default:
		return "", "", fmt.Errorf("store: unsupported driver %q", cfg.Driver)
	}
}
