package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/marcboeker/go-duckdb"
)

const duckDBSchema = `CREATE TABLE IF NOT EXISTS kv (
	key VARCHAR PRIMARY KEY,
	value BLOB NOT NULL,
	updated_at TIMESTAMP DEFAULT current_timestamp
)`

// DuckDBStore 把键值对保存在嵌入式 DuckDB 文件中，空 DSN 为内存库。
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore 打开数据库并确保表结构存在。
func NewDuckDBStore(ctx context.Context, dsn string) (*DuckDBStore, error) {
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB: %w", err)
	}

	// DuckDB 单连接写入最稳定
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, duckDBSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create kv table: %w", err)
	}

	return &DuckDBStore{db: db}, nil
}

func (s *DuckDBStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("duckdb get %s: %w", key, err)
	}
	return value, nil
}

func (s *DuckDBStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, current_timestamp)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value)
	if err != nil {
		return fmt.Errorf("duckdb put %s: %w", key, err)
	}
	return nil
}

func (s *DuckDBStore) Close() error {
	return s.db.Close()
}
