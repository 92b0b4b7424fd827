// Package store 提供会话与策略历史使用的键值存储。
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound 表示键不存在。
var ErrNotFound = errors.New("key not found")

// KV 是最小的键值存储接口，值为不透明字节。
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}

// Config 选择存储驱动。
type Config struct {
	Driver string
	DSN    string
}

// Open 根据驱动名创建存储，空驱动使用内存实现。
func Open(ctx context.Context, cfg Config) (KV, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "duckdb":
		return NewDuckDBStore(ctx, cfg.DSN)
	case "postgres", "pgx":
		return NewPostgresStore(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}
