/*
Package storage holds the durable backends behind the fetch cache. A backend
only persists records; it knows nothing about freshness. Expiry decisions
belong to the cache package.
*/
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"fetch-go/internal/config"
)

// Record 缓存记录，写入后不再修改
type Record struct {
	Key        string
	InsertedAt time.Time
	TTL        time.Duration // 0 表示使用存储的默认 TTL
	Payload    []byte
}

// Backend 持久化存储接口
type Backend interface {
	// Load 读取 key 对应的记录，不存在时返回 ok=false
	Load(ctx context.Context, key string) (rec Record, ok bool, err error)
	// Save 写入记录，覆盖同 key 的旧记录
	Save(ctx context.Context, rec Record) error
	// Delete 删除记录，不存在时不报错
	Delete(ctx context.Context, key string) error
	// Range 遍历所有可解析的记录，fn 返回 false 时停止
	Range(ctx context.Context, fn func(Record) bool) error
	Close() error
}

// Pinger 可选接口，用于健康检查
type Pinger interface {
	Ping(ctx context.Context) error
}

var (
	// ErrMalformedRecord 存储中的记录无法解析（缺少时间戳、类型不匹配等）
	ErrMalformedRecord = errors.New("malformed cache record")
	// ErrRangeUnsupported 后端无法枚举所有 key
	ErrRangeUnsupported = errors.New("backend does not support enumeration")
)

// Open 根据配置创建存储后端
func Open(ctx context.Context, cfg config.CacheConfig) (Backend, error) {
	log.Printf("[Storage] 使用 %s 存储后端", cfg.Backend)

	switch cfg.Backend {
	case config.BackendFile:
		return NewFileBackend(cfg.File.Path)
	case config.BackendSQLite:
		return OpenSQLite(ctx, cfg.SQLite.Path)
	case config.BackendPostgres:
		return OpenPostgres(ctx, cfg.Postgres.DSN)
	case config.BackendS3:
		return NewS3Backend(ctx, cfg.S3)
	case config.BackendMemcache:
		return NewMemcacheBackend(time.Duration(cfg.TTLSeconds)*time.Second, cfg.Memcache.Servers...), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// hashKey 把任意 key 转成定长、可用作对象名的字符串
func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
