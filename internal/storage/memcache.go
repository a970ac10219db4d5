package storage

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// memcache 对 key 长度和字符有限制，统一使用哈希
const memcacheKeyPrefix = "fetch:"

// memcacheClient 是 MemcacheBackend 用到的 memcache.Client 方法子集
type memcacheClient interface {
	Get(key string) (*memcache.Item, error)
	Set(item *memcache.Item) error
	Delete(key string) error
	Ping() error
}

// MemcacheBackend 把 gob 编码的记录放进 memcached。
// memcached 无法枚举 key，所以 Range 返回 ErrRangeUnsupported。
type MemcacheBackend struct {
	mc         memcacheClient
	defaultTTL time.Duration // 记录 TTL 为 0 时用于计算 memcached 过期时间
}

// gobRecord 显式的 gob 结构，字段变化时旧数据会解码失败并按未命中处理
type gobRecord struct {
	Key        string
	InsertedAt time.Time
	TTL        int64
	Payload    []byte
}

// NewMemcacheBackend defaultTTL 应与缓存层的默认有效期一致
func NewMemcacheBackend(defaultTTL time.Duration, servers ...string) *MemcacheBackend {
	return &MemcacheBackend{mc: memcache.New(servers...), defaultTTL: defaultTTL}
}

func (b *MemcacheBackend) itemKey(key string) string {
	return memcacheKeyPrefix + hashKey(key)
}

func (b *MemcacheBackend) Load(ctx context.Context, key string) (Record, bool, error) {
	item, err := b.mc.Get(b.itemKey(key))
	if err != nil {
		// 未命中是正常情况
		if err == memcache.ErrCacheMiss {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("memcache get failed: %w", err)
	}

	var gr gobRecord
	if err := gob.NewDecoder(bytes.NewReader(item.Value)).Decode(&gr); err != nil {
		return Record{}, false, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if gr.InsertedAt.IsZero() || gr.TTL < 0 || gr.Key != key {
		return Record{}, false, fmt.Errorf("%w: invalid gob record", ErrMalformedRecord)
	}
	if gr.Payload == nil {
		gr.Payload = []byte{}
	}

	return Record{
		Key:        gr.Key,
		InsertedAt: gr.InsertedAt,
		TTL:        time.Duration(gr.TTL),
		Payload:    gr.Payload,
	}, true, nil
}

func (b *MemcacheBackend) Save(ctx context.Context, rec Record) error {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(gobRecord{
		Key:        rec.Key,
		InsertedAt: rec.InsertedAt,
		TTL:        int64(rec.TTL),
		Payload:    rec.Payload,
	})
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	ttl := rec.TTL
	if ttl <= 0 {
		ttl = b.defaultTTL
	}
	err = b.mc.Set(&memcache.Item{
		Key:        b.itemKey(rec.Key),
		Value:      buf.Bytes(),
		Expiration: memcacheExpiration(ttl),
	})
	if err != nil {
		return fmt.Errorf("memcache set failed: %w", err)
	}
	return nil
}

// memcacheExpiration 让 memcached 至少保留记录到 TTL 之后，过期判断仍由缓存层完成。
// ttl<=0 或超过 30 天时不设置过期。
func memcacheExpiration(ttl time.Duration) int32 {
	if ttl <= 0 {
		return 0
	}
	seconds := math.Ceil(ttl.Seconds()) + 1
	// 超过 30 天会被 memcached 当成 unix 时间戳
	if seconds > 30*24*3600 {
		return 0
	}
	return int32(seconds)
}

func (b *MemcacheBackend) Delete(ctx context.Context, key string) error {
	err := b.mc.Delete(b.itemKey(key))
	if err != nil && err != memcache.ErrCacheMiss {
		return fmt.Errorf("memcache delete failed: %w", err)
	}
	return nil
}

func (b *MemcacheBackend) Range(ctx context.Context, fn func(Record) bool) error {
	return ErrRangeUnsupported
}

func (b *MemcacheBackend) Ping(ctx context.Context) error {
	return b.mc.Ping()
}

func (b *MemcacheBackend) Close() error {
	return nil
}
