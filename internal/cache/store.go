package cache

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	fetcherrors "fetch-go/internal/errors"
	"fetch-go/internal/storage"
	"fetch-go/internal/utils"
)

// DefaultTTL 未配置时的缓存有效期
const DefaultTTL = 60 * time.Second

// Store 持久化的过期缓存。
//
// 所有读写都直接经过存储后端，没有内存层。读-改-写过程由 mu 串行化，
// 同一进程内不会出现并发写覆盖。记录在 Get 发现其过期时才被删除，
// 也可以通过 EvictExpired 主动清理。
type Store struct {
	backend storage.Backend
	ttl     time.Duration
	now     func() time.Time
	mu      sync.Mutex

	hitCount   atomic.Int64
	missCount  atomic.Int64
	evictions  atomic.Int64
	storeCount atomic.Int64
	noopCount  atomic.Int64
	bytesSaved atomic.Int64
}

// NewStore 创建缓存存储，进程启动时创建一次并注入给使用者
func NewStore(backend storage.Backend, opts Options) *Store {
	s := &Store{
		backend: backend,
		ttl:     opts.TTL,
		now:     opts.Now,
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// TTL 返回默认有效期
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// expired 判断记录是否过期，恰好等于 TTL 也算过期
func (s *Store) expired(rec storage.Record, now time.Time) bool {
	ttl := rec.TTL
	if ttl <= 0 {
		ttl = s.ttl
	}
	return now.Sub(rec.InsertedAt) >= ttl
}

// Get 返回 key 对应的新鲜数据。过期记录会被删除并按未命中返回；
// 无法解析的记录按未命中处理。只有存储读写失败才返回错误。
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, ok, err := s.lookup(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		s.missCount.Add(1)
		return nil, false, nil
	}

	s.hitCount.Add(1)
	s.bytesSaved.Add(int64(len(payload)))
	return payload, true, nil
}

// lookup 调用方需持有 mu
func (s *Store) lookup(ctx context.Context, key string) ([]byte, bool, error) {
	rec, ok, err := s.backend.Load(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrMalformedRecord) {
			log.Printf("[Cache] BAD %s: %v", key, err)
			return nil, false, nil
		}
		return nil, false, fetcherrors.New(fetcherrors.ErrStorage, "failed to read cache record", err)
	}
	if !ok {
		return nil, false, nil
	}

	if s.expired(rec, s.now()) {
		if err := s.backend.Delete(ctx, key); err != nil {
			return nil, false, fetcherrors.New(fetcherrors.ErrStorage, "failed to evict expired record", err)
		}
		s.evictions.Add(1)
		log.Printf("[Cache] DEL %s (expired)", key)
		return nil, false, nil
	}

	return rec.Payload, true, nil
}

// Put 使用默认 TTL 写入，见 PutWithTTL
func (s *Store) Put(ctx context.Context, key string, payload []byte) (bool, error) {
	return s.PutWithTTL(ctx, key, payload, 0)
}

// PutWithTTL 仅在 key 没有新鲜值时写入（insert-if-absent）。
// 已有新鲜值时返回 false，原记录和时间戳保持不变。ttl<=0 使用默认 TTL。
func (s *Store) PutWithTTL(ctx context.Context, key string, payload []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, fresh, err := s.lookup(ctx, key)
	if err != nil {
		return false, err
	}
	if fresh {
		s.noopCount.Add(1)
		return false, nil
	}

	if ttl < 0 {
		ttl = 0
	}
	if payload == nil {
		payload = []byte{}
	}
	rec := storage.Record{
		Key:        key,
		InsertedAt: s.now(),
		TTL:        ttl,
		Payload:    payload,
	}
	if err := s.backend.Save(ctx, rec); err != nil {
		return false, fetcherrors.New(fetcherrors.ErrStorage, "failed to write cache record", err)
	}

	s.storeCount.Add(1)
	log.Printf("[Cache] NEW %s (%s)", key, utils.FormatBytes(int64(len(payload))))
	return true, nil
}

// EvictExpired 删除所有已过期的记录，返回删除数量。
// 后端无法枚举 key 时返回 0。
func (s *Store) EvictExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var expired []string
	err := s.backend.Range(ctx, func(rec storage.Record) bool {
		if s.expired(rec, now) {
			expired = append(expired, rec.Key)
		}
		return true
	})
	if errors.Is(err, storage.ErrRangeUnsupported) {
		log.Printf("[Cache] 当前存储后端不支持枚举，跳过过期清理")
		return 0, nil
	}
	if err != nil {
		return 0, fetcherrors.New(fetcherrors.ErrStorage, "failed to list cache records", err)
	}

	evicted := 0
	for _, key := range expired {
		if err := s.backend.Delete(ctx, key); err != nil {
			s.evictions.Add(int64(evicted))
			return evicted, fetcherrors.New(fetcherrors.ErrStorage, "failed to evict expired record", err)
		}
		evicted++
		log.Printf("[Cache] DEL %s (expired)", key)
	}
	s.evictions.Add(int64(evicted))

	return evicted, nil
}

// GetStats 获取缓存统计信息
func (s *Store) GetStats(ctx context.Context) CacheStats {
	totalItems := 0
	err := s.backend.Range(ctx, func(storage.Record) bool {
		totalItems++
		return true
	})
	if err != nil {
		if !errors.Is(err, storage.ErrRangeUnsupported) {
			log.Printf("[Cache] Failed to count records: %v", err)
		}
		totalItems = -1
	}

	hitCount := s.hitCount.Load()
	missCount := s.missCount.Load()
	totalRequests := hitCount + missCount
	hitRate := float64(0)
	if totalRequests > 0 {
		hitRate = float64(hitCount) / float64(totalRequests) * 100
	}

	return CacheStats{
		TotalItems: totalItems,
		HitCount:   hitCount,
		MissCount:  missCount,
		HitRate:    hitRate,
		Evictions:  s.evictions.Load(),
		StoreCount: s.storeCount.Load(),
		NoopCount:  s.noopCount.Load(),
		BytesSaved: s.bytesSaved.Load(),
		TTLSeconds: s.ttl.Seconds(),
	}
}

// Ping 检查存储后端是否可用
func (s *Store) Ping(ctx context.Context) error {
	if p, ok := s.backend.(storage.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
