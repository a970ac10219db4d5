package cache

import "time"

// Options 缓存存储配置
type Options struct {
	TTL time.Duration    // 默认有效期，<=0 时使用 60 秒
	Now func() time.Time // 时间源，nil 时使用 time.Now
}

// CacheStats 缓存统计信息
type CacheStats struct {
	TotalItems int     `json:"total_items"` // 缓存项数量，后端无法枚举时为 -1
	HitCount   int64   `json:"hit_count"`   // 命中次数
	MissCount  int64   `json:"miss_count"`  // 未命中次数
	HitRate    float64 `json:"hit_rate"`    // 命中率
	Evictions  int64   `json:"evictions"`   // 过期淘汰次数
	StoreCount int64   `json:"store_count"` // 写入次数
	NoopCount  int64   `json:"noop_count"`  // 因已有新鲜值而跳过的写入
	BytesSaved int64   `json:"bytes_saved"` // 命中节省的流量
	TTLSeconds float64 `json:"ttl_seconds"`
}
