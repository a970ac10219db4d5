package constants

import (
	"fetch-go/internal/config"
	"time"
)

var (
	// 缓存相关
	CacheTTL = 60 * time.Second // 缓存过期时间

	// 网络请求相关
	FetchTimeout      = 30 * time.Second // 单次请求超时
	CallbackQueueSize = 64               // 回调队列长度

	// 重试退避
	RetryInitialDelay = 100 * time.Millisecond
	RetryMaxDelay     = 2 * time.Second
	RetryMultiplier   = 2.0

	// 服务相关
	RequestTimeout  = 30 * time.Second // /api/fetch 等待回调的最长时间
	ShutdownTimeout = 10 * time.Second
)

// UpdateFromConfig 从配置文件更新常量
func UpdateFromConfig(cfg *config.Config) {
	if cfg.Cache.TTLSeconds > 0 {
		CacheTTL = time.Duration(cfg.Cache.TTLSeconds) * time.Second
	}
	if cfg.Fetch.TimeoutSeconds > 0 {
		FetchTimeout = time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second
	}
	if cfg.Fetch.CallbackQueueSize > 0 {
		CallbackQueueSize = cfg.Fetch.CallbackQueueSize
	}
	if cfg.Server.RequestTimeoutSeconds > 0 {
		RequestTimeout = time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second
	}
}
