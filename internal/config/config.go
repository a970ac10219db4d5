package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	fetcherrors "fetch-go/internal/errors"
)

var (
	configCallbacks []func(*Config)
	callbackMutex   sync.RWMutex
)

type ConfigManager struct {
	config     atomic.Value // 生效的配置：文件 + 环境变量
	fileConfig *Config      // 文件中的配置，受 mu 保护
	configPath string
	mu         sync.Mutex
}

func NewConfigManager(configPath string) (*ConfigManager, error) {
	cm := &ConfigManager{
		configPath: configPath,
	}

	// 加载配置
	fileConfig, err := cm.loadConfigFromFile()
	if err != nil {
		return nil, err
	}

	config := fileConfig.clone()
	applyEnvOverrides(config)
	if err := config.Validate(); err != nil {
		return nil, err
	}

	cm.fileConfig = fileConfig
	cm.config.Store(config)
	log.Printf("[Config] 配置已加载: backend=%s ttl=%ds", config.Cache.Backend, config.Cache.TTLSeconds)

	return cm, nil
}

// loadConfigFromFile 从文件加载配置
func (cm *ConfigManager) loadConfigFromFile() (*Config, error) {
	data, err := os.ReadFile(cm.configPath)
	if err != nil {
		// 如果文件不存在，创建默认配置
		if os.IsNotExist(err) {
			if createErr := cm.createDefaultConfig(); createErr != nil {
				return nil, createErr
			}
			return cm.loadConfigFromFile()
		}
		return nil, err
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fetcherrors.New(fetcherrors.ErrInvalidConfig, "failed to parse "+cm.configPath, err)
	}

	return config, nil
}

// DefaultConfig 返回默认配置，未在文件中出现的字段保持这里的值
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:                  ":3336",
			RequestTimeoutSeconds: 30,
		},
		Cache: CacheConfig{
			TTLSeconds:    60,
			Backend:       BackendFile,
			SweepSchedule: "0 */5 * * * *",
			File: FileConfig{
				Path: "data/cache.json",
			},
			SQLite: SQLiteConfig{
				Path: "data/cache.db",
			},
			S3: S3Config{
				Region: "us-east-1",
				Prefix: "fetch-cache/",
			},
			Memcache: MemcacheConfig{
				Servers: []string{"127.0.0.1:11211"},
			},
		},
		Fetch: FetchConfig{
			TimeoutSeconds:    30,
			MaxRetries:        0,
			CallbackQueueSize: 64,
		},
		Compression: CompressionConfig{
			Gzip: CompressorConfig{
				Enabled: true,
				Level:   6,
			},
			Brotli: CompressorConfig{
				Enabled: true,
				Level:   6,
			},
		},
	}
}

// createDefaultConfig 创建默认配置文件
func (cm *ConfigManager) createDefaultConfig() error {
	if err := os.MkdirAll(filepath.Dir(cm.configPath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(DefaultConfig(), "", "  ")
	if err != nil {
		return err
	}

	log.Printf("[Config] 创建默认配置文件 %s", cm.configPath)
	return os.WriteFile(cm.configPath, data, 0644)
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Cache.TTLSeconds <= 0 {
		return fetcherrors.New(fetcherrors.ErrInvalidConfig, "Cache.TTLSeconds must be positive", nil)
	}
	if c.Fetch.MaxRetries < 0 {
		return fetcherrors.New(fetcherrors.ErrInvalidConfig, "Fetch.MaxRetries must not be negative", nil)
	}

	switch c.Cache.Backend {
	case BackendFile:
		if c.Cache.File.Path == "" {
			return fetcherrors.New(fetcherrors.ErrInvalidConfig, "Cache.File.Path is required", nil)
		}
	case BackendSQLite:
		if c.Cache.SQLite.Path == "" {
			return fetcherrors.New(fetcherrors.ErrInvalidConfig, "Cache.SQLite.Path is required", nil)
		}
	case BackendPostgres:
		if c.Cache.Postgres.DSN == "" {
			return fetcherrors.New(fetcherrors.ErrInvalidConfig, "Cache.Postgres.DSN is required", nil)
		}
	case BackendS3:
		if c.Cache.S3.Bucket == "" {
			return fetcherrors.New(fetcherrors.ErrInvalidConfig, "Cache.S3.Bucket is required", nil)
		}
		if c.Cache.S3.Region == "" {
			return fetcherrors.New(fetcherrors.ErrInvalidConfig, "Cache.S3.Region is required", nil)
		}
	case BackendMemcache:
		if len(c.Cache.Memcache.Servers) == 0 {
			return fetcherrors.New(fetcherrors.ErrInvalidConfig, "Cache.Memcache.Servers is required", nil)
		}
	default:
		return fetcherrors.New(fetcherrors.ErrInvalidConfig, fmt.Sprintf("unknown cache backend %q", c.Cache.Backend), nil)
	}

	return nil
}

// envOverride 一个环境变量覆盖项。restore 把 src 中对应字段拷回 dst，
// 用于保存配置时去掉来自环境变量的值。
type envOverride struct {
	name    string
	apply   func(c *Config, v string)
	restore func(dst, src *Config)
}

var envOverrides = []envOverride{
	{"FETCH_ADDR",
		func(c *Config, v string) { c.Server.Addr = v },
		func(dst, src *Config) { dst.Server.Addr = src.Server.Addr }},
	{"FETCH_CACHE_BACKEND",
		func(c *Config, v string) { c.Cache.Backend = strings.ToLower(v) },
		func(dst, src *Config) { dst.Cache.Backend = src.Cache.Backend }},
	{"FETCH_CACHE_TTL_SECONDS",
		func(c *Config, v string) {
			ttl, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				log.Printf("[Config] 忽略无效的 FETCH_CACHE_TTL_SECONDS=%q", v)
				return
			}
			c.Cache.TTLSeconds = ttl
		},
		func(dst, src *Config) { dst.Cache.TTLSeconds = src.Cache.TTLSeconds }},
	{"FETCH_POSTGRES_DSN",
		func(c *Config, v string) { c.Cache.Postgres.DSN = v },
		func(dst, src *Config) { dst.Cache.Postgres.DSN = src.Cache.Postgres.DSN }},
	{"FETCH_S3_ENDPOINT",
		func(c *Config, v string) { c.Cache.S3.Endpoint = v },
		func(dst, src *Config) { dst.Cache.S3.Endpoint = src.Cache.S3.Endpoint }},
	{"FETCH_S3_BUCKET",
		func(c *Config, v string) { c.Cache.S3.Bucket = v },
		func(dst, src *Config) { dst.Cache.S3.Bucket = src.Cache.S3.Bucket }},
	{"FETCH_S3_REGION",
		func(c *Config, v string) { c.Cache.S3.Region = v },
		func(dst, src *Config) { dst.Cache.S3.Region = src.Cache.S3.Region }},
	{"FETCH_S3_ACCESS_KEY_ID",
		func(c *Config, v string) { c.Cache.S3.AccessKeyID = v },
		func(dst, src *Config) { dst.Cache.S3.AccessKeyID = src.Cache.S3.AccessKeyID }},
	{"FETCH_S3_SECRET_ACCESS_KEY",
		func(c *Config, v string) { c.Cache.S3.SecretAccessKey = v },
		func(dst, src *Config) { dst.Cache.S3.SecretAccessKey = src.Cache.S3.SecretAccessKey }},
	{"FETCH_S3_USE_PATH_STYLE",
		func(c *Config, v string) { c.Cache.S3.UsePathStyle = v == "true" || v == "1" || v == "yes" },
		func(dst, src *Config) { dst.Cache.S3.UsePathStyle = src.Cache.S3.UsePathStyle }},
	{"FETCH_MEMCACHE_SERVERS",
		func(c *Config, v string) {
			var servers []string
			for _, s := range strings.Split(v, ",") {
				if s = strings.TrimSpace(s); s != "" {
					servers = append(servers, s)
				}
			}
			c.Cache.Memcache.Servers = servers
		},
		func(dst, src *Config) {
			dst.Cache.Memcache.Servers = append([]string(nil), src.Cache.Memcache.Servers...)
		}},
}

// applyEnvOverrides 环境变量优先于配置文件，方便在容器里注入凭据
func applyEnvOverrides(c *Config) {
	for _, o := range envOverrides {
		if v := os.Getenv(o.name); v != "" {
			o.apply(c, v)
		}
	}
}

// stripEnvOverrides 被环境变量覆盖的字段恢复为文件中的值，环境变量里的凭据不会写入配置文件
func stripEnvOverrides(c, fileConfig *Config) {
	for _, o := range envOverrides {
		if os.Getenv(o.name) != "" {
			o.restore(c, fileConfig)
		}
	}
}

// clone 深拷贝配置
func (c *Config) clone() *Config {
	cp := *c
	cp.Cache.Memcache.Servers = append([]string(nil), c.Cache.Memcache.Servers...)
	return &cp
}

// GetConfig 获取当前配置
func (cm *ConfigManager) GetConfig() *Config {
	return cm.config.Load().(*Config)
}

// UpdateConfig 校验并保存新配置，然后触发回调。
// 环境变量覆盖的字段仍以环境变量为准，保存到文件的是文件中原有的值。
func (cm *ConfigManager) UpdateConfig(newConfig *Config) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	persisted := newConfig.clone()
	stripEnvOverrides(persisted, cm.fileConfig)

	live := persisted.clone()
	applyEnvOverrides(live)
	if err := live.Validate(); err != nil {
		return err
	}

	if err := cm.saveConfigToFile(persisted); err != nil {
		return err
	}

	cm.fileConfig = persisted
	cm.config.Store(live)
	TriggerCallbacks(live)

	log.Printf("[Config] 配置已更新")
	return nil
}

// saveConfigToFile 保存配置到文件
func (cm *ConfigManager) saveConfigToFile(config *Config) error {
	configData, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	// 先写临时文件再重命名
	tempFile := cm.configPath + ".tmp"
	if err := os.WriteFile(tempFile, configData, 0600); err != nil {
		return err
	}

	return os.Rename(tempFile, cm.configPath)
}

// RegisterUpdateCallback 注册配置更新回调函数
func RegisterUpdateCallback(callback func(*Config)) {
	callbackMutex.Lock()
	defer callbackMutex.Unlock()
	configCallbacks = append(configCallbacks, callback)
}

// TriggerCallbacks 触发所有回调
func TriggerCallbacks(cfg *Config) {
	callbackMutex.RLock()
	defer callbackMutex.RUnlock()
	for _, callback := range configCallbacks {
		callback(cfg)
	}

	log.Printf("[Config] 触发了 %d 个配置更新回调", len(configCallbacks))
}
