package config

type Config struct {
	Server      ServerConfig      `json:"Server"`
	Cache       CacheConfig       `json:"Cache"`
	Fetch       FetchConfig       `json:"Fetch"`
	Compression CompressionConfig `json:"Compression"`
}

type ServerConfig struct {
	Addr                  string `json:"Addr"`                  // 监听地址
	RequestTimeoutSeconds int64  `json:"RequestTimeoutSeconds"` // /api/fetch 等待回调的最长时间
}

// CacheConfig 缓存存储配置
type CacheConfig struct {
	TTLSeconds    int64          `json:"TTLSeconds"`    // 缓存有效期（秒）
	Backend       string         `json:"Backend"`       // file, sqlite, postgres, s3, memcache
	SweepSchedule string         `json:"SweepSchedule"` // 过期清理的 cron 表达式，为空表示不启用
	File          FileConfig     `json:"File"`
	SQLite        SQLiteConfig   `json:"SQLite"`
	Postgres      PostgresConfig `json:"Postgres"`
	S3            S3Config       `json:"S3"`
	Memcache      MemcacheConfig `json:"Memcache"`
}

type FileConfig struct {
	Path string `json:"Path"`
}

type SQLiteConfig struct {
	Path string `json:"Path"`
}

type PostgresConfig struct {
	DSN string `json:"DSN"`
}

type S3Config struct {
	Endpoint        string `json:"Endpoint"`
	Bucket          string `json:"Bucket"`
	Region          string `json:"Region"`
	AccessKeyID     string `json:"AccessKeyID"`
	SecretAccessKey string `json:"SecretAccessKey"`
	UsePathStyle    bool   `json:"UsePathStyle"`
	Prefix          string `json:"Prefix"` // 对象键前缀
}

type MemcacheConfig struct {
	Servers []string `json:"Servers"`
}

// FetchConfig 网络请求配置
type FetchConfig struct {
	TimeoutSeconds    int64 `json:"TimeoutSeconds"`    // 单次 HTTP 请求超时
	MaxRetries        int   `json:"MaxRetries"`        // 传输错误重试次数，0 表示不重试
	CallbackQueueSize int   `json:"CallbackQueueSize"` // 回调队列长度
}

type CompressionConfig struct {
	Gzip   CompressorConfig `json:"Gzip"`
	Brotli CompressorConfig `json:"Brotli"`
}

type CompressorConfig struct {
	Enabled bool `json:"Enabled"`
	Level   int  `json:"Level"`
}

// 支持的存储后端
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendS3       = "s3"
	BackendMemcache = "memcache"
)
