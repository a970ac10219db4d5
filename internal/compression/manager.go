package compression

import (
	"log"
	"strconv"
	"strings"
	"sync/atomic"

	"fetch-go/internal/config"
)

type compressors struct {
	gzip   Compressor
	brotli Compressor
}

// Manager 持有当前启用的压缩器，配置更新时整体替换
type Manager struct {
	current atomic.Pointer[compressors]
}

// NewManager 创建压缩管理器
func NewManager(cfg config.CompressionConfig) *Manager {
	m := &Manager{}
	m.Update(cfg)
	return m
}

// Update 按新配置重建压缩器
func (m *Manager) Update(cfg config.CompressionConfig) {
	c := &compressors{}
	if cfg.Gzip.Enabled {
		c.gzip = NewGzipCompressor(cfg.Gzip.Level)
	}
	if cfg.Brotli.Enabled {
		c.brotli = NewBrotliCompressor(cfg.Brotli.Level)
	}
	m.current.Store(c)
	log.Printf("[Compression] gzip=%v brotli=%v", cfg.Gzip.Enabled, cfg.Brotli.Enabled)
}

// Select 优先 brotli，其次 gzip；q=0 的编码视为不接受
func (m *Manager) Select(acceptEncoding string) (Compressor, Encoding) {
	accepted := parseAcceptEncoding(acceptEncoding)
	c := m.current.Load()

	if c.brotli != nil && accepted[EncodingBrotli] {
		return c.brotli, EncodingBrotli
	}
	if c.gzip != nil && accepted[EncodingGzip] {
		return c.gzip, EncodingGzip
	}
	return nil, ""
}

func parseAcceptEncoding(header string) map[Encoding]bool {
	accepted := make(map[Encoding]bool)
	for _, part := range strings.Split(header, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}

		q := 1.0
		if v, ok := strings.CutPrefix(strings.TrimSpace(params), "q="); ok {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				q = parsed
			}
		}
		accepted[Encoding(name)] = q > 0
	}
	return accepted
}
