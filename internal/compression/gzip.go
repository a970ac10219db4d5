package compression

import (
	"compress/gzip"
	"io"
)

type GzipCompressor struct {
	level int
}

// NewGzipCompressor level 超出范围时使用默认级别
func NewGzipCompressor(level int) *GzipCompressor {
	if level < gzip.HuffmanOnly || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}
	return &GzipCompressor{level: level}
}

func (g *GzipCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriterLevel(w, g.level)
}
