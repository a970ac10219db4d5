package middleware

import (
	"bufio"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"

	"fetch-go/internal/compression"
)

const (
	defaultBufferSize = 32 * 1024 // 32KB
)

type compressResponseWriter struct {
	http.ResponseWriter
	compressor     compression.Compressor
	encoding       compression.Encoding
	writer         io.WriteCloser
	bufferedWriter *bufio.Writer
	written        bool
	compressed     bool
}

// Compression 按 Accept-Encoding 压缩文本类响应
func Compression(selector compression.Selector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			compressor, encoding := selector.Select(r.Header.Get("Accept-Encoding"))
			if compressor == nil {
				next.ServeHTTP(w, r)
				return
			}

			cw := &compressResponseWriter{
				ResponseWriter: w,
				compressor:     compressor,
				encoding:       encoding,
			}
			cw.Header().Add("Vary", "Accept-Encoding")

			defer cw.close()
			next.ServeHTTP(cw, r)
		})
	}
}

func (cw *compressResponseWriter) WriteHeader(statusCode int) {
	if cw.written {
		return
	}
	cw.written = true

	// 下游已自行编码，或状态码、内容类型不适合压缩
	if cw.Header().Get("Content-Encoding") != "" ||
		!shouldCompressForStatus(statusCode) ||
		!shouldCompressType(cw.Header().Get("Content-Type")) {
		cw.ResponseWriter.WriteHeader(statusCode)
		return
	}

	cw.compressed = true
	cw.Header().Set("Content-Encoding", string(cw.encoding))
	cw.Header().Del("Content-Length") // 压缩后原长度不再有效
	cw.ResponseWriter.WriteHeader(statusCode)
}

func (cw *compressResponseWriter) Write(b []byte) (int, error) {
	if !cw.written {
		if cw.Header().Get("Content-Type") == "" {
			cw.Header().Set("Content-Type", http.DetectContentType(b))
		}
		cw.WriteHeader(http.StatusOK)
	}

	if !cw.compressed {
		return cw.ResponseWriter.Write(b)
	}

	// 延迟初始化压缩写入器
	if cw.writer == nil {
		var err error
		cw.writer, err = cw.compressor.Compress(cw.ResponseWriter)
		if err != nil {
			return 0, err
		}
		cw.bufferedWriter = bufio.NewWriterSize(cw.writer, defaultBufferSize)
	}

	return cw.bufferedWriter.Write(b)
}

func (cw *compressResponseWriter) close() {
	if cw.writer == nil {
		return
	}
	cw.bufferedWriter.Flush()
	cw.writer.Close()
}

// Hijack 实现 http.Hijacker 接口
func (cw *compressResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := cw.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

// Flush 实现 http.Flusher 接口
func (cw *compressResponseWriter) Flush() {
	if cw.bufferedWriter != nil {
		cw.bufferedWriter.Flush()
	}
	if f, ok := cw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// 只压缩成功的响应
func shouldCompressForStatus(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices &&
		status != http.StatusNoContent
}

var compressiblePrefixes = []string{
	"text/",
	"application/json",
	"application/javascript",
	"application/xml",
	"application/x-yaml",
	"image/svg+xml",
}

func shouldCompressType(contentType string) bool {
	mimeType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}

	for _, prefix := range compressiblePrefixes {
		if strings.HasPrefix(mimeType, prefix) {
			return true
		}
	}
	return false
}
