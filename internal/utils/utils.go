package utils

import (
	"fmt"
	"net/http"

	"github.com/woodchen-ink/go-web-utils/iputil"
)

// GetRequestSource 返回用于日志的请求来源描述
func GetRequestSource(r *http.Request) string {
	source := iputil.GetClientIP(r)
	if referer := r.Header.Get("Referer"); referer != "" {
		return fmt.Sprintf("%s (from: %s)", source, referer)
	}
	return source
}

func FormatBytes(bytes int64) string {
	const (
		MB = 1024 * 1024
		KB = 1024
	)

	switch {
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d Bytes", bytes)
	}
}
