package fetch

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// RetryConfig 重试配置，MaxRetries 为 0 时只请求一次
type RetryConfig struct {
	MaxRetries   int           // 最大重试次数
	InitialDelay time.Duration // 初始延迟
	MaxDelay     time.Duration // 最大延迟
	Multiplier   float64       // 延迟倍增因子
}

// NoRetry 默认不重试
var NoRetry = RetryConfig{
	MaxRetries:   0,
	InitialDelay: 100 * time.Millisecond,
	MaxDelay:     2 * time.Second,
	Multiplier:   2.0,
}

// isRetriableError 判断错误是否可重试
func isRetriableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	// 网络相关临时错误
	retriableErrors := []string{
		"timeout",
		"temporary failure",
		"connection reset",
		"connection refused",
		"no such host",
		"eof",
		"broken pipe",
	}

	for _, retryErr := range retriableErrors {
		if strings.Contains(errStr, retryErr) {
			return true
		}
	}

	return false
}

// isRetriableStatusCode 判断HTTP状态码是否可重试
func isRetriableStatusCode(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// executeWithRetry 执行带重试的 GET 请求。重试用尽后返回最后一次的响应或错误。
func executeWithRetry(client *http.Client, req *http.Request, config RetryConfig) (*http.Response, error) {
	var lastErr error
	delay := config.InitialDelay

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-req.Context().Done():
				return nil, req.Context().Err()
			}

			// 指数退避
			delay = time.Duration(float64(delay) * config.Multiplier)
			if delay > config.MaxDelay {
				delay = config.MaxDelay
			}

			log.Printf("[Retry] Attempt %d/%d for %s (last error: %v)",
				attempt+1, config.MaxRetries+1, req.URL.String(), lastErr)
		}

		// GET 请求没有请求体，可以直接克隆
		resp, err := client.Do(req.Clone(req.Context()))
		if err == nil {
			if attempt == config.MaxRetries || !isRetriableStatusCode(resp.StatusCode) {
				return resp, nil
			}
			lastErr = fmt.Errorf("retriable status code: %d", resp.StatusCode)
			resp.Body.Close()
			continue
		}

		lastErr = err
		if !isRetriableError(err) {
			return nil, err
		}
	}

	return nil, lastErr
}
