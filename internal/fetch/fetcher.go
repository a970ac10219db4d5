package fetch

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	fetcherrors "fetch-go/internal/errors"
	"fetch-go/internal/utils"
)

// Cache 是 Fetcher 依赖的缓存接口，由 cache.Store 实现
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, payload []byte) (bool, error)
}

// Options Fetcher 配置
type Options struct {
	Client  *http.Client  // nil 时使用带 Timeout 的新 client
	Timeout time.Duration // 仅在 Client 为 nil 时生效
	Retry   RetryConfig
}

// FetchStats 网络请求统计
type FetchStats struct {
	CacheHits   int64 `json:"cache_hits"`
	Requests    int64 `json:"requests"` // 实际发出的网络请求
	Failures    int64 `json:"failures"`
	InvalidKeys int64 `json:"invalid_keys"`
}

// Fetcher 先查缓存，未命中时发起 HTTP GET，并按需写回缓存。
// 成功和失败回调都在同一个 Dispatcher 上执行。
type Fetcher struct {
	cache      Cache
	client     *http.Client
	retry      RetryConfig
	dispatcher *Dispatcher
	inflight   sync.WaitGroup

	cacheHits   atomic.Int64
	requests    atomic.Int64
	failures    atomic.Int64
	invalidKeys atomic.Int64
}

func NewFetcher(cache Cache, dispatcher *Dispatcher, opts Options) *Fetcher {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	retry := opts.Retry
	if retry.Multiplier <= 0 {
		retry = RetryConfig{
			MaxRetries:   retry.MaxRetries,
			InitialDelay: NoRetry.InitialDelay,
			MaxDelay:     NoRetry.MaxDelay,
			Multiplier:   NoRetry.Multiplier,
		}
	}

	return &Fetcher{
		cache:      cache,
		client:     client,
		retry:      retry,
		dispatcher: dispatcher,
	}
}

// Request 异步获取 key 对应的文本。
//
// 缓存命中时直接投递 success，不访问网络。未命中时 key 必须是合法 URL，
// 否则同步返回 ErrInvalidKey 且不会触发任何回调。网络请求在后台执行，
// 结果通过 success 或 failure 在 Dispatcher 上投递，二者只会触发一个。
func (f *Fetcher) Request(ctx context.Context, key string, requiresCaching bool, success func(string), failure func(error)) error {
	if text, hit, err := f.fromCache(ctx, key); hit {
		f.deliver(text, err, success, failure)
		return nil
	}

	u, err := ValidateKey(key)
	if err != nil {
		f.invalidKeys.Add(1)
		return err
	}

	f.inflight.Add(1)
	go func() {
		defer f.inflight.Done()
		text, err := f.fetchRemote(ctx, key, u, requiresCaching)
		f.deliver(text, err, success, failure)
	}()
	return nil
}

// Fetch 是 Request 的同步版本，语义相同
func (f *Fetcher) Fetch(ctx context.Context, key string, requiresCaching bool) (string, error) {
	text, hit, err := f.fromCache(ctx, key)
	if !hit {
		u, verr := ValidateKey(key)
		if verr != nil {
			f.invalidKeys.Add(1)
			return "", verr
		}
		text, err = f.fetchRemote(ctx, key, u, requiresCaching)
	}

	if err != nil {
		f.failures.Add(1)
	}
	return text, err
}

// fromCache 查询缓存。读取失败按未命中处理，直接走网络。
func (f *Fetcher) fromCache(ctx context.Context, key string) (string, bool, error) {
	payload, ok, err := f.cache.Get(ctx, key)
	if err != nil {
		log.Printf("[Fetch] cache read failed for %s, fetching instead: %v", key, err)
		return "", false, nil
	}
	if !ok {
		return "", false, nil
	}

	f.cacheHits.Add(1)
	text, err := decodeText(key, payload)
	return text, true, err
}

func (f *Fetcher) fetchRemote(ctx context.Context, key string, u *url.URL, requiresCaching bool) (string, error) {
	f.requests.Add(1)
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fetcherrors.New(fetcherrors.ErrInvalidKey, "failed to build request", err)
	}

	resp, err := executeWithRetry(f.client, req, f.retry)
	if err != nil {
		log.Printf("[Fetch] system error = %v", err)
		return "", fetcherrors.New(fetcherrors.ErrTransport, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("[Fetch] failed to read body of %s: %v", key, err)
		return "", fetcherrors.New(fetcherrors.ErrTransport, "failed to read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[Fetch] %s returned %d", key, resp.StatusCode)
		return "", fetcherrors.New(fetcherrors.ErrStatus, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	log.Printf("[Fetch] GET %s %d (%s) in %v", key, resp.StatusCode, utils.FormatBytes(int64(len(body))), time.Since(start))

	if requiresCaching {
		if _, err := f.cache.Put(ctx, key, body); err != nil {
			log.Printf("[Fetch] failed to cache %s: %v", key, err)
			return "", err
		}
	}

	return decodeText(key, body)
}

func decodeText(key string, payload []byte) (string, error) {
	if !utf8.Valid(payload) {
		return "", fetcherrors.New(fetcherrors.ErrDecode, "payload of "+key+" is not valid UTF-8", nil)
	}
	return string(payload), nil
}

func (f *Fetcher) deliver(text string, err error, success func(string), failure func(error)) {
	if err != nil {
		f.failures.Add(1)
	}

	posted := f.dispatcher.Post(func() {
		if err != nil {
			if failure != nil {
				failure(err)
			}
			return
		}
		if success != nil {
			success(text)
		}
	})
	if !posted {
		log.Printf("[Fetch] dispatcher closed, dropping result")
	}
}

// GetStats 获取请求统计
func (f *Fetcher) GetStats() FetchStats {
	return FetchStats{
		CacheHits:   f.cacheHits.Load(),
		Requests:    f.requests.Load(),
		Failures:    f.failures.Load(),
		InvalidKeys: f.invalidKeys.Load(),
	}
}

// Close 等待进行中的请求结束，然后关闭 Dispatcher
func (f *Fetcher) Close() {
	f.inflight.Wait()
	f.dispatcher.Close()
}
