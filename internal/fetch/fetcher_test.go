package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fetch-go/internal/cache"
	fetcherrors "fetch-go/internal/errors"
	"fetch-go/internal/storage"
)

// result 回调结果
type result struct {
	text string
	err  error
}

func newTestFetcher(t *testing.T, c Cache, retry RetryConfig) *Fetcher {
	t.Helper()
	f := NewFetcher(c, NewDispatcher(16), Options{Timeout: 5 * time.Second, Retry: retry})
	t.Cleanup(f.Close)
	return f
}

func newTestStore(t *testing.T) *cache.Store {
	t.Helper()
	backend, err := storage.NewFileBackend(filepath.Join(t.TempDir(), "cache.json"))
	if err != nil {
		t.Fatal("Failed to create file backend:", err)
	}
	return cache.NewStore(backend, cache.Options{TTL: time.Minute})
}

// countingServer 记录收到的请求数
func countingServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func request(t *testing.T, f *Fetcher, key string, requiresCaching bool) result {
	t.Helper()
	ch := make(chan result, 2)
	err := f.Request(context.Background(), key, requiresCaching,
		func(text string) { ch <- result{text: text} },
		func(err error) { ch <- result{err: err} },
	)
	if err != nil {
		t.Fatalf("Request(%q) returned %v", key, err)
	}

	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatalf("no callback fired for %q", key)
		return result{}
	}
}

func TestCacheFirstDispatch(t *testing.T) {
	srv, hits := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("from network"))
	})
	store := newTestStore(t)
	if _, err := store.Put(context.Background(), srv.URL, []byte("from cache")); err != nil {
		t.Fatal(err)
	}

	f := newTestFetcher(t, store, NoRetry)
	r := request(t, f, srv.URL, true)
	if r.err != nil || r.text != "from cache" {
		t.Errorf("result = %+v, want cached text", r)
	}
	if hits.Load() != 0 {
		t.Errorf("network was hit %d times on a cache hit", hits.Load())
	}
}

func TestMissFetchesAndCaches(t *testing.T) {
	srv, hits := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("héllo"))
	})
	store := newTestStore(t)
	f := newTestFetcher(t, store, NoRetry)

	for i := 0; i < 3; i++ {
		r := request(t, f, srv.URL+"/page", true)
		if r.err != nil || r.text != "héllo" {
			t.Fatalf("request %d = %+v", i, r)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("network hits = %d, want 1", hits.Load())
	}

	payload, ok, err := store.Get(context.Background(), srv.URL+"/page")
	if err != nil || !ok || string(payload) != "héllo" {
		t.Errorf("store.Get = %q, %v, %v", payload, ok, err)
	}
	if stats := f.GetStats(); stats.Requests != 1 || stats.CacheHits != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

// recordingCache 包装缓存并记录 Put 调用，可注入故障
type recordingCache struct {
	Cache
	puts   atomic.Int64
	getErr error
	putErr error
}

func (c *recordingCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	return c.Cache.Get(ctx, key)
}

func (c *recordingCache) Put(ctx context.Context, key string, payload []byte) (bool, error) {
	c.puts.Add(1)
	if c.putErr != nil {
		return false, c.putErr
	}
	return c.Cache.Put(ctx, key, payload)
}

func TestCachingOptOut(t *testing.T) {
	srv, hits := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fresh"))
	})
	store := newTestStore(t)
	rc := &recordingCache{Cache: store}
	f := newTestFetcher(t, rc, NoRetry)

	for i := 0; i < 2; i++ {
		if r := request(t, f, srv.URL, false); r.err != nil || r.text != "fresh" {
			t.Fatalf("request %d = %+v", i, r)
		}
	}
	if rc.puts.Load() != 0 {
		t.Errorf("Put called %d times with caching disabled", rc.puts.Load())
	}
	if hits.Load() != 2 {
		t.Errorf("network hits = %d, want 2", hits.Load())
	}
	if _, ok, _ := store.Get(context.Background(), srv.URL); ok {
		t.Error("store holds a value after an opt-out request")
	}
}

func TestInvalidKeyIsSynchronous(t *testing.T) {
	f := NewFetcher(newTestStore(t), NewDispatcher(4), Options{})

	var fired atomic.Bool
	err := f.Request(context.Background(), "not a url", true,
		func(string) { fired.Store(true) },
		func(error) { fired.Store(true) },
	)
	if !fetcherrors.Is(err, fetcherrors.ErrInvalidKey) {
		t.Fatalf("Request err = %v, want ErrInvalidKey", err)
	}

	// Close 会执行完所有已投递的回调
	f.Close()
	if fired.Load() {
		t.Error("a callback fired for an invalid key")
	}

	if _, err := NewFetcher(newTestStore(t), NewDispatcher(1), Options{}).Fetch(context.Background(), "ftp://example.com/x", true); !fetcherrors.Is(err, fetcherrors.ErrInvalidKey) {
		t.Errorf("Fetch err = %v, want ErrInvalidKey", err)
	}
}

func TestCachedNonURLKeyIsServed(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Put(context.Background(), "settings:home", []byte("cached")); err != nil {
		t.Fatal(err)
	}
	f := newTestFetcher(t, store, NoRetry)

	if r := request(t, f, "settings:home", true); r.err != nil || r.text != "cached" {
		t.Errorf("result = %+v, want cached", r)
	}
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	f := newTestFetcher(t, newTestStore(t), NoRetry)
	r := request(t, f, url, true)
	if !fetcherrors.Is(r.err, fetcherrors.ErrTransport) {
		t.Errorf("err = %v, want ErrTransport", r.err)
	}
	if f.GetStats().Failures != 1 {
		t.Errorf("Failures = %d, want 1", f.GetStats().Failures)
	}
}

func TestStatusErrorNotCached(t *testing.T) {
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	store := newTestStore(t)
	f := newTestFetcher(t, store, NoRetry)

	r := request(t, f, srv.URL, true)
	if !fetcherrors.Is(r.err, fetcherrors.ErrStatus) {
		t.Errorf("err = %v, want ErrStatus", r.err)
	}
	if _, ok, _ := store.Get(context.Background(), srv.URL); ok {
		t.Error("error response was cached")
	}
}

func TestDecodeErrorIsReported(t *testing.T) {
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte{0xff, 0xfe, 0xfd})
	})
	store := newTestStore(t)
	f := newTestFetcher(t, store, NoRetry)

	r := request(t, f, srv.URL, true)
	if !fetcherrors.Is(r.err, fetcherrors.ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode", r.err)
	}

	// 写缓存发生在解码之前
	if _, ok, _ := store.Get(context.Background(), srv.URL); !ok {
		t.Error("raw bytes should be cached before decoding")
	}
	r = request(t, f, srv.URL, true)
	if !fetcherrors.Is(r.err, fetcherrors.ErrDecode) {
		t.Errorf("cached err = %v, want ErrDecode", r.err)
	}
}

func TestStorageFaults(t *testing.T) {
	srv, hits := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	diskErr := fetcherrors.New(fetcherrors.ErrStorage, "failed to read cache record", errors.New("disk on fire"))

	readFault := &recordingCache{Cache: newTestStore(t), getErr: diskErr}
	f := newTestFetcher(t, readFault, NoRetry)
	if r := request(t, f, srv.URL, true); r.err != nil || r.text != "ok" {
		t.Errorf("read fault should degrade to a miss, got %+v", r)
	}
	if hits.Load() != 1 {
		t.Errorf("network hits = %d, want 1", hits.Load())
	}

	writeFault := &recordingCache{Cache: newTestStore(t), putErr: fetcherrors.New(fetcherrors.ErrStorage, "failed to write cache record", nil)}
	f = newTestFetcher(t, writeFault, NoRetry)
	if r := request(t, f, srv.URL, true); !fetcherrors.Is(r.err, fetcherrors.ErrStorage) {
		t.Errorf("write fault err = %v, want ErrStorage", r.err)
	}
}

func TestRetry(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	noRetry := newTestFetcher(t, newTestStore(t), NoRetry)
	if r := request(t, noRetry, srv.URL, false); !fetcherrors.Is(r.err, fetcherrors.ErrStatus) {
		t.Fatalf("without retry err = %v, want ErrStatus", r.err)
	}

	calls.Store(0)
	retry := RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
	withRetry := newTestFetcher(t, newTestStore(t), retry)
	if r := request(t, withRetry, srv.URL, false); r.err != nil || r.text != "recovered" {
		t.Errorf("with retry = %+v", r)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestCallbacksNeverOverlap(t *testing.T) {
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.URL.Path))
	})
	f := NewFetcher(newTestStore(t), NewDispatcher(4), Options{})

	const n = 20
	var (
		active     atomic.Int32
		overlapped atomic.Bool
		wg         sync.WaitGroup
		delivered  int // 只在回调里修改
	)
	callback := func() {
		if active.Add(1) > 1 {
			overlapped.Store(true)
		}
		time.Sleep(time.Millisecond)
		delivered++
		active.Add(-1)
		wg.Done()
	}

	wg.Add(n)
	for i := 0; i < n; i++ {
		key := srv.URL + "/item/" + string(rune('a'+i))
		err := f.Request(context.Background(), key, i%2 == 0,
			func(string) { callback() },
			func(error) { callback() },
		)
		if err != nil {
			t.Fatal(err)
		}
	}
	wg.Wait()
	f.Close()

	if overlapped.Load() {
		t.Error("callbacks ran concurrently")
	}
	if delivered != n {
		t.Errorf("delivered = %d, want %d", delivered, n)
	}
}

func TestValidateKey(t *testing.T) {
	valid := []string{
		"http://example.com",
		"https://example.com/path?q=1",
		"http://127.0.0.1:8080/x",
		"http://[::1]:9000/",
		"https://bücher.example/",
	}
	for _, key := range valid {
		if _, err := ValidateKey(key); err != nil {
			t.Errorf("ValidateKey(%q) = %v, want nil", key, err)
		}
	}

	invalid := []string{
		"",
		"not a url",
		"ftp://example.com/file",
		"http://",
		"http://[::1",
		"/relative/path",
	}
	for _, key := range invalid {
		if _, err := ValidateKey(key); !fetcherrors.Is(err, fetcherrors.ErrInvalidKey) {
			t.Errorf("ValidateKey(%q) = %v, want ErrInvalidKey", key, err)
		}
	}
}
