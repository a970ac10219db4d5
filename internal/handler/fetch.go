package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"fetch-go/internal/constants"
	fetcherrors "fetch-go/internal/errors"
	"fetch-go/internal/fetch"
	"fetch-go/internal/utils"
)

// FetchHandler 通过 Fetcher 获取 url 参数对应的文本
type FetchHandler struct {
	fetcher *fetch.Fetcher
	timeout time.Duration
}

// NewFetchHandler timeout <= 0 时使用 constants.RequestTimeout
func NewFetchHandler(fetcher *fetch.Fetcher, timeout time.Duration) *FetchHandler {
	return &FetchHandler{fetcher: fetcher, timeout: timeout}
}

type fetchResult struct {
	text string
	err  error
}

func (h *FetchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()
	key := r.URL.Query().Get("url")
	requiresCaching := true
	if v := r.URL.Query().Get("cache"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "Invalid cache parameter", http.StatusBadRequest)
			return
		}
		requiresCaching = parsed
	}

	timeout := h.timeout
	if timeout <= 0 {
		timeout = constants.RequestTimeout
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	// 回调在 Dispatcher 上执行，缓冲为 1 保证回调不会阻塞
	done := make(chan fetchResult, 1)
	err := h.fetcher.Request(ctx, key, requiresCaching,
		func(text string) { done <- fetchResult{text: text} },
		func(err error) { done <- fetchResult{err: err} },
	)
	if err != nil {
		h.writeError(w, r, key, err)
		return
	}

	select {
	case res := <-done:
		if res.err != nil {
			h.writeError(w, r, key, res.err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(res.text))
		log.Printf("[Fetch] %s %s -> 200 (%s) %v from %s",
			r.Method, key, utils.FormatBytes(int64(len(res.text))), time.Since(start), utils.GetRequestSource(r))
	case <-ctx.Done():
		log.Printf("[Fetch] %s %s timed out after %v from %s", r.Method, key, timeout, utils.GetRequestSource(r))
		http.Error(w, "Fetch timed out", http.StatusGatewayTimeout)
	}
}

func (h *FetchHandler) writeError(w http.ResponseWriter, r *http.Request, key string, err error) {
	status := statusForError(err)
	log.Printf("[Fetch] %s %s -> %d: %v from %s", r.Method, key, status, err, utils.GetRequestSource(r))
	http.Error(w, err.Error(), status)
}

// statusForError 把错误码映射为 HTTP 状态码
func statusForError(err error) int {
	switch fetcherrors.CodeOf(err) {
	case fetcherrors.ErrInvalidKey:
		return http.StatusBadRequest
	case fetcherrors.ErrTransport:
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case fetcherrors.ErrStatus:
		return http.StatusBadGateway
	case fetcherrors.ErrDecode:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
