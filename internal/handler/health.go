package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// Pinger 可做健康检查的依赖，由 cache.Store 实现
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler 健康检查接口
type HealthHandler struct {
	backend   Pinger
	startTime time.Time
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(backend Pinger) *HealthHandler {
	return &HealthHandler{
		backend:   backend,
		startTime: time.Now(),
	}
}

// HealthStatusResponse 健康状态响应
type HealthStatusResponse struct {
	Status    string `json:"status"`
	Storage   string `json:"storage"`
	Uptime    string `json:"uptime"`
	LastCheck string `json:"last_check"`
	LastError string `json:"last_error,omitempty"`
}

// GetHealthStatus 检查存储后端并返回状态
func (h *HealthHandler) GetHealthStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	now := time.Now()
	response := HealthStatusResponse{
		Status:    "ok",
		Storage:   "ok",
		Uptime:    now.Sub(h.startTime).Round(time.Second).String(),
		LastCheck: formatTime(now),
	}
	status := http.StatusOK
	if err := h.backend.Ping(ctx); err != nil {
		log.Printf("[Health API] Storage ping failed: %v", err)
		response.Status = "degraded"
		response.Storage = "unavailable"
		response.LastError = err.Error()
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("[Health API] Failed to encode response: %v", err)
	}
}

// formatTime 格式化时间
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	return t.Format("2006-01-02 15:04:05")
}
