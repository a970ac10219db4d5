package handler

import (
	"encoding/json"
	"log"
	"net/http"

	"fetch-go/internal/cache"
	"fetch-go/internal/config"
	"fetch-go/internal/fetch"
	"fetch-go/internal/sweeper"
)

type CacheAdminHandler struct {
	store         *cache.Store
	fetcher       *fetch.Fetcher
	sweeper       *sweeper.Sweeper
	configManager *config.ConfigManager
}

// NewCacheAdminHandler fetcher、sw、configManager 可以为 nil
func NewCacheAdminHandler(store *cache.Store, fetcher *fetch.Fetcher, sw *sweeper.Sweeper, configManager *config.ConfigManager) *CacheAdminHandler {
	return &CacheAdminHandler{
		store:         store,
		fetcher:       fetcher,
		sweeper:       sw,
		configManager: configManager,
	}
}

// SweeperStats 定时清理统计
type SweeperStats struct {
	Runs    int64 `json:"runs"`
	Evicted int64 `json:"evicted"`
}

// CacheConfig 当前生效的缓存配置
type CacheConfig struct {
	TTLSeconds    float64 `json:"ttl_seconds"`
	Backend       string  `json:"backend"`
	SweepSchedule string  `json:"sweep_schedule"`
}

// GetCacheStats 获取缓存统计信息
func (h *CacheAdminHandler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := struct {
		Cache   cache.CacheStats `json:"cache"`
		Fetch   fetch.FetchStats `json:"fetch"`
		Sweeper *SweeperStats    `json:"sweeper,omitempty"`
	}{
		Cache: h.store.GetStats(r.Context()),
	}
	if h.fetcher != nil {
		stats.Fetch = h.fetcher.GetStats()
	}
	if h.sweeper != nil {
		runs, evicted := h.sweeper.Stats()
		stats.Sweeper = &SweeperStats{Runs: runs, Evicted: evicted}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// GetCacheConfig 获取缓存配置
func (h *CacheAdminHandler) GetCacheConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := CacheConfig{TTLSeconds: h.store.TTL().Seconds()}
	if h.configManager != nil {
		cfg := h.configManager.GetConfig()
		resp.Backend = cfg.Cache.Backend
		resp.SweepSchedule = cfg.Cache.SweepSchedule
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// SweepCache 立即清理过期记录
func (h *CacheAdminHandler) SweepCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	evicted, err := h.store.EvictExpired(r.Context())
	if err != nil {
		log.Printf("[Cache API] Sweep failed: %v", err)
		http.Error(w, "Failed to sweep cache: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"evicted": evicted,
	})
}
