package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"fetch-go/internal/config"
	fetcherrors "fetch-go/internal/errors"
)

// ConfigHandler 配置管理处理器
type ConfigHandler struct {
	configManager *config.ConfigManager
}

// NewConfigHandler 创建新的配置管理处理器
func NewConfigHandler(configManager *config.ConfigManager) *ConfigHandler {
	return &ConfigHandler{
		configManager: configManager,
	}
}

const redacted = "******"

// GetConfig 返回当前配置，敏感字段脱敏
func (h *ConfigHandler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	cfg := *h.configManager.GetConfig()
	if cfg.Cache.S3.SecretAccessKey != "" {
		cfg.Cache.S3.SecretAccessKey = redacted
	}
	if cfg.Cache.Postgres.DSN != "" {
		cfg.Cache.Postgres.DSN = redacted
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(cfg)
}

// SaveConfig 保存配置。存储后端相关的修改在重启后生效，其余配置通过回调立即生效。
func (h *ConfigHandler) SaveConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "方法不允许", http.StatusMethodNotAllowed)
		return
	}

	// 在当前配置上解码，未提交的字段保持不变
	current := h.configManager.GetConfig()
	newConfig := *current
	newConfig.Cache.Memcache.Servers = append([]string(nil), current.Cache.Memcache.Servers...)
	if err := json.NewDecoder(r.Body).Decode(&newConfig); err != nil {
		http.Error(w, fmt.Sprintf("解析配置失败: %v", err), http.StatusBadRequest)
		return
	}

	// 脱敏字段原样提交时保留旧值
	if newConfig.Cache.S3.SecretAccessKey == redacted {
		newConfig.Cache.S3.SecretAccessKey = current.Cache.S3.SecretAccessKey
	}
	if newConfig.Cache.Postgres.DSN == redacted {
		newConfig.Cache.Postgres.DSN = current.Cache.Postgres.DSN
	}

	if err := h.configManager.UpdateConfig(&newConfig); err != nil {
		if fetcherrors.Is(err, fetcherrors.ErrInvalidConfig) {
			http.Error(w, fmt.Sprintf("配置验证失败: %v", err), http.StatusBadRequest)
			return
		}
		http.Error(w, fmt.Sprintf("保存配置失败: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"message": "配置已更新并生效"}`))
}
