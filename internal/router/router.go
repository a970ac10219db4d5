package router

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"fetch-go/internal/handler"
)

// Handlers 路由需要的处理器
type Handlers struct {
	Auth   *handler.AuthHandler
	Fetch  *handler.FetchHandler
	Cache  *handler.CacheAdminHandler
	Config *handler.ConfigHandler
	Health *handler.HealthHandler
}

// Route 定义路由结构
type Route struct {
	Method      string
	Pattern     string
	Handler     http.HandlerFunc
	RequireAuth bool
}

// apiRoutes 管理接口
func apiRoutes(h Handlers) []Route {
	return []Route{
		{http.MethodGet, "/admin/api/cache/stats", h.Cache.GetCacheStats, true},
		{http.MethodPost, "/admin/api/cache/sweep", h.Cache.SweepCache, true},
		{http.MethodGet, "/admin/api/cache/config", h.Cache.GetCacheConfig, true},
		{http.MethodGet, "/admin/api/config/get", h.Config.GetConfig, true},
		{http.MethodPost, "/admin/api/config/save", h.Config.SaveConfig, true},
	}
}

// New 创建路由，RequireAuth 的路由必须带 Bearer 令牌
func New(h Handlers) *mux.Router {
	r := mux.NewRouter()

	r.Handle("/api/fetch", h.Fetch).Methods(http.MethodGet)
	r.HandleFunc("/health", h.Health.GetHealthStatus).Methods(http.MethodGet)

	for _, route := range apiRoutes(h) {
		fn := route.Handler
		if route.RequireAuth {
			fn = h.Auth.AuthMiddleware(fn)
		}
		r.HandleFunc(route.Pattern, fn).Methods(route.Method)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "not found"})
	})

	return r
}
