package handler

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"fetch-go/internal/utils"
)

// AuthHandler 用 Bearer 令牌保护管理接口
type AuthHandler struct {
	token []byte
}

// NewAuthHandler token 为空时生成一个随机令牌并打印到日志，管理接口不会无鉴权开放
func NewAuthHandler(token string) *AuthHandler {
	if token == "" {
		token = generateToken()
		log.Printf("[Auth] 未设置 FETCH_ADMIN_TOKEN，本次启动的管理令牌: %s", token)
	}
	return &AuthHandler{token: []byte(token)}
}

func generateToken() string {
	b := make([]byte, 32)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}

// IsAuthenticated 检查 Authorization 头
func (h *AuthHandler) IsAuthenticated(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), h.token) == 1
}

// AuthMiddleware 认证中间件
func (h *AuthHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.IsAuthenticated(r) {
			log.Printf("[Auth] 拒绝未认证的请求 %s %s from %s", r.Method, r.URL.Path, utils.GetRequestSource(r))
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
			return
		}
		next(w, r)
	}
}
