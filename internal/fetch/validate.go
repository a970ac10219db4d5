package fetch

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/idna"

	fetcherrors "fetch-go/internal/errors"
)

// ValidateKey 检查 key 是否是可请求的 http/https URL
func ValidateKey(key string) (*url.URL, error) {
	if strings.TrimSpace(key) == "" {
		return nil, fetcherrors.New(fetcherrors.ErrInvalidKey, "empty key", nil)
	}

	u, err := url.Parse(key)
	if err != nil {
		return nil, fetcherrors.New(fetcherrors.ErrInvalidKey, "key is not a URL", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, fetcherrors.New(fetcherrors.ErrInvalidKey, fmt.Sprintf("unsupported URL scheme %q", u.Scheme), nil)
	}

	host := u.Hostname()
	if host == "" {
		return nil, fetcherrors.New(fetcherrors.ErrInvalidKey, "URL has no host", nil)
	}
	// IP 字面量不需要 IDNA 检查
	if !strings.Contains(host, ":") && strings.Trim(host, "0123456789.") != "" {
		if _, err := idna.Lookup.ToASCII(host); err != nil {
			return nil, fetcherrors.New(fetcherrors.ErrInvalidKey, fmt.Sprintf("invalid host %q", host), err)
		}
	}

	return u, nil
}
