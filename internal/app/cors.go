package app

import (
	"net/url"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/yapper-space/core/internal/modules/twitter"
)

// corsConfig allows the browser extension and the web frontend. With no
// allowed_origins configured, or in development, every origin is accepted.
func corsConfig(allowed []string, dev bool) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", twitter.HeaderToken},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
	}
	if len(allowed) == 0 || dev {
		cfg.AllowOriginFunc = func(string) bool { return true }
		return cfg
	}
	patterns := allowed
	cfg.AllowOriginFunc = func(origin string) bool {
		host := originHost(origin)
		for _, p := range patterns {
			if p == "*" || p == origin || matchOriginPattern(p, host) {
				return true
			}
		}
		return false
	}
	return cfg
}

// originHost returns host[:port] of an origin, or the extension id for
// chrome-extension:// origins.
func originHost(origin string) string {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return origin
	}
	return u.Host
}

// matchOriginPattern supports exact hosts, "*.example.com" and "localhost:*".
func matchOriginPattern(pattern, host string) bool {
	switch {
	case pattern == host:
		return true
	case strings.HasPrefix(pattern, "*."):
		return strings.HasSuffix(host, pattern[1:])
	case strings.HasSuffix(pattern, ":*"):
		return strings.HasPrefix(host, pattern[:len(pattern)-1])
	}
	return false
}
