package webserver

import (
	"fmt"

	"github.com/citadelhq/citadel/config"
)

// CorsPolicy holds the origin allowlist. In production an empty allowlist
// denies every cross-origin request; in development it falls back to
// localhost variants of the listen port.
type CorsPolicy struct {
	allowed    map[string]struct{}
	production bool
}

func NewCorsPolicy(cfg config.WebConfig) *CorsPolicy {
	p := &CorsPolicy{
		allowed:    map[string]struct{}{},
		production: cfg.Production,
	}

	origins := cfg.SplitOrigins()
	if len(origins) == 0 && !cfg.Production {
		origins = []string{
			fmt.Sprintf("http://localhost:%d", cfg.Port),
			fmt.Sprintf("http://127.0.0.1:%d", cfg.Port),
		}
	}
	for _, origin := range origins {
		p.allowed[origin] = struct{}{}
	}
	return p
}

// OriginAllowed reports whether the origin is on the allowlist. The wildcard
// entry is honored only outside production.
func (p *CorsPolicy) OriginAllowed(origin string) bool {
	if origin == "" {
		return false
	}
	if _, ok := p.allowed["*"]; ok {
		return !p.production
	}
	_, ok := p.allowed[origin]
	return ok
}

// Headers returns the CORS response headers for the origin. The origin is
// echoed back only when allowed.
func (p *CorsPolicy) Headers(origin string) map[string]string {
	headers := map[string]string{
		"Access-Control-Allow-Methods": "GET, POST, PUT, DELETE, OPTIONS",
		"Access-Control-Allow-Headers": "Content-Type, Authorization, X-Requested-With",
		"Access-Control-Max-Age":       "86400",
	}
	if p.OriginAllowed(origin) {
		headers["Access-Control-Allow-Origin"] = origin
		headers["Access-Control-Allow-Credentials"] = "true"
	}
	return headers
}
