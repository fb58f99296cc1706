// Package security provides the HTTP edge middleware: CORS, per-client
// rate limiting and an optional IP whitelist.
package security

import (
	"net"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"groupchat/pkg/logger"
	"groupchat/pkg/utils"
)

// SecConfig carries the middleware knobs.
type SecConfig struct {
	AllowedOrigins []string
	RPS            float64
	Burst          int
	IPWhitelist    []string
}

type limiterPool struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	if rps <= 0 {
		rps = 50
	}
	if burst <= 0 {
		burst = int(rps) * 2
	}
	return &limiterPool{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.limiters[key]
	if !ok {
		l = rate.NewLimiter(p.rps, p.burst)
		p.limiters[key] = l
	}
	return l
}

// Middleware wraps next with the configured edge checks.
func Middleware(cfg SecConfig, next http.Handler) http.Handler {
	pool := newLimiterPool(cfg.RPS, cfg.Burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && originAllowed(origin, cfg.AllowedOrigins) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		ip := clientIP(r)
		if len(cfg.IPWhitelist) > 0 && !ipWhitelisted(ip, cfg.IPWhitelist) {
			logger.Warn("ip_rejected", "ip", ip, "path", r.URL.Path)
			utils.JSONError(w, "forbidden", http.StatusForbidden)
			return
		}
		if !pool.get(ip).Allow() {
			logger.Warn("rate_limited", "ip", ip, "path", r.URL.Path)
			utils.JSONError(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func originAllowed(origin string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func ipWhitelisted(ip string, whitelist []string) bool {
	parsed := net.ParseIP(ip)
	for _, entry := range whitelist {
		if entry == ip {
			return true
		}
		if _, cidr, err := net.ParseCIDR(entry); err == nil && parsed != nil && cidr.Contains(parsed) {
			return true
		}
	}
	return false
}
