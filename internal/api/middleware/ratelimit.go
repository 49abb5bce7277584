package middleware

import (
	"net"
	"net/http"
	"strconv"

	"fundingarb/pkg/ratelimit"
)

// clientIP извлекает IP клиента, учитывая X-Forwarded-For при проксировании
// (reverse proxy/load balancer перед сервером).
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitByIP строит middleware, ограничивающий частоту запросов к маршруту
// ключом по IP клиента - используется для публичных (неавторизованных)
// эндпоинтов вроде /public/opportunities.
func RateLimitByIP(limiter *ratelimit.SlidingWindowLimiter) func(http.Handler) http.Handler {
	return rateLimitMiddleware(limiter, clientIP)
}

// RateLimitByUser строит middleware, ограничивающий частоту запросов ключом
// по ID пользователя из context (требует предварительного Auth) - используется
// для эндпоинтов вроде /market-data/refresh.
func RateLimitByUser(limiter *ratelimit.SlidingWindowLimiter) func(http.Handler) http.Handler {
	return rateLimitMiddleware(limiter, func(r *http.Request) string {
		if userID := UserIDFromContext(r.Context()); userID != "" {
			return userID
		}
		return clientIP(r)
	})
}

func rateLimitMiddleware(limiter *ratelimit.SlidingWindowLimiter, keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := limiter.Allow(keyFunc(r))

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))

			if !result.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfterSecs))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"success":false,"error":{"code":"RATE_LIMITED","message":"rate limit exceeded"}}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
