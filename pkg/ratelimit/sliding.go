package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SlidingWindowLimiter - rate limiter HTTP-слоя: точный подсчет запросов за
// последние window секунд на ключ (userId или IP, в зависимости от маршрута),
// в отличие от Token Bucket RateLimiter выше (используется для исходящих
// REST-запросов к биржам, а не для входящего HTTP фасада).
//
// Каждый ключ хранит временные метки своих запросов за текущее окно; старые
// метки вытесняются при каждой проверке. Поверх точного окна стоит floor -
// общий golang.org/x/time/rate.Limiter, сглаживающий одновременный всплеск
// по множеству разных ключей (защита от thundering herd при старте процесса).
type SlidingWindowLimiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	entries map[string]*windowEntry

	floor *rate.Limiter
}

type windowEntry struct {
	hits []time.Time
}

// NewSlidingWindowLimiter создает лимитер, допускающий не более limit запросов
// за window на каждый ключ.
func NewSlidingWindowLimiter(limit int, window time.Duration) *SlidingWindowLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}

	return &SlidingWindowLimiter{
		limit:   limit,
		window:  window,
		entries: make(map[string]*windowEntry),
		floor:   rate.NewLimiter(rate.Limit(float64(limit)*4), limit*4),
	}
}

// Result - итог проверки запроса для одного ключа.
type Result struct {
	Allowed        bool
	Limit          int
	Remaining      int
	RetryAfterSecs int
}

// Allow проверяет, укладывается ли очередной запрос ключа в окно, и если да -
// регистрирует его. Возвращает заголовки X-RateLimit-* и, при отказе,
// Retry-After равный длине окна в секундах.
func (l *SlidingWindowLimiter) Allow(key string) Result {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		e = &windowEntry{}
		l.entries[key] = e
	}

	cutoff := now.Add(-l.window)
	kept := e.hits[:0]
	for _, t := range e.hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	e.hits = kept

	if len(e.hits) >= l.limit || !l.floor.AllowN(now, 1) {
		return Result{
			Allowed:        false,
			Limit:          l.limit,
			Remaining:      0,
			RetryAfterSecs: int(l.window.Seconds()),
		}
	}

	e.hits = append(e.hits, now)
	return Result{
		Allowed:   true,
		Limit:     l.limit,
		Remaining: l.limit - len(e.hits),
	}
}

// sweepInterval определяет, как часто удаляются ключи без недавней активности,
// чтобы карта не росла неограниченно при большом числе IP/пользователей.
const sweepInterval = 10 * time.Minute

// StartSweeper запускает фоновую очистку неактивных ключей до отмены done.
func (l *SlidingWindowLimiter) StartSweeper(done <-chan struct{}) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *SlidingWindowLimiter) sweep() {
	cutoff := time.Now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, e := range l.entries {
		stale := true
		for _, t := range e.hits {
			if t.After(cutoff) {
				stale = false
				break
			}
		}
		if stale {
			delete(l.entries, key)
		}
	}
}
