package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"os"
)

type contextKey string

const userIDContextKey contextKey = "user_id"

// UserIDFromContext возвращает ID пользователя, добавленный в context
// middleware Auth. Возвращает пустую строку, если запрос не авторизован.
func UserIDFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(userIDContextKey).(string)
	return userID
}

// ContextWithUserID добавляет ID пользователя в context, используется
// middleware Auth и тестами handlers, которым нужно сымитировать
// авторизованный запрос без прохождения через middleware.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// debugUsername и debugPassword для защиты debug endpoints.
// Загружаются из переменных окружения DEBUG_USERNAME и DEBUG_PASSWORD.
// Если не установлены, debug endpoints будут недоступны в production.
var (
	debugUsername = os.Getenv("DEBUG_USERNAME")
	debugPassword = os.Getenv("DEBUG_PASSWORD")
)

// DebugAuth - middleware для защиты debug/pprof endpoints
//
// Назначение:
// Защищает debug endpoints (/debug/pprof/*, /debug/runtime) от неавторизованного доступа.
// Использует HTTP Basic Authentication для простоты.
//
// Конфигурация:
// - DEBUG_USERNAME: имя пользователя для доступа к debug endpoints
// - DEBUG_PASSWORD: пароль для доступа к debug endpoints
// - Если переменные не установлены: при ENV=development или пустом ENV доступ
//   открыт без проверки, иначе запрещен (403)
// - Неверные или отсутствующие Basic-credentials - 401
//
// Безопасность:
// - Использует constant-time сравнение для предотвращения timing attacks
// - В production ОБЯЗАТЕЛЬНО установить DEBUG_USERNAME и DEBUG_PASSWORD
// - Рекомендуется использовать сложные пароли
//
// Использование:
//
//	debug := router.PathPrefix("/debug").Subrouter()
//	debug.Use(middleware.DebugAuth)
func DebugAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Если credentials не настроены, запрещаем доступ в production
		if debugUsername == "" || debugPassword == "" {
			// В development (если явно не настроено) разрешаем доступ
			if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, "Debug endpoints disabled. Set DEBUG_USERNAME and DEBUG_PASSWORD.", http.StatusForbidden)
			return
		}

		// Получаем credentials из запроса
		user, pass, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="Debug endpoints"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		// Constant-time сравнение для предотвращения timing attacks
		userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(debugUsername)) == 1
		passMatch := subtle.ConstantTimeCompare([]byte(pass), []byte(debugPassword)) == 1

		if !userMatch || !passMatch {
			w.Header().Set("WWW-Authenticate", `Basic realm="Debug endpoints"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Auth - middleware для аутентификации и авторизации запросов
//
// Назначение:
// Защищает API endpoints от запросов без идентификатора пользователя.
// Берет user_id из заголовка X-User-ID и добавляет его в context запроса.
//
// Функции:
// - Чтение user_id из заголовка X-User-ID
// - Добавление user_id в request context для использования в handlers
// - Возврат 401 Unauthorized, если заголовок отсутствует или пуст
//
// JWT-токены, их подпись и срок действия не проверяются; rate limiting
// здесь не выполняется.
//
// Примечание:
// В первой версии проекта (один пользователь) может быть упрощенная версия
// с базовой проверкой пароля или без auth вообще (для локального развертывания)
func Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// TODO: заменить на валидацию JWT (подпись, exp, claims) когда
		// появится полноценная авторизация. Пока user_id берется из
		// заголовка, выставляемого reverse-proxy/API gateway после логина.
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), userID)))
	})
}

// OptionalAuth - опциональная аутентификация
//
// Назначение:
// Пропускает запрос дальше без проверки: токен не извлекается и не
// валидируется, user_id в context не добавляется. Для endpoints, которые могут работать как для авторизованных,
// так и для неавторизованных пользователей.
func OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// TODO:
		// 1. Попытаться извлечь токен из заголовка
		// 2. Если токен есть - валидировать и добавить в context
		// 3. Если токена нет или невалидный - продолжить без auth
		// 4. Передать управление следующему handler

		next.ServeHTTP(w, r)
	})
}
