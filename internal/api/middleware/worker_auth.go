package middleware

import (
	"crypto/subtle"
	"net/http"

	"tradejournal/pkg/crypto"
)

// WorkerSecretHeader - заголовок, которым sync worker авторизуется
// на внутренних endpoint'ах
const WorkerSecretHeader = "X-Worker-Secret"

// WorkerAuth - middleware для внутренних endpoint'ов синхронизации
//
// Назначение:
// Защищает /accounts/due и /accounts/status от любых запросов, кроме
// запросов sync worker'а. Через эти endpoint'ы ходят расшифрованные
// пароли терминала, поэтому при неверном секрете не возвращается
// ничего, кроме 401.
//
// Конфигурация:
//   - secret: общий секрет, сравнивается constant-time
//   - secretHash: bcrypt-хеш секрета; если задан, используется вместо
//     secret, и сам секрет gateway'ю знать не нужно
func WorkerAuth(secret, secretHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get(WorkerSecretHeader)
			if provided == "" || !workerSecretValid(provided, secret, secretHash) {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func workerSecretValid(provided, secret, secretHash string) bool {
	if secretHash != "" {
		return crypto.CheckSecretMatch(provided, secretHash)
	}
	if secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) == 1
}
