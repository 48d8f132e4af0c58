package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

// userIDKey - ключ для user_id в context запроса
const userIDKey contextKey = "user_id"

// JWTAuth - middleware для аутентификации пользовательских запросов
//
// Назначение:
// Проверяет JWT токен из заголовка Authorization: Bearer <token>.
// Валидирует подпись (HMAC) и срок действия токена.
// Извлекает идентификатор пользователя и кладет его в context запроса,
// откуда его достают handlers через GetUserID.
//
// Токены выдает внешний auth-сервис; здесь они только проверяются.
func JWTAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"error":"missing authorization header"}`, http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				http.Error(w, `{"error":"authorization header must be 'Bearer <token>'"}`, http.StatusUnauthorized)
				return
			}

			token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
				return
			}

			userID, err := extractUserID(token)
			if err != nil {
				http.Error(w, `{"error":"token does not identify a user"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractUserID достает идентификатор пользователя из claims.
// Auth-сервис кладет его в sub; числовой user_id тоже принимается.
func extractUserID(token *jwt.Token) (int, error) {
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, fmt.Errorf("unexpected claims type")
	}

	if sub, ok := claims["sub"].(string); ok {
		id, err := strconv.Atoi(sub)
		if err != nil {
			return 0, fmt.Errorf("sub claim is not a user id: %q", sub)
		}
		return id, nil
	}

	// JSON числа приходят как float64
	if raw, ok := claims["user_id"].(float64); ok {
		return int(raw), nil
	}
	if raw, ok := claims["sub"].(float64); ok {
		return int(raw), nil
	}

	return 0, fmt.Errorf("no user id claim")
}

// GetUserID возвращает идентификатор пользователя из context запроса.
// Второе значение false означает, что запрос не прошел через JWTAuth.
func GetUserID(r *http.Request) (int, bool) {
	id, ok := r.Context().Value(userIDKey).(int)
	return id, ok
}
