package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradejournal/internal/api/handlers"
	"tradejournal/internal/api/middleware"
	"tradejournal/internal/service"
	"tradejournal/internal/websocket"
	"tradejournal/pkg/utils"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	AccountService *service.AccountService
	Hub            *websocket.Hub
	Logger         *utils.Logger

	// Секреты аутентификации
	JWTSecret        string
	WorkerSecret     string
	WorkerSecretHash string

	// Лимит пользовательского API, запросов в минуту с одного IP
	RateLimitPerMinute int
}

// SetupRoutes настраивает все HTTP маршруты gateway
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── /mt5/account            (JWT)
//	│   ├── POST /         - привязать счет / обновить учетные данные
//	│   ├── GET /          - получить счет
//	│   ├── DELETE /       - отвязать счет
//	│   ├── POST /toggle   - включить/выключить синхронизацию
//	│   └── GET /status    - сводка по синхронизации
//	├── /sync/accounts          (секрет worker'а)
//	│   ├── GET /due       - счета к синхронизации (с паролями)
//	│   └── POST /status   - отчет о цикле
//	└── /sync/trades            (секрет worker'а)
//	    └── POST /         - идемпотентная запись реконсилированных сделок
//
// /ws/status - WebSocket со статусами синхронизации (JWT в query)
// /health    - liveness
// /metrics   - Prometheus
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
// 4. RateLimit + JWTAuth (пользовательское API) / WorkerAuth (sync API)
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.Recovery(deps.Logger))
	router.Use(middleware.Logging(deps.Logger))
	router.Use(middleware.CORS)

	accountHandler := handlers.NewAccountHandler(deps.AccountService)
	syncHandler := handlers.NewSyncHandler(deps.AccountService)

	// Пользовательское API: JWT + rate limit
	account := router.PathPrefix("/api/v1/mt5/account").Subrouter()
	account.Use(middleware.RateLimit(deps.RateLimitPerMinute))
	account.Use(middleware.JWTAuth(deps.JWTSecret))
	account.HandleFunc("", accountHandler.SaveAccount).Methods("POST")
	account.HandleFunc("", accountHandler.GetAccount).Methods("GET")
	account.HandleFunc("", accountHandler.DeleteAccount).Methods("DELETE")
	account.HandleFunc("/toggle", accountHandler.ToggleAccount).Methods("POST")
	account.HandleFunc("/status", accountHandler.GetStatus).Methods("GET")

	// Внутреннее API worker'а: общий секрет
	sync := router.PathPrefix("/api/v1/sync/accounts").Subrouter()
	sync.Use(middleware.WorkerAuth(deps.WorkerSecret, deps.WorkerSecretHash))
	sync.HandleFunc("/due", syncHandler.GetDueAccounts).Methods("GET")
	sync.HandleFunc("/status", syncHandler.ReportStatus).Methods("POST")

	trades := router.PathPrefix("/api/v1/sync/trades").Subrouter()
	trades.Use(middleware.WorkerAuth(deps.WorkerSecret, deps.WorkerSecretHash))
	trades.HandleFunc("", syncHandler.PushTrades).Methods("POST")

	// WebSocket со статусами: браузер не умеет ставить Authorization
	// заголовок на ws-соединение, токен приходит в query
	if deps.Hub != nil {
		router.HandleFunc("/ws/status", serveStatusWS(deps.Hub, deps.JWTSecret)).Methods("GET")
	}

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return router
}

// serveStatusWS валидирует JWT из query параметра token и передает
// соединение в websocket hub
func serveStatusWS(hub *websocket.Hub, jwtSecret string) http.HandlerFunc {
	auth := middleware.JWTAuth(jwtSecret)

	return func(w http.ResponseWriter, r *http.Request) {
		if token := r.URL.Query().Get("token"); token != "" && r.Header.Get("Authorization") == "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}

		auth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := middleware.GetUserID(r)
			if !ok {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			websocket.ServeWS(hub, w, r, userID)
		})).ServeHTTP(w, r)
	}
}
