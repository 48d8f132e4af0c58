package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"tradejournal/internal/api/middleware"
	"tradejournal/internal/service"
	"tradejournal/pkg/crypto"
)

const testWorkerSecret = "worker-shared-secret"

func syncRouter(svc *service.AccountService) *mux.Router {
	handler := NewSyncHandler(svc)

	router := mux.NewRouter()
	sub := router.PathPrefix("/api/v1/sync/accounts").Subrouter()
	sub.Use(middleware.WorkerAuth(testWorkerSecret, ""))
	sub.HandleFunc("/due", handler.GetDueAccounts).Methods("GET")
	sub.HandleFunc("/status", handler.ReportStatus).Methods("POST")

	trades := router.PathPrefix("/api/v1/sync/trades").Subrouter()
	trades.Use(middleware.WorkerAuth(testWorkerSecret, ""))
	trades.HandleFunc("", handler.PushTrades).Methods("POST")
	return router
}

func workerRequest(method, url, body string) *http.Request {
	req := httptest.NewRequest(method, url, bytes.NewBufferString(body))
	req.Header.Set(middleware.WorkerSecretHeader, testWorkerSecret)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func seedAccount(t *testing.T, svc *service.AccountService, userID int) {
	t.Helper()
	_, err := svc.SaveAccount(userID, &service.SaveAccountRequest{
		Login:    "1001234",
		Password: "terminal-pass",
		Server:   "Broker-Demo",
	})
	if err != nil {
		t.Fatalf("failed to seed account: %v", err)
	}
}

func TestGetDueAccountsEndpoint(t *testing.T) {
	svc := newTestService()
	seedAccount(t, svc, 7)
	router := syncRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, workerRequest("GET", "/api/v1/sync/accounts/due", ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}

	var resp DueAccountsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if resp.Count != 1 || len(resp.Accounts) != 1 {
		t.Fatalf("count = %d, accounts = %d, want 1/1", resp.Count, len(resp.Accounts))
	}

	// Worker получает расшифрованный пароль
	if resp.Accounts[0].Password != "terminal-pass" {
		t.Errorf("password = %q, want decrypted terminal-pass", resp.Accounts[0].Password)
	}
}

func TestSyncEndpointsUnauthorized(t *testing.T) {
	svc := newTestService()
	seedAccount(t, svc, 7)
	router := syncRouter(svc)

	tests := []struct {
		name   string
		secret string
	}{
		{"missing secret", ""},
		{"wrong secret", "guessed-secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/sync/accounts/due", nil)
			if tt.secret != "" {
				req.Header.Set(middleware.WorkerSecretHeader, tt.secret)
			}

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
			// Никаких данных счета при неверном секрете
			if strings.Contains(rec.Body.String(), "terminal-pass") ||
				strings.Contains(rec.Body.String(), "1001234") {
				t.Error("account data leaked on unauthorized request")
			}
		})
	}
}

func TestWorkerAuthWithHash(t *testing.T) {
	hash, err := crypto.HashSecret(testWorkerSecret)
	if err != nil {
		t.Fatalf("HashSecret() failed: %v", err)
	}

	svc := newTestService()
	handler := NewSyncHandler(svc)
	router := mux.NewRouter()
	sub := router.PathPrefix("/api/v1/sync/accounts").Subrouter()
	// Gateway знает только bcrypt-хеш секрета
	sub.Use(middleware.WorkerAuth("", hash))
	sub.HandleFunc("/due", handler.GetDueAccounts).Methods("GET")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, workerRequest("GET", "/api/v1/sync/accounts/due", ""))
	if rec.Code != http.StatusOK {
		t.Errorf("status with correct secret = %d, want 200", rec.Code)
	}

	req := httptest.NewRequest("GET", "/api/v1/sync/accounts/due", nil)
	req.Header.Set(middleware.WorkerSecretHeader, "wrong")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status with wrong secret = %d, want 401", rec.Code)
	}
}

func TestReportStatusEndpoint(t *testing.T) {
	svc := newTestService()
	seedAccount(t, svc, 7)
	router := syncRouter(svc)

	body := `{"account_id":1,"status":"success","message":"Successfully synced 3 trades","last_trade_time":"2026-03-15T12:00:00Z"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, workerRequest("POST", "/api/v1/sync/accounts/status", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}

	account, err := svc.GetAccount(7)
	if err != nil {
		t.Fatalf("GetAccount() failed: %v", err)
	}
	if account.LastSyncStatus != "success" {
		t.Errorf("LastSyncStatus = %q, want success", account.LastSyncStatus)
	}
	if account.LastSyncMessage != "Successfully synced 3 trades" {
		t.Errorf("LastSyncMessage = %q", account.LastSyncMessage)
	}
	if account.LastTradeTime == nil {
		t.Error("LastTradeTime watermark was not recorded")
	}
}

func TestPushTradesEndpointIdempotent(t *testing.T) {
	svc := newTestService()
	seedAccount(t, svc, 7)
	router := syncRouter(svc)

	body := `{
		"user_id": 7,
		"closed": [
			{"mt5_ticket":"42","symbol":"EURUSD","trade_type":"buy","volume":1.0,"open_price":100,"close_price":110,"profit":500,"commission":-5,"swap":-1,"net_profit":494,"is_closed":true}
		],
		"open": []
	}`

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, workerRequest("POST", "/api/v1/sync/trades", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}

	var resp PushTradesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if resp.Inserted != 1 {
		t.Errorf("inserted = %d, want 1", resp.Inserted)
	}

	// Повторная отправка того же тикета - ноль новых строк
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, workerRequest("POST", "/api/v1/sync/trades", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("second push status = %d, want 200", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if resp.Inserted != 0 {
		t.Errorf("second push inserted = %d, want 0", resp.Inserted)
	}
}

func TestReportStatusEndpointValidation(t *testing.T) {
	svc := newTestService()
	seedAccount(t, svc, 7)
	router := syncRouter(svc)

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"invalid json", `{broken`, http.StatusBadRequest},
		{"missing account id", `{"status":"success"}`, http.StatusBadRequest},
		{"bad status value", `{"account_id":1,"status":"running"}`, http.StatusBadRequest},
		{"unknown account", `{"account_id":999,"status":"success"}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, workerRequest("POST", "/api/v1/sync/accounts/status", tt.body))
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d; body: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
		})
	}
}
