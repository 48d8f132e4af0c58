package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"

	"tradejournal/internal/api/middleware"
	"tradejournal/internal/service"
	"tradejournal/pkg/utils"
)

const (
	testJWTSecret     = "test-jwt-secret-0123456789abcdef0123"
	testEncryptionKey = "test-encryption-key-0123456789ab"
)

func newTestService() *service.AccountService {
	logger := utils.InitLogger(utils.LogConfig{Level: "error", Format: "text"})
	return service.NewAccountService(newMemAccountRepo(), newMemTradeRepo(), testEncryptionKey, logger)
}

// accountRouter собирает маршруты счета за JWT middleware,
// как в боевом SetupRoutes
func accountRouter(svc *service.AccountService) *mux.Router {
	handler := NewAccountHandler(svc)

	router := mux.NewRouter()
	sub := router.PathPrefix("/api/v1/mt5/account").Subrouter()
	sub.Use(middleware.JWTAuth(testJWTSecret))
	sub.HandleFunc("", handler.SaveAccount).Methods("POST")
	sub.HandleFunc("", handler.GetAccount).Methods("GET")
	sub.HandleFunc("", handler.DeleteAccount).Methods("DELETE")
	sub.HandleFunc("/toggle", handler.ToggleAccount).Methods("POST")
	sub.HandleFunc("/status", handler.GetStatus).Methods("GET")
	return router
}

func userToken(t *testing.T, userID int) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": strconv.Itoa(userID),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func authedRequest(t *testing.T, method, url, body string, userID int) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, url, bytes.NewBufferString(body))
	req.Header.Set("Authorization", "Bearer "+userToken(t, userID))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestSaveAccountEndpoint(t *testing.T) {
	router := accountRouter(newTestService())

	body := `{"mt5_login":"1001234","mt5_password":"secret","mt5_server":"Broker-Demo","sync_interval_minutes":5}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(t, "POST", "/api/v1/mt5/account", body, 7))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if resp["mt5_login"] != "1001234" {
		t.Errorf("mt5_login = %v, want 1001234", resp["mt5_login"])
	}
	if resp["last_sync_status"] != "pending" {
		t.Errorf("last_sync_status = %v, want pending", resp["last_sync_status"])
	}
	// Зашифрованный пароль не должен попадать в JSON
	if _, exists := resp["mt5_password_encrypted"]; exists {
		t.Error("encrypted password leaked into the response")
	}
}

func TestSaveAccountEndpointValidation(t *testing.T) {
	router := accountRouter(newTestService())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(t, "POST", "/api/v1/mt5/account",
		`{"mt5_password":"secret","mt5_server":"Broker-Demo"}`, 7))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if resp.Code != "validation_error" {
		t.Errorf("code = %q, want validation_error", resp.Code)
	}
}

func TestAccountEndpointUnauthorized(t *testing.T) {
	router := accountRouter(newTestService())

	tests := []struct {
		name  string
		setup func(req *http.Request)
	}{
		{"no token", func(req *http.Request) {}},
		{"malformed header", func(req *http.Request) {
			req.Header.Set("Authorization", "Token abc")
		}},
		{"garbage token", func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer not.a.jwt")
		}},
		{"wrong signing key", func(req *http.Request) {
			token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
				"sub": "7",
				"exp": time.Now().Add(time.Hour).Unix(),
			})
			signed, _ := token.SignedString([]byte("some-other-secret-0123456789abcdef"))
			req.Header.Set("Authorization", "Bearer "+signed)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/mt5/account", nil)
			tt.setup(req)

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestGetAccountNotFound(t *testing.T) {
	router := accountRouter(newTestService())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(t, "GET", "/api/v1/mt5/account", "", 7))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestToggleAccountEndpoint(t *testing.T) {
	svc := newTestService()
	router := accountRouter(svc)

	body := `{"mt5_login":"1001234","mt5_password":"secret","mt5_server":"Broker-Demo"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(t, "POST", "/api/v1/mt5/account", body, 7))
	if rec.Code != http.StatusOK {
		t.Fatalf("setup failed: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(t, "POST", "/api/v1/mt5/account/toggle", "", 7))
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle status = %d, want 200", rec.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if resp["is_active"] != false {
		t.Errorf("is_active = %v, want false after first toggle", resp["is_active"])
	}
}

func TestGetStatusEndpoint(t *testing.T) {
	svc := newTestService()
	router := accountRouter(svc)

	// Без счета: connected=false, но не 404
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(t, "GET", "/api/v1/mt5/account/status", "", 7))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp service.AccountStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if resp.Connected {
		t.Error("Connected = true, want false without an account")
	}
}

func TestDeleteAccountEndpoint(t *testing.T) {
	svc := newTestService()
	router := accountRouter(svc)

	body := `{"mt5_login":"1001234","mt5_password":"secret","mt5_server":"Broker-Demo"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(t, "POST", "/api/v1/mt5/account", body, 7))
	if rec.Code != http.StatusOK {
		t.Fatalf("setup failed: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(t, "DELETE", "/api/v1/mt5/account", "", 7))
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(t, "GET", "/api/v1/mt5/account", "", 7))
	if rec.Code != http.StatusNotFound {
		t.Errorf("account should be gone, got status %d", rec.Code)
	}
}
