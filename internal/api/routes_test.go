package api

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gorillaws "github.com/gorilla/websocket"

	"tradejournal/internal/websocket"
	"tradejournal/pkg/utils"
)

const routesTestJWTSecret = "routes-test-jwt-secret"

func newTestRouter(t *testing.T) (*httptest.Server, *websocket.Hub) {
	t.Helper()

	logger := utils.InitLogger(utils.LogConfig{Level: "error"})
	hub := websocket.NewHub(logger)
	go hub.Run()

	router := SetupRoutes(&Dependencies{
		Hub:                hub,
		Logger:             logger,
		JWTSecret:          routesTestJWTSecret,
		WorkerSecret:       "routes-test-worker-secret",
		RateLimitPerMinute: 60,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		hub.Stop()
	})
	return srv, hub
}

func signToken(t *testing.T, userID string) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(routesTestJWTSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

// Upgrade на /ws/status должен проходить через весь middleware стек,
// включая logging wrapper вокруг ResponseWriter.
func TestStatusWebSocketUpgradeThroughMiddleware(t *testing.T) {
	srv, hub := newTestRouter(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/status?token=" + signToken(t, "1")
	conn, resp, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("websocket dial failed (status %d): %v", status, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client was not registered in hub")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStatusWebSocketRejectsMissingToken(t *testing.T) {
	srv, _ := newTestRouter(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/status"
	conn, resp, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		conn.Close()
		t.Fatal("expected handshake to fail without token")
	}
	if resp == nil || resp.StatusCode != 401 {
		t.Fatalf("expected status 401, got %+v", resp)
	}
}
