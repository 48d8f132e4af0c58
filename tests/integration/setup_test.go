// Package integration contains integration tests for the trade journal.
//
// These tests verify the correct interaction between components:
// - API integration tests: full HTTP request cycle
// - WebSocket tests: connection, targeted status messages
// - Database tests: schema, idempotent writes, watermark
//
// Tests skip themselves when no test database is reachable.
// Run with: go test ./tests/integration/...
package integration

import (
	"database/sql"
	"fmt"
	"log"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	_ "github.com/lib/pq"

	"tradejournal/internal/api"
	"tradejournal/internal/repository"
	"tradejournal/internal/service"
	"tradejournal/internal/websocket"
	"tradejournal/pkg/utils"
)

const (
	testJWTSecret     = "integration-jwt-secret-0123456789abcdef"
	testWorkerSecret  = "integration-worker-secret"
	testEncryptionKey = "integration-encryption-key-32bb!"
)

// TestConfig contains configuration for integration tests
type TestConfig struct {
	DBDriver   string
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
}

// TestServer encapsulates all components needed for integration testing
type TestServer struct {
	DB             *sql.DB
	Server         *httptest.Server
	Hub            *websocket.Hub
	AccountRepo    *repository.AccountRepository
	TradeRepo      *repository.TradeRepository
	AccountService *service.AccountService
	Cleanup        func()
}

// getTestConfig returns configuration from environment variables or defaults
func getTestConfig() TestConfig {
	return TestConfig{
		DBDriver:   getEnv("TEST_DB_DRIVER", "postgres"),
		DBHost:     getEnv("TEST_DB_HOST", "localhost"),
		DBPort:     getEnv("TEST_DB_PORT", "5432"),
		DBName:     getEnv("TEST_DB_NAME", "tradejournal_test"),
		DBUser:     getEnv("TEST_DB_USER", "postgres"),
		DBPassword: getEnv("TEST_DB_PASSWORD", "postgres"),
		DBSSLMode:  getEnv("TEST_DB_SSLMODE", "disable"),
	}
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// SetupTestDB creates a test database connection
func SetupTestDB(t *testing.T) (*sql.DB, func()) {
	config := getTestConfig()

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		config.DBHost, config.DBPort, config.DBUser, config.DBPassword, config.DBName, config.DBSSLMode,
	)

	db, err := sql.Open(config.DBDriver, connStr)
	if err != nil {
		t.Skipf("Skipping integration test: cannot connect to database: %v", err)
		return nil, func() {}
	}

	if err := db.Ping(); err != nil {
		t.Skipf("Skipping integration test: cannot ping database: %v", err)
		return nil, func() {}
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	cleanup := func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}

	return db, cleanup
}

// SetupTestServer creates a complete test server with all components
func SetupTestServer(t *testing.T) *TestServer {
	db, dbCleanup := SetupTestDB(t)
	if db == nil {
		return nil
	}

	if err := initTestTables(db); err != nil {
		t.Skipf("Skipping integration test: cannot initialize tables: %v", err)
		return nil
	}

	logger := utils.InitLogger(utils.LogConfig{Level: "error", Format: "text"})

	hub := websocket.NewHub(logger)
	go hub.Run()

	accountRepo := repository.NewAccountRepository(db)
	tradeRepo := repository.NewTradeRepository(db)

	accountService := service.NewAccountService(accountRepo, tradeRepo, testEncryptionKey, logger)
	accountService.SetBroadcaster(hub)

	deps := &api.Dependencies{
		AccountService:     accountService,
		Hub:                hub,
		Logger:             logger,
		JWTSecret:          testJWTSecret,
		WorkerSecret:       testWorkerSecret,
		RateLimitPerMinute: 10000,
	}
	router := api.SetupRoutes(deps)

	server := httptest.NewServer(router)

	cleanup := func() {
		server.Close()
		hub.Stop()
		cleanupTestTables(db)
		dbCleanup()
	}

	return &TestServer{
		DB:             db,
		Server:         server,
		Hub:            hub,
		AccountRepo:    accountRepo,
		TradeRepo:      tradeRepo,
		AccountService: accountService,
		Cleanup:        cleanup,
	}
}

// UserToken signs a JWT for the given user, the way the auth service does
func UserToken(t *testing.T, userID int) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub": fmt.Sprintf("%d", userID),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return signed
}

// initTestTables creates tables for testing
func initTestTables(db *sql.DB) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS mt5_accounts (
			id SERIAL PRIMARY KEY,
			user_id INT UNIQUE NOT NULL,
			mt5_login VARCHAR(50) NOT NULL,
			mt5_password_encrypted TEXT NOT NULL,
			mt5_server VARCHAR(255) NOT NULL,
			is_active BOOLEAN DEFAULT true,
			sync_interval_minutes INT DEFAULT 5,
			last_sync_at TIMESTAMPTZ,
			last_sync_status VARCHAR(20) DEFAULT 'pending',
			last_sync_message TEXT DEFAULT '',
			last_trade_time TIMESTAMPTZ,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS trades (
			id SERIAL PRIMARY KEY,
			user_id INT NOT NULL,
			mt5_ticket VARCHAR(50) NOT NULL,
			source VARCHAR(20) NOT NULL DEFAULT 'mt5_auto',
			symbol VARCHAR(50) NOT NULL,
			trade_type VARCHAR(10) NOT NULL,
			volume DECIMAL(20, 8) NOT NULL,
			open_price DECIMAL(20, 8) NOT NULL,
			close_price DECIMAL(20, 8),
			stop_loss DECIMAL(20, 8),
			take_profit DECIMAL(20, 8),
			open_time TIMESTAMPTZ NOT NULL,
			close_time TIMESTAMPTZ,
			profit DECIMAL(20, 2) DEFAULT 0,
			commission DECIMAL(20, 2) DEFAULT 0,
			swap DECIMAL(20, 2) DEFAULT 0,
			net_profit DECIMAL(20, 2) DEFAULT 0,
			is_closed BOOLEAN DEFAULT false,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ DEFAULT NOW(),
			CONSTRAINT trades_user_ticket_key UNIQUE (user_id, mt5_ticket)
		)`,
	}

	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

// cleanupTestTables truncates all test tables
func cleanupTestTables(db *sql.DB) {
	tables := []string{
		"trades",
		"mt5_accounts",
	}

	for _, table := range tables {
		db.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
	}
}

// TruncateTable truncates a specific table for testing
func TruncateTable(db *sql.DB, tableName string) error {
	_, err := db.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", tableName))
	return err
}
