package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config содержит всю конфигурацию приложения
// Один Load() обслуживает оба процесса: gateway (cmd/server) и
// sync worker (cmd/worker); специфичные для процесса требования
// проверяются через ValidateGateway()/ValidateWorker()
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Security SecurityConfig
	Worker   WorkerConfig
	Logging  LoggingConfig
}

// ServerConfig - настройки HTTP сервера gateway
type ServerConfig struct {
	Port     int
	Host     string
	UseHTTPS bool
	CertFile string
	KeyFile  string

	// Rate limiting для пользовательского API (запросов в минуту с одного IP)
	RateLimitPerMinute int
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	// Ключевая фраза для шифрования паролей MT5 (Fernet-совместимый формат).
	// Должна совпадать у gateway и worker'а - это контракт на уровне байтов.
	EncryptionKey string

	// Секрет для валидации JWT токенов пользователей (выдаёт auth-сервис)
	JWTSecret string

	// Общий секрет для внутренних endpoint'ов worker'а.
	// Gateway может хранить вместо него bcrypt-хеш (WorkerSecretHash),
	// тогда сам секрет известен только worker'у.
	WorkerSecret     string
	WorkerSecretHash string
}

// WorkerConfig - настройки sync worker'а
type WorkerConfig struct {
	// URL gateway API (pull due accounts / push status)
	GatewayURL string

	// Адрес локального MT5 bridge (терминал на VPS)
	BridgeURL string

	// Интервал между циклами синхронизации
	CycleInterval time.Duration

	// Глубина первой выборки истории, если watermark отсутствует
	HistoryLookback time.Duration

	// Таймауты операций с терминалом
	LoginTimeout time.Duration
	FetchTimeout time.Duration

	// Таймаут HTTP запросов к gateway
	GatewayTimeout time.Duration

	// Пауза между счетами внутри цикла (терминал не любит быстрые relogin'ы)
	AccountDelay time.Duration

	// Порт для /metrics worker'а (0 = метрики не поднимаются)
	MetricsPort int
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnvAsInt("SERVER_PORT", 8080),
			Host:               getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS:           getEnvAsBool("USE_HTTPS", false),
			CertFile:           getEnv("CERT_FILE", ""),
			KeyFile:            getEnv("KEY_FILE", ""),
			RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 60),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "tradejournal"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Security: SecurityConfig{
			EncryptionKey:    getEnv("ENCRYPTION_KEY", ""),
			JWTSecret:        getEnv("JWT_SECRET", ""),
			WorkerSecret:     getEnv("WORKER_SECRET", ""),
			WorkerSecretHash: getEnv("WORKER_SECRET_HASH", ""),
		},
		Worker: WorkerConfig{
			GatewayURL:      getEnv("GATEWAY_URL", "http://localhost:8080"),
			BridgeURL:       getEnv("MT5_BRIDGE_URL", "http://127.0.0.1:8090"),
			CycleInterval:   getEnvAsDuration("SYNC_CYCLE_INTERVAL", 60*time.Second),
			HistoryLookback: getEnvAsDuration("HISTORY_LOOKBACK", 365*24*time.Hour),
			LoginTimeout:    getEnvAsDuration("LOGIN_TIMEOUT", 30*time.Second),
			FetchTimeout:    getEnvAsDuration("FETCH_TIMEOUT", 60*time.Second),
			GatewayTimeout:  getEnvAsDuration("GATEWAY_TIMEOUT", 30*time.Second),
			AccountDelay:    getEnvAsDuration("ACCOUNT_DELAY", 2*time.Second),
			MetricsPort:     getEnvAsInt("WORKER_METRICS_PORT", 9091),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Валидация общих критичных параметров
	if err := cfg.validateCommon(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateCommon проверяет параметры, нужные обоим процессам
func (c *Config) validateCommon() error {
	// ENCRYPTION_KEY обязателен: без него нельзя ни зашифровать пароль
	// при регистрации счета, ни расшифровать его для терминала
	if c.Security.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required for encrypting MT5 credentials")
	}

	if len(c.Security.EncryptionKey) < 16 {
		return fmt.Errorf("ENCRYPTION_KEY must be at least 16 characters, got %d", len(c.Security.EncryptionKey))
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	return nil
}

// ValidateGateway проверяет параметры, обязательные для cmd/server
func (c *Config) ValidateGateway() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.RateLimitPerMinute < 1 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive, got %d", c.Server.RateLimitPerMinute)
	}

	// JWT_SECRET обязателен и не должен быть default значением
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required for authenticating account endpoints")
	}

	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters for security")
	}

	// Gateway принимает либо сам секрет, либо его bcrypt-хеш
	if c.Security.WorkerSecret == "" && c.Security.WorkerSecretHash == "" {
		return fmt.Errorf("WORKER_SECRET or WORKER_SECRET_HASH is required for the sync endpoints")
	}

	return nil
}

// ValidateWorker проверяет параметры, обязательные для cmd/worker
func (c *Config) ValidateWorker() error {
	// Worker шлёт секрет в заголовке - хеша недостаточно
	if c.Security.WorkerSecret == "" {
		return fmt.Errorf("WORKER_SECRET is required for authenticating against the gateway")
	}

	if c.Worker.GatewayURL == "" {
		return fmt.Errorf("GATEWAY_URL is required")
	}

	if c.Worker.BridgeURL == "" {
		return fmt.Errorf("MT5_BRIDGE_URL is required")
	}

	if c.Worker.CycleInterval <= 0 {
		return fmt.Errorf("SYNC_CYCLE_INTERVAL must be positive, got %v", c.Worker.CycleInterval)
	}

	if c.Worker.LoginTimeout <= 0 {
		return fmt.Errorf("LOGIN_TIMEOUT must be positive, got %v", c.Worker.LoginTimeout)
	}

	if c.Worker.FetchTimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive, got %v", c.Worker.FetchTimeout)
	}

	if c.Worker.HistoryLookback <= 0 {
		return fmt.Errorf("HISTORY_LOOKBACK must be positive, got %v", c.Worker.HistoryLookback)
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
