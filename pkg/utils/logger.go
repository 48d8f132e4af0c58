package utils

// logger.go - настройка структурированного логирования
//
// Назначение:
// Единая инициализация zap-логгера для gateway и sync worker'а.
// Формат (JSON для production, text для разработки) и уровень задаются
// через LoggingConfig в internal/config.
//
// Использование:
//
//	logger := utils.InitGlobalLogger(utils.LogConfig{Level: "info", Format: "json"})
//	defer logger.Sync()
//	utils.Info("worker started", utils.Component("engine"))

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig - конфигурация логгера
type LogConfig struct {
	Level       string // debug, info, warn, error, fatal
	Format      string // json или text
	Output      string // путь к файлу; пусто = stderr
	Development bool   // human-readable stack traces, DPanic паникует
}

// Logger - обёртка над zap.Logger с sugar-вариантом для форматных вызовов
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

// Глобальный логгер процесса
var (
	globalMu     sync.RWMutex
	globalLogger *Logger
)

// parseLevel преобразует строковый уровень в zapcore.Level
// Неизвестные значения дают InfoLevel
func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// InitLogger создает и настраивает logger
//
// - Выбор формата: json (production) или text (console)
// - Уровни: debug, info, warn, error, fatal
// - Output: файл или stderr (fallback на stderr при ошибке открытия файла)
func InitLogger(cfg LogConfig) *Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.Development {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
	}

	var encoder zapcore.Encoder
	if strings.ToLower(cfg.Format) == "text" {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	// Вывод: stderr, stdout или файл. "stderr"/"stdout" - имена
	// стандартных потоков, а не пути к файлам
	sink := zapcore.AddSync(os.Stderr)
	switch cfg.Output {
	case "", "stderr":
	case "stdout":
		sink = zapcore.AddSync(os.Stdout)
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			sink = zapcore.AddSync(file)
		}
		// при ошибке остаёмся на stderr - логгер не должен ронять процесс
	}

	core := zapcore.NewCore(encoder, sink, parseLevel(cfg.Level))

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	zl := zap.New(core, opts...)
	return &Logger{
		Logger: zl,
		sugar:  zl.Sugar(),
	}
}

// InitGlobalLogger инициализирует и устанавливает глобальный логгер
func InitGlobalLogger(cfg LogConfig) *Logger {
	logger := InitLogger(cfg)
	SetGlobalLogger(logger)
	return logger
}

// SetGlobalLogger устанавливает глобальный логгер
func SetGlobalLogger(logger *Logger) {
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// GetGlobalLogger возвращает глобальный логгер
// Если логгер не инициализирован, создает логгер по умолчанию
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	logger := globalLogger
	globalMu.RUnlock()

	if logger != nil {
		return logger
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = InitLogger(LogConfig{})
	}
	return globalLogger
}

// L - короткий алиас для GetGlobalLogger
func L() *Logger {
	return GetGlobalLogger()
}

// With возвращает новый логгер с дополнительными полями
func (l *Logger) With(fields ...zap.Field) *Logger {
	zl := l.Logger.With(fields...)
	return &Logger{
		Logger: zl,
		sugar:  zl.Sugar(),
	}
}

// WithComponent возвращает логгер с полем component
func (l *Logger) WithComponent(component string) *Logger {
	return l.With(zap.String("component", component))
}

// WithAccount возвращает логгер с полем account_id
func (l *Logger) WithAccount(accountID int) *Logger {
	return l.With(zap.Int("account_id", accountID))
}

// WithUser возвращает логгер с полем user_id
func (l *Logger) WithUser(userID int) *Logger {
	return l.With(zap.Int("user_id", userID))
}

// WithLogin возвращает логгер с полем login (номер счета MT5, не секрет)
func (l *Logger) WithLogin(login string) *Logger {
	return l.With(zap.String("login", login))
}

// Sugar возвращает SugaredLogger для printf-style вызовов
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// ============================================================
// Глобальные функции логирования
// ============================================================

// Debug логирует на уровне debug через глобальный логгер
func Debug(msg string, fields ...zap.Field) {
	GetGlobalLogger().Debug(msg, fields...)
}

// Info логирует на уровне info через глобальный логгер
func Info(msg string, fields ...zap.Field) {
	GetGlobalLogger().Info(msg, fields...)
}

// Warn логирует на уровне warn через глобальный логгер
func Warn(msg string, fields ...zap.Field) {
	GetGlobalLogger().Warn(msg, fields...)
}

// Error логирует на уровне error через глобальный логгер
func Error(msg string, fields ...zap.Field) {
	GetGlobalLogger().Error(msg, fields...)
}

// Fatal логирует и завершает процесс
func Fatal(msg string, fields ...zap.Field) {
	GetGlobalLogger().Fatal(msg, fields...)
}

// Debugf - printf-style debug
func Debugf(format string, args ...interface{}) {
	GetGlobalLogger().sugar.Debugf(format, args...)
}

// Infof - printf-style info
func Infof(format string, args ...interface{}) {
	GetGlobalLogger().sugar.Infof(format, args...)
}

// Warnf - printf-style warn
func Warnf(format string, args ...interface{}) {
	GetGlobalLogger().sugar.Warnf(format, args...)
}

// Errorf - printf-style error
func Errorf(format string, args ...interface{}) {
	GetGlobalLogger().sugar.Errorf(format, args...)
}

// Fatalf - printf-style fatal
func Fatalf(format string, args ...interface{}) {
	GetGlobalLogger().sugar.Fatalf(format, args...)
}

// ============================================================
// Конструкторы полей (доменные)
// ============================================================

// AccountID - поле account_id (ID записи mt5_accounts)
func AccountID(id int) zap.Field {
	return zap.Int("account_id", id)
}

// UserID - поле user_id (владелец счета)
func UserID(id int) zap.Field {
	return zap.Int("user_id", id)
}

// Ticket - поле ticket (position id в MT5)
func Ticket(ticket int64) zap.Field {
	return zap.Int64("ticket", ticket)
}

// Symbol - поле symbol (торговый инструмент)
func Symbol(symbol string) zap.Field {
	return zap.String("symbol", symbol)
}

// Login - поле login (номер счета MT5; пароль НИКОГДА не логируется)
func Login(login string) zap.Field {
	return zap.String("login", login)
}

// Server - поле server (сервер брокера)
func Server(server string) zap.Field {
	return zap.String("server", server)
}

// Price - поле price
func Price(price float64) zap.Field {
	return zap.Float64("price", price)
}

// Volume - поле volume (лоты)
func Volume(volume float64) zap.Field {
	return zap.Float64("volume", volume)
}

// Profit - поле profit
func Profit(profit float64) zap.Field {
	return zap.Float64("profit", profit)
}

// Side - поле side (buy/sell)
func Side(side string) zap.Field {
	return zap.String("side", side)
}

// State - поле state (состояние цикла синхронизации)
func State(state string) zap.Field {
	return zap.String("state", state)
}

// Status - поле status (success/error/pending)
func Status(status string) zap.Field {
	return zap.String("status", status)
}

// Trades - поле trades (количество синхронизированных сделок)
func Trades(n int) zap.Field {
	return zap.Int("trades", n)
}

// Latency - поле latency_ms
func Latency(ms float64) zap.Field {
	return zap.Float64("latency_ms", ms)
}

// RequestID - поле request_id
func RequestID(id string) zap.Field {
	return zap.String("request_id", id)
}

// Component - поле component
func Component(component string) zap.Field {
	return zap.String("component", component)
}

// ============================================================
// Переэкспорт стандартных конструкторов zap
// ============================================================

var (
	String   = zap.String
	Int      = zap.Int
	Int64    = zap.Int64
	Float64  = zap.Float64
	Bool     = zap.Bool
	Err      = zap.Error
	Any      = zap.Any
	Duration = zap.Duration
	Time     = zap.Time
)
