package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Config параметры повторных попыток
//
// Задержка растет экспоненциально:
// delay = min(InitialDelay * Multiplier^attempt, MaxDelay) +/- jitter
//
// Jitter разносит повторы по времени, чтобы все воркеры
// не ломились к мосту или шлюзу в одну и ту же секунду
type Config struct {
	// MaxRetries - сколько всего попыток (включая первую).
	// 0 или меньше = без ограничения
	MaxRetries int

	// InitialDelay - задержка перед второй попыткой
	InitialDelay time.Duration

	// MaxDelay - потолок задержки
	MaxDelay time.Duration

	// Multiplier - во сколько раз растет задержка после каждой неудачи
	Multiplier float64

	// JitterFactor - доля случайного разброса задержки (0.0 - 1.0)
	JitterFactor float64

	// RetryIf - решает, имеет ли смысл повторять после данной ошибки.
	// nil = используется IsRetryable (PermanentError не повторяется)
	RetryIf func(error) bool

	// OnRetry - вызывается перед каждым повтором, удобно для логирования
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig базовые параметры для HTTP запросов внутри датацентра
//
// 4 попытки: 100ms, 200ms, 400ms между ними
func DefaultConfig() Config {
	return Config{
		MaxRetries:   4,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// NetworkConfig параметры для запросов через интернет
// (мост терминала, шлюз синхронизации)
//
// Задержки длиннее: 1s, 2s, 4s - сетевые сбои обычно
// не проходят за миллисекунды
func NetworkConfig() Config {
	return Config{
		MaxRetries:   4,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.2,
	}
}

func (c *Config) validate() {
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.JitterFactor < 0 {
		c.JitterFactor = 0
	}
	if c.JitterFactor > 1 {
		c.JitterFactor = 1
	}
	if c.RetryIf == nil {
		c.RetryIf = IsRetryable
	}
}

// backoff задержка перед попыткой attempt+1
func (c *Config) backoff(attempt int) time.Duration {
	delay := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))
	if delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}
	if c.JitterFactor > 0 {
		delay += delay * c.JitterFactor * (rand.Float64()*2 - 1)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Do выполняет operation, повторяя при временных ошибках
//
// Возвращает nil при успехе, иначе последнюю ошибку.
// Отмена контекста прерывает ожидание между попытками
//
// Пример:
//
//	err := retry.Do(ctx, func() error {
//	    return bridge.Connect(ctx, login, password, server)
//	}, retry.NetworkConfig())
func Do(ctx context.Context, operation func() error, cfg Config) error {
	cfg.validate()

	var lastErr error

	for attempt := 0; cfg.MaxRetries <= 0 || attempt < cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return lastErr
			}
			return ctx.Err()
		default:
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if !cfg.RetryIf(err) {
			return err
		}
		if cfg.MaxRetries > 0 && attempt >= cfg.MaxRetries-1 {
			break
		}

		delay := cfg.backoff(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, delay)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return lastErr
		}
	}

	return lastErr
}

// RetryableError ошибка, которая сама знает, стоит ли ее повторять
type RetryableError interface {
	error
	Retryable() bool
}

// IsRetryable фильтр ошибок по умолчанию
//
// Смотрит на Retryable() и Temporary() в цепочке ошибок.
// Неизвестные ошибки считаются временными: лишний повтор
// дешевле, чем пропущенный цикл синхронизации
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var retryable RetryableError
	if errors.As(err, &retryable) {
		return retryable.Retryable()
	}

	type temporary interface {
		Temporary() bool
	}
	var temp temporary
	if errors.As(err, &temp) {
		return temp.Temporary()
	}

	return true
}

// PermanentError ошибка, после которой повторять бессмысленно:
// отклоненный логин, невалидный запрос, ответ 4xx
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

func (e *PermanentError) Retryable() bool {
	return false
}

// Permanent помечает ошибку как окончательную
//
// Do вернет ее сразу, без дальнейших попыток:
//
//	if resp.StatusCode == http.StatusUnauthorized {
//	    return retry.Permanent(ErrLoginFailed)
//	}
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}
