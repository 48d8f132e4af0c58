package terminal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"

	"tradejournal/internal/models"
	"tradejournal/pkg/retry"
	"tradejournal/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Ошибки терминала
var (
	// ErrUnavailable - bridge не отвечает или терминал не инициализирован
	ErrUnavailable = errors.New("mt5 bridge is unavailable")

	// ErrLoginFailed - терминал отверг учетные данные счета.
	// Не retry'ится: неверный пароль не исправится повтором.
	ErrLoginFailed = errors.New("mt5 login failed")
)

// Client - HTTP клиент локального MT5 bridge.
//
// Назначение:
// Терминал MT5 живет отдельным процессом на той же VPS и выставляет
// маленький HTTP API: connect/history/positions/disconnect. Терминал
// держит одну сессию за раз, поэтому worker работает со счетами строго
// последовательно.
type Client struct {
	baseURL      string
	loginClient  *http.Client
	fetchClient  *http.Client
	logger       *utils.Logger
}

// NewClient создает клиент bridge
func NewClient(baseURL string, loginTimeout, fetchTimeout time.Duration, logger *utils.Logger) *Client {
	return &Client{
		baseURL:     baseURL,
		loginClient: &http.Client{Timeout: loginTimeout},
		fetchClient: &http.Client{Timeout: fetchTimeout},
		logger:      logger.WithComponent("terminal"),
	}
}

// Probe проверяет, что bridge жив и терминал инициализирован.
// Вызывается на старте worker'а: без терминала запускаться бессмысленно.
func (c *Client) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ping", nil)
	if err != nil {
		return err
	}

	resp, err := c.loginClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: ping returned %d", ErrUnavailable, resp.StatusCode)
	}

	return nil
}

// connectRequest - тело запроса на логин в терминал
type connectRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Server   string `json:"server"`
}

type bridgeError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Connect логинится в терминал под учетными данными счета и возвращает
// сессию. Сетевые сбои retry'ятся, отказ в логине - нет.
//
// Пароль живет только в теле этого запроса к localhost и нигде
// не логируется.
func (c *Client) Connect(ctx context.Context, login, password, server string) (*Session, error) {
	body, err := json.Marshal(&connectRequest{
		Login:    login,
		Password: password,
		Server:   server,
	})
	if err != nil {
		return nil, err
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/connect", bytes.NewReader(body))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.loginClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			return nil
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			var bridgeErr bridgeError
			_ = json.NewDecoder(resp.Body).Decode(&bridgeErr)
			return retry.Permanent(fmt.Errorf("%w: %s", ErrLoginFailed, bridgeErr.Error))
		default:
			return fmt.Errorf("%w: connect returned %d", ErrUnavailable, resp.StatusCode)
		}
	}

	cfg := retry.NetworkConfig()
	cfg.MaxRetries = 2
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.logger.Warn("terminal connect retry",
			utils.Login(login),
			utils.Int("attempt", attempt),
			utils.Err(err),
		)
	}

	if err := retry.Do(ctx, operation, cfg); err != nil {
		return nil, err
	}

	c.logger.Debug("terminal session opened", utils.Login(login), utils.Server(server))
	return &Session{client: c}, nil
}

// Session - активная сессия терминала под одним счетом.
// Должна закрываться на всех путях: терминал не откроет следующую,
// пока жива эта.
type Session struct {
	client *Client
	closed bool
}

// historyRequest - тело запроса истории deal'ов
type historyRequest struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// DealsHistory возвращает deal'ы за интервал [from, to]
func (s *Session) DealsHistory(ctx context.Context, from, to time.Time) ([]models.Deal, error) {
	body, err := json.Marshal(&historyRequest{From: from, To: to})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.client.baseURL+"/history", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.fetchClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: history returned %d", ErrUnavailable, resp.StatusCode)
	}

	var deals []models.Deal
	if err := json.NewDecoder(resp.Body).Decode(&deals); err != nil {
		return nil, fmt.Errorf("failed to decode deals: %w", err)
	}

	return deals, nil
}

// Positions возвращает текущие открытые позиции счета
func (s *Session) Positions(ctx context.Context) ([]models.Position, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.client.baseURL+"/positions", nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.fetchClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: positions returned %d", ErrUnavailable, resp.StatusCode)
	}

	var positions []models.Position
	if err := json.NewDecoder(resp.Body).Decode(&positions); err != nil {
		return nil, fmt.Errorf("failed to decode positions: %w", err)
	}

	return positions, nil
}

// Close разлогинивает терминал. Ошибки не возвращает: сделать с ними
// нечего, а вызывается из defer.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true

	req, err := http.NewRequest(http.MethodPost, s.client.baseURL+"/disconnect", nil)
	if err != nil {
		return
	}

	resp, err := s.client.loginClient.Do(req)
	if err != nil {
		s.client.logger.Warn("terminal disconnect failed", utils.Err(err))
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
