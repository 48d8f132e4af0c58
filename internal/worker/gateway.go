package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"

	"tradejournal/internal/api/middleware"
	"tradejournal/internal/models"
	"tradejournal/pkg/retry"
	"tradejournal/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Ошибки gateway
var (
	// ErrGatewayUnavailable - gateway не отвечает или вернул 5xx
	ErrGatewayUnavailable = errors.New("gateway is unavailable")

	// ErrGatewayRejected - gateway отверг запрос (4xx).
	// Не retry'ится: неверный секрет или битое тело не исправятся повтором.
	ErrGatewayRejected = errors.New("gateway rejected the request")
)

// Gateway - HTTP клиент внутреннего sync API gateway'а.
//
// Назначение:
// Worker не имеет прямого доступа к БД. Все, что ему нужно - получить
// счета к синхронизации, записать сделки и отчитаться о результате -
// он делает через gateway, аутентифицируясь общим секретом.
type Gateway struct {
	baseURL    string
	secret     string
	httpClient *http.Client
	logger     *utils.Logger
}

// NewGateway создает клиент gateway
func NewGateway(baseURL, secret string, timeout time.Duration, logger *utils.Logger) *Gateway {
	return &Gateway{
		baseURL:    baseURL,
		secret:     secret,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.WithComponent("gateway"),
	}
}

// dueAccountsResponse повторяет форму ответа gateway'а
type dueAccountsResponse struct {
	Accounts []models.DueAccount `json:"accounts"`
	Count    int                 `json:"count"`
}

// FetchDueAccounts возвращает счета с истекшим интервалом синхронизации.
// Пароли в ответе расшифрованы и живут только в памяти worker'а.
func (g *Gateway) FetchDueAccounts(ctx context.Context) ([]models.DueAccount, error) {
	var out dueAccountsResponse
	if err := g.do(ctx, http.MethodGet, "/api/v1/sync/accounts/due", nil, &out); err != nil {
		return nil, err
	}
	return out.Accounts, nil
}

// pushTradesRequest - тело запроса записи сделок
type pushTradesRequest struct {
	UserID int            `json:"user_id"`
	Closed []models.Trade `json:"closed"`
	Open   []models.Trade `json:"open"`
}

type pushTradesResponse struct {
	Inserted int `json:"inserted"`
}

// PushTrades идемпотентно записывает реконсилированные сделки счета.
// Возвращает количество НОВЫХ закрытых сделок (повторы не считаются).
func (g *Gateway) PushTrades(ctx context.Context, userID int, closed, open []models.Trade) (int, error) {
	req := pushTradesRequest{
		UserID: userID,
		Closed: closed,
		Open:   open,
	}
	if req.Closed == nil {
		req.Closed = []models.Trade{}
	}
	if req.Open == nil {
		req.Open = []models.Trade{}
	}

	var out pushTradesResponse
	if err := g.do(ctx, http.MethodPost, "/api/v1/sync/trades", &req, &out); err != nil {
		return 0, err
	}
	return out.Inserted, nil
}

// ReportStatus отправляет итог цикла по одному счету
func (g *Gateway) ReportStatus(ctx context.Context, update *models.SyncStatusUpdate) error {
	return g.do(ctx, http.MethodPost, "/api/v1/sync/accounts/status", update, nil)
}

// do выполняет запрос с worker-секретом и retry на сетевые сбои.
// 4xx не retry'ится, 5xx и недоступность - retry'ятся.
func (g *Gateway) do(ctx context.Context, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}

	operation := func() error {
		var reader *bytes.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		} else {
			reader = bytes.NewReader(nil)
		}

		req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(middleware.WorkerSecretHeader, g.secret)

		resp, err := g.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if out != nil {
				if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
					return retry.Permanent(fmt.Errorf("failed to decode gateway response: %w", err))
				}
			}
			return nil
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return retry.Permanent(fmt.Errorf("%w: %s %s returned %d", ErrGatewayRejected, method, path, resp.StatusCode))
		default:
			return fmt.Errorf("%w: %s %s returned %d", ErrGatewayUnavailable, method, path, resp.StatusCode)
		}
	}

	cfg := retry.NetworkConfig()
	cfg.MaxRetries = 3
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		g.logger.Warn("gateway request retry",
			utils.String("path", path),
			utils.Int("attempt", attempt),
			utils.Err(err),
		)
	}

	return retry.Do(ctx, operation, cfg)
}
