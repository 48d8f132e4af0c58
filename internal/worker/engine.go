package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tradejournal/internal/config"
	"tradejournal/internal/models"
	"tradejournal/internal/terminal"
	"tradejournal/pkg/utils"
)

// GatewayClient - то, что engine'у нужно от gateway
type GatewayClient interface {
	FetchDueAccounts(ctx context.Context) ([]models.DueAccount, error)
	PushTrades(ctx context.Context, userID int, closed, open []models.Trade) (int, error)
	ReportStatus(ctx context.Context, update *models.SyncStatusUpdate) error
}

// TerminalSession - активная сессия терминала под одним счетом
type TerminalSession interface {
	DealsHistory(ctx context.Context, from, to time.Time) ([]models.Deal, error)
	Positions(ctx context.Context) ([]models.Position, error)
	Close()
}

// TerminalClient открывает сессии терминала
type TerminalClient interface {
	Connect(ctx context.Context, login, password, server string) (TerminalSession, error)
}

// terminalAdapter оборачивает *terminal.Client под интерфейс engine'а
type terminalAdapter struct {
	client *terminal.Client
}

func (a *terminalAdapter) Connect(ctx context.Context, login, password, server string) (TerminalSession, error) {
	return a.client.Connect(ctx, login, password, server)
}

// NewTerminalClient адаптирует клиент bridge к интерфейсу engine'а
func NewTerminalClient(client *terminal.Client) TerminalClient {
	return &terminalAdapter{client: client}
}

// watermarkOverlap - насколько раньше watermark'а запрашивается история.
// Перекрытие страхует от несовпадения часов терминала и worker'а;
// повторные deal'ы дедуплицирует идемпотентная запись.
const watermarkOverlap = 5 * time.Minute

// Engine - главный цикл worker'а.
//
// Назначение:
// Раз в CycleInterval запрашивает у gateway счета к синхронизации и
// обрабатывает их строго последовательно: терминал держит одну сессию
// за раз. Сбой одного счета не трогает остальные, любой исход цикла
// по счету заканчивается отчетом gateway'у.
type Engine struct {
	gateway  GatewayClient
	terminal TerminalClient
	cfg      config.WorkerConfig
	logger   *utils.Logger
	state    string
}

// NewEngine создает engine
func NewEngine(gateway GatewayClient, terminal TerminalClient, cfg config.WorkerConfig, logger *utils.Logger) *Engine {
	return &Engine{
		gateway:  gateway,
		terminal: terminal,
		cfg:      cfg,
		logger:   logger.WithComponent("engine"),
		state:    StateIdle,
	}
}

// State возвращает текущее состояние цикла
func (e *Engine) State() string {
	return e.state
}

// setState переводит engine в новое состояние.
// Недопустимый переход - баг в логике цикла, логируется громко.
func (e *Engine) setState(to string) {
	if !CanTransition(e.state, to) {
		e.logger.Error("invalid state transition",
			utils.String("from", e.state),
			utils.String("to", to),
		)
	}
	WorkerState.WithLabelValues(e.state).Set(0)
	WorkerState.WithLabelValues(to).Set(1)
	e.state = to
	e.logger.Debug("state changed", utils.State(to))
}

// Run крутит циклы синхронизации до отмены контекста.
// Первый цикл запускается сразу, не дожидаясь тикера.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("sync engine started",
		utils.Duration("cycle_interval", e.cfg.CycleInterval),
		utils.Duration("history_lookback", e.cfg.HistoryLookback),
	)

	ticker := time.NewTicker(e.cfg.CycleInterval)
	defer ticker.Stop()

	e.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("sync engine stopped")
			return ctx.Err()
		case <-ticker.C:
			e.RunCycle(ctx)
		}
	}
}

// RunCycle выполняет один цикл: запрос счетов и последовательная
// обработка каждого
func (e *Engine) RunCycle(ctx context.Context) {
	e.setState(StateFetching)
	defer e.setState(StateIdle)

	accounts, err := e.gateway.FetchDueAccounts(ctx)
	if err != nil {
		e.logger.Error("failed to fetch due accounts", utils.Err(err))
		return
	}

	DueAccounts.Set(float64(len(accounts)))
	CyclesTotal.Inc()

	if len(accounts) == 0 {
		e.logger.Debug("no accounts due")
		return
	}

	e.logger.Info("sync cycle started", utils.Int("accounts", len(accounts)))

	for i := range accounts {
		if ctx.Err() != nil {
			e.logger.Info("cycle interrupted", utils.Int("remaining", len(accounts)-i))
			return
		}

		e.syncAccount(ctx, &accounts[i])

		// пауза между счетами: терминалу нужно время на разлогин
		if i < len(accounts)-1 && e.cfg.AccountDelay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(e.cfg.AccountDelay):
			}
		}
	}
}

// syncAccount обрабатывает один счет от логина до отчета.
// Любая ошибка превращается в отчет со статусом error: пользователь
// видит причину в карточке счета, а не тишину.
func (e *Engine) syncAccount(ctx context.Context, acc *models.DueAccount) {
	logger := e.logger.WithAccount(acc.ID).WithLogin(acc.Login)
	started := time.Now()
	defer func() {
		AccountSyncDuration.Observe(time.Since(started).Seconds())
	}()

	e.setState(StateConnecting)

	connectStart := time.Now()
	session, err := e.terminal.Connect(ctx, acc.Login, acc.Password, acc.Server)
	if err != nil {
		e.reportError(ctx, acc, connectFailureMessage(err))
		logger.Warn("terminal connect failed", utils.Err(err))
		return
	}
	TerminalConnectDuration.Observe(time.Since(connectStart).Seconds())
	defer session.Close()

	e.setState(StateReconciling)

	from := e.historyFrom(acc)
	to := time.Now().Add(time.Minute)

	deals, err := session.DealsHistory(ctx, from, to)
	if err != nil {
		e.reportError(ctx, acc, "Failed to fetch deal history from the terminal")
		logger.Warn("history fetch failed", utils.Err(err))
		return
	}

	positions, err := session.Positions(ctx)
	if err != nil {
		e.reportError(ctx, acc, "Failed to fetch open positions from the terminal")
		logger.Warn("positions fetch failed", utils.Err(err))
		return
	}

	result := Reconcile(acc.UserID, deals, positions)
	if result.Anomalies > 0 {
		ReconciliationAnomalies.Add(float64(result.Anomalies))
		logger.Warn("reconciliation anomalies", utils.Int("skipped", result.Anomalies))
	}

	e.setState(StatePersisting)

	inserted, err := e.gateway.PushTrades(ctx, acc.UserID, result.Closed, result.Open)
	if err != nil {
		e.reportError(ctx, acc, "Failed to persist trades")
		logger.Error("push trades failed", utils.Err(err))
		return
	}

	TradesInserted.Add(float64(inserted))
	OpenPositionsUpserted.Add(float64(len(result.Open)))
	AccountsSynced.WithLabelValues(models.SyncStatusSuccess).Inc()

	e.setState(StateReporting)

	update := &models.SyncStatusUpdate{
		AccountID:     acc.ID,
		Status:        models.SyncStatusSuccess,
		Message:       fmt.Sprintf("Successfully synced %d trades", inserted),
		LastTradeTime: result.NewestCloseTime,
	}
	if err := e.gateway.ReportStatus(ctx, update); err != nil {
		logger.Error("status report failed", utils.Err(err))
	}

	logger.Info("account synced",
		utils.Trades(inserted),
		utils.Int("open_positions", len(result.Open)),
		utils.Duration("took", time.Since(started)),
	)
}

// historyFrom выбирает начало окна выборки: watermark с перекрытием
// или полный lookback для счета без истории синхронизаций
func (e *Engine) historyFrom(acc *models.DueAccount) time.Time {
	if acc.LastTradeTime != nil {
		return acc.LastTradeTime.Add(-watermarkOverlap)
	}
	return time.Now().Add(-e.cfg.HistoryLookback)
}

// reportError отправляет отчет об ошибке по счету.
// Watermark не передается: неудачный цикл не двигает окно выборки.
func (e *Engine) reportError(ctx context.Context, acc *models.DueAccount, message string) {
	AccountsSynced.WithLabelValues(models.SyncStatusError).Inc()

	e.setState(StateReporting)

	update := &models.SyncStatusUpdate{
		AccountID: acc.ID,
		Status:    models.SyncStatusError,
		Message:   message,
	}
	if err := e.gateway.ReportStatus(ctx, update); err != nil {
		e.logger.Error("error report failed", utils.AccountID(acc.ID), utils.Err(err))
	}
}

// connectFailureMessage переводит ошибку подключения в текст для
// карточки счета. Детали логина не раскрываются.
func connectFailureMessage(err error) string {
	if errors.Is(err, terminal.ErrLoginFailed) {
		return "Broker rejected the credentials, please re-enter the password"
	}
	return "Trading terminal is unavailable, will retry next cycle"
}
