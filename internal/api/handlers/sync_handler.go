package handlers

import (
	"errors"
	"net/http"
	"time"

	"tradejournal/internal/models"
	"tradejournal/internal/service"
)

// SyncHandler обслуживает внутренние endpoints sync worker'а
//
// Endpoints (за WorkerAuth):
// - GET /api/v1/sync/accounts/due    - счета, которым пора синхронизироваться
// - POST /api/v1/sync/accounts/status - отчет о результате цикла
//
// Это единственное место, где расшифрованные пароли покидают gateway,
// поэтому оба маршрута закрыты общим секретом worker'а.
type SyncHandler struct {
	accountService *service.AccountService
}

// NewSyncHandler создает новый SyncHandler
func NewSyncHandler(accountService *service.AccountService) *SyncHandler {
	return &SyncHandler{
		accountService: accountService,
	}
}

// DueAccountsResponse - ответ на запрос счетов к синхронизации
type DueAccountsResponse struct {
	Accounts []models.DueAccount `json:"accounts"`
	Count    int                 `json:"count"`
}

// GetDueAccounts возвращает активные счета с истекшим интервалом,
// с расшифрованными паролями
// GET /api/v1/sync/accounts/due
func (h *SyncHandler) GetDueAccounts(w http.ResponseWriter, r *http.Request) {
	due, err := h.accountService.ListDue(time.Now())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "internal_error", "Failed to list due accounts", "")
		return
	}

	respondWithJSON(w, http.StatusOK, DueAccountsResponse{
		Accounts: due,
		Count:    len(due),
	})
}

// PushTradesRequest - результат реконсиляции одного счета
type PushTradesRequest struct {
	UserID int            `json:"user_id"`
	Closed []models.Trade `json:"closed"`
	Open   []models.Trade `json:"open"`
}

// PushTradesResponse - сколько новых закрытых сделок попало в журнал
type PushTradesResponse struct {
	Inserted int `json:"inserted"`
}

// PushTrades идемпотентно записывает реконсилированные сделки
// POST /api/v1/sync/trades
func (h *SyncHandler) PushTrades(w http.ResponseWriter, r *http.Request) {
	var req PushTradesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	if req.UserID == 0 {
		respondWithError(w, http.StatusBadRequest, "missing_user_id", "user_id is required", "")
		return
	}

	inserted, err := h.accountService.PersistTrades(req.UserID, req.Closed, req.Open)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "internal_error", "Failed to persist trades", "")
		return
	}

	respondWithJSON(w, http.StatusOK, PushTradesResponse{Inserted: inserted})
}

// ReportStatus принимает отчет worker'а о результате цикла по счету
// POST /api/v1/sync/accounts/status
//
// Request Body:
//
//	{
//	  "account_id": 42,
//	  "status": "success",
//	  "message": "Successfully synced 3 trades",
//	  "last_trade_time": "2026-03-15T12:00:00Z"
//	}
func (h *SyncHandler) ReportStatus(w http.ResponseWriter, r *http.Request) {
	var update models.SyncStatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	if update.AccountID == 0 {
		respondWithError(w, http.StatusBadRequest, "missing_account_id", "account_id is required", "")
		return
	}

	if err := h.accountService.ReportStatus(&update); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidSyncStatus):
			respondWithError(w, http.StatusBadRequest, "invalid_status", err.Error(), "")
		case errors.Is(err, service.ErrAccountNotFound):
			respondWithError(w, http.StatusNotFound, "account_not_found", "Account does not exist", "")
		default:
			respondWithError(w, http.StatusInternalServerError, "internal_error", "Failed to record sync status", "")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "Status recorded"})
}
