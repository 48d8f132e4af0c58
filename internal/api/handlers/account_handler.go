package handlers

import (
	"errors"
	"net/http"

	"tradejournal/internal/api/middleware"
	"tradejournal/internal/service"
)

// AccountHandler отвечает за привязку счета MT5 к пользователю
//
// Endpoints:
// - POST /api/v1/mt5/account          - привязать счет или обновить учетные данные
// - GET /api/v1/mt5/account           - получить привязанный счет
// - DELETE /api/v1/mt5/account        - отвязать счет
// - POST /api/v1/mt5/account/toggle   - включить/выключить синхронизацию
// - GET /api/v1/mt5/account/status    - сводка по синхронизации
type AccountHandler struct {
	accountService *service.AccountService
}

// NewAccountHandler создает новый AccountHandler
func NewAccountHandler(accountService *service.AccountService) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
	}
}

// SaveAccount привязывает счет или обновляет учетные данные
// POST /api/v1/mt5/account
//
// Request Body:
//
//	{
//	  "mt5_login": "1001234",
//	  "mt5_password": "secret",
//	  "mt5_server": "Broker-Demo",
//	  "sync_interval_minutes": 5
//	}
//
// При обновлении существующего счета пароль можно опустить.
//
// Response:
// - 200 OK: счет сохранен
// - 400 Bad Request: невалидные параметры
// - 401 Unauthorized: нет или невалидный JWT
func (h *AccountHandler) SaveAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "Authentication required", "")
		return
	}

	var req service.SaveAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	account, err := h.accountService.SaveAccount(userID, &req)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, account)
}

// GetAccount возвращает привязанный счет (без пароля)
// GET /api/v1/mt5/account
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "Authentication required", "")
		return
	}

	account, err := h.accountService.GetAccount(userID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, account)
}

// DeleteAccount отвязывает счет
// DELETE /api/v1/mt5/account?delete_trades=true
func (h *AccountHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "Authentication required", "")
		return
	}

	deleteTrades := r.URL.Query().Get("delete_trades") == "true"

	if err := h.accountService.DeleteAccount(userID, deleteTrades); err != nil {
		h.handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "MT5 account disconnected"})
}

// ToggleAccount включает или выключает синхронизацию
// POST /api/v1/mt5/account/toggle
func (h *AccountHandler) ToggleAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "Authentication required", "")
		return
	}

	account, err := h.accountService.ToggleAccount(userID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, account)
}

// GetStatus возвращает сводку по синхронизации счета
// GET /api/v1/mt5/account/status
func (h *AccountHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "Authentication required", "")
		return
	}

	status, err := h.accountService.GetStatus(userID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, status)
}

// handleServiceError транслирует ошибки сервиса в HTTP статусы
func (h *AccountHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrAccountNotFound):
		respondWithError(w, http.StatusNotFound, "account_not_found", "MT5 account is not connected", "")
	case errors.Is(err, service.ErrLoginRequired),
		errors.Is(err, service.ErrLoginTooLong),
		errors.Is(err, service.ErrServerRequired),
		errors.Is(err, service.ErrServerTooLong),
		errors.Is(err, service.ErrPasswordRequired),
		errors.Is(err, service.ErrPasswordTooLong),
		errors.Is(err, service.ErrInvalidInterval):
		respondWithError(w, http.StatusBadRequest, "validation_error", err.Error(), "")
	default:
		respondWithError(w, http.StatusInternalServerError, "internal_error", "Internal server error", "")
	}
}
