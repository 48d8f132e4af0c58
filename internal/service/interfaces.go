package service

import (
	"time"

	"tradejournal/internal/models"
)

// AccountRepositoryInterface определяет интерфейс репозитория счетов MT5
type AccountRepositoryInterface interface {
	Create(account *models.MT5Account) error
	GetByID(id int) (*models.MT5Account, error)
	GetByUserID(userID int) (*models.MT5Account, error)
	GetActive() ([]*models.MT5Account, error)
	Update(account *models.MT5Account) error
	SetActive(id int, active bool) error
	Delete(id int) error
	UpdateSyncStatus(id int, status, message string, lastTradeTime *time.Time) error
	Count() (int, error)
}

// TradeRepositoryInterface определяет интерфейс репозитория сделок
type TradeRepositoryInterface interface {
	InsertIfAbsent(trade *models.Trade) (bool, error)
	UpsertOpen(trade *models.Trade) error
	GetByTicket(userID int, ticket string) (*models.Trade, error)
	GetByUserID(userID int) ([]*models.Trade, error)
	CountBySource(userID int, source string) (int, error)
	DeleteBySource(userID int, source string) (int64, error)
}

// StatusBroadcaster рассылает обновления статуса синхронизации
// подключенным websocket клиентам. Может быть nil - тогда рассылка
// просто не происходит.
type StatusBroadcaster interface {
	BroadcastSyncStatus(userID int, status, message string, lastSyncAt time.Time)
}
