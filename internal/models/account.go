package models

import "time"

// MT5Account представляет запись с учетными данными брокерского счета
// для автоматической синхронизации. Ровно одна запись на пользователя
// (UNIQUE constraint на user_id).
type MT5Account struct {
	ID     int `json:"id" db:"id"`
	UserID int `json:"user_id" db:"user_id"`

	Login             string `json:"mt5_login" db:"mt5_login"`         // номер счета
	PasswordEncrypted string `json:"-" db:"mt5_password_encrypted"`    // Fernet-токен, не возвращается в JSON
	Server            string `json:"mt5_server" db:"mt5_server"`       // сервер брокера

	IsActive            bool       `json:"is_active" db:"is_active"`
	SyncIntervalMinutes int        `json:"sync_interval_minutes" db:"sync_interval_minutes"`
	LastSyncAt          *time.Time `json:"last_sync_at" db:"last_sync_at"`
	LastSyncStatus      string     `json:"last_sync_status" db:"last_sync_status"`   // pending, success, error
	LastSyncMessage     string     `json:"last_sync_message" db:"last_sync_message"`
	LastTradeTime       *time.Time `json:"last_trade_time" db:"last_trade_time"` // watermark инкрементальной выборки

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Статусы синхронизации
const (
	SyncStatusPending = "pending"
	SyncStatusSuccess = "success"
	SyncStatusError   = "error"
)

// IsDue возвращает true если счет пора синхронизировать:
// первая синхронизация (last_sync_at IS NULL) или интервал истёк
func (a *MT5Account) IsDue(now time.Time) bool {
	if a.LastSyncAt == nil {
		return true
	}
	next := a.LastSyncAt.Add(time.Duration(a.SyncIntervalMinutes) * time.Minute)
	return !now.Before(next)
}

// DueAccount - счет, готовый к синхронизации, с расшифрованным паролем.
// Отдаётся worker'у через внутренний API и НИКОГДА не персистится:
// Password существует только в памяти на время сессии с терминалом.
type DueAccount struct {
	ID                  int        `json:"id"`
	UserID              int        `json:"user_id"`
	Login               string     `json:"mt5_login"`
	Password            string     `json:"mt5_password"` // расшифрован
	Server              string     `json:"mt5_server"`
	SyncIntervalMinutes int        `json:"sync_interval_minutes"`
	LastSyncAt          *time.Time `json:"last_sync_at,omitempty"`
	LastTradeTime       *time.Time `json:"last_trade_time,omitempty"`
}

// SyncStatusUpdate - отчет worker'а о результате цикла по одному счету
type SyncStatusUpdate struct {
	AccountID     int        `json:"account_id"`
	Status        string     `json:"status"` // success или error
	Message       string     `json:"message"`
	LastTradeTime *time.Time `json:"last_trade_time,omitempty"`
}
