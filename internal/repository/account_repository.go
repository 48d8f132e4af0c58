package repository

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"tradejournal/internal/models"
)

// Ошибки репозитория счетов
var (
	ErrAccountNotFound = errors.New("mt5 account not found")
	ErrAccountExists   = errors.New("mt5 account already exists")
)

// AccountRepository - работа с таблицей mt5_accounts
type AccountRepository struct {
	db *sql.DB
}

// NewAccountRepository создает новый экземпляр репозитория
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create создает новый счет MT5
func (r *AccountRepository) Create(account *models.MT5Account) error {
	query := `
		INSERT INTO mt5_accounts (user_id, mt5_login, mt5_password_encrypted, mt5_server, is_active, sync_interval_minutes, last_sync_status, last_sync_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now

	// Значения по умолчанию
	if account.SyncIntervalMinutes == 0 {
		account.SyncIntervalMinutes = 5
	}
	if account.LastSyncStatus == "" {
		account.LastSyncStatus = models.SyncStatusPending
	}

	err := r.db.QueryRow(
		query,
		account.UserID,
		account.Login,
		account.PasswordEncrypted,
		account.Server,
		account.IsActive,
		account.SyncIntervalMinutes,
		account.LastSyncStatus,
		account.LastSyncMessage,
		account.CreatedAt,
		account.UpdatedAt,
	).Scan(&account.ID)

	if err != nil {
		if isAccountUniqueViolation(err) {
			return ErrAccountExists
		}
		return err
	}

	return nil
}

// GetByID возвращает счет по ID
func (r *AccountRepository) GetByID(id int) (*models.MT5Account, error) {
	query := `
		SELECT id, user_id, mt5_login, mt5_password_encrypted, mt5_server, is_active, sync_interval_minutes, last_sync_at, last_sync_status, last_sync_message, last_trade_time, created_at, updated_at
		FROM mt5_accounts
		WHERE id = $1`

	return r.scanOne(r.db.QueryRow(query, id))
}

// GetByUserID возвращает счет, привязанный к пользователю.
// У пользователя не больше одного счета (UNIQUE по user_id).
func (r *AccountRepository) GetByUserID(userID int) (*models.MT5Account, error) {
	query := `
		SELECT id, user_id, mt5_login, mt5_password_encrypted, mt5_server, is_active, sync_interval_minutes, last_sync_at, last_sync_status, last_sync_message, last_trade_time, created_at, updated_at
		FROM mt5_accounts
		WHERE user_id = $1`

	return r.scanOne(r.db.QueryRow(query, userID))
}

// GetActive возвращает все активные счета
func (r *AccountRepository) GetActive() ([]*models.MT5Account, error) {
	query := `
		SELECT id, user_id, mt5_login, mt5_password_encrypted, mt5_server, is_active, sync_interval_minutes, last_sync_at, last_sync_status, last_sync_message, last_trade_time, created_at, updated_at
		FROM mt5_accounts
		WHERE is_active = TRUE
		ORDER BY id`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.MT5Account
	for rows.Next() {
		account, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return accounts, nil
}

// Update обновляет учетные данные и настройки счета
func (r *AccountRepository) Update(account *models.MT5Account) error {
	query := `
		UPDATE mt5_accounts
		SET mt5_login = $1, mt5_password_encrypted = $2, mt5_server = $3, is_active = $4, sync_interval_minutes = $5, last_sync_status = $6, last_sync_message = $7, updated_at = $8
		WHERE id = $9`

	account.UpdatedAt = time.Now()

	result, err := r.db.Exec(
		query,
		account.Login,
		account.PasswordEncrypted,
		account.Server,
		account.IsActive,
		account.SyncIntervalMinutes,
		account.LastSyncStatus,
		account.LastSyncMessage,
		account.UpdatedAt,
		account.ID,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrAccountNotFound
	}

	return nil
}

// SetActive включает или выключает синхронизацию счета
func (r *AccountRepository) SetActive(id int, active bool) error {
	query := `
		UPDATE mt5_accounts
		SET is_active = $1, updated_at = $2
		WHERE id = $3`

	result, err := r.db.Exec(query, active, time.Now(), id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrAccountNotFound
	}

	return nil
}

// Delete удаляет счет
func (r *AccountRepository) Delete(id int) error {
	query := `DELETE FROM mt5_accounts WHERE id = $1`

	result, err := r.db.Exec(query, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrAccountNotFound
	}

	return nil
}

// UpdateSyncStatus фиксирует результат цикла синхронизации.
// last_trade_time - watermark последней сделки: двигается только вперед,
// NULL в отчете watermark не трогает.
func (r *AccountRepository) UpdateSyncStatus(id int, status, message string, lastTradeTime *time.Time) error {
	query := `
		UPDATE mt5_accounts
		SET last_sync_at = $1,
		    last_sync_status = $2,
		    last_sync_message = $3,
		    last_trade_time = CASE
		        WHEN $4::timestamptz IS NULL THEN last_trade_time
		        WHEN last_trade_time IS NULL OR $4::timestamptz > last_trade_time THEN $4::timestamptz
		        ELSE last_trade_time
		    END,
		    updated_at = $5
		WHERE id = $6`

	now := time.Now()
	result, err := r.db.Exec(query, now, status, message, lastTradeTime, now, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrAccountNotFound
	}

	return nil
}

// Count возвращает общее количество счетов
func (r *AccountRepository) Count() (int, error) {
	query := `SELECT COUNT(*) FROM mt5_accounts`

	var count int
	err := r.db.QueryRow(query).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// rowScanner покрывает *sql.Row и *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *AccountRepository) scanOne(row rowScanner) (*models.MT5Account, error) {
	account := &models.MT5Account{}
	err := row.Scan(
		&account.ID,
		&account.UserID,
		&account.Login,
		&account.PasswordEncrypted,
		&account.Server,
		&account.IsActive,
		&account.SyncIntervalMinutes,
		&account.LastSyncAt,
		&account.LastSyncStatus,
		&account.LastSyncMessage,
		&account.LastTradeTime,
		&account.CreatedAt,
		&account.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	return account, nil
}

// isAccountUniqueViolation проверяет, является ли ошибка нарушением UNIQUE constraint
func isAccountUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "duplicate key") || strings.Contains(errStr, "23505")
}
