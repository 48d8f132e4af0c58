package service

import (
	"errors"
	"fmt"
	"time"

	"tradejournal/internal/models"
	"tradejournal/internal/repository"
	"tradejournal/pkg/crypto"
	"tradejournal/pkg/utils"
)

// Ошибки сервиса счетов
var (
	ErrAccountNotFound   = errors.New("mt5 account not found")
	ErrLoginRequired     = errors.New("mt5 login is required")
	ErrLoginTooLong      = errors.New("mt5 login must be at most 50 characters")
	ErrServerRequired    = errors.New("mt5 server is required")
	ErrServerTooLong     = errors.New("mt5 server must be at most 255 characters")
	ErrPasswordRequired  = errors.New("mt5 password is required")
	ErrPasswordTooLong   = errors.New("mt5 password must be at most 255 characters")
	ErrInvalidInterval   = errors.New("sync interval must be between 1 and 60 minutes")
	ErrInvalidSyncStatus = errors.New("sync status must be 'success' or 'error'")
)

// Граничные значения валидации счета
const (
	MaxLoginLength    = 50
	MaxServerLength   = 255
	MaxPasswordLength = 255
	MinSyncInterval   = 1
	MaxSyncInterval   = 60
)

// SaveAccountRequest - данные для создания или обновления счета
type SaveAccountRequest struct {
	Login               string `json:"mt5_login"`
	Password            string `json:"mt5_password"`
	Server              string `json:"mt5_server"`
	SyncIntervalMinutes int    `json:"sync_interval_minutes"`
}

// AccountStatus - сводка по счету для личного кабинета
type AccountStatus struct {
	Connected         bool       `json:"connected"`
	IsActive          bool       `json:"is_active"`
	Login             string     `json:"mt5_login,omitempty"`
	Server            string     `json:"mt5_server,omitempty"`
	SyncInterval      int        `json:"sync_interval_minutes,omitempty"`
	LastSyncAt        *time.Time `json:"last_sync_at,omitempty"`
	LastSyncStatus    string     `json:"last_sync_status,omitempty"`
	LastSyncMessage   string     `json:"last_sync_message,omitempty"`
	TotalTradesSynced int        `json:"total_trades_synced"`
}

// AccountService - бизнес-логика счетов MT5.
// Пароль терминала хранится только в зашифрованном виде; наружу
// (кроме internal sync API) он не отдается никогда.
type AccountService struct {
	accountRepo AccountRepositoryInterface
	tradeRepo   TradeRepositoryInterface

	// Ключевая фраза для Fernet-совместимого шифрования паролей
	encryptionKey string

	// Рассылка статусов по websocket (может быть nil)
	broadcaster StatusBroadcaster

	logger *utils.Logger
}

// NewAccountService создает новый экземпляр сервиса счетов
func NewAccountService(
	accountRepo AccountRepositoryInterface,
	tradeRepo TradeRepositoryInterface,
	encryptionKey string,
	logger *utils.Logger,
) *AccountService {
	return &AccountService{
		accountRepo:   accountRepo,
		tradeRepo:     tradeRepo,
		encryptionKey: encryptionKey,
		logger:        logger,
	}
}

// SetBroadcaster подключает рассылку статусов.
// Вызывается после инициализации websocket hub'а.
func (s *AccountService) SetBroadcaster(b StatusBroadcaster) {
	s.broadcaster = b
}

// SaveAccount создает счет или обновляет существующий.
// При обновлении пароль можно не передавать - тогда остается прежний.
func (s *AccountService) SaveAccount(userID int, req *SaveAccountRequest) (*models.MT5Account, error) {
	existing, err := s.accountRepo.GetByUserID(userID)
	if err != nil && !errors.Is(err, repository.ErrAccountNotFound) {
		return nil, err
	}

	if err := validateSaveRequest(req, existing != nil); err != nil {
		return nil, err
	}

	if existing != nil {
		existing.Login = req.Login
		existing.Server = req.Server
		if req.SyncIntervalMinutes > 0 {
			existing.SyncIntervalMinutes = req.SyncIntervalMinutes
		}

		if req.Password != "" {
			encrypted, err := crypto.Encrypt(req.Password, s.encryptionKey)
			if err != nil {
				return nil, fmt.Errorf("failed to encrypt password: %w", err)
			}
			existing.PasswordEncrypted = encrypted
		}

		existing.IsActive = true
		existing.LastSyncStatus = models.SyncStatusPending
		existing.LastSyncMessage = "Credentials updated, waiting for sync"

		if err := s.accountRepo.Update(existing); err != nil {
			return nil, err
		}

		s.logger.Info("mt5 account updated",
			utils.UserID(userID),
			utils.Login(existing.Login),
			utils.Server(existing.Server),
		)
		return existing, nil
	}

	encrypted, err := crypto.Encrypt(req.Password, s.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt password: %w", err)
	}

	account := &models.MT5Account{
		UserID:              userID,
		Login:               req.Login,
		PasswordEncrypted:   encrypted,
		Server:              req.Server,
		IsActive:            true,
		SyncIntervalMinutes: req.SyncIntervalMinutes,
		LastSyncStatus:      models.SyncStatusPending,
		LastSyncMessage:     "Account created, waiting for first sync",
	}

	if err := s.accountRepo.Create(account); err != nil {
		return nil, err
	}

	s.logger.Info("mt5 account connected",
		utils.UserID(userID),
		utils.Login(account.Login),
		utils.Server(account.Server),
	)
	return account, nil
}

// GetAccount возвращает счет пользователя
func (s *AccountService) GetAccount(userID int) (*models.MT5Account, error) {
	account, err := s.accountRepo.GetByUserID(userID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

// DeleteAccount отвязывает счет. При deleteTrades = true вместе со счетом
// удаляются все синхронизированные с него сделки.
func (s *AccountService) DeleteAccount(userID int, deleteTrades bool) error {
	account, err := s.GetAccount(userID)
	if err != nil {
		return err
	}

	if err := s.accountRepo.Delete(account.ID); err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return err
	}

	if deleteTrades {
		deleted, err := s.tradeRepo.DeleteBySource(userID, models.TradeSourceMT5Auto)
		if err != nil {
			return err
		}
		s.logger.Info("synced trades removed with account",
			utils.UserID(userID),
			utils.Int64("deleted", deleted),
		)
	}

	s.logger.Info("mt5 account disconnected", utils.UserID(userID))
	return nil
}

// ToggleAccount включает/выключает синхронизацию и возвращает новое состояние
func (s *AccountService) ToggleAccount(userID int) (*models.MT5Account, error) {
	account, err := s.GetAccount(userID)
	if err != nil {
		return nil, err
	}

	account.IsActive = !account.IsActive
	if err := s.accountRepo.SetActive(account.ID, account.IsActive); err != nil {
		return nil, err
	}

	s.logger.Info("mt5 sync toggled",
		utils.UserID(userID),
		utils.Bool("is_active", account.IsActive),
	)
	return account, nil
}

// GetStatus возвращает сводку по счету, включая количество
// синхронизированных сделок
func (s *AccountService) GetStatus(userID int) (*AccountStatus, error) {
	account, err := s.accountRepo.GetByUserID(userID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return &AccountStatus{Connected: false}, nil
		}
		return nil, err
	}

	count, err := s.tradeRepo.CountBySource(userID, models.TradeSourceMT5Auto)
	if err != nil {
		return nil, err
	}

	return &AccountStatus{
		Connected:         true,
		IsActive:          account.IsActive,
		Login:             account.Login,
		Server:            account.Server,
		SyncInterval:      account.SyncIntervalMinutes,
		LastSyncAt:        account.LastSyncAt,
		LastSyncStatus:    account.LastSyncStatus,
		LastSyncMessage:   account.LastSyncMessage,
		TotalTradesSynced: count,
	}, nil
}

// ListDue возвращает активные счета, которым пора синхронизироваться,
// с расшифрованными паролями. Счет, чей пароль не расшифровался
// (ключ сменили, токен поврежден), в выдачу не попадает - вместо этого
// ему записывается статус ошибки, чтобы проблема была видна пользователю.
func (s *AccountService) ListDue(now time.Time) ([]models.DueAccount, error) {
	accounts, err := s.accountRepo.GetActive()
	if err != nil {
		return nil, err
	}

	due := make([]models.DueAccount, 0, len(accounts))
	for _, account := range accounts {
		if !account.IsDue(now) {
			continue
		}

		password, err := crypto.Decrypt(account.PasswordEncrypted, s.encryptionKey)
		if err != nil {
			s.logger.Error("failed to decrypt account password",
				utils.AccountID(account.ID),
				utils.UserID(account.UserID),
				utils.Err(err),
			)
			if updErr := s.accountRepo.UpdateSyncStatus(account.ID, models.SyncStatusError,
				"Stored credentials cannot be decrypted, please re-enter the password", nil); updErr != nil {
				s.logger.Error("failed to record decrypt failure", utils.AccountID(account.ID), utils.Err(updErr))
			}
			continue
		}

		due = append(due, models.DueAccount{
			ID:                  account.ID,
			UserID:              account.UserID,
			Login:               account.Login,
			Password:            password,
			Server:              account.Server,
			SyncIntervalMinutes: account.SyncIntervalMinutes,
			LastSyncAt:          account.LastSyncAt,
			LastTradeTime:       account.LastTradeTime,
		})
	}

	return due, nil
}

// PersistTrades идемпотентно записывает результат реконсиляции одного
// счета. Закрытые сделки вставляются только если тикет еще не встречался;
// открытые позиции перезаписываются, но никогда не понижают уже закрытую
// запись. Возвращает количество новых закрытых сделок.
//
// Закрытые пишутся раньше открытых: если тикет пришел в обоих списках,
// закрытая версия выигрывает.
func (s *AccountService) PersistTrades(userID int, closed, open []models.Trade) (int, error) {
	inserted := 0
	for i := range closed {
		closed[i].UserID = userID
		ok, err := s.tradeRepo.InsertIfAbsent(&closed[i])
		if err != nil {
			return inserted, err
		}
		if ok {
			inserted++
		}
	}

	for i := range open {
		open[i].UserID = userID
		if err := s.tradeRepo.UpsertOpen(&open[i]); err != nil {
			return inserted, err
		}
	}

	if inserted > 0 || len(open) > 0 {
		s.logger.Info("trades persisted",
			utils.UserID(userID),
			utils.Int("inserted", inserted),
			utils.Int("open", len(open)),
		)
	}

	return inserted, nil
}

// ReportStatus записывает результат цикла синхронизации, присланный worker'ом
func (s *AccountService) ReportStatus(update *models.SyncStatusUpdate) error {
	if update.Status != models.SyncStatusSuccess && update.Status != models.SyncStatusError {
		return ErrInvalidSyncStatus
	}

	account, err := s.accountRepo.GetByID(update.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return err
	}

	if err := s.accountRepo.UpdateSyncStatus(update.AccountID, update.Status, update.Message, update.LastTradeTime); err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return err
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastSyncStatus(account.UserID, update.Status, update.Message, time.Now())
	}

	return nil
}

// validateSaveRequest проверяет данные счета.
// Для существующего счета пустой пароль означает "оставить прежний".
func validateSaveRequest(req *SaveAccountRequest, isUpdate bool) error {
	if req.Login == "" {
		return ErrLoginRequired
	}
	if len(req.Login) > MaxLoginLength {
		return ErrLoginTooLong
	}
	if req.Server == "" {
		return ErrServerRequired
	}
	if len(req.Server) > MaxServerLength {
		return ErrServerTooLong
	}
	if req.Password == "" && !isUpdate {
		return ErrPasswordRequired
	}
	if len(req.Password) > MaxPasswordLength {
		return ErrPasswordTooLong
	}
	if req.SyncIntervalMinutes != 0 && (req.SyncIntervalMinutes < MinSyncInterval || req.SyncIntervalMinutes > MaxSyncInterval) {
		return ErrInvalidInterval
	}
	if !isUpdate && req.SyncIntervalMinutes == 0 {
		req.SyncIntervalMinutes = 5
	}
	return nil
}
