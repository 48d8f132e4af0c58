package service

import (
	"fmt"
	"time"

	"tradejournal/internal/models"
	"tradejournal/internal/repository"
)

// ============ Mock AccountRepository ============

type MockAccountRepository struct {
	accounts  map[int]*models.MT5Account
	nextID    int
	createErr error
	getErr    error
	updateErr error
	deleteErr error
	statusErr error

	// Фиксируется последний вызов UpdateSyncStatus
	lastStatusID      int
	lastStatus        string
	lastStatusMessage string
	lastTradeTime     *time.Time
}

func NewMockAccountRepository() *MockAccountRepository {
	return &MockAccountRepository{
		accounts: make(map[int]*models.MT5Account),
		nextID:   1,
	}
}

func (m *MockAccountRepository) Create(account *models.MT5Account) error {
	if m.createErr != nil {
		return m.createErr
	}
	for _, a := range m.accounts {
		if a.UserID == account.UserID {
			return repository.ErrAccountExists
		}
	}
	account.ID = m.nextID
	m.nextID++
	if account.SyncIntervalMinutes == 0 {
		account.SyncIntervalMinutes = 5
	}
	if account.LastSyncStatus == "" {
		account.LastSyncStatus = models.SyncStatusPending
	}
	account.CreatedAt = time.Now()
	account.UpdatedAt = account.CreatedAt
	m.accounts[account.ID] = account
	return nil
}

func (m *MockAccountRepository) GetByID(id int) (*models.MT5Account, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if account, exists := m.accounts[id]; exists {
		return account, nil
	}
	return nil, repository.ErrAccountNotFound
}

func (m *MockAccountRepository) GetByUserID(userID int) (*models.MT5Account, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, a := range m.accounts {
		if a.UserID == userID {
			return a, nil
		}
	}
	return nil, repository.ErrAccountNotFound
}

func (m *MockAccountRepository) GetActive() ([]*models.MT5Account, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var result []*models.MT5Account
	for _, a := range m.accounts {
		if a.IsActive {
			result = append(result, a)
		}
	}
	return result, nil
}

func (m *MockAccountRepository) Update(account *models.MT5Account) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, exists := m.accounts[account.ID]; !exists {
		return repository.ErrAccountNotFound
	}
	account.UpdatedAt = time.Now()
	m.accounts[account.ID] = account
	return nil
}

func (m *MockAccountRepository) SetActive(id int, active bool) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	account, exists := m.accounts[id]
	if !exists {
		return repository.ErrAccountNotFound
	}
	account.IsActive = active
	return nil
}

func (m *MockAccountRepository) Delete(id int) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, exists := m.accounts[id]; !exists {
		return repository.ErrAccountNotFound
	}
	delete(m.accounts, id)
	return nil
}

func (m *MockAccountRepository) UpdateSyncStatus(id int, status, message string, lastTradeTime *time.Time) error {
	if m.statusErr != nil {
		return m.statusErr
	}
	account, exists := m.accounts[id]
	if !exists {
		return repository.ErrAccountNotFound
	}
	now := time.Now()
	account.LastSyncAt = &now
	account.LastSyncStatus = status
	account.LastSyncMessage = message
	if lastTradeTime != nil {
		if account.LastTradeTime == nil || lastTradeTime.After(*account.LastTradeTime) {
			account.LastTradeTime = lastTradeTime
		}
	}
	m.lastStatusID = id
	m.lastStatus = status
	m.lastStatusMessage = message
	m.lastTradeTime = lastTradeTime
	return nil
}

func (m *MockAccountRepository) Count() (int, error) {
	return len(m.accounts), nil
}

// ============ Mock TradeRepository ============

type MockTradeRepository struct {
	trades    map[string]*models.Trade // ключ: "userID/ticket"
	insertErr error
	upsertErr error
	getErr    error
	countErr  error
	deleteErr error
}

func NewMockTradeRepository() *MockTradeRepository {
	return &MockTradeRepository{
		trades: make(map[string]*models.Trade),
	}
}

func tradeKey(userID int, ticket string) string {
	return fmt.Sprintf("%d/%s", userID, ticket)
}

func (m *MockTradeRepository) InsertIfAbsent(trade *models.Trade) (bool, error) {
	if m.insertErr != nil {
		return false, m.insertErr
	}
	key := tradeKey(trade.UserID, trade.Ticket)
	if _, exists := m.trades[key]; exists {
		return false, nil
	}
	if trade.Source == "" {
		trade.Source = models.TradeSourceMT5Auto
	}
	m.trades[key] = trade
	return true, nil
}

func (m *MockTradeRepository) UpsertOpen(trade *models.Trade) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	key := tradeKey(trade.UserID, trade.Ticket)
	if existing, exists := m.trades[key]; exists {
		if existing.IsClosed {
			return nil
		}
	}
	if trade.Source == "" {
		trade.Source = models.TradeSourceMT5Auto
	}
	trade.IsClosed = false
	m.trades[key] = trade
	return nil
}

func (m *MockTradeRepository) GetByTicket(userID int, ticket string) (*models.Trade, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if trade, exists := m.trades[tradeKey(userID, ticket)]; exists {
		return trade, nil
	}
	return nil, repository.ErrTradeNotFound
}

func (m *MockTradeRepository) GetByUserID(userID int) ([]*models.Trade, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var result []*models.Trade
	for _, t := range m.trades {
		if t.UserID == userID {
			result = append(result, t)
		}
	}
	return result, nil
}

func (m *MockTradeRepository) CountBySource(userID int, source string) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	count := 0
	for _, t := range m.trades {
		if t.UserID == userID && t.Source == source {
			count++
		}
	}
	return count, nil
}

func (m *MockTradeRepository) DeleteBySource(userID int, source string) (int64, error) {
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	var deleted int64
	for key, t := range m.trades {
		if t.UserID == userID && t.Source == source {
			delete(m.trades, key)
			deleted++
		}
	}
	return deleted, nil
}

// ============ Mock StatusBroadcaster ============

type MockBroadcaster struct {
	calls []broadcastCall
}

type broadcastCall struct {
	userID  int
	status  string
	message string
}

func (m *MockBroadcaster) BroadcastSyncStatus(userID int, status, message string, lastSyncAt time.Time) {
	m.calls = append(m.calls, broadcastCall{userID: userID, status: status, message: message})
}
