package handlers

import (
	"fmt"
	"time"

	"tradejournal/internal/models"
	"tradejournal/internal/repository"
)

// In-memory репозитории для handler тестов

type memAccountRepo struct {
	accounts map[int]*models.MT5Account
	nextID   int
}

func newMemAccountRepo() *memAccountRepo {
	return &memAccountRepo{accounts: make(map[int]*models.MT5Account), nextID: 1}
}

func (m *memAccountRepo) Create(account *models.MT5Account) error {
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
	m.accounts[account.ID] = account
	return nil
}

func (m *memAccountRepo) GetByID(id int) (*models.MT5Account, error) {
	if a, ok := m.accounts[id]; ok {
		return a, nil
	}
	return nil, repository.ErrAccountNotFound
}

func (m *memAccountRepo) GetByUserID(userID int) (*models.MT5Account, error) {
	for _, a := range m.accounts {
		if a.UserID == userID {
			return a, nil
		}
	}
	return nil, repository.ErrAccountNotFound
}

func (m *memAccountRepo) GetActive() ([]*models.MT5Account, error) {
	var result []*models.MT5Account
	for _, a := range m.accounts {
		if a.IsActive {
			result = append(result, a)
		}
	}
	return result, nil
}

func (m *memAccountRepo) Update(account *models.MT5Account) error {
	if _, ok := m.accounts[account.ID]; !ok {
		return repository.ErrAccountNotFound
	}
	m.accounts[account.ID] = account
	return nil
}

func (m *memAccountRepo) SetActive(id int, active bool) error {
	a, ok := m.accounts[id]
	if !ok {
		return repository.ErrAccountNotFound
	}
	a.IsActive = active
	return nil
}

func (m *memAccountRepo) Delete(id int) error {
	if _, ok := m.accounts[id]; !ok {
		return repository.ErrAccountNotFound
	}
	delete(m.accounts, id)
	return nil
}

func (m *memAccountRepo) UpdateSyncStatus(id int, status, message string, lastTradeTime *time.Time) error {
	a, ok := m.accounts[id]
	if !ok {
		return repository.ErrAccountNotFound
	}
	now := time.Now()
	a.LastSyncAt = &now
	a.LastSyncStatus = status
	a.LastSyncMessage = message
	if lastTradeTime != nil {
		a.LastTradeTime = lastTradeTime
	}
	return nil
}

func (m *memAccountRepo) Count() (int, error) {
	return len(m.accounts), nil
}

type memTradeRepo struct {
	trades map[string]*models.Trade
}

func newMemTradeRepo() *memTradeRepo {
	return &memTradeRepo{trades: make(map[string]*models.Trade)}
}

func (m *memTradeRepo) key(userID int, ticket string) string {
	return fmt.Sprintf("%d/%s", userID, ticket)
}

func (m *memTradeRepo) InsertIfAbsent(trade *models.Trade) (bool, error) {
	key := m.key(trade.UserID, trade.Ticket)
	if _, ok := m.trades[key]; ok {
		return false, nil
	}
	m.trades[key] = trade
	return true, nil
}

func (m *memTradeRepo) UpsertOpen(trade *models.Trade) error {
	m.trades[m.key(trade.UserID, trade.Ticket)] = trade
	return nil
}

func (m *memTradeRepo) GetByTicket(userID int, ticket string) (*models.Trade, error) {
	if trade, ok := m.trades[m.key(userID, ticket)]; ok {
		return trade, nil
	}
	return nil, repository.ErrTradeNotFound
}

func (m *memTradeRepo) GetByUserID(userID int) ([]*models.Trade, error) {
	var result []*models.Trade
	for _, t := range m.trades {
		if t.UserID == userID {
			result = append(result, t)
		}
	}
	return result, nil
}

func (m *memTradeRepo) CountBySource(userID int, source string) (int, error) {
	count := 0
	for _, t := range m.trades {
		if t.UserID == userID && t.Source == source {
			count++
		}
	}
	return count, nil
}

func (m *memTradeRepo) DeleteBySource(userID int, source string) (int64, error) {
	var deleted int64
	for key, t := range m.trades {
		if t.UserID == userID && t.Source == source {
			delete(m.trades, key)
			deleted++
		}
	}
	return deleted, nil
}
