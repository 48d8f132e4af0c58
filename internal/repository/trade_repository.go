package repository

import (
	"database/sql"
	"errors"
	"time"

	"tradejournal/internal/models"
)

// Ошибки репозитория сделок
var (
	ErrTradeNotFound = errors.New("trade not found")
)

// TradeRepository - работа с таблицей trades.
// Идемпотентность синхронизации держится на UNIQUE (user_id, mt5_ticket):
// повторная вставка того же тикета - no-op, а не ошибка.
type TradeRepository struct {
	db *sql.DB
}

// NewTradeRepository создает новый экземпляр репозитория
func NewTradeRepository(db *sql.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// InsertIfAbsent вставляет сделку, если тикет еще не записан.
// Возвращает true, если строка была вставлена.
func (r *TradeRepository) InsertIfAbsent(trade *models.Trade) (bool, error) {
	query := `
		INSERT INTO trades (user_id, mt5_ticket, source, symbol, trade_type, volume, open_price, close_price, stop_loss, take_profit, open_time, close_time, profit, commission, swap, net_profit, is_closed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (user_id, mt5_ticket) DO NOTHING`

	now := time.Now()
	trade.CreatedAt = now
	trade.UpdatedAt = now

	if trade.Source == "" {
		trade.Source = models.TradeSourceMT5Auto
	}

	result, err := r.db.Exec(
		query,
		trade.UserID,
		trade.Ticket,
		trade.Source,
		trade.Symbol,
		trade.Type,
		trade.Volume,
		trade.OpenPrice,
		trade.ClosePrice,
		trade.StopLoss,
		trade.TakeProfit,
		trade.OpenTime,
		trade.CloseTime,
		trade.Profit,
		trade.Commission,
		trade.Swap,
		trade.NetProfit,
		trade.IsClosed,
		trade.CreatedAt,
		trade.UpdatedAt,
	)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

// UpsertOpen вставляет или перезаписывает открытую позицию.
// Закрытая запись с тем же тикетом не понижается обратно до открытой:
// UPDATE срабатывает только по строкам с is_closed = FALSE.
func (r *TradeRepository) UpsertOpen(trade *models.Trade) error {
	query := `
		INSERT INTO trades (user_id, mt5_ticket, source, symbol, trade_type, volume, open_price, close_price, stop_loss, take_profit, open_time, close_time, profit, commission, swap, net_profit, is_closed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, FALSE, $17, $18)
		ON CONFLICT (user_id, mt5_ticket) DO UPDATE
		SET symbol = EXCLUDED.symbol,
		    trade_type = EXCLUDED.trade_type,
		    volume = EXCLUDED.volume,
		    open_price = EXCLUDED.open_price,
		    close_price = EXCLUDED.close_price,
		    stop_loss = EXCLUDED.stop_loss,
		    take_profit = EXCLUDED.take_profit,
		    open_time = EXCLUDED.open_time,
		    profit = EXCLUDED.profit,
		    commission = EXCLUDED.commission,
		    swap = EXCLUDED.swap,
		    net_profit = EXCLUDED.net_profit,
		    updated_at = EXCLUDED.updated_at
		WHERE trades.is_closed = FALSE`

	now := time.Now()
	trade.UpdatedAt = now
	if trade.CreatedAt.IsZero() {
		trade.CreatedAt = now
	}

	if trade.Source == "" {
		trade.Source = models.TradeSourceMT5Auto
	}

	_, err := r.db.Exec(
		query,
		trade.UserID,
		trade.Ticket,
		trade.Source,
		trade.Symbol,
		trade.Type,
		trade.Volume,
		trade.OpenPrice,
		trade.ClosePrice,
		trade.StopLoss,
		trade.TakeProfit,
		trade.OpenTime,
		trade.CloseTime,
		trade.Profit,
		trade.Commission,
		trade.Swap,
		trade.NetProfit,
		trade.CreatedAt,
		trade.UpdatedAt,
	)

	return err
}

// GetByTicket возвращает сделку пользователя по тикету MT5
func (r *TradeRepository) GetByTicket(userID int, ticket string) (*models.Trade, error) {
	query := `
		SELECT id, user_id, mt5_ticket, source, symbol, trade_type, volume, open_price, close_price, stop_loss, take_profit, open_time, close_time, profit, commission, swap, net_profit, is_closed, created_at, updated_at
		FROM trades
		WHERE user_id = $1 AND mt5_ticket = $2`

	trade := &models.Trade{}
	err := r.db.QueryRow(query, userID, ticket).Scan(
		&trade.ID,
		&trade.UserID,
		&trade.Ticket,
		&trade.Source,
		&trade.Symbol,
		&trade.Type,
		&trade.Volume,
		&trade.OpenPrice,
		&trade.ClosePrice,
		&trade.StopLoss,
		&trade.TakeProfit,
		&trade.OpenTime,
		&trade.CloseTime,
		&trade.Profit,
		&trade.Commission,
		&trade.Swap,
		&trade.NetProfit,
		&trade.IsClosed,
		&trade.CreatedAt,
		&trade.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTradeNotFound
		}
		return nil, err
	}

	return trade, nil
}

// GetByUserID возвращает все сделки пользователя (новые сверху)
func (r *TradeRepository) GetByUserID(userID int) ([]*models.Trade, error) {
	query := `
		SELECT id, user_id, mt5_ticket, source, symbol, trade_type, volume, open_price, close_price, stop_loss, take_profit, open_time, close_time, profit, commission, swap, net_profit, is_closed, created_at, updated_at
		FROM trades
		WHERE user_id = $1
		ORDER BY open_time DESC`

	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*models.Trade
	for rows.Next() {
		trade := &models.Trade{}
		err := rows.Scan(
			&trade.ID,
			&trade.UserID,
			&trade.Ticket,
			&trade.Source,
			&trade.Symbol,
			&trade.Type,
			&trade.Volume,
			&trade.OpenPrice,
			&trade.ClosePrice,
			&trade.StopLoss,
			&trade.TakeProfit,
			&trade.OpenTime,
			&trade.CloseTime,
			&trade.Profit,
			&trade.Commission,
			&trade.Swap,
			&trade.NetProfit,
			&trade.IsClosed,
			&trade.CreatedAt,
			&trade.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return trades, nil
}

// CountBySource возвращает количество сделок пользователя из указанного источника
func (r *TradeRepository) CountBySource(userID int, source string) (int, error) {
	query := `SELECT COUNT(*) FROM trades WHERE user_id = $1 AND source = $2`

	var count int
	err := r.db.QueryRow(query, userID, source).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// DeleteBySource удаляет все сделки пользователя из указанного источника.
// Используется при отвязке счета MT5.
func (r *TradeRepository) DeleteBySource(userID int, source string) (int64, error) {
	query := `DELETE FROM trades WHERE user_id = $1 AND source = $2`

	result, err := r.db.Exec(query, userID, source)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
