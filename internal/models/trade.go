package models

import "time"

// Trade представляет одну реконструированную сделку (round-trip позицию)
// в журнале. Инвариант идемпотентности: не более одной записи на пару
// (user_id, mt5_ticket). Закрытая сделка неизменяема; открытая
// перезаписывается на каждом цикле, пока позиция не закроется.
type Trade struct {
	ID     int `json:"id" db:"id"`
	UserID int `json:"user_id" db:"user_id"`

	Ticket string `json:"mt5_ticket" db:"mt5_ticket"` // position id из MT5
	Source string `json:"trade_source" db:"source"`

	Symbol string  `json:"symbol" db:"symbol"`
	Type   string  `json:"trade_type" db:"trade_type"` // buy, sell
	Volume float64 `json:"volume" db:"volume"`         // лоты

	OpenPrice  float64  `json:"open_price" db:"open_price"`
	ClosePrice *float64 `json:"close_price" db:"close_price"` // для открытой - текущая цена
	StopLoss   *float64 `json:"stop_loss" db:"stop_loss"`
	TakeProfit *float64 `json:"take_profit" db:"take_profit"`

	OpenTime  time.Time  `json:"open_time" db:"open_time"`
	CloseTime *time.Time `json:"close_time" db:"close_time"` // NULL пока позиция открыта

	Profit     float64 `json:"profit" db:"profit"`
	Commission float64 `json:"commission" db:"commission"` // вход + выход
	Swap       float64 `json:"swap" db:"swap"`             // вход + выход
	NetProfit  float64 `json:"net_profit" db:"net_profit"` // profit + commission + swap

	IsClosed bool `json:"is_closed" db:"is_closed"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Направления сделки
const (
	TradeTypeBuy  = "buy"
	TradeTypeSell = "sell"
)

// Источники сделки
const (
	TradeSourceMT5Auto = "mt5_auto" // импортирована worker'ом
	TradeSourceManual  = "manual"   // введена пользователем
)
