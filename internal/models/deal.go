package models

import "time"

// Deal - атомарное событие исполнения из истории терминала MT5.
// Транзиентные данные: никогда не сохраняются как есть, только
// результат реконсиляции (Trade) попадает в журнал.
type Deal struct {
	Ticket     int64     `json:"ticket"`
	PositionID int64     `json:"position_id"` // группирует вход и выход одной позиции
	Type       int       `json:"type"`        // 0=buy, 1=sell, >1 = balance/credit и прочие не-торговые
	Entry      int       `json:"entry"`       // 0=вход в позицию, 1=выход
	Symbol     string    `json:"symbol"`
	Price      float64   `json:"price"`
	Volume     float64   `json:"volume"`
	Time       time.Time `json:"time"`
	Profit     float64   `json:"profit"`
	Commission float64   `json:"commission"`
	Swap       float64   `json:"swap"`
}

// Типы deal'ов MT5
const (
	DealTypeBuy  = 0
	DealTypeSell = 1
)

// Направления deal'а (поле Entry)
const (
	DealEntryIn  = 0
	DealEntryOut = 1
)

// IsTrade возвращает true для торговых deal'ов
// (type > 1 - балансовые операции, кредиты и т.п.)
func (d *Deal) IsTrade() bool {
	return d.Type == DealTypeBuy || d.Type == DealTypeSell
}

// Position - текущая открытая позиция из терминала.
// Превращается в "открытую" сделку с текущей ценой как предварительной
// ценой закрытия и плавающим профитом как предварительным результатом.
type Position struct {
	Ticket       int64     `json:"ticket"`
	Symbol       string    `json:"symbol"`
	Type         int       `json:"type"` // 0=buy, 1=sell
	Volume       float64   `json:"volume"`
	PriceOpen    float64   `json:"price_open"`
	PriceCurrent float64   `json:"price_current"`
	StopLoss     float64   `json:"sl"`
	TakeProfit   float64   `json:"tp"`
	Time         time.Time `json:"time"`
	Profit       float64   `json:"profit"` // плавающий
	Swap         float64   `json:"swap"`
}
