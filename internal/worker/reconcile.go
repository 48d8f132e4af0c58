package worker

import (
	"sort"
	"strconv"
	"time"

	"tradejournal/internal/models"
)

// ReconcileResult - итог реконсиляции одного счета
type ReconcileResult struct {
	// Closed - полностью закрытые позиции, неизменяемые записи журнала
	Closed []models.Trade

	// Open - текущие открытые позиции с предварительными значениями.
	// Перезаписываются на каждом цикле, пока позиция не закроется.
	Open []models.Trade

	// NewestCloseTime - время самого свежего закрытия; nil если закрытых
	// сделок нет. Становится watermark'ом инкрементальной выборки.
	NewestCloseTime *time.Time

	// Anomalies - количество тикетов, пропущенных из-за битых групп
	// deal'ов (выход без входа и т.п.)
	Anomalies int
}

// Reconcile собирает из атомарных deal'ов терминала цельные сделки.
//
// Функции:
// - отбрасывает не-торговые deal'ы (балансовые операции, кредиты)
// - группирует торговые по position_id: вход дает цену/время открытия,
//   направление и объем, выход - цену/время закрытия
// - profit берется из deal'а выхода, комиссия и своп суммируются по
//   входу и выходу, net = profit + commission + swap
// - открытые позиции превращаются в предварительные записи с текущей
//   ценой как ценой закрытия и плавающим профитом
//
// Битая группа (выход без входа) не валит цикл: тикет пропускается,
// остальные обрабатываются.
func Reconcile(userID int, deals []models.Deal, positions []models.Position) ReconcileResult {
	var result ReconcileResult

	groups := make(map[int64][]models.Deal)
	var order []int64
	for _, d := range deals {
		if !d.IsTrade() {
			continue
		}
		if _, seen := groups[d.PositionID]; !seen {
			order = append(order, d.PositionID)
		}
		groups[d.PositionID] = append(groups[d.PositionID], d)
	}

	closedTickets := make(map[string]bool)

	for _, positionID := range order {
		trade, ok := buildClosedTrade(userID, positionID, groups[positionID])
		if !ok {
			result.Anomalies++
			continue
		}
		if trade == nil {
			// есть вход, но нет выхода: позиция еще открыта,
			// ее отдаст срез positions
			continue
		}

		result.Closed = append(result.Closed, *trade)
		closedTickets[trade.Ticket] = true

		if result.NewestCloseTime == nil || trade.CloseTime.After(*result.NewestCloseTime) {
			t := *trade.CloseTime
			result.NewestCloseTime = &t
		}
	}

	for _, p := range positions {
		ticket := strconv.FormatInt(p.Ticket, 10)
		// позиция закрылась между запросом истории и запросом позиций:
		// закрытая запись побеждает
		if closedTickets[ticket] {
			continue
		}
		result.Open = append(result.Open, buildOpenTrade(userID, &p, ticket))
	}

	return result
}

// buildClosedTrade собирает закрытую сделку из группы deal'ов.
// Возвращает (nil, true) для еще открытой позиции (вход без выхода)
// и (nil, false) для битой группы.
func buildClosedTrade(userID int, positionID int64, group []models.Deal) (*models.Trade, bool) {
	sort.Slice(group, func(i, j int) bool {
		return group[i].Time.Before(group[j].Time)
	})

	var entry, exit *models.Deal
	for i := range group {
		d := &group[i]
		switch d.Entry {
		case models.DealEntryIn:
			if entry == nil {
				entry = d
			}
		case models.DealEntryOut:
			// при частичных закрытиях берем последний выход
			exit = d
		}
	}

	if entry == nil {
		// выход без входа: история обрезана окном выборки или
		// данные терминала неконсистентны
		return nil, false
	}
	if exit == nil {
		return nil, true
	}

	direction := models.TradeTypeBuy
	if entry.Type == models.DealTypeSell {
		direction = models.TradeTypeSell
	}

	var commission, swap float64
	for _, d := range group {
		commission += d.Commission
		swap += d.Swap
	}

	closePrice := exit.Price
	closeTime := exit.Time
	profit := exit.Profit

	trade := &models.Trade{
		UserID:     userID,
		Ticket:     strconv.FormatInt(positionID, 10),
		Source:     models.TradeSourceMT5Auto,
		Symbol:     entry.Symbol,
		Type:       direction,
		Volume:     entry.Volume,
		OpenPrice:  entry.Price,
		ClosePrice: &closePrice,
		OpenTime:   entry.Time,
		CloseTime:  &closeTime,
		Profit:     profit,
		Commission: commission,
		Swap:       swap,
		NetProfit:  profit + commission + swap,
		IsClosed:   true,
	}
	return trade, true
}

// buildOpenTrade превращает открытую позицию в предварительную запись
func buildOpenTrade(userID int, p *models.Position, ticket string) models.Trade {
	direction := models.TradeTypeBuy
	if p.Type == models.DealTypeSell {
		direction = models.TradeTypeSell
	}

	currentPrice := p.PriceCurrent
	trade := models.Trade{
		UserID:     userID,
		Ticket:     ticket,
		Source:     models.TradeSourceMT5Auto,
		Symbol:     p.Symbol,
		Type:       direction,
		Volume:     p.Volume,
		OpenPrice:  p.PriceOpen,
		ClosePrice: &currentPrice,
		OpenTime:   p.Time,
		Profit:     p.Profit,
		Swap:       p.Swap,
		NetProfit:  p.Profit,
		IsClosed:   false,
	}

	if p.StopLoss != 0 {
		sl := p.StopLoss
		trade.StopLoss = &sl
	}
	if p.TakeProfit != 0 {
		tp := p.TakeProfit
		trade.TakeProfit = &tp
	}

	return trade
}
