package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"rebuybot/internal/models"
)

func (e *Engine) runCycle(ctx context.Context) Status {
	e.mu.Lock()
	resume := e.st.CurrentSellID != "" || e.st.CurrentRebuyID != ""
	e.mu.Unlock()

	// Прерванный цикл не открывают заново: пока живы его ордера,
	// возвращаемся к наблюдению.
	if resume {
		e.logEntry().Warn("Остались активные ордера, возвращаемся к наблюдению за циклом.")
		return e.monitor.MonitorCycle(ctx)
	}

	if st := e.checkEntryBalance(ctx); st != StatusOK {
		return st
	}

	e.mu.Lock()
	e.st.resetCycle(e.cfg.Strategy.RebuyPercent, e.cfg.Strategy.ProfitTarget)
	e.st.cycleTag = newCycleTag()
	e.mu.Unlock()

	if st := e.executeInitialBuy(ctx); st != StatusOK {
		return st
	}
	if st := e.placeSellOrder(ctx); st != StatusOK {
		return st
	}
	if st := e.placeRebuyOrder(ctx); st == StatusFatal {
		return st
	}
	return e.monitor.MonitorCycle(ctx)
}

// checkEntryBalance не даёт жечь лимиты ордеров заведомо провальными
// входами: без денег на вход цикл не стартует.
func (e *Engine) checkEntryBalance(ctx context.Context) Status {
	_, quote, err := e.client.GetBalances(ctx)
	if err != nil {
		e.logEntry().WithError(err).Warn("Не удалось получить баланс перед входом.")
		return StatusRetry
	}
	e.mu.Lock()
	e.st.QuoteBalance = quote
	e.mu.Unlock()

	if quote.LessThan(e.cfg.Strategy.QtyInitial) {
		e.logEntry().WithFields(map[string]interface{}{
			"balance": quote.String(),
			"need":    e.cfg.Strategy.QtyInitial.String(),
		}).Warn("Недостаточно баланса для входа, ждём пополнения.")
		return StatusRetry
	}
	return StatusOK
}

// Номер цикла растёт только после подтверждённого исполнения входа.
func (e *Engine) executeInitialBuy(ctx context.Context) Status {
	e.mu.Lock()
	slice := e.consumeProfitSliceLocked()
	qty := buyQty(decimal.Zero, slice, false, e.cfg.Strategy)
	tag := e.st.cycleTag
	e.mu.Unlock()

	limit := e.cfg.Strategy.SaldoLimite
	if limit.IsPositive() && qty.GreaterThan(limit) {
		e.logEntry().WithFields(map[string]interface{}{
			"qty":   qty.String(),
			"limit": limit.String(),
		}).Error("Начальный объём превышает лимит депозита.")
		return StatusFatal
	}

	orderID, err := e.placeOrder(ctx, models.OrderRequest{
		Symbol: e.cfg.Bot.Symbol,
		Side:   models.OrderSideBuy,
		Type:   models.OrderTypeMarket,
		Qty:    qty,
		LinkID: tag + "-entry",
	})
	if err != nil {
		e.logEntry().WithError(err).Warn("Не удалось разместить начальную покупку.")
		return StatusRetry
	}

	details, err := e.client.GetOrderDetails(ctx, orderID, 20)
	if err != nil {
		e.logEntry().WithError(err).WithField("order_id", orderID).Warn("Не удалось получить детали начальной покупки.")
		return StatusRetry
	}
	if details.Price.IsZero() || details.Qty.IsZero() {
		e.logEntry().WithField("order_id", orderID).Warn("Начальная покупка не подтвердилась, цикл не стартует.")
		return StatusRetry
	}

	e.mu.Lock()
	e.st.CycleID++
	e.st.Buys = append(e.st.Buys, models.Fill{
		Price:   details.Price,
		Qty:     details.Qty,
		OrderID: orderID,
		CycleID: e.st.CycleID,
	})
	e.st.TotalInvested = details.Price.Mul(details.Qty)
	cycleID := e.st.CycleID
	e.mu.Unlock()

	e.logEntry().WithFields(map[string]interface{}{
		"cycle":    cycleID,
		"order_id": orderID,
		"price":    details.Price.String(),
		"qty":      details.Qty.String(),
		"invested": qty.String(),
	}).Info("Цикл открыт начальной покупкой.")
	return StatusOK
}

// placeSellOrder выставляет продажу цикла. Первая продажа считается от
// цены входа, после рекомпр — от средней с учётом комиссий. Пока продажа
// не встала, позиция без защиты, поэтому размещение повторяется до упора.
func (e *Engine) placeSellOrder(ctx context.Context) Status {
	e.mu.Lock()
	fee := e.cfg.Strategy.Fee
	var basis decimal.Decimal
	if len(e.st.Buys) == 1 {
		basis = e.st.Buys[0].Price
	} else {
		basis = avgEntryPrice(e.st.Buys, fee)
	}
	price := sellPrice(basis, e.st.CurrentProfitTarget, fee)
	qty := sellableQty(e.st.Buys, fee)
	tag := e.st.cycleTag
	seq := e.st.RebuyCount
	cycleID := e.st.CycleID
	e.mu.Unlock()

	if qty.IsZero() {
		e.logEntry().Error("Нечего продавать, цикл прерван.")
		return StatusRetry
	}

	var orderID string
	for {
		id, err := e.placeOrder(ctx, models.OrderRequest{
			Symbol: e.cfg.Bot.Symbol,
			Side:   models.OrderSideSell,
			Type:   models.OrderTypeLimit,
			Qty:    qty,
			Price:  price,
			LinkID: fmt.Sprintf("%s-sell-%d", tag, seq),
		})
		if err == nil {
			orderID = id
			break
		}
		e.logEntry().WithError(err).Error("Не удалось разместить продажу, повторим позже.")
		if !e.running.Load() {
			return StatusRetry
		}
		select {
		case <-ctx.Done():
			return StatusRetry
		case <-time.After(e.retryDelay):
		}
	}

	e.mu.Lock()
	e.st.CurrentSellID = orderID
	e.st.ActiveOrders[orderID] = models.OrderRef{Symbol: e.cfg.Bot.Symbol, Side: models.OrderSideSell}
	e.mu.Unlock()

	e.log.WithCycle(cycleID).WithFields(map[string]interface{}{
		"order_id": orderID,
		"price":    price.String(),
		"qty":      qty.String(),
		"basis":    basis.Round(2).String(),
	}).Info("Продажа размещена.")
	return StatusOK
}

// Нехватка баланса под рекомпру не ошибка: заявка замораживается до
// пуша кошелька или закрытия цикла.
func (e *Engine) placeRebuyOrder(ctx context.Context) Status {
	e.mu.Lock()
	st := e.cfg.Strategy
	// rebuys_max = 0 означает без лимита.
	if st.RebuysMax > 0 && e.st.RebuyCount >= st.RebuysMax {
		cycleID := e.st.CycleID
		e.mu.Unlock()
		e.log.WithCycle(cycleID).Info("Достигнут лимит рекомпр, ждём продажу.")
		return StatusOK
	}
	last, ok := e.st.lastBuy()
	if !ok {
		e.mu.Unlock()
		e.logEntry().Error("Нет покупок для расчёта рекомпры.")
		return StatusFatal
	}
	price := rebuyPrice(last.Price, e.st.CurrentRebuyDrop)
	notional := last.Price.Mul(last.Qty)
	invested := e.st.TotalInvested
	seq := e.st.RebuyCount + 1
	tag := e.st.cycleTag
	cycleID := e.st.CycleID
	e.mu.Unlock()

	baseQty := buyQty(notional, decimal.Zero, true, st)
	if st.SaldoLimite.IsPositive() && invested.Add(baseQty).GreaterThan(st.SaldoLimite) {
		e.log.WithCycle(cycleID).WithFields(map[string]interface{}{
			"invested": invested.String(),
			"limit":    st.SaldoLimite.String(),
		}).Info("Лимит депозита исчерпан, рекомпр больше не будет.")
		return StatusOK
	}

	e.mu.Lock()
	slice := e.consumeProfitSliceLocked()
	e.mu.Unlock()
	qty := buyQty(notional, slice, true, st)

	_, quoteBal, err := e.client.GetBalances(ctx)
	if err != nil {
		e.logEntry().WithError(err).Warn("Не удалось проверить баланс перед рекомпрой.")
		quoteBal = decimal.Zero
	}
	if quoteBal.LessThan(qty) {
		e.pauseRebuy(price, qty, quoteBal)
		return StatusOK
	}

	return e.submitRebuy(ctx, price, qty, seq, tag, cycleID)
}

func (e *Engine) submitRebuy(ctx context.Context, price, qty decimal.Decimal, seq int, tag string, cycleID int64) Status {
	orderID, err := e.placeOrder(ctx, models.OrderRequest{
		Symbol: e.cfg.Bot.Symbol,
		Side:   models.OrderSideBuy,
		Type:   models.OrderTypeLimit,
		Qty:    qty,
		Price:  price,
		LinkID: fmt.Sprintf("%s-rebuy-%d", tag, seq),
	})
	if err != nil {
		if isInsufficientBalanceError(err) {
			e.pauseRebuy(price, qty, decimal.Zero)
			return StatusOK
		}
		e.logEntry().WithError(err).Warn("Не удалось разместить рекомпру, цикл продолжится без неё.")
		return StatusOK
	}

	e.mu.Lock()
	e.st.CurrentRebuyID = orderID
	e.st.ActiveOrders[orderID] = models.OrderRef{Symbol: e.cfg.Bot.Symbol, Side: models.OrderSideBuy}
	e.mu.Unlock()

	e.log.WithCycle(cycleID).WithFields(map[string]interface{}{
		"order_id": orderID,
		"price":    price.String(),
		"qty":      qty.String(),
		"rebuy":    seq,
	}).Info("Рекомпра размещена.")
	return StatusOK
}

func (e *Engine) pauseRebuy(price, qty, balance decimal.Decimal) {
	e.mu.Lock()
	e.st.Paused = true
	e.st.PendingRebuyPrice = &price
	e.st.PendingRebuyQty = &qty
	cycleID := e.st.CycleID
	e.mu.Unlock()

	e.log.WithCycle(cycleID).WithFields(map[string]interface{}{
		"need":    qty.String(),
		"balance": balance.String(),
	}).Warn("Недостаточно баланса, рекомпра отложена до пополнения.")
}

func (e *Engine) onRebuyFilled(ctx context.Context, details models.OrderDetails) Status {
	e.mu.Lock()
	st := e.cfg.Strategy
	e.st.RebuyCount++
	e.st.Buys = append(e.st.Buys, models.Fill{
		Price:   details.Price,
		Qty:     details.Qty,
		OrderID: details.OrderID,
		CycleID: e.st.CycleID,
	})
	e.st.TotalInvested = e.st.TotalInvested.Add(details.Price.Mul(details.Qty))
	e.st.CurrentRebuyDrop = nextRebuyDrop(e.st.CurrentRebuyDrop, st)
	e.st.CurrentProfitTarget = nextProfitTarget(e.st.CurrentProfitTarget, st)
	delete(e.st.ActiveOrders, details.OrderID)
	e.st.CurrentRebuyID = ""
	sellID := e.st.CurrentSellID
	cycleID := e.st.CycleID
	count := e.st.RebuyCount
	e.mu.Unlock()

	e.log.WithCycle(cycleID).WithFields(map[string]interface{}{
		"order_id": details.OrderID,
		"price":    details.Price.String(),
		"qty":      details.Qty.String(),
		"rebuy":    count,
	}).Info("Рекомпра исполнена.")

	if sellID != "" {
		if err := e.withRetryVoid(ctx, func() error {
			return e.client.CancelOrder(ctx, e.cfg.Bot.Symbol, sellID)
		}); err != nil {
			e.logEntry().WithError(err).WithField("order_id", sellID).Error("Не удалось снять продажу для перестановки, цикл прерван.")
			return StatusRetry
		}
		e.mu.Lock()
		delete(e.st.ActiveOrders, sellID)
		e.st.CurrentSellID = ""
		e.mu.Unlock()
	}

	if st := e.placeSellOrder(ctx); st != StatusOK {
		return st
	}
	return e.placeRebuyOrder(ctx)
}

// onSellFilled закрывает цикл.
func (e *Engine) onSellFilled(ctx context.Context, details models.OrderDetails) Status {
	e.mu.Lock()
	st := e.cfg.Strategy
	profit := cycleProfit(details.Price, details.Qty, investedCost(e.st.Buys, st.Fee), st.Fee)
	e.st.ProfitOfCycle = profit
	e.st.LastCycleProfit = profit
	e.st.TotalProfit = e.st.TotalProfit.Add(profit)
	if st.ProfitReaplicar {
		e.st.ProfitToAddPerOrder, e.st.ProfitOrdersRemaining = profitSlices(e.st.TotalProfit, st)
	}
	delete(e.st.ActiveOrders, details.OrderID)
	e.st.CurrentSellID = ""
	rebuyID := e.st.CurrentRebuyID
	cycleID := e.st.CycleID
	total := e.st.TotalProfit
	e.mu.Unlock()

	if rebuyID != "" {
		if err := e.withRetryVoid(ctx, func() error {
			return e.client.CancelOrder(ctx, e.cfg.Bot.Symbol, rebuyID)
		}); err != nil {
			e.logEntry().WithError(err).WithField("order_id", rebuyID).Warn("Не удалось снять рекомпру после продажи.")
		}
		e.mu.Lock()
		delete(e.st.ActiveOrders, rebuyID)
		e.st.CurrentRebuyID = ""
		e.mu.Unlock()
	}

	e.clearPauseState("закрытие цикла")

	e.log.WithCycle(cycleID).WithFields(map[string]interface{}{
		"order_id":     details.OrderID,
		"price":        details.Price.String(),
		"qty":          details.Qty.String(),
		"profit":       profit.Round(4).String(),
		"total_profit": total.Round(4).String(),
	}).Info("Продажа исполнена, цикл закрыт.")

	e.cycleDone.Set()
	return StatusOK
}

func (e *Engine) tryExecutePendingRebuy(ctx context.Context) {
	e.mu.Lock()
	if !e.st.Paused || e.st.PendingRebuyPrice == nil || e.st.PendingRebuyQty == nil {
		e.mu.Unlock()
		return
	}
	price := *e.st.PendingRebuyPrice
	qty := *e.st.PendingRebuyQty
	seq := e.st.RebuyCount + 1
	tag := e.st.cycleTag
	cycleID := e.st.CycleID
	e.mu.Unlock()

	_, quoteBal, err := e.client.GetBalances(ctx)
	if err != nil {
		e.logEntry().WithError(err).Debug("Не удалось проверить баланс для отложенной рекомпры.")
		return
	}
	if quoteBal.LessThan(qty) {
		return
	}

	if st := e.submitRebuy(ctx, price, qty, seq, tag, cycleID); st == StatusOK {
		e.mu.Lock()
		placed := e.st.CurrentRebuyID != ""
		e.mu.Unlock()
		if placed {
			e.clearPauseState("баланс пополнен")
		}
	}
}

// clearPauseState — единственная точка выхода из паузы.
func (e *Engine) clearPauseState(reason string) {
	e.mu.Lock()
	wasPaused := e.st.Paused
	e.st.clearPause()
	cycleID := e.st.CycleID
	e.mu.Unlock()

	if wasPaused {
		e.log.WithCycle(cycleID).WithField("reason", reason).Info("Пауза рекомпры снята.")
	}
}

func (e *Engine) consumeProfitSliceLocked() decimal.Decimal {
	if e.st.ProfitOrdersRemaining <= 0 {
		return decimal.Zero
	}
	e.st.ProfitOrdersRemaining--
	return e.st.ProfitToAddPerOrder
}
