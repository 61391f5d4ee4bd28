package engine

import (
	"github.com/shopspring/decimal"

	"rebuybot/internal/models"
)

// CycleState — всё изменяемое состояние цикла. Владеет им только движок;
// монитор и keep-alive читают идентификаторы ордеров через методы движка.
type CycleState struct {
	CycleID    int64
	Buys       []models.Fill
	RebuyCount int

	CurrentRebuyDrop    decimal.Decimal
	CurrentProfitTarget decimal.Decimal

	TotalInvested decimal.Decimal
	ProfitOfCycle decimal.Decimal

	CurrentSellID  string
	CurrentRebuyID string
	ActiveOrders   map[string]models.OrderRef

	// Пауза по нехватке баланса: PendingRebuy* заполнены тогда и только
	// тогда, когда Paused == true.
	Paused            bool
	PendingRebuyPrice *decimal.Decimal
	PendingRebuyQty   *decimal.Decimal

	// Леджер прибыли, живёт сквозь циклы.
	TotalProfit           decimal.Decimal
	LastCycleProfit       decimal.Decimal
	ProfitToAddPerOrder   decimal.Decimal
	ProfitOrdersRemaining int

	QuoteBalance decimal.Decimal

	cycleTag string
}

func newCycleState() CycleState {
	return CycleState{
		Buys:         []models.Fill{},
		ActiveOrders: map[string]models.OrderRef{},
	}
}

// resetCycle очищает поля, живущие в пределах одного цикла. Леджер
// прибыли и счётчик циклов не трогает.
func (s *CycleState) resetCycle(rebuyPercent, profitTarget decimal.Decimal) {
	s.Buys = []models.Fill{}
	s.RebuyCount = 0
	s.TotalInvested = decimal.Zero
	s.CurrentRebuyDrop = rebuyPercent
	s.CurrentProfitTarget = profitTarget
	s.CurrentSellID = ""
	s.CurrentRebuyID = ""
	s.cycleTag = ""
	s.clearPause()
}

// clearPause — единственная точка сброса паузы: оба выхода (заполненная
// продажа и пуш баланса) сходятся сюда.
func (s *CycleState) clearPause() {
	s.Paused = false
	s.PendingRebuyPrice = nil
	s.PendingRebuyQty = nil
}

func (s *CycleState) lastBuy() (models.Fill, bool) {
	if len(s.Buys) == 0 {
		return models.Fill{}, false
	}
	return s.Buys[len(s.Buys)-1], true
}
