package engine

import (
	"github.com/shopspring/decimal"

	"rebuybot/internal/config"
	"rebuybot/internal/models"
)

var one = decimal.NewFromInt(1)

func clampDec(v, min, max decimal.Decimal) decimal.Decimal {
	if v.LessThan(min) {
		return min
	}
	if v.GreaterThan(max) {
		return max
	}
	return v
}

func nextRebuyDrop(current decimal.Decimal, st config.Strategy) decimal.Decimal {
	return clampDec(current.Mul(st.RebuyMultiplier), st.RebuyDropMin, st.RebuyDropMax)
}

func nextProfitTarget(current decimal.Decimal, st config.Strategy) decimal.Decimal {
	return clampDec(current.Mul(st.ProfitTargetMultiplier), st.ProfitTargetMin, st.ProfitTargetMax)
}

// sellPrice: basis * (1 + target) / (1 - fee), целые тики.
func sellPrice(basis, target, fee decimal.Decimal) decimal.Decimal {
	return basis.Mul(one.Add(target)).Div(one.Sub(fee)).Floor()
}

func rebuyPrice(ref, drop decimal.Decimal) decimal.Decimal {
	return ref.Mul(one.Sub(drop)).Floor()
}

// avgEntryPrice: вложено p*q*(1+fee), получено q*(1-fee).
func avgEntryPrice(buys []models.Fill, fee decimal.Decimal) decimal.Decimal {
	if len(buys) == 0 {
		return decimal.Zero
	}
	cost := decimal.Zero
	qty := decimal.Zero
	for _, b := range buys {
		cost = cost.Add(b.Price.Mul(b.Qty))
		qty = qty.Add(b.Qty)
	}
	if qty.IsZero() {
		return decimal.Zero
	}
	return cost.Mul(one.Add(fee)).Div(qty.Mul(one.Sub(fee)))
}

func sellableQty(buys []models.Fill, fee decimal.Decimal) decimal.Decimal {
	qty := decimal.Zero
	for _, b := range buys {
		qty = qty.Add(b.Qty.Mul(one.Sub(fee)))
	}
	return qty.RoundDown(6)
}

// investedCost — затраты на покупки цикла вместе с комиссией.
func investedCost(buys []models.Fill, fee decimal.Decimal) decimal.Decimal {
	cost := decimal.Zero
	for _, b := range buys {
		cost = cost.Add(b.Price.Mul(b.Qty))
	}
	return cost.Mul(one.Add(fee))
}

func cycleProfit(sellPrice, sellQty, invested, fee decimal.Decimal) decimal.Decimal {
	return sellPrice.Mul(sellQty).Mul(one.Sub(fee)).Sub(invested)
}

// buyQty — размер очередной покупки в котируемой валюте: нотионал
// последней покупки с множителем, плюс доля реинвестируемой прибыли,
// затем границы.
func buyQty(lastNotional, profitSlice decimal.Decimal, isRebuy bool, st config.Strategy) decimal.Decimal {
	qty := st.QtyInitial
	if isRebuy && lastNotional.IsPositive() {
		qty = lastNotional.Mul(st.QtyMultiplier)
	}
	if profitSlice.IsPositive() {
		qty = qty.Add(profitSlice)
	}
	qty = clampDec(qty, st.QtyMin, st.QtyMax)
	return qty.RoundDown(2)
}

// profitSlices дробит накопленную прибыль на доли для следующих покупок,
// долей не больше, чем ордеров в цикле.
func profitSlices(total decimal.Decimal, st config.Strategy) (perOrder decimal.Decimal, count int) {
	if !total.IsPositive() {
		return decimal.Zero, 0
	}
	count = st.ProfitDistributionOrders
	if max := st.RebuysMax + 1; count > max {
		count = max
	}
	if count < 1 {
		count = 1
	}
	perOrder = total.Div(decimal.NewFromInt(int64(count))).RoundDown(2)
	return perOrder, count
}
