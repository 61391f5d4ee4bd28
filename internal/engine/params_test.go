package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rebuybot/internal/config"
	"rebuybot/internal/models"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestClampDec(t *testing.T) {
	min := d("0.001")
	max := d("0.01")

	assert.True(t, clampDec(d("0.005"), min, max).Equal(d("0.005")))
	assert.True(t, clampDec(d("0.0001"), min, max).Equal(min))
	assert.True(t, clampDec(d("0.5"), min, max).Equal(max))
}

func TestNextRebuyDrop(t *testing.T) {
	st := config.DefaultStrategy()

	tests := []struct {
		name       string
		multiplier string
		current    string
		want       string
	}{
		{"shrinks below one", "0.98", "0.0025", "0.00245"},
		{"stays at one", "1", "0.0025", "0.0025"},
		{"grows above one", "1.5", "0.0025", "0.00375"},
		{"clamped to floor", "0.1", "0.0025", "0.001"},
		{"clamped to ceiling", "10", "0.0025", "0.01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st.RebuyMultiplier = d(tt.multiplier)
			got := nextRebuyDrop(d(tt.current), st)
			assert.True(t, got.Equal(d(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestNextProfitTarget(t *testing.T) {
	st := config.DefaultStrategy()

	got := nextProfitTarget(d("0.003"), st)
	assert.True(t, got.Equal(d("0.00291")))

	// Сжатие не пробивает нижнюю границу.
	got = d("0.003")
	for i := 0; i < 100; i++ {
		got = nextProfitTarget(got, st)
	}
	assert.True(t, got.Equal(st.ProfitTargetMin))
}

func TestSellPriceCoversFeeAndTarget(t *testing.T) {
	price := sellPrice(d("50000"), d("0.003"), d("0.001"))
	assert.True(t, price.Equal(d("50200")), "got %s", price)

	// Выручка по этой цене после комиссии не ниже входа.
	proceeds := price.Mul(d("0.999"))
	assert.True(t, proceeds.GreaterThan(d("50000")))
}

func TestRebuyPrice(t *testing.T) {
	price := rebuyPrice(d("50000"), d("0.0025"))
	assert.True(t, price.Equal(d("49875")), "got %s", price)
}

func TestAvgEntryPrice(t *testing.T) {
	fee := d("0.001")

	assert.True(t, avgEntryPrice(nil, fee).IsZero())

	buys := []models.Fill{
		{Price: d("50000"), Qty: d("0.002")},
	}
	avg := avgEntryPrice(buys, fee)
	want := d("50000").Mul(d("1.001")).Div(d("0.999"))
	assert.True(t, avg.Equal(want), "got %s want %s", avg, want)

	// Вторая покупка дешевле — средняя опускается.
	buys = append(buys, models.Fill{Price: d("49000"), Qty: d("0.002")})
	lower := avgEntryPrice(buys, fee)
	assert.True(t, lower.LessThan(avg))
}

func TestSellableQty(t *testing.T) {
	buys := []models.Fill{
		{Price: d("50000"), Qty: d("0.002")},
		{Price: d("49000"), Qty: d("0.003")},
	}
	qty := sellableQty(buys, d("0.001"))
	assert.True(t, qty.Equal(d("0.004995")), "got %s", qty)
}

func TestCycleProfit(t *testing.T) {
	profit := cycleProfit(d("50200"), d("0.001998"), d("100"), d("0.001"))
	require.True(t, profit.IsPositive())

	loss := cycleProfit(d("40000"), d("0.001998"), d("100"), d("0.001"))
	require.True(t, loss.IsNegative())
}

func TestBuyQty(t *testing.T) {
	st := config.DefaultStrategy()

	// Вход всегда от начального объёма, рекомпра — от нотионала
	// последней покупки.
	assert.True(t, buyQty(decimal.Zero, decimal.Zero, false, st).Equal(d("100")))
	assert.True(t, buyQty(d("100"), decimal.Zero, true, st).Equal(d("104")))
	assert.True(t, buyQty(d("103.74"), decimal.Zero, true, st).Equal(d("107.88")))

	// Рост упирается в потолок.
	capped := buyQty(d("1000"), decimal.Zero, true, st)
	assert.True(t, capped.Equal(st.QtyMax))

	// Доля прибыли добавляется до границ: потолок не пробивается.
	nearMax := buyQty(d("390"), d("60"), true, st)
	assert.True(t, nearMax.Equal(st.QtyMax), "got %s", nearMax)

	// Остаток режется до центов.
	withSlice := buyQty(decimal.Zero, d("0.333"), false, st)
	assert.True(t, withSlice.Equal(d("100.33")), "got %s", withSlice)
}

func TestInvestedCost(t *testing.T) {
	buys := []models.Fill{
		{Price: d("50000"), Qty: d("0.002")},
	}
	cost := investedCost(buys, d("0.001"))
	assert.True(t, cost.Equal(d("100.1")), "got %s", cost)
}

func TestProfitSlices(t *testing.T) {
	st := config.DefaultStrategy()
	st.ProfitDistributionOrders = 2

	perOrder, count := profitSlices(d("1.01"), st)
	assert.Equal(t, 2, count)
	assert.True(t, perOrder.Equal(d("0.5")), "got %s", perOrder)

	perOrder, count = profitSlices(decimal.Zero, st)
	assert.Equal(t, 0, count)
	assert.True(t, perOrder.IsZero())

	perOrder, count = profitSlices(d("-5"), st)
	assert.Equal(t, 0, count)
	assert.True(t, perOrder.IsZero())

	// Долей не больше, чем ордеров в цикле.
	st.ProfitDistributionOrders = 10
	st.RebuysMax = 2
	_, count = profitSlices(d("9"), st)
	assert.Equal(t, 3, count)
}
