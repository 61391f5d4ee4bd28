package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestLoadStrategyMissingFileUsesDefaults(t *testing.T) {
	s, err := LoadStrategy(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.True(t, s.QtyInitial.Equal(d("100")))
	assert.True(t, s.ProfitTarget.Equal(d("0.003")))
	assert.True(t, s.ProfitReaplicar)
}

func TestLoadStrategyDividesPercentages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategy.json")
	raw := `{
        "qty_initial": 100,
        "qty_min": 10,
        "qty_max": 400,
        "qty_multiplier": 1.04,
        "profit_target": 0.3,
        "profit_target_min": 0.1,
        "profit_target_max": 2,
        "profit_target_multiplier": 0.97,
        "rebuy_percent": 0.25,
        "rebuy_drop_min": 0.1,
        "rebuy_drop_max": 1,
        "rebuy_multiplier": 0.98,
        "rebuys_max": 45,
        "fee": 0.1,
        "saldo_limite": 0,
        "profit_reaplicar": "s",
        "profit_distribution_orders": 2
    }`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	s, err := LoadStrategy(path)
	require.NoError(t, err)

	// В файле доли лежат в процентах.
	assert.True(t, s.ProfitTarget.Equal(d("0.003")), "got %s", s.ProfitTarget)
	assert.True(t, s.RebuyPercent.Equal(d("0.0025")), "got %s", s.RebuyPercent)
	assert.True(t, s.Fee.Equal(d("0.001")), "got %s", s.Fee)
	assert.True(t, s.QtyMultiplier.Equal(d("1.04")))
	assert.True(t, s.ProfitReaplicar)
}

func TestSaveStrategyRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategy.json")
	want := DefaultStrategy()
	want.ProfitReaplicar = false
	want.SaldoLimite = d("5000")

	require.NoError(t, SaveStrategy(path, want))
	got, err := LoadStrategy(path)
	require.NoError(t, err)

	assert.True(t, got.QtyInitial.Equal(want.QtyInitial))
	assert.True(t, got.ProfitTarget.Equal(want.ProfitTarget))
	assert.True(t, got.RebuyPercent.Equal(want.RebuyPercent))
	assert.True(t, got.Fee.Equal(want.Fee))
	assert.True(t, got.SaldoLimite.Equal(want.SaldoLimite))
	assert.Equal(t, want.RebuysMax, got.RebuysMax)
	assert.False(t, got.ProfitReaplicar)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Strategy)
	}{
		{"zero initial qty", func(s *Strategy) { s.QtyInitial = decimal.Zero }},
		{"max below min qty", func(s *Strategy) { s.QtyMax = d("1") }},
		{"profit target out of bounds", func(s *Strategy) { s.ProfitTarget = d("0.5") }},
		{"rebuy percent out of bounds", func(s *Strategy) { s.RebuyPercent = d("0.5") }},
		{"negative rebuys", func(s *Strategy) { s.RebuysMax = -1 }},
		{"fee of one", func(s *Strategy) { s.Fee = d("1") }},
		{"negative saldo limit", func(s *Strategy) { s.SaldoLimite = d("-1") }},
		{"zero distribution orders", func(s *Strategy) { s.ProfitDistributionOrders = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultStrategy()
			tt.mutate(&s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestRequiredBalance(t *testing.T) {
	s := DefaultStrategy()
	required := s.RequiredBalance()

	// Вход плюс 45 растущих рекомпр: заметно больше суммы минимумов.
	assert.True(t, required.GreaterThan(d("4600")), "got %s", required)

	// Меньше рекомпр — меньше депозит.
	s.RebuysMax = 5
	assert.True(t, s.RequiredBalance().LessThan(required))
}
