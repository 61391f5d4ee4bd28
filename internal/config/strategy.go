package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
)

// Strategy — параметры торгового цикла. Все доли (цель прибыли, шаг
// рекомпры, комиссия) хранятся как дроби; в JSON-файле они лежат
// умноженными на 100 и делятся на 100 при загрузке.
type Strategy struct {
	QtyInitial    decimal.Decimal
	QtyMin        decimal.Decimal
	QtyMax        decimal.Decimal
	QtyMultiplier decimal.Decimal

	ProfitTarget           decimal.Decimal
	ProfitTargetMin        decimal.Decimal
	ProfitTargetMax        decimal.Decimal
	ProfitTargetMultiplier decimal.Decimal

	RebuyPercent    decimal.Decimal
	RebuyDropMin    decimal.Decimal
	RebuyDropMax    decimal.Decimal
	RebuyMultiplier decimal.Decimal
	RebuysMax       int

	Fee         decimal.Decimal
	SaldoLimite decimal.Decimal

	ProfitReaplicar          bool
	ProfitDistributionOrders int
}

type strategyFile struct {
	QtyInitial               decimal.Decimal `json:"qty_initial"`
	QtyMin                   decimal.Decimal `json:"qty_min"`
	QtyMax                   decimal.Decimal `json:"qty_max"`
	QtyMultiplier            decimal.Decimal `json:"qty_multiplier"`
	ProfitTarget             decimal.Decimal `json:"profit_target"`
	ProfitTargetMin          decimal.Decimal `json:"profit_target_min"`
	ProfitTargetMax          decimal.Decimal `json:"profit_target_max"`
	ProfitTargetMultiplier   decimal.Decimal `json:"profit_target_multiplier"`
	RebuyPercent             decimal.Decimal `json:"rebuy_percent"`
	RebuyDropMin             decimal.Decimal `json:"rebuy_drop_min"`
	RebuyDropMax             decimal.Decimal `json:"rebuy_drop_max"`
	RebuyMultiplier          decimal.Decimal `json:"rebuy_multiplier"`
	RebuysMax                int             `json:"rebuys_max"`
	Fee                      decimal.Decimal `json:"fee"`
	SaldoLimite              decimal.Decimal `json:"saldo_limite"`
	ProfitReaplicar          string          `json:"profit_reaplicar"`
	ProfitDistributionOrders int             `json:"profit_distribution_orders"`
}

var hundred = decimal.NewFromInt(100)

// DefaultStrategy — единственное место со значениями по умолчанию.
func DefaultStrategy() Strategy {
	return Strategy{
		QtyInitial:               decimal.NewFromInt(100),
		QtyMin:                   decimal.NewFromInt(10),
		QtyMax:                   decimal.NewFromInt(400),
		QtyMultiplier:            decimal.RequireFromString("1.04"),
		ProfitTarget:             decimal.RequireFromString("0.003"),
		ProfitTargetMin:          decimal.RequireFromString("0.001"),
		ProfitTargetMax:          decimal.RequireFromString("0.02"),
		ProfitTargetMultiplier:   decimal.RequireFromString("0.97"),
		RebuyPercent:             decimal.RequireFromString("0.0025"),
		RebuyDropMin:             decimal.RequireFromString("0.001"),
		RebuyDropMax:             decimal.RequireFromString("0.01"),
		RebuyMultiplier:          decimal.RequireFromString("0.98"),
		RebuysMax:                45,
		Fee:                      decimal.RequireFromString("0.001"),
		SaldoLimite:              decimal.Zero,
		ProfitReaplicar:          true,
		ProfitDistributionOrders: 2,
	}
}

func LoadStrategy(path string) (Strategy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultStrategy(), nil
		}
		return Strategy{}, fmt.Errorf("Не удалось прочитать файл стратегии: %w", err)
	}

	var file strategyFile
	if err := json.Unmarshal(data, &file); err != nil {
		return Strategy{}, fmt.Errorf("Не удалось разобрать файл стратегии: %w", err)
	}

	s := Strategy{
		QtyInitial:               file.QtyInitial,
		QtyMin:                   file.QtyMin,
		QtyMax:                   file.QtyMax,
		QtyMultiplier:            file.QtyMultiplier,
		ProfitTarget:             file.ProfitTarget.Div(hundred),
		ProfitTargetMin:          file.ProfitTargetMin.Div(hundred),
		ProfitTargetMax:          file.ProfitTargetMax.Div(hundred),
		ProfitTargetMultiplier:   file.ProfitTargetMultiplier,
		RebuyPercent:             file.RebuyPercent.Div(hundred),
		RebuyDropMin:             file.RebuyDropMin.Div(hundred),
		RebuyDropMax:             file.RebuyDropMax.Div(hundred),
		RebuyMultiplier:          file.RebuyMultiplier,
		RebuysMax:                file.RebuysMax,
		Fee:                      file.Fee.Div(hundred),
		SaldoLimite:              file.SaldoLimite,
		ProfitReaplicar:          file.ProfitReaplicar == "s" || file.ProfitReaplicar == "y",
		ProfitDistributionOrders: file.ProfitDistributionOrders,
	}

	if err := s.Validate(); err != nil {
		return Strategy{}, err
	}
	return s, nil
}

func SaveStrategy(path string, s Strategy) error {
	file := strategyFile{
		QtyInitial:               s.QtyInitial,
		QtyMin:                   s.QtyMin,
		QtyMax:                   s.QtyMax,
		QtyMultiplier:            s.QtyMultiplier,
		ProfitTarget:             s.ProfitTarget.Mul(hundred),
		ProfitTargetMin:          s.ProfitTargetMin.Mul(hundred),
		ProfitTargetMax:          s.ProfitTargetMax.Mul(hundred),
		ProfitTargetMultiplier:   s.ProfitTargetMultiplier,
		RebuyPercent:             s.RebuyPercent.Mul(hundred),
		RebuyDropMin:             s.RebuyDropMin.Mul(hundred),
		RebuyDropMax:             s.RebuyDropMax.Mul(hundred),
		RebuyMultiplier:          s.RebuyMultiplier,
		RebuysMax:                s.RebuysMax,
		Fee:                      s.Fee.Mul(hundred),
		SaldoLimite:              s.SaldoLimite,
		ProfitReaplicar:          boolToFlag(s.ProfitReaplicar),
		ProfitDistributionOrders: s.ProfitDistributionOrders,
	}

	data, err := json.MarshalIndent(file, "", "    ")
	if err != nil {
		return fmt.Errorf("Не удалось сериализовать стратегию: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("Не удалось сохранить стратегию: %w", err)
	}
	return nil
}

func (s Strategy) Validate() error {
	if s.QtyInitial.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("Некорректный qty_initial: %s", s.QtyInitial)
	}
	if s.QtyMin.LessThanOrEqual(decimal.Zero) || s.QtyMax.LessThan(s.QtyMin) {
		return fmt.Errorf("Некорректные границы объёма: min=%s max=%s", s.QtyMin, s.QtyMax)
	}
	if s.QtyMultiplier.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("Некорректный qty_multiplier: %s", s.QtyMultiplier)
	}
	if s.ProfitTargetMin.LessThanOrEqual(decimal.Zero) || s.ProfitTargetMax.LessThan(s.ProfitTargetMin) {
		return fmt.Errorf("Некорректные границы цели прибыли: min=%s max=%s", s.ProfitTargetMin, s.ProfitTargetMax)
	}
	if s.ProfitTarget.LessThan(s.ProfitTargetMin) || s.ProfitTarget.GreaterThan(s.ProfitTargetMax) {
		return fmt.Errorf("Цель прибыли вне границ: %s", s.ProfitTarget)
	}
	if s.ProfitTargetMultiplier.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("Некорректный profit_target_multiplier: %s", s.ProfitTargetMultiplier)
	}
	if s.RebuyDropMin.LessThanOrEqual(decimal.Zero) || s.RebuyDropMax.LessThan(s.RebuyDropMin) {
		return fmt.Errorf("Некорректные границы шага рекомпры: min=%s max=%s", s.RebuyDropMin, s.RebuyDropMax)
	}
	if s.RebuyPercent.LessThan(s.RebuyDropMin) || s.RebuyPercent.GreaterThan(s.RebuyDropMax) {
		return fmt.Errorf("Шаг рекомпры вне границ: %s", s.RebuyPercent)
	}
	if s.RebuyMultiplier.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("Некорректный rebuy_multiplier: %s", s.RebuyMultiplier)
	}
	if s.RebuysMax < 0 {
		return fmt.Errorf("Некорректный rebuys_max: %d", s.RebuysMax)
	}
	if s.Fee.IsNegative() || s.Fee.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("Некорректная комиссия: %s", s.Fee)
	}
	if s.SaldoLimite.IsNegative() {
		return fmt.Errorf("Некорректный saldo_limite: %s", s.SaldoLimite)
	}
	if s.ProfitDistributionOrders < 1 {
		return fmt.Errorf("Некорректный profit_distribution_orders: %d", s.ProfitDistributionOrders)
	}
	return nil
}

// RequiredBalance — оценка депозита, нужного стратегии: сумма всех покупок
// при максимальном числе рекомпр с учётом комиссии. Безлимитные рекомпры
// (rebuys_max = 0) оцениваются горизонтом в 45 шагов.
func (s Strategy) RequiredBalance() decimal.Decimal {
	rebuys := s.RebuysMax
	if rebuys == 0 {
		rebuys = 45
	}
	total := s.QtyInitial
	current := s.QtyInitial
	for i := 0; i < rebuys; i++ {
		current = current.Mul(s.QtyMultiplier)
		if current.GreaterThan(s.QtyMax) {
			current = s.QtyMax
		}
		total = total.Add(current)
	}
	one := decimal.NewFromInt(1)
	return total.Mul(one.Add(s.Fee)).Round(2)
}

func boolToFlag(v bool) string {
	if v {
		return "s"
	}
	return "n"
}
