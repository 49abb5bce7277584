package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fundingarb/internal/exchange"
	"fundingarb/pkg/utils"
)

// LimitsKey идентифицирует кэшированные торговые лимиты по бирже и символу.
type LimitsKey struct {
	Exchange string
	Symbol   string
}

// CachedLimits - торговые лимиты биржи с отметкой времени последнего обновления.
type CachedLimits struct {
	MinOrderQty decimal.Decimal
	MaxOrderQty decimal.Decimal
	QtyStep     decimal.Decimal
	MinNotional decimal.Decimal
	PriceStep   decimal.Decimal
	MaxLeverage int
	UpdatedAt   time.Time
}

// ValidationResult - итог проверки объема ордера против лимитов биржи.
type ValidationResult struct {
	Valid       bool
	AdjustedQty decimal.Decimal
	Error       string
}

// OrderValidator проверяет и корректирует объем ордера согласно lot size и
// min notional каждой биржи перед отправкой, чтобы избежать отказа биржи.
type OrderValidator struct {
	limits sync.Map // LimitsKey -> CachedLimits

	defaultMinQty     decimal.Decimal
	defaultMaxQty     decimal.Decimal
	defaultQtyStep    decimal.Decimal
	defaultMinNotional decimal.Decimal
}

func NewOrderValidator() *OrderValidator {
	return &OrderValidator{
		defaultMinQty:      decimal.NewFromFloat(0.001),
		defaultMaxQty:      decimal.NewFromInt(1000000),
		defaultQtyStep:     decimal.NewFromFloat(0.001),
		defaultMinNotional: decimal.NewFromInt(5),
	}
}

func (v *OrderValidator) UpdateLimits(exch, symbol string, limits *exchange.Limits) {
	v.limits.Store(LimitsKey{Exchange: exch, Symbol: symbol}, CachedLimits{
		MinOrderQty: limits.MinOrderQty,
		MaxOrderQty: limits.MaxOrderQty,
		QtyStep:     limits.QtyStep,
		MinNotional: limits.MinNotional,
		PriceStep:   limits.PriceStep,
		MaxLeverage: limits.MaxLeverage,
		UpdatedAt:   time.Now(),
	})
}

func (v *OrderValidator) GetLimits(exch, symbol string) (CachedLimits, bool) {
	val, ok := v.limits.Load(LimitsKey{Exchange: exch, Symbol: symbol})
	if !ok {
		return CachedLimits{}, false
	}
	return val.(CachedLimits), true
}

// PreloadLimits запрашивает и кэширует лимиты для символа на конкретной бирже.
func (v *OrderValidator) PreloadLimits(ctx context.Context, exch exchange.Exchange, symbol string) error {
	limits, err := exch.GetLimits(ctx, symbol)
	if err != nil {
		return fmt.Errorf("failed to load limits for %s/%s: %w", exch.GetName(), symbol, err)
	}
	v.UpdateLimits(string(exch.GetName()), symbol, limits)
	return nil
}

// ValidateOrderQty округляет qty до lot size и проверяет min/max qty и min notional.
func (v *OrderValidator) ValidateOrderQty(exch, symbol string, qty, price decimal.Decimal) ValidationResult {
	minQty, maxQty, qtyStep, minNotional := v.defaultMinQty, v.defaultMaxQty, v.defaultQtyStep, v.defaultMinNotional
	if cached, ok := v.GetLimits(exch, symbol); ok {
		minQty, maxQty, qtyStep, minNotional = cached.MinOrderQty, cached.MaxOrderQty, cached.QtyStep, cached.MinNotional
	}

	adjusted := utils.RoundToLotSize(qty, qtyStep)

	if adjusted.LessThan(minQty) {
		return ValidationResult{Valid: false, Error: fmt.Sprintf("quantity %s below minimum %s", adjusted, minQty)}
	}
	if adjusted.GreaterThan(maxQty) {
		return ValidationResult{Valid: false, Error: fmt.Sprintf("quantity %s exceeds maximum %s", adjusted, maxQty)}
	}
	if price.IsPositive() && adjusted.Mul(price).LessThan(minNotional) {
		return ValidationResult{Valid: false, Error: fmt.Sprintf("notional %s below minimum %s", adjusted.Mul(price), minNotional)}
	}

	return ValidationResult{Valid: true, AdjustedQty: adjusted}
}

// ValidateBothLegs проверяет объем на обеих биржах пары и возвращает наименьший
// из двух скорректированных объемов, чтобы обе ноги открывались с одним размером.
func (v *OrderValidator) ValidateBothLegs(longExch, shortExch, symbol string, qty, longPrice, shortPrice decimal.Decimal) ValidationResult {
	longResult := v.ValidateOrderQty(longExch, symbol, qty, longPrice)
	if !longResult.Valid {
		return longResult
	}
	shortResult := v.ValidateOrderQty(shortExch, symbol, qty, shortPrice)
	if !shortResult.Valid {
		return shortResult
	}

	adjusted := longResult.AdjustedQty
	if shortResult.AdjustedQty.LessThan(adjusted) {
		adjusted = shortResult.AdjustedQty
	}
	return ValidationResult{Valid: true, AdjustedQty: adjusted}
}
