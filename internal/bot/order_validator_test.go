package bot

import (
	"testing"

	"github.com/shopspring/decimal"

	"fundingarb/internal/exchange"
)

func dd(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestOrderValidatorRoundsToLotSizeAndAccepts(t *testing.T) {
	v := NewOrderValidator()
	v.UpdateLimits("binance", "BTCUSDT", &exchange.Limits{
		MinOrderQty: dd(0.01), MaxOrderQty: dd(100), QtyStep: dd(0.01), MinNotional: dd(5),
	})

	result := v.ValidateOrderQty("binance", "BTCUSDT", dd(0.1234), dd(60000))
	if !result.Valid {
		t.Fatalf("expected valid, got error: %s", result.Error)
	}
	if !result.AdjustedQty.Equal(dd(0.12)) {
		t.Errorf("expected adjusted qty 0.12, got %s", result.AdjustedQty)
	}
}

func TestOrderValidatorRejectsBelowMinQty(t *testing.T) {
	v := NewOrderValidator()
	v.UpdateLimits("binance", "BTCUSDT", &exchange.Limits{
		MinOrderQty: dd(0.01), MaxOrderQty: dd(100), QtyStep: dd(0.01), MinNotional: dd(5),
	})

	result := v.ValidateOrderQty("binance", "BTCUSDT", dd(0.001), dd(60000))
	if result.Valid {
		t.Error("expected invalid result for below-minimum quantity")
	}
}

func TestOrderValidatorRejectsBelowMinNotional(t *testing.T) {
	v := NewOrderValidator()
	v.UpdateLimits("okx", "DOGEUSDT", &exchange.Limits{
		MinOrderQty: dd(1), MaxOrderQty: dd(1000000), QtyStep: dd(1), MinNotional: dd(5),
	})

	result := v.ValidateOrderQty("okx", "DOGEUSDT", dd(10), dd(0.1))
	if result.Valid {
		t.Error("expected invalid result for below min notional")
	}
}

func TestOrderValidatorValidateBothLegsPicksSmallerAdjustedQty(t *testing.T) {
	v := NewOrderValidator()
	v.UpdateLimits("binance", "BTCUSDT", &exchange.Limits{
		MinOrderQty: dd(0.001), MaxOrderQty: dd(100), QtyStep: dd(0.001), MinNotional: dd(5),
	})
	v.UpdateLimits("okx", "BTCUSDT", &exchange.Limits{
		MinOrderQty: dd(0.01), MaxOrderQty: dd(100), QtyStep: dd(0.01), MinNotional: dd(5),
	})

	result := v.ValidateBothLegs("binance", "okx", "BTCUSDT", dd(0.125), dd(60000), dd(60000))
	if !result.Valid {
		t.Fatalf("expected valid, got error: %s", result.Error)
	}
	if !result.AdjustedQty.Equal(dd(0.12)) {
		t.Errorf("expected smaller adjusted qty 0.12 from okx's coarser step, got %s", result.AdjustedQty)
	}
}

func TestOrderValidatorFallsBackToDefaultsWithoutCachedLimits(t *testing.T) {
	v := NewOrderValidator()

	result := v.ValidateOrderQty("mexc", "ETHUSDT", dd(1), dd(3000))
	if !result.Valid {
		t.Fatalf("expected valid using defaults, got error: %s", result.Error)
	}
}
