package bot

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func TestOrderBookAnalyzerSimulateBuyFullyFillable(t *testing.T) {
	oba := NewOrderBookAnalyzer(5, time.Second)
	oba.UpdateOrderBook("BTCUSDT", "binance", nil, []PriceLevel{
		{Price: dec(50000), Volume: dec(1)},
		{Price: dec(50010), Volume: dec(2)},
	})

	sim := oba.SimulateBuy("BTCUSDT", "binance", dec(1.5))
	if sim == nil {
		t.Fatal("expected simulation result")
	}
	if !sim.FullyFillable {
		t.Error("expected order to be fully fillable")
	}
	if sim.LevelsUsed != 2 {
		t.Errorf("expected 2 levels used, got %d", sim.LevelsUsed)
	}
}

func TestOrderBookAnalyzerInsufficientLiquidity(t *testing.T) {
	oba := NewOrderBookAnalyzer(5, time.Second)
	oba.UpdateOrderBook("BTCUSDT", "binance", nil, []PriceLevel{
		{Price: dec(50000), Volume: dec(0.5)},
	})

	sim := oba.SimulateBuy("BTCUSDT", "binance", dec(1))
	if sim == nil {
		t.Fatal("expected simulation result")
	}
	if sim.FullyFillable {
		t.Error("expected order to not be fully fillable")
	}
}

func TestOrderBookAnalyzerExpiresStaleData(t *testing.T) {
	oba := NewOrderBookAnalyzer(5, time.Millisecond)
	oba.UpdateOrderBook("BTCUSDT", "binance", nil, []PriceLevel{{Price: dec(50000), Volume: dec(1)}})

	time.Sleep(5 * time.Millisecond)

	if ob := oba.GetOrderBook("BTCUSDT", "binance"); ob != nil {
		t.Error("expected stale order book to be evicted")
	}
}

func TestAnalyzeLiquidityComputesAdjustedSpread(t *testing.T) {
	oba := NewOrderBookAnalyzer(5, time.Second)
	oba.UpdateOrderBook("BTCUSDT", "binance", nil, []PriceLevel{{Price: dec(50000), Volume: dec(10)}})
	oba.UpdateOrderBook("BTCUSDT", "okx", []PriceLevel{{Price: dec(50100), Volume: dec(10)}}, nil)

	analysis := oba.AnalyzeLiquidity("BTCUSDT", dec(1), "binance", "okx")
	if !analysis.IsLiquidityOK {
		t.Fatalf("expected liquidity OK, warnings: %v", analysis.Warnings)
	}
	if !analysis.AdjustedSpread.IsPositive() {
		t.Errorf("expected positive adjusted spread, got %s", analysis.AdjustedSpread)
	}
}

func TestCheckLiquidityForVolumeMissingOrderBook(t *testing.T) {
	oba := NewOrderBookAnalyzer(5, time.Second)
	ok, reason := oba.CheckLiquidityForVolume("BTCUSDT", dec(1), "binance", "okx")
	if ok {
		t.Error("expected check to fail without order book data")
	}
	if reason == "" {
		t.Error("expected a reason string")
	}
}
