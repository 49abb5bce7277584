package bot

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// OrderBookAnalyzer кэширует последние стаканы по (symbol, exchange) и
// моделирует исполнение рыночного ордера через них (VWAP по уровням), чтобы
// Position Coordinator мог оценить проскальзывание перед открытием обеих ног.
type OrderBookAnalyzer struct {
	orderBooks sync.Map // key: OrderBookKey -> *CachedOrderBook

	depth  int
	maxAge time.Duration
}

type OrderBookKey struct {
	Symbol   string
	Exchange string
}

type CachedOrderBook struct {
	Bids      []PriceLevel // от высокой цены к низкой
	Asks      []PriceLevel // от низкой цены к высокой
	Timestamp time.Time
}

type PriceLevel struct {
	Price  decimal.Decimal
	Volume decimal.Decimal
}

// ExecutionSimulation - результат моделирования исполнения рыночного ордера.
type ExecutionSimulation struct {
	AvgPrice       decimal.Decimal // средневзвешенная цена исполнения (VWAP)
	FillableVolume decimal.Decimal
	Slippage       decimal.Decimal // в процентах относительно лучшей цены
	FullyFillable  bool
	LevelsUsed     int
}

// LiquidityAnalysis - анализ ликвидности обеих ног арбитражной позиции.
type LiquidityAnalysis struct {
	Symbol string
	Volume decimal.Decimal

	LongExchange   string
	LongSimulation *ExecutionSimulation

	ShortExchange   string
	ShortSimulation *ExecutionSimulation

	IsLiquidityOK   bool
	AdjustedSpread  decimal.Decimal // спред с учетом slippage, в процентах
	EstimatedProfit decimal.Decimal

	Warnings []string
}

func NewOrderBookAnalyzer(depth int, maxAge time.Duration) *OrderBookAnalyzer {
	if depth <= 0 {
		depth = 5
	}
	if maxAge <= 0 {
		maxAge = 5 * time.Second
	}
	return &OrderBookAnalyzer{depth: depth, maxAge: maxAge}
}

// UpdateOrderBook обновляет кэшированный стакан, вызывается из обработчика
// рыночных данных биржи.
func (oba *OrderBookAnalyzer) UpdateOrderBook(symbol, exchange string, bids, asks []PriceLevel) {
	key := OrderBookKey{Symbol: symbol, Exchange: exchange}

	if len(bids) > oba.depth {
		bids = bids[:oba.depth]
	}
	if len(asks) > oba.depth {
		asks = asks[:oba.depth]
	}

	oba.orderBooks.Store(key, &CachedOrderBook{Bids: bids, Asks: asks, Timestamp: time.Now()})
}

func (oba *OrderBookAnalyzer) GetOrderBook(symbol, exchange string) *CachedOrderBook {
	key := OrderBookKey{Symbol: symbol, Exchange: exchange}
	if v, ok := oba.orderBooks.Load(key); ok {
		cached := v.(*CachedOrderBook)
		if time.Since(cached.Timestamp) <= oba.maxAge {
			return cached
		}
	}
	return nil
}

// SimulateBuy моделирует покупку (открытие long-ноги), идя по Ask уровням
// от лучшей цены вверх.
func (oba *OrderBookAnalyzer) SimulateBuy(symbol, exchange string, volume decimal.Decimal) *ExecutionSimulation {
	ob := oba.GetOrderBook(symbol, exchange)
	if ob == nil || len(ob.Asks) == 0 {
		return nil
	}
	return simulateMarketOrder(ob.Asks, volume, true)
}

// SimulateSell моделирует продажу (открытие short-ноги), идя по Bid уровням
// от лучшей цены вниз.
func (oba *OrderBookAnalyzer) SimulateSell(symbol, exchange string, volume decimal.Decimal) *ExecutionSimulation {
	ob := oba.GetOrderBook(symbol, exchange)
	if ob == nil || len(ob.Bids) == 0 {
		return nil
	}
	return simulateMarketOrder(ob.Bids, volume, false)
}

func simulateMarketOrder(levels []PriceLevel, volume decimal.Decimal, isBuy bool) *ExecutionSimulation {
	if len(levels) == 0 || !volume.IsPositive() {
		return nil
	}

	result := &ExecutionSimulation{}
	bestPrice := levels[0].Price
	totalCost := decimal.Zero
	filledVolume := decimal.Zero
	remaining := volume

	for i, level := range levels {
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
		result.LevelsUsed = i + 1

		takeVolume := level.Volume
		if takeVolume.GreaterThan(remaining) {
			takeVolume = remaining
		}

		totalCost = totalCost.Add(level.Price.Mul(takeVolume))
		filledVolume = filledVolume.Add(takeVolume)
		remaining = remaining.Sub(takeVolume)
	}

	if filledVolume.IsPositive() {
		result.AvgPrice = totalCost.Div(filledVolume)
		result.FillableVolume = filledVolume
		result.FullyFillable = !remaining.IsPositive()

		if isBuy {
			result.Slippage = result.AvgPrice.Sub(bestPrice).Div(bestPrice).Mul(decimal.NewFromInt(100))
		} else {
			result.Slippage = bestPrice.Sub(result.AvgPrice).Div(bestPrice).Mul(decimal.NewFromInt(100))
		}
	}

	return result
}

// AnalyzeLiquidity проверяет обе ноги позиции: покупку на long-бирже (идем по
// Ask) и продажу на short-бирже (идем по Bid), и возвращает скорректированный
// спред с учетом проскальзывания.
func (oba *OrderBookAnalyzer) AnalyzeLiquidity(symbol string, volume decimal.Decimal, longExchange, shortExchange string) *LiquidityAnalysis {
	analysis := &LiquidityAnalysis{
		Symbol:        symbol,
		Volume:        volume,
		LongExchange:  longExchange,
		ShortExchange: shortExchange,
		Warnings:      make([]string, 0),
	}

	analysis.LongSimulation = oba.SimulateBuy(symbol, longExchange, volume)
	if analysis.LongSimulation == nil {
		analysis.Warnings = append(analysis.Warnings, "no orderbook data for "+longExchange)
		return analysis
	}

	analysis.ShortSimulation = oba.SimulateSell(symbol, shortExchange, volume)
	if analysis.ShortSimulation == nil {
		analysis.Warnings = append(analysis.Warnings, "no orderbook data for "+shortExchange)
		return analysis
	}

	longOK := analysis.LongSimulation.FullyFillable
	shortOK := analysis.ShortSimulation.FullyFillable
	analysis.IsLiquidityOK = longOK && shortOK

	if !longOK {
		analysis.Warnings = append(analysis.Warnings, "insufficient liquidity on "+longExchange)
	}
	if !shortOK {
		analysis.Warnings = append(analysis.Warnings, "insufficient liquidity on "+shortExchange)
	}

	if analysis.LongSimulation.AvgPrice.IsPositive() {
		diff := analysis.ShortSimulation.AvgPrice.Sub(analysis.LongSimulation.AvgPrice)
		analysis.AdjustedSpread = diff.Div(analysis.LongSimulation.AvgPrice).Mul(decimal.NewFromInt(100))
		analysis.EstimatedProfit = diff.Mul(volume)
	}

	totalSlippage := analysis.LongSimulation.Slippage.Add(analysis.ShortSimulation.Slippage)
	if totalSlippage.GreaterThan(decimal.NewFromFloat(0.1)) {
		analysis.Warnings = append(analysis.Warnings, "high total slippage: "+totalSlippage.StringFixed(4)+"%")
	}

	return analysis
}

// CheckLiquidityForVolume - быстрая булева проверка без построения полного анализа.
func (oba *OrderBookAnalyzer) CheckLiquidityForVolume(symbol string, volume decimal.Decimal, longExchange, shortExchange string) (bool, string) {
	longSim := oba.SimulateBuy(symbol, longExchange, volume)
	if longSim == nil {
		return false, "no orderbook for " + longExchange
	}
	if !longSim.FullyFillable {
		return false, "insufficient liquidity on " + longExchange
	}

	shortSim := oba.SimulateSell(symbol, shortExchange, volume)
	if shortSim == nil {
		return false, "no orderbook for " + shortExchange
	}
	if !shortSim.FullyFillable {
		return false, "insufficient liquidity on " + shortExchange
	}

	return true, ""
}
