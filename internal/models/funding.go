package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FundingRateRecord - последняя известная ставка фандинга по одной бирже/символу.
// Обновляется Event Normalizer-ом при каждом FundingRateReceived событии.
type FundingRateRecord struct {
	Exchange        Exchange        `json:"exchange"`
	Symbol          Symbol          `json:"symbol"`
	Rate            decimal.Decimal `json:"rate"`             // ставка за один интервал, например 0.0001 = 0.01%
	Interval        FundingInterval `json:"interval"`
	NextSettlement  time.Time       `json:"next_settlement"`
	MarkPrice       decimal.Decimal `json:"mark_price"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// AnnualizedRate возвращает аннуализированную ставку фандинга (APY) для записи.
func (r *FundingRateRecord) AnnualizedRate() decimal.Decimal {
	n := decimal.NewFromFloat(r.Interval.SettlementsPerYear())
	return r.Rate.Mul(n)
}

// intervalHours - длительность канонического интервала в часах, используется
// при пересчете ставки фандинга на другой интервал.
func (f FundingInterval) intervalHours() decimal.Decimal {
	switch f {
	case FundingInterval1h:
		return decimal.NewFromInt(1)
	case FundingInterval4h:
		return decimal.NewFromInt(4)
	case FundingInterval8h:
		return decimal.NewFromInt(8)
	case FundingInterval24h:
		return decimal.NewFromInt(24)
	default:
		return decimal.NewFromInt(8)
	}
}

// Normalized пересчитывает ставку фандинга на каждый из канонических
// интервалов {1h,4h,8h,24h}, масштабируя пропорционально длительности
// интервала - ставка за более короткий интервал масштабируется вниз.
func (r *FundingRateRecord) Normalized() map[FundingInterval]decimal.Decimal {
	source := r.Interval.intervalHours()
	out := make(map[FundingInterval]decimal.Decimal, 4)
	for _, target := range []FundingInterval{FundingInterval1h, FundingInterval4h, FundingInterval8h, FundingInterval24h} {
		out[target] = r.Rate.Mul(target.intervalHours()).Div(source)
	}
	return out
}

// FundingRatePair - сопоставление ставок фандинга по одному символу между двумя биржами,
// промежуточный результат шага 2-3 алгоритма Funding Pair Engine.
type FundingRatePair struct {
	Symbol           Symbol
	LongExchange     Exchange // биржа, на которой открывается long (платит меньше/получает фандинг)
	ShortExchange    Exchange // биржа, на которой открывается short
	SpreadPercent    decimal.Decimal
	AnnualizedReturn decimal.Decimal
	NetReturn        decimal.Decimal // spread - totalCostRate (без аннуализации)
	PriceDirectionOK bool
}
