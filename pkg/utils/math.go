package utils

import "github.com/shopspring/decimal"

// math.go - математические утилиты
//
// Назначение:
// Вспомогательные математические функции для торговли.
//
// Функции:
// - RoundToLotSize: округление до lot size биржи
//   * Пример: 0.123456 BTC с lot size 0.001 → 0.123 BTC
// - CalculateSpread: расчет спреда между ценами
//   * Formula: (priceHigh - priceLow) / priceLow * 100
// - CalculateNetSpread: чистый спред с учетом комиссий
//   * spread - 2*(feeA + feeB)
// - CalculateWeightedAverage: средневзвешенная цена
//   * Используется для расчета цены по стакану ордеров

// RoundToLotSize округляет количество вниз до кратного lotSize. Округление
// вниз гарантирует, что скорректированное количество не превышает исходное
// (избегаем отказа биржи по insufficient balance при round-up).
func RoundToLotSize(qty, lotSize decimal.Decimal) decimal.Decimal {
	if lotSize.IsZero() {
		return qty
	}
	steps := qty.Div(lotSize).Floor()
	return steps.Mul(lotSize)
}

// CalculateSpread возвращает спред между двумя ценами в процентах.
func CalculateSpread(priceHigh, priceLow decimal.Decimal) decimal.Decimal {
	if priceLow.IsZero() {
		return decimal.Zero
	}
	return priceHigh.Sub(priceLow).Div(priceLow).Mul(decimal.NewFromInt(100))
}

// CalculateNetSpread вычитает комиссии тейкера обеих сторон из спреда.
func CalculateNetSpread(spreadPercent, feeA, feeB decimal.Decimal) decimal.Decimal {
	return spreadPercent.Sub(feeA.Add(feeB).Mul(decimal.NewFromInt(2)))
}

// CalculateWeightedAverage считает средневзвешенную цену по уровням стакана.
func CalculateWeightedAverage(prices, volumes []decimal.Decimal) decimal.Decimal {
	if len(prices) == 0 || len(prices) != len(volumes) {
		return decimal.Zero
	}
	totalValue := decimal.Zero
	totalVolume := decimal.Zero
	for i, p := range prices {
		totalValue = totalValue.Add(p.Mul(volumes[i]))
		totalVolume = totalVolume.Add(volumes[i])
	}
	if totalVolume.IsZero() {
		return decimal.Zero
	}
	return totalValue.Div(totalVolume)
}
