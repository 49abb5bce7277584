package models

// Exchange - поддерживаемая биржа
type Exchange string

const (
	ExchangeBinance Exchange = "binance"
	ExchangeOKX     Exchange = "okx"
	ExchangeGateIO  Exchange = "gateio"
	ExchangeMEXC    Exchange = "mexc"
	ExchangeBingX   Exchange = "bingx"
)

// AllExchanges - список всех поддерживаемых бирж в детерминированном порядке
var AllExchanges = []Exchange{ExchangeBinance, ExchangeOKX, ExchangeGateIO, ExchangeMEXC, ExchangeBingX}

func (e Exchange) Valid() bool {
	switch e {
	case ExchangeBinance, ExchangeOKX, ExchangeGateIO, ExchangeMEXC, ExchangeBingX:
		return true
	}
	return false
}

// FundingInterval - канонический интервал выплаты фандинга
type FundingInterval string

const (
	FundingInterval1h  FundingInterval = "1h"
	FundingInterval4h  FundingInterval = "4h"
	FundingInterval8h  FundingInterval = "8h"
	FundingInterval24h FundingInterval = "24h"
)

// SettlementsPerYear возвращает количество выплат фандинга в год для данного интервала,
// используется при аннуализации ставки.
func (f FundingInterval) SettlementsPerYear() float64 {
	switch f {
	case FundingInterval1h:
		return 24 * 365
	case FundingInterval4h:
		return 6 * 365
	case FundingInterval8h:
		return 3 * 365
	case FundingInterval24h:
		return 365
	default:
		return 3 * 365 // 8h - наиболее распространенный дефолт
	}
}

// Symbol - каноническое представление торгового инструмента BASE+QUOTE,
// например "BTC+USDT". Конвертация в биржевой формат выполняется адаптерами.
type Symbol string

func NewSymbol(base, quote string) Symbol {
	return Symbol(base + "+" + quote)
}
