package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade - завершенная сделка по паре ног, итоговая запись для статистики и истории.
// Эмитируется Position Coordinator-ом при терминальном переходе позиции в CLOSED.
type Trade struct {
	ID             int64           `json:"id" db:"id"`
	PositionID     string          `json:"position_id" db:"position_id"`
	UserID         string          `json:"user_id" db:"user_id"`
	Symbol         Symbol          `json:"symbol" db:"symbol"`
	LongExchange   Exchange        `json:"long_exchange" db:"long_exchange"`
	ShortExchange  Exchange        `json:"short_exchange" db:"short_exchange"`
	Quantity       decimal.Decimal `json:"quantity" db:"quantity"`
	PriceDiffPnl   decimal.Decimal `json:"price_diff_pnl" db:"price_diff_pnl"`
	FundingRatePnl decimal.Decimal `json:"funding_rate_pnl" db:"funding_rate_pnl"`
	Fees           decimal.Decimal `json:"fees" db:"fees"`
	TotalPnl       decimal.Decimal `json:"total_pnl" db:"total_pnl"`
	Margin         decimal.Decimal `json:"margin" db:"margin"`
	Roi            decimal.Decimal `json:"roi" db:"roi"`
	CloseReason    CloseReason     `json:"close_reason" db:"close_reason"`
	ClosedAt       time.Time       `json:"closed_at" db:"closed_at"`
}

// FundingPayment - одно начисление фандинга по ноге позиции, использовано
// Trade Emitter-ом для лениво запрошенной суммы fundingRatePnL за время жизни позиции.
type FundingPayment struct {
	Exchange Exchange        `json:"exchange" db:"exchange"`
	Symbol   Symbol          `json:"symbol" db:"symbol"`
	Rate     decimal.Decimal `json:"rate" db:"rate"`
	Amount   decimal.Decimal `json:"amount" db:"amount"`
	PaidAt   time.Time       `json:"paid_at" db:"paid_at"`
}
