package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OpportunityStatus - статус арбитражной возможности
type OpportunityStatus string

const (
	OpportunityStatusActive OpportunityStatus = "ACTIVE"
	OpportunityStatusEnded  OpportunityStatus = "ENDED"
)

// ArbitrageOpportunity - обнаруженная возможность арбитража по фандингу между
// двумя биржами для одного символа. Ключ жизненного цикла: (Symbol, LongExchange, ShortExchange).
type ArbitrageOpportunity struct {
	ID               string            `json:"id" db:"id"`
	Symbol           Symbol            `json:"symbol" db:"symbol"`
	LongExchange     Exchange          `json:"long_exchange" db:"long_exchange"`
	ShortExchange    Exchange          `json:"short_exchange" db:"short_exchange"`
	SpreadPercent    decimal.Decimal   `json:"spread_percent" db:"spread_percent"`
	AnnualizedReturn decimal.Decimal   `json:"annualized_return" db:"annualized_return"`
	NetReturn        decimal.Decimal   `json:"net_return" db:"net_return"`
	Status           OpportunityStatus `json:"status" db:"status"`
	FirstSeenAt      time.Time         `json:"first_seen_at" db:"first_seen_at"`
	LastSeenAt       time.Time         `json:"last_seen_at" db:"last_seen_at"`
	EndedAt          *time.Time        `json:"ended_at,omitempty" db:"ended_at"`
}

// Key возвращает ключ жизненного цикла возможности.
func (o *ArbitrageOpportunity) Key() OpportunityKey {
	return OpportunityKey{Symbol: o.Symbol, LongExchange: o.LongExchange, ShortExchange: o.ShortExchange}
}

type OpportunityKey struct {
	Symbol        Symbol
	LongExchange  Exchange
	ShortExchange Exchange
}

// OpportunityEndHistory - исторический снимок возможности на момент её завершения,
// персистентная запись для аналитики (см. ENDED переход в Opportunity Tracker).
type OpportunityEndHistory struct {
	ID               int64           `json:"id" db:"id"`
	OpportunityID    string          `json:"opportunity_id" db:"opportunity_id"`
	Symbol           Symbol          `json:"symbol" db:"symbol"`
	LongExchange     Exchange        `json:"long_exchange" db:"long_exchange"`
	ShortExchange    Exchange        `json:"short_exchange" db:"short_exchange"`
	AnnualizedReturn decimal.Decimal `json:"annualized_return" db:"annualized_return"`
	DurationSeconds  int64           `json:"duration_seconds" db:"duration_seconds"`
	EndedAt          time.Time       `json:"ended_at" db:"ended_at"`
}
