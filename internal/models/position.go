package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus - состояние жизненного цикла хедж-позиции
type PositionStatus string

const (
	PositionStatusPending PositionStatus = "PENDING" // обе ноги отправлены, ждем подтверждения исполнения
	PositionStatusOpen    PositionStatus = "OPEN"     // обе ноги исполнены
	PositionStatusPartial PositionStatus = "PARTIAL"  // исполнена только одна нога, вторая не удалась
	PositionStatusClosing PositionStatus = "CLOSING"  // закрытие в процессе
	PositionStatusClosed  PositionStatus = "CLOSED"   // обе ноги закрыты
	PositionStatusFailed  PositionStatus = "FAILED"   // не удалось открыть ни одной ноги
)

// ValidPositionTransitions - допустимые переходы состояния позиции.
var ValidPositionTransitions = map[PositionStatus][]PositionStatus{
	PositionStatusPending: {PositionStatusOpen, PositionStatusPartial, PositionStatusFailed},
	PositionStatusPartial: {PositionStatusClosing, PositionStatusClosed},
	PositionStatusOpen:    {PositionStatusClosing},
	PositionStatusClosing: {PositionStatusClosed},
	PositionStatusClosed:  {},
	PositionStatusFailed:  {},
}

// CanTransition проверяет допустимость перехода between двумя состояниями позиции.
func CanTransition(from, to PositionStatus) bool {
	for _, s := range ValidPositionTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal возвращает true для состояний, из которых нет дальнейших переходов.
func (s PositionStatus) IsTerminal() bool {
	return s == PositionStatusClosed || s == PositionStatusFailed
}

// CloseReason - причина закрытия позиции
type CloseReason string

const (
	CloseReasonManual             CloseReason = "MANUAL"
	CloseReasonLongSLTriggered    CloseReason = "LONG_SL_TRIGGERED"
	CloseReasonLongTPTriggered    CloseReason = "LONG_TP_TRIGGERED"
	CloseReasonShortSLTriggered   CloseReason = "SHORT_SL_TRIGGERED"
	CloseReasonShortTPTriggered   CloseReason = "SHORT_TP_TRIGGERED"
	CloseReasonBothTriggered      CloseReason = "BOTH_TRIGGERED"
	CloseReasonUnconfirmedTrigger CloseReason = "UNCONFIRMED_TRIGGER"
	CloseReasonBatchClose         CloseReason = "BATCH_CLOSE"

	// CloseReasonOpportunityEnded и CloseReasonLiquidation - доменные расширения
	// сверх базового набора причин закрытия: заданы Opportunity Tracker-ом
	// (возможность перестала существовать) и внешним потоком ликвидаций биржи.
	CloseReasonOpportunityEnded  CloseReason = "OPPORTUNITY_ENDED"
	CloseReasonLiquidation       CloseReason = "LIQUIDATION"
	CloseReasonCompensatingUnwind CloseReason = "COMPENSATING_UNWIND"
)

// ConditionalOrderStatus описывает наличие защитных ордеров (SL/TP) на ногах позиции.
type ConditionalOrderStatus string

const (
	ConditionalOrderStatusNone         ConditionalOrderStatus = "NONE"
	ConditionalOrderStatusSet          ConditionalOrderStatus = "SET"
	ConditionalOrderStatusBothTriggered ConditionalOrderStatus = "BOTH_TRIGGERED"
)

// PositionLeg - одна нога хедж-позиции на конкретной бирже.
type PositionLeg struct {
	Exchange        Exchange        `json:"exchange"`
	Side            string          `json:"side"` // long, short
	EntryPrice      decimal.Decimal `json:"entry_price"`
	Quantity        decimal.Decimal `json:"quantity"`
	ExchangeOrderID string          `json:"exchange_order_id,omitempty"`
	FilledAt        *time.Time      `json:"filled_at,omitempty"`
	ClosedAt        *time.Time      `json:"closed_at,omitempty"`
	ExitPrice       decimal.Decimal `json:"exit_price,omitempty"`
	StopLossOrderID   string        `json:"stop_loss_order_id,omitempty"`
	TakeProfitOrderID string        `json:"take_profit_order_id,omitempty"`
}

// Position - хедж-позиция пользователя по одной арбитражной возможности.
type Position struct {
	ID                     string                 `json:"id" db:"id"`
	UserID                 string                 `json:"user_id" db:"user_id"`
	GroupID                string                 `json:"group_id,omitempty" db:"group_id"`
	OpportunityID          string                 `json:"opportunity_id" db:"opportunity_id"`
	Symbol                 Symbol                 `json:"symbol" db:"symbol"`
	LongLeg                PositionLeg            `json:"long_leg" db:"-"`
	ShortLeg               PositionLeg            `json:"short_leg" db:"-"`
	Leverage               int                    `json:"leverage" db:"leverage"`
	OpenFundingRateLong    decimal.Decimal        `json:"open_funding_rate_long" db:"open_funding_rate_long"`
	OpenFundingRateShort   decimal.Decimal        `json:"open_funding_rate_short" db:"open_funding_rate_short"`
	Status                 PositionStatus         `json:"status" db:"status"`
	ConditionalOrderStatus ConditionalOrderStatus `json:"conditional_order_status" db:"conditional_order_status"`
	CloseReason            CloseReason            `json:"close_reason,omitempty" db:"close_reason"`
	FailureReason          string                 `json:"failure_reason,omitempty" db:"failure_reason"`
	RealizedPnl            decimal.Decimal        `json:"realized_pnl" db:"realized_pnl"`
	OpenedAt               time.Time              `json:"opened_at" db:"opened_at"`
	ClosedAt               *time.Time             `json:"closed_at,omitempty" db:"closed_at"`
	CreatedAt              time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt              time.Time              `json:"updated_at" db:"updated_at"`
}

// HasOpenLeg возвращает true если хотя бы одна нога исполнена и ещё не закрыта.
func (p *Position) HasOpenLeg() bool {
	legOpen := func(l PositionLeg) bool { return l.FilledAt != nil && l.ClosedAt == nil }
	return legOpen(p.LongLeg) || legOpen(p.ShortLeg)
}

// IsSingleLegged возвращает true если исполнена ровно одна нога (частичное открытие).
func (p *Position) IsSingleLegged() bool {
	longFilled := p.LongLeg.FilledAt != nil
	shortFilled := p.ShortLeg.FilledAt != nil
	return longFilled != shortFilled
}
