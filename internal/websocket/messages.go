package websocket

import (
	"time"

	"fundingarb/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeOpportunity - изменение состояния арбитражной возможности
	// Отправляется при обнаружении новой возможности, изменении спреда и её завершении
	MessageTypeOpportunity MessageType = "opportunity"

	// MessageTypeNotification - новое уведомление
	// Отправляется при событиях жизненного цикла позиции или возможности
	MessageTypeNotification MessageType = "notification"

	// MessageTypeBalanceUpdate - обновление баланса биржи
	// Отправляется каждую минуту для всех подключенных бирж
	MessageTypeBalanceUpdate MessageType = "balanceUpdate"

	// MessageTypeStatsUpdate - обновление статистики торговли
	// Отправляется после сброса статистики и после записи срабатывания условного
	// ордера или провала второй ноги
	MessageTypeStatsUpdate MessageType = "statsUpdate"
)

// BaseMessage - базовая структура для всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// OpportunityMessage - сообщение об изменении состояния арбитражной возможности
type OpportunityMessage struct {
	BaseMessage
	Data *OpportunityData `json:"data"`
}

// OpportunityData - данные арбитражной возможности для фронтенда
type OpportunityData struct {
	ID               string  `json:"id"`
	Symbol           string  `json:"symbol"`
	LongExchange     string  `json:"long_exchange"`
	ShortExchange    string  `json:"short_exchange"`
	SpreadPercent    float64 `json:"spread_percent"`
	AnnualizedReturn float64 `json:"annualized_return"`
	NetReturn        float64 `json:"net_return"`
	Status           string  `json:"status"`
	FirstSeenAt      time.Time `json:"first_seen_at"`
	LastSeenAt       time.Time `json:"last_seen_at"`
}

// NotificationMessage - сообщение о новом уведомлении
type NotificationMessage struct {
	BaseMessage
	Data *NotificationData `json:"data"`
}

// NotificationData - данные уведомления
type NotificationData struct {
	ID         int                    `json:"id"`
	Type       string                 `json:"type"`
	Severity   string                 `json:"severity"`
	PositionID *string                `json:"position_id,omitempty"`
	Message    string                 `json:"message"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// BalanceUpdateMessage - сообщение об обновлении баланса биржи
//
// Отправляется каждую минуту для каждой подключенной биржи
type BalanceUpdateMessage struct {
	BaseMessage
	Exchange string  `json:"exchange"`
	Balance  float64 `json:"balance"`
}

// StatsUpdateMessage - сообщение об обновлении статистики
type StatsUpdateMessage struct {
	BaseMessage
	Data *StatsUpdateData `json:"data"`
}

// StatsUpdateData - данные статистики
type StatsUpdateData struct {
	TotalTrades int `json:"total_trades"`
	TodayTrades int `json:"today_trades"`
	WeekTrades  int `json:"week_trades"`
	MonthTrades int `json:"month_trades"`

	TotalPnl float64 `json:"total_pnl"`
	TodayPnl float64 `json:"today_pnl"`
	WeekPnl  float64 `json:"week_pnl"`
	MonthPnl float64 `json:"month_pnl"`

	ConditionalTriggersToday int `json:"conditional_triggers_today"`
	ConditionalTriggersWeek  int `json:"conditional_triggers_week"`
	ConditionalTriggersMonth int `json:"conditional_triggers_month"`

	SecondLegFailuresToday int `json:"second_leg_failures_today"`
	SecondLegFailuresWeek  int `json:"second_leg_failures_week"`
	SecondLegFailuresMonth int `json:"second_leg_failures_month"`
}

// ============ Фабричные функции для создания сообщений ============

// NewOpportunityMessage создает сообщение об изменении возможности
func NewOpportunityMessage(op *models.ArbitrageOpportunity) *OpportunityMessage {
	return &OpportunityMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeOpportunity,
			Timestamp: time.Now(),
		},
		Data: &OpportunityData{
			ID:               op.ID,
			Symbol:           string(op.Symbol),
			LongExchange:     string(op.LongExchange),
			ShortExchange:    string(op.ShortExchange),
			SpreadPercent:    op.SpreadPercent.InexactFloat64(),
			AnnualizedReturn: op.AnnualizedReturn.InexactFloat64(),
			NetReturn:        op.NetReturn.InexactFloat64(),
			Status:           string(op.Status),
			FirstSeenAt:      op.FirstSeenAt,
			LastSeenAt:       op.LastSeenAt,
		},
	}
}

// NewNotificationMessage создает сообщение уведомления
func NewNotificationMessage(notif *models.Notification) *NotificationMessage {
	return &NotificationMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeNotification,
			Timestamp: time.Now(),
		},
		Data: &NotificationData{
			ID:         notif.ID,
			Type:       notif.Type,
			Severity:   notif.Severity,
			PositionID: notif.PositionID,
			Message:    notif.Message,
			Meta:       notif.Meta,
			Timestamp:  notif.Timestamp,
		},
	}
}

// NewBalanceUpdateMessage создает сообщение обновления баланса
func NewBalanceUpdateMessage(exchange string, balance float64) *BalanceUpdateMessage {
	return &BalanceUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeBalanceUpdate,
			Timestamp: time.Now(),
		},
		Exchange: exchange,
		Balance:  balance,
	}
}

// NewStatsUpdateMessage создает сообщение обновления статистики
func NewStatsUpdateMessage(stats *models.Stats) *StatsUpdateMessage {
	data := &StatsUpdateData{
		TotalTrades: stats.TotalTrades,
		TodayTrades: stats.TodayTrades,
		WeekTrades:  stats.WeekTrades,
		MonthTrades: stats.MonthTrades,

		TotalPnl: stats.TotalPnl,
		TodayPnl: stats.TodayPnl,
		WeekPnl:  stats.WeekPnl,
		MonthPnl: stats.MonthPnl,

		ConditionalTriggersToday: stats.ConditionalTriggers.Today,
		ConditionalTriggersWeek:  stats.ConditionalTriggers.Week,
		ConditionalTriggersMonth: stats.ConditionalTriggers.Month,

		SecondLegFailuresToday: stats.SecondLegFailures.Today,
		SecondLegFailuresWeek:  stats.SecondLegFailures.Week,
		SecondLegFailuresMonth: stats.SecondLegFailures.Month,
	}

	return &StatsUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeStatsUpdate,
			Timestamp: time.Now(),
		},
		Data: data,
	}
}

// AllBalancesUpdateMessage - сообщение с балансами всех бирж
// Используется при начальной загрузке или массовом обновлении
type AllBalancesUpdateMessage struct {
	BaseMessage
	Balances map[string]float64 `json:"balances"`
}

// NewAllBalancesUpdateMessage создает сообщение со всеми балансами
func NewAllBalancesUpdateMessage(balances map[string]float64) *AllBalancesUpdateMessage {
	return &AllBalancesUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeBalanceUpdate,
			Timestamp: time.Now(),
		},
		Balances: balances,
	}
}
