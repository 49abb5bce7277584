package models

import "time"

// Stats представляет агрегированную статистику по пользователю
type Stats struct {
	TotalTrades           int                     `json:"total_trades"`
	TotalPnl              float64                 `json:"total_pnl"`
	TodayTrades           int                     `json:"today_trades"`
	TodayPnl              float64                 `json:"today_pnl"`
	WeekTrades            int                     `json:"week_trades"`
	WeekPnl               float64                 `json:"week_pnl"`
	MonthTrades           int                     `json:"month_trades"`
	MonthPnl              float64                 `json:"month_pnl"`
	ConditionalTriggers   ConditionalTriggerStats `json:"conditional_trigger_stats"`
	SecondLegFailures     SecondLegFailureStats   `json:"second_leg_failure_stats"`
	TopPairsByTrades      []PairStat              `json:"top_pairs_by_trades"`
	TopPairsByProfit      []PairStat              `json:"top_pairs_by_profit"`
	TopPairsByLoss        []PairStat              `json:"top_pairs_by_loss"`
}

// ConditionalTriggerStats представляет статистику срабатываний условных ордеров
type ConditionalTriggerStats struct {
	Today  int                      `json:"today"`
	Week   int                      `json:"week"`
	Month  int                      `json:"month"`
	Events []ConditionalTriggerEvent `json:"events"`
}

// ConditionalTriggerEvent представляет событие срабатывания условного ордера
type ConditionalTriggerEvent struct {
	Symbol    string    `json:"symbol"`
	Exchanges [2]string `json:"exchanges"`
	Timestamp time.Time `json:"timestamp"`
}

// SecondLegFailureStats представляет статистику неудачных попыток открытия второй ноги
type SecondLegFailureStats struct {
	Today  int                   `json:"today"`
	Week   int                   `json:"week"`
	Month  int                   `json:"month"`
	Events []SecondLegFailureEvent `json:"events"`
}

// SecondLegFailureEvent представляет событие провала открытия второй ноги
type SecondLegFailureEvent struct {
	Symbol    string    `json:"symbol"`
	Exchange  string    `json:"exchange"`
	Side      string    `json:"side"`
	Timestamp time.Time `json:"timestamp"`
}

// PairStat представляет статистику по символу
type PairStat struct {
	Symbol string  `json:"symbol"`
	Value  float64 `json:"value"`
}
