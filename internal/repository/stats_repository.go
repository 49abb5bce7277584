package repository

import (
	"database/sql"

	"fundingarb/internal/models"
)

// StatsRepository - агрегация статистики из таблицы trades и журналов событий
// conditional_trigger_events/second_leg_failure_events.
type StatsRepository struct {
	db *sql.DB
}

// NewStatsRepository создает новый экземпляр репозитория
func NewStatsRepository(db *sql.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// GetStats рассчитывает полный набор агрегатов для пользователя.
func (r *StatsRepository) GetStats(userID string) (*models.Stats, error) {
	stats := &models.Stats{}

	if err := r.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(total_pnl), 0),
			COUNT(*) FILTER (WHERE closed_at >= date_trunc('day', now())),
			COALESCE(SUM(total_pnl) FILTER (WHERE closed_at >= date_trunc('day', now())), 0),
			COUNT(*) FILTER (WHERE closed_at >= now() - interval '7 days'),
			COALESCE(SUM(total_pnl) FILTER (WHERE closed_at >= now() - interval '7 days'), 0),
			COUNT(*) FILTER (WHERE closed_at >= now() - interval '30 days'),
			COALESCE(SUM(total_pnl) FILTER (WHERE closed_at >= now() - interval '30 days'), 0)
		FROM trades WHERE user_id = $1`,
		userID,
	).Scan(
		&stats.TotalTrades, &stats.TotalPnl,
		&stats.TodayTrades, &stats.TodayPnl,
		&stats.WeekTrades, &stats.WeekPnl,
		&stats.MonthTrades, &stats.MonthPnl,
	); err != nil {
		return nil, err
	}

	conditional, err := r.conditionalTriggerStats(userID)
	if err != nil {
		return nil, err
	}
	stats.ConditionalTriggers = *conditional

	secondLeg, err := r.secondLegFailureStats(userID)
	if err != nil {
		return nil, err
	}
	stats.SecondLegFailures = *secondLeg

	if stats.TopPairsByTrades, err = r.topPairs(userID, "COUNT(*)", "DESC"); err != nil {
		return nil, err
	}
	if stats.TopPairsByProfit, err = r.topPairs(userID, "SUM(total_pnl)", "DESC"); err != nil {
		return nil, err
	}
	if stats.TopPairsByLoss, err = r.topPairs(userID, "SUM(total_pnl)", "ASC"); err != nil {
		return nil, err
	}

	return stats, nil
}

func (r *StatsRepository) conditionalTriggerStats(userID string) (*models.ConditionalTriggerStats, error) {
	s := &models.ConditionalTriggerStats{}
	err := r.db.QueryRow(`
		SELECT
			COUNT(*) FILTER (WHERE timestamp >= date_trunc('day', now())),
			COUNT(*) FILTER (WHERE timestamp >= now() - interval '7 days'),
			COUNT(*) FILTER (WHERE timestamp >= now() - interval '30 days')
		FROM conditional_trigger_events WHERE user_id = $1`,
		userID,
	).Scan(&s.Today, &s.Week, &s.Month)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(`
		SELECT symbol, long_exchange, short_exchange, timestamp
		FROM conditional_trigger_events
		WHERE user_id = $1
		ORDER BY timestamp DESC
		LIMIT 50`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var e models.ConditionalTriggerEvent
		if err := rows.Scan(&e.Symbol, &e.Exchanges[0], &e.Exchanges[1], &e.Timestamp); err != nil {
			return nil, err
		}
		s.Events = append(s.Events, e)
	}
	return s, rows.Err()
}

func (r *StatsRepository) secondLegFailureStats(userID string) (*models.SecondLegFailureStats, error) {
	s := &models.SecondLegFailureStats{}
	err := r.db.QueryRow(`
		SELECT
			COUNT(*) FILTER (WHERE timestamp >= date_trunc('day', now())),
			COUNT(*) FILTER (WHERE timestamp >= now() - interval '7 days'),
			COUNT(*) FILTER (WHERE timestamp >= now() - interval '30 days')
		FROM second_leg_failure_events WHERE user_id = $1`,
		userID,
	).Scan(&s.Today, &s.Week, &s.Month)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(`
		SELECT symbol, exchange, side, timestamp
		FROM second_leg_failure_events
		WHERE user_id = $1
		ORDER BY timestamp DESC
		LIMIT 50`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var e models.SecondLegFailureEvent
		if err := rows.Scan(&e.Symbol, &e.Exchange, &e.Side, &e.Timestamp); err != nil {
			return nil, err
		}
		s.Events = append(s.Events, e)
	}
	return s, rows.Err()
}

func (r *StatsRepository) topPairs(userID, orderExpr, direction string) ([]models.PairStat, error) {
	query := `
		SELECT symbol, ` + orderExpr + ` AS value
		FROM trades
		WHERE user_id = $1
		GROUP BY symbol
		ORDER BY value ` + direction + `
		LIMIT 5`

	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []models.PairStat
	for rows.Next() {
		var p models.PairStat
		if err := rows.Scan(&p.Symbol, &p.Value); err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

// RecordConditionalTrigger фиксирует срабатывание условного ордера (SL/TP) на одной из ног.
func (r *StatsRepository) RecordConditionalTrigger(userID string, e models.ConditionalTriggerEvent) error {
	_, err := r.db.Exec(`
		INSERT INTO conditional_trigger_events (user_id, symbol, long_exchange, short_exchange, timestamp)
		VALUES ($1,$2,$3,$4,$5)`,
		userID, e.Symbol, e.Exchanges[0], e.Exchanges[1], e.Timestamp,
	)
	return err
}

// RecordSecondLegFailure фиксирует провал открытия второй ноги хедж-позиции.
func (r *StatsRepository) RecordSecondLegFailure(userID string, e models.SecondLegFailureEvent) error {
	_, err := r.db.Exec(`
		INSERT INTO second_leg_failure_events (user_id, symbol, exchange, side, timestamp)
		VALUES ($1,$2,$3,$4,$5)`,
		userID, e.Symbol, e.Exchange, e.Side, e.Timestamp,
	)
	return err
}

// ResetCounters очищает журналы событий срабатываний и провалов для пользователя,
// не затрагивая историю сделок в trades.
func (r *StatsRepository) ResetCounters(userID string) error {
	if _, err := r.db.Exec(`DELETE FROM conditional_trigger_events WHERE user_id = $1`, userID); err != nil {
		return err
	}
	_, err := r.db.Exec(`DELETE FROM second_leg_failure_events WHERE user_id = $1`, userID)
	return err
}
