package repository

import (
	"database/sql"
	"errors"

	"fundingarb/internal/models"
)

// ErrOpportunityNotFound возвращается, когда возможность с данным ID не найдена.
var ErrOpportunityNotFound = errors.New("opportunity not found")

// OpportunityRepository - работа с таблицами opportunities и opportunity_end_history.
// Персистентность для Opportunity Tracker-а внутри движка (снапшоты для UI/истории,
// сам runtime-стейт живет в памяти движка на время его работы).
type OpportunityRepository struct {
	db *sql.DB
}

// NewOpportunityRepository создает новый экземпляр репозитория
func NewOpportunityRepository(db *sql.DB) *OpportunityRepository {
	return &OpportunityRepository{db: db}
}

// Upsert создает или обновляет снапшот возможности по её ID.
func (r *OpportunityRepository) Upsert(o *models.ArbitrageOpportunity) error {
	query := `
		INSERT INTO opportunities (
			id, symbol, long_exchange, short_exchange, spread_percent,
			annualized_return, net_return, status, first_seen_at, last_seen_at, ended_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET
			spread_percent = EXCLUDED.spread_percent,
			annualized_return = EXCLUDED.annualized_return,
			net_return = EXCLUDED.net_return,
			status = EXCLUDED.status,
			last_seen_at = EXCLUDED.last_seen_at,
			ended_at = EXCLUDED.ended_at`

	_, err := r.db.Exec(query,
		o.ID, string(o.Symbol), string(o.LongExchange), string(o.ShortExchange), o.SpreadPercent,
		o.AnnualizedReturn, o.NetReturn, string(o.Status), o.FirstSeenAt, o.LastSeenAt, o.EndedAt,
	)
	return err
}

// GetByID возвращает возможность по ID.
func (r *OpportunityRepository) GetByID(id string) (*models.ArbitrageOpportunity, error) {
	query := `
		SELECT id, symbol, long_exchange, short_exchange, spread_percent,
			annualized_return, net_return, status, first_seen_at, last_seen_at, ended_at
		FROM opportunities WHERE id = $1`

	return scanOpportunity(r.db.QueryRow(query, id))
}

// ListActive возвращает все активные возможности по убыванию net_return.
func (r *OpportunityRepository) ListActive() ([]*models.ArbitrageOpportunity, error) {
	query := `
		SELECT id, symbol, long_exchange, short_exchange, spread_percent,
			annualized_return, net_return, status, first_seen_at, last_seen_at, ended_at
		FROM opportunities
		WHERE status = $1
		ORDER BY net_return DESC`

	rows, err := r.db.Query(query, string(models.OpportunityStatusActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var opportunities []*models.ArbitrageOpportunity
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, err
		}
		opportunities = append(opportunities, o)
	}
	return opportunities, rows.Err()
}

// RecordEnd архивирует снимок возможности в момент перехода в ENDED.
func (r *OpportunityRepository) RecordEnd(h *models.OpportunityEndHistory) error {
	query := `
		INSERT INTO opportunity_end_history (
			opportunity_id, symbol, long_exchange, short_exchange,
			annualized_return, duration_seconds, ended_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id`

	return r.db.QueryRow(
		query, h.OpportunityID, string(h.Symbol), string(h.LongExchange), string(h.ShortExchange),
		h.AnnualizedReturn, h.DurationSeconds, h.EndedAt,
	).Scan(&h.ID)
}

// ListEndHistory возвращает историю завершенных возможностей, новые первыми.
func (r *OpportunityRepository) ListEndHistory(limit int) ([]*models.OpportunityEndHistory, error) {
	query := `
		SELECT id, opportunity_id, symbol, long_exchange, short_exchange,
			annualized_return, duration_seconds, ended_at
		FROM opportunity_end_history
		ORDER BY ended_at DESC
		LIMIT $1`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []*models.OpportunityEndHistory
	for rows.Next() {
		h := &models.OpportunityEndHistory{}
		var symbol, longExch, shortExch string
		if err := rows.Scan(&h.ID, &h.OpportunityID, &symbol, &longExch, &shortExch,
			&h.AnnualizedReturn, &h.DurationSeconds, &h.EndedAt); err != nil {
			return nil, err
		}
		h.Symbol = models.Symbol(symbol)
		h.LongExchange = models.Exchange(longExch)
		h.ShortExchange = models.Exchange(shortExch)
		history = append(history, h)
	}
	return history, rows.Err()
}

func scanOpportunity(row rowScanner) (*models.ArbitrageOpportunity, error) {
	o := &models.ArbitrageOpportunity{}
	var symbol, longExch, shortExch, status string

	err := row.Scan(
		&o.ID, &symbol, &longExch, &shortExch, &o.SpreadPercent,
		&o.AnnualizedReturn, &o.NetReturn, &status, &o.FirstSeenAt, &o.LastSeenAt, &o.EndedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOpportunityNotFound
	}
	if err != nil {
		return nil, err
	}

	o.Symbol = models.Symbol(symbol)
	o.LongExchange = models.Exchange(longExch)
	o.ShortExchange = models.Exchange(shortExch)
	o.Status = models.OpportunityStatus(status)
	return o, nil
}
