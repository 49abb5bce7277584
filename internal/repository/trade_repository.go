package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"fundingarb/internal/models"
)

// ErrTradeNotFound возвращается, когда сделка с данным ID не найдена.
var ErrTradeNotFound = errors.New("trade not found")

// TradeRepository - работа с таблицами trades и funding_payments. Реализует
// bot.TradeEmitter и bot.FundingFeeQuery.
type TradeRepository struct {
	db *sql.DB
}

// NewTradeRepository создает новый экземпляр репозитория
func NewTradeRepository(db *sql.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Record сохраняет итоговую сделку по закрытой позиции.
func (r *TradeRepository) Record(ctx context.Context, t *models.Trade) error {
	query := `
		INSERT INTO trades (
			position_id, user_id, symbol, long_exchange, short_exchange,
			quantity, price_diff_pnl, funding_rate_pnl, fees, total_pnl,
			margin, roi, close_reason, closed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING id`

	return r.db.QueryRowContext(ctx, query,
		t.PositionID, t.UserID, string(t.Symbol), string(t.LongExchange), string(t.ShortExchange),
		t.Quantity, t.PriceDiffPnl, t.FundingRatePnl, t.Fees, t.TotalPnl,
		t.Margin, t.Roi, string(t.CloseReason), t.ClosedAt,
	).Scan(&t.ID)
}

// ListByUser возвращает историю сделок пользователя, новые первыми.
func (r *TradeRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.Trade, error) {
	query := `
		SELECT id, position_id, user_id, symbol, long_exchange, short_exchange,
			quantity, price_diff_pnl, funding_rate_pnl, fees, total_pnl,
			margin, roi, close_reason, closed_at
		FROM trades
		WHERE user_id = $1
		ORDER BY closed_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*models.Trade
	for rows.Next() {
		t := &models.Trade{}
		var symbol, longExch, shortExch, closeReason string
		if err := rows.Scan(
			&t.ID, &t.PositionID, &t.UserID, &symbol, &longExch, &shortExch,
			&t.Quantity, &t.PriceDiffPnl, &t.FundingRatePnl, &t.Fees, &t.TotalPnl,
			&t.Margin, &t.Roi, &closeReason, &t.ClosedAt,
		); err != nil {
			return nil, err
		}
		t.Symbol = models.Symbol(symbol)
		t.LongExchange = models.Exchange(longExch)
		t.ShortExchange = models.Exchange(shortExch)
		t.CloseReason = models.CloseReason(closeReason)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// GetByID возвращает сделку по ID (GET /trades/{id}/funding-details).
func (r *TradeRepository) GetByID(ctx context.Context, id int64) (*models.Trade, error) {
	query := `
		SELECT id, position_id, user_id, symbol, long_exchange, short_exchange,
			quantity, price_diff_pnl, funding_rate_pnl, fees, total_pnl,
			margin, roi, close_reason, closed_at
		FROM trades WHERE id = $1`

	t := &models.Trade{}
	var symbol, longExch, shortExch, closeReason string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.PositionID, &t.UserID, &symbol, &longExch, &shortExch,
		&t.Quantity, &t.PriceDiffPnl, &t.FundingRatePnl, &t.Fees, &t.TotalPnl,
		&t.Margin, &t.Roi, &closeReason, &t.ClosedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTradeNotFound
	}
	if err != nil {
		return nil, err
	}

	t.Symbol = models.Symbol(symbol)
	t.LongExchange = models.Exchange(longExch)
	t.ShortExchange = models.Exchange(shortExch)
	t.CloseReason = models.CloseReason(closeReason)
	return t, nil
}

// ListByUserFiltered возвращает страницу истории сделок пользователя, новые
// первыми, опционально ограниченную символом (GET /trades?limit=&offset=&symbol=).
func (r *TradeRepository) ListByUserFiltered(ctx context.Context, userID string, limit, offset int, symbol string) ([]*models.Trade, error) {
	query := `
		SELECT id, position_id, user_id, symbol, long_exchange, short_exchange,
			quantity, price_diff_pnl, funding_rate_pnl, fees, total_pnl,
			margin, roi, close_reason, closed_at
		FROM trades
		WHERE user_id = $1 AND ($2 = '' OR symbol = $2)
		ORDER BY closed_at DESC
		LIMIT $3 OFFSET $4`

	rows, err := r.db.QueryContext(ctx, query, userID, symbol, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*models.Trade
	for rows.Next() {
		t := &models.Trade{}
		var sym, longExch, shortExch, closeReason string
		if err := rows.Scan(
			&t.ID, &t.PositionID, &t.UserID, &sym, &longExch, &shortExch,
			&t.Quantity, &t.PriceDiffPnl, &t.FundingRatePnl, &t.Fees, &t.TotalPnl,
			&t.Margin, &t.Roi, &closeReason, &t.ClosedAt,
		); err != nil {
			return nil, err
		}
		t.Symbol = models.Symbol(sym)
		t.LongExchange = models.Exchange(longExch)
		t.ShortExchange = models.Exchange(shortExch)
		t.CloseReason = models.CloseReason(closeReason)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// RecordFundingPayment сохраняет одно начисление фандинга по ноге позиции.
// Источник данных - биржевой income history, опрашиваемый периодически ботом.
func (r *TradeRepository) RecordFundingPayment(ctx context.Context, p *models.FundingPayment) error {
	query := `
		INSERT INTO funding_payments (exchange, symbol, rate, amount, paid_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT DO NOTHING`

	_, err := r.db.ExecContext(ctx, query, string(p.Exchange), string(p.Symbol), p.Rate, p.Amount, p.PaidAt)
	return err
}

// Query возвращает начисления фандинга по бирже и символу за период [from, to].
// Используется Position Coordinator-ом при расчете fundingRatePnL на закрытие.
func (r *TradeRepository) Query(ctx context.Context, exch models.Exchange, symbol models.Symbol, from, to time.Time) ([]*models.FundingPayment, error) {
	query := `
		SELECT exchange, symbol, rate, amount, paid_at
		FROM funding_payments
		WHERE exchange = $1 AND symbol = $2 AND paid_at >= $3 AND paid_at <= $4
		ORDER BY paid_at`

	rows, err := r.db.QueryContext(ctx, query, string(exch), string(symbol), from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*models.FundingPayment
	for rows.Next() {
		p := &models.FundingPayment{}
		var exchStr, symbolStr string
		if err := rows.Scan(&exchStr, &symbolStr, &p.Rate, &p.Amount, &p.PaidAt); err != nil {
			return nil, err
		}
		p.Exchange = models.Exchange(exchStr)
		p.Symbol = models.Symbol(symbolStr)
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
