package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"fundingarb/internal/models"
)

// Ошибки репозитория позиций
var (
	ErrPositionNotFound = errors.New("position not found")
)

// PositionRepository - работа с таблицей positions. Реализует bot.PositionStore
// и bot.OpenPositionLister для Position Coordinator-а и Conditional-Order Monitor-а.
type PositionRepository struct {
	db *sql.DB
}

// NewPositionRepository создает новый экземпляр репозитория
func NewPositionRepository(db *sql.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// Save создает или обновляет позицию (upsert по id).
func (r *PositionRepository) Save(ctx context.Context, p *models.Position) error {
	longLeg, err := json.Marshal(p.LongLeg)
	if err != nil {
		return err
	}
	shortLeg, err := json.Marshal(p.ShortLeg)
	if err != nil {
		return err
	}

	p.UpdatedAt = time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = p.UpdatedAt
	}

	query := `
		INSERT INTO positions (
			id, user_id, group_id, opportunity_id, symbol, long_leg, short_leg,
			leverage, open_funding_rate_long, open_funding_rate_short, status,
			conditional_order_status, close_reason, failure_reason, realized_pnl,
			opened_at, closed_at, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		ON CONFLICT (id) DO UPDATE SET
			group_id = EXCLUDED.group_id,
			long_leg = EXCLUDED.long_leg,
			short_leg = EXCLUDED.short_leg,
			status = EXCLUDED.status,
			conditional_order_status = EXCLUDED.conditional_order_status,
			close_reason = EXCLUDED.close_reason,
			failure_reason = EXCLUDED.failure_reason,
			realized_pnl = EXCLUDED.realized_pnl,
			closed_at = EXCLUDED.closed_at,
			updated_at = EXCLUDED.updated_at`

	_, err = r.db.ExecContext(ctx, query,
		p.ID, p.UserID, p.GroupID, p.OpportunityID, string(p.Symbol), longLeg, shortLeg,
		p.Leverage, p.OpenFundingRateLong, p.OpenFundingRateShort, string(p.Status),
		string(p.ConditionalOrderStatus), string(p.CloseReason), p.FailureReason, p.RealizedPnl,
		p.OpenedAt, p.ClosedAt, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

// Get возвращает позицию по ID.
func (r *PositionRepository) Get(ctx context.Context, id string) (*models.Position, error) {
	query := `
		SELECT id, user_id, group_id, opportunity_id, symbol, long_leg, short_leg,
			leverage, open_funding_rate_long, open_funding_rate_short, status,
			conditional_order_status, close_reason, failure_reason, realized_pnl,
			opened_at, closed_at, created_at, updated_at
		FROM positions WHERE id = $1`

	row := r.db.QueryRowContext(ctx, query, id)
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPositionNotFound
	}
	return p, err
}

// ListOpenByGroup возвращает все не-терминальные позиции группы (для batch-закрытия).
func (r *PositionRepository) ListOpenByGroup(ctx context.Context, groupID string) ([]*models.Position, error) {
	query := `
		SELECT id, user_id, group_id, opportunity_id, symbol, long_leg, short_leg,
			leverage, open_funding_rate_long, open_funding_rate_short, status,
			conditional_order_status, close_reason, failure_reason, realized_pnl,
			opened_at, closed_at, created_at, updated_at
		FROM positions
		WHERE group_id = $1 AND status NOT IN ($2, $3)
		ORDER BY opened_at`

	rows, err := r.db.QueryContext(ctx, query, groupID, string(models.PositionStatusClosed), string(models.PositionStatusFailed))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPositions(rows)
}

// ListOpenWithConditionalOrders возвращает позиции OPEN с выставленными SL/TP,
// за которыми должен следить Conditional-Order Monitor.
func (r *PositionRepository) ListOpenWithConditionalOrders(ctx context.Context) ([]*models.Position, error) {
	query := `
		SELECT id, user_id, group_id, opportunity_id, symbol, long_leg, short_leg,
			leverage, open_funding_rate_long, open_funding_rate_short, status,
			conditional_order_status, close_reason, failure_reason, realized_pnl,
			opened_at, closed_at, created_at, updated_at
		FROM positions
		WHERE status = $1 AND conditional_order_status = $2`

	rows, err := r.db.QueryContext(ctx, query, string(models.PositionStatusOpen), string(models.ConditionalOrderStatusSet))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPositions(rows)
}

// MarkGroupClosed принудительно переводит все позиции группы из
// {OPEN,PARTIAL,FAILED} в CLOSED с close_reason=MANUAL, без рыночных
// ордеров - административный override для "зависших" позиций
// (PATCH /positions/group/{groupId}/mark-closed).
func (r *PositionRepository) MarkGroupClosed(ctx context.Context, groupID string) ([]string, error) {
	query := `
		UPDATE positions
		SET status = $1, close_reason = $2, closed_at = $3, updated_at = $3
		WHERE group_id = $4 AND status IN ($5, $6, $7)
		RETURNING id`

	now := time.Now()
	rows, err := r.db.QueryContext(ctx, query,
		string(models.PositionStatusClosed), string(models.CloseReasonManual), now,
		groupID, string(models.PositionStatusOpen), string(models.PositionStatusPartial), string(models.PositionStatusFailed),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListByUser возвращает все позиции пользователя, новые первыми.
func (r *PositionRepository) ListByUser(ctx context.Context, userID string) ([]*models.Position, error) {
	query := `
		SELECT id, user_id, group_id, opportunity_id, symbol, long_leg, short_leg,
			leverage, open_funding_rate_long, open_funding_rate_short, status,
			conditional_order_status, close_reason, failure_reason, realized_pnl,
			opened_at, closed_at, created_at, updated_at
		FROM positions
		WHERE user_id = $1
		ORDER BY opened_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPositions(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(row rowScanner) (*models.Position, error) {
	p := &models.Position{}
	var symbol, status, condStatus, closeReason string
	var longLeg, shortLeg []byte
	var openFundingLong, openFundingShort, realizedPnl decimal.Decimal

	err := row.Scan(
		&p.ID, &p.UserID, &p.GroupID, &p.OpportunityID, &symbol, &longLeg, &shortLeg,
		&p.Leverage, &openFundingLong, &openFundingShort, &status,
		&condStatus, &closeReason, &p.FailureReason, &realizedPnl,
		&p.OpenedAt, &p.ClosedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Symbol = models.Symbol(symbol)
	p.Status = models.PositionStatus(status)
	p.ConditionalOrderStatus = models.ConditionalOrderStatus(condStatus)
	p.CloseReason = models.CloseReason(closeReason)
	p.OpenFundingRateLong = openFundingLong
	p.OpenFundingRateShort = openFundingShort
	p.RealizedPnl = realizedPnl

	if err := json.Unmarshal(longLeg, &p.LongLeg); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(shortLeg, &p.ShortLeg); err != nil {
		return nil, err
	}

	return p, nil
}

func scanPositions(rows *sql.Rows) ([]*models.Position, error) {
	var positions []*models.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}
