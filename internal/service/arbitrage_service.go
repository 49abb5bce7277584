package service

import (
	"context"
	"errors"
	"time"

	"fundingarb/internal/bot"
	"fundingarb/internal/models"
	"fundingarb/internal/repository"
)

// Ошибки сервиса арбитража
var (
	ErrPositionNotOwned = errors.New("position does not belong to this user")
	ErrTradeNotOwned    = errors.New("trade does not belong to this user")
)

// ArbitrageService предоставляет HTTP-слою доступ к торговому движку:
// список активных возможностей, открытие хедж-позиции по возможности,
// пакетное закрытие группы позиций, просмотр истории позиций и сделок
// пользователя, публичный снимок ставок фандинга и состояния системы.
type ArbitrageService struct {
	engine        *bot.Engine
	positions     *repository.PositionRepository
	trades        *repository.TradeRepository
	opportunities *repository.OpportunityRepository
}

// NewArbitrageService создает новый экземпляр сервиса.
func NewArbitrageService(
	engine *bot.Engine,
	positions *repository.PositionRepository,
	trades *repository.TradeRepository,
	opportunities *repository.OpportunityRepository,
) *ArbitrageService {
	return &ArbitrageService{
		engine:        engine,
		positions:     positions,
		trades:        trades,
		opportunities: opportunities,
	}
}

// ActiveOpportunities возвращает все активные арбитражные возможности.
func (s *ArbitrageService) ActiveOpportunities() []*models.ArbitrageOpportunity {
	return s.engine.ActiveOpportunities()
}

// OpenPosition открывает хедж-позицию по обнаруженной возможности.
func (s *ArbitrageService) OpenPosition(ctx context.Context, params bot.OpenPairParams) (*models.Position, error) {
	return s.engine.OpenPair(ctx, params)
}

// CloseGroup закрывает все открытые позиции группы.
func (s *ArbitrageService) CloseGroup(ctx context.Context, groupID string) (*bot.BatchCloseResult, error) {
	return s.engine.CloseBatch(ctx, groupID, nil)
}

// ListPositions возвращает все позиции пользователя, новые первыми.
func (s *ArbitrageService) ListPositions(ctx context.Context, userID string) ([]*models.Position, error) {
	return s.positions.ListByUser(ctx, userID)
}

// GetPosition возвращает позицию по ID, проверяя принадлежность пользователю.
func (s *ArbitrageService) GetPosition(ctx context.Context, userID, id string) (*models.Position, error) {
	position, err := s.positions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if position.UserID != userID {
		return nil, ErrPositionNotOwned
	}
	return position, nil
}

// ClosePosition закрывает обе ноги одной позиции по требованию пользователя,
// проверяя принадлежность перед обращением к Position Coordinator-у.
func (s *ArbitrageService) ClosePosition(ctx context.Context, userID, id string) (*models.Position, error) {
	position, err := s.positions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if position.UserID != userID {
		return nil, ErrPositionNotOwned
	}
	return s.engine.ClosePosition(ctx, id)
}

// MarkGroupClosed принудительно переводит все незавершенные позиции группы
// в CLOSED без рыночных ордеров - административный override для застрявших
// позиций, минующий Position Coordinator.
func (s *ArbitrageService) MarkGroupClosed(ctx context.Context, groupID string) ([]string, error) {
	return s.positions.MarkGroupClosed(ctx, groupID)
}

// Trades возвращает страницу истории сделок пользователя, опционально
// отфильтрованную по символу.
func (s *ArbitrageService) Trades(ctx context.Context, userID string, limit, offset int, symbol string) ([]*models.Trade, error) {
	return s.trades.ListByUserFiltered(ctx, userID, limit, offset, symbol)
}

// TradeFundingDetails возвращает сделку вместе с начислениями фандинга по
// обеим ногам за время жизни позиции (GET /trades/{id}/funding-details).
type TradeFundingDetails struct {
	Trade         *models.Trade
	LongPayments  []*models.FundingPayment
	ShortPayments []*models.FundingPayment
}

func (s *ArbitrageService) TradeFundingDetails(ctx context.Context, userID string, tradeID int64) (*TradeFundingDetails, error) {
	trade, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if trade.UserID != userID {
		return nil, ErrTradeNotOwned
	}

	var openedAt time.Time
	position, err := s.positions.Get(ctx, trade.PositionID)
	if err == nil {
		openedAt = position.OpenedAt
	} else {
		openedAt = trade.ClosedAt.Add(-24 * time.Hour)
	}

	longPayments, err := s.trades.Query(ctx, trade.LongExchange, trade.Symbol, openedAt, trade.ClosedAt)
	if err != nil {
		return nil, err
	}
	shortPayments, err := s.trades.Query(ctx, trade.ShortExchange, trade.Symbol, openedAt, trade.ClosedAt)
	if err != nil {
		return nil, err
	}

	return &TradeFundingDetails{
		Trade:         trade,
		LongPayments:  longPayments,
		ShortPayments: shortPayments,
	}, nil
}

// PublicOpportunityHistory возвращает страницу истории завершенных
// возможностей для публичного роута, без привязки к пользователю -
// opportunity_end_history не хранит userId/notificationCount/settlementRecords.
func (s *ArbitrageService) PublicOpportunityHistory(ctx context.Context, page, limit int) ([]*models.OpportunityEndHistory, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	// ListEndHistory принимает только общий лимит - забираем на одну страницу
	// больше и обрезаем вручную, пагинация не настолько горячий путь, чтобы
	// заводить под нее OFFSET в репозитории.
	fetch := page * limit
	all, err := s.opportunities.ListEndHistory(fetch)
	if err != nil {
		return nil, err
	}

	start := (page - 1) * limit
	if start >= len(all) {
		return []*models.OpportunityEndHistory{}, nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

// RefreshMarketData запрашивает свежую ставку фандинга по символу напрямую с
// бирж, минуя кэш Funding Rate Tracker-а (POST /market-data/refresh).
func (s *ArbitrageService) RefreshMarketData(ctx context.Context, symbol models.Symbol, exchanges []models.Exchange) (map[models.Exchange]*models.FundingRateRecord, error) {
	return s.engine.RefreshMarketData(ctx, symbol, exchanges)
}

// FundingRatesSnapshot возвращает текущий снимок известных ставок фандинга
// по всем отслеживаемым символам (GET /funding-rates).
func (s *ArbitrageService) FundingRatesSnapshot() []bot.FundingRateSnapshotEntry {
	return s.engine.FundingRatesSnapshot()
}

// MonitorStatus возвращает состояние Conditional-Order Monitor-а (GET /monitor/status).
func (s *ArbitrageService) MonitorStatus() bot.MonitorStatusSnapshot {
	return s.engine.MonitorStatus()
}

// WSStatus возвращает состояние WS-подключений по биржам (GET /ws-status).
func (s *ArbitrageService) WSStatus() []bot.WSConnectionStatus {
	return s.engine.WSStatus()
}
