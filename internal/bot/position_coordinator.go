package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fundingarb/internal/exchange"
	"fundingarb/internal/lock"
	"fundingarb/internal/models"
)

// PositionStore - персистентность, требуемая Position Coordinator-ом.
// Реализуется репозиторием слоя БД.
type PositionStore interface {
	Save(ctx context.Context, p *models.Position) error
	Get(ctx context.Context, id string) (*models.Position, error)
	ListOpenByGroup(ctx context.Context, groupID string) ([]*models.Position, error)
}

// TradeEmitter - персистентность для завершенных сделок.
type TradeEmitter interface {
	Record(ctx context.Context, t *models.Trade) error
}

// FundingFeeQuery - ленивый запрос начислений фандинга за время жизни позиции,
// используемый при расчете fundingRatePnL на закрытие.
type FundingFeeQuery interface {
	Query(ctx context.Context, exch models.Exchange, symbol models.Symbol, from, to time.Time) ([]*models.FundingPayment, error)
}

const (
	positionLockTTL       = 60 * time.Second
	positionLockHeartbeat = 15 * time.Second
	legFillTimeout        = 30 * time.Second
)

// legResultChanPool избегает аллокации канала на каждый ордер в горячем пути открытия/закрытия.
var legResultChanPool = sync.Pool{
	New: func() interface{} { return make(chan legResult, 1) },
}

func acquireLegResultChan() chan legResult {
	return legResultChanPool.Get().(chan legResult)
}

func releaseLegResultChan(ch chan legResult) {
	select {
	case <-ch:
	default:
	}
	legResultChanPool.Put(ch)
}

type legResult struct {
	order *exchange.Order
	err   error
}

// PositionCoordinator реализует жизненный цикл хедж-позиции: параллельное
// открытие обеих ног с компенсирующим откатом при частичном заполнении,
// закрытие одной или обеих ног, и эмиссию итоговой сделки.
type PositionCoordinator struct {
	exchanges  map[models.Exchange]exchange.Exchange
	exchangeMu sync.RWMutex

	locker   lock.Locker
	store    PositionStore
	trades   TradeEmitter
	fundingFees FundingFeeQuery

	validator *OrderValidator
}

func NewPositionCoordinator(
	exchanges map[models.Exchange]exchange.Exchange,
	locker lock.Locker,
	store PositionStore,
	trades TradeEmitter,
	fundingFees FundingFeeQuery,
	validator *OrderValidator,
) *PositionCoordinator {
	return &PositionCoordinator{
		exchanges:   exchanges,
		locker:      locker,
		store:       store,
		trades:      trades,
		fundingFees: fundingFees,
		validator:   validator,
	}
}

func (pc *PositionCoordinator) exchangeFor(ex models.Exchange) (exchange.Exchange, bool) {
	pc.exchangeMu.RLock()
	defer pc.exchangeMu.RUnlock()
	e, ok := pc.exchanges[ex]
	return e, ok
}

// OpenPairParams - параметры открытия хедж-позиции.
type OpenPairParams struct {
	UserID        string
	Symbol        models.Symbol
	OpportunityID string
	LongExchange  models.Exchange
	ShortExchange models.Exchange
	Quantity      decimal.Decimal
	Leverage      int
	StopLossPct   decimal.Decimal // 0 = не ставить
	TakeProfitPct decimal.Decimal // 0 = не ставить
}

// OpenPair реализует последовательность открытия позиции: лок, снимок
// ставок фандинга, плечо, параллельные рыночные ордера, компенсирующий
// откат при частичном заполнении, персистентность, опциональные SL/TP.
func (pc *PositionCoordinator) OpenPair(ctx context.Context, params OpenPairParams) (*models.Position, error) {
	longExch, ok := pc.exchangeFor(params.LongExchange)
	if !ok {
		return nil, fmt.Errorf("unknown exchange: %s", params.LongExchange)
	}
	shortExch, ok := pc.exchangeFor(params.ShortExchange)
	if !ok {
		return nil, fmt.Errorf("unknown exchange: %s", params.ShortExchange)
	}

	// 1. Блокировка (userId, symbol).
	key := lock.PositionKey(params.UserID, string(params.Symbol))
	token, err := pc.locker.Acquire(ctx, key, positionLockTTL)
	if err != nil {
		return nil, fmt.Errorf("position already in progress for %s/%s: %w", params.UserID, params.Symbol, err)
	}
	stopHeartbeat := make(chan struct{})
	go lock.HeartbeatLoop(ctx, pc.locker, key, token, positionLockTTL, positionLockHeartbeat, stopHeartbeat)
	defer func() {
		close(stopHeartbeat)
		_ = pc.locker.Release(ctx, key, token)
	}()

	position := &models.Position{
		ID:            uuid.NewString(),
		UserID:        params.UserID,
		OpportunityID: params.OpportunityID,
		Symbol:        params.Symbol,
		Leverage:      params.Leverage,
		Status:        models.PositionStatusPending,
		OpenedAt:      time.Now(),
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}

	// 2. Снимок ставок фандинга на момент входа.
	if rate, err := longExch.GetFundingRate(ctx, longExch.SymbolFromCanonical(params.Symbol)); err == nil {
		position.OpenFundingRateLong = rate.Rate
	}
	if rate, err := shortExch.GetFundingRate(ctx, shortExch.SymbolFromCanonical(params.Symbol)); err == nil {
		position.OpenFundingRateShort = rate.Rate
	}

	longSymbol := longExch.SymbolFromCanonical(params.Symbol)
	shortSymbol := shortExch.SymbolFromCanonical(params.Symbol)

	// 3. Плечо выставляется отдельно на каждой ноге до отправки рыночных ордеров.
	if params.Leverage > 0 {
		if err := longExch.SetLeverage(ctx, longSymbol, params.Leverage); err != nil {
			return nil, fmt.Errorf("failed to set leverage on %s: %w", params.LongExchange, err)
		}
		if err := shortExch.SetLeverage(ctx, shortSymbol, params.Leverage); err != nil {
			return nil, fmt.Errorf("failed to set leverage on %s: %w", params.ShortExchange, err)
		}
	}

	openCtx, cancel := context.WithTimeout(ctx, legFillTimeout)
	defer cancel()

	// 4. Параллельные рыночные ордера.
	longCh := acquireLegResultChan()
	shortCh := acquireLegResultChan()
	defer releaseLegResultChan(longCh)
	defer releaseLegResultChan(shortCh)

	go func() {
		order, err := longExch.PlaceMarketOrder(openCtx, longSymbol, exchange.SideBuy, params.Quantity)
		longCh <- legResult{order: order, err: err}
	}()
	go func() {
		order, err := shortExch.PlaceMarketOrder(openCtx, shortSymbol, exchange.SideSell, params.Quantity)
		shortCh <- legResult{order: order, err: err}
	}()

	var longRes, shortRes legResult
	var longDone, shortDone bool
	for !longDone || !shortDone {
		select {
		case longRes = <-longCh:
			longDone = true
		case shortRes = <-shortCh:
			shortDone = true
		case <-openCtx.Done():
			longDone, shortDone = true, true
		}
	}

	now := time.Now()
	longFilled := longRes.err == nil && longRes.order != nil
	shortFilled := shortRes.err == nil && shortRes.order != nil

	if longFilled {
		position.LongLeg = models.PositionLeg{
			Exchange: params.LongExchange, Side: "long",
			EntryPrice: longRes.order.AvgFillPrice, Quantity: longRes.order.FilledQty,
			ExchangeOrderID: longRes.order.ID, FilledAt: &now,
		}
	}
	if shortFilled {
		position.ShortLeg = models.PositionLeg{
			Exchange: params.ShortExchange, Side: "short",
			EntryPrice: shortRes.order.AvgFillPrice, Quantity: shortRes.order.FilledQty,
			ExchangeOrderID: shortRes.order.ID, FilledAt: &now,
		}
	}

	// 5. Компенсирующий откат при заполнении ровно одной ноги.
	if longFilled != shortFilled {
		var failureReason string
		if longFilled {
			pc.unwindLeg(ctx, longExch, longSymbol, exchange.SideSell, longRes.order.FilledQty)
			failureReason = fmt.Sprintf("short leg failed: %v", shortRes.err)
		} else {
			pc.unwindLeg(ctx, shortExch, shortSymbol, exchange.SideBuy, shortRes.order.FilledQty)
			failureReason = fmt.Sprintf("long leg failed: %v", longRes.err)
		}
		position.Status = models.PositionStatusFailed
		position.CloseReason = models.CloseReasonCompensatingUnwind
		position.FailureReason = failureReason

		if pc.store != nil {
			_ = pc.store.Save(ctx, position)
		}
		RecordTrade(string(params.Symbol), "compensating_unwind", 0)
		return position, fmt.Errorf("position failed, leg unwound: %s", failureReason)
	}

	if !longFilled && !shortFilled {
		position.Status = models.PositionStatusFailed
		position.FailureReason = fmt.Sprintf("both legs failed: long=%v short=%v", longRes.err, shortRes.err)
		if pc.store != nil {
			_ = pc.store.Save(ctx, position)
		}
		return position, fmt.Errorf("%s", position.FailureReason)
	}

	// 6. Обе ноги исполнены.
	position.Status = models.PositionStatusOpen
	position.ConditionalOrderStatus = models.ConditionalOrderStatusNone

	if params.StopLossPct.IsPositive() || params.TakeProfitPct.IsPositive() {
		pc.placeConditionalOrders(ctx, longExch, shortExch, longSymbol, shortSymbol, position, params)
	}

	if pc.store != nil {
		if err := pc.store.Save(ctx, position); err != nil {
			return position, fmt.Errorf("failed to persist opened position: %w", err)
		}
	}

	return position, nil
}

func (pc *PositionCoordinator) unwindLeg(ctx context.Context, exch exchange.Exchange, symbol, side string, qty decimal.Decimal) {
	if !qty.IsPositive() {
		return
	}
	unwindCtx, cancel := context.WithTimeout(context.Background(), legFillTimeout)
	defer cancel()
	_, _ = exch.PlaceMarketOrder(unwindCtx, symbol, side, qty)
}

func (pc *PositionCoordinator) placeConditionalOrders(
	ctx context.Context,
	longExch, shortExch exchange.Exchange,
	longSymbol, shortSymbol string,
	position *models.Position,
	params OpenPairParams,
) {
	entryLong := position.LongLeg.EntryPrice
	entryShort := position.ShortLeg.EntryPrice

	if params.StopLossPct.IsPositive() {
		longSL := entryLong.Mul(decimal.NewFromInt(1).Sub(params.StopLossPct))
		if order, err := longExch.PlaceConditionalOrder(ctx, exchange.ConditionalOrderRequest{
			Symbol: longSymbol, Side: exchange.SideSell, Type: exchange.OrderTypeStopMarket,
			Quantity: position.LongLeg.Quantity, TriggerPrice: longSL,
		}); err == nil {
			position.LongLeg.StopLossOrderID = order.ID
		}

		shortSL := entryShort.Mul(decimal.NewFromInt(1).Add(params.StopLossPct))
		if order, err := shortExch.PlaceConditionalOrder(ctx, exchange.ConditionalOrderRequest{
			Symbol: shortSymbol, Side: exchange.SideBuy, Type: exchange.OrderTypeStopMarket,
			Quantity: position.ShortLeg.Quantity, TriggerPrice: shortSL,
		}); err == nil {
			position.ShortLeg.StopLossOrderID = order.ID
		}
	}

	if params.TakeProfitPct.IsPositive() {
		longTP := entryLong.Mul(decimal.NewFromInt(1).Add(params.TakeProfitPct))
		if order, err := longExch.PlaceConditionalOrder(ctx, exchange.ConditionalOrderRequest{
			Symbol: longSymbol, Side: exchange.SideSell, Type: exchange.OrderTypeTakeProfitMarket,
			Quantity: position.LongLeg.Quantity, TriggerPrice: longTP,
		}); err == nil {
			position.LongLeg.TakeProfitOrderID = order.ID
		}

		shortTP := entryShort.Mul(decimal.NewFromInt(1).Sub(params.TakeProfitPct))
		if order, err := shortExch.PlaceConditionalOrder(ctx, exchange.ConditionalOrderRequest{
			Symbol: shortSymbol, Side: exchange.SideBuy, Type: exchange.OrderTypeTakeProfitMarket,
			Quantity: position.ShortLeg.Quantity, TriggerPrice: shortTP,
		}); err == nil {
			position.ShortLeg.TakeProfitOrderID = order.ID
		}
	}

	if position.LongLeg.StopLossOrderID != "" || position.ShortLeg.StopLossOrderID != "" ||
		position.LongLeg.TakeProfitOrderID != "" || position.ShortLeg.TakeProfitOrderID != "" {
		position.ConditionalOrderStatus = models.ConditionalOrderStatusSet
	}
}

// CloseSingleSide закрывает указанную ногу позиции рыночным ордером, отменяет
// ее условные ордера и фиксирует цену выхода. Если это оставляет вторую ногу
// непокрытой, ее закрытие выполняет последующий шаг Conditional-Order Monitor-а.
func (pc *PositionCoordinator) CloseSingleSide(ctx context.Context, position *models.Position, side string, reason models.CloseReason) error {
	leg := &position.LongLeg
	if side == "short" {
		leg = &position.ShortLeg
	}

	exch, ok := pc.exchangeFor(leg.Exchange)
	if !ok {
		return fmt.Errorf("unknown exchange: %s", leg.Exchange)
	}

	closeSide := exchange.SideSell
	if side == "short" {
		closeSide = exchange.SideBuy
	}

	symbol := exch.SymbolFromCanonical(position.Symbol)
	order, err := exch.PlaceMarketOrder(ctx, symbol, closeSide, leg.Quantity)
	if err != nil {
		return fmt.Errorf("failed to close %s leg: %w", side, err)
	}

	now := time.Now()
	leg.ClosedAt = &now
	leg.ExitPrice = order.AvgFillPrice
	position.CloseReason = reason
	position.Status = models.PositionStatusClosing

	if leg.StopLossOrderID != "" {
		_ = exch.CancelOrder(ctx, symbol, leg.StopLossOrderID)
	}
	if leg.TakeProfitOrderID != "" {
		_ = exch.CancelOrder(ctx, symbol, leg.TakeProfitOrderID)
	}

	if position.LongLeg.ClosedAt != nil && position.ShortLeg.ClosedAt != nil {
		position.Status = models.PositionStatusClosed
		position.ClosedAt = &now
		if err := pc.emitTrade(ctx, position); err != nil {
			return err
		}
	}

	if pc.store != nil {
		return pc.store.Save(ctx, position)
	}
	return nil
}

// CloseBothTriggered фиксирует обе ноги как закрытые биржей напрямую (оба
// условных ордера сработали в один тик) - в отличие от CloseSingleSide, здесь
// не отправляется рыночный ордер, так как закрытие уже произошло на venue.
// Вызывается Conditional-Order Monitor-ом при детектировании BOTH.
func (pc *PositionCoordinator) CloseBothTriggered(ctx context.Context, position *models.Position, longExitPrice, shortExitPrice decimal.Decimal) error {
	now := time.Now()

	position.LongLeg.ClosedAt = &now
	position.LongLeg.ExitPrice = longExitPrice
	position.ShortLeg.ClosedAt = &now
	position.ShortLeg.ExitPrice = shortExitPrice

	position.CloseReason = models.CloseReasonBothTriggered
	position.Status = models.PositionStatusClosed
	position.ClosedAt = &now

	if err := pc.emitTrade(ctx, position); err != nil {
		return err
	}

	if pc.store != nil {
		return pc.store.Save(ctx, position)
	}
	return nil
}

// ClosePosition закрывает обе ноги одной позиции по запросу пользователя
// (POST /positions/{id}/close). Ноги, уже закрытые ранее (например, одна из
// них - условным ордером), пропускаются, что делает вызов безопасным для
// повтора на PARTIAL-позиции.
func (pc *PositionCoordinator) ClosePosition(ctx context.Context, positionID string, reason models.CloseReason) (*models.Position, error) {
	if pc.store == nil {
		return nil, fmt.Errorf("position store not configured")
	}

	position, err := pc.store.Get(ctx, positionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load position %s: %w", positionID, err)
	}
	if position.Status.IsTerminal() {
		return position, nil
	}

	key := lock.PositionKey(position.UserID, string(position.Symbol))
	token, err := pc.locker.Acquire(ctx, key, positionLockTTL)
	if err != nil {
		return nil, fmt.Errorf("position already in progress for %s/%s: %w", position.UserID, position.Symbol, err)
	}
	stopHeartbeat := make(chan struct{})
	go lock.HeartbeatLoop(ctx, pc.locker, key, token, positionLockTTL, positionLockHeartbeat, stopHeartbeat)
	defer func() {
		close(stopHeartbeat)
		_ = pc.locker.Release(ctx, key, token)
	}()

	if position.LongLeg.ClosedAt == nil {
		if err := pc.CloseSingleSide(ctx, position, "long", reason); err != nil {
			return position, fmt.Errorf("failed to close long leg: %w", err)
		}
	}
	if position.ShortLeg.ClosedAt == nil {
		if err := pc.CloseSingleSide(ctx, position, "short", reason); err != nil {
			return position, fmt.Errorf("failed to close short leg: %w", err)
		}
	}

	return position, nil
}

// BatchCloseResult - итог закрытия группы позиций.
type BatchCloseResult struct {
	Closed []string
	Failed map[string]string
}

// CloseBatch закрывает все открытые позиции группы последовательно; частичные
// неудачи не прерывают пакет, результат агрегирует успехи и ошибки.
func (pc *PositionCoordinator) CloseBatch(ctx context.Context, groupID string, progress func(current, total int, positionID string)) (*BatchCloseResult, error) {
	if pc.store == nil {
		return nil, fmt.Errorf("position store not configured")
	}

	positions, err := pc.store.ListOpenByGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list group %s: %w", groupID, err)
	}

	result := &BatchCloseResult{Failed: make(map[string]string)}

	for i, p := range positions {
		if progress != nil {
			progress(i+1, len(positions), p.ID)
		}

		if err := pc.CloseSingleSide(ctx, p, "long", models.CloseReasonBatchClose); err != nil {
			result.Failed[p.ID] = err.Error()
			continue
		}
		if err := pc.CloseSingleSide(ctx, p, "short", models.CloseReasonBatchClose); err != nil {
			result.Failed[p.ID] = err.Error()
			continue
		}
		result.Closed = append(result.Closed, p.ID)
	}

	return result, nil
}

// emitTrade рассчитывает итоговую сделку на терминальном переходе позиции в CLOSED.
func (pc *PositionCoordinator) emitTrade(ctx context.Context, position *models.Position) error {
	long, short := position.LongLeg, position.ShortLeg

	priceDiffPnl := long.ExitPrice.Sub(long.EntryPrice).Mul(long.Quantity).
		Add(short.EntryPrice.Sub(short.ExitPrice).Mul(short.Quantity))

	var fundingRatePnl decimal.Decimal
	if pc.fundingFees != nil {
		for _, leg := range []models.PositionLeg{long, short} {
			payments, err := pc.fundingFees.Query(ctx, leg.Exchange, position.Symbol, position.OpenedAt, *position.ClosedAt)
			if err != nil {
				continue
			}
			for _, payment := range payments {
				fundingRatePnl = fundingRatePnl.Add(payment.Amount)
			}
		}
	}

	totalPnl := priceDiffPnl.Add(fundingRatePnl)
	margin := long.EntryPrice.Mul(long.Quantity)
	if position.Leverage > 0 {
		margin = margin.Div(decimal.NewFromInt(int64(position.Leverage)))
	}
	var roi decimal.Decimal
	if margin.IsPositive() {
		roi = totalPnl.Div(margin)
	}

	position.RealizedPnl = totalPnl

	trade := &models.Trade{
		PositionID:     position.ID,
		UserID:         position.UserID,
		Symbol:         position.Symbol,
		LongExchange:   long.Exchange,
		ShortExchange:  short.Exchange,
		Quantity:       long.Quantity,
		PriceDiffPnl:   priceDiffPnl,
		FundingRatePnl: fundingRatePnl,
		TotalPnl:       totalPnl,
		Margin:         margin,
		Roi:            roi,
		CloseReason:    position.CloseReason,
		ClosedAt:       *position.ClosedAt,
	}

	RecordTrade(string(position.Symbol), "closed", totalPnl.InexactFloat64())

	if pc.trades != nil {
		return pc.trades.Record(ctx, trade)
	}
	return nil
}
