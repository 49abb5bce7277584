package bot

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fundingarb/internal/exchange"
	"fundingarb/internal/models"
)

// OpenPositionLister - минимальный контракт, который Conditional-Order Monitor-у
// нужен от хранилища позиций, без прямой зависимости от слоя репозитория.
type OpenPositionLister interface {
	ListOpenWithConditionalOrders(ctx context.Context) ([]*models.Position, error)
}

// PositionCloser - подмножество Position Coordinator-а, нужное монитору для
// закрытия противоположной ноги после срабатывания SL/TP, и для прямой
// фиксации позиции закрытой при одновременном срабатывании обеих ног.
type PositionCloser interface {
	CloseSingleSide(ctx context.Context, position *models.Position, side string, reason models.CloseReason) error
	CloseBothTriggered(ctx context.Context, position *models.Position, longExitPrice, shortExitPrice decimal.Decimal) error
}

// Notifier отправляет экстренное уведомление оператору при срабатывании,
// оставляющем позицию в PARTIAL без автоматического повторного закрытия,
// либо при ордере, исчезнувшем с биржи без подтвержденного триггера в истории.
type Notifier interface {
	NotifyConditionalOrderFailure(position *models.Position, side, reason string)
}

// ConditionalOrderMonitor периодически проверяет, не исполнились ли выставленные
// stop-loss/take-profit ордера на открытых позициях, и закрывает противоположную
// ногу при срабатывании. Перед принятием решения агрегирует состояние всех
// четырех условных ордеров позиции за тик, чтобы отличить срабатывание одной
// ноги от одновременного срабатывания обеих (case BOTH). Реализует
// дедупликацию по (exchange, orderId), чтобы не обрабатывать одно и то же
// срабатывание повторно между тиками.
type ConditionalOrderMonitor struct {
	exchanges map[models.Exchange]exchange.Exchange
	positions OpenPositionLister
	closer    PositionCloser
	notifier  Notifier
	logger    *zap.Logger

	interval time.Duration

	seenMu sync.Mutex
	seen   map[seenKey]struct{}

	running int32

	stopCh chan struct{}
}

type seenKey struct {
	exchange models.Exchange
	orderID  string
}

func NewConditionalOrderMonitor(
	exchanges map[models.Exchange]exchange.Exchange,
	positions OpenPositionLister,
	closer PositionCloser,
	notifier Notifier,
	logger *zap.Logger,
	interval time.Duration,
) *ConditionalOrderMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &ConditionalOrderMonitor{
		exchanges: exchanges,
		positions: positions,
		closer:    closer,
		notifier:  notifier,
		logger:    logger,
		interval:  interval,
		seen:      make(map[seenKey]struct{}),
		stopCh:    make(chan struct{}),
	}
}

// Start запускает периодическую проверку до отмены ctx или вызова Stop.
func (m *ConditionalOrderMonitor) Start(ctx context.Context) {
	atomic.StoreInt32(&m.running, 1)
	defer atomic.StoreInt32(&m.running, 0)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.checkAll(ctx)
		}
	}
}

func (m *ConditionalOrderMonitor) Stop() {
	close(m.stopCh)
}

// MonitorStatusSnapshot - ответ GET /monitor/status: признак того, что
// монитор сконфигурирован, его текущее рабочее состояние и период опроса.
type MonitorStatusSnapshot struct {
	Initialized bool
	IsRunning   bool
	IntervalMs  int64
}

// Status возвращает текущий снимок состояния монитора.
func (m *ConditionalOrderMonitor) Status() MonitorStatusSnapshot {
	return MonitorStatusSnapshot{
		Initialized: true,
		IsRunning:   atomic.LoadInt32(&m.running) == 1,
		IntervalMs:  m.interval.Milliseconds(),
	}
}

func (m *ConditionalOrderMonitor) checkAll(ctx context.Context) {
	positions, err := m.positions.ListOpenWithConditionalOrders(ctx)
	if err != nil {
		m.logger.Warn("failed to list positions for conditional order check", zap.Error(err))
		return
	}

	for _, p := range positions {
		m.checkPosition(ctx, p)
	}
}

// orderState - итог проверки одного условного ордера за текущий тик.
type orderState struct {
	orderID     string
	reason      models.CloseReason // конкретная причина закрытия при подтвержденном триггере
	triggered   bool               // подтвержден TRIGGERED|FILLED в истории ордеров
	unconfirmed bool               // ордер исчез, но история не подтверждает триггер
	exitPrice   decimal.Decimal
}

// checkPosition агрегирует состояние обоих SL/TP по обеим ногам позиции за
// один тик, прежде чем решать, закрывать ли что-либо. Это необходимо, чтобы
// отличить срабатывание одной ноги от одновременного срабатывания обеих,
// которое требует принципиально другого действия (BOTH).
func (m *ConditionalOrderMonitor) checkPosition(ctx context.Context, position *models.Position) {
	longSL := m.checkOrder(ctx, position, &position.LongLeg, position.LongLeg.StopLossOrderID, models.CloseReasonLongSLTriggered)
	longTP := m.checkOrder(ctx, position, &position.LongLeg, position.LongLeg.TakeProfitOrderID, models.CloseReasonLongTPTriggered)
	shortSL := m.checkOrder(ctx, position, &position.ShortLeg, position.ShortLeg.StopLossOrderID, models.CloseReasonShortSLTriggered)
	shortTP := m.checkOrder(ctx, position, &position.ShortLeg, position.ShortLeg.TakeProfitOrderID, models.CloseReasonShortTPTriggered)

	longTrigger, longTriggered := pickTrigger(longSL, longTP)
	shortTrigger, shortTriggered := pickTrigger(shortSL, shortTP)

	switch {
	case longTriggered && shortTriggered:
		m.handleBothTriggered(ctx, position, longTrigger, shortTrigger)
	case longTriggered:
		m.handleSingleSideTrigger(ctx, position, "short", longTrigger)
	case shortTriggered:
		m.handleSingleSideTrigger(ctx, position, "long", shortTrigger)
	default:
		m.handleUnconfirmed(position, longSL, longTP, shortSL, shortTP)
	}
}

// pickTrigger возвращает первый подтвержденный триггер ноги (SL проверяется
// раньше TP - срабатывание стопа решает исход ноги первым).
func pickTrigger(sl, tp orderState) (orderState, bool) {
	if sl.triggered {
		return sl, true
	}
	if tp.triggered {
		return tp, true
	}
	return orderState{}, false
}

// checkOrder определяет, исчез ли условный ордер с биржи (что означает
// вероятное срабатывание), и пытается подтвердить это через историю ордеров.
// Ордера, уже обработанные в предыдущих тиках (seen), пропускаются.
func (m *ConditionalOrderMonitor) checkOrder(
	ctx context.Context,
	position *models.Position,
	leg *models.PositionLeg,
	orderID string,
	reason models.CloseReason,
) orderState {
	if orderID == "" || leg.ClosedAt != nil {
		return orderState{}
	}

	key := seenKey{exchange: leg.Exchange, orderID: orderID}
	m.seenMu.Lock()
	_, already := m.seen[key]
	m.seenMu.Unlock()
	if already {
		return orderState{}
	}

	exch, ok := m.exchanges[leg.Exchange]
	if !ok {
		return orderState{}
	}
	symbol := exch.SymbolFromCanonical(position.Symbol)

	exists, err := exch.CheckOrderExists(ctx, symbol, orderID)
	if err != nil {
		m.logger.Warn("failed to check conditional order existence", zap.String("exchange", string(leg.Exchange)), zap.String("order_id", orderID), zap.Error(err))
		return orderState{}
	}
	if exists {
		return orderState{}
	}

	history, err := exch.FetchOrderHistory(ctx, symbol, 20)
	if err != nil {
		m.logger.Warn("failed to fetch order history to confirm trigger", zap.String("exchange", string(leg.Exchange)), zap.Error(err))
		return orderState{}
	}

	for _, o := range history {
		if o.ID != orderID {
			continue
		}
		if o.Status == exchange.OrderStatusFilled || o.Status == exchange.OrderStatusTriggered {
			return orderState{orderID: orderID, reason: reason, triggered: true, exitPrice: o.AvgFillPrice}
		}
		// CANCELED|EXPIRED - ордер снят штатно, не триггер.
		return orderState{}
	}

	// Ордер исчез с биржи, но в истории не найден - неоднозначная ситуация,
	// автоматическое закрытие не выполняем.
	return orderState{orderID: orderID, unconfirmed: true}
}

func (m *ConditionalOrderMonitor) handleSingleSideTrigger(ctx context.Context, position *models.Position, opposite string, trigger orderState) {
	triggeredLegExchange := position.LongLeg.Exchange
	if opposite == "long" {
		triggeredLegExchange = position.ShortLeg.Exchange
	}
	m.markSeen(triggeredLegExchange, trigger.orderID)
	RecordConditionalOrderTrigger(string(triggeredLegExchange), string(position.Symbol), string(trigger.reason))

	if err := m.closer.CloseSingleSide(ctx, position, opposite, trigger.reason); err != nil {
		m.logger.Error("failed to close opposite leg after conditional order trigger, leaving PARTIAL",
			zap.String("position_id", position.ID), zap.String("opposite_side", opposite), zap.Error(err))
		position.Status = models.PositionStatusPartial
		if m.notifier != nil {
			m.notifier.NotifyConditionalOrderFailure(position, opposite, err.Error())
		}
		m.unmarkSeen(triggeredLegExchange, trigger.orderID)
	}
}

func (m *ConditionalOrderMonitor) handleBothTriggered(ctx context.Context, position *models.Position, longTrigger, shortTrigger orderState) {
	m.markSeen(position.LongLeg.Exchange, longTrigger.orderID)
	m.markSeen(position.ShortLeg.Exchange, shortTrigger.orderID)
	RecordConditionalOrderTrigger(string(position.LongLeg.Exchange), string(position.Symbol), string(models.CloseReasonBothTriggered))

	if err := m.closer.CloseBothTriggered(ctx, position, longTrigger.exitPrice, shortTrigger.exitPrice); err != nil {
		m.logger.Error("failed to record simultaneous double trigger, leaving PARTIAL",
			zap.String("position_id", position.ID), zap.Error(err))
		position.Status = models.PositionStatusPartial
		if m.notifier != nil {
			m.notifier.NotifyConditionalOrderFailure(position, "both", err.Error())
		}
		m.unmarkSeen(position.LongLeg.Exchange, longTrigger.orderID)
		m.unmarkSeen(position.ShortLeg.Exchange, shortTrigger.orderID)
		return
	}
	position.ConditionalOrderStatus = models.ConditionalOrderStatusBothTriggered
}

// handleUnconfirmed уведомляет оператора о невозможности подтвердить
// срабатывание исчезнувшего ордера без закрытия чего-либо автоматически.
// CloseReasonUnconfirmedTrigger остается зарезервированным для ручного
// разбора (PATCH mark-closed) такой позиции.
func (m *ConditionalOrderMonitor) handleUnconfirmed(position *models.Position, states ...orderState) {
	exchanges := [...]models.Exchange{position.LongLeg.Exchange, position.LongLeg.Exchange, position.ShortLeg.Exchange, position.ShortLeg.Exchange}
	for i, s := range states {
		if !s.unconfirmed {
			continue
		}
		m.markSeen(exchanges[i], s.orderID)
		if m.notifier != nil {
			m.notifier.NotifyConditionalOrderFailure(position, "unknown", string(models.CloseReasonUnconfirmedTrigger))
		}
	}
}

func (m *ConditionalOrderMonitor) markSeen(exch models.Exchange, orderID string) {
	if orderID == "" {
		return
	}
	m.seenMu.Lock()
	m.seen[seenKey{exchange: exch, orderID: orderID}] = struct{}{}
	m.seenMu.Unlock()
}

func (m *ConditionalOrderMonitor) unmarkSeen(exch models.Exchange, orderID string) {
	if orderID == "" {
		return
	}
	m.seenMu.Lock()
	delete(m.seen, seenKey{exchange: exch, orderID: orderID})
	m.seenMu.Unlock()
}
