package bot

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fundingarb/internal/config"
	"fundingarb/internal/exchange"
	"fundingarb/internal/lock"
	"fundingarb/internal/models"
)

// ============ Object pools для горячего пути ============

var notificationPool = sync.Pool{
	New: func() interface{} {
		return &models.Notification{Meta: make(map[string]interface{}, 8)}
	},
}

func acquireNotification() *models.Notification {
	return notificationPool.Get().(*models.Notification)
}

func releaseNotification(n *models.Notification) {
	if n == nil {
		return
	}
	n.Type = ""
	n.Severity = ""
	n.Message = ""
	n.PositionID = nil
	n.Timestamp = time.Time{}
	for k := range n.Meta {
		delete(n.Meta, k)
	}
	notificationPool.Put(n)
}

// rawEvent - один сырой WS-фрейм, маршрутизируемый к воркеру своего символа.
type rawEvent struct {
	exchange models.Exchange
	symbol   models.Symbol
	kind     EventKind
	payload  []byte
}

var rawEventPool = sync.Pool{New: func() interface{} { return &rawEvent{} }}

func acquireRawEvent() *rawEvent { return rawEventPool.Get().(*rawEvent) }
func releaseRawEvent(e *rawEvent) {
	e.exchange, e.symbol, e.kind, e.payload = "", "", "", nil
	rawEventPool.Put(e)
}

// eventShard - канал сырых событий, обслуживаемый N воркерами одного шарда.
// Детерминированный выбор шарда по символу гарантирует, что события одного
// символа обрабатываются в порядке поступления одним из воркеров шарда.
type eventShard struct {
	events chan *rawEvent
}

// WebSocketHub транслирует состояние движка подключенным клиентам UI.
type WebSocketHub interface {
	BroadcastOpportunity(op *models.ArbitrageOpportunity)
	BroadcastNotification(notif *models.Notification)
	BroadcastBalanceUpdate(exchangeName string, balance float64)
	BroadcastStatsUpdate(stats *models.Stats)
}

// OpportunityRecorder персистирует снимки возможностей Opportunity Tracker-а
// для UI/истории - runtime-стейт живет в памяти движка, эти вызовы лишь
// отражают его во внешнее хранилище.
type OpportunityRecorder interface {
	Upsert(o *models.ArbitrageOpportunity) error
	RecordEnd(h *models.OpportunityEndHistory) error
}

// Engine реализует событийно-ориентированный движок фандинг-арбитража:
// WS-фреймы бирж -> Event Normalizer -> Funding Pair Engine -> Opportunity
// Tracker -> Position Coordinator, с периодическим Conditional-Order Monitor-ом
// и фоновыми задачами обновления баланса/статистики для UI.
type Engine struct {
	cfg *config.Config

	ctx    context.Context
	cancel context.CancelFunc

	exchanges map[models.Exchange]exchange.Exchange
	exchMu    sync.RWMutex

	wsManagers map[models.Exchange]*exchange.WSConnectionManager

	normalizer          *EventNormalizer
	tracker             *FundingRateTracker
	pairEngine          *PairEngine
	opportunityTracker  *OpportunityTracker
	coordinator         *PositionCoordinator
	conditionalMonitor  *ConditionalOrderMonitor

	// restPool bounds concurrent REST fan-out (balance polling, limits preload)
	// across venues so a slow exchange cannot starve the others.
	restPool *pond.WorkerPool

	shards          []*eventShard
	numShards       int
	workersPerShard int

	notificationChan chan *models.Notification
	shutdown         chan struct{}

	wsHub WebSocketHub

	opportunities OpportunityRecorder

	minProfitThreshold float64

	activeOpportunities int64
}

// NewEngine создает Engine, подключая все компоненты C1-C9.
func NewEngine(
	cfg *config.Config,
	exchanges map[models.Exchange]exchange.Exchange,
	store PositionStore,
	trades TradeEmitter,
	fundingFees FundingFeeQuery,
	locker lock.Locker,
	lister OpenPositionLister,
	notifier Notifier,
	wsHub WebSocketHub,
	opportunities OpportunityRecorder,
	logger *zap.Logger,
) *Engine {
	numShards := runtime.NumCPU()
	if numShards < 4 {
		numShards = 4
	}
	if numShards > 32 {
		numShards = 32
	}

	ctx, cancel := context.WithCancel(context.Background())

	validator := NewOrderValidator()
	tracker := NewFundingRateTracker(numShards)

	e := &Engine{
		cfg:                cfg,
		ctx:                ctx,
		cancel:              cancel,
		exchanges:           exchanges,
		wsManagers:          make(map[models.Exchange]*exchange.WSConnectionManager),
		normalizer:          NewEventNormalizer(logger),
		tracker:             tracker,
		pairEngine:          NewPairEngine(tracker),
		opportunityTracker:  NewOpportunityTracker(),
		restPool:            pond.New(8, 64, pond.MinWorkers(2)),
		shards:              make([]*eventShard, numShards),
		numShards:           numShards,
		workersPerShard:     1,
		notificationChan:    make(chan *models.Notification, 200),
		shutdown:            make(chan struct{}),
		wsHub:               wsHub,
		opportunities:       opportunities,
		minProfitThreshold:  0.0, // any positive netReturn qualifies; overridden via SetMinProfitThreshold
	}

	e.coordinator = NewPositionCoordinator(exchanges, locker, store, trades, fundingFees, validator)
	e.conditionalMonitor = NewConditionalOrderMonitor(exchanges, lister, e.coordinator, notifier, logger, cfg.Venues.MonitorInterval)

	for i := 0; i < numShards; i++ {
		e.shards[i] = &eventShard{events: make(chan *rawEvent, 4000)}
	}

	return e
}

// SetMinProfitThreshold configures the netReturn floor the Funding Pair
// Engine requires before an opportunity is surfaced.
func (e *Engine) SetMinProfitThreshold(threshold float64) {
	e.minProfitThreshold = threshold
}

// Run starts the worker pools, periodic tasks and conditional-order monitor,
// and blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	for shardIdx := 0; shardIdx < e.numShards; shardIdx++ {
		for w := 0; w < e.workersPerShard; w++ {
			go e.eventWorker(ctx, shardIdx)
		}
	}

	go e.notificationWorker(ctx)
	go e.opportunityEvaluationLoop(ctx)
	go e.conditionalMonitor.Start(ctx)
	go e.periodicBalancePoll(ctx)

	<-ctx.Done()

	e.cancel()
	close(e.shutdown)
	e.conditionalMonitor.Stop()
	e.restPool.StopAndWait()
	e.drainShards()

	return ctx.Err()
}

func (e *Engine) drainShards() {
	for _, shard := range e.shards {
		for {
			select {
			case ev := <-shard.events:
				releaseRawEvent(ev)
			default:
				goto next
			}
		}
	next:
	}
}

// RouteRawFrame dispatches a raw venue WS frame to the worker owning its
// symbol's shard. Called from each exchange's onMessage callback.
func (e *Engine) RouteRawFrame(exch models.Exchange, symbol models.Symbol, kind EventKind, payload []byte) {
	shardIdx := int(fnvHash(string(symbol))) % e.numShards

	ev := acquireRawEvent()
	ev.exchange = exch
	ev.symbol = symbol
	ev.kind = kind
	ev.payload = payload

	select {
	case e.shards[shardIdx].events <- ev:
	default:
		releaseRawEvent(ev)
		RecordBufferOverflow("event_shard")
	}
}

func (e *Engine) eventWorker(ctx context.Context, shardIdx int) {
	shard := e.shards[shardIdx]
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-shard.events:
			e.handleRawEvent(ev)
			releaseRawEvent(ev)
		}
	}
}

func (e *Engine) handleRawEvent(ev *rawEvent) {
	start := time.Now()

	switch ev.kind {
	case EventFundingRateReceived:
		normalized := e.normalizer.NormalizeFundingRate(ev.exchange, ev.symbol, ev.payload)
		if normalized == nil {
			return
		}
		rec := &models.FundingRateRecord{
			Exchange:       normalized.FundingRate.Exchange,
			Symbol:         normalized.FundingRate.Symbol,
			Rate:           normalized.FundingRate.Rate,
			MarkPrice:      normalized.FundingRate.MarkPrice,
			NextSettlement: normalized.FundingRate.NextSettlement,
			UpdatedAt:      normalized.FundingRate.ReceivedAt,
		}
		e.tracker.Update(rec)
		RecordFundingRateLatency(string(ev.symbol), float64(time.Since(start).Microseconds())/1000.0)

	case EventOrderStatusChanged:
		// Position Coordinator наблюдает состояние ордеров через прямые вызовы
		// REST API (CheckOrderExists/FetchOrderHistory), этот путь только
		// учитывает событие в метрике EventsProcessed.
		normalized := e.normalizer.NormalizeOrderStatus(ev.exchange, ev.symbol, ev.payload)
		if normalized == nil {
			return
		}
		EventsProcessed.WithLabelValues("order_status_changed").Inc()

	case EventBalanceChanged:
		normalized := e.normalizer.NormalizeBalance(ev.exchange, ev.payload)
		if normalized == nil {
			return
		}
		EventsProcessed.WithLabelValues("balance_changed").Inc()
		if e.wsHub != nil {
			e.wsHub.BroadcastBalanceUpdate(string(normalized.Balance.Exchange), normalized.Balance.Balance.InexactFloat64())
		}
	}
}

// opportunityEvaluationLoop periodically re-evaluates the best pair for every
// tracked symbol and reconciles the Opportunity Tracker's ACTIVE/ENDED state,
// mirroring the teacher's periodic exit-condition-check cadence but applied to
// opportunity lifecycle instead of position exit conditions.
func (e *Engine) opportunityEvaluationLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.evaluateAllSymbols()
		}
	}
}

func (e *Engine) evaluateAllSymbols() {
	seenInCycle := make(map[models.OpportunityKey]struct{})

	for _, symbol := range e.tracker.Symbols() {
		start := time.Now()
		detected := e.pairEngine.Evaluate(symbol, decimal.NewFromFloat(e.minProfitThreshold))
		PairEvaluationLatency.Observe(float64(time.Since(start).Microseconds()) / 1000.0)

		if detected == nil {
			RecordOpportunity(string(symbol), false)
			continue
		}

		RecordOpportunity(string(symbol), true)
		RecordSpread(string(symbol), detected.Pair.SpreadPercent.InexactFloat64())

		seenInCycle[models.OpportunityKey{
			Symbol:        detected.Pair.Symbol,
			LongExchange:  detected.Pair.LongExchange,
			ShortExchange: detected.Pair.ShortExchange,
		}] = struct{}{}

		opportunity, isNew := e.opportunityTracker.Upsert(detected.Pair, detected.DetectedAt)
		if isNew {
			e.emitOpportunityNotification(opportunity, models.NotificationTypeOpportunityFound)
		}
		if e.wsHub != nil {
			e.wsHub.BroadcastOpportunity(opportunity)
		}
		if e.opportunities != nil {
			if err := e.opportunities.Upsert(opportunity); err != nil {
				e.normalizer.logger.Warn("failed to persist opportunity snapshot",
					zap.String("symbol", string(opportunity.Symbol)), zap.Error(err))
			}
		}
	}

	ended := e.opportunityTracker.Sweep(seenInCycle, time.Now())
	for _, endHistory := range ended {
		e.emitOpportunityEndedNotification(endHistory)
		if e.opportunities != nil {
			if err := e.opportunities.RecordEnd(endHistory); err != nil {
				e.normalizer.logger.Warn("failed to persist opportunity end history",
					zap.String("symbol", string(endHistory.Symbol)), zap.Error(err))
			}
		}
	}

	atomic.StoreInt64(&e.activeOpportunities, int64(len(e.opportunityTracker.Active())))
	ActiveOpportunities.Set(float64(atomic.LoadInt64(&e.activeOpportunities)))
}

func (e *Engine) emitOpportunityNotification(op *models.ArbitrageOpportunity, notifType string) {
	notif := acquireNotification()
	notif.Timestamp = time.Now()
	notif.Type = notifType
	notif.Severity = "info"
	notif.Message = fmt.Sprintf("%s: %s long=%s short=%s netReturn=%s", notifType, op.Symbol, op.LongExchange, op.ShortExchange, op.NetReturn)
	notif.Meta["symbol"] = string(op.Symbol)
	notif.Meta["long_exchange"] = string(op.LongExchange)
	notif.Meta["short_exchange"] = string(op.ShortExchange)

	if !tryEnqueueNotification(e.notificationChan, notif) {
		releaseNotification(notif)
	}
}

func (e *Engine) emitOpportunityEndedNotification(h *models.OpportunityEndHistory) {
	notif := acquireNotification()
	notif.Timestamp = time.Now()
	notif.Type = models.NotificationTypeOpportunityEnded
	notif.Severity = "info"
	notif.Message = fmt.Sprintf("opportunity ended: %s long=%s short=%s duration=%ds", h.Symbol, h.LongExchange, h.ShortExchange, h.DurationSeconds)
	notif.Meta["symbol"] = string(h.Symbol)
	notif.Meta["duration_seconds"] = h.DurationSeconds

	if !tryEnqueueNotification(e.notificationChan, notif) {
		releaseNotification(notif)
	}
}

func (e *Engine) notificationWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case notif := <-e.notificationChan:
			if e.wsHub != nil {
				e.wsHub.BroadcastNotification(notif)
			}
			releaseNotification(notif)
		}
	}
}

// periodicBalancePoll fans REST balance queries out across every connected
// exchange concurrently, bounded by restPool, every minute.
func (e *Engine) periodicBalancePoll(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.pollBalances(ctx)
		}
	}
}

func (e *Engine) pollBalances(ctx context.Context) {
	e.exchMu.RLock()
	snapshot := make(map[models.Exchange]exchange.Exchange, len(e.exchanges))
	for k, v := range e.exchanges {
		snapshot[k] = v
	}
	e.exchMu.RUnlock()

	var wg sync.WaitGroup
	for name, exch := range snapshot {
		name, exch := name, exch
		wg.Add(1)
		e.restPool.Submit(func() {
			defer wg.Done()
			balance, err := exch.GetBalance(ctx)
			if err != nil {
				UpdateExchangeStatus(string(name), false, 0)
				return
			}
			UpdateExchangeStatus(string(name), true, balance.InexactFloat64())
			if e.wsHub != nil {
				e.wsHub.BroadcastBalanceUpdate(string(name), balance.InexactFloat64())
			}
		})
	}
	wg.Wait()
}

// UpdateExchanges swaps the set of connected exchanges, used when a user
// connects or revokes an exchange account mid-run.
func (e *Engine) UpdateExchanges(exchanges map[models.Exchange]exchange.Exchange) {
	e.exchMu.Lock()
	e.exchanges = exchanges
	e.exchMu.Unlock()
}

// OpenPair is the public entry point used by the HTTP layer to trigger C6.
func (e *Engine) OpenPair(ctx context.Context, params OpenPairParams) (*models.Position, error) {
	return e.coordinator.OpenPair(ctx, params)
}

// CloseBatch is the public entry point used by the HTTP layer to trigger a
// grouped close across multiple positions.
func (e *Engine) CloseBatch(ctx context.Context, groupID string, progress func(current, total int, positionID string)) (*BatchCloseResult, error) {
	return e.coordinator.CloseBatch(ctx, groupID, progress)
}

// ActiveOpportunities is the public entry point used by the HTTP layer to
// list currently active funding-rate arbitrage opportunities.
func (e *Engine) ActiveOpportunities() []*models.ArbitrageOpportunity {
	return e.opportunityTracker.Active()
}

// ClosePosition is the public entry point used by the HTTP layer to close
// both legs of a single position on demand.
func (e *Engine) ClosePosition(ctx context.Context, positionID string) (*models.Position, error) {
	return e.coordinator.ClosePosition(ctx, positionID, models.CloseReasonManual)
}

// FundingRateSnapshotEntry - одна строка снимка ставок фандинга по символу
// для GET /funding-rates: последние известные ставки по каждой бирже и
// пересчитанный best pair на их основе.
type FundingRateSnapshotEntry struct {
	Symbol   models.Symbol
	Rates    map[models.Exchange]*models.FundingRateRecord
	BestPair *models.FundingRatePair
}

// FundingRatesSnapshot is the public entry point used by the HTTP layer to
// expose the Funding Pair Engine's current state for every tracked symbol.
func (e *Engine) FundingRatesSnapshot() []FundingRateSnapshotEntry {
	symbols := e.tracker.Symbols()
	out := make([]FundingRateSnapshotEntry, 0, len(symbols))
	for _, symbol := range symbols {
		rates := e.tracker.Snapshot(symbol)
		out = append(out, FundingRateSnapshotEntry{
			Symbol:   symbol,
			Rates:    rates,
			BestPair: e.pairEngine.BestPair(symbol, rates),
		})
	}
	return out
}

// MonitorStatus is the public entry point used by the HTTP layer to report
// the Conditional-Order Monitor's process-singleton health for GET /monitor/status.
func (e *Engine) MonitorStatus() MonitorStatusSnapshot {
	return e.conditionalMonitor.Status()
}

// WSConnectionStatus describes the health of one venue's WS connection for
// GET /ws-status.
type WSConnectionStatus struct {
	Exchange    models.Exchange
	State       string
	IsConnected bool
	RetryCount  int
}

// RefreshMarketData is the public entry point used by the HTTP layer to
// force an on-demand REST refresh of the funding rate for one symbol across
// the given exchanges (or all connected exchanges if none named), bypassing
// the WS-fed Funding Rate Tracker's cache. Fresh records are merged back into
// the tracker so the next opportunity evaluation cycle sees them too.
func (e *Engine) RefreshMarketData(ctx context.Context, symbol models.Symbol, exchanges []models.Exchange) (map[models.Exchange]*models.FundingRateRecord, error) {
	e.exchMu.RLock()
	targets := make(map[models.Exchange]exchange.Exchange)
	if len(exchanges) == 0 {
		for name, exch := range e.exchanges {
			targets[name] = exch
		}
	} else {
		for _, name := range exchanges {
			if exch, ok := e.exchanges[name]; ok {
				targets[name] = exch
			}
		}
	}
	e.exchMu.RUnlock()

	var (
		mu      sync.Mutex
		result  = make(map[models.Exchange]*models.FundingRateRecord, len(targets))
		wg      sync.WaitGroup
		firstErr error
	)

	for name, exch := range targets {
		name, exch := name, exch
		wg.Add(1)
		e.restPool.Submit(func() {
			defer wg.Done()
			venueSymbol := exch.SymbolFromCanonical(symbol)
			rec, err := exch.GetFundingRate(ctx, venueSymbol)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("%s: %w", name, err)
				}
				return
			}
			rec.Symbol = symbol
			e.tracker.Update(rec)
			result[name] = rec
		})
	}
	wg.Wait()

	if len(result) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return result, nil
}

// WSStatus is the public entry point used by the HTTP layer to report
// per-connection WS health for GET /ws-status.
func (e *Engine) WSStatus() []WSConnectionStatus {
	e.exchMu.RLock()
	defer e.exchMu.RUnlock()

	out := make([]WSConnectionStatus, 0, len(e.wsManagers))
	for name, mgr := range e.wsManagers {
		out = append(out, WSConnectionStatus{
			Exchange:    name,
			State:       mgr.GetState().String(),
			IsConnected: mgr.IsConnected(),
			RetryCount:  mgr.GetRetryCount(),
		})
	}
	return out
}
