package bot

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fundingarb/internal/exchange"
	"fundingarb/internal/lock"
	"fundingarb/internal/models"
)

// fakeExchange - минимальная реализация exchange.Exchange для тестов Position Coordinator-а.
type fakeExchange struct {
	name          models.Exchange
	fillPrice     decimal.Decimal
	placeOrderErr error
	leverageSet   int
	cancelled     []string
	cancelErr     error
}

func (f *fakeExchange) Connect(ctx context.Context, apiKey, secret, passphrase string) error { return nil }
func (f *fakeExchange) GetName() models.Exchange                                             { return f.name }
func (f *fakeExchange) GetBalance(ctx context.Context) (decimal.Decimal, error)              { return decimal.Zero, nil }
func (f *fakeExchange) SubscribeTicker(symbol string, callback func(*exchange.Ticker)) error  { return nil }
func (f *fakeExchange) SubscribePositions(callback func(*exchange.Position)) error            { return nil }
func (f *fakeExchange) GetTicker(ctx context.Context, symbol string) (*exchange.Ticker, error) {
	return nil, nil
}
func (f *fakeExchange) GetFundingRate(ctx context.Context, symbol string) (*models.FundingRateRecord, error) {
	return &models.FundingRateRecord{Exchange: f.name, Rate: decimal.NewFromFloat(0.0001)}, nil
}
func (f *fakeExchange) GetOrderBook(ctx context.Context, symbol string, depth int) (*exchange.OrderBook, error) {
	return nil, nil
}
func (f *fakeExchange) PlaceMarketOrder(ctx context.Context, symbol, side string, qty decimal.Decimal) (*exchange.Order, error) {
	if f.placeOrderErr != nil {
		return nil, f.placeOrderErr
	}
	return &exchange.Order{
		ID: "order-" + string(f.name), Symbol: symbol, Side: side,
		Quantity: qty, FilledQty: qty, AvgFillPrice: f.fillPrice, Status: exchange.OrderStatusFilled,
	}, nil
}
func (f *fakeExchange) PlaceConditionalOrder(ctx context.Context, req exchange.ConditionalOrderRequest) (*exchange.Order, error) {
	return &exchange.Order{ID: "cond-" + string(f.name), Status: exchange.OrderStatusNew}, nil
}
func (f *fakeExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	f.leverageSet = leverage
	return nil
}
func (f *fakeExchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, orderID)
	return nil
}
func (f *fakeExchange) CheckOrderExists(ctx context.Context, symbol, orderID string) (bool, error) {
	return true, nil
}
func (f *fakeExchange) FetchOrderHistory(ctx context.Context, symbol string, limit int) ([]*exchange.Order, error) {
	return nil, nil
}
func (f *fakeExchange) GetOpenPositions(ctx context.Context) ([]*exchange.Position, error) {
	return nil, nil
}
func (f *fakeExchange) ClosePosition(ctx context.Context, symbol, side string, qty decimal.Decimal) error {
	return nil
}
func (f *fakeExchange) GetTradingFee(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}
func (f *fakeExchange) GetLimits(ctx context.Context, symbol string) (*exchange.Limits, error) {
	return &exchange.Limits{MinOrderQty: decimal.NewFromFloat(0.001), MaxOrderQty: decimal.NewFromInt(1000), QtyStep: decimal.NewFromFloat(0.001), MinNotional: decimal.NewFromInt(5)}, nil
}
func (f *fakeExchange) SymbolToCanonical(venueSymbol string) models.Symbol  { return models.Symbol(venueSymbol) }
func (f *fakeExchange) SymbolFromCanonical(symbol models.Symbol) string    { return string(symbol) }
func (f *fakeExchange) Close() error                                       { return nil }

type memStore struct {
	saved map[string]*models.Position
}

func newMemStore() *memStore { return &memStore{saved: make(map[string]*models.Position)} }

func (s *memStore) Save(ctx context.Context, p *models.Position) error {
	s.saved[p.ID] = p
	return nil
}
func (s *memStore) Get(ctx context.Context, id string) (*models.Position, error) {
	return s.saved[id], nil
}
func (s *memStore) ListOpenByGroup(ctx context.Context, groupID string) ([]*models.Position, error) {
	var out []*models.Position
	for _, p := range s.saved {
		if p.GroupID == groupID && !p.Status.IsTerminal() {
			out = append(out, p)
		}
	}
	return out, nil
}

type memTrades struct {
	recorded []*models.Trade
}

func (m *memTrades) Record(ctx context.Context, t *models.Trade) error {
	m.recorded = append(m.recorded, t)
	return nil
}

func TestOpenPairBothLegsFillSucceeds(t *testing.T) {
	exchanges := map[models.Exchange]exchange.Exchange{
		"binance": &fakeExchange{name: "binance", fillPrice: decimal.NewFromInt(60000)},
		"okx":     &fakeExchange{name: "okx", fillPrice: decimal.NewFromInt(60010)},
	}
	store := newMemStore()
	trades := &memTrades{}
	pc := NewPositionCoordinator(exchanges, lock.NewInProcessLocker(), store, trades, nil, NewOrderValidator())

	position, err := pc.OpenPair(context.Background(), OpenPairParams{
		UserID: "u1", Symbol: "BTCUSDT", LongExchange: "binance", ShortExchange: "okx",
		Quantity: decimal.NewFromFloat(0.1), Leverage: 5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if position.Status != models.PositionStatusOpen {
		t.Errorf("expected status OPEN, got %s", position.Status)
	}
	if len(store.saved) != 1 {
		t.Errorf("expected position persisted, got %d saves", len(store.saved))
	}
}

func TestOpenPairUnwindsOnSingleLegFailure(t *testing.T) {
	exchanges := map[models.Exchange]exchange.Exchange{
		"binance": &fakeExchange{name: "binance", fillPrice: decimal.NewFromInt(60000)},
		"okx":     &fakeExchange{name: "okx", placeOrderErr: context.DeadlineExceeded},
	}
	store := newMemStore()
	pc := NewPositionCoordinator(exchanges, lock.NewInProcessLocker(), store, nil, nil, NewOrderValidator())

	position, err := pc.OpenPair(context.Background(), OpenPairParams{
		UserID: "u1", Symbol: "BTCUSDT", LongExchange: "binance", ShortExchange: "okx",
		Quantity: decimal.NewFromFloat(0.1), Leverage: 5,
	})
	if err == nil {
		t.Fatal("expected error for single-leg failure")
	}
	if position.Status != models.PositionStatusFailed {
		t.Errorf("expected status FAILED, got %s", position.Status)
	}
	if position.CloseReason != models.CloseReasonCompensatingUnwind {
		t.Errorf("expected close reason COMPENSATING_UNWIND, got %s", position.CloseReason)
	}
}

func TestCloseSingleSideEmitsTradeWhenBothLegsClosed(t *testing.T) {
	exchanges := map[models.Exchange]exchange.Exchange{
		"binance": &fakeExchange{name: "binance", fillPrice: decimal.NewFromInt(61000)},
		"okx":     &fakeExchange{name: "okx", fillPrice: decimal.NewFromInt(60900)},
	}
	store := newMemStore()
	trades := &memTrades{}
	pc := NewPositionCoordinator(exchanges, lock.NewInProcessLocker(), store, trades, nil, NewOrderValidator())

	now := time.Now()
	position := &models.Position{
		ID: "p1", UserID: "u1", Symbol: "BTCUSDT", Leverage: 5,
		LongLeg:  models.PositionLeg{Exchange: "binance", Side: "long", EntryPrice: decimal.NewFromInt(60000), Quantity: decimal.NewFromFloat(0.1), FilledAt: &now},
		ShortLeg: models.PositionLeg{Exchange: "okx", Side: "short", EntryPrice: decimal.NewFromInt(60050), Quantity: decimal.NewFromFloat(0.1), FilledAt: &now},
		Status:   models.PositionStatusOpen,
	}

	if err := pc.CloseSingleSide(context.Background(), position, "long", models.CloseReasonManual); err != nil {
		t.Fatalf("unexpected error closing long leg: %v", err)
	}
	if err := pc.CloseSingleSide(context.Background(), position, "short", models.CloseReasonManual); err != nil {
		t.Fatalf("unexpected error closing short leg: %v", err)
	}

	if position.Status != models.PositionStatusClosed {
		t.Errorf("expected status CLOSED, got %s", position.Status)
	}
	if len(trades.recorded) != 1 {
		t.Fatalf("expected one trade emitted, got %d", len(trades.recorded))
	}
	if trades.recorded[0].TotalPnl.IsZero() {
		t.Error("expected non-zero total PnL")
	}
}
