package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"fundingarb/internal/exchange"
	"fundingarb/internal/models"
	"fundingarb/internal/repository"
)

// fakeExchange - минимальная реализация exchange.Exchange для тестов кэша соединений.
type fakeExchange struct {
	name      models.Exchange
	balance   decimal.Decimal
	closed    bool
	closeErr  error
	connErr   error
}

func (f *fakeExchange) Connect(ctx context.Context, apiKey, secret, passphrase string) error {
	return f.connErr
}
func (f *fakeExchange) GetName() models.Exchange { return f.name }
func (f *fakeExchange) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	return f.balance, nil
}
func (f *fakeExchange) SubscribeTicker(symbol string, callback func(*exchange.Ticker)) error {
	return nil
}
func (f *fakeExchange) SubscribePositions(callback func(*exchange.Position)) error { return nil }
func (f *fakeExchange) GetTicker(ctx context.Context, symbol string) (*exchange.Ticker, error) {
	return &exchange.Ticker{Symbol: symbol}, nil
}
func (f *fakeExchange) GetFundingRate(ctx context.Context, symbol string) (*models.FundingRateRecord, error) {
	return nil, nil
}
func (f *fakeExchange) GetOrderBook(ctx context.Context, symbol string, depth int) (*exchange.OrderBook, error) {
	return &exchange.OrderBook{Symbol: symbol}, nil
}
func (f *fakeExchange) PlaceMarketOrder(ctx context.Context, symbol, side string, qty decimal.Decimal) (*exchange.Order, error) {
	return &exchange.Order{ID: "order-1", Symbol: symbol, Side: side, Quantity: qty}, nil
}
func (f *fakeExchange) PlaceConditionalOrder(ctx context.Context, req exchange.ConditionalOrderRequest) (*exchange.Order, error) {
	return &exchange.Order{ID: "cond-1"}, nil
}
func (f *fakeExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return nil
}
func (f *fakeExchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
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
	return decimal.NewFromFloat(0.0004), nil
}
func (f *fakeExchange) GetLimits(ctx context.Context, symbol string) (*exchange.Limits, error) {
	return &exchange.Limits{Symbol: symbol}, nil
}
func (f *fakeExchange) SymbolToCanonical(venueSymbol string) models.Symbol {
	return models.Symbol(venueSymbol)
}
func (f *fakeExchange) SymbolFromCanonical(symbol models.Symbol) string { return string(symbol) }
func (f *fakeExchange) Close() error {
	f.closed = true
	return f.closeErr
}

func TestExchangeService_NewService(t *testing.T) {
	svc := NewExchangeService(repository.NewExchangeAccountRepository(nil), "test_encryption_key_32_bytes___!")

	if svc == nil {
		t.Fatal("expected service, got nil")
	}
	if svc.connections == nil {
		t.Error("expected connections map to be initialized")
	}
}

func TestExchangeService_Close(t *testing.T) {
	svc := NewExchangeService(repository.NewExchangeAccountRepository(nil), "test_encryption_key_32_bytes___!")

	binance := &fakeExchange{name: models.ExchangeBinance}
	okx := &fakeExchange{name: models.ExchangeOKX}

	svc.connections[connKey{userID: "user-1", name: models.ExchangeBinance, env: models.EnvironmentMainnet}] = binance
	svc.connections[connKey{userID: "user-1", name: models.ExchangeOKX, env: models.EnvironmentMainnet}] = okx

	if err := svc.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if len(svc.connections) != 0 {
		t.Errorf("expected 0 connections after Close, got %d", len(svc.connections))
	}
	if !binance.closed || !okx.closed {
		t.Error("expected all cached connections to be closed")
	}
}

func TestExchangeService_ConnectionCacheIsolatedPerUserAndEnv(t *testing.T) {
	svc := NewExchangeService(repository.NewExchangeAccountRepository(nil), "test_encryption_key_32_bytes___!")

	mainnet := connKey{userID: "user-1", name: models.ExchangeBinance, env: models.EnvironmentMainnet}
	testnet := connKey{userID: "user-1", name: models.ExchangeBinance, env: models.EnvironmentTestnet}
	otherUser := connKey{userID: "user-2", name: models.ExchangeBinance, env: models.EnvironmentMainnet}

	svc.connections[mainnet] = &fakeExchange{name: models.ExchangeBinance}
	svc.connections[testnet] = &fakeExchange{name: models.ExchangeBinance}
	svc.connections[otherUser] = &fakeExchange{name: models.ExchangeBinance}

	if len(svc.connections) != 3 {
		t.Fatalf("expected 3 independent cache entries, got %d", len(svc.connections))
	}
}

func TestExchangeService_SetWebSocketHub(t *testing.T) {
	svc := NewExchangeService(repository.NewExchangeAccountRepository(nil), "test_encryption_key_32_bytes___!")

	mockHub := &mockBalanceBroadcaster{}
	svc.SetWebSocketHub(mockHub)

	if svc.wsHub == nil {
		t.Error("expected wsHub to be set")
	}
}

type mockBalanceBroadcaster struct {
	updates    []float64
	allBatches []map[string]float64
}

func (m *mockBalanceBroadcaster) BroadcastBalanceUpdate(exchangeName string, balance float64) {
	m.updates = append(m.updates, balance)
}

func (m *mockBalanceBroadcaster) BroadcastAllBalances(balances map[string]float64) {
	m.allBatches = append(m.allBatches, balances)
}
