package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"fundingarb/internal/models"
)

// Exchange определяет унифицированный интерфейс для работы с любой биржей,
// поддерживающей перпетуальные фьючерсы с фандингом.
type Exchange interface {
	// Connect устанавливает соединение с биржей, используя расшифрованные
	// учетные данные пользователя.
	Connect(ctx context.Context, apiKey, secret, passphrase string) error

	// GetName возвращает имя биржи
	GetName() models.Exchange

	// GetBalance получает баланс фьючерсного аккаунта в USDT
	GetBalance(ctx context.Context) (decimal.Decimal, error)

	// SubscribeTicker подписывается на поток цен по символу через WebSocket
	SubscribeTicker(symbol string, callback func(*Ticker)) error

	// SubscribePositions подписывается на поток обновлений собственных позиций
	SubscribePositions(callback func(*Position)) error

	// GetTicker получает текущую цену актива
	GetTicker(ctx context.Context, symbol string) (*Ticker, error)

	// GetFundingRate получает текущую ставку фандинга для символа
	GetFundingRate(ctx context.Context, symbol string) (*models.FundingRateRecord, error)

	// GetOrderBook получает стакан ордеров с заданной глубиной
	GetOrderBook(ctx context.Context, symbol string, depth int) (*OrderBook, error)

	// PlaceMarketOrder размещает рыночный ордер на открытие позиции
	PlaceMarketOrder(ctx context.Context, symbol, side string, qty decimal.Decimal) (*Order, error)

	// PlaceConditionalOrder размещает условный ордер (stop-loss/take-profit)
	PlaceConditionalOrder(ctx context.Context, req ConditionalOrderRequest) (*Order, error)

	// SetLeverage выставляет плечо для символа перед открытием ноги
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	// CancelOrder отменяет активный (в т.ч. условный) ордер по id
	CancelOrder(ctx context.Context, symbol, orderID string) error

	// CheckOrderExists проверяет, что ордер все еще активен (не исполнен и не отменен)
	CheckOrderExists(ctx context.Context, symbol, orderID string) (bool, error)

	// FetchOrderHistory возвращает последние ордера по символу, для подтверждения срабатывания
	FetchOrderHistory(ctx context.Context, symbol string, limit int) ([]*Order, error)

	// GetOpenPositions получает список открытых позиций
	GetOpenPositions(ctx context.Context) ([]*Position, error)

	// ClosePosition закрывает позицию рыночным ордером
	ClosePosition(ctx context.Context, symbol, side string, qty decimal.Decimal) error

	// GetTradingFee получает комиссию тейкера для символа
	GetTradingFee(ctx context.Context, symbol string) (decimal.Decimal, error)

	// GetLimits получает торговые лимиты биржи для символа
	GetLimits(ctx context.Context, symbol string) (*Limits, error)

	// SymbolToCanonical конвертирует биржевой символ в каноническую форму BASE+QUOTE
	SymbolToCanonical(venueSymbol string) models.Symbol

	// SymbolFromCanonical конвертирует каноническую форму в биржевой символ
	SymbolFromCanonical(symbol models.Symbol) string

	// Close закрывает соединения с биржей
	Close() error
}

// Ticker содержит информацию о текущей цене
type Ticker struct {
	Symbol    string          `json:"symbol"`
	BidPrice  decimal.Decimal `json:"bid_price"`
	AskPrice  decimal.Decimal `json:"ask_price"`
	LastPrice decimal.Decimal `json:"last_price"`
	Timestamp time.Time       `json:"timestamp"`
}

// OrderBook представляет стакан ордеров
type OrderBook struct {
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp time.Time    `json:"timestamp"`
}

// PriceLevel представляет уровень цены в стакане
type PriceLevel struct {
	Price  decimal.Decimal `json:"price"`
	Volume decimal.Decimal `json:"volume"`
}

// Order представляет ордер, включая условные (triggered) ордера
type Order struct {
	ID           string          `json:"id"`
	Symbol       string          `json:"symbol"`
	Side         string          `json:"side"`
	Type         string          `json:"type"` // market, limit, stop_market, take_profit_market
	Quantity     decimal.Decimal `json:"quantity"`
	FilledQty    decimal.Decimal `json:"filled_qty"`
	AvgFillPrice decimal.Decimal `json:"avg_fill_price"`
	TriggerPrice decimal.Decimal `json:"trigger_price,omitempty"`
	Status       string          `json:"status"` // new, partially_filled, filled, cancelled, rejected
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ConditionalOrderRequest описывает параметры размещения условного ордера
type ConditionalOrderRequest struct {
	Symbol       string
	Side         string // buy, sell - направление закрывающего ордера
	Type         string // stop_market, take_profit_market
	Quantity     decimal.Decimal
	TriggerPrice decimal.Decimal
}

// Position представляет открытую позицию на бирже
type Position struct {
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	Size          decimal.Decimal `json:"size"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	MarkPrice     decimal.Decimal `json:"mark_price"`
	Leverage      int             `json:"leverage"`
	UnrealizedPnl decimal.Decimal `json:"unrealized_pnl"`
	Liquidation   bool            `json:"liquidation"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Limits содержит торговые ограничения биржи
type Limits struct {
	Symbol      string          `json:"symbol"`
	MinOrderQty decimal.Decimal `json:"min_order_qty"`
	MaxOrderQty decimal.Decimal `json:"max_order_qty"`
	QtyStep     decimal.Decimal `json:"qty_step"`
	MinNotional decimal.Decimal `json:"min_notional"`
	PriceStep   decimal.Decimal `json:"price_step"`
	MaxLeverage int             `json:"max_leverage"`
}

// ErrorKind классифицирует ошибку биржи для выбора стратегии обработки (см. internal/apperr)
type ErrorKind string

const (
	ErrorKindTransient ErrorKind = "transient" // сетевая ошибка, таймаут, 5xx - повторить с backoff
	ErrorKindPermanent ErrorKind = "permanent" // неверные данные запроса, неподдерживаемый символ
	ErrorKindAuth      ErrorKind = "auth"      // неверная подпись/ключ
	ErrorKindRateLimit ErrorKind = "rate_limit"
)

// ExchangeError представляет ошибку от биржи
type ExchangeError struct {
	Exchange models.Exchange
	Kind     ErrorKind
	Code     string
	Message  string
	Original error
}

func (e *ExchangeError) Error() string {
	return string(e.Exchange) + ": " + e.Message
}

// Unwrap возвращает оригинальную ошибку для поддержки errors.Is() и errors.As()
func (e *ExchangeError) Unwrap() error {
	return e.Original
}

// Side constants for orders
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Side constants for positions
const (
	SideLong  = "long"
	SideShort = "short"
)

// Order type constants
const (
	OrderTypeMarket             = "market"
	OrderTypeLimit              = "limit"
	OrderTypeStopMarket         = "stop_market"
	OrderTypeTakeProfitMarket   = "take_profit_market"
)

// Order status constants
const (
	OrderStatusNew             = "new"
	OrderStatusPartiallyFilled = "partially_filled"
	OrderStatusFilled          = "filled"
	OrderStatusTriggered       = "triggered"
	OrderStatusCancelled       = "cancelled"
	OrderStatusExpired         = "expired"
	OrderStatusRejected        = "rejected"
)
