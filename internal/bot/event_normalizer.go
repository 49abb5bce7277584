package bot

import (
	"errors"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fundingarb/internal/models"
)

var errMissingOrderFields = errors.New("order payload missing orderId or status")

var normalizerJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// EventKind различает три типа нормализованных событий, которые может
// произвести Event Normalizer из сырого венью-специфичного payload.
type EventKind string

const (
	EventFundingRateReceived EventKind = "funding_rate_received"
	EventOrderStatusChanged  EventKind = "order_status_changed"
	EventBalanceChanged      EventKind = "balance_changed"
)

// FundingRateReceived - нормализованное обновление ставки фандинга.
type FundingRateReceived struct {
	Exchange       models.Exchange
	Symbol         models.Symbol
	Rate           decimal.Decimal
	MarkPrice      decimal.Decimal
	NextSettlement time.Time
	ReceivedAt     time.Time
}

// OrderStatusChanged - нормализованное изменение статуса ордера (включая триггер SL/TP).
type OrderStatusChanged struct {
	Exchange   models.Exchange
	OrderID    string
	Symbol     models.Symbol
	Status     string
	FilledQty  decimal.Decimal
	AvgPrice   decimal.Decimal
	ReceivedAt time.Time
}

// BalanceChanged - нормализованное обновление баланса фьючерсного аккаунта.
type BalanceChanged struct {
	Exchange   models.Exchange
	Balance    decimal.Decimal
	ReceivedAt time.Time
}

// NormalizedEvent - результат нормализации одного сырого сообщения биржи.
// Ровно одно из полей непусто; Kind указывает, какое.
type NormalizedEvent struct {
	Kind          EventKind
	FundingRate   *FundingRateReceived
	OrderStatus   *OrderStatusChanged
	Balance       *BalanceChanged
}

// venueFundingPayload - общая форма фандинг-сообщений среди поддерживаемых бирж
// после того, как адаптер конкретной биржи привел ключи к этому виду; сами
// адаптеры отвечают за маппинг нативного payload в этот промежуточный вид
// перед вызовом нормализатора, либо нормализатор вызывается с венью-специфичным
// decode ниже для бирж, чьи WS-сообщения достаточно однородны для прямого парсинга.
type venueFundingPayload struct {
	Symbol         string  `json:"symbol"`
	FundingRate    string  `json:"fundingRate"`
	MarkPrice      string  `json:"markPrice"`
	NextSettleTime int64   `json:"nextFundingTime"`
}

type venueOrderPayload struct {
	OrderID   string `json:"orderId"`
	Symbol    string `json:"symbol"`
	Status    string `json:"status"`
	FilledQty string `json:"filledQty"`
	AvgPrice  string `json:"avgPrice"`
}

type venueBalancePayload struct {
	Balance string `json:"balance"`
}

// EventNormalizer декодирует сырые WS-фреймы каждой биржи в один из трех
// нормализованных типов событий. Каждая ветка маппинга чиста: не хранит
// состояния, не блокирует, и либо возвращает событие, либо логирует и
// отбрасывает payload, который не распознала.
type EventNormalizer struct {
	logger *zap.Logger
}

func NewEventNormalizer(logger *zap.Logger) *EventNormalizer {
	return &EventNormalizer{logger: logger}
}

func (n *EventNormalizer) dropMalformed(exch models.Exchange, kind string, raw []byte, err error) {
	correlationID := uuid.NewString()
	n.logger.Warn("dropping malformed venue payload",
		zap.String("exchange", string(exch)),
		zap.String("kind", kind),
		zap.String("correlation_id", correlationID),
		zap.Int("payload_len", len(raw)),
		zap.Error(err),
	)
}

// NormalizeFundingRate декодирует фандинг-сообщение биржи в FundingRateReceived.
// Venue-специфичные поля (например вложенность в Binance "data" или OKX "arg"/"data")
// приводятся адаптером биржи к форме venueFundingPayload перед вызовом.
func (n *EventNormalizer) NormalizeFundingRate(exch models.Exchange, symbol models.Symbol, raw []byte) *NormalizedEvent {
	var payload venueFundingPayload
	if err := normalizerJSON.Unmarshal(raw, &payload); err != nil {
		n.dropMalformed(exch, "funding_rate", raw, err)
		return nil
	}

	rate, err := decimal.NewFromString(payload.FundingRate)
	if err != nil {
		n.dropMalformed(exch, "funding_rate", raw, err)
		return nil
	}

	markPrice := decimal.Zero
	if payload.MarkPrice != "" {
		if mp, err := decimal.NewFromString(payload.MarkPrice); err == nil {
			markPrice = mp
		}
	}

	var nextSettlement time.Time
	if payload.NextSettleTime > 0 {
		nextSettlement = time.UnixMilli(payload.NextSettleTime)
	}

	return &NormalizedEvent{
		Kind: EventFundingRateReceived,
		FundingRate: &FundingRateReceived{
			Exchange:       exch,
			Symbol:         symbol,
			Rate:           rate,
			MarkPrice:      markPrice,
			NextSettlement: nextSettlement,
			ReceivedAt:     time.Now(),
		},
	}
}

// NormalizeOrderStatus декодирует сообщение об изменении статуса ордера.
func (n *EventNormalizer) NormalizeOrderStatus(exch models.Exchange, symbol models.Symbol, raw []byte) *NormalizedEvent {
	var payload venueOrderPayload
	if err := normalizerJSON.Unmarshal(raw, &payload); err != nil {
		n.dropMalformed(exch, "order_status", raw, err)
		return nil
	}
	if payload.OrderID == "" || payload.Status == "" {
		n.dropMalformed(exch, "order_status", raw, errMissingOrderFields)
		return nil
	}

	filledQty := decimal.Zero
	if payload.FilledQty != "" {
		if q, err := decimal.NewFromString(payload.FilledQty); err == nil {
			filledQty = q
		}
	}
	avgPrice := decimal.Zero
	if payload.AvgPrice != "" {
		if p, err := decimal.NewFromString(payload.AvgPrice); err == nil {
			avgPrice = p
		}
	}

	return &NormalizedEvent{
		Kind: EventOrderStatusChanged,
		OrderStatus: &OrderStatusChanged{
			Exchange:   exch,
			OrderID:    payload.OrderID,
			Symbol:     symbol,
			Status:     payload.Status,
			FilledQty:  filledQty,
			AvgPrice:   avgPrice,
			ReceivedAt: time.Now(),
		},
	}
}

// NormalizeBalance декодирует сообщение об изменении баланса фьючерсного аккаунта.
func (n *EventNormalizer) NormalizeBalance(exch models.Exchange, raw []byte) *NormalizedEvent {
	var payload venueBalancePayload
	if err := normalizerJSON.Unmarshal(raw, &payload); err != nil {
		n.dropMalformed(exch, "balance", raw, err)
		return nil
	}

	balance, err := decimal.NewFromString(payload.Balance)
	if err != nil {
		n.dropMalformed(exch, "balance", raw, err)
		return nil
	}

	return &NormalizedEvent{
		Kind: EventBalanceChanged,
		Balance: &BalanceChanged{
			Exchange:   exch,
			Balance:    balance,
			ReceivedAt: time.Now(),
		},
	}
}
