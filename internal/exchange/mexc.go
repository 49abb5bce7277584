package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fundingarb/internal/models"
)

const (
	mexcBaseURL = "https://contract.mexc.com"
	mexcWSURL   = "wss://contract.mexc.com/edge"
)

// MEXC реализует Exchange для MEXC Futures.
type MEXC struct {
	apiKey    string
	secretKey string

	httpClient *http.Client

	wsManager *WSConnectionManager
	wsMu      sync.Mutex

	tickerCallbacks  map[string]func(*Ticker)
	positionCallback func(*Position)
	callbackMu       sync.RWMutex

	connected bool
	closeChan chan struct{}
}

func NewMEXC() *MEXC {
	return &MEXC{
		httpClient:      GetGlobalHTTPClient().GetClient(),
		tickerCallbacks: make(map[string]func(*Ticker)),
		closeChan:       make(chan struct{}),
	}
}

// sign реализует схему подписи MEXC Futures: HMAC-SHA256(accessKey+timestamp+paramString, secretKey)
func (m *MEXC) sign(timestamp, paramString string) string {
	h := hmac.New(sha256.New, []byte(m.secretKey))
	h.Write([]byte(m.apiKey + timestamp + paramString))
	return hex.EncodeToString(h.Sum(nil))
}

func (m *MEXC) doRequest(ctx context.Context, method, endpoint string, params map[string]string, signed bool) ([]byte, error) {
	reqURL := mexcBaseURL + endpoint
	var reqBody string

	paramString := ""
	if method == http.MethodGet {
		if len(params) > 0 {
			keys := make([]string, 0, len(params))
			for k := range params {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			pairs := make([]string, 0, len(keys))
			for _, k := range keys {
				pairs = append(pairs, k+"="+params[k])
			}
			paramString = strings.Join(pairs, "&")
			reqURL += "?" + paramString
		}
	} else if len(params) > 0 {
		jsonBytes, _ := json.Marshal(params)
		reqBody = string(jsonBytes)
		paramString = reqBody
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, strings.NewReader(reqBody))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")

	if signed {
		timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
		signature := m.sign(timestamp, paramString)
		req.Header.Set("ApiKey", m.apiKey)
		req.Header.Set("Request-Time", timestamp)
		req.Header.Set("Signature", signature)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, &ExchangeError{Exchange: models.ExchangeMEXC, Kind: ErrorKindTransient, Message: err.Error(), Original: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var baseResp struct {
		Success bool   `json:"success"`
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &baseResp); err != nil {
		return nil, err
	}

	if !baseResp.Success && baseResp.Code != 0 {
		kind := ErrorKindPermanent
		if baseResp.Code == 510 || baseResp.Code == 730 { // rate limit codes
			kind = ErrorKindRateLimit
		} else if baseResp.Code == 600 || baseResp.Code == 602 { // signature/auth errors
			kind = ErrorKindAuth
		}
		return nil, &ExchangeError{Exchange: models.ExchangeMEXC, Kind: kind, Code: strconv.Itoa(baseResp.Code), Message: baseResp.Message}
	}

	return body, nil
}

func (m *MEXC) Connect(ctx context.Context, apiKey, secret, passphrase string) error {
	m.apiKey = apiKey
	m.secretKey = secret

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := m.GetBalance(connectCtx)
	if err != nil {
		return fmt.Errorf("failed to connect to MEXC: %w", err)
	}

	m.connected = true
	return nil
}

func (m *MEXC) GetName() models.Exchange { return models.ExchangeMEXC }

func (m *MEXC) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	body, err := m.doRequest(ctx, http.MethodGet, "/api/v1/private/account/asset/USDT", nil, true)
	if err != nil {
		return decimal.Zero, err
	}

	var resp struct {
		Data struct {
			AvailableBalance decimal.Decimal `json:"availableBalance"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, err
	}

	return resp.Data.AvailableBalance, nil
}

func (m *MEXC) GetTicker(ctx context.Context, symbol string) (*Ticker, error) {
	mexcSymbol := m.toMEXCSymbol(symbol)

	body, err := m.doRequest(ctx, http.MethodGet, "/api/v1/contract/ticker", map[string]string{"symbol": mexcSymbol}, false)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data struct {
			LastPrice decimal.Decimal `json:"lastPrice"`
			Bid1      decimal.Decimal `json:"bid1"`
			Ask1      decimal.Decimal `json:"ask1"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	return &Ticker{
		Symbol:    symbol,
		BidPrice:  resp.Data.Bid1,
		AskPrice:  resp.Data.Ask1,
		LastPrice: resp.Data.LastPrice,
		Timestamp: time.Now(),
	}, nil
}

// GetFundingRate - MEXC Futures рассчитывает фандинг каждые 8 часов для большинства контрактов
func (m *MEXC) GetFundingRate(ctx context.Context, symbol string) (*models.FundingRateRecord, error) {
	mexcSymbol := m.toMEXCSymbol(symbol)

	body, err := m.doRequest(ctx, http.MethodGet, "/api/v1/contract/funding_rate/"+mexcSymbol, nil, false)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data struct {
			FundingRate     decimal.Decimal `json:"fundingRate"`
			NextSettleTime  int64           `json:"nextSettleTime"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	tickerBody, err := m.doRequest(ctx, http.MethodGet, "/api/v1/contract/index_price/"+mexcSymbol, nil, false)
	markPrice := decimal.Zero
	if err == nil {
		var idxResp struct {
			Data struct {
				IndexPrice decimal.Decimal `json:"indexPrice"`
			} `json:"data"`
		}
		if json.Unmarshal(tickerBody, &idxResp) == nil {
			markPrice = idxResp.Data.IndexPrice
		}
	}

	return &models.FundingRateRecord{
		Exchange:       models.ExchangeMEXC,
		Symbol:         m.SymbolToCanonical(symbol),
		Rate:           resp.Data.FundingRate,
		Interval:       models.FundingInterval8h,
		NextSettlement: time.UnixMilli(resp.Data.NextSettleTime),
		MarkPrice:      markPrice,
		UpdatedAt:      time.Now(),
	}, nil
}

func (m *MEXC) GetOrderBook(ctx context.Context, symbol string, depth int) (*OrderBook, error) {
	if depth > 100 {
		depth = 100
	}

	mexcSymbol := m.toMEXCSymbol(symbol)
	body, err := m.doRequest(ctx, http.MethodGet, "/api/v1/contract/depth/"+mexcSymbol, map[string]string{"limit": strconv.Itoa(depth)}, false)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data struct {
			Bids [][]decimal.Decimal `json:"bids"`
			Asks [][]decimal.Decimal `json:"asks"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	orderBook := &OrderBook{
		Symbol:    symbol,
		Bids:      make([]PriceLevel, len(resp.Data.Bids)),
		Asks:      make([]PriceLevel, len(resp.Data.Asks)),
		Timestamp: time.Now(),
	}

	for i, bid := range resp.Data.Bids {
		if len(bid) >= 2 {
			orderBook.Bids[i] = PriceLevel{Price: bid[0], Volume: bid[1]}
		}
	}
	for i, ask := range resp.Data.Asks {
		if len(ask) >= 2 {
			orderBook.Asks[i] = PriceLevel{Price: ask[0], Volume: ask[1]}
		}
	}

	sort.Slice(orderBook.Bids, func(i, j int) bool { return orderBook.Bids[i].Price.GreaterThan(orderBook.Bids[j].Price) })
	sort.Slice(orderBook.Asks, func(i, j int) bool { return orderBook.Asks[i].Price.LessThan(orderBook.Asks[j].Price) })

	return orderBook, nil
}

func (m *MEXC) PlaceMarketOrder(ctx context.Context, symbol, side string, qty decimal.Decimal) (*Order, error) {
	mexcSymbol := m.toMEXCSymbol(symbol)

	// MEXC: side 1=open long, 3=open short
	mexcSide := "1"
	orderSide := SideLong
	if side == SideSell || side == SideShort {
		mexcSide = "3"
		orderSide = SideShort
	}

	params := map[string]string{
		"symbol":     mexcSymbol,
		"side":       mexcSide,
		"type":       "5", // market order
		"openType":   "2", // cross margin
		"vol":        qty.String(),
	}

	body, err := m.doRequest(ctx, http.MethodPost, "/api/v1/private/order/submit", params, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data string `json:"data"` // order id
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	order, err := m.fetchOrderByID(ctx, resp.Data)
	if err != nil {
		return &Order{
			ID:        resp.Data,
			Symbol:    symbol,
			Side:      orderSide,
			Type:      OrderTypeMarket,
			Quantity:  qty,
			Status:    OrderStatusFilled,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}, nil
	}
	return order, nil
}

func (m *MEXC) fetchOrderByID(ctx context.Context, orderID string) (*Order, error) {
	body, err := m.doRequest(ctx, http.MethodGet, "/api/v1/private/order/get/"+orderID, nil, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data struct {
			Symbol     string          `json:"symbol"`
			DealVol    decimal.Decimal `json:"dealVol"`
			DealAvgPrice decimal.Decimal `json:"dealAvgPrice"`
			Vol        decimal.Decimal `json:"vol"`
			State      int             `json:"state"`
			CreateTime int64           `json:"createTime"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	status := OrderStatusNew
	switch resp.Data.State {
	case 2:
		status = OrderStatusPartiallyFilled
	case 3:
		status = OrderStatusFilled
	case 4:
		status = OrderStatusCancelled
	}

	return &Order{
		ID:           orderID,
		Symbol:       m.fromMEXCSymbol(resp.Data.Symbol),
		Quantity:     resp.Data.Vol,
		FilledQty:    resp.Data.DealVol,
		AvgFillPrice: resp.Data.DealAvgPrice,
		Status:       status,
		CreatedAt:    time.UnixMilli(resp.Data.CreateTime),
		UpdatedAt:    time.Now(),
	}, nil
}

func (m *MEXC) PlaceConditionalOrder(ctx context.Context, req ConditionalOrderRequest) (*Order, error) {
	mexcSymbol := m.toMEXCSymbol(req.Symbol)

	// MEXC: side 2=close short, 4=close long; executeCycle=1, trend=1 (последняя цена)
	mexcSide := "4"
	if req.Side == SideBuy {
		mexcSide = "2"
	}

	// triggerType 1: >=, 2: <=. Закрывающий sell (лонг-нога): стоп при падении
	// цены (<=), тейк-профит при росте (>=); закрывающий buy (шорт-нога) - наоборот.
	triggerType := "1"
	if (req.Type == OrderTypeStopMarket) == (req.Side == SideSell) {
		triggerType = "2"
	}

	params := map[string]string{
		"symbol":      mexcSymbol,
		"side":        mexcSide,
		"vol":         req.Quantity.String(),
		"triggerPrice": req.TriggerPrice.String(),
		"triggerType": triggerType,
		"executeCycle": "1",
		"orderType":   "5", // market
		"trend":       "1",
	}

	body, err := m.doRequest(ctx, http.MethodPost, "/api/v1/private/planorder/place", params, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	return &Order{
		ID:           resp.Data,
		Symbol:       req.Symbol,
		Side:         req.Side,
		Type:         req.Type,
		Quantity:     req.Quantity,
		TriggerPrice: req.TriggerPrice,
		Status:       OrderStatusNew,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}, nil
}

func (m *MEXC) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	mexcSymbol := m.toMEXCSymbol(symbol)
	_, err := m.doRequest(ctx, http.MethodPost, "/api/v1/private/position/change_leverage", map[string]string{
		"symbol":   mexcSymbol,
		"leverage": strconv.Itoa(leverage),
	}, true)
	return err
}

func (m *MEXC) CancelOrder(ctx context.Context, symbol, orderID string) error {
	mexcSymbol := m.toMEXCSymbol(symbol)
	_, err := m.doRequest(ctx, http.MethodDelete, "/api/v1/private/order/cancel", map[string]string{
		"symbol":  mexcSymbol,
		"orderId": orderID,
	}, true)
	return err
}

func (m *MEXC) CheckOrderExists(ctx context.Context, symbol, orderID string) (bool, error) {
	order, err := m.fetchOrderByID(ctx, orderID)
	if err != nil {
		return false, err
	}
	return order.Status == OrderStatusNew || order.Status == OrderStatusPartiallyFilled, nil
}

func (m *MEXC) FetchOrderHistory(ctx context.Context, symbol string, limit int) ([]*Order, error) {
	mexcSymbol := m.toMEXCSymbol(symbol)
	body, err := m.doRequest(ctx, http.MethodGet, "/api/v1/private/order/list/history_orders", map[string]string{"symbol": mexcSymbol, "page_size": strconv.Itoa(limit)}, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data []struct {
			OrderId      string          `json:"orderId"`
			DealVol      decimal.Decimal `json:"dealVol"`
			DealAvgPrice decimal.Decimal `json:"dealAvgPrice"`
			State        int             `json:"state"`
			CreateTime   int64           `json:"createTime"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	orders := make([]*Order, 0, len(resp.Data))
	for _, o := range resp.Data {
		status := OrderStatusNew
		switch o.State {
		case 3:
			status = OrderStatusFilled
		case 4:
			status = OrderStatusCancelled
		}
		orders = append(orders, &Order{
			ID:           o.OrderId,
			Symbol:       symbol,
			FilledQty:    o.DealVol,
			AvgFillPrice: o.DealAvgPrice,
			Status:       status,
			CreatedAt:    time.UnixMilli(o.CreateTime),
		})
	}
	return orders, nil
}

func (m *MEXC) GetOpenPositions(ctx context.Context) ([]*Position, error) {
	body, err := m.doRequest(ctx, http.MethodGet, "/api/v1/private/position/open_positions", nil, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data []struct {
			Symbol          string          `json:"symbol"`
			PositionType    int             `json:"positionType"` // 1=long, 2=short
			HoldVol         decimal.Decimal `json:"holdVol"`
			HoldAvgPrice    decimal.Decimal `json:"holdAvgPrice"`
			Leverage        int             `json:"leverage"`
			UnrealizedPnl   decimal.Decimal `json:"unrealisedProfit"`
			UpdateTime      int64           `json:"updateTime"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	positions := make([]*Position, 0, len(resp.Data))
	for _, p := range resp.Data {
		if p.HoldVol.IsZero() {
			continue
		}

		side := SideLong
		if p.PositionType == 2 {
			side = SideShort
		}

		positions = append(positions, &Position{
			Symbol:        m.fromMEXCSymbol(p.Symbol),
			Side:          side,
			Size:          p.HoldVol,
			EntryPrice:    p.HoldAvgPrice,
			Leverage:      p.Leverage,
			UnrealizedPnl: p.UnrealizedPnl,
			UpdatedAt:     time.UnixMilli(p.UpdateTime),
		})
	}

	return positions, nil
}

func (m *MEXC) ClosePosition(ctx context.Context, symbol, side string, qty decimal.Decimal) error {
	mexcSymbol := m.toMEXCSymbol(symbol)

	// close long = side 4, close short = side 2
	mexcSide := "4"
	if side == SideShort {
		mexcSide = "2"
	}

	params := map[string]string{
		"symbol":   mexcSymbol,
		"side":     mexcSide,
		"type":     "5",
		"openType": "2",
		"vol":      qty.String(),
	}

	_, err := m.doRequest(ctx, http.MethodPost, "/api/v1/private/order/submit", params, true)
	return err
}

func (m *MEXC) SubscribeTicker(symbol string, callback func(*Ticker)) error {
	m.callbackMu.Lock()
	m.tickerCallbacks[symbol] = callback
	m.callbackMu.Unlock()

	m.wsMu.Lock()
	if m.wsManager == nil {
		cfg := DefaultWSManagerConfig()
		appPing, _ := json.Marshal(map[string]string{"method": "ping"})
		cfg.AppPingPayload = appPing
		m.wsManager = NewWSConnectionManager("mexc-market", mexcWSURL, cfg)
		m.wsManager.SetOnMessage(m.handleMessage)
		if err := m.wsManager.Connect(); err != nil {
			m.wsMu.Unlock()
			return fmt.Errorf("failed to connect to websocket: %w", err)
		}
	}
	wsManager := m.wsManager
	m.wsMu.Unlock()

	mexcSymbol := m.toMEXCSymbol(symbol)
	subMsg := map[string]interface{}{
		"method": "sub.ticker",
		"param":  map[string]string{"symbol": mexcSymbol},
	}

	wsManager.AddSubscription(subMsg)
	return wsManager.Send(subMsg)
}

func (m *MEXC) handleMessage(message []byte) {
	var msg struct {
		Channel string `json:"channel"`
		Data    struct {
			Symbol    string          `json:"symbol"`
			LastPrice decimal.Decimal `json:"lastPrice"`
			Bid1      decimal.Decimal `json:"bid1"`
			Ask1      decimal.Decimal `json:"ask1"`
		} `json:"data"`
	}
	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}

	if msg.Channel != "push.ticker" {
		return
	}

	symbol := m.fromMEXCSymbol(msg.Data.Symbol)

	m.callbackMu.RLock()
	callback, ok := m.tickerCallbacks[symbol]
	m.callbackMu.RUnlock()

	if ok && callback != nil {
		callback(&Ticker{
			Symbol:    symbol,
			BidPrice:  msg.Data.Bid1,
			AskPrice:  msg.Data.Ask1,
			LastPrice: msg.Data.LastPrice,
			Timestamp: time.Now(),
		})
	}
}

// SubscribePositions подписывается на приватный канал позиций MEXC через аутентификацию
// на основе подписи по WebSocket (login-сообщение с apiKey/signature).
func (m *MEXC) SubscribePositions(callback func(*Position)) error {
	m.callbackMu.Lock()
	m.positionCallback = callback
	m.callbackMu.Unlock()

	m.wsMu.Lock()
	if m.wsManager == nil {
		cfg := DefaultWSManagerConfig()
		appPing, _ := json.Marshal(map[string]string{"method": "ping"})
		cfg.AppPingPayload = appPing
		m.wsManager = NewWSConnectionManager("mexc-market", mexcWSURL, cfg)
		m.wsManager.SetOnMessage(m.handleMessage)
		m.wsManager.SetAuthFunc(m.authenticateWebSocket)
		if err := m.wsManager.Connect(); err != nil {
			m.wsMu.Unlock()
			return fmt.Errorf("failed to connect to websocket: %w", err)
		}
	}
	wsManager := m.wsManager
	m.wsMu.Unlock()

	subMsg := map[string]interface{}{"method": "sub.personal"}
	wsManager.AddSubscription(subMsg)
	return wsManager.Send(subMsg)
}

func (m *MEXC) authenticateWebSocket(send func(interface{}) error, readReply func() ([]byte, error)) error {
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	signature := m.sign(timestamp, "")

	loginMsg := map[string]interface{}{
		"method": "login",
		"param": map[string]string{
			"apiKey":    m.apiKey,
			"reqTime":   timestamp,
			"signature": signature,
		},
	}

	if err := send(loginMsg); err != nil {
		return err
	}

	reply, err := readReply()
	if err != nil {
		return err
	}

	var resp struct {
		Channel string `json:"channel"`
		Data    string `json:"data"`
	}
	if err := json.Unmarshal(reply, &resp); err != nil {
		return err
	}
	if resp.Data != "success" && resp.Channel != "rs.login" {
		return fmt.Errorf("mexc websocket login failed: %s", string(reply))
	}

	return nil
}

func (m *MEXC) GetTradingFee(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return decimal.NewFromFloat(0.0006), nil
}

func (m *MEXC) GetLimits(ctx context.Context, symbol string) (*Limits, error) {
	mexcSymbol := m.toMEXCSymbol(symbol)
	body, err := m.doRequest(ctx, http.MethodGet, "/api/v1/contract/detail", map[string]string{"symbol": mexcSymbol}, false)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data struct {
			MinVol      decimal.Decimal `json:"minVol"`
			MaxVol      decimal.Decimal `json:"maxVol"`
			VolUnit     decimal.Decimal `json:"volUnit"`
			PriceUnit   decimal.Decimal `json:"priceUnit"`
			MaxLeverage int             `json:"maxLeverage"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	return &Limits{
		Symbol:      symbol,
		MinOrderQty: resp.Data.MinVol,
		MaxOrderQty: resp.Data.MaxVol,
		QtyStep:     resp.Data.VolUnit,
		MinNotional: decimal.NewFromInt(5),
		PriceStep:   resp.Data.PriceUnit,
		MaxLeverage: resp.Data.MaxLeverage,
	}, nil
}

func (m *MEXC) Close() error {
	select {
	case <-m.closeChan:
	default:
		close(m.closeChan)
	}

	m.wsMu.Lock()
	if m.wsManager != nil {
		m.wsManager.Close()
		m.wsManager = nil
	}
	m.wsMu.Unlock()

	m.connected = false
	return nil
}

func (m *MEXC) SymbolToCanonical(venueSymbol string) models.Symbol {
	return models.Symbol(strings.Replace(venueSymbol, "_", "+", 1))
}

func (m *MEXC) SymbolFromCanonical(symbol models.Symbol) string {
	return strings.Replace(string(symbol), "+", "_", 1)
}

// toMEXCSymbol конвертирует BTCUSDT -> BTC_USDT
func (m *MEXC) toMEXCSymbol(symbol string) string {
	base := strings.TrimSuffix(symbol, "USDT")
	return base + "_USDT"
}

// fromMEXCSymbol конвертирует BTC_USDT -> BTCUSDT
func (m *MEXC) fromMEXCSymbol(contract string) string {
	return strings.ReplaceAll(contract, "_", "")
}
