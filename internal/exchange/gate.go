package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
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
	gateBaseURL = "https://api.gateio.ws/api/v4"
	gateWSURL   = "wss://fx-ws.gateio.ws/v4/ws/usdt"
)

type Gate struct {
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

func NewGate() *Gate {
	return &Gate{
		httpClient:      GetGlobalHTTPClient().GetClient(),
		tickerCallbacks: make(map[string]func(*Ticker)),
		closeChan:       make(chan struct{}),
	}
}

func (g *Gate) sign(method, url, queryString, body string, timestamp int64) string {
	bodyHash := sha512.Sum512([]byte(body))
	bodyHashHex := hex.EncodeToString(bodyHash[:])

	signStr := fmt.Sprintf("%s\n%s\n%s\n%s\n%d", method, url, queryString, bodyHashHex, timestamp)

	h := hmac.New(sha512.New, []byte(g.secretKey))
	h.Write([]byte(signStr))
	return hex.EncodeToString(h.Sum(nil))
}

func (g *Gate) doRequest(ctx context.Context, method, endpoint string, params map[string]string, signed bool) ([]byte, error) {
	var reqBody string
	var queryString string
	reqURL := gateBaseURL + endpoint

	if method == http.MethodGet {
		if len(params) > 0 {
			query := make([]string, 0, len(params))
			for k, v := range params {
				query = append(query, k+"="+v)
			}
			queryString = strings.Join(query, "&")
			reqURL += "?" + queryString
		}
	} else {
		if len(params) > 0 {
			jsonBytes, _ := json.Marshal(params)
			reqBody = string(jsonBytes)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, strings.NewReader(reqBody))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if signed {
		timestamp := time.Now().Unix()
		signature := g.sign(method, endpoint, queryString, reqBody, timestamp)

		req.Header.Set("KEY", g.apiKey)
		req.Header.Set("SIGN", signature)
		req.Header.Set("Timestamp", strconv.FormatInt(timestamp, 10))
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, &ExchangeError{Exchange: models.ExchangeGateIO, Kind: ErrorKindTransient, Message: err.Error(), Original: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Label   string `json:"label"`
			Message string `json:"message"`
		}
		kind := ErrorKindPermanent
		if resp.StatusCode == http.StatusTooManyRequests {
			kind = ErrorKindRateLimit
		} else if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			kind = ErrorKindAuth
		}
		if err := json.Unmarshal(body, &errResp); err == nil {
			return nil, &ExchangeError{Exchange: models.ExchangeGateIO, Kind: kind, Code: errResp.Label, Message: errResp.Message}
		}
		return nil, &ExchangeError{Exchange: models.ExchangeGateIO, Kind: kind, Message: string(body)}
	}

	return body, nil
}

func (g *Gate) Connect(ctx context.Context, apiKey, secret, passphrase string) error {
	g.apiKey = apiKey
	g.secretKey = secret

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := g.GetBalance(connectCtx)
	if err != nil {
		return fmt.Errorf("failed to connect to Gate.io: %w", err)
	}

	g.connected = true
	return nil
}

func (g *Gate) GetName() models.Exchange { return models.ExchangeGateIO }

func (g *Gate) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	body, err := g.doRequest(ctx, http.MethodGet, "/futures/usdt/accounts", nil, true)
	if err != nil {
		return decimal.Zero, err
	}

	var resp struct {
		Total string `json:"total"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, err
	}

	return parseDecimal(resp.Total, "accountTotal"), nil
}

func (g *Gate) GetTicker(ctx context.Context, symbol string) (*Ticker, error) {
	contract := g.toGateSymbol(symbol)
	params := map[string]string{"contract": contract}

	body, err := g.doRequest(ctx, http.MethodGet, "/futures/usdt/tickers", params, false)
	if err != nil {
		return nil, err
	}

	var resp []struct {
		Contract   string `json:"contract"`
		Last       string `json:"last"`
		LowestAsk  string `json:"lowest_ask"`
		HighestBid string `json:"highest_bid"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if len(resp) == 0 {
		return nil, fmt.Errorf("ticker not found for %s", symbol)
	}

	t := resp[0]
	return &Ticker{
		Symbol:    symbol,
		BidPrice:  parseDecimal(t.HighestBid, "highestBid"),
		AskPrice:  parseDecimal(t.LowestAsk, "lowestAsk"),
		LastPrice: parseDecimal(t.Last, "last"),
		Timestamp: time.Now(),
	}, nil
}

// GetFundingRate - Gate.io USDT-фьючерсы расчитывают фандинг каждые 8 часов
func (g *Gate) GetFundingRate(ctx context.Context, symbol string) (*models.FundingRateRecord, error) {
	contract := g.toGateSymbol(symbol)
	params := map[string]string{"contract": contract}

	body, err := g.doRequest(ctx, http.MethodGet, "/futures/usdt/contracts/"+contract, params, false)
	if err != nil {
		return nil, err
	}

	var resp struct {
		FundingRate     string `json:"funding_rate"`
		FundingNextApply int64  `json:"funding_next_apply"`
		MarkPrice       string `json:"mark_price"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	return &models.FundingRateRecord{
		Exchange:       models.ExchangeGateIO,
		Symbol:         g.SymbolToCanonical(symbol),
		Rate:           parseDecimal(resp.FundingRate, "funding_rate"),
		Interval:       models.FundingInterval8h,
		NextSettlement: time.Unix(resp.FundingNextApply, 0),
		MarkPrice:      parseDecimal(resp.MarkPrice, "mark_price"),
		UpdatedAt:      time.Now(),
	}, nil
}

func (g *Gate) GetOrderBook(ctx context.Context, symbol string, depth int) (*OrderBook, error) {
	if depth > 100 {
		depth = 100
	}

	contract := g.toGateSymbol(symbol)
	params := map[string]string{"contract": contract, "limit": strconv.Itoa(depth)}

	body, err := g.doRequest(ctx, http.MethodGet, "/futures/usdt/order_book", params, false)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Asks []struct {
			P string `json:"p"`
			S int64  `json:"s"`
		} `json:"asks"`
		Bids []struct {
			P string `json:"p"`
			S int64  `json:"s"`
		} `json:"bids"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	orderBook := &OrderBook{
		Symbol:    symbol,
		Bids:      make([]PriceLevel, len(resp.Bids)),
		Asks:      make([]PriceLevel, len(resp.Asks)),
		Timestamp: time.Now(),
	}

	for i, bid := range resp.Bids {
		orderBook.Bids[i] = PriceLevel{Price: parseDecimal(bid.P, "bid.price"), Volume: decimal.NewFromInt(bid.S)}
	}
	for i, ask := range resp.Asks {
		orderBook.Asks[i] = PriceLevel{Price: parseDecimal(ask.P, "ask.price"), Volume: decimal.NewFromInt(ask.S)}
	}

	sort.Slice(orderBook.Bids, func(i, j int) bool { return orderBook.Bids[i].Price.GreaterThan(orderBook.Bids[j].Price) })
	sort.Slice(orderBook.Asks, func(i, j int) bool { return orderBook.Asks[i].Price.LessThan(orderBook.Asks[j].Price) })

	return orderBook, nil
}

func (g *Gate) PlaceMarketOrder(ctx context.Context, symbol, side string, qty decimal.Decimal) (*Order, error) {
	contract := g.toGateSymbol(symbol)

	size := qty.IntPart()
	if side == SideSell || side == SideShort {
		size = -size
	}

	params := map[string]string{
		"contract": contract,
		"size":     strconv.FormatInt(size, 10),
		"price":    "0",
		"tif":      "ioc",
	}

	body, err := g.doRequest(ctx, http.MethodPost, "/futures/usdt/orders", params, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Id        int64  `json:"id"`
		Contract  string `json:"contract"`
		Size      int64  `json:"size"`
		FillPrice string `json:"fill_price"`
		Left      int64  `json:"left"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	filledSize := qty.Sub(decimal.NewFromInt(resp.Left)).Abs()

	return &Order{
		ID:           strconv.FormatInt(resp.Id, 10),
		Symbol:       symbol,
		Side:         side,
		Type:         OrderTypeMarket,
		Quantity:     qty,
		FilledQty:    filledSize,
		AvgFillPrice: parseDecimal(resp.FillPrice, "fillPrice"),
		Status:       OrderStatusFilled,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}, nil
}

// PlaceConditionalOrder размещает price-triggered ордер через Gate.io Price-Triggered Orders API
func (g *Gate) PlaceConditionalOrder(ctx context.Context, req ConditionalOrderRequest) (*Order, error) {
	contract := g.toGateSymbol(req.Symbol)

	size := req.Quantity.IntPart()
	if req.Side == SideSell {
		size = -size
	}

	// Закрывающий sell (лонг-нога): стоп срабатывает при падении цены (<=),
	// тейк-профит - при росте (>=); закрывающий buy (шорт-нога) - наоборот.
	rule := 1 // >= trigger
	if (req.Type == OrderTypeStopMarket) == (req.Side == SideSell) {
		rule = 2 // <= trigger
	}

	params := map[string]interface{}{
		"initial": map[string]interface{}{
			"contract": contract,
			"size":     size,
			"price":    "0",
			"tif":      "ioc",
		},
		"trigger": map[string]interface{}{
			"strategy_type": 0,
			"price_type":    0,
			"price":         req.TriggerPrice.String(),
			"rule":          rule,
		},
	}

	jsonBytes, _ := json.Marshal(params)
	body, err := g.doRequestRaw(ctx, http.MethodPost, "/futures/usdt/price_orders", jsonBytes, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Id int64 `json:"id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	return &Order{
		ID:           strconv.FormatInt(resp.Id, 10),
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

// doRequestRaw аналогичен doRequest, но принимает уже сериализованное тело запроса
// (price_orders API Gate.io принимает вложенную структуру, несовместимую с map[string]string)
func (g *Gate) doRequestRaw(ctx context.Context, method, endpoint string, body []byte, signed bool) ([]byte, error) {
	reqURL := gateBaseURL + endpoint

	req, err := http.NewRequestWithContext(ctx, method, reqURL, strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if signed {
		timestamp := time.Now().Unix()
		signature := g.sign(method, endpoint, "", string(body), timestamp)
		req.Header.Set("KEY", g.apiKey)
		req.Header.Set("SIGN", signature)
		req.Header.Set("Timestamp", strconv.FormatInt(timestamp, 10))
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, &ExchangeError{Exchange: models.ExchangeGateIO, Kind: ErrorKindTransient, Message: err.Error(), Original: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, &ExchangeError{Exchange: models.ExchangeGateIO, Kind: ErrorKindPermanent, Message: string(respBody)}
	}

	return respBody, nil
}

func (g *Gate) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	contract := g.toGateSymbol(symbol)
	_, err := g.doRequest(ctx, http.MethodPost, "/futures/usdt/positions/"+contract+"/leverage", map[string]string{
		"leverage": strconv.Itoa(leverage),
	}, true)
	return err
}

func (g *Gate) CancelOrder(ctx context.Context, symbol, orderID string) error {
	_, err := g.doRequest(ctx, http.MethodDelete, "/futures/usdt/price_orders/"+orderID, nil, true)
	return err
}

func (g *Gate) CheckOrderExists(ctx context.Context, symbol, orderID string) (bool, error) {
	contract := g.toGateSymbol(symbol)
	params := map[string]string{"contract": contract, "status": "open"}

	body, err := g.doRequest(ctx, http.MethodGet, "/futures/usdt/price_orders", params, true)
	if err != nil {
		return false, err
	}

	var resp []struct {
		Id int64 `json:"id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, err
	}

	for _, o := range resp {
		if strconv.FormatInt(o.Id, 10) == orderID {
			return true, nil
		}
	}
	return false, nil
}

func (g *Gate) FetchOrderHistory(ctx context.Context, symbol string, limit int) ([]*Order, error) {
	contract := g.toGateSymbol(symbol)
	params := map[string]string{"contract": contract, "limit": strconv.Itoa(limit), "status": "finished"}

	body, err := g.doRequest(ctx, http.MethodGet, "/futures/usdt/price_orders", params, true)
	if err != nil {
		return nil, err
	}

	var resp []struct {
		Id        int64  `json:"id"`
		Status    string `json:"status"`
		FinishAs  string `json:"finish_as"`
		CreateTime float64 `json:"create_time"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	orders := make([]*Order, 0, len(resp))
	for _, o := range resp {
		status := strings.ToLower(o.Status)
		if o.FinishAs == "succeeded" {
			status = OrderStatusFilled
		} else if o.FinishAs == "cancelled" {
			status = OrderStatusCancelled
		}
		orders = append(orders, &Order{
			ID:        strconv.FormatInt(o.Id, 10),
			Symbol:    symbol,
			Status:    status,
			CreatedAt: time.Unix(int64(o.CreateTime), 0),
		})
	}
	return orders, nil
}

func (g *Gate) GetOpenPositions(ctx context.Context) ([]*Position, error) {
	body, err := g.doRequest(ctx, http.MethodGet, "/futures/usdt/positions", nil, true)
	if err != nil {
		return nil, err
	}

	var resp []struct {
		Contract      string `json:"contract"`
		Size          int64  `json:"size"`
		EntryPrice    string `json:"entry_price"`
		MarkPrice     string `json:"mark_price"`
		Leverage      string `json:"leverage"`
		UnrealisedPnl string `json:"unrealised_pnl"`
		UpdateTime    int64  `json:"update_time"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	positions := make([]*Position, 0)
	for _, p := range resp {
		if p.Size == 0 {
			continue
		}

		side := SideLong
		size := decimal.NewFromInt(p.Size)
		if p.Size < 0 {
			side = SideShort
			size = size.Abs()
		}

		leverage, _ := strconv.Atoi(p.Leverage)

		positions = append(positions, &Position{
			Symbol:        g.fromGateSymbol(p.Contract),
			Side:          side,
			Size:          size,
			EntryPrice:    parseDecimal(p.EntryPrice, "position.entryPrice"),
			MarkPrice:     parseDecimal(p.MarkPrice, "position.markPrice"),
			Leverage:      leverage,
			UnrealizedPnl: parseDecimal(p.UnrealisedPnl, "position.unrealisedPnl"),
			UpdatedAt:     time.Unix(p.UpdateTime, 0),
		})
	}

	return positions, nil
}

func (g *Gate) ClosePosition(ctx context.Context, symbol, side string, qty decimal.Decimal) error {
	contract := g.toGateSymbol(symbol)

	size := qty.IntPart()
	if side == SideLong || side == SideBuy {
		size = -size
	}

	params := map[string]string{
		"contract": contract,
		"size":     strconv.FormatInt(size, 10),
		"price":    "0",
		"tif":      "ioc",
	}

	_, err := g.doRequest(ctx, http.MethodPost, "/futures/usdt/orders", params, true)
	return err
}

func (g *Gate) SubscribeTicker(symbol string, callback func(*Ticker)) error {
	g.callbackMu.Lock()
	g.tickerCallbacks[symbol] = callback
	g.callbackMu.Unlock()

	g.wsMu.Lock()
	if g.wsManager == nil {
		config := DefaultWSManagerConfig()
		g.wsManager = NewWSConnectionManager("gate", gateWSURL, config)

		g.wsManager.SetOnMessage(g.handleMessage)
		g.wsManager.SetOnConnect(func() {
			log.Printf("[gate] WebSocket connected")
		})
		g.wsManager.SetOnDisconnect(func(err error) {
			if err != nil {
				log.Printf("[gate] WebSocket disconnected: %v", err)
			}
		})

		if err := g.wsManager.Connect(); err != nil {
			g.wsMu.Unlock()
			return fmt.Errorf("failed to connect to WebSocket: %w", err)
		}
	}
	wsManager := g.wsManager
	g.wsMu.Unlock()

	contract := g.toGateSymbol(symbol)
	subMsg := map[string]interface{}{
		"time":    time.Now().Unix(),
		"channel": "futures.tickers",
		"event":   "subscribe",
		"payload": []string{contract},
	}

	wsManager.AddSubscription(subMsg)
	return wsManager.Send(subMsg)
}

func (g *Gate) handleMessage(message []byte) {
	var baseMsg struct {
		Channel string          `json:"channel"`
		Event   string          `json:"event"`
		Result  json.RawMessage `json:"result"`
	}

	if err := json.Unmarshal(message, &baseMsg); err != nil {
		return
	}

	switch baseMsg.Channel {
	case "futures.tickers":
		if baseMsg.Event == "update" {
			g.handleTickerUpdate(baseMsg.Result)
		}
	case "futures.positions":
		if baseMsg.Event == "update" {
			g.handlePositionUpdate(baseMsg.Result)
		}
	}
}

func (g *Gate) handleTickerUpdate(data json.RawMessage) {
	var tickers []struct {
		Contract   string `json:"contract"`
		Last       string `json:"last"`
		LowestAsk  string `json:"lowest_ask"`
		HighestBid string `json:"highest_bid"`
	}

	if err := json.Unmarshal(data, &tickers); err != nil {
		return
	}

	for _, t := range tickers {
		symbol := g.fromGateSymbol(t.Contract)

		g.callbackMu.RLock()
		callback, ok := g.tickerCallbacks[symbol]
		g.callbackMu.RUnlock()

		if ok && callback != nil {
			callback(&Ticker{
				Symbol:    symbol,
				BidPrice:  parseDecimal(t.HighestBid, "ws.ticker.highestBid"),
				AskPrice:  parseDecimal(t.LowestAsk, "ws.ticker.lowestAsk"),
				LastPrice: parseDecimal(t.Last, "ws.ticker.last"),
				Timestamp: time.Now(),
			})
		}
	}
}

func (g *Gate) handlePositionUpdate(data json.RawMessage) {
	var positions []struct {
		Contract      string `json:"contract"`
		Size          int64  `json:"size"`
		EntryPrice    string `json:"entry_price"`
		MarkPrice     string `json:"mark_price"`
		Leverage      string `json:"leverage"`
		UnrealisedPnl string `json:"unrealised_pnl"`
		UpdateTime    int64  `json:"update_time"`
	}

	if err := json.Unmarshal(data, &positions); err != nil {
		log.Printf("[gate] failed to parse position update: %v", err)
		return
	}

	g.callbackMu.RLock()
	callback := g.positionCallback
	g.callbackMu.RUnlock()

	if callback == nil {
		return
	}

	for _, p := range positions {
		side := SideLong
		size := decimal.NewFromInt(p.Size)
		if p.Size < 0 {
			side = SideShort
			size = size.Abs()
		}

		leverage, _ := strconv.Atoi(p.Leverage)

		callback(&Position{
			Symbol:        g.fromGateSymbol(p.Contract),
			Side:          side,
			Size:          size,
			EntryPrice:    parseDecimal(p.EntryPrice, "ws.position.entryPrice"),
			MarkPrice:     parseDecimal(p.MarkPrice, "ws.position.markPrice"),
			Leverage:      leverage,
			UnrealizedPnl: parseDecimal(p.UnrealisedPnl, "ws.position.unrealisedPnl"),
			UpdatedAt:     time.Unix(p.UpdateTime, 0),
		})
	}
}

func (g *Gate) SubscribePositions(callback func(*Position)) error {
	g.callbackMu.Lock()
	g.positionCallback = callback
	g.callbackMu.Unlock()

	g.wsMu.Lock()
	if g.wsManager == nil {
		config := DefaultWSManagerConfig()
		g.wsManager = NewWSConnectionManager("gate", gateWSURL, config)

		g.wsManager.SetOnMessage(g.handleMessage)
		g.wsManager.SetOnConnect(func() {
			log.Printf("[gate] WebSocket connected")
		})
		g.wsManager.SetOnDisconnect(func(err error) {
			if err != nil {
				log.Printf("[gate] WebSocket disconnected: %v", err)
			}
		})

		if err := g.wsManager.Connect(); err != nil {
			g.wsMu.Unlock()
			return fmt.Errorf("failed to connect to WebSocket: %w", err)
		}
	}
	wsManager := g.wsManager
	g.wsMu.Unlock()

	subMsg := map[string]interface{}{
		"time":    time.Now().Unix(),
		"channel": "futures.positions",
		"event":   "subscribe",
		"payload": []string{"!all"},
		"auth": map[string]string{
			"method": "api_key",
			"KEY":    g.apiKey,
			"SIGN":   g.signWS("subscribe", "futures.positions"),
		},
	}

	wsManager.AddSubscription(subMsg)
	return wsManager.Send(subMsg)
}

func (g *Gate) signWS(event, channel string) string {
	timestamp := time.Now().Unix()
	message := fmt.Sprintf("channel=%s&event=%s&time=%d", channel, event, timestamp)
	h := hmac.New(sha512.New, []byte(g.secretKey))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}

func (g *Gate) GetTradingFee(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return decimal.NewFromFloat(0.0005), nil
}

func (g *Gate) GetLimits(ctx context.Context, symbol string) (*Limits, error) {
	contract := g.toGateSymbol(symbol)

	body, err := g.doRequest(ctx, http.MethodGet, "/futures/usdt/contracts/"+contract, nil, false)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Name             string `json:"name"`
		OrderSizeMin     int64  `json:"order_size_min"`
		OrderSizeMax     int64  `json:"order_size_max"`
		QuantoMultiplier string `json:"quanto_multiplier"`
		LeverageMax      int    `json:"leverage_max"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	return &Limits{
		Symbol:      symbol,
		MinOrderQty: decimal.NewFromInt(resp.OrderSizeMin),
		MaxOrderQty: decimal.NewFromInt(resp.OrderSizeMax),
		QtyStep:     decimal.NewFromInt(1),
		MinNotional: decimal.NewFromInt(5),
		PriceStep:   parseDecimal(resp.QuantoMultiplier, "limits.quantoMultiplier"),
		MaxLeverage: resp.LeverageMax,
	}, nil
}

func (g *Gate) Close() error {
	select {
	case <-g.closeChan:
	default:
		close(g.closeChan)
	}

	g.wsMu.Lock()
	if g.wsManager != nil {
		g.wsManager.Close()
		g.wsManager = nil
	}
	g.wsMu.Unlock()

	g.connected = false
	return nil
}

func (g *Gate) SymbolToCanonical(venueSymbol string) models.Symbol {
	return models.Symbol(strings.Replace(venueSymbol, "_", "+", 1))
}

func (g *Gate) SymbolFromCanonical(symbol models.Symbol) string {
	return strings.Replace(string(symbol), "+", "_", 1)
}

// toGateSymbol конвертирует символ в формат Gate.io (BTCUSDT -> BTC_USDT)
func (g *Gate) toGateSymbol(symbol string) string {
	base := strings.TrimSuffix(symbol, "USDT")
	return base + "_USDT"
}

// fromGateSymbol конвертирует формат Gate.io обратно (BTC_USDT -> BTCUSDT)
func (g *Gate) fromGateSymbol(contract string) string {
	return strings.ReplaceAll(contract, "_", "")
}
