package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fundingarb/internal/models"
)

const (
	binanceBaseURL          = "https://fapi.binance.com"
	binanceWSMarketURL      = "wss://fstream.binance.com/ws"
	binanceWSUserURLFormat  = "wss://fstream.binance.com/ws/%s"
	binanceListenKeyRefresh = 25 * time.Minute
)

// Binance реализует Exchange для Binance USDT-M Futures.
type Binance struct {
	apiKey    string
	secretKey string

	httpClient *http.Client

	wsManager     *WSConnectionManager
	wsUserManager *WSConnectionManager
	wsMu          sync.Mutex

	listenKey            string
	listenKeyMu          sync.Mutex
	stopListenKeyRefresh chan struct{}

	tickerCallbacks  map[string]func(*Ticker)
	positionCallback func(*Position)
	callbackMu       sync.RWMutex

	connected bool
	closeChan chan struct{}
}

func NewBinance() *Binance {
	return &Binance{
		httpClient:      GetGlobalHTTPClient().GetClient(),
		tickerCallbacks: make(map[string]func(*Ticker)),
		closeChan:       make(chan struct{}),
	}
}

func (bn *Binance) sign(queryString string) string {
	h := hmac.New(sha256.New, []byte(bn.secretKey))
	h.Write([]byte(queryString))
	return hex.EncodeToString(h.Sum(nil))
}

func (bn *Binance) doRequest(ctx context.Context, method, endpoint string, params map[string]string, signed bool) ([]byte, error) {
	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}

	if signed {
		query.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		query.Set("recvWindow", "5000")
		query.Set("signature", bn.sign(query.Encode()))
	}

	reqURL := binanceBaseURL + endpoint
	var reqBody strings.Reader
	if method == http.MethodGet || method == http.MethodDelete {
		if len(query) > 0 {
			reqURL += "?" + query.Encode()
		}
		reqBody = *strings.NewReader("")
	} else {
		reqBody = *strings.NewReader(query.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, &reqBody)
	if err != nil {
		return nil, err
	}

	req.Header.Set("X-MBX-APIKEY", bn.apiKey)
	if method == http.MethodPost || method == http.MethodPut {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := bn.httpClient.Do(req)
	if err != nil {
		return nil, &ExchangeError{Exchange: models.ExchangeBinance, Kind: ErrorKindTransient, Message: err.Error(), Original: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		kind := ErrorKindPermanent
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 418 {
			kind = ErrorKindRateLimit
		} else if resp.StatusCode == http.StatusUnauthorized {
			kind = ErrorKindAuth
		}
		if err := json.Unmarshal(body, &errResp); err == nil {
			return nil, &ExchangeError{Exchange: models.ExchangeBinance, Kind: kind, Code: strconv.Itoa(errResp.Code), Message: errResp.Msg}
		}
		return nil, &ExchangeError{Exchange: models.ExchangeBinance, Kind: kind, Message: string(body)}
	}

	return body, nil
}

func (bn *Binance) Connect(ctx context.Context, apiKey, secret, passphrase string) error {
	bn.apiKey = apiKey
	bn.secretKey = secret

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := bn.GetBalance(connectCtx)
	if err != nil {
		return fmt.Errorf("failed to connect to Binance: %w", err)
	}

	if err := bn.createListenKey(connectCtx); err != nil {
		log.Printf("[binance] listen key creation failed, private stream disabled: %v", err)
	} else {
		bn.startListenKeyRefresh()
	}

	bn.connected = true
	return nil
}

func (bn *Binance) GetName() models.Exchange { return models.ExchangeBinance }

func (bn *Binance) createListenKey(ctx context.Context) error {
	body, err := bn.doRequest(ctx, http.MethodPost, "/fapi/v1/listenKey", nil, false)
	if err != nil {
		return err
	}

	var resp struct {
		ListenKey string `json:"listenKey"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return err
	}

	bn.listenKeyMu.Lock()
	bn.listenKey = resp.ListenKey
	bn.listenKeyMu.Unlock()
	return nil
}

func (bn *Binance) refreshListenKey(ctx context.Context) error {
	_, err := bn.doRequest(ctx, http.MethodPut, "/fapi/v1/listenKey", nil, false)
	return err
}

func (bn *Binance) deleteListenKey(ctx context.Context) {
	bn.listenKeyMu.Lock()
	bn.listenKey = ""
	bn.listenKeyMu.Unlock()
	_, _ = bn.doRequest(ctx, http.MethodDelete, "/fapi/v1/listenKey", nil, false)
}

func (bn *Binance) startListenKeyRefresh() {
	bn.stopListenKeyRefresh = make(chan struct{})
	go func() {
		ticker := time.NewTicker(binanceListenKeyRefresh)
		defer ticker.Stop()
		for {
			select {
			case <-bn.stopListenKeyRefresh:
				return
			case <-bn.closeChan:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				if err := bn.refreshListenKey(ctx); err != nil {
					log.Printf("[binance] listen key refresh failed: %v", err)
				}
				cancel()
			}
		}
	}()
}

func (bn *Binance) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	body, err := bn.doRequest(ctx, http.MethodGet, "/fapi/v2/balance", nil, true)
	if err != nil {
		return decimal.Zero, err
	}

	var resp []struct {
		Asset              string `json:"asset"`
		AvailableBalance   string `json:"availableBalance"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, err
	}

	for _, b := range resp {
		if b.Asset == "USDT" {
			return parseDecimal(b.AvailableBalance, "availableBalance"), nil
		}
	}
	return decimal.Zero, nil
}

func (bn *Binance) GetTicker(ctx context.Context, symbol string) (*Ticker, error) {
	bnSymbol := bn.toBinanceSymbol(symbol)

	bookBody, err := bn.doRequest(ctx, http.MethodGet, "/fapi/v1/ticker/bookTicker", map[string]string{"symbol": bnSymbol}, false)
	if err != nil {
		return nil, err
	}

	var book struct {
		BidPrice string `json:"bidPrice"`
		AskPrice string `json:"askPrice"`
	}
	if err := json.Unmarshal(bookBody, &book); err != nil {
		return nil, err
	}

	priceBody, err := bn.doRequest(ctx, http.MethodGet, "/fapi/v1/ticker/price", map[string]string{"symbol": bnSymbol}, false)
	if err != nil {
		return nil, err
	}

	var priceResp struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(priceBody, &priceResp); err != nil {
		return nil, err
	}

	return &Ticker{
		Symbol:    symbol,
		BidPrice:  parseDecimal(book.BidPrice, "bidPrice"),
		AskPrice:  parseDecimal(book.AskPrice, "askPrice"),
		LastPrice: parseDecimal(priceResp.Price, "price"),
		Timestamp: time.Now(),
	}, nil
}

// GetFundingRate - интервал фандинга на Binance варьируется по символу (1ч/4ч/8ч),
// поэтому вычисляем его из premiumIndex.nextFundingTime относительно текущего времени.
func (bn *Binance) GetFundingRate(ctx context.Context, symbol string) (*models.FundingRateRecord, error) {
	bnSymbol := bn.toBinanceSymbol(symbol)

	body, err := bn.doRequest(ctx, http.MethodGet, "/fapi/v1/premiumIndex", map[string]string{"symbol": bnSymbol}, false)
	if err != nil {
		return nil, err
	}

	var resp struct {
		MarkPrice       string `json:"markPrice"`
		LastFundingRate string `json:"lastFundingRate"`
		NextFundingTime int64  `json:"nextFundingTime"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	interval := models.FundingInterval8h
	hoursUntil := time.Until(time.UnixMilli(resp.NextFundingTime)).Hours()
	switch {
	case hoursUntil <= 1.5:
		interval = models.FundingInterval1h
	case hoursUntil <= 4.5:
		interval = models.FundingInterval4h
	}

	return &models.FundingRateRecord{
		Exchange:       models.ExchangeBinance,
		Symbol:         bn.SymbolToCanonical(symbol),
		Rate:           parseDecimal(resp.LastFundingRate, "lastFundingRate"),
		Interval:       interval,
		NextSettlement: time.UnixMilli(resp.NextFundingTime),
		MarkPrice:      parseDecimal(resp.MarkPrice, "markPrice"),
		UpdatedAt:      time.Now(),
	}, nil
}

func (bn *Binance) GetOrderBook(ctx context.Context, symbol string, depth int) (*OrderBook, error) {
	if depth > 1000 {
		depth = 1000
	}

	bnSymbol := bn.toBinanceSymbol(symbol)
	body, err := bn.doRequest(ctx, http.MethodGet, "/fapi/v1/depth", map[string]string{"symbol": bnSymbol, "limit": strconv.Itoa(depth)}, false)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
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
		if len(bid) >= 2 {
			orderBook.Bids[i] = PriceLevel{Price: parseDecimal(bid[0], "bid_price"), Volume: parseDecimal(bid[1], "bid_volume")}
		}
	}
	for i, ask := range resp.Asks {
		if len(ask) >= 2 {
			orderBook.Asks[i] = PriceLevel{Price: parseDecimal(ask[0], "ask_price"), Volume: parseDecimal(ask[1], "ask_volume")}
		}
	}

	sort.Slice(orderBook.Bids, func(i, j int) bool { return orderBook.Bids[i].Price.GreaterThan(orderBook.Bids[j].Price) })
	sort.Slice(orderBook.Asks, func(i, j int) bool { return orderBook.Asks[i].Price.LessThan(orderBook.Asks[j].Price) })

	return orderBook, nil
}

func (bn *Binance) PlaceMarketOrder(ctx context.Context, symbol, side string, qty decimal.Decimal) (*Order, error) {
	bnSymbol := bn.toBinanceSymbol(symbol)

	bnSide := "BUY"
	if side == SideSell || side == SideShort {
		bnSide = "SELL"
	}

	params := map[string]string{
		"symbol":   bnSymbol,
		"side":     bnSide,
		"type":     "MARKET",
		"quantity": qty.String(),
	}

	body, err := bn.doRequest(ctx, http.MethodPost, "/fapi/v1/order", params, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		OrderId       int64  `json:"orderId"`
		ExecutedQty   string `json:"executedQty"`
		AvgPrice      string `json:"avgPrice"`
		Status        string `json:"status"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	return &Order{
		ID:           strconv.FormatInt(resp.OrderId, 10),
		Symbol:       symbol,
		Side:         side,
		Type:         OrderTypeMarket,
		Quantity:     qty,
		FilledQty:    parseDecimal(resp.ExecutedQty, "executedQty"),
		AvgFillPrice: parseDecimal(resp.AvgPrice, "avgPrice"),
		Status:       strings.ToLower(resp.Status),
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}, nil
}

func (bn *Binance) PlaceConditionalOrder(ctx context.Context, req ConditionalOrderRequest) (*Order, error) {
	bnSymbol := bn.toBinanceSymbol(req.Symbol)

	bnSide := "BUY"
	if req.Side == SideSell {
		bnSide = "SELL"
	}

	orderType := "STOP_MARKET"
	if req.Type == OrderTypeTakeProfitMarket {
		orderType = "TAKE_PROFIT_MARKET"
	}

	params := map[string]string{
		"symbol":     bnSymbol,
		"side":       bnSide,
		"type":       orderType,
		"quantity":   req.Quantity.String(),
		"stopPrice":  req.TriggerPrice.String(),
		"closePosition": "false",
		"workingType": "MARK_PRICE",
	}

	body, err := bn.doRequest(ctx, http.MethodPost, "/fapi/v1/order", params, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		OrderId int64 `json:"orderId"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	return &Order{
		ID:           strconv.FormatInt(resp.OrderId, 10),
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

func (bn *Binance) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	bnSymbol := bn.toBinanceSymbol(symbol)
	_, err := bn.doRequest(ctx, http.MethodPost, "/fapi/v1/leverage", map[string]string{
		"symbol":   bnSymbol,
		"leverage": strconv.Itoa(leverage),
	}, true)
	return err
}

func (bn *Binance) CancelOrder(ctx context.Context, symbol, orderID string) error {
	bnSymbol := bn.toBinanceSymbol(symbol)
	_, err := bn.doRequest(ctx, http.MethodDelete, "/fapi/v1/order", map[string]string{
		"symbol":  bnSymbol,
		"orderId": orderID,
	}, true)
	if exErr, ok := err.(*ExchangeError); ok && exErr.Code == "-2011" { // unknown order, уже исполнен/отменен
		return nil
	}
	return err
}

func (bn *Binance) CheckOrderExists(ctx context.Context, symbol, orderID string) (bool, error) {
	bnSymbol := bn.toBinanceSymbol(symbol)
	body, err := bn.doRequest(ctx, http.MethodGet, "/fapi/v1/order", map[string]string{"symbol": bnSymbol, "orderId": orderID}, true)
	if err != nil {
		if exErr, ok := err.(*ExchangeError); ok && exErr.Code == "-2013" { // order does not exist
			return false, nil
		}
		return false, err
	}

	var resp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, err
	}

	return resp.Status == "NEW" || resp.Status == "PARTIALLY_FILLED", nil
}

func (bn *Binance) FetchOrderHistory(ctx context.Context, symbol string, limit int) ([]*Order, error) {
	bnSymbol := bn.toBinanceSymbol(symbol)
	body, err := bn.doRequest(ctx, http.MethodGet, "/fapi/v1/allOrders", map[string]string{"symbol": bnSymbol, "limit": strconv.Itoa(limit)}, true)
	if err != nil {
		return nil, err
	}

	var resp []struct {
		OrderId     int64  `json:"orderId"`
		Type        string `json:"type"`
		Status      string `json:"status"`
		ExecutedQty string `json:"executedQty"`
		AvgPrice    string `json:"avgPrice"`
		Time        int64  `json:"time"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	orders := make([]*Order, 0, len(resp))
	for _, o := range resp {
		orders = append(orders, &Order{
			ID:           strconv.FormatInt(o.OrderId, 10),
			Symbol:       symbol,
			Type:         strings.ToLower(o.Type),
			FilledQty:    parseDecimal(o.ExecutedQty, "order.executedQty"),
			AvgFillPrice: parseDecimal(o.AvgPrice, "order.avgPrice"),
			Status:       strings.ToLower(o.Status),
			CreatedAt:    time.UnixMilli(o.Time),
		})
	}
	return orders, nil
}

func (bn *Binance) GetOpenPositions(ctx context.Context) ([]*Position, error) {
	body, err := bn.doRequest(ctx, http.MethodGet, "/fapi/v2/positionRisk", nil, true)
	if err != nil {
		return nil, err
	}

	var resp []struct {
		Symbol           string `json:"symbol"`
		PositionAmt      string `json:"positionAmt"`
		EntryPrice       string `json:"entryPrice"`
		MarkPrice        string `json:"markPrice"`
		Leverage         string `json:"leverage"`
		UnRealizedProfit string `json:"unRealizedProfit"`
		UpdateTime       int64  `json:"updateTime"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	positions := make([]*Position, 0)
	for _, p := range resp {
		amt := parseDecimal(p.PositionAmt, "positionAmt")
		if amt.IsZero() {
			continue
		}

		side := SideLong
		if amt.IsNegative() {
			side = SideShort
			amt = amt.Abs()
		}

		leverage, _ := strconv.Atoi(p.Leverage)

		positions = append(positions, &Position{
			Symbol:        bn.fromBinanceSymbol(p.Symbol),
			Side:          side,
			Size:          amt,
			EntryPrice:    parseDecimal(p.EntryPrice, "entryPrice"),
			MarkPrice:     parseDecimal(p.MarkPrice, "markPrice"),
			Leverage:      leverage,
			UnrealizedPnl: parseDecimal(p.UnRealizedProfit, "unRealizedProfit"),
			UpdatedAt:     time.UnixMilli(p.UpdateTime),
		})
	}

	return positions, nil
}

func (bn *Binance) ClosePosition(ctx context.Context, symbol, side string, qty decimal.Decimal) error {
	bnSymbol := bn.toBinanceSymbol(symbol)

	closeSide := "SELL"
	if side == SideShort {
		closeSide = "BUY"
	}

	params := map[string]string{
		"symbol":   bnSymbol,
		"side":     closeSide,
		"type":     "MARKET",
		"quantity": qty.String(),
	}

	_, err := bn.doRequest(ctx, http.MethodPost, "/fapi/v1/order", params, true)
	return err
}

func (bn *Binance) SubscribeTicker(symbol string, callback func(*Ticker)) error {
	bn.callbackMu.Lock()
	bn.tickerCallbacks[symbol] = callback
	bn.callbackMu.Unlock()

	bn.wsMu.Lock()
	if bn.wsManager == nil {
		cfg := DefaultWSManagerConfig()
		bn.wsManager = NewWSConnectionManager("binance-market", binanceWSMarketURL, cfg)
		bn.wsManager.SetOnMessage(bn.handleMessage)
		if err := bn.wsManager.Connect(); err != nil {
			bn.wsMu.Unlock()
			return fmt.Errorf("failed to connect to websocket: %w", err)
		}
	}
	wsManager := bn.wsManager
	bn.wsMu.Unlock()

	bnSymbol := strings.ToLower(bn.toBinanceSymbol(symbol))
	subMsg := map[string]interface{}{
		"method": "SUBSCRIBE",
		"params": []string{fmt.Sprintf("%s@bookTicker", bnSymbol)},
		"id":     time.Now().UnixMilli(),
	}

	wsManager.AddSubscription(subMsg)
	return wsManager.Send(subMsg)
}

func (bn *Binance) handleMessage(message []byte) {
	var msg struct {
		Stream string `json:"s"`
		B      string `json:"b"`
		A      string `json:"a"`
	}
	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}
	if msg.Stream == "" {
		return
	}

	symbol := bn.fromBinanceSymbol(msg.Stream)

	bn.callbackMu.RLock()
	callback, ok := bn.tickerCallbacks[symbol]
	bn.callbackMu.RUnlock()

	if ok && callback != nil {
		callback(&Ticker{
			Symbol:    symbol,
			BidPrice:  parseDecimal(msg.B, "ws.bidPrice"),
			AskPrice:  parseDecimal(msg.A, "ws.askPrice"),
			LastPrice: parseDecimal(msg.B, "ws.lastPrice"),
			Timestamp: time.Now(),
		})
	}
}

// SubscribePositions подключается к пользовательскому потоку через listenKey,
// созданный в Connect, и слушает события ACCOUNT_UPDATE для обнаружения ликвидаций.
func (bn *Binance) SubscribePositions(callback func(*Position)) error {
	bn.callbackMu.Lock()
	bn.positionCallback = callback
	bn.callbackMu.Unlock()

	bn.listenKeyMu.Lock()
	key := bn.listenKey
	bn.listenKeyMu.Unlock()
	if key == "" {
		return fmt.Errorf("listen key not available, call Connect first")
	}

	bn.wsMu.Lock()
	defer bn.wsMu.Unlock()
	if bn.wsUserManager == nil {
		cfg := DefaultWSManagerConfig()
		bn.wsUserManager = NewWSConnectionManager("binance-user", fmt.Sprintf(binanceWSUserURLFormat, key), cfg)
		bn.wsUserManager.SetOnMessage(bn.handleUserMessage)
		if err := bn.wsUserManager.Connect(); err != nil {
			return fmt.Errorf("failed to connect to user websocket: %w", err)
		}
	}
	return nil
}

func (bn *Binance) handleUserMessage(message []byte) {
	var msg struct {
		E string `json:"e"`
		A struct {
			P []struct {
				Symbol        string `json:"s"`
				Amount        string `json:"pa"`
				EntryPrice    string `json:"ep"`
				UnrealizedPnl string `json:"up"`
			} `json:"P"`
		} `json:"a"`
	}
	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}
	if msg.E != "ACCOUNT_UPDATE" {
		return
	}

	bn.callbackMu.RLock()
	callback := bn.positionCallback
	bn.callbackMu.RUnlock()
	if callback == nil {
		return
	}

	for _, p := range msg.A.P {
		amt := parseDecimal(p.Amount, "ws.position.pa")
		side := SideLong
		if amt.IsNegative() {
			side = SideShort
			amt = amt.Abs()
		}
		callback(&Position{
			Symbol:        bn.fromBinanceSymbol(p.Symbol),
			Side:          side,
			Size:          amt,
			EntryPrice:    parseDecimal(p.EntryPrice, "ws.position.ep"),
			UnrealizedPnl: parseDecimal(p.UnrealizedPnl, "ws.position.up"),
			UpdatedAt:     time.Now(),
		})
	}
}

func (bn *Binance) GetTradingFee(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return decimal.NewFromFloat(0.0004), nil
}

func (bn *Binance) GetLimits(ctx context.Context, symbol string) (*Limits, error) {
	body, err := bn.doRequest(ctx, http.MethodGet, "/fapi/v1/exchangeInfo", nil, false)
	if err != nil {
		return nil, err
	}

	bnSymbol := bn.toBinanceSymbol(symbol)

	var resp struct {
		Symbols []struct {
			Symbol  string `json:"symbol"`
			Filters []struct {
				FilterType string `json:"filterType"`
				MinQty     string `json:"minQty"`
				MaxQty     string `json:"maxQty"`
				StepSize   string `json:"stepSize"`
				TickSize   string `json:"tickSize"`
				Notional   string `json:"notional"`
			} `json:"filters"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	for _, s := range resp.Symbols {
		if s.Symbol != bnSymbol {
			continue
		}

		limits := &Limits{Symbol: symbol, MaxLeverage: 125}
		for _, f := range s.Filters {
			switch f.FilterType {
			case "LOT_SIZE":
				limits.MinOrderQty = parseDecimal(f.MinQty, "filters.minQty")
				limits.MaxOrderQty = parseDecimal(f.MaxQty, "filters.maxQty")
				limits.QtyStep = parseDecimal(f.StepSize, "filters.stepSize")
			case "PRICE_FILTER":
				limits.PriceStep = parseDecimal(f.TickSize, "filters.tickSize")
			case "MIN_NOTIONAL":
				limits.MinNotional = parseDecimal(f.Notional, "filters.notional")
			}
		}
		return limits, nil
	}

	return nil, fmt.Errorf("symbol info not found for %s", symbol)
}

func (bn *Binance) Close() error {
	select {
	case <-bn.closeChan:
	default:
		close(bn.closeChan)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	bn.deleteListenKey(ctx)
	cancel()

	bn.wsMu.Lock()
	if bn.wsManager != nil {
		bn.wsManager.Close()
		bn.wsManager = nil
	}
	if bn.wsUserManager != nil {
		bn.wsUserManager.Close()
		bn.wsUserManager = nil
	}
	bn.wsMu.Unlock()

	bn.connected = false
	return nil
}

func (bn *Binance) SymbolToCanonical(venueSymbol string) models.Symbol {
	base := strings.TrimSuffix(venueSymbol, "USDT")
	return models.NewSymbol(base, "USDT")
}

func (bn *Binance) SymbolFromCanonical(symbol models.Symbol) string {
	return strings.Replace(string(symbol), "+", "", 1)
}

// toBinanceSymbol конвертирует каноническую форму в формат Binance (BTCUSDT)
func (bn *Binance) toBinanceSymbol(symbol string) string {
	base := strings.TrimSuffix(symbol, "USDT")
	return base + "USDT"
}

func (bn *Binance) fromBinanceSymbol(symbol string) string {
	return symbol
}
