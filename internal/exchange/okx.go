package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
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
	okxBaseURL   = "https://www.okx.com"
	okxWSPublic  = "wss://ws.okx.com:8443/ws/v5/public"
	okxWSPrivate = "wss://ws.okx.com:8443/ws/v5/private"
)

type OKX struct {
	apiKey     string
	secretKey  string
	passphrase string

	httpClient *http.Client

	wsPublicManager  *WSConnectionManager
	wsPrivateManager *WSConnectionManager
	wsMu             sync.Mutex

	tickerCallbacks  map[string]func(*Ticker)
	positionCallback func(*Position)
	callbackMu       sync.RWMutex

	connected bool
	closeChan chan struct{}
}

func NewOKX() *OKX {
	return &OKX{
		httpClient:      GetGlobalHTTPClient().GetClient(),
		tickerCallbacks: make(map[string]func(*Ticker)),
		closeChan:       make(chan struct{}),
	}
}

func (o *OKX) sign(timestamp, method, requestPath, body string) string {
	message := timestamp + method + requestPath + body
	h := hmac.New(sha256.New, []byte(o.secretKey))
	h.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func parseDecimal(value, field string) decimal.Decimal {
	if value == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		log.Printf("[okx] failed to parse %s %q: %v", field, value, err)
		return decimal.Zero
	}
	return d
}

func (o *OKX) parseInt(value, field string) int {
	result, err := strconv.Atoi(value)
	if err != nil && value != "" {
		log.Printf("[okx] failed to parse %s %q: %v", field, value, err)
	}
	return result
}

func (o *OKX) parseInt64(value, field string) int64 {
	result, err := strconv.ParseInt(value, 10, 64)
	if err != nil && value != "" {
		log.Printf("[okx] failed to parse %s %q: %v", field, value, err)
	}
	return result
}

func (o *OKX) doRequest(ctx context.Context, method, endpoint string, params map[string]string, signed bool) ([]byte, error) {
	var reqBody string
	var reqURL string

	if method == http.MethodGet {
		reqURL = okxBaseURL + endpoint
		if len(params) > 0 {
			query := make([]string, 0, len(params))
			for k, v := range params {
				query = append(query, k+"="+v)
			}
			reqURL += "?" + strings.Join(query, "&")
		}
	} else {
		reqURL = okxBaseURL + endpoint
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

	if signed {
		timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
		var signPath string
		if method == http.MethodGet && len(params) > 0 {
			query := make([]string, 0, len(params))
			for k, v := range params {
				query = append(query, k+"="+v)
			}
			signPath = endpoint + "?" + strings.Join(query, "&")
		} else {
			signPath = endpoint
		}
		signature := o.sign(timestamp, method, signPath, reqBody)

		req.Header.Set("OK-ACCESS-KEY", o.apiKey)
		req.Header.Set("OK-ACCESS-SIGN", signature)
		req.Header.Set("OK-ACCESS-TIMESTAMP", timestamp)
		req.Header.Set("OK-ACCESS-PASSPHRASE", o.passphrase)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, &ExchangeError{Exchange: models.ExchangeOKX, Kind: ErrorKindTransient, Message: err.Error(), Original: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var baseResp struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &baseResp); err != nil {
		return nil, err
	}

	if baseResp.Code != "0" {
		kind := ErrorKindPermanent
		if baseResp.Code == "50011" { // rate limit
			kind = ErrorKindRateLimit
		}
		return nil, &ExchangeError{Exchange: models.ExchangeOKX, Kind: kind, Code: baseResp.Code, Message: baseResp.Msg}
	}

	return body, nil
}

func (o *OKX) Connect(ctx context.Context, apiKey, secret, passphrase string) error {
	o.apiKey = apiKey
	o.secretKey = secret
	o.passphrase = passphrase

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := o.GetBalance(connectCtx)
	if err != nil {
		return fmt.Errorf("failed to connect to OKX: %w", err)
	}

	o.connected = true
	return nil
}

func (o *OKX) GetName() models.Exchange { return models.ExchangeOKX }

func (o *OKX) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	params := map[string]string{"ccy": "USDT"}

	body, err := o.doRequest(ctx, http.MethodGet, "/api/v5/account/balance", params, true)
	if err != nil {
		return decimal.Zero, err
	}

	var resp struct {
		Data []struct {
			Details []struct {
				Ccy string `json:"ccy"`
				Eq  string `json:"eq"`
			} `json:"details"`
		} `json:"data"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, err
	}

	if len(resp.Data) > 0 {
		for _, detail := range resp.Data[0].Details {
			if detail.Ccy == "USDT" {
				return parseDecimal(detail.Eq, "accountEquity"), nil
			}
		}
	}

	return decimal.Zero, nil
}

func (o *OKX) GetTicker(ctx context.Context, symbol string) (*Ticker, error) {
	instId := o.toOKXSymbol(symbol)

	body, err := o.doRequest(ctx, http.MethodGet, "/api/v5/market/ticker", map[string]string{"instId": instId}, false)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data []struct {
			BidPx string `json:"bidPx"`
			AskPx string `json:"askPx"`
			Last  string `json:"last"`
			Ts    string `json:"ts"`
		} `json:"data"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("ticker not found for %s", symbol)
	}

	t := resp.Data[0]
	return &Ticker{
		Symbol:    symbol,
		BidPrice:  parseDecimal(t.BidPx, "bidPx"),
		AskPrice:  parseDecimal(t.AskPx, "askPx"),
		LastPrice: parseDecimal(t.Last, "last"),
		Timestamp: time.UnixMilli(o.parseInt64(t.Ts, "timestamp")),
	}, nil
}

// GetFundingRate получает текущую ставку фандинга (OKX платит каждые 8 часов по умолчанию)
func (o *OKX) GetFundingRate(ctx context.Context, symbol string) (*models.FundingRateRecord, error) {
	instId := o.toOKXSymbol(symbol)

	body, err := o.doRequest(ctx, http.MethodGet, "/api/v5/public/funding-rate", map[string]string{"instId": instId}, false)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data []struct {
			FundingRate     string `json:"fundingRate"`
			NextFundingTime string `json:"nextFundingTime"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("funding rate not found for %s", symbol)
	}

	d := resp.Data[0]
	nextMs := o.parseInt64(d.NextFundingTime, "nextFundingTime")

	return &models.FundingRateRecord{
		Exchange:       models.ExchangeOKX,
		Symbol:         o.SymbolToCanonical(symbol),
		Rate:           parseDecimal(d.FundingRate, "fundingRate"),
		Interval:       models.FundingInterval8h,
		NextSettlement: time.UnixMilli(nextMs),
		UpdatedAt:      time.Now(),
	}, nil
}

func (o *OKX) GetOrderBook(ctx context.Context, symbol string, depth int) (*OrderBook, error) {
	if depth > 400 {
		depth = 400
	}

	instId := o.toOKXSymbol(symbol)
	body, err := o.doRequest(ctx, http.MethodGet, "/api/v5/market/books", map[string]string{"instId": instId, "sz": strconv.Itoa(depth)}, false)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data []struct {
			Bids [][]string `json:"bids"`
			Asks [][]string `json:"asks"`
			Ts   string     `json:"ts"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("orderbook not found for %s", symbol)
	}

	data := resp.Data[0]
	orderBook := &OrderBook{
		Symbol:    symbol,
		Bids:      make([]PriceLevel, len(data.Bids)),
		Asks:      make([]PriceLevel, len(data.Asks)),
		Timestamp: time.UnixMilli(o.parseInt64(data.Ts, "orderbook.ts")),
	}

	for i, bid := range data.Bids {
		orderBook.Bids[i] = PriceLevel{Price: parseDecimal(bid[0], "bid.price"), Volume: parseDecimal(bid[1], "bid.volume")}
	}
	for i, ask := range data.Asks {
		orderBook.Asks[i] = PriceLevel{Price: parseDecimal(ask[0], "ask.price"), Volume: parseDecimal(ask[1], "ask.volume")}
	}

	sort.Slice(orderBook.Bids, func(i, j int) bool { return orderBook.Bids[i].Price.GreaterThan(orderBook.Bids[j].Price) })
	sort.Slice(orderBook.Asks, func(i, j int) bool { return orderBook.Asks[i].Price.LessThan(orderBook.Asks[j].Price) })

	return orderBook, nil
}

func (o *OKX) PlaceMarketOrder(ctx context.Context, symbol, side string, qty decimal.Decimal) (*Order, error) {
	instId := o.toOKXSymbol(symbol)

	okxSide := "buy"
	posSide := "long"
	if side == SideSell || side == SideShort {
		okxSide = "sell"
		posSide = "short"
	}

	params := map[string]string{
		"instId":  instId,
		"tdMode":  "cross",
		"side":    okxSide,
		"posSide": posSide,
		"ordType": "market",
		"sz":      qty.String(),
	}

	body, err := o.doRequest(ctx, http.MethodPost, "/api/v5/trade/order", params, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data []struct {
			OrdId string `json:"ordId"`
			SCode string `json:"sCode"`
			SMsg  string `json:"sMsg"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || resp.Data[0].SCode != "0" {
		msg := "unknown error"
		if len(resp.Data) > 0 {
			msg = resp.Data[0].SMsg
		}
		return nil, fmt.Errorf("order failed: %s", msg)
	}

	order := &Order{
		ID:        resp.Data[0].OrdId,
		Symbol:    symbol,
		Side:      side,
		Type:      OrderTypeMarket,
		Quantity:  qty,
		FilledQty: qty,
		Status:    OrderStatusFilled,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if avgPrice, filled, err := o.getOrderFill(ctx, instId, resp.Data[0].OrdId); err == nil {
		order.AvgFillPrice = avgPrice
		order.FilledQty = filled
	}

	return order, nil
}

// PlaceConditionalOrder размещает algo-ордер OKX (stop-market / take-profit-market)
func (o *OKX) PlaceConditionalOrder(ctx context.Context, req ConditionalOrderRequest) (*Order, error) {
	instId := o.toOKXSymbol(req.Symbol)

	okxSide := "buy"
	if req.Side == SideSell {
		okxSide = "sell"
	}

	params := map[string]string{
		"instId":  instId,
		"tdMode":  "cross",
		"side":    okxSide,
		"ordType": "conditional",
		"sz":      req.Quantity.String(),
	}
	if req.Type == OrderTypeStopMarket {
		params["slTriggerPx"] = req.TriggerPrice.String()
		params["slOrdPx"] = "-1"
	} else {
		params["tpTriggerPx"] = req.TriggerPrice.String()
		params["tpOrdPx"] = "-1"
	}

	body, err := o.doRequest(ctx, http.MethodPost, "/api/v5/trade/order-algo", params, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data []struct {
			AlgoId string `json:"algoId"`
			SCode  string `json:"sCode"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || resp.Data[0].SCode != "0" {
		return nil, fmt.Errorf("conditional order failed")
	}

	return &Order{
		ID:           resp.Data[0].AlgoId,
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

// SetLeverage выставляет плечо для instId в режиме cross
func (o *OKX) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	instId := o.toOKXSymbol(symbol)
	_, err := o.doRequest(ctx, http.MethodPost, "/api/v5/account/set-leverage", map[string]string{
		"instId":  instId,
		"lever":   strconv.Itoa(leverage),
		"mgnMode": "cross",
	}, true)
	return err
}

// CancelOrder отменяет algo-ордер OKX (stop-loss/take-profit)
func (o *OKX) CancelOrder(ctx context.Context, symbol, orderID string) error {
	instId := o.toOKXSymbol(symbol)
	_, err := o.doRequest(ctx, http.MethodPost, "/api/v5/trade/cancel-algos", map[string]string{
		"instId": instId,
		"algoId": orderID,
	}, true)
	return err
}

// CheckOrderExists проверяет активность algo-ордера OKX
func (o *OKX) CheckOrderExists(ctx context.Context, symbol, orderID string) (bool, error) {
	instId := o.toOKXSymbol(symbol)
	body, err := o.doRequest(ctx, http.MethodGet, "/api/v5/trade/order-algo-pending", map[string]string{"instId": instId, "algoId": orderID}, true)
	if err != nil {
		return false, err
	}
	var resp struct {
		Data []struct {
			AlgoId string `json:"algoId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, err
	}
	return len(resp.Data) > 0, nil
}

// FetchOrderHistory возвращает завершенные algo-ордера за последние 7 дней
func (o *OKX) FetchOrderHistory(ctx context.Context, symbol string, limit int) ([]*Order, error) {
	instId := o.toOKXSymbol(symbol)
	body, err := o.doRequest(ctx, http.MethodGet, "/api/v5/trade/orders-algo-history", map[string]string{
		"instId":  instId,
		"ordType": "conditional",
		"state":   "effective",
		"limit":   strconv.Itoa(limit),
	}, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data []struct {
			AlgoId     string `json:"algoId"`
			SlTriggerPx string `json:"slTriggerPx"`
			Sz         string `json:"sz"`
			CTime      string `json:"cTime"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	orders := make([]*Order, 0, len(resp.Data))
	for _, d := range resp.Data {
		orders = append(orders, &Order{
			ID:        d.AlgoId,
			Symbol:    symbol,
			Type:      OrderTypeStopMarket,
			Quantity:  parseDecimal(d.Sz, "algo.sz"),
			Status:    OrderStatusFilled,
			CreatedAt: time.UnixMilli(o.parseInt64(d.CTime, "algo.cTime")),
		})
	}
	return orders, nil
}

func (o *OKX) getOrderFill(ctx context.Context, instId, orderId string) (decimal.Decimal, decimal.Decimal, error) {
	body, err := o.doRequest(ctx, http.MethodGet, "/api/v5/trade/order", map[string]string{"instId": instId, "ordId": orderId}, true)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	var resp struct {
		Data []struct {
			AccFillSz string `json:"accFillSz"`
			AvgPx     string `json:"avgPx"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if len(resp.Data) == 0 {
		return decimal.Zero, decimal.Zero, fmt.Errorf("order not found")
	}

	return parseDecimal(resp.Data[0].AvgPx, "avgPx"), parseDecimal(resp.Data[0].AccFillSz, "accFillSz"), nil
}

func (o *OKX) GetOpenPositions(ctx context.Context) ([]*Position, error) {
	body, err := o.doRequest(ctx, http.MethodGet, "/api/v5/account/positions", map[string]string{"instType": "SWAP"}, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data []struct {
			InstId  string `json:"instId"`
			PosSide string `json:"posSide"`
			Pos     string `json:"pos"`
			AvgPx   string `json:"avgPx"`
			MarkPx  string `json:"markPx"`
			Lever   string `json:"lever"`
			Upl     string `json:"upl"`
			UTime   string `json:"uTime"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	positions := make([]*Position, 0)
	for _, p := range resp.Data {
		pos := parseDecimal(p.Pos, "position.pos")
		if pos.IsZero() {
			continue
		}

		side := SideLong
		if p.PosSide == "short" {
			side = SideShort
			pos = pos.Abs()
		}

		positions = append(positions, &Position{
			Symbol:        o.fromOKXSymbol(p.InstId),
			Side:          side,
			Size:          pos,
			EntryPrice:    parseDecimal(p.AvgPx, "position.avgPx"),
			MarkPrice:     parseDecimal(p.MarkPx, "position.markPx"),
			Leverage:      o.parseInt(p.Lever, "position.lever"),
			UnrealizedPnl: parseDecimal(p.Upl, "position.upl"),
			UpdatedAt:     time.UnixMilli(o.parseInt64(p.UTime, "position.uTime")),
		})
	}

	return positions, nil
}

func (o *OKX) ClosePosition(ctx context.Context, symbol, side string, qty decimal.Decimal) error {
	instId := o.toOKXSymbol(symbol)

	closeSide := "sell"
	posSide := "long"
	if side == SideShort {
		closeSide = "buy"
		posSide = "short"
	}

	params := map[string]string{
		"instId":  instId,
		"tdMode":  "cross",
		"side":    closeSide,
		"posSide": posSide,
		"ordType": "market",
		"sz":      qty.String(),
	}

	_, err := o.doRequest(ctx, http.MethodPost, "/api/v5/trade/order", params, true)
	return err
}

func (o *OKX) subscribePublic(symbol, channel string) (*WSConnectionManager, error) {
	o.wsMu.Lock()
	defer o.wsMu.Unlock()

	if o.wsPublicManager == nil {
		cfg := DefaultWSManagerConfig()
		o.wsPublicManager = NewWSConnectionManager("okx-public", okxWSPublic, cfg)
		o.wsPublicManager.SetOnMessage(o.handlePublicMessage)
		o.wsPublicManager.SetOnConnect(func() { log.Printf("[okx] public websocket connected") })
		o.wsPublicManager.SetOnDisconnect(func(err error) {
			if err != nil {
				log.Printf("[okx] public websocket disconnected: %v", err)
			}
		})
		if err := o.wsPublicManager.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect to websocket: %w", err)
		}
	}
	return o.wsPublicManager, nil
}

func (o *OKX) SubscribeTicker(symbol string, callback func(*Ticker)) error {
	o.callbackMu.Lock()
	o.tickerCallbacks[symbol] = callback
	o.callbackMu.Unlock()

	wsManager, err := o.subscribePublic(symbol, "tickers")
	if err != nil {
		return err
	}

	instId := o.toOKXSymbol(symbol)
	subMsg := map[string]interface{}{
		"op":   "subscribe",
		"args": []map[string]string{{"channel": "tickers", "instId": instId}},
	}

	wsManager.AddSubscription(subMsg)
	return wsManager.Send(subMsg)
}

func (o *OKX) handlePublicMessage(message []byte) {
	var msg struct {
		Arg struct {
			Channel string `json:"channel"`
			InstId  string `json:"instId"`
		} `json:"arg"`
		Data []struct {
			BidPx string `json:"bidPx"`
			AskPx string `json:"askPx"`
			Last  string `json:"last"`
			Ts    string `json:"ts"`
		} `json:"data"`
	}

	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}

	if msg.Arg.Channel == "tickers" && len(msg.Data) > 0 {
		symbol := o.fromOKXSymbol(msg.Arg.InstId)

		o.callbackMu.RLock()
		callback, ok := o.tickerCallbacks[symbol]
		o.callbackMu.RUnlock()

		if ok && callback != nil {
			d := msg.Data[0]
			callback(&Ticker{
				Symbol:    symbol,
				BidPrice:  parseDecimal(d.BidPx, "ws.ticker.bidPx"),
				AskPrice:  parseDecimal(d.AskPx, "ws.ticker.askPx"),
				LastPrice: parseDecimal(d.Last, "ws.ticker.last"),
				Timestamp: time.UnixMilli(o.parseInt64(d.Ts, "ws.ticker.ts")),
			})
		}
	}
}

func (o *OKX) SubscribePositions(callback func(*Position)) error {
	o.callbackMu.Lock()
	o.positionCallback = callback
	o.callbackMu.Unlock()

	o.wsMu.Lock()
	if o.wsPrivateManager == nil {
		cfg := DefaultWSManagerConfig()
		o.wsPrivateManager = NewWSConnectionManager("okx-private", okxWSPrivate, cfg)
		o.wsPrivateManager.SetAuthFunc(o.authenticateWebSocket)
		o.wsPrivateManager.SetOnMessage(o.handlePrivateMessage)
		if err := o.wsPrivateManager.Connect(); err != nil {
			o.wsMu.Unlock()
			return fmt.Errorf("failed to connect to private websocket: %w", err)
		}
	}
	wsManager := o.wsPrivateManager
	o.wsMu.Unlock()

	subMsg := map[string]interface{}{
		"op":   "subscribe",
		"args": []map[string]string{{"channel": "positions", "instType": "SWAP"}},
	}
	wsManager.AddSubscription(subMsg)
	return wsManager.Send(subMsg)
}

func (o *OKX) authenticateWebSocket(send func(interface{}) error, readAuthReply func() ([]byte, error)) error {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	message := timestamp + "GET" + "/users/self/verify"
	h := hmac.New(sha256.New, []byte(o.secretKey))
	h.Write([]byte(message))
	signature := base64.StdEncoding.EncodeToString(h.Sum(nil))

	authMsg := map[string]interface{}{
		"op": "login",
		"args": []map[string]string{{
			"apiKey":     o.apiKey,
			"passphrase": o.passphrase,
			"timestamp":  timestamp,
			"sign":       signature,
		}},
	}

	if err := send(authMsg); err != nil {
		return err
	}

	msg, err := readAuthReply()
	if err != nil {
		return err
	}

	var resp struct {
		Event string `json:"event"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(msg, &resp); err != nil {
		return err
	}
	if resp.Event != "login" || resp.Code != "0" {
		return fmt.Errorf("authentication failed")
	}
	return nil
}

func (o *OKX) handlePrivateMessage(message []byte) {
	var msg struct {
		Arg struct {
			Channel string `json:"channel"`
		} `json:"arg"`
		Data []struct {
			InstId  string `json:"instId"`
			PosSide string `json:"posSide"`
			Pos     string `json:"pos"`
			AvgPx   string `json:"avgPx"`
			MarkPx  string `json:"markPx"`
			Lever   string `json:"lever"`
			Upl     string `json:"upl"`
			UTime   string `json:"uTime"`
		} `json:"data"`
	}

	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}

	if msg.Arg.Channel == "positions" {
		o.callbackMu.RLock()
		callback := o.positionCallback
		o.callbackMu.RUnlock()

		if callback != nil {
			for _, p := range msg.Data {
				pos := parseDecimal(p.Pos, "ws.position.pos")
				side := SideLong
				if p.PosSide == "short" {
					side = SideShort
					pos = pos.Abs()
				}

				callback(&Position{
					Symbol:        o.fromOKXSymbol(p.InstId),
					Side:          side,
					Size:          pos,
					EntryPrice:    parseDecimal(p.AvgPx, "ws.position.avgPx"),
					MarkPrice:     parseDecimal(p.MarkPx, "ws.position.markPx"),
					Leverage:      o.parseInt(p.Lever, "ws.position.lever"),
					UnrealizedPnl: parseDecimal(p.Upl, "ws.position.upl"),
					UpdatedAt:     time.UnixMilli(o.parseInt64(p.UTime, "ws.position.uTime")),
				})
			}
		}
	}
}

func (o *OKX) GetTradingFee(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return decimal.NewFromFloat(0.0005), nil
}

func (o *OKX) GetLimits(ctx context.Context, symbol string) (*Limits, error) {
	instId := o.toOKXSymbol(symbol)

	body, err := o.doRequest(ctx, http.MethodGet, "/api/v5/public/instruments", map[string]string{"instType": "SWAP", "instId": instId}, false)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data []struct {
			MinSz    string `json:"minSz"`
			MaxLmtSz string `json:"maxLmtSz"`
			LotSz    string `json:"lotSz"`
			TickSz   string `json:"tickSz"`
			Lever    string `json:"lever"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("instrument info not found for %s", symbol)
	}

	info := resp.Data[0]
	return &Limits{
		Symbol:      symbol,
		MinOrderQty: parseDecimal(info.MinSz, "limits.minSz"),
		MaxOrderQty: parseDecimal(info.MaxLmtSz, "limits.maxLmtSz"),
		QtyStep:     parseDecimal(info.LotSz, "limits.lotSz"),
		MinNotional: decimal.NewFromInt(5),
		PriceStep:   parseDecimal(info.TickSz, "limits.tickSz"),
		MaxLeverage: o.parseInt(info.Lever, "limits.lever"),
	}, nil
}

func (o *OKX) Close() error {
	select {
	case <-o.closeChan:
	default:
		close(o.closeChan)
	}

	if o.wsPublicManager != nil {
		o.wsPublicManager.Close()
		o.wsPublicManager = nil
	}
	if o.wsPrivateManager != nil {
		o.wsPrivateManager.Close()
		o.wsPrivateManager = nil
	}

	o.connected = false
	return nil
}

// SymbolToCanonical конвертирует формат OKX (BTC-USDT-SWAP) в каноническую форму BTC+USDT
func (o *OKX) SymbolToCanonical(venueSymbol string) models.Symbol {
	return models.Symbol(strings.ReplaceAll(o.fromOKXSymbol(venueSymbol), "USDT", "+USDT"))
}

// SymbolFromCanonical конвертирует BTC+USDT -> BTC-USDT-SWAP
func (o *OKX) SymbolFromCanonical(symbol models.Symbol) string {
	s := strings.ReplaceAll(string(symbol), "+", "")
	return o.toOKXSymbol(s)
}

// toOKXSymbol конвертирует символ вида BTCUSDT в формат OKX BTC-USDT-SWAP
func (o *OKX) toOKXSymbol(symbol string) string {
	base := strings.TrimSuffix(symbol, "USDT")
	return base + "-USDT-SWAP"
}

// fromOKXSymbol конвертирует BTC-USDT-SWAP обратно в BTCUSDT
func (o *OKX) fromOKXSymbol(instId string) string {
	parts := strings.Split(instId, "-")
	if len(parts) >= 2 {
		return parts[0] + parts[1]
	}
	return instId
}
