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
	bingxBaseURL         = "https://open-api.bingx.com"
	bingxWSMarketURL     = "wss://open-api-swap.bingx.com/swap-market"
	bingxWSUserURLFormat = "wss://open-api-swap.bingx.com/swap-market?listenKey=%s"
	bingxListenKeyTTL    = 24 * time.Hour
	bingxListenKeyRefresh = 25 * time.Minute
)

type BingX struct {
	apiKey    string
	secretKey string

	httpClient *http.Client

	wsManager     *WSConnectionManager
	wsUserManager *WSConnectionManager
	wsMu          sync.Mutex

	listenKey   string
	listenKeyMu sync.Mutex
	stopListenKeyRefresh chan struct{}

	tickerCallbacks  map[string]func(*Ticker)
	positionCallback func(*Position)
	callbackMu       sync.RWMutex

	connected bool
	closeChan chan struct{}
}

func NewBingX() *BingX {
	return &BingX{
		httpClient:      GetGlobalHTTPClient().GetClient(),
		tickerCallbacks: make(map[string]func(*Ticker)),
		closeChan:       make(chan struct{}),
	}
}

func (b *BingX) sign(params string) string {
	h := hmac.New(sha256.New, []byte(b.secretKey))
	h.Write([]byte(params))
	return hex.EncodeToString(h.Sum(nil))
}

func (b *BingX) doRequest(ctx context.Context, method, endpoint string, params map[string]string, signed bool) ([]byte, error) {
	var reqBody string
	reqURL := bingxBaseURL + endpoint

	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}

	if signed {
		timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
		query.Set("timestamp", timestamp)
		signature := b.sign(query.Encode())
		query.Set("signature", signature)
	}

	if method == http.MethodGet {
		if len(query) > 0 {
			reqURL += "?" + query.Encode()
		}
	} else {
		reqBody = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, strings.NewReader(reqBody))
	if err != nil {
		return nil, err
	}

	if method == http.MethodPost || method == http.MethodDelete {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("X-BX-APIKEY", b.apiKey)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, &ExchangeError{Exchange: models.ExchangeBingX, Kind: ErrorKindTransient, Message: err.Error(), Original: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var baseResp struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &baseResp); err != nil {
		return nil, err
	}

	if baseResp.Code != 0 {
		kind := ErrorKindPermanent
		if baseResp.Code == 100410 { // rate limit, per BingX error code table
			kind = ErrorKindRateLimit
		} else if baseResp.Code == 100413 || baseResp.Code == 100414 {
			kind = ErrorKindAuth
		}
		return nil, &ExchangeError{Exchange: models.ExchangeBingX, Kind: kind, Code: strconv.Itoa(baseResp.Code), Message: baseResp.Msg}
	}

	return body, nil
}

func (b *BingX) Connect(ctx context.Context, apiKey, secret, passphrase string) error {
	b.apiKey = apiKey
	b.secretKey = secret

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := b.GetBalance(connectCtx)
	if err != nil {
		return fmt.Errorf("failed to connect to BingX: %w", err)
	}

	if err := b.createListenKey(connectCtx); err != nil {
		log.Printf("[bingx] listen key creation failed, private stream disabled: %v", err)
	} else {
		b.startListenKeyRefresh()
	}

	b.connected = true
	return nil
}

func (b *BingX) GetName() models.Exchange { return models.ExchangeBingX }

// createListenKey создает listen-key для пользовательского потока, как требуется
// для BingX и Binance (листен-кей живет 24ч и должен обновляться каждые ~25 мин).
func (b *BingX) createListenKey(ctx context.Context) error {
	body, err := b.doRequest(ctx, http.MethodPost, "/openApi/user/auth/userDataStream", nil, false)
	if err != nil {
		return err
	}

	var resp struct {
		ListenKey string `json:"listenKey"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return err
	}

	b.listenKeyMu.Lock()
	b.listenKey = resp.ListenKey
	b.listenKeyMu.Unlock()
	return nil
}

func (b *BingX) refreshListenKey(ctx context.Context) error {
	b.listenKeyMu.Lock()
	key := b.listenKey
	b.listenKeyMu.Unlock()
	if key == "" {
		return fmt.Errorf("no listen key to refresh")
	}
	_, err := b.doRequest(ctx, http.MethodPut, "/openApi/user/auth/userDataStream", map[string]string{"listenKey": key}, false)
	return err
}

func (b *BingX) deleteListenKey(ctx context.Context) {
	b.listenKeyMu.Lock()
	key := b.listenKey
	b.listenKey = ""
	b.listenKeyMu.Unlock()
	if key == "" {
		return
	}
	_, _ = b.doRequest(ctx, http.MethodDelete, "/openApi/user/auth/userDataStream", map[string]string{"listenKey": key}, false)
}

func (b *BingX) startListenKeyRefresh() {
	b.stopListenKeyRefresh = make(chan struct{})
	go func() {
		ticker := time.NewTicker(bingxListenKeyRefresh)
		defer ticker.Stop()
		for {
			select {
			case <-b.stopListenKeyRefresh:
				return
			case <-b.closeChan:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				if err := b.refreshListenKey(ctx); err != nil {
					log.Printf("[bingx] listen key refresh failed: %v", err)
				}
				cancel()
			}
		}
	}()
}

func (b *BingX) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	body, err := b.doRequest(ctx, http.MethodGet, "/openApi/swap/v2/user/balance", nil, true)
	if err != nil {
		return decimal.Zero, err
	}

	var resp struct {
		Data struct {
			Balance struct {
				Equity string `json:"equity"`
			} `json:"balance"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, err
	}

	return parseDecimal(resp.Data.Balance.Equity, "equity"), nil
}

func (b *BingX) GetTicker(ctx context.Context, symbol string) (*Ticker, error) {
	bingxSymbol := b.toBingXSymbol(symbol)

	body, err := b.doRequest(ctx, http.MethodGet, "/openApi/swap/v2/quote/ticker", map[string]string{"symbol": bingxSymbol}, false)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data struct {
			LastPrice string `json:"lastPrice"`
			BidPrice  string `json:"bidPrice"`
			AskPrice  string `json:"askPrice"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	return &Ticker{
		Symbol:    symbol,
		BidPrice:  parseDecimal(resp.Data.BidPrice, "bidPrice"),
		AskPrice:  parseDecimal(resp.Data.AskPrice, "askPrice"),
		LastPrice: parseDecimal(resp.Data.LastPrice, "lastPrice"),
		Timestamp: time.Now(),
	}, nil
}

// GetFundingRate - BingX выплачивает фандинг каждые 8 часов
func (b *BingX) GetFundingRate(ctx context.Context, symbol string) (*models.FundingRateRecord, error) {
	bingxSymbol := b.toBingXSymbol(symbol)

	body, err := b.doRequest(ctx, http.MethodGet, "/openApi/swap/v2/quote/premiumIndex", map[string]string{"symbol": bingxSymbol}, false)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data struct {
			LastFundingRate string `json:"lastFundingRate"`
			NextFundingTime int64  `json:"nextFundingTime"`
			MarkPrice       string `json:"markPrice"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	return &models.FundingRateRecord{
		Exchange:       models.ExchangeBingX,
		Symbol:         b.SymbolToCanonical(symbol),
		Rate:           parseDecimal(resp.Data.LastFundingRate, "lastFundingRate"),
		Interval:       models.FundingInterval8h,
		NextSettlement: time.UnixMilli(resp.Data.NextFundingTime),
		MarkPrice:      parseDecimal(resp.Data.MarkPrice, "markPrice"),
		UpdatedAt:      time.Now(),
	}, nil
}

func (b *BingX) GetOrderBook(ctx context.Context, symbol string, depth int) (*OrderBook, error) {
	if depth > 1000 {
		depth = 1000
	}

	bingxSymbol := b.toBingXSymbol(symbol)
	body, err := b.doRequest(ctx, http.MethodGet, "/openApi/swap/v2/quote/depth", map[string]string{"symbol": bingxSymbol, "limit": strconv.Itoa(depth)}, false)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data struct {
			Bids [][]string `json:"bids"`
			Asks [][]string `json:"asks"`
			T    int64      `json:"T"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	orderBook := &OrderBook{
		Symbol:    symbol,
		Bids:      make([]PriceLevel, len(resp.Data.Bids)),
		Asks:      make([]PriceLevel, len(resp.Data.Asks)),
		Timestamp: time.UnixMilli(resp.Data.T),
	}

	for i, bid := range resp.Data.Bids {
		if len(bid) >= 2 {
			orderBook.Bids[i] = PriceLevel{Price: parseDecimal(bid[0], "bid_price"), Volume: parseDecimal(bid[1], "bid_volume")}
		}
	}
	for i, ask := range resp.Data.Asks {
		if len(ask) >= 2 {
			orderBook.Asks[i] = PriceLevel{Price: parseDecimal(ask[0], "ask_price"), Volume: parseDecimal(ask[1], "ask_volume")}
		}
	}

	sort.Slice(orderBook.Bids, func(i, j int) bool { return orderBook.Bids[i].Price.GreaterThan(orderBook.Bids[j].Price) })
	sort.Slice(orderBook.Asks, func(i, j int) bool { return orderBook.Asks[i].Price.LessThan(orderBook.Asks[j].Price) })

	return orderBook, nil
}

func (b *BingX) PlaceMarketOrder(ctx context.Context, symbol, side string, qty decimal.Decimal) (*Order, error) {
	bingxSymbol := b.toBingXSymbol(symbol)

	bingxSide := "BUY"
	positionSide := "LONG"
	if side == SideSell || side == SideShort {
		bingxSide = "SELL"
		positionSide = "SHORT"
	}

	params := map[string]string{
		"symbol":       bingxSymbol,
		"side":         bingxSide,
		"positionSide": positionSide,
		"type":         "MARKET",
		"quantity":     qty.String(),
	}

	body, err := b.doRequest(ctx, http.MethodPost, "/openApi/swap/v2/trade/order", params, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data struct {
			Order struct {
				OrderId     string `json:"orderId"`
				ExecutedQty string `json:"executedQty"`
				AvgPrice    string `json:"avgPrice"`
			} `json:"order"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	return &Order{
		ID:           resp.Data.Order.OrderId,
		Symbol:       symbol,
		Side:         side,
		Type:         OrderTypeMarket,
		Quantity:     qty,
		FilledQty:    parseDecimal(resp.Data.Order.ExecutedQty, "executedQty"),
		AvgFillPrice: parseDecimal(resp.Data.Order.AvgPrice, "avgPrice"),
		Status:       OrderStatusFilled,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}, nil
}

// PlaceConditionalOrder размещает STOP_MARKET/TAKE_PROFIT_MARKET ордер BingX
func (b *BingX) PlaceConditionalOrder(ctx context.Context, req ConditionalOrderRequest) (*Order, error) {
	bingxSymbol := b.toBingXSymbol(req.Symbol)

	// req.Side - направление закрывающего ордера: sell закрывает лонг, buy - шорт.
	bingxSide := "BUY"
	positionSide := "SHORT"
	if req.Side == SideSell {
		bingxSide = "SELL"
		positionSide = "LONG"
	}

	orderType := "STOP_MARKET"
	if req.Type == OrderTypeTakeProfitMarket {
		orderType = "TAKE_PROFIT_MARKET"
	}

	params := map[string]string{
		"symbol":       bingxSymbol,
		"side":         bingxSide,
		"positionSide": positionSide,
		"type":         orderType,
		"quantity":     req.Quantity.String(),
		"stopPrice":    req.TriggerPrice.String(),
	}

	body, err := b.doRequest(ctx, http.MethodPost, "/openApi/swap/v2/trade/order", params, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data struct {
			Order struct {
				OrderId string `json:"orderId"`
			} `json:"order"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	return &Order{
		ID:           resp.Data.Order.OrderId,
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

func (b *BingX) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	bingxSymbol := b.toBingXSymbol(symbol)
	_, err := b.doRequest(ctx, http.MethodPost, "/openApi/swap/v2/trade/leverage", map[string]string{
		"symbol":   bingxSymbol,
		"side":     "BOTH",
		"leverage": strconv.Itoa(leverage),
	}, true)
	return err
}

func (b *BingX) CancelOrder(ctx context.Context, symbol, orderID string) error {
	bingxSymbol := b.toBingXSymbol(symbol)
	_, err := b.doRequest(ctx, http.MethodDelete, "/openApi/swap/v2/trade/order", map[string]string{
		"symbol":  bingxSymbol,
		"orderId": orderID,
	}, true)
	return err
}

func (b *BingX) CheckOrderExists(ctx context.Context, symbol, orderID string) (bool, error) {
	bingxSymbol := b.toBingXSymbol(symbol)
	body, err := b.doRequest(ctx, http.MethodGet, "/openApi/swap/v2/trade/openOrders", map[string]string{"symbol": bingxSymbol}, true)
	if err != nil {
		return false, err
	}

	var resp struct {
		Data struct {
			Orders []struct {
				OrderId string `json:"orderId"`
			} `json:"orders"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, err
	}

	for _, o := range resp.Data.Orders {
		if o.OrderId == orderID {
			return true, nil
		}
	}
	return false, nil
}

func (b *BingX) FetchOrderHistory(ctx context.Context, symbol string, limit int) ([]*Order, error) {
	bingxSymbol := b.toBingXSymbol(symbol)
	body, err := b.doRequest(ctx, http.MethodGet, "/openApi/swap/v2/trade/allOrders", map[string]string{"symbol": bingxSymbol, "limit": strconv.Itoa(limit)}, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data struct {
			Orders []struct {
				OrderId     string `json:"orderId"`
				Type        string `json:"type"`
				Status      string `json:"status"`
				ExecutedQty string `json:"executedQty"`
				AvgPrice    string `json:"avgPrice"`
				Time        int64  `json:"time"`
			} `json:"orders"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	orders := make([]*Order, 0, len(resp.Data.Orders))
	for _, o := range resp.Data.Orders {
		orders = append(orders, &Order{
			ID:           o.OrderId,
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

func (b *BingX) GetOpenPositions(ctx context.Context) ([]*Position, error) {
	body, err := b.doRequest(ctx, http.MethodGet, "/openApi/swap/v2/user/positions", nil, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data []struct {
			Symbol           string `json:"symbol"`
			PositionSide     string `json:"positionSide"`
			PositionAmt      string `json:"positionAmt"`
			AvgPrice         string `json:"avgPrice"`
			MarkPrice        string `json:"markPrice"`
			Leverage         int    `json:"leverage"`
			UnrealizedProfit string `json:"unrealizedProfit"`
			UpdateTime       int64  `json:"updateTime"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	positions := make([]*Position, 0)
	for _, p := range resp.Data {
		posAmt := parseDecimal(p.PositionAmt, "positionAmt")
		if posAmt.IsZero() {
			continue
		}

		side := SideLong
		if p.PositionSide == "SHORT" || posAmt.IsNegative() {
			side = SideShort
			posAmt = posAmt.Abs()
		}

		positions = append(positions, &Position{
			Symbol:        b.fromBingXSymbol(p.Symbol),
			Side:          side,
			Size:          posAmt,
			EntryPrice:    parseDecimal(p.AvgPrice, "avgPrice"),
			MarkPrice:     parseDecimal(p.MarkPrice, "markPrice"),
			Leverage:      p.Leverage,
			UnrealizedPnl: parseDecimal(p.UnrealizedProfit, "unrealizedProfit"),
			UpdatedAt:     time.UnixMilli(p.UpdateTime),
		})
	}

	return positions, nil
}

func (b *BingX) ClosePosition(ctx context.Context, symbol, side string, qty decimal.Decimal) error {
	bingxSymbol := b.toBingXSymbol(symbol)

	closeSide := "SELL"
	positionSide := "LONG"
	if side == SideShort {
		closeSide = "BUY"
		positionSide = "SHORT"
	}

	params := map[string]string{
		"symbol":       bingxSymbol,
		"side":         closeSide,
		"positionSide": positionSide,
		"type":         "MARKET",
		"quantity":     qty.String(),
	}

	_, err := b.doRequest(ctx, http.MethodPost, "/openApi/swap/v2/trade/order", params, true)
	return err
}

func (b *BingX) SubscribeTicker(symbol string, callback func(*Ticker)) error {
	b.callbackMu.Lock()
	b.tickerCallbacks[symbol] = callback
	b.callbackMu.Unlock()

	b.wsMu.Lock()
	if b.wsManager == nil {
		cfg := DefaultWSManagerConfig()
		cfg.Gzip = true // BingX отправляет все фреймы сжатыми gzip
		b.wsManager = NewWSConnectionManager("bingx-market", bingxWSMarketURL, cfg)
		b.wsManager.SetOnMessage(b.handleMessage)
		if err := b.wsManager.Connect(); err != nil {
			b.wsMu.Unlock()
			return fmt.Errorf("failed to connect to websocket: %w", err)
		}
	}
	wsManager := b.wsManager
	b.wsMu.Unlock()

	bingxSymbol := b.toBingXSymbol(symbol)
	subMsg := map[string]interface{}{
		"id":       fmt.Sprintf("ticker_%s", symbol),
		"reqType":  "sub",
		"dataType": fmt.Sprintf("%s@ticker", bingxSymbol),
	}

	wsManager.AddSubscription(subMsg)
	return wsManager.Send(subMsg)
}

func (b *BingX) handleMessage(message []byte) {
	var msg struct {
		DataType string `json:"dataType"`
		Data     struct {
			Symbol    string `json:"s"`
			LastPrice string `json:"c"`
			BidPrice  string `json:"b"`
			AskPrice  string `json:"a"`
		} `json:"data"`
	}

	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}

	if strings.Contains(msg.DataType, "@ticker") {
		symbol := b.fromBingXSymbol(msg.Data.Symbol)

		b.callbackMu.RLock()
		callback, ok := b.tickerCallbacks[symbol]
		b.callbackMu.RUnlock()

		if ok && callback != nil {
			callback(&Ticker{
				Symbol:    symbol,
				BidPrice:  parseDecimal(msg.Data.BidPrice, "ws_bidPrice"),
				AskPrice:  parseDecimal(msg.Data.AskPrice, "ws_askPrice"),
				LastPrice: parseDecimal(msg.Data.LastPrice, "ws_lastPrice"),
				Timestamp: time.Now(),
			})
		}
	}
}

// SubscribePositions подключается к пользовательскому потоку через listenKey,
// полученный в Connect, для обнаружения ликвидаций (ACCOUNT_UPDATE события).
func (b *BingX) SubscribePositions(callback func(*Position)) error {
	b.callbackMu.Lock()
	b.positionCallback = callback
	b.callbackMu.Unlock()

	b.listenKeyMu.Lock()
	key := b.listenKey
	b.listenKeyMu.Unlock()
	if key == "" {
		return fmt.Errorf("listen key not available, call Connect first")
	}

	b.wsMu.Lock()
	defer b.wsMu.Unlock()
	if b.wsUserManager == nil {
		cfg := DefaultWSManagerConfig()
		cfg.Gzip = true
		b.wsUserManager = NewWSConnectionManager("bingx-user", fmt.Sprintf(bingxWSUserURLFormat, key), cfg)
		b.wsUserManager.SetOnMessage(b.handleUserMessage)
		if err := b.wsUserManager.Connect(); err != nil {
			return fmt.Errorf("failed to connect to user websocket: %w", err)
		}
	}
	return nil
}

func (b *BingX) handleUserMessage(message []byte) {
	var msg struct {
		E string `json:"e"` // event type, e.g. ACCOUNT_UPDATE
		A struct {
			Positions []struct {
				Symbol       string `json:"s"`
				Amount       string `json:"pa"`
				EntryPrice   string `json:"ep"`
				UnrealizedPnl string `json:"up"`
				Side          string `json:"ps"`
			} `json:"P"`
		} `json:"a"`
	}
	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}
	if msg.E != "ACCOUNT_UPDATE" {
		return
	}

	b.callbackMu.RLock()
	callback := b.positionCallback
	b.callbackMu.RUnlock()
	if callback == nil {
		return
	}

	for _, p := range msg.A.Positions {
		amt := parseDecimal(p.Amount, "ws.position.pa")
		side := SideLong
		if p.Side == "SHORT" || amt.IsNegative() {
			side = SideShort
			amt = amt.Abs()
		}
		callback(&Position{
			Symbol:        b.fromBingXSymbol(p.Symbol),
			Side:          side,
			Size:          amt,
			EntryPrice:    parseDecimal(p.EntryPrice, "ws.position.ep"),
			UnrealizedPnl: parseDecimal(p.UnrealizedPnl, "ws.position.up"),
			UpdatedAt:     time.Now(),
		})
	}
}

func (b *BingX) GetTradingFee(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return decimal.NewFromFloat(0.0005), nil
}

func (b *BingX) GetLimits(ctx context.Context, symbol string) (*Limits, error) {
	bingxSymbol := b.toBingXSymbol(symbol)

	body, err := b.doRequest(ctx, http.MethodGet, "/openApi/swap/v2/quote/contracts", map[string]string{"symbol": bingxSymbol}, false)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data []struct {
			Size            string `json:"size"`
			TickSize        string `json:"tickSize"`
			MaxLongLeverage int    `json:"maxLongLeverage"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("contract info not found for %s", symbol)
	}

	info := resp.Data[0]
	minSize := parseDecimal(info.Size, "size")

	return &Limits{
		Symbol:      symbol,
		MinOrderQty: minSize,
		MaxOrderQty: decimal.NewFromInt(1000000),
		QtyStep:     minSize,
		MinNotional: decimal.NewFromInt(5),
		PriceStep:   parseDecimal(info.TickSize, "tickSize"),
		MaxLeverage: info.MaxLongLeverage,
	}, nil
}

func (b *BingX) Close() error {
	select {
	case <-b.closeChan:
	default:
		close(b.closeChan)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	b.deleteListenKey(ctx)
	cancel()

	b.wsMu.Lock()
	if b.wsManager != nil {
		b.wsManager.Close()
		b.wsManager = nil
	}
	if b.wsUserManager != nil {
		b.wsUserManager.Close()
		b.wsUserManager = nil
	}
	b.wsMu.Unlock()

	b.connected = false
	return nil
}

func (b *BingX) SymbolToCanonical(venueSymbol string) models.Symbol {
	return models.Symbol(strings.Replace(venueSymbol, "-", "+", 1))
}

func (b *BingX) SymbolFromCanonical(symbol models.Symbol) string {
	return strings.Replace(string(symbol), "+", "-", 1)
}

// toBingXSymbol конвертирует BTCUSDT -> BTC-USDT
func (b *BingX) toBingXSymbol(symbol string) string {
	base := strings.TrimSuffix(symbol, "USDT")
	return base + "-USDT"
}

// fromBingXSymbol конвертирует BTC-USDT -> BTCUSDT
func (b *BingX) fromBingXSymbol(contract string) string {
	return strings.ReplaceAll(contract, "-", "")
}
