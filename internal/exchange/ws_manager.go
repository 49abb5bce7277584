package exchange

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
)

// WSManagerConfig настраивает переподключение, ping/pong и декомпрессию для одного
// WebSocket соединения с биржей.
type WSManagerConfig struct {
	InitialDelay   time.Duration // начальная задержка backoff
	MaxDelay       time.Duration // максимальная задержка backoff
	MaxRetries     int           // 0 = бесконечно
	ConnectTimeout time.Duration
	PingInterval   time.Duration
	PongTimeout    time.Duration

	// Gzip указывает, что входящие бинарные фреймы сжаты gzip (BingX),
	// с откатом на обработку как обычного UTF-8 при ошибке распаковки.
	Gzip bool

	// AppPingPayload, если не nil, отправляется как JSON text-фрейм каждые
	// PingInterval вместо протокольного WS ping (Gate.io/MEXC читают только
	// application-level ping).
	AppPingPayload []byte
}

// DefaultWSManagerConfig возвращает конфигурацию переподключения по умолчанию:
// экспоненциальный backoff 1s..30s, как требуется для устойчивого фида фандинга.
func DefaultWSManagerConfig() WSManagerConfig {
	return WSManagerConfig{
		InitialDelay:   1 * time.Second,
		MaxDelay:       30 * time.Second,
		MaxRetries:     0,
		ConnectTimeout: 10 * time.Second,
		PingInterval:   20 * time.Second,
		PongTimeout:    10 * time.Second,
	}
}

// WSConnectionState - состояние WebSocket соединения
type WSConnectionState int32

const (
	WSStateDisconnected WSConnectionState = iota
	WSStateConnecting
	WSStateConnected
	WSStateReconnecting
	WSStateError
)

func (s WSConnectionState) String() string {
	switch s {
	case WSStateDisconnected:
		return "disconnected"
	case WSStateConnecting:
		return "connecting"
	case WSStateConnected:
		return "connected"
	case WSStateReconnecting:
		return "reconnecting"
	case WSStateError:
		return "error"
	default:
		return "unknown"
	}
}

// WSConnectionManager управляет одним WebSocket соединением с автоматическим
// переподключением, ресабскрайбом, венью-специфичным ping/pong и опциональной
// gzip-распаковкой входящих фреймов (BingX).
type WSConnectionManager struct {
	name   string
	wsURL  string
	config WSManagerConfig

	conn   *websocket.Conn
	connMu sync.RWMutex

	state      int32 // atomic WSConnectionState
	retryCount int32 // atomic

	closeChan chan struct{}
	closeOnce sync.Once

	onMessage    func([]byte)
	onConnect    func()
	onDisconnect func(error)
	callbackMu   sync.RWMutex

	subscriptions   []interface{}
	subscriptionsMu sync.RWMutex

	// authFunc получает функции отправки сообщения и чтения одного ответа,
	// используется для приватных каналов (OKX login, listen-key установлен заранее в URL).
	authFunc func(send func(interface{}) error, readReply func() ([]byte, error)) error

	lastPongAt atomic.Value // time.Time
}

func NewWSConnectionManager(name, wsURL string, config WSManagerConfig) *WSConnectionManager {
	return &WSConnectionManager{
		name:          name,
		wsURL:         wsURL,
		config:        config,
		closeChan:     make(chan struct{}),
		subscriptions: make([]interface{}, 0),
	}
}

func (m *WSConnectionManager) SetOnMessage(handler func([]byte))    { m.callbackMu.Lock(); m.onMessage = handler; m.callbackMu.Unlock() }
func (m *WSConnectionManager) SetOnConnect(handler func())          { m.callbackMu.Lock(); m.onConnect = handler; m.callbackMu.Unlock() }
func (m *WSConnectionManager) SetOnDisconnect(handler func(error))  { m.callbackMu.Lock(); m.onDisconnect = handler; m.callbackMu.Unlock() }
func (m *WSConnectionManager) SetAuthFunc(fn func(send func(interface{}) error, readReply func() ([]byte, error)) error) {
	m.authFunc = fn
}

func (m *WSConnectionManager) AddSubscription(sub interface{}) {
	m.subscriptionsMu.Lock()
	m.subscriptions = append(m.subscriptions, sub)
	m.subscriptionsMu.Unlock()
}

func (m *WSConnectionManager) ClearSubscriptions() {
	m.subscriptionsMu.Lock()
	m.subscriptions = m.subscriptions[:0]
	m.subscriptionsMu.Unlock()
}

func (m *WSConnectionManager) GetState() WSConnectionState {
	return WSConnectionState(atomic.LoadInt32(&m.state))
}

func (m *WSConnectionManager) IsConnected() bool { return m.GetState() == WSStateConnected }

func (m *WSConnectionManager) Connect() error {
	select {
	case <-m.closeChan:
		return fmt.Errorf("manager is closed")
	default:
	}

	atomic.StoreInt32(&m.state, int32(WSStateConnecting))

	if err := m.dial(); err != nil {
		atomic.StoreInt32(&m.state, int32(WSStateDisconnected))
		return err
	}

	atomic.StoreInt32(&m.state, int32(WSStateConnected))
	atomic.StoreInt32(&m.retryCount, 0)

	m.callbackMu.RLock()
	onConnect := m.onConnect
	m.callbackMu.RUnlock()
	if onConnect != nil {
		onConnect()
	}

	go m.readPump()
	go m.pingPump()

	log.Printf("[%s] websocket connected to %s", m.name, m.wsURL)
	return nil
}

func (m *WSConnectionManager) dial() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: m.config.ConnectTimeout}

	conn, _, err := dialer.DialContext(ctx, m.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial error: %w", err)
	}

	m.connMu.Lock()
	m.conn = conn
	m.connMu.Unlock()

	if m.authFunc != nil {
		send := func(v interface{}) error { return conn.WriteJSON(v) }
		readReply := func() ([]byte, error) {
			_, msg, err := conn.ReadMessage()
			return msg, err
		}
		if err := m.authFunc(send, readReply); err != nil {
			conn.Close()
			m.connMu.Lock()
			m.conn = nil
			m.connMu.Unlock()
			return fmt.Errorf("auth error: %w", err)
		}
	}

	if err := m.resubscribe(); err != nil {
		log.Printf("[%s] resubscribe warning: %v", m.name, err)
	}

	return nil
}

func (m *WSConnectionManager) resubscribe() error {
	m.subscriptionsMu.RLock()
	subs := make([]interface{}, len(m.subscriptions))
	copy(subs, m.subscriptions)
	m.subscriptionsMu.RUnlock()

	m.connMu.RLock()
	conn := m.conn
	m.connMu.RUnlock()

	if conn == nil {
		return fmt.Errorf("no connection")
	}

	// Небольшая задержка даёт бирже время закончить рукопожатие перед потоком подписок.
	if len(subs) > 0 {
		time.Sleep(200 * time.Millisecond)
	}

	for _, sub := range subs {
		if err := conn.WriteJSON(sub); err != nil {
			return fmt.Errorf("resubscribe error: %w", err)
		}
	}

	if len(subs) > 0 {
		log.Printf("[%s] resubscribed to %d channels", m.name, len(subs))
	}
	return nil
}

func (m *WSConnectionManager) decode(raw []byte, msgType int) []byte {
	if !m.config.Gzip || msgType != websocket.BinaryMessage {
		return raw
	}
	reader, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return raw // откат на сырые байты, как требует спецификация BingX
	}
	defer reader.Close()
	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return raw
	}
	return decompressed
}

func (m *WSConnectionManager) readPump() {
	defer m.handleDisconnect(nil)

	for {
		select {
		case <-m.closeChan:
			return
		default:
		}

		m.connMu.RLock()
		conn := m.conn
		m.connMu.RUnlock()
		if conn == nil {
			return
		}

		msgType, message, err := conn.ReadMessage()
		if err != nil {
			m.handleDisconnect(err)
			return
		}

		payload := m.decode(message, msgType)

		// Application-level ping ("ping" text frame) - отвечаем тем же текстом как pong.
		if msgType == websocket.TextMessage && string(payload) == "ping" {
			_ = m.Send(rawText("pong"))
			continue
		}

		m.callbackMu.RLock()
		onMessage := m.onMessage
		m.callbackMu.RUnlock()
		if onMessage != nil {
			onMessage(payload)
		}
	}
}

// rawText маркирует строку как WS text-фрейм при отправке через Send.
type rawText string

func (m *WSConnectionManager) pingPump() {
	ticker := time.NewTicker(m.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.closeChan:
			return
		case <-ticker.C:
			if m.GetState() != WSStateConnected {
				return
			}

			m.connMu.RLock()
			conn := m.conn
			m.connMu.RUnlock()
			if conn == nil {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(m.config.PongTimeout))

			var err error
			if m.config.AppPingPayload != nil {
				err = conn.WriteMessage(websocket.TextMessage, m.config.AppPingPayload)
			} else {
				err = conn.WriteMessage(websocket.PingMessage, nil)
			}
			if err != nil {
				log.Printf("[%s] ping error: %v", m.name, err)
				m.handleDisconnect(err)
				return
			}
		}
	}
}

func (m *WSConnectionManager) handleDisconnect(err error) {
	select {
	case <-m.closeChan:
		return
	default:
	}

	state := m.GetState()
	if state == WSStateReconnecting {
		return
	}
	atomic.StoreInt32(&m.state, int32(WSStateReconnecting))

	m.connMu.Lock()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.connMu.Unlock()

	m.callbackMu.RLock()
	onDisconnect := m.onDisconnect
	m.callbackMu.RUnlock()
	if onDisconnect != nil {
		onDisconnect(err)
	}
	if err != nil {
		log.Printf("[%s] websocket disconnected: %v", m.name, err)
	}

	go m.reconnectLoop()
}

func (m *WSConnectionManager) reconnectLoop() {
	b := &backoff.Backoff{
		Min:    m.config.InitialDelay,
		Max:    m.config.MaxDelay,
		Factor: 2,
		Jitter: true,
	}

	for {
		select {
		case <-m.closeChan:
			return
		default:
		}

		retryCount := atomic.AddInt32(&m.retryCount, 1)
		if m.config.MaxRetries > 0 && int(retryCount) > m.config.MaxRetries {
			log.Printf("[%s] max reconnect attempts (%d) reached", m.name, m.config.MaxRetries)
			atomic.StoreInt32(&m.state, int32(WSStateError))
			return
		}

		delay := b.Duration()
		log.Printf("[%s] reconnecting in %v (attempt %d)", m.name, delay, retryCount)

		select {
		case <-m.closeChan:
			return
		case <-time.After(delay):
		}

		if err := m.dial(); err != nil {
			log.Printf("[%s] reconnect failed: %v", m.name, err)
			continue
		}

		atomic.StoreInt32(&m.state, int32(WSStateConnected))
		atomic.StoreInt32(&m.retryCount, 0)
		b.Reset()

		m.callbackMu.RLock()
		onConnect := m.onConnect
		m.callbackMu.RUnlock()
		if onConnect != nil {
			onConnect()
		}

		log.Printf("[%s] websocket reconnected", m.name)

		go m.readPump()
		go m.pingPump()
		return
	}
}

// Send отправляет сообщение. Строки типа rawText отправляются как text-фрейм без JSON-кодирования.
func (m *WSConnectionManager) Send(msg interface{}) error {
	if m.GetState() != WSStateConnected {
		return fmt.Errorf("not connected (state: %s)", m.GetState())
	}

	m.connMu.RLock()
	conn := m.conn
	m.connMu.RUnlock()
	if conn == nil {
		return fmt.Errorf("no connection")
	}

	if text, ok := msg.(rawText); ok {
		return conn.WriteMessage(websocket.TextMessage, []byte(text))
	}
	return conn.WriteJSON(msg)
}

func (m *WSConnectionManager) Close() error {
	m.closeOnce.Do(func() { close(m.closeChan) })
	atomic.StoreInt32(&m.state, int32(WSStateDisconnected))

	m.connMu.Lock()
	defer m.connMu.Unlock()
	if m.conn != nil {
		err := m.conn.Close()
		m.conn = nil
		return err
	}
	return nil
}

func (m *WSConnectionManager) GetRetryCount() int { return int(atomic.LoadInt32(&m.retryCount)) }
