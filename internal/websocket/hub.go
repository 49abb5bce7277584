package websocket

import (
	"bytes"
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"

	"fundingarb/internal/models"
)

// jsonBufferPool убирает аллокации буферов при каждом Broadcast.
var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}

// byteSlicePool переиспользует срезы байт для готовых сообщений broadcast-канала.
var byteSlicePool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, 0, 512)
		return &b
	},
}

// Hub управляет всеми активными WebSocket соединениями
//
// Назначение:
// Центральный менеджер для broadcast сообщений всем подключенным клиентам.
// Обеспечивает real-time обновления данных на frontend без необходимости polling.
//
// Типы сообщений:
// - opportunity: изменение состояния арбитражной возможности (спред, статус)
// - notification: новое уведомление о событии жизненного цикла позиции
// - balanceUpdate: обновление баланса биржи
// - statsUpdate: обновление статистики
//
// Использование:
// 1. Создать hub: hub := NewHub()
// 2. Запустить в горутине: go hub.Run()
// 3. Отправлять сообщения: hub.BroadcastOpportunity(op)
type Hub struct {
	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	stop       chan struct{}

	dropped int64

	mu sync.RWMutex
}

// NewHub создает новый Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
	}
}

// Run запускает главный цикл Hub
//
// Должен запускаться в отдельной горутине: go hub.Run()
// Обрабатывает регистрацию, отмену регистрации и broadcast до вызова Stop().
func (h *Hub) Run() {
	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("Client connected. Total clients: %d", len(h.clients))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			log.Printf("Client disconnected. Total clients: %d", len(h.clients))

		case message := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			var toRemove []*Client
			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					toRemove = append(toRemove, client)
				}
			}

			if len(toRemove) > 0 {
				h.mu.Lock()
				for _, client := range toRemove {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
				}
				h.mu.Unlock()
				log.Printf("Removed %d slow clients. Total clients: %d", len(toRemove), len(h.clients))
			}
		}
	}
}

// Stop останавливает главный цикл Hub и закрывает все клиентские соединения.
func (h *Hub) Stop() {
	close(h.stop)
}

// DroppedMessages возвращает число сообщений, отброшенных из-за полного broadcast-канала.
func (h *Hub) DroppedMessages() int64 {
	return atomic.LoadInt64(&h.dropped)
}

// Broadcast отправляет сообщение всем подключенным клиентам.
// Сериализация идет через sync.Pool буфер; если broadcast-канал полон,
// сообщение отбрасывается не блокируя вызывающего (счетчик DroppedMessages растет).
func (h *Hub) Broadcast(message interface{}) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	if err := json.NewEncoder(buf).Encode(message); err != nil {
		log.Printf("Error marshaling broadcast message: %v", err)
		jsonBufferPool.Put(buf)
		return
	}

	data := buf.Bytes()
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}

	msgCopy := make([]byte, len(data))
	copy(msgCopy, data)
	jsonBufferPool.Put(buf)

	select {
	case h.broadcast <- msgCopy:
	default:
		atomic.AddInt64(&h.dropped, 1)
	}
}

// BroadcastRaw отправляет уже сериализованные данные всем клиентам без повторной сериализации.
func (h *Hub) BroadcastRaw(data []byte) {
	msgCopy := make([]byte, len(data))
	copy(msgCopy, data)

	select {
	case h.broadcast <- msgCopy:
	default:
		atomic.AddInt64(&h.dropped, 1)
	}
}

// BroadcastOpportunity отправляет изменение состояния арбитражной возможности.
func (h *Hub) BroadcastOpportunity(op *models.ArbitrageOpportunity) {
	h.Broadcast(NewOpportunityMessage(op))
}

// BroadcastNotification отправляет новое уведомление.
func (h *Hub) BroadcastNotification(notification *models.Notification) {
	h.Broadcast(NewNotificationMessage(notification))
}

// BroadcastBalanceUpdate отправляет обновление баланса биржи.
func (h *Hub) BroadcastBalanceUpdate(exchange string, balance float64) {
	h.Broadcast(NewBalanceUpdateMessage(exchange, balance))
}

// BroadcastStatsUpdate отправляет обновление статистики.
func (h *Hub) BroadcastStatsUpdate(stats *models.Stats) {
	h.Broadcast(NewStatsUpdateMessage(stats))
}

// BroadcastAllBalances отправляет балансы всех подключенных бирж одним сообщением,
// используется при начальной загрузке UI и после периодического опроса всех бирж.
func (h *Hub) BroadcastAllBalances(balances map[string]float64) {
	h.Broadcast(NewAllBalancesUpdateMessage(balances))
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
