package websocket

import (
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"tradejournal/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SyncStatusMessage - сообщение об итоге цикла синхронизации счета.
// Уходит только клиентам владельца счета.
type SyncStatusMessage struct {
	Type       string    `json:"type"` // всегда "syncStatus"
	Status     string    `json:"status"`
	Message    string    `json:"message"`
	LastSyncAt time.Time `json:"last_sync_at"`
}

// targetedMessage - сериализованное сообщение с адресатом
type targetedMessage struct {
	userID int
	data   []byte
}

// Hub управляет WebSocket соединениями личного кабинета
//
// Назначение:
// Доставляет результаты синхронизации на frontend без polling'а.
// Каждый клиент привязан к пользователю; сообщение о счете видит
// только его владелец.
//
// Использование:
//  1. hub := NewHub(logger)
//  2. go hub.Run()
//  3. hub.BroadcastSyncStatus(userID, status, message, at)
type Hub struct {
	// Зарегистрированные клиенты
	clients map[*Client]bool

	broadcast  chan targetedMessage
	register   chan *Client
	unregister chan *Client
	stop       chan struct{}
	stopOnce   sync.Once

	mu sync.RWMutex

	logger *utils.Logger
}

// NewHub создает новый Hub
func NewHub(logger *utils.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan targetedMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		logger:     logger.WithComponent("websocket"),
	}
}

// Run запускает главный цикл Hub.
// Должен запускаться в отдельной горутине: go hub.Run()
func (h *Hub) Run() {
	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("ws client connected",
				utils.UserID(client.userID),
				utils.Int("total_clients", total),
			)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("ws client disconnected", utils.Int("total_clients", total))

		case msg := <-h.broadcast:
			// Список адресатов собирается под коротким RLock,
			// отправка идет без блокировки
			h.mu.RLock()
			targets := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				if client.userID == msg.userID {
					targets = append(targets, client)
				}
			}
			h.mu.RUnlock()

			var toRemove []*Client
			for _, client := range targets {
				select {
				case client.send <- msg.data:
				default:
					// Клиент не вычитывает - отключаем
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
				h.logger.Warn("removed slow ws clients", utils.Int("removed", len(toRemove)))
			}
		}
	}
}

// Stop останавливает Hub и отключает всех клиентов
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
}

// BroadcastSyncStatus отправляет результат синхронизации клиентам
// пользователя. Реализует service.StatusBroadcaster.
func (h *Hub) BroadcastSyncStatus(userID int, status, message string, lastSyncAt time.Time) {
	data, err := json.Marshal(&SyncStatusMessage{
		Type:       "syncStatus",
		Status:     status,
		Message:    message,
		LastSyncAt: lastSyncAt,
	})
	if err != nil {
		h.logger.Error("failed to marshal sync status message", utils.Err(err))
		return
	}

	select {
	case h.broadcast <- targetedMessage{userID: userID, data: data}:
	default:
		// Канал забит - сообщение не критично, пользователь увидит
		// статус при следующем запросе
		h.logger.Warn("ws broadcast queue full, dropping message", utils.UserID(userID))
	}
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
