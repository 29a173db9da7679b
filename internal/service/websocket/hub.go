package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"fieldcapture/internal/logger"
	"fieldcapture/internal/model"

	"github.com/gorilla/websocket"
)

const (
	EventBarcodeConfirmed = "barcode_confirmed"
	EventPhotoAdded       = "photo_added"
	EventPhotoRemoved     = "photo_removed"
	EventPhotosCleared    = "photos_cleared"

	broadcastBuffer = 64
	writeTimeout    = 5 * time.Second
)

// Event is the JSON message pushed to every viewer.
type Event struct {
	Type    string       `json:"type"`
	Barcode string       `json:"barcode,omitempty"`
	Photo   *model.Photo `json:"photo,omitempty"`
	ID      string       `json:"id,omitempty"`
}

// HubService fans store and scanner events out to connected viewers.
type HubService struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mutex      sync.RWMutex
	logger     *logger.Logger
}

func NewHubService(logger *logger.Logger) *HubService {
	return &HubService{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run dispatches registrations and broadcasts until ctx is done, then closes every client.
func (h *HubService) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Viewer connected. Total: %d", total)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Viewer disconnected. Total: %d", total)

		case message := <-h.broadcast:
			h.send(message)
		}
	}
}

func (h *HubService) send(message []byte) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for client := range h.clients {
		client.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
			h.logger.Error("Error sending message: %v", err)
			delete(h.clients, client)
			client.Close()
		}
	}
}

// Register adds a viewer. After the hub has stopped the connection is closed instead.
func (h *HubService) Register(client *websocket.Conn) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

func (h *HubService) Unregister(client *websocket.Conn) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues an event for every viewer. Events are dropped when the queue is full.
func (h *HubService) Broadcast(event Event) {
	message, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to encode %s event: %v", event.Type, err)
		return
	}
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warning("Broadcast queue full, dropping %s event", event.Type)
	}
}

func (h *HubService) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
