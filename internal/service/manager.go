package service

import (
	"fieldcapture/internal/logger"
	"fieldcapture/internal/service/photostore"
	"fieldcapture/internal/service/scan"
	"fieldcapture/internal/service/websocket"
)

// Manager bundles the services the HTTP layer works with.
type Manager struct {
	store            *photostore.Store
	scanService      *scan.Service
	websocketService *websocket.HubService
	backend          string
	logger           *logger.Logger
}

func NewManager(store *photostore.Store, scanService *scan.Service, websocketService *websocket.HubService, backend string, logger *logger.Logger) *Manager {
	return &Manager{
		store:            store,
		scanService:      scanService,
		websocketService: websocketService,
		backend:          backend,
		logger:           logger,
	}
}

// ViewerNotifier forwards store changes to the viewer hub.
func ViewerNotifier(hub *websocket.HubService) func(photostore.Change) {
	return func(c photostore.Change) {
		hub.Broadcast(websocket.Event{Type: string(c.Kind), Photo: c.Photo, ID: c.ID})
	}
}

func (m *Manager) GetStore() *photostore.Store {
	return m.store
}

func (m *Manager) GetScanService() *scan.Service {
	return m.scanService
}

func (m *Manager) GetWebsocketService() *websocket.HubService {
	return m.websocketService
}

// Backend names the storage backend chosen at startup.
func (m *Manager) Backend() string {
	return m.backend
}
