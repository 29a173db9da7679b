package handler

import (
	"errors"
	"net/http"

	"fieldcapture/internal/logger"
	"fieldcapture/internal/service"
	"fieldcapture/internal/service/scan"

	"github.com/gorilla/websocket"
)

// Upgrader upgrades HTTP connections to WebSocket; CheckOrigin allows all origins.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ScanWebsocketHandler drives a capture shell's camera and decoder over the socket
// until the shell disconnects. Only one scanning session runs at a time.
func ScanWebsocketHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}
		defer connection.Close()

		device := scan.NewRemoteDevice(connection, logger)
		go device.Listen()

		logger.Info("Capture device connected from %s", r.RemoteAddr)
		err = manager.GetScanService().Serve(r.Context(), device)
		switch {
		case errors.Is(err, scan.ErrDeviceBusy):
			logger.Warning("Rejected capture device %s: %v", r.RemoteAddr, err)
		case err != nil:
			logger.Error("Scanning session ended with error: %v", err)
		default:
			logger.Info("Capture device disconnected")
		}
	}
}

// ViewWebsocketHandler handles viewer connections over WebSocket and
// registers them in the HubService to receive broadcast events.
func ViewWebsocketHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}

		manager.GetWebsocketService().Register(connection)
		defer manager.GetWebsocketService().Unregister(connection)

		logger.Info("Viewer connected")

		for {
			_, _, err := connection.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Info("Viewer disconnected normally")
				} else {
					logger.Warning("Viewer disconnected: %v", err)
				}
				break
			}
		}
	}
}
