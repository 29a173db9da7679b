package route

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"fieldcapture/internal/config"
	"fieldcapture/internal/handler"
	"fieldcapture/internal/logger"
	"fieldcapture/internal/middleware"
	"fieldcapture/internal/service"

	"github.com/gorilla/mux"
)

var logFiles = map[string]string{
	"info":    logger.InfoFile,
	"warning": logger.WarningFile,
	"error":   logger.ErrorFile,
}

// dynamicHTMLHandler serves /path as <static>/path.html if the file exists; otherwise 404.
func dynamicHTMLHandler(staticDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if path == "/" {
			path = "/index"
		}

		filePath := filepath.Join(staticDir, filepath.Clean("/"+path)+".html")
		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, filePath)
	}
}

// SetupRoutes registers the shell API, log and auth endpoints and static files,
// and wraps the router with the authentication middleware.
func SetupRoutes(manager *service.Manager, cfg *config.Config, logger *logger.Logger) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "OK")
	}).Methods("GET")
	r.HandleFunc("/api/status", handler.StatusHandler(manager, cfg, logger)).Methods("GET")

	// WebSockets
	r.HandleFunc("/api/scan", handler.ScanWebsocketHandler(manager, logger)).Methods("GET")
	r.HandleFunc("/api/view", handler.ViewWebsocketHandler(manager, logger)).Methods("GET")

	// Photos
	r.HandleFunc("/api/photos", handler.ListPhotosHandler(manager, logger)).Methods("GET")
	r.HandleFunc("/api/photos", handler.AddPhotoHandler(manager, logger)).Methods("POST")
	r.HandleFunc("/api/photos", handler.ClearPhotosHandler(manager, logger)).Methods("DELETE")
	r.HandleFunc("/api/photos/groups", handler.GroupsHandler(manager, logger)).Methods("GET")
	r.HandleFunc("/api/photos/export", handler.ExportHandler(manager, logger)).Methods("GET")
	r.HandleFunc("/api/photos/{id}/download", handler.DownloadPhotoHandler(manager, logger)).Methods("GET")
	r.HandleFunc("/api/photos/{id}", handler.DeletePhotoHandler(manager, logger)).Methods("DELETE")

	// Storage
	r.HandleFunc("/api/storage/usage", handler.UsageHandler(manager, logger)).Methods("GET")
	r.HandleFunc("/api/storage/stats", handler.StatsHandler(manager, logger)).Methods("GET")

	// Logs
	for name, file := range logFiles {
		r.HandleFunc("/logs/"+name, handler.ShowLogsHandler(cfg, file)).Methods("GET")
		r.HandleFunc("/logs/"+name+"/clear", handler.ClearLogsHandler(logger, file)).Methods("POST")
	}

	// Auth
	r.HandleFunc("/auth/login", handler.LoginHandler(cfg, logger)).Methods("POST")
	r.HandleFunc("/auth/logout", handler.LogoutHandler).Methods("GET", "POST")

	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticDirectory))))
	r.PathPrefix("/").HandlerFunc(dynamicHTMLHandler(cfg.StaticDirectory)).Methods("GET")

	return middleware.AuthMiddleware(cfg)(r)
}
