package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"fieldcapture/internal/config"
	"fieldcapture/internal/dto"
	"fieldcapture/internal/logger"
	"fieldcapture/internal/repository"
	"fieldcapture/internal/service"
	"fieldcapture/internal/service/export"
	"fieldcapture/internal/service/photostore"

	"github.com/gorilla/mux"
)

// MaxUploadBytes bounds the body of POST /api/photos (base64 inflates images by a third).
const MaxUploadBytes = 32 << 20

// AddPhotoHandler stores a capture posted as {barcode, image}.
func AddPhotoHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)

		var req dto.AddPhotoRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		image, err := req.DecodeImage()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		photo, err := manager.GetStore().AddPhoto(r.Context(), req.Barcode, image)
		switch {
		case errors.Is(err, photostore.ErrEmptyBarcode), errors.Is(err, photostore.ErrEmptyImage):
			writeError(w, http.StatusBadRequest, err.Error())
			return
		case err != nil:
			logger.Error("Error adding photo: %v", err)
			writeError(w, http.StatusInternalServerError, "Failed to save photo")
			return
		}

		writeJSON(w, http.StatusCreated, photo.WithoutImage(), logger)
	}
}

// ListPhotosHandler returns every record, or those of ?barcode=, newest first.
func ListPhotosHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store := manager.GetStore()
		photos := store.ListAll()
		if barcode := r.URL.Query().Get("barcode"); barcode != "" {
			photos = store.ListByBarcode(barcode)
		}
		writeJSON(w, http.StatusOK, dto.NewPhotosResponse(photos), logger)
	}
}

// GroupsHandler returns the records grouped by barcode.
func GroupsHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, dto.NewGroupsResponse(manager.GetStore().Groups()), logger)
	}
}

// DownloadPhotoHandler serves the image of one record as an attachment.
func DownloadPhotoHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		fileName, data, err := manager.GetStore().Download(r.Context(), id)
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Photo not found")
			return
		}
		if err != nil {
			logger.Error("Error reading photo %s: %v", id, err)
			writeError(w, http.StatusInternalServerError, "Failed to read photo")
			return
		}

		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
		w.Header().Set("Content-Length", fmt.Sprint(len(data)))
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}

// DeletePhotoHandler removes one record. Unknown ids succeed.
func DeletePhotoHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if err := manager.GetStore().RemovePhoto(r.Context(), id); err != nil {
			logger.Error("Error deleting photo %s: %v", id, err)
			writeError(w, http.StatusInternalServerError, "Failed to delete photo")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ClearPhotosHandler deletes every record.
func ClearPhotosHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := manager.GetStore().ClearAll(r.Context()); err != nil {
			logger.Error("Error clearing photos: %v", err)
			writeError(w, http.StatusInternalServerError, "Failed to clear photos")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ExportHandler builds the export document, saves it through the sink and returns it as an attachment.
func ExportHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		artifact, location, err := manager.GetStore().ExportSnapshot(r.Context())
		if errors.Is(err, export.ErrNoRecords) {
			writeError(w, http.StatusNotFound, "No photos to export")
			return
		}
		if err != nil {
			logger.Error("Error exporting photos: %v", err)
			writeError(w, http.StatusInternalServerError, "Failed to export photos")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.FileName))
		if location != "" {
			w.Header().Set("X-Export-Location", location)
		}
		w.WriteHeader(http.StatusOK)
		w.Write(artifact.Data)
	}
}

// UsageHandler returns the last usage snapshot, or null when it is unknown.
func UsageHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, manager.GetStore().Usage(), logger)
	}
}

// StatsHandler returns counts and sizes over all records.
func StatsHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, manager.GetStore().Stats(), logger)
	}
}

// StatusHandler describes the running instance.
func StatusHandler(manager *service.Manager, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := dto.StatusResponse{
			App:           cfg.AppName,
			Version:       cfg.AppVersion,
			Backend:       manager.Backend(),
			Photos:        len(manager.GetStore().ListAll()),
			Viewers:       manager.GetWebsocketService().GetClientCount(),
			Scanning:      manager.GetScanService().Active(),
			LastConfirmed: manager.GetScanService().LastConfirmed(),
		}
		writeJSON(w, http.StatusOK, status, logger)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}, logger *logger.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(dto.ErrorResponse{Error: message})
}
