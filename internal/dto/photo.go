package dto

import (
	"encoding/base64"
	"fmt"
	"strings"

	"fieldcapture/internal/model"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// AddPhotoRequest is the body of POST /api/photos. Image is base64, optionally as a data URI.
type AddPhotoRequest struct {
	Barcode string `json:"barcode" validate:"required,max=128"`
	Image   string `json:"image" validate:"required"`
}

// Validate checks the struct tags of the request.
func (r *AddPhotoRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

// DecodeImage returns the raw image bytes, stripping a "data:image/...;base64," prefix.
func (r *AddPhotoRequest) DecodeImage() ([]byte, error) {
	payload := strings.TrimSpace(r.Image)
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 || !strings.HasSuffix(payload[:comma], ";base64") {
			return nil, fmt.Errorf("unsupported data URI")
		}
		payload = payload[comma+1:]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image: %w", err)
	}
	return data, nil
}

// PhotosResponse lists records without image bytes.
type PhotosResponse struct {
	Photos []model.Photo `json:"photos"`
	Count  int           `json:"count"`
}

// NewPhotosResponse strips image bytes from every record.
func NewPhotosResponse(photos []model.Photo) PhotosResponse {
	listed := make([]model.Photo, 0, len(photos))
	for _, p := range photos {
		listed = append(listed, p.WithoutImage())
	}
	return PhotosResponse{Photos: listed, Count: len(listed)}
}

// GroupsResponse lists photos grouped by barcode.
type GroupsResponse struct {
	Groups []model.BarcodeGroup `json:"groups"`
	Count  int                  `json:"count"`
}

func NewGroupsResponse(groups []model.BarcodeGroup) GroupsResponse {
	out := make([]model.BarcodeGroup, 0, len(groups))
	for _, g := range groups {
		stripped := g
		stripped.Photos = make([]model.Photo, 0, len(g.Photos))
		for _, p := range g.Photos {
			stripped.Photos = append(stripped.Photos, p.WithoutImage())
		}
		out = append(out, stripped)
	}
	return GroupsResponse{Groups: out, Count: len(out)}
}

// StatusResponse describes the running instance.
type StatusResponse struct {
	App           string `json:"app"`
	Version       string `json:"version"`
	Backend       string `json:"backend"`
	Photos        int    `json:"photos"`
	Viewers       int    `json:"viewers"`
	Scanning      bool   `json:"scanning"`
	LastConfirmed string `json:"lastConfirmed,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
