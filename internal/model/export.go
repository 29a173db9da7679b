package model

import "time"

// ExportManifest is the JSON document written by an export.
type ExportManifest struct {
	AppInfo AppInfo       `json:"appInfo"`
	Summary ExportSummary `json:"summary"`
	Photos  []ExportPhoto `json:"photos"`
}

type AppInfo struct {
	Name       string    `json:"name"`
	Version    string    `json:"version"`
	ExportDate time.Time `json:"exportDate"`
}

type ExportSummary struct {
	TotalPhotos    int       `json:"totalPhotos"`
	UniqueBarcodes int       `json:"uniqueBarcodes"`
	DateRange      DateRange `json:"dateRange"`
}

type DateRange struct {
	From *time.Time `json:"from"`
	To   *time.Time `json:"to"`
}

// ExportPhoto is one manifest entry; ImageData is present only for database-backed stores.
type ExportPhoto struct {
	ID            string    `json:"id"`
	Barcode       string    `json:"barcode"`
	FileName      string    `json:"fileName"`
	Timestamp     time.Time `json:"timestamp"`
	FormattedDate string    `json:"formattedDate"`
	ImageData     []byte    `json:"imageData,omitempty"`
	FilePath      string    `json:"filePath,omitempty"`
}
