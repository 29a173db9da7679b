package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"fieldcapture/internal/model"
)

const (
	// DateLayout is the date part of an export file name.
	DateLayout = "2006-01-02"
	// FormattedDateLayout is the human-readable capture time in the manifest, always in UTC.
	FormattedDateLayout = "02.01.2006 15:04:05"
)

// ErrNoRecords is returned when there is nothing to export.
var ErrNoRecords = errors.New("no photos to export")

// Artifact is a finished export document.
type Artifact struct {
	FileName string
	Data     []byte
	Manifest *model.ExportManifest
}

// Sink receives export artifacts and returns where they ended up.
type Sink interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}

// Build assembles the manifest for the given records. Image bytes are only
// embedded when includeImages is set and the record carries them.
func Build(photos []model.Photo, app model.AppInfo, now time.Time, includeImages bool) *model.ExportManifest {
	manifest := &model.ExportManifest{
		AppInfo: app,
		Photos:  make([]model.ExportPhoto, 0, len(photos)),
	}
	manifest.AppInfo.ExportDate = now.UTC()

	barcodes := make(map[string]struct{})
	for _, p := range photos {
		barcodes[p.Barcode] = struct{}{}

		entry := model.ExportPhoto{
			ID:            p.ID,
			Barcode:       p.Barcode,
			FileName:      p.FileName,
			Timestamp:     p.Timestamp,
			FormattedDate: p.Timestamp.UTC().Format(FormattedDateLayout),
			FilePath:      p.FilePath,
		}
		if includeImages {
			entry.ImageData = p.ImageData
		}
		manifest.Photos = append(manifest.Photos, entry)

		ts := p.Timestamp
		if r := &manifest.Summary.DateRange; r.From == nil || ts.Before(*r.From) {
			r.From = &ts
		}
		if r := &manifest.Summary.DateRange; r.To == nil || ts.After(*r.To) {
			r.To = &ts
		}
	}

	manifest.Summary.TotalPhotos = len(photos)
	manifest.Summary.UniqueBarcodes = len(barcodes)
	return manifest
}

// FileName returns "<prefix>_<YYYY-MM-DD>.json" for the UTC date of now.
func FileName(prefix string, now time.Time) string {
	return fmt.Sprintf("%s_%s.json", prefix, now.UTC().Format(DateLayout))
}

// NewArtifact builds and encodes an export. It fails with ErrNoRecords on an empty set.
func NewArtifact(photos []model.Photo, app model.AppInfo, prefix string, now time.Time, includeImages bool) (*Artifact, error) {
	if len(photos) == 0 {
		return nil, ErrNoRecords
	}
	manifest := Build(photos, app, now, includeImages)
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode export: %w", err)
	}
	return &Artifact{
		FileName: FileName(prefix, now),
		Data:     data,
		Manifest: manifest,
	}, nil
}

// DirectorySink writes artifacts into a local directory.
type DirectorySink struct {
	dir string
}

func NewDirectorySink(dir string) *DirectorySink {
	return &DirectorySink{dir: dir}
}

// Save writes the artifact, replacing an export of the same name.
func (s *DirectorySink) Save(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if name == "" || filepath.Base(name) != name {
		return "", fmt.Errorf("invalid export name %q", name)
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	return path, nil
}
