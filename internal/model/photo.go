package model

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// FileNameTimeLayout is used for human-facing download names.
	FileNameTimeLayout = "2006-01-02_15-04-05"
	// ImageExtension is the extension of every stored capture.
	ImageExtension = ".jpg"
)

// Photo represents one captured image attached to a barcode.
// Exactly one of ImageData (database backend) and FilePath (filesystem backend) is authoritative.
type Photo struct {
	ID        string    `json:"id"`
	Barcode   string    `json:"barcode"`
	ImageData []byte    `json:"imageData,omitempty"`
	FilePath  string    `json:"filePath,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	FileName  string    `json:"fileName"`
	FileSize  int64     `json:"fileSize,omitempty"`
}

// NewPhoto builds a record for a capture taken at the given instant.
func NewPhoto(barcode string, imageData []byte, at time.Time) *Photo {
	ts := at.UTC().Truncate(time.Millisecond)
	return &Photo{
		ID:        NewPhotoID(barcode, ts),
		Barcode:   barcode,
		ImageData: imageData,
		Timestamp: ts,
		FileName:  PhotoFileName(barcode, ts),
		FileSize:  int64(len(imageData)),
	}
}

// NewPhotoID returns "<slug>_<unix millis>_<random>".
func NewPhotoID(barcode string, ts time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%d_%s", Slug(barcode), ts.UnixMilli(), suffix)
}

// PhotoFileName derives the download name from barcode and timestamp.
func PhotoFileName(barcode string, ts time.Time) string {
	return fmt.Sprintf("%s_%s%s", Slug(barcode), ts.UTC().Format(FileNameTimeLayout), ImageExtension)
}

// Slug maps a barcode onto characters that are safe in file names.
func Slug(barcode string) string {
	var b strings.Builder
	b.Grow(len(barcode))
	for _, r := range barcode {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

// WithoutImage returns a copy that carries no inline image bytes.
func (p Photo) WithoutImage() Photo {
	p.ImageData = nil
	return p
}

// SortNewestFirst orders photos by timestamp descending, ties broken by id descending.
func SortNewestFirst(photos []Photo) {
	sort.SliceStable(photos, func(i, j int) bool {
		if !photos[i].Timestamp.Equal(photos[j].Timestamp) {
			return photos[i].Timestamp.After(photos[j].Timestamp)
		}
		return photos[i].ID > photos[j].ID
	})
}

// BarcodeGroup collects the photos taken for one barcode.
type BarcodeGroup struct {
	Barcode string    `json:"barcode"`
	Count   int       `json:"count"`
	Latest  time.Time `json:"latest"`
	Photos  []Photo   `json:"photos"`
}

// GroupByBarcode groups photos (assumed newest first) and orders groups by their latest capture.
func GroupByBarcode(photos []Photo) []BarcodeGroup {
	index := make(map[string]int)
	var groups []BarcodeGroup
	for _, p := range photos {
		i, ok := index[p.Barcode]
		if !ok {
			i = len(groups)
			index[p.Barcode] = i
			groups = append(groups, BarcodeGroup{Barcode: p.Barcode, Latest: p.Timestamp})
		}
		g := &groups[i]
		g.Photos = append(g.Photos, p)
		g.Count++
		if p.Timestamp.After(g.Latest) {
			g.Latest = p.Timestamp
		}
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Latest.After(groups[j].Latest)
	})
	return groups
}
