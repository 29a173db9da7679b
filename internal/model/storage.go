package model

// UsageSnapshot is a best-effort read of consumed and available storage.
type UsageSnapshot struct {
	UsedBytes      int64   `json:"usedBytes"`
	AvailableBytes int64   `json:"availableBytes"`
	Percentage     float64 `json:"percentage"`
}

// NewUsageSnapshot computes the percentage of used/(used+available).
func NewUsageSnapshot(used, available int64) *UsageSnapshot {
	if used < 0 {
		used = 0
	}
	if available < 0 {
		available = 0
	}
	snapshot := &UsageSnapshot{UsedBytes: used, AvailableBytes: available}
	if total := used + available; total > 0 {
		snapshot.Percentage = float64(used) / float64(total) * 100
	}
	return snapshot
}

// PhotoStats contains statistics about stored photos.
type PhotoStats struct {
	TotalPhotos    int            `json:"total_photos"`
	TotalSizeBytes int64          `json:"total_size_bytes"`
	PerBarcode     map[string]int `json:"per_barcode"`
}

// NewPhotoStats aggregates the given photos.
func NewPhotoStats(photos []Photo) *PhotoStats {
	stats := &PhotoStats{PerBarcode: make(map[string]int)}
	for _, p := range photos {
		stats.TotalPhotos++
		stats.TotalSizeBytes += p.FileSize
		stats.PerBarcode[p.Barcode]++
	}
	return stats
}
