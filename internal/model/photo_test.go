package model

import (
	"strings"
	"testing"
	"time"
)

func TestNewPhoto(t *testing.T) {
	at := time.Date(2024, 1, 15, 10, 30, 45, 123456789, time.FixedZone("CET", 3600))
	p := NewPhoto("ABC/123", []byte("img"), at)

	if !p.Timestamp.Equal(at.Truncate(time.Millisecond)) || p.Timestamp.Location() != time.UTC {
		t.Errorf("Expected UTC millisecond timestamp, got %v", p.Timestamp)
	}
	if !strings.HasPrefix(p.ID, "ABC_123_") {
		t.Errorf("Expected slugged id prefix, got %s", p.ID)
	}
	if p.FileName != "ABC_123_2024-01-15_09-30-45.jpg" {
		t.Errorf("Unexpected file name %s", p.FileName)
	}
	if p.FileSize != 3 {
		t.Errorf("Expected file size 3, got %d", p.FileSize)
	}

	other := NewPhoto("ABC/123", []byte("img"), at)
	if other.ID == p.ID {
		t.Error("Expected distinct ids for captures in the same millisecond")
	}
}

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"ABC123":     "ABC123",
		"a b":        "a_b",
		"../x":       "___x",
		"":           "_",
		"code-128_x": "code-128_x",
	}
	for in, expected := range tests {
		if got := Slug(in); got != expected {
			t.Errorf("Slug(%q) = %q, expected %q", in, got, expected)
		}
	}
}

func TestSortNewestFirst_TieBreak(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	photos := []Photo{
		{ID: "a", Timestamp: ts},
		{ID: "c", Timestamp: ts.Add(-time.Second)},
		{ID: "b", Timestamp: ts},
	}
	SortNewestFirst(photos)
	if photos[0].ID != "b" || photos[1].ID != "a" || photos[2].ID != "c" {
		t.Errorf("Unexpected order %s %s %s", photos[0].ID, photos[1].ID, photos[2].ID)
	}
}

func TestGroupByBarcode(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	photos := []Photo{
		{ID: "4", Barcode: "XYZ789", Timestamp: base.Add(3 * time.Second)},
		{ID: "3", Barcode: "ABC123", Timestamp: base.Add(2 * time.Second)},
		{ID: "2", Barcode: "ABC123", Timestamp: base.Add(time.Second)},
		{ID: "1", Barcode: "ABC123", Timestamp: base},
	}

	groups := GroupByBarcode(photos)
	if len(groups) != 2 {
		t.Fatalf("Expected 2 groups, got %d", len(groups))
	}
	if groups[0].Barcode != "XYZ789" || groups[1].Barcode != "ABC123" {
		t.Errorf("Expected groups ordered by latest capture, got %s, %s", groups[0].Barcode, groups[1].Barcode)
	}
	if groups[1].Count != 3 || !groups[1].Latest.Equal(base.Add(2*time.Second)) {
		t.Errorf("Unexpected ABC123 group %+v", groups[1])
	}
	if len(GroupByBarcode(nil)) != 0 {
		t.Error("Expected no groups for no photos")
	}
}

func TestNewUsageSnapshot(t *testing.T) {
	tests := []struct {
		used, available int64
		percentage      float64
	}{
		{25, 75, 25},
		{0, 0, 0},
		{-5, 10, 0},
		{10, -1, 100},
	}
	for _, tt := range tests {
		s := NewUsageSnapshot(tt.used, tt.available)
		if s.Percentage != tt.percentage {
			t.Errorf("NewUsageSnapshot(%d, %d) percentage = %f, expected %f", tt.used, tt.available, s.Percentage, tt.percentage)
		}
	}
}

func TestNewPhotoStats(t *testing.T) {
	stats := NewPhotoStats([]Photo{
		{Barcode: "A", FileSize: 10},
		{Barcode: "A", FileSize: 5},
		{Barcode: "B", FileSize: 1},
	})
	if stats.TotalPhotos != 3 || stats.TotalSizeBytes != 16 || stats.PerBarcode["A"] != 2 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}
