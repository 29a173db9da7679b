package filesystem

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fieldcapture/internal/config"
	"fieldcapture/internal/logger"
	"fieldcapture/internal/model"
	"fieldcapture/internal/repository"
)

func setupTestRepo(t *testing.T) (*PhotoRepository, func()) {
	tempDir, err := os.MkdirTemp("", "fs_repo_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	cfg := config.Default()
	cfg.DataDirectory = filepath.Join(tempDir, "photos")
	repo, err := New(cfg, logger.Discard())
	if err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("Failed to create repository: %v", err)
	}
	return repo, func() { os.RemoveAll(tempDir) }
}

func TestFilesystem_LayoutCreatedIdempotently(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	for _, dir := range []string{MetadataDir, ExportsDir} {
		if info, err := os.Stat(filepath.Join(repo.Root(), dir)); err != nil || !info.IsDir() {
			t.Errorf("Expected %s directory to exist", dir)
		}
	}

	cfg := config.Default()
	cfg.DataDirectory = repo.Root()
	if _, err := New(cfg, logger.Discard()); err != nil {
		t.Errorf("Re-opening an existing tree failed: %v", err)
	}
}

func TestFilesystem_SaveWritesImageAndMetadata(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	photo := model.NewPhoto("ABC123", []byte("jpeg"), time.Date(2024, 1, 15, 10, 30, 0, 123e6, time.UTC))
	saved, err := repo.Save(ctx, photo)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	expectedPath := filepath.Join(repo.Root(), "ABC123", photo.ID+".jpg")
	if saved.FilePath != expectedPath {
		t.Errorf("Expected file path %s, got %s", expectedPath, saved.FilePath)
	}
	if saved.ImageData != nil {
		t.Error("Expected stored record to carry no image bytes")
	}
	if saved.FileSize != 4 {
		t.Errorf("Expected file size 4, got %d", saved.FileSize)
	}

	meta, err := os.ReadFile(filepath.Join(repo.Root(), MetadataDir, photo.ID+".json"))
	if err != nil {
		t.Fatalf("Expected metadata file: %v", err)
	}
	if strings.Contains(string(meta), "imageData") {
		t.Errorf("Metadata must not contain image bytes: %s", meta)
	}

	got, err := repo.GetByID(ctx, photo.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !got.Timestamp.Equal(photo.Timestamp) {
		t.Errorf("Expected timestamp %v, got %v", photo.Timestamp, got.Timestamp)
	}

	data, err := repo.ReadImage(ctx, photo.ID)
	if err != nil {
		t.Fatalf("ReadImage failed: %v", err)
	}
	if string(data) != "jpeg" {
		t.Errorf("Expected image bytes, got %q", data)
	}
}

func TestFilesystem_ReservedBarcodeDirectories(t *testing.T) {
	tests := []struct {
		barcode  string
		expected string
	}{
		{"metadata", "_metadata"},
		{"exports", "_exports"},
		{"ABC/123", "ABC_123"},
		{"../etc", "___etc"},
		{"ABC123", "ABC123"},
	}

	for _, tt := range tests {
		if got := BarcodeDir(tt.barcode); got != tt.expected {
			t.Errorf("BarcodeDir(%q) = %q, expected %q", tt.barcode, got, tt.expected)
		}
	}
}

func TestFilesystem_ListingOrderAndFilter(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i, barcode := range []string{"ABC123", "XYZ789", "ABC123"} {
		p := model.NewPhoto(barcode, []byte("img"), base.Add(time.Duration(i)*time.Second))
		if _, err := repo.Save(ctx, p); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		ids = append(ids, p.ID)
	}

	all, err := repo.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 photos, got %d", len(all))
	}
	if all[0].ID != ids[2] || all[2].ID != ids[0] {
		t.Errorf("Expected newest first, got %s, %s, %s", all[0].ID, all[1].ID, all[2].ID)
	}

	abc, err := repo.GetByBarcode(ctx, "ABC123")
	if err != nil {
		t.Fatalf("GetByBarcode failed: %v", err)
	}
	if len(abc) != 2 {
		t.Errorf("Expected 2 ABC123 photos, got %d", len(abc))
	}
}

func TestFilesystem_CorruptMetadataSkipped(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	p := model.NewPhoto("ABC123", []byte("img"), time.Now())
	if _, err := repo.Save(ctx, p); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(repo.Root(), MetadataDir, "broken.json"), []byte("{not json"), 0644); err != nil {
		t.Fatalf("Failed to write corrupt metadata: %v", err)
	}

	all, err := repo.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(all) != 1 || all[0].ID != p.ID {
		t.Errorf("Expected only the valid record, got %+v", all)
	}
}

func TestFilesystem_DeleteRemovesEmptyBarcodeDir(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	first := model.NewPhoto("ABC123", []byte("one"), time.Now())
	second := model.NewPhoto("ABC123", []byte("two"), time.Now().Add(time.Second))
	for _, p := range []*model.Photo{first, second} {
		if _, err := repo.Save(ctx, p); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}
	barcodeDir := filepath.Join(repo.Root(), "ABC123")

	if err := repo.Delete(ctx, first.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := os.Stat(barcodeDir); err != nil {
		t.Error("Expected barcode directory to survive while photos remain")
	}

	if err := repo.Delete(ctx, second.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := os.Stat(barcodeDir); !os.IsNotExist(err) {
		t.Error("Expected empty barcode directory to be removed")
	}

	if err := repo.Delete(ctx, second.ID); err != nil {
		t.Errorf("Deleting a missing id should be a no-op, got %v", err)
	}
	if _, err := repo.ReadImage(ctx, second.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestFilesystem_DeleteAllKeepsExports(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := repo.Save(ctx, model.NewPhoto("ABC123", []byte("img"), time.Now())); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	exportFile := filepath.Join(repo.ExportsDirectory(), "barcode_photos_2024-01-15.json")
	if err := os.WriteFile(exportFile, []byte("{}"), 0644); err != nil {
		t.Fatalf("Failed to write export: %v", err)
	}

	if err := repo.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}

	all, err := repo.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("Expected no photos, got %d", len(all))
	}
	if _, err := os.Stat(exportFile); err != nil {
		t.Error("Expected export artifacts to survive DeleteAll")
	}
	if _, err := os.Stat(filepath.Join(repo.Root(), "ABC123")); !os.IsNotExist(err) {
		t.Error("Expected barcode directory to be removed")
	}

	// The store stays usable afterwards.
	if _, err := repo.Save(ctx, model.NewPhoto("XYZ789", []byte("img"), time.Now())); err != nil {
		t.Errorf("Save after DeleteAll failed: %v", err)
	}
}

func TestFilesystem_RejectsUnsafeIDs(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	photo := &model.Photo{ID: "../escape", Barcode: "ABC123", ImageData: []byte("x"), Timestamp: time.Now()}
	if _, err := repo.Save(context.Background(), photo); err == nil {
		t.Error("Expected unsafe id to be rejected")
	}
	if got, err := repo.GetByID(context.Background(), "../escape"); got != nil || err != nil {
		t.Errorf("Expected nil, nil for unsafe id, got %v, %v", got, err)
	}
}

func TestFilesystem_UsageWithQuota(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()
	repo.quota = 1000

	if _, err := repo.Save(context.Background(), model.NewPhoto("ABC123", make([]byte, 100), time.Now())); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	usage, err := repo.Usage(context.Background())
	if err != nil {
		t.Fatalf("Usage failed: %v", err)
	}
	if usage == nil {
		t.Fatal("Expected a usage snapshot")
	}
	if usage.UsedBytes < 100 {
		t.Errorf("Expected at least 100 used bytes, got %d", usage.UsedBytes)
	}
	if usage.UsedBytes+usage.AvailableBytes != 1000 {
		t.Errorf("Expected used+available to equal quota, got %d", usage.UsedBytes+usage.AvailableBytes)
	}
}

func TestFilesystem_DeleteAllLeavesForeignFiles(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	t.Log("Step 1: Place files the repository did not write")
	foreignFile := filepath.Join(repo.Root(), "photos.db")
	if err := os.WriteFile(foreignFile, []byte("sqlite"), 0644); err != nil {
		t.Fatalf("Failed to write foreign file: %v", err)
	}
	foreignDir := filepath.Join(repo.Root(), "notes")
	if err := os.MkdirAll(foreignDir, 0755); err != nil {
		t.Fatalf("Failed to create foreign dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(foreignDir, "readme.txt"), []byte("keep"), 0644); err != nil {
		t.Fatalf("Failed to write foreign file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(repo.Root(), MetadataDir, "broken.json"), []byte("{"), 0644); err != nil {
		t.Fatalf("Failed to write corrupt metadata: %v", err)
	}

	t.Log("Step 2: Save and clear")
	for _, barcode := range []string{"ABC123", "XYZ789"} {
		if _, err := repo.Save(ctx, model.NewPhoto(barcode, []byte("img"), time.Now())); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}
	if err := repo.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}

	t.Log("Step 3: Verify records are gone and foreign files survive")
	all, err := repo.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("Expected no photos, got %d", len(all))
	}
	for _, dir := range []string{"ABC123", "XYZ789"} {
		if _, err := os.Stat(filepath.Join(repo.Root(), dir)); !os.IsNotExist(err) {
			t.Errorf("Expected barcode directory %s to be removed", dir)
		}
	}
	if _, err := os.Stat(filepath.Join(repo.Root(), MetadataDir, "broken.json")); !os.IsNotExist(err) {
		t.Error("Expected corrupt metadata to be removed")
	}
	for _, path := range []string{foreignFile, filepath.Join(foreignDir, "readme.txt")} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("Expected %s to survive DeleteAll, got %v", path, err)
		}
	}
}

func TestFilesystem_ResaveUnderNewBarcodeLeavesNoOrphan(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	photo := model.NewPhoto("ABC123", []byte("first"), time.Now())
	if _, err := repo.Save(ctx, photo); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	oldImage := filepath.Join(repo.Root(), "ABC123", photo.ID+model.ImageExtension)

	t.Log("Step 1: Re-save the same id under another barcode")
	moved := *photo
	moved.Barcode = "XYZ789"
	moved.ImageData = []byte("second")
	saved, err := repo.Save(ctx, &moved)
	if err != nil {
		t.Fatalf("Re-save failed: %v", err)
	}
	if _, err := os.Stat(oldImage); !os.IsNotExist(err) {
		t.Error("Expected the previous image to be removed")
	}
	if _, err := os.Stat(filepath.Join(repo.Root(), "ABC123")); !os.IsNotExist(err) {
		t.Error("Expected the emptied barcode directory to be removed")
	}
	data, err := repo.ReadImage(ctx, photo.ID)
	if err != nil {
		t.Fatalf("ReadImage failed: %v", err)
	}
	if string(data) != "second" {
		t.Errorf("Expected second image, got %q", data)
	}

	t.Log("Step 2: Delete leaves nothing behind")
	if err := repo.Delete(ctx, photo.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := os.Stat(saved.FilePath); !os.IsNotExist(err) {
		t.Error("Expected image to be removed")
	}
	entries, err := os.ReadDir(repo.Root())
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, entry := range entries {
		if entry.Name() != MetadataDir && entry.Name() != ExportsDir {
			t.Errorf("Expected no leftover entry, got %s", entry.Name())
		}
	}
}

func TestFilesystem_FailedMetadataWriteRemovesImage(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	// A directory squatting on the metadata path makes the rename fail.
	photo := model.NewPhoto("ABC123", []byte("img"), time.Now())
	if err := os.MkdirAll(filepath.Join(repo.metadataPath(photo.ID), "blocker"), 0755); err != nil {
		t.Fatalf("Failed to block metadata path: %v", err)
	}

	if _, err := repo.Save(ctx, photo); err == nil {
		t.Fatal("Expected Save to fail")
	}
	if _, err := os.Stat(filepath.Join(repo.Root(), "ABC123", photo.ID+model.ImageExtension)); !os.IsNotExist(err) {
		t.Error("Expected the image to be removed after the metadata write failed")
	}
}
