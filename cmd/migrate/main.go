package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"fieldcapture/internal/config"
	"fieldcapture/internal/logger"
	"fieldcapture/internal/model"
	"fieldcapture/internal/repository/filesystem"
	"fieldcapture/internal/repository/sqlite"
)

func main() {
	dataDir := flag.String("data", "data/photos", "Filesystem backend root to read from")
	dbPath := flag.String("db", "data/photos.db", "Database path to write to")
	flag.Parse()

	fmt.Printf("Migrating photos from %s to database %s\n", *dataDir, *dbPath)

	cfg := config.Default()
	cfg.DataDirectory = *dataDir
	cfg.DatabasePath = *dbPath
	quiet := logger.Discard()

	source, err := filesystem.New(cfg, quiet)
	if err != nil {
		log.Fatalf("Failed to open photo directory: %v", err)
	}

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	// Images were already compressed on capture, so they are copied as-is.
	target := sqlite.NewPhotoRepository(db, cfg, nil, quiet)
	defer target.Close()

	ctx := context.Background()
	photos, err := source.GetAll(ctx)
	if err != nil {
		log.Fatalf("Failed to list photos: %v", err)
	}
	if len(photos) == 0 {
		fmt.Println("No photos found to migrate")
		return
	}

	migrated, skipped := 0, 0
	for _, p := range photos {
		data, err := source.ReadImage(ctx, p.ID)
		if err != nil {
			log.Printf("⚠️  Skipping %s: %v", p.ID, err)
			skipped++
			continue
		}
		record := model.Photo{
			ID:        p.ID,
			Barcode:   p.Barcode,
			ImageData: data,
			Timestamp: p.Timestamp,
			FileName:  p.FileName,
		}
		if _, err := target.Save(ctx, &record); err != nil {
			log.Printf("⚠️  Failed to insert %s: %v", p.ID, err)
			skipped++
			continue
		}
		migrated++
	}

	fmt.Printf("✅ Successfully migrated %d photos to database\n", migrated)
	if skipped > 0 {
		fmt.Printf("⚠️  Skipped %d photos (missing files or errors)\n", skipped)
	}

	all, err := target.GetAll(ctx)
	if err == nil {
		stats := model.NewPhotoStats(all)
		fmt.Printf("\n📊 Database Statistics:\n")
		fmt.Printf("   Total photos: %d\n", stats.TotalPhotos)
		fmt.Printf("   Total size: %d bytes\n", stats.TotalSizeBytes)
		fmt.Printf("   Per barcode:\n")
		for barcode, count := range stats.PerBarcode {
			fmt.Printf("      - %s: %d photos\n", barcode, count)
		}
	}
}
