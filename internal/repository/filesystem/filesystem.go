package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"fieldcapture/internal/config"
	"fieldcapture/internal/logger"
	"fieldcapture/internal/model"
	"fieldcapture/internal/platform"
	"fieldcapture/internal/repository"
)

const (
	MetadataDir = "metadata"
	ExportsDir  = "exports"

	timestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// metadata is the on-disk record; it never carries image bytes.
type metadata struct {
	ID        string `json:"id"`
	Barcode   string `json:"barcode"`
	FilePath  string `json:"filePath"`
	Timestamp string `json:"timestamp"`
	FileName  string `json:"fileName"`
	FileSize  int64  `json:"fileSize"`
}

// PhotoRepository implements repository.PhotoRepository on a directory tree:
// <root>/<barcode>/<id>.jpg for images and <root>/metadata/<id>.json for records.
type PhotoRepository struct {
	root   string
	quota  int64
	logger *logger.Logger
	mu     sync.RWMutex
}

// New creates the directory layout under cfg.DataDirectory. Safe to call on an existing tree.
func New(cfg *config.Config, logger *logger.Logger) (*PhotoRepository, error) {
	r := &PhotoRepository{
		root:   cfg.DataDirectory,
		quota:  cfg.StorageQuotaBytes,
		logger: logger,
	}
	for _, dir := range []string{r.root, r.metadataDir(), r.ExportsDirectory()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return r, nil
}

// Root returns the storage root.
func (r *PhotoRepository) Root() string {
	return r.root
}

// ExportsDirectory is where export artifacts are written.
func (r *PhotoRepository) ExportsDirectory() string {
	return filepath.Join(r.root, ExportsDir)
}

func (r *PhotoRepository) metadataDir() string {
	return filepath.Join(r.root, MetadataDir)
}

func (r *PhotoRepository) metadataPath(id string) string {
	return filepath.Join(r.metadataDir(), id+".json")
}

// BarcodeDir maps a barcode to its directory name, keeping clear of the reserved names.
func BarcodeDir(barcode string) string {
	dir := model.Slug(barcode)
	if dir == MetadataDir || dir == ExportsDir {
		return "_" + dir
	}
	return dir
}

func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}

// Save writes the image and its metadata, replacing any record with the same id.
func (r *PhotoRepository) Save(ctx context.Context, photo *model.Photo) (*model.Photo, error) {
	if !validID(photo.ID) {
		return nil, fmt.Errorf("failed to save photo: invalid id %q", photo.ID)
	}
	if len(photo.ImageData) == 0 {
		return nil, fmt.Errorf("failed to save photo %s: no image data", photo.ID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// The previous image may live under another barcode directory.
	var previous string
	if prior, err := r.readMetadata(r.metadataPath(photo.ID)); err == nil {
		previous = prior.FilePath
	}

	rel := filepath.Join(BarcodeDir(photo.Barcode), photo.ID+model.ImageExtension)
	imagePath := filepath.Join(r.root, rel)
	if err := os.MkdirAll(filepath.Dir(imagePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create barcode directory: %w", err)
	}
	if err := writeFileAtomic(imagePath, photo.ImageData); err != nil {
		return nil, fmt.Errorf("failed to write image: %w", err)
	}

	meta := metadata{
		ID:        photo.ID,
		Barcode:   photo.Barcode,
		FilePath:  filepath.ToSlash(rel),
		Timestamp: photo.Timestamp.UTC().Format(timestampLayout),
		FileName:  photo.FileName,
		FileSize:  int64(len(photo.ImageData)),
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err == nil {
		err = writeFileAtomic(r.metadataPath(photo.ID), data)
	}
	if err != nil {
		if imagePath != previous {
			removeImage(imagePath)
		}
		return nil, fmt.Errorf("failed to write metadata: %w", err)
	}
	if previous != "" && previous != imagePath {
		removeImage(previous)
	}

	stored := r.toPhoto(meta)
	stored.Timestamp = photo.Timestamp.UTC()
	return stored, nil
}

// GetAll lists every record from the metadata directory, newest first.
// Unreadable metadata files are skipped.
func (r *PhotoRepository) GetAll(ctx context.Context) ([]model.Photo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked(ctx, "")
}

// GetByBarcode lists the records of one barcode, newest first.
func (r *PhotoRepository) GetByBarcode(ctx context.Context, barcode string) ([]model.Photo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked(ctx, barcode)
}

func (r *PhotoRepository) listLocked(ctx context.Context, barcode string) ([]model.Photo, error) {
	entries, err := os.ReadDir(r.metadataDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list metadata: %w", err)
	}

	var photos []model.Photo
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		photo, err := r.readMetadata(filepath.Join(r.metadataDir(), entry.Name()))
		if err != nil {
			r.logger.Warning("Skipping unreadable metadata %s: %v", entry.Name(), err)
			continue
		}
		if barcode != "" && photo.Barcode != barcode {
			continue
		}
		photos = append(photos, *photo)
	}

	model.SortNewestFirst(photos)
	return photos, nil
}

// GetByID reads one record's metadata; nil, nil when the id is unknown.
func (r *PhotoRepository) GetByID(ctx context.Context, id string) (*model.Photo, error) {
	if !validID(id) {
		return nil, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	photo, err := r.readMetadata(r.metadataPath(id))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get photo: %w", err)
	}
	return photo, nil
}

// ReadImage loads the image file of a record.
func (r *PhotoRepository) ReadImage(ctx context.Context, id string) ([]byte, error) {
	photo, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if photo == nil {
		return nil, repository.ErrNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	data, err := os.ReadFile(photo.FilePath)
	if os.IsNotExist(err) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return data, nil
}

// Delete removes the image, its metadata and the barcode directory once empty.
// Unknown ids are not an error.
func (r *PhotoRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	photo, err := r.readMetadata(r.metadataPath(id))
	if err != nil && !os.IsNotExist(err) {
		r.logger.Warning("Deleting photo %s with unreadable metadata: %v", id, err)
	}
	if photo != nil {
		if err := removeImage(photo.FilePath); err != nil {
			return fmt.Errorf("failed to delete image: %w", err)
		}
	}
	if err := os.Remove(r.metadataPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete metadata: %w", err)
	}
	return nil
}

// DeleteAll removes every record listed under metadata/ with its image.
// Files the repository did not write, export artifacts included, are left alone.
func (r *PhotoRepository) DeleteAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := os.ReadDir(r.metadataDir())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to list metadata: %w", err)
	}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(r.metadataDir(), entry.Name())
		if photo, err := r.readMetadata(path); err == nil {
			if err := removeImage(photo.FilePath); err != nil {
				return fmt.Errorf("failed to delete image of %s: %w", photo.ID, err)
			}
		} else {
			r.logger.Warning("Deleting unreadable metadata %s: %v", entry.Name(), err)
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete metadata %s: %w", entry.Name(), err)
		}
	}
	if err := os.MkdirAll(r.metadataDir(), 0755); err != nil {
		return fmt.Errorf("failed to recreate metadata directory: %w", err)
	}
	return nil
}

// Usage sums the size of the tree and compares it with the quota or the volume's free space.
func (r *PhotoRepository) Usage(ctx context.Context) (*model.UsageSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var used int64
	err := filepath.WalkDir(r.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		used += info.Size()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to measure storage: %w", err)
	}

	if r.quota > 0 {
		return model.NewUsageSnapshot(used, r.quota-used), nil
	}
	available, ok := platform.DiskAvailable(r.root)
	if !ok {
		return nil, nil
	}
	return model.NewUsageSnapshot(used, available), nil
}

// Close is a no-op; files are closed after every operation.
func (r *PhotoRepository) Close() error {
	return nil
}

// removeImage deletes an image file and its barcode directory once empty.
func removeImage(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	// Fails harmlessly while other photos remain in the directory.
	os.Remove(filepath.Dir(path))
	return nil
}

func (r *PhotoRepository) readMetadata(path string) (*model.Photo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var meta metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("invalid metadata: %w", err)
	}
	if meta.ID == "" || meta.Barcode == "" || meta.FilePath == "" {
		return nil, fmt.Errorf("incomplete metadata")
	}
	photo := r.toPhoto(meta)
	if photo.Timestamp, err = parseTimestamp(meta.Timestamp); err != nil {
		return nil, fmt.Errorf("invalid timestamp: %w", err)
	}
	return photo, nil
}

func (r *PhotoRepository) toPhoto(meta metadata) *model.Photo {
	return &model.Photo{
		ID:       meta.ID,
		Barcode:  meta.Barcode,
		FilePath: filepath.Join(r.root, filepath.FromSlash(meta.FilePath)),
		FileName: meta.FileName,
		FileSize: meta.FileSize,
	}
}

func parseTimestamp(value string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}

// writeFileAtomic writes through a temp file in the target directory and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
