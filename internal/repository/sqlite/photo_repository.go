package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"fieldcapture/internal/config"
	"fieldcapture/internal/logger"
	"fieldcapture/internal/model"
	"fieldcapture/internal/platform"
	"fieldcapture/internal/repository"
)

const (
	photoColumns = `id, barcode, image_data, file_path, timestamp, file_name, file_size`
	// listColumns leaves image bytes out of listings; ReadImage loads them on demand.
	listColumns  = `id, barcode, NULL, file_path, timestamp, file_name, file_size`
)

// PhotoRepository implements repository.PhotoRepository for SQLite. Images are stored inline.
type PhotoRepository struct {
	db         *DB
	compressor repository.Compressor
	quota      int64
	logger     *logger.Logger
}

// NewPhotoRepository creates a new SQLite photo repository. compressor may be nil.
func NewPhotoRepository(db *DB, cfg *config.Config, compressor repository.Compressor, logger *logger.Logger) *PhotoRepository {
	return &PhotoRepository{
		db:         db,
		compressor: compressor,
		quota:      cfg.StorageQuotaBytes,
		logger:     logger,
	}
}

// Save inserts or replaces a photo record keyed by id and returns the stored form.
func (r *PhotoRepository) Save(ctx context.Context, photo *model.Photo) (*model.Photo, error) {
	stored := *photo
	stored.FilePath = ""
	stored.ImageData = r.compress(photo.ImageData)
	stored.FileSize = int64(len(stored.ImageData))

	r.db.Lock()
	defer r.db.Unlock()

	_, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO photos (id, barcode, image_data, file_path, timestamp, file_name, file_size)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			barcode = excluded.barcode,
			image_data = excluded.image_data,
			file_path = excluded.file_path,
			timestamp = excluded.timestamp,
			file_name = excluded.file_name,
			file_size = excluded.file_size
	`, stored.ID, stored.Barcode, stored.ImageData, stored.FilePath, stored.Timestamp.UTC(), stored.FileName, stored.FileSize)
	if err != nil {
		return nil, fmt.Errorf("failed to save photo: %w", err)
	}

	return &stored, nil
}

func (r *PhotoRepository) compress(data []byte) []byte {
	if r.compressor == nil || len(data) == 0 {
		return data
	}
	out, err := r.compressor.Compress(data)
	if err != nil || len(out) == 0 {
		if err != nil {
			r.logger.Warning("Image compression failed, storing original: %v", err)
		}
		return data
	}
	return out
}

// GetAll retrieves every photo without image bytes, newest first.
func (r *PhotoRepository) GetAll(ctx context.Context) ([]model.Photo, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT `+listColumns+`
		FROM photos
		ORDER BY timestamp DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query photos: %w", err)
	}
	return scanPhotos(rows)
}

// GetByBarcode retrieves the photos of one barcode without image bytes, newest first.
func (r *PhotoRepository) GetByBarcode(ctx context.Context, barcode string) ([]model.Photo, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT `+listColumns+`
		FROM photos
		WHERE barcode = ?
		ORDER BY timestamp DESC, id DESC
	`, barcode)
	if err != nil {
		return nil, fmt.Errorf("failed to query photos: %w", err)
	}
	return scanPhotos(rows)
}

// GetByID retrieves a photo by its ID.
func (r *PhotoRepository) GetByID(ctx context.Context, id string) (*model.Photo, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	row := r.db.Conn().QueryRowContext(ctx, `SELECT `+photoColumns+` FROM photos WHERE id = ?`, id)
	photo, err := scanPhoto(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get photo: %w", err)
	}
	return photo, nil
}

// ReadImage returns the stored image bytes.
func (r *PhotoRepository) ReadImage(ctx context.Context, id string) ([]byte, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var data []byte
	err := r.db.Conn().QueryRowContext(ctx, `SELECT image_data FROM photos WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows || (err == nil && len(data) == 0) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return data, nil
}

// Usage reports the database size against the quota, or against free disk space when no quota is set.
func (r *PhotoRepository) Usage(ctx context.Context) (*model.UsageSnapshot, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	used, err := r.db.SizeBytes(ctx)
	if err != nil {
		return nil, err
	}

	if r.quota > 0 {
		return model.NewUsageSnapshot(used, r.quota-used), nil
	}
	available, ok := platform.DiskAvailable(r.db.Path())
	if !ok {
		return nil, nil
	}
	return model.NewUsageSnapshot(used, available), nil
}

// Delete removes a photo by its ID. Unknown ids are not an error.
func (r *PhotoRepository) Delete(ctx context.Context, id string) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().ExecContext(ctx, `DELETE FROM photos WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete photo: %w", err)
	}
	return nil
}

// DeleteAll removes all photos.
func (r *PhotoRepository) DeleteAll(ctx context.Context) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().ExecContext(ctx, `DELETE FROM photos`); err != nil {
		return fmt.Errorf("failed to delete photos: %w", err)
	}
	if err := r.db.Compact(ctx); err != nil {
		r.logger.Warning("Could not compact database after clear: %v", err)
	}
	return nil
}

// Close closes the underlying database.
func (r *PhotoRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPhoto(row rowScanner) (*model.Photo, error) {
	var p model.Photo
	if err := row.Scan(&p.ID, &p.Barcode, &p.ImageData, &p.FilePath, &p.Timestamp, &p.FileName, &p.FileSize); err != nil {
		return nil, err
	}
	p.Timestamp = p.Timestamp.UTC()
	return &p, nil
}

func scanPhotos(rows *sql.Rows) ([]model.Photo, error) {
	defer rows.Close()

	var photos []model.Photo
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan photo: %w", err)
		}
		photos = append(photos, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate photos: %w", err)
	}
	return photos, nil
}
