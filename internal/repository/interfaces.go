package repository

import (
	"context"
	"errors"

	"fieldcapture/internal/model"
)

// PhotoRepository is the storage backend contract shared by the database and filesystem stores.
// Reads are ordered newest first. GetByID returns nil, nil for an unknown id.
type PhotoRepository interface {
	// Create operations
	Save(ctx context.Context, photo *model.Photo) (*model.Photo, error)

	// Read operations
	GetAll(ctx context.Context) ([]model.Photo, error)
	GetByBarcode(ctx context.Context, barcode string) ([]model.Photo, error)
	GetByID(ctx context.Context, id string) (*model.Photo, error)
	ReadImage(ctx context.Context, id string) ([]byte, error)
	Usage(ctx context.Context) (*model.UsageSnapshot, error)

	// Delete operations
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error

	Close() error
}

// Compressor shrinks captures before they are stored inline.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
}

// ErrNotFound is returned by ReadImage when no record or image exists for the id.
var ErrNotFound = errors.New("photo not found")
