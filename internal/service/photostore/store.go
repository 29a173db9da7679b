package photostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"fieldcapture/internal/config"
	"fieldcapture/internal/logger"
	"fieldcapture/internal/model"
	"fieldcapture/internal/repository"
	"fieldcapture/internal/service/export"
)

var (
	ErrEmptyBarcode = errors.New("barcode is required")
	ErrEmptyImage   = errors.New("image data is required")
)

// PersistenceError wraps a backend failure. The cache is left as it was.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ExportError reports that an export could not be produced or delivered.
type ExportError struct {
	Err error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export failed: %v", e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// ChangeKind names a store mutation.
type ChangeKind string

const (
	PhotoAdded    ChangeKind = "photo_added"
	PhotoRemoved  ChangeKind = "photo_removed"
	PhotosCleared ChangeKind = "photos_cleared"
)

// Change describes one successful mutation. Photo never carries image bytes.
type Change struct {
	Kind  ChangeKind
	Photo *model.Photo
	ID    string
}

// Stamper composites a capture timestamp onto an image.
type Stamper interface {
	Stamp(img []byte, at time.Time) ([]byte, error)
}

type Option func(*Store)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithListener registers a callback invoked after every successful mutation.
func WithListener(fn func(Change)) Option {
	return func(s *Store) {
		s.listeners = append(s.listeners, fn)
	}
}

// WithSink sets where export artifacts are delivered.
func WithSink(sink export.Sink) Option {
	return func(s *Store) {
		s.sink = sink
	}
}

// WithStamper overlays the capture time on images before they are stored.
func WithStamper(stamper Stamper) Option {
	return func(s *Store) {
		s.stamper = stamper
	}
}

// Store is the photo record façade over one storage backend. It keeps a
// newest-first cache of records, without image bytes, that is reloaded from
// the backend after each mutation.
type Store struct {
	repo      repository.PhotoRepository
	sink      export.Sink
	stamper   Stamper
	listeners []func(Change)
	app       model.AppInfo
	prefix    string
	now       func() time.Time
	logger    *logger.Logger

	opMu sync.Mutex // serializes mutations

	mu     sync.RWMutex
	photos []model.Photo
	usage  *model.UsageSnapshot
}

// New creates a store over repo. Call Open before use.
func New(repo repository.PhotoRepository, cfg *config.Config, logger *logger.Logger, opts ...Option) *Store {
	s := &Store{
		repo:   repo,
		app:    model.AppInfo{Name: cfg.AppName, Version: cfg.AppVersion},
		prefix: cfg.ExportPrefix,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open loads the cache from the backend.
func (s *Store) Open(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.refreshLocked(ctx); err != nil {
		return &PersistenceError{Op: "load photos", Err: err}
	}
	s.logger.Info("Photo store opened with %d photo(s)", len(s.ListAll()))
	return nil
}

// Refresh reloads the cache from the backend.
func (s *Store) Refresh(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.refreshLocked(ctx); err != nil {
		return &PersistenceError{Op: "load photos", Err: err}
	}
	return nil
}

func (s *Store) refreshLocked(ctx context.Context) error {
	photos, err := s.repo.GetAll(ctx)
	if err != nil {
		return err
	}
	for i := range photos {
		photos[i].ImageData = nil
	}
	model.SortNewestFirst(photos)
	usage := s.readUsage(ctx)

	s.mu.Lock()
	s.photos = photos
	s.usage = usage
	s.mu.Unlock()
	return nil
}

func (s *Store) readUsage(ctx context.Context) *model.UsageSnapshot {
	usage, err := s.repo.Usage(ctx)
	if err != nil {
		s.logger.Warning("Could not read storage usage: %v", err)
		return nil
	}
	return usage
}

// AddPhoto stores a capture for barcode and returns the record as the backend normalized it.
func (s *Store) AddPhoto(ctx context.Context, barcode string, image []byte) (*model.Photo, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return nil, ErrEmptyBarcode
	}
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	at := s.now()
	if s.stamper != nil {
		if stamped, err := s.stamper.Stamp(image, at); err != nil {
			s.logger.Warning("Could not stamp capture for %s, storing as received: %v", barcode, err)
		} else {
			image = stamped
		}
	}

	photo := model.NewPhoto(barcode, image, at)
	saved, err := s.repo.Save(ctx, photo)
	if err != nil {
		s.logger.Error("Failed to save photo for %s: %v", barcode, err)
		return nil, &PersistenceError{Op: "save photo", Err: err}
	}

	if err := s.refreshLocked(ctx); err != nil {
		s.logger.Warning("Reload after save failed, updating cache locally: %v", err)
		s.mu.Lock()
		s.photos = append([]model.Photo{saved.WithoutImage()}, s.photos...)
		model.SortNewestFirst(s.photos)
		s.mu.Unlock()
	}

	s.logger.Info("Saved photo %s for barcode %s (%d bytes)", saved.ID, saved.Barcode, saved.FileSize)
	listed := saved.WithoutImage()
	s.emit(Change{Kind: PhotoAdded, Photo: &listed, ID: saved.ID})
	return saved, nil
}

// RemovePhoto deletes one record. Unknown ids are a no-op.
func (s *Store) RemovePhoto(ctx context.Context, id string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	existed := s.cached(id) != nil
	if err := s.repo.Delete(ctx, id); err != nil {
		s.logger.Error("Failed to delete photo %s: %v", id, err)
		return &PersistenceError{Op: "delete photo", Err: err}
	}

	if err := s.refreshLocked(ctx); err != nil {
		s.logger.Warning("Reload after delete failed, updating cache locally: %v", err)
		s.mu.Lock()
		kept := s.photos[:0:0]
		for _, p := range s.photos {
			if p.ID != id {
				kept = append(kept, p)
			}
		}
		s.photos = kept
		s.mu.Unlock()
	}

	if existed {
		s.logger.Info("Deleted photo %s", id)
		s.emit(Change{Kind: PhotoRemoved, ID: id})
	}
	return nil
}

// ClearAll deletes every record.
func (s *Store) ClearAll(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.repo.DeleteAll(ctx); err != nil {
		s.logger.Error("Failed to clear photos: %v", err)
		return &PersistenceError{Op: "clear photos", Err: err}
	}

	if err := s.refreshLocked(ctx); err != nil {
		s.logger.Warning("Reload after clear failed: %v", err)
		s.mu.Lock()
		s.photos = nil
		s.mu.Unlock()
	}

	s.logger.Info("Cleared all photos")
	s.emit(Change{Kind: PhotosCleared})
	return nil
}

func (s *Store) emit(change Change) {
	for _, fn := range s.listeners {
		fn(change)
	}
}

func (s *Store) cached(id string) *model.Photo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.photos {
		if s.photos[i].ID == id {
			p := s.photos[i]
			return &p
		}
	}
	return nil
}

// Get returns a cached record or nil.
func (s *Store) Get(id string) *model.Photo {
	return s.cached(id)
}

// ListAll returns a copy of the cache, newest first.
func (s *Store) ListAll() []model.Photo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Photo, len(s.photos))
	copy(out, s.photos)
	return out
}

// ListByBarcode returns the cached photos of one barcode, newest first.
func (s *Store) ListByBarcode(barcode string) []model.Photo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.Photo{}
	for _, p := range s.photos {
		if p.Barcode == barcode {
			out = append(out, p)
		}
	}
	return out
}

// Groups returns the cached photos grouped by barcode.
func (s *Store) Groups() []model.BarcodeGroup {
	return model.GroupByBarcode(s.ListAll())
}

// Stats aggregates counts and sizes over the cache.
func (s *Store) Stats() *model.PhotoStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.NewPhotoStats(s.photos)
}

// Usage returns the snapshot taken after the last mutation, or nil when unknown.
func (s *Store) Usage() *model.UsageSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.usage == nil {
		return nil
	}
	u := *s.usage
	return &u
}

// ExportSnapshot builds the export document for every record and hands it to the sink.
// Records kept inline by the backend are embedded; file-backed records carry their path.
func (s *Store) ExportSnapshot(ctx context.Context) (*export.Artifact, string, error) {
	photos := s.ListAll()
	for i := range photos {
		if photos[i].FilePath != "" {
			continue
		}
		data, err := s.repo.ReadImage(ctx, photos[i].ID)
		if err != nil {
			s.logger.Error("Failed to read image %s for export: %v", photos[i].ID, err)
			return nil, "", &ExportError{Err: err}
		}
		photos[i].ImageData = data
	}

	artifact, err := export.NewArtifact(photos, s.app, s.prefix, s.now(), true)
	if err != nil {
		return nil, "", &ExportError{Err: err}
	}

	if s.sink == nil {
		return artifact, "", nil
	}
	location, err := s.sink.Save(ctx, artifact.FileName, artifact.Data)
	if err != nil {
		s.logger.Error("Failed to save export %s: %v", artifact.FileName, err)
		return nil, "", &ExportError{Err: err}
	}
	s.logger.Info("Exported %d photo(s) to %s", artifact.Manifest.Summary.TotalPhotos, location)
	return artifact, location, nil
}

// Download returns the file name and image bytes of one record.
func (s *Store) Download(ctx context.Context, id string) (string, []byte, error) {
	photo := s.cached(id)
	if photo == nil {
		return "", nil, repository.ErrNotFound
	}

	data, err := s.repo.ReadImage(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return "", nil, err
	}
	if err != nil {
		return "", nil, &PersistenceError{Op: "read image", Err: err}
	}
	return photo.FileName, data, nil
}
