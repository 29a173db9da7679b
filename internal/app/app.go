package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"fieldcapture/internal/config"
	"fieldcapture/internal/logger"
	"fieldcapture/internal/platform"
	"fieldcapture/internal/repository"
	"fieldcapture/internal/repository/filesystem"
	"fieldcapture/internal/repository/sqlite"
	"fieldcapture/internal/route"
	"fieldcapture/internal/service"
	"fieldcapture/internal/service/export"
	"fieldcapture/internal/service/imaging"
	"fieldcapture/internal/service/photostore"
	"fieldcapture/internal/service/scan"
	"fieldcapture/internal/service/websocket"
)

type App struct {
	config     *config.Config
	logger     *logger.Logger
	repo       repository.PhotoRepository
	backend    string
	exportsDir string
	hubService *websocket.HubService
	manager    *service.Manager
}

// selectBackend resolves "auto" against the host capabilities.
func selectBackend(cfg *config.Config, caps platform.Capabilities) string {
	switch cfg.StorageBackend {
	case config.BackendDatabase, config.BackendFilesystem:
		return cfg.StorageBackend
	}
	if caps.NativeShell {
		return config.BackendFilesystem
	}
	return config.BackendDatabase
}

// openRepository opens the chosen backend and returns it with its export directory.
func openRepository(backend string, cfg *config.Config, logger *logger.Logger) (repository.PhotoRepository, string, error) {
	switch backend {
	case config.BackendFilesystem:
		repo, err := filesystem.New(cfg, logger)
		if err != nil {
			return nil, "", err
		}
		return repo, repo.ExportsDirectory(), nil
	case config.BackendDatabase:
		db, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return nil, "", err
		}
		repo := sqlite.NewPhotoRepository(db, cfg, imaging.NewCompressor(cfg, logger), logger)
		return repo, filepath.Join(filepath.Dir(db.Path()), filesystem.ExportsDir), nil
	}
	return nil, "", fmt.Errorf("unknown storage backend %q", backend)
}

func NewApp() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.NewLogger(cfg)

	backend := selectBackend(cfg, platform.Detect(cfg))
	repo, exportsDir, err := openRepository(backend, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s backend: %w", backend, err)
	}
	log.Info("Storage backend: %s", backend)

	hub := websocket.NewHubService(log)

	opts := []photostore.Option{
		photostore.WithSink(export.NewDirectorySink(exportsDir)),
		photostore.WithListener(service.ViewerNotifier(hub)),
	}
	if cfg.StampOverlay {
		opts = append(opts, photostore.WithStamper(imaging.NewStamper(log)))
	}
	store := photostore.New(repo, cfg, log, opts...)
	if err := store.Open(context.Background()); err != nil {
		repo.Close()
		return nil, err
	}

	scanService := scan.NewService(cfg, hub, log)
	mng := service.NewManager(store, scanService, hub, backend, log)

	return &App{
		config:     cfg,
		logger:     log,
		repo:       repo,
		backend:    backend,
		exportsDir: exportsDir,
		hubService: hub,
		manager:    mng,
	}, nil
}

// Run serves HTTP until ctx is cancelled, then shuts the server down.
func (a *App) Run(ctx context.Context) error {
	defer a.repo.Close()

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go a.hubService.Run(hubCtx)

	router := route.SetupRoutes(a.manager, a.config, a.logger)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.config.Port),
		Handler: router,
	}

	fmt.Printf("🚀 %s %s\n", a.config.AppName, a.config.AppVersion)
	fmt.Printf("📍 URL: http://localhost:%d\n", a.config.Port)
	fmt.Printf("🔑 Auth: %t\n", a.config.AuthEnabled())
	fmt.Printf("💾 Backend: %s\n", a.backend)
	fmt.Printf("📦 Exports: %s\n", a.exportsDir)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		a.logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
