// Package app assembles the photoshare services from a Config.
package app

import (
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"path/filepath"

	"github.com/ssd-technologies/photoshare/internal/access"
	"github.com/ssd-technologies/photoshare/internal/auth"
	"github.com/ssd-technologies/photoshare/internal/catalog"
	"github.com/ssd-technologies/photoshare/internal/config"
	"github.com/ssd-technologies/photoshare/internal/content"
	"github.com/ssd-technologies/photoshare/internal/credential"
	"github.com/ssd-technologies/photoshare/internal/events"
	"github.com/ssd-technologies/photoshare/internal/photos"
	"github.com/ssd-technologies/photoshare/internal/ratelimit"
	"github.com/ssd-technologies/photoshare/internal/server"
	"github.com/ssd-technologies/photoshare/internal/storage"
)

// App holds the wired services of one process.
type App struct {
	Config  *config.Config
	DB      *storage.DB
	Files   *content.Store
	Auth    *auth.Manager
	Catalog *catalog.Service
	Photos  *photos.Manager
	Hub     *events.Hub
	Logger  *slog.Logger

	proxies []netip.Prefix
}

// New opens the database and content directory and builds every service.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	proxies, err := cfg.TrustedProxyPrefixes()
	if err != nil {
		return nil, err
	}
	if cfg.Storage.Driver != storage.DriverPostgres {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.DSN), content.DirPerms); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := storage.Open(cfg.StorageOptions())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	files, err := content.New(cfg.Storage.UploadDir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open upload dir: %w", err)
	}

	resolver := access.NewResolver(db)
	hub := events.NewHub(logger)
	photoMgr := photos.NewManager(db, files, resolver, photos.Options{
		MaxBytes:       cfg.Uploads.MaxBytes,
		ThumbnailSize:  cfg.Uploads.ThumbnailSize,
		ThumbnailCache: cfg.Uploads.ThumbnailCache,
		MaxPixels:      cfg.Uploads.MaxPixels,
		Events:         hub,
		Logger:         logger,
	})

	return &App{
		Config: cfg,
		DB:     db,
		Files:  files,
		Auth: auth.NewManager(db, credential.NewHasher(cfg.Auth.Argon2), auth.Options{
			TTL:    cfg.Auth.SessionTTL,
			Logger: logger,
		}),
		Catalog: catalog.NewService(db, resolver, photoMgr, catalog.Options{Events: hub, Logger: logger}),
		Photos:  photoMgr,
		Hub:     hub,
		Logger:  logger,
		proxies: proxies,
	}, nil
}

// Server builds the HTTP server over the app's services.
func (a *App) Server() *server.Server {
	return server.New(server.Deps{
		DB:            a.DB,
		Auth:          a.Auth,
		Catalog:       a.Catalog,
		Photos:        a.Photos,
		Hub:           a.Hub,
		LoginLimiter:  ratelimit.New(a.Config.RateLimit.LoginPerMinute, nil),
		UploadLimiter: ratelimit.New(a.Config.RateLimit.UploadPerMinute, nil),
		Logger:        a.Logger,
	}, server.Options{
		CookieSecure:         a.Config.Server.CookieSecure,
		TrustedProxies:       a.proxies,
		SessionSweepInterval: a.Config.Workers.SessionSweepInterval,
		OrphanSweepInterval:  a.Config.Workers.OrphanSweepInterval,
		OrphanGrace:          a.Config.Workers.OrphanGrace,
	})
}

// Close releases the database.
func (a *App) Close() error {
	return a.DB.Close()
}
