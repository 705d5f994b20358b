package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/klauspost/compress/gzhttp"

	"github.com/ssd-technologies/photoshare/internal/apperr"
	"github.com/ssd-technologies/photoshare/internal/auth"
	"github.com/ssd-technologies/photoshare/internal/catalog"
	"github.com/ssd-technologies/photoshare/internal/events"
	"github.com/ssd-technologies/photoshare/internal/photos"
	"github.com/ssd-technologies/photoshare/internal/ratelimit"
	"github.com/ssd-technologies/photoshare/internal/storage"
)

// SessionCookie is the name of the cookie carrying the session token.
const SessionCookie = "photoshare_session"

// Deps are the services the server routes requests to.
type Deps struct {
	DB      *storage.DB
	Auth    *auth.Manager
	Catalog *catalog.Service
	Photos  *photos.Manager
	Hub     *events.Hub
	// LoginLimiter is keyed by client IP, UploadLimiter by user ID.
	LoginLimiter  *ratelimit.Limiter
	UploadLimiter *ratelimit.Limiter
	Logger        *slog.Logger
}

// Options tune server behaviour.
type Options struct {
	CookieSecure bool
	// TrustedProxies are the peers whose X-Forwarded-For header is believed.
	// Empty means the header is ignored.
	TrustedProxies []netip.Prefix

	SessionSweepInterval time.Duration
	OrphanSweepInterval  time.Duration
	OrphanGrace          time.Duration
}

// Server is the HTTP front end of photoshare.
type Server struct {
	db      *storage.DB
	auth    *auth.Manager
	catalog *catalog.Service
	photos  *photos.Manager
	hub     *events.Hub

	loginLimiter  *ratelimit.Limiter
	uploadLimiter *ratelimit.Limiter

	opts Options
	log  *slog.Logger
	mux  *http.ServeMux
	gz   http.Handler
}

// New creates a new Server with all routes registered.
func New(d Deps, opts Options) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.LoginLimiter == nil {
		d.LoginLimiter = ratelimit.New(10, nil)
	}
	if d.UploadLimiter == nil {
		d.UploadLimiter = ratelimit.New(30, nil)
	}
	if opts.SessionSweepInterval <= 0 {
		opts.SessionSweepInterval = 5 * time.Minute
	}
	if opts.OrphanSweepInterval <= 0 {
		opts.OrphanSweepInterval = time.Hour
	}
	if opts.OrphanGrace <= 0 {
		opts.OrphanGrace = time.Hour
	}

	s := &Server{
		db:            d.DB,
		auth:          d.Auth,
		catalog:       d.Catalog,
		photos:        d.Photos,
		hub:           d.Hub,
		loginLimiter:  d.LoginLimiter,
		uploadLimiter: d.UploadLimiter,
		opts:          opts,
		log:           d.Logger.With("component", "server"),
		mux:           http.NewServeMux(),
	}
	s.routes()
	s.gz = gzhttp.GzipHandler(s.mux)
	return s
}

// ServeHTTP implements http.Handler. Everything except the event stream is
// gzip-compressed when the client accepts it.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h := s.gz
	if r.URL.Path == "/api/events" {
		h = s.mux
	}
	s.logRequests(h).ServeHTTP(w, r)
}

// routes registers all HTTP routes on the server mux.
func (s *Server) routes() {
	// Health
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	// Auth
	s.mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	s.mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	s.mux.HandleFunc("POST /api/auth/logout", s.requireUser(s.handleLogout))

	// Users
	s.mux.HandleFunc("GET /api/users/me", s.requireUser(s.handleMe))
	s.mux.HandleFunc("DELETE /api/users/me", s.requireUser(s.handleDeleteMe))
	s.mux.HandleFunc("GET /api/users", s.requireUser(s.handleListUsers))
	s.mux.HandleFunc("GET /api/users/{username}/photos", s.requireUser(s.handleUserPhotos))

	// Albums
	s.mux.HandleFunc("POST /api/albums", s.requireUser(s.handleCreateAlbum))
	s.mux.HandleFunc("GET /api/albums", s.requireUser(s.handleListAlbums))
	s.mux.HandleFunc("GET /api/albums/{id}/photos", s.requireUser(s.handleAlbumPhotos))
	s.mux.HandleFunc("DELETE /api/albums/{id}", s.requireUser(s.handleDeleteAlbum))

	// Photos
	s.mux.HandleFunc("POST /api/photos/upload", s.requireUser(s.handleUpload))
	s.mux.HandleFunc("GET /api/photos/mine", s.requireUser(s.handleMyPhotos))
	s.mux.HandleFunc("GET /api/photos/my", s.requireUser(s.handleMyPhotos))
	s.mux.HandleFunc("GET /api/photos/all", s.requireUser(s.handleVisiblePhotos))
	s.mux.HandleFunc("DELETE /api/photos/{id}", s.requireUser(s.handleDeletePhoto))
	s.mux.HandleFunc("GET /api/photos/{id}/thumbnail", s.requireUser(s.handleThumbnail))

	// Sharing
	s.mux.HandleFunc("POST /api/photos/{id}/share", s.requireUser(s.handleShare))
	s.mux.HandleFunc("GET /api/photos/{id}/shares", s.requireUser(s.handleListShares))
	s.mux.HandleFunc("DELETE /api/photos/{id}/shares/{username}", s.requireUser(s.handleUnshare))

	// Content
	s.mux.HandleFunc("GET /uploads/{filename}", s.requireUser(s.handleServeUpload))

	// Live events
	s.mux.HandleFunc("GET /api/events", s.requireUser(s.handleEvents))
}

// handleHealth reports whether the database is reachable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		s.log.Error("health check", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "unavailable",
			"service": "photoshare",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "photoshare",
		"driver":  s.db.Driver(),
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeAppError writes err with the status of its kind. Internal errors are
// logged with their cause; the client only sees the public message.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, statusFor(kind), apperr.PublicMessage(err))
}
