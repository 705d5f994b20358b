// Package photos handles the photo file lifecycle: upload, deletion, serving
// original bytes and thumbnails, and cleaning up files no row refers to.
//
// An upload writes the file first and inserts the row second. If the insert
// fails the file is removed before the error is returned, so a failed upload
// leaves neither a row nor a file behind. A crash between the two steps
// leaves an orphan file, which SweepOrphans collects.
package photos

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ssd-technologies/photoshare/internal/access"
	"github.com/ssd-technologies/photoshare/internal/apperr"
	"github.com/ssd-technologies/photoshare/internal/clock"
	"github.com/ssd-technologies/photoshare/internal/content"
	"github.com/ssd-technologies/photoshare/internal/events"
	"github.com/ssd-technologies/photoshare/internal/storage"
)

// DefaultMaxBytes is the upload limit used when Options.MaxBytes is zero.
const DefaultMaxBytes = 10 << 20

// DefaultMaxPixels is the thumbnail source cap used when Options.MaxPixels is zero.
const DefaultMaxPixels = 50_000_000

const (
	maxExtLen     = 10
	nameAttempts  = 3
	msgNoPhoto    = "photo not found"
	msgNoAlbum    = "album not found"
	msgUploadFail = "upload failed"
)

// Store is the subset of storage the manager needs.
type Store interface {
	GetAlbum(ctx context.Context, id int64) (*storage.Album, error)
	CreatePhoto(ctx context.Context, p *storage.Photo) error
	GetPhoto(ctx context.Context, id int64) (*storage.Photo, error)
	GetPhotoByFilename(ctx context.Context, filename string) (*storage.Photo, error)
	DeletePhoto(ctx context.Context, id int64) error
	ListGrantsForPhoto(ctx context.Context, photoID int64) ([]storage.Grant, error)
	PhotoFilenameExists(ctx context.Context, filename string) (bool, error)
}

// Options configures a Manager.
type Options struct {
	MaxBytes       int64
	ThumbnailSize  int
	ThumbnailCache int
	// MaxPixels caps the decoded canvas of a thumbnail source. Zero means
	// DefaultMaxPixels.
	MaxPixels int64
	Clock          clock.Clock
	Events         events.Publisher
	Logger         *slog.Logger
}

// Manager runs photo file operations.
type Manager struct {
	store    Store
	files    *content.Store
	access   *access.Resolver
	maxBytes int64
	thumbs   *thumbnailer
	clock    clock.Clock
	events   events.Publisher
	log      *slog.Logger
}

// NewManager creates a Manager.
func NewManager(store Store, files *content.Store, resolver *access.Resolver, opts Options) *Manager {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{
		store:    store,
		files:    files,
		access:   resolver,
		maxBytes: opts.MaxBytes,
		thumbs:   newThumbnailer(opts.ThumbnailSize, opts.ThumbnailCache, opts.MaxPixels),
		clock:    opts.Clock,
		events:   opts.Events,
		log:      opts.Logger.With("component", "photos"),
	}
}

// MaxBytes returns the upload size limit.
func (m *Manager) MaxBytes() int64 {
	return m.maxBytes
}

// UploadRequest is a single file upload into an album.
type UploadRequest struct {
	AlbumID      int64
	Body         io.Reader
	OriginalName string
	MimeType     string
	// Size is the size the client declared, or zero when unknown.
	Size int64
}

// Upload stores a new photo in one of user's albums.
func (m *Manager) Upload(ctx context.Context, user *storage.User, req UploadRequest) (*storage.Photo, error) {
	if req.AlbumID <= 0 {
		return nil, apperr.Validation("album id is required")
	}
	if req.Body == nil {
		return nil, apperr.Validation("no file uploaded")
	}
	if !strings.HasPrefix(req.MimeType, "image/") {
		return nil, apperr.Validation("only image files are allowed")
	}
	if req.Size > m.maxBytes {
		return nil, apperr.PayloadTooLarge(m.tooLargeMessage())
	}

	album, err := m.store.GetAlbum(ctx, req.AlbumID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound(msgNoAlbum)
	}
	if err != nil {
		return nil, apperr.Internal(msgUploadFail, err)
	}
	if err := m.access.RequireAlbumOwner(user, album); err != nil {
		return nil, err
	}

	now := m.clock.Now()
	filename, written, err := m.write(now, req)
	if err != nil {
		return nil, err
	}

	photo := &storage.Photo{
		Filename:      filename,
		FilePath:      written.Path,
		MimeType:      req.MimeType,
		Size:          written.Size,
		Checksum:      written.Checksum,
		UserID:        user.ID,
		AlbumID:       album.ID,
		CreatedAt:     now.Unix(),
		AlbumName:     album.Name,
		OwnerUsername: user.Username,
	}
	if err := m.store.CreatePhoto(ctx, photo); err != nil {
		if rmErr := m.files.Remove(filename); rmErr != nil {
			m.log.Error("remove file after failed insert", "filename", filename, "error", rmErr)
		}
		return nil, apperr.Internal(msgUploadFail, err)
	}

	m.log.Info("photo uploaded", "photo_id", photo.ID, "user_id", user.ID, "album_id", album.ID, "size", photo.Size)
	m.events.Publish(events.Event{
		Type:    events.PhotoUploaded,
		PhotoID: photo.ID,
		AlbumID: album.ID,
		Actor:   user.Username,
		At:      photo.CreatedAt,
	}, user.ID)
	return photo, nil
}

// write streams the body under a fresh name, retrying on the unlikely
// event that the generated name is already taken.
func (m *Manager) write(now time.Time, req UploadRequest) (string, *content.Written, error) {
	for i := 0; i < nameAttempts; i++ {
		filename := GenerateFilename(now, req.OriginalName)
		written, err := m.files.Write(filename, req.Body, m.maxBytes)
		switch {
		case err == nil:
			return filename, written, nil
		case errors.Is(err, content.ErrExists):
			continue
		case errors.Is(err, content.ErrTooLarge):
			return "", nil, apperr.PayloadTooLarge(m.tooLargeMessage())
		default:
			return "", nil, apperr.Internal(msgUploadFail, err)
		}
	}
	return "", nil, apperr.Internal(msgUploadFail, fmt.Errorf("no free filename after %d attempts", nameAttempts))
}

func (m *Manager) tooLargeMessage() string {
	return fmt.Sprintf("file exceeds the %d MB limit", m.maxBytes>>20)
}

// GenerateFilename returns photo-<unix millis>-<16 hex chars> followed by
// the lower-cased extension of original when it is short and alphanumeric.
func GenerateFilename(now time.Time, original string) string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return fmt.Sprintf("photo-%d-%s%s", now.UnixMilli(), hex.EncodeToString(b), extension(original))
}

func extension(original string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(original), "."))
	if ext == "" || len(ext) > maxExtLen {
		return ""
	}
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return "." + ext
}

// Delete removes one of user's photos. The row goes first; the file is
// removed best-effort afterwards and a failure there is only logged.
func (m *Manager) Delete(ctx context.Context, user *storage.User, photoID int64) error {
	photo, err := m.store.GetPhoto(ctx, photoID)
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound(msgNoPhoto)
	}
	if err != nil {
		return apperr.Internal("delete failed", err)
	}
	if err := m.access.RequirePhotoOwner(user, photo); err != nil {
		return err
	}

	grants, err := m.store.ListGrantsForPhoto(ctx, photo.ID)
	if err != nil {
		return apperr.Internal("delete failed", err)
	}
	if err := m.store.DeletePhoto(ctx, photo.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound(msgNoPhoto)
		}
		return apperr.Internal("delete failed", err)
	}
	m.RemoveFiles(photo.Filename)

	recipients := []int64{user.ID}
	for _, g := range grants {
		recipients = append(recipients, g.UserID)
	}
	m.events.Publish(events.Event{
		Type:    events.PhotoDeleted,
		PhotoID: photo.ID,
		AlbumID: photo.AlbumID,
		Actor:   user.Username,
		At:      m.clock.Now().Unix(),
	}, recipients...)
	m.log.Info("photo deleted", "photo_id", photo.ID, "user_id", user.ID)
	return nil
}

// RemoveFiles deletes content files whose rows are already gone. Failures
// are logged and otherwise ignored.
func (m *Manager) RemoveFiles(filenames ...string) {
	for _, name := range filenames {
		m.thumbs.invalidate(name)
		if err := m.files.Remove(name); err != nil {
			m.log.Warn("remove photo file", "filename", name, "error", err)
		}
	}
}

// Open returns the stored file behind filename if user may read it.
func (m *Manager) Open(ctx context.Context, user *storage.User, filename string) (*os.File, *storage.Photo, error) {
	photo, err := m.store.GetPhotoByFilename(ctx, filename)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, apperr.NotFound(msgNoPhoto)
	}
	if err != nil {
		return nil, nil, apperr.Internal("open failed", err)
	}
	if err := m.access.RequirePhotoReader(ctx, user, photo); err != nil {
		return nil, nil, err
	}

	f, err := m.files.Open(photo.Filename)
	if errors.Is(err, fs.ErrNotExist) {
		m.log.Warn("photo row without file", "photo_id", photo.ID, "filename", photo.Filename)
		return nil, nil, apperr.NotFound(msgNoPhoto)
	}
	if err != nil {
		return nil, nil, apperr.Internal("open failed", err)
	}
	return f, photo, nil
}

// SweepOrphans removes content files older than grace that no photo row
// refers to, and returns how many it removed.
func (m *Manager) SweepOrphans(ctx context.Context, grace time.Duration) (int, error) {
	entries, err := m.files.List()
	if err != nil {
		return 0, err
	}
	cutoff := m.clock.Now().Add(-grace)

	removed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if e.ModTime.After(cutoff) {
			continue
		}
		exists, err := m.store.PhotoFilenameExists(ctx, e.Name)
		if err != nil {
			return removed, fmt.Errorf("check orphan %s: %w", e.Name, err)
		}
		if exists {
			continue
		}
		if err := m.files.Remove(e.Name); err != nil {
			m.log.Warn("remove orphan", "filename", e.Name, "error", err)
			continue
		}
		m.thumbs.invalidate(e.Name)
		removed++
	}
	return removed, nil
}
