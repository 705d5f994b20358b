package photos

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"io"
	"io/fs"
	"sync"

	// Decoders for image.Decode.
	_ "image/gif"
	_ "image/png"

	"github.com/nfnt/resize"

	"github.com/ssd-technologies/photoshare/internal/apperr"
	"github.com/ssd-technologies/photoshare/internal/storage"
)

const (
	defaultThumbSize  = 320
	defaultThumbCache = 256
	thumbQuality      = 85
)

// thumbnailer renders and caches JPEG thumbnails keyed by filename.
type thumbnailer struct {
	size      uint
	limit     int
	maxPixels int64

	mu    sync.RWMutex
	cache map[string][]byte
	order []string
}

func newThumbnailer(size, limit int, maxPixels int64) *thumbnailer {
	if size <= 0 {
		size = defaultThumbSize
	}
	if limit <= 0 {
		limit = defaultThumbCache
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	return &thumbnailer{
		size:      uint(size),
		limit:     limit,
		maxPixels: maxPixels,
		cache:     make(map[string][]byte),
	}
}

func (t *thumbnailer) get(name string) ([]byte, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.cache[name]
	return b, ok
}

// put stores b, evicting the oldest entries beyond the limit.
func (t *thumbnailer) put(name string, b []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.cache[name]; !ok {
		t.order = append(t.order, name)
	}
	t.cache[name] = b
	for len(t.order) > t.limit {
		oldest := t.order[0]
		t.order = t.order[1:]
		delete(t.cache, oldest)
	}
}

func (t *thumbnailer) invalidate(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.cache[name]; !ok {
		return
	}
	delete(t.cache, name)
	for i, n := range t.order {
		if n == name {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

func (t *thumbnailer) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.cache)
}

func (t *thumbnailer) render(img image.Image) ([]byte, error) {
	thumb := resize.Thumbnail(t.size, t.size, img, resize.Lanczos3)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: thumbQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Thumbnail returns a JPEG thumbnail of a photo user may read.
func (m *Manager) Thumbnail(ctx context.Context, user *storage.User, photoID int64) ([]byte, error) {
	photo, err := m.store.GetPhoto(ctx, photoID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound(msgNoPhoto)
	}
	if err != nil {
		return nil, apperr.Internal("thumbnail failed", err)
	}
	if err := m.access.RequirePhotoReader(ctx, user, photo); err != nil {
		return nil, err
	}

	if b, ok := m.thumbs.get(photo.Filename); ok {
		return b, nil
	}

	f, err := m.files.Open(photo.Filename)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperr.NotFound(msgNoPhoto)
	}
	if err != nil {
		return nil, apperr.Internal("thumbnail failed", err)
	}
	defer f.Close()

	// The header alone tells the canvas size; reject oversized canvases
	// before Decode allocates them.
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return nil, apperr.Validation("photo format cannot be thumbnailed")
	}
	if int64(cfg.Width)*int64(cfg.Height) > m.thumbs.maxPixels {
		return nil, apperr.Validation("photo dimensions are too large to thumbnail")
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, apperr.Internal("thumbnail failed", err)
	}

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, apperr.Validation("photo format cannot be thumbnailed")
	}
	b, err := m.thumbs.render(img)
	if err != nil {
		return nil, apperr.Internal("thumbnail failed", err)
	}
	m.thumbs.put(photo.Filename, b)
	return b, nil
}
