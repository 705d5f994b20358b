package server

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/ssd-technologies/photoshare/internal/apperr"
	"github.com/ssd-technologies/photoshare/internal/photos"
	"github.com/ssd-technologies/photoshare/internal/storage"
)

// multipartOverhead is the room left for form fields and part headers on
// top of the file size limit.
const multipartOverhead = 1 << 20

// handleUpload handles POST /api/photos/upload. The form carries the image
// as "photo" (or "file") and the target album as "albumId".
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, user *storage.User) {
	if !s.uploadLimiter.Allow(strconv.FormatInt(user.ID, 10)) {
		s.writeAppError(w, r, apperr.RateLimited("too many uploads, try again later"))
		return
	}

	maxBytes := s.photos.MaxBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.writeAppError(w, r, apperr.PayloadTooLarge("file exceeds the upload limit"))
			return
		}
		writeError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	albumID, err := strconv.ParseInt(r.FormValue("albumId"), 10, 64)
	if err != nil || albumID <= 0 {
		writeError(w, http.StatusBadRequest, "album id is required")
		return
	}

	file, header, err := formFile(r, "photo", "file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	photo, err := s.photos.Upload(r.Context(), user, photos.UploadRequest{
		AlbumID:      albumID,
		Body:         file,
		OriginalName: header.Filename,
		MimeType:     header.Header.Get("Content-Type"),
		Size:         header.Size,
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, photo)
}

// formFile returns the first file present under any of names.
func formFile(r *http.Request, names ...string) (multipart.File, *multipart.FileHeader, error) {
	var lastErr error
	for _, name := range names {
		f, h, err := r.FormFile(name)
		if err == nil {
			return f, h, nil
		}
		lastErr = err
	}
	return nil, nil, lastErr
}

// handleMyPhotos handles GET /api/photos/mine.
func (s *Server) handleMyPhotos(w http.ResponseWriter, r *http.Request, user *storage.User) {
	list, err := s.catalog.ListOwnPhotos(r.Context(), user)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleVisiblePhotos handles GET /api/photos/all: the caller's photos and
// the ones shared with the caller.
func (s *Server) handleVisiblePhotos(w http.ResponseWriter, r *http.Request, user *storage.User) {
	list, err := s.catalog.ListVisiblePhotos(r.Context(), user)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleDeletePhoto handles DELETE /api/photos/{id}.
func (s *Server) handleDeletePhoto(w http.ResponseWriter, r *http.Request, user *storage.User) {
	id, err := pathID(r, "id", "photo")
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if err := s.photos.Delete(r.Context(), user, id); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "photo deleted"})
}

// handleShare handles POST /api/photos/{id}/share.
func (s *Server) handleShare(w http.ResponseWriter, r *http.Request, user *storage.User) {
	id, err := pathID(r, "id", "photo")
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	var req shareRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}

	grant, err := s.catalog.Share(r.Context(), user, id, req.Username, req.PermissionType)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

// handleListShares handles GET /api/photos/{id}/shares.
func (s *Server) handleListShares(w http.ResponseWriter, r *http.Request, user *storage.User) {
	id, err := pathID(r, "id", "photo")
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	grants, err := s.catalog.ListShares(r.Context(), user, id)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, grants)
}

// handleUnshare handles DELETE /api/photos/{id}/shares/{username}.
func (s *Server) handleUnshare(w http.ResponseWriter, r *http.Request, user *storage.User) {
	id, err := pathID(r, "id", "photo")
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if err := s.catalog.Unshare(r.Context(), user, id, r.PathValue("username")); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "share removed"})
}

// handleThumbnail handles GET /api/photos/{id}/thumbnail.
func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request, user *storage.User) {
	id, err := pathID(r, "id", "photo")
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	b, err := s.photos.Thumbnail(r.Context(), user, id)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(b)
}

// handleServeUpload handles GET /uploads/{filename}: the original bytes, for
// the owner and grantees only.
func (s *Server) handleServeUpload(w http.ResponseWriter, r *http.Request, user *storage.User) {
	f, photo, err := s.photos.Open(r.Context(), user, r.PathValue("filename"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	defer f.Close()

	modTime := time.Unix(photo.CreatedAt, 0)
	if info, err := f.Stat(); err == nil {
		modTime = info.ModTime()
	}
	if photo.MimeType != "" {
		w.Header().Set("Content-Type", photo.MimeType)
	}
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, photo.Filename, modTime, f)
}

// handleEvents handles GET /api/events by upgrading to a WebSocket stream.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, user *storage.User) {
	s.hub.Serve(w, r, user.ID)
}
