package server

import (
	"net/http"

	"github.com/ssd-technologies/photoshare/internal/storage"
)

// handleCreateAlbum handles POST /api/albums.
func (s *Server) handleCreateAlbum(w http.ResponseWriter, r *http.Request, user *storage.User) {
	var req createAlbumRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}

	album, err := s.catalog.CreateAlbum(r.Context(), user, req.Name, req.Description)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, album)
}

// handleListAlbums handles GET /api/albums.
func (s *Server) handleListAlbums(w http.ResponseWriter, r *http.Request, user *storage.User) {
	albums, err := s.catalog.ListAlbums(r.Context(), user)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, albums)
}

// handleAlbumPhotos handles GET /api/albums/{id}/photos.
func (s *Server) handleAlbumPhotos(w http.ResponseWriter, r *http.Request, user *storage.User) {
	id, err := pathID(r, "id", "album")
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	photos, err := s.catalog.ListAlbumPhotos(r.Context(), user, id)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, photos)
}

// handleDeleteAlbum handles DELETE /api/albums/{id}.
func (s *Server) handleDeleteAlbum(w http.ResponseWriter, r *http.Request, user *storage.User) {
	id, err := pathID(r, "id", "album")
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if err := s.catalog.DeleteAlbum(r.Context(), user, id); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "album deleted"})
}
