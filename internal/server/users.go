package server

import (
	"net/http"

	"github.com/ssd-technologies/photoshare/internal/apperr"
	"github.com/ssd-technologies/photoshare/internal/storage"
)

// handleRegister handles POST /api/auth/register.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}

	u, err := s.auth.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message":  "user registered",
		"user_id":  u.ID,
		"username": u.Username,
	})
}

// handleLogin handles POST /api/auth/login. Attempts are limited per client IP.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.loginLimiter.Allow(s.clientIP(r)) {
		s.writeAppError(w, r, apperr.RateLimited("too many login attempts, try again later"))
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}

	sess, u, err := s.auth.Login(r.Context(), req.UsernameOrEmail, req.Password)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	s.setSessionCookie(w, sess.Token, sess.ExpiresAt)
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      sess.Token,
		"expires_at": sess.ExpiresAt.Unix(),
		"user":       u,
	})
}

// handleLogout handles POST /api/auth/logout.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, user *storage.User) {
	s.auth.Logout(sessionToken(r))
	s.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// handleMe handles GET /api/users/me.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user *storage.User) {
	writeJSON(w, http.StatusOK, user)
}

// handleDeleteMe handles DELETE /api/users/me: the account, its albums,
// photos and grants are removed and every session of the user ends.
func (s *Server) handleDeleteMe(w http.ResponseWriter, r *http.Request, user *storage.User) {
	if err := s.catalog.DeleteUser(r.Context(), user.ID); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.auth.RevokeUser(user.ID)
	s.hub.Disconnect(user.ID)
	s.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "account deleted"})
}

// handleListUsers handles GET /api/users.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request, user *storage.User) {
	users, err := s.catalog.ListUsers(r.Context())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// handleUserPhotos handles GET /api/users/{username}/photos.
func (s *Server) handleUserPhotos(w http.ResponseWriter, r *http.Request, user *storage.User) {
	photos, err := s.catalog.ListUserPhotos(r.Context(), user, r.PathValue("username"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, photos)
}
