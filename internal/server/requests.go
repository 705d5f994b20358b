package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/ssd-technologies/photoshare/internal/apperr"
)

const maxJSONBody = 1 << 20

// decodeJSON reads a JSON request body into v and runs its validation.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{ validate() error }) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validation("invalid JSON body")
	}
	return v.validate()
}

// pathID parses a positive integer path value.
func pathID(r *http.Request, name, what string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid " + what + " id")
	}
	return id, nil
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (req *registerRequest) validate() error {
	if strings.TrimSpace(req.Username) == "" || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return apperr.Validation("username, email and password are required")
	}
	return nil
}

type loginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail"`
	// Username is accepted from older clients.
	Username string `json:"username"`
	Password string `json:"password"`
}

func (req *loginRequest) validate() error {
	if req.UsernameOrEmail == "" {
		req.UsernameOrEmail = req.Username
	}
	if strings.TrimSpace(req.UsernameOrEmail) == "" || req.Password == "" {
		return apperr.Validation("username or email and password are required")
	}
	return nil
}

type createAlbumRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (req *createAlbumRequest) validate() error {
	if strings.TrimSpace(req.Name) == "" {
		return apperr.Validation("album name is required")
	}
	return nil
}

type shareRequest struct {
	Username       string `json:"username"`
	PermissionType string `json:"permissionType"`
}

func (req *shareRequest) validate() error {
	if strings.TrimSpace(req.Username) == "" {
		return apperr.Validation("username is required")
	}
	return nil
}
