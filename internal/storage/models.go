// internal/storage/models.go
package storage

// Permission types a grant may carry. Both confer read access only.
const (
	PermissionView     = "view"
	PermissionDownload = "download"
)

type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	CreatedAt    int64  `json:"created_at"`
}

type Album struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	UserID      int64  `json:"user_id"`
	CreatedAt   int64  `json:"created_at"`
	PhotoCount  int    `json:"photo_count"` // populated by ListAlbumsByUser
}

type Photo struct {
	ID        int64  `json:"id"`
	Filename  string `json:"filename"`
	FilePath  string `json:"-"`
	MimeType  string `json:"mime_type,omitempty"`
	Size      int64  `json:"size,omitempty"`
	Checksum  string `json:"checksum,omitempty"`
	UserID    int64  `json:"user_id"`
	AlbumID   int64  `json:"album_id"`
	CreatedAt int64  `json:"created_at"`

	// Populated by the listing queries.
	AlbumName      string `json:"album_name,omitempty"`
	OwnerUsername  string `json:"owner_username,omitempty"`
	PermissionType string `json:"permission_type,omitempty"`
}

type Grant struct {
	ID             int64  `json:"id"`
	PhotoID        int64  `json:"photo_id"`
	UserID         int64  `json:"user_id"`
	Username       string `json:"username,omitempty"` // populated by ListGrantsForPhoto
	PermissionType string `json:"permission_type"`
	CreatedAt      int64  `json:"created_at"`
}
