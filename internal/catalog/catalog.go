// Package catalog manages albums, photo listings, sharing and accounts.
package catalog

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/ssd-technologies/photoshare/internal/access"
	"github.com/ssd-technologies/photoshare/internal/apperr"
	"github.com/ssd-technologies/photoshare/internal/clock"
	"github.com/ssd-technologies/photoshare/internal/events"
	"github.com/ssd-technologies/photoshare/internal/storage"
)

const (
	maxAlbumName        = 100
	maxAlbumDescription = 1000
)

// Store is the subset of storage the catalog needs.
type Store interface {
	CreateAlbum(ctx context.Context, a *storage.Album) error
	GetAlbum(ctx context.Context, id int64) (*storage.Album, error)
	ListAlbumsByUser(ctx context.Context, userID int64) ([]storage.Album, error)
	DeleteAlbum(ctx context.Context, id int64) error

	GetPhoto(ctx context.Context, id int64) (*storage.Photo, error)
	ListPhotosByAlbum(ctx context.Context, albumID int64) ([]storage.Photo, error)
	ListPhotosByUser(ctx context.Context, userID int64) ([]storage.Photo, error)
	ListVisiblePhotos(ctx context.Context, userID int64) ([]storage.Photo, error)
	ListPhotosOfOwnerVisibleTo(ctx context.Context, ownerID, viewerID int64) ([]storage.Photo, error)
	PhotoFilenamesByAlbum(ctx context.Context, albumID int64) ([]string, error)
	PhotoFilenamesByUser(ctx context.Context, userID int64) ([]string, error)

	UpsertGrant(ctx context.Context, g *storage.Grant) error
	ListGrantsForPhoto(ctx context.Context, photoID int64) ([]storage.Grant, error)
	DeleteGrant(ctx context.Context, photoID, userID int64) error

	GetUserByUsername(ctx context.Context, username string) (*storage.User, error)
	ListUsers(ctx context.Context) ([]storage.User, error)
	DeleteUser(ctx context.Context, id int64) error
}

// FileRemover deletes content files whose rows are gone.
type FileRemover interface {
	RemoveFiles(filenames ...string)
}

// UserSummary is the public view of an account.
type UserSummary struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	CreatedAt int64  `json:"created_at"`
}

// Options configures a Service.
type Options struct {
	Clock  clock.Clock
	Events events.Publisher
	Logger *slog.Logger
}

// Service implements catalog operations. Every method takes the acting user
// explicitly.
type Service struct {
	store  Store
	access *access.Resolver
	files  FileRemover
	clock  clock.Clock
	events events.Publisher
	log    *slog.Logger
}

// NewService creates a Service.
func NewService(store Store, resolver *access.Resolver, files FileRemover, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		store:  store,
		access: resolver,
		files:  files,
		clock:  opts.Clock,
		events: opts.Events,
		log:    opts.Logger.With("component", "catalog"),
	}
}

// --- Albums ---

// CreateAlbum creates an album owned by user.
func (s *Service) CreateAlbum(ctx context.Context, user *storage.User, name, description string) (*storage.Album, error) {
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	if name == "" {
		return nil, apperr.Validation("album name is required")
	}
	if utf8.RuneCountInString(name) > maxAlbumName {
		return nil, apperr.Validation("album name must be at most 100 characters")
	}
	if utf8.RuneCountInString(description) > maxAlbumDescription {
		return nil, apperr.Validation("album description must be at most 1000 characters")
	}

	a := &storage.Album{
		Name:        name,
		Description: description,
		UserID:      user.ID,
		CreatedAt:   s.clock.Now().Unix(),
	}
	if err := s.store.CreateAlbum(ctx, a); err != nil {
		return nil, apperr.Internal("failed to create album", err)
	}
	s.events.Publish(events.Event{Type: events.AlbumCreated, AlbumID: a.ID, Actor: user.Username, At: a.CreatedAt}, user.ID)
	return a, nil
}

// ListAlbums returns user's albums, newest first.
func (s *Service) ListAlbums(ctx context.Context, user *storage.User) ([]storage.Album, error) {
	albums, err := s.store.ListAlbumsByUser(ctx, user.ID)
	if err != nil {
		return nil, apperr.Internal("failed to list albums", err)
	}
	return nonNil(albums), nil
}

// album loads an album and checks user owns it.
func (s *Service) album(ctx context.Context, user *storage.User, albumID int64) (*storage.Album, error) {
	a, err := s.store.GetAlbum(ctx, albumID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound("album not found")
	}
	if err != nil {
		return nil, apperr.Internal("failed to load album", err)
	}
	if err := s.access.RequireAlbumOwner(user, a); err != nil {
		return nil, err
	}
	return a, nil
}

// ListAlbumPhotos returns the photos of one of user's albums.
func (s *Service) ListAlbumPhotos(ctx context.Context, user *storage.User, albumID int64) ([]storage.Photo, error) {
	if _, err := s.album(ctx, user, albumID); err != nil {
		return nil, err
	}
	photos, err := s.store.ListPhotosByAlbum(ctx, albumID)
	if err != nil {
		return nil, apperr.Internal("failed to list photos", err)
	}
	return nonNil(photos), nil
}

// DeleteAlbum deletes one of user's albums together with its photos.
func (s *Service) DeleteAlbum(ctx context.Context, user *storage.User, albumID int64) error {
	a, err := s.album(ctx, user, albumID)
	if err != nil {
		return err
	}
	filenames, err := s.store.PhotoFilenamesByAlbum(ctx, a.ID)
	if err != nil {
		return apperr.Internal("failed to delete album", err)
	}
	if err := s.store.DeleteAlbum(ctx, a.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound("album not found")
		}
		return apperr.Internal("failed to delete album", err)
	}
	s.files.RemoveFiles(filenames...)

	s.events.Publish(events.Event{Type: events.AlbumDeleted, AlbumID: a.ID, Actor: user.Username, At: s.clock.Now().Unix()}, user.ID)
	s.log.Info("album deleted", "album_id", a.ID, "user_id", user.ID, "photos", len(filenames))
	return nil
}

// --- Photos ---

// ListOwnPhotos returns every photo user owns, newest first.
func (s *Service) ListOwnPhotos(ctx context.Context, user *storage.User) ([]storage.Photo, error) {
	photos, err := s.store.ListPhotosByUser(ctx, user.ID)
	if err != nil {
		return nil, apperr.Internal("failed to list photos", err)
	}
	return nonNil(photos), nil
}

// ListVisiblePhotos returns the photos user owns plus the ones shared with
// user, newest first.
func (s *Service) ListVisiblePhotos(ctx context.Context, user *storage.User) ([]storage.Photo, error) {
	photos, err := s.store.ListVisiblePhotos(ctx, user.ID)
	if err != nil {
		return nil, apperr.Internal("failed to list photos", err)
	}
	return nonNil(photos), nil
}

// ListUserPhotos returns the photos owned by username that user may see.
func (s *Service) ListUserPhotos(ctx context.Context, user *storage.User, username string) ([]storage.Photo, error) {
	owner, err := s.userByName(ctx, username)
	if err != nil {
		return nil, err
	}
	photos, err := s.store.ListPhotosOfOwnerVisibleTo(ctx, owner.ID, user.ID)
	if err != nil {
		return nil, apperr.Internal("failed to list photos", err)
	}
	return nonNil(photos), nil
}

// --- Sharing ---

// ownedPhoto loads a photo and checks user may share it.
func (s *Service) ownedPhoto(ctx context.Context, user *storage.User, photoID int64) (*storage.Photo, error) {
	p, err := s.store.GetPhoto(ctx, photoID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound("photo not found")
	}
	if err != nil {
		return nil, apperr.Internal("failed to load photo", err)
	}
	if !s.access.CanShare(user, p) {
		return nil, apperr.Forbidden("you do not own this photo")
	}
	return p, nil
}

func (s *Service) userByName(ctx context.Context, username string) (*storage.User, error) {
	u, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, apperr.Internal("failed to load user", err)
	}
	return u, nil
}

// Share grants targetUsername access to one of user's photos. Sharing again
// replaces the permission type. The photo's ownership is checked before the
// target is resolved.
func (s *Service) Share(ctx context.Context, user *storage.User, photoID int64, targetUsername, permissionType string) (*storage.Grant, error) {
	targetUsername = strings.TrimSpace(targetUsername)
	if targetUsername == "" {
		return nil, apperr.Validation("username is required")
	}
	if permissionType == "" {
		permissionType = storage.PermissionView
	}
	if permissionType != storage.PermissionView && permissionType != storage.PermissionDownload {
		return nil, apperr.Validation("permission type must be view or download")
	}

	photo, err := s.ownedPhoto(ctx, user, photoID)
	if err != nil {
		return nil, err
	}
	target, err := s.userByName(ctx, targetUsername)
	if err != nil {
		return nil, err
	}
	if target.ID == user.ID {
		return nil, apperr.Validation("cannot share a photo with yourself")
	}

	g := &storage.Grant{
		PhotoID:        photo.ID,
		UserID:         target.ID,
		Username:       target.Username,
		PermissionType: permissionType,
		CreatedAt:      s.clock.Now().Unix(),
	}
	if err := s.store.UpsertGrant(ctx, g); err != nil {
		return nil, apperr.Internal("failed to share photo", err)
	}

	s.events.Publish(events.Event{Type: events.PhotoShared, PhotoID: photo.ID, Actor: user.Username, At: g.CreatedAt}, target.ID)
	s.log.Info("photo shared", "photo_id", photo.ID, "owner_id", user.ID, "target_id", target.ID, "permission", permissionType)
	return g, nil
}

// Unshare revokes username's grant on one of user's photos.
func (s *Service) Unshare(ctx context.Context, user *storage.User, photoID int64, username string) error {
	photo, err := s.ownedPhoto(ctx, user, photoID)
	if err != nil {
		return err
	}
	target, err := s.userByName(ctx, username)
	if err != nil {
		return err
	}
	if err := s.store.DeleteGrant(ctx, photo.ID, target.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound("photo is not shared with this user")
		}
		return apperr.Internal("failed to unshare photo", err)
	}
	s.events.Publish(events.Event{Type: events.PhotoUnshared, PhotoID: photo.ID, Actor: user.Username, At: s.clock.Now().Unix()}, target.ID)
	return nil
}

// ListShares returns the grants on one of user's photos.
func (s *Service) ListShares(ctx context.Context, user *storage.User, photoID int64) ([]storage.Grant, error) {
	photo, err := s.ownedPhoto(ctx, user, photoID)
	if err != nil {
		return nil, err
	}
	grants, err := s.store.ListGrantsForPhoto(ctx, photo.ID)
	if err != nil {
		return nil, apperr.Internal("failed to list shares", err)
	}
	return nonNil(grants), nil
}

// --- Users ---

// ListUsers returns every account without private fields.
func (s *Service) ListUsers(ctx context.Context) ([]UserSummary, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, apperr.Internal("failed to list users", err)
	}
	out := make([]UserSummary, 0, len(users))
	for _, u := range users {
		out = append(out, UserSummary{ID: u.ID, Username: u.Username, CreatedAt: u.CreatedAt})
	}
	return out, nil
}

// DeleteUser removes an account with its albums, photos and grants, then
// removes the photo files.
func (s *Service) DeleteUser(ctx context.Context, userID int64) error {
	filenames, err := s.store.PhotoFilenamesByUser(ctx, userID)
	if err != nil {
		return apperr.Internal("failed to delete user", err)
	}
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound("user not found")
		}
		return apperr.Internal("failed to delete user", err)
	}
	s.files.RemoveFiles(filenames...)
	s.log.Info("user deleted", "user_id", userID, "photos", len(filenames))
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
