// Package access decides who may read or change albums and photos.
//
// Owners may do anything with what they own. Anyone else may read a photo
// only through a grant on that photo; albums are private to their owner.
// Callers look the resource up first and report NotFound themselves, so a
// Require* failure always means the resource exists and is off limits.
package access

import (
	"context"
	"errors"

	"github.com/ssd-technologies/photoshare/internal/apperr"
	"github.com/ssd-technologies/photoshare/internal/storage"
)

// GrantLookup finds the grant a user holds on a photo.
type GrantLookup interface {
	GetGrant(ctx context.Context, photoID, userID int64) (*storage.Grant, error)
}

// Resolver answers access questions.
type Resolver struct {
	grants GrantLookup
}

// NewResolver returns a Resolver backed by grants.
func NewResolver(grants GrantLookup) *Resolver {
	return &Resolver{grants: grants}
}

// CanReadAlbum reports whether user may list album's photos.
func (r *Resolver) CanReadAlbum(user *storage.User, album *storage.Album) bool {
	return owns(user, album.UserID)
}

// CanMutateAlbum reports whether user may upload into or delete album.
func (r *Resolver) CanMutateAlbum(user *storage.User, album *storage.Album) bool {
	return owns(user, album.UserID)
}

// CanReadPhoto reports whether user owns photo or holds a grant on it.
func (r *Resolver) CanReadPhoto(ctx context.Context, user *storage.User, photo *storage.Photo) (bool, error) {
	if user == nil {
		return false, nil
	}
	if owns(user, photo.UserID) {
		return true, nil
	}
	_, err := r.grants.GetGrant(ctx, photo.ID, user.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CanMutatePhoto reports whether user may delete photo.
func (r *Resolver) CanMutatePhoto(user *storage.User, photo *storage.Photo) bool {
	return owns(user, photo.UserID)
}

// CanShare reports whether user may grant or revoke access to photo.
func (r *Resolver) CanShare(user *storage.User, photo *storage.Photo) bool {
	return owns(user, photo.UserID)
}

// RequireAlbumOwner returns Forbidden unless user owns album.
func (r *Resolver) RequireAlbumOwner(user *storage.User, album *storage.Album) error {
	if !r.CanMutateAlbum(user, album) {
		return apperr.Forbidden("you do not own this album")
	}
	return nil
}

// RequirePhotoOwner returns Forbidden unless user owns photo.
func (r *Resolver) RequirePhotoOwner(user *storage.User, photo *storage.Photo) error {
	if !r.CanMutatePhoto(user, photo) {
		return apperr.Forbidden("you do not own this photo")
	}
	return nil
}

// RequirePhotoReader returns Forbidden unless user may read photo.
func (r *Resolver) RequirePhotoReader(ctx context.Context, user *storage.User, photo *storage.Photo) error {
	ok, err := r.CanReadPhoto(ctx, user, photo)
	if err != nil {
		return apperr.Internal("permission check failed", err)
	}
	if !ok {
		return apperr.Forbidden("you do not have access to this photo")
	}
	return nil
}

func owns(user *storage.User, ownerID int64) bool {
	return user != nil && user.ID == ownerID
}
