package access

import (
	"context"
	"errors"
	"testing"

	"github.com/ssd-technologies/photoshare/internal/apperr"
	"github.com/ssd-technologies/photoshare/internal/storage"
)

type grantKey struct{ photo, user int64 }

type fakeGrants struct {
	grants map[grantKey]bool
	err    error
}

func (f *fakeGrants) GetGrant(_ context.Context, photoID, userID int64) (*storage.Grant, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.grants[grantKey{photoID, userID}] {
		return &storage.Grant{PhotoID: photoID, UserID: userID, PermissionType: storage.PermissionView}, nil
	}
	return nil, storage.ErrNotFound
}

var (
	alice = &storage.User{ID: 1, Username: "alice"}
	bob   = &storage.User{ID: 2, Username: "bob"}
	carol = &storage.User{ID: 3, Username: "carol"}
)

func TestAlbumAccess_OwnerOnly(t *testing.T) {
	r := NewResolver(&fakeGrants{})
	album := &storage.Album{ID: 10, UserID: alice.ID}

	if !r.CanReadAlbum(alice, album) || !r.CanMutateAlbum(alice, album) {
		t.Error("owner should read and mutate album")
	}
	if r.CanReadAlbum(bob, album) || r.CanMutateAlbum(bob, album) {
		t.Error("non-owner should not read or mutate album")
	}
	if err := r.RequireAlbumOwner(bob, album); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("RequireAlbumOwner err = %v, want forbidden", err)
	}
	if err := r.RequireAlbumOwner(alice, album); err != nil {
		t.Errorf("RequireAlbumOwner(owner) = %v", err)
	}
}

func TestPhotoAccess(t *testing.T) {
	grants := &fakeGrants{grants: map[grantKey]bool{{100, bob.ID}: true}}
	r := NewResolver(grants)
	photo := &storage.Photo{ID: 100, UserID: alice.ID}
	ctx := context.Background()

	tests := []struct {
		name     string
		user     *storage.User
		canRead  bool
		canWrite bool
	}{
		{"owner", alice, true, true},
		{"grantee", bob, true, false},
		{"stranger", carol, false, false},
		{"anonymous", nil, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := r.CanReadPhoto(ctx, tt.user, photo)
			if err != nil {
				t.Fatalf("CanReadPhoto: %v", err)
			}
			if ok != tt.canRead {
				t.Errorf("CanReadPhoto = %v, want %v", ok, tt.canRead)
			}
			if got := r.CanMutatePhoto(tt.user, photo); got != tt.canWrite {
				t.Errorf("CanMutatePhoto = %v, want %v", got, tt.canWrite)
			}
			if got := r.CanShare(tt.user, photo); got != tt.canWrite {
				t.Errorf("CanShare = %v, want %v", got, tt.canWrite)
			}
		})
	}
}

func TestRequirePhotoReader_Errors(t *testing.T) {
	photo := &storage.Photo{ID: 100, UserID: alice.ID}
	ctx := context.Background()

	r := NewResolver(&fakeGrants{})
	if err := r.RequirePhotoReader(ctx, bob, photo); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("err = %v, want forbidden", err)
	}
	if err := r.RequirePhotoOwner(bob, photo); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("err = %v, want forbidden", err)
	}

	broken := NewResolver(&fakeGrants{err: errors.New("db down")})
	if err := broken.RequirePhotoReader(ctx, bob, photo); !apperr.Is(err, apperr.KindInternal) {
		t.Errorf("err = %v, want internal", err)
	}
	// Owners never touch the grant table.
	if err := broken.RequirePhotoReader(ctx, alice, photo); err != nil {
		t.Errorf("owner err = %v", err)
	}
}
