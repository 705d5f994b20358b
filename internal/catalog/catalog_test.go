package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/ssd-technologies/photoshare/internal/access"
	"github.com/ssd-technologies/photoshare/internal/apperr"
	"github.com/ssd-technologies/photoshare/internal/storage"
)

type removed struct{ names []string }

func (r *removed) RemoveFiles(names ...string) { r.names = append(r.names, names...) }

type fixture struct {
	db      *storage.DB
	svc     *Service
	removed *removed
	alice   *storage.User
	bob     *storage.User
	carol   *storage.User
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := storage.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	f := &fixture{db: db, removed: &removed{}}
	f.svc = NewService(db, access.NewResolver(db), f.removed, Options{})
	f.alice = f.user(t, "alice")
	f.bob = f.user(t, "bob")
	f.carol = f.user(t, "carol")
	return f
}

func (f *fixture) user(t *testing.T, name string) *storage.User {
	t.Helper()
	u := &storage.User{Username: name, Email: name + "@x.com", PasswordHash: "h", CreatedAt: 1}
	if err := f.db.CreateUser(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	return u
}

func (f *fixture) photo(t *testing.T, album *storage.Album, name string, createdAt int64) *storage.Photo {
	t.Helper()
	p := &storage.Photo{Filename: name, UserID: album.UserID, AlbumID: album.ID, CreatedAt: createdAt}
	if err := f.db.CreatePhoto(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	return p
}

func (f *fixture) album(t *testing.T, owner *storage.User, name string) *storage.Album {
	t.Helper()
	a, err := f.svc.CreateAlbum(context.Background(), owner, name, "")
	if err != nil {
		t.Fatalf("CreateAlbum: %v", err)
	}
	return a
}

func TestCreateAlbum_Validation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	a, err := f.svc.CreateAlbum(ctx, f.alice, "  Holiday  ", " beach ")
	if err != nil {
		t.Fatalf("CreateAlbum: %v", err)
	}
	if a.Name != "Holiday" || a.Description != "beach" || a.UserID != f.alice.ID {
		t.Errorf("album = %+v", a)
	}

	for _, name := range []string{"", "   ", strings.Repeat("x", 101)} {
		if _, err := f.svc.CreateAlbum(ctx, f.alice, name, ""); !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("CreateAlbum(%q) err = %v, want validation", name, err)
		}
	}
	if _, err := f.svc.CreateAlbum(ctx, f.alice, "ok", strings.Repeat("d", 1001)); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("long description err = %v, want validation", err)
	}
}

func TestListAlbums_OnlyOwn(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.album(t, f.alice, "A1")
	f.album(t, f.bob, "B1")

	albums, err := f.svc.ListAlbums(ctx, f.carol)
	if err != nil {
		t.Fatal(err)
	}
	if albums == nil || len(albums) != 0 {
		t.Errorf("carol's albums = %v, want empty non-nil", albums)
	}
	albums, _ = f.svc.ListAlbums(ctx, f.alice)
	if len(albums) != 1 || albums[0].Name != "A1" {
		t.Errorf("alice's albums = %+v", albums)
	}
}

func TestListAlbumPhotos_OwnershipGate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.album(t, f.alice, "Trip")
	f.photo(t, a, "one.jpg", 1)

	if _, err := f.svc.ListAlbumPhotos(ctx, f.bob, a.ID); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("bob err = %v, want forbidden", err)
	}
	if _, err := f.svc.ListAlbumPhotos(ctx, f.alice, 999); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("missing err = %v, want not found", err)
	}
	photos, err := f.svc.ListAlbumPhotos(ctx, f.alice, a.ID)
	if err != nil || len(photos) != 1 {
		t.Errorf("ListAlbumPhotos = %v, %v", photos, err)
	}
}

func TestDeleteAlbum_CascadesAndRemovesFiles(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.album(t, f.alice, "Trip")
	p := f.photo(t, a, "one.jpg", 1)

	if err := f.svc.DeleteAlbum(ctx, f.bob, a.ID); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("bob err = %v, want forbidden", err)
	}
	if err := f.svc.DeleteAlbum(ctx, f.alice, a.ID); err != nil {
		t.Fatalf("DeleteAlbum: %v", err)
	}
	if _, err := f.db.GetPhoto(ctx, p.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("photo survived album deletion: %v", err)
	}
	if len(f.removed.names) != 1 || f.removed.names[0] != "one.jpg" {
		t.Errorf("removed = %v", f.removed.names)
	}
}

func TestShare_Rules(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.photo(t, f.album(t, f.alice, "A"), "p.jpg", 1)

	tests := []struct {
		name   string
		actor  *storage.User
		photo  int64
		target string
		perm   string
		kind   apperr.Kind
	}{
		{"empty target", f.alice, p.ID, " ", "", apperr.KindValidation},
		{"bad permission", f.alice, p.ID, "bob", "edit", apperr.KindValidation},
		{"missing photo", f.alice, 999, "bob", "", apperr.KindNotFound},
		{"not owner", f.bob, p.ID, "carol", "", apperr.KindForbidden},
		{"not owner, unknown target", f.bob, p.ID, "nobody", "", apperr.KindForbidden},
		{"unknown target", f.alice, p.ID, "nobody", "", apperr.KindNotFound},
		{"self", f.alice, p.ID, "alice", "", apperr.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Share(ctx, tt.actor, tt.photo, tt.target, tt.perm)
			if !apperr.Is(err, tt.kind) {
				t.Fatalf("err = %v, want %s", err, tt.kind)
			}
		})
	}

	grants, _ := f.db.ListGrantsForPhoto(ctx, p.ID)
	if len(grants) != 0 {
		t.Errorf("rejected shares created grants: %+v", grants)
	}
}

func TestShare_RegrantKeepsOneRow(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.photo(t, f.album(t, f.alice, "A"), "p.jpg", 1)

	g, err := f.svc.Share(ctx, f.alice, p.ID, "bob", "")
	if err != nil {
		t.Fatalf("Share: %v", err)
	}
	if g.PermissionType != storage.PermissionView || g.Username != "bob" {
		t.Errorf("grant = %+v", g)
	}
	if _, err := f.svc.Share(ctx, f.alice, p.ID, "bob", storage.PermissionDownload); err != nil {
		t.Fatalf("Share again: %v", err)
	}

	grants, err := f.svc.ListShares(ctx, f.alice, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(grants) != 1 || grants[0].PermissionType != storage.PermissionDownload {
		t.Errorf("grants = %+v", grants)
	}
	if _, err := f.svc.ListShares(ctx, f.bob, p.ID); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("grantee ListShares err = %v, want forbidden", err)
	}
}

func TestVisibility(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	aliceAlbum := f.album(t, f.alice, "A")
	bobAlbum := f.album(t, f.bob, "B")
	shared := f.photo(t, aliceAlbum, "shared.jpg", 2)
	f.photo(t, aliceAlbum, "private.jpg", 3)
	own := f.photo(t, bobAlbum, "bob.jpg", 1)

	if _, err := f.svc.Share(ctx, f.alice, shared.ID, "bob", ""); err != nil {
		t.Fatal(err)
	}

	visible, err := f.svc.ListVisiblePhotos(ctx, f.bob)
	if err != nil {
		t.Fatal(err)
	}
	var ids []int64
	for _, p := range visible {
		ids = append(ids, p.ID)
	}
	if len(ids) != 2 || ids[0] != shared.ID || ids[1] != own.ID {
		t.Errorf("visible ids = %v, want [%d %d]", ids, shared.ID, own.ID)
	}

	ofAlice, err := f.svc.ListUserPhotos(ctx, f.bob, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(ofAlice) != 1 || ofAlice[0].ID != shared.ID {
		t.Errorf("alice's photos for bob = %+v", ofAlice)
	}
	if _, err := f.svc.ListUserPhotos(ctx, f.bob, "nobody"); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("unknown user err = %v, want not found", err)
	}

	carolSees, _ := f.svc.ListVisiblePhotos(ctx, f.carol)
	if len(carolSees) != 0 {
		t.Errorf("carol sees %d photos, want 0", len(carolSees))
	}

	if err := f.svc.Unshare(ctx, f.alice, shared.ID, "bob"); err != nil {
		t.Fatalf("Unshare: %v", err)
	}
	if err := f.svc.Unshare(ctx, f.alice, shared.ID, "bob"); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("second Unshare err = %v, want not found", err)
	}
	visible, _ = f.svc.ListVisiblePhotos(ctx, f.bob)
	if len(visible) != 1 {
		t.Errorf("after unshare bob sees %d, want 1", len(visible))
	}
}

func TestListUsers_NoPrivateFields(t *testing.T) {
	f := setup(t)
	users, err := f.svc.ListUsers(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Username)
	}
	if !sort.StringsAreSorted(names) || len(names) != 3 {
		t.Errorf("names = %v", names)
	}
}

func TestDeleteUser_Cascade(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	aliceAlbum := f.album(t, f.alice, "A")
	alicePhoto := f.photo(t, aliceAlbum, "alice.jpg", 1)
	bobPhoto := f.photo(t, f.album(t, f.bob, "B"), "bob.jpg", 1)
	f.svc.Share(ctx, f.alice, alicePhoto.ID, "bob", "")
	f.svc.Share(ctx, f.bob, bobPhoto.ID, "alice", "")

	if err := f.svc.DeleteUser(ctx, f.alice.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}

	if _, err := f.db.GetAlbum(ctx, aliceAlbum.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Error("album survived")
	}
	if _, err := f.db.GetPhoto(ctx, alicePhoto.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Error("photo survived")
	}
	grants, _ := f.db.ListGrantsForPhoto(ctx, bobPhoto.ID)
	if len(grants) != 0 {
		t.Errorf("grants to deleted user survived: %+v", grants)
	}
	if len(f.removed.names) != 1 || f.removed.names[0] != "alice.jpg" {
		t.Errorf("removed = %v", f.removed.names)
	}
	if err := f.svc.DeleteUser(ctx, f.alice.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("second DeleteUser err = %v, want not found", err)
	}
}
