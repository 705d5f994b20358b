package server

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSweepOrphans(t *testing.T) {
	env := setupTestServer(t)
	token := registerAndLogin(t, env.srv, "alice")
	album := createTestAlbum(t, env.srv, token, "Trip")
	photo := uploadTestPhoto(t, env.srv, token, album.ID, "p.jpg", "kept")

	// A file nobody refers to, old enough to be swept.
	orphan := filepath.Join(env.files.Root(), "photo-1-deadbeefdeadbeef.jpg")
	if err := os.WriteFile(orphan, []byte("orphan"), 0o644); err != nil {
		t.Fatalf("write orphan: %v", err)
	}
	// A fresh orphan that is still inside the grace period.
	fresh := filepath.Join(env.files.Root(), "photo-2-feedfacefeedface.jpg")
	if err := os.WriteFile(fresh, []byte("fresh"), 0o644); err != nil {
		t.Fatalf("write fresh orphan: %v", err)
	}

	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(orphan, old, old); err != nil {
		t.Fatalf("chtimes orphan: %v", err)
	}
	kept := filepath.Join(env.files.Root(), photo.Filename)
	if err := os.Chtimes(kept, old, old); err != nil {
		t.Fatalf("chtimes photo: %v", err)
	}

	if n := env.srv.sweepOrphans(context.Background()); n != 1 {
		t.Fatalf("swept %d files, want 1", n)
	}

	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Errorf("orphan should be removed, stat err = %v", err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("fresh file should survive: %v", err)
	}
	if _, err := os.Stat(kept); err != nil {
		t.Errorf("referenced file should survive: %v", err)
	}

	rec := doJSON(t, env.srv, http.MethodGet, "/uploads/"+photo.Filename, token, nil)
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "kept") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestStartWorkers_StopsOnCancel(t *testing.T) {
	env := setupTestServer(t)
	env.srv.opts.SessionSweepInterval = 10 * time.Millisecond
	env.srv.opts.OrphanSweepInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	env.srv.StartWorkers(ctx)

	// Let both sweeps run a few times against the empty store.
	time.Sleep(50 * time.Millisecond)
	cancel()

	rec := doJSON(t, env.srv, http.MethodGet, "/api/health", "", nil)
	expectStatus(t, rec, http.StatusOK)
}
