package state_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"autograde/internal/cli/state"
	"autograde/internal/common/http/middleware"
)

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()
	store := state.NewStore(filepath.Join(t.TempDir(), "nested", "state.json"))

	saved, err := store.Load()
	if err != nil {
		t.Fatalf("load missing state failed: %v", err)
	}
	if saved.AccessToken != "" {
		t.Fatalf("expected empty token, got %q", saved.AccessToken)
	}

	if _, err := store.Save("abc"); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	info, err := os.Stat(store.Path())
	if err != nil || info.Mode().Perm() != 0o600 {
		t.Fatalf("token file must be owner-only: %v %v", info, err)
	}
	saved, err = store.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if saved.AccessToken != "abc" || saved.SavedAt.IsZero() {
		t.Fatalf("unexpected state: %+v", saved)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("clear of missing file failed: %v", err)
	}
}

func TestStoreRejectsCorruptFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := state.NewStore(path).Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestInspect(t *testing.T) {
	t.Parallel()
	auth := middleware.NewAuthenticator("secret", "autograde")
	token, err := auth.Issue("t-7", middleware.RoleTeacher, time.Hour)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	info, err := state.Inspect(token)
	if err != nil {
		t.Fatalf("inspect failed: %v", err)
	}
	if info.Subject != "t-7" || info.Role != middleware.RoleTeacher {
		t.Fatalf("unexpected claims: %+v", info)
	}
	if info.Expired(time.Now()) || !info.Expired(time.Now().Add(2*time.Hour)) {
		t.Fatalf("unexpected expiry: %s", info.ExpiresAt)
	}
	if _, err := state.Inspect("not-a-token"); err == nil {
		t.Fatalf("expected decode error")
	}
}
