package db

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitDBGeneratesAPIKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wingman.db")
	database, err := InitDB(path)
	if err != nil {
		t.Fatalf("init db: %v", err)
	}

	key := GetAPIKey(database)
	if !strings.HasPrefix(key, "wm-") || len(key) != 35 {
		t.Fatalf("unexpected API key format: %q", key)
	}

	// Reopening must keep the same key, not mint a new one.
	database2, err := InitDB(path)
	if err != nil {
		t.Fatalf("reopen db: %v", err)
	}
	if got := GetAPIKey(database2); got != key {
		t.Errorf("key changed across restarts: %q -> %q", key, got)
	}
}

func TestRegenerateAPIKey(t *testing.T) {
	database, err := InitDB(filepath.Join(t.TempDir(), "wingman.db"))
	if err != nil {
		t.Fatalf("init db: %v", err)
	}

	old := GetAPIKey(database)
	fresh := RegenerateAPIKey(database)
	if fresh == old {
		t.Fatal("regenerated key equals old key")
	}
	if got := GetAPIKey(database); got != fresh {
		t.Errorf("stored key = %q, want %q", got, fresh)
	}
}

func TestInitDBRecoversCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wingman.db")
	if err := os.WriteFile(path, []byte("this is not a sqlite database at all"), 0o600); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	database, err := InitDB(path)
	if err != nil {
		t.Fatalf("expected recovery from corrupt file, got %v", err)
	}
	if GetAPIKey(database) == "" {
		t.Error("recovered store has no API key")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	movedAside := false
	for _, e := range entries {
		if strings.Contains(e.Name(), ".corrupt.") {
			movedAside = true
		}
	}
	if !movedAside {
		t.Error("corrupt file was not moved aside")
	}
}
