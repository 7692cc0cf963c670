package store

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/wingmanhq/wingman/internal/db/models"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "store.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := db.AutoMigrate(&models.ServiceCredential{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return New(db)
}

func TestUpsertGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	data := CredentialData{
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		ExpiresAt:    expiry,
		Scopes:       []string{"https://www.googleapis.com/auth/calendar", "https://mail.google.com/"},
		Metadata:     map[string]string{"member_id": "u_123"},
	}

	if err := s.Upsert("riya@example.com", "google", data); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	record, err := s.Get("riya@example.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	cred, ok := record.Services["google"]
	if !ok {
		t.Fatal("expected google credential in record")
	}
	if cred.AccessToken != "at-1" || cred.RefreshToken != "rt-1" {
		t.Errorf("token material lost: %+v", cred)
	}
	if !cred.ExpiresAt.Equal(expiry) {
		t.Errorf("expiry = %v, want %v", cred.ExpiresAt, expiry)
	}
	if !cred.HasScopes(data.Scopes) {
		t.Errorf("scopes lost: %q", cred.Scopes)
	}
	if cred.MetadataMap()["member_id"] != "u_123" {
		t.Errorf("metadata lost: %q", cred.Metadata)
	}
}

func TestUpsertReplacesWholesale(t *testing.T) {
	s := newTestStore(t)
	if err := s.Upsert("a@example.com", "google", CredentialData{
		AccessToken:  "old",
		RefreshToken: "rt-old",
		Scopes:       []string{"scope-a"},
		Metadata:     map[string]string{"k": "v"},
	}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	before, err := s.Credential("a@example.com", "google")
	if err != nil {
		t.Fatalf("credential: %v", err)
	}

	if err := s.Upsert("a@example.com", "google", CredentialData{
		AccessToken: "new",
		Scopes:      []string{"scope-b"},
	}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	after, err := s.Credential("a@example.com", "google")
	if err != nil {
		t.Fatalf("credential: %v", err)
	}
	if after.ID != before.ID {
		t.Errorf("row id changed on replace: %s -> %s", before.ID, after.ID)
	}
	if after.AccessToken != "new" {
		t.Errorf("access token = %q, want new", after.AccessToken)
	}
	// Replacement is wholesale: stale refresh token and metadata do not leak through.
	if after.RefreshToken != "" || after.Metadata != "" {
		t.Errorf("replace leaked old fields: %+v", after)
	}
	if after.HasScopes([]string{"scope-a"}) {
		t.Error("old scope survived wholesale replace")
	}
}

func TestGetUnknownUser(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Get("nobody@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestCredentialDistinguishesUserFromService(t *testing.T) {
	s := newTestStore(t)
	if err := s.Upsert("a@example.com", "google", CredentialData{AccessToken: "at"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if _, err := s.Credential("a@example.com", "linkedin"); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected ErrCredentialNotFound, got %v", err)
	}
	if _, err := s.Credential("b@example.com", "google"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestConcurrentUpsertsDoNotLoseUsers(t *testing.T) {
	s := newTestStore(t)

	var wg sync.WaitGroup
	emails := []string{"a@example.com", "b@example.com", "c@example.com", "d@example.com"}
	for _, email := range emails {
		wg.Add(1)
		go func(email string) {
			defer wg.Done()
			if err := s.Upsert(email, "google", CredentialData{AccessToken: "at-" + email}); err != nil {
				t.Errorf("upsert %s: %v", email, err)
			}
		}(email)
	}
	wg.Wait()

	users, err := s.Users()
	if err != nil {
		t.Fatalf("users: %v", err)
	}
	if len(users) != len(emails) {
		t.Fatalf("expected %d users, got %d (%v)", len(emails), len(users), users)
	}
}

func TestImportLegacyUsers(t *testing.T) {
	s := newTestStore(t)
	path := filepath.Join(t.TempDir(), "users.json")
	payload := `[
		{
			"email": "riya@example.com",
			"services": {
				"google": {
					"access_token": "at-g",
					"refresh_token": "rt-g",
					"expiry": "2026-01-02T15:04:05Z",
					"scopes": ["https://www.googleapis.com/auth/calendar"]
				},
				"linkedin": {
					"access_token": "at-l",
					"expires_in": 3600,
					"scopes": ["w_member_social"]
				}
			}
		}
	]`
	if err := os.WriteFile(path, []byte(payload), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	if got := s.ImportLegacyUsers(path); got != 2 {
		t.Fatalf("imported = %d, want 2", got)
	}

	cred, err := s.Credential("riya@example.com", "google")
	if err != nil {
		t.Fatalf("credential: %v", err)
	}
	want, _ := time.Parse(time.RFC3339, "2026-01-02T15:04:05Z")
	if !cred.ExpiresAt.Equal(want) {
		t.Errorf("expiry = %v, want %v", cred.ExpiresAt, want)
	}
}

func TestImportLegacyUsersMalformed(t *testing.T) {
	s := newTestStore(t)
	path := filepath.Join(t.TempDir(), "users.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	if got := s.ImportLegacyUsers(path); got != 0 {
		t.Fatalf("imported = %d, want 0", got)
	}
	if _, err := s.Get("riya@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("store should be empty after malformed import, got %v", err)
	}
}

func TestImportLegacyUsersMissingFile(t *testing.T) {
	s := newTestStore(t)
	if got := s.ImportLegacyUsers(filepath.Join(t.TempDir(), "missing.json")); got != 0 {
		t.Fatalf("imported = %d, want 0", got)
	}
}
