package token

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/wingmanhq/wingman/internal/db/models"
	"github.com/wingmanhq/wingman/internal/store"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "token.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := db.AutoMigrate(&models.ServiceCredential{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return store.New(db)
}

// fakeExchanger counts exchanges and returns a canned token.
type fakeExchanger struct {
	calls int32
	token *oauth2.Token
	err   error
}

func (f *fakeExchanger) Exchange(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return f.token, nil
}

func seedGoogle(t *testing.T, st *store.Store, expiresAt time.Time) {
	t.Helper()
	err := st.Upsert("riya@example.com", "google", store.CredentialData{
		AccessToken:  "at-old",
		RefreshToken: "rt-1",
		ExpiresAt:    expiresAt,
		Scopes:       []string{"https://www.googleapis.com/auth/calendar"},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestLoadCredentialRefreshesExpired(t *testing.T) {
	st := newTestStore(t)
	before := time.Now().Add(-time.Minute)
	seedGoogle(t, st, before)

	fake := &fakeExchanger{token: &oauth2.Token{
		AccessToken: "at-new",
		Expiry:      time.Now().Add(time.Hour),
	}}
	mgr := NewManager(st, map[string]Exchanger{"google": fake})

	cred, err := mgr.LoadCredential(context.Background(), "riya@example.com", "google")
	if err != nil {
		t.Fatalf("load credential: %v", err)
	}
	if cred.AccessToken != "at-new" {
		t.Errorf("access token = %q, want at-new", cred.AccessToken)
	}
	if got := atomic.LoadInt32(&fake.calls); got != 1 {
		t.Errorf("exchanges = %d, want exactly 1", got)
	}

	// The persisted row must have a strictly later expiry than before.
	stored, err := st.Credential("riya@example.com", "google")
	if err != nil {
		t.Fatalf("credential: %v", err)
	}
	if !stored.ExpiresAt.After(before) {
		t.Errorf("persisted expiry %v not after %v", stored.ExpiresAt, before)
	}
	if stored.AccessToken != "at-new" {
		t.Errorf("persisted access token = %q, want at-new", stored.AccessToken)
	}
	// Refresh token untouched unless the service rotates it.
	if stored.RefreshToken != "rt-1" {
		t.Errorf("refresh token = %q, want rt-1", stored.RefreshToken)
	}
}

func TestLoadCredentialIdempotentWhenFresh(t *testing.T) {
	st := newTestStore(t)
	seedGoogle(t, st, time.Now().Add(-time.Minute))

	fake := &fakeExchanger{token: &oauth2.Token{
		AccessToken: "at-new",
		Expiry:      time.Now().Add(time.Hour),
	}}
	mgr := NewManager(st, map[string]Exchanger{"google": fake})

	if _, err := mgr.LoadCredential(context.Background(), "riya@example.com", "google"); err != nil {
		t.Fatalf("first load: %v", err)
	}
	if _, err := mgr.LoadCredential(context.Background(), "riya@example.com", "google"); err != nil {
		t.Fatalf("second load: %v", err)
	}
	if got := atomic.LoadInt32(&fake.calls); got != 1 {
		t.Errorf("exchanges = %d, want 1 (second load must not exchange)", got)
	}
}

func TestLoadCredentialNoCredential(t *testing.T) {
	st := newTestStore(t)
	mgr := NewManager(st, nil)

	_, err := mgr.LoadCredential(context.Background(), "nobody@example.com", "google")
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
}

func TestLoadCredentialMissingRefreshToken(t *testing.T) {
	st := newTestStore(t)
	if err := st.Upsert("riya@example.com", "google", store.CredentialData{
		AccessToken: "at-only",
		ExpiresAt:   time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	fake := &fakeExchanger{}
	mgr := NewManager(st, map[string]Exchanger{"google": fake})

	_, err := mgr.LoadCredential(context.Background(), "riya@example.com", "google")
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized for missing refresh token, got %v", err)
	}
	if fake.calls != 0 {
		t.Errorf("exchanges = %d, want 0", fake.calls)
	}
}

func TestLoadCredentialRefreshFailure(t *testing.T) {
	st := newTestStore(t)
	seedGoogle(t, st, time.Now().Add(-time.Minute))

	fake := &fakeExchanger{err: errors.New("oauth2: cannot fetch token: 400 invalid_grant")}
	mgr := NewManager(st, map[string]Exchanger{"google": fake})

	_, err := mgr.LoadCredential(context.Background(), "riya@example.com", "google")
	if !errors.Is(err, ErrRefreshFailed) {
		t.Fatalf("expected ErrRefreshFailed, got %v", err)
	}

	// The stored row is untouched after a failed exchange.
	stored, storeErr := st.Credential("riya@example.com", "google")
	if storeErr != nil {
		t.Fatalf("credential: %v", storeErr)
	}
	if stored.AccessToken != "at-old" {
		t.Errorf("access token = %q, want at-old", stored.AccessToken)
	}
}

func TestLoadCredentialNoRefreshProtocol(t *testing.T) {
	st := newTestStore(t)
	if err := st.Upsert("riya@example.com", "linkedin", store.CredentialData{
		AccessToken: "at-li",
		ExpiresAt:   time.Now().Add(-time.Hour), // already expired
		Scopes:      []string{"w_member_social"},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// No exchanger registered for linkedin: expired token is returned as-is.
	mgr := NewManager(st, map[string]Exchanger{})
	cred, err := mgr.LoadCredential(context.Background(), "riya@example.com", "linkedin")
	if err != nil {
		t.Fatalf("load credential: %v", err)
	}
	if cred.AccessToken != "at-li" {
		t.Errorf("access token = %q, want at-li", cred.AccessToken)
	}
}

func TestRefreshRotatesRefreshToken(t *testing.T) {
	st := newTestStore(t)
	seedGoogle(t, st, time.Now().Add(-time.Minute))

	fake := &fakeExchanger{token: &oauth2.Token{
		AccessToken:  "at-new",
		RefreshToken: "rt-2",
		Expiry:       time.Now().Add(time.Hour),
	}}
	mgr := NewManager(st, map[string]Exchanger{"google": fake})

	if _, err := mgr.LoadCredential(context.Background(), "riya@example.com", "google"); err != nil {
		t.Fatalf("load credential: %v", err)
	}

	stored, err := st.Credential("riya@example.com", "google")
	if err != nil {
		t.Fatalf("credential: %v", err)
	}
	if stored.RefreshToken != "rt-2" {
		t.Errorf("refresh token = %q, want rotated rt-2", stored.RefreshToken)
	}
}

func TestOAuthExchangerAgainstTokenEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.Form.Get("refresh_token"); got != "rt-1" {
			t.Errorf("refresh_token = %q, want rt-1", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-new",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	defer srv.Close()

	ex := &OAuthExchanger{Config: &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{TokenURL: srv.URL},
	}}

	tok, err := ex.Exchange(context.Background(), "rt-1")
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if tok.AccessToken != "at-new" {
		t.Errorf("access token = %q, want at-new", tok.AccessToken)
	}
	if !tok.Expiry.After(time.Now()) {
		t.Errorf("expiry %v not in the future", tok.Expiry)
	}
}

func TestHasScopes(t *testing.T) {
	tests := []struct {
		name     string
		granted  []string
		required []string
		want     bool
	}{
		{name: "superset", granted: []string{"a", "b", "c"}, required: []string{"a", "c"}, want: true},
		{name: "exact", granted: []string{"a"}, required: []string{"a"}, want: true},
		{name: "missing", granted: []string{"a"}, required: []string{"a", "b"}, want: false},
		{name: "empty requirement", granted: nil, required: nil, want: true},
		{name: "empty grant", granted: nil, required: []string{"a"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cred := &ValidCredential{Scopes: tt.granted}
			if got := cred.HasScopes(tt.required); got != tt.want {
				t.Fatalf("HasScopes(%v) = %v, want %v", tt.required, got, tt.want)
			}
		})
	}
}
