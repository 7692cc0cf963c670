package director

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/wingmanhq/wingman/internal/agents"
	"github.com/wingmanhq/wingman/internal/auth/token"
	"github.com/wingmanhq/wingman/internal/db/models"
	"github.com/wingmanhq/wingman/internal/store"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "director.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := db.AutoMigrate(&models.ServiceCredential{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return store.New(db)
}

type staticExchanger struct {
	token *oauth2.Token
	err   error
	calls int
}

func (e *staticExchanger) Exchange(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return e.token, nil
}

func newResolver(st *store.Store, ex token.Exchanger) *Resolver {
	exchangers := map[string]token.Exchanger{}
	if ex != nil {
		exchangers["google"] = ex
	}
	mgr := token.NewManager(st, exchangers)
	return NewResolver(agents.BuiltinRegistry(), mgr, st, agents.Deps{})
}

func TestResolveRequiresEnrollment(t *testing.T) {
	st := newTestStore(t)
	r := newResolver(st, nil)

	_, err := r.Resolve(context.Background(), "stranger@example.com")
	if !errors.Is(err, ErrNotEnrolled) {
		t.Fatalf("expected ErrNotEnrolled, got %v", err)
	}
}

func TestResolveCalendarOnly(t *testing.T) {
	st := newTestStore(t)
	err := st.Upsert("riya@example.com", "google", store.CredentialData{
		AccessToken:  "at",
		RefreshToken: "rt",
		ExpiresAt:    time.Now().Add(time.Hour),
		Scopes:       []string{"https://www.googleapis.com/auth/calendar"},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	set, err := newResolver(st, &staticExchanger{}).Resolve(context.Background(), "riya@example.com")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	states := set.States()
	if states["calendar"] != StateActive {
		t.Errorf("calendar = %s, want active", states["calendar"])
	}
	// Google credential exists but mail/doc scopes weren't granted:
	// present-but-disabled, not never-configured.
	if states["email"] != StateDisabled {
		t.Errorf("email = %s, want disabled", states["email"])
	}
	if states["doc"] != StateDisabled {
		t.Errorf("doc = %s, want disabled", states["doc"])
	}
	// LinkedIn was never authorized at all.
	if states["linkedin"] != StateNotConfigured {
		t.Errorf("linkedin = %s, want not_configured", states["linkedin"])
	}
	// Public agents are always active.
	if states["weather"] != StateActive || states["websearch"] != StateActive {
		t.Errorf("public agents should be active: %v", states)
	}

	if _, ok := set.Agent("calendar"); !ok {
		t.Error("calendar agent not constructed")
	}
	if _, ok := set.Agent("email"); ok {
		t.Error("email agent should not be constructed")
	}
}

func TestResolveRefreshesExpiredCredential(t *testing.T) {
	st := newTestStore(t)
	err := st.Upsert("riya@example.com", "google", store.CredentialData{
		AccessToken:  "at-old",
		RefreshToken: "rt",
		ExpiresAt:    time.Now().Add(-time.Minute),
		Scopes:       []string{"https://www.googleapis.com/auth/calendar"},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	ex := &staticExchanger{token: &oauth2.Token{
		AccessToken: "at-new",
		Expiry:      time.Now().Add(time.Hour),
	}}
	set, err := newResolver(st, ex).Resolve(context.Background(), "riya@example.com")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if state, _ := set.State("calendar"); state != StateActive {
		t.Errorf("calendar = %s, want active after refresh", state)
	}
	// The expired credential is shared by calendar, email and doc lookups but
	// only the first load crosses the expiry; later loads see the fresh row.
	if ex.calls != 1 {
		t.Errorf("exchanges = %d, want 1", ex.calls)
	}

	stored, err := st.Credential("riya@example.com", "google")
	if err != nil {
		t.Fatalf("credential: %v", err)
	}
	if stored.AccessToken != "at-new" {
		t.Errorf("persisted access token = %q, want at-new", stored.AccessToken)
	}
}

func TestResolveRefreshFailureDisables(t *testing.T) {
	st := newTestStore(t)
	err := st.Upsert("riya@example.com", "google", store.CredentialData{
		AccessToken:  "at-old",
		RefreshToken: "rt",
		ExpiresAt:    time.Now().Add(-time.Minute),
		Scopes:       []string{"https://www.googleapis.com/auth/calendar"},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	ex := &staticExchanger{err: errors.New("invalid_grant")}
	set, err := newResolver(st, ex).Resolve(context.Background(), "riya@example.com")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if state, _ := set.State("calendar"); state != StateDisabled {
		t.Errorf("calendar = %s, want disabled when refresh fails", state)
	}
}
