// Package token produces ready-to-use credentials, refreshing stale OAuth
// tokens through the owning service's token endpoint and publishing the
// renewed value back to the store before returning.
package token

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/wingmanhq/wingman/internal/db/models"
	"github.com/wingmanhq/wingman/internal/store"
	"golang.org/x/oauth2"
)

var (
	// ErrNotAuthorized means no usable credential exists for the user/service.
	ErrNotAuthorized = errors.New("service not authorized")
	// ErrRefreshFailed means a refresh was attempted and the exchange failed.
	ErrRefreshFailed = errors.New("token refresh failed")
)

// exchangeTimeout bounds a single refresh exchange. There is no retry; a
// transient failure surfaces as ErrRefreshFailed and the caller decides.
const exchangeTimeout = 30 * time.Second

// ValidCredential is an immutable snapshot handed to agents. The manager owns
// the stored row; agents never see or mutate it.
type ValidCredential struct {
	UserEmail   string
	Service     string
	AccessToken string
	ExpiresAt   time.Time
	Scopes      []string
	Metadata    map[string]string
}

// HasScopes reports whether the granted scopes cover every required scope.
func (c *ValidCredential) HasScopes(required []string) bool {
	granted := make(map[string]bool, len(c.Scopes))
	for _, s := range c.Scopes {
		granted[s] = true
	}
	for _, s := range required {
		if !granted[s] {
			return false
		}
	}
	return true
}

// Exchanger performs the refresh-token exchange for one service.
type Exchanger interface {
	Exchange(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// OAuthExchanger adapts an *oauth2.Config to the Exchanger interface.
type OAuthExchanger struct {
	Config *oauth2.Config
}

func (e *OAuthExchanger) Exchange(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	src := e.Config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	return src.Token()
}

// Manager loads credentials for a user/service pair, transparently refreshing
// expired tokens for services that support it.
type Manager struct {
	store      *store.Store
	exchangers map[string]Exchanger // services with refresh support

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per user/service refresh critical sections
}

// NewManager creates a token manager. Services absent from exchangers have no
// refresh protocol: their stored access token is returned as-is and downstream
// calls fail naturally on expiry.
func NewManager(st *store.Store, exchangers map[string]Exchanger) *Manager {
	return &Manager{
		store:      st,
		exchangers: exchangers,
		locks:      make(map[string]*sync.Mutex),
	}
}

// LoadCredential returns a currently-valid credential for the user/service.
// Returns ErrNotAuthorized when no credential exists or it lacks the minimum
// token material, ErrRefreshFailed when a required refresh exchange fails.
func (m *Manager) LoadCredential(ctx context.Context, email, service string) (*ValidCredential, error) {
	cred, err := m.store.Credential(email, service)
	if err != nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotAuthorized, email, service)
	}

	exchanger, refreshable := m.exchangers[service]
	if !refreshable {
		// No refresh protocol for this service; hand back the stored token.
		return snapshot(cred), nil
	}

	if cred.RefreshToken == "" {
		return nil, fmt.Errorf("%w: %s/%s has no refresh token", ErrNotAuthorized, email, service)
	}

	if !expired(cred) {
		return snapshot(cred), nil
	}

	refreshed, err := m.refresh(ctx, cred, exchanger)
	if err != nil {
		return nil, err
	}
	return snapshot(refreshed), nil
}

// RefreshNow forces a refresh exchange regardless of expiry.
func (m *Manager) RefreshNow(ctx context.Context, email, service string) (*ValidCredential, error) {
	cred, err := m.store.Credential(email, service)
	if err != nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotAuthorized, email, service)
	}
	exchanger, refreshable := m.exchangers[service]
	if !refreshable {
		return nil, fmt.Errorf("%w: service %s has no refresh protocol", ErrRefreshFailed, service)
	}
	if cred.RefreshToken == "" {
		return nil, fmt.Errorf("%w: %s/%s has no refresh token", ErrNotAuthorized, email, service)
	}
	refreshed, err := m.forceRefresh(ctx, cred, exchanger)
	if err != nil {
		return nil, err
	}
	return snapshot(refreshed), nil
}

// refresh runs the read-modify-write refresh under the per-key lock. The row
// is re-read inside the critical section: a concurrent caller may already have
// refreshed it, in which case no second exchange happens.
func (m *Manager) refresh(ctx context.Context, cred *models.ServiceCredential, exchanger Exchanger) (*models.ServiceCredential, error) {
	lock := m.keyLock(cred.UserEmail, cred.Service)
	lock.Lock()
	defer lock.Unlock()

	current, err := m.store.Credential(cred.UserEmail, cred.Service)
	if err != nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotAuthorized, cred.UserEmail, cred.Service)
	}
	if !expired(current) {
		return current, nil
	}
	return m.exchange(ctx, current, exchanger)
}

func (m *Manager) forceRefresh(ctx context.Context, cred *models.ServiceCredential, exchanger Exchanger) (*models.ServiceCredential, error) {
	lock := m.keyLock(cred.UserEmail, cred.Service)
	lock.Lock()
	defer lock.Unlock()

	current, err := m.store.Credential(cred.UserEmail, cred.Service)
	if err != nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotAuthorized, cred.UserEmail, cred.Service)
	}
	return m.exchange(ctx, current, exchanger)
}

// exchange performs the wire call and publishes the renewed credential back
// through the store before returning control.
func (m *Manager) exchange(ctx context.Context, cred *models.ServiceCredential, exchanger Exchanger) (*models.ServiceCredential, error) {
	ctx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()

	newToken, err := exchanger.Exchange(ctx, cred.RefreshToken)
	if err != nil {
		log.Printf("❌ Refresh failed for %s/%s: %v", cred.UserEmail, cred.Service, err)
		return nil, fmt.Errorf("%w: %s/%s: %v", ErrRefreshFailed, cred.UserEmail, cred.Service, err)
	}

	updated := *cred
	updated.AccessToken = newToken.AccessToken
	updated.ExpiresAt = newToken.Expiry
	// Persist rotated refresh token if the service issued one (RFC 6749)
	if newToken.RefreshToken != "" && newToken.RefreshToken != cred.RefreshToken {
		log.Printf("🔄 Rotating refresh token for %s/%s", cred.UserEmail, cred.Service)
		updated.RefreshToken = newToken.RefreshToken
	}

	if err := m.store.Put(&updated); err != nil {
		return nil, fmt.Errorf("%w: persist refreshed token: %v", ErrRefreshFailed, err)
	}

	log.Printf("✅ Refreshed token for %s/%s (expires: %s)", cred.UserEmail, cred.Service, newToken.Expiry.Format(time.RFC3339))
	return &updated, nil
}

func (m *Manager) keyLock(email, service string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := email + "/" + service
	lock, ok := m.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[key] = lock
	}
	return lock
}

func expired(cred *models.ServiceCredential) bool {
	return !cred.ExpiresAt.After(time.Now())
}

func snapshot(cred *models.ServiceCredential) *ValidCredential {
	return &ValidCredential{
		UserEmail:   cred.UserEmail,
		Service:     cred.Service,
		AccessToken: cred.AccessToken,
		ExpiresAt:   cred.ExpiresAt,
		Scopes:      cred.ScopeList(),
		Metadata:    cred.MetadataMap(),
	}
}
