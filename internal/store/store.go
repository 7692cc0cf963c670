// Package store is the durable credential store: per-user, per-service token
// records with a single-writer discipline so concurrent refresh write-backs
// from different sessions cannot interleave.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wingmanhq/wingman/internal/db/models"
	"gorm.io/gorm"
)

var (
	// ErrUserNotFound means no service has ever been authorized for the user.
	ErrUserNotFound = errors.New("user not found")
	// ErrCredentialNotFound means the user exists but not for this service.
	ErrCredentialNotFound = errors.New("credential not found")
)

// CredentialData is the caller-facing shape of one service authorization.
type CredentialData struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scopes       []string
	Metadata     map[string]string
}

// UserRecord is a read view of everything a user has authorized.
type UserRecord struct {
	Email    string
	Services map[string]*models.ServiceCredential
}

// Store wraps the database with a store-wide write lock. Reads go straight to
// the database; every write runs in a transaction under the lock.
type Store struct {
	db *gorm.DB
	mu sync.Mutex
}

// New creates a credential store over an initialized database.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Get returns the user's full record, or ErrUserNotFound.
func (s *Store) Get(email string) (*UserRecord, error) {
	var creds []models.ServiceCredential
	if err := s.db.Where("user_email = ?", email).Find(&creds).Error; err != nil {
		return nil, fmt.Errorf("load user %s: %w", email, err)
	}
	if len(creds) == 0 {
		return nil, ErrUserNotFound
	}

	record := &UserRecord{
		Email:    email,
		Services: make(map[string]*models.ServiceCredential, len(creds)),
	}
	for i := range creds {
		record.Services[creds[i].Service] = &creds[i]
	}
	return record, nil
}

// Credential returns the stored credential for one user/service pair.
func (s *Store) Credential(email, service string) (*models.ServiceCredential, error) {
	var cred models.ServiceCredential
	err := s.db.Where("user_email = ? AND service = ?", email, service).First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Distinguish unknown user from unknown service for the caller.
		var count int64
		s.db.Model(&models.ServiceCredential{}).Where("user_email = ?", email).Count(&count)
		if count == 0 {
			return nil, ErrUserNotFound
		}
		return nil, ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load credential %s/%s: %w", email, service, err)
	}
	return &cred, nil
}

// Upsert creates the user's credential row for a service, or replaces it
// wholesale. The row id is preserved across replacements.
func (s *Store) Upsert(email, service string, data CredentialData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Transaction(func(tx *gorm.DB) error {
		var existing models.ServiceCredential
		err := tx.Where("user_email = ? AND service = ?", email, service).First(&existing).Error

		cred := models.ServiceCredential{
			ID:           uuid.New().String(),
			UserEmail:    email,
			Service:      service,
			AccessToken:  data.AccessToken,
			RefreshToken: data.RefreshToken,
			ExpiresAt:    data.ExpiresAt,
		}
		cred.SetScopes(data.Scopes)
		cred.SetMetadata(data.Metadata)

		if err == nil {
			cred.ID = existing.ID
			cred.CreatedAt = existing.CreatedAt
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("lookup %s/%s: %w", email, service, err)
		}

		if err := tx.Save(&cred).Error; err != nil {
			return fmt.Errorf("save credential %s/%s: %w", email, service, err)
		}
		log.Printf("✅ Credentials for service %q saved for %s", service, email)
		return nil
	})
}

// Put replaces a credential row with a fully-formed value. Used by the token
// manager to publish a refreshed credential back in one write.
func (s *Store) Put(cred *models.ServiceCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cred.ID == "" {
		cred.ID = uuid.New().String()
	}
	if err := s.db.Save(cred).Error; err != nil {
		return fmt.Errorf("save credential %s/%s: %w", cred.UserEmail, cred.Service, err)
	}
	return nil
}

// Users lists all user identifiers present in the store, sorted.
func (s *Store) Users() ([]string, error) {
	var emails []string
	if err := s.db.Model(&models.ServiceCredential{}).Distinct("user_email").Pluck("user_email", &emails).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	sort.Strings(emails)
	return emails, nil
}

// legacyUser mirrors the users.json entry shape from the original file store:
// [{"email": ..., "services": {"google": {"access_token": ...}}}]
type legacyUser struct {
	Email    string                      `json:"email"`
	Services map[string]legacyCredential `json:"services"`
}

type legacyCredential struct {
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token"`
	Expiry       string            `json:"expiry"`
	ExpiresIn    int64             `json:"expires_in"`
	Scopes       []string          `json:"scopes"`
	Extra        map[string]string `json:"extra"`
}

// ImportLegacyUsers loads a users.json file into the store. A missing or
// malformed file imports nothing; the store stays usable either way.
func (s *Store) ImportLegacyUsers(path string) int {
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("⚠️ Cannot read legacy users file %s: %v", path, err)
		}
		return 0
	}

	var users []legacyUser
	if err := json.Unmarshal(raw, &users); err != nil {
		log.Printf("⚠️ Legacy users file %s is malformed, importing nothing: %v", path, err)
		return 0
	}

	imported := 0
	for _, u := range users {
		if u.Email == "" {
			continue
		}
		for service, lc := range u.Services {
			data := CredentialData{
				AccessToken:  lc.AccessToken,
				RefreshToken: lc.RefreshToken,
				Scopes:       lc.Scopes,
				Metadata:     lc.Extra,
			}
			if lc.Expiry != "" {
				if ts, err := time.Parse(time.RFC3339, lc.Expiry); err == nil {
					data.ExpiresAt = ts
				}
			} else if lc.ExpiresIn > 0 {
				data.ExpiresAt = time.Now().Add(time.Duration(lc.ExpiresIn) * time.Second)
			}
			if err := s.Upsert(u.Email, service, data); err != nil {
				log.Printf("⚠️ Import %s/%s failed: %v", u.Email, service, err)
				continue
			}
			imported++
		}
	}
	if imported > 0 {
		log.Printf("📦 Imported %d legacy credentials from %s", imported, path)
	}
	return imported
}
