package models

import (
	"encoding/json"
	"time"
)

// ServiceCredential stores OAuth token material for one user/service pair.
// A row is always written wholesale: refresh replaces access token and expiry
// in place, everything else carries over.
type ServiceCredential struct {
	ID           string `gorm:"primaryKey"` // UUID
	UserEmail    string `gorm:"uniqueIndex:idx_user_service"`
	Service      string `gorm:"uniqueIndex:idx_user_service"` // e.g., "google", "linkedin"
	AccessToken  string
	RefreshToken string // empty for services without refresh support
	ExpiresAt    time.Time
	Scopes       string // JSON array of granted scopes
	Metadata     string // JSON blob for service-specific extras (e.g., LinkedIn member id)
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ScopeList decodes the granted scope set. A malformed column reads as empty.
func (c *ServiceCredential) ScopeList() []string {
	if c.Scopes == "" {
		return nil
	}
	var scopes []string
	if err := json.Unmarshal([]byte(c.Scopes), &scopes); err != nil {
		return nil
	}
	return scopes
}

// SetScopes encodes the granted scope set.
func (c *ServiceCredential) SetScopes(scopes []string) {
	if len(scopes) == 0 {
		c.Scopes = ""
		return
	}
	b, _ := json.Marshal(scopes)
	c.Scopes = string(b)
}

// HasScopes reports whether the granted scope set covers every required scope.
// Order is irrelevant; an empty requirement is always covered.
func (c *ServiceCredential) HasScopes(required []string) bool {
	granted := make(map[string]bool)
	for _, s := range c.ScopeList() {
		granted[s] = true
	}
	for _, s := range required {
		if !granted[s] {
			return false
		}
	}
	return true
}

// MetadataMap decodes service-specific extra fields. Malformed reads as empty.
func (c *ServiceCredential) MetadataMap() map[string]string {
	if c.Metadata == "" {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(c.Metadata), &m); err != nil {
		return nil
	}
	return m
}

// SetMetadata encodes service-specific extra fields.
func (c *ServiceCredential) SetMetadata(m map[string]string) {
	if len(m) == 0 {
		c.Metadata = ""
		return
	}
	b, _ := json.Marshal(m)
	c.Metadata = string(b)
}
