package models

import "time"

// Platform 外部平台标识
type Platform string

const (
	PlatformSocial Platform = "social" // Instagram
	PlatformCRM    Platform = "crm"    // GoHighLevel
)

func (p Platform) Valid() bool {
	return p == PlatformSocial || p == PlatformCRM
}

// PlatformCredential 每个用户每个平台至多一条
type PlatformCredential struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	OwnerID           string     `gorm:"not null;size:64;uniqueIndex:idx_credential_owner_platform" json:"owner_id"`
	Platform          Platform   `gorm:"not null;size:16;uniqueIndex:idx_credential_owner_platform" json:"platform"`
	APIKey            string     `gorm:"type:text" json:"-"`
	AccessToken       string     `gorm:"type:text" json:"-"`
	RefreshToken      string     `gorm:"type:text" json:"-"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	ExternalAccountID string     `json:"external_account_id,omitempty"`
	ExternalUsername  string     `json:"external_username,omitempty"`
	Active            bool       `gorm:"not null" json:"active"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// BearerToken returns the secret used for Authorization headers.
// An API key takes precedence over an OAuth access token.
func (c *PlatformCredential) BearerToken() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	return c.AccessToken
}

// ExpiredAt reports whether the credential is unusable at t.
// A nil ExpiresAt never expires.
func (c *PlatformCredential) ExpiredAt(t time.Time) bool {
	return c.ExpiresAt != nil && !t.Before(*c.ExpiresAt)
}
