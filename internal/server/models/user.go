package models

import (
	"strings"
	"time"
)

// Role names a user's position in the access hierarchy.
type Role string

const (
	RoleMasterAdmin Role = "master_admin"
	RoleAdmin       Role = "admin"
	RoleClientDemo  Role = "client_demo"
	RoleTester      Role = "tester"
	RoleProspect    Role = "prospect"
	RoleReadonly    Role = "readonly"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleMasterAdmin, RoleAdmin, RoleClientDemo, RoleTester, RoleProspect, RoleReadonly:
		return true
	}
	return false
}

// IsAdmin is true for admin and master_admin.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleMasterAdmin
}

// User is the stored account record, keyed by normalized email.
type User struct {
	Email             string         `json:"email"`
	PasswordHash      string         `json:"password_hash"`
	Role              Role           `json:"role"`
	Name              string         `json:"name"`
	IsActive          bool           `json:"is_active"`
	ExpiresAt         *time.Time     `json:"expires_at,omitempty"`
	MFAEnabled        bool           `json:"mfa_enabled"`
	AppAccess         []string       `json:"app_access"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	CreatedBy         string         `json:"created_by,omitempty"`
	IsTemporary       bool           `json:"is_temporary,omitempty"`
	DeactivatedAt     *time.Time     `json:"deactivated_at,omitempty"`
	DeactivatedBy     string         `json:"deactivated_by,omitempty"`
	PasswordChangedAt *time.Time     `json:"password_changed_at,omitempty"`
}

// NormalizeEmail lowercases and trims an email so it can be used as a key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsMaster reports whether u holds the master admin role.
func (u *User) IsMaster() bool {
	return u.Role == RoleMasterAdmin
}

// Expired reports whether the account has an expiry that is not after now.
func (u *User) Expired(now time.Time) bool {
	return u.ExpiresAt != nil && !now.Before(*u.ExpiresAt)
}

// Clone returns a deep copy so callers never share slices or maps with a cache.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.AppAccess != nil {
		c.AppAccess = append([]string(nil), u.AppAccess...)
	}
	if u.Metadata != nil {
		c.Metadata = make(map[string]any, len(u.Metadata))
		for k, v := range u.Metadata {
			c.Metadata[k] = v
		}
	}
	c.ExpiresAt = cloneTime(u.ExpiresAt)
	c.DeactivatedAt = cloneTime(u.DeactivatedAt)
	c.PasswordChangedAt = cloneTime(u.PasswordChangedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// PublicUser is the secret-free projection returned by the API.
type PublicUser struct {
	Email         string         `json:"email"`
	Name          string         `json:"name"`
	Role          Role           `json:"role"`
	IsActive      bool           `json:"is_active"`
	IsTemporary   bool           `json:"is_temporary"`
	ExpiresAt     *time.Time     `json:"expires_at,omitempty"`
	MFAEnabled    bool           `json:"mfa_enabled"`
	AppAccess     []string       `json:"app_access"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	CreatedBy     string         `json:"created_by,omitempty"`
	DeactivatedAt *time.Time     `json:"deactivated_at,omitempty"`
	DeactivatedBy string         `json:"deactivated_by,omitempty"`
}

// Public strips the password hash.
func (u *User) Public() PublicUser {
	c := u.Clone()
	return PublicUser{
		Email:         c.Email,
		Name:          c.Name,
		Role:          c.Role,
		IsActive:      c.IsActive,
		IsTemporary:   c.IsTemporary,
		ExpiresAt:     c.ExpiresAt,
		MFAEnabled:    c.MFAEnabled,
		AppAccess:     c.AppAccess,
		Metadata:      c.Metadata,
		CreatedAt:     c.CreatedAt,
		CreatedBy:     c.CreatedBy,
		DeactivatedAt: c.DeactivatedAt,
		DeactivatedBy: c.DeactivatedBy,
	}
}
