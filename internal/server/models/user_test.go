package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRole_Valid(t *testing.T) {
	for _, r := range []Role{RoleMasterAdmin, RoleAdmin, RoleClientDemo, RoleTester, RoleProspect, RoleReadonly} {
		assert.True(t, r.Valid(), r)
	}
	assert.False(t, Role("root").Valid())
	assert.True(t, RoleAdmin.IsAdmin())
	assert.False(t, RoleTester.IsAdmin())
}

func TestUser_Expired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	exp := now.Add(time.Hour)
	u := &User{ExpiresAt: &exp}

	assert.False(t, u.Expired(now))
	assert.True(t, u.Expired(exp), "expiry instant itself counts as expired")
	assert.False(t, (&User{}).Expired(now), "no expiry never expires")
}

func TestUser_CloneIsDeep(t *testing.T) {
	exp := time.Now()
	u := &User{AppAccess: []string{"a"}, Metadata: map[string]any{"k": "v"}, ExpiresAt: &exp}
	c := u.Clone()

	c.AppAccess[0] = "b"
	c.Metadata["k"] = "w"
	*c.ExpiresAt = exp.Add(time.Hour)

	assert.Equal(t, "a", u.AppAccess[0])
	assert.Equal(t, "v", u.Metadata["k"])
	assert.Equal(t, exp, *u.ExpiresAt)
	assert.Nil(t, (*User)(nil).Clone())
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "alice@example.com", NormalizeEmail("  Alice@Example.COM "))
}
