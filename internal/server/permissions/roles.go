// Package permissions resolves what a user may reach: application access
// and flat permission strings derived from the role, and the permission a
// request path requires.
package permissions

import (
	"github.com/dmitrijs2005/authgate/internal/server/models"
)

// Wildcard grants everything.
const Wildcard = "*"

var appAccess = map[models.Role][]string{
	models.RoleMasterAdmin: {Wildcard},
	models.RoleAdmin:       {"sunny", "navigatorcore", "admin_panel"},
	models.RoleClientDemo:  {"client_app", "demo_features"},
	models.RoleTester:      {"test_environment", "debug_tools"},
	models.RoleProspect:    {"landing", "demo_preview"},
	models.RoleReadonly:    {"public_content"},
}

var rolePermissions = map[models.Role][]string{
	models.RoleMasterAdmin: {Wildcard},
	models.RoleAdmin: {
		"users.create", "users.read", "users.update",
		"projects.create", "projects.read", "projects.update", "projects.delete",
		"analytics.read", "settings.update",
	},
	models.RoleClientDemo: {"projects.read", "analytics.read", "demo.access"},
	models.RoleTester:     {"projects.read", "test.access", "debug.access"},
	models.RoleProspect:   {"demo.preview", "public.read"},
	models.RoleReadonly:   {"public.read"},
}

// DefaultAppAccess returns a copy of the role's default application list.
func DefaultAppAccess(role models.Role) []string {
	return append([]string(nil), appAccess[role]...)
}

// RolePermissions returns a copy of the role's permission set.
func RolePermissions(role models.Role) []string {
	return append([]string(nil), rolePermissions[role]...)
}

// Resolved is the effective access of one user.
type Resolved struct {
	Apps        []string `json:"apps"`
	Permissions []string `json:"permissions"`
	IsMaster    bool     `json:"is_master"`
}

// Has reports whether the set contains p or the wildcard.
func (r Resolved) Has(p string) bool {
	if r.IsMaster {
		return true
	}
	for _, have := range r.Permissions {
		if have == Wildcard || have == p {
			return true
		}
	}
	return false
}

// HasAny reports whether any of ps is granted. An empty ps is always granted.
func (r Resolved) HasAny(ps []string) bool {
	if len(ps) == 0 {
		return true
	}
	for _, p := range ps {
		if r.Has(p) {
			return true
		}
	}
	return false
}

// Resolve computes the effective access of u. The master admin always
// resolves to everything, whatever is stored on the record. A non-empty
// stored app_access overrides the role default.
func Resolve(u *models.User) Resolved {
	if u.IsMaster() {
		return Resolved{Apps: []string{Wildcard}, Permissions: []string{Wildcard}, IsMaster: true}
	}

	apps := DefaultAppAccess(u.Role)
	if len(u.AppAccess) > 0 {
		apps = append([]string(nil), u.AppAccess...)
	}

	return Resolved{
		Apps:        apps,
		Permissions: RolePermissions(u.Role),
	}
}
