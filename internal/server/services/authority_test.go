package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/authgate/internal/clockx"
	"github.com/dmitrijs2005/authgate/internal/common"
	"github.com/dmitrijs2005/authgate/internal/logging"
	"github.com/dmitrijs2005/authgate/internal/server/auth"
	"github.com/dmitrijs2005/authgate/internal/server/credentials"
	"github.com/dmitrijs2005/authgate/internal/server/models"
	"github.com/dmitrijs2005/authgate/internal/server/repositories/logs"
	"github.com/dmitrijs2005/authgate/internal/server/repositories/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- helpers ---

type syncAudit struct {
	repo *logs.MemoryRepository[models.AuditEntry]
}

func (s syncAudit) Record(e models.AuditEntry) { _ = s.repo.Append(context.Background(), e) }

type captureNotifier struct {
	mu      sync.Mutex
	notices []Notice
	err     error
}

func (c *captureNotifier) Notify(ctx context.Context, n Notice) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.notices = append(c.notices, n)
	return nil
}

func (c *captureNotifier) lastSecret(t *testing.T, kind string) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.notices) - 1; i >= 0; i-- {
		if c.notices[i].Kind == kind {
			return c.notices[i].Secret
		}
	}
	t.Fatalf("no %s notice sent", kind)
	return ""
}

type fixture struct {
	authority *Authority
	store     *credentials.Store
	auditLog  *logs.MemoryRepository[models.AuditEntry]
	notifier  *captureNotifier
	clock     *clockx.FakeClock
}

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store := credentials.NewStore(users.NewFileRepository(filepath.Join(t.TempDir(), "users.json")), logging.Nop())
	require.NoError(t, store.Load(ctx))

	auditLog := logs.NewMemoryRepository[models.AuditEntry](logs.StreamAudit)
	notifier := &captureNotifier{}
	clock := clockx.Fake(t0)

	a, err := NewAuthority(Options{
		SecretKey:    []byte("test-secret"),
		AccessTTL:    30 * time.Minute,
		RefreshTTL:   7 * 24 * time.Hour,
		MFACodeTTL:   5 * time.Minute,
		ResetCodeTTL: 10 * time.Minute,
		BcryptCost:   bcrypt.MinCost,
		LoginBaseURL: "https://gate.example.com/login",
	}, store, syncAudit{auditLog}, auditLog, notifier, clock, logging.Nop())
	require.NoError(t, err)

	return &fixture{authority: a, store: store, auditLog: auditLog, notifier: notifier, clock: clock}
}

func (f *fixture) addUser(t *testing.T, email, password string, role models.Role, mutate ...func(*models.User)) *models.User {
	t.Helper()
	hash, err := auth.HashPassword(password, bcrypt.MinCost)
	require.NoError(t, err)
	u := &models.User{Email: email, PasswordHash: hash, Role: role, IsActive: true, CreatedAt: t0}
	for _, m := range mutate {
		m(u)
	}
	require.NoError(t, f.store.Put(context.Background(), u))
	got, err := f.store.Get(context.Background(), email)
	require.NoError(t, err)
	return got
}

func (f *fixture) auditOf(t *testing.T, eventType string) []models.AuditEntry {
	t.Helper()
	all, err := f.auditLog.Tail(context.Background(), 0)
	require.NoError(t, err)
	var out []models.AuditEntry
	for _, e := range all {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// --- authentication ---

func TestNewAuthority_RequiresSecret(t *testing.T) {
	_, err := NewAuthority(Options{BcryptCost: bcrypt.MinCost}, nil, nil, nil, nil, clockx.Real(), logging.Nop())
	assert.ErrorIs(t, err, common.ErrorValidation)
}

func TestLogin_Success(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "demo@example.com", "s3cret-pass", models.RoleClientDemo)

	res, err := f.authority.Login(context.Background(), " Demo@Example.com ", "s3cret-pass", "")
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.False(t, res.RequiresMFA)
	assert.Equal(t, "bearer", res.TokenType)
	require.NotNil(t, res.User)
	assert.Equal(t, "demo@example.com", res.User.Email)
	assert.Equal(t, []string{"client_app", "demo_features"}, res.Permissions.Apps)

	require.Len(t, f.auditOf(t, models.AuditLoginSuccess), 1)
}

func TestLogin_FailureReasons(t *testing.T) {
	f := newFixture(t)
	past := t0.Add(-time.Hour)
	f.addUser(t, "ok@example.com", "right-pass", models.RoleTester)
	f.addUser(t, "off@example.com", "right-pass", models.RoleTester, func(u *models.User) { u.IsActive = false })
	f.addUser(t, "old@example.com", "right-pass", models.RoleTester, func(u *models.User) { u.ExpiresAt = &past })

	tests := []struct {
		email, password, reason string
	}{
		{"ghost@example.com", "right-pass", common.ReasonUserNotFound},
		{"ok@example.com", "wrong-pass", common.ReasonInvalidPassword},
		{"off@example.com", "wrong-pass", common.ReasonInvalidPassword},
		{"off@example.com", "right-pass", common.ReasonAccountInactive},
		{"old@example.com", "right-pass", common.ReasonAccountExpired},
	}
	for _, tt := range tests {
		t.Run(tt.reason+"/"+tt.email, func(t *testing.T) {
			_, err := f.authority.Login(context.Background(), tt.email, tt.password, "")
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrInvalidCredentials)
			assert.Equal(t, "invalid credentials", err.Error())
			assert.Equal(t, tt.reason, common.AuthReason(err))
		})
	}

	failed := f.auditOf(t, models.AuditLoginFailed)
	require.Len(t, failed, len(tests))
	assert.Equal(t, common.ReasonInvalidPassword, failed[1].Details["reason"])
}

func TestLogin_MFAFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "mfa@example.com", "right-pass", models.RoleAdmin, func(u *models.User) { u.MFAEnabled = true })

	res, err := f.authority.Login(ctx, "mfa@example.com", "right-pass", "")
	require.NoError(t, err)
	assert.True(t, res.RequiresMFA)
	assert.Empty(t, res.AccessToken)
	assert.Empty(t, res.RefreshToken)
	code := f.notifier.lastSecret(t, NoticeMFACode)
	assert.Len(t, code, 6)

	res, err = f.authority.Login(ctx, "mfa@example.com", "right-pass", code)
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)

	// a used code is gone
	_, err = f.authority.Login(ctx, "mfa@example.com", "right-pass", code)
	assert.Equal(t, common.ReasonInvalidMFACode, common.AuthReason(err))
}

func TestLogin_MFACodeBurnedByWrongGuess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "mfa@example.com", "right-pass", models.RoleAdmin, func(u *models.User) { u.MFAEnabled = true })

	_, err := f.authority.Login(ctx, "mfa@example.com", "right-pass", "")
	require.NoError(t, err)
	code := f.notifier.lastSecret(t, NoticeMFACode)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	_, err = f.authority.Login(ctx, "mfa@example.com", "right-pass", wrong)
	require.Error(t, err)

	_, err = f.authority.Login(ctx, "mfa@example.com", "right-pass", code)
	assert.Equal(t, common.ReasonInvalidMFACode, common.AuthReason(err))
}

func TestLogin_MFACodeExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "mfa@example.com", "right-pass", models.RoleAdmin, func(u *models.User) { u.MFAEnabled = true })

	_, err := f.authority.Login(ctx, "mfa@example.com", "right-pass", "")
	require.NoError(t, err)
	code := f.notifier.lastSecret(t, NoticeMFACode)

	f.clock.Advance(5*time.Minute + time.Second)
	_, err = f.authority.Login(ctx, "mfa@example.com", "right-pass", code)
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)
}

// --- tokens ---

func TestVerifyToken_RevalidatesSubject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.addUser(t, "root@example.com", "right-pass", models.RoleMasterAdmin)
	f.addUser(t, "demo@example.com", "right-pass", models.RoleClientDemo)

	tok, err := f.authority.IssueAccessToken("demo@example.com")
	require.NoError(t, err)

	u, err := f.authority.VerifyToken(ctx, tok, common.TokenKindAccess)
	require.NoError(t, err)
	assert.Equal(t, "demo@example.com", u.Email)

	require.NoError(t, f.authority.DeactivateUser(ctx, "demo@example.com", admin))

	_, err = f.authority.VerifyToken(ctx, tok, common.TokenKindAccess)
	assert.ErrorIs(t, err, common.ErrInvalidToken, "deactivation revokes outstanding tokens")
}

func TestVerifyToken_KindAndExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "demo@example.com", "right-pass", models.RoleClientDemo)

	refresh, err := f.authority.IssueRefreshToken("demo@example.com")
	require.NoError(t, err)
	_, err = f.authority.VerifyToken(ctx, refresh, common.TokenKindAccess)
	assert.ErrorIs(t, err, common.ErrWrongTokenKind)

	access, err := f.authority.IssueAccessToken("demo@example.com")
	require.NoError(t, err)
	f.clock.Advance(31 * time.Minute)
	_, err = f.authority.VerifyToken(ctx, access, common.TokenKindAccess)
	assert.ErrorIs(t, err, common.ErrTokenExpired)

	_, err = f.authority.VerifyToken(ctx, "garbage", common.TokenKindAccess)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestVerifyToken_UnknownSubject(t *testing.T) {
	f := newFixture(t)
	tok, err := f.authority.IssueAccessToken("nobody@example.com")
	require.NoError(t, err)

	_, err = f.authority.VerifyToken(context.Background(), tok, common.TokenKindAccess)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "demo@example.com", "right-pass", models.RoleClientDemo)

	refresh, err := f.authority.IssueRefreshToken("demo@example.com")
	require.NoError(t, err)

	access, err := f.authority.Refresh(ctx, refresh)
	require.NoError(t, err)
	u, err := f.authority.VerifyToken(ctx, access, common.TokenKindAccess)
	require.NoError(t, err)
	assert.Equal(t, "demo@example.com", u.Email)

	_, err = f.authority.Refresh(ctx, access)
	assert.ErrorIs(t, err, common.ErrWrongTokenKind, "an access token cannot refresh")

	f.clock.Advance(8 * 24 * time.Hour)
	_, err = f.authority.Refresh(ctx, refresh)
	assert.ErrorIs(t, err, common.ErrRefreshTokenExpired)
}

// --- temporary users ---

func TestCreateTemporaryUser_LifecycleWithExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.addUser(t, "admin@example.com", "right-pass", models.RoleAdmin)

	res, err := f.authority.CreateTemporaryUser(ctx, TempUserRequest{
		Email:          "Guest+1@Example.com",
		Name:           "Guest",
		Role:           models.RoleClientDemo,
		ExpiresInHours: 1,
	}, admin)
	require.NoError(t, err)
	assert.Equal(t, "guest+1@example.com", res.Email)
	assert.Len(t, res.TemporaryPassword, 16)
	assert.Equal(t, t0.Add(time.Hour), res.ExpiresAt)
	assert.Equal(t, "https://gate.example.com/login?email=guest%2B1%40example.com", res.LoginURL)

	stored, err := f.store.Get(ctx, res.Email)
	require.NoError(t, err)
	assert.True(t, stored.IsTemporary)
	assert.Equal(t, "admin@example.com", stored.CreatedBy)
	assert.NotContains(t, stored.Metadata, "temp_password")
	assert.Equal(t, []string{"client_app", "demo_features"}, stored.AppAccess)

	_, err = f.authority.Login(ctx, res.Email, res.TemporaryPassword, "")
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	_, err = f.authority.Login(ctx, res.Email, res.TemporaryPassword, "")
	assert.Equal(t, common.ReasonAccountExpired, common.AuthReason(err))

	require.Len(t, f.auditOf(t, models.AuditTempUserCreated), 1)
}

func TestCreateTemporaryUser_Rules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	master := f.addUser(t, "root@example.com", "right-pass", models.RoleMasterAdmin)
	admin := f.addUser(t, "admin@example.com", "right-pass", models.RoleAdmin)
	tester := f.addUser(t, "tester@example.com", "right-pass", models.RoleTester)

	_, err := f.authority.CreateTemporaryUser(ctx, TempUserRequest{Email: "x@example.com", Role: models.RoleReadonly}, tester)
	assert.ErrorIs(t, err, common.ErrorForbidden, "non-admins cannot create users")

	_, err = f.authority.CreateTemporaryUser(ctx, TempUserRequest{Email: "x@example.com", Role: models.RoleAdmin}, admin)
	assert.ErrorIs(t, err, common.ErrorForbidden, "admins cannot mint admins")

	_, err = f.authority.CreateTemporaryUser(ctx, TempUserRequest{Email: "x@example.com", Role: models.RoleAdmin}, master)
	assert.NoError(t, err)

	_, err = f.authority.CreateTemporaryUser(ctx, TempUserRequest{Email: "y@example.com", Role: models.RoleMasterAdmin}, master)
	assert.ErrorIs(t, err, common.ErrorForbidden)

	_, err = f.authority.CreateTemporaryUser(ctx, TempUserRequest{Email: "y@example.com", Role: "owner"}, master)
	assert.ErrorIs(t, err, common.ErrInvalidRole)

	_, err = f.authority.CreateTemporaryUser(ctx, TempUserRequest{Email: "y@example.com", Role: models.RoleTester, ExpiresInHours: 721}, admin)
	assert.ErrorIs(t, err, common.ErrorValidation)

	_, err = f.authority.CreateTemporaryUser(ctx, TempUserRequest{Email: "not-an-email", Role: models.RoleTester}, admin)
	assert.ErrorIs(t, err, common.ErrorValidation)

	_, err = f.authority.CreateTemporaryUser(ctx, TempUserRequest{Email: "tester@example.com", Role: models.RoleTester}, admin)
	assert.ErrorIs(t, err, common.ErrorAlreadyExists, "existing accounts are never overwritten")
}

// --- administration ---

func TestUpdateUser_AllowedFieldsOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.addUser(t, "admin@example.com", "right-pass", models.RoleAdmin)
	before := f.addUser(t, "demo@example.com", "right-pass", models.RoleClientDemo)

	name := "Renamed"
	role := models.RoleTester
	apps := []string{"test_environment"}
	pub, err := f.authority.UpdateUser(ctx, "demo@example.com", UserUpdate{Name: &name, Role: &role, AppAccess: &apps}, admin)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", pub.Name)
	assert.Equal(t, models.RoleTester, pub.Role)

	after, err := f.store.Get(ctx, "demo@example.com")
	require.NoError(t, err)
	assert.Equal(t, before.PasswordHash, after.PasswordHash)
	assert.Equal(t, before.CreatedAt, after.CreatedAt)
	assert.Equal(t, []string{"test_environment"}, after.AppAccess)

	entries := f.auditOf(t, models.AuditUserUpdated)
	require.Len(t, entries, 1)
	assert.ElementsMatch(t, []string{"name", "role", "app_access"}, entries[0].Details["fields"])
}

func TestUpdateUser_DeactivateAndReactivate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.addUser(t, "admin@example.com", "right-pass", models.RoleAdmin)
	f.addUser(t, "demo@example.com", "right-pass", models.RoleClientDemo)

	off := false
	_, err := f.authority.UpdateUser(ctx, "demo@example.com", UserUpdate{IsActive: &off}, admin)
	require.NoError(t, err)
	u, _ := f.store.Get(ctx, "demo@example.com")
	require.NotNil(t, u.DeactivatedAt)
	assert.Equal(t, "admin@example.com", u.DeactivatedBy)

	on := true
	_, err = f.authority.UpdateUser(ctx, "demo@example.com", UserUpdate{IsActive: &on}, admin)
	require.NoError(t, err)
	u, _ = f.store.Get(ctx, "demo@example.com")
	assert.True(t, u.IsActive)
	assert.Nil(t, u.DeactivatedAt)
	assert.Empty(t, u.DeactivatedBy)
}

func TestMasterAdminIsImmutable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	master := f.addUser(t, "root@example.com", "right-pass", models.RoleMasterAdmin)

	off := false
	_, err := f.authority.UpdateUser(ctx, "root@example.com", UserUpdate{IsActive: &off}, master)
	assert.ErrorIs(t, err, common.ErrMasterAdminImmutable)

	demoted := models.RoleAdmin
	_, err = f.authority.UpdateUser(ctx, "root@example.com", UserUpdate{Role: &demoted}, master)
	assert.ErrorIs(t, err, common.ErrMasterAdminImmutable)

	assert.ErrorIs(t, f.authority.DeactivateUser(ctx, "root@example.com", master), common.ErrMasterAdminImmutable)

	u, _ := f.store.Get(ctx, "root@example.com")
	assert.True(t, u.IsActive)
	assert.Equal(t, models.RoleMasterAdmin, u.Role)
}

func TestOtherAdminsAreMasterOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	master := f.addUser(t, "root@example.com", "right-pass", models.RoleMasterAdmin)
	a1 := f.addUser(t, "a1@example.com", "right-pass", models.RoleAdmin)
	f.addUser(t, "a2@example.com", "right-pass", models.RoleAdmin)

	assert.ErrorIs(t, f.authority.DeactivateUser(ctx, "a2@example.com", a1), common.ErrorForbidden)

	name := "Self"
	_, err := f.authority.UpdateUser(ctx, "a1@example.com", UserUpdate{Name: &name}, a1)
	assert.NoError(t, err, "admins may edit themselves")

	assert.NoError(t, f.authority.DeactivateUser(ctx, "a2@example.com", master))
	assert.ErrorIs(t, f.authority.DeactivateUser(ctx, "ghost@example.com", master), common.ErrorNotFound)
}

func TestListUsersAndPermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "root@example.com", "right-pass", models.RoleMasterAdmin, func(u *models.User) { u.AppAccess = []string{"landing"} })
	f.addUser(t, "off@example.com", "right-pass", models.RoleReadonly, func(u *models.User) { u.IsActive = false })

	assert.Len(t, f.authority.ListUsers(ctx, false), 1)
	assert.Len(t, f.authority.ListUsers(ctx, true), 2)

	p, err := f.authority.GetUserPermissions(ctx, "root@example.com")
	require.NoError(t, err)
	assert.True(t, p.IsMaster)
	assert.Equal(t, []string{"*"}, p.Apps)

	p, err = f.authority.GetUserPermissions(ctx, "ghost@example.com")
	require.NoError(t, err)
	assert.Empty(t, p.Apps)
	assert.Empty(t, p.Permissions)
}

func TestAuditLogsLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 150; i++ {
		f.authority.record(models.AuditLoginFailed, nil)
	}

	got, err := f.authority.AuditLogs(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, got, DefaultAuditLimit)

	got, err = f.authority.AuditLogs(ctx, 1_000_000)
	require.NoError(t, err)
	assert.Len(t, got, 150)
}

// --- password reset ---

func TestPasswordReset_Flow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "demo@example.com", "old-password", models.RoleClientDemo)

	f.authority.RequestPasswordReset(ctx, "demo@example.com")
	code := f.notifier.lastSecret(t, NoticeResetCode)

	require.NoError(t, f.authority.VerifyPasswordReset(ctx, "demo@example.com", code))
	require.NoError(t, f.authority.VerifyPasswordReset(ctx, "demo@example.com", code), "verify does not consume")

	assert.ErrorIs(t, f.authority.ResetPassword(ctx, "demo@example.com", code, "short"), common.ErrorValidation)
	require.NoError(t, f.authority.ResetPassword(ctx, "demo@example.com", code, "new-password"))
	assert.ErrorIs(t, f.authority.ResetPassword(ctx, "demo@example.com", code, "newer-password"), common.ErrInvalidResetCode)

	_, err := f.authority.Login(ctx, "demo@example.com", "old-password", "")
	assert.Error(t, err)
	_, err = f.authority.Login(ctx, "demo@example.com", "new-password", "")
	assert.NoError(t, err)

	u, _ := f.store.Get(ctx, "demo@example.com")
	require.NotNil(t, u.PasswordChangedAt)
	require.Len(t, f.auditOf(t, models.AuditPasswordResetCompleted), 1)
}

func TestPasswordReset_NoCodeForUnknownOrInactive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "off@example.com", "old-password", models.RoleClientDemo, func(u *models.User) { u.IsActive = false })

	f.authority.RequestPasswordReset(ctx, "ghost@example.com")
	f.authority.RequestPasswordReset(ctx, "off@example.com")
	assert.Empty(t, f.notifier.notices)
	assert.Empty(t, f.auditOf(t, models.AuditPasswordResetRequested))
}

func TestPasswordReset_InvalidatedAfterFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "demo@example.com", "old-password", models.RoleClientDemo)

	f.authority.RequestPasswordReset(ctx, "demo@example.com")
	code := f.notifier.lastSecret(t, NoticeResetCode)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for i := 0; i < resetMaxFailures; i++ {
		assert.ErrorIs(t, f.authority.VerifyPasswordReset(ctx, "demo@example.com", wrong), common.ErrInvalidResetCode)
	}
	assert.ErrorIs(t, f.authority.VerifyPasswordReset(ctx, "demo@example.com", code), common.ErrInvalidResetCode)
}

// --- bootstrap ---

func TestSeedMasterAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.authority.SeedMasterAdmin(ctx, "Root@Example.com", "", false))
	pw := f.notifier.lastSecret(t, NoticeBootstrapPassword)
	assert.NotEmpty(t, pw)

	res, err := f.authority.Login(ctx, "root@example.com", pw, "")
	require.NoError(t, err)
	assert.True(t, res.Permissions.IsMaster)

	// store is no longer empty
	require.NoError(t, f.authority.SeedMasterAdmin(ctx, "other@example.com", "x", false))
	_, err = f.store.Get(ctx, "other@example.com")
	assert.ErrorIs(t, err, common.ErrorNotFound)
	assert.Len(t, f.auditOf(t, models.AuditMasterAdminSeeded), 1)
}

func TestLogin_NotifierFailureSurfaces(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "mfa@example.com", "right-pass", models.RoleAdmin, func(u *models.User) { u.MFAEnabled = true })
	f.notifier.err = errors.New("smtp down")

	_, err := f.authority.Login(context.Background(), "mfa@example.com", "right-pass", "")
	require.Error(t, err)
	assert.False(t, errors.Is(err, common.ErrInvalidCredentials))
}
