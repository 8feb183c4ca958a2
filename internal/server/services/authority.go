// Package services contains server-side business logic. Authority owns
// credentials and tokens: login with optional MFA, token issue and
// verification, temporary accounts, user administration and password reset.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/authgate/internal/clockx"
	"github.com/dmitrijs2005/authgate/internal/common"
	"github.com/dmitrijs2005/authgate/internal/logging"
	"github.com/dmitrijs2005/authgate/internal/server/auth"
	"github.com/dmitrijs2005/authgate/internal/server/credentials"
	"github.com/dmitrijs2005/authgate/internal/server/models"
	"github.com/dmitrijs2005/authgate/internal/server/permissions"
	"github.com/dmitrijs2005/authgate/internal/server/repositories/logs"
	"github.com/google/uuid"
)

const (
	TokenType = "bearer"

	DefaultTempUserHours = 24
	MaxTempUserHours     = 720

	DefaultAuditLimit = 100
	MaxAuditLimit     = 10000

	MinPasswordLength = 8
	resetMaxFailures  = 5
	tempPasswordBytes = 12
	bootstrapPwdBytes = 18
)

// Roles a non-master admin may hand out.
var delegableRoles = map[models.Role]bool{
	models.RoleClientDemo: true,
	models.RoleTester:     true,
	models.RoleProspect:   true,
	models.RoleReadonly:   true,
}

// AuditRecorder accepts audit entries without blocking.
type AuditRecorder interface {
	Record(models.AuditEntry)
}

type Options struct {
	SecretKey    []byte
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	MFACodeTTL   time.Duration
	ResetCodeTTL time.Duration
	BcryptCost   int
	LoginBaseURL string
}

type Authority struct {
	opts Options

	store    *credentials.Store
	audit    AuditRecorder
	auditLog logs.Repository[models.AuditEntry]
	notifier Notifier
	clock    clockx.Clock
	logger   logging.Logger

	mfa   *auth.ChallengeStore
	reset *auth.ChallengeStore

	// compared against when the user does not exist so that both paths
	// cost one bcrypt comparison
	dummyHash string
}

// LoginResult is returned by Login. When RequiresMFA is set the tokens are
// empty and a code has been sent through the Notifier.
type LoginResult struct {
	AccessToken  string                `json:"access_token"`
	RefreshToken string                `json:"refresh_token"`
	TokenType    string                `json:"token_type"`
	User         *models.PublicUser    `json:"user"`
	Permissions  *permissions.Resolved `json:"permissions,omitempty"`
	RequiresMFA  bool                  `json:"requires_mfa"`
}

type TempUserRequest struct {
	Email          string      `json:"email"`
	Name           string      `json:"name"`
	Role           models.Role `json:"role"`
	AppAccess      []string    `json:"app_access"`
	ExpiresInHours int         `json:"expires_in_hours"`
}

type TempUserResult struct {
	Email             string    `json:"email"`
	TemporaryPassword string    `json:"temporary_password"`
	ExpiresAt         time.Time `json:"expires_at"`
	LoginURL          string    `json:"login_url"`
}

// UserUpdate lists the fields an administrator may change. Nil fields are
// left as they are.
type UserUpdate struct {
	Name       *string        `json:"name,omitempty"`
	Role       *models.Role   `json:"role,omitempty"`
	AppAccess  *[]string      `json:"app_access,omitempty"`
	IsActive   *bool          `json:"is_active,omitempty"`
	MFAEnabled *bool          `json:"mfa_enabled,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewAuthority(
	opts Options,
	store *credentials.Store,
	audit AuditRecorder,
	auditLog logs.Repository[models.AuditEntry],
	notifier Notifier,
	clock clockx.Clock,
	logger logging.Logger,
) (*Authority, error) {
	if len(opts.SecretKey) == 0 {
		return nil, fmt.Errorf("%w: empty signing secret", common.ErrorValidation)
	}

	seed, err := common.MakeRandHexString(16)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	dummy, err := auth.HashPassword(seed, opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}

	return &Authority{
		opts:      opts,
		store:     store,
		audit:     audit,
		auditLog:  auditLog,
		notifier:  notifier,
		clock:     clock,
		logger:    logger.With("module", "authority"),
		mfa:       auth.NewChallengeStore(opts.MFACodeTTL, 1, clock),
		reset:     auth.NewChallengeStore(opts.ResetCodeTTL, resetMaxFailures, clock),
		dummyHash: dummy,
	}, nil
}

// Authenticate checks email and password. The password is compared before
// account status is looked at. Failures are *common.AuthError values.
func (a *Authority) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	key := models.NormalizeEmail(email)

	u, err := a.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("lookup user: %w", err)
		}
		auth.CheckPassword(a.dummyHash, password)
		return nil, a.loginFailed(ctx, key, common.ReasonUserNotFound)
	}

	if u.PasswordHash == "" || !auth.CheckPassword(u.PasswordHash, password) {
		return nil, a.loginFailed(ctx, key, common.ReasonInvalidPassword)
	}
	if !u.IsActive {
		return nil, a.loginFailed(ctx, key, common.ReasonAccountInactive)
	}
	if u.Expired(a.clock.Now()) {
		return nil, a.loginFailed(ctx, key, common.ReasonAccountExpired)
	}

	return u, nil
}

func (a *Authority) loginFailed(ctx context.Context, email, reason string) error {
	a.logger.Info(ctx, "login failed", "email", email, "reason", reason)
	a.record(models.AuditLoginFailed, map[string]any{"email": email, "reason": reason})
	return common.NewAuthError(reason)
}

// Login authenticates, runs the MFA step when the account requires it and
// issues a token pair.
func (a *Authority) Login(ctx context.Context, email, password, mfaCode string) (*LoginResult, error) {
	u, err := a.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}

	if u.MFAEnabled {
		if mfaCode == "" {
			if _, err := a.GenerateMFACode(ctx, u.Email); err != nil {
				return nil, err
			}
			return &LoginResult{TokenType: TokenType, RequiresMFA: true}, nil
		}
		if !a.VerifyMFACode(u.Email, mfaCode) {
			return nil, a.loginFailed(ctx, u.Email, common.ReasonInvalidMFACode)
		}
	}

	access, err := a.IssueAccessToken(u.Email)
	if err != nil {
		return nil, err
	}
	refresh, err := a.IssueRefreshToken(u.Email)
	if err != nil {
		return nil, err
	}

	a.logger.Info(ctx, "login succeeded", "email", u.Email, "role", u.Role)
	a.record(models.AuditLoginSuccess, map[string]any{"email": u.Email, "role": string(u.Role)})

	pub := u.Public()
	perms := permissions.Resolve(u)
	return &LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    TokenType,
		User:         &pub,
		Permissions:  &perms,
	}, nil
}

func (a *Authority) IssueAccessToken(email string) (string, error) {
	return a.issue(email, common.TokenKindAccess, a.opts.AccessTTL)
}

func (a *Authority) IssueRefreshToken(email string) (string, error) {
	return a.issue(email, common.TokenKindRefresh, a.opts.RefreshTTL)
}

func (a *Authority) issue(email, kind string, ttl time.Duration) (string, error) {
	tok, err := auth.GenerateToken(models.NormalizeEmail(email), kind, a.opts.SecretKey, ttl, a.clock.Now())
	if err != nil {
		return "", fmt.Errorf("%w: sign token: %v", common.ErrorInternal, err)
	}
	return tok, nil
}

// VerifyToken validates the token and re-resolves its subject. A user that
// is missing, inactive or expired invalidates the token, and so does any
// error reading the store.
func (a *Authority) VerifyToken(ctx context.Context, token, kind string) (*models.User, error) {
	claims, err := auth.ParseToken(token, a.opts.SecretKey, kind, a.clock.Now())
	if err != nil {
		return nil, err
	}

	u, err := a.store.Get(ctx, claims.Subject)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			a.logger.Error(ctx, "token subject lookup failed", "error", err)
		}
		return nil, common.ErrInvalidToken
	}
	if !u.IsActive || u.Expired(a.clock.Now()) {
		return nil, common.ErrInvalidToken
	}
	return u, nil
}

// Refresh exchanges a valid refresh token for a new access token.
func (a *Authority) Refresh(ctx context.Context, refreshToken string) (string, error) {
	u, err := a.VerifyToken(ctx, refreshToken, common.TokenKindRefresh)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			return "", common.ErrRefreshTokenExpired
		}
		return "", err
	}
	return a.IssueAccessToken(u.Email)
}

// GenerateMFACode issues a code for email and hands it to the Notifier.
func (a *Authority) GenerateMFACode(ctx context.Context, email string) (time.Time, error) {
	key := models.NormalizeEmail(email)
	code, expires, err := a.mfa.Issue(key)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: issue mfa code: %v", common.ErrorInternal, err)
	}
	if err := a.notifier.Notify(ctx, Notice{To: key, Kind: NoticeMFACode, Secret: code, Expires: expires}); err != nil {
		return time.Time{}, fmt.Errorf("deliver mfa code: %w", err)
	}
	a.record(models.AuditMFACodeIssued, map[string]any{"email": key})
	return expires, nil
}

// VerifyMFACode checks code once; the code is gone afterwards either way.
func (a *Authority) VerifyMFACode(email, code string) bool {
	return a.mfa.CheckOnce(models.NormalizeEmail(email), code)
}

// RequireAdmin fails unless u is an admin or the master admin.
func RequireAdmin(u *models.User) error {
	if u == nil {
		return common.ErrorUnauthorized
	}
	if !u.Role.IsAdmin() {
		return common.ErrorForbidden
	}
	return nil
}

// RequireMaster fails unless u is the master admin.
func RequireMaster(u *models.User) error {
	if u == nil {
		return common.ErrorUnauthorized
	}
	if !u.IsMaster() {
		return common.ErrorForbidden
	}
	return nil
}

// CreateTemporaryUser creates an expiring account with a random password.
// The password is returned once and never stored in clear.
func (a *Authority) CreateTemporaryUser(ctx context.Context, req TempUserRequest, creator *models.User) (*TempUserResult, error) {
	if err := RequireAdmin(creator); err != nil {
		return nil, err
	}

	email := models.NormalizeEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: email is required", common.ErrorValidation)
	}
	if !req.Role.Valid() {
		return nil, common.ErrInvalidRole
	}
	if req.Role == models.RoleMasterAdmin || (!creator.IsMaster() && !delegableRoles[req.Role]) {
		return nil, fmt.Errorf("%w: cannot grant role %s", common.ErrorForbidden, req.Role)
	}

	hours := req.ExpiresInHours
	if hours == 0 {
		hours = DefaultTempUserHours
	}
	if hours < 1 || hours > MaxTempUserHours {
		return nil, fmt.Errorf("%w: expires_in_hours must be between 1 and %d", common.ErrorValidation, MaxTempUserHours)
	}

	password, err := common.MakeURLSafeToken(tempPasswordBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: generate password: %v", common.ErrorInternal, err)
	}
	hash, err := auth.HashPassword(password, a.opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("%w: hash password: %v", common.ErrorInternal, err)
	}

	apps := req.AppAccess
	if len(apps) == 0 {
		apps = permissions.DefaultAppAccess(req.Role)
	}

	now := a.clock.Now()
	expires := now.Add(time.Duration(hours) * time.Hour)
	loginURL := a.loginURL(email)

	u := &models.User{
		Email:        email,
		PasswordHash: hash,
		Role:         req.Role,
		Name:         req.Name,
		IsActive:     true,
		ExpiresAt:    &expires,
		AppAccess:    apps,
		Metadata:     map[string]any{"login_url": loginURL},
		CreatedAt:    now,
		CreatedBy:    creator.Email,
		IsTemporary:  true,
	}
	if err := a.store.Create(ctx, u); err != nil {
		return nil, err
	}

	a.logger.Info(ctx, "temporary user created", "email", email, "role", req.Role, "created_by", creator.Email)
	a.record(models.AuditTempUserCreated, map[string]any{
		"email":      email,
		"role":       string(req.Role),
		"created_by": creator.Email,
		"expires_at": expires,
	})

	return &TempUserResult{Email: email, TemporaryPassword: password, ExpiresAt: expires, LoginURL: loginURL}, nil
}

func (a *Authority) loginURL(email string) string {
	return a.opts.LoginBaseURL + "?email=" + url.QueryEscape(email)
}

// checkTarget enforces who may modify target: admins manage non-admins and
// themselves, only the master admin touches other admins.
func checkTarget(actor, target *models.User) error {
	if target.Role.IsAdmin() && target.Email != actor.Email && !actor.IsMaster() {
		return fmt.Errorf("%w: only the master admin can modify other admins", common.ErrorForbidden)
	}
	return nil
}

// UpdateUser applies upd to the account. Email, password hash and creation
// time cannot be changed here.
func (a *Authority) UpdateUser(ctx context.Context, email string, upd UserUpdate, actor *models.User) (*models.PublicUser, error) {
	if err := RequireAdmin(actor); err != nil {
		return nil, err
	}

	var changed []string
	u, err := a.store.Update(ctx, email, func(u *models.User) error {
		if err := checkTarget(actor, u); err != nil {
			return err
		}
		changed = changed[:0]

		if upd.Role != nil && *upd.Role != u.Role {
			if u.IsMaster() {
				return common.ErrMasterAdminImmutable
			}
			if !upd.Role.Valid() {
				return common.ErrInvalidRole
			}
			if *upd.Role == models.RoleMasterAdmin || (!actor.IsMaster() && !delegableRoles[*upd.Role]) {
				return fmt.Errorf("%w: cannot grant role %s", common.ErrorForbidden, *upd.Role)
			}
			u.Role = *upd.Role
			changed = append(changed, "role")
		}
		if upd.IsActive != nil && *upd.IsActive != u.IsActive {
			if u.IsMaster() && !*upd.IsActive {
				return common.ErrMasterAdminImmutable
			}
			if *upd.IsActive {
				u.IsActive = true
				u.DeactivatedAt = nil
				u.DeactivatedBy = ""
			} else {
				now := a.clock.Now()
				u.IsActive = false
				u.DeactivatedAt = &now
				u.DeactivatedBy = actor.Email
			}
			changed = append(changed, "is_active")
		}
		if upd.Name != nil {
			u.Name = *upd.Name
			changed = append(changed, "name")
		}
		if upd.AppAccess != nil {
			u.AppAccess = append([]string(nil), (*upd.AppAccess)...)
			changed = append(changed, "app_access")
		}
		if upd.MFAEnabled != nil {
			u.MFAEnabled = *upd.MFAEnabled
			changed = append(changed, "mfa_enabled")
		}
		if upd.Metadata != nil {
			u.Metadata = upd.Metadata
			changed = append(changed, "metadata")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.logger.Info(ctx, "user updated", "email", u.Email, "by", actor.Email, "fields", changed)
	a.record(models.AuditUserUpdated, map[string]any{"email": u.Email, "updated_by": actor.Email, "fields": changed})

	pub := u.Public()
	return &pub, nil
}

// DeactivateUser disables the account. Users are never deleted.
func (a *Authority) DeactivateUser(ctx context.Context, email string, actor *models.User) error {
	if err := RequireAdmin(actor); err != nil {
		return err
	}

	u, err := a.store.Update(ctx, email, func(u *models.User) error {
		if u.IsMaster() {
			return common.ErrMasterAdminImmutable
		}
		if err := checkTarget(actor, u); err != nil {
			return err
		}
		now := a.clock.Now()
		u.IsActive = false
		u.DeactivatedAt = &now
		u.DeactivatedBy = actor.Email
		return nil
	})
	if err != nil {
		return err
	}

	a.logger.Info(ctx, "user deactivated", "email", u.Email, "by", actor.Email)
	a.record(models.AuditUserDeactivated, map[string]any{"email": u.Email, "deactivated_by": actor.Email})
	return nil
}

// ListUsers returns every account without secrets, inactive ones only when
// asked for.
func (a *Authority) ListUsers(ctx context.Context, includeInactive bool) []models.PublicUser {
	all := a.store.List(ctx)
	out := make([]models.PublicUser, 0, len(all))
	for _, u := range all {
		if !includeInactive && !u.IsActive {
			continue
		}
		out = append(out, u.Public())
	}
	return out
}

// GetUserPermissions resolves the effective access of email. An unknown
// user has no access.
func (a *Authority) GetUserPermissions(ctx context.Context, email string) (permissions.Resolved, error) {
	u, err := a.store.Get(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return permissions.Resolved{Apps: []string{}, Permissions: []string{}}, nil
		}
		return permissions.Resolved{}, err
	}
	return permissions.Resolve(u), nil
}

// AuditLogs returns up to limit newest audit entries, oldest first.
func (a *Authority) AuditLogs(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 {
		limit = DefaultAuditLimit
	}
	if limit > MaxAuditLimit {
		limit = MaxAuditLimit
	}
	entries, err := a.auditLog.Tail(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	return entries, nil
}

// RequestPasswordReset sends a reset code to known active accounts. The
// caller cannot tell from the result whether an account exists.
func (a *Authority) RequestPasswordReset(ctx context.Context, email string) {
	key := models.NormalizeEmail(email)

	u, err := a.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			a.logger.Error(ctx, "reset lookup failed", "error", err)
		}
		return
	}
	if !u.IsActive || u.Expired(a.clock.Now()) {
		return
	}

	code, expires, err := a.reset.Issue(key)
	if err != nil {
		a.logger.Error(ctx, "issue reset code", "error", err)
		return
	}
	if err := a.notifier.Notify(ctx, Notice{To: key, Kind: NoticeResetCode, Secret: code, Expires: expires}); err != nil {
		a.logger.Error(ctx, "deliver reset code", "error", err)
		return
	}
	a.record(models.AuditPasswordResetRequested, map[string]any{"email": key})
}

// VerifyPasswordReset checks a reset code without using it up.
func (a *Authority) VerifyPasswordReset(ctx context.Context, email, code string) error {
	if !a.reset.Verify(models.NormalizeEmail(email), code) {
		return common.ErrInvalidResetCode
	}
	return nil
}

// ResetPassword consumes the code and sets a new password.
func (a *Authority) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if len(newPassword) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", common.ErrorValidation, MinPasswordLength)
	}

	key := models.NormalizeEmail(email)
	if !a.reset.Consume(key, code) {
		return common.ErrInvalidResetCode
	}

	hash, err := auth.HashPassword(newPassword, a.opts.BcryptCost)
	if err != nil {
		return fmt.Errorf("%w: hash password: %v", common.ErrorInternal, err)
	}

	_, err = a.store.Update(ctx, key, func(u *models.User) error {
		now := a.clock.Now()
		u.PasswordHash = hash
		u.PasswordChangedAt = &now
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrInvalidResetCode
		}
		return err
	}

	a.logger.Info(ctx, "password reset", "email", key)
	a.record(models.AuditPasswordResetCompleted, map[string]any{"email": key})
	return nil
}

// SeedMasterAdmin creates the master admin when the store is empty. Without
// a configured password a random one is generated and sent through the
// Notifier.
func (a *Authority) SeedMasterAdmin(ctx context.Context, email, password string, mfa bool) error {
	if a.store.Len() > 0 {
		return nil
	}

	key := models.NormalizeEmail(email)
	generated := password == ""
	if generated {
		var err error
		if password, err = common.MakeURLSafeToken(bootstrapPwdBytes); err != nil {
			return fmt.Errorf("generate bootstrap password: %w", err)
		}
	}

	hash, err := auth.HashPassword(password, a.opts.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash bootstrap password: %w", err)
	}

	u := &models.User{
		Email:        key,
		PasswordHash: hash,
		Role:         models.RoleMasterAdmin,
		Name:         "Master Admin",
		IsActive:     true,
		MFAEnabled:   mfa,
		AppAccess:    []string{permissions.Wildcard},
		CreatedAt:    a.clock.Now(),
		CreatedBy:    "system",
	}
	if err := a.store.Create(ctx, u); err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil
		}
		return fmt.Errorf("seed master admin: %w", err)
	}

	if generated {
		if err := a.notifier.Notify(ctx, Notice{To: key, Kind: NoticeBootstrapPassword, Secret: password}); err != nil {
			a.logger.Error(ctx, "deliver bootstrap password", "error", err)
		}
	}
	a.logger.Info(ctx, "master admin seeded", "email", key, "mfa", mfa)
	a.record(models.AuditMasterAdminSeeded, map[string]any{"email": key})
	return nil
}

// Audit appends an entry for events that happen outside the Authority, such
// as whitelist changes and log archives.
func (a *Authority) Audit(eventType string, details map[string]any) {
	a.record(eventType, details)
}

func (a *Authority) record(eventType string, details map[string]any) {
	if a.audit == nil {
		return
	}
	a.audit.Record(models.AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: a.clock.Now(),
		EventType: eventType,
		Details:   details,
	})
}
