package service

import (
	"context"
	"errors"
	"log"
	"regexp"
	"strings"
	"time"

	accountdomain "transitwatch/backend/internal/account/domain"
	accountrepo "transitwatch/backend/internal/account/repository"
	"transitwatch/backend/internal/audit"
	auditdomain "transitwatch/backend/internal/audit/domain"
	"transitwatch/backend/internal/devreset"
	"transitwatch/backend/internal/notify"
	policyengine "transitwatch/backend/internal/policy/engine"
	roledomain "transitwatch/backend/internal/role/domain"
	"transitwatch/backend/internal/security"
	"transitwatch/backend/internal/telemetry"
)

// Sentinel errors for the auth service; handler maps them to HTTP status and error codes.
var (
	ErrBadCredentials = errors.New("invalid email or password")
	ErrAccountLocked  = errors.New("account is temporarily locked")
	ErrNoRefreshToken = errors.New("refresh token is required")
	ErrInvalidRefresh = errors.New("invalid or expired refresh token")
	ErrInvalidToken   = errors.New("invalid or expired token")
	ErrNotFound       = errors.New("account not found")
	ErrEmailTaken     = errors.New("email already registered")
)

// ValidationError reports rejected input. Fields maps a field name to its problems.
type ValidationError struct {
	Message string
	Fields  map[string][]string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(field string, problems ...string) *ValidationError {
	return &ValidationError{
		Message: "validation failed",
		Fields:  map[string][]string{field: problems},
	}
}

// AccountRepo is the minimal account repository needed by the auth service.
type AccountRepo interface {
	GetByID(ctx context.Context, id int64) (*accountdomain.Account, error)
	GetByEmail(ctx context.Context, email string) (*accountdomain.Account, error)
	Create(ctx context.Context, a *accountdomain.Account) (int64, error)
	RecordLoginFailure(ctx context.Context, id int64, policy accountdomain.LockoutPolicy, now time.Time) (accountdomain.LoginFailure, error)
	RecordLoginSuccess(ctx context.Context, id int64, now time.Time) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string, now time.Time) error
	Discard(ctx context.Context, id int64) error
}

// RoleReader answers membership questions for login and profile views.
type RoleReader interface {
	IsAdmin(ctx context.Context, accountID int64) (bool, error)
	ListRoleNames(ctx context.Context, accountID int64) ([]string, error)
}

// RoleGranter grants the initial role of a provisioned account.
type RoleGranter interface {
	RoleExists(ctx context.Context, ref roledomain.RoleRef) (bool, error)
	Grant(ctx context.Context, actorID, targetID int64, ref roledomain.RoleRef) ([]string, error)
}

// Options configures lockout, rotation and reset delivery.
type Options struct {
	Lockout accountdomain.LockoutPolicy
	// RootAdminEmail is the root identity, never forced to rotate its password.
	RootAdminEmail string
	// ResetLinkBaseURL is the page that consumes the reset token.
	ResetLinkBaseURL string
}

// Session is the outcome of a login, a password change or a completed reset.
type Session struct {
	Tokens             security.TokenPair
	Account            *accountdomain.Account
	MustChangePassword bool
}

// Profile is an account together with its role names.
type Profile struct {
	Account *accountdomain.Account
	Roles   []string
}

// AuthService implements login, refresh, password change and reset, and logout.
type AuthService struct {
	accounts AccountRepo
	roles    RoleReader
	granter  RoleGranter
	hasher   *security.Hasher
	tokens   *security.TokenProvider
	rotation policyengine.Evaluator
	audit    audit.Recorder
	metrics  *telemetry.SecurityMetrics
	notifier notify.ResetNotifier
	devStore devreset.Store
	opts     Options
	now      func() time.Time
}

// NewAuthService returns an AuthService with the given dependencies. auditRec, metrics
// and devStore may be nil.
func NewAuthService(
	accounts AccountRepo,
	roles RoleReader,
	hasher *security.Hasher,
	tokens *security.TokenProvider,
	rotation policyengine.Evaluator,
	auditRec audit.Recorder,
	metrics *telemetry.SecurityMetrics,
	opts Options,
) *AuthService {
	if opts.Lockout.Threshold <= 0 {
		opts.Lockout.Threshold = 5
	}
	if opts.Lockout.Duration <= 0 {
		opts.Lockout.Duration = 15 * time.Minute
	}
	if auditRec == nil {
		auditRec = audit.Discard
	}
	return &AuthService{
		accounts: accounts,
		roles:    roles,
		hasher:   hasher,
		tokens:   tokens,
		rotation: rotation,
		audit:    auditRec,
		metrics:  metrics,
		notifier: notify.LogNotifier{},
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithGranter enables ProvisionAccount.
func (s *AuthService) WithGranter(g RoleGranter) *AuthService {
	s.granter = g
	return s
}

// WithNotifier sets how reset links are delivered.
func (s *AuthService) WithNotifier(n notify.ResetNotifier) *AuthService {
	if n != nil {
		s.notifier = n
	}
	return s
}

// WithDevResetStore keeps issued reset tokens for GET /dev/reset-token. Development only.
func (s *AuthService) WithDevResetStore(store devreset.Store) *AuthService {
	s.devStore = store
	return s
}

// Login authenticates email and password, maintains the lockout counters and issues a token pair.
// Unknown emails and wrong passwords both return ErrBadCredentials.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = accountdomain.NormalizeEmail(email)
	if email == "" || password == "" {
		ve := &ValidationError{Message: "email and password are required", Fields: map[string][]string{}}
		if email == "" {
			ve.Fields["email"] = []string{"is required"}
		}
		if password == "" {
			ve.Fields["password"] = []string{"is required"}
		}
		return nil, ve
	}
	acct, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if acct == nil || !acct.CanAuthenticate() {
		s.hasher.VerifyDummy(password)
		s.audit.Record(ctx, auditdomain.EventLoginFailure, nil, map[string]any{"email": email, "reason": "unknown_account"})
		s.metrics.Login(ctx, telemetry.LoginBadCredentials)
		return nil, ErrBadCredentials
	}
	now := s.now()
	if acct.IsLocked(now) {
		s.audit.Record(ctx, auditdomain.EventLoginFailure, audit.ActorID(acct.ID), map[string]any{"reason": "locked"})
		s.metrics.Login(ctx, telemetry.LoginLocked)
		return nil, ErrAccountLocked
	}
	if !s.hasher.Verify(password, acct.PasswordHash) {
		return nil, s.loginFailed(ctx, acct, now)
	}
	sess, err := s.startSession(ctx, acct, now)
	if errors.Is(err, ErrAccountLocked) {
		s.audit.Record(ctx, auditdomain.EventLoginFailure, audit.ActorID(acct.ID), map[string]any{"reason": "locked"})
		s.metrics.Login(ctx, telemetry.LoginLocked)
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, auditdomain.EventLoginSuccess, audit.ActorID(acct.ID), map[string]any{"mustChangePassword": sess.MustChangePassword})
	s.metrics.Login(ctx, telemetry.LoginSuccess)
	return sess, nil
}

func (s *AuthService) loginFailed(ctx context.Context, acct *accountdomain.Account, now time.Time) error {
	f, err := s.accounts.RecordLoginFailure(ctx, acct.ID, s.opts.Lockout, now)
	if err != nil {
		return err
	}
	actor := audit.ActorID(acct.ID)
	if f.LockedNow {
		s.audit.Record(ctx, auditdomain.EventAccountLocked, actor, map[string]any{
			"attempts":    f.Attempts,
			"lockedUntil": f.LockedUntil,
		})
		s.metrics.Lockout(ctx)
	}
	if f.Locked {
		s.metrics.Login(ctx, telemetry.LoginLocked)
		return ErrAccountLocked
	}
	s.audit.Record(ctx, auditdomain.EventLoginFailure, actor, map[string]any{"reason": "bad_password", "attempts": f.Attempts})
	s.metrics.Login(ctx, telemetry.LoginBadCredentials)
	return ErrBadCredentials
}

// startSession records a successful authentication at now and issues tokens carrying
// the computed forced-change flag. The flag is decided from the state before this login
// and is never written back. Fails with ErrAccountLocked when a concurrent failed attempt
// locked the account after acct was read.
func (s *AuthService) startSession(ctx context.Context, acct *accountdomain.Account, now time.Time) (*Session, error) {
	mustChange, err := s.mustChangePassword(ctx, acct)
	if err != nil {
		return nil, err
	}
	if err := s.accounts.RecordLoginSuccess(ctx, acct.ID, now); err != nil {
		switch {
		case errors.Is(err, accountrepo.ErrNotFound):
			return nil, ErrNotFound
		case errors.Is(err, accountrepo.ErrLocked):
			return nil, ErrAccountLocked
		}
		return nil, err
	}
	pair, err := s.tokens.IssuePair(identityOf(acct, mustChange))
	if err != nil {
		return nil, err
	}
	out := *acct
	out.FailedLoginAttempts = 0
	out.LockedUntil = nil
	out.LastLoginAt = &now
	return &Session{Tokens: pair, Account: &out, MustChangePassword: mustChange}, nil
}

func (s *AuthService) mustChangePassword(ctx context.Context, acct *accountdomain.Account) (bool, error) {
	isAdmin, err := s.roles.IsAdmin(ctx, acct.ID)
	if err != nil {
		return false, err
	}
	in := policyengine.RotationInput{
		IsRoot:      s.isRoot(acct.Email),
		IsAdmin:     isAdmin,
		Exempt:      acct.RotationExempt,
		HasLoggedIn: acct.LastLoginAt != nil,
	}
	if s.rotation == nil {
		return policyengine.DefaultRotation(in), nil
	}
	return s.rotation.MustChangePassword(ctx, in)
}

func (s *AuthService) isRoot(email string) bool {
	root := accountdomain.NormalizeEmail(s.opts.RootAdminEmail)
	return root != "" && accountdomain.NormalizeEmail(email) == root
}

func identityOf(acct *accountdomain.Account, mustChange bool) security.Identity {
	return security.Identity{
		AccountID:          acct.ID,
		Email:              acct.Email,
		Role:               acct.Role,
		MustChangePassword: mustChange,
	}
}

// Refresh verifies refreshToken and re-signs a new pair from its identity claims unchanged.
// Refresh tokens issued before the account's last password change are rejected.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (security.TokenPair, security.Identity, error) {
	if refreshToken == "" {
		return security.TokenPair{}, security.Identity{}, ErrNoRefreshToken
	}
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		s.audit.Record(ctx, auditdomain.EventTokenRefreshFailed, nil, map[string]any{"reason": err.Error()})
		return security.TokenPair{}, security.Identity{}, ErrInvalidRefresh
	}
	acct, err := s.accounts.GetByID(ctx, claims.AccountID)
	if err != nil {
		return security.TokenPair{}, security.Identity{}, err
	}
	if acct == nil || !acct.CanAuthenticate() {
		s.audit.Record(ctx, auditdomain.EventTokenRefreshFailed, audit.ActorID(claims.AccountID), map[string]any{"reason": "account_unavailable"})
		return security.TokenPair{}, security.Identity{}, ErrInvalidRefresh
	}
	if issuedBeforePasswordChange(claims, acct) {
		s.audit.Record(ctx, auditdomain.EventTokenRefreshFailed, audit.ActorID(claims.AccountID), map[string]any{"reason": "password_changed"})
		return security.TokenPair{}, security.Identity{}, ErrInvalidRefresh
	}
	pair, err := s.tokens.IssuePair(claims.Identity)
	if err != nil {
		return security.TokenPair{}, security.Identity{}, err
	}
	s.audit.Record(ctx, auditdomain.EventTokenRefresh, audit.ActorID(claims.AccountID), nil)
	return pair, claims.Identity, nil
}

// issuedBeforePasswordChange compares at whole seconds, the precision of the iat claim.
func issuedBeforePasswordChange(claims *security.Claims, acct *accountdomain.Account) bool {
	if claims.IssuedAt == nil || acct.PasswordChangedAt == nil {
		return false
	}
	return claims.IssuedAt.Time.Before(acct.PasswordChangedAt.Truncate(time.Second))
}

// ChangePassword replaces the password of accountID after checking the old one, clears the
// forced-change flag and returns a fresh session with MustChangePassword false.
func (s *AuthService) ChangePassword(ctx context.Context, accountID int64, oldPassword, newPassword, confirmPassword string) (*Session, error) {
	if oldPassword == "" {
		return nil, invalid("old_password", "is required")
	}
	if err := checkNewPassword(newPassword, confirmPassword); err != nil {
		return nil, err
	}
	if oldPassword == newPassword {
		return nil, invalid("new_password", "must differ from the old password")
	}
	acct, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, ErrNotFound
	}
	if !s.hasher.Verify(oldPassword, acct.PasswordHash) {
		s.audit.Record(ctx, auditdomain.EventPasswordChange, audit.ActorID(accountID), map[string]any{"outcome": "bad_old_password"})
		return nil, ErrBadCredentials
	}
	now := s.now()
	if err := s.setPassword(ctx, acct, newPassword, now); err != nil {
		return nil, err
	}
	pair, err := s.tokens.IssuePair(identityOf(acct, false))
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, auditdomain.EventPasswordChange, audit.ActorID(accountID), map[string]any{"outcome": "success"})
	return &Session{Tokens: pair, Account: acct, MustChangePassword: false}, nil
}

// setPassword hashes and stores password, updating acct in place.
func (s *AuthService) setPassword(ctx context.Context, acct *accountdomain.Account, password string, now time.Time) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdatePassword(ctx, acct.ID, hash, now); err != nil {
		if errors.Is(err, accountrepo.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	acct.PasswordHash = hash
	acct.PasswordChangedAt = &now
	acct.MustChangePassword = false
	return nil
}

func checkNewPassword(newPassword, confirmPassword string) error {
	if newPassword == "" {
		return invalid("new_password", "is required")
	}
	if newPassword != confirmPassword {
		return invalid("confirm_password", "does not match new_password")
	}
	if res := security.ValidateStrength(newPassword); !res.Valid {
		ve := invalid("new_password", res.Violations...)
		ve.Message = "password does not meet strength requirements"
		return ve
	}
	return nil
}

// ForgotPassword issues a reset token for email and hands the link to the notifier. The caller
// sees the same result whether or not the account exists; lookup and delivery failures are only logged.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = accountdomain.NormalizeEmail(email)
	if email == "" {
		return invalid("email", "is required")
	}
	acct, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		log.Printf("auth: forgot-password lookup failed: %v", err)
		return nil
	}
	if acct == nil || !acct.CanAuthenticate() {
		s.audit.Record(ctx, auditdomain.EventPasswordResetRequested, nil, map[string]any{"email": email, "delivered": false})
		s.metrics.PasswordReset(ctx, "requested")
		return nil
	}
	token, exp, err := s.tokens.IssuePasswordReset(acct.ID, acct.PasswordHash)
	if err != nil {
		log.Printf("auth: issue reset token for account %d: %v", acct.ID, err)
		return nil
	}
	if s.devStore != nil {
		s.devStore.Put(ctx, acct.Email, token, exp)
	}
	delivered := true
	if err := s.notifier.SendPasswordReset(ctx, acct.Email, notify.ResetLink(s.opts.ResetLinkBaseURL, token)); err != nil {
		log.Printf("auth: deliver reset link for account %d: %v", acct.ID, err)
		delivered = false
	}
	s.audit.Record(ctx, auditdomain.EventPasswordResetRequested, audit.ActorID(acct.ID), map[string]any{"delivered": delivered})
	s.metrics.PasswordReset(ctx, "requested")
	return nil
}

// ResetPassword consumes a reset token: the token must still be bound to the account's current
// digest. On success the password is replaced and a session is started as for a login.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword, confirmPassword string) (*Session, error) {
	if token == "" {
		return nil, invalid("token", "is required")
	}
	claims, err := s.tokens.VerifyPasswordReset(token)
	if err != nil {
		return nil, s.resetRejected(ctx, nil, err.Error())
	}
	id, err := claims.AccountID()
	if err != nil {
		return nil, s.resetRejected(ctx, nil, "bad_subject")
	}
	acct, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if acct == nil || !acct.CanAuthenticate() {
		return nil, s.resetRejected(ctx, audit.ActorID(id), "account_unavailable")
	}
	if !security.ResetFingerprintMatches(claims, acct.PasswordHash) {
		return nil, s.resetRejected(ctx, audit.ActorID(id), "stale_token")
	}
	if err := checkNewPassword(newPassword, confirmPassword); err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.setPassword(ctx, acct, newPassword, now); err != nil {
		return nil, err
	}
	sess, err := s.startSession(ctx, acct, now)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, auditdomain.EventPasswordReset, audit.ActorID(id), nil)
	s.metrics.PasswordReset(ctx, "completed")
	return sess, nil
}

func (s *AuthService) resetRejected(ctx context.Context, actor *int64, reason string) error {
	s.audit.Record(ctx, auditdomain.EventPasswordReset, actor, map[string]any{"outcome": "rejected", "reason": reason})
	s.metrics.PasswordReset(ctx, "rejected")
	return ErrInvalidToken
}

// Logout records the logout of accountID. Tokens are stateless, so clearing cookies is the
// handler's job; accountID 0 (no valid session) is a no-op.
func (s *AuthService) Logout(ctx context.Context, accountID int64) {
	if accountID <= 0 {
		return
	}
	s.audit.Record(ctx, auditdomain.EventLogout, audit.ActorID(accountID), nil)
}

// Me returns the account and its role names.
func (s *AuthService) Me(ctx context.Context, accountID int64) (*Profile, error) {
	acct, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, ErrNotFound
	}
	roles, err := s.roles.ListRoleNames(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &Profile{Account: acct, Roles: roles}, nil
}

// ProvisionAccount creates an account on behalf of an administrator. The account must change
// its password on first login. role defaults to citizen. If the role cannot be granted the
// new account is discarded, so the email can be provisioned again.
func (s *AuthService) ProvisionAccount(ctx context.Context, actorID int64, email, name, password, role string) (*Profile, error) {
	if s.granter == nil {
		return nil, errors.New("auth: account provisioning is not configured")
	}
	email = accountdomain.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, invalid("email", err.Error())
	}
	if res := security.ValidateStrength(password); !res.Valid {
		return nil, invalid("password", res.Violations...)
	}
	if strings.TrimSpace(role) == "" {
		role = roledomain.RoleCitizen
	}
	ref, err := roledomain.ParseRoleRef(role)
	if err != nil {
		return nil, invalid("role", err.Error())
	}
	ok, err := s.granter.RoleExists(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, invalid("role", "unknown role")
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	now := s.now()
	acct := &accountdomain.Account{
		Email:              email,
		Name:               strings.TrimSpace(name),
		PasswordHash:       hash,
		Role:               roledomain.RoleCitizen,
		Active:             true,
		MustChangePassword: true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := acct.Validate(); err != nil {
		return nil, invalid("account", err.Error())
	}
	id, err := s.accounts.Create(ctx, acct)
	if err != nil {
		if errors.Is(err, accountrepo.ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	acct.ID = id
	s.audit.Record(ctx, auditdomain.EventAccountCreated, audit.ActorID(actorID), map[string]any{"accountId": id})
	roles, err := s.granter.Grant(ctx, actorID, id, ref)
	if err != nil {
		if derr := s.accounts.Discard(ctx, id); derr != nil {
			log.Printf("auth: discard account %d after failed grant: %v", id, derr)
		} else {
			s.audit.Record(ctx, auditdomain.EventAccountDeleted, audit.ActorID(actorID), map[string]any{"targetId": id, "reason": "grant_failed"})
		}
		return nil, err
	}
	acct.Role = roledomain.PrimaryRole(roles)
	return &Profile{Account: acct, Roles: roles}, nil
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) error {
	if email == "" {
		return errors.New("is required")
	}
	if !emailPattern.MatchString(email) {
		return errors.New("invalid email format")
	}
	return nil
}
