package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/3ureka-official/religionne00-sub001/internal/platform/httpx"
)

const (
	defaultRoleClaim     = "role"
	defaultAdminClaim    = "admin"
	defaultVerifyTimeout = 5 * time.Second
)

var (
	// ErrTokenExpired signals that the provided Firebase ID token has expired.
	ErrTokenExpired = errors.New("auth: firebase id token expired")
	// ErrTokenInvalid signals that the provided Firebase ID token is invalid for other reasons.
	ErrTokenInvalid = errors.New("auth: firebase id token invalid")
)

// TokenVerifier verifies Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// Authenticator wires Firebase token verification into HTTP middleware.
type Authenticator struct {
	verifier TokenVerifier
	notifier *StateNotifier

	roleClaim  string
	adminClaim string
	timeout    time.Duration
	now        func() time.Time
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithRoleClaim overrides the custom claim used for role extraction.
func WithRoleClaim(claim string) Option {
	return func(a *Authenticator) {
		if claim = strings.TrimSpace(claim); claim != "" {
			a.roleClaim = claim
		}
	}
}

// WithAdminClaim overrides the boolean custom claim that marks administrators.
func WithAdminClaim(claim string) Option {
	return func(a *Authenticator) {
		if claim = strings.TrimSpace(claim); claim != "" {
			a.adminClaim = claim
		}
	}
}

// WithVerificationTimeout sets the timeout used when verifying tokens.
func WithVerificationTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithStateNotifier publishes verification outcomes to notifier.
func WithStateNotifier(notifier *StateNotifier) Option {
	return func(a *Authenticator) {
		a.notifier = notifier
	}
}

// WithClock injects the clock used for state change timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAuthenticator constructs a Firebase Authenticator for middleware composition.
func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{
		verifier:   verifier,
		roleClaim:  defaultRoleClaim,
		adminClaim: defaultAdminClaim,
		timeout:    defaultVerifyTimeout,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// authFailure carries the HTTP rendering of a rejected token.
type authFailure struct {
	status  int
	code    string
	message string
}

// RequireAdmin verifies the Authorization bearer token and requires the admin role.
func (a *Authenticator) RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			tokenStr, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondAuthError(ctx, w, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
				return
			}
			identity, failure := a.authenticateAdmin(ctx, tokenStr)
			if failure != nil {
				respondAuthError(ctx, w, failure.status, failure.code, failure.message)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
		})
	}
}

// authenticateAdmin verifies tokenStr and checks the admin role, publishing
// the outcome to the state notifier.
func (a *Authenticator) authenticateAdmin(ctx context.Context, tokenStr string) (*Identity, *authFailure) {
	if a == nil || a.verifier == nil {
		return nil, &authFailure{http.StatusServiceUnavailable, "verification_unavailable", "authorization service unavailable"}
	}

	verifyCtx, cancel := a.contextWithTimeout(ctx)
	token, err := a.verifier.VerifyIDToken(verifyCtx, tokenStr)
	if cancel != nil {
		cancel()
	}
	if err != nil {
		failure := verificationFailure(err)
		a.notifier.rejected("", failure.code, a.now())
		return nil, failure
	}

	identity := &Identity{
		UID:   token.UID,
		Email: claimAsString(token.Claims, "email"),
		Roles: rolesFromClaims(token.Claims, a.roleClaim),
		token: token,
	}
	if admin, _ := token.Claims[a.adminClaim].(bool); admin && !identity.IsAdmin() {
		identity.Roles = append(identity.Roles, RoleAdmin)
	}

	if !identity.IsAdmin() {
		a.notifier.rejected(identity.UID, "insufficient_role", a.now())
		return nil, &authFailure{http.StatusForbidden, "insufficient_role", "identity does not have required role"}
	}

	a.notifier.verified(identity.UID, identity.Email, a.now())
	return identity, nil
}

func (a *Authenticator) contextWithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a == nil || a.timeout <= 0 {
		return ctx, nil
	}
	return context.WithTimeout(ctx, a.timeout)
}

func rolesFromClaims(claims map[string]interface{}, key string) []string {
	var raw []string
	switch v := claims[key].(type) {
	case string:
		raw = []string{v}
	case []string:
		raw = v
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	case map[string]interface{}:
		for role, enabled := range v {
			if b, ok := enabled.(bool); ok && b {
				raw = append(raw, role)
			}
		}
	}

	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, item := range raw {
		role := normaliseRole(item)
		if role == "" {
			continue
		}
		if _, exists := seen[role]; exists {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out
}

func claimAsString(claims map[string]interface{}, key string) string {
	if v, ok := claims[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}

func respondAuthError(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	httpx.WriteError(ctx, w, httpx.NewError(code, message, status))
}

func verificationFailure(err error) *authFailure {
	switch {
	case errors.Is(err, ErrTokenExpired), firebaseauth.IsIDTokenExpired(err):
		return &authFailure{http.StatusUnauthorized, "token_expired", "firebase id token expired"}
	case errors.Is(err, ErrTokenInvalid), firebaseauth.IsIDTokenInvalid(err):
		return &authFailure{http.StatusUnauthorized, "invalid_token", "firebase id token invalid"}
	default:
		return &authFailure{http.StatusUnauthorized, "invalid_token", "firebase id token verification failed"}
	}
}
