package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

// MetricsRecorder receives token verification outcomes.
type MetricsRecorder interface {
	RecordVerification(ctx context.Context, kind string, success bool, reason string, duration time.Duration)
}

// OIDCValidator verifies Google-signed OIDC and IAP tokens presented by
// Cloud Scheduler, Cloud Tasks and other internal callers.
type OIDCValidator struct {
	cache   *JWKSCache
	logger  *zap.Logger
	metrics MetricsRecorder
	now     func() time.Time
}

// OIDCOption customises the validator.
type OIDCOption func(*OIDCValidator)

func NewOIDCValidator(cache *JWKSCache, opts ...OIDCOption) *OIDCValidator {
	v := &OIDCValidator{cache: cache, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

func WithOIDCLogger(logger *zap.Logger) OIDCOption {
	return func(v *OIDCValidator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

func WithOIDCMetrics(recorder MetricsRecorder) OIDCOption {
	return func(v *OIDCValidator) { v.metrics = recorder }
}

func WithOIDCClock(now func() time.Time) OIDCOption {
	return func(v *OIDCValidator) {
		if now != nil {
			v.now = now
		}
	}
}

// ServiceIdentity is the verified caller of a service-to-service request.
type ServiceIdentity struct {
	Subject  string
	Email    string
	Issuer   string
	Audience string
}

type serviceIdentityKey struct{}

func WithServiceIdentity(ctx context.Context, identity *ServiceIdentity) context.Context {
	if identity == nil {
		return ctx
	}
	return context.WithValue(ctx, serviceIdentityKey{}, identity)
}

func ServiceIdentityFromContext(ctx context.Context) (*ServiceIdentity, bool) {
	identity, ok := ctx.Value(serviceIdentityKey{}).(*ServiceIdentity)
	return identity, ok && identity != nil
}

// RequireOIDC rejects requests without a valid token for audience. When
// issuers is non-empty the token issuer must be one of them.
func (v *OIDCValidator) RequireOIDC(audience string, issuers []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			tokenStr, source := extractOIDCToken(r)
			identity, failure := v.verify(ctx, tokenStr, source, audience, issuers)
			if failure != nil {
				respondAuthError(ctx, w, failure.status, failure.code, failure.message)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithServiceIdentity(ctx, identity)))
		})
	}
}

func (v *OIDCValidator) verify(ctx context.Context, tokenStr, source, audience string, issuers []string) (*ServiceIdentity, *authFailure) {
	if v == nil || v.cache == nil {
		return nil, &authFailure{http.StatusServiceUnavailable, "verification_unavailable", "oidc verification unavailable"}
	}
	start := v.now()
	fail := func(reason string, status int, code, message string) (*ServiceIdentity, *authFailure) {
		v.logger.Info("auth: oidc token rejected", zap.String("reason", reason), zap.String("source", source))
		v.record(ctx, false, reason, start)
		return nil, &authFailure{status, code, message}
	}

	audience = strings.TrimSpace(audience)
	if audience == "" {
		return fail("audience_not_configured", http.StatusServiceUnavailable, "verification_unavailable", "oidc audience not configured")
	}
	if tokenStr == "" {
		return fail("token_missing", http.StatusUnauthorized, "unauthenticated", "oidc token missing")
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	if _, err := parser.ParseWithClaims(tokenStr, claims, v.cache.Keyfunc(ctx)); err != nil {
		if errors.Is(err, ErrJWKSFetchFailed) {
			v.logger.Warn("auth: jwks unavailable", zap.Error(err))
			return fail("jwks_unavailable", http.StatusServiceUnavailable, "invalid_token", "oidc token verification failed")
		}
		return fail("token_invalid", http.StatusUnauthorized, "invalid_token", "oidc token verification failed")
	}

	issuer, _ := claims["iss"].(string)
	if allowed := trimAll(issuers); len(allowed) > 0 && !slices.Contains(allowed, issuer) {
		return fail("issuer_mismatch", http.StatusUnauthorized, "invalid_token", "oidc issuer mismatch")
	}
	if !slices.Contains(audiences(claims["aud"]), audience) {
		return fail("audience_mismatch", http.StatusUnauthorized, "invalid_token", "oidc audience mismatch")
	}

	v.record(ctx, true, "ok", start)
	subject, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	return &ServiceIdentity{Subject: subject, Email: email, Issuer: issuer, Audience: audience}, nil
}

func (v *OIDCValidator) record(ctx context.Context, success bool, reason string, start time.Time) {
	if v.metrics != nil {
		v.metrics.RecordVerification(ctx, "oidc", success, reason, v.now().Sub(start))
	}
}

func extractOIDCToken(r *http.Request) (token, source string) {
	if bearer, ok := extractBearerToken(r.Header.Get("Authorization")); ok {
		return bearer, "authorization"
	}
	if assertion := strings.TrimSpace(r.Header.Get("X-Goog-Iap-Jwt-Assertion")); assertion != "" {
		return assertion, "iap"
	}
	return "", ""
}

func audiences(raw any) []string {
	switch v := raw.(type) {
	case string:
		return []string{strings.TrimSpace(v)}
	case []string:
		return trimAll(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return trimAll(out)
	}
	return nil
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			out = append(out, value)
		}
	}
	return out
}
