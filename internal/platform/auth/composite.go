package auth

import (
	"net/http"
)

// RequireAdminOrService accepts either a Firebase admin ID token or, when an
// OIDC validator is supplied, a Google-signed service token for audience.
// The Firebase check runs first; its failure is reported when both fail.
func RequireAdminOrService(authn *Authenticator, oidc *OIDCValidator, audience string, issuers []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			tokenStr, source := extractOIDCToken(r)
			if tokenStr == "" {
				respondAuthError(ctx, w, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
				return
			}

			identity, failure := authn.authenticateAdmin(ctx, tokenStr)
			if failure == nil {
				next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
				return
			}

			if oidc != nil && audience != "" {
				service, oidcFailure := oidc.verify(ctx, tokenStr, source, audience, issuers)
				if oidcFailure == nil {
					next.ServeHTTP(w, r.WithContext(WithServiceIdentity(ctx, service)))
					return
				}
			}
			respondAuthError(ctx, w, failure.status, failure.code, failure.message)
		})
	}
}
