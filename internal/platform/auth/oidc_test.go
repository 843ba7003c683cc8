package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
)

const (
	schedulerAudience = "https://api.religionne00.example/emails"
	googleIssuer      = "https://accounts.google.com"
	fixtureKeyID      = "scheduler-key"
)

type verification struct {
	kind    string
	success bool
	reason  string
}

type verificationLog struct {
	mu      sync.Mutex
	entries []verification
}

func (l *verificationLog) RecordVerification(_ context.Context, kind string, success bool, reason string, _ time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, verification{kind: kind, success: success, reason: reason})
}

func (l *verificationLog) last() verification {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return verification{}
	}
	return l.entries[len(l.entries)-1]
}

// oidcFixture serves a one-key JWKS and signs tokens with the matching key.
type oidcFixture struct {
	key     *rsa.PrivateKey
	server  *httptest.Server
	fetches atomic.Int32
	now     time.Time
}

func newOIDCFixture(t *testing.T) *oidcFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	f := &oidcFixture{key: key, now: time.Unix(1_735_689_600, 0)}
	set := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key:       &key.PublicKey,
		KeyID:     fixtureKeyID,
		Algorithm: jwt.SigningMethodRS256.Alg(),
		Use:       "sig",
	}}}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		f.fetches.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(f.server.Close)

	previous := jwt.TimeFunc
	jwt.TimeFunc = func() time.Time { return f.now }
	t.Cleanup(func() { jwt.TimeFunc = previous })
	return f
}

func (f *oidcFixture) validator(log *verificationLog) *OIDCValidator {
	clock := func() time.Time { return f.now }
	return NewOIDCValidator(
		NewJWKSCache(f.server.URL, WithJWKSClock(clock)),
		WithOIDCMetrics(log),
		WithOIDCClock(clock),
	)
}

func (f *oidcFixture) sign(t *testing.T, edit func(jwt.MapClaims)) string {
	t.Helper()
	claims := jwt.MapClaims{
		"aud":   schedulerAudience,
		"iss":   googleIssuer,
		"sub":   "1234567890",
		"email": "mailer@religionne00.iam.gserviceaccount.com",
		"iat":   float64(f.now.Unix()),
		"exp":   float64(f.now.Add(30 * time.Minute).Unix()),
	}
	if edit != nil {
		edit(claims)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = fixtureKeyID
	signed, err := token.SignedString(f.key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestRequireOIDC(t *testing.T) {
	f := newOIDCFixture(t)

	cases := []struct {
		name     string
		audience string
		edit     func(jwt.MapClaims)
		header   string
		noToken  bool
		status   int
		reason   string
	}{
		{name: "valid bearer", audience: schedulerAudience, status: http.StatusOK, reason: "ok"},
		{
			name:     "audience list",
			audience: schedulerAudience,
			edit:     func(c jwt.MapClaims) { c["aud"] = []string{"other", schedulerAudience} },
			status:   http.StatusOK,
			reason:   "ok",
		},
		{name: "iap assertion", audience: schedulerAudience, header: "X-Goog-Iap-Jwt-Assertion", status: http.StatusOK, reason: "ok"},
		{
			name:     "wrong audience",
			audience: schedulerAudience,
			edit:     func(c jwt.MapClaims) { c["aud"] = "https://elsewhere.example" },
			status:   http.StatusUnauthorized,
			reason:   "audience_mismatch",
		},
		{
			name:     "untrusted issuer",
			audience: schedulerAudience,
			edit:     func(c jwt.MapClaims) { c["iss"] = "https://issuer.example" },
			status:   http.StatusUnauthorized,
			reason:   "issuer_mismatch",
		},
		{
			name:     "expired",
			audience: schedulerAudience,
			edit:     func(c jwt.MapClaims) { c["exp"] = float64(f.now.Add(-time.Minute).Unix()) },
			status:   http.StatusUnauthorized,
			reason:   "token_invalid",
		},
		{name: "missing token", audience: schedulerAudience, noToken: true, status: http.StatusUnauthorized, reason: "token_missing"},
		{name: "audience not configured", audience: " ", status: http.StatusServiceUnavailable, reason: "audience_not_configured"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			log := &verificationLog{}
			mw := f.validator(log).RequireOIDC(tc.audience, []string{googleIssuer})

			req := httptest.NewRequest(http.MethodPost, "/api/v1/emails/shipment", nil)
			if !tc.noToken {
				token := f.sign(t, tc.edit)
				if tc.header != "" {
					req.Header.Set(tc.header, token)
				} else {
					req.Header.Set("Authorization", "Bearer "+token)
				}
			}

			var caller *ServiceIdentity
			rr := httptest.NewRecorder()
			mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				caller, _ = ServiceIdentityFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})).ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rr.Code)
			}
			if got := log.last(); got.kind != "oidc" || got.reason != tc.reason || got.success != (tc.status == http.StatusOK) {
				t.Fatalf("unexpected verification record %+v", got)
			}
			if tc.status == http.StatusOK {
				if caller == nil || caller.Email != "mailer@religionne00.iam.gserviceaccount.com" || caller.Audience != schedulerAudience {
					t.Fatalf("unexpected caller identity %+v", caller)
				}
			}
		})
	}
}

func TestRequireOIDC_JWKSUnavailable(t *testing.T) {
	f := newOIDCFixture(t)
	log := &verificationLog{}
	validator := f.validator(log)
	validator.cache.url = "http://127.0.0.1:1/certs"

	req := httptest.NewRequest(http.MethodPost, "/api/v1/emails/shipment", nil)
	req.Header.Set("Authorization", "Bearer "+f.sign(t, nil))
	rr := httptest.NewRecorder()
	validator.RequireOIDC(schedulerAudience, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler must not run")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	if got := log.last(); got.reason != "jwks_unavailable" {
		t.Fatalf("expected jwks_unavailable, got %+v", got)
	}
}

func TestJWKSCache_ReusesFetchedKeys(t *testing.T) {
	f := newOIDCFixture(t)
	cache := NewJWKSCache(f.server.URL, WithJWKSClock(func() time.Time { return f.now }))

	for i := 0; i < 3; i++ {
		key, err := cache.Key(context.Background(), fixtureKeyID)
		if err != nil {
			t.Fatalf("lookup %d: %v", i, err)
		}
		if _, ok := key.(*rsa.PublicKey); !ok {
			t.Fatalf("expected *rsa.PublicKey, got %T", key)
		}
	}
	if n := f.fetches.Load(); n != 1 {
		t.Fatalf("expected one JWKS fetch, got %d", n)
	}
}

func TestMaxAge(t *testing.T) {
	cases := map[string]time.Duration{
		"public, max-age=21600, must-revalidate": 6 * time.Hour,
		"max-age=0":                              0,
		"no-cache":                               0,
		"max-age=soon":                           0,
	}
	for header, want := range cases {
		if got := maxAge(header); got != want {
			t.Fatalf("maxAge(%q) = %s, want %s", header, got, want)
		}
	}
}
