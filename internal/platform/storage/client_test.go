package storage

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"
)

type fakeSigner struct {
	email    string
	payloads [][]byte
	err      error
}

func (f *fakeSigner) Email() string {
	return f.email
}

func (f *fakeSigner) SignBytes(_ context.Context, payload []byte) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.payloads = append(f.payloads, append([]byte(nil), payload...))
	return []byte("signed"), nil
}

func TestUploadURLSuccess(t *testing.T) {
	signer := &fakeSigner{email: "uploader@example.iam.gserviceaccount.com"}
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	client, err := NewClient(signer, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("unexpected error creating client: %v", err)
	}

	res, err := client.UploadURL(context.Background(), "images", "products/p1/img.png", UploadOptions{
		ContentType: "image/PNG",
		MaxSize:     1 << 20,
		ExpiresIn:   10 * time.Minute,
	})
	if err != nil {
		t.Fatalf("UploadURL returned error: %v", err)
	}

	if res.Method != httpMethodPut {
		t.Fatalf("expected method PUT, got %s", res.Method)
	}
	if !res.ExpiresAt.Equal(now.Add(10 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", res.ExpiresAt)
	}
	if res.Headers["Content-Type"] != "image/png" {
		t.Fatalf("expected lower-cased Content-Type header, got %v", res.Headers)
	}
	if res.Headers["x-goog-content-length-range"] != "0,1048576" {
		t.Fatalf("expected content length header, got %v", res.Headers)
	}

	parsed, err := url.Parse(res.URL)
	if err != nil {
		t.Fatalf("failed to parse signed URL: %v", err)
	}
	if !strings.Contains(parsed.RawQuery, "X-Goog-Signature=") {
		t.Fatalf("expected signature in query: %s", parsed.RawQuery)
	}
	if !strings.Contains(parsed.Path, "products/p1/img.png") {
		t.Fatalf("unexpected path %s", parsed.Path)
	}
	if len(signer.payloads) != 1 {
		t.Fatalf("expected one signing call, got %d", len(signer.payloads))
	}
}

func TestUploadURLValidation(t *testing.T) {
	client, err := NewClient(&fakeSigner{email: "svc@example.com"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()

	if _, err := client.UploadURL(ctx, "", "a.png", UploadOptions{ContentType: "image/png"}); !errors.Is(err, errInvalidBucket) {
		t.Fatalf("expected bucket error, got %v", err)
	}
	if _, err := client.UploadURL(ctx, "b", " ", UploadOptions{ContentType: "image/png"}); !errors.Is(err, errInvalidObject) {
		t.Fatalf("expected object error, got %v", err)
	}
	if _, err := client.UploadURL(ctx, "b", "a.pdf", UploadOptions{ContentType: "application/pdf"}); !errors.Is(err, ErrContentTypeNotAllowed) {
		t.Fatalf("expected content type error, got %v", err)
	}
	if _, err := client.UploadURL(ctx, "b", "a.png", UploadOptions{ContentType: "image/png", ExpiresIn: 2 * time.Hour}); !errors.Is(err, errExpiryTooLong) {
		t.Fatalf("expected expiry error, got %v", err)
	}
	if _, err := client.UploadURL(ctx, "b", "a.avif", UploadOptions{ContentType: "image/avif", AllowedContentTypes: []string{"image/*"}}); err != nil {
		t.Fatalf("expected wildcard content type to pass, got %v", err)
	}
}

func TestUploadURLSignerFailure(t *testing.T) {
	client, err := NewClient(&fakeSigner{email: "svc@example.com", err: errors.New("kms down")})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.UploadURL(context.Background(), "b", "a.png", UploadOptions{ContentType: "image/png"}); err == nil || !strings.Contains(err.Error(), "kms down") {
		t.Fatalf("expected signer error, got %v", err)
	}
}

func TestNewClientRequiresSigner(t *testing.T) {
	if _, err := NewClient(nil); !errors.Is(err, errNoSigner) {
		t.Fatalf("expected errNoSigner, got %v", err)
	}
	if _, err := NewClient(&fakeSigner{}); !errors.Is(err, errNoSigner) {
		t.Fatalf("expected errNoSigner for empty email, got %v", err)
	}
}

func TestParseKeySigner(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	raw, _ := json.Marshal(map[string]string{"client_email": "svc@example.com", "private_key": string(pemKey)})

	signer, err := ParseKeySigner(raw)
	if err != nil {
		t.Fatalf("parse signer: %v", err)
	}
	if signer.Email() != "svc@example.com" {
		t.Fatalf("unexpected email %q", signer.Email())
	}
	sig, err := signer.SignBytes(context.Background(), []byte("payload"))
	if err != nil || len(sig) == 0 {
		t.Fatalf("sign bytes: %v", err)
	}

	if _, err := ParseKeySigner([]byte(`{"client_email":"svc@example.com","private_key":"nope"}`)); err == nil {
		t.Fatalf("expected error for invalid PEM")
	}
}

func TestPaths(t *testing.T) {
	got, err := ProductImagePath("prod/../1", "01HX", "image/jpeg")
	if err != nil {
		t.Fatalf("product image path: %v", err)
	}
	if got != "products/prod-1/01HX.jpg" {
		t.Fatalf("unexpected path %q", got)
	}
	if _, err := ProductImagePath("p1", "i1", "text/plain"); !errors.Is(err, ErrContentTypeNotAllowed) {
		t.Fatalf("expected content type error, got %v", err)
	}

	from := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC)
	if p := SalesExportPath(from, to); p != "sales/2024-04-01_2024-04-30.csv" {
		t.Fatalf("unexpected export path %q", p)
	}
	if u := PublicURL("images", "products/p 1/a.png"); u != "https://storage.googleapis.com/images/products/p%201/a.png" {
		t.Fatalf("unexpected public url %q", u)
	}
}
