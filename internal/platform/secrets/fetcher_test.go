package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const stripeLatest = "projects/shop/secrets/stripe-secret-key/versions/latest"

func TestResolveCachesRemoteSecret(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.values[stripeLatest] = "sk_live_remote"

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(client), WithDefaultProject("shop"), WithFallbackFile(""))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	defer fetcher.Close()

	for i := 0; i < 2; i++ {
		got, err := fetcher.Resolve(ctx, "secret://stripe-secret-key")
		if err != nil || got != "sk_live_remote" {
			t.Fatalf("Resolve #%d = %q, %v", i, got, err)
		}
	}
	if calls := client.callCount(stripeLatest); calls != 1 {
		t.Fatalf("expected one remote fetch, got %d", calls)
	}
}

func TestResolveRefetchesAfterTTL(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.values[stripeLatest] = "sk_live_remote"

	fetcher, _ := NewFetcher(ctx, WithSecretManagerClient(client), WithDefaultProject("shop"), WithCacheTTL(time.Minute))
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fetcher.now = func() time.Time { return now }

	if _, err := fetcher.Resolve(ctx, "secret://stripe-secret-key"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	now = now.Add(2 * time.Minute)
	client.values[stripeLatest] = "sk_live_rotated"

	got, err := fetcher.Resolve(ctx, "secret://stripe-secret-key")
	if err != nil || got != "sk_live_rotated" {
		t.Fatalf("expected rotated value, got %q, %v", got, err)
	}
}

func TestResolveHonoursVersionAndProjectQuery(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	pinned := "projects/other/secrets/paypay-api-secret/versions/3"
	client.values[pinned] = "v3"

	fetcher, _ := NewFetcher(ctx, WithSecretManagerClient(client), WithDefaultProject("shop"))

	got, err := fetcher.Resolve(ctx, "sm://paypay-api-secret?version=3&project=other")
	if err != nil || got != "v3" {
		t.Fatalf("Resolve = %q, %v", got, err)
	}
	if client.callCount(pinned) != 1 {
		t.Fatalf("expected pinned version to be fetched")
	}
}

func TestResolveFallsBackWhenSecretManagerDenies(t *testing.T) {
	ctx := context.Background()
	path := writeFallback(t, "# local dev\nsecret://stripe-secret-key=sk_test_local\n")

	client := newFakeSecretClient()
	client.errors[stripeLatest] = status.Error(codes.PermissionDenied, "denied")

	fetcher, _ := NewFetcher(ctx, WithSecretManagerClient(client), WithDefaultProject("shop"), WithFallbackFile(path))

	got, err := fetcher.Resolve(ctx, "secret://stripe-secret-key")
	if err != nil || got != "sk_test_local" {
		t.Fatalf("expected fallback value, got %q, %v", got, err)
	}
}

func TestResolveDoesNotFallbackOnNotFound(t *testing.T) {
	ctx := context.Background()
	path := writeFallback(t, "secret://stripe-secret-key=sk_test_local\n")

	client := newFakeSecretClient()
	client.errors[stripeLatest] = status.Error(codes.NotFound, "missing")

	fetcher, _ := NewFetcher(ctx, WithSecretManagerClient(client), WithDefaultProject("shop"), WithFallbackFile(path))

	if _, err := fetcher.Resolve(ctx, "secret://stripe-secret-key"); err == nil {
		t.Fatal("expected error for missing secret")
	}
}

func TestNewFetcherWithoutCredentialsUsesFallback(t *testing.T) {
	ctx := context.Background()
	original := newSecretManagerClient
	newSecretManagerClient = func(context.Context, ...option.ClientOption) (*secretmanager.Client, error) {
		return nil, errors.New("no credentials")
	}
	t.Cleanup(func() { newSecretManagerClient = original })

	path := writeFallback(t, "sm://sendgrid-api-key=SG.local\n")
	fetcher, err := NewFetcher(ctx, WithDefaultProject("shop"), WithFallbackFile(path))
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	defer fetcher.Close()

	got, err := fetcher.Resolve(ctx, "secret://sendgrid-api-key")
	if err != nil || got != "SG.local" {
		t.Fatalf("Resolve = %q, %v", got, err)
	}
}

func TestParseReferenceRejectsBadInput(t *testing.T) {
	for _, ref := range []string{"", "https://example.com/x", "secret://"} {
		if _, err := parseReference(ref); err == nil {
			t.Fatalf("expected error for %q", ref)
		}
	}
}

func writeFallback(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write fallback: %v", err)
	}
	return path
}

type fakeSecretClient struct {
	mu      sync.Mutex
	values  map[string]string
	errors  map[string]error
	counter map[string]int
}

func newFakeSecretClient() *fakeSecretClient {
	return &fakeSecretClient{
		values:  make(map[string]string),
		errors:  make(map[string]error),
		counter: make(map[string]int),
	}
}

func (f *fakeSecretClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := req.GetName()
	f.counter[name]++
	if err := f.errors[name]; err != nil {
		return nil, err
	}
	if value, ok := f.values[name]; ok {
		return &secretmanagerpb.AccessSecretVersionResponse{
			Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
		}, nil
	}
	return nil, status.Error(codes.NotFound, "not found")
}

func (f *fakeSecretClient) Close() error { return nil }

func (f *fakeSecretClient) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counter[name]
}
