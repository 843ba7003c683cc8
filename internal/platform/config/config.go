package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultShutdownTimeout     = 15 * time.Second
	defaultSecurityEnvironment = "local"
	defaultOIDCJWKSURL         = "https://www.googleapis.com/oauth2/v3/certs"
	defaultSecurityIssuer      = "https://accounts.google.com"
	defaultOrderEventsTopic    = "order-events"
	defaultCatalogCacheTTL     = 5 * time.Minute
	defaultStripeCurrency      = "jpy"
	defaultPayPayBaseURL       = "https://stg-api.sandbox.paypay.ne.jp"
	defaultPayPayTimeout       = 10 * time.Second
	defaultMailFromName        = "Religionne00"
	defaultMailLocale          = "ja"
	defaultFreeShippingItems   = 2
	defaultDomesticFee         = 500
	defaultIslandFee           = 1000
	defaultIslandPrefectures   = "沖縄県"
	defaultCompletePath        = "/checkout/complete"
	defaultFailedPath          = "/checkout/failed"
	defaultLogLevel            = "info"
	defaultServiceName         = "religionne00-api"
	defaultTraceSampleRatio    = 0.1
	defaultIdempotencyHeader   = "Idempotency-Key"
	defaultIdempotencyTTL      = 24 * time.Hour
	defaultIdempotencyInterval = time.Hour
	defaultIdempotencyBatch    = 200
	defaultIdempotencyBackend  = "memory"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server        ServerConfig
	Firebase      FirebaseConfig
	Firestore     FirestoreConfig
	Storage       StorageConfig
	PubSub        PubSubConfig
	Redis         RedisConfig
	Stripe        StripeConfig
	PayPay        PayPayConfig
	Mail          MailConfig
	Shipping      ShippingConfig
	Storefront    StorefrontConfig
	Security      SecurityConfig
	Observability ObservabilityConfig
	Idempotency   IdempotencyConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StorageConfig lists buckets and the key used to sign upload URLs.
type StorageConfig struct {
	ProductImagesBucket string
	ExportsBucket       string
	SignerKeyFile       string
}

// PubSubConfig controls order event publication.
type PubSubConfig struct {
	ProjectID        string
	OrderEventsTopic string
}

// RedisConfig configures the catalog cache and the optional idempotency backend.
type RedisConfig struct {
	Addr            string
	Password        string
	DB              int
	CatalogCacheTTL time.Duration
}

// StripeConfig holds card gateway credentials.
type StripeConfig struct {
	SecretKey string
	Currency  string
}

// PayPayConfig holds wallet gateway credentials.
type PayPayConfig struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	MerchantID string
	Timeout    time.Duration

	// RedirectURL is the public URL of the PayPay callback endpoint.
	RedirectURL string
}

// MailConfig configures transactional email delivery.
type MailConfig struct {
	SendGridAPIKey  string
	FromAddress     string
	FromName        string
	AdminRecipients []string
	DefaultLocale   string
}

// ShippingConfig defines the shipping fee table.
type ShippingConfig struct {
	FreeShippingThreshold int
	DomesticFee           int64
	IslandFee             int64
	IslandPrefectures     []string
}

// StorefrontConfig points wallet redirects back at the storefront.
type StorefrontConfig struct {
	BaseURL      string
	CompletePath string
	FailedPath   string
}

// SecurityConfig groups server-to-server authentication settings.
type SecurityConfig struct {
	Environment string
	OIDC        OIDCConfig
}

// OIDCConfig controls Google-signed token verification for service callers.
type OIDCConfig struct {
	JWKSURL  string
	Audience string
	Issuers  []string
}

// ObservabilityConfig controls logging and tracing exporters.
type ObservabilityConfig struct {
	LogLevel         string
	LogFile          string
	ServiceName      string
	OTLPEndpoint     string
	TraceSampleRatio float64
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Backend          string
	Header           string
	TTL              time.Duration
	// Collection names the Firestore collection used by the firestore backend.
	Collection       string
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets resolved to empty values.
type MissingSecretsError struct {
	names []string
}

// Error implements the error interface.
func (e *MissingSecretsError) Error() string {
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// Names returns the secret field names.
func (e *MissingSecretsError) Names() []string {
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

// RedactedNames returns short hashes of the secret field names for log output.
func (e *MissingSecretsError) RedactedNames() []string {
	out := make([]string, 0, len(e.names))
	for _, name := range e.names {
		sum := sha256.Sum256([]byte(name))
		out = append(out, hex.EncodeToString(sum[:8]))
	}
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects explicit values that take precedence over the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks secret fields (e.g. "Stripe.SecretKey") as mandatory.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// EnvironmentValues returns the merged key/value view used by Load
// (dotenv < process env < explicit map).
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := defaultLoaderOptions()
	for _, opt := range opts {
		opt(&options)
	}
	k, err := layeredEnv(options)
	if err != nil {
		return nil, err
	}
	values := make(map[string]string, len(k.Keys()))
	for _, key := range k.Keys() {
		values[key] = k.String(key)
	}
	return values, nil
}

func defaultLoaderOptions() loaderOptions {
	return loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", errSecretResolverNotConfigured
		}),
	}
}

// layeredEnv stacks the env sources so later layers win. Keys never contain
// the koanf delimiter, so the tree stays flat.
func layeredEnv(options loaderOptions) (*koanf.Koanf, error) {
	k := koanf.New("::")

	if path := strings.TrimSpace(options.envFile); path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), dotenv.Parser()); err != nil {
				return nil, fmt.Errorf("config: unable to read %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: unable to read %s: %w", path, err)
		}
	}

	if options.useSystemEnv {
		if err := k.Load(env.Provider("", "::", func(s string) string { return s }), nil); err != nil {
			return nil, fmt.Errorf("config: load environment: %w", err)
		}
	}

	if len(options.envMap) > 0 {
		overrides := make(map[string]any, len(options.envMap))
		for key, value := range options.envMap {
			overrides[key] = value
		}
		if err := k.Load(confmap.Provider(overrides, "::"), nil); err != nil {
			return nil, fmt.Errorf("config: load overrides: %w", err)
		}
	}
	return k, nil
}

// Load assembles the application configuration from defaults, a .env file,
// the process environment and Secret Manager references.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := defaultLoaderOptions()
	for _, opt := range opts {
		opt(&options)
	}

	k, err := layeredEnv(options)
	if err != nil {
		return Config{}, err
	}
	lookup := func(key string) (string, bool) {
		if !k.Exists(key) {
			return "", false
		}
		return k.String(key), true
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            stringWithDefault(lookup, "API_SERVER_PORT", stringWithDefault(lookup, "PORT", defaultPort)),
			ReadTimeout:     durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "API_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Storage: StorageConfig{
			ProductImagesBucket: stringWithDefault(lookup, "API_STORAGE_PRODUCT_IMAGES_BUCKET", ""),
			ExportsBucket:       stringWithDefault(lookup, "API_STORAGE_EXPORTS_BUCKET", ""),
			SignerKeyFile:       stringWithDefault(lookup, "API_STORAGE_SIGNER_KEY_FILE", ""),
		},
		PubSub: PubSubConfig{
			ProjectID:        stringWithDefault(lookup, "API_PUBSUB_PROJECT_ID", ""),
			OrderEventsTopic: stringWithDefault(lookup, "API_PUBSUB_ORDER_EVENTS_TOPIC", defaultOrderEventsTopic),
		},
		Redis: RedisConfig{
			Addr:            stringWithDefault(lookup, "API_REDIS_ADDR", ""),
			Password:        stringWithDefault(lookup, "API_REDIS_PASSWORD", ""),
			DB:              intWithDefault(lookup, "API_REDIS_DB", 0),
			CatalogCacheTTL: durationWithDefault(lookup, "API_REDIS_CATALOG_CACHE_TTL", defaultCatalogCacheTTL),
		},
		Stripe: StripeConfig{
			SecretKey: stringWithDefault(lookup, "API_STRIPE_SECRET_KEY", ""),
			Currency:  strings.ToLower(stringWithDefault(lookup, "API_STRIPE_CURRENCY", defaultStripeCurrency)),
		},
		PayPay: PayPayConfig{
			BaseURL:     stringWithDefault(lookup, "API_PAYPAY_BASE_URL", defaultPayPayBaseURL),
			APIKey:      stringWithDefault(lookup, "API_PAYPAY_API_KEY", ""),
			APISecret:   stringWithDefault(lookup, "API_PAYPAY_API_SECRET", ""),
			MerchantID:  stringWithDefault(lookup, "API_PAYPAY_MERCHANT_ID", ""),
			Timeout:     durationWithDefault(lookup, "API_PAYPAY_TIMEOUT", defaultPayPayTimeout),
			RedirectURL: stringWithDefault(lookup, "API_PAYPAY_REDIRECT_URL", ""),
		},
		Mail: MailConfig{
			SendGridAPIKey:  stringWithDefault(lookup, "API_MAIL_SENDGRID_API_KEY", ""),
			FromAddress:     stringWithDefault(lookup, "API_MAIL_FROM_ADDRESS", ""),
			FromName:        stringWithDefault(lookup, "API_MAIL_FROM_NAME", defaultMailFromName),
			AdminRecipients: csvWithDefault(lookup, "API_MAIL_ADMIN_RECIPIENTS"),
			DefaultLocale:   stringWithDefault(lookup, "API_MAIL_DEFAULT_LOCALE", defaultMailLocale),
		},
		Shipping: ShippingConfig{
			FreeShippingThreshold: intWithDefault(lookup, "API_SHIPPING_FREE_THRESHOLD", defaultFreeShippingItems),
			DomesticFee:           int64(intWithDefault(lookup, "API_SHIPPING_DOMESTIC_FEE", defaultDomesticFee)),
			IslandFee:             int64(intWithDefault(lookup, "API_SHIPPING_ISLAND_FEE", defaultIslandFee)),
			IslandPrefectures:     csvWithDefault(lookup, "API_SHIPPING_ISLAND_PREFECTURES"),
		},
		Storefront: StorefrontConfig{
			BaseURL:      strings.TrimRight(stringWithDefault(lookup, "API_STOREFRONT_BASE_URL", ""), "/"),
			CompletePath: stringWithDefault(lookup, "API_STOREFRONT_COMPLETE_PATH", defaultCompletePath),
			FailedPath:   stringWithDefault(lookup, "API_STOREFRONT_FAILED_PATH", defaultFailedPath),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(stringWithDefault(lookup, "API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
			OIDC: OIDCConfig{
				JWKSURL:  stringWithDefault(lookup, "API_SECURITY_OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience: stringWithDefault(lookup, "API_SECURITY_OIDC_AUDIENCE", ""),
				Issuers:  csvWithDefault(lookup, "API_SECURITY_OIDC_ISSUERS"),
			},
		},
		Observability: ObservabilityConfig{
			LogLevel:         strings.ToLower(stringWithDefault(lookup, "API_LOG_LEVEL", defaultLogLevel)),
			LogFile:          stringWithDefault(lookup, "API_LOG_FILE", ""),
			ServiceName:      stringWithDefault(lookup, "API_SERVICE_NAME", defaultServiceName),
			OTLPEndpoint:     stringWithDefault(lookup, "API_OTLP_ENDPOINT", ""),
			TraceSampleRatio: floatWithDefault(lookup, "API_TRACE_SAMPLE_RATIO", defaultTraceSampleRatio),
		},
		Idempotency: IdempotencyConfig{
			Backend:          strings.ToLower(stringWithDefault(lookup, "API_IDEMPOTENCY_BACKEND", defaultIdempotencyBackend)),
			Header:           stringWithDefault(lookup, "API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              durationWithDefault(lookup, "API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			Collection:       stringWithDefault(lookup, "API_IDEMPOTENCY_COLLECTION", ""),
			CleanupInterval:  durationWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: intWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatch),
		},
	}

	// Firestore and Pub/Sub default to the Firebase project.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firebase.ProjectID
	}
	if len(cfg.Security.OIDC.Issuers) == 0 {
		cfg.Security.OIDC.Issuers = []string{defaultSecurityIssuer}
	}
	if len(cfg.Shipping.IslandPrefectures) == 0 {
		cfg.Shipping.IslandPrefectures = strings.Split(defaultIslandPrefectures, ",")
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Stripe.SecretKey", &cfg.Stripe.SecretKey},
		{"PayPay.APIKey", &cfg.PayPay.APIKey},
		{"PayPay.APISecret", &cfg.PayPay.APISecret},
		{"Mail.SendGridAPIKey", &cfg.Mail.SendGridAPIKey},
		{"Redis.Password", &cfg.Redis.Password},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	var missing []string
	for _, name := range options.requiredSecrets {
		name = strings.TrimSpace(name)
		if name != "" && resolved[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return Config{}, &MissingSecretsError{names: missing}
	}

	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if !isSecretReference(value) {
		return value, nil
	}
	ref := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Firebase.ProjectID == "" {
		missing = append(missing, "Firebase.ProjectID")
	}
	if cfg.Firestore.ProjectID == "" {
		missing = append(missing, "Firestore.ProjectID")
	}
	if cfg.Shipping.FreeShippingThreshold < 0 {
		missing = append(missing, "Shipping.FreeShippingThreshold")
	}
	if cfg.Shipping.DomesticFee < 0 {
		missing = append(missing, "Shipping.DomesticFee")
	}
	if cfg.Shipping.IslandFee < 0 {
		missing = append(missing, "Shipping.IslandFee")
	}
	if cfg.Observability.TraceSampleRatio < 0 || cfg.Observability.TraceSampleRatio > 1 {
		missing = append(missing, "Observability.TraceSampleRatio")
	}
	switch cfg.Idempotency.Backend {
	case "memory", "firestore":
	case "redis":
		if cfg.Redis.Addr == "" {
			missing = append(missing, "Redis.Addr")
		}
	default:
		missing = append(missing, "Idempotency.Backend")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		missing = append(missing, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		missing = append(missing, "Idempotency.TTL")
	}
	if cfg.Idempotency.CleanupInterval <= 0 {
		missing = append(missing, "Idempotency.CleanupInterval")
	}
	if cfg.Idempotency.CleanupBatchSize <= 0 {
		missing = append(missing, "Idempotency.CleanupBatchSize")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func floatWithDefault(lookup func(string) (string, bool), key string, fallback float64) float64 {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
