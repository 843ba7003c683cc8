package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/3ureka-official/religionne00-sub001/internal/di"
	"github.com/3ureka-official/religionne00-sub001/internal/handlers"
	"github.com/3ureka-official/religionne00-sub001/internal/notifications"
	"github.com/3ureka-official/religionne00-sub001/internal/payments"
	"github.com/3ureka-official/religionne00-sub001/internal/platform/auth"
	"github.com/3ureka-official/religionne00-sub001/internal/platform/cache"
	"github.com/3ureka-official/religionne00-sub001/internal/platform/config"
	pfirestore "github.com/3ureka-official/religionne00-sub001/internal/platform/firestore"
	"github.com/3ureka-official/religionne00-sub001/internal/platform/idempotency"
	"github.com/3ureka-official/religionne00-sub001/internal/platform/jobs"
	"github.com/3ureka-official/religionne00-sub001/internal/platform/observability"
	"github.com/3ureka-official/religionne00-sub001/internal/platform/secrets"
	platformstorage "github.com/3ureka-official/religionne00-sub001/internal/platform/storage"
	"github.com/3ureka-official/religionne00-sub001/internal/repositories"
	firestoreRepo "github.com/3ureka-official/religionne00-sub001/internal/repositories/firestore"
	"github.com/3ureka-official/religionne00-sub001/internal/services"
)

// Set through -ldflags at build time.
var (
	version   = "dev"
	commitSHA = "unknown"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(observability.LoggerConfig{
		Level:   envValues["API_LOG_LEVEL"],
		File:    envValues["API_LOG_FILE"],
		Service: envValues["API_SERVICE_NAME"],
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		ServiceName:  cfg.Observability.ServiceName,
		Version:      buildInfo.Version,
		Environment:  buildInfo.Environment,
		OTLPEndpoint: cfg.Observability.OTLPEndpoint,
		SampleRatio:  cfg.Observability.TraceSampleRatio,
	})
	if err != nil {
		logger.Fatal("failed to initialise tracing", zap.Error(err))
	}
	metrics := observability.NewMetrics()

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore,
		pfirestore.WithDialTimeout(10*time.Second),
		pfirestore.WithClientOptions(googleClientOptions(cfg)...),
	)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	orderRepo, err := firestoreRepo.NewOrderRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	productRepo, err := firestoreRepo.NewProductRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise product repository", zap.Error(err))
	}

	infra := di.Infrastructure{
		Orders:   orderRepo,
		Products: productRepo,
		Build:    buildInfo,
		Clock:    time.Now,
		Logger:   logger,
	}

	var rdb *redis.Client
	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}()
		catalogCache, err := cache.NewRedis(rdb, "catalog", cfg.Redis.CatalogCacheTTL)
		if err != nil {
			logger.Fatal("failed to initialise catalog cache", zap.Error(err))
		}
		infra.CatalogCache = catalogCache
	} else {
		logger.Info("redis not configured; catalog reads are uncached")
	}

	storageClient, err := cloudstorage.NewClient(ctx, googleClientOptions(cfg)...)
	if err != nil {
		logger.Fatal("failed to initialise storage client", zap.Error(err))
	}
	defer func() {
		if err := storageClient.Close(); err != nil {
			logger.Warn("storage close error", zap.Error(err))
		}
	}()
	reportWriter, err := platformstorage.NewObjectWriter(storageClient)
	if err != nil {
		logger.Fatal("failed to initialise report writer", zap.Error(err))
	}
	infra.ReportWriter = reportWriter

	if keyFile := strings.TrimSpace(cfg.Storage.SignerKeyFile); keyFile != "" {
		signer, err := platformstorage.LoadKeySigner(keyFile)
		if err != nil {
			logger.Fatal("failed to load storage signer key", zap.Error(err))
		}
		signedURLClient, err := platformstorage.NewClient(signer)
		if err != nil {
			logger.Fatal("failed to initialise signed url client", zap.Error(err))
		}
		infra.ImageSigner = signedURLClient
	} else {
		logger.Warn("storage signer key not configured; product image uploads are disabled")
	}

	paymentsLogger := observability.EventLogger(logger.Named("payments"))
	if key := strings.TrimSpace(cfg.Stripe.SecretKey); key != "" {
		stripeGateway, err := payments.NewStripeGateway(payments.StripeGatewayConfig{
			APIKey:   key,
			Currency: cfg.Stripe.Currency,
			Logger:   paymentsLogger,
		})
		if err != nil {
			logger.Fatal("failed to initialise stripe gateway", zap.Error(err))
		}
		infra.Card = stripeGateway
	} else {
		logger.Warn("stripe secret key not configured; card payments are disabled")
	}
	if strings.TrimSpace(cfg.PayPay.APIKey) != "" {
		payPayGateway, err := payments.NewPayPayGateway(payments.PayPayGatewayConfig{
			BaseURL:    cfg.PayPay.BaseURL,
			APIKey:     cfg.PayPay.APIKey,
			APISecret:  cfg.PayPay.APISecret,
			MerchantID: cfg.PayPay.MerchantID,
			Timeout:    cfg.PayPay.Timeout,
			Logger:     paymentsLogger,
		})
		if err != nil {
			logger.Fatal("failed to initialise paypay gateway", zap.Error(err))
		}
		infra.Wallet = payPayGateway
	} else {
		logger.Warn("paypay credentials not configured; wallet payments are disabled")
	}

	renderer, err := notifications.NewRenderer(
		notifications.WithDefaultLocale(cfg.Mail.DefaultLocale),
		notifications.WithStoreName(cfg.Mail.FromName),
	)
	if err != nil {
		logger.Fatal("failed to initialise mail renderer", zap.Error(err))
	}
	infra.Renderer = renderer
	mailer, err := newMailer(cfg, logger.Named("mail"))
	if err != nil {
		logger.Fatal("failed to initialise mailer", zap.Error(err))
	}
	infra.Mailer = mailer

	var pubsubClient *pubsub.Client
	if projectID := pubsubProjectID(cfg); projectID != "" && strings.TrimSpace(cfg.PubSub.OrderEventsTopic) != "" {
		pubsubClient, err = pubsub.NewClient(ctx, projectID, googleClientOptions(cfg)...)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		publisher, err := jobs.NewPubSubOrderEventPublisher(pubsubClient.Topic(cfg.PubSub.OrderEventsTopic))
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
		defer publisher.Stop()
		infra.Events = publisher
	}

	healthRepo, err := newHealthRepository(firestoreClient, rdb, fetcher)
	if err != nil {
		logger.Warn("health: dependency checks unavailable", zap.Error(err))
	} else {
		infra.Health = healthRepo
	}

	container, err := di.NewContainer(ctx, cfg, infra)
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}
	defer func() {
		if err := container.Close(context.Background()); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	idempotencyStore := newIdempotencyStore(cfg, firestoreClient, rdb, logger.Named("idempotency"))
	idempotencyOpts := []idempotency.MiddlewareOption{
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
	}
	checkoutGuard := idempotency.Middleware(idempotencyStore, idempotencyOpts...)
	refundGuard := idempotency.Middleware(idempotencyStore, append(idempotencyOpts, idempotency.WithRequiredKey())...)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	var cleanupTicker *time.Ticker
	if cfg.Idempotency.CleanupInterval > 0 {
		cleanupTicker = time.NewTicker(cfg.Idempotency.CleanupInterval)
		cleanupWG.Add(1)
		go func() {
			defer cleanupWG.Done()
			cleanupLogger := logger.Named("idempotency")
			for {
				select {
				case <-cleanupTicker.C:
					runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
					removed, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
					cancel()
					if err != nil {
						cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
						continue
					}
					if removed > 0 {
						cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
					}
				case <-cleanupCtx.Done():
					return
				}
			}
		}()
	}

	authLogger := logger.Named("auth")
	firebaseOpts := []auth.FirebaseOption{auth.WithFirebaseTimeout(5 * time.Second)}
	if buildInfo.Environment != "local" {
		firebaseOpts = append(firebaseOpts, auth.WithRevocationCheck())
	}
	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase, firebaseOpts...)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	stateNotifier := auth.NewStateNotifier()
	unsubscribe := stateNotifier.Subscribe(func(change auth.StateChange) {
		authLogger.Info("admin auth state changed",
			zap.String("kind", string(change.Kind)),
			zap.String("uid", change.UID),
			zap.String("reason", change.Reason),
		)
	})
	defer unsubscribe()
	authenticator := auth.NewAuthenticator(firebaseVerifier, auth.WithStateNotifier(stateNotifier))
	oidcValidator := buildOIDCValidator(authLogger, cfg, metrics)

	svc := container.Services
	catalogHandlers := handlers.NewCatalogHandlers(svc.Catalog)
	checkoutHandlers := handlers.NewCheckoutHandlers(svc.Orders, storefrontPages(cfg),
		handlers.WithOrderCreationGuard(checkoutGuard),
	)
	adminOrderHandlers := handlers.NewAdminOrderHandlers(svc.Orders, handlers.WithRefundGuard(refundGuard))
	analyticsHandlers := handlers.NewAnalyticsHandlers(svc.Sales)
	emailHandlers := handlers.NewEmailHandlers(svc.Orders, svc.Notifications)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(svc.System),
	)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
		metrics.Middleware,
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithMetricsHandler(metrics.Handler()),
		handlers.WithPublicRoutes(catalogHandlers.PublicRoutes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithAdminRoutes(catalogHandlers.AdminRoutes, adminOrderHandlers.Routes, analyticsHandlers.Routes),
		handlers.WithAdminMiddlewares(authenticator.RequireAdmin(), observability.ActorMiddleware),
		handlers.WithEmailRoutes(emailHandlers.Routes),
		handlers.WithEmailMiddlewares(
			auth.RequireAdminOrService(authenticator, oidcValidator, strings.TrimSpace(cfg.Security.OIDC.Audience), cfg.Security.OIDC.Issuers),
			observability.ActorMiddleware,
		),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("religionne00 api listening",
			zap.String("version", buildInfo.Version),
			zap.String("environment", buildInfo.Environment),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	if cleanupTicker != nil {
		cleanupTicker.Stop()
	}
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown error", zap.Error(err))
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	v := strings.TrimSpace(env["API_BUILD_VERSION"])
	if v == "" {
		v = version
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = commitSHA
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     v,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func newHealthRepository(client *firestore.Client, rdb *redis.Client, fetcher *secrets.Fetcher) (repositories.HealthRepository, error) {
	checks := make([]repositories.DependencyCheck, 0, 3)
	if client != nil {
		c := client
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				iter := c.Collections(ctx)
				_, err := iter.Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		})
	}
	if rdb != nil {
		r := rdb
		checks = append(checks, repositories.DependencyCheck{
			Name:    "redis",
			Timeout: 500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				return r.Ping(ctx).Err()
			},
		})
	}
	if fetcher != nil {
		const secretHealthReference = "secret://system/healthz"
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil {
					return nil
				}
				if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
					return nil
				}
				return err
			},
		})
	}
	if len(checks) == 0 {
		return nil, errors.New("health: no dependency checks configured")
	}
	return repositories.NewDependencyHealthRepository(checks)
}

func newIdempotencyStore(cfg config.Config, client *firestore.Client, rdb *redis.Client, logger *zap.Logger) idempotency.Store {
	switch strings.ToLower(strings.TrimSpace(cfg.Idempotency.Backend)) {
	case "firestore":
		if client != nil {
			return idempotency.NewFirestoreStore(client,
				idempotency.WithCollection(cfg.Idempotency.Collection),
				idempotency.WithMaxAttempts(5),
			)
		}
		logger.Warn("idempotency: firestore backend requested without client; using memory store")
	case "redis":
		if rdb != nil {
			return idempotency.NewRedisStore(rdb)
		}
		logger.Warn("idempotency: redis backend requested without API_REDIS_ADDR; using memory store")
	}
	return idempotency.NewMemoryStore()
}

func newMailer(cfg config.Config, logger *zap.Logger) (notifications.Mailer, error) {
	if strings.TrimSpace(cfg.Mail.SendGridAPIKey) == "" {
		logger.Warn("sendgrid api key not configured; mail will be logged instead of sent")
		return notifications.NewLogMailer(observability.EventLogger(logger)), nil
	}
	return notifications.NewSendGridMailer(notifications.SendGridConfig{
		APIKey:   cfg.Mail.SendGridAPIKey,
		From:     cfg.Mail.FromAddress,
		FromName: cfg.Mail.FromName,
	})
}

func buildOIDCValidator(logger *zap.Logger, cfg config.Config, recorder auth.MetricsRecorder) *auth.OIDCValidator {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if strings.TrimSpace(cfg.Security.OIDC.Audience) == "" {
		logger.Warn("auth: OIDC audience not configured; email triggers accept admin tokens only")
	}
	if len(cfg.Security.OIDC.Issuers) == 0 {
		logger.Warn("auth: OIDC issuers not configured; any Google-signed issuer is accepted")
	}

	jwks := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, auth.WithJWKSLogger(logger))
	return auth.NewOIDCValidator(jwks, auth.WithOIDCLogger(logger), auth.WithOIDCMetrics(recorder))
}

func storefrontPages(cfg config.Config) handlers.StorefrontPages {
	base := strings.TrimRight(strings.TrimSpace(cfg.Storefront.BaseURL), "/")
	return handlers.StorefrontPages{
		CompleteURL: base + cfg.Storefront.CompletePath,
		FailedURL:   base + cfg.Storefront.FailedPath,
	}
}

func googleClientOptions(cfg config.Config) []option.ClientOption {
	if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" {
		return []option.ClientOption{option.WithCredentialsFile(file)}
	}
	return nil
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func pubsubProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.PubSub.ProjectID); id != "" {
		return id
	}
	return traceProjectID(cfg)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		return strings.TrimSpace(env[key])
	}

	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
		secrets.WithMeter(otel.Meter("religionne00-api/secrets")),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the credentials that must resolve before the
// server starts. Local and test environments run with gateways disabled.
func requiredSecretNames(env map[string]string) []string {
	environment := strings.ToLower(strings.TrimSpace(env["API_SECURITY_ENVIRONMENT"]))
	switch environment {
	case "", "local", "test", "dev":
		return nil
	}

	required := []string{
		"Stripe.SecretKey",
		"PayPay.APIKey",
		"PayPay.APISecret",
		"Mail.SendGridAPIKey",
	}
	if strings.TrimSpace(env["API_REDIS_PASSWORD"]) != "" {
		required = append(required, "Redis.Password")
	}
	return uniqueStrings(required)
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	sort.Strings(out)
	return out
}
