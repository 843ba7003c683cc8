package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/3ureka-official/religionne00-sub001/internal/platform/auth"
	"github.com/3ureka-official/religionne00-sub001/internal/platform/requestctx"
)

func TestEventLoggerLevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := EventLogger(zap.New(core))

	log(context.Background(), "orders.created", map[string]any{"orderId": "o1", "total": int64(3500)})
	log(context.Background(), "notifications.send.failed", map[string]any{"error": errors.New("smtp down")})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel || entries[0].ContextMap()["orderId"] != "o1" {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Level != zapcore.WarnLevel || entries[1].ContextMap()["error"] != "smtp down" {
		t.Fatalf("unexpected failure entry %+v %v", entries[1], entries[1].ContextMap())
	}
}

func TestEventLoggerPrefersRequestLogger(t *testing.T) {
	fallbackCore, fallbackLogs := observer.New(zapcore.InfoLevel)
	requestCore, requestLogs := observer.New(zapcore.InfoLevel)
	log := EventLogger(zap.New(fallbackCore))

	ctx := requestctx.WithLogger(context.Background(), zap.New(requestCore))
	log(ctx, "catalog.product.created", nil)

	if fallbackLogs.Len() != 0 || requestLogs.Len() != 1 {
		t.Fatalf("expected request logger to be used, fallback=%d request=%d", fallbackLogs.Len(), requestLogs.Len())
	}
}

func TestMetricsMiddlewareUsesRoutePattern(t *testing.T) {
	metrics := NewMetrics()
	router := chi.NewRouter()
	router.Use(metrics.Middleware)
	router.Get("/api/v1/products/{productID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	router.Handle("/metrics", metrics.Handler())

	for _, id := range []string{"a", "b"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/products/"+id, nil))
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rr.Body)
	want := `http_requests_total{method="GET",route="/api/v1/products/{productID}",status="404"} 2`
	if !strings.Contains(string(body), want) {
		t.Fatalf("expected %q in metrics output:\n%s", want, body)
	}
}

func TestParseCloudTraceContext(t *testing.T) {
	info, spanCtx, ok := parseCloudTraceContext("105445aa7843bc8bf206b12000100000/1;o=1")
	if !ok {
		t.Fatalf("expected header to parse")
	}
	if info.TraceID != "105445aa7843bc8bf206b12000100000" || !info.Sampled || !spanCtx.IsRemote() {
		t.Fatalf("unexpected trace info %+v", info)
	}
	if _, _, ok := parseCloudTraceContext("garbage"); ok {
		t.Fatalf("expected invalid header to be rejected")
	}
}

func TestTraceMiddlewareFollowsTraceparent(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	var got requestctx.TraceInfo
	handler := TraceMiddleware("shop")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = requestctx.Trace(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got.TraceID != "4bf92f3577b34da6a3ce929d0e0e4736" || got.ProjectID != "shop" {
		t.Fatalf("expected trace id from traceparent, got %+v", got)
	}
}

func TestRequestLoggerRecordsRouteStatusAndActor(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	router := chi.NewRouter()
	router.Use(InjectLoggerMiddleware(zap.New(core)), RequestLoggerMiddleware())
	router.With(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), &auth.Identity{UID: "uid-admin"})))
		})
	}, ActorMiddleware).Post("/api/v1/admin/orders/{orderID}/refund", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{}`))
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/orders/ord_1/refund", nil)
	req.RemoteAddr = "203.0.113.7:5123"
	router.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one access log line, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level for 409, got %s", entries[0].Level)
	}
	if fields["route"] != "/api/v1/admin/orders/{orderID}/refund" || fields["status"] != int64(409) {
		t.Fatalf("unexpected route/status fields %v", fields)
	}
	if fields["actor"] != "admin:uid-admin" || fields["remote_ip"] != "203.0.113.7" || fields["bytes"] != int64(2) {
		t.Fatalf("unexpected request fields %v", fields)
	}
}

func TestRecoveryMiddlewareWritesErrorEnvelope(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	handler := RecoveryMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/products", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "internal_server_error") {
		t.Fatalf("expected error envelope, got %s", rr.Body.String())
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Fatalf("expected panic to be logged with the fallback logger")
	}
}
