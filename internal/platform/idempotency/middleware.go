package idempotency

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/3ureka-official/religionne00-sub001/internal/platform/auth"
	"github.com/3ureka-official/religionne00-sub001/internal/platform/httpx"
	"github.com/3ureka-official/religionne00-sub001/internal/platform/requestctx"
)

const (
	defaultHeaderName = "Idempotency-Key"
	replayHeaderName  = "X-Idempotent-Replay"
	maxKeyLength      = 255
	maxBodyBytes      = 1 << 20
)

type options struct {
	header   string
	ttl      time.Duration
	methods  []string
	now      func() time.Time
	required bool
}

// MiddlewareOption customises Middleware.
type MiddlewareOption func(*options)

// WithHeader overrides the request header carrying the key.
func WithHeader(name string) MiddlewareOption {
	return func(o *options) {
		if name = strings.TrimSpace(name); name != "" {
			o.header = name
		}
	}
}

// WithTTL sets how long completed responses stay replayable.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithMethods restricts the guarded HTTP methods. POST, PUT, PATCH and
// DELETE are guarded by default.
func WithMethods(methods ...string) MiddlewareOption {
	return func(o *options) {
		if len(methods) > 0 {
			o.methods = methods
		}
	}
}

// WithRequiredKey rejects guarded requests without a key. Otherwise such
// requests reach the handler unchanged.
func WithRequiredKey() MiddlewareOption {
	return func(o *options) { o.required = true }
}

func WithClock(now func() time.Time) MiddlewareOption {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// Middleware replays the stored response when a request repeats an
// idempotency key with the same method, path, caller and body. Keys are
// scoped per caller, so two admins may use the same key independently.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	o := options{
		header:  defaultHeaderName,
		ttl:     DefaultTTL,
		methods: []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	guarded := make(map[string]bool, len(o.methods))
	for _, method := range o.methods {
		guarded[strings.ToUpper(strings.TrimSpace(method))] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !guarded[r.Method] {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			key := strings.TrimSpace(r.Header.Get(o.header))
			switch {
			case key == "" && o.required:
				fail(ctx, w, http.StatusBadRequest, "idempotency_key_required", "missing "+o.header+" header")
				return
			case key == "":
				next.ServeHTTP(w, r)
				return
			case len(key) > maxKeyLength:
				fail(ctx, w, http.StatusBadRequest, "idempotency_key_invalid", "idempotency key is too long")
				return
			}

			body, err := bufferBody(r)
			if err != nil {
				fail(ctx, w, http.StatusBadRequest, "invalid_request", "unable to read request body")
				return
			}

			caller := requester(ctx)
			scoped := key + "|" + caller
			fingerprint := fingerprintRequest(r, body, caller)
			logger := requestctx.Logger(ctx).With(zap.String("idempotency_key", key))

			reservation, err := store.Reserve(ctx, scoped, fingerprint, o.now().UTC(), o.ttl)
			if err != nil {
				if errors.Is(err, ErrFingerprintMismatch) {
					fail(ctx, w, http.StatusConflict, "idempotency_key_conflict", "idempotency key already used for a different request")
					return
				}
				logger.Error("idempotency: reserve failed", zap.Error(err))
				fail(ctx, w, http.StatusServiceUnavailable, "service_unavailable", "unable to process idempotency key")
				return
			}
			switch reservation.State {
			case ReservationStateCompleted:
				replay(w, reservation.Record)
				return
			case ReservationStatePending:
				fail(ctx, w, http.StatusConflict, "idempotency_in_progress", "another request is processing this idempotency key")
				return
			}

			rec := &bufferedResponse{header: make(http.Header)}
			next.ServeHTTP(rec, r)

			if rec.status() >= http.StatusInternalServerError {
				// 5xx responses are never stored so the client can retry with the same key.
				if err := store.Release(ctx, scoped, fingerprint); err != nil {
					logger.Warn("idempotency: release after server error failed", zap.Error(err))
				}
				rec.flush(w)
				return
			}

			resp := Response{Status: rec.status(), Headers: rec.header.Clone(), Body: rec.body.Bytes()}
			if err := store.SaveResponse(ctx, scoped, fingerprint, resp, o.now().UTC(), o.ttl); err != nil {
				logger.Error("idempotency: save response failed", zap.Error(err))
				if err := store.Release(ctx, scoped, fingerprint); err != nil {
					logger.Warn("idempotency: release after save failure failed", zap.Error(err))
				}
				fail(ctx, w, http.StatusServiceUnavailable, "service_unavailable", "unable to persist idempotency state")
				return
			}
			rec.flush(w)
		})
	}
}

func fail(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	httpx.WriteError(ctx, w, httpx.NewError(code, message, status))
}

func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	_ = r.Body.Close()
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func fingerprintRequest(r *http.Request, body []byte, caller string) string {
	parts := []string{r.Method, r.URL.Path, r.URL.RawQuery, caller, digest(body)}
	return digest([]byte(strings.Join(parts, "|")))
}

func requester(ctx context.Context) string {
	if who := auth.Actor(ctx); who != "" {
		return who
	}
	return "anonymous"
}

func replay(w http.ResponseWriter, record Record) {
	for key, values := range record.ResponseHeaders {
		w.Header()[key] = append([]string(nil), values...)
	}
	w.Header().Set(replayHeaderName, "true")
	status := record.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(record.ResponseBody)
}

// bufferedResponse holds the handler's response until the store has
// accepted it.
type bufferedResponse struct {
	header http.Header
	code   int
	body   bytes.Buffer
}

func (b *bufferedResponse) Header() http.Header { return b.header }

func (b *bufferedResponse) WriteHeader(status int) {
	if b.code == 0 {
		b.code = status
	}
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	if b.code == 0 {
		b.code = http.StatusOK
	}
	return b.body.Write(p)
}

func (b *bufferedResponse) status() int {
	if b.code == 0 {
		return http.StatusOK
	}
	return b.code
}

func (b *bufferedResponse) flush(w http.ResponseWriter) {
	for key, values := range b.header {
		w.Header()[key] = values
	}
	w.WriteHeader(b.status())
	_, _ = w.Write(b.body.Bytes())
}
