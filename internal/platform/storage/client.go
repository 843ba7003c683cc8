package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

const (
	defaultUploadExpiry = 15 * time.Minute
	maxUploadExpiry     = time.Hour
	defaultMaxImageSize = 10 << 20
)

var (
	errNoSigner          = errors.New("storage: signer is required")
	errInvalidBucket     = errors.New("storage: bucket name is required")
	errInvalidObject     = errors.New("storage: object name is required")
	errContentTypeDenied = errors.New("storage: content type not allowed")
	errExpiryTooLong     = errors.New("storage: expiry exceeds permitted maximum")
)

// ErrContentTypeNotAllowed is returned when an upload's content type is outside the allow list.
var ErrContentTypeNotAllowed = errContentTypeDenied

// DefaultImageContentTypes lists the image formats accepted for product photos.
var DefaultImageContentTypes = []string{"image/jpeg", "image/png", "image/webp", "image/gif"}

// Client generates signed URLs backed by a Signer.
type Client struct {
	signer Signer
	scheme storage.SigningScheme
	now    func() time.Time
}

// ClientOption customises client behaviour.
type ClientOption func(*Client)

// WithSigningScheme overrides the signing scheme (defaults to V4).
func WithSigningScheme(scheme storage.SigningScheme) ClientOption {
	return func(c *Client) {
		if scheme != 0 {
			c.scheme = scheme
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) ClientOption {
	return func(c *Client) {
		if clock != nil {
			c.now = clock
		}
	}
}

// NewClient constructs a new storage signed URL client.
func NewClient(signer Signer, opts ...ClientOption) (*Client, error) {
	if signer == nil || strings.TrimSpace(signer.Email()) == "" {
		return nil, errNoSigner
	}

	client := &Client{
		signer: signer,
		scheme: storage.SigningSchemeV4,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// UploadOptions control a single PUT upload.
type UploadOptions struct {
	ContentType         string
	AllowedContentTypes []string
	MaxSize             int64
	ExpiresIn           time.Duration
}

// SignedURLResult describes the generated signed URL details.
type SignedURLResult struct {
	URL       string
	Method    string
	ExpiresAt time.Time
	Headers   map[string]string
}

// UploadURL signs a PUT URL for bucket/object. The uploader must send the
// returned headers verbatim.
func (c *Client) UploadURL(ctx context.Context, bucket, object string, opts UploadOptions) (SignedURLResult, error) {
	if c == nil || c.signer == nil {
		return SignedURLResult{}, errNoSigner
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return SignedURLResult{}, errInvalidBucket
	}
	object = strings.TrimLeft(strings.TrimSpace(object), "/")
	if object == "" {
		return SignedURLResult{}, errInvalidObject
	}

	contentType := strings.ToLower(strings.TrimSpace(opts.ContentType))
	allowed := opts.AllowedContentTypes
	if len(allowed) == 0 {
		allowed = DefaultImageContentTypes
	}
	if contentType == "" || !contentTypeAllowed(contentType, allowed) {
		return SignedURLResult{}, errContentTypeDenied
	}

	expiry := opts.ExpiresIn
	if expiry <= 0 {
		expiry = defaultUploadExpiry
	}
	if expiry > maxUploadExpiry {
		return SignedURLResult{}, errExpiryTooLong
	}
	maxSize := opts.MaxSize
	if maxSize <= 0 {
		maxSize = defaultMaxImageSize
	}
	sizeRange := fmt.Sprintf("0,%d", maxSize)

	expiresAt := c.now().Add(expiry)
	signed, err := storage.SignedURL(bucket, object, &storage.SignedURLOptions{
		GoogleAccessID: c.signer.Email(),
		Scheme:         c.scheme,
		Method:         httpMethodPut,
		ContentType:    contentType,
		Headers:        []string{"x-goog-content-length-range:" + sizeRange},
		Expires:        expiresAt,
		SignBytes: func(payload []byte) ([]byte, error) {
			return c.signer.SignBytes(ctx, payload)
		},
	})
	if err != nil {
		return SignedURLResult{}, fmt.Errorf("storage: sign upload url: %w", err)
	}

	return SignedURLResult{
		URL:       signed,
		Method:    httpMethodPut,
		ExpiresAt: expiresAt,
		Headers: map[string]string{
			"Content-Type":                contentType,
			"x-goog-content-length-range": sizeRange,
		},
	}, nil
}

const httpMethodPut = "PUT"

func contentTypeAllowed(contentType string, allowed []string) bool {
	for _, candidate := range allowed {
		candidate = strings.ToLower(strings.TrimSpace(candidate))
		switch {
		case candidate == "":
			continue
		case candidate == "*":
			return true
		case strings.HasSuffix(candidate, "/*"):
			if strings.HasPrefix(contentType, strings.TrimSuffix(candidate, "*")) {
				return true
			}
		case contentType == candidate:
			return true
		}
	}
	return false
}
