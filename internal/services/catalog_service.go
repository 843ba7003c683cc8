package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/3ureka-official/religionne00-sub001/internal/domain"
	"github.com/3ureka-official/religionne00-sub001/internal/platform/storage"
	"github.com/3ureka-official/religionne00-sub001/internal/platform/textutil"
	"github.com/3ureka-official/religionne00-sub001/internal/repositories"
)

const (
	cacheKeyCategories = "categories"
	maxProductImages   = 10
)

// CatalogCache stores public catalog reads. Invalidate drops every entry.
type CatalogCache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Invalidate(ctx context.Context) error
}

// ImageUploadSigner issues signed PUT URLs.
type ImageUploadSigner interface {
	UploadURL(ctx context.Context, bucket, object string, opts storage.UploadOptions) (storage.SignedURLResult, error)
}

// CatalogServiceDeps bundles constructor inputs for the catalog service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Cache       CatalogCache
	Images      ImageUploadSigner
	ImageBucket string
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	repo        repositories.ProductRepository
	cache       CatalogCache
	images      ImageUploadSigner
	imageBucket string
	policy      *bluemonday.Policy
	clock       func() time.Time
	newID       func() string
	logger      func(context.Context, string, map[string]any)
}

// NewCatalogService constructs the catalog service with the supplied dependencies.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &catalogService{
		repo:        deps.Products,
		cache:       deps.Cache,
		images:      deps.Images,
		imageBucket: strings.TrimSpace(deps.ImageBucket),
		policy:      bluemonday.UGCPolicy(),
		clock:       func() time.Time { return clock().UTC() },
		newID:       newID,
		logger:      logger,
	}, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	product, err := s.normalizeProduct(cmd)
	if err != nil {
		return Product{}, err
	}
	if product.ID == "" {
		product.ID = s.newID()
	}
	now := s.clock()
	product.CreatedAt = now
	product.UpdatedAt = now

	if err := s.repo.Insert(ctx, product); err != nil {
		return Product{}, mapRepositoryError(err)
	}
	s.invalidate(ctx, "create", product.ID)
	s.logger(ctx, "catalog.product.created", map[string]any{"productId": product.ID})
	return product, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	if strings.TrimSpace(cmd.ID) == "" {
		return Product{}, &ValidationError{Fields: map[string]string{"id": "is required"}}
	}
	product, err := s.normalizeProduct(cmd)
	if err != nil {
		return Product{}, err
	}
	existing, err := s.repo.FindByID(ctx, product.ID)
	if err != nil {
		return Product{}, mapRepositoryError(err)
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = s.clock()

	if err := s.repo.Update(ctx, product); err != nil {
		return Product{}, mapRepositoryError(err)
	}
	s.invalidate(ctx, "update", product.ID)
	s.logger(ctx, "catalog.product.updated", map[string]any{"productId": product.ID})
	return product, nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, productID string) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return &ValidationError{Fields: map[string]string{"id": "is required"}}
	}
	if _, err := s.repo.FindByID(ctx, productID); err != nil {
		return mapRepositoryError(err)
	}
	if err := s.repo.Delete(ctx, productID); err != nil {
		return mapRepositoryError(err)
	}
	s.invalidate(ctx, "delete", productID)
	s.logger(ctx, "catalog.product.deleted", map[string]any{"productId": productID})
	return nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string, publishedOnly bool) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, &ValidationError{Fields: map[string]string{"id": "is required"}}
	}

	key := "product:" + productID
	if publishedOnly {
		var cached Product
		if s.cacheGet(ctx, key, &cached) {
			return cached, nil
		}
	}

	product, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		return Product{}, mapRepositoryError(err)
	}
	if publishedOnly {
		if !product.Published {
			return Product{}, fmt.Errorf("%w: product %s is not published", ErrNotFound, productID)
		}
		s.cacheSet(ctx, key, product)
	}
	return product, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter ProductListFilter) ([]Product, error) {
	filter.Category = strings.TrimSpace(filter.Category)

	key := "products:" + url.QueryEscape(textutil.Key(filter.Category)) + ":" + strconv.FormatBool(filter.RecommendedOnly)
	if filter.PublishedOnly {
		var cached []Product
		if s.cacheGet(ctx, key, &cached) {
			return cached, nil
		}
	}

	products, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	if products == nil {
		products = []Product{}
	}
	if filter.PublishedOnly {
		s.cacheSet(ctx, key, products)
	}
	return products, nil
}

// ListCategories returns the distinct categories of published products, sorted.
func (s *catalogService) ListCategories(ctx context.Context) ([]string, error) {
	var cached []string
	if s.cacheGet(ctx, cacheKeyCategories, &cached) {
		return cached, nil
	}

	products, err := s.repo.List(ctx, ProductListFilter{PublishedOnly: true})
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	seen := make(map[string]struct{})
	categories := make([]string, 0)
	for _, p := range products {
		category := strings.TrimSpace(p.Category)
		if category == "" {
			continue
		}
		if _, ok := seen[category]; ok {
			continue
		}
		seen[category] = struct{}{}
		categories = append(categories, category)
	}
	sort.Strings(categories)
	s.cacheSet(ctx, cacheKeyCategories, categories)
	return categories, nil
}

func (s *catalogService) ImageUploadURL(ctx context.Context, productID string, contentType string) (SignedUpload, error) {
	if s.images == nil || s.imageBucket == "" {
		return SignedUpload{}, fmt.Errorf("%w: image uploads are not configured", ErrUnavailable)
	}
	productID = strings.TrimSpace(productID)
	contentType = strings.ToLower(strings.TrimSpace(contentType))

	var v validator
	v.require("productId", productID)
	v.require("contentType", contentType)
	if err := v.err(); err != nil {
		return SignedUpload{}, err
	}
	if _, err := s.repo.FindByID(ctx, productID); err != nil {
		return SignedUpload{}, mapRepositoryError(err)
	}

	object, err := storage.ProductImagePath(productID, s.newID(), contentType)
	if err != nil {
		return SignedUpload{}, &ValidationError{Fields: map[string]string{"contentType": "unsupported image type"}}
	}
	signed, err := s.images.UploadURL(ctx, s.imageBucket, object, storage.UploadOptions{ContentType: contentType})
	if err != nil {
		if errors.Is(err, storage.ErrContentTypeNotAllowed) {
			return SignedUpload{}, &ValidationError{Fields: map[string]string{"contentType": "unsupported image type"}}
		}
		return SignedUpload{}, fmt.Errorf("%w: sign upload: %v", ErrUnavailable, err)
	}
	return SignedUpload{
		UploadURL: signed.URL,
		PublicURL: storage.PublicURL(s.imageBucket, object),
		ObjectKey: object,
		ExpiresAt: signed.ExpiresAt,
	}, nil
}

func (s *catalogService) normalizeProduct(cmd UpsertProductCommand) (Product, error) {
	product := Product{
		ID:          strings.TrimSpace(cmd.ID),
		Name:        strings.TrimSpace(cmd.Name),
		Description: strings.TrimSpace(s.policy.Sanitize(cmd.Description)),
		Price:       cmd.Price,
		PurchaseURL: strings.TrimSpace(cmd.PurchaseURL),
		Category:    strings.TrimSpace(cmd.Category),
		Published:   cmd.Published,
		Recommended: cmd.Recommended,
	}

	var v validator
	v.require("name", product.Name)
	switch {
	case product.Price < 0:
		v.add("price", "must not be negative")
	case product.Price > domain.MaxUnitPrice:
		v.add("price", fmt.Sprintf("must not exceed %d", domain.MaxUnitPrice))
	}
	if product.PurchaseURL != "" && !isAbsoluteHTTPURL(product.PurchaseURL) {
		v.add("purchaseUrl", "must be an absolute http(s) URL")
	}

	for _, raw := range cmd.ImageURLs {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			if !isAbsoluteHTTPURL(trimmed) {
				v.add("imageUrls", "must be absolute http(s) URLs")
				continue
			}
			product.ImageURLs = append(product.ImageURLs, trimmed)
		}
	}
	if len(product.ImageURLs) > maxProductImages {
		v.add("imageUrls", fmt.Sprintf("at most %d images are allowed", maxProductImages))
	}

	seen := make(map[string]struct{}, len(cmd.Stock))
	for _, entry := range cmd.Stock {
		size := textutil.Fold(entry.Size)
		if size == "" {
			v.add("stock", "size label is required")
			continue
		}
		key := textutil.Key(size)
		if _, dup := seen[key]; dup {
			v.add("stock", fmt.Sprintf("duplicate size %q", size))
			continue
		}
		seen[key] = struct{}{}
		if entry.Quantity < 0 {
			v.add("stock", fmt.Sprintf("quantity for size %q must not be negative", size))
			continue
		}
		product.Stock = append(product.Stock, SizeStock{Size: size, Quantity: entry.Quantity})
	}

	if err := v.err(); err != nil {
		return Product{}, err
	}
	return product, nil
}

func isAbsoluteHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

func (s *catalogService) cacheGet(ctx context.Context, key string, dst any) bool {
	if s.cache == nil {
		return false
	}
	hit, err := s.cache.Get(ctx, key, dst)
	if err != nil {
		s.logger(ctx, "catalog.cache.read_failed", map[string]any{"key": key, "error": err.Error()})
		return false
	}
	return hit
}

func (s *catalogService) cacheSet(ctx context.Context, key string, value any) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value); err != nil {
		s.logger(ctx, "catalog.cache.write_failed", map[string]any{"key": key, "error": err.Error()})
	}
}

func (s *catalogService) invalidate(ctx context.Context, op, productID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger(ctx, "catalog.cache.invalidate_failed", map[string]any{
			"op":        op,
			"productId": productID,
			"error":     err.Error(),
		})
	}
}
