package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/3ureka-official/religionne00-sub001/internal/domain"
	pfirestore "github.com/3ureka-official/religionne00-sub001/internal/platform/firestore"
	"github.com/3ureka-official/religionne00-sub001/internal/repositories"
)

const productCollection = "products"

// ProductRepository persists catalog products.
type ProductRepository struct {
	products *pfirestore.Collection[productDocument]
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		products: pfirestore.NewCollection[productDocument](provider, productCollection, nil),
	}, nil
}

// Insert creates a product; an existing id is a conflict.
func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if strings.TrimSpace(product.ID) == "" {
		return errors.New("product repository: product id is required")
	}
	return r.products.Create(ctx, product.ID, encodeProduct(product))
}

// Update overwrites an existing product and fails when it does not exist.
func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	ref, err := r.products.Doc(ctx, product.ID)
	if err != nil {
		return err
	}
	doc := encodeProduct(product)
	_, err = ref.Update(ctx, []firestore.Update{
		{Path: "name", Value: doc.Name},
		{Path: "description", Value: doc.Description},
		{Path: "price", Value: doc.Price},
		{Path: "purchaseUrl", Value: doc.PurchaseURL},
		{Path: "category", Value: doc.Category},
		{Path: "published", Value: doc.Published},
		{Path: "recommended", Value: doc.Recommended},
		{Path: "imageUrls", Value: doc.ImageURLs},
		{Path: "stock", Value: doc.Stock},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	}, firestore.Exists)
	return pfirestore.WrapError("products.update", err)
}

// Delete removes the product.
func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	return r.products.Delete(ctx, productID)
}

// FindByID loads one product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.products.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return decodeProduct(doc.ID, doc.Data), nil
}

// List returns products newest first.
func (r *ProductRepository) List(ctx context.Context, filter domain.ProductListFilter) ([]domain.Product, error) {
	docs, err := r.products.Query(ctx, func(q firestore.Query) firestore.Query {
		if category := strings.TrimSpace(filter.Category); category != "" {
			q = q.Where("category", "==", category)
		}
		if filter.PublishedOnly {
			q = q.Where("published", "==", true)
		}
		if filter.RecommendedOnly {
			q = q.Where("recommended", "==", true)
		}
		return q.OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		products = append(products, decodeProduct(doc.ID, doc.Data))
	}
	return products, nil
}

type productDocument struct {
	Name        string          `firestore:"name"`
	Description string          `firestore:"description"`
	Price       int64           `firestore:"price"`
	PurchaseURL string          `firestore:"purchaseUrl"`
	Category    string          `firestore:"category"`
	Published   bool            `firestore:"published"`
	Recommended bool            `firestore:"recommended"`
	ImageURLs   []string        `firestore:"imageUrls"`
	Stock       []stockDocument `firestore:"stock"`
	CreatedAt   time.Time       `firestore:"createdAt"`
	UpdatedAt   time.Time       `firestore:"updatedAt"`
}

type stockDocument struct {
	Size     string `firestore:"size"`
	Quantity int    `firestore:"stock"`
}

func encodeProduct(product domain.Product) productDocument {
	stock := make([]stockDocument, 0, len(product.Stock))
	for _, s := range product.Stock {
		stock = append(stock, stockDocument{Size: s.Size, Quantity: s.Quantity})
	}
	images := product.ImageURLs
	if images == nil {
		images = []string{}
	}
	return productDocument{
		Name:        product.Name,
		Description: product.Description,
		Price:       product.Price,
		PurchaseURL: product.PurchaseURL,
		Category:    product.Category,
		Published:   product.Published,
		Recommended: product.Recommended,
		ImageURLs:   images,
		Stock:       stock,
		CreatedAt:   product.CreatedAt.UTC(),
		UpdatedAt:   product.UpdatedAt.UTC(),
	}
}

func decodeProduct(id string, doc productDocument) domain.Product {
	stock := make([]domain.SizeStock, 0, len(doc.Stock))
	for _, s := range doc.Stock {
		stock = append(stock, domain.SizeStock{Size: s.Size, Quantity: s.Quantity})
	}
	return domain.Product{
		ID:          id,
		Name:        doc.Name,
		Description: doc.Description,
		Price:       doc.Price,
		PurchaseURL: doc.PurchaseURL,
		Category:    doc.Category,
		Published:   doc.Published,
		Recommended: doc.Recommended,
		ImageURLs:   append([]string(nil), doc.ImageURLs...),
		Stock:       stock,
		CreatedAt:   doc.CreatedAt.UTC(),
		UpdatedAt:   doc.UpdatedAt.UTC(),
	}
}
