package repositories

import (
	"context"
	"time"

	domain "github.com/3ureka-official/religionne00-sub001/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderMutation mutates a freshly read order inside a conditional update.
// Returning an error aborts the write.
type OrderMutation func(order *domain.Order) error

// OrderRepository persists orders. Update is conditional: it applies the
// mutation only when the stored version equals expectedVersion and bumps the
// version on success; a mismatch is reported as a conflict.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	Update(ctx context.Context, orderID string, expectedVersion int64, mutate OrderMutation) (domain.Order, error)
	List(ctx context.Context, filter domain.OrderListFilter) (domain.Page[domain.Order], error)
	ListCreatedBetween(ctx context.Context, from, to time.Time) ([]domain.Order, error)
}

// ProductRepository persists catalog products.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	Delete(ctx context.Context, productID string) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	List(ctx context.Context, filter domain.ProductListFilter) ([]domain.Product, error)
}

// HealthRepository exposes status of downstream dependencies for readiness checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
