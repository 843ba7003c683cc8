package firestore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/3ureka-official/religionne00-sub001/internal/domain"
	pconfig "github.com/3ureka-official/religionne00-sub001/internal/platform/config"
	pfirestore "github.com/3ureka-official/religionne00-sub001/internal/platform/firestore"
	"github.com/3ureka-official/religionne00-sub001/internal/repositories"
)

func newEmulatorProvider(t *testing.T) *pfirestore.Provider {
	t.Helper()
	host := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: "religionne00-test", EmulatorHost: host})
	t.Cleanup(func() { _ = provider.Close(context.Background()) })
	return provider
}

func TestOrderRepositoryConditionalUpdate(t *testing.T) {
	provider := newEmulatorProvider(t)
	repo, err := NewOrderRepository(provider)
	if err != nil {
		t.Fatalf("NewOrderRepository: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	order := domain.Order{
		ID:            ulid.Make().String(),
		Customer:      "山田 花子",
		Email:         "hanako@example.com",
		Phone:         "09012345678",
		Items:         []domain.OrderItem{{ProductID: "p1", Name: "Tee", Price: 3000, Quantity: 1, Size: "M"}},
		Address:       domain.Address{PostalCode: "1500001", Prefecture: "東京都", City: "渋谷区", Line1: "神宮前1-1"},
		PaymentMethod: domain.PaymentMethodCard,
		Subtotal:      3000,
		ShippingFee:   500,
		Total:         3500,
		Status:        domain.OrderStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := repo.Insert(ctx, order); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := repo.Insert(ctx, order); err == nil {
		t.Fatal("expected duplicate insert to fail")
	}

	updated, err := repo.Update(ctx, order.ID, 0, func(o *domain.Order) error {
		o.Status = domain.OrderStatusPaid
		o.PaymentIntentID = "pi_123"
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Version != 1 || updated.Status != domain.OrderStatusPaid {
		t.Fatalf("unexpected updated order: %+v", updated)
	}

	_, err = repo.Update(ctx, order.ID, 0, func(o *domain.Order) error {
		o.Status = domain.OrderStatusShipped
		return nil
	})
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict for stale version, got %v", err)
	}

	stored, err := repo.FindByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if stored.Status != domain.OrderStatusPaid || stored.PaymentIntentID != "pi_123" || stored.Version != 1 {
		t.Fatalf("unexpected stored order: %+v", stored)
	}

	_, err = repo.FindByID(ctx, "missing-"+order.ID)
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestProductRepositoryCRUD(t *testing.T) {
	provider := newEmulatorProvider(t)
	repo, err := NewProductRepository(provider)
	if err != nil {
		t.Fatalf("NewProductRepository: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	product := domain.Product{
		ID:        ulid.Make().String(),
		Name:      "Logo Hoodie",
		Price:     12000,
		Category:  "tops",
		Published: true,
		Stock:     []domain.SizeStock{{Size: "M", Quantity: 3}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.Insert(ctx, product); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	product.Price = 11000
	if err := repo.Update(ctx, product); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := repo.FindByID(ctx, product.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.Price != 11000 || len(got.Stock) != 1 || got.Stock[0].Quantity != 3 {
		t.Fatalf("unexpected product: %+v", got)
	}

	if err := repo.Delete(ctx, product.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	var repoErr repositories.RepositoryError
	if err := repo.Update(ctx, product); !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not found on update after delete, got %v", err)
	}
}
