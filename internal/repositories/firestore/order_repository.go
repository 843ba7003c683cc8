package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/3ureka-official/religionne00-sub001/internal/domain"
	pfirestore "github.com/3ureka-official/religionne00-sub001/internal/platform/firestore"
	"github.com/3ureka-official/religionne00-sub001/internal/platform/pagination"
	"github.com/3ureka-official/religionne00-sub001/internal/repositories"
)

const (
	orderCollection = "orders"

	// A version mismatch aborts immediately; retries only cover Firestore contention.
	orderTxAttempts = 3
	orderTxTimeout  = 10 * time.Second
)

// OrderRepository persists orders in the top-level orders collection.
type OrderRepository struct {
	orders   *pfirestore.Collection[orderDocument]
	provider *pfirestore.Provider
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		orders:   pfirestore.NewCollection[orderDocument](provider, orderCollection, nil),
		provider: provider,
	}, nil
}

// Insert creates the order document; an existing id is a conflict.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: order id is required")
	}
	return r.orders.Create(ctx, order.ID, encodeOrder(order))
}

// FindByID loads a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc.ID, doc.Data), nil
}

// Update re-reads the order inside a transaction, checks the version, applies
// mutate and writes the result with version+1.
func (r *OrderRepository) Update(ctx context.Context, orderID string, expectedVersion int64, mutate repositories.OrderMutation) (domain.Order, error) {
	if mutate == nil {
		return domain.Order{}, errors.New("order repository: mutation is required")
	}
	ref, err := r.orders.Doc(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}

	var updated domain.Order
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := r.orders.GetTx(tx, ref)
		if err != nil {
			return err
		}
		current := decodeOrder(doc.ID, doc.Data)
		if current.Version != expectedVersion {
			return fmt.Errorf("order %s at version %d, expected %d: %w", orderID, current.Version, expectedVersion, pfirestore.ErrVersionMismatch)
		}
		if err := mutate(&current); err != nil {
			return err
		}
		current.Version = expectedVersion + 1
		if err := tx.Set(ref, encodeOrder(current)); err != nil {
			return err
		}
		updated = current
		return nil
	}, pfirestore.WithTxAttempts(orderTxAttempts), pfirestore.WithTxTimeout(orderTxTimeout))
	if err != nil {
		return domain.Order{}, err
	}
	return updated, nil
}

// List returns orders newest first, filtered by status and creation window.
func (r *OrderRepository) List(ctx context.Context, filter domain.OrderListFilter) (domain.Page[domain.Order], error) {
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}
	pageSize := pagination.NormalizePageSize(filter.Pagination.PageSize)

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		if len(filter.Status) == 1 {
			q = q.Where("status", "==", string(filter.Status[0]))
		} else if len(filter.Status) > 1 {
			statuses := make([]string, 0, len(filter.Status))
			for _, s := range filter.Status {
				statuses = append(statuses, string(s))
			}
			q = q.Where("status", "in", statuses)
		}
		if filter.CreatedGTE != nil {
			q = q.Where("createdAt", ">=", filter.CreatedGTE.UTC())
		}
		if filter.CreatedLT != nil {
			q = q.Where("createdAt", "<", filter.CreatedLT.UTC())
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if !cursor.IsZero() {
			q = q.StartAfter(cursor.CreatedAt, cursor.ID)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}

	page := domain.Page[domain.Order]{Items: make([]domain.Order, 0, len(docs))}
	for i, doc := range docs {
		if i == pageSize {
			last := page.Items[len(page.Items)-1]
			token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
			if err != nil {
				return domain.Page[domain.Order]{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Items = append(page.Items, decodeOrder(doc.ID, doc.Data))
	}
	return page, nil
}

// ListCreatedBetween returns every order created in [from, to), oldest first.
func (r *OrderRepository) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]domain.Order, error) {
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("createdAt", ">=", from.UTC()).
			Where("createdAt", "<", to.UTC()).
			OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, decodeOrder(doc.ID, doc.Data))
	}
	return orders, nil
}

type orderDocument struct {
	Customer          string              `firestore:"customer"`
	Email             string              `firestore:"email"`
	Phone             string              `firestore:"phone"`
	Items             []orderItemDocument `firestore:"items"`
	Address           addressDocument     `firestore:"address"`
	PaymentMethod     string              `firestore:"paymentMethod"`
	Subtotal          int64               `firestore:"subtotal"`
	ShippingFee       int64               `firestore:"shippingFee"`
	Total             int64               `firestore:"total"`
	Status            string              `firestore:"status"`
	PaymentIntentID   string              `firestore:"paymentIntentId,omitempty"`
	MerchantPaymentID string              `firestore:"merchantPaymentId,omitempty"`
	RefundedAmount    *int64              `firestore:"refundedAmount,omitempty"`
	RefundID          string              `firestore:"refundId,omitempty"`
	CreatedAt         time.Time           `firestore:"createdAt"`
	UpdatedAt         time.Time           `firestore:"updatedAt"`
	PaidAt            *time.Time          `firestore:"paidAt,omitempty"`
	ShippedDate       *time.Time          `firestore:"shippedDate,omitempty"`
	RefundedAt        *time.Time          `firestore:"refundedAt,omitempty"`
	Version           int64               `firestore:"version"`
}

type orderItemDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	Price     int64  `firestore:"price"`
	Quantity  int    `firestore:"quantity"`
	Size      string `firestore:"size,omitempty"`
}

type addressDocument struct {
	PostalCode string `firestore:"postalCode"`
	Prefecture string `firestore:"prefecture"`
	City       string `firestore:"city"`
	Line1      string `firestore:"line1"`
	Line2      string `firestore:"line2,omitempty"`
}

func encodeOrder(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price,
			Quantity:  item.Quantity,
			Size:      item.Size,
		})
	}
	return orderDocument{
		Customer: order.Customer,
		Email:    order.Email,
		Phone:    order.Phone,
		Items:    items,
		Address: addressDocument{
			PostalCode: order.Address.PostalCode,
			Prefecture: order.Address.Prefecture,
			City:       order.Address.City,
			Line1:      order.Address.Line1,
			Line2:      order.Address.Line2,
		},
		PaymentMethod:     string(order.PaymentMethod),
		Subtotal:          order.Subtotal,
		ShippingFee:       order.ShippingFee,
		Total:             order.Total,
		Status:            string(order.Status),
		PaymentIntentID:   order.PaymentIntentID,
		MerchantPaymentID: order.MerchantPaymentID,
		RefundedAmount:    order.RefundedAmount,
		RefundID:          order.RefundID,
		CreatedAt:         order.CreatedAt.UTC(),
		UpdatedAt:         order.UpdatedAt.UTC(),
		PaidAt:            utcPtr(order.PaidAt),
		ShippedDate:       utcPtr(order.ShippedDate),
		RefundedAt:        utcPtr(order.RefundedAt),
		Version:           order.Version,
	}
}

func decodeOrder(id string, doc orderDocument) domain.Order {
	items := make([]domain.OrderItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price,
			Quantity:  item.Quantity,
			Size:      item.Size,
		})
	}
	return domain.Order{
		ID:       id,
		Customer: doc.Customer,
		Email:    doc.Email,
		Phone:    doc.Phone,
		Items:    items,
		Address: domain.Address{
			PostalCode: doc.Address.PostalCode,
			Prefecture: doc.Address.Prefecture,
			City:       doc.Address.City,
			Line1:      doc.Address.Line1,
			Line2:      doc.Address.Line2,
		},
		PaymentMethod:     domain.PaymentMethod(doc.PaymentMethod),
		Subtotal:          doc.Subtotal,
		ShippingFee:       doc.ShippingFee,
		Total:             doc.Total,
		Status:            domain.OrderStatus(doc.Status),
		PaymentIntentID:   doc.PaymentIntentID,
		MerchantPaymentID: doc.MerchantPaymentID,
		RefundedAmount:    doc.RefundedAmount,
		RefundID:          doc.RefundID,
		CreatedAt:         doc.CreatedAt.UTC(),
		UpdatedAt:         doc.UpdatedAt.UTC(),
		PaidAt:            utcPtr(doc.PaidAt),
		ShippedDate:       utcPtr(doc.ShippedDate),
		RefundedAt:        utcPtr(doc.RefundedAt),
		Version:           doc.Version,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
