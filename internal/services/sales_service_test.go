package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/3ureka-official/religionne00-sub001/internal/domain"
)

type captureWriter struct {
	bucket, object, contentType string
	data                        []byte
	err                         error
}

func (w *captureWriter) WriteObject(_ context.Context, bucket, object, contentType string, data []byte) error {
	w.bucket, w.object, w.contentType, w.data = bucket, object, contentType, data
	return w.err
}

func int64Ptr(v int64) *int64 { return &v }

func salesFixtureOrders() []domain.Order {
	jst := time.FixedZone("JST", 9*60*60)
	return []domain.Order{
		{
			ID: "a", Status: domain.OrderStatusPaid, PaymentMethod: domain.PaymentMethodCard,
			Total: 3500, ShippingFee: 500,
			Items:     []domain.OrderItem{{ProductID: "tee", Name: "Tee", Price: 3000, Quantity: 1}},
			CreatedAt: time.Date(2024, 4, 1, 0, 30, 0, 0, jst),
		},
		{
			ID: "b", Status: domain.OrderStatusRefunded, PaymentMethod: domain.PaymentMethodWallet,
			Total: 6000, RefundedAmount: int64Ptr(1000),
			Items:     []domain.OrderItem{{ProductID: "cap", Name: "Cap", Price: 3000, Quantity: 2}},
			CreatedAt: time.Date(2024, 4, 2, 23, 59, 0, 0, jst),
		},
		{
			ID: "c", Status: domain.OrderStatusPending, PaymentMethod: domain.PaymentMethodCard,
			Total:     9999,
			CreatedAt: time.Date(2024, 4, 2, 12, 0, 0, 0, jst),
		},
		{
			ID: "d", Status: domain.OrderStatusShipped, PaymentMethod: domain.PaymentMethodCOD,
			Total: 3500, ShippingFee: 500,
			Items:     []domain.OrderItem{{ProductID: "tee", Name: "Tee", Price: 3000, Quantity: 1}},
			CreatedAt: time.Date(2024, 4, 3, 0, 0, 0, 0, jst),
		},
	}
}

func newSalesFixture(t *testing.T, writer ReportWriter) SalesService {
	t.Helper()
	svc, err := NewSalesService(SalesServiceDeps{
		Orders:       newMemoryOrderRepo(salesFixtureOrders()...),
		Writer:       writer,
		ExportBucket: "exports",
		Location:     time.FixedZone("JST", 9*60*60),
	})
	if err != nil {
		t.Fatalf("new sales service: %v", err)
	}
	return svc
}

func TestSalesSummaryAggregatesSettledOrders(t *testing.T) {
	svc := newSalesFixture(t, nil)
	from := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC)

	summary, err := svc.Summary(context.Background(), from, to)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.From != "2024-04-01" || summary.To != "2024-04-02" {
		t.Fatalf("unexpected range %s..%s", summary.From, summary.To)
	}
	if summary.OrderCount != 2 || summary.GrossRevenue != 9500 || summary.RefundedTotal != 1000 || summary.NetRevenue != 8500 {
		t.Fatalf("unexpected totals %+v", summary)
	}
	if summary.ShippingCollected != 500 {
		t.Fatalf("unexpected shipping %d", summary.ShippingCollected)
	}
	if len(summary.Daily) != 2 || summary.Daily[1].Orders != 1 || summary.Daily[1].Refunded != 1000 {
		t.Fatalf("unexpected daily rows %+v", summary.Daily)
	}
	if got := summary.ByPaymentMethod[domain.PaymentMethodWallet]; got.Orders != 1 || got.Revenue != 6000 {
		t.Fatalf("unexpected wallet totals %+v", got)
	}
	if len(summary.TopProducts) != 2 || summary.TopProducts[0].ProductID != "cap" {
		t.Fatalf("unexpected top products %+v", summary.TopProducts)
	}
}

func TestSalesSummaryValidatesRange(t *testing.T) {
	svc := newSalesFixture(t, nil)
	ctx := context.Background()
	day := time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC)

	if _, err := svc.Summary(ctx, day, day.AddDate(0, 0, -1)); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for reversed range, got %v", err)
	}
	if _, err := svc.Summary(ctx, time.Time{}, day); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for missing from, got %v", err)
	}
	if _, err := svc.Summary(ctx, day, day.AddDate(2, 0, 0)); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for long range, got %v", err)
	}
}

func TestSalesExportWritesCSV(t *testing.T) {
	writer := &captureWriter{}
	svc := newSalesFixture(t, writer)

	export, err := svc.Export(context.Background(), time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 4, 3, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if export.Bucket != "exports" || export.ObjectPath != "sales/2024-04-01_2024-04-03.csv" || export.Rows != 3 {
		t.Fatalf("unexpected export %+v", export)
	}
	if writer.object != export.ObjectPath || !strings.HasPrefix(writer.contentType, "text/csv") {
		t.Fatalf("unexpected write %s %s", writer.object, writer.contentType)
	}
	lines := strings.Split(strings.TrimSpace(string(writer.data)), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected header, 3 days and total, got %d lines:\n%s", len(lines), writer.data)
	}
	if lines[0] != "date,orders,revenue,shipping,refunded,net" {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if lines[4] != "total,3,13000,1000,1000,12000" {
		t.Fatalf("unexpected total row %q", lines[4])
	}
}

func TestSalesExportFailures(t *testing.T) {
	writer := &captureWriter{err: errors.New("bucket missing")}
	svc := newSalesFixture(t, writer)
	day := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	if _, err := svc.Export(context.Background(), day, day); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	unconfigured := newSalesFixture(t, nil)
	if _, err := unconfigured.Export(context.Background(), day, day); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable when not configured, got %v", err)
	}
}
