package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	domain "github.com/3ureka-official/religionne00-sub001/internal/domain"
	"github.com/3ureka-official/religionne00-sub001/internal/platform/storage"
	"github.com/3ureka-official/religionne00-sub001/internal/repositories"
)

const (
	salesDateLayout  = "2006-01-02"
	maxSalesRangeDay = 366
	topProductLimit  = 5
)

// ReportWriter stores generated report files.
type ReportWriter interface {
	WriteObject(ctx context.Context, bucket, object, contentType string, data []byte) error
}

// SalesServiceDeps bundles constructor inputs for the sales service.
type SalesServiceDeps struct {
	Orders       repositories.OrderRepository
	Writer       ReportWriter
	ExportBucket string
	Location     *time.Location
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type salesService struct {
	orders repositories.OrderRepository
	writer ReportWriter
	bucket string
	loc    *time.Location
	logger func(context.Context, string, map[string]any)
}

// NewSalesService constructs the sales analytics service.
func NewSalesService(deps SalesServiceDeps) (SalesService, error) {
	if deps.Orders == nil {
		return nil, errors.New("sales service: order repository is required")
	}
	loc := deps.Location
	if loc == nil {
		loc = tokyo()
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &salesService{
		orders: deps.Orders,
		writer: deps.Writer,
		bucket: strings.TrimSpace(deps.ExportBucket),
		loc:    loc,
		logger: logger,
	}, nil
}

func tokyo() *time.Location {
	if loc, err := time.LoadLocation("Asia/Tokyo"); err == nil {
		return loc
	}
	return time.FixedZone("JST", 9*60*60)
}

// Summary aggregates paid, shipped and refunded orders created on the calendar
// days from..to inclusive.
func (s *salesService) Summary(ctx context.Context, from, to time.Time) (SalesSummary, error) {
	start, end, err := s.dayRange(from, to)
	if err != nil {
		return SalesSummary{}, err
	}
	orders, err := s.orders.ListCreatedBetween(ctx, start, end)
	if err != nil {
		return SalesSummary{}, mapRepositoryError(err)
	}

	summary := SalesSummary{
		From:            start.Format(salesDateLayout),
		To:              end.AddDate(0, 0, -1).Format(salesDateLayout),
		ByPaymentMethod: make(map[domain.PaymentMethod]domain.MethodTotals),
	}

	daily := make(map[string]int)
	for day := start; day.Before(end); day = day.AddDate(0, 0, 1) {
		key := day.Format(salesDateLayout)
		daily[key] = len(summary.Daily)
		summary.Daily = append(summary.Daily, domain.DailyTotal{Date: key})
	}
	products := make(map[string]*domain.ProductTotal)

	for _, order := range orders {
		if order.Status == domain.OrderStatusPending {
			continue
		}
		var refunded int64
		if order.RefundedAmount != nil {
			refunded = *order.RefundedAmount
		}

		summary.OrderCount++
		summary.GrossRevenue += order.Total
		summary.RefundedTotal += refunded
		summary.ShippingCollected += order.ShippingFee

		method := summary.ByPaymentMethod[order.PaymentMethod]
		method.Orders++
		method.Revenue += order.Total
		method.Refunded += refunded
		summary.ByPaymentMethod[order.PaymentMethod] = method

		if idx, ok := daily[order.CreatedAt.In(s.loc).Format(salesDateLayout)]; ok {
			row := &summary.Daily[idx]
			row.Orders++
			row.Revenue += order.Total
			row.Shipping += order.ShippingFee
			row.Refunded += refunded
		}

		for _, item := range order.Items {
			pt, ok := products[item.ProductID]
			if !ok {
				pt = &domain.ProductTotal{ProductID: item.ProductID, Name: item.Name}
				products[item.ProductID] = pt
			}
			pt.Units += item.Quantity
			pt.Revenue += item.LineTotal()
		}
	}
	summary.NetRevenue = summary.GrossRevenue - summary.RefundedTotal

	summary.TopProducts = make([]domain.ProductTotal, 0, len(products))
	for _, pt := range products {
		summary.TopProducts = append(summary.TopProducts, *pt)
	}
	sort.Slice(summary.TopProducts, func(i, j int) bool {
		a, b := summary.TopProducts[i], summary.TopProducts[j]
		if a.Units != b.Units {
			return a.Units > b.Units
		}
		if a.Revenue != b.Revenue {
			return a.Revenue > b.Revenue
		}
		return a.ProductID < b.ProductID
	})
	if len(summary.TopProducts) > topProductLimit {
		summary.TopProducts = summary.TopProducts[:topProductLimit]
	}
	return summary, nil
}

// Export writes the daily breakdown as CSV to sales/<from>_<to>.csv.
func (s *salesService) Export(ctx context.Context, from, to time.Time) (SalesExport, error) {
	if s.writer == nil || s.bucket == "" {
		return SalesExport{}, fmt.Errorf("%w: sales export is not configured", ErrUnavailable)
	}
	summary, err := s.Summary(ctx, from, to)
	if err != nil {
		return SalesExport{}, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"date", "orders", "revenue", "shipping", "refunded", "net"})
	for _, row := range summary.Daily {
		_ = w.Write([]string{
			row.Date,
			strconv.Itoa(row.Orders),
			strconv.FormatInt(row.Revenue, 10),
			strconv.FormatInt(row.Shipping, 10),
			strconv.FormatInt(row.Refunded, 10),
			strconv.FormatInt(row.Revenue-row.Refunded, 10),
		})
	}
	_ = w.Write([]string{
		"total",
		strconv.Itoa(summary.OrderCount),
		strconv.FormatInt(summary.GrossRevenue, 10),
		strconv.FormatInt(summary.ShippingCollected, 10),
		strconv.FormatInt(summary.RefundedTotal, 10),
		strconv.FormatInt(summary.NetRevenue, 10),
	})
	w.Flush()
	if err := w.Error(); err != nil {
		return SalesExport{}, fmt.Errorf("sales service: encode csv: %w", err)
	}

	start, _ := time.ParseInLocation(salesDateLayout, summary.From, s.loc)
	last, _ := time.ParseInLocation(salesDateLayout, summary.To, s.loc)
	object := storage.SalesExportPath(start, last)
	if err := s.writer.WriteObject(ctx, s.bucket, object, "text/csv; charset=utf-8", buf.Bytes()); err != nil {
		s.logger(ctx, "sales.export.failed", map[string]any{"object": object, "error": err.Error()})
		return SalesExport{}, fmt.Errorf("%w: write export: %v", ErrUnavailable, err)
	}
	s.logger(ctx, "sales.exported", map[string]any{"object": object, "rows": len(summary.Daily)})
	return SalesExport{Bucket: s.bucket, ObjectPath: object, Rows: len(summary.Daily)}, nil
}

func (s *salesService) dayRange(from, to time.Time) (time.Time, time.Time, error) {
	var v validator
	if from.IsZero() {
		v.add("from", "is required")
	}
	if to.IsZero() {
		v.add("to", "is required")
	}
	if err := v.err(); err != nil {
		return time.Time{}, time.Time{}, err
	}

	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, s.loc)
	end := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, s.loc).AddDate(0, 0, 1)
	switch {
	case !start.Before(end):
		v.add("to", "must not be before from")
	case end.Sub(start) > maxSalesRangeDay*24*time.Hour:
		v.add("to", fmt.Sprintf("range must not exceed %d days", maxSalesRangeDay))
	}
	if err := v.err(); err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}
