package domain

// MethodTotals aggregates revenue for one payment method.
type MethodTotals struct {
	Orders   int
	Revenue  int64
	Refunded int64
}

// DailyTotal is one row of the daily sales breakdown.
type DailyTotal struct {
	Date     string
	Orders   int
	Revenue  int64
	Shipping int64
	Refunded int64
}

// ProductTotal ranks a product by units sold.
type ProductTotal struct {
	ProductID string
	Name      string
	Units     int
	Revenue   int64
}

// SalesSummary captures aggregated sales for a date range.
type SalesSummary struct {
	From              string
	To                string
	OrderCount        int
	GrossRevenue      int64
	RefundedTotal     int64
	NetRevenue        int64
	ShippingCollected int64
	ByPaymentMethod   map[PaymentMethod]MethodTotals
	Daily             []DailyTotal
	TopProducts       []ProductTotal
}
