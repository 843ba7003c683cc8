package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/3ureka-official/religionne00-sub001/internal/platform/httpx"
	"github.com/3ureka-official/religionne00-sub001/internal/services"
)

// AnalyticsHandlers serves the back office sales dashboard.
type AnalyticsHandlers struct {
	sales services.SalesService
}

func NewAnalyticsHandlers(sales services.SalesService) *AnalyticsHandlers {
	return &AnalyticsHandlers{sales: sales}
}

func (h *AnalyticsHandlers) Routes(r chi.Router) {
	r.Get("/analytics/sales", h.summary)
	r.Post("/analytics/sales:export", h.export)
}

type methodTotalsPayload struct {
	Orders   int   `json:"orders"`
	Revenue  int64 `json:"revenue"`
	Refunded int64 `json:"refunded"`
}

type dailyTotalPayload struct {
	Date     string `json:"date"`
	Orders   int    `json:"orders"`
	Revenue  int64  `json:"revenue"`
	Shipping int64  `json:"shipping"`
	Refunded int64  `json:"refunded"`
}

type productTotalPayload struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Units     int    `json:"units"`
	Revenue   int64  `json:"revenue"`
}

type salesSummaryPayload struct {
	From              string                         `json:"from"`
	To                string                         `json:"to"`
	OrderCount        int                            `json:"orderCount"`
	GrossRevenue      int64                          `json:"grossRevenue"`
	RefundedTotal     int64                          `json:"refundedTotal"`
	NetRevenue        int64                          `json:"netRevenue"`
	ShippingCollected int64                          `json:"shippingCollected"`
	ByPaymentMethod   map[string]methodTotalsPayload `json:"byPaymentMethod"`
	Daily             []dailyTotalPayload            `json:"daily"`
	TopProducts       []productTotalPayload          `json:"topProducts"`
}

func newSalesSummaryPayload(s services.SalesSummary) salesSummaryPayload {
	out := salesSummaryPayload{
		From:              s.From,
		To:                s.To,
		OrderCount:        s.OrderCount,
		GrossRevenue:      s.GrossRevenue,
		RefundedTotal:     s.RefundedTotal,
		NetRevenue:        s.NetRevenue,
		ShippingCollected: s.ShippingCollected,
		ByPaymentMethod:   make(map[string]methodTotalsPayload, len(s.ByPaymentMethod)),
		Daily:             make([]dailyTotalPayload, 0, len(s.Daily)),
		TopProducts:       make([]productTotalPayload, 0, len(s.TopProducts)),
	}
	for method, totals := range s.ByPaymentMethod {
		out.ByPaymentMethod[string(method)] = methodTotalsPayload(totals)
	}
	for _, row := range s.Daily {
		out.Daily = append(out.Daily, dailyTotalPayload(row))
	}
	for _, p := range s.TopProducts {
		out.TopProducts = append(out.TopProducts, productTotalPayload(p))
	}
	return out
}

func (h *AnalyticsHandlers) summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sales == nil {
		writeUnavailable(ctx, w, "sales service")
		return
	}
	from, to, ok := salesRange(w, r)
	if !ok {
		return
	}
	summary, err := h.sales.Summary(ctx, from, to)
	if err != nil {
		writeServiceError(ctx, w, err, "not_found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newSalesSummaryPayload(summary))
}

type salesExportResponse struct {
	Bucket     string `json:"bucket"`
	ObjectPath string `json:"objectPath"`
	Rows       int    `json:"rows"`
}

func (h *AnalyticsHandlers) export(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sales == nil {
		writeUnavailable(ctx, w, "sales service")
		return
	}
	from, to, ok := salesRange(w, r)
	if !ok {
		return
	}
	export, err := h.sales.Export(ctx, from, to)
	if err != nil {
		writeServiceError(ctx, w, err, "not_found")
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, salesExportResponse(export))
}

// salesRange reads from/to query parameters. Missing values are passed to
// the service as zero times so it reports them as field errors.
func salesRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	query := r.URL.Query()
	from, err := parseDateParam(query.Get("from"))
	if err != nil {
		writeBadRequest(r.Context(), w, "from must be YYYY-MM-DD")
		return time.Time{}, time.Time{}, false
	}
	to, err := parseDateParam(query.Get("to"))
	if err != nil {
		writeBadRequest(r.Context(), w, "to must be YYYY-MM-DD")
		return time.Time{}, time.Time{}, false
	}
	var start, end time.Time
	if from != nil {
		start = from.In(tokyo)
	}
	if to != nil {
		end = to.In(tokyo)
	}
	return start, end, true
}
