package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/3ureka-official/religionne00-sub001/internal/platform/httpx"
	"github.com/3ureka-official/religionne00-sub001/internal/services"
)

const maxProductBodySize = 32 * 1024

// CatalogHandlers serves the storefront product listing and the back office
// product management endpoints.
type CatalogHandlers struct {
	catalog services.CatalogService
}

func NewCatalogHandlers(catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog}
}

// PublicRoutes registers the read-only storefront endpoints. Only published
// products are visible.
func (h *CatalogHandlers) PublicRoutes(r chi.Router) {
	r.Get("/products", h.listPublished)
	r.Get("/products/{productID}", h.getPublished)
	r.Get("/categories", h.listCategories)
}

// AdminRoutes registers product management under the admin group.
func (h *CatalogHandlers) AdminRoutes(r chi.Router) {
	r.Get("/products", h.listAll)
	r.Post("/products", h.create)
	r.Get("/products/{productID}", h.getAny)
	r.Put("/products/{productID}", h.update)
	r.Delete("/products/{productID}", h.delete)
	r.Post("/products/{productID}/image-upload-url", h.imageUploadURL)
}

type productListResponse struct {
	Products []productPayload `json:"products"`
}

func (h *CatalogHandlers) listPublished(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, true)
}

func (h *CatalogHandlers) listAll(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, false)
}

func (h *CatalogHandlers) list(w http.ResponseWriter, r *http.Request, publishedOnly bool) {
	ctx := r.Context()
	if h.catalog == nil {
		writeUnavailable(ctx, w, "catalog service")
		return
	}
	query := r.URL.Query()
	filter := services.ProductListFilter{
		Category:      strings.TrimSpace(query.Get("category")),
		PublishedOnly: publishedOnly,
	}
	if raw := strings.TrimSpace(query.Get("recommended")); raw != "" {
		recommended, err := strconv.ParseBool(raw)
		if err != nil {
			writeBadRequest(ctx, w, "recommended must be a boolean")
			return
		}
		filter.RecommendedOnly = recommended
	}

	products, err := h.catalog.ListProducts(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err, "product_not_found")
		return
	}
	resp := productListResponse{Products: make([]productPayload, 0, len(products))}
	for _, p := range products {
		resp.Products = append(resp.Products, newProductPayload(p))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *CatalogHandlers) getPublished(w http.ResponseWriter, r *http.Request) {
	h.get(w, r, true)
}

func (h *CatalogHandlers) getAny(w http.ResponseWriter, r *http.Request) {
	h.get(w, r, false)
}

func (h *CatalogHandlers) get(w http.ResponseWriter, r *http.Request, publishedOnly bool) {
	ctx := r.Context()
	if h.catalog == nil {
		writeUnavailable(ctx, w, "catalog service")
		return
	}
	product, err := h.catalog.GetProduct(ctx, chi.URLParam(r, "productID"), publishedOnly)
	if err != nil {
		writeServiceError(ctx, w, err, "product_not_found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newProductPayload(product))
}

func (h *CatalogHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeUnavailable(ctx, w, "catalog service")
		return
	}
	categories, err := h.catalog.ListCategories(ctx)
	if err != nil {
		writeServiceError(ctx, w, err, "product_not_found")
		return
	}
	if categories == nil {
		categories = []string{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

type productRequest struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Price       int64              `json:"price"`
	PurchaseURL string             `json:"purchaseUrl"`
	Category    string             `json:"category"`
	Published   bool               `json:"published"`
	Recommended bool               `json:"recommended"`
	ImageURLs   []string           `json:"imageUrls"`
	Stock       []sizeStockPayload `json:"stock"`
}

func (req productRequest) command(id string) services.UpsertProductCommand {
	stock := make([]services.SizeStock, 0, len(req.Stock))
	for _, s := range req.Stock {
		stock = append(stock, services.SizeStock(s))
	}
	return services.UpsertProductCommand{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		PurchaseURL: req.PurchaseURL,
		Category:    req.Category,
		Published:   req.Published,
		Recommended: req.Recommended,
		ImageURLs:   req.ImageURLs,
		Stock:       stock,
	}
}

func (h *CatalogHandlers) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeUnavailable(ctx, w, "catalog service")
		return
	}
	var req productRequest
	if err := httpx.DecodeJSON(r, maxProductBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	product, err := h.catalog.CreateProduct(ctx, req.command(""))
	if err != nil {
		writeServiceError(ctx, w, err, "product_not_found")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, newProductPayload(product))
}

func (h *CatalogHandlers) update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeUnavailable(ctx, w, "catalog service")
		return
	}
	var req productRequest
	if err := httpx.DecodeJSON(r, maxProductBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	product, err := h.catalog.UpdateProduct(ctx, req.command(chi.URLParam(r, "productID")))
	if err != nil {
		writeServiceError(ctx, w, err, "product_not_found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newProductPayload(product))
}

func (h *CatalogHandlers) delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeUnavailable(ctx, w, "catalog service")
		return
	}
	if err := h.catalog.DeleteProduct(ctx, chi.URLParam(r, "productID")); err != nil {
		writeServiceError(ctx, w, err, "product_not_found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type imageUploadRequest struct {
	ContentType string `json:"contentType"`
}

type imageUploadResponse struct {
	UploadURL string `json:"uploadUrl"`
	PublicURL string `json:"publicUrl"`
	ObjectKey string `json:"objectKey"`
	ExpiresAt string `json:"expiresAt"`
}

func (h *CatalogHandlers) imageUploadURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeUnavailable(ctx, w, "catalog service")
		return
	}
	var req imageUploadRequest
	if err := httpx.DecodeJSON(r, 0, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	upload, err := h.catalog.ImageUploadURL(ctx, chi.URLParam(r, "productID"), req.ContentType)
	if err != nil {
		writeServiceError(ctx, w, err, "product_not_found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, imageUploadResponse{
		UploadURL: upload.UploadURL,
		PublicURL: upload.PublicURL,
		ObjectKey: upload.ObjectKey,
		ExpiresAt: formatTime(upload.ExpiresAt),
	})
}
