// Package handler provides HTTP handlers for the API.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kainult/price-platform/internal/catalog"
	"github.com/kainult/price-platform/internal/middleware"
	"github.com/kainult/price-platform/internal/service"
	"github.com/kainult/price-platform/pkg/logger"
)

const (
	defaultDealsLimit = 3
	maxDealsLimit     = 50
)

// ProductHandler handles catalog endpoints.
type ProductHandler struct {
	service *service.CatalogService
	logger  *logger.Logger
}

// NewProductHandler creates a new product handler.
func NewProductHandler(svc *service.CatalogService, log *logger.Logger) *ProductHandler {
	return &ProductHandler{
		service: svc,
		logger:  log,
	}
}

// List handles GET /api/v1/products
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	query := r.URL.Query().Get("q")

	if err := middleware.ValidateFilter("category", category); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateFilter("q", query); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := h.service.List(r.Context(), catalog.Filter{Category: category, Query: query})
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/products/{id}
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := middleware.ValidateProductID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	detail, err := h.service.Get(r.Context(), id)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("failed to get product", zap.String("product_id", id), zap.Error(err))
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

// Categories handles GET /api/v1/categories
func (h *ProductHandler) Categories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Categories(r.Context()))
}

// Deals handles GET /api/v1/deals
func (h *ProductHandler) Deals(w http.ResponseWriter, r *http.Request) {
	limit, err := middleware.ParseLimit(r.URL.Query().Get("limit"), defaultDealsLimit, maxDealsLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, h.service.TopDeals(r.Context(), limit))
}
