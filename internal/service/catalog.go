// Package service provides business logic for the price platform.
package service

import (
	"context"
	"errors"
	"slices"

	"github.com/kainult/price-platform/internal/aggregate"
	"github.com/kainult/price-platform/internal/catalog"
	"github.com/kainult/price-platform/internal/model"
	"github.com/kainult/price-platform/pkg/logger"
	"github.com/kainult/price-platform/pkg/metrics"
)

// ErrProductNotFound is returned for an unknown product id.
var ErrProductNotFound = errors.New("product not found")

// CatalogService answers product and price comparison queries.
type CatalogService struct {
	store  *catalog.Store
	logger *logger.Logger
}

// NewCatalogService creates a new catalog service.
func NewCatalogService(store *catalog.Store, log *logger.Logger) *CatalogService {
	return &CatalogService{
		store:  store,
		logger: log,
	}
}

// List returns the summaries of products matching filter, in catalog order.
func (s *CatalogService) List(ctx context.Context, filter catalog.Filter) *model.ListProductsResponse {
	products := s.store.List(filter)

	out := make([]model.ProductSummary, 0, len(products))
	for _, p := range products {
		out = append(out, model.NewProductSummary(p, aggregate.Summarize(p)))
	}
	metrics.RecordAggregations("list", len(products))

	return &model.ListProductsResponse{
		Products: out,
		Total:    len(out),
	}
}

// Get returns one product with its ranked quotes.
func (s *CatalogService) Get(ctx context.Context, id string) (*model.ProductDetail, error) {
	p, ok := s.store.Get(id)
	if !ok {
		return nil, ErrProductNotFound
	}
	detail := model.NewProductDetail(p)
	metrics.RecordAggregations("detail", 1)
	return &detail, nil
}

// Categories returns the category names, starting with the catch-all.
func (s *CatalogService) Categories(ctx context.Context) *model.ListCategoriesResponse {
	return &model.ListCategoriesResponse{Categories: s.store.Categories()}
}

// TopDeals ranks products by savings, largest first. Ties go to the lower
// landed cost and then to catalog order. Products nobody has in stock are
// left out. A non-positive limit returns every deal.
func (s *CatalogService) TopDeals(ctx context.Context, limit int) *model.ListDealsResponse {
	products := s.store.List(catalog.Filter{})

	type deal struct {
		summary aggregate.Summary
		view    model.ProductSummary
	}
	deals := make([]deal, 0, len(products))
	for _, p := range products {
		sum := aggregate.Summarize(p)
		if !sum.HasLowest {
			continue
		}
		deals = append(deals, deal{summary: sum, view: model.NewProductSummary(p, sum)})
	}
	metrics.RecordAggregations("deals", len(products))

	slices.SortStableFunc(deals, func(a, b deal) int {
		if c := b.summary.Savings.Cmp(a.summary.Savings); c != 0 {
			return c
		}
		return a.summary.Lowest.Cmp(b.summary.Lowest)
	})

	if limit > 0 && len(deals) > limit {
		deals = deals[:limit]
	}

	out := make([]model.ProductSummary, 0, len(deals))
	for _, d := range deals {
		out = append(out, d.view)
	}
	return &model.ListDealsResponse{Deals: out}
}
