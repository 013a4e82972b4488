// Package model defines the API data structures of the price platform.
package model

import (
	"github.com/shopspring/decimal"

	"github.com/kainult/price-platform/internal/aggregate"
	"github.com/kainult/price-platform/internal/quote"
)

// Quote is one vendor listing as returned by the API.
type Quote struct {
	Vendor        string           `json:"vendor"`
	Price         decimal.Decimal  `json:"price"`
	OriginalPrice *decimal.Decimal `json:"original_price,omitempty"`
	Shipping      decimal.Decimal  `json:"shipping"`
	FreeShipping  bool             `json:"free_shipping"`
	InStock       bool             `json:"in_stock"`
	URL           string           `json:"url,omitempty"`

	LandedCost *decimal.Decimal `json:"landed_cost,omitempty"` // in-stock only
	Discount   *Discount        `json:"discount,omitempty"`
}

// Discount is the markdown from a quote's original price.
type Discount struct {
	Amount  decimal.Decimal `json:"amount"`
	Percent decimal.Decimal `json:"percent"`
}

// ProductSummary is a catalog listing entry.
type ProductSummary struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Category    string           `json:"category"`
	ImageURL    string           `json:"image_url,omitempty"`
	Rating      float64          `json:"rating"`
	Reviews     int              `json:"reviews"`
	LowestPrice *decimal.Decimal `json:"lowest_price,omitempty"`
	BestVendor  string           `json:"best_vendor,omitempty"`
	Savings     decimal.Decimal  `json:"savings"`
	Vendors     int              `json:"vendors"`
	Available   int              `json:"available"`
}

// ProductDetail is a product with its quotes ranked by landed cost.
type ProductDetail struct {
	ProductSummary
	Quotes []Quote `json:"quotes"`
}

// ListProductsResponse is the response for listing products.
type ListProductsResponse struct {
	Products []ProductSummary `json:"products"`
	Total    int              `json:"total"`
}

// ListCategoriesResponse is the response for listing categories.
type ListCategoriesResponse struct {
	Categories []string `json:"categories"`
}

// ListDealsResponse is the response for listing top deals.
type ListDealsResponse struct {
	Deals []ProductSummary `json:"deals"`
}

// NewQuote converts a domain quote.
func NewQuote(q quote.PriceQuote) Quote {
	out := Quote{
		Vendor:       q.Vendor(),
		Price:        q.Price(),
		Shipping:     q.Shipping(),
		FreeShipping: q.FreeShipping(),
		InStock:      q.InStock(),
		URL:          q.URL(),
	}
	if orig, ok := q.OriginalPrice(); ok {
		out.OriginalPrice = &orig
	}
	if cost, ok := q.LandedCost(); ok {
		out.LandedCost = &cost
	}
	if d, ok := aggregate.DiscountOf(q); ok {
		out.Discount = &Discount{Amount: d.Amount, Percent: d.Percent}
	}
	return out
}

// NewProductSummary builds a listing entry from a product and its summary.
func NewProductSummary(p quote.Product, s aggregate.Summary) ProductSummary {
	out := ProductSummary{
		ID:        p.ID(),
		Name:      p.Name(),
		Category:  p.Category(),
		ImageURL:  p.ImageURL(),
		Rating:    p.Rating(),
		Reviews:   p.Reviews(),
		Savings:   s.Savings,
		Vendors:   len(p.Quotes()),
		Available: s.Available,
	}
	if s.HasLowest {
		lowest := s.Lowest
		out.LowestPrice = &lowest
	}
	if best, ok := s.Best(); ok {
		out.BestVendor = best.Vendor()
	}
	return out
}

// NewProductDetail builds the detail view of p.
func NewProductDetail(p quote.Product) ProductDetail {
	s := aggregate.Summarize(p)
	quotes := make([]Quote, 0, len(s.Ranked))
	for _, q := range s.Ranked {
		quotes = append(quotes, NewQuote(q))
	}
	return ProductDetail{
		ProductSummary: NewProductSummary(p, s),
		Quotes:         quotes,
	}
}
