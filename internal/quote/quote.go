// Package quote defines the immutable product and vendor quote values that
// the aggregation engine works on.
package quote

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ValidationError reports malformed input rejected at construction time.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// QuoteParams carries the raw fields of one vendor listing.
type QuoteParams struct {
	Vendor        string
	Price         decimal.Decimal
	OriginalPrice *decimal.Decimal
	Shipping      decimal.Decimal
	InStock       bool
	URL           string
}

// PriceQuote is one vendor's offer for a product. The zero value is not
// valid; use NewPriceQuote.
type PriceQuote struct {
	vendor        string
	price         decimal.Decimal
	originalPrice decimal.Decimal
	hasOriginal   bool
	shipping      decimal.Decimal
	inStock       bool
	url           string
}

// NewPriceQuote validates params and builds a PriceQuote.
func NewPriceQuote(p QuoteParams) (PriceQuote, error) {
	vendor := strings.TrimSpace(p.Vendor)
	if vendor == "" {
		return PriceQuote{}, invalid("vendor", "must not be empty")
	}
	if p.Price.IsNegative() {
		return PriceQuote{}, invalid("price", "must not be negative")
	}
	if p.Shipping.IsNegative() {
		return PriceQuote{}, invalid("shipping", "must not be negative")
	}

	q := PriceQuote{
		vendor:   vendor,
		price:    p.Price,
		shipping: p.Shipping,
		inStock:  p.InStock,
		url:      p.URL,
	}

	if p.OriginalPrice != nil {
		if p.OriginalPrice.LessThan(p.Price) {
			return PriceQuote{}, invalid("original_price", "must not be below the listed price")
		}
		q.originalPrice = *p.OriginalPrice
		q.hasOriginal = true
	}

	return q, nil
}

// Vendor returns the merchant name.
func (q PriceQuote) Vendor() string { return q.vendor }

// Price returns the listed price.
func (q PriceQuote) Price() decimal.Decimal { return q.price }

// OriginalPrice returns the pre-discount price, if the vendor advertises one.
func (q PriceQuote) OriginalPrice() (decimal.Decimal, bool) {
	return q.originalPrice, q.hasOriginal
}

// Shipping returns the shipping cost. Zero means free shipping.
func (q PriceQuote) Shipping() decimal.Decimal { return q.shipping }

// FreeShipping reports whether the vendor ships for free.
func (q PriceQuote) FreeShipping() bool { return q.shipping.IsZero() }

// InStock reports availability.
func (q PriceQuote) InStock() bool { return q.inStock }

// URL returns the outbound reference to the vendor listing.
func (q PriceQuote) URL() string { return q.url }

// LandedCost returns price plus shipping. It is undefined for unavailable
// quotes, in which case ok is false.
func (q PriceQuote) LandedCost() (cost decimal.Decimal, ok bool) {
	if !q.inStock {
		return decimal.Decimal{}, false
	}
	return q.price.Add(q.shipping), true
}

// ProductParams carries the raw fields of a catalog product.
type ProductParams struct {
	ID       string
	Name     string
	Category string
	ImageURL string
	Rating   float64
	Reviews  int
	Quotes   []PriceQuote
}

// Product is a catalog item with its vendor quotes in presentation order.
type Product struct {
	id       string
	name     string
	category string
	imageURL string
	rating   float64
	reviews  int
	quotes   []PriceQuote
}

// NewProduct validates params and builds a Product. An empty quote list is
// allowed.
func NewProduct(p ProductParams) (Product, error) {
	if strings.TrimSpace(p.ID) == "" {
		return Product{}, invalid("id", "must not be empty")
	}
	if strings.TrimSpace(p.Name) == "" {
		return Product{}, invalid("name", "must not be empty")
	}
	if math.IsNaN(p.Rating) || p.Rating < 0 || p.Rating > 5 {
		return Product{}, invalid("rating", fmt.Sprintf("%g is outside [0,5]", p.Rating))
	}
	if p.Reviews < 0 {
		return Product{}, invalid("reviews", "must not be negative")
	}

	quotes := make([]PriceQuote, len(p.Quotes))
	copy(quotes, p.Quotes)

	return Product{
		id:       p.ID,
		name:     p.Name,
		category: p.Category,
		imageURL: p.ImageURL,
		rating:   p.Rating,
		reviews:  p.Reviews,
		quotes:   quotes,
	}, nil
}

// ID returns the catalog identifier.
func (p Product) ID() string { return p.id }

// Name returns the display name.
func (p Product) Name() string { return p.name }

// Category returns the category tag.
func (p Product) Category() string { return p.category }

// ImageURL returns the product image reference.
func (p Product) ImageURL() string { return p.imageURL }

// Rating returns the average rating in [0,5].
func (p Product) Rating() float64 { return p.rating }

// Reviews returns the review count.
func (p Product) Reviews() int { return p.reviews }

// Quotes returns a copy of the vendor quotes in presentation order.
func (p Product) Quotes() []PriceQuote {
	out := make([]PriceQuote, len(p.quotes))
	copy(out, p.quotes)
	return out
}
