// Package catalog loads the product catalog from TOML and serves it from
// memory.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"

	"github.com/kainult/price-platform/internal/quote"
)

// AllCategories is the pseudo category that matches every product.
const AllCategories = "Visi"

//go:embed seed.toml
var seedTOML string

type fileCatalog struct {
	Categories []string      `toml:"categories"`
	Products   []fileProduct `toml:"products"`
}

type fileProduct struct {
	ID       string      `toml:"id"`
	Name     string      `toml:"name"`
	Category string      `toml:"category"`
	Image    string      `toml:"image"`
	Rating   float64     `toml:"rating"`
	Reviews  int         `toml:"reviews"`
	Quotes   []fileQuote `toml:"quotes"`
}

type fileQuote struct {
	Vendor        string           `toml:"vendor"`
	Price         decimal.Decimal  `toml:"price"`
	OriginalPrice *decimal.Decimal `toml:"original_price"`
	Shipping      decimal.Decimal  `toml:"shipping"`
	InStock       bool             `toml:"in_stock"`
	URL           string           `toml:"url"`
}

// Catalog is an immutable, validated set of products in file order.
type Catalog struct {
	products   []quote.Product
	byID       map[string]int
	categories []string
}

// Seed returns the built-in sample catalog.
func Seed() (*Catalog, error) {
	return Parse(seedTOML)
}

// Parse decodes and validates a TOML catalog document.
func Parse(data string) (*Catalog, error) {
	var fc fileCatalog
	md, err := toml.Decode(data, &fc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	return build(fc, md)
}

// LoadFile reads and validates the TOML catalog at path.
func LoadFile(path string) (*Catalog, error) {
	var fc fileCatalog
	md, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode catalog %s: %w", path, err)
	}
	return build(fc, md)
}

func build(fc fileCatalog, md toml.MetaData) (*Catalog, error) {
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown catalog keys: %v", undecoded)
	}

	c := &Catalog{
		products: make([]quote.Product, 0, len(fc.Products)),
		byID:     make(map[string]int, len(fc.Products)),
	}

	for i, fp := range fc.Products {
		p, err := buildProduct(fp)
		if err != nil {
			return nil, fmt.Errorf("product #%d (%q): %w", i+1, fp.ID, err)
		}
		if _, dup := c.byID[p.ID()]; dup {
			return nil, fmt.Errorf("product #%d: duplicate id %q", i+1, p.ID())
		}
		c.byID[p.ID()] = len(c.products)
		c.products = append(c.products, p)
	}

	c.categories = categoriesOf(fc.Categories, c.products)
	return c, nil
}

func buildProduct(fp fileProduct) (quote.Product, error) {
	quotes := make([]quote.PriceQuote, 0, len(fp.Quotes))
	for j, fq := range fp.Quotes {
		q, err := quote.NewPriceQuote(quote.QuoteParams{
			Vendor:        fq.Vendor,
			Price:         fq.Price,
			OriginalPrice: fq.OriginalPrice,
			Shipping:      fq.Shipping,
			InStock:       fq.InStock,
			URL:           fq.URL,
		})
		if err != nil {
			return quote.Product{}, fmt.Errorf("quote #%d: %w", j+1, err)
		}
		quotes = append(quotes, q)
	}

	return quote.NewProduct(quote.ProductParams{
		ID:       strings.TrimSpace(fp.ID),
		Name:     fp.Name,
		Category: fp.Category,
		ImageURL: fp.Image,
		Rating:   fp.Rating,
		Reviews:  fp.Reviews,
		Quotes:   quotes,
	})
}

// categoriesOf keeps the declared order, puts AllCategories first and
// appends any product category that was not declared.
func categoriesOf(declared []string, products []quote.Product) []string {
	out := []string{AllCategories}
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" || slices.Contains(out, name) {
			return
		}
		out = append(out, name)
	}
	for _, name := range declared {
		add(name)
	}
	for _, p := range products {
		add(p.Category())
	}
	return out
}

// Len returns the number of products.
func (c *Catalog) Len() int { return len(c.products) }

// Products returns the products in file order.
func (c *Catalog) Products() []quote.Product {
	return slices.Clone(c.products)
}

// Categories returns the category names, starting with AllCategories.
func (c *Catalog) Categories() []string {
	return slices.Clone(c.categories)
}

// Get looks a product up by id.
func (c *Catalog) Get(id string) (quote.Product, bool) {
	i, ok := c.byID[id]
	if !ok {
		return quote.Product{}, false
	}
	return c.products[i], true
}

// Filter narrows a product listing.
type Filter struct {
	// Category matches exactly, ignoring case. Empty or AllCategories
	// matches everything.
	Category string
	// Query is a case-insensitive substring of the name or category.
	Query string
}

func (f Filter) matches(p quote.Product) bool {
	if f.Category != "" && !strings.EqualFold(f.Category, AllCategories) &&
		!strings.EqualFold(f.Category, p.Category()) {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(p.Name()), q) ||
		strings.Contains(strings.ToLower(p.Category()), q)
}

// List returns the products matching f in file order.
func (c *Catalog) List(f Filter) []quote.Product {
	out := make([]quote.Product, 0, len(c.products))
	for _, p := range c.products {
		if f.matches(p) {
			out = append(out, p)
		}
	}
	return out
}

// IsValidation reports whether err was caused by malformed product data.
func IsValidation(err error) bool {
	var ve *quote.ValidationError
	return errors.As(err, &ve)
}
