package catalog

import (
	"sync"

	"github.com/kainult/price-platform/internal/quote"
	"github.com/kainult/price-platform/pkg/metrics"
)

// Store holds the current catalog and lets it be swapped while readers
// are active.
type Store struct {
	mu      sync.RWMutex
	current *Catalog
}

// NewStore creates a store serving c.
func NewStore(c *Catalog) *Store {
	s := &Store{}
	s.Replace(c)
	return s
}

// Replace swaps in a new catalog.
func (s *Store) Replace(c *Catalog) {
	s.mu.Lock()
	s.current = c
	s.mu.Unlock()
	metrics.RecordCatalogReload(true, c.Len())
}

// Current returns the catalog in effect.
func (s *Store) Current() *Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// List returns products matching f.
func (s *Store) List(f Filter) []quote.Product {
	return s.Current().List(f)
}

// Get looks a product up by id.
func (s *Store) Get(id string) (quote.Product, bool) {
	return s.Current().Get(id)
}

// Categories returns the category names.
func (s *Store) Categories() []string {
	return s.Current().Categories()
}

// Len returns the number of products.
func (s *Store) Len() int {
	return s.Current().Len()
}
