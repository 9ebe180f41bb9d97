package schema

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrCategoryExists is returned when a category name is defined twice
var ErrCategoryExists = errors.New("category already defined")

// Registry holds the categories of one server instance
type Registry struct {
	mu         sync.RWMutex
	categories map[string]*Category
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{categories: make(map[string]*Category)}
}

// Define validates and adds a new category. The name must not be in use.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (r *Registry) Define(name, payload string, keys []Key, indexed []string) (*Category, error) {
	c, err := newCategory(name, payload, keys, indexed)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.categories[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrCategoryExists, name)
	}
	r.categories[name] = c
	return c, nil
}

// Get returns the category with the given name
func (r *Registry) Get(name string) (*Category, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.categories[name]
	return c, ok
}

// Names returns all category names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.categories))
	for name := range r.categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
