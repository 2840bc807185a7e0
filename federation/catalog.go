package federation

import (
	"fmt"
	"sort"
	"sync"
)

// Catalog resolves implementation handles to factories. It is the single
// indirection point through which the shell obtains code for an exposed
// unit; a manifest only ever names handles.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

// Register binds handle to factory.
func (c *Catalog) Register(handle string, factory Factory) error {
	if handle == "" {
		return fmt.Errorf("%w: empty handle", ErrInvalidName)
	}
	if factory == nil {
		return fmt.Errorf("%w: handle %s", ErrNilFactory, handle)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.factories[handle]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHandle, handle)
	}
	c.factories[handle] = factory
	return nil
}

// Lookup returns the factory registered for handle.
func (c *Catalog) Lookup(handle string) (Factory, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	factory, ok := c.factories[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHandle, handle)
	}
	return factory, nil
}

// Handles returns all registered handles in sorted order.
func (c *Catalog) Handles() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	handles := make([]string, 0, len(c.factories))
	for h := range c.factories {
		handles = append(handles, h)
	}
	sort.Strings(handles)
	return handles
}
