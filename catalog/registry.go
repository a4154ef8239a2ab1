package catalog

import (
	"fmt"
	"sync"
)

// The process-wide registry maps database names and ids to live Catalog
// instances; one catalog per database. Its lock is independent of any
// catalog's internal locks.
var registry = struct {
	mutex  sync.Mutex
	byName map[string]*Catalog
	byID   map[int]*Catalog
}{
	byName: map[string]*Catalog{},
	byID:   map[int]*Catalog{},
}

// Register publishes a catalog; registering a database twice is a
// programming error.
func Register(c *Catalog) {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()

	if _, ok := registry.byName[c.db.Name]; ok {
		panic(fmt.Sprintf("catalog: database %s is already registered", c.db.Name))
	}
	registry.byName[c.db.Name] = c
	registry.byID[c.db.ID] = c
}

// Get returns the live catalog for a database name, or nil.
func Get(name string) *Catalog {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()

	return registry.byName[name]
}

func GetByID(dbID int) *Catalog {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()

	return registry.byID[dbID]
}

// Remove drops a catalog from the registry; the caller owns closing it.
func Remove(name string) *Catalog {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()

	c, ok := registry.byName[name]
	if !ok {
		return nil
	}
	delete(registry.byName, name)
	delete(registry.byID, c.db.ID)
	return c
}
