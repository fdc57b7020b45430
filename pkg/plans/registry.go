package plans

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a plan of one kind
type Factory func(name string, options map[string]string, deps Dependencies) (FinancePlan, error)

var (
	// factories is the package-level registry of plan kinds
	factories = make(map[string]Factory)
	// mu protects concurrent access to factories
	mu sync.RWMutex
)

func init() {
	mustRegister(KindPrepaid, NewPrepaidPlan)
	mustRegister(KindPostpaid, NewPostpaidPlan)
}

func mustRegister(kind string, factory Factory) {
	if err := Register(kind, factory); err != nil {
		panic(err)
	}
}

// Register adds a plan kind to the registry
func Register(kind string, factory Factory) error {
	if kind == "" {
		return fmt.Errorf("cannot register plan kind with empty name")
	}
	if factory == nil {
		return fmt.Errorf("cannot register nil factory for plan kind %s", kind)
	}

	mu.Lock()
	defer mu.Unlock()

	if _, exists := factories[kind]; exists {
		return fmt.Errorf("plan kind already registered: %s", kind)
	}

	factories[kind] = factory
	return nil
}

// Unregister removes a plan kind from the registry
func Unregister(kind string) error {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := factories[kind]; !exists {
		return fmt.Errorf("plan kind not found: %s", kind)
	}

	delete(factories, kind)
	return nil
}

// Get retrieves the factory of a plan kind
func Get(kind string) (Factory, error) {
	mu.RLock()
	defer mu.RUnlock()

	factory, exists := factories[kind]
	if !exists {
		return nil, fmt.Errorf("plan kind not found: %s", kind)
	}

	return factory, nil
}

// Has checks if a plan kind is registered
func Has(kind string) bool {
	mu.RLock()
	defer mu.RUnlock()

	_, exists := factories[kind]
	return exists
}

// List returns the registered plan kinds in name order
func List() []string {
	mu.RLock()
	defer mu.RUnlock()

	result := make([]string, 0, len(factories))
	for kind := range factories {
		result = append(result, kind)
	}
	sort.Strings(result)

	return result
}
