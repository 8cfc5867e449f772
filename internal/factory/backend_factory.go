package factory

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"FlowGuard/internal/config"
	"FlowGuard/internal/model"

	log "github.com/sirupsen/logrus"
)

// BackendFactory builds the classifier of a model variant. A nil classifier
// with a nil error means the variant deliberately predicts nothing.
type BackendFactory func(def config.VariantDef, timeout time.Duration) (model.Classifier, error)

var (
	mu       sync.RWMutex
	registry = make(map[string]BackendFactory)
)

func init() {
	RegisterBackend("none", func(config.VariantDef, time.Duration) (model.Classifier, error) {
		return nil, nil
	})
}

// RegisterBackend registers a classifier backend under name.
func RegisterBackend(name string, factory BackendFactory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("classifier backend '%s' already registered", name))
	}
	registry[name] = factory
}

// Create builds the classifier for one variant using its configured backend.
// An empty backend name selects "none".
func Create(def config.VariantDef, timeout time.Duration) (model.Classifier, error) {
	name := def.Backend
	if name == "" {
		name = "none"
	}

	mu.RLock()
	factory, ok := registry[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown classifier backend '%s' for variant '%s'", name, def.Name)
	}

	log.WithFields(log.Fields{"variant": def.Name, "backend": name}).Debug("Creating classifier backend")
	clf, err := factory(def, timeout)
	if err != nil {
		return nil, fmt.Errorf("error creating backend '%s' for variant '%s': %w", name, def.Name, err)
	}
	return clf, nil
}

// Backends lists the registered backend names.
func Backends() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
