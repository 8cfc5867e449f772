package classifier

import (
	"errors"
	"fmt"
	"sync"

	"FlowGuard/internal/config"
	"FlowGuard/internal/model"
)

// ErrUnknownModel is returned when selecting a variant that is not configured.
var ErrUnknownModel = errors.New("unknown model variant")

// Variant names a selectable model and the input mode it consumes.
type Variant struct {
	Name    string     `json:"name"`
	Mode    model.Mode `json:"mode"`
	Backend string     `json:"backend"`
}

// Selector holds the name of the active model variant.
type Selector struct {
	mu       sync.RWMutex
	active   string
	variants []Variant
	modes    map[string]model.Mode
}

// NewSelector creates a selector over the configured variants.
func NewSelector(cfg config.ClassifierConfig) (*Selector, error) {
	s := &Selector{modes: make(map[string]model.Mode, len(cfg.Variants))}
	for _, v := range cfg.Variants {
		backend := v.Backend
		if backend == "" {
			backend = "none"
		}
		s.variants = append(s.variants, Variant{Name: v.Name, Mode: model.Mode(v.Mode), Backend: backend})
		s.modes[v.Name] = model.Mode(v.Mode)
	}
	if _, ok := s.modes[cfg.Active]; !ok {
		return nil, fmt.Errorf("active variant %q: %w", cfg.Active, ErrUnknownModel)
	}
	s.active = cfg.Active
	return s, nil
}

// Active returns the active variant name.
func (s *Selector) Active() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// ActiveMode returns the input mode of the active variant.
func (s *Selector) ActiveMode() model.Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modes[s.active]
}

// ActiveVariant returns the active variant name and its mode as one consistent pair.
func (s *Selector) ActiveVariant() (string, model.Mode) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active, s.modes[s.active]
}

// Select switches the active variant.
func (s *Selector) Select(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.modes[name]; !ok {
		return fmt.Errorf("%q: %w", name, ErrUnknownModel)
	}
	s.active = name
	return nil
}

// Variants lists the configured variants in configuration order.
func (s *Selector) Variants() []Variant {
	out := make([]Variant, len(s.variants))
	copy(out, s.variants)
	return out
}
