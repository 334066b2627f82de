package routing

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shaharz/lumen/internal/domain"
)

// Directory enumerates the directly-integrated single-model providers the
// last routing rule consults. Registration happens once at startup; lookups
// are concurrent.
type Directory struct {
	mu      sync.RWMutex
	byModel map[string]domain.Provider
}

// NewDirectory creates an empty provider directory.
func NewDirectory() *Directory {
	return &Directory{
		byModel: make(map[string]domain.Provider),
	}
}

// Register binds one or more model identifiers to a provider.
func (d *Directory) Register(provider domain.Provider, models ...string) error {
	if provider == nil {
		return errors.New("provider cannot be nil")
	}

	if len(models) == 0 {
		return errors.New("at least one model is required")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, model := range models {
		if model == "" {
			return errors.New("model identifier cannot be empty")
		}
		if existing, taken := d.byModel[model]; taken {
			return fmt.Errorf("model %s already registered to provider %s", model, existing.Name())
		}
	}

	for _, model := range models {
		d.byModel[model] = provider
	}

	return nil
}

// Lookup returns the provider registered for a model.
func (d *Directory) Lookup(model string) (domain.Provider, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	provider, ok := d.byModel[model]
	return provider, ok
}

// Models returns all registered model identifiers.
func (d *Directory) Models() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	models := make([]string, 0, len(d.byModel))
	for model := range d.byModel {
		models = append(models, model)
	}
	return models
}

// Providers returns the distinct providers in the directory.
func (d *Directory) Providers() []domain.Provider {
	d.mu.RLock()
	defer d.mu.RUnlock()

	seen := make(map[string]struct{}, len(d.byModel))
	providers := make([]domain.Provider, 0, len(d.byModel))
	for _, provider := range d.byModel {
		if _, dup := seen[provider.Name()]; dup {
			continue
		}
		seen[provider.Name()] = struct{}{}
		providers = append(providers, provider)
	}
	return providers
}
