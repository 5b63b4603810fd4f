package source

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/adrecon/backend/internal/domain/integration"
	"github.com/adrecon/backend/internal/infrastructure/config"
)

// Registry implements integration.SourceRegistry
type Registry struct {
	mu     sync.RWMutex
	ads    map[integration.ProviderCode]integration.AdInsightClient
	orders map[integration.ProviderCode]integration.OrderClient
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		ads:    make(map[integration.ProviderCode]integration.AdInsightClient),
		orders: make(map[integration.ProviderCode]integration.OrderClient),
	}
}

// NewDefaultRegistry registers the Meta and Pancake adapters built from cfg
func NewDefaultRegistry(cfg *config.SourcesConfig, resolver integration.CredentialResolver, observer Observer, logger *zap.Logger) (*Registry, error) {
	opts := ClientOptions{
		Timeout:         cfg.HTTPTimeout,
		RetryBackoff:    cfg.RetryBackoff,
		MaxResponseSize: cfg.MaxResponseSize,
		Observer:        observer,
		Logger:          logger,
	}

	meta, err := NewMetaAdapter(MetaConfig{
		BaseURL:    cfg.MetaBaseURL,
		APIVersion: cfg.MetaAPIVersion,
		PageLimit:  cfg.MetaPageLimit,
	}, resolver, opts)
	if err != nil {
		return nil, err
	}
	pancake, err := NewPancakeAdapter(PancakeConfig{
		BaseURL:  cfg.PancakeBaseURL,
		PageSize: cfg.PancakePageSize,
	}, resolver, opts)
	if err != nil {
		return nil, err
	}

	r := NewRegistry()
	r.RegisterAdInsightClient(meta)
	r.RegisterOrderClient(pancake)
	return r, nil
}

// RegisterAdInsightClient adds or replaces the client for its provider
func (r *Registry) RegisterAdInsightClient(c integration.AdInsightClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ads[c.Provider()] = c
}

// RegisterOrderClient adds or replaces the client for its provider
func (r *Registry) RegisterOrderClient(c integration.OrderClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[c.Provider()] = c
}

// AdInsightClient returns the ads client for code
func (r *Registry) AdInsightClient(code integration.ProviderCode) (integration.AdInsightClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.ads[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", integration.ErrProviderNotRegistered, code)
	}
	return c, nil
}

// OrderClient returns the POS client for code
func (r *Registry) OrderClient(code integration.ProviderCode) (integration.OrderClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.orders[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", integration.ErrProviderNotRegistered, code)
	}
	return c, nil
}

var _ integration.SourceRegistry = (*Registry)(nil)
