package payment

import (
	"context"
	"fmt"

	"passaddis/internal/payment/chapa"
	"passaddis/internal/payment/telebirr"
)

// Factory creates providers from their gateway-specific configs.
type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) CreateProvider(name ProviderName, config interface{}) (Provider, error) {
	switch name {
	case ProviderChapa:
		cfg, ok := config.(*chapa.Config)
		if !ok {
			return nil, fmt.Errorf("payment: invalid chapa config type, expected *chapa.Config")
		}
		return NewChapaAdapter(cfg), nil

	case ProviderTelebirr:
		cfg, ok := config.(*telebirr.Config)
		if !ok {
			return nil, fmt.Errorf("payment: invalid telebirr config type, expected *telebirr.Config")
		}
		return NewTelebirrAdapter(cfg), nil

	case ProviderCBEBirr:
		// TODO: implement once CBE Birr merchant onboarding completes.
		return nil, fmt.Errorf("payment: cbebirr provider not implemented yet")

	default:
		return nil, fmt.Errorf("payment: unsupported provider: %s", name)
	}
}

func (f *Factory) SupportedProviders() []ProviderName {
	return []ProviderName{ProviderChapa, ProviderTelebirr}
}

// Registry holds the configured providers. The first registered one is the
// default for checkout initialization.
type Registry struct {
	providers map[ProviderName]Provider
	factory   *Factory
	primary   ProviderName
}

func NewRegistry(factory *Factory) *Registry {
	return &Registry{
		providers: make(map[ProviderName]Provider),
		factory:   factory,
	}
}

func (r *Registry) Register(name ProviderName, config interface{}) error {
	provider, err := r.factory.CreateProvider(name, config)
	if err != nil {
		return fmt.Errorf("payment: register %s: %w", name, err)
	}
	r.providers[name] = provider
	if r.primary == "" {
		r.primary = name
	}
	return nil
}

func (r *Registry) Provider(name ProviderName) (Provider, error) {
	provider, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("payment: provider %s not registered", name)
	}
	return provider, nil
}

func (r *Registry) Primary() (Provider, error) {
	if r.primary == "" {
		return nil, fmt.Errorf("payment: no providers registered")
	}
	return r.providers[r.primary], nil
}

func (r *Registry) Names() []ProviderName {
	names := make([]ProviderName, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

func (r *Registry) CloseAll(ctx context.Context) error {
	var firstErr error
	for name, provider := range r.providers {
		if err := provider.Close(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("payment: close %s: %w", name, err)
		}
	}
	return firstErr
}
