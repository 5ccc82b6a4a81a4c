package provider

import (
	"fmt"

	"github.com/pulseboard/backend/internal/domain/connector"
	"github.com/pulseboard/backend/internal/domain/webhook"
)

// Bundle groups the three provider-specific implementations registered
// together for one provider
type Bundle struct {
	Client    connector.Client
	Verifier  webhook.Verifier
	Processor webhook.Processor
}

// Registry resolves provider clients, verifiers and processors by
// provider type. Registration happens once at wiring time; lookups are
// read-only afterwards, so no locking is needed.
type Registry struct {
	bundles map[connector.ProviderType]Bundle
}

// NewRegistry creates an empty provider registry
func NewRegistry() *Registry {
	return &Registry{
		bundles: make(map[connector.ProviderType]Bundle),
	}
}

var (
	_ connector.ClientRegistry  = (*Registry)(nil)
	_ webhook.VerifierRegistry  = (*Registry)(nil)
	_ webhook.ProcessorRegistry = (*Registry)(nil)
)

// Register adds a provider bundle. All three parts must agree on the
// provider type.
func (r *Registry) Register(bundle Bundle) error {
	if bundle.Client == nil || bundle.Verifier == nil || bundle.Processor == nil {
		return fmt.Errorf("provider: incomplete bundle")
	}
	provider := bundle.Client.Provider()
	if bundle.Verifier.Provider() != provider || bundle.Processor.Provider() != provider {
		return fmt.Errorf("provider: bundle parts disagree on provider type")
	}
	if !provider.IsValid() {
		return connector.ErrInvalidProvider
	}
	if _, exists := r.bundles[provider]; exists {
		return fmt.Errorf("provider: %s already registered", provider)
	}
	r.bundles[provider] = bundle
	return nil
}

// Client returns the provider client for the provider type
func (r *Registry) Client(provider connector.ProviderType) (connector.Client, error) {
	bundle, ok := r.bundles[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", connector.ErrUnsupportedProvider, provider)
	}
	return bundle.Client, nil
}

// Verifier returns the signature verifier for the provider type
func (r *Registry) Verifier(provider connector.ProviderType) (webhook.Verifier, error) {
	bundle, ok := r.bundles[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", webhook.ErrUnsupportedProvider, provider)
	}
	return bundle.Verifier, nil
}

// Processor returns the event processor for the provider type
func (r *Registry) Processor(provider connector.ProviderType) (webhook.Processor, error) {
	bundle, ok := r.bundles[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", webhook.ErrUnsupportedProvider, provider)
	}
	return bundle.Processor, nil
}

// Providers returns the registered provider types
func (r *Registry) Providers() []connector.ProviderType {
	out := make([]connector.ProviderType, 0, len(r.bundles))
	for provider := range r.bundles {
		out = append(out, provider)
	}
	return out
}
