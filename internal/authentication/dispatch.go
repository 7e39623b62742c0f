// Package authentication routes credential submissions to the pluggable
// authentication providers.
package authentication

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/identio/identio-server-sub001/internal/logging"
	"github.com/identio/identio-server-sub001/internal/model"
)

// Provider verifies credentials for the methods it was registered with.
// Accepts is a capability check over the concrete credential variant;
// Validate is only invoked after Accepts returns true.
//
// Providers may block on network or disk (LDAP bind, upstream IdP round
// trip) and must honor ctx cancellation from the HTTP layer.
type Provider interface {
	Accepts(authentication model.Authentication) bool
	Validate(ctx context.Context, method *model.AuthMethod, authentication model.Authentication,
		transaction *model.TransactionData) *model.AuthenticationResult
}

type transparentEntry struct {
	method   *model.AuthMethod
	provider Provider
}

// Service is the dispatch registry. It is populated at startup by the
// provider constructors and never mutated afterwards, so request-time reads
// need no synchronization.
type Service struct {
	explicit        map[string]Provider
	explicitMethods map[string]*model.AuthMethod
	transparent     []transparentEntry
}

// NewService creates an empty dispatch registry.
func NewService() *Service {
	return &Service{
		explicit:        make(map[string]Provider),
		explicitMethods: make(map[string]*model.AuthMethod),
	}
}

// RegisterExplicit binds a user-initiated method to its provider. Method
// names are a flat namespace: collisions are a configuration error.
func (s *Service) RegisterExplicit(method *model.AuthMethod, provider Provider) error {
	logging.Info("Registering explicit authentication method", zap.String("method", method.Name))

	if _, exists := s.explicit[method.Name]; exists {
		return fmt.Errorf("authentication method name already in use: %s", method.Name)
	}
	s.explicit[method.Name] = provider
	s.explicitMethods[method.Name] = method
	return nil
}

// RegisterTransparent binds an ambient method to its provider. Transparent
// providers are consulted in registration order.
func (s *Service) RegisterTransparent(method *model.AuthMethod, provider Provider) error {
	logging.Info("Registering transparent authentication method", zap.String("method", method.Name))

	for _, entry := range s.transparent {
		if entry.method.Equal(method) {
			return fmt.Errorf("authentication method name already in use: %s", method.Name)
		}
	}
	s.transparent = append(s.transparent, transparentEntry{method: method, provider: provider})
	return nil
}

// ValidateExplicit routes a credential submission to the provider bound to
// the method. A nil result means the provider declined the credential
// variant.
func (s *Service) ValidateExplicit(ctx context.Context, method *model.AuthMethod,
	authentication model.Authentication, transaction *model.TransactionData) *model.AuthenticationResult {

	provider, ok := s.explicit[method.Name]
	if !ok {
		return nil
	}
	if !provider.Accepts(authentication) {
		return nil
	}
	return provider.Validate(ctx, method, authentication, transaction)
}

// ValidateTransparent scans the transparent providers in registration order
// and returns the first non-FAIL result from a provider that accepts the
// credential's runtime variant. It returns nil when no provider accepts or
// all of them fail.
func (s *Service) ValidateTransparent(ctx context.Context, authentication model.Authentication,
	transaction *model.TransactionData) *model.AuthenticationResult {

	for _, entry := range s.transparent {
		if !entry.provider.Accepts(authentication) {
			continue
		}
		result := entry.provider.Validate(ctx, entry.method, authentication, transaction)
		if result != nil && result.Status != model.AuthFail {
			return result
		}
	}

	return nil
}
