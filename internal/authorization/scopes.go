// Package authorization holds the registry of grantable OAuth scopes.
package authorization

import (
	"errors"
	"fmt"

	"github.com/identio/identio-server-sub001/internal/authpolicy"
	"github.com/identio/identio-server-sub001/internal/config"
	"github.com/identio/identio-server-sub001/internal/model"
)

var (
	ErrNoScopeProvided = errors.New("authorization: no scope provided")
	ErrUnknownScope    = errors.New("authorization: unknown scope")
)

// Service resolves scope names against the configured registry.
type Service struct {
	scopes map[string]*model.AuthorizationScope
}

// New builds the scope registry, resolving each scope's minimum
// authentication level against the policy.
func New(cfg *config.Config, policy *authpolicy.Service) (*Service, error) {
	s := &Service{
		scopes: make(map[string]*model.AuthorizationScope, len(cfg.Authorization.Scopes)),
	}

	for _, sc := range cfg.Authorization.Scopes {
		scope := &model.AuthorizationScope{
			Name:        sc.Name,
			Description: sc.Description,
			Expiration:  sc.Expiration,
		}
		if sc.AuthLevel != "" {
			level, err := policy.LevelByName(sc.AuthLevel)
			if err != nil {
				return nil, fmt.Errorf("authorization: scope %s: %w", sc.Name, err)
			}
			scope.AuthLevel = level
		}
		s.scopes[sc.Name] = scope
	}

	return s, nil
}

// GetScopes resolves the requested scope names. All names must be known and
// at least one must be provided.
func (s *Service) GetScopes(names []string) ([]*model.AuthorizationScope, error) {
	if len(names) == 0 {
		return nil, ErrNoScopeProvided
	}

	scopes := make([]*model.AuthorizationScope, 0, len(names))
	for _, name := range names {
		scope, ok := s.scopes[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownScope, name)
		}
		scopes = append(scopes, scope)
	}
	return scopes, nil
}
