// Package ldap implements directory-backed password authentication.
package ldap

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"

	"github.com/identio/identio-server-sub001/internal/authentication"
	"github.com/identio/identio-server-sub001/internal/logging"
	"github.com/identio/identio-server-sub001/internal/model"
)

const dialTimeout = 10 * time.Second

// Provider verifies user/password credentials with a search-then-bind
// against one of the configured directory servers.
type Provider struct {
	tlsConfigs map[string]*tls.Config
}

// New prepares the per-method TLS trust and registers the provider for every
// LDAP method.
func New(methods []*model.AuthMethod, dispatch *authentication.Service) (*Provider, error) {
	p := &Provider{
		tlsConfigs: make(map[string]*tls.Config),
	}

	for _, method := range methods {
		if method.LDAP == nil {
			return nil, fmt.Errorf("ldap: method %s has no ldap settings", method.Name)
		}
		if len(method.LDAP.URLs) == 0 {
			return nil, fmt.Errorf("ldap: method %s has no server urls", method.Name)
		}

		if method.LDAP.TrustCertPath != "" {
			caCert, err := os.ReadFile(method.LDAP.TrustCertPath)
			if err != nil {
				return nil, fmt.Errorf("ldap: method %s: failed to read trust cert: %w", method.Name, err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caCert) {
				return nil, fmt.Errorf("ldap: method %s: failed to parse trust cert", method.Name)
			}
			p.tlsConfigs[method.Name] = &tls.Config{RootCAs: pool}
		}

		if err := dispatch.RegisterExplicit(method, p); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// Accepts reports whether the credential variant is a user/password pair.
func (p *Provider) Accepts(authentication model.Authentication) bool {
	_, ok := authentication.(model.UserPasswordAuthentication)
	return ok
}

// Validate searches the user and verifies the password with a bind. Servers
// are tried in configuration order; the first one that answers decides.
func (p *Provider) Validate(ctx context.Context, method *model.AuthMethod,
	auth model.Authentication, _ *model.TransactionData) *model.AuthenticationResult {

	credentials := auth.(model.UserPasswordAuthentication)

	if credentials.UserID == "" || credentials.Password == "" {
		return &model.AuthenticationResult{
			Status:      model.AuthFail,
			ErrorStatus: model.ErrorAuthInvalidCredentials,
		}
	}

	var lastErr error
	for _, serverURL := range method.LDAP.URLs {
		conn, err := p.dial(ctx, method, serverURL)
		if err != nil {
			lastErr = err
			continue
		}

		result := p.bindUser(conn, method, credentials)
		conn.Close()
		return result
	}

	logging.Error("No LDAP server reachable",
		zap.String("method", method.Name),
		zap.Error(lastErr))

	return &model.AuthenticationResult{
		Status:      model.AuthFail,
		ErrorStatus: model.ErrorAuthTechnicalError,
	}
}

func (p *Provider) dial(ctx context.Context, method *model.AuthMethod, serverURL string) (*ldap.Conn, error) {
	dialer := &net.Dialer{Timeout: dialTimeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}

	opts := []ldap.DialOpt{ldap.DialWithDialer(dialer)}
	if tlsCfg, ok := p.tlsConfigs[method.Name]; ok {
		opts = append(opts, ldap.DialWithTLSConfig(tlsCfg))
	}

	return ldap.DialURL(serverURL, opts...)
}

func (p *Provider) bindUser(conn *ldap.Conn, method *model.AuthMethod,
	credentials model.UserPasswordAuthentication) *model.AuthenticationResult {

	settings := method.LDAP

	// Service-account bind for the user search, when configured.
	if settings.BindDN != "" {
		if err := conn.Bind(settings.BindDN, settings.BindPassword); err != nil {
			logging.Error("LDAP service bind failed",
				zap.String("method", method.Name), zap.Error(err))
			return &model.AuthenticationResult{
				Status:      model.AuthFail,
				ErrorStatus: model.ErrorAuthTechnicalError,
			}
		}
	}

	searchBase := settings.UserSearchBase
	if searchBase == "" {
		searchBase = settings.BaseDN
	}
	filter := strings.ReplaceAll(settings.UserFilter, "{{username}}",
		ldap.EscapeFilter(credentials.UserID))

	search := ldap.NewSearchRequest(searchBase, ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases, 2, 0, false, filter, []string{"dn"}, nil)

	res, err := conn.Search(search)
	if err != nil {
		logging.Error("LDAP user search failed",
			zap.String("method", method.Name), zap.Error(err))
		return &model.AuthenticationResult{
			Status:      model.AuthFail,
			ErrorStatus: model.ErrorAuthTechnicalError,
		}
	}

	if len(res.Entries) == 0 {
		return &model.AuthenticationResult{
			Status:      model.AuthFail,
			ErrorStatus: model.ErrorAuthInvalidCredentials,
		}
	}
	if len(res.Entries) > 1 {
		logging.Error("LDAP search matched several users",
			zap.String("method", method.Name),
			zap.String("user", credentials.UserID))
		return &model.AuthenticationResult{
			Status:      model.AuthFail,
			ErrorStatus: model.ErrorAuthInvalidCredentials,
		}
	}

	userDN := res.Entries[0].DN
	if err := conn.Bind(userDN, credentials.Password); err != nil {
		logging.Info("Failed authentication",
			zap.String("user", credentials.UserID),
			zap.String("method", method.Name))
		return &model.AuthenticationResult{
			Status:      model.AuthFail,
			ErrorStatus: model.ErrorAuthInvalidCredentials,
		}
	}

	logging.Info("User successfully authenticated",
		zap.String("user", credentials.UserID),
		zap.String("method", method.Name))

	return &model.AuthenticationResult{
		Status:     model.AuthSuccess,
		UserID:     credentials.UserID,
		AuthMethod: method,
		AuthLevel:  method.AuthLevel,
	}
}
