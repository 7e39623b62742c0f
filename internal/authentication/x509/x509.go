// Package x509 implements transparent client-certificate authentication.
package x509

import (
	"context"
	stdx509 "crypto/x509"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/identio/identio-server-sub001/internal/authentication"
	"github.com/identio/identio-server-sub001/internal/logging"
	"github.com/identio/identio-server-sub001/internal/model"
)

// Provider validates TLS client certificates against a per-method trust
// anchor and derives the user id from the certificate subject.
type Provider struct {
	trustPools map[string]*stdx509.CertPool
}

// New loads the trust anchors and registers the provider as transparent for
// every X509 method.
func New(methods []*model.AuthMethod, dispatch *authentication.Service) (*Provider, error) {
	p := &Provider{
		trustPools: make(map[string]*stdx509.CertPool),
	}

	for _, method := range methods {
		if method.X509 == nil {
			return nil, fmt.Errorf("x509: method %s has no x509 settings", method.Name)
		}

		caCert, err := os.ReadFile(method.X509.TrustCertPath)
		if err != nil {
			return nil, fmt.Errorf("x509: method %s: failed to read trust cert: %w", method.Name, err)
		}
		pool := stdx509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("x509: method %s: failed to parse trust cert", method.Name)
		}
		p.trustPools[method.Name] = pool

		if err := dispatch.RegisterTransparent(method, p); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// Accepts reports whether the credential variant is a client certificate.
func (p *Provider) Accepts(authentication model.Authentication) bool {
	auth, ok := authentication.(model.X509Authentication)
	return ok && len(auth.Certificates) > 0
}

// Validate verifies the presented chain against the method's trust anchor.
func (p *Provider) Validate(_ context.Context, method *model.AuthMethod,
	auth model.Authentication, _ *model.TransactionData) *model.AuthenticationResult {

	credentials := auth.(model.X509Authentication)
	leaf := credentials.Certificates[0]

	intermediates := stdx509.NewCertPool()
	for _, cert := range credentials.Certificates[1:] {
		intermediates.AddCert(cert)
	}

	opts := stdx509.VerifyOptions{
		Roots:         p.trustPools[method.Name],
		Intermediates: intermediates,
		KeyUsages:     []stdx509.ExtKeyUsage{stdx509.ExtKeyUsageClientAuth},
	}

	if _, err := leaf.Verify(opts); err != nil {
		logging.Info("Client certificate rejected",
			zap.String("method", method.Name),
			zap.String("subject", leaf.Subject.String()),
			zap.Error(err))
		return &model.AuthenticationResult{
			Status:      model.AuthFail,
			ErrorStatus: model.ErrorAuthInvalidCredentials,
		}
	}

	userID := p.userID(method, leaf)
	if userID == "" {
		return &model.AuthenticationResult{
			Status:      model.AuthFail,
			ErrorStatus: model.ErrorAuthInvalidCredentials,
		}
	}

	logging.Info("User successfully authenticated",
		zap.String("user", userID),
		zap.String("method", method.Name))

	return &model.AuthenticationResult{
		Status:     model.AuthSuccess,
		UserID:     userID,
		AuthMethod: method,
		AuthLevel:  method.AuthLevel,
	}
}

func (p *Provider) userID(method *model.AuthMethod, cert *stdx509.Certificate) string {
	switch method.X509.UserIDAttr {
	case "", "cn":
		return cert.Subject.CommonName
	case "dn":
		return cert.Subject.String()
	case "email":
		if len(cert.EmailAddresses) > 0 {
			return cert.EmailAddresses[0]
		}
		return ""
	default:
		return cert.Subject.CommonName
	}
}
