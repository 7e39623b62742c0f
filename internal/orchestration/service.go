// Package orchestration drives an authentication transaction from inbound
// protocol request to protocol response, applying the authentication policy
// at each step.
package orchestration

import (
	"errors"

	"github.com/identio/identio-server-sub001/internal/authentication"
	"github.com/identio/identio-server-sub001/internal/authpolicy"
	"github.com/identio/identio-server-sub001/internal/metrics"
	"github.com/identio/identio-server-sub001/internal/model"
	"github.com/identio/identio-server-sub001/internal/storage"
)

// ErrInvalidTransaction is returned when a transaction id is unknown or
// bound to another user session.
var ErrInvalidTransaction = errors.New("orchestration: invalid transaction")

// SamlService is the SAML protocol adapter.
type SamlService interface {
	ValidateAuthentRequest(req model.SamlInboundRequest) *model.RequestParsingInfo
	GenerateSuccessResponse(info *model.RequestParsingInfo, authSession *model.AuthSession) (*model.ResponseData, error)
	GenerateErrorResponse(info *model.RequestParsingInfo, status model.ErrorStatus) (*model.ResponseData, error)
}

// OAuthService is the OAuth protocol adapter.
type OAuthService interface {
	ValidateAuthentRequest(req model.OAuthInboundRequest) *model.RequestParsingInfo
	GenerateSuccessResponse(info *model.RequestParsingInfo, authSession *model.AuthSession) (*model.ResponseData, error)
	GenerateErrorResponse(info *model.RequestParsingInfo, status model.ErrorStatus) (*model.ResponseData, error)
}

// ProxyInitiator starts a brokered authentication round with a remote
// identity provider.
type ProxyInitiator interface {
	InitRequest(method *model.AuthMethod, tx *model.TransactionData) (string, error)
}

// Service orchestrates authentication transactions.
type Service struct {
	policy        *authpolicy.Service
	authenticator *authentication.Service
	sessions      *storage.SessionStore
	transactions  *storage.TransactionStore

	saml  SamlService
	oauth OAuthService
	proxy ProxyInitiator

	metrics *metrics.Collector
}

// New wires the orchestration service. The proxy initiator may be nil when
// no brokered method is configured.
func New(policy *authpolicy.Service, authenticator *authentication.Service,
	sessions *storage.SessionStore, transactions *storage.TransactionStore,
	samlService SamlService, oauthService OAuthService, proxy ProxyInitiator,
	collector *metrics.Collector) *Service {

	return &Service{
		policy:        policy,
		authenticator: authenticator,
		sessions:      sessions,
		transactions:  transactions,
		saml:          samlService,
		oauth:         oauthService,
		proxy:         proxy,
		metrics:       collector,
	}
}

// successResponse renders the protocol success response for a transaction.
func (s *Service) successResponse(info *model.RequestParsingInfo,
	authSession *model.AuthSession) (*model.ResponseData, error) {

	if info.ProtocolType == model.ProtocolOAuth {
		return s.oauth.GenerateSuccessResponse(info, authSession)
	}
	return s.saml.GenerateSuccessResponse(info, authSession)
}

// errorResponse renders the protocol error response for a transaction.
func (s *Service) errorResponse(info *model.RequestParsingInfo,
	status model.ErrorStatus) (*model.ResponseData, error) {

	if info.ProtocolType == model.ProtocolOAuth {
		return s.oauth.GenerateErrorResponse(info, status)
	}
	return s.saml.GenerateErrorResponse(info, status)
}
