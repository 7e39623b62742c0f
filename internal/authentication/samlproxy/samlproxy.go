// Package samlproxy brokers authentication to an upstream SAML identity
// provider. The server acts as a service provider towards the remote IdP
// and maps the authentication context it returns back to a local level.
package samlproxy

import (
	"context"
	"crypto"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/crewjam/saml"
	"github.com/crewjam/saml/samlsp"
	dsig "github.com/russellhaering/goxmldsig"
	"go.uber.org/zap"

	"github.com/identio/identio-server-sub001/internal/authentication"
	"github.com/identio/identio-server-sub001/internal/authpolicy"
	"github.com/identio/identio-server-sub001/internal/logging"
	"github.com/identio/identio-server-sub001/internal/model"
)

// ACSPath is the assertion consumer endpoint for responses coming back
// from proxied identity providers.
const ACSPath = "/saml/proxy/acs"

type remoteIdP struct {
	sp     *saml.ServiceProvider
	outMap map[string]string // local level name -> remote context class URN
	inMap  map[string]string // remote context class URN -> local level name
}

// Provider implements explicit authentication through remote SAML IdPs.
type Provider struct {
	policy  *authpolicy.Service
	remotes map[string]*remoteIdP
}

// New builds a service provider for each SAML proxy method and registers
// the provider as explicit for all of them.
func New(methods []*model.AuthMethod, policy *authpolicy.Service, baseURL string,
	cert *x509.Certificate, key crypto.Signer, dispatch *authentication.Service) (*Provider, error) {

	p := &Provider{
		policy:  policy,
		remotes: make(map[string]*remoteIdP),
	}

	acsURL, err := url.Parse(baseURL + ACSPath)
	if err != nil {
		return nil, fmt.Errorf("samlproxy: invalid base url: %w", err)
	}
	entityURL, err := url.Parse(baseURL + "/saml/metadata")
	if err != nil {
		return nil, fmt.Errorf("samlproxy: invalid base url: %w", err)
	}

	for _, method := range methods {
		cfg := method.SamlProxy
		if cfg == nil {
			return nil, fmt.Errorf("samlproxy: method %s has no saml proxy settings", method.Name)
		}

		idpMetadata, err := loadRemoteMetadata(cfg)
		if err != nil {
			return nil, fmt.Errorf("samlproxy: method %s: %w", method.Name, err)
		}

		sp := &saml.ServiceProvider{
			EntityID:          entityURL.String(),
			Key:               key,
			Certificate:       cert,
			MetadataURL:       *entityURL,
			AcsURL:            *acsURL,
			IDPMetadata:       idpMetadata,
			AuthnNameIDFormat: saml.UnspecifiedNameIDFormat,
			SignatureMethod:   dsig.RSASHA256SignatureMethod,
		}

		inMap := make(map[string]string, len(cfg.OutMap))
		for levelName, contextClass := range cfg.OutMap {
			if _, err := policy.LevelByName(levelName); err != nil {
				return nil, fmt.Errorf("samlproxy: method %s maps unknown auth level %s", method.Name, levelName)
			}
			inMap[contextClass] = levelName
		}

		p.remotes[method.Name] = &remoteIdP{sp: sp, outMap: cfg.OutMap, inMap: inMap}

		if err := dispatch.RegisterExplicit(method, p); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func loadRemoteMetadata(cfg *model.SamlProxyMethod) (*saml.EntityDescriptor, error) {
	if cfg.MetadataURL != "" {
		metaURL, err := url.Parse(cfg.MetadataURL)
		if err != nil {
			return nil, fmt.Errorf("invalid metadata url: %w", err)
		}
		metadata, err := samlsp.FetchMetadata(context.Background(), http.DefaultClient, *metaURL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch remote metadata: %w", err)
		}
		return metadata, nil
	}

	// No metadata endpoint: assemble a descriptor from the configured SSO
	// endpoint and signing certificate.
	certData, err := os.ReadFile(cfg.CertPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read remote cert: %w", err)
	}
	block, _ := pem.Decode(certData)
	if block == nil {
		return nil, fmt.Errorf("failed to decode remote cert %s", cfg.CertPath)
	}
	if _, err := x509.ParseCertificate(block.Bytes); err != nil {
		return nil, fmt.Errorf("invalid remote cert: %w", err)
	}

	return &saml.EntityDescriptor{
		EntityID: cfg.EntityID,
		IDPSSODescriptors: []saml.IDPSSODescriptor{{
			SSODescriptor: saml.SSODescriptor{
				RoleDescriptor: saml.RoleDescriptor{
					KeyDescriptors: []saml.KeyDescriptor{{
						Use: "signing",
						KeyInfo: saml.KeyInfo{
							X509Data: saml.X509Data{
								X509Certificates: []saml.X509Certificate{
									{Data: base64.StdEncoding.EncodeToString(block.Bytes)},
								},
							},
						},
					}},
				},
			},
			SingleSignOnServices: []saml.Endpoint{
				{Binding: saml.HTTPRedirectBinding, Location: cfg.SSOEndpoint},
				{Binding: saml.HTTPPostBinding, Location: cfg.SSOEndpoint},
			},
		}},
	}, nil
}

// InitRequest builds a redirect to the remote IdP requesting one of the
// transaction's target levels and records the outbound request id on the
// transaction for the InResponseTo check.
func (p *Provider) InitRequest(method *model.AuthMethod, tx *model.TransactionData) (string, error) {
	remote, ok := p.remotes[method.Name]
	if !ok {
		return "", fmt.Errorf("samlproxy: unknown method %s", method.Name)
	}

	req, err := remote.sp.MakeAuthenticationRequest(
		remote.sp.GetSSOBindingLocation(saml.HTTPRedirectBinding),
		saml.HTTPRedirectBinding, saml.HTTPPostBinding)
	if err != nil {
		return "", fmt.Errorf("samlproxy: failed to build request: %w", err)
	}

	if class := p.requestedContextClass(remote, tx.TargetAuthLevels); class != "" {
		req.RequestedAuthnContext = &saml.RequestedAuthnContext{
			Comparison:           "minimum",
			AuthnContextClassRef: class,
		}
	}

	redirectURL, err := req.Redirect(tx.TransactionID, remote.sp)
	if err != nil {
		return "", fmt.Errorf("samlproxy: failed to build redirect: %w", err)
	}

	tx.SamlProxyRequestID = req.ID
	tx.SelectedAuthMethod = method

	logging.Info("Initiated SAML proxy request",
		zap.String("method", method.Name),
		zap.String("requestId", req.ID),
		zap.String("transactionId", tx.TransactionID))

	return redirectURL.String(), nil
}

// requestedContextClass picks the weakest mapped target level so the remote
// IdP is never asked for more than the transaction needs.
func (p *Provider) requestedContextClass(remote *remoteIdP, targetLevels []*model.AuthLevel) string {
	var selected *model.AuthLevel
	for _, level := range targetLevels {
		if _, ok := remote.outMap[level.Name]; !ok {
			continue
		}
		if selected == nil || level.Strength < selected.Strength {
			selected = level
		}
	}
	if selected == nil {
		return ""
	}
	return remote.outMap[selected.Name]
}

// Accepts reports whether the credential variant is a proxied SAML response.
func (p *Provider) Accepts(auth model.Authentication) bool {
	_, ok := auth.(model.SamlResponseAuthentication)
	return ok
}

// Validate checks the response from the remote IdP against the outbound
// request recorded on the transaction.
func (p *Provider) Validate(_ context.Context, method *model.AuthMethod,
	auth model.Authentication, tx *model.TransactionData) *model.AuthenticationResult {

	remote, ok := p.remotes[method.Name]
	if !ok {
		return &model.AuthenticationResult{Status: model.AuthFail, ErrorStatus: model.ErrorAuthMethodUnknown}
	}

	credentials := auth.(model.SamlResponseAuthentication)

	rawResponse, err := base64.StdEncoding.DecodeString(credentials.SerializedResponse)
	if err != nil {
		return &model.AuthenticationResult{Status: model.AuthFail, ErrorStatus: model.ErrorSamlInvalidProxyResp}
	}

	if tx.SamlProxyRequestID == "" {
		logging.Info("Received proxy response with no pending request",
			zap.String("method", method.Name),
			zap.String("transactionId", tx.TransactionID))
		return &model.AuthenticationResult{Status: model.AuthFail, ErrorStatus: model.ErrorSamlInvalidInResponse}
	}

	assertion, err := remote.sp.ParseXMLResponse(rawResponse, []string{tx.SamlProxyRequestID}, remote.sp.AcsURL)
	if err != nil {
		if statusErr := responseStatusError(rawResponse); statusErr != "" {
			logging.Info("Authentication rejected by remote identity provider",
				zap.String("method", method.Name),
				zap.String("status", statusErr))
			return &model.AuthenticationResult{Status: model.AuthFail, ErrorStatus: model.ErrorSamlRejectedByProxy}
		}
		logging.Info("Invalid response from remote identity provider",
			zap.String("method", method.Name),
			zap.Error(err))
		return &model.AuthenticationResult{Status: model.AuthFail, ErrorStatus: model.ErrorSamlInvalidProxyResp}
	}

	userID := ""
	if assertion.Subject != nil && assertion.Subject.NameID != nil {
		userID = assertion.Subject.NameID.Value
	}
	if userID == "" {
		return &model.AuthenticationResult{Status: model.AuthFail, ErrorStatus: model.ErrorSamlInvalidProxyResp}
	}

	level, errStatus := p.resolveLevel(remote, method, assertion)
	if errStatus != "" {
		return &model.AuthenticationResult{Status: model.AuthFail, ErrorStatus: errStatus}
	}

	logging.Info("User successfully authenticated",
		zap.String("user", userID),
		zap.String("method", method.Name),
		zap.String("authLevel", level.Name))

	return &model.AuthenticationResult{
		Status:     model.AuthSuccess,
		UserID:     userID,
		AuthMethod: method,
		AuthLevel:  level,
	}
}

// resolveLevel maps the authentication context returned by the remote IdP
// to a local level through the method's mapping table.
func (p *Provider) resolveLevel(remote *remoteIdP, method *model.AuthMethod,
	assertion *saml.Assertion) (*model.AuthLevel, model.ErrorStatus) {

	contextClass := ""
	for _, stmt := range assertion.AuthnStatements {
		if stmt.AuthnContext.AuthnContextClassRef != nil {
			contextClass = stmt.AuthnContext.AuthnContextClassRef.Value
			break
		}
	}

	levelName, ok := remote.inMap[contextClass]
	if !ok {
		logging.Info("Remote identity provider returned unmapped authentication context",
			zap.String("method", method.Name),
			zap.String("contextClass", contextClass))
		return nil, model.ErrorSamlInvalidProxyResp
	}

	level, err := p.policy.LevelByName(levelName)
	if err != nil {
		return nil, model.ErrorAuthTechnicalError
	}
	return level, ""
}

// responseStatusError extracts a non-success status code from a response
// that failed assertion parsing.
func responseStatusError(rawResponse []byte) string {
	var resp saml.Response
	if err := xml.Unmarshal(rawResponse, &resp); err != nil {
		return ""
	}
	if resp.Status.StatusCode.Value == saml.StatusSuccess {
		return ""
	}
	return resp.Status.StatusCode.Value
}
