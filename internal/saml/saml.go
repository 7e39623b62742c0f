// Package saml implements the SAML 2.0 identity-provider endpoints:
// authentication-request validation on the POST and redirect bindings and
// signed response generation.
package saml

import (
	"bytes"
	"compress/flate"
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/crewjam/saml"
	dsig "github.com/russellhaering/goxmldsig"
	"go.uber.org/zap"

	"github.com/identio/identio-server-sub001/internal/authpolicy"
	"github.com/identio/identio-server-sub001/internal/config"
	"github.com/identio/identio-server-sub001/internal/logging"
	"github.com/identio/identio-server-sub001/internal/model"
)

// SSOPath is the single sign-on endpoint, shared by both bindings.
const SSOPath = "/saml/sso"

const (
	sigAlgRSASHA1   = "http://www.w3.org/2000/09/xmldsig#rsa-sha1"
	sigAlgRSASHA256 = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
)

// serviceProvider is a registered relying party.
type serviceProvider struct {
	name     string
	entityID string
	acsURLs  []string
	cert     *x509.Certificate
}

func (sp *serviceProvider) allowsACS(acsURL string) bool {
	for _, u := range sp.acsURLs {
		if u == acsURL {
			return true
		}
	}
	return false
}

// Service validates inbound authentication requests and generates responses.
type Service struct {
	entityID string
	ssoURL   string

	signingCert *x509.Certificate
	signingKey  *rsa.PrivateKey

	allowUnsecureRequests bool
	tokenValidity         time.Duration

	policy *authpolicy.Service

	byEntityID map[string]*serviceProvider
	byName     map[string]*serviceProvider
}

// New builds the service from the relying-party registry and the server
// signing keypair.
func New(cfg *config.Config, policy *authpolicy.Service, baseURL string,
	cert *x509.Certificate, key *rsa.PrivateKey) (*Service, error) {

	entityID := cfg.SAML.EntityID
	if entityID == "" {
		entityID = baseURL + "/saml/metadata"
	}

	s := &Service{
		entityID:              entityID,
		ssoURL:                baseURL + SSOPath,
		signingCert:           cert,
		signingKey:            key,
		allowUnsecureRequests: cfg.SAML.AllowUnsecureRequests,
		tokenValidity:         cfg.SAML.TokenValidity,
		policy:                policy,
		byEntityID:            make(map[string]*serviceProvider),
		byName:                make(map[string]*serviceProvider),
	}

	for _, spc := range cfg.SAML.ServiceProviders {
		sp := &serviceProvider{
			name:     spc.Name,
			entityID: spc.EntityID,
			acsURLs:  spc.ACSUrls,
		}
		if spc.CertPath != "" {
			spCert, err := loadCertificate(spc.CertPath)
			if err != nil {
				return nil, fmt.Errorf("saml: service provider %s: %w", spc.Name, err)
			}
			sp.cert = spCert
		}
		s.byEntityID[sp.entityID] = sp
		s.byName[sp.name] = sp
	}

	return s, nil
}

func loadCertificate(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cert: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode cert %s", path)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("invalid cert %s: %w", path, err)
	}
	return cert, nil
}

// ValidateAuthentRequest checks an inbound authentication request. Failures
// before the assertion consumer endpoint is trusted are fatal; later
// failures are reported to the relying party.
func (s *Service) ValidateAuthentRequest(req model.SamlInboundRequest) *model.RequestParsingInfo {
	info := &model.RequestParsingInfo{
		ProtocolType: model.ProtocolSAML,
		RelayState:   req.RelayState,
	}

	rawRequest, err := decodeRequest(req)
	if err != nil {
		logging.Info("Failed to decode authentication request", zap.Error(err))
		info.Status = model.ParsingFatalError
		info.ErrorStatus = model.ErrorSamlInvalidRequest
		return info
	}

	var authnRequest saml.AuthnRequest
	if err := xml.Unmarshal(rawRequest, &authnRequest); err != nil {
		logging.Info("Failed to parse authentication request", zap.Error(err))
		info.Status = model.ParsingFatalError
		info.ErrorStatus = model.ErrorSamlInvalidRequest
		return info
	}

	if authnRequest.Issuer == nil || authnRequest.Issuer.Value == "" {
		info.Status = model.ParsingFatalError
		info.ErrorStatus = model.ErrorSamlUnknownIssuer
		return info
	}
	sp, ok := s.byEntityID[authnRequest.Issuer.Value]
	if !ok {
		logging.Info("Authentication request from unknown issuer",
			zap.String("issuer", authnRequest.Issuer.Value))
		info.Status = model.ParsingFatalError
		info.ErrorStatus = model.ErrorSamlUnknownIssuer
		return info
	}
	info.SourceApplication = sp.name
	info.RequestID = authnRequest.ID

	if authnRequest.Destination != "" && authnRequest.Destination != s.ssoURL {
		logging.Info("Authentication request with wrong destination",
			zap.String("issuer", sp.entityID),
			zap.String("destination", authnRequest.Destination))
		info.Status = model.ParsingFatalError
		info.ErrorStatus = model.ErrorSamlInvalidRequest
		return info
	}

	acsURL := authnRequest.AssertionConsumerServiceURL
	if acsURL == "" && len(sp.acsURLs) > 0 {
		acsURL = sp.acsURLs[0]
	}
	if !sp.allowsACS(acsURL) {
		logging.Info("Authentication request names unknown assertion consumer endpoint",
			zap.String("issuer", sp.entityID),
			zap.String("acsUrl", acsURL))
		info.Status = model.ParsingFatalError
		info.ErrorStatus = model.ErrorSamlUnknownEndpoint
		return info
	}
	info.ResponseURL = acsURL

	trusted, errStatus := s.checkSignature(req, rawRequest, sp)
	if errStatus != "" {
		info.Status = model.ParsingFatalError
		info.ErrorStatus = errStatus
		return info
	}

	if authnRequest.ForceAuthn != nil {
		info.ForceAuthentication = *authnRequest.ForceAuthn
	}

	// Requested levels only bind the policy when the request was signed by
	// the relying party.
	if trusted && authnRequest.RequestedAuthnContext != nil {
		class := authnRequest.RequestedAuthnContext.AuthnContextClassRef
		if class != "" {
			level, err := s.policy.LevelByURN(class)
			if err != nil {
				logging.Info("Authentication request names unknown auth level",
					zap.String("issuer", sp.entityID),
					zap.String("contextClass", class))
				info.Status = model.ParsingResponseError
				info.ErrorStatus = model.ErrorSamlInvalidRequest
				return info
			}
			info.RequestedAuthLevels = []*model.AuthLevel{level}
			info.AuthLevelComparison = mapComparison(authnRequest.RequestedAuthnContext.Comparison)
		}
	}

	info.Status = model.ParsingOK
	return info
}

func decodeRequest(req model.SamlInboundRequest) ([]byte, error) {
	switch req.Binding {
	case saml.HTTPPostBinding:
		return base64.StdEncoding.DecodeString(string(req.SerializedRequest))
	case saml.HTTPRedirectBinding:
		compressed, err := base64.StdEncoding.DecodeString(string(req.SerializedRequest))
		if err != nil {
			return nil, err
		}
		return io.ReadAll(flate.NewReader(bytes.NewReader(compressed)))
	default:
		return nil, fmt.Errorf("unsupported binding %s", req.Binding)
	}
}

// checkSignature reports whether the request carries a valid signature from
// the relying party. Unsigned requests pass only when the server allows
// them; they are never trusted.
func (s *Service) checkSignature(req model.SamlInboundRequest, rawRequest []byte,
	sp *serviceProvider) (bool, model.ErrorStatus) {

	switch req.Binding {
	case saml.HTTPRedirectBinding:
		if req.SignatureValue == "" {
			if !s.allowUnsecureRequests {
				return false, model.ErrorSamlInvalidRequest
			}
			return false, ""
		}
		if sp.cert == nil {
			return false, model.ErrorSamlInvalidRequest
		}
		if err := verifyRedirectSignature(req, sp.cert); err != nil {
			logging.Info("Invalid request signature",
				zap.String("issuer", sp.entityID), zap.Error(err))
			return false, model.ErrorSamlInvalidRequest
		}
		return true, ""

	case saml.HTTPPostBinding:
		doc := etree.NewDocument()
		if err := doc.ReadFromBytes(rawRequest); err != nil {
			return false, model.ErrorSamlInvalidRequest
		}
		if doc.Root().FindElement("./Signature") == nil {
			if !s.allowUnsecureRequests {
				return false, model.ErrorSamlInvalidRequest
			}
			return false, ""
		}
		if sp.cert == nil {
			return false, model.ErrorSamlInvalidRequest
		}
		certStore := &dsig.MemoryX509CertificateStore{Roots: []*x509.Certificate{sp.cert}}
		validationContext := dsig.NewDefaultValidationContext(certStore)
		if _, err := validationContext.Validate(doc.Root()); err != nil {
			logging.Info("Invalid request signature",
				zap.String("issuer", sp.entityID), zap.Error(err))
			return false, model.ErrorSamlInvalidRequest
		}
		return true, ""

	default:
		return false, model.ErrorSamlUnsupportedBinding
	}
}

// verifyRedirectSignature checks the detached signature of the redirect
// binding over the raw signed query string.
func verifyRedirectSignature(req model.SamlInboundRequest, cert *x509.Certificate) error {
	pubKey, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("signing cert key is %T, want RSA", cert.PublicKey)
	}

	signature, err := base64.StdEncoding.DecodeString(req.SignatureValue)
	if err != nil {
		return fmt.Errorf("invalid signature encoding: %w", err)
	}

	signed := []byte(req.SignedInfo)
	switch req.SignatureAlg {
	case sigAlgRSASHA256:
		digest := sha256.Sum256(signed)
		return rsa.VerifyPKCS1v15(pubKey, crypto.SHA256, digest[:], signature)
	case sigAlgRSASHA1:
		digest := sha1.Sum(signed)
		return rsa.VerifyPKCS1v15(pubKey, crypto.SHA1, digest[:], signature)
	default:
		return fmt.Errorf("unsupported signature algorithm %s", req.SignatureAlg)
	}
}

func mapComparison(comparison string) model.Comparison {
	switch strings.ToLower(comparison) {
	case "minimum":
		return model.ComparisonMinimum
	case "maximum":
		return model.ComparisonMaximum
	case "better":
		return model.ComparisonBetter
	default:
		return model.ComparisonExact
	}
}
