package saml

import (
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/beevik/etree"
	"github.com/crewjam/saml"
	"github.com/google/uuid"
	dsig "github.com/russellhaering/goxmldsig"
	"go.uber.org/zap"

	"github.com/identio/identio-server-sub001/internal/logging"
	"github.com/identio/identio-server-sub001/internal/model"
)

const (
	statusSuccess   = "urn:oasis:names:tc:SAML:2.0:status:Success"
	statusResponder = "urn:oasis:names:tc:SAML:2.0:status:Responder"
)

// GenerateSuccessResponse builds a signed response asserting the validated
// authentication session, to be auto-posted to the assertion consumer
// endpoint.
func (s *Service) GenerateSuccessResponse(info *model.RequestParsingInfo,
	authSession *model.AuthSession) (*model.ResponseData, error) {

	sp, ok := s.byName[info.SourceApplication]
	if !ok {
		return nil, fmt.Errorf("saml: unknown service provider %s", info.SourceApplication)
	}

	now := time.Now().UTC()
	notOnOrAfter := now.Add(s.tokenValidity)

	assertion := saml.Assertion{
		ID:           newSamlID(),
		IssueInstant: now,
		Version:      "2.0",
		Issuer: saml.Issuer{
			Format: "urn:oasis:names:tc:SAML:2.0:nameid-format:entity",
			Value:  s.entityID,
		},
		Subject: &saml.Subject{
			NameID: &saml.NameID{
				Format: string(saml.UnspecifiedNameIDFormat),
				Value:  authSession.UserID,
			},
			SubjectConfirmations: []saml.SubjectConfirmation{{
				Method: "urn:oasis:names:tc:SAML:2.0:cm:bearer",
				SubjectConfirmationData: &saml.SubjectConfirmationData{
					InResponseTo: info.RequestID,
					Recipient:    info.ResponseURL,
					NotOnOrAfter: notOnOrAfter,
				},
			}},
		},
		Conditions: &saml.Conditions{
			NotBefore:    now,
			NotOnOrAfter: notOnOrAfter,
			AudienceRestrictions: []saml.AudienceRestriction{{
				Audience: saml.Audience{Value: sp.entityID},
			}},
		},
		AuthnStatements: []saml.AuthnStatement{{
			AuthnInstant: authSession.AuthInstant,
			AuthnContext: saml.AuthnContext{
				AuthnContextClassRef: &saml.AuthnContextClassRef{
					Value: authSession.AuthLevel.URN,
				},
			},
		}},
	}

	signedAssertion, err := s.signElement(assertion.Element())
	if err != nil {
		return nil, fmt.Errorf("saml: failed to sign assertion: %w", err)
	}

	response := s.newResponse(info, statusSuccess)
	responseEl := response.Element()
	responseEl.AddChild(signedAssertion)

	serialized, err := serializeResponse(responseEl)
	if err != nil {
		return nil, err
	}

	logging.Info("Generated authentication response",
		zap.String("serviceProvider", sp.name),
		zap.String("user", authSession.UserID),
		zap.String("authLevel", authSession.AuthLevel.Name),
		zap.String("inResponseTo", info.RequestID))

	return &model.ResponseData{
		URL:          info.ResponseURL,
		SAMLResponse: serialized,
		RelayState:   info.RelayState,
	}, nil
}

// GenerateErrorResponse reports a failure to the assertion consumer endpoint
// as a responder status without an assertion.
func (s *Service) GenerateErrorResponse(info *model.RequestParsingInfo,
	status model.ErrorStatus) (*model.ResponseData, error) {

	response := s.newResponse(info, statusResponder)
	response.Status.StatusMessage = &saml.StatusMessage{Value: string(status)}

	serialized, err := serializeResponse(response.Element())
	if err != nil {
		return nil, err
	}

	return &model.ResponseData{
		URL:          info.ResponseURL,
		SAMLResponse: serialized,
		RelayState:   info.RelayState,
	}, nil
}

func (s *Service) newResponse(info *model.RequestParsingInfo, statusCode string) *saml.Response {
	return &saml.Response{
		ID:           newSamlID(),
		InResponseTo: info.RequestID,
		IssueInstant: time.Now().UTC(),
		Version:      "2.0",
		Destination:  info.ResponseURL,
		Issuer: &saml.Issuer{
			Format: "urn:oasis:names:tc:SAML:2.0:nameid-format:entity",
			Value:  s.entityID,
		},
		Status: saml.Status{
			StatusCode: saml.StatusCode{Value: statusCode},
		},
	}
}

// signElement wraps the element in an enveloped signature using the server
// signing keypair.
func (s *Service) signElement(el *etree.Element) (*etree.Element, error) {
	keyStore := dsig.TLSCertKeyStore(tls.Certificate{
		Certificate: [][]byte{s.signingCert.Raw},
		PrivateKey:  s.signingKey,
		Leaf:        s.signingCert,
	})

	signingContext := dsig.NewDefaultSigningContext(keyStore)
	if err := signingContext.SetSignatureMethod(dsig.RSASHA256SignatureMethod); err != nil {
		return nil, err
	}

	return signingContext.SignEnveloped(el)
}

func serializeResponse(responseEl *etree.Element) (string, error) {
	doc := etree.NewDocument()
	doc.SetRoot(responseEl)
	data, err := doc.WriteToBytes()
	if err != nil {
		return "", fmt.Errorf("saml: failed to serialize response: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func newSamlID() string {
	return "_" + uuid.NewString()
}
