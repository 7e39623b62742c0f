package saml

import (
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/crewjam/saml"
)

// Metadata renders the identity-provider metadata document.
func (s *Service) Metadata() ([]byte, error) {
	certData := base64.StdEncoding.EncodeToString(s.signingCert.Raw)

	descriptor := saml.EntityDescriptor{
		EntityID:      s.entityID,
		ValidUntil:    time.Now().UTC().Add(48 * time.Hour),
		CacheDuration: 24 * time.Hour,
		IDPSSODescriptors: []saml.IDPSSODescriptor{{
			SSODescriptor: saml.SSODescriptor{
				RoleDescriptor: saml.RoleDescriptor{
					ProtocolSupportEnumeration: "urn:oasis:names:tc:SAML:2.0:protocol",
					KeyDescriptors: []saml.KeyDescriptor{{
						Use: "signing",
						KeyInfo: saml.KeyInfo{
							X509Data: saml.X509Data{
								X509Certificates: []saml.X509Certificate{{Data: certData}},
							},
						},
					}},
				},
				NameIDFormats: []saml.NameIDFormat{saml.UnspecifiedNameIDFormat},
			},
			SingleSignOnServices: []saml.Endpoint{
				{Binding: saml.HTTPRedirectBinding, Location: s.ssoURL},
				{Binding: saml.HTTPPostBinding, Location: s.ssoURL},
			},
		}},
	}

	data, err := xml.MarshalIndent(descriptor, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("saml: failed to marshal metadata: %w", err)
	}
	return data, nil
}
