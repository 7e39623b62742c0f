package model

import "crypto/x509"

// Authentication is a credential submission. Providers declare which concrete
// variants they accept via their Accepts capability check.
type Authentication interface {
	isAuthentication()
}

// UserPasswordAuthentication carries user-submitted login credentials,
// optionally with a challenge response for a second factor.
type UserPasswordAuthentication struct {
	UserID    string
	Password  string
	Challenge string
}

func (UserPasswordAuthentication) isAuthentication() {}

// X509Authentication carries the TLS client certificate chain presented by
// the browser.
type X509Authentication struct {
	Certificates []*x509.Certificate
}

func (X509Authentication) isAuthentication() {}

// SamlResponseAuthentication carries a serialized SAML response returned by
// an upstream identity provider during a brokered authentication.
type SamlResponseAuthentication struct {
	SerializedResponse string
}

func (SamlResponseAuthentication) isAuthentication() {}

// AuthenticationResultStatus is the outcome of one provider validation.
type AuthenticationResultStatus string

const (
	AuthSuccess   AuthenticationResultStatus = "SUCCESS"
	AuthFail      AuthenticationResultStatus = "FAIL"
	AuthChallenge AuthenticationResultStatus = "CHALLENGE"
)

// AuthenticationResult is the typed outcome of a credential verification.
// Failures are represented as values, not errors: a FAIL is retryable within
// the same transaction.
type AuthenticationResult struct {
	Status         AuthenticationResultStatus
	ErrorStatus    ErrorStatus
	ChallengeType  string
	ChallengeValue string
	UserID         string
	AuthMethod     *AuthMethod
	AuthLevel      *AuthLevel
}
