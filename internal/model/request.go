package model

// ProtocolType identifies the protocol a request arrived on.
type ProtocolType string

const (
	ProtocolSAML  ProtocolType = "SAML"
	ProtocolOAuth ProtocolType = "OAUTH"
)

// RequestParsingStatus is the outcome of wire-format validation.
type RequestParsingStatus string

const (
	// ParsingOK means the request is valid and processing continues.
	ParsingOK RequestParsingStatus = "OK"
	// ParsingFatalError means the request is rejected and no safe return
	// endpoint is known: the error is rendered locally.
	ParsingFatalError RequestParsingStatus = "FATAL_ERROR"
	// ParsingResponseError means the request is rejected but a trusted
	// return endpoint is known: the error is reported to the relying party
	// as a protocol error response.
	ParsingResponseError RequestParsingStatus = "RESPONSE_ERROR"
)

// SamlInboundRequest is a raw SAML authentication request as received on one
// of the SSO bindings.
type SamlInboundRequest struct {
	Binding           string
	SerializedRequest []byte
	// Signature parameters of the redirect binding; empty for POST, where
	// the signature is embedded in the document.
	SignatureValue string
	SignedInfo     string
	SignatureAlg   string
	RelayState     string
}

func (SamlInboundRequest) isInboundRequest() {}

// OAuthInboundRequest is a raw OAuth 2 authorization-endpoint request.
type OAuthInboundRequest struct {
	ClientID     string
	ResponseType string
	RedirectURI  string
	Scopes       []string
	State        string
}

func (OAuthInboundRequest) isInboundRequest() {}

// InboundRequest is a protocol request before wire-format validation.
type InboundRequest interface {
	isInboundRequest()
}

// RequestParsingInfo is the normalized result of wire-format validation,
// shared by both protocols. It is the only request representation the
// orchestration and policy engines ever see.
type RequestParsingInfo struct {
	Status      RequestParsingStatus
	ErrorStatus ErrorStatus

	ProtocolType        ProtocolType
	RequestID           string
	SourceApplication   string
	ForceAuthentication bool

	// RequestedAuthLevels is only populated when the inbound request was
	// integrity-protected by its protocol layer; unsigned requests fall
	// back to the application or default policy.
	RequestedAuthLevels []*AuthLevel
	AuthLevelComparison Comparison

	RelayState  string
	ResponseURL string

	// OAuth specifics.
	ResponseType    string
	RequestedScopes []AuthorizationScope
	ConsentNeeded   bool
}
