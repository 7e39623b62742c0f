package model

// ErrorStatus is a reason code surfaced to the caller. Retryable statuses
// keep the transaction alive; the UI translates them to messages.
type ErrorStatus string

const (
	ErrorAuthInvalidCredentials ErrorStatus = "auth.invalid.credentials"
	ErrorAuthNoCredentials      ErrorStatus = "auth.no.credentials"
	ErrorAuthMethodUnknown      ErrorStatus = "auth.method.unknown"
	ErrorAuthMethodNotAllowed   ErrorStatus = "auth.method.not.allowed"
	ErrorAuthTechnicalError     ErrorStatus = "auth.technical.error"
	ErrorAuthUserIDMismatch     ErrorStatus = "auth.user.id.mismatch"
	ErrorAuthLevelInsufficient  ErrorStatus = "auth.level.insufficient"

	ErrorInvalidTransaction ErrorStatus = "invalid.transaction"

	ErrorSamlUnsupportedBinding ErrorStatus = "saml.unsupported.binding"
	ErrorSamlInvalidRequest     ErrorStatus = "saml.invalid.request"
	ErrorSamlUnknownIssuer      ErrorStatus = "saml.unknown.issuer"
	ErrorSamlUnknownEndpoint    ErrorStatus = "saml.unknown.endpoint"
	ErrorSamlRejectedByProxy    ErrorStatus = "auth.saml.rejected.by.proxy"
	ErrorSamlInvalidProxyResp   ErrorStatus = "auth.saml.invalid.response"
	ErrorSamlInvalidInResponse  ErrorStatus = "auth.saml.invalid.inresponseto"

	// OAuth wire error codes (RFC 6749 §4.2.2.1).
	ErrorOAuthUnknownClient       ErrorStatus = "unknown_client"
	ErrorOAuthUnknownRedirectURI  ErrorStatus = "unknown_redirect_uri"
	ErrorOAuthUnsupportedResponse ErrorStatus = "unsupported_response_type"
	ErrorOAuthInvalidScope        ErrorStatus = "invalid_scope"
	ErrorOAuthUnauthorizedClient  ErrorStatus = "unauthorized_client"
	ErrorOAuthAccessDenied        ErrorStatus = "access_denied"
	ErrorOAuthServerError         ErrorStatus = "server_error"
)
