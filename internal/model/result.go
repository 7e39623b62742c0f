package model

// AuthPolicyDecision is the ephemeral output of a single policy evaluation.
type AuthPolicyDecision struct {
	NextState            State
	ValidatedAuthSession *AuthSession
	NextAuthMethods      []*AuthMethod
}

// ResponseData is a rendered protocol response. SAML responses carry the
// serialized document to auto-post to the destination; OAuth responses carry
// a redirect URL.
type ResponseData struct {
	URL          string
	SAMLResponse string
	RelayState   string
}

// ValidationResult aggregates the outcome of one orchestration call for the
// protocol adapter.
type ValidationResult struct {
	State         State
	TransactionID string
	SessionID     string
	RequestInfo   *RequestParsingInfo
	ResponseData  *ResponseData

	ErrorStatus    ErrorStatus
	ChallengeType  string
	ChallengeValue string
}
