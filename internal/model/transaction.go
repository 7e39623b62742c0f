package model

// State is the position of a transaction in the authentication state
// machine. RESPONSE and ERROR are terminal.
type State string

const (
	StateAuth    State = "AUTH"
	StateStepUp  State = "STEP_UP_AUTHENTICATION"
	StateConsent State = "CONSENT"

	StateResponse State = "RESPONSE"
	StateError    State = "ERROR"
)

// TransactionData tracks one in-flight negotiation between a relying party's
// request and the eventual protocol response, spanning one or more HTTP
// round-trips. The user session is a relation, not ownership: the session
// lives in its own store.
type TransactionData struct {
	TransactionID      string
	UserSession        *UserSession
	RequestInfo        *RequestParsingInfo
	TargetAuthLevels   []*AuthLevel
	TargetAuthMethods  map[string]*AuthMethod
	SelectedAuthMethod *AuthMethod
	State              State

	// AuthenticatedUserID is the user validated by the first factor, set when
	// the transaction enters STEP_UP_AUTHENTICATION. The second factor must
	// authenticate the same user.
	AuthenticatedUserID string

	// SamlProxyRequestID correlates an upstream IdP round trip with this
	// transaction.
	SamlProxyRequestID string
}
