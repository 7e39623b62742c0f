package model

// AuthorizationScope is a grantable OAuth scope, optionally bound to a
// minimum authentication level and a token lifetime.
type AuthorizationScope struct {
	Name        string
	Description string
	AuthLevel   *AuthLevel
	// Expiration is the token lifetime in seconds granted for this scope;
	// 0 means the server default.
	Expiration int
}
