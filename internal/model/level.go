package model

// Comparison governs how a requested authentication level is matched
// against the configured levels.
type Comparison string

// SAML AuthnContext comparison values, reused verbatim for OAuth and
// application-specific policies.
const (
	ComparisonExact   Comparison = "exact"
	ComparisonMinimum Comparison = "minimum"
	ComparisonMaximum Comparison = "maximum"
	ComparisonBetter  Comparison = "better"
)

// AuthLevel is a named, strength-ranked tier of authentication assurance.
// Strength is assigned by configuration order (first configured = 0, the
// weakest) and is immutable after load.
type AuthLevel struct {
	Name     string
	URN      string
	Strength int
}

// Equal compares two levels by name. Levels are registry singletons, but
// name equality keeps comparisons safe across copies.
func (l *AuthLevel) Equal(other *AuthLevel) bool {
	return l != nil && other != nil && l.Name == other.Name
}

// AppAuthLevel is a configured override of the default level policy for one
// relying application. One special instance is the global default.
type AppAuthLevel struct {
	AppName    string
	AuthLevel  *AuthLevel
	Comparison Comparison
}
