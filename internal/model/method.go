package model

// Auth method type tags.
const (
	AuthMethodTypeLocal     = "local"
	AuthMethodTypeLDAP      = "ldap"
	AuthMethodTypeSamlProxy = "saml"
	AuthMethodTypeX509      = "x509"
)

// StepUpAuthMethod declares a forced secondary authentication method and the
// level reached once that secondary method succeeds.
type StepUpAuthMethod struct {
	AuthMethod *AuthMethod
	AuthLevel  *AuthLevel
}

// AuthMethod is a configured way to authenticate, bound to one AuthLevel and
// optionally a step-up method. The Name is a flat, unique key.
//
// Variant-specific settings hang off the optional sub-structs; exactly one of
// them is set, matching Type.
type AuthMethod struct {
	Name      string
	Type      string
	AuthLevel *AuthLevel
	Explicit  bool
	StepUp    *StepUpAuthMethod

	Local     *LocalMethod
	LDAP      *LDAPMethod
	SamlProxy *SamlProxyMethod
	X509      *X509Method
}

// Equal compares methods by name: names are a flat namespace.
func (m *AuthMethod) Equal(other *AuthMethod) bool {
	return m != nil && other != nil && m.Name == other.Name
}

// LocalMethod holds settings for a file-backed password method.
type LocalMethod struct {
	UserFilePath string
}

// LDAPMethod holds settings for an LDAP bind method.
type LDAPMethod struct {
	URLs           []string
	BaseDN         string
	UserSearchBase string
	UserFilter     string
	BindDN         string
	BindPassword   string
	TrustCertPath  string
}

// SamlProxyMethod holds settings for brokering authentication to an upstream
// identity provider. OutMap maps a local AuthLevel name to the authentication
// context class sent upstream; incoming context classes are matched against
// the same mapping in reverse.
type SamlProxyMethod struct {
	EntityID    string
	MetadataURL string
	SSOEndpoint string
	CertPath    string
	OutMap      map[string]string
}

// X509Method holds settings for client-certificate authentication.
type X509Method struct {
	TrustCertPath string
	UserIDAttr    string
}
