package config

import "time"

// Config is the full server configuration.
type Config struct {
	Global        GlobalConfig        `yaml:"global"`
	Logging       LoggingConfig       `yaml:"logging"`
	Sessions      StoreConfig         `yaml:"sessions"`
	Transactions  StoreConfig         `yaml:"transactions"`
	AuthPolicy    AuthPolicyConfig    `yaml:"auth_policy"`
	AuthMethods   AuthMethodsConfig   `yaml:"auth_methods"`
	Authorization AuthorizationConfig `yaml:"authorization"`
	SAML          SAMLConfig          `yaml:"saml"`
	OAuth         OAuthConfig         `yaml:"oauth"`
}

// GlobalConfig holds server-wide settings.
type GlobalConfig struct {
	PublicFQDN string `yaml:"public_fqdn"`
	Port       int    `yaml:"port"`
	BasePath   string `yaml:"base_path"`
	Secure     bool   `yaml:"secure"`

	// Signing keypair used for SAML responses and OAuth access tokens.
	SigningCertPath string `yaml:"signing_cert"`
	SigningKeyPath  string `yaml:"signing_key"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// StoreConfig bounds one of the in-memory stores.
type StoreConfig struct {
	MaxEntries int           `yaml:"max_entries"`
	Duration   time.Duration `yaml:"duration"`
}

// AuthPolicyConfig declares the ranked authentication levels and the
// per-application overrides.
type AuthPolicyConfig struct {
	// AuthLevels are listed weakest first; strength is the list index.
	AuthLevels        []AuthLevelConfig    `yaml:"auth_levels"`
	DefaultAuthLevel  AppAuthLevelConfig   `yaml:"default_auth_level"`
	ApplicationLevels []AppAuthLevelConfig `yaml:"application_auth_levels"`
}

// AuthLevelConfig declares one authentication level.
type AuthLevelConfig struct {
	Name string `yaml:"name"`
	URN  string `yaml:"urn"`
}

// AppAuthLevelConfig binds a level and comparison to an application; an empty
// AppName denotes the global default.
type AppAuthLevelConfig struct {
	AppName    string `yaml:"app_name"`
	AuthLevel  string `yaml:"auth_level"`
	Comparison string `yaml:"comparison"`
}

// AuthMethodsConfig declares the configured authentication methods, grouped
// by provider type.
type AuthMethodsConfig struct {
	Local     []LocalMethodConfig     `yaml:"local"`
	LDAP      []LDAPMethodConfig      `yaml:"ldap"`
	SamlProxy []SamlProxyMethodConfig `yaml:"saml"`
	X509      []X509MethodConfig      `yaml:"x509"`
}

// MethodConfig carries the attributes common to every method.
type MethodConfig struct {
	Name      string        `yaml:"name"`
	AuthLevel string        `yaml:"auth_level"`
	StepUp    *StepUpConfig `yaml:"step_up"`
}

// StepUpConfig forces a secondary method after this method succeeds. The
// transaction reaches the declared level only once the secondary method
// succeeds too.
type StepUpConfig struct {
	AuthMethod string `yaml:"auth_method"`
	AuthLevel  string `yaml:"auth_level"`
}

// LocalMethodConfig declares a file-backed password method.
type LocalMethodConfig struct {
	MethodConfig `yaml:",inline"`
	UserFilePath string `yaml:"user_file_path"`
}

// LDAPMethodConfig declares an LDAP bind method.
type LDAPMethodConfig struct {
	MethodConfig   `yaml:",inline"`
	URLs           []string `yaml:"urls"`
	BaseDN         string   `yaml:"base_dn"`
	UserSearchBase string   `yaml:"user_search_base"`
	UserFilter     string   `yaml:"user_filter"`
	BindDN         string   `yaml:"bind_dn"`
	BindPassword   string   `yaml:"bind_password"`
	TrustCertPath  string   `yaml:"trust_cert"`
}

// SamlProxyMethodConfig declares a brokered upstream IdP method. AuthMap maps
// local level names to the authentication context classes of the upstream
// provider.
type SamlProxyMethodConfig struct {
	MethodConfig `yaml:",inline"`
	EntityID     string            `yaml:"entity_id"`
	MetadataURL  string            `yaml:"metadata_url"`
	SSOEndpoint  string            `yaml:"sso_endpoint"`
	CertPath     string            `yaml:"cert"`
	AuthMap      map[string]string `yaml:"auth_map"`
}

// X509MethodConfig declares a client-certificate method. X509 methods are
// transparent: they never appear in the explicit method list shown to users.
type X509MethodConfig struct {
	MethodConfig  `yaml:",inline"`
	TrustCertPath string `yaml:"trust_cert"`
	UserIDAttr    string `yaml:"user_id_attribute"`
}

// AuthorizationConfig declares grantable OAuth scopes.
type AuthorizationConfig struct {
	Scopes []ScopeConfig `yaml:"scopes"`
}

// ScopeConfig declares one OAuth scope.
type ScopeConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	AuthLevel   string `yaml:"auth_level"`
	Expiration  int    `yaml:"expiration"`
}

// SAMLConfig holds identity-provider protocol settings.
type SAMLConfig struct {
	EntityID string `yaml:"entity_id"`
	// ServiceProviders lists the relying parties allowed to send requests.
	ServiceProviders []ServiceProviderConfig `yaml:"service_providers"`
	// AllowUnsecureRequests accepts unsigned authentication requests;
	// requested levels in unsigned requests are never trusted either way.
	AllowUnsecureRequests bool `yaml:"allow_unsecure_requests"`
	TokenValidity         time.Duration `yaml:"token_validity"`
}

// ServiceProviderConfig declares one relying party.
type ServiceProviderConfig struct {
	Name     string `yaml:"name"`
	EntityID string `yaml:"entity_id"`
	// ACSUrls lists the allowed assertion consumer endpoints; the first is
	// the default when the request does not name one.
	ACSUrls  []string `yaml:"acs_urls"`
	CertPath string   `yaml:"cert"`
}

// OAuthConfig holds authorization-server settings.
type OAuthConfig struct {
	Clients []OAuthClientConfig `yaml:"clients"`
	// TokenValidity is the default access-token lifetime when no granted
	// scope overrides it.
	TokenValidity time.Duration `yaml:"token_validity"`
	CodeValidity  time.Duration `yaml:"code_validity"`
}

// OAuthClientConfig declares one OAuth client.
type OAuthClientConfig struct {
	ClientID      string   `yaml:"client_id"`
	Name          string   `yaml:"name"`
	ResponseURIs  []string `yaml:"response_uris"`
	AllowedScopes []string `yaml:"allowed_scopes"`
	ResponseTypes []string `yaml:"response_types"`
	ConsentNeeded bool     `yaml:"consent_needed"`
}

// DefaultConfig returns the configuration baseline applied before the YAML
// file is merged in.
func DefaultConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			Port:     8443,
			BasePath: "/",
			Secure:   true,
		},
		Logging: LoggingConfig{Level: "info"},
		Sessions: StoreConfig{
			MaxEntries: 100000,
			Duration:   2 * time.Hour,
		},
		Transactions: StoreConfig{
			MaxEntries: 100000,
			Duration:   10 * time.Minute,
		},
		SAML: SAMLConfig{
			TokenValidity: 3 * time.Minute,
		},
		OAuth: OAuthConfig{
			TokenValidity: time.Hour,
			CodeValidity:  time.Minute,
		},
	}
}
