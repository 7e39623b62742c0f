package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.AuthPolicy = AuthPolicyConfig{
		AuthLevels: []AuthLevelConfig{
			{Name: "low", URN: "urn:identio:auth-level:low"},
			{Name: "strong", URN: "urn:identio:auth-level:strong"},
		},
		DefaultAuthLevel: AppAuthLevelConfig{AuthLevel: "low", Comparison: "minimum"},
	}
	cfg.AuthMethods = AuthMethodsConfig{
		Local: []LocalMethodConfig{
			{
				MethodConfig: MethodConfig{
					Name:      "corporate",
					AuthLevel: "low",
					StepUp:    &StepUpConfig{AuthMethod: "otp", AuthLevel: "strong"},
				},
				UserFilePath: "users.yaml",
			},
			{MethodConfig: MethodConfig{Name: "otp", AuthLevel: "strong"}},
		},
	}
	cfg.Authorization = AuthorizationConfig{
		Scopes: []ScopeConfig{{Name: "profile", AuthLevel: "low"}},
	}
	cfg.OAuth.Clients = []OAuthClientConfig{{
		ClientID:      "spa",
		ResponseURIs:  []string{"https://spa.example.com/cb"},
		AllowedScopes: []string{"profile"},
		ResponseTypes: []string{"token"},
	}}
	cfg.SAML.ServiceProviders = []ServiceProviderConfig{{
		Name:     "webapp",
		EntityID: "https://sp.example.com/metadata",
		ACSUrls:  []string{"https://sp.example.com/acs"},
	}}
	return cfg
}

func TestValidConfigPasses(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected a valid configuration, got %v", err)
	}
}

func TestValidateCatchesStartupErrors(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "no auth levels",
			mutate:  func(c *Config) { c.AuthPolicy.AuthLevels = nil },
			wantMsg: "at least one auth level",
		},
		{
			name: "duplicate auth level",
			mutate: func(c *Config) {
				c.AuthPolicy.AuthLevels = append(c.AuthPolicy.AuthLevels,
					AuthLevelConfig{Name: "low", URN: "urn:other"})
			},
			wantMsg: "duplicate auth level",
		},
		{
			name:    "missing default level",
			mutate:  func(c *Config) { c.AuthPolicy.DefaultAuthLevel = AppAuthLevelConfig{} },
			wantMsg: "default_auth_level is required",
		},
		{
			name:    "invalid comparison",
			mutate:  func(c *Config) { c.AuthPolicy.DefaultAuthLevel.Comparison = "strongest" },
			wantMsg: "invalid comparison",
		},
		{
			name: "duplicate method name",
			mutate: func(c *Config) {
				c.AuthMethods.LDAP = []LDAPMethodConfig{
					{MethodConfig: MethodConfig{Name: "corporate", AuthLevel: "low"}},
				}
			},
			wantMsg: "duplicate method name",
		},
		{
			name: "method with unknown level",
			mutate: func(c *Config) {
				c.AuthMethods.Local[1].AuthLevel = "missing"
			},
			wantMsg: "unknown auth level",
		},
		{
			name: "step-up to unknown method",
			mutate: func(c *Config) {
				c.AuthMethods.Local[0].StepUp.AuthMethod = "missing"
			},
			wantMsg: "unknown method",
		},
		{
			name: "client without response uri",
			mutate: func(c *Config) {
				c.OAuth.Clients[0].ResponseURIs = nil
			},
			wantMsg: "at least one response_uri",
		},
		{
			name: "client with unknown scope",
			mutate: func(c *Config) {
				c.OAuth.Clients[0].AllowedScopes = []string{"admin"}
			},
			wantMsg: "unknown scope",
		},
		{
			name: "service provider without acs url",
			mutate: func(c *Config) {
				c.SAML.ServiceProviders[0].ACSUrls = nil
			},
			wantMsg: "at least one acs_url",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Fatalf("expected %q in the error, got %v", tc.wantMsg, err)
			}
		})
	}
}
