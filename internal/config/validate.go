package config

import "fmt"

var validComparisons = map[string]bool{
	"exact": true, "minimum": true, "maximum": true, "better": true,
}

// Validate checks the configuration for startup errors. Configuration-time
// failures (duplicate method names, unresolvable level references) surface
// here, never at request time.
func (c *Config) Validate() error {
	if len(c.AuthPolicy.AuthLevels) == 0 {
		return fmt.Errorf("auth_policy: at least one auth level must be configured")
	}

	levels := make(map[string]bool, len(c.AuthPolicy.AuthLevels))
	for _, l := range c.AuthPolicy.AuthLevels {
		if l.Name == "" || l.URN == "" {
			return fmt.Errorf("auth_policy: auth level requires both name and urn")
		}
		if levels[l.Name] {
			return fmt.Errorf("auth_policy: duplicate auth level %q", l.Name)
		}
		levels[l.Name] = true
	}

	if err := c.validateAppLevel("default_auth_level", c.AuthPolicy.DefaultAuthLevel, levels); err != nil {
		return err
	}
	if c.AuthPolicy.DefaultAuthLevel.AuthLevel == "" {
		return fmt.Errorf("auth_policy: default_auth_level is required")
	}
	for _, al := range c.AuthPolicy.ApplicationLevels {
		if al.AppName == "" {
			return fmt.Errorf("auth_policy: application_auth_levels entries require app_name")
		}
		if err := c.validateAppLevel("application_auth_levels "+al.AppName, al, levels); err != nil {
			return err
		}
	}

	methods := make(map[string]bool)
	for _, m := range c.methodConfigs() {
		if m.Name == "" {
			return fmt.Errorf("auth_methods: method requires a name")
		}
		if methods[m.Name] {
			return fmt.Errorf("auth_methods: duplicate method name %q", m.Name)
		}
		methods[m.Name] = true

		if !levels[m.AuthLevel] {
			return fmt.Errorf("auth_methods: method %s references unknown auth level %q", m.Name, m.AuthLevel)
		}
		if m.StepUp != nil && !levels[m.StepUp.AuthLevel] {
			return fmt.Errorf("auth_methods: step_up of method %s references unknown auth level %q",
				m.Name, m.StepUp.AuthLevel)
		}
	}

	// Step-up targets must themselves be configured methods.
	for _, m := range c.methodConfigs() {
		if m.StepUp != nil && !methods[m.StepUp.AuthMethod] {
			return fmt.Errorf("auth_methods: step_up of method %s references unknown method %q",
				m.Name, m.StepUp.AuthMethod)
		}
	}

	scopes := make(map[string]bool, len(c.Authorization.Scopes))
	for _, s := range c.Authorization.Scopes {
		if scopes[s.Name] {
			return fmt.Errorf("authorization: duplicate scope %q", s.Name)
		}
		scopes[s.Name] = true
		if s.AuthLevel != "" && !levels[s.AuthLevel] {
			return fmt.Errorf("authorization: scope %s references unknown auth level %q", s.Name, s.AuthLevel)
		}
	}

	clients := make(map[string]bool, len(c.OAuth.Clients))
	for _, cl := range c.OAuth.Clients {
		if cl.ClientID == "" {
			return fmt.Errorf("oauth: client requires client_id")
		}
		if clients[cl.ClientID] {
			return fmt.Errorf("oauth: duplicate client_id %q", cl.ClientID)
		}
		clients[cl.ClientID] = true
		if len(cl.ResponseURIs) == 0 {
			return fmt.Errorf("oauth: client %s requires at least one response_uri", cl.ClientID)
		}
		for _, scope := range cl.AllowedScopes {
			if !scopes[scope] {
				return fmt.Errorf("oauth: client %s references unknown scope %q", cl.ClientID, scope)
			}
		}
	}

	for _, sp := range c.SAML.ServiceProviders {
		if sp.Name == "" || sp.EntityID == "" {
			return fmt.Errorf("saml: service provider requires name and entity_id")
		}
		if len(sp.ACSUrls) == 0 {
			return fmt.Errorf("saml: service provider %s requires at least one acs_url", sp.Name)
		}
	}

	return nil
}

func (c *Config) validateAppLevel(scope string, al AppAuthLevelConfig, levels map[string]bool) error {
	if al.AuthLevel != "" && !levels[al.AuthLevel] {
		return fmt.Errorf("auth_policy: %s references unknown auth level %q", scope, al.AuthLevel)
	}
	if al.Comparison != "" && !validComparisons[al.Comparison] {
		return fmt.Errorf("auth_policy: %s has invalid comparison %q", scope, al.Comparison)
	}
	return nil
}

// methodConfigs flattens the per-type method lists into their common view.
func (c *Config) methodConfigs() []MethodConfig {
	var out []MethodConfig
	for _, m := range c.AuthMethods.Local {
		out = append(out, m.MethodConfig)
	}
	for _, m := range c.AuthMethods.LDAP {
		out = append(out, m.MethodConfig)
	}
	for _, m := range c.AuthMethods.SamlProxy {
		out = append(out, m.MethodConfig)
	}
	for _, m := range c.AuthMethods.X509 {
		out = append(out, m.MethodConfig)
	}
	return out
}
