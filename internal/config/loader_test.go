package config

import (
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
global:
  public_fqdn: https://idp.example.com
  port: 9443

auth_policy:
  auth_levels:
    - name: low
      urn: urn:identio:auth-level:low
    - name: strong
      urn: urn:identio:auth-level:strong
  default_auth_level:
    auth_level: low
    comparison: minimum

auth_methods:
  local:
    - name: corporate
      auth_level: low
      user_file_path: users.yaml
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := NewLoader().Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Global.PublicFQDN != "https://idp.example.com" {
		t.Errorf("unexpected fqdn %s", cfg.Global.PublicFQDN)
	}
	if cfg.Global.Port != 9443 {
		t.Errorf("expected the file to override the port, got %d", cfg.Global.Port)
	}
	if cfg.Global.BasePath != "/" {
		t.Errorf("expected the default base path, got %s", cfg.Global.BasePath)
	}
	if cfg.Sessions.Duration != 2*time.Hour {
		t.Errorf("expected the default session duration, got %s", cfg.Sessions.Duration)
	}
	if cfg.OAuth.TokenValidity != time.Hour {
		t.Errorf("expected the default token validity, got %s", cfg.OAuth.TokenValidity)
	}
}

func TestParseExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("IDP_FQDN", "https://env.example.com")

	yaml := strings.Replace(minimalYAML, "https://idp.example.com", "${IDP_FQDN}", 1)
	cfg, err := NewLoader().Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Global.PublicFQDN != "https://env.example.com" {
		t.Errorf("expected the env var expanded, got %s", cfg.Global.PublicFQDN)
	}
}

func TestParseRejectsInvalidYAML(t *testing.T) {
	if _, err := NewLoader().Parse([]byte("global: [")); err == nil {
		t.Fatal("expected a parse error")
	}
}
