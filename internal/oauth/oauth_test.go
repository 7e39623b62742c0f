package oauth

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/identio/identio-server-sub001/internal/authorization"
	"github.com/identio/identio-server-sub001/internal/authpolicy"
	"github.com/identio/identio-server-sub001/internal/config"
	"github.com/identio/identio-server-sub001/internal/model"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Global.PublicFQDN = "https://idp.example.com"
	cfg.AuthPolicy = config.AuthPolicyConfig{
		AuthLevels: []config.AuthLevelConfig{
			{Name: "low", URN: "urn:identio:auth-level:low"},
			{Name: "strong", URN: "urn:identio:auth-level:strong"},
		},
		DefaultAuthLevel: config.AppAuthLevelConfig{AuthLevel: "low"},
	}
	cfg.Authorization = config.AuthorizationConfig{
		Scopes: []config.ScopeConfig{
			{Name: "profile", AuthLevel: "low"},
			{Name: "payments", AuthLevel: "strong", Expiration: 300},
		},
	}
	cfg.OAuth = config.OAuthConfig{
		Clients: []config.OAuthClientConfig{
			{
				ClientID:      "spa",
				Name:          "Single page app",
				ResponseURIs:  []string{"https://spa.example.com/cb", "https://spa.example.com/alt"},
				AllowedScopes: []string{"profile"},
				ResponseTypes: []string{ResponseTypeToken},
			},
			{
				ClientID:      "portal",
				Name:          "Server-side portal",
				ResponseURIs:  []string{"https://portal.example.com/cb"},
				AllowedScopes: []string{"profile", "payments"},
				ResponseTypes: []string{ResponseTypeCode},
				ConsentNeeded: true,
			},
		},
		TokenValidity: time.Hour,
		CodeValidity:  time.Minute,
	}

	policy, err := authpolicy.New(cfg)
	if err != nil {
		t.Fatalf("building policy failed: %v", err)
	}
	scopes, err := authorization.New(cfg, policy)
	if err != nil {
		t.Fatalf("building scopes failed: %v", err)
	}
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key failed: %v", err)
	}

	return New(cfg, scopes, key)
}

func validImplicitRequest() model.OAuthInboundRequest {
	return model.OAuthInboundRequest{
		ClientID:     "spa",
		ResponseType: ResponseTypeToken,
		RedirectURI:  "https://spa.example.com/cb",
		Scopes:       []string{"profile"},
		State:        "xyz",
	}
}

func TestValidationErrorOrdering(t *testing.T) {
	s := newTestService(t)

	cases := []struct {
		name       string
		mutate     func(*model.OAuthInboundRequest)
		wantStatus model.RequestParsingStatus
		wantError  model.ErrorStatus
	}{
		{
			name:       "unknown client is fatal",
			mutate:     func(r *model.OAuthInboundRequest) { r.ClientID = "nobody" },
			wantStatus: model.ParsingFatalError,
			wantError:  model.ErrorOAuthUnknownClient,
		},
		{
			name:       "unknown redirect uri is fatal",
			mutate:     func(r *model.OAuthInboundRequest) { r.RedirectURI = "https://evil.example.com/cb" },
			wantStatus: model.ParsingFatalError,
			wantError:  model.ErrorOAuthUnknownRedirectURI,
		},
		{
			name:       "unsupported response type is reported to the client",
			mutate:     func(r *model.OAuthInboundRequest) { r.ResponseType = "id_token" },
			wantStatus: model.ParsingResponseError,
			wantError:  model.ErrorOAuthUnsupportedResponse,
		},
		{
			name:       "response type not granted to the client",
			mutate:     func(r *model.OAuthInboundRequest) { r.ResponseType = ResponseTypeCode },
			wantStatus: model.ParsingResponseError,
			wantError:  model.ErrorOAuthUnauthorizedClient,
		},
		{
			name:       "unknown scope",
			mutate:     func(r *model.OAuthInboundRequest) { r.Scopes = []string{"admin"} },
			wantStatus: model.ParsingResponseError,
			wantError:  model.ErrorOAuthInvalidScope,
		},
		{
			name:       "scope not granted to the client",
			mutate:     func(r *model.OAuthInboundRequest) { r.Scopes = []string{"payments"} },
			wantStatus: model.ParsingResponseError,
			wantError:  model.ErrorOAuthInvalidScope,
		},
		{
			name:       "empty scope list",
			mutate:     func(r *model.OAuthInboundRequest) { r.Scopes = nil },
			wantStatus: model.ParsingResponseError,
			wantError:  model.ErrorOAuthInvalidScope,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validImplicitRequest()
			tc.mutate(&req)

			info := s.ValidateAuthentRequest(req)
			if info.Status != tc.wantStatus {
				t.Errorf("expected status %s, got %s", tc.wantStatus, info.Status)
			}
			if info.ErrorStatus != tc.wantError {
				t.Errorf("expected error %s, got %s", tc.wantError, info.ErrorStatus)
			}
		})
	}
}

func TestValidRequestCarriesScopeLevels(t *testing.T) {
	s := newTestService(t)

	info := s.ValidateAuthentRequest(validImplicitRequest())
	if info.Status != model.ParsingOK {
		t.Fatalf("expected OK, got %s (%s)", info.Status, info.ErrorStatus)
	}
	if info.SourceApplication != "spa" {
		t.Errorf("expected source spa, got %s", info.SourceApplication)
	}
	if info.ResponseURL != "https://spa.example.com/cb" {
		t.Errorf("unexpected response url %s", info.ResponseURL)
	}
	if len(info.RequestedAuthLevels) != 1 || info.RequestedAuthLevels[0].Name != "low" {
		t.Error("expected the scope's level to be requested")
	}
	if info.AuthLevelComparison != model.ComparisonMinimum {
		t.Errorf("expected minimum comparison, got %s", info.AuthLevelComparison)
	}
	if info.ConsentNeeded {
		t.Error("spa does not require consent")
	}
}

func TestMissingRedirectURIDefaultsToFirstRegistered(t *testing.T) {
	s := newTestService(t)

	req := validImplicitRequest()
	req.RedirectURI = ""

	info := s.ValidateAuthentRequest(req)
	if info.Status != model.ParsingOK {
		t.Fatalf("expected OK, got %s", info.Status)
	}
	if info.ResponseURL != "https://spa.example.com/cb" {
		t.Errorf("expected the first registered uri, got %s", info.ResponseURL)
	}
}

func TestImplicitGrantFragment(t *testing.T) {
	s := newTestService(t)

	info := s.ValidateAuthentRequest(validImplicitRequest())
	session := &model.AuthSession{UserID: "alice"}

	resp, err := s.GenerateSuccessResponse(info, session)
	if err != nil {
		t.Fatalf("GenerateSuccessResponse failed: %v", err)
	}

	base, fragment, found := strings.Cut(resp.URL, "#")
	if !found {
		t.Fatalf("expected a fragment response, got %s", resp.URL)
	}
	if base != "https://spa.example.com/cb" {
		t.Errorf("unexpected base url %s", base)
	}

	values, err := url.ParseQuery(fragment)
	if err != nil {
		t.Fatalf("parsing fragment failed: %v", err)
	}
	if values.Get("token_type") != "Bearer" {
		t.Errorf("expected Bearer token type, got %s", values.Get("token_type"))
	}
	if values.Get("state") != "xyz" {
		t.Errorf("expected state xyz, got %s", values.Get("state"))
	}
	if values.Get("expires_in") != "3600" {
		t.Errorf("expected expires_in 3600, got %s", values.Get("expires_in"))
	}

	claims := parseToken(t, s, values.Get("access_token"))
	if claims["sub"] != "alice" || claims["aud"] != "spa" {
		t.Errorf("unexpected token claims: %v", claims)
	}
	if claims["iss"] != "https://idp.example.com" {
		t.Errorf("unexpected issuer %v", claims["iss"])
	}
	if claims["scope"] != "profile" {
		t.Errorf("unexpected scope claim %v", claims["scope"])
	}
}

func parseToken(t *testing.T, s *Service, raw string) jwt.MapClaims {
	t.Helper()
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return &s.signingKey.PublicKey, nil
	})
	if err != nil {
		t.Fatalf("parsing access token failed: %v", err)
	}
	return claims
}

func TestCodeGrantRoundTrip(t *testing.T) {
	s := newTestService(t)

	info := s.ValidateAuthentRequest(model.OAuthInboundRequest{
		ClientID:     "portal",
		ResponseType: ResponseTypeCode,
		RedirectURI:  "https://portal.example.com/cb",
		Scopes:       []string{"profile", "payments"},
		State:        "abc",
	})
	if info.Status != model.ParsingOK {
		t.Fatalf("expected OK, got %s (%s)", info.Status, info.ErrorStatus)
	}

	resp, err := s.GenerateSuccessResponse(info, &model.AuthSession{UserID: "alice"})
	if err != nil {
		t.Fatalf("GenerateSuccessResponse failed: %v", err)
	}

	parsed, err := url.Parse(resp.URL)
	if err != nil {
		t.Fatalf("parsing response url failed: %v", err)
	}
	code := parsed.Query().Get("code")
	if code == "" {
		t.Fatal("expected a code in the query")
	}
	if parsed.Query().Get("state") != "abc" {
		t.Errorf("expected state abc, got %s", parsed.Query().Get("state"))
	}
	if parsed.Fragment != "" {
		t.Error("code grant must not use the fragment")
	}

	token, err := s.ExchangeCode("portal", code, "https://portal.example.com/cb")
	if err != nil {
		t.Fatalf("ExchangeCode failed: %v", err)
	}
	if token.TokenType != "Bearer" {
		t.Errorf("expected Bearer, got %s", token.TokenType)
	}
	if token.Scope != "profile payments" {
		t.Errorf("unexpected scope %s", token.Scope)
	}
	// The payments scope caps the lifetime below the server default.
	if token.ExpiresIn != 300 {
		t.Errorf("expected the scope expiration to cap the lifetime, got %d", token.ExpiresIn)
	}

	if _, err := s.ExchangeCode("portal", code, "https://portal.example.com/cb"); !errors.Is(err, ErrInvalidGrant) {
		t.Fatal("a code must be single use")
	}
}

func TestExchangeCodeRejectsMismatches(t *testing.T) {
	s := newTestService(t)

	info := s.ValidateAuthentRequest(model.OAuthInboundRequest{
		ClientID:     "portal",
		ResponseType: ResponseTypeCode,
		Scopes:       []string{"profile"},
	})
	resp, err := s.GenerateSuccessResponse(info, &model.AuthSession{UserID: "alice"})
	if err != nil {
		t.Fatalf("GenerateSuccessResponse failed: %v", err)
	}
	parsed, _ := url.Parse(resp.URL)
	code := parsed.Query().Get("code")

	if _, err := s.ExchangeCode("nobody", code, "https://portal.example.com/cb"); !errors.Is(err, ErrInvalidClient) {
		t.Errorf("expected invalid_client for an unknown client, got %v", err)
	}
	if _, err := s.ExchangeCode("portal", "not-a-code", "https://portal.example.com/cb"); !errors.Is(err, ErrInvalidGrant) {
		t.Errorf("expected invalid_grant for an unknown code, got %v", err)
	}
	if _, err := s.ExchangeCode("portal", code, "https://evil.example.com/cb"); !errors.Is(err, ErrInvalidGrant) {
		t.Errorf("expected invalid_grant for a mismatched redirect uri, got %v", err)
	}
}

func TestErrorResponsePlacement(t *testing.T) {
	s := newTestService(t)

	implicit := &model.RequestParsingInfo{
		ResponseURL:  "https://spa.example.com/cb",
		ResponseType: ResponseTypeToken,
		RelayState:   "xyz",
	}
	resp, err := s.GenerateErrorResponse(implicit, model.ErrorOAuthInvalidScope)
	if err != nil {
		t.Fatalf("GenerateErrorResponse failed: %v", err)
	}
	if !strings.Contains(resp.URL, "#") || !strings.Contains(resp.URL, "error=invalid_scope") {
		t.Errorf("expected the error in the fragment, got %s", resp.URL)
	}
	if !strings.Contains(resp.URL, "state=xyz") {
		t.Errorf("expected the state echoed back, got %s", resp.URL)
	}

	codeFlow := &model.RequestParsingInfo{
		ResponseURL:  "https://portal.example.com/cb",
		ResponseType: ResponseTypeCode,
	}
	resp, err = s.GenerateErrorResponse(codeFlow, model.ErrorOAuthAccessDenied)
	if err != nil {
		t.Fatalf("GenerateErrorResponse failed: %v", err)
	}
	if !strings.Contains(resp.URL, "?error=access_denied") {
		t.Errorf("expected the error in the query, got %s", resp.URL)
	}
}
