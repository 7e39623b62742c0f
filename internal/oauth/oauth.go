// Package oauth implements the OAuth 2 authorization endpoint: request
// validation against the client registry and response generation for the
// implicit and authorization-code grants.
package oauth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/identio/identio-server-sub001/internal/authorization"
	"github.com/identio/identio-server-sub001/internal/config"
	"github.com/identio/identio-server-sub001/internal/logging"
	"github.com/identio/identio-server-sub001/internal/model"
)

const (
	ResponseTypeToken = "token"
	ResponseTypeCode  = "code"
)

// Token endpoint failures, mapped to RFC 6749 §5.2 error codes.
var (
	ErrInvalidClient = errors.New("invalid_client")
	ErrInvalidGrant  = errors.New("invalid_grant")
)

// authorizationCode is a pending code-grant awaiting exchange.
type authorizationCode struct {
	clientID    string
	redirectURI string
	userID      string
	scopes      []model.AuthorizationScope
}

// AccessTokenResponse is the token endpoint success payload.
type AccessTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
}

// Service validates authorization requests and mints responses.
type Service struct {
	clients       map[string]*Client
	authorization *authorization.Service

	issuer        string
	signingKey    *rsa.PrivateKey
	tokenValidity time.Duration

	codes *expirable.LRU[string, *authorizationCode]
}

// New builds the service from the client registry and the server signing key.
func New(cfg *config.Config, scopes *authorization.Service, signingKey *rsa.PrivateKey) *Service {
	return &Service{
		clients:       buildClients(cfg.OAuth.Clients),
		authorization: scopes,
		issuer:        cfg.Global.PublicFQDN,
		signingKey:    signingKey,
		tokenValidity: cfg.OAuth.TokenValidity,
		codes:         expirable.NewLRU[string, *authorizationCode](10000, nil, cfg.OAuth.CodeValidity),
	}
}

// Client returns the registered client for an id.
func (s *Service) Client(clientID string) (*Client, bool) {
	c, ok := s.clients[clientID]
	return c, ok
}

// ValidateAuthentRequest checks an authorization request against the client
// registry and the scope registry. Failures before the redirect endpoint is
// trusted are fatal; later failures are reported to the client.
func (s *Service) ValidateAuthentRequest(req model.OAuthInboundRequest) *model.RequestParsingInfo {
	info := &model.RequestParsingInfo{
		ProtocolType: model.ProtocolOAuth,
		RelayState:   req.State,
	}

	client, ok := s.clients[req.ClientID]
	if !ok {
		logging.Info("Unknown client in authorization request", zap.String("clientId", req.ClientID))
		info.Status = model.ParsingFatalError
		info.ErrorStatus = model.ErrorOAuthUnknownClient
		return info
	}
	info.SourceApplication = client.ClientID

	responseURI := req.RedirectURI
	if responseURI == "" && len(client.ResponseURIs) > 0 {
		responseURI = client.ResponseURIs[0]
	}
	if !client.allowsRedirectURI(responseURI) {
		logging.Info("Unknown redirect uri in authorization request",
			zap.String("clientId", client.ClientID),
			zap.String("redirectUri", responseURI))
		info.Status = model.ParsingFatalError
		info.ErrorStatus = model.ErrorOAuthUnknownRedirectURI
		return info
	}
	info.ResponseURL = responseURI

	if req.ResponseType != ResponseTypeToken && req.ResponseType != ResponseTypeCode {
		info.Status = model.ParsingResponseError
		info.ErrorStatus = model.ErrorOAuthUnsupportedResponse
		return info
	}
	info.ResponseType = req.ResponseType

	if !client.allowsResponseType(req.ResponseType) {
		info.Status = model.ParsingResponseError
		info.ErrorStatus = model.ErrorOAuthUnauthorizedClient
		return info
	}

	scopes, err := s.authorization.GetScopes(req.Scopes)
	if err != nil {
		info.Status = model.ParsingResponseError
		info.ErrorStatus = model.ErrorOAuthInvalidScope
		return info
	}
	for _, scope := range scopes {
		if !client.allowsScope(scope.Name) {
			info.Status = model.ParsingResponseError
			info.ErrorStatus = model.ErrorOAuthInvalidScope
			return info
		}
		info.RequestedScopes = append(info.RequestedScopes, *scope)
		if scope.AuthLevel != nil {
			info.RequestedAuthLevels = append(info.RequestedAuthLevels, scope.AuthLevel)
		}
	}
	if len(info.RequestedAuthLevels) > 0 {
		info.AuthLevelComparison = model.ComparisonMinimum
	}

	info.ConsentNeeded = client.ConsentNeeded
	info.Status = model.ParsingOK
	return info
}

// GenerateSuccessResponse mints the grant for a completed transaction: a
// bearer token in the fragment for the implicit grant, a one-time code in the
// query for the code grant.
func (s *Service) GenerateSuccessResponse(info *model.RequestParsingInfo,
	authSession *model.AuthSession) (*model.ResponseData, error) {

	switch info.ResponseType {
	case ResponseTypeToken:
		token, expiresIn, err := s.mintAccessToken(info.SourceApplication, authSession.UserID, info.RequestedScopes)
		if err != nil {
			return nil, err
		}

		fragment := url.Values{}
		fragment.Set("access_token", token)
		fragment.Set("token_type", "Bearer")
		fragment.Set("expires_in", strconv.Itoa(expiresIn))
		if info.RelayState != "" {
			fragment.Set("state", info.RelayState)
		}
		return &model.ResponseData{URL: info.ResponseURL + "#" + fragment.Encode()}, nil

	case ResponseTypeCode:
		code := uuid.NewString()
		s.codes.Add(code, &authorizationCode{
			clientID:    info.SourceApplication,
			redirectURI: info.ResponseURL,
			userID:      authSession.UserID,
			scopes:      info.RequestedScopes,
		})

		query := url.Values{}
		query.Set("code", code)
		if info.RelayState != "" {
			query.Set("state", info.RelayState)
		}
		return &model.ResponseData{URL: info.ResponseURL + "?" + query.Encode()}, nil

	default:
		return nil, fmt.Errorf("oauth: unsupported response type %s", info.ResponseType)
	}
}

// GenerateErrorResponse reports a failure back to the client redirect
// endpoint.
func (s *Service) GenerateErrorResponse(info *model.RequestParsingInfo,
	status model.ErrorStatus) (*model.ResponseData, error) {

	values := url.Values{}
	values.Set("error", string(status))
	if info.RelayState != "" {
		values.Set("state", info.RelayState)
	}

	separator := "#"
	if info.ResponseType == ResponseTypeCode {
		separator = "?"
	}
	return &model.ResponseData{URL: info.ResponseURL + separator + values.Encode()}, nil
}

// ExchangeCode swaps a one-time authorization code for an access token.
func (s *Service) ExchangeCode(clientID, code, redirectURI string) (*AccessTokenResponse, error) {
	client, ok := s.clients[clientID]
	if !ok {
		return nil, ErrInvalidClient
	}

	grant, ok := s.codes.Get(code)
	if !ok {
		return nil, ErrInvalidGrant
	}
	s.codes.Remove(code)

	if grant.clientID != client.ClientID || grant.redirectURI != redirectURI {
		logging.Info("Authorization code presented with mismatched client or redirect uri",
			zap.String("clientId", clientID))
		return nil, ErrInvalidGrant
	}

	token, expiresIn, err := s.mintAccessToken(grant.clientID, grant.userID, grant.scopes)
	if err != nil {
		return nil, err
	}

	return &AccessTokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   expiresIn,
		Scope:       scopeNames(grant.scopes),
	}, nil
}

func (s *Service) mintAccessToken(clientID, userID string,
	scopes []model.AuthorizationScope) (string, int, error) {

	validity := s.tokenValidity
	for _, scope := range scopes {
		if scope.Expiration > 0 {
			scopeValidity := time.Duration(scope.Expiration) * time.Second
			if scopeValidity < validity {
				validity = scopeValidity
			}
		}
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   s.issuer,
		"sub":   userID,
		"aud":   clientID,
		"iat":   now.Unix(),
		"exp":   now.Add(validity).Unix(),
		"jti":   uuid.NewString(),
		"scope": scopeNames(scopes),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", 0, fmt.Errorf("oauth: failed to sign access token: %w", err)
	}
	return token, int(validity.Seconds()), nil
}

func scopeNames(scopes []model.AuthorizationScope) string {
	names := make([]string, len(scopes))
	for i, scope := range scopes {
		names[i] = scope.Name
	}
	return strings.Join(names, " ")
}
