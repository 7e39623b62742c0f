package server

import (
	"encoding/json"
	"html/template"
	"net/http"
	"strings"

	"github.com/crewjam/saml"
	"go.uber.org/zap"

	"github.com/identio/identio-server-sub001/internal/logging"
	"github.com/identio/identio-server-sub001/internal/model"
	"github.com/identio/identio-server-sub001/internal/oauth"
)

var autoPostTemplate = template.Must(template.New("autopost").Parse(`<!DOCTYPE html>
<html>
<body onload="document.forms[0].submit()">
<form method="post" action="{{.URL}}">
<input type="hidden" name="SAMLResponse" value="{{.SAMLResponse}}"/>
{{if .RelayState}}<input type="hidden" name="RelayState" value="{{.RelayState}}"/>{{end}}
<noscript><input type="submit" value="Continue"/></noscript>
</form>
</body>
</html>`))

// handleSamlRedirectSSO processes an authentication request on the redirect
// binding.
func (s *Server) handleSamlRedirectSSO(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	samlRequest := query.Get("SAMLRequest")
	if samlRequest == "" {
		http.Error(w, "missing SAMLRequest", http.StatusBadRequest)
		return
	}

	req := model.SamlInboundRequest{
		Binding:           saml.HTTPRedirectBinding,
		SerializedRequest: []byte(samlRequest),
		RelayState:        query.Get("RelayState"),
		SignatureValue:    query.Get("Signature"),
		SignatureAlg:      query.Get("SigAlg"),
		SignedInfo:        signedQueryString(r.URL.RawQuery),
	}
	s.processInboundRequest(w, r, req)
}

// handleSamlPostSSO processes an authentication request on the POST binding.
func (s *Server) handleSamlPostSSO(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "failed to parse form", http.StatusBadRequest)
		return
	}
	samlRequest := r.PostFormValue("SAMLRequest")
	if samlRequest == "" {
		http.Error(w, "missing SAMLRequest", http.StatusBadRequest)
		return
	}

	req := model.SamlInboundRequest{
		Binding:           saml.HTTPPostBinding,
		SerializedRequest: []byte(samlRequest),
		RelayState:        r.PostFormValue("RelayState"),
	}
	s.processInboundRequest(w, r, req)
}

func (s *Server) handleSamlMetadata(w http.ResponseWriter, _ *http.Request) {
	data, err := s.saml.Metadata()
	if err != nil {
		http.Error(w, "failed to generate metadata", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/samlmetadata+xml")
	w.Write(data)
}

// handleOAuthAuthorize processes an OAuth 2 authorization request.
func (s *Server) handleOAuthAuthorize(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := model.OAuthInboundRequest{
		ClientID:     query.Get("client_id"),
		ResponseType: query.Get("response_type"),
		RedirectURI:  query.Get("redirect_uri"),
		State:        query.Get("state"),
	}
	if scope := query.Get("scope"); scope != "" {
		req.Scopes = strings.Fields(scope)
	}
	s.processInboundRequest(w, r, req)
}

// handleOAuthToken exchanges an authorization code for an access token.
func (s *Server) handleOAuthToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeTokenError(w, "invalid_request")
		return
	}
	if r.PostFormValue("grant_type") != "authorization_code" {
		writeTokenError(w, "unsupported_grant_type")
		return
	}

	response, err := s.oauth.ExchangeCode(
		r.PostFormValue("client_id"),
		r.PostFormValue("code"),
		r.PostFormValue("redirect_uri"))
	if err != nil {
		switch err {
		case oauth.ErrInvalidClient:
			writeTokenError(w, "invalid_client")
		case oauth.ErrInvalidGrant:
			writeTokenError(w, "invalid_grant")
		default:
			logging.Error("Token endpoint failure", zap.Error(err))
			writeTokenError(w, "server_error")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	json.NewEncoder(w).Encode(response)
}

// handleSamlProxyACS receives the response from a remote identity provider.
// The relay state carries the transaction identifier set when the round was
// initiated.
func (s *Server) handleSamlProxyACS(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "failed to parse form", http.StatusBadRequest)
		return
	}

	auth := model.SamlResponseAuthentication{
		SerializedResponse: r.PostFormValue("SAMLResponse"),
	}
	transactionID := r.PostFormValue("RelayState")

	result, err := s.orchestration.ValidateSamlProxyAuthentication(r.Context(),
		s.sessionID(r), transactionID, auth)
	if err != nil {
		logging.Error("Proxy response processing failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.renderResult(w, r, result)
}

// processInboundRequest runs a protocol request through the orchestration
// engine, trying the TLS client certificate as a transparent credential.
func (s *Server) processInboundRequest(w http.ResponseWriter, r *http.Request, req model.InboundRequest) {
	var transparentAuth model.Authentication
	if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
		transparentAuth = model.X509Authentication{Certificates: r.TLS.PeerCertificates}
	}

	result, err := s.orchestration.ValidateAuthentRequest(r.Context(), req, s.sessionID(r), transparentAuth)
	if err != nil {
		logging.Error("Request processing failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.renderResult(w, r, result)
}

// renderResult translates a validation result into a browser response.
func (s *Server) renderResult(w http.ResponseWriter, r *http.Request, result *model.ValidationResult) {
	s.setSession(w, result.SessionID)

	switch result.State {
	case model.StateResponse:
		s.renderResponseData(w, r, result)

	case model.StateAuth, model.StateStepUp, model.StateConsent:
		w.Header().Set(transactionHeader, result.TransactionID)
		http.Redirect(w, r, s.loginURL(result.TransactionID), http.StatusFound)

	default:
		http.Error(w, string(result.ErrorStatus), http.StatusBadRequest)
	}
}

// renderResponseData sends the protocol response: a redirect for OAuth, an
// auto-posting form for SAML.
func (s *Server) renderResponseData(w http.ResponseWriter, r *http.Request, result *model.ValidationResult) {
	data := result.ResponseData

	if result.RequestInfo != nil && result.RequestInfo.ProtocolType == model.ProtocolOAuth {
		http.Redirect(w, r, data.URL, http.StatusFound)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := autoPostTemplate.Execute(w, data); err != nil {
		logging.Error("Failed to render response form", zap.Error(err))
	}
}

func writeTokenError(w http.ResponseWriter, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]string{"error": code})
}

// signedQueryString rebuilds the signed portion of the redirect binding query
// from the raw encoded parameters, in protocol order.
func signedQueryString(rawQuery string) string {
	params := map[string]string{}
	for _, pair := range strings.Split(rawQuery, "&") {
		key, value, _ := strings.Cut(pair, "=")
		params[key] = value
	}

	var parts []string
	for _, key := range []string{"SAMLRequest", "RelayState", "SigAlg"} {
		if value, ok := params[key]; ok {
			parts = append(parts, key+"="+value)
		}
	}
	return strings.Join(parts, "&")
}
