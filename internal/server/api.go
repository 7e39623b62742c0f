package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	apierrors "github.com/identio/identio-server-sub001/internal/errors"
	"github.com/identio/identio-server-sub001/internal/logging"
	"github.com/identio/identio-server-sub001/internal/model"
	"github.com/identio/identio-server-sub001/internal/orchestration"
)

// authMethodInfo is one selectable method presented to the login UI.
type authMethodInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// authResponse is the API view of a validation result.
type authResponse struct {
	State          string           `json:"state"`
	ErrorStatus    string           `json:"errorStatus,omitempty"`
	ChallengeType  string           `json:"challengeType,omitempty"`
	ChallengeValue string           `json:"challengeValue,omitempty"`
	Response       *responsePayload `json:"response,omitempty"`
}

type responsePayload struct {
	URL          string `json:"url"`
	SAMLResponse string `json:"samlResponse,omitempty"`
	RelayState   string `json:"relayState,omitempty"`
}

type passwordSubmission struct {
	Method            string `json:"method"`
	Login             string `json:"login"`
	Password          string `json:"password"`
	ChallengeResponse string `json:"challengeResponse"`
}

type samlInitRequest struct {
	Method string `json:"method"`
}

type consentSubmission struct {
	Approved bool     `json:"approved"`
	Scopes   []string `json:"scopes"`
}

// handleAuthMethods lists the methods available for the transaction.
func (s *Server) handleAuthMethods(w http.ResponseWriter, r *http.Request) {
	transactionID := r.Header.Get(transactionHeader)
	if transactionID == "" {
		apierrors.ErrBadRequest.WithDetails("missing transaction header").WriteJSON(w)
		return
	}

	methods, err := s.orchestration.AuthMethods(s.sessionID(r), transactionID)
	if err != nil {
		apierrors.ErrForbidden.WithDetails("invalid transaction").WriteJSON(w)
		return
	}

	infos := make([]authMethodInfo, 0, len(methods))
	for _, method := range methods {
		infos = append(infos, authMethodInfo{Name: method.Name, Type: method.Type})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(infos)
}

// handleSubmitPassword verifies a login and password for the transaction.
func (s *Server) handleSubmitPassword(w http.ResponseWriter, r *http.Request) {
	transactionID := r.Header.Get(transactionHeader)
	if transactionID == "" {
		apierrors.ErrBadRequest.WithDetails("missing transaction header").WriteJSON(w)
		return
	}

	var submission passwordSubmission
	if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
		apierrors.ErrBadRequest.WithDetails("invalid request body").WriteJSON(w)
		return
	}

	auth := model.UserPasswordAuthentication{
		UserID:    submission.Login,
		Password:  submission.Password,
		Challenge: submission.ChallengeResponse,
	}

	result, err := s.orchestration.ValidateExplicitAuthentication(r.Context(),
		s.sessionID(r), transactionID, submission.Method, auth)
	if err != nil {
		logging.Error("Authentication processing failed", zap.Error(err))
		apierrors.ErrInternalServer.WriteJSON(w)
		return
	}
	s.writeAuthResponse(w, result)
}

// handleSubmitTransparent tries the TLS client certificate against the
// transaction.
func (s *Server) handleSubmitTransparent(w http.ResponseWriter, r *http.Request) {
	transactionID := r.Header.Get(transactionHeader)
	if transactionID == "" {
		apierrors.ErrBadRequest.WithDetails("missing transaction header").WriteJSON(w)
		return
	}
	if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
		apierrors.ErrBadRequest.WithDetails("no client certificate presented").WriteJSON(w)
		return
	}

	auth := model.X509Authentication{Certificates: r.TLS.PeerCertificates}
	result, err := s.orchestration.ValidateTransparentAuthentication(r.Context(),
		s.sessionID(r), transactionID, auth)
	if err != nil {
		logging.Error("Authentication processing failed", zap.Error(err))
		apierrors.ErrInternalServer.WriteJSON(w)
		return
	}
	s.writeAuthResponse(w, result)
}

// handleInitSamlRequest starts a brokered round with a remote identity
// provider and returns the redirect for the browser to follow.
func (s *Server) handleInitSamlRequest(w http.ResponseWriter, r *http.Request) {
	transactionID := r.Header.Get(transactionHeader)
	if transactionID == "" {
		apierrors.ErrBadRequest.WithDetails("missing transaction header").WriteJSON(w)
		return
	}

	var req samlInitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ErrBadRequest.WithDetails("invalid request body").WriteJSON(w)
		return
	}

	destination, err := s.orchestration.InitSamlRequest(s.sessionID(r), transactionID, req.Method)
	if err != nil {
		if err == orchestration.ErrInvalidTransaction {
			apierrors.ErrForbidden.WithDetails("invalid transaction").WriteJSON(w)
			return
		}
		apierrors.ErrBadRequest.WithDetails(err.Error()).WriteJSON(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"destinationUrl": destination})
}

// handleConsent resumes a transaction paused for user consent.
func (s *Server) handleConsent(w http.ResponseWriter, r *http.Request) {
	transactionID := r.Header.Get(transactionHeader)
	if transactionID == "" {
		apierrors.ErrBadRequest.WithDetails("missing transaction header").WriteJSON(w)
		return
	}

	var submission consentSubmission
	if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
		apierrors.ErrBadRequest.WithDetails("invalid request body").WriteJSON(w)
		return
	}

	result, err := s.orchestration.ConsentResponse(s.sessionID(r), transactionID,
		submission.Approved, submission.Scopes)
	if err != nil {
		logging.Error("Consent processing failed", zap.Error(err))
		apierrors.ErrInternalServer.WriteJSON(w)
		return
	}
	s.writeAuthResponse(w, result)
}

// writeAuthResponse serializes a validation result for the login UI.
func (s *Server) writeAuthResponse(w http.ResponseWriter, result *model.ValidationResult) {
	s.setSession(w, result.SessionID)

	response := authResponse{
		State:          string(result.State),
		ErrorStatus:    string(result.ErrorStatus),
		ChallengeType:  result.ChallengeType,
		ChallengeValue: result.ChallengeValue,
	}
	if result.ResponseData != nil {
		response.Response = &responsePayload{
			URL:          result.ResponseData.URL,
			SAMLResponse: result.ResponseData.SAMLResponse,
			RelayState:   result.ResponseData.RelayState,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
