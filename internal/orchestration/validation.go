package orchestration

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/identio/identio-server-sub001/internal/authpolicy"
	"github.com/identio/identio-server-sub001/internal/logging"
	"github.com/identio/identio-server-sub001/internal/model"
)

// ValidateAuthentRequest processes an inbound protocol request: wire
// validation, session lookup, transaction creation and policy evaluation.
// When a transparent credential is present it is tried before asking the
// user for an explicit authentication.
func (s *Service) ValidateAuthentRequest(ctx context.Context, req model.InboundRequest,
	sessionID string, transparentAuth model.Authentication) (*model.ValidationResult, error) {

	var info *model.RequestParsingInfo
	switch r := req.(type) {
	case model.SamlInboundRequest:
		info = s.saml.ValidateAuthentRequest(r)
	case model.OAuthInboundRequest:
		info = s.oauth.ValidateAuthentRequest(r)
	default:
		return nil, fmt.Errorf("orchestration: unsupported request type %T", req)
	}
	s.metrics.RecordRequest(string(info.ProtocolType), string(info.Status))

	switch info.Status {
	case model.ParsingFatalError:
		return &model.ValidationResult{
			State:       model.StateError,
			RequestInfo: info,
			ErrorStatus: info.ErrorStatus,
		}, nil

	case model.ParsingResponseError:
		responseData, err := s.errorResponse(info, info.ErrorStatus)
		if err != nil {
			return nil, err
		}
		s.metrics.RecordResponse(string(info.ProtocolType), "error")
		return &model.ValidationResult{
			State:        model.StateResponse,
			RequestInfo:  info,
			ResponseData: responseData,
			ErrorStatus:  info.ErrorStatus,
		}, nil
	}

	userSession := s.sessions.GetOrCreate(sessionID)

	tx := s.transactions.Create()
	tx.UserSession = userSession
	tx.RequestInfo = info
	tx.State = model.StateAuth
	tx.TargetAuthLevels = s.policy.DetermineTargetAuthLevels(info)
	tx.TargetAuthMethods = s.policy.DetermineTargetAuthMethods(tx.TargetAuthLevels)

	logging.Info("Started authentication transaction",
		zap.String("transactionId", tx.TransactionID),
		zap.String("protocol", string(info.ProtocolType)),
		zap.String("app", info.SourceApplication),
		zap.Bool("forceAuth", info.ForceAuthentication))

	if !info.ForceAuthentication {
		decision := s.policy.CheckPreviousAuthSessions(userSession, tx.TargetAuthLevels)
		if decision.NextState == model.StateResponse {
			return s.finishSuccess(tx, decision.ValidatedAuthSession)
		}
	}

	if transparentAuth != nil {
		result := s.authenticator.ValidateTransparent(ctx, transparentAuth, tx)
		if result != nil && result.Status == model.AuthSuccess {
			s.metrics.RecordAuthAttempt(result.AuthMethod.Name, "success")
			return s.handleAuthSuccess(tx, result)
		}
	}

	return &model.ValidationResult{
		State:         model.StateAuth,
		TransactionID: tx.TransactionID,
		SessionID:     userSession.ID,
		RequestInfo:   info,
	}, nil
}

// ValidateExplicitAuthentication verifies a credential submitted for an
// in-flight transaction. Credential failures keep the transaction alive for
// a retry. An omitted method name targets the method already selected
// earlier in this transaction.
func (s *Service) ValidateExplicitAuthentication(ctx context.Context, sessionID, transactionID,
	methodName string, auth model.Authentication) (*model.ValidationResult, error) {

	tx, errResult := s.getTransaction(sessionID, transactionID)
	if errResult != nil {
		return errResult, nil
	}

	if auth == nil {
		return s.retryableError(tx, model.ErrorAuthNoCredentials), nil
	}

	method := tx.SelectedAuthMethod
	if methodName != "" {
		method, _ = s.policy.MethodByName(methodName)
	}
	if err := s.policy.CheckAllowedAuthMethods(tx.State, tx.TargetAuthMethods,
		tx.SelectedAuthMethod, method); err != nil {
		return s.retryableError(tx, methodError(err)), nil
	}
	if tx.State == model.StateAuth {
		tx.SelectedAuthMethod = method
	}

	return s.validateWithMethod(ctx, tx, method, auth)
}

// ValidateSamlProxyAuthentication verifies a response from a remote identity
// provider against the method previously selected on the transaction.
func (s *Service) ValidateSamlProxyAuthentication(ctx context.Context, sessionID,
	transactionID string, auth model.Authentication) (*model.ValidationResult, error) {

	tx, errResult := s.getTransaction(sessionID, transactionID)
	if errResult != nil {
		return errResult, nil
	}

	if tx.SelectedAuthMethod == nil || tx.SelectedAuthMethod.SamlProxy == nil {
		return s.retryableError(tx, model.ErrorAuthMethodNotAllowed), nil
	}
	return s.validateWithMethod(ctx, tx, tx.SelectedAuthMethod, auth)
}

func (s *Service) validateWithMethod(ctx context.Context, tx *model.TransactionData,
	method *model.AuthMethod, auth model.Authentication) (*model.ValidationResult, error) {

	result := s.authenticator.ValidateExplicit(ctx, method, auth, tx)
	if result == nil {
		logging.Error("No provider accepted the submitted credentials",
			zap.String("method", method.Name),
			zap.String("transactionId", tx.TransactionID))
		return s.retryableError(tx, model.ErrorAuthTechnicalError), nil
	}

	switch result.Status {
	case model.AuthChallenge:
		return &model.ValidationResult{
			State:          tx.State,
			TransactionID:  tx.TransactionID,
			SessionID:      tx.UserSession.ID,
			RequestInfo:    tx.RequestInfo,
			ChallengeType:  result.ChallengeType,
			ChallengeValue: result.ChallengeValue,
		}, nil

	case model.AuthFail:
		s.metrics.RecordAuthAttempt(method.Name, "failure")
		return s.retryableError(tx, result.ErrorStatus), nil
	}

	s.metrics.RecordAuthAttempt(method.Name, "success")
	return s.handleAuthSuccess(tx, result)
}

// ValidateTransparentAuthentication verifies an ambient credential, such as
// a TLS client certificate, against an in-flight transaction. Transparent
// credentials can only open an authentication round: a transaction paused on
// a mandated step-up or on user consent rejects them.
func (s *Service) ValidateTransparentAuthentication(ctx context.Context, sessionID,
	transactionID string, auth model.Authentication) (*model.ValidationResult, error) {

	tx, errResult := s.getTransaction(sessionID, transactionID)
	if errResult != nil {
		return errResult, nil
	}

	if tx.State != model.StateAuth {
		return s.retryableError(tx, model.ErrorAuthMethodNotAllowed), nil
	}

	result := s.authenticator.ValidateTransparent(ctx, auth, tx)
	if result == nil {
		return s.retryableError(tx, model.ErrorAuthNoCredentials), nil
	}

	if result.Status == model.AuthChallenge {
		return &model.ValidationResult{
			State:          tx.State,
			TransactionID:  tx.TransactionID,
			SessionID:      tx.UserSession.ID,
			RequestInfo:    tx.RequestInfo,
			ChallengeType:  result.ChallengeType,
			ChallengeValue: result.ChallengeValue,
		}, nil
	}

	s.metrics.RecordAuthAttempt(result.AuthMethod.Name, "success")
	return s.handleAuthSuccess(tx, result)
}

// handleAuthSuccess applies the policy to a successful credential check and
// advances the transaction.
func (s *Service) handleAuthSuccess(tx *model.TransactionData,
	result *model.AuthenticationResult) (*model.ValidationResult, error) {

	if tx.State == model.StateStepUp {
		expected := tx.AuthenticatedUserID
		if expected == "" {
			expected = tx.UserSession.UserID
		}
		if expected != "" && expected != result.UserID {
			logging.Warn("Step-up authentication for a different user",
				zap.String("transactionId", tx.TransactionID),
				zap.String("expectedUser", expected),
				zap.String("authenticatedUser", result.UserID))
			s.transactions.Remove(tx)
			return &model.ValidationResult{
				State:       model.StateError,
				RequestInfo: tx.RequestInfo,
				ErrorStatus: model.ErrorAuthUserIDMismatch,
			}, nil
		}
	}

	decision := s.policy.CheckAuthPolicyCompliance(tx.UserSession, result,
		tx.TargetAuthLevels, tx.SelectedAuthMethod, tx.State)

	switch decision.NextState {
	case model.StateStepUp:
		tx.State = model.StateStepUp
		tx.SelectedAuthMethod = result.AuthMethod
		tx.AuthenticatedUserID = result.UserID
		logging.Info("Step-up authentication required",
			zap.String("transactionId", tx.TransactionID),
			zap.String("method", result.AuthMethod.Name),
			zap.String("stepUpMethod", result.AuthMethod.StepUp.AuthMethod.Name))
		return &model.ValidationResult{
			State:         model.StateStepUp,
			TransactionID: tx.TransactionID,
			SessionID:     tx.UserSession.ID,
			RequestInfo:   tx.RequestInfo,
		}, nil

	case model.StateResponse:
		return s.finishSuccess(tx, decision.ValidatedAuthSession)

	default:
		return s.retryableError(tx, model.ErrorAuthLevelInsufficient), nil
	}
}

// finishSuccess closes a transaction with a protocol response, detouring
// through user consent when the relying party requires it.
func (s *Service) finishSuccess(tx *model.TransactionData,
	authSession *model.AuthSession) (*model.ValidationResult, error) {

	info := tx.RequestInfo

	if info.ConsentNeeded && tx.State != model.StateConsent {
		tx.State = model.StateConsent
		return &model.ValidationResult{
			State:         model.StateConsent,
			TransactionID: tx.TransactionID,
			SessionID:     tx.UserSession.ID,
			RequestInfo:   info,
		}, nil
	}

	responseData, err := s.successResponse(info, authSession)
	if err != nil {
		return nil, err
	}
	s.transactions.Remove(tx)
	s.metrics.RecordResponse(string(info.ProtocolType), "success")

	logging.Info("Completed authentication transaction",
		zap.String("transactionId", tx.TransactionID),
		zap.String("user", authSession.UserID),
		zap.String("authLevel", authSession.AuthLevel.Name))

	return &model.ValidationResult{
		State:        model.StateResponse,
		SessionID:    tx.UserSession.ID,
		RequestInfo:  info,
		ResponseData: responseData,
	}, nil
}

// retryableError reports a failure that keeps the transaction alive.
func (s *Service) retryableError(tx *model.TransactionData,
	status model.ErrorStatus) *model.ValidationResult {

	return &model.ValidationResult{
		State:         tx.State,
		TransactionID: tx.TransactionID,
		SessionID:     tx.UserSession.ID,
		RequestInfo:   tx.RequestInfo,
		ErrorStatus:   status,
	}
}

// getTransaction fetches a transaction and verifies it belongs to the
// caller's session. A transaction presented with the wrong session is
// destroyed.
func (s *Service) getTransaction(sessionID, transactionID string) (*model.TransactionData, *model.ValidationResult) {
	tx, ok := s.transactions.Get(transactionID)
	if !ok {
		return nil, &model.ValidationResult{
			State:       model.StateError,
			ErrorStatus: model.ErrorInvalidTransaction,
		}
	}

	if tx.UserSession == nil || tx.UserSession.ID != sessionID {
		logging.Warn("Transaction presented with a foreign session identifier",
			zap.String("transactionId", transactionID))
		s.transactions.Remove(tx)
		return nil, &model.ValidationResult{
			State:       model.StateError,
			ErrorStatus: model.ErrorInvalidTransaction,
		}
	}

	return tx, nil
}

func methodError(err error) model.ErrorStatus {
	if err == authpolicy.ErrUnknownAuthMethod {
		return model.ErrorAuthMethodUnknown
	}
	return model.ErrorAuthMethodNotAllowed
}
