package orchestration

import (
	"fmt"
	"sort"

	"github.com/identio/identio-server-sub001/internal/model"
)

// AuthMethods lists the methods the user may attempt in the transaction's
// current state: every explicit target method during initial authentication,
// only the declared step-up method afterwards.
func (s *Service) AuthMethods(sessionID, transactionID string) ([]*model.AuthMethod, error) {
	tx, errResult := s.getTransaction(sessionID, transactionID)
	if errResult != nil {
		return nil, ErrInvalidTransaction
	}

	switch tx.State {
	case model.StateAuth:
		methods := make([]*model.AuthMethod, 0, len(tx.TargetAuthMethods))
		for _, method := range tx.TargetAuthMethods {
			if method.Explicit {
				methods = append(methods, method)
			}
		}
		sort.Slice(methods, func(i, j int) bool { return methods[i].Name < methods[j].Name })
		return methods, nil

	case model.StateStepUp:
		return []*model.AuthMethod{tx.SelectedAuthMethod.StepUp.AuthMethod}, nil

	default:
		return nil, nil
	}
}

// InitSamlRequest starts a brokered authentication round: it returns the
// redirect to the remote identity provider for the chosen method.
func (s *Service) InitSamlRequest(sessionID, transactionID, methodName string) (string, error) {
	tx, errResult := s.getTransaction(sessionID, transactionID)
	if errResult != nil {
		return "", ErrInvalidTransaction
	}

	method, err := s.policy.MethodByName(methodName)
	if err != nil {
		method = nil
	}
	if err := s.policy.CheckAllowedAuthMethods(tx.State, tx.TargetAuthMethods,
		tx.SelectedAuthMethod, method); err != nil {
		return "", err
	}
	if method.SamlProxy == nil {
		return "", fmt.Errorf("orchestration: method %s is not a saml proxy method", methodName)
	}
	if s.proxy == nil {
		return "", fmt.Errorf("orchestration: no proxy initiator configured")
	}

	return s.proxy.InitRequest(method, tx)
}

// ConsentResponse resumes a transaction paused for consent. A denial is
// reported to the relying party; an approval restricts the granted scopes to
// the approved subset and closes the transaction.
func (s *Service) ConsentResponse(sessionID, transactionID string, approved bool,
	approvedScopes []string) (*model.ValidationResult, error) {

	tx, errResult := s.getTransaction(sessionID, transactionID)
	if errResult != nil {
		return errResult, nil
	}
	if tx.State != model.StateConsent {
		return s.retryableError(tx, model.ErrorInvalidTransaction), nil
	}

	info := tx.RequestInfo

	if approved && len(approvedScopes) > 0 {
		granted := make([]model.AuthorizationScope, 0, len(info.RequestedScopes))
		for _, scope := range info.RequestedScopes {
			for _, name := range approvedScopes {
				if scope.Name == name {
					granted = append(granted, scope)
					break
				}
			}
		}
		if len(granted) == 0 {
			approved = false
		} else {
			info.RequestedScopes = granted
		}
	}

	if !approved {
		responseData, err := s.errorResponse(info, model.ErrorOAuthAccessDenied)
		if err != nil {
			return nil, err
		}
		s.transactions.Remove(tx)
		s.metrics.RecordResponse(string(info.ProtocolType), "denied")
		return &model.ValidationResult{
			State:        model.StateResponse,
			SessionID:    tx.UserSession.ID,
			RequestInfo:  info,
			ResponseData: responseData,
			ErrorStatus:  model.ErrorOAuthAccessDenied,
		}, nil
	}

	decision := s.policy.CheckPreviousAuthSessions(tx.UserSession, tx.TargetAuthLevels)
	if decision.NextState != model.StateResponse {
		// The session aged out of compliance while the user deliberated.
		tx.State = model.StateAuth
		return &model.ValidationResult{
			State:         model.StateAuth,
			TransactionID: tx.TransactionID,
			SessionID:     tx.UserSession.ID,
			RequestInfo:   info,
		}, nil
	}

	return s.finishSuccess(tx, decision.ValidatedAuthSession)
}
