package authpolicy

import (
	"go.uber.org/zap"

	"github.com/identio/identio-server-sub001/internal/logging"
	"github.com/identio/identio-server-sub001/internal/model"
)

// DetermineTargetAuthLevels computes the levels sufficient for a request.
//
// Requested levels carried in the request are honored only when the protocol
// layer populated them, which it does solely for integrity-protected
// requests. Otherwise the application-specific policy applies, and failing
// that the global default.
func (s *Service) DetermineTargetAuthLevels(info *model.RequestParsingInfo) []*model.AuthLevel {
	var requested []*model.AuthLevel
	var comparison model.Comparison

	switch {
	case len(info.RequestedAuthLevels) > 0:
		requested = info.RequestedAuthLevels
		comparison = info.AuthLevelComparison
		if comparison == "" {
			comparison = model.ComparisonExact
		}
		logging.Debug("Applying auth level requested by the request",
			zap.String("comparison", string(comparison)))

	default:
		appLevel := s.appLevels[info.SourceApplication]
		if appLevel == nil {
			appLevel = s.defaultLevel
		}
		requested = []*model.AuthLevel{appLevel.AuthLevel}
		comparison = appLevel.Comparison
		logging.Debug("Applying configured auth level",
			zap.String("app", info.SourceApplication),
			zap.String("level", appLevel.AuthLevel.Name),
			zap.String("comparison", string(comparison)))
	}

	// Union across requested levels: a configured level qualifies when it
	// satisfies the comparison against any of them.
	var target []*model.AuthLevel
	for _, level := range s.levels {
		for _, req := range requested {
			if satisfies(comparison, level.Strength, req.Strength) {
				target = append(target, level)
				break
			}
		}
	}

	if len(target) == 0 {
		// Nothing satisfies the policy: a configuration problem, not a
		// request error.
		logging.Warn("No configured auth level satisfies the requested policy",
			zap.String("app", info.SourceApplication))
	}

	return target
}

func satisfies(c model.Comparison, strength, requested int) bool {
	switch c {
	case model.ComparisonExact:
		return strength == requested
	case model.ComparisonMinimum:
		return strength >= requested
	case model.ComparisonMaximum:
		return strength <= requested
	case model.ComparisonBetter:
		return strength > requested
	}
	return false
}

// DetermineTargetAuthMethods selects the methods able to reach one of the
// target levels. A brokering method qualifies if any target level has an
// upstream context mapping; any other method qualifies iff its own level is a
// target.
func (s *Service) DetermineTargetAuthMethods(targetLevels []*model.AuthLevel) map[string]*model.AuthMethod {
	target := make(map[string]*model.AuthMethod)

	for _, method := range s.methods {
		if method.SamlProxy != nil {
			for _, level := range targetLevels {
				if _, ok := method.SamlProxy.OutMap[level.Name]; ok {
					target[method.Name] = method
					break
				}
			}
			continue
		}

		if levelIn(method.AuthLevel, targetLevels) {
			target[method.Name] = method
		}
	}

	return target
}

// CheckPreviousAuthSessions scans the user session for a previously completed
// authentication at one of the target levels. First match wins, in insertion
// order.
func (s *Service) CheckPreviousAuthSessions(userSession *model.UserSession,
	targetLevels []*model.AuthLevel) model.AuthPolicyDecision {

	for _, authSession := range userSession.AuthSessions {
		if levelIn(authSession.AuthLevel, targetLevels) {
			logging.Debug("Found compliant auth session",
				zap.String("level", authSession.AuthLevel.Name))
			return model.AuthPolicyDecision{
				NextState:            model.StateResponse,
				ValidatedAuthSession: authSession,
			}
		}
	}

	logging.Debug("No compliant auth session found, explicit authentication required")
	return model.AuthPolicyDecision{NextState: model.StateAuth}
}

// CheckAllowedAuthMethods verifies that the submitted method is permitted in
// the current transaction state. In AUTH any target method is allowed; in
// STEP_UP_AUTHENTICATION only the step-up declared by the previously selected
// method is.
func (s *Service) CheckAllowedAuthMethods(state model.State, targetMethods map[string]*model.AuthMethod,
	selectedMethod, submittedMethod *model.AuthMethod) error {

	if submittedMethod == nil {
		return ErrUnknownAuthMethod
	}

	switch state {
	case model.StateAuth:
		if _, ok := targetMethods[submittedMethod.Name]; !ok {
			return ErrAuthMethodNotAllowed
		}
	case model.StateStepUp:
		if selectedMethod == nil || selectedMethod.StepUp == nil ||
			!submittedMethod.Equal(selectedMethod.StepUp.AuthMethod) {
			return ErrAuthMethodNotAllowed
		}
	default:
		return ErrAuthMethodNotAllowed
	}

	return nil
}

// CheckAuthPolicyCompliance decides the next transaction state after a
// successful credential verification.
//
// A completed step-up round reaches RESPONSE at the step-up's declared level.
// A method declaring its own step-up forces exactly one more round. Otherwise
// the attempt satisfies the transaction iff the achieved level is a target;
// a success below the required level leaves the state unchanged and the
// caller retries with a stronger method.
func (s *Service) CheckAuthPolicyCompliance(userSession *model.UserSession,
	result *model.AuthenticationResult, targetLevels []*model.AuthLevel,
	selectedMethod *model.AuthMethod, state model.State) model.AuthPolicyDecision {

	if state == model.StateStepUp {
		authSession := userSession.AddAuthSession(result.UserID, selectedMethod,
			selectedMethod.StepUp.AuthLevel)
		return model.AuthPolicyDecision{
			NextState:            model.StateResponse,
			ValidatedAuthSession: authSession,
		}
	}

	if result.AuthMethod != nil && result.AuthMethod.StepUp != nil {
		return model.AuthPolicyDecision{
			NextState:       model.StateStepUp,
			NextAuthMethods: []*model.AuthMethod{result.AuthMethod.StepUp.AuthMethod},
		}
	}

	if levelIn(result.AuthLevel, targetLevels) {
		authSession := userSession.AddAuthSession(result.UserID, result.AuthMethod, result.AuthLevel)
		return model.AuthPolicyDecision{
			NextState:            model.StateResponse,
			ValidatedAuthSession: authSession,
		}
	}

	// Credential check succeeded but the achieved level does not satisfy
	// the transaction.
	return model.AuthPolicyDecision{NextState: state}
}

func levelIn(level *model.AuthLevel, levels []*model.AuthLevel) bool {
	for _, l := range levels {
		if level.Equal(l) {
			return true
		}
	}
	return false
}
