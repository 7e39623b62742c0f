package orchestration

import (
	"context"
	"testing"
	"time"

	"github.com/identio/identio-server-sub001/internal/authentication"
	"github.com/identio/identio-server-sub001/internal/authpolicy"
	"github.com/identio/identio-server-sub001/internal/config"
	"github.com/identio/identio-server-sub001/internal/metrics"
	"github.com/identio/identio-server-sub001/internal/model"
	"github.com/identio/identio-server-sub001/internal/storage"
)

// fakeAdapter implements both protocol adapter interfaces, returning a
// preset parsing result and canned responses.
type fakeAdapter struct {
	info *model.RequestParsingInfo

	lastAssertedUser string
	lastErrorStatus  model.ErrorStatus
}

func (f *fakeAdapter) ValidateAuthentRequest(model.SamlInboundRequest) *model.RequestParsingInfo {
	return f.info
}

func (f *fakeAdapter) GenerateSuccessResponse(info *model.RequestParsingInfo,
	authSession *model.AuthSession) (*model.ResponseData, error) {
	f.lastAssertedUser = authSession.UserID
	return &model.ResponseData{URL: info.ResponseURL, SAMLResponse: "response", RelayState: info.RelayState}, nil
}

func (f *fakeAdapter) GenerateErrorResponse(info *model.RequestParsingInfo,
	status model.ErrorStatus) (*model.ResponseData, error) {
	f.lastErrorStatus = status
	return &model.ResponseData{URL: info.ResponseURL}, nil
}

type fakeOAuthAdapter struct {
	fakeAdapter
}

func (f *fakeOAuthAdapter) ValidateAuthentRequest(model.OAuthInboundRequest) *model.RequestParsingInfo {
	return f.info
}

// fakePasswordProvider accepts user/password credentials and succeeds only
// on the canonical test password.
type fakePasswordProvider struct{}

func (fakePasswordProvider) Accepts(auth model.Authentication) bool {
	_, ok := auth.(model.UserPasswordAuthentication)
	return ok
}

func (fakePasswordProvider) Validate(_ context.Context, method *model.AuthMethod,
	auth model.Authentication, _ *model.TransactionData) *model.AuthenticationResult {

	credentials := auth.(model.UserPasswordAuthentication)
	if credentials.Password != "good" {
		return &model.AuthenticationResult{
			Status:      model.AuthFail,
			ErrorStatus: model.ErrorAuthInvalidCredentials,
		}
	}
	return &model.AuthenticationResult{
		Status:     model.AuthSuccess,
		UserID:     credentials.UserID,
		AuthMethod: method,
		AuthLevel:  method.AuthLevel,
	}
}

// fakeCertProvider transparently authenticates any presented certificate as
// a fixed user.
type fakeCertProvider struct {
	method *model.AuthMethod
}

func (fakeCertProvider) Accepts(auth model.Authentication) bool {
	_, ok := auth.(model.X509Authentication)
	return ok
}

func (p fakeCertProvider) Validate(_ context.Context, method *model.AuthMethod,
	_ model.Authentication, _ *model.TransactionData) *model.AuthenticationResult {
	return &model.AuthenticationResult{
		Status:     model.AuthSuccess,
		UserID:     "cert-user",
		AuthMethod: method,
		AuthLevel:  method.AuthLevel,
	}
}

type fakeProxy struct {
	destination string
}

func (p *fakeProxy) InitRequest(method *model.AuthMethod, tx *model.TransactionData) (string, error) {
	tx.SelectedAuthMethod = method
	tx.SamlProxyRequestID = "_proxy-req"
	return p.destination, nil
}

type harness struct {
	service *Service
	saml    *fakeAdapter
	oauth   *fakeOAuthAdapter

	sessions     *storage.SessionStore
	transactions *storage.TransactionStore
}

func newHarness(t *testing.T, info *model.RequestParsingInfo) *harness {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.AuthPolicy = config.AuthPolicyConfig{
		AuthLevels: []config.AuthLevelConfig{
			{Name: "low", URN: "urn:identio:auth-level:low"},
			{Name: "strong", URN: "urn:identio:auth-level:strong"},
		},
		DefaultAuthLevel: config.AppAuthLevelConfig{AuthLevel: "low", Comparison: "minimum"},
	}
	cfg.AuthMethods = config.AuthMethodsConfig{
		Local: []config.LocalMethodConfig{
			{MethodConfig: config.MethodConfig{Name: "corporate", AuthLevel: "low"}},
			{MethodConfig: config.MethodConfig{
				Name:      "partner",
				AuthLevel: "low",
				StepUp:    &config.StepUpConfig{AuthMethod: "otp", AuthLevel: "strong"},
			}},
			{MethodConfig: config.MethodConfig{Name: "otp", AuthLevel: "strong"}},
		},
		SamlProxy: []config.SamlProxyMethodConfig{
			{
				MethodConfig: config.MethodConfig{Name: "corp-idp", AuthLevel: "low"},
				EntityID:     "https://upstream.example.com",
				SSOEndpoint:  "https://upstream.example.com/sso",
				AuthMap:      map[string]string{"strong": "urn:upstream:smartcard"},
			},
		},
		X509: []config.X509MethodConfig{
			{MethodConfig: config.MethodConfig{Name: "client-cert", AuthLevel: "strong"}},
		},
	}

	policy, err := authpolicy.New(cfg)
	if err != nil {
		t.Fatalf("building policy failed: %v", err)
	}

	authenticator := authentication.NewService()
	for _, method := range policy.Methods() {
		switch {
		case method.Type == model.AuthMethodTypeLocal:
			if err := authenticator.RegisterExplicit(method, fakePasswordProvider{}); err != nil {
				t.Fatalf("registering %s failed: %v", method.Name, err)
			}
		case method.Type == model.AuthMethodTypeX509:
			if err := authenticator.RegisterTransparent(method, fakeCertProvider{method: method}); err != nil {
				t.Fatalf("registering %s failed: %v", method.Name, err)
			}
		}
	}

	sessions := storage.NewSessionStore(100, time.Minute)
	transactions := storage.NewTransactionStore(100, time.Minute)

	samlAdapter := &fakeAdapter{info: info}
	oauthAdapter := &fakeOAuthAdapter{fakeAdapter{info: info}}
	proxy := &fakeProxy{destination: "https://upstream.example.com/sso?SAMLRequest=req"}

	service := New(policy, authenticator, sessions, transactions,
		samlAdapter, oauthAdapter, proxy, metrics.New(sessions, transactions))

	return &harness{
		service:      service,
		saml:         samlAdapter,
		oauth:        oauthAdapter,
		sessions:     sessions,
		transactions: transactions,
	}
}

func samlInfo() *model.RequestParsingInfo {
	return &model.RequestParsingInfo{
		Status:            model.ParsingOK,
		ProtocolType:      model.ProtocolSAML,
		RequestID:         "id-42",
		SourceApplication: "webapp",
		ResponseURL:       "https://sp.example.com/acs",
	}
}

func (h *harness) startTransaction(t *testing.T) *model.ValidationResult {
	t.Helper()
	result, err := h.service.ValidateAuthentRequest(context.Background(),
		model.SamlInboundRequest{}, "", nil)
	if err != nil {
		t.Fatalf("ValidateAuthentRequest failed: %v", err)
	}
	return result
}

func TestInitialAuthenticationReachesResponse(t *testing.T) {
	h := newHarness(t, samlInfo())

	started := h.startTransaction(t)
	if started.State != model.StateAuth {
		t.Fatalf("expected AUTH for a fresh session, got %s", started.State)
	}
	if started.TransactionID == "" || started.SessionID == "" {
		t.Fatal("expected a transaction and session identifier")
	}

	result, err := h.service.ValidateExplicitAuthentication(context.Background(),
		started.SessionID, started.TransactionID, "corporate",
		model.UserPasswordAuthentication{UserID: "alice", Password: "good"})
	if err != nil {
		t.Fatalf("ValidateExplicitAuthentication failed: %v", err)
	}
	if result.State != model.StateResponse {
		t.Fatalf("expected RESPONSE, got %s (%s)", result.State, result.ErrorStatus)
	}
	if result.ResponseData == nil || result.ResponseData.SAMLResponse == "" {
		t.Fatal("expected a rendered protocol response")
	}
	if h.saml.lastAssertedUser != "alice" {
		t.Errorf("expected the response to assert alice, got %s", h.saml.lastAssertedUser)
	}

	if _, ok := h.transactions.Get(started.TransactionID); ok {
		t.Error("a completed transaction must be destroyed")
	}
}

func TestCompliantSessionSkipsAuthentication(t *testing.T) {
	h := newHarness(t, samlInfo())

	started := h.startTransaction(t)
	completed, err := h.service.ValidateExplicitAuthentication(context.Background(),
		started.SessionID, started.TransactionID, "corporate",
		model.UserPasswordAuthentication{UserID: "alice", Password: "good"})
	if err != nil || completed.State != model.StateResponse {
		t.Fatalf("first transaction did not complete: %v %+v", err, completed)
	}

	result, err := h.service.ValidateAuthentRequest(context.Background(),
		model.SamlInboundRequest{}, started.SessionID, nil)
	if err != nil {
		t.Fatalf("second request failed: %v", err)
	}
	if result.State != model.StateResponse {
		t.Fatalf("expected an immediate RESPONSE from the existing session, got %s", result.State)
	}
	if result.ResponseData == nil {
		t.Fatal("expected a rendered protocol response")
	}
}

func TestForceAuthenticationIgnoresExistingSession(t *testing.T) {
	h := newHarness(t, samlInfo())

	started := h.startTransaction(t)
	if _, err := h.service.ValidateExplicitAuthentication(context.Background(),
		started.SessionID, started.TransactionID, "corporate",
		model.UserPasswordAuthentication{UserID: "alice", Password: "good"}); err != nil {
		t.Fatalf("first transaction failed: %v", err)
	}

	info := samlInfo()
	info.ForceAuthentication = true
	h.saml.info = info

	result, err := h.service.ValidateAuthentRequest(context.Background(),
		model.SamlInboundRequest{}, started.SessionID, nil)
	if err != nil {
		t.Fatalf("forced request failed: %v", err)
	}
	if result.State != model.StateAuth {
		t.Fatalf("expected AUTH despite the compliant session, got %s", result.State)
	}
}

func TestStepUpChain(t *testing.T) {
	h := newHarness(t, samlInfo())

	started := h.startTransaction(t)

	// The partner method succeeds but declares a mandatory second factor.
	result, err := h.service.ValidateExplicitAuthentication(context.Background(),
		started.SessionID, started.TransactionID, "partner",
		model.UserPasswordAuthentication{UserID: "alice", Password: "good"})
	if err != nil {
		t.Fatalf("partner authentication failed: %v", err)
	}
	if result.State != model.StateStepUp {
		t.Fatalf("expected STEP_UP_AUTHENTICATION, got %s (%s)", result.State, result.ErrorStatus)
	}

	methods, err := h.service.AuthMethods(started.SessionID, started.TransactionID)
	if err != nil {
		t.Fatalf("AuthMethods failed: %v", err)
	}
	if len(methods) != 1 || methods[0].Name != "otp" {
		t.Fatal("expected otp as the only permitted method during step-up")
	}

	// Any other method is rejected without killing the transaction.
	result, err = h.service.ValidateExplicitAuthentication(context.Background(),
		started.SessionID, started.TransactionID, "corporate",
		model.UserPasswordAuthentication{UserID: "alice", Password: "good"})
	if err != nil {
		t.Fatalf("submission failed: %v", err)
	}
	if result.State != model.StateStepUp || result.ErrorStatus != model.ErrorAuthMethodNotAllowed {
		t.Fatalf("expected a retryable method rejection, got %s (%s)", result.State, result.ErrorStatus)
	}

	result, err = h.service.ValidateExplicitAuthentication(context.Background(),
		started.SessionID, started.TransactionID, "otp",
		model.UserPasswordAuthentication{UserID: "alice", Password: "good"})
	if err != nil {
		t.Fatalf("otp authentication failed: %v", err)
	}
	if result.State != model.StateResponse {
		t.Fatalf("expected RESPONSE after the step-up, got %s (%s)", result.State, result.ErrorStatus)
	}

	// The session records the step-up's declared level.
	session := h.sessions.GetOrCreate(started.SessionID)
	if len(session.AuthSessions) != 1 || session.AuthSessions[0].AuthLevel.Name != "strong" {
		t.Fatal("expected one auth session at the step-up level")
	}
}

func TestStepUpUserMismatchKillsTransaction(t *testing.T) {
	h := newHarness(t, samlInfo())

	// A fresh session: the first factor alone binds the transaction to alice.
	started := h.startTransaction(t)
	if _, err := h.service.ValidateExplicitAuthentication(context.Background(),
		started.SessionID, started.TransactionID, "partner",
		model.UserPasswordAuthentication{UserID: "alice", Password: "good"}); err != nil {
		t.Fatalf("partner authentication failed: %v", err)
	}

	result, err := h.service.ValidateExplicitAuthentication(context.Background(),
		started.SessionID, started.TransactionID, "otp",
		model.UserPasswordAuthentication{UserID: "mallory", Password: "good"})
	if err != nil {
		t.Fatalf("otp submission failed: %v", err)
	}
	if result.State != model.StateError || result.ErrorStatus != model.ErrorAuthUserIDMismatch {
		t.Fatalf("expected a fatal user mismatch, got %s (%s)", result.State, result.ErrorStatus)
	}
	if _, ok := h.transactions.Get(started.TransactionID); ok {
		t.Error("the transaction must be destroyed on a user mismatch")
	}

	// Mallory's second factor must not have left a session behind.
	session := h.sessions.GetOrCreate(started.SessionID)
	if len(session.AuthSessions) != 0 {
		t.Error("a mismatched step-up must not record an auth session")
	}
}

func TestForeignSessionDestroysTransaction(t *testing.T) {
	h := newHarness(t, samlInfo())

	started := h.startTransaction(t)
	foreign := h.sessions.Create()

	result, err := h.service.ValidateExplicitAuthentication(context.Background(),
		foreign.ID, started.TransactionID, "corporate",
		model.UserPasswordAuthentication{UserID: "alice", Password: "good"})
	if err != nil {
		t.Fatalf("submission failed: %v", err)
	}
	if result.State != model.StateError || result.ErrorStatus != model.ErrorInvalidTransaction {
		t.Fatalf("expected a fatal invalid transaction, got %s (%s)", result.State, result.ErrorStatus)
	}

	// Even the legitimate session can no longer use the transaction.
	result, err = h.service.ValidateExplicitAuthentication(context.Background(),
		started.SessionID, started.TransactionID, "corporate",
		model.UserPasswordAuthentication{UserID: "alice", Password: "good"})
	if err != nil {
		t.Fatalf("submission failed: %v", err)
	}
	if result.State != model.StateError || result.ErrorStatus != model.ErrorInvalidTransaction {
		t.Fatal("the transaction must be gone after a fixation attempt")
	}
}

func TestFailedCredentialsKeepTransactionAlive(t *testing.T) {
	h := newHarness(t, samlInfo())

	started := h.startTransaction(t)

	result, err := h.service.ValidateExplicitAuthentication(context.Background(),
		started.SessionID, started.TransactionID, "corporate",
		model.UserPasswordAuthentication{UserID: "alice", Password: "bad"})
	if err != nil {
		t.Fatalf("submission failed: %v", err)
	}
	if result.State != model.StateAuth || result.ErrorStatus != model.ErrorAuthInvalidCredentials {
		t.Fatalf("expected a retryable failure, got %s (%s)", result.State, result.ErrorStatus)
	}

	// The retry succeeds against the same transaction.
	result, err = h.service.ValidateExplicitAuthentication(context.Background(),
		started.SessionID, started.TransactionID, "corporate",
		model.UserPasswordAuthentication{UserID: "alice", Password: "good"})
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if result.State != model.StateResponse {
		t.Fatalf("expected RESPONSE on retry, got %s (%s)", result.State, result.ErrorStatus)
	}
}

func TestUnknownMethodIsRetryable(t *testing.T) {
	h := newHarness(t, samlInfo())

	started := h.startTransaction(t)

	result, err := h.service.ValidateExplicitAuthentication(context.Background(),
		started.SessionID, started.TransactionID, "no-such-method",
		model.UserPasswordAuthentication{UserID: "alice", Password: "good"})
	if err != nil {
		t.Fatalf("submission failed: %v", err)
	}
	if result.State != model.StateAuth || result.ErrorStatus != model.ErrorAuthMethodUnknown {
		t.Fatalf("expected a retryable unknown method, got %s (%s)", result.State, result.ErrorStatus)
	}
}

func TestFatalParsingErrorYieldsNoTransaction(t *testing.T) {
	info := samlInfo()
	info.Status = model.ParsingFatalError
	info.ErrorStatus = model.ErrorSamlUnknownIssuer
	h := newHarness(t, info)

	result := h.startTransaction(t)
	if result.State != model.StateError || result.ErrorStatus != model.ErrorSamlUnknownIssuer {
		t.Fatalf("expected ERROR, got %s (%s)", result.State, result.ErrorStatus)
	}
	if h.transactions.Len() != 0 {
		t.Error("a fatal request must not create a transaction")
	}
}

func TestResponseErrorIsReportedToRelyingParty(t *testing.T) {
	info := samlInfo()
	info.Status = model.ParsingResponseError
	info.ErrorStatus = model.ErrorSamlInvalidRequest
	h := newHarness(t, info)

	result := h.startTransaction(t)
	if result.State != model.StateResponse {
		t.Fatalf("expected RESPONSE, got %s", result.State)
	}
	if result.ResponseData == nil {
		t.Fatal("expected a rendered error response")
	}
	if h.saml.lastErrorStatus != model.ErrorSamlInvalidRequest {
		t.Errorf("expected the reason forwarded to the adapter, got %s", h.saml.lastErrorStatus)
	}
}

func TestTransparentCertificateAuthentication(t *testing.T) {
	h := newHarness(t, samlInfo())

	result, err := h.service.ValidateAuthentRequest(context.Background(),
		model.SamlInboundRequest{}, "", model.X509Authentication{})
	if err != nil {
		t.Fatalf("ValidateAuthentRequest failed: %v", err)
	}
	if result.State != model.StateResponse {
		t.Fatalf("expected an immediate RESPONSE from the certificate, got %s (%s)",
			result.State, result.ErrorStatus)
	}
	if h.saml.lastAssertedUser != "cert-user" {
		t.Errorf("expected cert-user asserted, got %s", h.saml.lastAssertedUser)
	}
}

func TestTransparentCredentialCannotCompleteStepUp(t *testing.T) {
	h := newHarness(t, samlInfo())

	started := h.startTransaction(t)
	if _, err := h.service.ValidateExplicitAuthentication(context.Background(),
		started.SessionID, started.TransactionID, "partner",
		model.UserPasswordAuthentication{UserID: "alice", Password: "good"}); err != nil {
		t.Fatalf("partner authentication failed: %v", err)
	}

	// The mandated second factor is otp; a client certificate must not
	// substitute for it.
	result, err := h.service.ValidateTransparentAuthentication(context.Background(),
		started.SessionID, started.TransactionID, model.X509Authentication{})
	if err != nil {
		t.Fatalf("transparent submission failed: %v", err)
	}
	if result.State != model.StateStepUp || result.ErrorStatus != model.ErrorAuthMethodNotAllowed {
		t.Fatalf("expected a retryable rejection in STEP_UP_AUTHENTICATION, got %s (%s)",
			result.State, result.ErrorStatus)
	}

	session := h.sessions.GetOrCreate(started.SessionID)
	if len(session.AuthSessions) != 0 {
		t.Error("the rejected certificate must not record an auth session")
	}

	// The step-up still completes with the mandated method.
	result, err = h.service.ValidateExplicitAuthentication(context.Background(),
		started.SessionID, started.TransactionID, "otp",
		model.UserPasswordAuthentication{UserID: "alice", Password: "good"})
	if err != nil || result.State != model.StateResponse {
		t.Fatalf("step-up did not complete: %v %s (%s)", err, result.State, result.ErrorStatus)
	}
}

func TestExplicitSubmissionWithoutCredentialsIsRetryable(t *testing.T) {
	h := newHarness(t, samlInfo())

	started := h.startTransaction(t)
	result, err := h.service.ValidateExplicitAuthentication(context.Background(),
		started.SessionID, started.TransactionID, "corporate", nil)
	if err != nil {
		t.Fatalf("submission failed: %v", err)
	}
	if result.State != model.StateAuth || result.ErrorStatus != model.ErrorAuthNoCredentials {
		t.Fatalf("expected a retryable no-credentials failure, got %s (%s)",
			result.State, result.ErrorStatus)
	}
}

func TestOmittedMethodNameReusesSelectedMethod(t *testing.T) {
	h := newHarness(t, samlInfo())

	started := h.startTransaction(t)

	// A failed attempt records the chosen method on the transaction.
	if _, err := h.service.ValidateExplicitAuthentication(context.Background(),
		started.SessionID, started.TransactionID, "corporate",
		model.UserPasswordAuthentication{UserID: "alice", Password: "bad"}); err != nil {
		t.Fatalf("first submission failed: %v", err)
	}

	tx, ok := h.transactions.Get(started.TransactionID)
	if !ok {
		t.Fatal("expected the transaction to survive the failed attempt")
	}
	if tx.SelectedAuthMethod == nil || tx.SelectedAuthMethod.Name != "corporate" {
		t.Fatal("expected the submitted method recorded on the transaction")
	}

	// Retrying without naming a method targets the recorded one.
	result, err := h.service.ValidateExplicitAuthentication(context.Background(),
		started.SessionID, started.TransactionID, "",
		model.UserPasswordAuthentication{UserID: "alice", Password: "good"})
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if result.State != model.StateResponse {
		t.Fatalf("expected RESPONSE on the retry, got %s (%s)", result.State, result.ErrorStatus)
	}
}

func TestAuthMethodsListsExplicitTargets(t *testing.T) {
	h := newHarness(t, samlInfo())

	started := h.startTransaction(t)
	methods, err := h.service.AuthMethods(started.SessionID, started.TransactionID)
	if err != nil {
		t.Fatalf("AuthMethods failed: %v", err)
	}

	names := make([]string, len(methods))
	for i, m := range methods {
		names[i] = m.Name
	}
	want := []string{"corp-idp", "corporate", "otp", "partner"}
	if len(names) != len(want) {
		t.Fatalf("expected methods %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected methods %v, got %v", want, names)
		}
	}
}

func TestInitSamlRequestStartsBrokeredRound(t *testing.T) {
	h := newHarness(t, samlInfo())

	started := h.startTransaction(t)
	destination, err := h.service.InitSamlRequest(started.SessionID, started.TransactionID, "corp-idp")
	if err != nil {
		t.Fatalf("InitSamlRequest failed: %v", err)
	}
	if destination != "https://upstream.example.com/sso?SAMLRequest=req" {
		t.Errorf("unexpected destination %s", destination)
	}

	tx, ok := h.transactions.Get(started.TransactionID)
	if !ok {
		t.Fatal("expected the transaction to survive the init")
	}
	if tx.SelectedAuthMethod == nil || tx.SelectedAuthMethod.Name != "corp-idp" {
		t.Error("expected the brokered method recorded on the transaction")
	}
}

func TestInitSamlRequestRejectsNonBrokeredMethod(t *testing.T) {
	h := newHarness(t, samlInfo())

	started := h.startTransaction(t)
	if _, err := h.service.InitSamlRequest(started.SessionID, started.TransactionID, "corporate"); err == nil {
		t.Fatal("expected an error for a non-brokered method")
	}
}
