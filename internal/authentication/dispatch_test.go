package authentication

import (
	"context"
	"testing"

	"github.com/identio/identio-server-sub001/internal/model"
)

type fakeProvider struct {
	accepts bool
	result  *model.AuthenticationResult
	calls   int
}

func (p *fakeProvider) Accepts(model.Authentication) bool { return p.accepts }

func (p *fakeProvider) Validate(_ context.Context, _ *model.AuthMethod,
	_ model.Authentication, _ *model.TransactionData) *model.AuthenticationResult {
	p.calls++
	return p.result
}

func method(name string) *model.AuthMethod {
	return &model.AuthMethod{Name: name, Type: model.AuthMethodTypeLocal, Explicit: true}
}

func TestRegisterExplicitRejectsDuplicateName(t *testing.T) {
	s := NewService()
	p := &fakeProvider{}

	if err := s.RegisterExplicit(method("pwd"), p); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	if err := s.RegisterExplicit(method("pwd"), p); err == nil {
		t.Fatal("expected an error on duplicate method name")
	}
}

func TestValidateExplicitDeclines(t *testing.T) {
	s := NewService()
	p := &fakeProvider{accepts: false}
	if err := s.RegisterExplicit(method("pwd"), p); err != nil {
		t.Fatalf("registration failed: %v", err)
	}

	auth := model.UserPasswordAuthentication{UserID: "alice", Password: "secret"}

	if result := s.ValidateExplicit(context.Background(), method("unregistered"), auth, nil); result != nil {
		t.Error("expected nil for an unregistered method")
	}
	if result := s.ValidateExplicit(context.Background(), method("pwd"), auth, nil); result != nil {
		t.Error("expected nil when the provider does not accept the credential variant")
	}
	if p.calls != 0 {
		t.Error("Validate must not run when the provider declines")
	}
}

func TestValidateExplicitRoutesToBoundProvider(t *testing.T) {
	s := NewService()
	want := &model.AuthenticationResult{Status: model.AuthSuccess, UserID: "alice"}
	p := &fakeProvider{accepts: true, result: want}
	if err := s.RegisterExplicit(method("pwd"), p); err != nil {
		t.Fatalf("registration failed: %v", err)
	}

	got := s.ValidateExplicit(context.Background(),
		method("pwd"), model.UserPasswordAuthentication{UserID: "alice", Password: "secret"}, nil)
	if got != want {
		t.Fatal("expected the provider's result")
	}
}

func TestValidateTransparentStopsAtFirstNonFailure(t *testing.T) {
	s := NewService()
	declined := &fakeProvider{accepts: false}
	failed := &fakeProvider{accepts: true, result: &model.AuthenticationResult{Status: model.AuthFail}}
	succeeded := &fakeProvider{accepts: true, result: &model.AuthenticationResult{Status: model.AuthSuccess, UserID: "alice"}}
	unreached := &fakeProvider{accepts: true, result: &model.AuthenticationResult{Status: model.AuthSuccess}}

	for i, p := range []*fakeProvider{declined, failed, succeeded, unreached} {
		m := &model.AuthMethod{Name: string(rune('a' + i)), Type: model.AuthMethodTypeX509}
		if err := s.RegisterTransparent(m, p); err != nil {
			t.Fatalf("registration failed: %v", err)
		}
	}

	result := s.ValidateTransparent(context.Background(), model.X509Authentication{}, nil)
	if result == nil || result.UserID != "alice" {
		t.Fatal("expected the first successful provider's result")
	}
	if declined.calls != 0 {
		t.Error("a declining provider must not be asked to validate")
	}
	if failed.calls != 1 {
		t.Error("a failing provider is consulted and skipped")
	}
	if unreached.calls != 0 {
		t.Error("scan must stop at the first non-failure")
	}
}

func TestValidateTransparentAllFailReturnsNil(t *testing.T) {
	s := NewService()
	failed := &fakeProvider{accepts: true, result: &model.AuthenticationResult{
		Status:      model.AuthFail,
		ErrorStatus: model.ErrorAuthInvalidCredentials,
	}}
	if err := s.RegisterTransparent(method("cert"), failed); err != nil {
		t.Fatalf("registration failed: %v", err)
	}

	if result := s.ValidateTransparent(context.Background(), model.X509Authentication{}, nil); result != nil {
		t.Fatalf("expected nil when every provider fails, got %+v", result)
	}
	if failed.calls != 1 {
		t.Error("the failing provider is still consulted")
	}
}
