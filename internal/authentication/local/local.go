// Package local implements file-backed password authentication.
package local

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/identio/identio-server-sub001/internal/authentication"
	"github.com/identio/identio-server-sub001/internal/logging"
	"github.com/identio/identio-server-sub001/internal/model"
)

// userFile is the on-disk user repository format.
type userFile struct {
	Users []userEntry `yaml:"users"`
}

type userEntry struct {
	UserID       string `yaml:"user_id"`
	PasswordHash string `yaml:"password_hash"`
}

// Provider verifies user/password credentials against per-method user files
// loaded once at startup.
type Provider struct {
	// users maps method name to its user table.
	users     map[string]map[string]userEntry
	dummyHash []byte // timing-safe comparison for unknown users
}

// New loads the user files of every local method and registers the provider
// with the dispatch registry.
func New(methods []*model.AuthMethod, dispatch *authentication.Service) (*Provider, error) {
	p := &Provider{
		users: make(map[string]map[string]userEntry),
	}

	// Pre-compute a dummy hash so we can run bcrypt.CompareHashAndPassword
	// even for unknown user ids, preventing timing-based user enumeration.
	dummyHash, err := bcrypt.GenerateFromPassword([]byte("dummy"), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	p.dummyHash = dummyHash

	for _, method := range methods {
		if method.Local == nil {
			return nil, fmt.Errorf("local: method %s has no local settings", method.Name)
		}

		logging.Info("Loading user file",
			zap.String("method", method.Name),
			zap.String("path", method.Local.UserFilePath))

		table, err := loadUserFile(method.Local.UserFilePath)
		if err != nil {
			return nil, fmt.Errorf("local: method %s: %w", method.Name, err)
		}
		p.users[method.Name] = table

		if err := dispatch.RegisterExplicit(method, p); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func loadUserFile(path string) (map[string]userEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read user file: %w", err)
	}

	var file userFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse user file: %w", err)
	}

	table := make(map[string]userEntry, len(file.Users))
	for _, u := range file.Users {
		table[u.UserID] = u
	}
	return table, nil
}

// Accepts reports whether the credential variant is a user/password pair.
func (p *Provider) Accepts(authentication model.Authentication) bool {
	_, ok := authentication.(model.UserPasswordAuthentication)
	return ok
}

// Validate checks the submitted password against the method's user table.
func (p *Provider) Validate(_ context.Context, method *model.AuthMethod,
	auth model.Authentication, _ *model.TransactionData) *model.AuthenticationResult {

	credentials := auth.(model.UserPasswordAuthentication)

	if credentials.UserID == "" || credentials.Password == "" {
		return &model.AuthenticationResult{
			Status:      model.AuthFail,
			ErrorStatus: model.ErrorAuthInvalidCredentials,
		}
	}

	user, found := p.users[method.Name][credentials.UserID]
	if !found {
		// Run bcrypt against the dummy hash to prevent a timing
		// side-channel.
		bcrypt.CompareHashAndPassword(p.dummyHash, []byte(credentials.Password))
		return &model.AuthenticationResult{
			Status:      model.AuthFail,
			ErrorStatus: model.ErrorAuthInvalidCredentials,
		}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(credentials.Password)); err != nil {
		logging.Info("Failed authentication",
			zap.String("user", credentials.UserID),
			zap.String("method", method.Name))
		return &model.AuthenticationResult{
			Status:      model.AuthFail,
			ErrorStatus: model.ErrorAuthInvalidCredentials,
		}
	}

	logging.Info("User successfully authenticated",
		zap.String("user", credentials.UserID),
		zap.String("method", method.Name))

	return &model.AuthenticationResult{
		Status:     model.AuthSuccess,
		UserID:     credentials.UserID,
		AuthMethod: method,
		AuthLevel:  method.AuthLevel,
	}
}
